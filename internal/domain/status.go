package domain

import "strings"

// Priority ranks how soon a product needs replenishment.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

// Action is the reorder step paired with a Priority.
type Action string

const (
	ActionUrgentOrder Action = "URGENT_ORDER"
	ActionOrderSoon   Action = "ORDER_SOON"
	ActionReorder     Action = "REORDER"
	ActionMonitor     Action = "MONITOR"
)

type RecommendationStatus string

const (
	RecommendationPending RecommendationStatus = "PENDING"
	RecommendationOrdered RecommendationStatus = "ORDERED"
	RecommendationIgnored RecommendationStatus = "IGNORED"
)

// SummaryDefaultPriority is reported when a product has no pending recommendation.
const SummaryDefaultPriority = "NORMAL"

// ModelType identifies the regression family behind a trained model.
type ModelType string

const (
	ModelTypeLinearRegression ModelType = "LINEAR_REGRESSION"
	ModelTypeRandomForest     ModelType = "RANDOM_FOREST"
)

var modelTypeAliases = map[string]ModelType{
	"linear":            ModelTypeLinearRegression,
	"linear_regression": ModelTypeLinearRegression,
	"lr":                ModelTypeLinearRegression,
	"random_forest":     ModelTypeRandomForest,
	"forest":            ModelTypeRandomForest,
	"rf":                ModelTypeRandomForest,
}

// ParseModelType returns the model type for a label (case-insensitive).
func ParseModelType(label string) (ModelType, bool) {
	mt, ok := modelTypeAliases[strings.ToLower(strings.TrimSpace(label))]

	return mt, ok
}

// NamePrefix is the short code used in model registry names.
func (m ModelType) NamePrefix() string {
	switch m {
	case ModelTypeRandomForest:
		return "RF"
	case ModelTypeLinearRegression:
		return "LR"
	}

	return "MODEL"
}
