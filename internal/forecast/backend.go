package forecast

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/flowerbelle/backend-go/internal/domain"
)

// Regressor predicts a single target from one feature vector.
type Regressor interface {
	Predict(features []float64) (float64, error)
}

// RegressionBackend is a swappable model family behind the shared feature contract.
// Backends differ in whether they want standardized inputs and in the width of the
// heuristic confidence band put around their point predictions.
type RegressionBackend interface {
	Type() domain.ModelType
	Fit(ctx context.Context, X [][]float64, y []float64) (Regressor, error)
	ScalesFeatures() bool
	ConfidenceBand() Band
	Parameters() map[string]any
}

// Band is a confidence interval expressed as multipliers of the point prediction.
// It is a fixed heuristic, not derived from the residual distribution.
type Band struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

var (
	LinearBand   = Band{Lower: 0.80, Upper: 1.20}
	ForestBand   = Band{Lower: 0.85, Upper: 1.15}
	FallbackBand = Band{Lower: 0.80, Upper: 1.20}
)

// Apply truncates the scaled bounds to integers and keeps lower <= upper with lower >= 0.
func (b Band) Apply(predicted int) (int, int) {
	lower := int(math.Floor(float64(predicted)*b.Lower + 1e-9))
	upper := int(math.Floor(float64(predicted)*b.Upper + 1e-9))
	if lower < 0 {
		lower = 0
	}
	if upper < lower {
		upper = lower
	}
	return lower, upper
}

// BackendOptions configures NewBackend.
type BackendOptions struct {
	Forest ForestConfig
}

// NewBackend resolves a backend by model type or alias ("linear", "random_forest", "rf", ...).
func NewBackend(name string, opts BackendOptions) (RegressionBackend, error) {
	mt, ok := domain.ParseModelType(name)
	if !ok {
		mt = domain.ModelType(strings.ToUpper(strings.TrimSpace(name)))
	}

	switch mt {
	case domain.ModelTypeLinearRegression:
		return NewLinearBackend(), nil
	case domain.ModelTypeRandomForest:
		return NewForestBackend(opts.Forest), nil
	}

	return nil, fmt.Errorf("unknown regression backend %q", name)
}

func validateTrainingSet(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return fmt.Errorf("empty training set")
	}
	if len(X) != len(y) {
		return fmt.Errorf("feature rows (%d) and targets (%d) differ", len(X), len(y))
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("row %d has %d features, expected %d", i, len(row), width)
		}
	}
	return nil
}
