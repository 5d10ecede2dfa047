package forecast

import (
	"fmt"
	"math"

	"github.com/flowerbelle/backend-go/internal/domain"
)

// Reorder policy. These breakpoints are business rules.
const (
	CriticalCoverDays = 7
	HighCoverDays     = 14
	TargetCoverDays   = 30
	SafetyStockDays   = 7

	// defaultThresholdDivisor sets the reorder threshold to 20% of stock when none is configured.
	defaultThresholdDivisor = 5
)

// DefaultReorderThreshold is the threshold used for products without a reorder point.
func DefaultReorderThreshold(currentStock int) int {
	return currentStock / defaultThresholdDivisor
}

// Recommend applies the reorder rule table to one forecast point. It is pure.
// A nil threshold falls back to DefaultReorderThreshold. DaysUntilStockout is nil
// when predicted demand is zero.
func Recommend(point domain.ForecastPoint, currentStock int, threshold *int) domain.Recommendation {
	demand := point.PredictedDemand
	reorderAt := DefaultReorderThreshold(currentStock)
	if threshold != nil {
		reorderAt = *threshold
	}

	rec := domain.Recommendation{}

	var cover float64
	hasCover := demand > 0
	if hasCover {
		cover = float64(currentStock) / float64(demand)
		days := int(math.Floor(cover))
		rec.DaysUntilStockout = &days
	}

	switch {
	case hasCover && cover < CriticalCoverDays:
		rec.Priority, rec.Action = domain.PriorityCritical, domain.ActionUrgentOrder
	case hasCover && cover < HighCoverDays:
		rec.Priority, rec.Action = domain.PriorityHigh, domain.ActionOrderSoon
	case currentStock < reorderAt:
		rec.Priority, rec.Action = domain.PriorityMedium, domain.ActionReorder
	default:
		rec.Priority, rec.Action = domain.PriorityLow, domain.ActionMonitor
	}

	safety := demand * SafetyStockDays
	order := demand*TargetCoverDays - currentStock + safety
	if order < 0 {
		order = 0
	}
	rec.RecommendedOrderQuantity = order

	rec.Reason = fmt.Sprintf("Current stock: %d, Predicted demand: %d/day", currentStock, demand)
	if rec.DaysUntilStockout != nil {
		rec.Reason += fmt.Sprintf(", Days until stockout: %d", *rec.DaysUntilStockout)
	}

	return rec
}
