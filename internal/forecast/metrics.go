package forecast

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/flowerbelle/backend-go/internal/domain"
)

// accuracyTolerance is the relative error under which a prediction counts as accurate.
const accuracyTolerance = 0.20

// Evaluate scores predictions against actual values. Accuracy is the fraction of
// rows with |actual-predicted|/(actual+1) <= 0.20; the +1 keeps zero-demand days
// from dividing by zero. R² is 1 for a perfect fit of a constant target and 0 for
// any other fit of a constant target.
func Evaluate(actual, predicted []float64) domain.EvaluationMetrics {
	n := len(actual)
	if n == 0 || len(predicted) != n {
		return domain.EvaluationMetrics{}
	}

	var sse, sae float64
	accurate := 0
	for i := range actual {
		diff := actual[i] - predicted[i]
		sse += diff * diff
		sae += math.Abs(diff)
		if math.Abs(diff)/(actual[i]+1) <= accuracyTolerance {
			accurate++
		}
	}

	mean := stat.Mean(actual, nil)
	var sst float64
	for _, v := range actual {
		sst += (v - mean) * (v - mean)
	}

	r2 := 0.0
	switch {
	case sst > 0:
		r2 = 1 - sse/sst
	case sse == 0:
		r2 = 1
	}

	mse := sse / float64(n)
	return domain.EvaluationMetrics{
		MSE:                 mse,
		RMSE:                math.Sqrt(mse),
		MAE:                 sae / float64(n),
		R2Score:             r2,
		AccuracyWithin20Pct: float64(accurate) / float64(n),
	}
}
