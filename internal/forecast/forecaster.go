package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flowerbelle/backend-go/internal/domain"
)

// fallbackCoverDays spreads current stock evenly over a month for the naive estimate.
const fallbackCoverDays = 30

// Predictor is what the rollout needs from a trained model.
type Predictor interface {
	Predict(features []float64) (float64, error)
	ConfidenceBand() Band
}

// ForecastInput describes one rollout. History holds observed daily quantities,
// oldest first, ending on AnchorDate.
type ForecastInput struct {
	ProductID    int64
	AnchorDate   time.Time
	Days         int
	History      []float64
	CurrentStock int
}

// FallbackEstimate is the naive per-day demand used when a prediction step fails.
func FallbackEstimate(currentStock int) int {
	if currentStock <= 0 {
		return 0
	}
	return currentStock / fallbackCoverDays
}

// Forecast rolls the model forward one day at a time starting at AnchorDate+1.
// Each day's rounded prediction is appended to the working history before the
// next day's lag and rolling features are computed. A day whose features or
// prediction fail gets the fallback estimate instead, so the result always has
// exactly Days points. The caller's History is not modified.
func Forecast(model Predictor, in ForecastInput) []domain.ForecastPoint {
	if in.Days <= 0 {
		return nil
	}

	history := make([]float64, len(in.History), len(in.History)+in.Days)
	copy(history, in.History)

	anchor := dateOnly(in.AnchorDate)
	points := make([]domain.ForecastPoint, 0, in.Days)

	for i := 1; i <= in.Days; i++ {
		date := anchor.AddDate(0, 0, i)

		predicted, err := predictDay(model, date, history)
		if err != nil {
			log.Warn().
				Err(err).
				Int64("product_id", in.ProductID).
				Str("date", date.Format(dateLayout)).
				Int("current_stock", in.CurrentStock).
				Msg("prediction failed, using stock-based fallback")

			fallback := FallbackEstimate(in.CurrentStock)
			lower, upper := FallbackBand.Apply(fallback)
			points = append(points, domain.ForecastPoint{
				Date:            date,
				PredictedDemand: fallback,
				ConfidenceLower: lower,
				ConfidenceUpper: upper,
				Fallback:        true,
			})
			history = append(history, float64(fallback))
			continue
		}

		lower, upper := model.ConfidenceBand().Apply(predicted)
		points = append(points, domain.ForecastPoint{
			Date:            date,
			PredictedDemand: predicted,
			ConfidenceLower: lower,
			ConfidenceUpper: upper,
		})
		history = append(history, float64(predicted))
	}

	return points
}

// maxDailyDemand bounds a single day's prediction to the range of the stored demand column.
const maxDailyDemand = math.MaxInt32

// predictDay converts a panic, a non-finite output or an out-of-range output from the
// model into a PredictionError.
func predictDay(model Predictor, date time.Time, history []float64) (predicted int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PredictionError{Date: date, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if model == nil {
		return 0, &PredictionError{Date: date, Err: fmt.Errorf("no model")}
	}

	raw, err := model.Predict(DayFeatures(date, history))
	if err != nil {
		return 0, &PredictionError{Date: date, Err: err}
	}
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, &PredictionError{Date: date, Err: fmt.Errorf("non-finite prediction %v", raw)}
	}
	if raw > maxDailyDemand {
		return 0, &PredictionError{Date: date, Err: fmt.Errorf("prediction %v out of range", raw)}
	}

	return int(math.Max(0, math.Round(raw))), nil
}

// DayFeatures builds the feature vector for date from the history that precedes it.
// lag_7 and the rolling means are 0 until the history is long enough to fill them.
func DayFeatures(date time.Time, history []float64) []float64 {
	cal := CalendarFeatures(date)
	n := len(history)

	var lag1, lag7, rm7, rm14 float64
	if n >= 1 {
		lag1 = history[n-1]
	}
	if n >= 7 {
		lag7 = history[n-7]
		rm7 = mean(history[n-7:])
	}
	if n >= 14 {
		rm14 = mean(history[n-14:])
	}

	return []float64{cal[0], cal[1], cal[2], cal[3], lag1, lag7, rm7, rm14}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
