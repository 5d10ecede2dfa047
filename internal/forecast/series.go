package forecast

import (
	"fmt"
	"time"

	"github.com/flowerbelle/backend-go/internal/domain"
)

const (
	// FeatureCount is the width of every feature vector.
	FeatureCount = 8
	// MinSalesDays is the modeling floor: distinct days with nonzero sales in the window.
	MinSalesDays = 14
	// DefaultTrainingDays is the training window used when none is requested.
	DefaultTrainingDays = 90

	dateLayout = "2006-01-02"
)

// FeatureNames lists the feature vector columns in their fixed order.
var FeatureNames = [FeatureCount]string{
	"day_of_week",
	"day_of_month",
	"month",
	"is_weekend",
	"lag_1",
	"lag_7",
	"rolling_mean_7",
	"rolling_mean_14",
}

// SeriesEntry is one calendar day of a DailySeries with its engineered features.
type SeriesEntry struct {
	Date          time.Time
	Quantity      float64
	DayOfWeek     int
	DayOfMonth    int
	Month         int
	IsWeekend     bool
	Lag1          float64
	Lag7          float64
	RollingMean7  float64
	RollingMean14 float64
}

// Features returns the entry's feature vector in FeatureNames order.
func (e SeriesEntry) Features() []float64 {
	return []float64{
		float64(e.DayOfWeek),
		float64(e.DayOfMonth),
		float64(e.Month),
		boolFeature(e.IsWeekend),
		e.Lag1,
		e.Lag7,
		e.RollingMean7,
		e.RollingMean14,
	}
}

// DailySeries is a gap-free, ascending run of calendar days for one product.
type DailySeries struct {
	ProductID int64
	Start     time.Time
	End       time.Time
	Entries   []SeriesEntry
}

func (s *DailySeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Entries)
}

// Matrix returns the feature matrix and target vector, row-aligned with Entries.
func (s *DailySeries) Matrix() ([][]float64, []float64) {
	X := make([][]float64, len(s.Entries))
	y := make([]float64, len(s.Entries))
	for i, e := range s.Entries {
		X[i] = e.Features()
		y[i] = e.Quantity
	}
	return X, y
}

// Quantities returns the observed daily quantities in date order.
func (s *DailySeries) Quantities() []float64 {
	out := make([]float64, len(s.Entries))
	for i, e := range s.Entries {
		out[i] = e.Quantity
	}
	return out
}

// SalesDays counts the days with nonzero sales.
func (s *DailySeries) SalesDays() int {
	n := 0
	for _, e := range s.Entries {
		if e.Quantity != 0 {
			n++
		}
	}
	return n
}

// dateOnly keeps t's own calendar fields and drops the clock.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// WindowStart returns the first day of a window of the given length ending on anchor.
func WindowStart(anchor time.Time, days int) time.Time {
	return dateOnly(anchor).AddDate(0, 0, -(days - 1))
}

// BuildDailySeries lays the sales of one product onto every day of the window
// ending at anchor. Days without sales become explicit zeros, sales outside the
// window are ignored, and repeated dates are summed. Lag and rolling features
// only look at entries on or before their own row; days before the window are
// treated as zero.
func BuildDailySeries(productID int64, anchor time.Time, days int, sales []domain.DailySale) (*DailySeries, error) {
	if days <= 0 {
		return nil, fmt.Errorf("training window must be positive, got %d", days)
	}

	end := dateOnly(anchor)
	start := WindowStart(end, days)

	quantities := make([]float64, days)
	for _, s := range sales {
		d := dateOnly(s.Date)
		if d.Before(start) || d.After(end) {
			continue
		}
		idx := int(d.Sub(start).Hours() / 24)
		quantities[idx] += float64(s.Quantity)
	}

	series := &DailySeries{
		ProductID: productID,
		Start:     start,
		End:       end,
		Entries:   make([]SeriesEntry, days),
	}

	// prefix[i] is the sum of quantities[0:i]
	prefix := make([]float64, days+1)
	for i, q := range quantities {
		prefix[i+1] = prefix[i] + q
	}

	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i)
		dow := weekdayIndex(date)
		entry := SeriesEntry{
			Date:          date,
			Quantity:      quantities[i],
			DayOfWeek:     dow,
			DayOfMonth:    date.Day(),
			Month:         int(date.Month()),
			IsWeekend:     dow >= 5,
			RollingMean7:  trailingMean(prefix, i, 7),
			RollingMean14: trailingMean(prefix, i, 14),
		}
		if i >= 1 {
			entry.Lag1 = quantities[i-1]
		}
		if i >= 7 {
			entry.Lag7 = quantities[i-7]
		}
		series.Entries[i] = entry
	}

	if found := series.SalesDays(); found < MinSalesDays {
		return nil, &InsufficientHistoryError{DaysFound: found, Required: MinSalesDays}
	}

	return series, nil
}

// trailingMean averages the up-to-window values ending at index i inclusive.
func trailingMean(prefix []float64, i, window int) float64 {
	lo := i + 1 - window
	if lo < 0 {
		lo = 0
	}
	return (prefix[i+1] - prefix[lo]) / float64(i+1-lo)
}

// weekdayIndex maps Monday..Sunday to 0..6.
func weekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// CalendarFeatures returns day_of_week, day_of_month, month and is_weekend for date.
func CalendarFeatures(date time.Time) [4]float64 {
	dow := weekdayIndex(date)
	return [4]float64{
		float64(dow),
		float64(date.Day()),
		float64(date.Month()),
		boolFeature(dow >= 5),
	}
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
