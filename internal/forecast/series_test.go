package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowerbelle/backend-go/internal/domain"
)

var testAnchor = time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC)

// weeklySales returns one sale per day for the window ending at anchor, busier on
// weekends and with a small repeating wobble.
func weeklySales(anchor time.Time, days int) []domain.DailySale {
	start := WindowStart(anchor, days)
	out := make([]domain.DailySale, 0, days)
	for i := 0; i < days; i++ {
		d := start.AddDate(0, 0, i)
		q := 5 + i%3
		if weekdayIndex(d) >= 5 {
			q += 4
		}
		out = append(out, domain.DailySale{Date: d, Quantity: q})
	}
	return out
}

// sparseSales returns a sale of qty on each of the first n odd days of the window.
func sparseSales(anchor time.Time, days, n, qty int) []domain.DailySale {
	start := WindowStart(anchor, days)
	out := make([]domain.DailySale, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.DailySale{Date: start.AddDate(0, 0, 2*i+1), Quantity: qty})
	}
	return out
}

func TestBuildDailySeriesFillsGaps(t *testing.T) {
	sales := sparseSales(testAnchor, 40, 15, 3)

	series, err := BuildDailySeries(7, testAnchor, 40, sales)
	require.NoError(t, err)

	require.Equal(t, 40, series.Len())
	assert.Equal(t, testAnchor, series.End)
	assert.Equal(t, testAnchor.AddDate(0, 0, -39), series.Start)

	present := make(map[time.Time]bool)
	for _, s := range sales {
		present[s.Date] = true
	}

	for i, e := range series.Entries {
		assert.Equal(t, series.Start.AddDate(0, 0, i), e.Date)
		if present[e.Date] {
			assert.Equal(t, 3.0, e.Quantity)
		} else {
			assert.Zero(t, e.Quantity, "day %s", e.Date.Format(dateLayout))
		}
	}
	assert.Equal(t, 15, series.SalesDays())
}

func TestBuildDailySeriesNoLookahead(t *testing.T) {
	series, err := BuildDailySeries(1, testAnchor, 60, weeklySales(testAnchor, 60))
	require.NoError(t, err)

	q := series.Quantities()
	for i, e := range series.Entries {
		if i == 0 {
			assert.Zero(t, e.Lag1)
		} else {
			assert.Equal(t, q[i-1], e.Lag1)
		}
		if i < 7 {
			assert.Zero(t, e.Lag7)
		} else {
			assert.Equal(t, q[i-7], e.Lag7)
		}

		lo := i - 6
		if lo < 0 {
			lo = 0
		}
		assert.InDelta(t, mean(q[lo:i+1]), e.RollingMean7, 1e-9)

		lo = i - 13
		if lo < 0 {
			lo = 0
		}
		assert.InDelta(t, mean(q[lo:i+1]), e.RollingMean14, 1e-9)
	}
}

func TestBuildDailySeriesRollingMeanIgnoresFuture(t *testing.T) {
	sales := weeklySales(testAnchor, 30)
	base, err := BuildDailySeries(1, testAnchor, 30, sales)
	require.NoError(t, err)

	// Changing the last day must not move any earlier row's features.
	changed := append([]domain.DailySale(nil), sales...)
	changed[len(changed)-1].Quantity += 100
	other, err := BuildDailySeries(1, testAnchor, 30, changed)
	require.NoError(t, err)

	for i := 0; i < 29; i++ {
		assert.Equal(t, base.Entries[i].Features(), other.Entries[i].Features(), "row %d", i)
	}
}

func TestBuildDailySeriesMinimumSalesDays(t *testing.T) {
	_, err := BuildDailySeries(3, testAnchor, 90, sparseSales(testAnchor, 90, 13, 2))
	require.Error(t, err)

	var ih *InsufficientHistoryError
	require.ErrorAs(t, err, &ih)
	assert.Equal(t, 13, ih.DaysFound)
	assert.Equal(t, MinSalesDays, ih.Required)
	assert.True(t, IsInsufficientData(err))

	series, err := BuildDailySeries(3, testAnchor, 90, sparseSales(testAnchor, 90, 14, 2))
	require.NoError(t, err)
	assert.Equal(t, 14, series.SalesDays())
}

func TestBuildDailySeriesCountsDistinctDaysNotRows(t *testing.T) {
	// 20 rows on 10 distinct days is still too sparse.
	sales := sparseSales(testAnchor, 90, 10, 1)
	sales = append(sales, sparseSales(testAnchor, 90, 10, 1)...)

	_, err := BuildDailySeries(3, testAnchor, 90, sales)
	var ih *InsufficientHistoryError
	require.ErrorAs(t, err, &ih)
	assert.Equal(t, 10, ih.DaysFound)
}

func TestBuildDailySeriesSumsDuplicatesAndDropsOutOfWindow(t *testing.T) {
	sales := weeklySales(testAnchor, 20)
	sales = append(sales,
		domain.DailySale{Date: testAnchor, Quantity: 50},
		domain.DailySale{Date: testAnchor.AddDate(0, 0, 1), Quantity: 999},
		domain.DailySale{Date: testAnchor.AddDate(0, 0, -20), Quantity: 999},
	)

	series, err := BuildDailySeries(1, testAnchor, 20, sales)
	require.NoError(t, err)

	last := series.Entries[series.Len()-1]
	assert.Equal(t, float64(weeklySales(testAnchor, 20)[19].Quantity+50), last.Quantity)
	assert.Equal(t, float64(weeklySales(testAnchor, 20)[0].Quantity), series.Entries[0].Quantity)
}

func TestBuildDailySeriesRejectsNonPositiveWindow(t *testing.T) {
	_, err := BuildDailySeries(1, testAnchor, 0, nil)
	require.Error(t, err)
	assert.False(t, IsInsufficientData(err))
}

func TestSeriesCalendarFeatures(t *testing.T) {
	// 2024-03-30 is a Saturday.
	sat := time.Date(2024, time.March, 30, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, [4]float64{5, 30, 3, 1}, CalendarFeatures(sat))

	mon := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, [4]float64{0, 1, 4, 0}, CalendarFeatures(mon))
}

func TestSeriesMatrixMatchesEntries(t *testing.T) {
	series, err := BuildDailySeries(1, testAnchor, 30, weeklySales(testAnchor, 30))
	require.NoError(t, err)

	X, y := series.Matrix()
	require.Len(t, X, series.Len())
	require.Len(t, y, series.Len())
	for i, e := range series.Entries {
		assert.Len(t, X[i], FeatureCount)
		assert.Equal(t, e.Quantity, y[i])
		assert.Equal(t, float64(e.DayOfWeek), X[i][0])
		assert.Equal(t, e.RollingMean14, X[i][7])
	}
}
