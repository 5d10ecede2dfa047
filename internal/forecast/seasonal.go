package forecast

import (
	"sort"

	"github.com/flowerbelle/backend-go/internal/domain"
)

// PeakFactor is how far above the average month a month must sell to count as a peak.
const PeakFactor = 1.5

// SeasonalityDays is the lookback used for peak detection.
const SeasonalityDays = 365

// DetectSeasonalPeaks returns the months whose sales exceed PeakFactor times the
// average over the months present, highest first.
func DetectSeasonalPeaks(months []domain.MonthlySales) []domain.SeasonalPeak {
	if len(months) == 0 {
		return []domain.SeasonalPeak{}
	}

	total := 0
	for _, m := range months {
		total += m.Quantity
	}
	avg := float64(total) / float64(len(months))

	peaks := []domain.SeasonalPeak{}
	for _, m := range months {
		if float64(m.Quantity) > avg*PeakFactor {
			peaks = append(peaks, domain.SeasonalPeak{Month: m.Month, Sales: m.Quantity})
		}
	}

	sort.SliceStable(peaks, func(i, j int) bool { return peaks[i].Sales > peaks[j].Sales })
	return peaks
}

// SeasonalFactor is the ratio of a month's sales to the average month, or 1 when unknown.
func SeasonalFactor(months []domain.MonthlySales, month int) float64 {
	if len(months) == 0 {
		return 1
	}
	total := 0
	found := -1
	for _, m := range months {
		total += m.Quantity
		if m.Month == month {
			found = m.Quantity
		}
	}
	avg := float64(total) / float64(len(months))
	if found < 0 || avg == 0 {
		return 1
	}
	return float64(found) / avg
}
