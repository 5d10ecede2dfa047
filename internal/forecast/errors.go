package forecast

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoSalesHistory is returned when a product has never had a completed sale,
// so no anchor date exists to build a training window from.
var ErrNoSalesHistory = errors.New("no completed sales history")

// InsufficientHistoryError reports a window with too few selling days to model.
type InsufficientHistoryError struct {
	DaysFound int
	Required  int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient sales history: %d days with sales, need at least %d", e.DaysFound, e.Required)
}

// PredictionError wraps a failure to build features or predict a single day.
// The forecaster recovers from it locally and never returns it to callers.
type PredictionError struct {
	Date time.Time
	Err  error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("predict %s: %v", e.Date.Format(dateLayout), e.Err)
}

func (e *PredictionError) Unwrap() error {
	return e.Err
}

// IsInsufficientData reports whether err means the product cannot be forecast
// from the data available, as opposed to an infrastructure failure.
func IsInsufficientData(err error) bool {
	if errors.Is(err, ErrNoSalesHistory) {
		return true
	}
	var ih *InsufficientHistoryError
	return errors.As(err, &ih)
}
