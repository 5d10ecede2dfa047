package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flowerbelle/backend-go/internal/domain"
)

// TrainedModel pairs a fitted regressor with the scaler it was fit through.
// It is immutable once returned by Train.
type TrainedModel struct {
	ModelType domain.ModelType
	Regressor Regressor
	Scaler    *StandardScaler
	Band      Band
}

// Predict scales features when the model carries a scaler and runs the regressor.
func (m *TrainedModel) Predict(features []float64) (float64, error) {
	if m == nil || m.Regressor == nil {
		return 0, fmt.Errorf("model is not trained")
	}
	if len(features) != FeatureCount {
		return 0, fmt.Errorf("expected %d features, got %d", FeatureCount, len(features))
	}
	x := features
	if m.Scaler != nil {
		scaled, err := m.Scaler.Transform(features)
		if err != nil {
			return 0, err
		}
		x = scaled
	}
	return m.Regressor.Predict(x)
}

func (m *TrainedModel) ConfidenceBand() Band {
	return m.Band
}

// SplitIndex is the chronological train/test boundary: the first floor(0.8·n) rows train.
func SplitIndex(n int) int {
	return n * 4 / 5
}

// Trainer fits one backend on a DailySeries and scores it on the series tail.
type Trainer struct {
	backend RegressionBackend
}

func NewTrainer(backend RegressionBackend) *Trainer {
	return &Trainer{backend: backend}
}

func (t *Trainer) Backend() RegressionBackend {
	return t.backend
}

// Train splits the series chronologically, standardizes on the training rows when the
// backend wants it, fits, and evaluates on the held-out rows.
func (t *Trainer) Train(ctx context.Context, series *DailySeries) (*TrainedModel, domain.EvaluationMetrics, domain.TrainingInfo, error) {
	var (
		metrics domain.EvaluationMetrics
		info    domain.TrainingInfo
	)

	if n := series.Len(); n < MinSalesDays {
		return nil, metrics, info, &InsufficientHistoryError{DaysFound: n, Required: MinSalesDays}
	}

	started := time.Now()
	X, y := series.Matrix()
	split := SplitIndex(len(X))
	xTrain, xTest := X[:split], X[split:]
	yTrain, yTest := y[:split], y[split:]

	model := &TrainedModel{
		ModelType: t.backend.Type(),
		Band:      t.backend.ConfidenceBand(),
	}

	if t.backend.ScalesFeatures() {
		scaler, err := FitScaler(xTrain)
		if err != nil {
			return nil, metrics, info, fmt.Errorf("fit scaler: %w", err)
		}
		if xTrain, err = scaler.TransformAll(xTrain); err != nil {
			return nil, metrics, info, fmt.Errorf("scale training rows: %w", err)
		}
		if xTest, err = scaler.TransformAll(xTest); err != nil {
			return nil, metrics, info, fmt.Errorf("scale evaluation rows: %w", err)
		}
		model.Scaler = scaler
	}

	regressor, err := t.backend.Fit(ctx, xTrain, yTrain)
	if err != nil {
		return nil, metrics, info, fmt.Errorf("fit %s: %w", t.backend.Type(), err)
	}
	model.Regressor = regressor

	predicted := make([]float64, len(xTest))
	for i, row := range xTest {
		p, err := regressor.Predict(row)
		if err != nil {
			return nil, metrics, info, fmt.Errorf("evaluate row %d: %w", split+i, err)
		}
		predicted[i] = p
	}

	metrics = Evaluate(yTest, predicted)
	info = domain.TrainingInfo{
		TrainCount:   len(xTrain),
		TestCount:    len(xTest),
		FeatureCount: FeatureCount,
		WindowDays:   series.Len(),
	}

	log.Info().
		Int64("product_id", series.ProductID).
		Str("model_type", string(model.ModelType)).
		Int("train_samples", info.TrainCount).
		Int("test_samples", info.TestCount).
		Float64("rmse", metrics.RMSE).
		Float64("mae", metrics.MAE).
		Float64("r2", metrics.R2Score).
		Float64("accuracy", metrics.AccuracyWithin20Pct).
		Dur("elapsed", time.Since(started)).
		Msg("model trained")

	return model, metrics, info, nil
}
