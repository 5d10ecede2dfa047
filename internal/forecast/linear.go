package forecast

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/flowerbelle/backend-go/internal/domain"
)

// rankTolerance is the relative singular value cutoff for the least-squares solve.
const rankTolerance = 1e-10

// LinearBackend fits ordinary least squares on standardized features.
type LinearBackend struct{}

func NewLinearBackend() *LinearBackend {
	return &LinearBackend{}
}

func (b *LinearBackend) Type() domain.ModelType { return domain.ModelTypeLinearRegression }

func (b *LinearBackend) ScalesFeatures() bool { return true }

func (b *LinearBackend) ConfidenceBand() Band { return LinearBand }

func (b *LinearBackend) Parameters() map[string]any {
	return map[string]any{"fit_intercept": true, "scaled": true}
}

// Fit solves min ||Xc·w - yc|| on column-centered data with an SVD so that
// rank-deficient inputs (a month column that never changes inside the window,
// for example) get the minimum-norm solution instead of failing.
func (b *LinearBackend) Fit(ctx context.Context, X [][]float64, y []float64) (Regressor, error) {
	if err := validateTrainingSet(X, y); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n, p := len(X), len(X[0])

	xMean := make([]float64, p)
	yMean := 0.0
	for i, row := range X {
		for j, v := range row {
			xMean[j] += v
		}
		yMean += y[i]
	}
	for j := range xMean {
		xMean[j] /= float64(n)
	}
	yMean /= float64(n)

	design := mat.NewDense(n, p, nil)
	target := mat.NewVecDense(n, nil)
	for i, row := range X {
		for j, v := range row {
			design.Set(i, j, v-xMean[j])
		}
		target.SetVec(i, y[i]-yMean)
	}

	model := &LinearModel{
		Coefficients: make([]float64, p),
	}

	var svd mat.SVD
	if !svd.Factorize(design, mat.SVDThin) {
		return nil, fmt.Errorf("linear regression: SVD factorization failed")
	}

	if rank := svd.Rank(rankTolerance); rank > 0 {
		var coef mat.VecDense
		svd.SolveVecTo(&coef, target, rank)
		for j := 0; j < p; j++ {
			model.Coefficients[j] = coef.AtVec(j)
		}
	}

	model.Intercept = yMean
	for j, c := range model.Coefficients {
		model.Intercept -= c * xMean[j]
	}

	return model, nil
}

// LinearModel is y = Intercept + Coefficients·x.
type LinearModel struct {
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

func (m *LinearModel) Predict(features []float64) (float64, error) {
	if len(features) != len(m.Coefficients) {
		return 0, fmt.Errorf("linear model expects %d features, got %d", len(m.Coefficients), len(features))
	}
	out := m.Intercept
	for j, c := range m.Coefficients {
		out += c * features[j]
	}
	return out, nil
}
