package forecast

import (
	"encoding/json"
	"fmt"

	"github.com/flowerbelle/backend-go/internal/domain"
)

// modelFormatVersion is bumped whenever the encoded layout changes.
const modelFormatVersion = 1

type modelEnvelope struct {
	Version   int              `json:"version"`
	ModelType domain.ModelType `json:"model_type"`
	Features  []string         `json:"features"`
	Band      Band             `json:"band"`
	Scaler    *StandardScaler  `json:"scaler,omitempty"`
	Linear    *LinearModel     `json:"linear,omitempty"`
	Forest    *ForestModel     `json:"forest,omitempty"`
}

// EncodeModel serializes a trained model together with its scaler.
func EncodeModel(m *TrainedModel) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("encode model: nil model")
	}

	env := modelEnvelope{
		Version:   modelFormatVersion,
		ModelType: m.ModelType,
		Features:  FeatureNames[:],
		Band:      m.Band,
		Scaler:    m.Scaler,
	}

	switch r := m.Regressor.(type) {
	case *LinearModel:
		env.Linear = r
	case *ForestModel:
		env.Forest = r
	default:
		return nil, fmt.Errorf("encode model: unsupported regressor %T", m.Regressor)
	}

	return json.Marshal(env)
}

// DecodeModel restores a model written by EncodeModel.
func DecodeModel(data []byte) (*TrainedModel, error) {
	var env modelEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if env.Version != modelFormatVersion {
		return nil, fmt.Errorf("decode model: unsupported format version %d", env.Version)
	}
	if len(env.Features) != FeatureCount {
		return nil, fmt.Errorf("decode model: expected %d features, got %d", FeatureCount, len(env.Features))
	}

	m := &TrainedModel{
		ModelType: env.ModelType,
		Band:      env.Band,
		Scaler:    env.Scaler,
	}

	switch {
	case env.Linear != nil:
		m.Regressor = env.Linear
	case env.Forest != nil:
		m.Regressor = env.Forest
	default:
		return nil, fmt.Errorf("decode model: no regressor in payload")
	}

	return m, nil
}
