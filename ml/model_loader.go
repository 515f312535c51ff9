package ml

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	KindLogisticRegression = "logistic_regression"
	KindDecisionTree       = "decision_tree"
	KindRandomForest       = "random_forest"
)

var ErrUnsupportedModel = errors.New("unsupported model type")

type modelEnvelope struct {
	Kind  string          `json:"kind"`
	Model json.RawMessage `json:"model"`
}

// LoadModel decodes a serialized classifier produced by MarshalModel.
func LoadModel(payload []byte) (Classifier, error) {
	var envelope modelEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode model envelope: %w", err)
	}

	var model Classifier
	switch envelope.Kind {
	case KindLogisticRegression:
		model = &LogisticRegression{}
	case KindDecisionTree:
		model = &DecisionTree{}
	case KindRandomForest:
		model = &RandomForest{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, envelope.Kind)
	}
	if err := json.Unmarshal(envelope.Model, model); err != nil {
		return nil, fmt.Errorf("decode %s: %w", envelope.Kind, err)
	}
	if model.NumFeatures() == 0 {
		return nil, fmt.Errorf("decode %s: %w", envelope.Kind, ErrNotTrained)
	}
	return model, nil
}

func MarshalModel(model Classifier) ([]byte, error) {
	kind := ModelKind(model)
	if kind == "" {
		return nil, ErrUnsupportedModel
	}
	body, err := json.Marshal(model)
	if err != nil {
		return nil, err
	}
	return json.Marshal(modelEnvelope{Kind: kind, Model: body})
}

func ModelKind(model Classifier) string {
	switch model.(type) {
	case *LogisticRegression:
		return KindLogisticRegression
	case *DecisionTree:
		return KindDecisionTree
	case *RandomForest:
		return KindRandomForest
	default:
		return ""
	}
}
