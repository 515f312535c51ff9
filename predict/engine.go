// Package predict runs validated features through the cached model of a disease.
package predict

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"mediassist/ml"
	"mediassist/schema"
)

// ErrInferenceFailure matches every failure raised while scaling or scoring a row.
var ErrInferenceFailure = errors.New("inference failed")

// probabilityTolerance bounds |P(0) + P(1) - 1|.
const probabilityTolerance = 1e-6

// InferenceError wraps a failure of the scaler or the model.
type InferenceError struct {
	Disease ml.Disease
	Err     error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference for %s: %v", e.Disease, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

func (e *InferenceError) Is(target error) bool { return target == ErrInferenceFailure }

// ModelSource hands out the cached artifacts of a disease. *cache.Cache implements it.
type ModelSource interface {
	GetModel(disease ml.Disease) (ml.Classifier, error)
	GetScaler(disease ml.Disease) (ml.Transformer, bool, error)
}

// Result is the raw model output for one row.
type Result struct {
	Label         int
	Probabilities [2]float64
}

// Outcome is a Result plus what the explainer needs: the model that produced
// it and the row it actually saw.
type Outcome struct {
	Result
	Model    ml.Classifier
	Row      []float64
	Features []string
	Scaled   bool
}

type Engine struct {
	source ModelSource
}

func NewEngine(source ModelSource) *Engine {
	return &Engine{source: source}
}

// BuildRow lays features out in the column order the model was trained on.
func BuildRow(disease ml.Disease, features schema.Features) ([]float64, []string, error) {
	order := schema.FeatureOrder(disease)
	if order == nil {
		return nil, nil, errors.Wrapf(schema.ErrUnknownDisease, "%q", disease)
	}
	row := make([]float64, len(order))
	for i, name := range order {
		v, ok := features[name]
		if !ok {
			return nil, nil, errors.Errorf("feature %s missing from validated input", name)
		}
		row[i] = v
	}
	return row, order, nil
}

// Predict scores features and returns only the label and probabilities.
func (e *Engine) Predict(disease ml.Disease, features schema.Features) (Result, error) {
	out, err := e.Run(disease, features)
	if err != nil {
		return Result{}, err
	}
	return out.Result, nil
}

// Run scores features. Artifact errors are returned as-is; scaler and model
// failures are wrapped in *InferenceError.
func (e *Engine) Run(disease ml.Disease, features schema.Features) (*Outcome, error) {
	row, names, err := BuildRow(disease, features)
	if err != nil {
		return nil, err
	}
	model, err := e.source.GetModel(disease)
	if err != nil {
		return nil, err
	}
	scaler, scaled, err := e.source.GetScaler(disease)
	if err != nil {
		return nil, err
	}
	if scaled {
		row, err = scaler.Transform(row)
		if err != nil {
			return nil, &InferenceError{Disease: disease, Err: errors.Wrap(err, "scale features")}
		}
	}

	label, err := model.PredictLabel(row)
	if err != nil {
		return nil, &InferenceError{Disease: disease, Err: errors.Wrap(err, "predict label")}
	}
	proba, err := model.PredictProba(row)
	if err != nil {
		return nil, &InferenceError{Disease: disease, Err: errors.Wrap(err, "predict probabilities")}
	}
	if err := checkProbabilities(proba); err != nil {
		return nil, &InferenceError{Disease: disease, Err: err}
	}

	return &Outcome{
		Result:   Result{Label: label, Probabilities: [2]float64{proba[0], proba[1]}},
		Model:    model,
		Row:      row,
		Features: names,
		Scaled:   scaled,
	}, nil
}

func checkProbabilities(proba []float64) error {
	if len(proba) != 2 {
		return errors.Errorf("model returned %d probabilities, want 2", len(proba))
	}
	for _, p := range proba {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return errors.Errorf("probability %v outside [0, 1]", p)
		}
	}
	if math.Abs(proba[0]+proba[1]-1) > probabilityTolerance {
		return errors.Errorf("probabilities %v do not sum to 1", proba)
	}
	return nil
}
