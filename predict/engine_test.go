package predict

import (
	"math"
	"testing"

	"github.com/pkg/errors"

	"mediassist/artifact"
	"mediassist/ml"
	"mediassist/schema"
)

// fixedModel always returns the same has-disease probability and remembers
// the last row it was asked about.
type fixedModel struct {
	p     float64
	width int
	proba []float64
	err   error
	seen  []float64
}

func (m *fixedModel) PredictLabel(row []float64) (int, error) {
	m.seen = append([]float64(nil), row...)
	if m.err != nil {
		return 0, m.err
	}
	if m.p >= 0.5 {
		return 1, nil
	}
	return 0, nil
}

func (m *fixedModel) PredictProba(row []float64) ([]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.proba != nil {
		return m.proba, nil
	}
	return []float64{1 - m.p, m.p}, nil
}

func (m *fixedModel) NumFeatures() int { return m.width }

type stubSource struct {
	model    ml.Classifier
	modelErr error
	scaler   ml.Transformer
}

func (s *stubSource) GetModel(ml.Disease) (ml.Classifier, error) {
	if s.modelErr != nil {
		return nil, s.modelErr
	}
	return s.model, nil
}

func (s *stubSource) GetScaler(ml.Disease) (ml.Transformer, bool, error) {
	return s.scaler, s.scaler != nil, nil
}

func diabetesInput() map[string]any {
	return map[string]any{
		"Gender": 1.0, "AGE": 45.0, "Urea": 32.0, "Cr": 0.9, "HbA1c": 6.5, "Chol": 200.0,
		"TG": 150.0, "HDL": 50.0, "LDL": 120.0, "VLDL": 30.0, "BMI": 28.5,
	}
}

func validDiabetes(t *testing.T) schema.Features {
	t.Helper()
	features, err := schema.Validate(ml.Diabetes, diabetesInput())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	return features
}

func TestBuildRowUsesTrainingOrder(t *testing.T) {
	row, names, err := BuildRow(ml.Diabetes, validDiabetes(t))
	if err != nil {
		t.Fatalf("build row: %v", err)
	}
	want := []float64{1, 45, 32, 0.9, 6.5, 200, 150, 50, 120, 30, 28.5}
	if len(row) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(row))
	}
	for i := range want {
		if row[i] != want[i] {
			t.Fatalf("column %d (%s): expected %v, got %v", i, names[i], want[i], row[i])
		}
	}
	if names[0] != "Gender" || names[1] != "AGE" {
		t.Fatalf("unexpected column order %v", names[:2])
	}
}

func TestBuildRowMissingFeature(t *testing.T) {
	features := validDiabetes(t)
	delete(features, "BMI")
	if _, _, err := BuildRow(ml.Diabetes, features); err == nil {
		t.Fatal("expected error for missing feature")
	}
}

func TestRunWithoutScalerPassesRowThrough(t *testing.T) {
	model := &fixedModel{p: 0.3, width: 11}
	engine := NewEngine(&stubSource{model: model})

	out, err := engine.Run(ml.Diabetes, validDiabetes(t))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Scaled {
		t.Fatal("expected unscaled row")
	}
	if model.seen[1] != 45 {
		t.Fatalf("expected raw AGE in column 1, got %v", model.seen[1])
	}
	if out.Label != 0 {
		t.Fatalf("expected label 0, got %d", out.Label)
	}
}

func TestRunAppliesScaler(t *testing.T) {
	model := &fixedModel{p: 0.9, width: 11}
	scaler := &ml.StandardScaler{
		Mean:  []float64{1, 45, 32, 0.9, 6.5, 200, 150, 50, 120, 30, 28.5},
		Scale: []float64{2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2},
	}
	engine := NewEngine(&stubSource{model: model, scaler: scaler})

	out, err := engine.Run(ml.Diabetes, validDiabetes(t))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !out.Scaled {
		t.Fatal("expected scaled row")
	}
	for i, v := range model.seen {
		if math.Abs(v) > 1e-12 {
			t.Fatalf("column %d not scaled: %v", i, v)
		}
	}
}

func TestProbabilitiesSumToOne(t *testing.T) {
	for _, p := range []float64{0, 0.1234567, 0.5, 0.82, 1} {
		engine := NewEngine(&stubSource{model: &fixedModel{p: p, width: 11}})
		res, err := engine.Predict(ml.Diabetes, validDiabetes(t))
		if err != nil {
			t.Fatalf("p=%v: %v", p, err)
		}
		if sum := res.Probabilities[0] + res.Probabilities[1]; math.Abs(sum-1) > 1e-6 {
			t.Fatalf("p=%v: probabilities sum to %v", p, sum)
		}
	}
}

func TestModelFailureIsInferenceError(t *testing.T) {
	engine := NewEngine(&stubSource{model: &fixedModel{width: 11, err: ml.ErrFeatureMismatch}})
	_, err := engine.Predict(ml.Diabetes, validDiabetes(t))
	if !errors.Is(err, ErrInferenceFailure) {
		t.Fatalf("expected inference failure, got %v", err)
	}
	if !errors.Is(err, ml.ErrFeatureMismatch) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
	var inferr *InferenceError
	if !errors.As(err, &inferr) || inferr.Disease != ml.Diabetes {
		t.Fatalf("expected *InferenceError for diabetes, got %#v", err)
	}
}

func TestInvalidProbabilitiesRejected(t *testing.T) {
	tests := [][]float64{{0.5, 0.6}, {1}, {-0.1, 1.1}, {math.NaN(), 1}}
	for _, proba := range tests {
		engine := NewEngine(&stubSource{model: &fixedModel{width: 11, proba: proba}})
		if _, err := engine.Predict(ml.Diabetes, validDiabetes(t)); !errors.Is(err, ErrInferenceFailure) {
			t.Fatalf("%v: expected inference failure, got %v", proba, err)
		}
	}
}

func TestScalerWidthMismatchIsInferenceError(t *testing.T) {
	scaler := &ml.StandardScaler{Mean: []float64{0}, Scale: []float64{1}}
	engine := NewEngine(&stubSource{model: &fixedModel{width: 11}, scaler: scaler})
	if _, err := engine.Predict(ml.Diabetes, validDiabetes(t)); !errors.Is(err, ErrInferenceFailure) {
		t.Fatalf("expected inference failure, got %v", err)
	}
}

func TestMissingModelPropagates(t *testing.T) {
	engine := NewEngine(&stubSource{modelErr: errors.Wrap(artifact.ErrArtifactNotFound, "diabetes_model")})
	_, err := engine.Predict(ml.Diabetes, validDiabetes(t))
	if !errors.Is(err, artifact.ErrArtifactNotFound) {
		t.Fatalf("expected artifact not found, got %v", err)
	}
	if errors.Is(err, ErrInferenceFailure) {
		t.Fatal("artifact errors must not be reported as inference failures")
	}
}
