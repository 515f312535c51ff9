package ml

import (
	"errors"
	"fmt"
)

var (
	ErrNotTrained      = errors.New("model not trained")
	ErrFeatureMismatch = errors.New("feature count mismatch")
)

// Classifier is a fitted binary classifier over a fixed-width row.
type Classifier interface {
	PredictLabel(row []float64) (int, error)
	// PredictProba returns [P(label=0), P(label=1)].
	PredictProba(row []float64) ([]float64, error)
	NumFeatures() int
}

// Transformer is a fitted per-column transform such as StandardScaler.
type Transformer interface {
	Transform(row []float64) ([]float64, error)
}

// Attributor is implemented by classifiers that can split a single prediction
// into per-feature contributions. The result has one row per feature and one
// column per model output.
type Attributor interface {
	Contributions(row []float64) ([][]float64, error)
}

func checkWidth(row []float64, want int) error {
	if want == 0 {
		return ErrNotTrained
	}
	if len(row) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrFeatureMismatch, len(row), want)
	}
	return nil
}

func labelFromProba(p1 float64) int {
	if p1 >= 0.5 {
		return 1
	}
	return 0
}
