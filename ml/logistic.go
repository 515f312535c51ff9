package ml

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
)

type LogisticRegression struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
	// Background is the reference row attributions are measured against.
	// Empty means the zero row, which is the training mean after standard scaling.
	Background []float64 `json:"background,omitempty"`
}

func (lr *LogisticRegression) NumFeatures() int {
	return len(lr.Coef)
}

func (lr *LogisticRegression) PredictProba(row []float64) ([]float64, error) {
	if err := checkWidth(row, len(lr.Coef)); err != nil {
		return nil, err
	}
	p := sigmoid(floats.Dot(lr.Coef, row) + lr.Intercept)
	return []float64{1 - p, p}, nil
}

func (lr *LogisticRegression) PredictLabel(row []float64) (int, error) {
	proba, err := lr.PredictProba(row)
	if err != nil {
		return 0, err
	}
	return labelFromProba(proba[1]), nil
}

// Contributions returns the exact log-odds decomposition w_i * (x_i - b_i),
// one column per feature.
func (lr *LogisticRegression) Contributions(row []float64) ([][]float64, error) {
	if err := checkWidth(row, len(lr.Coef)); err != nil {
		return nil, err
	}
	if len(lr.Background) != 0 && len(lr.Background) != len(lr.Coef) {
		return nil, errors.New("background length mismatch")
	}
	out := make([][]float64, len(row))
	for i, x := range row {
		if len(lr.Background) != 0 {
			x -= lr.Background[i]
		}
		out[i] = []float64{lr.Coef[i] * x}
	}
	return out, nil
}

// Train fits the model with batch gradient descent on the log loss.
func (lr *LogisticRegression) Train(features [][]float64, labels []int, epochs int, learningRate float64) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if epochs <= 0 {
		epochs = 500
	}
	if learningRate <= 0 {
		learningRate = 0.1
	}

	width := len(features[0])
	coef := make([]float64, width)
	grad := make([]float64, width)
	intercept := 0.0
	n := float64(len(features))

	for epoch := 0; epoch < epochs; epoch++ {
		for i := range grad {
			grad[i] = 0
		}
		gradIntercept := 0.0
		for i, row := range features {
			if len(row) != width {
				return ErrFeatureMismatch
			}
			residual := sigmoid(floats.Dot(coef, row)+intercept) - float64(labels[i])
			floats.AddScaled(grad, residual, row)
			gradIntercept += residual
		}
		floats.AddScaled(coef, -learningRate/n, grad)
		intercept -= learningRate * gradIntercept / n
	}

	background := make([]float64, width)
	for _, row := range features {
		floats.Add(background, row)
	}
	floats.Scale(1/n, background)

	lr.Coef = coef
	lr.Intercept = intercept
	lr.Background = background
	return nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
