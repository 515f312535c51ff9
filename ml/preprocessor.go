package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers each column on its training mean and divides by the
// training (population) standard deviation.
type StandardScaler struct {
	Features []string  `json:"features,omitempty"`
	Mean     []float64 `json:"mean"`
	Scale    []float64 `json:"scale"`
}

func FitStandardScaler(features [][]float64, names []string) (*StandardScaler, error) {
	if len(features) == 0 {
		return nil, errors.New("features is empty")
	}
	width := len(features[0])
	if names != nil && len(names) != width {
		return nil, fmt.Errorf("%w: %d names for %d columns", ErrFeatureMismatch, len(names), width)
	}

	scaler := &StandardScaler{
		Features: names,
		Mean:     make([]float64, width),
		Scale:    make([]float64, width),
	}
	column := make([]float64, len(features))
	for j := 0; j < width; j++ {
		for i, row := range features {
			if len(row) != width {
				return nil, fmt.Errorf("%w: row %d has %d columns", ErrFeatureMismatch, i, len(row))
			}
			column[i] = row[j]
		}
		mean := stat.Mean(column, nil)
		variance := stat.MomentAbout(2, column, mean, nil)
		scaler.Mean[j] = mean
		scaler.Scale[j] = math.Sqrt(variance)
	}
	return scaler, nil
}

func (s *StandardScaler) Transform(row []float64) ([]float64, error) {
	if s == nil || len(s.Mean) == 0 {
		return nil, errors.New("scaler not fitted")
	}
	if len(s.Scale) != len(s.Mean) {
		return nil, errors.New("scaler mean/scale length mismatch")
	}
	if err := checkWidth(row, len(s.Mean)); err != nil {
		return nil, err
	}

	out := make([]float64, len(row))
	floats.SubTo(out, row, s.Mean)
	for i, scale := range s.Scale {
		// zero-variance columns pass through centered only
		if scale != 0 {
			out[i] /= scale
		}
	}
	return out, nil
}

func (s *StandardScaler) TransformAll(features [][]float64) ([][]float64, error) {
	out := make([][]float64, len(features))
	for i, row := range features {
		scaled, err := s.Transform(row)
		if err != nil {
			return nil, err
		}
		out[i] = scaled
	}
	return out, nil
}
