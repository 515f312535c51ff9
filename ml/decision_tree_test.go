package ml

import (
	"errors"
	"math"
	"testing"
)

func TestDecisionTreeTrainPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	labels := []int{0, 0, 1, 1}

	model := NewDecisionTree()
	if err := model.Train(features, labels, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label, err := model.PredictLabel([]float64{0.15, 0.15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != 0 {
		t.Fatalf("expected label 0, got %d", label)
	}
	proba, err := model.PredictProba([]float64{0.85, 0.85})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proba[1] != 1 || math.Abs(proba[0]+proba[1]-1) > 1e-9 {
		t.Fatalf("unexpected probabilities: %v", proba)
	}
}

func TestDecisionTreeDeepIndices(t *testing.T) {
	// needs depth > 1, which exercises absolute child indices
	features := [][]float64{
		{0, 0}, {0, 1}, {1, 0}, {1, 1},
		{0, 0}, {0, 1}, {1, 0}, {1, 1},
	}
	labels := []int{0, 1, 1, 0, 0, 1, 1, 0}

	model := NewDecisionTree()
	if err := model.Train(features, labels, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, row := range features {
		if _, err := model.PredictProba(row); err != nil {
			t.Fatalf("row %d: unexpected error: %v", i, err)
		}
	}
}

func TestDecisionTreeContributionsSumToPathDelta(t *testing.T) {
	features := [][]float64{{1, 5}, {2, 6}, {8, 1}, {9, 2}, {3, 7}, {7, 3}}
	labels := []int{0, 0, 1, 1, 0, 1}

	model := NewDecisionTree()
	if err := model.Train(features, labels, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row := []float64{8.5, 1.5}
	contrib, err := model.Contributions(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	proba, _ := model.PredictProba(row)
	total := model.Nodes[0].Value[1]
	for _, c := range contrib {
		total += c[1]
	}
	if math.Abs(total-proba[1]) > 1e-9 {
		t.Fatalf("bias + contributions = %f, want %f", total, proba[1])
	}
}

func TestDecisionTreeRejectsWrongWidth(t *testing.T) {
	model := NewDecisionTree()
	if err := model.Train([][]float64{{0}, {1}}, []int{0, 1}, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := model.PredictProba([]float64{1, 2}); !errors.Is(err, ErrFeatureMismatch) {
		t.Fatalf("expected ErrFeatureMismatch, got %v", err)
	}
}

func TestDecisionTreeUntrained(t *testing.T) {
	if _, err := NewDecisionTree().PredictLabel([]float64{1}); !errors.Is(err, ErrNotTrained) {
		t.Fatalf("expected ErrNotTrained, got %v", err)
	}
}
