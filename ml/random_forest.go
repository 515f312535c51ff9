package ml

import (
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

type RandomForest struct {
	Trees    []*DecisionTree `json:"trees"`
	Features int             `json:"n_features"`
}

type ForestConfig struct {
	Trees    int
	MaxDepth int
	// MaxFeatures is the number of features considered per split; 0 means sqrt(width).
	MaxFeatures int
	Seed        int64
	// OnTree is called after each tree is fitted.
	OnTree func()
}

func (rf *RandomForest) NumFeatures() int {
	return rf.Features
}

func (rf *RandomForest) Train(features [][]float64, labels []int, config ForestConfig) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if config.Trees <= 0 {
		config.Trees = 25
	}
	width := len(features[0])
	if config.MaxFeatures <= 0 {
		config.MaxFeatures = int(math.Max(1, math.Round(math.Sqrt(float64(width)))))
	}

	rnd := rand.New(rand.NewSource(config.Seed))
	trees := make([]*DecisionTree, 0, config.Trees)
	sampleX := make([][]float64, len(features))
	sampleY := make([]int, len(labels))
	for t := 0; t < config.Trees; t++ {
		for i := range sampleX {
			j := rnd.Intn(len(features))
			sampleX[i] = features[j]
			sampleY[i] = labels[j]
		}
		tree := NewDecisionTree()
		candidates := func() []int { return featureSubset(rnd, width, config.MaxFeatures) }
		if err := tree.train(sampleX, sampleY, config.MaxDepth, candidates); err != nil {
			return err
		}
		trees = append(trees, tree)
		if config.OnTree != nil {
			config.OnTree()
		}
	}

	rf.Trees = trees
	rf.Features = width
	return nil
}

func (rf *RandomForest) PredictProba(row []float64) ([]float64, error) {
	if len(rf.Trees) == 0 {
		return nil, ErrNotTrained
	}
	sum := make([]float64, 2)
	for _, tree := range rf.Trees {
		proba, err := tree.PredictProba(row)
		if err != nil {
			return nil, err
		}
		floats.Add(sum, proba)
	}
	floats.Scale(1/float64(len(rf.Trees)), sum)
	return sum, nil
}

func (rf *RandomForest) PredictLabel(row []float64) (int, error) {
	proba, err := rf.PredictProba(row)
	if err != nil {
		return 0, err
	}
	return labelFromProba(proba[1]), nil
}

// Contributions averages the per-tree path contributions.
func (rf *RandomForest) Contributions(row []float64) ([][]float64, error) {
	if len(rf.Trees) == 0 {
		return nil, ErrNotTrained
	}
	out := make([][]float64, len(row))
	for i := range out {
		out[i] = make([]float64, 2)
	}
	scale := 1 / float64(len(rf.Trees))
	for _, tree := range rf.Trees {
		contrib, err := tree.Contributions(row)
		if err != nil {
			return nil, err
		}
		for i := range out {
			floats.AddScaled(out[i], scale, contrib[i])
		}
	}
	return out, nil
}
