package ml

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

type DecisionTree struct {
	Nodes    []TreeNode `json:"nodes"`
	Features int        `json:"n_features"`
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	ClassLabel int     `json:"class_label"`
	IsLeaf     bool    `json:"is_leaf"`
	// Value holds the class distribution [P(0), P(1)] of the training rows that reached the node.
	Value   []float64 `json:"value"`
	Samples int       `json:"samples"`
}

func NewDecisionTree() *DecisionTree {
	return &DecisionTree{}
}

func (dt *DecisionTree) NumFeatures() int {
	return dt.Features
}

func (dt *DecisionTree) Train(features [][]float64, labels []int, maxDepth int) error {
	return dt.train(features, labels, maxDepth, nil)
}

func (dt *DecisionTree) train(features [][]float64, labels []int, maxDepth int, candidates func() []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	for _, label := range labels {
		if label != 0 && label != 1 {
			return errors.New("labels must be 0 or 1")
		}
	}
	if maxDepth <= 0 {
		maxDepth = 3
	}

	dt.Nodes = nil
	dt.Features = len(features[0])
	if candidates == nil {
		all := make([]int, dt.Features)
		for i := range all {
			all[i] = i
		}
		candidates = func() []int { return all }
	}
	dt.buildNode(features, labels, 0, maxDepth, candidates)
	return nil
}

func (dt *DecisionTree) PredictProba(row []float64) ([]float64, error) {
	idx, err := dt.leaf(row, nil)
	if err != nil {
		return nil, err
	}
	value := dt.Nodes[idx].Value
	return []float64{value[0], value[1]}, nil
}

func (dt *DecisionTree) PredictLabel(row []float64) (int, error) {
	idx, err := dt.leaf(row, nil)
	if err != nil {
		return 0, err
	}
	return dt.Nodes[idx].ClassLabel, nil
}

// Contributions attributes the change in class distribution along the decision
// path to the feature split on at each step. Columns are [class 0, class 1].
func (dt *DecisionTree) Contributions(row []float64) ([][]float64, error) {
	out := make([][]float64, len(row))
	for i := range out {
		out[i] = make([]float64, 2)
	}
	_, err := dt.leaf(row, func(parent, child TreeNode) {
		for c := 0; c < 2; c++ {
			out[parent.FeatureIdx][c] += child.Value[c] - parent.Value[c]
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (dt *DecisionTree) leaf(row []float64, visit func(parent, child TreeNode)) (int, error) {
	if len(dt.Nodes) == 0 {
		return 0, ErrNotTrained
	}
	if err := checkWidth(row, dt.Features); err != nil {
		return 0, err
	}
	idx := 0
	for {
		node := dt.Nodes[idx]
		if len(node.Value) != 2 {
			return 0, errors.New("invalid tree state")
		}
		if node.IsLeaf {
			return idx, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(row) {
			return 0, errors.New("feature index out of range")
		}
		if row[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.Nodes) {
			return 0, errors.New("invalid tree state")
		}
		if visit != nil {
			visit(node, dt.Nodes[idx])
		}
	}
}

// buildNode appends the subtree for the given rows and returns the index of its root.
func (dt *DecisionTree) buildNode(features [][]float64, labels []int, depth int, maxDepth int, candidates func() []int) int {
	idx := len(dt.Nodes)
	dt.Nodes = append(dt.Nodes, TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		ClassLabel: majorityLabel(labels),
		IsLeaf:     true,
		Value:      classDistribution(labels),
		Samples:    len(labels),
	})
	if depth >= maxDepth || isPure(labels) {
		return idx
	}

	bestFeature, threshold, ok := findBestSplit(features, labels, candidates())
	if !ok {
		return idx
	}
	leftFeatures, leftLabels, rightFeatures, rightLabels := splitData(features, labels, bestFeature, threshold)
	if len(leftLabels) == 0 || len(rightLabels) == 0 {
		return idx
	}

	left := dt.buildNode(leftFeatures, leftLabels, depth+1, maxDepth, candidates)
	right := dt.buildNode(rightFeatures, rightLabels, depth+1, maxDepth, candidates)

	node := &dt.Nodes[idx]
	node.FeatureIdx = bestFeature
	node.Threshold = threshold
	node.LeftChild = left
	node.RightChild = right
	node.IsLeaf = false
	return idx
}

func findBestSplit(features [][]float64, labels []int, candidates []int) (int, float64, bool) {
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	values := make([]float64, len(features))
	for _, featureIdx := range candidates {
		for i := range features {
			values[i] = features[i][featureIdx]
		}
		threshold := median(values)
		leftLabels, rightLabels := splitLabels(features, labels, featureIdx, threshold)
		if len(leftLabels) == 0 || len(rightLabels) == 0 {
			continue
		}
		impurity := weightedGini(leftLabels, rightLabels)
		if impurity < bestImpurity {
			bestImpurity = impurity
			bestFeature = featureIdx
			bestThreshold = threshold
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func splitData(features [][]float64, labels []int, featureIdx int, threshold float64) ([][]float64, []int, [][]float64, []int) {
	leftFeatures := make([][]float64, 0)
	leftLabels := make([]int, 0)
	rightFeatures := make([][]float64, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftFeatures = append(leftFeatures, feature)
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightFeatures = append(rightFeatures, feature)
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftFeatures, leftLabels, rightFeatures, rightLabels
}

func splitLabels(features [][]float64, labels []int, featureIdx int, threshold float64) ([]int, []int) {
	leftLabels := make([]int, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftLabels, rightLabels
}

func weightedGini(leftLabels, rightLabels []int) float64 {
	leftWeight := float64(len(leftLabels))
	rightWeight := float64(len(rightLabels))
	total := leftWeight + rightWeight
	return (leftWeight/total)*gini(leftLabels) + (rightWeight/total)*gini(rightLabels)
}

func gini(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	impurity := 1.0
	for _, prob := range classDistribution(labels) {
		impurity -= prob * prob
	}
	return impurity
}

func classDistribution(labels []int) []float64 {
	if len(labels) == 0 {
		return []float64{1, 0}
	}
	positives := 0
	for _, label := range labels {
		if label == 1 {
			positives++
		}
	}
	p1 := float64(positives) / float64(len(labels))
	return []float64{1 - p1, p1}
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func majorityLabel(labels []int) int {
	dist := classDistribution(labels)
	if dist[1] > dist[0] {
		return 1
	}
	return 0
}

func isPure(labels []int) bool {
	if len(labels) == 0 {
		return true
	}
	first := labels[0]
	for _, label := range labels[1:] {
		if label != first {
			return false
		}
	}
	return true
}

// featureSubset draws k distinct feature indices.
func featureSubset(rnd *rand.Rand, width, k int) []int {
	if k <= 0 || k > width {
		k = width
	}
	return rnd.Perm(width)[:k]
}
