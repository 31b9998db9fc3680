package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
)

const defaultMaxDepth = 8

var ErrNotTrained = errors.New("model not trained")

// DecisionTree is a CART classifier over band values. It is persisted as a
// JSON array of nodes with the root at index 0.
type DecisionTree struct {
	MaxDepth int
	// MinLeaf stops splitting nodes with fewer samples.
	MinLeaf int

	nodes []TreeNode
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	ClassLabel int     `json:"class_label"`
	IsLeaf     bool    `json:"is_leaf"`
}

func NewDecisionTree(maxDepth int) *DecisionTree {
	return &DecisionTree{MaxDepth: maxDepth, MinLeaf: 1}
}

func (dt *DecisionTree) Train(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	width := len(features[0])
	for i, row := range features {
		if len(row) != width {
			return fmt.Errorf("row %d has %d features, want %d", i, len(row), width)
		}
	}
	maxDepth := dt.MaxDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}

	dt.nodes = dt.buildNode(features, labels, 0, maxDepth)
	return nil
}

func (dt *DecisionTree) Predict(features []float64) (int, error) {
	if len(dt.nodes) == 0 {
		return 0, ErrNotTrained
	}
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node.ClassLabel, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, fmt.Errorf("feature index %d out of range for %d bands", node.FeatureIdx, len(features))
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(dt.nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}

func (dt *DecisionTree) PredictBatch(features [][]float64) ([]int, error) {
	labels := make([]int, len(features))
	for i, row := range features {
		label, err := dt.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("pixel %d: %w", i, err)
		}
		labels[i] = label
	}
	return labels, nil
}

// Depth is the number of edges on the longest root to leaf path.
func (dt *DecisionTree) Depth() int {
	if len(dt.nodes) == 0 {
		return 0
	}
	var walk func(idx int) int
	walk = func(idx int) int {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return 0
		}
		return 1 + max(walk(node.LeftChild), walk(node.RightChild))
	}
	return walk(0)
}

func (dt *DecisionTree) Save(path string) error {
	if len(dt.nodes) == 0 {
		return ErrNotTrained
	}
	payload, err := json.Marshal(dt.nodes)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

func (dt *DecisionTree) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var nodes []TreeNode
	if err := json.Unmarshal(payload, &nodes); err != nil {
		return err
	}
	if len(nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	for i, node := range nodes {
		if node.IsLeaf {
			continue
		}
		// Children always follow their parent in the flattened layout.
		if node.LeftChild <= i || node.LeftChild >= len(nodes) || node.RightChild <= i || node.RightChild >= len(nodes) {
			return fmt.Errorf("node %d has invalid children", i)
		}
	}
	dt.nodes = nodes
	return nil
}

func (dt *DecisionTree) buildNode(features [][]float64, labels []int, depth int, maxDepth int) []TreeNode {
	leaf := []TreeNode{{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		ClassLabel: majorityLabel(labels),
		IsLeaf:     true,
	}}
	if depth >= maxDepth || isPure(labels) || len(labels) < 2*max(dt.MinLeaf, 1) {
		return leaf
	}

	bestFeature, threshold, ok := findBestSplit(features, labels)
	if !ok {
		return leaf
	}

	leftFeatures, leftLabels, rightFeatures, rightLabels := splitData(features, labels, bestFeature, threshold)
	if len(leftLabels) < max(dt.MinLeaf, 1) || len(rightLabels) < max(dt.MinLeaf, 1) {
		return leaf
	}

	leftNodes := dt.buildNode(leftFeatures, leftLabels, depth+1, maxDepth)
	rightNodes := dt.buildNode(rightFeatures, rightLabels, depth+1, maxDepth)

	root := TreeNode{
		FeatureIdx: bestFeature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
		ClassLabel: leaf[0].ClassLabel,
	}

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, offsetChildren(leftNodes, 1)...)
	nodes = append(nodes, offsetChildren(rightNodes, 1+len(leftNodes))...)
	return nodes
}

// offsetChildren rebases child indices of a subtree placed at base.
func offsetChildren(nodes []TreeNode, base int) []TreeNode {
	for i := range nodes {
		if !nodes[i].IsLeaf {
			nodes[i].LeftChild += base
			nodes[i].RightChild += base
		}
	}
	return nodes
}

// findBestSplit tries every midpoint between distinct sorted values of each
// band and keeps the one with the lowest weighted Gini impurity.
func findBestSplit(features [][]float64, labels []int) (int, float64, bool) {
	featureCount := len(features[0])
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	classes := make(map[int]int)
	for _, label := range labels {
		if _, ok := classes[label]; !ok {
			classes[label] = len(classes)
		}
	}

	order := make([]int, len(features))
	for featureIdx := 0; featureIdx < featureCount; featureIdx++ {
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(a, b int) bool {
			return features[order[a]][featureIdx] < features[order[b]][featureIdx]
		})

		left := make([]int, len(classes))
		right := make([]int, len(classes))
		for _, label := range labels {
			right[classes[label]]++
		}
		for pos := 0; pos < len(order)-1; pos++ {
			class := classes[labels[order[pos]]]
			left[class]++
			right[class]--
			cur := features[order[pos]][featureIdx]
			next := features[order[pos+1]][featureIdx]
			if cur == next {
				continue
			}
			impurity := weightedGini(left, right, pos+1, len(order)-pos-1)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = featureIdx
				bestThreshold = cur + (next-cur)/2
			}
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

func weightedGini(left, right []int, leftN, rightN int) float64 {
	total := float64(leftN + rightN)
	return (float64(leftN)/total)*gini(left, leftN) + (float64(rightN)/total)*gini(right, rightN)
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	impurity := 1.0
	for _, count := range counts {
		prob := float64(count) / float64(n)
		impurity -= prob * prob
	}
	return impurity
}

// majorityLabel breaks ties towards the smaller label.
func majorityLabel(labels []int) int {
	counts := make(map[int]int)
	for _, label := range labels {
		counts[label]++
	}
	bestLabel := 0
	bestCount := -1
	for label, count := range counts {
		if count > bestCount || (count == bestCount && label < bestLabel) {
			bestCount = count
			bestLabel = label
		}
	}
	return bestLabel
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
