package model

import (
	"fmt"
)

const leafMarker = -1

// Tree is one fitted decision tree in sklearn's array layout. Value rows hold
// class proportions and Cover holds the weighted sample count of each node.
type Tree struct {
	Left      []int
	Right     []int
	Feature   []int
	Threshold []float64
	Value     [][]float64
	Cover     []float64

	depth int
}

func (t *Tree) NumNodes() int { return len(t.Left) }

func (t *Tree) IsLeaf(node int) bool { return t.Left[node] == leafMarker }

// MaxDepth is the number of edges on the longest root-to-leaf path.
func (t *Tree) MaxDepth() int { return t.depth }

// GoesLeft applies the split test of an internal node. Inputs are narrowed to
// float32 before comparing, as sklearn's tree predictor does.
func (t *Tree) GoesLeft(node int, x []float64) bool {
	return float64(float32(x[t.Feature[node]])) <= t.Threshold[node]
}

// Leaf returns the leaf reached by x.
func (t *Tree) Leaf(x []float64) int {
	node := 0
	for !t.IsLeaf(node) {
		if t.GoesLeft(node, x) {
			node = t.Left[node]
		} else {
			node = t.Right[node]
		}
	}
	return node
}

// Forest averages the class proportions of its trees.
type Forest struct {
	Trees    []*Tree
	NClasses int
	NFeature int
}

func (f *Forest) PredictProba(x []float64) ([]float64, error) {
	if len(x) != f.NFeature {
		return nil, fmt.Errorf("classifier expects %d features, got %d", f.NFeature, len(x))
	}
	proba := make([]float64, f.NClasses)
	for _, t := range f.Trees {
		leaf := t.Leaf(x)
		for c, p := range t.Value[leaf] {
			proba[c] += p
		}
	}
	n := float64(len(f.Trees))
	for c := range proba {
		proba[c] /= n
	}
	return proba, nil
}

func buildTree(spec treeSpec, nFeatures, nClasses int) (*Tree, error) {
	n := len(spec.ChildrenLeft)
	for name, l := range map[string]int{
		"children_right": len(spec.ChildrenRight),
		"feature":        len(spec.Feature),
		"threshold":      len(spec.Threshold),
		"value":          len(spec.Value),
		"cover":          len(spec.Cover),
	} {
		if l != n {
			return nil, fmt.Errorf("%s has %d entries, children_left has %d", name, l, n)
		}
	}

	t := &Tree{
		Left:      spec.ChildrenLeft,
		Right:     spec.ChildrenRight,
		Feature:   spec.Feature,
		Threshold: spec.Threshold,
		Value:     make([][]float64, n),
		Cover:     spec.Cover,
	}
	for i := 0; i < n; i++ {
		l, r := t.Left[i], t.Right[i]
		switch {
		case l == leafMarker && r == leafMarker:
		case l == leafMarker || r == leafMarker:
			return nil, fmt.Errorf("node %d has only one child", i)
		default:
			// sklearn numbers nodes depth-first, so children always follow their parent.
			if l <= i || r <= i || l >= n || r >= n {
				return nil, fmt.Errorf("node %d has invalid children (%d, %d)", i, l, r)
			}
			if f := t.Feature[i]; f < 0 || f >= nFeatures {
				return nil, fmt.Errorf("node %d splits on unknown feature index %d", i, f)
			}
			if t.Cover[i] <= 0 {
				return nil, fmt.Errorf("node %d has non-positive cover", i)
			}
		}
		row, err := normalizeRow(spec.Value[i], nClasses)
		if err != nil {
			return nil, fmt.Errorf("node %d value: %w", i, err)
		}
		t.Value[i] = row
	}
	t.depth = depthOf(t, 0)
	return t, nil
}

// normalizeRow turns class counts or weights into proportions. Recent sklearn
// exports already store proportions, in which case this is a no-op.
func normalizeRow(row []float64, nClasses int) ([]float64, error) {
	if len(row) != nClasses {
		return nil, fmt.Errorf("has %d classes, want %d", len(row), nClasses)
	}
	sum := 0.0
	for _, v := range row {
		sum += v
	}
	if sum <= 0 {
		return nil, fmt.Errorf("class weights sum to %v", sum)
	}
	out := make([]float64, nClasses)
	for i, v := range row {
		out[i] = v / sum
	}
	return out, nil
}

func depthOf(t *Tree, node int) int {
	if t.IsLeaf(node) {
		return 0
	}
	return 1 + max(depthOf(t, t.Left[node]), depthOf(t, t.Right[node]))
}
