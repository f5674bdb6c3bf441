package explain

import (
	"github.com/Skufu/il17a-response/internal/model"
)

// Path-dependent Tree SHAP (Lundberg et al., "Consistent Individualized
// Feature Attribution for Tree Ensembles", algorithm 2). Missing features are
// integrated out using the training cover recorded at each node.

type pathElement struct {
	feature int
	zero    float64 // fraction of paths flowing through this branch when the feature is unknown
	one     float64 // 1 if x follows this branch, 0 otherwise
	weight  float64
}

func extendPath(path []pathElement, depth int, zero, one float64, feature int) {
	path[depth] = pathElement{feature: feature, zero: zero, one: one}
	if depth == 0 {
		path[depth].weight = 1
	}
	d := float64(depth + 1)
	for i := depth - 1; i >= 0; i-- {
		path[i+1].weight += one * path[i].weight * float64(i+1) / d
		path[i].weight = zero * path[i].weight * float64(depth-i) / d
	}
}

func unwindPath(path []pathElement, depth, index int) {
	one, zero := path[index].one, path[index].zero
	next := path[depth].weight
	d := float64(depth + 1)
	for i := depth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := path[i].weight
			path[i].weight = next * d / (float64(i+1) * one)
			next = tmp - path[i].weight*zero*float64(depth-i)/d
		} else {
			path[i].weight = path[i].weight * d / (zero * float64(depth-i))
		}
	}
	for i := index; i < depth; i++ {
		path[i].feature = path[i+1].feature
		path[i].zero = path[i+1].zero
		path[i].one = path[i+1].one
	}
}

// unwoundSum is the total weight of the path with element index removed,
// without modifying the path.
func unwoundSum(path []pathElement, depth, index int) float64 {
	one, zero := path[index].one, path[index].zero
	next := path[depth].weight
	d := float64(depth + 1)
	total := 0.0
	for i := depth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := next * d / (float64(i+1) * one)
			total += tmp
			next = path[i].weight - tmp*zero*float64(depth-i)/d
		} else if zero != 0 {
			total += path[i].weight / zero / (float64(depth-i) / d)
		}
	}
	return total
}

type treeExplainer struct {
	tree  *model.Tree
	class int
	x     []float64
	phi   []float64
}

// shapTree adds the attributions of one tree for the given class into phi and
// returns the tree's expected output for that class.
func shapTree(tree *model.Tree, class int, x, phi []float64) float64 {
	e := &treeExplainer{tree: tree, class: class, x: x, phi: phi}
	e.recurse(0, nil, 0, 1, 1, -1)
	return expectedValue(tree, class, 0)
}

func (e *treeExplainer) recurse(node int, parent []pathElement, depth int, zero, one float64, feature int) {
	path := make([]pathElement, depth+1, e.tree.MaxDepth()+2)
	copy(path, parent)
	extendPath(path, depth, zero, one, feature)

	t := e.tree
	if t.IsLeaf(node) {
		leaf := t.Value[node][e.class]
		for i := 1; i <= depth; i++ {
			w := unwoundSum(path, depth, i)
			el := path[i]
			e.phi[el.feature] += w * (el.one - el.zero) * leaf
		}
		return
	}

	hot, cold := t.Left[node], t.Right[node]
	if !t.GoesLeft(node, e.x) {
		hot, cold = cold, hot
	}
	split := t.Feature[node]
	hotZero := t.Cover[hot] / t.Cover[node]
	coldZero := t.Cover[cold] / t.Cover[node]

	// A feature already on the path is merged rather than counted twice.
	inZero, inOne := 1.0, 1.0
	for k := 0; k <= depth; k++ {
		if path[k].feature == split {
			inZero, inOne = path[k].zero, path[k].one
			unwindPath(path, depth, k)
			depth--
			break
		}
	}

	e.recurse(hot, path, depth+1, hotZero*inZero, inOne, split)
	e.recurse(cold, path, depth+1, coldZero*inZero, 0, split)
}

// expectedValue is the cover-weighted mean leaf value below node.
func expectedValue(t *model.Tree, class, node int) float64 {
	if t.IsLeaf(node) {
		return t.Value[node][class]
	}
	l, r := t.Left[node], t.Right[node]
	cl, cr := t.Cover[l], t.Cover[r]
	if cl+cr == 0 {
		return t.Value[node][class]
	}
	return (cl*expectedValue(t, class, l) + cr*expectedValue(t, class, r)) / (cl + cr)
}
