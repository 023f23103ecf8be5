// Package ensemble provides tree-ensemble regressors: a bagged forest and a
// least-squares gradient boosting machine, both built on CART regression
// trees with variance-reduction splits.
package ensemble

import (
	"math"
	"math/rand"
	"sort"
)

// TreeNode is one node of a fitted regression tree. Exported fields keep the
// structure gob-encodable for artifact persistence.
type TreeNode struct {
	IsLeaf    bool
	Value     float64 // leaf prediction (mean of targets)
	Feature   int     // split feature index
	Threshold float64 // go left when x[Feature] <= Threshold
	Left      *TreeNode
	Right     *TreeNode
}

// Predict walks the tree for a single sample.
func (n *TreeNode) Predict(row []float64) float64 {
	node := n
	for !node.IsLeaf {
		if row[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Value
}

// treeParams controls tree growth.
type treeParams struct {
	maxDepth       int // <=0 means unlimited
	minSamplesLeaf int
	maxFeatures    int // number of features considered per split; <=0 means all
}

// growTree fits a regression tree on the rows of X indexed by idx against
// targets y. Splits maximize the reduction in sum of squared errors, the same
// gain criterion used by histogram-based boosting, evaluated exactly on the
// sorted feature values.
func growTree(X [][]float64, y []float64, idx []int, depth int, params treeParams, rng *rand.Rand) *TreeNode {
	mean := meanOf(y, idx)

	if params.maxDepth > 0 && depth >= params.maxDepth {
		return &TreeNode{IsLeaf: true, Value: mean}
	}
	if len(idx) < 2*params.minSamplesLeaf || len(idx) < 2 {
		return &TreeNode{IsLeaf: true, Value: mean}
	}

	nFeatures := len(X[0])
	features := candidateFeatures(nFeatures, params.maxFeatures, rng)

	bestGain := 0.0
	bestFeature := -1
	bestThreshold := 0.0

	// Baseline impurity: SSE around the node mean.
	var baseSSE float64
	for _, i := range idx {
		d := y[i] - mean
		baseSSE += d * d
	}
	if baseSSE <= 1e-12 {
		return &TreeNode{IsLeaf: true, Value: mean}
	}

	sorted := make([]int, len(idx))
	for _, f := range features {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, b int) bool { return X[sorted[a]][f] < X[sorted[b]][f] })

		// Incremental left/right sums while sweeping split positions.
		var leftSum, leftSq float64
		rightSum, rightSq := sumAndSq(y, sorted)

		for pos := 0; pos < len(sorted)-1; pos++ {
			v := y[sorted[pos]]
			leftSum += v
			leftSq += v * v
			rightSum -= v
			rightSq -= v * v

			// Cannot split between identical feature values.
			cur, next := X[sorted[pos]][f], X[sorted[pos+1]][f]
			if cur == next {
				continue
			}

			nLeft := pos + 1
			nRight := len(sorted) - nLeft
			if nLeft < params.minSamplesLeaf || nRight < params.minSamplesLeaf {
				continue
			}

			leftSSE := leftSq - leftSum*leftSum/float64(nLeft)
			rightSSE := rightSq - rightSum*rightSum/float64(nRight)
			gain := baseSSE - leftSSE - rightSSE
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (cur + next) / 2
			}
		}
	}

	if bestFeature < 0 {
		return &TreeNode{IsLeaf: true, Value: mean}
	}

	var leftIdx, rightIdx []int
	for _, i := range idx {
		if X[i][bestFeature] <= bestThreshold {
			leftIdx = append(leftIdx, i)
		} else {
			rightIdx = append(rightIdx, i)
		}
	}

	return &TreeNode{
		Feature:   bestFeature,
		Threshold: bestThreshold,
		Left:      growTree(X, y, leftIdx, depth+1, params, rng),
		Right:     growTree(X, y, rightIdx, depth+1, params, rng),
	}
}

func candidateFeatures(nFeatures, maxFeatures int, rng *rand.Rand) []int {
	all := make([]int, nFeatures)
	for i := range all {
		all[i] = i
	}
	if maxFeatures <= 0 || maxFeatures >= nFeatures {
		return all
	}
	rng.Shuffle(nFeatures, func(i, j int) { all[i], all[j] = all[j], all[i] })
	picked := all[:maxFeatures]
	sort.Ints(picked)
	return picked
}

func meanOf(y []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	var sum float64
	for _, i := range idx {
		sum += y[i]
	}
	return sum / float64(len(idx))
}

func sumAndSq(y []float64, idx []int) (sum, sq float64) {
	for _, i := range idx {
		sum += y[i]
		sq += y[i] * y[i]
	}
	return sum, sq
}

func allFinite(vals []float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
