package anomaly

import (
	"math"
	"math/rand/v2"
)

// Isolation forest over standardized feature vectors. Anomalous points
// isolate in fewer random splits, giving shorter average path lengths.
const (
	forestTrees     = 100
	forestSubsample = 256
)

type treeNode struct {
	splitDim int
	splitVal float64
	left     *treeNode
	right    *treeNode
	size     int // external node: number of points that reached it
}

type forest struct {
	trees     []*treeNode
	subsample int
}

// growForest fits the ensemble on the training matrix. The caller seeds the
// generator, so training is reproducible for a fixed seed and batch.
func growForest(data [][]float64, rng *rand.Rand) *forest {
	subsample := forestSubsample
	if len(data) < subsample {
		subsample = len(data)
	}

	heightLimit := int(math.Ceil(math.Log2(float64(subsample))))
	if heightLimit < 1 {
		heightLimit = 1
	}

	f := &forest{
		trees:     make([]*treeNode, forestTrees),
		subsample: subsample,
	}

	sample := make([][]float64, subsample)
	for t := 0; t < forestTrees; t++ {
		perm := rng.Perm(len(data))
		for i := 0; i < subsample; i++ {
			sample[i] = data[perm[i]]
		}
		f.trees[t] = growTree(sample, 0, heightLimit, rng)
	}
	return f
}

func growTree(points [][]float64, depth, heightLimit int, rng *rand.Rand) *treeNode {
	if depth >= heightLimit || len(points) <= 1 {
		return &treeNode{size: len(points)}
	}

	// Pick a dimension with spread; give up after a few tries when the
	// remaining points are identical.
	var dim int
	var lo, hi float64
	found := false
	for attempt := 0; attempt < featureCount; attempt++ {
		dim = rng.IntN(featureCount)
		lo, hi = points[0][dim], points[0][dim]
		for _, p := range points[1:] {
			if p[dim] < lo {
				lo = p[dim]
			}
			if p[dim] > hi {
				hi = p[dim]
			}
		}
		if hi > lo {
			found = true
			break
		}
	}
	if !found {
		return &treeNode{size: len(points)}
	}

	splitVal := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, p := range points {
		if p[dim] < splitVal {
			left = append(left, p)
		} else {
			right = append(right, p)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &treeNode{size: len(points)}
	}

	return &treeNode{
		splitDim: dim,
		splitVal: splitVal,
		left:     growTree(left, depth+1, heightLimit, rng),
		right:    growTree(right, depth+1, heightLimit, rng),
	}
}

// pathLength walks one tree, adding the unbuilt-subtree adjustment at the
// external node.
func (n *treeNode) pathLength(vec []float64, depth float64) float64 {
	if n.left == nil {
		return depth + avgPathLength(n.size)
	}
	if vec[n.splitDim] < n.splitVal {
		return n.left.pathLength(vec, depth+1)
	}
	return n.right.pathLength(vec, depth+1)
}

// anomalyScore returns the ensemble score in (0,1); values near 1 indicate
// isolation in few splits, values near 0.5 and below look normal.
func (f *forest) anomalyScore(vec []float64) float64 {
	var sum float64
	for _, t := range f.trees {
		sum += t.pathLength(vec, 0)
	}
	avg := sum / float64(len(f.trees))

	c := avgPathLength(f.subsample)
	if c == 0 {
		return 0.5
	}
	return math.Pow(2, -avg/c)
}

// decision mirrors the usual decision-function convention: negative for
// anomalous points, positive for normal ones, roughly in [-0.5, 0.5].
func (f *forest) decision(vec []float64) float64 {
	return 0.5 - f.anomalyScore(vec)
}

const eulerMascheroni = 0.5772156649

// avgPathLength is the expected path length of an unsuccessful BST search
// over n points, the standard isolation-forest normalizer.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerMascheroni) - 2*(fn-1)/fn
}
