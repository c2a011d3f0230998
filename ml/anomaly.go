package ml

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Isolation-forest parameters. Small trees on sub-samples are enough to
// separate outliers in the 20-dimensional feature space.
const (
	forestTrees     = 50
	forestSubsample = 64

	// AnomalyThreshold is the score above which a vector is treated as
	// anomalous. Scores live in (0,1]; ~0.5 marks the isolation boundary.
	AnomalyThreshold = 0.5
)

type isoNode struct {
	feature int
	split   float64
	left    *isoNode
	right   *isoNode
	size    int
	leaf    bool
}

// anomalyDetector is an isolation forest: anomalous vectors isolate in
// fewer random splits, giving shorter average path lengths.
type anomalyDetector struct {
	trees     []*isoNode
	subsample int
	fitted    bool
}

func newAnomalyDetector() *anomalyDetector {
	return &anomalyDetector{}
}

// fit builds the forest from the rows of x.
func (d *anomalyDetector) fit(x *mat.Dense, rng *rand.Rand) {
	rows, cols := x.Dims()
	if rows < 2 {
		return
	}

	sub := forestSubsample
	if sub > rows {
		sub = rows
	}
	maxDepth := int(math.Ceil(math.Log2(float64(sub)))) + 1

	d.trees = make([]*isoNode, 0, forestTrees)
	d.subsample = sub

	data := make([][]float64, sub)
	for t := 0; t < forestTrees; t++ {
		for i := range data {
			row := rng.Intn(rows)
			data[i] = mat.Row(nil, row, x)
		}
		d.trees = append(d.trees, buildIsoTree(data, cols, 0, maxDepth, rng))
	}
	d.fitted = true
}

func buildIsoTree(data [][]float64, cols, depth, maxDepth int, rng *rand.Rand) *isoNode {
	if len(data) <= 1 || depth >= maxDepth {
		return &isoNode{leaf: true, size: len(data)}
	}

	feature := rng.Intn(cols)
	lo, hi := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		v := row[feature]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi-lo < 1e-12 {
		return &isoNode{leaf: true, size: len(data)}
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right [][]float64
	for _, row := range data {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	return &isoNode{
		feature: feature,
		split:   split,
		left:    buildIsoTree(left, cols, depth+1, maxDepth, rng),
		right:   buildIsoTree(right, cols, depth+1, maxDepth, rng),
	}
}

// score returns the isolation score for one feature vector. An unfitted
// detector scores everything 0 (never anomalous).
func (d *anomalyDetector) score(features []float64) float64 {
	if !d.fitted || len(d.trees) == 0 {
		return 0
	}

	var total float64
	for _, tree := range d.trees {
		total += pathLength(tree, features, 0)
	}
	avg := total / float64(len(d.trees))

	c := averagePathLength(d.subsample)
	if c <= 0 {
		return 0
	}
	return math.Pow(2, -avg/c)
}

func pathLength(node *isoNode, features []float64, depth int) float64 {
	if node.leaf {
		return float64(depth) + averagePathLength(node.size)
	}
	if node.feature < len(features) && features[node.feature] < node.split {
		return pathLength(node.left, features, depth+1)
	}
	return pathLength(node.right, features, depth+1)
}

// averagePathLength is the expected unsuccessful-search depth in a BST of
// n nodes, the standard isolation-forest normalizer.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649
	return 2*h - 2*float64(n-1)/float64(n)
}
