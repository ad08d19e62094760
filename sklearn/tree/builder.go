package tree

import (
	"github.com/YuminosukeSato/bikeshare/core/parallel"
)

// Params controls tree growth.
type Params struct {
	// MaxDepth is the maximum number of splits on any root-to-leaf path.
	MaxDepth int
	// MinChildWeight is the minimum hessian sum of each child of a split.
	MinChildWeight float64
	// Lambda is the L2 regularisation on leaf values.
	Lambda float64
	// MinSplitGain is the gain a split must exceed.
	MinSplitGain float64
}

// parallelThreshold is the rows×features product below which histograms are
// built on the calling goroutine.
const parallelThreshold = 1 << 15

// gainEpsilon absorbs floating point noise in splits that do not help.
const gainEpsilon = 1e-10

// Builder grows regression trees on a fixed Binned matrix. A Builder is not
// safe for concurrent use; build one per goroutine.
type Builder struct {
	binned  *Binned
	params  Params
	offsets []int
	grad    []float64
	hess    []float64
}

// NewBuilder creates a Builder over binned data.
func NewBuilder(binned *Binned, params Params) *Builder {
	offsets := make([]int, binned.NFeatures()+1)
	for j := 0; j < binned.NFeatures(); j++ {
		offsets[j+1] = offsets[j] + binned.Binner.NBins(j)
	}
	return &Builder{binned: binned, params: params, offsets: offsets}
}

// histogram holds per-bin gradient and hessian sums for every feature.
type histogram struct {
	grad []float64
	hess []float64
}

type split struct {
	feature   int
	bin       int
	gain      float64
	leftGrad  float64
	leftHess  float64
	rightGrad float64
	rightHess float64
}

// Build grows one tree on the given rows. grad and hess are indexed by row of
// the binned matrix; rows may repeat (bootstrap samples).
//
// The split gain is ½[G_L²/(H_L+λ) + G_R²/(H_R+λ) − G²/(H+λ)] and the leaf
// value is −G/(H+λ).
func (b *Builder) Build(grad, hess []float64, rows []int) *Tree {
	b.grad = grad
	b.hess = hess
	defer func() {
		b.grad = nil
		b.hess = nil
	}()

	var g, h float64
	for _, i := range rows {
		g += grad[i]
		h += hess[i]
	}

	t := &Tree{Nodes: make([]Node, 0, 2<<uint(min(b.params.MaxDepth, 10)))}
	b.grow(t, rows, b.buildHistogram(rows), g, h, 0)
	return t
}

func (b *Builder) grow(t *Tree, rows []int, hist *histogram, g, h float64, depth int) int {
	idx := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{
		Feature: -1,
		Left:    -1,
		Right:   -1,
		Value:   b.leafValue(g, h),
		Cover:   h,
	})

	if depth >= b.params.MaxDepth || h < 2*b.params.MinChildWeight {
		return idx
	}
	best, ok := b.bestSplit(hist, g, h)
	if !ok {
		return idx
	}

	left, right := b.partition(rows, best)
	if len(left) == 0 || len(right) == 0 {
		return idx
	}

	// Build the histogram of the smaller child and derive the sibling's by
	// subtraction from the parent.
	var leftHist, rightHist *histogram
	if len(left) <= len(right) {
		leftHist = b.buildHistogram(left)
		rightHist = subtract(hist, leftHist)
	} else {
		rightHist = b.buildHistogram(right)
		leftHist = subtract(hist, rightHist)
	}

	t.Nodes[idx].Feature = best.feature
	t.Nodes[idx].Threshold = b.threshold(best.feature, best.bin)
	t.Nodes[idx].Gain = best.gain

	l := b.grow(t, left, leftHist, best.leftGrad, best.leftHess, depth+1)
	r := b.grow(t, right, rightHist, best.rightGrad, best.rightHess, depth+1)
	t.Nodes[idx].Left = l
	t.Nodes[idx].Right = r
	return idx
}

func (b *Builder) leafValue(g, h float64) float64 {
	denom := h + b.params.Lambda
	if denom <= 0 {
		return 0
	}
	return -g / denom
}

func (b *Builder) score(g, h float64) float64 {
	denom := h + b.params.Lambda
	if denom <= 0 {
		return 0
	}
	return g * g / denom
}

// bestSplit scans every feature's bins left to right. Ties keep the earlier
// feature and bin, so the result does not depend on scheduling.
func (b *Builder) bestSplit(hist *histogram, g, h float64) (split, bool) {
	parent := b.score(g, h)
	best := split{gain: b.params.MinSplitGain + gainEpsilon}
	found := false

	for j := 0; j < b.binned.NFeatures(); j++ {
		lo, hi := b.offsets[j], b.offsets[j+1]
		var gl, hl float64
		for k := lo; k < hi-1; k++ {
			gl += hist.grad[k]
			hl += hist.hess[k]
			if hl < b.params.MinChildWeight {
				continue
			}
			gr, hr := g-gl, h-hl
			if hr < b.params.MinChildWeight {
				break
			}
			gain := 0.5 * (b.score(gl, hl) + b.score(gr, hr) - parent)
			if gain > best.gain {
				best = split{
					feature:   j,
					bin:       k - lo,
					gain:      gain,
					leftGrad:  gl,
					leftHess:  hl,
					rightGrad: gr,
					rightHess: hr,
				}
				found = true
			}
		}
	}
	return best, found
}

func (b *Builder) threshold(feature, bin int) float64 {
	return b.binned.Binner.Thresholds[feature][bin]
}

func (b *Builder) partition(rows []int, s split) (left, right []int) {
	col := b.binned.Cols[s.feature]
	left = make([]int, 0, len(rows))
	right = make([]int, 0, len(rows))
	for _, i := range rows {
		if int(col[i]) <= s.bin {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

func (b *Builder) buildHistogram(rows []int) *histogram {
	size := b.offsets[len(b.offsets)-1]
	hist := &histogram{grad: make([]float64, size), hess: make([]float64, size)}
	nFeatures := b.binned.NFeatures()

	parallel.ParallelizeWithThreshold(nFeatures, parallelThreshold/max(len(rows), 1), func(start, end int) {
		for j := start; j < end; j++ {
			col := b.binned.Cols[j]
			off := b.offsets[j]
			for _, i := range rows {
				k := off + int(col[i])
				hist.grad[k] += b.grad[i]
				hist.hess[k] += b.hess[i]
			}
		}
	})
	return hist
}

func subtract(parent, child *histogram) *histogram {
	out := &histogram{grad: make([]float64, len(parent.grad)), hess: make([]float64, len(parent.hess))}
	for k := range parent.grad {
		out.grad[k] = parent.grad[k] - child.grad[k]
		out.hess[k] = parent.hess[k] - child.hess[k]
	}
	return out
}
