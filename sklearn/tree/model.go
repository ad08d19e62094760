// Package tree implements histogram-based regression trees grown on
// first and second order gradient statistics, and a single-tree regressor.
package tree

import (
	"fmt"
	"math"

	"github.com/YuminosukeSato/bikeshare/pkg/errors"
)

// Node is a single node of a Tree. Leaves have Left == Right == -1.
type Node struct {
	Feature   int     // split feature (internal nodes)
	Threshold float64 // rows with value <= Threshold go left
	Left      int     // left child index, -1 for leaves
	Right     int     // right child index, -1 for leaves
	Value     float64 // leaf output
	Gain      float64 // split gain (internal nodes)
	Cover     float64 // hessian sum of the rows reaching the node
}

// IsLeaf returns true if the node is a leaf node.
func (n *Node) IsLeaf() bool {
	return n.Left == -1 && n.Right == -1
}

// Tree is a binary regression tree stored as a flat node slice in pre-order:
// the root is node 0 and every child index is greater than its parent's.
type Tree struct {
	Nodes []Node
}

// Predict returns the leaf value reached by row.
func (t *Tree) Predict(row []float64) float64 {
	idx := 0
	for {
		node := &t.Nodes[idx]
		if node.IsLeaf() {
			return node.Value
		}
		if row[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
}

// AccumulateGain adds the split gain of every internal node to gains[feature].
func (t *Tree) AccumulateGain(gains []float64) {
	for i := range t.Nodes {
		n := &t.Nodes[i]
		if !n.IsLeaf() {
			gains[n.Feature] += n.Gain
		}
	}
}

// NumLeaves returns the number of leaves.
func (t *Tree) NumLeaves() int {
	leaves := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			leaves++
		}
	}
	return leaves
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t *Tree) Depth() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	depth := make([]int, len(t.Nodes))
	maxDepth := 0
	for i := range t.Nodes {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			continue
		}
		depth[n.Left] = depth[i] + 1
		depth[n.Right] = depth[i] + 1
		if depth[i]+1 > maxDepth {
			maxDepth = depth[i] + 1
		}
	}
	return maxDepth
}

// Validate checks that the tree is well formed for nFeatures input columns, so
// that Predict always terminates. It is used on trees read from storage.
func (t *Tree) Validate(nFeatures int) error {
	if len(t.Nodes) == 0 {
		return errors.NewValueError("Tree.Validate", "tree has no nodes")
	}
	for i := range t.Nodes {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			if math.IsNaN(n.Value) || math.IsInf(n.Value, 0) {
				return errors.NewValueError("Tree.Validate", fmt.Sprintf("leaf %d has non-finite value", i))
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= nFeatures {
			return errors.NewValueError("Tree.Validate", fmt.Sprintf("node %d splits on feature %d of %d", i, n.Feature, nFeatures))
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return errors.NewValueError("Tree.Validate", fmt.Sprintf("node %d has invalid children %d/%d", i, n.Left, n.Right))
		}
	}
	return nil
}
