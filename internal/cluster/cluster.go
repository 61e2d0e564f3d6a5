// Package cluster builds hierarchical clusterings over condensed distance
// arrays and flattens them at a fixed threshold.
package cluster

import (
	"log/slog"
)

const (
	DefaultDistanceThreshold = 1.0
	DefaultMinClusterSize    = 5
)

// Result holds the results of a clustering run.
type Result struct {
	Tree   *Tree
	Labels []int   // entity index -> cluster label
	Groups [][]int // label -> member entity indices
	Kept   [][]int // groups with at least the minimum size, in label order
	Leaves []int   // entity indices in dendrogram order
}

// Clusterer clusters entities from their condensed distances.
type Clusterer struct {
	method         Method
	criterion      Criterion
	threshold      float64
	minClusterSize int
}

// NewClusterer creates a new clusterer. Empty names, a negative threshold or
// a non-positive minimum size select the defaults.
func NewClusterer(method Method, criterion Criterion, threshold float64, minClusterSize int) *Clusterer {
	if method == "" {
		method = DefaultMethod
	}
	if criterion == "" {
		criterion = DefaultCriterion
	}
	if threshold < 0 {
		threshold = DefaultDistanceThreshold
	}
	if minClusterSize <= 0 {
		minClusterSize = DefaultMinClusterSize
	}
	return &Clusterer{
		method:         method,
		criterion:      criterion,
		threshold:      threshold,
		minClusterSize: minClusterSize,
	}
}

// Method returns the linkage method in effect.
func (c *Clusterer) Method() Method { return c.method }

// Criterion returns the flattening criterion in effect.
func (c *Clusterer) Criterion() Criterion { return c.criterion }

// Threshold returns the cut threshold in effect.
func (c *Clusterer) Threshold() float64 { return c.threshold }

// MinClusterSize returns the minimum size of a kept cluster.
func (c *Clusterer) MinClusterSize() int { return c.minClusterSize }

// Cluster builds the linkage tree for n entities, cuts it and orders leaves.
func (c *Clusterer) Cluster(dist []float64, n int) (*Result, error) {
	tree, err := Linkage(dist, n, c.method)
	if err != nil {
		return nil, err
	}

	labels, err := Flatten(tree, c.criterion, c.threshold)
	if err != nil {
		return nil, err
	}

	groups := Members(labels)
	var kept [][]int
	for _, g := range groups {
		if len(g) >= c.minClusterSize {
			kept = append(kept, g)
		}
	}

	slog.Debug("clustering complete",
		"method", c.method,
		"criterion", c.criterion,
		"threshold", c.threshold,
		"entities", n,
		"clusters", len(groups),
		"kept", len(kept))

	return &Result{
		Tree:   tree,
		Labels: labels,
		Groups: groups,
		Kept:   kept,
		Leaves: Leaves(tree),
	}, nil
}
