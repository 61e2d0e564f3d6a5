// Package distance computes condensed pairwise distance arrays over count
// vectors.
package distance

import (
	"math"
	"strings"

	"github.com/TobiSchelling/herbtax/internal/condensed"
	"github.com/TobiSchelling/herbtax/internal/core"
)

const stage = "distance"

// Metric names a distance function.
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclidean"
	MetricJaccard   Metric = "jaccard"
)

// DefaultMetric is used when no metric is configured.
const DefaultMetric = MetricCosine

func (m Metric) String() string { return string(m) }

// ParseMetric resolves a metric name, case-insensitively. Empty selects the
// default.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return DefaultMetric, nil
	case MetricCosine, MetricEuclidean, MetricJaccard:
		return m, nil
	default:
		return "", core.Invalid(stage, "unknown metric %q", s)
	}
}

// Func is a distance between two equal-length count vectors.
type Func func(u, v []int) float64

// Provider returns the distance function for m.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricCosine:
		return Cosine, nil
	case MetricEuclidean:
		return Euclidean, nil
	case MetricJaccard:
		return Jaccard, nil
	default:
		return nil, core.Invalid(stage, "unsupported metric %q", m)
	}
}

// Cosine returns 1 - u.v / (|u||v|), clipped to [0, 2]. A zero vector on
// either side yields 1.
func Cosine(u, v []int) float64 {
	var uv, uu, vv int64
	for d := range u {
		a, b := int64(u[d]), int64(v[d])
		uv += a * b
		uu += a * a
		vv += b * b
	}
	if uu == 0 || vv == 0 {
		return 1
	}
	// sqrt(uu*vv) is exact when u == v, which keeps identical vectors at 0.
	d := 1 - float64(uv)/math.Sqrt(float64(uu)*float64(vv))
	return math.Min(math.Max(d, 0), 2)
}

// Euclidean returns the L2 distance between u and v.
func Euclidean(u, v []int) float64 {
	var sum int64
	for d := range u {
		diff := int64(u[d] - v[d])
		sum += diff * diff
	}
	return math.Sqrt(float64(sum))
}

// Jaccard returns 1 - |A n B| / |A u B| over the sets of nonzero dimensions.
// Two empty sets yield 1.
func Jaccard(u, v []int) float64 {
	var inter, union int
	for d := range u {
		a, b := u[d] != 0, v[d] != 0
		if a && b {
			inter++
		}
		if a || b {
			union++
		}
	}
	if union == 0 {
		return 1
	}
	return 1 - float64(inter)/float64(union)
}

// Condensed computes the distance between every pair of vectors and returns
// them in condensed order (see package condensed). It needs at least two
// vectors, all of the same dimension.
func Condensed(vectors [][]int, m Metric) ([]float64, error) {
	n := len(vectors)
	if n < 2 {
		return nil, core.Invalid(stage, "need at least 2 vectors, got %d", n)
	}
	fn, err := Provider(m)
	if err != nil {
		return nil, err
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, core.Invalid(stage, "vector %d has dimension %d, expected %d", i, len(v), dim)
		}
	}

	dist := make([]float64, condensed.Size(n))
	idx := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dist[idx] = fn(vectors[i], vectors[j])
			idx++
		}
	}
	return dist, nil
}

// EstimateBytes returns the memory a condensed float64 array for n items
// occupies.
func EstimateBytes(n int) uint64 {
	return uint64(condensed.Size(n)) * 8
}
