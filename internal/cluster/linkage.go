package cluster

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/TobiSchelling/herbtax/internal/condensed"
	"github.com/TobiSchelling/herbtax/internal/core"
)

const stage = "cluster"

// Method is the inter-cluster distance used while agglomerating.
type Method string

const (
	MethodSingle   Method = "single"
	MethodComplete Method = "complete"
	MethodAverage  Method = "average"
	MethodWard     Method = "ward"
)

// DefaultMethod is used when no linkage method is configured.
const DefaultMethod = MethodSingle

// ParseMethod resolves a linkage method name, case-insensitively. Empty
// selects the default.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return DefaultMethod, nil
	case MethodSingle, MethodComplete, MethodAverage, MethodWard:
		return m, nil
	default:
		return "", core.Invalid(stage, "unknown linkage method %q", s)
	}
}

// Merge records a single merge step in the dendrogram. Ids below N are
// entities; id N+s is the cluster formed at step s. Left is the smaller id.
type Merge struct {
	Left, Right int
	Distance    float64
	Size        int
}

// Tree is the full merge history over N entities: exactly N-1 merges.
type Tree struct {
	N      int
	Merges []Merge
}

// Root returns the id of the final cluster.
func (t *Tree) Root() int { return 2*t.N - 2 }

// Linkage agglomerates n entities given their condensed distance array.
func Linkage(dist []float64, n int, method Method) (*Tree, error) {
	if n < 2 {
		return nil, core.Invalid(stage, "need at least 2 entities, got %d", n)
	}
	if want := condensed.Size(n); len(dist) != want {
		return nil, core.Invalid(stage, "distance array has %d entries, expected %d for %d entities", len(dist), want, n)
	}

	switch method {
	case MethodSingle:
		return &Tree{N: n, Merges: singleLinkage(dist, n)}, nil
	case MethodComplete, MethodAverage, MethodWard:
		return &Tree{N: n, Merges: lanceWilliams(dist, n, method)}, nil
	default:
		return nil, core.Invalid(stage, "unsupported linkage method %q", method)
	}
}

type edge struct {
	a, b int
	d    float64
}

// singleLinkage builds the minimum spanning tree with Prim's algorithm in
// O(n^2) and replays its edges in ascending order. Equal edges keep the
// order in which Prim found them.
func singleLinkage(dist []float64, n int) []Merge {
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
	}

	edges := make([]edge, 0, n-1)
	current := 0
	for step := 0; step < n-1; step++ {
		inTree[current] = true
		next := -1
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			if d := dist[condensed.Offset(n, current, j)]; d < best[j] {
				best[j] = d
				from[j] = current
			}
			if next == -1 || best[j] < best[next] {
				next = j
			}
		}
		edges = append(edges, edge{a: from[next], b: next, d: best[next]})
		current = next
	}

	slices.SortStableFunc(edges, func(x, y edge) int { return cmp.Compare(x.d, y.d) })

	// Union-find over entities; node tracks the dendrogram id of each root.
	parent := make([]int, n)
	size := make([]int, n)
	node := make([]int, n)
	for i := range parent {
		parent[i] = i
		size[i] = 1
		node[i] = i
	}

	merges := make([]Merge, 0, n-1)
	for step, e := range edges {
		ra, rb := find(parent, e.a), find(parent, e.b)
		left, right := node[ra], node[rb]
		if left > right {
			left, right = right, left
		}
		newSize := size[ra] + size[rb]
		merges = append(merges, Merge{Left: left, Right: right, Distance: e.d, Size: newSize})

		parent[rb] = ra
		size[ra] = newSize
		node[ra] = n + step
	}
	return merges
}

// lanceWilliams performs agglomerative clustering with the Lance-Williams
// recurrence over a working copy of dist. Each merged cluster reuses the
// slot of its lower-numbered member.
func lanceWilliams(dist []float64, n int, method Method) []Merge {
	d := make([]float64, len(dist))
	copy(d, dist)
	if method == MethodWard {
		// Ward's update is defined on squared distances.
		for k := range d {
			d[k] *= d[k]
		}
	}

	active := make([]bool, n)
	size := make([]int, n)
	id := make([]int, n)
	for i := 0; i < n; i++ {
		active[i] = true
		size[i] = 1
		id[i] = i
	}

	merges := make([]Merge, 0, n-1)
	for step := 0; step < n-1; step++ {
		minDist := math.Inf(1)
		minI, minJ := -1, -1
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !active[j] {
					continue
				}
				if dij := d[condensed.Offset(n, i, j)]; minI == -1 || dij < minDist {
					minDist = dij
					minI, minJ = i, j
				}
			}
		}

		ni, nj := float64(size[minI]), float64(size[minJ])
		for k := 0; k < n; k++ {
			if !active[k] || k == minI || k == minJ {
				continue
			}
			dik := d[condensed.Offset(n, minI, k)]
			djk := d[condensed.Offset(n, minJ, k)]

			var nd float64
			switch method {
			case MethodComplete:
				nd = math.Max(dik, djk)
			case MethodAverage:
				nd = (ni*dik + nj*djk) / (ni + nj)
			case MethodWard:
				nk := float64(size[k])
				nd = ((nk+ni)*dik + (nk+nj)*djk - nk*minDist) / (nk + ni + nj)
			default:
				nd = math.Min(dik, djk)
			}
			d[condensed.Offset(n, minI, k)] = nd
		}

		reported := minDist
		if method == MethodWard {
			reported = math.Sqrt(minDist)
		}
		left, right := id[minI], id[minJ]
		if left > right {
			left, right = right, left
		}
		merges = append(merges, Merge{
			Left:     left,
			Right:    right,
			Distance: reported,
			Size:     size[minI] + size[minJ],
		})

		active[minJ] = false
		size[minI] += size[minJ]
		id[minI] = n + step
	}
	return merges
}

// find resolves the root for i with path halving.
func find(parent []int, i int) int {
	for parent[i] != i {
		parent[i] = parent[parent[i]]
		i = parent[i]
	}
	return i
}
