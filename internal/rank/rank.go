// Package rank orders entity pairs by distance and explains each pair by the
// attributes the two entities share.
package rank

import (
	"cmp"
	"iter"
	"slices"

	"github.com/TobiSchelling/herbtax/internal/condensed"
	"github.com/TobiSchelling/herbtax/internal/core"
	"github.com/TobiSchelling/herbtax/internal/features"
)

const stage = "rank"

// DefaultTopK is the number of pairs reported when none is configured.
const DefaultTopK = 100

// Pair is one ranked entity pair.
type Pair struct {
	I, J     int
	Position int // condensed position of (I, J)
	EntityI  string
	EntityJ  string
	Shared   []string
	Distance float64
}

// Ranker holds the condensed positions of all nonzero distances sorted
// ascending. Equal distances keep condensed order.
type Ranker struct {
	enc   *features.Encoding
	dist  []float64
	order []int
}

// New sorts dist, which must be the condensed array for enc's entities.
// Pairs at distance exactly 0 carry no signal and are dropped here.
func New(enc *features.Encoding, dist []float64) (*Ranker, error) {
	if want := condensed.Size(enc.N()); len(dist) != want {
		return nil, core.Invalid(stage, "distance array has %d entries, expected %d for %d entities", len(dist), want, enc.N())
	}

	order := make([]int, 0, len(dist))
	for k, d := range dist {
		if d != 0 {
			order = append(order, k)
		}
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(dist[a], dist[b])
	})

	return &Ranker{enc: enc, dist: dist, order: order}, nil
}

// Len returns the number of rankable (nonzero distance) pairs.
func (r *Ranker) Len() int { return len(r.order) }

// Top returns the k closest pairs in ascending distance. The sequence can be
// ranged over any number of times; each pass builds fresh Pair values.
func (r *Ranker) Top(k int) (iter.Seq[Pair], error) {
	if k <= 0 {
		return nil, core.Invalid(stage, "top k must be positive, got %d", k)
	}
	limit := min(k, len(r.order))
	n := r.enc.N()

	return func(yield func(Pair) bool) {
		for _, pos := range r.order[:limit] {
			i, j, err := condensed.Pair(n, pos)
			if err != nil {
				// order only holds positions below condensed.Size(n).
				panic(err)
			}
			p := Pair{
				I:        i,
				J:        j,
				Position: pos,
				EntityI:  r.enc.Entities[i],
				EntityJ:  r.enc.Entities[j],
				Shared:   r.enc.Shared(i, j),
				Distance: r.dist[pos],
			}
			if !yield(p) {
				return
			}
		}
	}, nil
}

// TopPairs ranks dist and collects the k closest pairs.
func TopPairs(enc *features.Encoding, dist []float64, k int) ([]Pair, error) {
	r, err := New(enc, dist)
	if err != nil {
		return nil, err
	}
	seq, err := r.Top(k)
	if err != nil {
		return nil, err
	}
	return slices.Collect(seq), nil
}
