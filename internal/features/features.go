// Package features turns entity -> attribute lists into count vectors over a
// fixed attribute universe.
package features

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/TobiSchelling/herbtax/internal/core"
)

const stage = "encode"

// Record is one entity and its raw attribute occurrences, repeats allowed.
type Record struct {
	Entity     string
	Attributes []string
}

// Encoding is the positional result of Encode. Entity i owns Vectors[i] and
// dimension d counts Universe[d]; every later stage refers to these indices.
type Encoding struct {
	Universe []string
	Entities []string
	Vectors  [][]int

	presence []*roaring.Bitmap
	index    map[string]int
}

// Encode builds one count vector per record over universe, keeping the record
// order as the entity order.
func Encode(records []Record, universe []string) (*Encoding, error) {
	if len(universe) == 0 {
		return nil, core.Invalid(stage, "attribute universe is empty")
	}

	dims := make(map[string]int, len(universe))
	for d, attr := range universe {
		if _, dup := dims[attr]; dup {
			return nil, core.Invalid(stage, "attribute %q appears twice in the universe", attr)
		}
		dims[attr] = d
	}

	enc := &Encoding{
		Universe: append([]string(nil), universe...),
		Entities: make([]string, len(records)),
		Vectors:  make([][]int, len(records)),
		presence: make([]*roaring.Bitmap, len(records)),
		index:    make(map[string]int, len(records)),
	}

	for e, rec := range records {
		if _, dup := enc.index[rec.Entity]; dup {
			return nil, core.Invalid(stage, "entity %q appears twice", rec.Entity)
		}
		if len(rec.Attributes) == 0 {
			return nil, core.Invalid(stage, "entity %q has no attributes", rec.Entity)
		}

		vec := make([]int, len(universe))
		bm := roaring.New()
		for _, attr := range rec.Attributes {
			d, ok := dims[attr]
			if !ok {
				return nil, core.Invalid(stage, "entity %q references attribute %q outside the universe", rec.Entity, attr)
			}
			vec[d]++
			bm.Add(uint32(d))
		}
		bm.RunOptimize()

		enc.Entities[e] = rec.Entity
		enc.Vectors[e] = vec
		enc.presence[e] = bm
		enc.index[rec.Entity] = e
	}

	return enc, nil
}

// N returns the number of entities.
func (e *Encoding) N() int { return len(e.Entities) }

// D returns the vector dimension.
func (e *Encoding) D() int { return len(e.Universe) }

// Index returns the position of an entity by name.
func (e *Encoding) Index(entity string) (int, bool) {
	i, ok := e.index[entity]
	return i, ok
}

// Presence returns a copy of the set of dimensions entity i has at least once.
func (e *Encoding) Presence(i int) *roaring.Bitmap {
	return e.presence[i].Clone()
}

// Presences returns the presence sets of all entities in entity order. The
// bitmaps are shared and must not be modified.
func (e *Encoding) Presences() []*roaring.Bitmap {
	return e.presence
}

// Shared returns the attributes present in both entity i and entity j, in
// universe order. Presence, not count, decides membership.
func (e *Encoding) Shared(i, j int) []string {
	both := roaring.And(e.presence[i], e.presence[j])
	out := make([]string, 0, both.GetCardinality())
	it := both.Iterator()
	for it.HasNext() {
		out = append(out, e.Universe[it.Next()])
	}
	return out
}
