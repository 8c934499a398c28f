// Package filterindex implements C3, the in-memory attribute filter index:
// map<field, map<int_value, roaring_bitmap<id>>>. It lets a query restrict
// its vector search to rows matching an Equal/NotEqual predicate over one or
// more integer-valued attributes.
//
// Ids live in a roaring.Bitmap, which is a 32-bit id space. The id allocator
// (scalarstore.AllocateIDs) hands out 64-bit ids; this index truncates to
// the low 32 bits when inserting. That is the documented cap from the
// design notes rather than a silent bug: a single ShibuVec instance is not
// expected to allocate past 2^32 rows in its lifetime, and switching to
// roaring64 would give up the ecosystem library the rest of the pack
// standardizes on. See DESIGN.md for the tradeoff.
package filterindex

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// Op is a predicate kind composable into a restriction.
type Op int

const (
	OpEqual Op = iota
	OpNotEqual
)

// Predicate is one term of a filter_inputs list: "field op value".
type Predicate struct {
	Field string
	Op    Op
	Value int64
}

// Index is the field -> value -> bitmap(ids) structure from spec §4.3.
type Index struct {
	mu     sync.RWMutex
	fields map[string]map[int64]*roaring.Bitmap
}

// New returns an empty filter index.
func New() *Index {
	return &Index{fields: make(map[string]map[int64]*roaring.Bitmap)}
}

// Upsert inserts id into the (field, v) bitmap, creating intermediate maps
// as needed.
func (idx *Index) Upsert(field string, v int64, id uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	byValue, ok := idx.fields[field]
	if !ok {
		byValue = make(map[int64]*roaring.Bitmap)
		idx.fields[field] = byValue
	}
	bm, ok := byValue[v]
	if !ok {
		bm = roaring.New()
		byValue[v] = bm
	}
	bm.Add(uint32(id))
}

// Apply composes pred into accumulator and returns the result. The
// accumulator is never mutated in place; a fresh bitmap is returned so
// callers can fold a predicate list without aliasing surprises.
func (idx *Index) Apply(pred Predicate, accumulator *roaring.Bitmap) *roaring.Bitmap {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	byValue, known := idx.fields[pred.Field]
	if !known {
		return accumulator.Clone()
	}

	result := accumulator.Clone()
	switch pred.Op {
	case OpEqual:
		if bm, ok := byValue[pred.Value]; ok {
			result.Or(bm)
		}
	case OpNotEqual:
		for v, bm := range byValue {
			if v == pred.Value {
				continue
			}
			result.Or(bm)
		}
	}
	return result
}

// Compose folds a predicate list into a single restriction bitmap via
// union, matching spec §4.3's composition policy: every predicate ORs into
// the accumulator, so a multi-predicate filter widens rather than narrows
// the match set. An empty predicate list returns nil, signaling "no
// restriction" to the caller rather than "match nothing".
func (idx *Index) Compose(preds []Predicate) *roaring.Bitmap {
	if len(preds) == 0 {
		return nil
	}
	acc := roaring.New()
	for _, p := range preds {
		acc = idx.Apply(p, acc)
	}
	return acc
}
