// Package vectorindex implements C4, the vector index contract shared by
// the Flat (exact) and HNSW (approximate) variants: insert a batch of rows
// under assigned ids, and search for the k nearest neighbors of a query
// vector, optionally restricted to an explicit id set.
package vectorindex

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/shibudb.org/shibuvec/internal/dberrors"
)

// Metric selects the distance function both index variants use. It is
// configured once per database and applies consistently to Flat and HNSW.
type Metric int

const (
	MetricL2 Metric = iota
	MetricIP
)

// InsertHints carries per-call knobs; currently only HNSW's batched vs.
// sequential insert choice.
type InsertHints struct {
	Parallel bool
}

// SearchHints carries per-query knobs. EfSearch is required for HNSW and
// ignored by Flat.
type SearchHints struct {
	EfSearch int
}

// SearchResult is the normalized output shape both variants return:
// parallel distances/labels slices of equal length, sorted ascending by
// distance, with any invalid label (and its distance) already dropped.
type SearchResult struct {
	Distances []float32
	Labels    []uint64
}

// Index is the contract both the Flat and HNSW variants satisfy.
type Index interface {
	// Insert adds n rows (flattened row-major, n*dim floats) under labels.
	// It fails if n != len(labels), or cols != dim.
	Insert(rows []float32, labels []uint64, hints InsertHints) error
	// Search returns up to k nearest neighbors of query. If restriction is
	// non-nil, only ids present in it may appear in the result.
	Search(query []float32, k int, hints SearchHints, restriction *roaring.Bitmap) (SearchResult, error)
	Dim() int
	Close() error
}

func validateInsert(rows []float32, labels []uint64, dim int) (n int, err error) {
	if dim <= 0 {
		return 0, dberrors.NewPutError("vector insert", fmt.Errorf("invalid dim %d", dim))
	}
	if len(rows)%dim != 0 {
		return 0, dberrors.NewPutError("vector insert", fmt.Errorf("rows length %d not a multiple of dim %d", len(rows), dim))
	}
	n = len(rows) / dim
	if n != len(labels) {
		return 0, dberrors.NewPutError("vector insert", fmt.Errorf("row count %d != labels count %d", n, len(labels)))
	}
	return n, nil
}

// normalize sorts by ascending distance, drops any (label, distance) pair
// whose label is the int64 sentinel -1 (faiss's "no result" marker),
// truncates to k, and returns the SearchResult shape spec §4.4 mandates.
func normalize(distances []float32, labels []int64, k int) SearchResult {
	type pair struct {
		dist  float32
		label uint64
	}
	pairs := make([]pair, 0, len(labels))
	for i, l := range labels {
		if l < 0 {
			continue
		}
		pairs = append(pairs, pair{dist: distances[i], label: uint64(l)})
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].dist != pairs[j].dist {
			return pairs[i].dist < pairs[j].dist
		}
		return pairs[i].label < pairs[j].label
	})
	if k >= 0 && len(pairs) > k {
		pairs = pairs[:k]
	}
	out := SearchResult{Distances: make([]float32, len(pairs)), Labels: make([]uint64, len(pairs))}
	for i, p := range pairs {
		out.Distances[i] = p.dist
		out.Labels[i] = p.label
	}
	return out
}

// filterByRestriction keeps only entries whose label is present in
// restriction, preserving order. A nil restriction is a no-op.
func filterByRestriction(res SearchResult, restriction *roaring.Bitmap) SearchResult {
	if restriction == nil {
		return res
	}
	out := SearchResult{Distances: make([]float32, 0, len(res.Labels)), Labels: make([]uint64, 0, len(res.Labels))}
	for i, l := range res.Labels {
		if l <= uint64(^uint32(0)) && restriction.Contains(uint32(l)) {
			out.Distances = append(out.Distances, res.Distances[i])
			out.Labels = append(out.Labels, l)
		}
	}
	return out
}
