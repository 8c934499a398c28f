package vectorindex

import (
	"fmt"

	"github.com/DataIntelligenceCrew/go-faiss"
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/shibudb.org/shibuvec/internal/dberrors"
)

// Flat is the exact nearest-neighbor variant, adapted from the teacher's
// internal/storage/vector_storage.go: an IDMap-wrapped faiss index. Unlike
// the teacher's VectorEngineImpl, it owns no file, WAL, or background
// flusher — recovery here is the façade's job (replay the WAL into a fresh
// Flat index), so this type is purely the in-memory index wrapper the spec
// asks for.
type Flat struct {
	index  faiss.Index
	dim    int
	metric Metric
}

// NewFlat builds an empty Flat index over dim-dimensional vectors under the
// given metric.
func NewFlat(dim int, metric Metric) (*Flat, error) {
	idx, err := faiss.IndexFactory(dim, "IDMap,Flat", faissMetric(metric))
	if err != nil {
		return nil, dberrors.NewCreateError("flat vector index", err)
	}
	return &Flat{index: idx, dim: dim, metric: metric}, nil
}

func faissMetric(m Metric) int {
	if m == MetricIP {
		return faiss.MetricInnerProduct
	}
	return faiss.MetricL2
}

func (f *Flat) Dim() int { return f.dim }

// Insert adds rows under labels. On success all rows are searchable
// immediately; Flat needs no training.
func (f *Flat) Insert(rows []float32, labels []uint64, _ InsertHints) error {
	n, err := validateInsert(rows, labels, f.dim)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	ids := make([]int64, n)
	for i, l := range labels {
		ids[i] = int64(l)
	}
	if err := f.index.AddWithIDs(rows, ids); err != nil {
		return dberrors.NewPutError("flat vector insert", err)
	}
	return nil
}

// Search returns up to k nearest neighbors. If ntotal is 0 it returns an
// empty result without error; if k exceeds ntotal it is clamped.
//
// Filtered search is implemented by fetching all ntotal candidates from
// the underlying flat scan in one pass, discarding any label outside
// restriction, and truncating to k — this mirrors the teacher's
// RangeSearch, which also does its own filter-then-sort in Go rather than
// pushing a predicate into FAISS.
func (f *Flat) Search(query []float32, k int, _ SearchHints, restriction *roaring.Bitmap) (SearchResult, error) {
	if len(query) != f.dim {
		return SearchResult{}, dberrors.NewGetError("flat vector search", fmt.Errorf("query dim %d != index dim %d", len(query), f.dim))
	}
	ntotal := int(f.index.Ntotal())
	if ntotal == 0 || k <= 0 {
		return SearchResult{}, nil
	}
	if k > ntotal {
		k = ntotal
	}

	fetch := k
	if restriction != nil {
		fetch = ntotal // flat scan is already O(n); no benefit to iterative widening
	}

	dists, labels, err := f.index.Search(query, int64(fetch))
	if err != nil {
		return SearchResult{}, dberrors.NewGetError("flat vector search", err)
	}

	// faiss reports inner products as larger-is-better; negate so both
	// metrics share one smaller-is-closer ordering.
	if f.metric == MetricIP {
		for i := range dists {
			dists[i] = -dists[i]
		}
	}

	res := normalize(dists, labels, fetch)
	res = filterByRestriction(res, restriction)
	if len(res.Labels) > k {
		res.Labels = res.Labels[:k]
		res.Distances = res.Distances[:k]
	}
	return res, nil
}

func (f *Flat) Close() error {
	f.index.Delete()
	return nil
}
