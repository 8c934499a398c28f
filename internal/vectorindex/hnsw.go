package vectorindex

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/coder/hnsw"

	"github.com/shibudb.org/shibuvec/internal/dberrors"
)

var errMissingEfSearch = errors.New("ef_search is required for HNSW queries")

// HNSWParams configures the approximate graph index, per spec §4.4.
// DefaultHNSWParams reads each default from its HNSW_* environment
// variable when set; config.toml's hnsw_params, when present, replaces
// them (see internal/bootstrap).
type HNSWParams struct {
	EfConstruction  int
	MaxElements     int
	MaxNbConnection int
	MaxLayer        int
}

const (
	envEfConstruction  = "HNSW_EF_CONSTRUCTION"
	envMaxElements     = "HNSW_MAX_ELEMENTS"
	envMaxNbConnection = "HNSW_MAX_NB_CONNECTION"
	envMaxLayer        = "HNSW_MAX_LAYER"
)

// DefaultHNSWParams returns spec's defaults, each overridable by its
// environment variable.
func DefaultHNSWParams() HNSWParams {
	return HNSWParams{
		EfConstruction:  envIntOr(envEfConstruction, 200),
		MaxElements:     envIntOr(envMaxElements, 500),
		MaxNbConnection: envIntOr(envMaxNbConnection, 16),
		MaxLayer:        envIntOr(envMaxLayer, 3),
	}
}

func envIntOr(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// HNSW is the approximate nearest-neighbor variant, built on
// github.com/coder/hnsw — sourced from the rest of the example pack (the
// teacher carries no HNSW dependency of its own). The library's Graph is
// keyed by a generic ordered key; document ids (uint64) serve directly.
type HNSW struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	dim    int
	params HNSWParams
}

// NewHNSW builds an empty HNSW index over dim-dimensional vectors under the
// given metric and params.
func NewHNSW(dim int, metric Metric, params HNSWParams) (*HNSW, error) {
	g := hnsw.NewGraph[uint64]()
	g.M = params.MaxNbConnection
	g.EfSearch = params.EfConstruction
	// MaxElements and MaxLayer are accepted for config fidelity but the
	// graph library exposes no capacity or layer-count knob to apply them
	// to; it sizes itself.
	if metric == MetricIP {
		g.Distance = negatedInnerProduct
	} else {
		g.Distance = squaredEuclidean
	}
	return &HNSW{graph: g, dim: dim, params: params}, nil
}

// negatedInnerProduct maps the IP metric onto the graph's smaller-is-closer
// distance convention.
func negatedInnerProduct(a, b hnsw.Vector) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return -dot
}

// squaredEuclidean matches the Flat variant's L2 distances: faiss reports
// squared Euclidean, and the library's EuclideanDistance takes the root.
func squaredEuclidean(a, b hnsw.Vector) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func (h *HNSW) Dim() int { return h.dim }

// Insert adds rows under labels, sequentially or via the library's batch
// Add depending on hints.Parallel — mirroring the original implementation's
// sequential-vs-parallel_insert_data choice (see original_source/src/index/hnsw.rs).
func (h *HNSW) Insert(rows []float32, labels []uint64, hints InsertHints) error {
	n, err := validateInsert(rows, labels, h.dim)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	nodes := make([]hnsw.Node[uint64], n)
	for i := 0; i < n; i++ {
		vec := make(hnsw.Vector, h.dim)
		copy(vec, rows[i*h.dim:(i+1)*h.dim])
		nodes[i] = hnsw.Node[uint64]{Key: labels[i], Value: vec}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if hints.Parallel {
		h.graph.Add(nodes...)
		return nil
	}
	for _, node := range nodes {
		h.graph.Add(node)
	}
	return nil
}

// Search returns up to k approximate nearest neighbors. hints.EfSearch is
// required; zero is treated as missing and rejected, per spec §4.4.
//
// The id restriction is applied as a post-search filter: coder/hnsw has no
// traversal-time predicate hook, so this widens the candidate pool
// (requesting more neighbors than k) until either the restriction is
// satisfied or the whole graph has been considered — an oracle-at-the-edge
// approximation of spec's "id_restriction consulted at traversal time",
// not a true in-graph prune.
func (h *HNSW) Search(query []float32, k int, hints SearchHints, restriction *roaring.Bitmap) (SearchResult, error) {
	if len(query) != h.dim {
		return SearchResult{}, dberrors.NewGetError("hnsw vector search", fmt.Errorf("query dim %d != index dim %d", len(query), h.dim))
	}
	if hints.EfSearch <= 0 {
		return SearchResult{}, dberrors.NewGetError("hnsw vector search", errMissingEfSearch)
	}
	if k <= 0 {
		return SearchResult{}, nil
	}

	// Full lock, not RLock: the graph's EfSearch knob is a field write.
	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph.EfSearch = hints.EfSearch

	fetch := k
	if restriction != nil {
		fetch = k * 8
	}
	if max := h.graph.Len(); fetch > max {
		fetch = max
	}
	if fetch == 0 {
		return SearchResult{}, nil
	}

	for {
		nodes := h.graph.Search(hnsw.Vector(query), fetch)
		res := toSearchResult(query, nodes, h.graph.Distance)
		res = filterByRestriction(res, restriction)
		if len(res.Labels) >= k || fetch >= h.graph.Len() {
			if len(res.Labels) > k {
				res.Labels = res.Labels[:k]
				res.Distances = res.Distances[:k]
			}
			return res, nil
		}
		fetch *= 2
		if fetch > h.graph.Len() {
			fetch = h.graph.Len()
		}
	}
}

func toSearchResult(query []float32, nodes []hnsw.Node[uint64], dist hnsw.DistanceFunc) SearchResult {
	res := SearchResult{Distances: make([]float32, len(nodes)), Labels: make([]uint64, len(nodes))}
	for i, n := range nodes {
		res.Labels[i] = n.Key
		res.Distances[i] = dist(hnsw.Vector(query), n.Value)
	}
	return res
}

func (h *HNSW) Close() error { return nil }
