package vectorindex

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
)

func TestFlatInsertAndSearch(t *testing.T) {
	dim := 4
	idx, err := NewFlat(dim, MetricL2)
	if err != nil {
		t.Fatalf("NewFlat failed: %v", err)
	}
	defer idx.Close()

	rows := []float32{
		0, 0, 0, 0,
		1, 1, 1, 1,
		5, 5, 5, 5,
	}
	labels := []uint64{10, 11, 12}
	if err := idx.Insert(rows, labels, InsertHints{}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	res, err := idx.Search([]float32{0, 0, 0, 0}, 2, SearchHints{}, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(res.Labels) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res.Labels))
	}
	if res.Labels[0] != 10 {
		t.Fatalf("expected closest label 10, got %d", res.Labels[0])
	}
}

func TestFlatInnerProductRanksLargestDotFirst(t *testing.T) {
	dim := 2
	idx, err := NewFlat(dim, MetricIP)
	if err != nil {
		t.Fatalf("NewFlat failed: %v", err)
	}
	defer idx.Close()

	rows := []float32{
		1, 0,
		10, 0,
		0, 1,
	}
	labels := []uint64{1, 2, 3}
	if err := idx.Insert(rows, labels, InsertHints{}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	res, err := idx.Search([]float32{1, 0}, 3, SearchHints{}, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(res.Labels) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res.Labels))
	}
	if res.Labels[0] != 2 {
		t.Fatalf("expected largest inner product (label 2) ranked first, got %v", res.Labels)
	}
}

func TestFlatSearchEmptyIndexReturnsEmpty(t *testing.T) {
	idx, err := NewFlat(4, MetricL2)
	if err != nil {
		t.Fatalf("NewFlat failed: %v", err)
	}
	defer idx.Close()

	res, err := idx.Search([]float32{0, 0, 0, 0}, 5, SearchHints{}, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(res.Labels) != 0 {
		t.Fatalf("expected empty result on empty index, got %v", res.Labels)
	}
}

func TestFlatSearchClampsKToNtotal(t *testing.T) {
	idx, err := NewFlat(2, MetricL2)
	if err != nil {
		t.Fatalf("NewFlat failed: %v", err)
	}
	defer idx.Close()

	if err := idx.Insert([]float32{0, 0, 1, 1}, []uint64{1, 2}, InsertHints{}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	res, err := idx.Search([]float32{0, 0}, 10, SearchHints{}, nil)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(res.Labels) != 2 {
		t.Fatalf("expected clamp to ntotal=2, got %d", len(res.Labels))
	}
}

func TestFlatSearchRespectsIDRestriction(t *testing.T) {
	idx, err := NewFlat(2, MetricL2)
	if err != nil {
		t.Fatalf("NewFlat failed: %v", err)
	}
	defer idx.Close()

	if err := idx.Insert([]float32{0, 0, 1, 1, 2, 2}, []uint64{1, 2, 3}, InsertHints{}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	restriction := roaring.New()
	restriction.Add(3)

	res, err := idx.Search([]float32{0, 0}, 2, SearchHints{}, restriction)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(res.Labels) != 1 || res.Labels[0] != 3 {
		t.Fatalf("expected only restricted id 3, got %v", res.Labels)
	}
}

func TestFlatInsertRejectsMismatchedLabels(t *testing.T) {
	idx, err := NewFlat(4, MetricL2)
	if err != nil {
		t.Fatalf("NewFlat failed: %v", err)
	}
	defer idx.Close()

	err = idx.Insert(make([]float32, 8), []uint64{1}, InsertHints{})
	if err == nil {
		t.Fatalf("expected error for row/label count mismatch")
	}
}
