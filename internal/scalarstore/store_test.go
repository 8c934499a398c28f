package scalarstore

import (
	"bytes"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "data.bin"), filepath.Join(dir, "index.bin"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStorePutGet(t *testing.T) {
	s := openTestStore(t)

	key := DocumentKey(42)
	val := []byte(`{"hello":"world"}`)
	if err := s.Put(key, val); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected key to exist")
	}
	if !bytes.Equal(got, val) {
		t.Fatalf("value mismatch: got %s want %s", got, val)
	}
}

func TestStoreGetMissing(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.Get(DocumentKey(1))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Fatalf("expected missing key to report ok=false")
	}
}

func TestStorePutOverwrites(t *testing.T) {
	s := openTestStore(t)

	key := DocumentKey(7)
	if err := s.Put(key, []byte("first")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(key, []byte("second")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || string(got) != "second" {
		t.Fatalf("expected overwritten value %q, got %q (ok=%v)", "second", got, ok)
	}
}

func TestStoreMultiGet(t *testing.T) {
	s := openTestStore(t)

	for i := uint64(1); i <= 3; i++ {
		if err := s.Put(DocumentKey(i), []byte{byte(i)}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	got, err := s.MultiGet([][]byte{DocumentKey(1), DocumentKey(99), DocumentKey(3)})
	if err != nil {
		t.Fatalf("MultiGet failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	if !bytes.Equal(got[0], []byte{1}) {
		t.Fatalf("unexpected result[0]: %v", got[0])
	}
	if got[1] != nil {
		t.Fatalf("expected missing key to yield nil, got %v", got[1])
	}
	if !bytes.Equal(got[2], []byte{3}) {
		t.Fatalf("unexpected result[2]: %v", got[2])
	}
}

func TestStoreIterFromStartOrdersByKey(t *testing.T) {
	s := openTestStore(t)

	ids := []uint64{5, 1, 3}
	for _, id := range ids {
		if err := s.Put(DocumentKey(id), []byte{byte(id)}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	var seen []uint64
	err := s.IterFromStart(func(key, val []byte) bool {
		seen = append(seen, uint64(key[len(key)-1]))
		return true
	})
	if err != nil {
		t.Fatalf("IterFromStart failed: %v", err)
	}
	want := []uint64{1, 3, 5}
	if len(seen) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(seen))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("unexpected order: %v", seen)
		}
	}
}

func TestStoreIterFromStartStopsEarly(t *testing.T) {
	s := openTestStore(t)
	for _, id := range []uint64{1, 2, 3} {
		if err := s.Put(DocumentKey(id), []byte{byte(id)}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	count := 0
	err := s.IterFromStart(func(key, val []byte) bool {
		count++
		return false
	})
	if err != nil {
		t.Fatalf("IterFromStart failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected iteration to stop after 1 entry, got %d", count)
	}
}

func TestStoreAllocateIDs(t *testing.T) {
	s := openTestStore(t)

	start, end, err := s.AllocateIDs(5)
	if err != nil {
		t.Fatalf("AllocateIDs failed: %v", err)
	}
	if start != 1 || end != 5 {
		t.Fatalf("expected range [1,5], got [%d,%d]", start, end)
	}

	start2, end2, err := s.AllocateIDs(3)
	if err != nil {
		t.Fatalf("AllocateIDs failed: %v", err)
	}
	if start2 != 6 || end2 != 8 {
		t.Fatalf("expected range [6,8], got [%d,%d]", start2, end2)
	}
}

func TestStoreAllocateIDsRejectsZero(t *testing.T) {
	s := openTestStore(t)
	if _, _, err := s.AllocateIDs(0); err == nil {
		t.Fatalf("expected error allocating 0 ids")
	}
}

func TestStoreAllocateIDsSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "data.bin")
	indexPath := filepath.Join(dir, "index.bin")

	s, err := Open(dataPath, indexPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, _, err := s.AllocateIDs(10); err != nil {
		t.Fatalf("AllocateIDs failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2, err := Open(dataPath, indexPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	start, end, err := s2.AllocateIDs(2)
	if err != nil {
		t.Fatalf("AllocateIDs failed: %v", err)
	}
	if start != 11 || end != 12 {
		t.Fatalf("expected range [11,12] after reopen, got [%d,%d]", start, end)
	}
}

func TestStoreWALHighWaterMark(t *testing.T) {
	s := openTestStore(t)

	v, err := s.WALLogIDHighWaterMark()
	if err != nil {
		t.Fatalf("WALLogIDHighWaterMark failed: %v", err)
	}
	if v != 0 {
		t.Fatalf("expected default high-water-mark 0, got %d", v)
	}

	if err := s.SetWALLogIDHighWaterMark(42); err != nil {
		t.Fatalf("SetWALLogIDHighWaterMark failed: %v", err)
	}
	v, err = s.WALLogIDHighWaterMark()
	if err != nil {
		t.Fatalf("WALLogIDHighWaterMark failed: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected high-water-mark 42, got %d", v)
	}
}
