package wal

import (
	"path/filepath"
	"testing"
)

func TestWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test_wal.log")

	w, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	t.Run("AppendAssignsMonotonicLogIDs", func(t *testing.T) {
		id1, err := w.Append(OpUpsert, []byte(`{"rows":1}`))
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if id1 != 1 {
			t.Fatalf("expected first log-id 1, got %d", id1)
		}
		id2, err := w.Append(OpUpsert, []byte(`{"rows":2}`))
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if id2 != 2 {
			t.Fatalf("expected second log-id 2, got %d", id2)
		}
	})

	t.Run("IterateReturnsRecordsInOrder", func(t *testing.T) {
		var gotIDs []uint64
		err := w.Iterate(func(rec Record) error {
			gotIDs = append(gotIDs, rec.LogID)
			if rec.Version != SchemaVersion {
				t.Errorf("unexpected version: %q", rec.Version)
			}
			if rec.Operation != OpUpsert {
				t.Errorf("unexpected operation: %q", rec.Operation)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Iterate failed: %v", err)
		}
		if len(gotIDs) != 2 || gotIDs[0] != 1 || gotIDs[1] != 2 {
			t.Fatalf("unexpected log-id sequence: %v", gotIDs)
		}
	})

	t.Run("ReopenResumesLogIDFromSeed", func(t *testing.T) {
		w2, err := Open(path, 2)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer w2.Close()
		if next := w2.NextLogID(); next != 3 {
			t.Fatalf("expected next log-id 3, got %d", next)
		}
	})
}

func TestWALIteratePropagatesPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload_wal.log")
	w, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	payload := []byte(`{"dim":3,"rows":2}`)
	if _, err := w.Append(OpUpsert, payload); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	var got []byte
	err = w.Iterate(func(rec Record) error {
		got = rec.Data
		return nil
	})
	if err != nil {
		t.Fatalf("Iterate failed: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload mismatch: got %s want %s", got, payload)
	}
}
