// Package wal implements the write-ahead log that makes ShibuVec upserts
// crash-consistent. It mirrors the teacher's wal.go shape (a single
// mutex-guarded *os.File with append and replay methods; there is no
// Clear here) but trades the teacher's
// 9-byte binary record for line-delimited JSON, and opens the file for
// append rather than read-write-from-zero: the teacher's OpenWAL used
// os.O_RDWR without O_APPEND, which meant every WriteEntry raced its own
// write offset against concurrent Replay() seeks. ShibuVec's WAL is
// append-only end to end.
package wal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/shibudb.org/shibuvec/internal/dberrors"
)

// SchemaVersion is stamped on every record so a future reader can tell old
// and new record shapes apart.
const SchemaVersion = "1"

// Operation tags the intent recorded in a WAL line.
type Operation string

const (
	OpUpsert Operation = "Upsert"
	OpDelete Operation = "Delete"
)

// Record is one line of the WAL: a monotonic log-id, the schema version,
// the operation tag, and its JSON-encoded payload.
type Record struct {
	LogID     uint64    `json:"log_id"`
	Version   string    `json:"version"`
	Operation Operation `json:"operation"`
	Data      []byte    `json:"data"`
}

// WAL is an append-only log of serialized operations. One WAL backs one
// database; the façade is its single writer.
type WAL struct {
	mu     sync.Mutex
	file   *os.File
	path   string
	nextID uint64 // last log-id assigned (or the seed); Append uses nextID+1
}

// Open opens (creating if absent) the WAL file at path for append, and
// seeds the log-id counter from startLogID — the value recovered from the
// scalar store's WAL high-water-mark key, or 0 for a fresh database.
func Open(path string, startLogID uint64) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, dberrors.NewCreateError("wal", err)
	}
	return &WAL{file: f, path: path, nextID: startLogID}, nil
}

// Append serializes op and writes one line, stamped with the next log-id.
// It flushes to the OS before returning. The WAL append must happen before
// any other mutation for the same operation — if this fails, the caller
// must not touch any other state.
func (w *WAL) Append(op Operation, payload []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	logID := w.nextID + 1
	rec := Record{LogID: logID, Version: SchemaVersion, Operation: op, Data: payload}

	line, err := json.Marshal(rec)
	if err != nil {
		return 0, dberrors.NewDataError("encode wal record", err)
	}
	line = append(line, '\n')

	if _, err := w.file.Write(line); err != nil {
		return 0, dberrors.NewFileError(w.path, err)
	}
	if err := w.file.Sync(); err != nil {
		return 0, dberrors.NewFileError(w.path, err)
	}

	w.nextID = logID
	return logID, nil
}

// NextLogID returns the log-id that would be assigned to the next Append.
func (w *WAL) NextLogID() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextID + 1
}

// Iterate opens the WAL for sequential read from the beginning and invokes
// fn for every record in log-id order. Iteration stops at the first fn
// error or the first malformed line, surfacing it to the caller — a
// WAL-replay error aborts recovery, it is never skipped.
func (w *WAL) Iterate(fn func(Record) error) error {
	w.mu.Lock()
	f, err := os.Open(w.path)
	w.mu.Unlock()
	if err != nil {
		return dberrors.NewFileError(w.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return dberrors.NewDataError(fmt.Sprintf("wal line %d", lineNo), err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return dberrors.NewFileError(w.path, err)
	}
	return nil
}

// Close closes the underlying file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
