// Package scalarstore implements C1 (Scalar Store) and C2 (Id Allocator)
// from the design: a persistent ordered byte-key/byte-value map, plus
// monotonic id allocation under an exclusive lock. It is the one
// collaborator in the system that survives a restart on its own — the
// vector index and filter index are rebuilt by WAL replay every time the
// database opens.
//
// The on-disk shape is adapted from the teacher's
// internal/storage/key_value_storage.go: a single append-only data file of
// (keySize, valSize, key, val) records, with an in-memory ordered index
// (btreeIndex, itself adapted from the teacher's BTreeIndex.go) mapping key
// to file offset. Unlike the teacher, writes here are synchronous — no
// batching ticker — because the contract promises a successful Put is
// durable, and a point Get right after reflects it.
package scalarstore

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/shibudb.org/shibuvec/internal/dberrors"
)

// Reserved metadata keys, namespaced away from document keys (which are
// always exactly 8 bytes — a big-endian u64 id — so they can never collide
// with these longer string keys).
var (
	idMaxKey = []byte("__id_max__")
	walIDKey = []byte("__wal_id__")
)

// Store is the ordered key/value map described in spec §4.1. Keys are
// opaque bytes; document keys are big-endian u64 ids, metadata keys are the
// reserved prefixes above.
type Store struct {
	mu    sync.RWMutex // guards file + index against concurrent Put/Get
	idMu  sync.Mutex   // serializes id allocation (C2)
	file  *os.File
	path  string
	index *btreeIndex
}

// Open opens (or creates) the scalar store at dataPath, with its ordered
// index persisted alongside at indexPath.
func Open(dataPath, indexPath string) (*Store, error) {
	f, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, dberrors.NewCreateError("scalar store", err)
	}
	idx, err := openBTreeIndex(indexPath)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Store{file: f, path: dataPath, index: idx}, nil
}

// Put writes key -> val, durably, before returning.
func (s *Store) Put(key, val []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(key, val)
}

func (s *Store) putLocked(key, val []byte) error {
	buf := make([]byte, 8+len(key)+len(val))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(key)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(val)))
	copy(buf[8:8+len(key)], key)
	copy(buf[8+len(key):], val)

	pos, err := s.file.Seek(0, 2)
	if err != nil {
		return dberrors.NewFileError(s.path, err)
	}
	if _, err := s.file.WriteAt(buf, pos); err != nil {
		return dberrors.NewFileError(s.path, err)
	}
	if err := s.file.Sync(); err != nil {
		return dberrors.NewFileError(s.path, err)
	}
	return s.index.Put(string(key), pos)
}

// Get returns the value for key, or ok=false if it is absent.
func (s *Store) Get(key []byte) (val []byte, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(key)
}

func (s *Store) getLocked(key []byte) ([]byte, bool, error) {
	pos, exists := s.index.Get(string(key))
	if !exists {
		return nil, false, nil
	}

	header := make([]byte, 8)
	if _, err := s.file.ReadAt(header, pos); err != nil {
		return nil, false, dberrors.NewFileError(s.path, err)
	}
	keySize := binary.LittleEndian.Uint32(header[0:4])
	valSize := binary.LittleEndian.Uint32(header[4:8])

	rest := make([]byte, int(keySize)+int(valSize))
	if _, err := s.file.ReadAt(rest, pos+8); err != nil {
		return nil, false, dberrors.NewFileError(s.path, err)
	}
	val := make([]byte, valSize)
	copy(val, rest[keySize:])
	return val, true, nil
}

// MultiGet fetches several keys, preserving order. A missing key yields a
// nil entry at the same index rather than an error.
func (s *Store) MultiGet(keys [][]byte) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([][]byte, len(keys))
	for i, k := range keys {
		val, ok, err := s.getLocked(k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = val
		}
	}
	return out, nil
}

// IterFromStart walks every key in ascending byte order, invoking fn until
// it returns false or every entry has been visited.
func (s *Store) IterFromStart(fn func(key, val []byte) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var iterErr error
	s.index.Ascend(func(key string, offset int64) bool {
		header := make([]byte, 8)
		if _, err := s.file.ReadAt(header, offset); err != nil {
			iterErr = dberrors.NewFileError(s.path, err)
			return false
		}
		keySize := binary.LittleEndian.Uint32(header[0:4])
		valSize := binary.LittleEndian.Uint32(header[4:8])
		rest := make([]byte, int(keySize)+int(valSize))
		if _, err := s.file.ReadAt(rest, offset+8); err != nil {
			iterErr = dberrors.NewFileError(s.path, err)
			return false
		}
		return fn(rest[:keySize], rest[keySize:])
	})
	return iterErr
}

// AllocateIDs implements C2: under the store's id-mutex, reads the current
// id high-water-mark (default 0), computes newMax = oldMax + n, persists it,
// and returns the contiguous range [oldMax+1, newMax]. If persistence fails
// the ids have not yet been handed to the caller — a gap in the id space is
// the acceptable cost of not leaking ids on a failed commit.
func (s *Store) AllocateIDs(n uint64) (start, end uint64, err error) {
	if n == 0 {
		return 0, 0, fmt.Errorf("allocate: n must be positive")
	}

	s.idMu.Lock()
	defer s.idMu.Unlock()

	oldMax, err := s.readU64Locked(idMaxKey)
	if err != nil {
		return 0, 0, err
	}
	newMax := oldMax + n

	s.mu.Lock()
	err = s.putLocked(idMaxKey, encodeU64(newMax))
	s.mu.Unlock()
	if err != nil {
		return 0, 0, err
	}

	return oldMax + 1, newMax, nil
}

// WALLogIDHighWaterMark returns the persisted WAL log-id high-water-mark,
// defaulting to 0 for a fresh database.
func (s *Store) WALLogIDHighWaterMark() (uint64, error) {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return s.readU64Locked(walIDKey)
}

// SetWALLogIDHighWaterMark persists the WAL log-id high-water-mark.
func (s *Store) SetWALLogIDHighWaterMark(v uint64) error {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(walIDKey, encodeU64(v))
}

func (s *Store) readU64Locked(key []byte) (uint64, error) {
	s.mu.RLock()
	val, ok, err := s.getLocked(key)
	s.mu.RUnlock()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	if len(val) != 8 {
		return 0, fmt.Errorf("corrupt high-water-mark for key %q: expected 8 bytes, got %d", key, len(val))
	}
	return binary.BigEndian.Uint64(val), nil
}

func encodeU64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// DocumentKey encodes an id as the 8-byte big-endian key documents are
// stored under.
func DocumentKey(id uint64) []byte {
	return encodeU64(id)
}

// Close releases the underlying file handles.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.index.Close(); err != nil {
		return err
	}
	return s.file.Close()
}
