package scalarstore

import (
	"encoding/binary"
	"os"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/google/btree"

	"github.com/shibudb.org/shibuvec/internal/dberrors"
)

// btreeIndex is the in-memory ordered key -> file-offset map backing the
// scalar store, adapted from the teacher's internal/index/BTreeIndex.go: a
// google/btree tree kept in sync with an mmap-backed append log of
// (keySize, offset, key) entries so the index itself survives a restart
// without replaying the whole data file.
type btreeIndex struct {
	lock        sync.RWMutex
	mmapLock    sync.Mutex
	tree        *btree.BTree
	file        *os.File
	mmapData    []byte
	writeOffset int
}

type indexItem struct {
	key    string
	offset int64
}

func (i indexItem) Less(other btree.Item) bool {
	return i.key < other.(indexItem).key
}

const initialIndexFileSize = 4096

func openBTreeIndex(path string) (*btreeIndex, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, dberrors.NewCreateError("scalar index", err)
	}

	size, err := f.Seek(0, 2)
	if err != nil {
		return nil, dberrors.NewCreateError("scalar index", err)
	}
	if size == 0 {
		size = initialIndexFileSize
		if err := f.Truncate(size); err != nil {
			return nil, dberrors.NewCreateError("scalar index", err)
		}
	}

	mmapData, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return nil, dberrors.NewCreateError("scalar index", err)
	}

	idx := &btreeIndex{
		tree:     btree.New(2),
		file:     f,
		mmapData: mmapData,
	}
	idx.writeOffset = idx.loadFromMmap()
	return idx, nil
}

func (idx *btreeIndex) loadFromMmap() int {
	idx.lock.Lock()
	idx.mmapLock.Lock()
	defer idx.lock.Unlock()
	defer idx.mmapLock.Unlock()

	offset := 0
	for offset+12 <= len(idx.mmapData) {
		keySize := binary.LittleEndian.Uint32(idx.mmapData[offset : offset+4])
		pos := binary.LittleEndian.Uint64(idx.mmapData[offset+4 : offset+12])

		if keySize == 0 && pos == 0 {
			break // unwritten tail
		}
		keyStart := offset + 12
		if keyStart+int(keySize) > len(idx.mmapData) {
			break
		}

		key := string(idx.mmapData[keyStart : keyStart+int(keySize)])
		offset = keyStart + int(keySize)

		idx.tree.ReplaceOrInsert(indexItem{key: key, offset: int64(pos)})
	}
	return offset
}

func (idx *btreeIndex) Put(key string, offset int64) error {
	idx.lock.Lock()
	defer idx.lock.Unlock()

	idx.tree.ReplaceOrInsert(indexItem{key: key, offset: offset})
	return idx.appendEntry(key, offset)
}

func (idx *btreeIndex) Get(key string) (int64, bool) {
	idx.lock.RLock()
	defer idx.lock.RUnlock()

	item := idx.tree.Get(indexItem{key: key})
	if item == nil {
		return 0, false
	}
	return item.(indexItem).offset, true
}

// Ascend walks keys in ascending order, calling fn(key, offset) until it
// returns false.
func (idx *btreeIndex) Ascend(fn func(key string, offset int64) bool) {
	idx.lock.RLock()
	defer idx.lock.RUnlock()

	idx.tree.Ascend(func(it btree.Item) bool {
		item := it.(indexItem)
		return fn(item.key, item.offset)
	})
}

func (idx *btreeIndex) appendEntry(key string, offset int64) error {
	keyBytes := []byte(key)
	entrySize := 12 + len(keyBytes)

	idx.mmapLock.Lock()
	defer idx.mmapLock.Unlock()

	if idx.writeOffset+entrySize > len(idx.mmapData) {
		newSize := int64(len(idx.mmapData)*2 + entrySize + initialIndexFileSize)
		if err := syscall.Munmap(idx.mmapData); err != nil {
			return dberrors.NewFileError("scalar index", err)
		}
		if err := idx.file.Truncate(newSize); err != nil {
			return dberrors.NewFileError("scalar index", err)
		}
		mmapData, err := syscall.Mmap(int(idx.file.Fd()), 0, int(newSize), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
		if err != nil {
			return dberrors.NewFileError("scalar index", err)
		}
		idx.mmapData = mmapData
	}

	off := idx.writeOffset
	binary.LittleEndian.PutUint32(idx.mmapData[off:off+4], uint32(len(keyBytes)))
	binary.LittleEndian.PutUint64(idx.mmapData[off+4:off+12], uint64(offset))
	copy(idx.mmapData[off+12:off+12+len(keyBytes)], keyBytes)
	idx.writeOffset += entrySize

	return unix.Msync(idx.mmapData, unix.MS_SYNC)
}

func (idx *btreeIndex) Close() error {
	idx.mmapLock.Lock()
	defer idx.mmapLock.Unlock()
	if err := syscall.Munmap(idx.mmapData); err != nil {
		return err
	}
	return idx.file.Close()
}
