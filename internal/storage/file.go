package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// PageFileName is the name of the page file inside a store directory.
const PageFileName = "pages.arb"

// recordLenSize is the length prefix written before every record.
const recordLenSize = 4

// FileBackend appends records to a single file behind a two-slot header.
// Record keys are file offsets.
type FileBackend struct {
	mu     sync.RWMutex
	file   *os.File
	header *FileHeader
	end    int64 // next append offset
	sync   bool
	closed bool
}

// OpenFileBackend opens the page file in dir, creating it when create is
// set.
func OpenFileBackend(dir string, create, syncWrites bool) (*FileBackend, error) {
	path := filepath.Join(dir, PageFileName)
	if create {
		return createFileBackend(path, syncWrites)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrStoreMissing, path)
		}
		return nil, err
	}
	region := make([]byte, HeaderRegionSize)
	if _, err := f.ReadAt(region, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("read header: %w", err)
	}
	header, err := ReadHeader(region)
	if err != nil {
		f.Close()
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileBackend{file: f, header: header, end: info.Size(), sync: syncWrites}, nil
}

func createFileBackend(path string, syncWrites bool) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrStoreExists, path)
		}
		return nil, err
	}
	header := NewFileHeader(uuid.New())
	region := make([]byte, HeaderRegionSize)
	copy(region, header.Serialize())
	if _, err := f.WriteAt(region, 0); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, err
	}
	return &FileBackend{file: f, header: header, end: HeaderRegionSize, sync: syncWrites}, nil
}

// ID implements Backend.
func (b *FileBackend) ID() uuid.UUID {
	return b.header.StoreID
}

// Append implements Backend.
func (b *FileBackend) Append(record []byte) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}

	buf := make([]byte, recordLenSize+len(record))
	binary.LittleEndian.PutUint32(buf, uint32(len(record)))
	copy(buf[recordLenSize:], record)

	key := b.end
	if _, err := b.file.WriteAt(buf, key); err != nil {
		return 0, err
	}
	b.end += int64(len(buf))
	return key, nil
}

// Read implements Backend.
func (b *FileBackend) Read(key int64) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	if key < HeaderRegionSize || key+recordLenSize > b.end {
		return nil, fmt.Errorf("%w: offset %d", ErrNotFound, key)
	}

	var lenBuf [recordLenSize]byte
	if _, err := b.file.ReadAt(lenBuf[:], key); err != nil {
		return nil, err
	}
	size := int64(binary.LittleEndian.Uint32(lenBuf[:]))
	if key+recordLenSize+size > b.end {
		return nil, fmt.Errorf("%w: record at %d overruns file", ErrCorrupt, key)
	}
	record := make([]byte, size)
	if _, err := b.file.ReadAt(record, key+recordLenSize); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return record, nil
}

// Head implements Backend.
func (b *FileBackend) Head() (Head, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return Head{}, ErrClosed
	}
	return Head{UberKey: b.header.UberKey, Revision: b.header.Revision}, nil
}

// CommitHead implements Backend. Records are synced before the header
// is written, so a crash never exposes a head whose pages are missing.
func (b *FileBackend) CommitHead(head Head) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	if b.sync {
		if err := b.file.Sync(); err != nil {
			return fmt.Errorf("sync records: %w", err)
		}
	}

	next := *b.header
	next.Generation++
	next.UberKey = head.UberKey
	next.Revision = head.Revision
	buf := next.Serialize()
	if _, err := b.file.WriteAt(buf, int64(next.Slot()*HeaderSlotSize)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if b.sync {
		if err := b.file.Sync(); err != nil {
			return fmt.Errorf("sync header: %w", err)
		}
	}
	b.header = &next
	return nil
}

// Close implements Backend.
func (b *FileBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.file.Close()
}
