package backend

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/r2d2/r2d2/pkg/models"
)

// MemoryStore is an in-process Store used by tests and dry runs
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	uploads map[string]map[int32][]byte
	closed  bool
}

// NewMemory creates an empty in-memory store
func NewMemory() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		uploads: make(map[string]map[int32][]byte),
	}
}

func (m *MemoryStore) Stat(ctx context.Context, key string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Entry{}, ErrClosed
	}

	data, ok := m.objects[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return Entry{Key: key, Name: entryName(key), Size: int64(len(data))}, nil
}

func (m *MemoryStore) Read(ctx context.Context, key string) ([]byte, error) {
	return m.ReadRange(ctx, key, 0, -1)
}

// ReadRange returns a copy of [offset, offset+length). A negative length
// reads to the end.
func (m *MemoryStore) ReadRange(ctx context.Context, key string, offset, length int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	data, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	size := int64(len(data))
	if length < 0 {
		length = size
	}
	start, end := clampRange(size, offset, length)
	out := make([]byte, end-start)
	copy(out, data[start:end])
	return out, nil
}

func (m *MemoryStore) Write(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	delete(m.objects, key)
	return nil
}

// List returns entries sorted by key
func (m *MemoryStore) List(ctx context.Context, prefix string, recursive bool) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	var entries []Entry
	seenDirs := make(map[string]bool)
	for key, data := range m.objects {
		child, isDir, ok := childOf(prefix, key)
		if !ok {
			continue
		}
		if isDir && !recursive {
			dirKey := prefix + child + "/"
			if !seenDirs[dirKey] {
				seenDirs[dirKey] = true
				entries = append(entries, Entry{Key: dirKey, Name: child, IsDir: true})
			}
			continue
		}
		entries = append(entries, Entry{Key: key, Name: entryName(key), Size: int64(len(data))})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func (m *MemoryStore) RemoveAll(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			delete(m.objects, key)
		}
	}
	return nil
}

func (m *MemoryStore) Location() string {
	return "memory://"
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Len returns the number of stored objects
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// PendingUploads returns the number of multipart sessions neither completed
// nor aborted.
func (m *MemoryStore) PendingUploads() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.uploads)
}

func (m *MemoryStore) CreateMultipart(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}

	id := models.RandomID().Hex()
	m.uploads[id] = make(map[int32][]byte)
	return id, nil
}

func (m *MemoryStore) UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.ReadSeeker, size int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// Read outside the lock, parts arrive concurrently
	data, err := io.ReadAll(io.LimitReader(body, size))
	if err != nil {
		return "", fmt.Errorf("failed to read part %d: %w", partNumber, err)
	}
	if int64(len(data)) != size {
		return "", fmt.Errorf("part %d: short body, got %d of %d bytes", partNumber, len(data), size)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}
	parts, ok := m.uploads[uploadID]
	if !ok {
		return "", ErrUploadNotFound
	}
	parts[partNumber] = data
	return models.HashID(data).Hex(), nil
}

func (m *MemoryStore) CompleteMultipart(ctx context.Context, key, uploadID string, parts []models.UploadPart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	uploaded, ok := m.uploads[uploadID]
	if !ok {
		return ErrUploadNotFound
	}

	sorted := append([]models.UploadPart(nil), parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	var object []byte
	for _, p := range sorted {
		data, ok := uploaded[p.PartNumber]
		if !ok {
			return fmt.Errorf("missing part %d", p.PartNumber)
		}
		if models.HashID(data).Hex() != p.ETag {
			return fmt.Errorf("part %d: etag mismatch", p.PartNumber)
		}
		object = append(object, data...)
	}

	m.objects[key] = object
	delete(m.uploads, uploadID)
	return nil
}

func (m *MemoryStore) AbortMultipart(ctx context.Context, key, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.uploads[uploadID]; !ok {
		return ErrUploadNotFound
	}
	delete(m.uploads, uploadID)
	return nil
}
