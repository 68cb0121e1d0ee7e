// Package backend defines the object-storage operator consumed by the storage
// adapter and the upload engine, together with its drivers.
//
// Keys are slash-separated paths relative to the bucket (or root directory).
// Every call takes a context; drivers are safe for concurrent use.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/r2d2/r2d2/pkg/models"
)

var (
	// ErrNotFound is returned when a requested object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrUploadNotFound is returned for an unknown multipart upload id.
	ErrUploadNotFound = errors.New("multipart upload not found")

	// ErrClosed is returned when operations are attempted on a closed store.
	ErrClosed = errors.New("store is closed")
)

// Entry describes one listed object or directory
type Entry struct {
	Key   string // Full key relative to the store root
	Name  string // Last path segment of Key
	Size  int64  // Content length, 0 for directories
	IsDir bool
}

// Operator is the asynchronous object-storage surface.
type Operator interface {
	// Stat returns metadata for a single object, or ErrNotFound.
	Stat(ctx context.Context, key string) (Entry, error)

	// Read returns the whole object.
	Read(ctx context.Context, key string) ([]byte, error)

	// ReadRange returns the half-open byte range [offset, offset+length).
	// Ranges past the end of the object are truncated.
	ReadRange(ctx context.Context, key string, offset, length int64) ([]byte, error)

	// Write stores data at key, replacing any previous object.
	Write(ctx context.Context, key string, data []byte) error

	// Delete removes the object at key. Deleting an absent object succeeds.
	Delete(ctx context.Context, key string) error

	// List returns the entries under prefix. When recursive is false only
	// direct children are returned and sub-directories appear with IsDir set.
	List(ctx context.Context, prefix string, recursive bool) ([]Entry, error)

	// RemoveAll deletes every object under prefix ("" means everything).
	RemoveAll(ctx context.Context, prefix string) error

	// Location describes where the store lives (endpoint URL or directory).
	Location() string

	// Close releases backend resources
	Close() error
}

// Multipart is the multipart upload surface.
type Multipart interface {
	// CreateMultipart starts an upload session and returns its id.
	CreateMultipart(ctx context.Context, key string) (string, error)

	// UploadPart sends one part and returns the store's integrity tag for it.
	// Part numbers start at 1.
	UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.ReadSeeker, size int64) (string, error)

	// CompleteMultipart assembles the object from every uploaded part.
	CompleteMultipart(ctx context.Context, key, uploadID string, parts []models.UploadPart) error

	// AbortMultipart discards an upload session and its parts.
	AbortMultipart(ctx context.Context, key, uploadID string) error
}

// Store is an operator that also supports multipart uploads.
type Store interface {
	Operator
	Multipart
}

// Config selects and configures a driver
type Config struct {
	Driver          string // s3, minio, local, memory
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	LocalPath       string // Root directory for the local driver
	MaxBandwidth    int64  // Upload bytes/sec, 0 = unlimited
}

// New creates the store selected by cfg.Driver
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "s3":
		return NewS3Store(ctx, cfg)
	case "minio":
		return NewMinioStore(cfg)
	case "local":
		return NewLocalStore(cfg.LocalPath)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// entryName returns the last segment of a key, ignoring a trailing slash
func entryName(key string) string {
	return path.Base(key)
}

// childOf reports whether key is below prefix and returns the direct child
// name and whether that child is a directory. A file key equal to prefix is
// its own child.
func childOf(prefix, key string) (child string, isDir bool, ok bool) {
	if !strings.HasPrefix(key, prefix) {
		return "", false, false
	}
	rest := key[len(prefix):]
	if rest == "" {
		if key == "" || strings.HasSuffix(key, "/") {
			return "", false, false
		}
		return entryName(key), false, true
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i], true, true
	}
	return rest, false, true
}

// clampRange limits [offset, offset+length) to an object of the given size
func clampRange(size, offset, length int64) (int64, int64) {
	if offset >= size {
		return size, size
	}
	end := offset + length
	if end > size || end < offset {
		end = size
	}
	return offset, end
}
