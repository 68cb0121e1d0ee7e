package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/r2d2/r2d2/pkg/models"
)

// multipartDir holds in-flight multipart parts below the store root
const multipartDir = ".multipart"

// tmpSuffix marks files still being written
const tmpSuffix = ".r2d2-tmp"

// LocalStore implements Store on the local filesystem
type LocalStore struct {
	basePath string
}

// NewLocalStore creates a store rooted at basePath
func NewLocalStore(basePath string) (*LocalStore, error) {
	if basePath == "" {
		return nil, errors.New("local path is required")
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backend directory: %w", err)
	}

	return &LocalStore{
		basePath: basePath,
	}, nil
}

// Stat returns file metadata
func (l *LocalStore) Stat(ctx context.Context, key string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	info, err := os.Stat(l.keyToPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	if info.IsDir() {
		return Entry{Key: key, Name: entryName(key), IsDir: true}, nil
	}
	return Entry{Key: key, Name: entryName(key), Size: info.Size()}, nil
}

// Read returns the whole file
func (l *LocalStore) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(l.keyToPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// ReadRange reads [offset, offset+length) from the file
func (l *LocalStore) ReadRange(ctx context.Context, key string, offset, length int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(l.keyToPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	start, end := clampRange(info.Size(), offset, length)
	buf := make([]byte, end-start)
	if _, err := file.ReadAt(buf, start); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read range: %w", err)
	}
	return buf, nil
}

// Write stores data at key, creating parent directories
func (l *LocalStore) Write(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := l.keyToPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	// Write to a temp file and rename so readers never see partial content
	tmp := path + tmpSuffix
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write data: %w", err)
	}
	return nil
}

// Delete removes the file at key
func (l *LocalStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := os.Remove(l.keyToPath(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List walks the directory for prefix
func (l *LocalStore) List(ctx context.Context, prefix string, recursive bool) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	walkRoot := l.basePath
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		walkRoot = l.keyToPath(prefix[:i])
	}

	var entries []Entry
	err := filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == l.basePath {
			return nil
		}
		if d.IsDir() && d.Name() == multipartDir {
			return filepath.SkipDir
		}
		if !d.IsDir() && strings.HasSuffix(path, tmpSuffix) {
			return nil
		}

		relPath, err := filepath.Rel(l.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(relPath)
		if d.IsDir() {
			key += "/"
		}

		child, isDir, ok := childOf(prefix, key)
		if !ok {
			return nil
		}

		if recursive {
			if d.IsDir() {
				return nil
			}
		} else if isDir {
			// Only the direct child directory is reported
			if strings.HasSuffix(key, "/") && child+"/" == key[len(prefix):] {
				entries = append(entries, Entry{Key: key, Name: child, IsDir: true})
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, Entry{Key: key, Name: entryName(key), Size: info.Size()})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	return entries, nil
}

// RemoveAll deletes every file under prefix
func (l *LocalStore) RemoveAll(ctx context.Context, prefix string) error {
	entries, err := l.List(ctx, prefix, true)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := l.Delete(ctx, e.Key); err != nil {
			return err
		}
	}
	return nil
}

// Location returns the root directory
func (l *LocalStore) Location() string {
	return l.basePath
}

// Close releases resources
func (l *LocalStore) Close() error {
	return nil
}

// CreateMultipart allocates a parts directory for a new upload
func (l *LocalStore) CreateMultipart(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := models.RandomID().Hex()
	if err := os.MkdirAll(l.uploadDir(id), 0755); err != nil {
		return "", fmt.Errorf("failed to create multipart upload: %w", err)
	}
	return id, nil
}

// UploadPart stores one part; the etag is the sha256 of its content
func (l *LocalStore) UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.ReadSeeker, size int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := l.uploadDir(uploadID)
	if _, err := os.Stat(dir); err != nil {
		return "", ErrUploadNotFound
	}

	data, err := io.ReadAll(io.LimitReader(body, size))
	if err != nil {
		return "", fmt.Errorf("failed to read part %d: %w", partNumber, err)
	}
	if int64(len(data)) != size {
		return "", fmt.Errorf("part %d: short body, got %d of %d bytes", partNumber, len(data), size)
	}

	if err := os.WriteFile(filepath.Join(dir, strconv.Itoa(int(partNumber))), data, 0644); err != nil {
		return "", fmt.Errorf("failed to upload part %d: %w", partNumber, err)
	}
	return models.HashID(data).Hex(), nil
}

// CompleteMultipart concatenates the parts into the final object
func (l *LocalStore) CompleteMultipart(ctx context.Context, key, uploadID string, parts []models.UploadPart) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := l.uploadDir(uploadID)
	if _, err := os.Stat(dir); err != nil {
		return ErrUploadNotFound
	}

	sorted := append([]models.UploadPart(nil), parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	path := l.keyToPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	out, err := os.Create(path + tmpSuffix)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	for _, p := range sorted {
		data, err := os.ReadFile(filepath.Join(dir, strconv.Itoa(int(p.PartNumber))))
		if err != nil {
			out.Close()
			os.Remove(out.Name())
			return fmt.Errorf("missing part %d: %w", p.PartNumber, err)
		}
		if etag := models.HashID(data).Hex(); etag != p.ETag {
			out.Close()
			os.Remove(out.Name())
			return fmt.Errorf("part %d: etag mismatch", p.PartNumber)
		}
		if _, err := out.Write(data); err != nil {
			out.Close()
			os.Remove(out.Name())
			return fmt.Errorf("failed to write data: %w", err)
		}
	}

	if err := out.Close(); err != nil {
		return err
	}
	if err := os.Rename(out.Name(), path); err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

// AbortMultipart removes the parts directory
func (l *LocalStore) AbortMultipart(ctx context.Context, key, uploadID string) error {
	dir := l.uploadDir(uploadID)
	if _, err := os.Stat(dir); err != nil {
		return ErrUploadNotFound
	}
	return os.RemoveAll(dir)
}

func (l *LocalStore) uploadDir(uploadID string) string {
	return filepath.Join(l.basePath, multipartDir, filepath.Base(uploadID))
}

// keyToPath converts a key to a filesystem path
func (l *LocalStore) keyToPath(key string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(key))
}
