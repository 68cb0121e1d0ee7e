package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/r2d2/r2d2/pkg/models"
)

// MinioStore implements Store on top of the minio-go client
type MinioStore struct {
	client   *minio.Client
	core     *minio.Core // multipart primitives
	bucket   string
	location string

	mu     sync.RWMutex
	closed bool
}

// NewMinioStore creates a minio-go backed store. Endpoint may include a
// scheme; https is assumed when it does not.
func NewMinioStore(cfg Config) (*MinioStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required for the minio driver")
	}

	host, secure, err := splitEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	lookup := minio.BucketLookupAuto
	if cfg.UsePathStyle {
		lookup = minio.BucketLookupPath
	}

	core, err := minio.NewCore(host, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       secure,
		Region:       cfg.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	return &MinioStore{
		client:   core.Client,
		core:     core,
		bucket:   cfg.Bucket,
		location: cfg.Endpoint,
	}, nil
}

func splitEndpoint(endpoint string) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, true, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	return u.Host, u.Scheme != "http", nil
}

func (m *MinioStore) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Stat returns object metadata
func (m *MinioStore) Stat(ctx context.Context, key string) (Entry, error) {
	if err := m.checkOpen(); err != nil {
		return Entry{}, err
	}

	info, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("minio stat object: %w", err)
	}
	return Entry{Key: key, Name: entryName(key), Size: info.Size}, nil
}

// Read downloads a whole object
func (m *MinioStore) Read(ctx context.Context, key string) ([]byte, error) {
	return m.get(ctx, key, minio.GetObjectOptions{})
}

// ReadRange downloads [offset, offset+length)
func (m *MinioStore) ReadRange(ctx context.Context, key string, offset, length int64) ([]byte, error) {
	if length <= 0 {
		return []byte{}, nil
	}
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(offset, offset+length-1); err != nil {
		return nil, fmt.Errorf("invalid range: %w", err)
	}
	return m.get(ctx, key, opts)
}

func (m *MinioStore) get(ctx context.Context, key string, opts minio.GetObjectOptions) ([]byte, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	obj, err := m.client.GetObject(ctx, m.bucket, key, opts)
	if err != nil {
		if isMinioNotFound(err) {
			return nil, ErrNotFound
		}
		if isMinioInvalidRange(err) {
			return []byte{}, nil
		}
		return nil, fmt.Errorf("minio get object: %w", err)
	}
	defer obj.Close()

	// GetObject is lazy, errors surface on the first read
	data, err := io.ReadAll(obj)
	if err != nil {
		if isMinioNotFound(err) {
			return nil, ErrNotFound
		}
		// Range starts at or past the end of the object
		if isMinioInvalidRange(err) {
			return []byte{}, nil
		}
		return nil, fmt.Errorf("read minio object body: %w", err)
	}
	return data, nil
}

// Write uploads data with a single PutObject
func (m *MinioStore) Write(ctx context.Context, key string, data []byte) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("minio put object: %w", err)
	}
	return nil
}

// Delete removes an object
func (m *MinioStore) Delete(ctx context.Context, key string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !isMinioNotFound(err) {
		return fmt.Errorf("minio remove object: %w", err)
	}
	return nil
}

// List returns the objects under prefix
func (m *MinioStore) List(ctx context.Context, prefix string, recursive bool) ([]Entry, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	var entries []Entry
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: recursive,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("minio list objects: %w", obj.Err)
		}
		if obj.Key == prefix && strings.HasSuffix(obj.Key, "/") {
			continue
		}
		entries = append(entries, Entry{
			Key:   obj.Key,
			Name:  entryName(obj.Key),
			Size:  obj.Size,
			IsDir: strings.HasSuffix(obj.Key, "/"),
		})
	}
	return entries, nil
}

// RemoveAll deletes every object under prefix
func (m *MinioStore) RemoveAll(ctx context.Context, prefix string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var listErr error
	toRemove := make(chan minio.ObjectInfo)
	go func() {
		defer close(toRemove)
		for obj := range objects {
			if obj.Err != nil {
				listErr = obj.Err
				return
			}
			select {
			case toRemove <- obj:
			case <-ctx.Done():
				return
			}
		}
	}()

	for rerr := range m.client.RemoveObjects(ctx, m.bucket, toRemove, minio.RemoveObjectsOptions{}) {
		if rerr.Err != nil && !isMinioNotFound(rerr.Err) {
			cancel()
			return fmt.Errorf("minio remove %s: %w", rerr.ObjectName, rerr.Err)
		}
	}
	if listErr != nil {
		return fmt.Errorf("minio list objects: %w", listErr)
	}
	return nil
}

// Location returns the configured endpoint
func (m *MinioStore) Location() string {
	return m.location
}

// Close marks the store as closed
func (m *MinioStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// CreateMultipart starts a multipart upload
func (m *MinioStore) CreateMultipart(ctx context.Context, key string) (string, error) {
	if err := m.checkOpen(); err != nil {
		return "", err
	}

	id, err := m.core.NewMultipartUpload(ctx, m.bucket, key, minio.PutObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to create multipart upload: %w", err)
	}
	return id, nil
}

// UploadPart sends one part
func (m *MinioStore) UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.ReadSeeker, size int64) (string, error) {
	if err := m.checkOpen(); err != nil {
		return "", err
	}

	part, err := m.core.PutObjectPart(ctx, m.bucket, key, uploadID, int(partNumber), body, size, minio.PutObjectPartOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to upload part %d: %w", partNumber, err)
	}
	return part.ETag, nil
}

// CompleteMultipart assembles the parts in part-number order
func (m *MinioStore) CompleteMultipart(ctx context.Context, key, uploadID string, parts []models.UploadPart) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	completed := make([]minio.CompletePart, len(parts))
	for i, p := range parts {
		completed[i] = minio.CompletePart{PartNumber: int(p.PartNumber), ETag: p.ETag}
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].PartNumber < completed[j].PartNumber
	})

	if _, err := m.core.CompleteMultipartUpload(ctx, m.bucket, key, uploadID, completed, minio.PutObjectOptions{}); err != nil {
		return fmt.Errorf("failed to complete multipart upload: %w", err)
	}
	return nil
}

// AbortMultipart discards an upload session
func (m *MinioStore) AbortMultipart(ctx context.Context, key, uploadID string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	if err := m.core.AbortMultipartUpload(ctx, m.bucket, key, uploadID); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchUpload" {
			return ErrUploadNotFound
		}
		return fmt.Errorf("failed to abort multipart upload: %w", err)
	}
	return nil
}

func isMinioNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

func isMinioInvalidRange(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "InvalidRange" || resp.StatusCode == http.StatusRequestedRangeNotSatisfiable
}
