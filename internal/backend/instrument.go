package backend

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/r2d2/r2d2/pkg/models"
)

// Metrics receives storage operation measurements. A nil Metrics disables
// instrumentation.
type Metrics interface {
	// ObserveOperation records an operation with its duration and outcome.
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records bytes moved by a read or write operation.
	RecordBytes(operation string, bytes int64)

	// RecordActiveUpload adjusts the number of open multipart sessions.
	RecordActiveUpload(delta int)

	// RecordAbortedUpload counts a multipart session that was aborted.
	RecordAbortedUpload()
}

// Instrument wraps store so every call is reported to m. Returns store
// unchanged when m is nil.
func Instrument(store Store, m Metrics) Store {
	if m == nil {
		return store
	}
	return &instrumented{store: store, metrics: m}
}

type instrumented struct {
	store   Store
	metrics Metrics
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	i.metrics.ObserveOperation(op, time.Since(start), err)
}

func (i *instrumented) Stat(ctx context.Context, key string) (Entry, error) {
	start := time.Now()
	e, err := i.store.Stat(ctx, key)
	i.observe("stat", start, notFoundIsSuccess(err))
	return e, err
}

func (i *instrumented) Read(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := i.store.Read(ctx, key)
	i.observe("read", start, notFoundIsSuccess(err))
	if err == nil {
		i.metrics.RecordBytes("read", int64(len(data)))
	}
	return data, err
}

func (i *instrumented) ReadRange(ctx context.Context, key string, offset, length int64) ([]byte, error) {
	start := time.Now()
	data, err := i.store.ReadRange(ctx, key, offset, length)
	i.observe("read_range", start, notFoundIsSuccess(err))
	if err == nil {
		i.metrics.RecordBytes("read", int64(len(data)))
	}
	return data, err
}

func (i *instrumented) Write(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	err := i.store.Write(ctx, key, data)
	i.observe("write", start, err)
	if err == nil {
		i.metrics.RecordBytes("write", int64(len(data)))
	}
	return err
}

func (i *instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := i.store.Delete(ctx, key)
	i.observe("delete", start, err)
	return err
}

func (i *instrumented) List(ctx context.Context, prefix string, recursive bool) ([]Entry, error) {
	start := time.Now()
	entries, err := i.store.List(ctx, prefix, recursive)
	i.observe("list", start, err)
	return entries, err
}

func (i *instrumented) RemoveAll(ctx context.Context, prefix string) error {
	start := time.Now()
	err := i.store.RemoveAll(ctx, prefix)
	i.observe("remove_all", start, err)
	return err
}

func (i *instrumented) Location() string {
	return i.store.Location()
}

func (i *instrumented) Close() error {
	return i.store.Close()
}

func (i *instrumented) CreateMultipart(ctx context.Context, key string) (string, error) {
	start := time.Now()
	id, err := i.store.CreateMultipart(ctx, key)
	i.observe("create_multipart", start, err)
	if err == nil {
		i.metrics.RecordActiveUpload(1)
	}
	return id, err
}

func (i *instrumented) UploadPart(ctx context.Context, key, uploadID string, partNumber int32, body io.ReadSeeker, size int64) (string, error) {
	start := time.Now()
	etag, err := i.store.UploadPart(ctx, key, uploadID, partNumber, body, size)
	i.observe("upload_part", start, err)
	if err == nil {
		i.metrics.RecordBytes("upload_part", size)
	}
	return etag, err
}

func (i *instrumented) CompleteMultipart(ctx context.Context, key, uploadID string, parts []models.UploadPart) error {
	start := time.Now()
	err := i.store.CompleteMultipart(ctx, key, uploadID, parts)
	i.observe("complete_multipart", start, err)
	if err == nil {
		i.metrics.RecordActiveUpload(-1)
	}
	return err
}

func (i *instrumented) AbortMultipart(ctx context.Context, key, uploadID string) error {
	start := time.Now()
	err := i.store.AbortMultipart(ctx, key, uploadID)
	i.observe("abort_multipart", start, err)
	if err == nil {
		i.metrics.RecordActiveUpload(-1)
		i.metrics.RecordAbortedUpload()
	}
	return err
}

// notFoundIsSuccess keeps expected misses out of the error counters
func notFoundIsSuccess(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
