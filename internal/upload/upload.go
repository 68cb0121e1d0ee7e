// Package upload sends local files to the object store as multipart uploads.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/r2d2/r2d2/internal/apperr"
	"github.com/r2d2/r2d2/internal/backend"
	"github.com/r2d2/r2d2/internal/logging"
	"github.com/r2d2/r2d2/internal/progress"
	"github.com/r2d2/r2d2/pkg/models"
)

// SpinnerInterval is how often the progress line is redrawn while parts
// are in flight
const SpinnerInterval = progress.RedrawInterval

// Options configures an Uploader
type Options struct {
	ChunkSize      int64  // Bytes per part, DefaultChunkSize when zero
	MaxChunks      int    // Part limit, MaxChunks when zero
	Concurrency    int    // Parts in flight, unbounded when zero
	PublicDomain   string // Domain serving the bucket, used to build the result URL
	AbortOnFailure bool   // Abort the session when a part or the completion fails
	Bucket         string // Shown in error hints
}

// Result describes a finished upload
type Result struct {
	Key   string
	URL   string // Empty when no public domain is configured
	Size  int64
	Parts []models.UploadPart
}

// Location returns the public URL, or the key when there is none
func (r *Result) Location() string {
	if r.URL != "" {
		return r.URL
	}
	return r.Key
}

// Uploader runs multipart uploads against a store
type Uploader struct {
	store backend.Multipart
	bars  *progress.Bars
	opts  Options
}

// New creates an Uploader. A nil bars draws nothing.
func New(store backend.Multipart, bars *progress.Bars, opts Options) *Uploader {
	if bars == nil {
		bars = progress.NoBars()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.MaxChunks <= 0 {
		opts.MaxChunks = MaxChunks
	}
	return &Uploader{store: store, bars: bars, opts: opts}
}

// Upload sends the file at localPath to key. An empty key uses the file's
// base name.
func (u *Uploader) Upload(ctx context.Context, localPath, key string) (*Result, error) {
	if key == "" {
		key = filepath.Base(localPath)
	}

	info, err := os.Stat(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.User("File `{path}` does not exist.").With("path", localPath)
		}
		return nil, apperr.Wrap(apperr.KindUser, "Cannot access `{path}`", err).With("path", localPath)
	}
	if info.IsDir() {
		return nil, apperr.User("`{path}` is a directory.").With("path", localPath)
	}

	plan, err := NewChunkPlan(info.Size(), u.opts.ChunkSize, u.opts.MaxChunks)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(localPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUser, "Cannot open `{path}`", err).With("path", localPath)
	}
	defer file.Close()

	bar := u.bars.Bytes("uploading")
	bar.SetTitle(key)
	bar.SetLength(uint64(plan.FileSize))
	stop := bar.Drive(SpinnerInterval)
	defer stop()

	parts, err := u.send(ctx, file, key, plan, bar)
	if err != nil {
		return nil, err
	}
	bar.Finish()

	result := &Result{
		Key:   key,
		Size:  plan.FileSize,
		Parts: parts,
	}
	if u.opts.PublicDomain != "" {
		result.URL = PublicURL(u.opts.PublicDomain, key)
	}

	logging.Info("upload complete",
		logging.String("key", key),
		logging.Int64("bytes", plan.FileSize),
		logging.Int("parts", len(parts)))
	return result, nil
}

// send runs the multipart session for an opened file
func (u *Uploader) send(ctx context.Context, src io.ReaderAt, key string, plan *ChunkPlan, bar *progress.Progress) ([]models.UploadPart, error) {
	uploadID, err := u.store.CreateMultipart(ctx, key)
	if err != nil {
		return nil, apperr.Backend(
			"Something went wrong trying to upload to {bucket}. Are you sure you have the right credentials and bucket name?",
			err,
		).With("bucket", u.bucketName()).With("key", key)
	}
	if uploadID == "" {
		return nil, apperr.Backend("No upload ID, can't continue", nil).With("key", key)
	}

	logging.Debug("multipart upload started",
		logging.String("key", key),
		logging.String("upload_id", uploadID),
		logging.Int("parts", plan.Count()))

	parts, err := u.uploadParts(ctx, src, key, uploadID, plan, bar)
	if err == nil {
		err = u.complete(ctx, key, uploadID, plan, parts)
	}
	if err != nil {
		return nil, u.abort(key, uploadID, err)
	}
	return parts, nil
}

// uploadParts sends every chunk concurrently. The group is not tied to a
// cancelable context: a failing part does not interrupt parts already in
// flight, the first error is reported once all have returned.
func (u *Uploader) uploadParts(ctx context.Context, src io.ReaderAt, key, uploadID string, plan *ChunkPlan, bar *progress.Progress) ([]models.UploadPart, error) {
	parts := make([]models.UploadPart, plan.Count())

	var g errgroup.Group
	if u.opts.Concurrency > 0 {
		g.SetLimit(u.opts.Concurrency)
	}

	for _, chunk := range plan.Chunks {
		g.Go(func() error {
			body := io.NewSectionReader(src, chunk.Offset, chunk.Length)
			etag, err := u.store.UploadPart(ctx, key, uploadID, chunk.PartNumber, body, chunk.Length)
			if err != nil {
				return apperr.Backend("Uploading part {part} of `{key}` failed", err).
					With("part", chunk.PartNumber).With("key", key).
					With("offset", chunk.Offset).With("length", chunk.Length)
			}

			parts[chunk.Index] = models.UploadPart{
				PartNumber: chunk.PartNumber,
				Offset:     chunk.Offset,
				Length:     chunk.Length,
				ETag:       etag,
			}
			bar.Inc(uint64(chunk.Length))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}

// complete checks the part set and assembles the object
func (u *Uploader) complete(ctx context.Context, key, uploadID string, plan *ChunkPlan, parts []models.UploadPart) error {
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	if err := checkContiguous(parts, plan.Count()); err != nil {
		return err
	}

	if err := u.store.CompleteMultipart(ctx, key, uploadID, parts); err != nil {
		return apperr.Backend("Completing the upload of `{key}` failed", err).With("key", key)
	}
	return nil
}

// checkContiguous verifies part numbers run 1..n exactly once
func checkContiguous(parts []models.UploadPart, n int) error {
	if len(parts) != n {
		return apperr.Internal(fmt.Sprintf("expected %d parts, got %d", n, len(parts)), nil)
	}
	for i, p := range parts {
		if p.PartNumber != int32(i+1) {
			return apperr.Internal(fmt.Sprintf("part %d is missing", i+1), nil)
		}
	}
	return nil
}

// abort discards the session when configured to and combines any abort
// failure with cause
func (u *Uploader) abort(key, uploadID string, cause error) error {
	if !u.opts.AbortOnFailure {
		return cause
	}

	// The caller's context may be what failed; give the abort its own deadline
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := u.store.AbortMultipart(ctx, key, uploadID)
	if err == nil || errors.Is(err, backend.ErrUploadNotFound) {
		logging.Debug("multipart upload aborted", logging.String("key", key), logging.String("upload_id", uploadID))
		return cause
	}

	logging.Warn("failed to abort multipart upload",
		logging.String("key", key),
		logging.String("upload_id", uploadID),
		logging.Err(err))
	return multierr.Append(cause, fmt.Errorf("abort multipart upload %s: %w", uploadID, err))
}

func (u *Uploader) bucketName() string {
	if u.opts.Bucket != "" {
		return u.opts.Bucket
	}
	return "the bucket"
}

// PublicURL joins a public domain and key. Domains without a scheme are
// served over https.
func PublicURL(domain, key string) string {
	if !strings.Contains(domain, "://") {
		domain = "https://" + domain
	}
	base, err := url.Parse(domain)
	if err != nil {
		return strings.TrimSuffix(domain, "/") + "/" + strings.TrimPrefix(key, "/")
	}
	base.Path = path.Join("/", base.Path, key)
	return base.String()
}
