// Package adapter exposes an object store through the blocking storage
// contract of the backup engine.
//
// Every operation resolves its key with Locate, runs the store call through
// a bridge.Runner and wraps failures as Backend errors carrying the file
// type, id and key.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/r2d2/r2d2/internal/apperr"
	"github.com/r2d2/r2d2/internal/backend"
	"github.com/r2d2/r2d2/internal/bridge"
	"github.com/r2d2/r2d2/internal/logging"
	"github.com/r2d2/r2d2/internal/progress"
	"github.com/r2d2/r2d2/pkg/models"
)

// ReadBackend is the read side of the storage contract
type ReadBackend interface {
	Location() string
	ListWithSize(tpe models.FileType) ([]models.IDWithSize, error)
	ReadFull(tpe models.FileType, id models.ID) ([]byte, error)
	ReadPartial(tpe models.FileType, id models.ID, cacheable bool, offset, length uint32) ([]byte, error)
}

// WriteBackend adds the mutating operations
type WriteBackend interface {
	ReadBackend
	WriteBytes(tpe models.FileType, id models.ID, cacheable bool, buf []byte) error
	Remove(tpe models.FileType, id models.ID, cacheable bool) error
}

// R2Backend implements WriteBackend on top of a backend.Operator
type R2Backend struct {
	op     backend.Operator
	runner bridge.Runner
	bars   *progress.Bars
}

// Option configures an R2Backend
type Option func(*R2Backend)

// WithProgress shows a spinner on bars while directories are listed
func WithProgress(bars *progress.Bars) Option {
	return func(b *R2Backend) {
		if bars != nil {
			b.bars = bars
		}
	}
}

// New creates an adapter. Calls block on runner.
func New(op backend.Operator, runner bridge.Runner, opts ...Option) *R2Backend {
	b := &R2Backend{op: op, runner: runner, bars: progress.NoBars()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Location returns where the underlying store lives
func (b *R2Backend) Location() string {
	return b.op.Location()
}

// ListWithSize returns the id and length of every file of type tpe. A
// missing config is an empty listing. Entries whose names are not lowercase
// hex ids are skipped.
func (b *R2Backend) ListWithSize(tpe models.FileType) ([]models.IDWithSize, error) {
	if tpe == models.FileTypeConfig {
		return b.listConfig()
	}

	prefix := listPrefix(tpe)
	p := b.bars.Spinner("listing " + tpe.String())
	p.Tick()
	stop := p.Drive(progress.RedrawInterval)
	defer stop()

	var entries []backend.Entry
	err := b.runner.Run(func(ctx context.Context) error {
		var err error
		entries, err = b.op.List(ctx, prefix, true)
		return err
	})
	if err != nil {
		return nil, apperr.Backend(
			"Listing all files of `{type}` in directory `{path}` and their sizes failed in the backend. Please check if the given path is correct.",
			err,
		).With("type", tpe.String()).With("path", prefix)
	}

	result := make([]models.IDWithSize, 0, len(entries))
	for _, e := range entries {
		if e.IsDir {
			continue
		}

		id, err := models.ParseID(e.Name)
		if err == nil && id.Hex() != e.Name {
			// Locate renders lowercase, so this key could never be read back
			err = fmt.Errorf("id %q is not lowercase hex", e.Name)
		}
		if err != nil {
			logging.Warn("skipping file with invalid id",
				logging.String("type", tpe.String()),
				logging.String("key", e.Key),
				logging.Err(err))
			continue
		}

		size, nerr := narrowLength(e.Size)
		if nerr != nil {
			return nil, nerr.With("type", tpe.String()).With("path", e.Key)
		}
		result = append(result, models.IDWithSize{ID: id, Size: size})
	}

	return result, nil
}

func (b *R2Backend) listConfig() ([]models.IDWithSize, error) {
	var entry backend.Entry
	err := b.runner.Run(func(ctx context.Context) error {
		var err error
		entry, err = b.op.Stat(ctx, ConfigKey)
		return err
	})
	if errors.Is(err, backend.ErrNotFound) {
		return []models.IDWithSize{}, nil
	}
	if err != nil {
		return nil, apperr.Backend(
			"Getting Metadata of type `{type}` failed in the backend. Please check if `{path}` exists.",
			err,
		).With("type", models.FileTypeConfig.String()).With("path", ConfigKey)
	}

	size, nerr := narrowLength(entry.Size)
	if nerr != nil {
		return nil, nerr.With("type", models.FileTypeConfig.String()).With("path", ConfigKey)
	}
	return []models.IDWithSize{{ID: models.ID{}, Size: size}}, nil
}

// narrowLength converts a store length to the listing width
func narrowLength(n int64) (uint32, *apperr.Error) {
	if n < 0 || n > math.MaxUint32 {
		return 0, apperr.Internal("Parsing content length `{length}` failed", nil).
			With("length", n)
	}
	return uint32(n), nil
}

// ReadFull returns the whole file
func (b *R2Backend) ReadFull(tpe models.FileType, id models.ID) ([]byte, error) {
	key := Locate(tpe, id)

	var data []byte
	err := b.runner.Run(func(ctx context.Context) error {
		var err error
		data, err = b.op.Read(ctx, key)
		return err
	})
	if err != nil {
		return nil, apperr.Backend(
			"Reading file `{path}` failed in the backend. Please check if the given path is correct.",
			err,
		).With("type", tpe.String()).With("id", id.Hex()).With("path", key)
	}
	return data, nil
}

// ReadPartial returns length bytes starting at offset. The cacheable hint is
// accepted for contract compatibility and ignored.
func (b *R2Backend) ReadPartial(tpe models.FileType, id models.ID, cacheable bool, offset, length uint32) ([]byte, error) {
	key := Locate(tpe, id)

	var data []byte
	err := b.runner.Run(func(ctx context.Context) error {
		var err error
		data, err = b.op.ReadRange(ctx, key, int64(offset), int64(length))
		return err
	})
	if err != nil {
		return nil, apperr.Backend(
			"Partially reading file `{path}` failed in the backend. Please check if the given path is correct.",
			err,
		).With("type", tpe.String()).With("id", id.Hex()).With("path", key).
			With("offset", offset).With("length", length)
	}
	return data, nil
}

// WriteBytes stores buf, replacing any previous content
func (b *R2Backend) WriteBytes(tpe models.FileType, id models.ID, cacheable bool, buf []byte) error {
	key := Locate(tpe, id)

	err := b.runner.Run(func(ctx context.Context) error {
		return b.op.Write(ctx, key, buf)
	})
	if err != nil {
		return apperr.Backend(
			"Writing file `{path}` failed in the backend. Please check if the given path is correct.",
			err,
		).With("type", tpe.String()).With("id", id.Hex()).With("path", key)
	}
	logging.Debug("wrote file", logging.String("path", key), logging.Int("bytes", len(buf)))
	return nil
}

// Remove deletes the file. Removing an absent file succeeds.
func (b *R2Backend) Remove(tpe models.FileType, id models.ID, cacheable bool) error {
	key := Locate(tpe, id)

	err := b.runner.Run(func(ctx context.Context) error {
		return b.op.Delete(ctx, key)
	})
	if err != nil {
		return apperr.Backend(
			"Deleting file `{path}` failed in the backend. Please check if the given path is correct.",
			err,
		).With("type", tpe.String()).With("id", id.Hex()).With("path", key)
	}
	return nil
}
