package backend

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r2d2/r2d2/pkg/models"
)

// runStoreContract exercises the behaviour every driver must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("WriteReadStat", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Write(ctx, "keys/abc", []byte("hello world")))

		data, err := s.Read(ctx, "keys/abc")
		require.NoError(t, err)
		assert.Equal(t, []byte("hello world"), data)

		e, err := s.Stat(ctx, "keys/abc")
		require.NoError(t, err)
		assert.Equal(t, int64(11), e.Size)
		assert.Equal(t, "abc", e.Name)
		assert.False(t, e.IsDir)
	})

	t.Run("Overwrite", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Write(ctx, "index/x", []byte("first")))
		require.NoError(t, s.Write(ctx, "index/x", []byte("second")))

		data, err := s.Read(ctx, "index/x")
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), data)
	})

	t.Run("MissingIsNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Stat(ctx, "config")
		assert.True(t, errors.Is(err, ErrNotFound))

		_, err = s.Read(ctx, "config")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("ReadRange", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Write(ctx, "data/00/pack", []byte("0123456789")))

		data, err := s.ReadRange(ctx, "data/00/pack", 2, 4)
		require.NoError(t, err)
		assert.Equal(t, []byte("2345"), data)

		data, err = s.ReadRange(ctx, "data/00/pack", 8, 100)
		require.NoError(t, err)
		assert.Equal(t, []byte("89"), data)

		data, err = s.ReadRange(ctx, "data/00/pack", 10, 4)
		require.NoError(t, err)
		assert.Empty(t, data)

		data, err = s.ReadRange(ctx, "data/00/pack", 25, 4)
		require.NoError(t, err)
		assert.Empty(t, data)

		_, err = s.ReadRange(ctx, "data/00/missing", 0, 4)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Write(ctx, "snapshots/a", []byte("x")))
		require.NoError(t, s.Delete(ctx, "snapshots/a"))
		require.NoError(t, s.Delete(ctx, "snapshots/a"))

		_, err := s.Stat(ctx, "snapshots/a")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("ListRecursive", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Write(ctx, "data/00/a", []byte("1")))
		require.NoError(t, s.Write(ctx, "data/01/b", []byte("22")))
		require.NoError(t, s.Write(ctx, "index/c", []byte("333")))

		entries, err := s.List(ctx, "data/", true)
		require.NoError(t, err)
		assert.Equal(t, []string{"data/00/a", "data/01/b"}, keysOf(entries))
		for _, e := range entries {
			assert.False(t, e.IsDir)
		}
	})

	t.Run("ListShallow", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Write(ctx, "data/00/a", []byte("1")))
		require.NoError(t, s.Write(ctx, "data/00/b", []byte("1")))
		require.NoError(t, s.Write(ctx, "data/01/c", []byte("1")))
		require.NoError(t, s.Write(ctx, "data/top", []byte("1")))

		entries, err := s.List(ctx, "data/", false)
		require.NoError(t, err)
		assert.Equal(t, []string{"data/00/", "data/01/", "data/top"}, keysOf(entries))

		dirs := 0
		for _, e := range entries {
			if e.IsDir {
				dirs++
			}
		}
		assert.Equal(t, 2, dirs)
	})

	t.Run("ListEmptyPrefix", func(t *testing.T) {
		s := newStore(t)
		entries, err := s.List(ctx, "snapshots/", true)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("RemoveAll", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Write(ctx, "data/00/a", []byte("1")))
		require.NoError(t, s.Write(ctx, "keys/k", []byte("1")))
		require.NoError(t, s.Write(ctx, "config", []byte("1")))

		require.NoError(t, s.RemoveAll(ctx, "data/"))
		entries, err := s.List(ctx, "", true)
		require.NoError(t, err)
		assert.Equal(t, []string{"config", "keys/k"}, keysOf(entries))

		require.NoError(t, s.RemoveAll(ctx, ""))
		entries, err = s.List(ctx, "", true)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("Multipart", func(t *testing.T) {
		s := newStore(t)
		partA := bytes.Repeat([]byte("a"), 5<<20)
		partB := []byte("tail")

		id, err := s.CreateMultipart(ctx, "uploads/big.bin")
		require.NoError(t, err)
		require.NotEmpty(t, id)

		// Upload out of order
		etagB, err := s.UploadPart(ctx, "uploads/big.bin", id, 2, bytes.NewReader(partB), int64(len(partB)))
		require.NoError(t, err)
		etagA, err := s.UploadPart(ctx, "uploads/big.bin", id, 1, bytes.NewReader(partA), int64(len(partA)))
		require.NoError(t, err)

		err = s.CompleteMultipart(ctx, "uploads/big.bin", id, []models.UploadPart{
			{PartNumber: 2, ETag: etagB},
			{PartNumber: 1, ETag: etagA},
		})
		require.NoError(t, err)

		e, err := s.Stat(ctx, "uploads/big.bin")
		require.NoError(t, err)
		assert.Equal(t, int64(len(partA)+len(partB)), e.Size)

		tail, err := s.ReadRange(ctx, "uploads/big.bin", int64(len(partA)), 4)
		require.NoError(t, err)
		assert.Equal(t, partB, tail)
	})

	t.Run("AbortMultipart", func(t *testing.T) {
		s := newStore(t)
		id, err := s.CreateMultipart(ctx, "uploads/aborted")
		require.NoError(t, err)

		_, err = s.UploadPart(ctx, "uploads/aborted", id, 1, bytes.NewReader([]byte("x")), 1)
		require.NoError(t, err)
		require.NoError(t, s.AbortMultipart(ctx, "uploads/aborted", id))

		_, err = s.Stat(ctx, "uploads/aborted")
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func keysOf(entries []Entry) []string {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	sort.Strings(keys)
	return keys
}
