package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r2d2/r2d2/internal/adapter"
	"github.com/r2d2/r2d2/internal/apperr"
	"github.com/r2d2/r2d2/internal/backend"
	"github.com/r2d2/r2d2/internal/bridge"
	"github.com/r2d2/r2d2/internal/cloudflare"
	"github.com/r2d2/r2d2/internal/config"
	"github.com/r2d2/r2d2/internal/crypto"
	"github.com/r2d2/r2d2/internal/progress"
	"github.com/r2d2/r2d2/internal/repository"
	"github.com/r2d2/r2d2/pkg/models"
)

func TestObfuscate(t *testing.T) {
	assert.Equal(t, "abcd...wxyz", obfuscate("abcdefghijklmnopqrstuvwxyz"))
	assert.Equal(t, "12345678", obfuscate("12345678"))
	assert.Equal(t, "", obfuscate(""))
}

type fakeVerifier struct {
	v   *cloudflare.TokenVerification
	err error
}

func (f fakeVerifier) VerifyToken(context.Context) (*cloudflare.TokenVerification, error) {
	return f.v, f.err
}

func TestVerifyToken(t *testing.T) {
	id := "0123456789abcdef"

	t.Run("active token", func(t *testing.T) {
		var out bytes.Buffer
		err := verifyToken(context.Background(), &out, fakeVerifier{v: &cloudflare.TokenVerification{ID: id, Status: "active"}}, false)
		require.NoError(t, err)
		assert.Equal(t, "Authorization ok: 0123...cdef\n", out.String())
	})

	t.Run("show keeps full id", func(t *testing.T) {
		var out bytes.Buffer
		err := verifyToken(context.Background(), &out, fakeVerifier{v: &cloudflare.TokenVerification{ID: id, Status: "active"}}, true)
		require.NoError(t, err)
		assert.Equal(t, "Authorization ok: "+id+"\n", out.String())
	})

	t.Run("inactive token", func(t *testing.T) {
		var out bytes.Buffer
		err := verifyToken(context.Background(), &out, fakeVerifier{v: &cloudflare.TokenVerification{ID: id, Status: "expired"}}, false)
		require.Error(t, err)
		assert.True(t, apperr.IsKind(err, apperr.KindConfiguration))
		assert.Contains(t, out.String(), "Authorization failed: 0123...cdef (status: expired)")
	})

	t.Run("request failure", func(t *testing.T) {
		var out bytes.Buffer
		err := verifyToken(context.Background(), &out, fakeVerifier{err: errors.New("network down")}, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "network down")
		assert.Empty(t, out.String())
	})
}

type fakeUsage struct {
	buckets []cloudflare.Bucket
	sizes   map[string]string
	listErr error
}

func (f fakeUsage) ListBuckets(context.Context, cloudflare.ListOptions) ([]cloudflare.Bucket, error) {
	return f.buckets, f.listErr
}

func (f fakeUsage) BucketUsage(_ context.Context, bucket string) (*cloudflare.Usage, error) {
	size, ok := f.sizes[bucket]
	if !ok {
		return nil, errors.New("usage unavailable")
	}
	return &cloudflare.Usage{PayloadSize: size}, nil
}

func TestGatherUsage(t *testing.T) {
	src := fakeUsage{
		buckets: []cloudflare.Bucket{{Name: "zeta"}, {Name: "alpha"}, {Name: "broken"}},
		sizes:   map[string]string{"zeta": "2000000", "alpha": "1500000"},
	}

	table, err := gatherUsage(context.Background(), src)
	require.NoError(t, err)

	rows := table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"alpha", "1500000", "1.5 MB"}, rows[0])
	assert.Equal(t, []string{"zeta", "2000000", "2.0 MB"}, rows[1])

	footer := table.Footer()
	require.Len(t, footer, 3)
	assert.Contains(t, footer[0], "total")
	assert.Equal(t, "3500000", footer[1])
	assert.Contains(t, footer[2], "3.5 MB")
}

func TestGatherUsageListFailure(t *testing.T) {
	_, err := gatherUsage(context.Background(), fakeUsage{listErr: errors.New("forbidden")})
	require.Error(t, err)
}

func TestGatherUsageNoBuckets(t *testing.T) {
	table, err := gatherUsage(context.Background(), fakeUsage{})
	require.NoError(t, err)
	assert.Empty(t, table.Rows())
	assert.Equal(t, "0", table.Footer()[1])
}

type fakeDeleter struct {
	deleted []string
}

func (f *fakeDeleter) DeleteBucket(_ context.Context, bucket string) error {
	f.deleted = append(f.deleted, bucket)
	return nil
}

func TestRunWipeWithoutBucket(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Bucket = ""

	err := runWipe(context.Background(), &bytes.Buffer{}, progress.NoBars(), cfg, wipeOptions{yes: true, contents: true})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConfiguration))
	assert.Equal(t, "No bucket configured to wipe!", err.Error())
}

func TestRunWipeNothingToDo(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Bucket = "photos"

	err := runWipe(context.Background(), &bytes.Buffer{}, progress.NoBars(), cfg, wipeOptions{yes: true})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUser))
}

func TestWipe(t *testing.T) {
	ctx := context.Background()
	store := backend.NewMemory()
	require.NoError(t, store.Write(ctx, "data/ab/abcd", []byte("x")))
	require.NoError(t, store.Write(ctx, "config", []byte("y")))

	api := &fakeDeleter{}
	var out, status bytes.Buffer
	require.NoError(t, wipe(ctx, &out, progress.NewBars(&status, true), "photos", store, api))

	assert.Equal(t, 0, store.Len())
	assert.Equal(t, []string{"photos"}, api.deleted)
	assert.Equal(t, "Bucket `photos` emptied.\nBucket `photos` deleted.\n", out.String())
	assert.Contains(t, status.String(), " emptying bucket `photos` ✓")
}

type failingRemover struct {
	*backend.MemoryStore
}

func (failingRemover) RemoveAll(context.Context, string) error {
	return errors.New("access denied")
}

func TestWipeRemoveFailureClearsSpinner(t *testing.T) {
	var out, status bytes.Buffer
	err := wipe(context.Background(), &out, progress.NewBars(&status, true), "photos",
		failingRemover{backend.NewMemory()}, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindBackend))
	assert.Empty(t, out.String())
	assert.NotContains(t, status.String(), "✓")
}

func TestWipeContentsOnly(t *testing.T) {
	ctx := context.Background()
	store := backend.NewMemory()
	require.NoError(t, store.Write(ctx, "keys/k", []byte("x")))

	var out bytes.Buffer
	require.NoError(t, wipe(ctx, &out, progress.NoBars(), "photos", store, nil))
	assert.Equal(t, 0, store.Len())
	assert.NotContains(t, out.String(), "deleted")
}

func TestListSnapshots(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, listSnapshots(&out, nil, nil))
	assert.Equal(t, "No snapshots found\n", out.String())

	id := models.HashID([]byte("snap"))
	out.Reset()
	require.NoError(t, listSnapshots(&out, nil, []models.IDWithSize{{ID: id, Size: 2048}}))
	assert.Contains(t, out.String(), id.Short())
	assert.NotContains(t, out.String(), id.Hex())
	assert.Contains(t, out.String(), "Total: 1 snapshots")
}

type fakeLoader map[models.ID]*models.SnapshotSummary

func (f fakeLoader) Snapshot(id models.ID) (*models.SnapshotSummary, error) {
	s, ok := f[id]
	if !ok {
		return nil, errors.New("unreadable")
	}
	return s, nil
}

func TestListSnapshotsLong(t *testing.T) {
	good := models.HashID([]byte("good"))
	bad := models.HashID([]byte("bad"))
	loader := fakeLoader{good: {ID: good, Hostname: "nas", Paths: []string{"/srv", "/home"}}}

	var out bytes.Buffer
	require.NoError(t, listSnapshots(&out, loader, []models.IDWithSize{{ID: good, Size: 10}, {ID: bad, Size: 20}}))

	text := out.String()
	assert.Contains(t, text, good.Hex())
	assert.Contains(t, text, bad.Hex())
	assert.Contains(t, text, "nas")
	assert.Contains(t, text, "/srv, /home")
	assert.Contains(t, text, "Total: 2 snapshots")
}

func TestListSnapshotsFromRepository(t *testing.T) {
	repo, store := testRepository(t)
	id := models.HashID([]byte("raw"))
	require.NoError(t, store.Write(context.Background(), "snapshots/"+id.Hex(), []byte("raw")))

	snaps, err := repo.Snapshots()
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, listSnapshots(&out, repo, snaps))
	assert.Contains(t, out.String(), id.Hex())
	assert.Contains(t, out.String(), "Total: 1 snapshots")
}

func testRepository(t *testing.T) (*repository.Repository, *backend.MemoryStore) {
	t.Helper()
	store := backend.NewMemory()
	be := adapter.New(store, bridge.Inline{})
	repo, err := repository.Init(be, "secret", repository.Options{
		KDF:              crypto.KDFParams{Time: 1, Memory: 1024, Threads: 1},
		CompressionLevel: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo, store
}

func TestShowStatus(t *testing.T) {
	repo, store := testRepository(t)
	id := models.HashID([]byte("snap"))
	require.NoError(t, store.Write(context.Background(), "snapshots/"+id.Hex(), []byte("snap")))

	var out, status bytes.Buffer
	require.NoError(t, showStatus(&out, progress.NewBars(&status, true), repo, false))

	text := out.String()
	assert.Contains(t, text, repo.Config().ID.Hex())
	assert.Contains(t, text, "snapshot")
	assert.Contains(t, text, "key")
	assert.NotContains(t, text, "scanning repository")
	assert.Contains(t, status.String(), " scanning repository ✓")
}

func TestShowStatusJSON(t *testing.T) {
	repo, _ := testRepository(t)

	var out, statusBuf bytes.Buffer
	require.NoError(t, showStatus(&out, progress.NewBars(&statusBuf, true), repo, true))
	assert.Contains(t, statusBuf.String(), "scanning repository")

	var status struct {
		ID      string `json:"id"`
		Version int    `json:"version"`
		Files   []struct {
			Type  string `json:"type"`
			Count int    `json:"count"`
		} `json:"files"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &status))
	assert.Equal(t, repo.Config().ID.Hex(), status.ID)
	assert.Equal(t, repository.Version, status.Version)

	counts := map[string]int{}
	for _, f := range status.Files {
		counts[f.Type] = f.Count
	}
	assert.Equal(t, 1, counts["config"])
	assert.Equal(t, 1, counts["key"])
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	joined := strings.Join(names, ",")
	for _, want := range []string{"auth", "overview", "upload", "wipe", "init", "status", "snapshots"} {
		assert.Contains(t, joined, want)
	}
}

func TestRepoBackendAppliesCallTimeout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Driver = "memory"

	be, closeBackend, err := repoBackend(context.Background(), cfg, progress.NoBars())
	require.NoError(t, err)
	_, err = be.ListWithSize(models.FileTypePack)
	require.NoError(t, err)
	closeBackend()

	cfg.CallTimeout = "1ns"
	be, closeBackend, err = repoBackend(context.Background(), cfg, progress.NoBars())
	require.NoError(t, err)
	defer closeBackend()
	_, err = be.ListWithSize(models.FileTypePack)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRepoBackendRejectsBadCallTimeout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Driver = "memory"
	cfg.CallTimeout = "whenever"

	_, _, err := repoBackend(context.Background(), cfg, progress.NoBars())
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConfiguration))
}
