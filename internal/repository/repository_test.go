package repository

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r2d2/r2d2/internal/adapter"
	"github.com/r2d2/r2d2/internal/apperr"
	"github.com/r2d2/r2d2/internal/backend"
	"github.com/r2d2/r2d2/internal/bridge"
	"github.com/r2d2/r2d2/internal/crypto"
	"github.com/r2d2/r2d2/internal/progress"
	"github.com/r2d2/r2d2/pkg/models"
)

// saveFile seals data and stores it as a file of type tpe, named after the
// hash of the stored bytes
func saveFile(r *Repository, tpe models.FileType, data []byte) (models.ID, error) {
	sealed, err := r.seal(data)
	if err != nil {
		return models.ID{}, err
	}
	id := models.HashID(sealed)
	if err := r.be.WriteBytes(tpe, id, tpe != models.FileTypePack, sealed); err != nil {
		return models.ID{}, err
	}
	return id, nil
}

func testOptions() Options {
	return Options{
		KDF:              crypto.KDFParams{Time: 1, Memory: 1024, Threads: 1},
		CompressionLevel: 3,
	}
}

func newBackend(t *testing.T) (*adapter.R2Backend, *backend.MemoryStore) {
	t.Helper()
	store := backend.NewMemory()
	return adapter.New(store, bridge.Inline{}), store
}

func TestInitAndOpen(t *testing.T) {
	be, store := newBackend(t)

	repo, err := Init(be, "secret", testOptions())
	require.NoError(t, err)
	defer repo.Close()

	cfg := repo.Config()
	assert.Equal(t, Version, cfg.Version)
	assert.False(t, cfg.ID.IsZero())

	// config plus one key file
	ctx := context.Background()
	_, err = store.Stat(ctx, "config")
	require.NoError(t, err)
	keys, err := store.List(ctx, "keys/", true)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, repo.KeyID().Hex(), keys[0].Name)

	opened, err := Open(be, "secret")
	require.NoError(t, err)
	defer opened.Close()
	assert.Equal(t, cfg, opened.Config())
	assert.Equal(t, repo.KeyID(), opened.KeyID())
}

func TestInit_RefusesExistingRepository(t *testing.T) {
	be, _ := newBackend(t)
	_, err := Init(be, "secret", testOptions())
	require.NoError(t, err)

	_, err = Init(be, "secret", testOptions())
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUser))
	assert.Contains(t, err.Error(), "already initialized")
}

func TestInit_EmptyPassword(t *testing.T) {
	be, store := newBackend(t)
	_, err := Init(be, "", testOptions())
	assert.True(t, apperr.IsKind(err, apperr.KindUser))
	assert.Zero(t, store.Len())
}

func TestOpen_WrongPassword(t *testing.T) {
	be, _ := newBackend(t)
	_, err := Init(be, "secret", testOptions())
	require.NoError(t, err)

	_, err = Open(be, "guess")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUser))
	assert.Contains(t, err.Error(), "wrong password")
}

func TestOpen_NotInitialized(t *testing.T) {
	be, _ := newBackend(t)
	_, err := Open(be, "secret")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "r2d2 init")
}

func TestStatsAndSnapshots(t *testing.T) {
	be, _ := newBackend(t)
	repo, err := Init(be, "secret", testOptions())
	require.NoError(t, err)

	first, err := saveFile(repo, models.FileTypeSnapshot, []byte(`{"paths":["/home"]}`))
	require.NoError(t, err)
	second, err := saveFile(repo, models.FileTypeSnapshot, []byte(`{"paths":["/etc"]}`))
	require.NoError(t, err)
	_, err = saveFile(repo, models.FileTypePack, []byte("pack contents"))
	require.NoError(t, err)

	stats, err := repo.Stats(nil)
	require.NoError(t, err)
	counts := make(map[string]int)
	for _, s := range stats {
		counts[s.TypeName] = s.Count
		if s.Count > 0 {
			assert.Positive(t, s.TotalSize)
		}
	}
	assert.Equal(t, map[string]int{"config": 1, "index": 0, "key": 1, "snapshot": 2, "pack": 1}, counts)

	snaps, err := repo.Snapshots()
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.ElementsMatch(t, []models.ID{first, second}, []models.ID{snaps[0].ID, snaps[1].ID})
	assert.Less(t, snaps[0].ID.Hex(), snaps[1].ID.Hex())

	data, err := repo.LoadFile(models.FileTypeSnapshot, first)
	require.NoError(t, err)
	assert.Equal(t, `{"paths":["/home"]}`, string(data))
}

func TestStats_ShowsCounter(t *testing.T) {
	be, _ := newBackend(t)
	repo, err := Init(be, "secret", testOptions())
	require.NoError(t, err)

	var out bytes.Buffer
	stats, err := repo.Stats(progress.NewBars(&out, true))
	require.NoError(t, err)
	assert.Len(t, stats, len(models.AllFileTypes))

	s := out.String()
	assert.Contains(t, s, "100%: scanning repository")
	assert.Contains(t, s, " scanning repository ✓")
	assert.True(t, strings.HasSuffix(s, "\n"))
}

func TestSnapshot(t *testing.T) {
	be, _ := newBackend(t)
	repo, err := Init(be, "secret", testOptions())
	require.NoError(t, err)

	id, err := saveFile(repo, models.FileTypeSnapshot,
		[]byte(`{"time":"2024-03-01T10:00:00Z","hostname":"nas","paths":["/srv","/home"]}`))
	require.NoError(t, err)

	snap, err := repo.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, id, snap.ID)
	assert.Equal(t, "nas", snap.Hostname)
	assert.Equal(t, []string{"/srv", "/home"}, snap.Paths)
	assert.Equal(t, 2024, snap.Time.Year())
}

func TestSnapshot_Undecodable(t *testing.T) {
	be, _ := newBackend(t)
	repo, err := Init(be, "secret", testOptions())
	require.NoError(t, err)

	id, err := saveFile(repo, models.FileTypeSnapshot, []byte("not json"))
	require.NoError(t, err)
	_, err = repo.Snapshot(id)
	assert.True(t, apperr.IsKind(err, apperr.KindInternal))

	// Plain bytes that were never sealed
	raw := models.HashID([]byte("raw"))
	require.NoError(t, be.WriteBytes(models.FileTypeSnapshot, raw, false, []byte("raw")))
	_, err = repo.Snapshot(raw)
	assert.True(t, apperr.IsKind(err, apperr.KindInternal))
}
