package adapter

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/r2d2/r2d2/internal/apperr"
	"github.com/r2d2/r2d2/internal/backend"
	"github.com/r2d2/r2d2/internal/bridge"
	"github.com/r2d2/r2d2/internal/logging"
	"github.com/r2d2/r2d2/internal/progress"
	"github.com/r2d2/r2d2/pkg/models"
)

// faultyStore fails selected operations and can report oversized entries
type faultyStore struct {
	*backend.MemoryStore
	failStat  bool
	failRead  bool
	failWrite bool
	hugeSize  bool
}

var errInjected = errors.New("injected failure")

func (f *faultyStore) Stat(ctx context.Context, key string) (backend.Entry, error) {
	if f.failStat {
		return backend.Entry{}, errInjected
	}
	e, err := f.MemoryStore.Stat(ctx, key)
	if f.hugeSize {
		e.Size = math.MaxUint32 + 1
	}
	return e, err
}

func (f *faultyStore) Read(ctx context.Context, key string) ([]byte, error) {
	if f.failRead {
		return nil, errInjected
	}
	return f.MemoryStore.Read(ctx, key)
}

func (f *faultyStore) Write(ctx context.Context, key string, data []byte) error {
	if f.failWrite {
		return errInjected
	}
	return f.MemoryStore.Write(ctx, key, data)
}

func (f *faultyStore) List(ctx context.Context, prefix string, recursive bool) ([]backend.Entry, error) {
	entries, err := f.MemoryStore.List(ctx, prefix, recursive)
	if f.hugeSize {
		for i := range entries {
			entries[i].Size = math.MaxUint32 + 1
		}
	}
	return entries, err
}

func newTestBackend(t *testing.T) (*R2Backend, *backend.MemoryStore) {
	t.Helper()
	store := backend.NewMemory()
	return New(store, bridge.Inline{}), store
}

func TestListWithSize_MissingConfigIsEmpty(t *testing.T) {
	b, _ := newTestBackend(t)

	list, err := b.ListWithSize(models.FileTypeConfig)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestListWithSize_Config(t *testing.T) {
	b, _ := newTestBackend(t)
	require.NoError(t, b.WriteBytes(models.FileTypeConfig, models.ID{}, false, []byte("cfg")))

	list, err := b.ListWithSize(models.FileTypeConfig)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uint32(3), list[0].Size)
}

func TestListWithSize_ConfigStatFailure(t *testing.T) {
	b := New(&faultyStore{MemoryStore: backend.NewMemory(), failStat: true}, bridge.Inline{})

	_, err := b.ListWithSize(models.FileTypeConfig)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindBackend))
	assert.ErrorIs(t, err, errInjected)

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	tpe, ok := ae.Get("type")
	assert.True(t, ok)
	assert.Equal(t, "config", tpe)
}

func TestListWithSize_SkipsMalformedNames(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	restore := logging.Replace(zap.New(core))
	defer restore()

	b, store := newTestBackend(t)
	ctx := context.Background()

	valid := models.RandomID()
	require.NoError(t, b.WriteBytes(models.FileTypePack, valid, false, []byte("packdata")))
	require.NoError(t, store.Write(ctx, "data/zz/not-a-hex-id", []byte("junk")))

	list, err := b.ListWithSize(models.FileTypePack)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, valid, list[0].ID)
	assert.Equal(t, uint32(8), list[0].Size)

	assert.Equal(t, 1, logs.FilterMessage("skipping file with invalid id").Len())
}

func TestListWithSize_SkipsUppercaseNames(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	restore := logging.Replace(zap.New(core))
	defer restore()

	b, store := newTestBackend(t)
	ctx := context.Background()

	lower := models.RandomID()
	require.NoError(t, b.WriteBytes(models.FileTypeSnapshot, lower, false, []byte("s")))
	upper := strings.ToUpper(models.RandomID().Hex())
	require.NoError(t, store.Write(ctx, "snapshots/"+upper, []byte("shouting")))

	list, err := b.ListWithSize(models.FileTypeSnapshot)
	require.NoError(t, err)
	assert.Equal(t, []models.IDWithSize{{ID: lower, Size: 1}}, list)

	for _, e := range list {
		_, err := b.ReadFull(models.FileTypeSnapshot, e.ID)
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, logs.FilterMessage("skipping file with invalid id").Len())
}

// lockedBuffer is written by the spinner goroutine and read by the test
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

func TestListWithSize_ShowsSpinner(t *testing.T) {
	var out lockedBuffer
	store := backend.NewMemory()
	b := New(store, bridge.Inline{}, WithProgress(progress.NewBars(&out, true)))

	require.NoError(t, b.WriteBytes(models.FileTypeIndex, models.RandomID(), false, []byte("i")))
	list, err := b.ListWithSize(models.FileTypeIndex)
	require.NoError(t, err)
	require.Len(t, list, 1)

	s := out.String()
	assert.Contains(t, s, "listing index")
	assert.True(t, strings.HasSuffix(s, "\r\x1b[2K"), "line is cleared after listing")
	assert.NotContains(t, s, "✓")
}

func TestListWithSize_NoProgressByDefault(t *testing.T) {
	b := New(backend.NewMemory(), bridge.Inline{}, WithProgress(nil))
	assert.False(t, b.bars.Visible())
}

func TestListWithSize_OnlyOwnType(t *testing.T) {
	b, _ := newTestBackend(t)

	idx := models.RandomID()
	snap := models.RandomID()
	require.NoError(t, b.WriteBytes(models.FileTypeIndex, idx, false, []byte("i")))
	require.NoError(t, b.WriteBytes(models.FileTypeSnapshot, snap, false, []byte("ss")))

	list, err := b.ListWithSize(models.FileTypeSnapshot)
	require.NoError(t, err)
	assert.Equal(t, []models.IDWithSize{{ID: snap, Size: 2}}, list)
}

func TestListWithSize_LengthOverflow(t *testing.T) {
	store := &faultyStore{MemoryStore: backend.NewMemory(), hugeSize: true}
	b := New(store, bridge.Inline{})
	require.NoError(t, b.WriteBytes(models.FileTypeIndex, models.RandomID(), false, []byte("x")))

	_, err := b.ListWithSize(models.FileTypeIndex)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInternal))
	assert.Contains(t, err.Error(), "4294967296")
}

func TestRoundTrip(t *testing.T) {
	b, _ := newTestBackend(t)
	id := models.RandomID()
	payload := []byte("the quick brown fox jumps over the lazy dog")

	for _, tpe := range models.AllFileTypes {
		t.Run(tpe.String(), func(t *testing.T) {
			require.NoError(t, b.WriteBytes(tpe, id, true, payload))

			full, err := b.ReadFull(tpe, id)
			require.NoError(t, err)
			assert.Equal(t, payload, full)

			part, err := b.ReadPartial(tpe, id, true, 4, 5)
			require.NoError(t, err)
			assert.Equal(t, payload[4:9], part)

			part, err = b.ReadPartial(tpe, id, false, 0, uint32(len(payload)))
			require.NoError(t, err)
			assert.Equal(t, payload, part)
		})
	}
}

func TestWriteOverwrites(t *testing.T) {
	b, _ := newTestBackend(t)
	id := models.RandomID()

	require.NoError(t, b.WriteBytes(models.FileTypeKey, id, false, []byte("first version")))
	require.NoError(t, b.WriteBytes(models.FileTypeKey, id, false, []byte("v2")))

	data, err := b.ReadFull(models.FileTypeKey, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
}

func TestRemoveIsIdempotent(t *testing.T) {
	b, _ := newTestBackend(t)
	id := models.RandomID()
	require.NoError(t, b.WriteBytes(models.FileTypeSnapshot, id, false, []byte("snap")))

	require.NoError(t, b.Remove(models.FileTypeSnapshot, id, false))
	require.NoError(t, b.Remove(models.FileTypeSnapshot, id, false))

	_, err := b.ReadFull(models.FileTypeSnapshot, id)
	require.Error(t, err)
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestReadFull_ErrorContext(t *testing.T) {
	b := New(&faultyStore{MemoryStore: backend.NewMemory(), failRead: true}, bridge.Inline{})
	id := models.RandomID()

	_, err := b.ReadFull(models.FileTypePack, id)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindBackend))
	assert.Contains(t, err.Error(), "Reading file `"+Locate(models.FileTypePack, id)+"` failed")

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	gotID, _ := ae.Get("id")
	assert.Equal(t, id.Hex(), gotID)
}

func TestWriteBytes_ErrorIsBackend(t *testing.T) {
	b := New(&faultyStore{MemoryStore: backend.NewMemory(), failWrite: true}, bridge.Inline{})

	err := b.WriteBytes(models.FileTypeIndex, models.RandomID(), false, []byte("x"))
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindBackend))
}

func TestWithGoroutineBridge(t *testing.T) {
	br := bridge.New(context.Background())
	defer br.Close()

	b := New(backend.NewMemory(), br)
	id := models.RandomID()
	require.NoError(t, b.WriteBytes(models.FileTypeIndex, id, false, []byte("bridged")))

	data, err := b.ReadFull(models.FileTypeIndex, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("bridged"), data)
}

func TestClosedBridgeFailsCalls(t *testing.T) {
	br := bridge.New(context.Background())
	require.NoError(t, br.Close())

	b := New(backend.NewMemory(), br)
	_, err := b.ReadFull(models.FileTypeIndex, models.RandomID())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bridge is closed")
}

func TestLocation(t *testing.T) {
	b, _ := newTestBackend(t)
	assert.Equal(t, "memory://", b.Location())
}
