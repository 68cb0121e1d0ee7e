package bridge

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r2d2/r2d2/internal/apperr"
)

func TestBridge_RunReturnsResult(t *testing.T) {
	b := New(context.Background())
	defer b.Close()

	var got int
	err := b.Run(func(ctx context.Context) error {
		got = 42
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	sentinel := errors.New("boom")
	err = b.Run(func(ctx context.Context) error { return sentinel })
	assert.ErrorIs(t, err, sentinel)
}

func TestBridge_CallContextIsMarkedAndCancelled(t *testing.T) {
	b := New(context.Background())
	defer b.Close()

	var callCtx context.Context
	require.NoError(t, b.Run(func(ctx context.Context) error {
		callCtx = ctx
		assert.True(t, InCall(ctx))
		assert.NoError(t, ctx.Err())
		return nil
	}))

	// Torn down once the call returns
	assert.Error(t, callCtx.Err())
	assert.False(t, InCall(context.Background()))
}

func TestBridge_NestedCallFails(t *testing.T) {
	b := New(context.Background())
	defer b.Close()

	var inner error
	require.NoError(t, b.Run(func(ctx context.Context) error {
		inner = b.RunContext(ctx, func(context.Context) error { return nil })
		return nil
	}))
	require.Error(t, inner)
	assert.True(t, apperr.IsKind(inner, apperr.KindInternal))
}

func TestBridge_PanicBecomesInternalError(t *testing.T) {
	b := New(context.Background())
	defer b.Close()

	err := b.Run(func(ctx context.Context) error {
		panic("kaboom")
	})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInternal))
	assert.Contains(t, err.Error(), "kaboom")
}

func TestBridge_Timeout(t *testing.T) {
	b := New(context.Background(), WithTimeout(20*time.Millisecond))
	defer b.Close()

	err := b.Run(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBridge_ClosedRefusesCalls(t *testing.T) {
	b := New(context.Background())
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	called := false
	err := b.Run(func(ctx context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.True(t, apperr.IsKind(err, apperr.KindInternal))
	assert.Contains(t, err.Error(), "bridge is closed")
}

func TestBridge_CancelledParentRefusesCalls(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	b := New(parent)
	cancel()

	err := b.Run(func(ctx context.Context) error { return nil })
	assert.True(t, apperr.IsKind(err, apperr.KindInternal))
}

func TestBridge_CloseCancelsRunningCalls(t *testing.T) {
	b := New(context.Background())

	started := make(chan struct{})
	result := make(chan error, 1)
	go func() {
		result <- b.Run(func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	<-started
	require.NoError(t, b.Close())
	assert.ErrorIs(t, <-result, context.Canceled)
}

func TestBridge_ConcurrentCallers(t *testing.T) {
	b := New(context.Background())
	defer b.Close()

	var n atomic.Int32
	done := make(chan struct{})
	for i := 0; i < 16; i++ {
		go func() {
			_ = b.Run(func(ctx context.Context) error {
				n.Add(1)
				return nil
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 16; i++ {
		<-done
	}
	assert.Equal(t, int32(16), n.Load())
}

func TestInline(t *testing.T) {
	var r Runner = Inline{}
	err := r.Run(func(ctx context.Context) error {
		assert.False(t, InCall(ctx))
		return nil
	})
	assert.NoError(t, err)
}
