// Package bridge runs context-aware storage calls on behalf of callers that
// expose a blocking API.
//
// A Bridge owns a base context. Each call gets its own cancelable context
// derived from it, runs on a fresh goroutine, and the caller blocks until
// the call returns. The per-call context is cancelled afterwards so any work
// the call spawned is torn down with it.
package bridge

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/r2d2/r2d2/internal/apperr"
	"github.com/r2d2/r2d2/internal/logging"
)

// Runner executes fn and waits for it
type Runner interface {
	Run(fn func(ctx context.Context) error) error
}

type callKey struct{}

// InCall reports whether ctx belongs to a call started by a Bridge
func InCall(ctx context.Context) bool {
	v, _ := ctx.Value(callKey{}).(bool)
	return v
}

// Bridge is the goroutine-backed Runner
type Bridge struct {
	base    context.Context
	cancel  context.CancelFunc
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Bridge
type Option func(*Bridge)

// WithTimeout bounds every call. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		b.timeout = d
	}
}

// New creates a bridge whose calls derive from parent
func New(parent context.Context, opts ...Option) *Bridge {
	base, cancel := context.WithCancel(parent)
	b := &Bridge{base: base, cancel: cancel}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run executes fn on a new goroutine and blocks until it returns
func (b *Bridge) Run(fn func(ctx context.Context) error) error {
	return b.RunContext(context.Background(), fn)
}

// RunContext is Run for callers that already hold a context. Calling it
// from inside a bridged call fails instead of blocking the caller's own
// call.
func (b *Bridge) RunContext(caller context.Context, fn func(ctx context.Context) error) error {
	if InCall(caller) {
		return apperr.Internal("nested blocking call from inside a bridged call", nil)
	}

	ctx, cancel, err := b.start()
	if err != nil {
		return err
	}
	defer b.wg.Done()
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Error("bridged call panicked",
					logging.String("panic", fmt.Sprint(r)),
					logging.String("stack", string(debug.Stack())))
				done <- apperr.Internal(fmt.Sprintf("bridged call panicked: %v", r), nil)
			}
		}()
		done <- fn(ctx)
	}()

	return <-done
}

func (b *Bridge) start() (context.Context, context.CancelFunc, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed || b.base.Err() != nil {
		return nil, nil, apperr.Internal("failed to start call: bridge is closed", nil)
	}
	b.wg.Add(1)

	marked := context.WithValue(b.base, callKey{}, true)
	if b.timeout > 0 {
		ctx, cancel := context.WithTimeout(marked, b.timeout)
		return ctx, cancel, nil
	}
	ctx, cancel := context.WithCancel(marked)
	return ctx, cancel, nil
}

// Close refuses new calls, cancels running ones and waits for them
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return nil
}

// Inline runs fn on the calling goroutine with a background context
type Inline struct{}

// Run calls fn directly
func (Inline) Run(fn func(ctx context.Context) error) error {
	return fn(context.Background())
}
