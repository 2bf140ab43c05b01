package async_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/refhook/pkg/utils/async"
)

// safeBuffer is a thread-safe buffer for concurrent logging
type safeBuffer struct {
	b bytes.Buffer
	m sync.Mutex
}

func (sb *safeBuffer) Write(p []byte) (int, error) {
	sb.m.Lock()
	defer sb.m.Unlock()
	return sb.b.Write(p)
}

func (sb *safeBuffer) String() string {
	sb.m.Lock()
	defer sb.m.Unlock()
	return sb.b.String()
}

// syncHandler is a slog.Handler that signals when a log is written
type syncHandler struct {
	handler slog.Handler
	done    chan struct{}
}

func newSyncHandler(buf *safeBuffer) *syncHandler {
	return &syncHandler{
		handler: slog.NewTextHandler(buf, &slog.HandlerOptions{
			Level: slog.LevelError,
		}),
		done: make(chan struct{}, 1),
	}
}

func (h *syncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *syncHandler) Handle(ctx context.Context, r slog.Record) error {
	err := h.handler.Handle(ctx, r)
	select {
	case h.done <- struct{}{}:
	default:
	}
	return err
}

func (h *syncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &syncHandler{
		handler: h.handler.WithAttrs(attrs),
		done:    h.done,
	}
}

func (h *syncHandler) WithGroup(name string) slog.Handler {
	return &syncHandler{
		handler: h.handler.WithGroup(name),
		done:    h.done,
	}
}

func TestDispatch(t *testing.T) {
	t.Run("executes handler asynchronously", func(t *testing.T) {
		g := async.NewGroup()
		executed := false

		g.Dispatch(context.Background(), "test", func(ctx context.Context) error {
			executed = true
			return nil
		})

		gt.NoError(t, g.Wait(context.Background()))
		gt.True(t, executed)
	})

	t.Run("passes errors to the error handler", func(t *testing.T) {
		var got error
		g := async.NewGroup(async.WithErrorHandler(func(ctx context.Context, err error) {
			got = err
		}))

		g.Dispatch(context.Background(), "test", func(ctx context.Context) error {
			return errors.New("test error")
		})

		gt.NoError(t, g.Wait(context.Background()))
		gt.V(t, got).NotNil()
		gt.String(t, got.Error()).Contains("test error")
	})

	t.Run("recovers from panic", func(t *testing.T) {
		var got error
		g := async.NewGroup(async.WithErrorHandler(func(ctx context.Context, err error) {
			got = err
		}))

		g.Dispatch(context.Background(), "test", func(ctx context.Context) error {
			panic("test panic")
		})

		gt.NoError(t, g.Wait(context.Background()))
		gt.V(t, got).NotNil()
	})

	t.Run("recovers from panic with stack trace", func(t *testing.T) {
		logBuf := &safeBuffer{}
		handler := newSyncHandler(logBuf)
		ctx := ctxlog.With(context.Background(), slog.New(handler))

		g := async.NewGroup(async.WithErrorHandler(func(ctx context.Context, err error) {}))
		g.Dispatch(ctx, "post_receive", func(ctx context.Context) error {
			panic("test panic with stack")
		})
		gt.NoError(t, g.Wait(context.Background()))

		select {
		case <-handler.done:
		case <-time.After(1 * time.Second):
			t.Fatal("log was not written within timeout")
		}

		logOutput := logBuf.String()
		gt.True(t, strings.Contains(logOutput, "panic in async handler"))
		gt.True(t, strings.Contains(logOutput, "test panic with stack"))
		gt.True(t, strings.Contains(logOutput, "async=post_receive"))
		gt.True(t, strings.Contains(logOutput, "goroutine"))
		gt.True(t, strings.Contains(logOutput, "dispatch_test.go"))
	})

	t.Run("preserves logger", func(t *testing.T) {
		ctx := ctxlog.With(context.Background(), slog.Default())
		g := async.NewGroup()

		g.Dispatch(ctx, "", func(newCtx context.Context) error {
			gt.NotNil(t, ctxlog.From(newCtx))
			return nil
		})
		gt.NoError(t, g.Wait(context.Background()))
	})

	t.Run("creates new background context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		g := async.NewGroup()
		cancelled := false

		g.Dispatch(ctx, "", func(newCtx context.Context) error {
			cancel()
			select {
			case <-newCtx.Done():
				cancelled = true
			default:
			}
			return nil
		})

		gt.NoError(t, g.Wait(context.Background()))
		gt.False(t, cancelled)
	})
}

func TestGroup_Wait(t *testing.T) {
	t.Run("waits for every handler", func(t *testing.T) {
		g := async.NewGroup()
		var mu sync.Mutex
		count := 0

		for range 5 {
			g.Dispatch(context.Background(), "", func(ctx context.Context) error {
				time.Sleep(10 * time.Millisecond)
				mu.Lock()
				defer mu.Unlock()
				count++
				return nil
			})
		}

		gt.NoError(t, g.Wait(context.Background()))
		gt.Equal(t, count, 5)
	})

	t.Run("gives up when context expires", func(t *testing.T) {
		g := async.NewGroup()
		release := make(chan struct{})
		defer close(release)

		g.Dispatch(context.Background(), "", func(ctx context.Context) error {
			<-release
			return nil
		})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		gt.Error(t, g.Wait(ctx))
	})
}
