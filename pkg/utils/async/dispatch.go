package async

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
)

// Group runs handlers in background goroutines detached from the caller's
// cancellation and keeps track of them so shutdown can wait for completion.
type Group struct {
	wg      sync.WaitGroup
	onError func(ctx context.Context, err error)
}

type Option func(*Group)

// WithErrorHandler receives handler errors and recovered panics. Errors are only logged by default.
func WithErrorHandler(fn func(ctx context.Context, err error)) Option {
	return func(g *Group) { g.onError = fn }
}

func NewGroup(opts ...Option) *Group {
	g := &Group{
		onError: func(ctx context.Context, err error) {
			ctxlog.From(ctx).Error("error in async handler", "error", err)
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Dispatch executes handler asynchronously. The handler context keeps the
// logger of ctx but is not cancelled with it. Panics are recovered and logged
// with a stack trace.
func (g *Group) Dispatch(ctx context.Context, name string, handler func(ctx context.Context) error) {
	newCtx := newBackgroundContext(ctx, name)

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				ctxlog.From(newCtx).Error("panic in async handler",
					"recover", r,
					"stack", string(stack))
				g.onError(newCtx, goerr.New("panic in async handler", goerr.V("recover", r)))
			}
		}()

		if err := handler(newCtx); err != nil {
			g.onError(newCtx, err)
		}
	}()
}

// Wait blocks until every dispatched handler returned or ctx is done
func (g *Group) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "async handlers still running")
	}
}

func newBackgroundContext(ctx context.Context, name string) context.Context {
	logger := ctxlog.From(ctx)
	if name != "" {
		logger = logger.With("async", name)
	}
	return ctxlog.With(context.Background(), logger)
}
