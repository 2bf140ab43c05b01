package sentry

import (
	"context"
	"errors"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/interfaces"
	"github.com/m-mizutani/refhook/pkg/domain/types"
)

// Tracker logs errors and sends them to Sentry
type Tracker struct {
	hub *sentry.Hub
}

var _ interfaces.ErrorTracker = (*Tracker)(nil)

// New creates a Tracker. Release defaults to the build version.
func New(opts sentry.ClientOptions) (*Tracker, error) {
	if opts.Release == "" {
		opts.Release = types.Service + "@" + types.Version
	}
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create sentry client")
	}
	return &Tracker{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (x *Tracker) Report(ctx context.Context, err error, tags map[string]string) {
	ctxlog.From(ctx).Error("error reported", "error", err, "tags", tags)

	x.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		var gerr *goerr.Error
		if errors.As(err, &gerr) {
			scope.SetContext("goerr", sentry.Context(gerr.Values()))
		}
		x.hub.CaptureException(err)
	})
}

// Flush waits for buffered events to be sent
func (x *Tracker) Flush(timeout time.Duration) bool {
	return x.hub.Flush(timeout)
}

// Nop only logs errors. It is used when no Sentry DSN is configured.
type Nop struct{}

var _ interfaces.ErrorTracker = Nop{}

func (Nop) Report(ctx context.Context, err error, tags map[string]string) {
	ctxlog.From(ctx).Error("error reported", "error", err, "tags", tags)
}
