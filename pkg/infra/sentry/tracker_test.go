package sentry_test

import (
	"context"
	"sync"
	"testing"

	gosentry "github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/refhook/pkg/infra/sentry"
)

func TestTracker(t *testing.T) {
	var (
		mu     sync.Mutex
		events []*gosentry.Event
	)
	tracker, err := sentry.New(gosentry.ClientOptions{
		Dsn: "https://public@sentry.example.com/1",
		BeforeSend: func(event *gosentry.Event, hint *gosentry.EventHint) *gosentry.Event {
			mu.Lock()
			events = append(events, event)
			mu.Unlock()
			return nil
		},
	})
	gt.NoError(t, err)

	tracker.Report(context.Background(),
		goerr.New("pipeline creation failed", goerr.V("project_id", 1)),
		map[string]string{"step": "create_pipeline"},
	)

	mu.Lock()
	defer mu.Unlock()
	gt.A(t, events).Length(1)
	gt.Equal(t, events[0].Tags["step"], "create_pipeline")
	gt.V(t, events[0].Contexts["goerr"]).NotNil()
}

func TestNop(t *testing.T) {
	sentry.Nop{}.Report(context.Background(), goerr.New("ignored"), nil)
}
