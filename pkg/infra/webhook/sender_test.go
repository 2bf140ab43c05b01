package webhook_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/refhook/pkg/domain/model"
	"github.com/m-mizutani/refhook/pkg/infra/webhook"
)

func TestSender(t *testing.T) {
	var (
		gotEvent, gotToken string
		gotBody            []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEvent = r.Header.Get("X-Gitlab-Event")
		gotToken = r.Header.Get("X-Gitlab-Token")
		gotBody, _ = io.ReadAll(r.Body)
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := webhook.New()
	ctx := context.Background()

	t.Run("delivers with headers", func(t *testing.T) {
		err := sender.Send(ctx, srv.URL+"/ok", "secret-token", model.TagPushHooks, []byte(`{"object_kind":"tag_push"}`))
		gt.NoError(t, err)
		gt.Equal(t, gotEvent, "Tag Push Hook")
		gt.Equal(t, gotToken, "secret-token")
		gt.Equal(t, string(gotBody), `{"object_kind":"tag_push"}`)
	})

	t.Run("error status fails", func(t *testing.T) {
		err := sender.Send(ctx, srv.URL+"/fail", "", model.PushHooks, []byte(`{}`))
		gt.Error(t, err)
		gt.Equal(t, gotToken, "")
	})
}
