package jira_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/refhook/pkg/domain/model"
	"github.com/m-mizutani/refhook/pkg/infra/jira"
)

type recordedRequest struct {
	Method string
	Path   string
	User   string
	Body   map[string]any
}

func newJiraServer(t *testing.T) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var (
		mu       sync.Mutex
		requests []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, _ := r.BasicAuth()
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, User: user}
		_ = json.NewDecoder(r.Body).Decode(&rec.Body)

		mu.Lock()
		requests = append(requests, rec)
		mu.Unlock()

		switch {
		case r.URL.Path == "/rest/api/2/issue/NOPE-1/comment":
			w.WriteHeader(http.StatusNotFound)
		case strings.HasSuffix(r.URL.Path, "/comment"):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"10000"}`))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	t.Cleanup(srv.Close)

	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), requests...)
	}
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	t.Run("comment", func(t *testing.T) {
		srv, requests := newJiraServer(t)
		integration := &model.JiraIntegration{URL: srv.URL + "/", Username: "bot", Token: "secret"}

		gt.NoError(t, jira.New().AddComment(ctx, integration, "ABC-1", "Issue solved with [abc|https://x]."))
		reqs := requests()
		gt.A(t, reqs).Length(1)
		gt.Equal(t, reqs[0].Path, "/rest/api/2/issue/ABC-1/comment")
		gt.Equal(t, reqs[0].User, "bot")
		gt.Equal(t, reqs[0].Body["body"], any("Issue solved with [abc|https://x]."))
	})

	t.Run("error status", func(t *testing.T) {
		srv, _ := newJiraServer(t)
		integration := &model.JiraIntegration{URL: srv.URL}
		gt.Error(t, jira.New().AddComment(ctx, integration, "NOPE-1", "x"))
	})

	t.Run("transitions in order", func(t *testing.T) {
		srv, requests := newJiraServer(t)
		integration := &model.JiraIntegration{URL: srv.URL, CloseTransitionID: "21, 31"}

		gt.NoError(t, jira.New().TransitionIssue(ctx, integration, "ABC-1"))
		reqs := requests()
		gt.A(t, reqs).Length(2)
		gt.Equal(t, reqs[0].Path, "/rest/api/2/issue/ABC-1/transitions")
		gt.Equal(t, reqs[0].Body["transition"].(map[string]any)["id"], any("21"))
		gt.Equal(t, reqs[1].Body["transition"].(map[string]any)["id"], any("31"))
	})

	t.Run("no transition configured", func(t *testing.T) {
		srv, requests := newJiraServer(t)
		gt.NoError(t, jira.New().TransitionIssue(ctx, &model.JiraIntegration{URL: srv.URL}, "ABC-1"))
		gt.A(t, requests()).Length(0)
	})

	t.Run("dev info sync and remove", func(t *testing.T) {
		srv, requests := newJiraServer(t)
		integration := &model.JiraIntegration{URL: srv.URL}
		client := jira.New()

		gt.NoError(t, client.SyncDevInfo(ctx, integration, model.JiraConnectSyncArgs{
			ProjectID: 1, BranchName: "ABC-1-fix", CommitSHAs: []string{"a", "b"}, UpdateSeqID: 7,
		}, false))
		gt.NoError(t, client.SyncDevInfo(ctx, integration, model.JiraConnectSyncArgs{
			ProjectID: 1, BranchName: "ABC-1-fix", UpdateSeqID: 8,
		}, true))

		reqs := requests()
		gt.A(t, reqs).Length(2)
		gt.Equal(t, reqs[0].Method, http.MethodPost)
		gt.Equal(t, reqs[0].Path, "/rest/devinfo/0.10/bulk")
		repos := reqs[0].Body["repositories"].([]any)
		gt.A(t, repos[0].(map[string]any)["commits"].([]any)).Length(2)
		gt.Equal(t, reqs[1].Method, http.MethodDelete)
		gt.Equal(t, reqs[1].Path, "/rest/devinfo/0.10/repository/1/branch/ABC-1-fix")
	})
}
