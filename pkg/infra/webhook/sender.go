package webhook

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/interfaces"
	"github.com/m-mizutani/refhook/pkg/domain/model"
	"github.com/m-mizutani/refhook/pkg/domain/types"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 1024
)

// Sender delivers hook payloads as JSON POST requests
type Sender struct {
	client *http.Client
}

var _ interfaces.HookSender = (*Sender)(nil)

type Option func(*Sender)

func WithHTTPClient(client *http.Client) Option {
	return func(s *Sender) {
		s.client = client
	}
}

func New(opts ...Option) *Sender {
	s := &Sender{client: &http.Client{Timeout: defaultTimeout}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send posts body to url. Any non-2xx response is an error so the job is retried.
func (s *Sender) Send(ctx context.Context, url, token string, hookType model.HookType, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return goerr.Wrap(err, "failed to build hook request", goerr.V("url", url))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", types.Service+"/"+types.Version)
	req.Header.Set("X-Gitlab-Event", hookType.EventHeader())
	if token != "" {
		req.Header.Set("X-Gitlab-Token", token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return goerr.Wrap(err, "failed to deliver hook", goerr.V("url", url), goerr.V("hook_type", hookType))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return goerr.New("hook endpoint returned error status",
			goerr.V("url", url),
			goerr.V("hook_type", hookType),
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(respBody)),
		)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
