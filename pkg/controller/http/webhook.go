package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/go-github/v61/github"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	githubctrl "github.com/m-mizutani/refhook/pkg/controller/github"
	"github.com/m-mizutani/refhook/pkg/domain/interfaces"
	"github.com/m-mizutani/refhook/pkg/utils/async"
)

// WebhookHandler turns GitHub push webhooks into post-receive notifications
type WebhookHandler struct {
	secret    string
	converter *githubctrl.PushConverter
	uc        interfaces.PostReceiveUseCase
	group     *async.Group
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(secret string, converter *githubctrl.PushConverter, uc interfaces.PostReceiveUseCase, group *async.Group) *WebhookHandler {
	return &WebhookHandler{
		secret:    secret,
		converter: converter,
		uc:        uc,
		group:     group,
	}
}

// Handle processes webhook requests
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := ctxlog.From(ctx)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("Failed to read request body", "error", err)
		writeError(w, goerr.Wrap(err, "failed to read request body"), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	signature := r.Header.Get("X-Hub-Signature-256")
	if err := github.ValidateSignature(signature, body, []byte(h.secret)); err != nil {
		logger.Warn("Invalid webhook signature", "error", err)
		writeError(w, goerr.New("invalid signature"), http.StatusUnauthorized)
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	payload, err := github.ParseWebHook(eventType, body)
	if err != nil {
		logger.Error("Failed to parse webhook payload", "error", err, "event_type", eventType)
		writeError(w, goerr.Wrap(err, "invalid JSON payload"), http.StatusBadRequest)
		return
	}

	event, ok := payload.(*github.PushEvent)
	if !ok {
		logger.Info("Ignoring unsupported event type", "event_type", eventType)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	req, err := h.converter.Convert(ctx, event)
	if errors.Is(err, githubctrl.ErrUnmappedRepository) {
		logger.Info("Ignoring push of unmapped repository", "repository", event.GetRepo().GetFullName())
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	logger.Info("GitHub push accepted",
		"delivery", r.Header.Get("X-GitHub-Delivery"),
		"repository", event.GetRepo().GetFullName(),
		"ref", event.GetRef(),
	)
	dispatchPostReceive(ctx, h.group, h.uc, req)

	writeJSON(w, http.StatusOK, &postReceiveResponse{
		Status:  "accepted",
		Changes: len(req.Changes),
	})
}
