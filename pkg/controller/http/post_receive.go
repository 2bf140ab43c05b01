package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/interfaces"
	"github.com/m-mizutani/refhook/pkg/domain/model"
	"github.com/m-mizutani/refhook/pkg/utils/async"
)

const maxPostReceiveBody = 4 << 20

type postReceiveResponse struct {
	Status  string `json:"status"`
	Changes int    `json:"changes"`
}

// PostReceiveHandler accepts post-receive notifications of the Git server
type PostReceiveHandler struct {
	uc       interfaces.PostReceiveUseCase
	validate *validator.Validate
	group    *async.Group
}

// NewPostReceiveHandler creates a new PostReceiveHandler
func NewPostReceiveHandler(uc interfaces.PostReceiveUseCase, validate *validator.Validate, group *async.Group) *PostReceiveHandler {
	return &PostReceiveHandler{uc: uc, validate: validate, group: group}
}

// Handle validates the notification, answers immediately and processes the push in background
func (h *PostReceiveHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := ctxlog.From(ctx)

	var req model.PostReceiveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPostReceiveBody)).Decode(&req); err != nil {
		writeError(w, goerr.Wrap(err, "invalid JSON payload"), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, goerr.Wrap(err, "invalid post-receive request"), http.StatusBadRequest)
		return
	}
	if _, err := model.ParseGLRepository(req.GLRepository); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	changes, err := model.ParseRefChanges(req.Changes)
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	req.ReceivedAt = time.Now()

	logger.Info("post-receive accepted",
		"gl_repository", req.GLRepository,
		"user_id", req.UserID,
		"changes", len(changes),
	)

	dispatchPostReceive(ctx, h.group, h.uc, &req)

	writeJSON(w, http.StatusOK, &postReceiveResponse{
		Status:  "accepted",
		Changes: len(changes),
	})
}

func dispatchPostReceive(ctx context.Context, group *async.Group, uc interfaces.PostReceiveUseCase, req *model.PostReceiveRequest) {
	group.Dispatch(ctx, "post_receive", func(ctx context.Context) error {
		result, err := uc.PostReceive(ctx, req)
		if err != nil {
			return goerr.Wrap(err, "failed to process push", goerr.V("gl_repository", req.GLRepository))
		}
		ctxlog.From(ctx).Info("push processed",
			"gl_repository", req.GLRepository,
			"changes", len(result.Changes),
			"hooks_executed", result.HooksExecuted,
			"pipelines_requested", result.PipelinesQueued,
			"wiki_events", result.WikiEvents,
			"errors", len(result.Errors()),
		)
		return nil
	})
}
