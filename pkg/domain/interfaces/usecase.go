package interfaces

import (
	"context"

	"github.com/m-mizutani/refhook/pkg/domain/model"
)

// PostReceiveUseCase processes one push notification
type PostReceiveUseCase interface {
	PostReceive(ctx context.Context, req *model.PostReceiveRequest) (*model.PushResult, error)
}

// JobRunner executes one dequeued job
type JobRunner interface {
	RunJob(ctx context.Context, job *model.Job) error
}
