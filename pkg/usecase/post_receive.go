package usecase

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/model"
)

// PostReceive processes one push of a project or wiki repository
func (uc *UseCase) PostReceive(ctx context.Context, req *model.PostReceiveRequest) (*model.PushResult, error) {
	glRepo, err := model.ParseGLRepository(req.GLRepository)
	if err != nil {
		return nil, goerr.Wrap(model.ErrInvalidRequest, err.Error(), goerr.V("gl_repository", req.GLRepository))
	}
	changes, err := model.ParseRefChanges(req.Changes)
	if err != nil {
		return nil, goerr.Wrap(model.ErrInvalidRequest, err.Error())
	}

	ctx = ctxlog.With(ctx, ctxlog.From(ctx).With("gl_repository", glRepo.String(), "user_id", req.UserID))
	logger := ctxlog.From(ctx)

	project, err := uc.db.GetProject(ctx, glRepo.ProjectID)
	if err != nil {
		return nil, err
	}
	user, err := uc.db.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	path := project.RepositoryPath
	if glRepo.Type == model.RepoTypeWiki {
		path = project.WikiRepositoryPath
	}
	repo, err := uc.repos.Open(ctx, path)
	if err != nil {
		return nil, err
	}

	pc := uc.NewPushContext(project, user, repo, req.PushOptions)

	var result *model.PushResult
	if glRepo.Type == model.RepoTypeWiki {
		result = &model.PushResult{WikiEvents: uc.ProcessWikiChanges(ctx, pc, changes)}
	} else {
		result = uc.ProcessRefChanges(ctx, pc, changes)
	}

	if err := uc.sendRepositoryUpdate(ctx, project, user, changes); err != nil {
		uc.tracker.Report(ctx, err, map[string]string{"step": "repository_update_hooks"})
	}

	if task, err := uc.ExecuteHousekeeping(ctx, glRepo); err != nil {
		uc.tracker.Report(ctx, err, map[string]string{"step": "housekeeping"})
	} else if task != "" {
		logger.Info("housekeeping scheduled", "task", task)
	}

	return result, nil
}

// sendRepositoryUpdate notifies system hooks once per push
func (uc *UseCase) sendRepositoryUpdate(ctx context.Context, project *model.Project, user *model.User, changes model.RefChanges) error {
	if len(changes) == 0 {
		return nil
	}

	data := model.RepositoryUpdateData{
		EventName: "repository_update",
		UserID:    user.ID,
		UserName:  user.Name,
		UserEmail: user.Email,
		ProjectID: project.ID,
		Project:   projectData(project),
	}
	for _, c := range changes {
		data.Changes = append(data.Changes, model.RepositoryUpdateChange{Before: c.OldRev, After: c.NewRev, Ref: c.Ref})
		data.Refs = append(data.Refs, c.Ref)
	}

	body, err := json.Marshal(data)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal repository update")
	}
	return uc.dispatchSystemHooks(ctx, model.RepositoryUpdateHooks, body)
}
