package usecase

import (
	"context"

	"github.com/m-mizutani/refhook/pkg/domain/model"
)

// enumerateCommits lists the commits introduced by a branch change, newest first,
// asking the repository for one more than the limit to detect overflow.
func (b *branchHooks) enumerateCommits(ctx context.Context, change model.RefChange) ([]*model.Commit, model.ProcessingOutcome, error) {
	limit := b.uc.limits.ProcessCommitLimit
	project := b.pc.Project

	var (
		commits []*model.Commit
		err     error
	)
	switch {
	case change.IsRemoved():
		return nil, model.ProcessingOutcome{}, nil
	case change.IsCreated() && (project.IsEmptyRepo() || b.isDefault(change)):
		commits, err = b.pc.Repo.Commits(ctx, change.NewRev, limit+1)
	case b.isNewBranch(ctx, change):
		commits, err = b.pc.Repo.CommitsBetween(ctx, project.DefaultBranch, change.NewRev, limit+1)
	default:
		commits, err = b.pc.Repo.CommitsBetween(ctx, change.OldRev, change.NewRev, limit+1)
	}
	if err != nil {
		return nil, model.ProcessingOutcome{}, err
	}

	return commits, boundOutcome(len(commits), limit), nil
}

func boundOutcome(n, limit int) model.ProcessingOutcome {
	if n <= limit {
		return model.ProcessingOutcome{Processed: n}
	}
	return model.ProcessingOutcome{Processed: limit, SkippedDueToLimit: n - limit}
}
