package usecase

import (
	"context"
	"strconv"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/model"
)

const (
	HousekeepingFullRepack        = "full_repack"
	HousekeepingIncrementalRepack = "incremental_repack"

	fullRepackLeaseTTL        = 24 * time.Hour
	incrementalRepackLeaseTTL = time.Hour
)

func housekeepingKey(repo model.GLRepository) string {
	return string(repo.Type) + "-" + strconv.FormatInt(repo.ProjectID, 10)
}

// task picks the repack due after the n-th push, or "" when none is
func (c HousekeepingConfig) task(n int64) string {
	switch {
	case c.FullRepackPeriod > 0 && n%int64(c.FullRepackPeriod) == 0:
		return HousekeepingFullRepack
	case c.IncrementalRepackPeriod > 0 && n%int64(c.IncrementalRepackPeriod) == 0:
		return HousekeepingIncrementalRepack
	default:
		return ""
	}
}

// ExecuteHousekeeping counts the push and schedules a repack when one is due.
// It returns the scheduled task, or "" when nothing was scheduled.
func (uc *UseCase) ExecuteHousekeeping(ctx context.Context, repo model.GLRepository) (string, error) {
	if uc.counter == nil || uc.lease == nil {
		return "", nil
	}

	key := housekeepingKey(repo)
	n, err := uc.counter.Increment(ctx, "pushes_since_gc:"+key)
	if err != nil {
		return "", err
	}

	task := uc.housekeeping.task(n)
	if task == "" {
		return "", nil
	}

	ttl := incrementalRepackLeaseTTL
	if task == HousekeepingFullRepack {
		ttl = fullRepackLeaseTTL
	}
	leaseKey := "housekeeping:" + key
	uuid, err := uc.lease.TryObtain(ctx, leaseKey, ttl)
	if err != nil {
		return "", err
	}
	if uuid == "" {
		ctxlog.From(ctx).Debug("housekeeping lease taken", "key", leaseKey)
		return "", nil
	}

	if _, err := uc.queue.PerformAsync(ctx, model.JobHousekeeping, model.HousekeepingArgs{
		ProjectID: repo.ProjectID,
		Wiki:      repo.Type == model.RepoTypeWiki,
		Task:      task,
		LeaseKey:  leaseKey,
		LeaseUUID: uuid,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to enqueue housekeeping", goerr.V("key", key))
	}
	return task, nil
}

func (uc *UseCase) runHousekeeping(ctx context.Context, args model.HousekeepingArgs) error {
	project, err := uc.db.GetProject(ctx, args.ProjectID)
	if err != nil {
		return err
	}
	path := project.RepositoryPath
	repoType := model.RepoTypeProject
	if args.Wiki {
		path = project.WikiRepositoryPath
		repoType = model.RepoTypeWiki
	}

	repo, err := uc.repos.Open(ctx, path)
	if err != nil {
		return err
	}

	full := args.Task == HousekeepingFullRepack
	before, _ := repo.LooseObjectCount(ctx)
	if err := repo.Repack(ctx, full); err != nil {
		return err
	}
	after, _ := repo.LooseObjectCount(ctx)

	if full {
		key := housekeepingKey(model.GLRepository{Type: repoType, ProjectID: args.ProjectID})
		if err := uc.counter.Reset(ctx, "pushes_since_gc:"+key); err != nil {
			return err
		}
	}
	if err := uc.lease.Cancel(ctx, args.LeaseKey, args.LeaseUUID); err != nil {
		return err
	}

	ctxlog.From(ctx).Info("repository repacked",
		"project_id", args.ProjectID,
		"task", args.Task,
		"loose_before", before,
		"loose_after", after,
	)
	return nil
}
