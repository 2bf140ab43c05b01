package db

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/model"
)

func (c *Client) ListProtectedBranches(ctx context.Context, projectID int64) ([]*model.ProtectedBranch, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, project_id, name, push_access_level, merge_access_level
		FROM protected_branches WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list protected branches", goerr.V("project_id", projectID))
	}
	defer rows.Close()

	var branches []*model.ProtectedBranch
	for rows.Next() {
		var b model.ProtectedBranch
		if err := rows.Scan(&b.ID, &b.ProjectID, &b.Name, &b.PushAccessLevel, &b.MergeAccessLevel); err != nil {
			return nil, goerr.Wrap(err, "failed to scan protected branch", goerr.V("project_id", projectID))
		}
		branches = append(branches, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate protected branches", goerr.V("project_id", projectID))
	}
	return branches, nil
}

func (c *Client) CreateProtectedBranch(ctx context.Context, b *model.ProtectedBranch) error {
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO protected_branches (project_id, name, push_access_level, merge_access_level)
		VALUES (?, ?, ?, ?)`,
		b.ProjectID, b.Name, int(b.PushAccessLevel), int(b.MergeAccessLevel))
	if err != nil {
		return goerr.Wrap(err, "failed to create protected branch",
			goerr.V("project_id", b.ProjectID), goerr.V("name", b.Name))
	}
	if b.ID, err = res.LastInsertId(); err != nil {
		return goerr.Wrap(err, "failed to get protected branch id")
	}
	return nil
}

// PutEnvironment inserts an environment and sets its ID
func (c *Client) PutEnvironment(ctx context.Context, env *model.Environment) error {
	state := env.State
	if state == "" {
		state = model.EnvironmentAvailable
	}
	res, err := c.db.ExecContext(ctx, `INSERT INTO environments (project_id, name, ref, state) VALUES (?, ?, ?, ?)`,
		env.ProjectID, env.Name, env.Ref, string(state))
	if err != nil {
		return goerr.Wrap(err, "failed to put environment", goerr.V("name", env.Name))
	}
	if env.ID, err = res.LastInsertId(); err != nil {
		return goerr.Wrap(err, "failed to get environment id")
	}
	env.State = state
	return nil
}

func (c *Client) StopEnvironmentsForBranch(ctx context.Context, projectID int64, branch string) ([]*model.Environment, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, project_id, name, ref FROM environments
		WHERE project_id = ? AND ref = ? AND state = ?`, projectID, branch, string(model.EnvironmentAvailable))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to find environments", goerr.V("branch", branch))
	}

	var stopped []*model.Environment
	for rows.Next() {
		env := model.Environment{State: model.EnvironmentStopped}
		if err := rows.Scan(&env.ID, &env.ProjectID, &env.Name, &env.Ref); err != nil {
			rows.Close()
			return nil, goerr.Wrap(err, "failed to scan environment", goerr.V("branch", branch))
		}
		stopped = append(stopped, &env)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate environments", goerr.V("branch", branch))
	}

	for _, env := range stopped {
		if _, err := tx.ExecContext(ctx, `UPDATE environments SET state = ? WHERE id = ?`,
			string(model.EnvironmentStopped), env.ID); err != nil {
			return nil, goerr.Wrap(err, "failed to stop environment", goerr.V("environment", env.Name))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, goerr.Wrap(err, "failed to commit environment stop", goerr.V("branch", branch))
	}
	return stopped, nil
}
