package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/model"
)

const selectProjectFields = `id, name, full_path, web_url, default_branch,
	repository_path, wiki_repository_path, wiki_default_branch,
	issues_enabled, remote_mirrors_enabled, default_branch_protection`

func (c *Client) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+selectProjectFields+` FROM projects WHERE id = ?`, id)

	var p model.Project
	var protection int
	err := row.Scan(&p.ID, &p.Name, &p.FullPath, &p.WebURL, &p.DefaultBranch,
		&p.RepositoryPath, &p.WikiRepositoryPath, &p.WikiDefaultBranch,
		&p.IssuesEnabled, &p.RemoteMirrorsEnabled, &protection)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(model.ErrNotFound, "project not found", goerr.V("project_id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get project", goerr.V("project_id", id))
	}
	p.DefaultBranchProtection = model.BranchProtection(protection)
	return &p, nil
}

// PutProject inserts or replaces a project
func (c *Client) PutProject(ctx context.Context, p *model.Project) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO projects (`+selectProjectFields+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.FullPath, p.WebURL, p.DefaultBranch,
		p.RepositoryPath, p.WikiRepositoryPath, p.WikiDefaultBranch,
		boolToInt(p.IssuesEnabled), boolToInt(p.RemoteMirrorsEnabled), int(p.DefaultBranchProtection),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to put project", goerr.V("project_id", p.ID))
	}
	return nil
}

func (c *Client) SetDefaultBranch(ctx context.Context, projectID int64, branch string) error {
	res, err := c.db.ExecContext(ctx, `UPDATE projects SET default_branch = ? WHERE id = ?`, branch, projectID)
	if err != nil {
		return goerr.Wrap(err, "failed to set default branch", goerr.V("project_id", projectID))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return goerr.Wrap(model.ErrNotFound, "project not found", goerr.V("project_id", projectID))
	}
	return nil
}

func (c *Client) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := c.db.QueryRowContext(ctx, `SELECT id, username, name, email FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.Name, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(model.ErrNotFound, "user not found", goerr.V("user_id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get user", goerr.V("user_id", id))
	}
	return &u, nil
}

// FindUserByEmail returns nil without error when no user has the email
func (c *Client) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := c.db.QueryRowContext(ctx,
		`SELECT id, username, name, email FROM users WHERE lower(email) = lower(?) ORDER BY id LIMIT 1`, email).
		Scan(&u.ID, &u.Username, &u.Name, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to find user by email")
	}
	return &u, nil
}

// PutUser inserts or replaces a user
func (c *Client) PutUser(ctx context.Context, u *model.User) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO users (id, username, name, email) VALUES (?, ?, ?, ?)`,
		u.ID, u.Username, u.Name, u.Email)
	if err != nil {
		return goerr.Wrap(err, "failed to put user", goerr.V("user_id", u.ID))
	}
	return nil
}
