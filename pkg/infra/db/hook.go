package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/model"
)

const selectHookFields = `id, project_id, url, token, push_events, tag_push_events, wiki_page_events, push_events_branch_filter`

func scanHook(row scanner) (*model.ProjectHook, error) {
	var h model.ProjectHook
	if err := row.Scan(&h.ID, &h.ProjectID, &h.URL, &h.Token, &h.PushEvents, &h.TagPushEvents,
		&h.WikiPageEvents, &h.PushEventsBranchFilter); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) ListProjectHooks(ctx context.Context, projectID int64) ([]*model.ProjectHook, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+selectHookFields+` FROM project_hooks WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list project hooks", goerr.V("project_id", projectID))
	}
	defer rows.Close()

	var hooks []*model.ProjectHook
	for rows.Next() {
		h, err := scanHook(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan project hook", goerr.V("project_id", projectID))
		}
		hooks = append(hooks, h)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate project hooks", goerr.V("project_id", projectID))
	}
	return hooks, nil
}

func (c *Client) GetProjectHook(ctx context.Context, id int64) (*model.ProjectHook, error) {
	h, err := scanHook(c.db.QueryRowContext(ctx, `SELECT `+selectHookFields+` FROM project_hooks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(model.ErrNotFound, "project hook not found", goerr.V("hook_id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get project hook", goerr.V("hook_id", id))
	}
	return h, nil
}

// PutProjectHook inserts a hook and sets its ID
func (c *Client) PutProjectHook(ctx context.Context, h *model.ProjectHook) error {
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO project_hooks (project_id, url, token, push_events, tag_push_events, wiki_page_events, push_events_branch_filter)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.ProjectID, h.URL, h.Token, boolToInt(h.PushEvents), boolToInt(h.TagPushEvents),
		boolToInt(h.WikiPageEvents), h.PushEventsBranchFilter)
	if err != nil {
		return goerr.Wrap(err, "failed to put project hook", goerr.V("project_id", h.ProjectID))
	}
	if h.ID, err = res.LastInsertId(); err != nil {
		return goerr.Wrap(err, "failed to get project hook id")
	}
	return nil
}

// GetJiraIntegration returns nil without error when the project has no Jira integration
func (c *Client) GetJiraIntegration(ctx context.Context, projectID int64) (*model.JiraIntegration, error) {
	var j model.JiraIntegration
	err := c.db.QueryRowContext(ctx, `
		SELECT project_id, url, username, token, close_transition_id, commit_events
		FROM jira_integrations WHERE project_id = ?`, projectID).
		Scan(&j.ProjectID, &j.URL, &j.Username, &j.Token, &j.CloseTransitionID, &j.CommitEvents)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get jira integration", goerr.V("project_id", projectID))
	}
	return &j, nil
}

func (c *Client) PutJiraIntegration(ctx context.Context, j *model.JiraIntegration) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO jira_integrations (project_id, url, username, token, close_transition_id, commit_events)
		VALUES (?, ?, ?, ?, ?, ?)`,
		j.ProjectID, j.URL, j.Username, j.Token, j.CloseTransitionID, boolToInt(j.CommitEvents))
	if err != nil {
		return goerr.Wrap(err, "failed to put jira integration", goerr.V("project_id", j.ProjectID))
	}
	return nil
}

// GetSlackIntegration returns nil without error when the project has no Slack integration
func (c *Client) GetSlackIntegration(ctx context.Context, projectID int64) (*model.SlackIntegration, error) {
	var s model.SlackIntegration
	err := c.db.QueryRowContext(ctx, `
		SELECT project_id, webhook_url, channel, push_events, tag_push_events, branch_filter
		FROM slack_integrations WHERE project_id = ?`, projectID).
		Scan(&s.ProjectID, &s.WebhookURL, &s.Channel, &s.PushEvents, &s.TagPushEvents, &s.BranchFilter)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get slack integration", goerr.V("project_id", projectID))
	}
	return &s, nil
}

func (c *Client) PutSlackIntegration(ctx context.Context, s *model.SlackIntegration) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO slack_integrations (project_id, webhook_url, channel, push_events, tag_push_events, branch_filter)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ProjectID, s.WebhookURL, s.Channel, boolToInt(s.PushEvents), boolToInt(s.TagPushEvents), s.BranchFilter)
	if err != nil {
		return goerr.Wrap(err, "failed to put slack integration", goerr.V("project_id", s.ProjectID))
	}
	return nil
}

func (c *Client) HasJiraConnectSubscription(ctx context.Context, projectID int64) (bool, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jira_connect_subscriptions WHERE project_id = ?`, projectID).Scan(&n); err != nil {
		return false, goerr.Wrap(err, "failed to look up jira connect subscription", goerr.V("project_id", projectID))
	}
	return n > 0, nil
}

func (c *Client) AddJiraConnectSubscription(ctx context.Context, projectID int64) error {
	if _, err := c.db.ExecContext(ctx, `INSERT OR IGNORE INTO jira_connect_subscriptions (project_id) VALUES (?)`, projectID); err != nil {
		return goerr.Wrap(err, "failed to add jira connect subscription", goerr.V("project_id", projectID))
	}
	return nil
}
