package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/model"
)

const selectMirrorFields = `id, project_id, url, enabled, update_status, last_error, last_update_started_at`

func scanMirror(row scanner) (*model.RemoteMirror, error) {
	var m model.RemoteMirror
	var status string
	if err := row.Scan(&m.ID, &m.ProjectID, &m.URL, &m.Enabled, &status, &m.LastError, &m.LastUpdateStartedAt); err != nil {
		return nil, err
	}
	m.UpdateStatus = model.MirrorStatus(status)
	return &m, nil
}

func (c *Client) ListRemoteMirrors(ctx context.Context, projectID int64) ([]*model.RemoteMirror, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+selectMirrorFields+` FROM remote_mirrors WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list remote mirrors", goerr.V("project_id", projectID))
	}
	defer rows.Close()

	var mirrors []*model.RemoteMirror
	for rows.Next() {
		m, err := scanMirror(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan remote mirror", goerr.V("project_id", projectID))
		}
		mirrors = append(mirrors, m)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate remote mirrors", goerr.V("project_id", projectID))
	}
	return mirrors, nil
}

func (c *Client) GetRemoteMirror(ctx context.Context, id int64) (*model.RemoteMirror, error) {
	m, err := scanMirror(c.db.QueryRowContext(ctx, `SELECT `+selectMirrorFields+` FROM remote_mirrors WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(model.ErrNotFound, "remote mirror not found", goerr.V("mirror_id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get remote mirror", goerr.V("mirror_id", id))
	}
	return m, nil
}

// PutRemoteMirror inserts a mirror and sets its ID
func (c *Client) PutRemoteMirror(ctx context.Context, m *model.RemoteMirror) error {
	status := m.UpdateStatus
	if status == "" {
		status = model.MirrorNone
	}
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO remote_mirrors (project_id, url, enabled, update_status, last_error, last_update_started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ProjectID, m.URL, boolToInt(m.Enabled), string(status), m.LastError, m.LastUpdateStartedAt)
	if err != nil {
		return goerr.Wrap(err, "failed to put remote mirror", goerr.V("project_id", m.ProjectID))
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return goerr.Wrap(err, "failed to get remote mirror id")
	}
	m.UpdateStatus = status
	return nil
}

func (c *Client) MarkStuckMirrorsFailed(ctx context.Context, projectID int64, startedBefore time.Time) (int, error) {
	res, err := c.db.ExecContext(ctx, `
		UPDATE remote_mirrors SET update_status = ?, last_error = ?
		WHERE project_id = ? AND update_status = ? AND last_update_started_at < ?`,
		string(model.MirrorFailed), "Mirror update stuck in started state",
		projectID, string(model.MirrorStarted), startedBefore.Unix())
	if err != nil {
		return 0, goerr.Wrap(err, "failed to mark stuck mirrors", goerr.V("project_id", projectID))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count stuck mirrors", goerr.V("project_id", projectID))
	}
	return int(n), nil
}

// UpdateMirrorStatus records the status and, on started, the start time
func (c *Client) UpdateMirrorStatus(ctx context.Context, id int64, status model.MirrorStatus, lastError string) error {
	query := `UPDATE remote_mirrors SET update_status = ?, last_error = ? WHERE id = ?`
	args := []any{string(status), lastError, id}
	if status == model.MirrorStarted {
		query = `UPDATE remote_mirrors SET update_status = ?, last_error = ?, last_update_started_at = ? WHERE id = ?`
		args = []any{string(status), lastError, c.now().Unix(), id}
	}

	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return goerr.Wrap(err, "failed to update mirror status", goerr.V("mirror_id", id), goerr.V("status", status))
	}
	return nil
}
