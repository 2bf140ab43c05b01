package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/model"
)

const wikiPageMetaTarget = "WikiPage::Meta"

func (c *Client) insertEvent(ctx context.Context, tx *sql.Tx, ev *model.Event) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO events (id, project_id, author_id, action, target_type, target_id, fingerprint, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.ProjectID, ev.AuthorID, string(ev.Action), ev.TargetType, ev.TargetID, ev.Fingerprint, ev.CreatedAt.Unix())
	if err != nil {
		return goerr.Wrap(err, "failed to insert event", goerr.V("project_id", ev.ProjectID))
	}
	return nil
}

// CreatePushEvent records a pushed event and its payload in one transaction
func (c *Client) CreatePushEvent(ctx context.Context, projectID, authorID int64, payload *model.PushEventPayload) (*model.Event, error) {
	ev := &model.Event{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		AuthorID:  authorID,
		Action:    model.EventPushed,
		CreatedAt: c.now().UTC().Truncate(time.Second),
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := c.insertEvent(ctx, tx, ev); err != nil {
		return nil, err
	}

	var refCount sql.NullInt64
	if payload.RefCount != nil {
		refCount = sql.NullInt64{Int64: int64(*payload.RefCount), Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO push_event_payloads (event_id, commit_from, commit_to, commit_title, commit_count, action, ref_type, ref, ref_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, nullString(payload.CommitFrom), nullString(payload.CommitTo), payload.CommitTitle, payload.CommitCount,
		string(payload.Action), int(payload.RefType), nullString(payload.Ref), refCount,
	); err != nil {
		return nil, goerr.Wrap(err, "failed to insert push event payload", goerr.V("event_id", ev.ID))
	}

	if err := tx.Commit(); err != nil {
		return nil, goerr.Wrap(err, "failed to commit push event", goerr.V("event_id", ev.ID))
	}

	payload.EventID = ev.ID
	return ev, nil
}

// CreateWikiEvent returns the existing event for the same meta, action and fingerprint.
// created is false when the event was already recorded.
func (c *Client) CreateWikiEvent(ctx context.Context, meta *model.WikiPageMeta, authorID int64, action model.EventAction, fingerprint string) (*model.Event, bool, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+selectEventFields+` FROM events
		WHERE target_type = ? AND target_id = ? AND action = ? AND fingerprint = ?`,
		wikiPageMetaTarget, meta.ID, string(action), fingerprint)
	existing, err := scanEvent(row)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, goerr.Wrap(err, "failed to look up wiki event", goerr.V("meta_id", meta.ID))
	}

	ev := &model.Event{
		ID:          uuid.NewString(),
		ProjectID:   meta.ProjectID,
		AuthorID:    authorID,
		Action:      action,
		TargetType:  wikiPageMetaTarget,
		TargetID:    meta.ID,
		Fingerprint: fingerprint,
		CreatedAt:   c.now().UTC().Truncate(time.Second),
	}
	if err := c.insertEvent(ctx, tx, ev); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, goerr.Wrap(err, "failed to commit wiki event", goerr.V("meta_id", meta.ID))
	}
	return ev, true, nil
}

// WikiEventExists reports whether an event with the meta, action and fingerprint was recorded
func (c *Client) WikiEventExists(ctx context.Context, metaID int64, action model.EventAction, fingerprint string) (bool, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events
		WHERE target_type = ? AND target_id = ? AND action = ? AND fingerprint = ?`,
		wikiPageMetaTarget, metaID, string(action), fingerprint).Scan(&n); err != nil {
		return false, goerr.Wrap(err, "failed to look up wiki event", goerr.V("meta_id", metaID))
	}
	return n > 0, nil
}

const selectEventFields = `id, project_id, author_id, action, target_type, target_id, fingerprint, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*model.Event, error) {
	var ev model.Event
	var action string
	var createdAt int64
	if err := row.Scan(&ev.ID, &ev.ProjectID, &ev.AuthorID, &action, &ev.TargetType, &ev.TargetID, &ev.Fingerprint, &createdAt); err != nil {
		return nil, err
	}
	ev.Action = model.EventAction(action)
	ev.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &ev, nil
}

// ListEvents returns the events of a project in creation order
func (c *Client) ListEvents(ctx context.Context, projectID int64) ([]*model.Event, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+selectEventFields+` FROM events
		WHERE project_id = ? ORDER BY created_at, rowid`, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list events", goerr.V("project_id", projectID))
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan event", goerr.V("project_id", projectID))
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate events", goerr.V("project_id", projectID))
	}
	return events, nil
}

func (c *Client) GetPushEventPayload(ctx context.Context, eventID string) (*model.PushEventPayload, error) {
	var (
		p                         model.PushEventPayload
		commitFrom, commitTo, ref sql.NullString
		refCount                  sql.NullInt64
		action                    string
		refType                   int
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT event_id, commit_from, commit_to, commit_title, commit_count, action, ref_type, ref, ref_count
		FROM push_event_payloads WHERE event_id = ?`, eventID).
		Scan(&p.EventID, &commitFrom, &commitTo, &p.CommitTitle, &p.CommitCount, &action, &refType, &ref, &refCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(model.ErrNotFound, "push event payload not found", goerr.V("event_id", eventID))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get push event payload", goerr.V("event_id", eventID))
	}

	p.CommitFrom = stringPtr(commitFrom)
	p.CommitTo = stringPtr(commitTo)
	p.Ref = stringPtr(ref)
	p.Action = model.RefAction(action)
	p.RefType = model.RefKind(refType)
	if refCount.Valid {
		n := int(refCount.Int64)
		p.RefCount = &n
	}
	return &p, nil
}
