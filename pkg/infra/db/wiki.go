package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/model"
)

func (c *Client) FindOrCreateWikiPageMeta(ctx context.Context, projectID int64, slug, title string) (*model.WikiPageMeta, bool, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var (
		meta      model.WikiPageMeta
		createdAt int64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, project_id, title, canonical_slug, created_at
		FROM wiki_page_meta WHERE project_id = ? AND canonical_slug = ?`, projectID, slug).
		Scan(&meta.ID, &meta.ProjectID, &meta.Title, &meta.CanonicalSlug, &createdAt)
	if err == nil {
		meta.CreatedAt = time.Unix(createdAt, 0).UTC()
		return &meta, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, goerr.Wrap(err, "failed to find wiki page meta", goerr.V("slug", slug))
	}

	meta = model.WikiPageMeta{
		ProjectID:     projectID,
		Title:         title,
		CanonicalSlug: slug,
		CreatedAt:     c.now().UTC().Truncate(time.Second),
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO wiki_page_meta (project_id, title, canonical_slug, created_at) VALUES (?, ?, ?, ?)`,
		projectID, title, slug, meta.CreatedAt.Unix())
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to create wiki page meta", goerr.V("slug", slug))
	}
	if meta.ID, err = res.LastInsertId(); err != nil {
		return nil, false, goerr.Wrap(err, "failed to get wiki page meta id")
	}
	if err := tx.Commit(); err != nil {
		return nil, false, goerr.Wrap(err, "failed to commit wiki page meta", goerr.V("slug", slug))
	}
	return &meta, true, nil
}

func (c *Client) CountWikiPageMeta(ctx context.Context, projectID int64) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM wiki_page_meta WHERE project_id = ?`, projectID).Scan(&n); err != nil {
		return 0, goerr.Wrap(err, "failed to count wiki page meta", goerr.V("project_id", projectID))
	}
	return n, nil
}
