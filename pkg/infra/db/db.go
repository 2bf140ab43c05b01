package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/interfaces"
	_ "modernc.org/sqlite"
)

// Client is the SQLite implementation of interfaces.Database
type Client struct {
	db  *sql.DB
	now func() time.Time
}

var _ interfaces.Database = (*Client)(nil)

type Option func(*Client)

// WithClock overrides the time source used for created_at columns
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// Open opens or creates the SQLite database at path. Use ":memory:" for tests.
func Open(ctx context.Context, path string, opts ...Option) (*Client, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database", goerr.V("path", path))
	}
	// SQLite serializes writers and :memory: is per connection
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to create schema", goerr.V("path", path))
	}

	c := &Client{db: db, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Close() error {
	if err := c.db.Close(); err != nil {
		return goerr.Wrap(err, "failed to close database")
	}
	return nil
}

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		email TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

	CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		full_path TEXT NOT NULL UNIQUE,
		web_url TEXT NOT NULL,
		default_branch TEXT NOT NULL DEFAULT '',
		repository_path TEXT NOT NULL,
		wiki_repository_path TEXT NOT NULL DEFAULT '',
		wiki_default_branch TEXT NOT NULL DEFAULT '',
		issues_enabled INTEGER NOT NULL DEFAULT 1,
		remote_mirrors_enabled INTEGER NOT NULL DEFAULT 0,
		default_branch_protection INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		project_id INTEGER NOT NULL,
		author_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL DEFAULT '',
		target_id INTEGER NOT NULL DEFAULT 0,
		fingerprint TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_project ON events(project_id);
	CREATE INDEX IF NOT EXISTS idx_events_target ON events(target_type, target_id, action, fingerprint);

	CREATE TABLE IF NOT EXISTS push_event_payloads (
		event_id TEXT PRIMARY KEY REFERENCES events(id),
		commit_from TEXT,
		commit_to TEXT,
		commit_title TEXT NOT NULL DEFAULT '',
		commit_count INTEGER NOT NULL DEFAULT 0,
		action TEXT NOT NULL,
		ref_type INTEGER NOT NULL,
		ref TEXT,
		ref_count INTEGER
	);

	CREATE TABLE IF NOT EXISTS issues (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		iid INTEGER NOT NULL,
		title TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'opened',
		first_mentioned_in_commit_at INTEGER,
		UNIQUE(project_id, iid)
	);

	CREATE TABLE IF NOT EXISTS notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		noteable_type TEXT NOT NULL,
		noteable_id INTEGER NOT NULL,
		author_id INTEGER NOT NULL,
		body TEXT NOT NULL,
		system INTEGER NOT NULL DEFAULT 0,
		commit_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_notes_noteable ON notes(noteable_type, noteable_id);

	CREATE TABLE IF NOT EXISTS wiki_page_meta (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		canonical_slug TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE(project_id, canonical_slug)
	);

	CREATE TABLE IF NOT EXISTS project_hooks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		url TEXT NOT NULL,
		token TEXT NOT NULL DEFAULT '',
		push_events INTEGER NOT NULL DEFAULT 1,
		tag_push_events INTEGER NOT NULL DEFAULT 0,
		wiki_page_events INTEGER NOT NULL DEFAULT 0,
		push_events_branch_filter TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_project_hooks_project ON project_hooks(project_id);

	CREATE TABLE IF NOT EXISTS jira_integrations (
		project_id INTEGER PRIMARY KEY,
		url TEXT NOT NULL,
		username TEXT NOT NULL,
		token TEXT NOT NULL,
		close_transition_id TEXT NOT NULL DEFAULT '',
		commit_events INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS slack_integrations (
		project_id INTEGER PRIMARY KEY,
		webhook_url TEXT NOT NULL,
		channel TEXT NOT NULL DEFAULT '',
		push_events INTEGER NOT NULL DEFAULT 1,
		tag_push_events INTEGER NOT NULL DEFAULT 1,
		branch_filter TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS jira_connect_subscriptions (
		project_id INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS protected_branches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		push_access_level INTEGER NOT NULL,
		merge_access_level INTEGER NOT NULL,
		UNIQUE(project_id, name)
	);

	CREATE TABLE IF NOT EXISTS environments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		ref TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'available'
	);

	CREATE TABLE IF NOT EXISTS remote_mirrors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		url TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		update_status TEXT NOT NULL DEFAULT 'none',
		last_error TEXT NOT NULL DEFAULT '',
		last_update_started_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS pipelines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		source TEXT NOT NULL,
		ref TEXT NOT NULL,
		tag INTEGER NOT NULL DEFAULT 0,
		sha TEXT NOT NULL,
		before_sha TEXT NOT NULL,
		status TEXT NOT NULL,
		failure_reason TEXT NOT NULL DEFAULT '',
		locked INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);
`

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
