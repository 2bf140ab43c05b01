package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/model"
)

const crossReferencePrefix = "mentioned in commit "

// FindIssueByIID returns nil without error when the project has no such issue
func (c *Client) FindIssueByIID(ctx context.Context, projectID, iid int64) (*model.Issue, error) {
	var (
		issue     model.Issue
		state     string
		mentioned sql.NullInt64
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT id, project_id, iid, title, state, first_mentioned_in_commit_at
		FROM issues WHERE project_id = ? AND iid = ?`, projectID, iid).
		Scan(&issue.ID, &issue.ProjectID, &issue.IID, &issue.Title, &state, &mentioned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to find issue", goerr.V("project_id", projectID), goerr.V("iid", iid))
	}

	issue.State = model.IssueState(state)
	if mentioned.Valid {
		at := time.Unix(mentioned.Int64, 0).UTC()
		issue.FirstMentionedInCommitAt = &at
	}
	return &issue, nil
}

// PutIssue inserts an issue and sets its ID
func (c *Client) PutIssue(ctx context.Context, issue *model.Issue) error {
	state := issue.State
	if state == "" {
		state = model.IssueOpened
	}
	res, err := c.db.ExecContext(ctx, `INSERT INTO issues (project_id, iid, title, state) VALUES (?, ?, ?, ?)`,
		issue.ProjectID, issue.IID, issue.Title, string(state))
	if err != nil {
		return goerr.Wrap(err, "failed to put issue", goerr.V("project_id", issue.ProjectID), goerr.V("iid", issue.IID))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return goerr.Wrap(err, "failed to get issue id")
	}
	issue.ID = id
	issue.State = state
	return nil
}

func (c *Client) CloseIssue(ctx context.Context, issueID int64) error {
	if _, err := c.db.ExecContext(ctx, `UPDATE issues SET state = ? WHERE id = ?`, string(model.IssueClosed), issueID); err != nil {
		return goerr.Wrap(err, "failed to close issue", goerr.V("issue_id", issueID))
	}
	return nil
}

// SetFirstMentionedInCommitAt keeps an already recorded time
func (c *Client) SetFirstMentionedInCommitAt(ctx context.Context, issueID int64, at time.Time) error {
	if _, err := c.db.ExecContext(ctx, `
		UPDATE issues SET first_mentioned_in_commit_at = ?
		WHERE id = ? AND first_mentioned_in_commit_at IS NULL`, at.Unix(), issueID); err != nil {
		return goerr.Wrap(err, "failed to set first mention", goerr.V("issue_id", issueID))
	}
	return nil
}

func (c *Client) CreateNote(ctx context.Context, note *model.Note) error {
	if note.CreatedAt.IsZero() {
		note.CreatedAt = c.now().UTC().Truncate(time.Second)
	}
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO notes (project_id, noteable_type, noteable_id, author_id, body, system, commit_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		note.ProjectID, note.NoteableType, note.NoteableID, note.AuthorID, note.Body,
		boolToInt(note.System), note.CommitID, note.CreatedAt.Unix())
	if err != nil {
		return goerr.Wrap(err, "failed to create note", goerr.V("noteable_id", note.NoteableID))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return goerr.Wrap(err, "failed to get note id")
	}
	note.ID = id
	return nil
}

func (c *Client) CrossReferenceExists(ctx context.Context, issueID int64, commitID string, authorID int64) (bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notes
		WHERE noteable_type = 'Issue' AND noteable_id = ? AND commit_id = ? AND author_id = ?
		AND system = 1 AND body LIKE ?`,
		issueID, commitID, authorID, crossReferencePrefix+"%").Scan(&n)
	if err != nil {
		return false, goerr.Wrap(err, "failed to look up cross reference", goerr.V("issue_id", issueID))
	}
	return n > 0, nil
}

func (c *Client) ListNotes(ctx context.Context, issueID int64) ([]*model.Note, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, project_id, noteable_type, noteable_id, author_id, body, system, commit_id, created_at
		FROM notes WHERE noteable_type = 'Issue' AND noteable_id = ? ORDER BY id`, issueID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list notes", goerr.V("issue_id", issueID))
	}
	defer rows.Close()

	var notes []*model.Note
	for rows.Next() {
		var n model.Note
		var createdAt int64
		if err := rows.Scan(&n.ID, &n.ProjectID, &n.NoteableType, &n.NoteableID, &n.AuthorID,
			&n.Body, &n.System, &n.CommitID, &createdAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan note", goerr.V("issue_id", issueID))
		}
		n.CreatedAt = time.Unix(createdAt, 0).UTC()
		notes = append(notes, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate notes", goerr.V("issue_id", issueID))
	}
	return notes, nil
}
