package model

import "time"

type IssueState string

const (
	IssueOpened IssueState = "opened"
	IssueClosed IssueState = "closed"
)

type Issue struct {
	ID                       int64      `json:"id"`
	ProjectID                int64      `json:"project_id"`
	IID                      int64      `json:"iid"`
	Title                    string     `json:"title"`
	State                    IssueState `json:"state"`
	FirstMentionedInCommitAt *time.Time `json:"first_mentioned_in_commit_at,omitempty"`
}

type Note struct {
	ID           int64     `json:"id"`
	ProjectID    int64     `json:"project_id"`
	NoteableType string    `json:"noteable_type"`
	NoteableID   int64     `json:"noteable_id"`
	AuthorID     int64     `json:"author_id"`
	Body         string    `json:"note"`
	System       bool      `json:"system"`
	CommitID     string    `json:"commit_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// IssueReference is an issue mention found in a commit message
type IssueReference struct {
	// IID is set for internal issue references
	IID int64
	// ExternalKey is set for external tracker keys such as JIRA-1
	ExternalKey string
	// Closing is true when the reference follows a closing keyword
	Closing bool
}

// IsExternal reports whether the reference targets an external tracker
func (r IssueReference) IsExternal() bool {
	return r.ExternalKey != ""
}
