package model

import (
	"strings"
	"time"
)

// Commit is a read-only view of a repository commit
type Commit struct {
	ID          string    `json:"id"`
	Message     string    `json:"message"`
	AuthorName  string    `json:"author_name"`
	AuthorEmail string    `json:"author_email"`
	AuthoredAt  time.Time `json:"authored_date"`
	CommittedAt time.Time `json:"committed_date"`
	ParentIDs   []string  `json:"parent_ids"`
}

// Title returns the first line of the commit message
func (c *Commit) Title() string {
	title, _, _ := strings.Cut(strings.TrimLeft(c.Message, "\n"), "\n")
	return strings.TrimSpace(title)
}

// ShortID returns the abbreviated commit SHA
func (c *Commit) ShortID() string {
	if len(c.ID) > 8 {
		return c.ID[:8]
	}
	return c.ID
}

// Tag is an annotated or lightweight tag resolved to its target commit
type Tag struct {
	Name     string `json:"name"`
	Message  string `json:"message"`
	TargetID string `json:"target"`
}

// ChangeOperation is the kind of a raw path change between two revisions
type ChangeOperation string

const (
	ChangeAdded    ChangeOperation = "added"
	ChangeModified ChangeOperation = "modified"
	ChangeDeleted  ChangeOperation = "deleted"
	ChangeRenamed  ChangeOperation = "renamed"
)

// PathChange is one path touched between two revisions
type PathChange struct {
	Operation ChangeOperation `json:"operation"`
	OldPath   string          `json:"old_path,omitempty"`
	NewPath   string          `json:"new_path,omitempty"`
}

// Path returns the path that identifies the change after it happened, or before for deletions
func (c PathChange) Path() string {
	if c.Operation == ChangeDeleted {
		return c.OldPath
	}
	return c.NewPath
}
