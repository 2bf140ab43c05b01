package interfaces

import (
	"context"

	"github.com/m-mizutani/refhook/pkg/domain/model"
)

// Repository reads a Git repository
type Repository interface {
	// Commits returns up to limit commits reachable from rev, newest first
	Commits(ctx context.Context, rev string, limit int) ([]*model.Commit, error)
	// CommitsBetween returns up to limit commits reachable from to but not from from, newest first.
	// from may be a branch name, a SHA or blank.
	CommitsBetween(ctx context.Context, from, to string, limit int) ([]*model.Commit, error)
	// CommitCount counts commits reachable from rev
	CommitCount(ctx context.Context, rev string) (int, error)
	FindCommit(ctx context.Context, rev string) (*model.Commit, error)
	BranchExists(ctx context.Context, name string) (bool, error)
	BranchNames(ctx context.Context) ([]string, error)
	// FindTag returns nil without error when the tag does not exist
	FindTag(ctx context.Context, name string) (*model.Tag, error)
	// RawChanges lists path changes between two revisions; from may be blank
	RawChanges(ctx context.Context, from, to string) ([]model.PathChange, error)
	// CommitPaths returns the paths touched by a single commit compared to its first parent
	CommitPaths(ctx context.Context, sha string) ([]model.PathChange, error)
	// ReadBlob returns nil without error when path does not exist at rev
	ReadBlob(ctx context.Context, rev, path string) ([]byte, error)
	// ListFiles lists every file path in the tree of rev
	ListFiles(ctx context.Context, rev string) ([]string, error)
}

// RepositoryMaintainer mutates repository metadata and storage
type RepositoryMaintainer interface {
	Repository
	// CopyGitattributes installs .gitattributes of ref as info/attributes
	CopyGitattributes(ctx context.Context, ref string) error
	// ChangeHead points HEAD at the branch
	ChangeHead(ctx context.Context, branch string) error
	LooseObjectCount(ctx context.Context) (int, error)
	Repack(ctx context.Context, full bool) error
	PushMirror(ctx context.Context, url string) error
}

// RepositoryOpener opens repositories by their storage path
type RepositoryOpener interface {
	Open(ctx context.Context, path string) (RepositoryMaintainer, error)
}
