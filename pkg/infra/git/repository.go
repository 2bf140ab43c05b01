package git

import (
	"container/heap"
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/go-git/go-git/v5/utils/merkletrie"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/interfaces"
	"github.com/m-mizutani/refhook/pkg/domain/model"
)

const (
	gitattributesPath = ".gitattributes"
	infoAttributes    = "info/attributes"

	pruneGracePeriod = 14 * 24 * time.Hour
)

// ErrRevisionNotFound is returned when a revision does not resolve to a commit
var ErrRevisionNotFound = errors.New("revision not found")

// Opener opens on-disk repositories
type Opener struct {
	root string
}

type OpenerOption func(*Opener)

// WithStorageRoot resolves relative repository paths under root
func WithStorageRoot(root string) OpenerOption {
	return func(o *Opener) { o.root = root }
}

// NewOpener creates a new Opener
func NewOpener(opts ...OpenerOption) *Opener {
	o := &Opener{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open opens the bare or non-bare repository at path
func (o *Opener) Open(ctx context.Context, path string) (interfaces.RepositoryMaintainer, error) {
	if o.root != "" && !filepath.IsAbs(path) {
		path = filepath.Join(o.root, path)
	}
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open repository", goerr.V("path", path))
	}
	return New(repo), nil
}

// Repository implements interfaces.RepositoryMaintainer on go-git
type Repository struct {
	repo *gogit.Repository
}

// New wraps an opened go-git repository
func New(repo *gogit.Repository) *Repository {
	return &Repository{repo: repo}
}

func (r *Repository) resolve(rev string) (*object.Commit, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, goerr.Wrap(ErrRevisionNotFound, err.Error(), goerr.V("rev", rev))
	}
	return r.peel(*hash, rev)
}

// peel resolves annotated tags down to their commit
func (r *Repository) peel(hash plumbing.Hash, rev string) (*object.Commit, error) {
	commit, err := r.repo.CommitObject(hash)
	if err == nil {
		return commit, nil
	}

	tag, tagErr := r.repo.TagObject(hash)
	if tagErr != nil {
		return nil, goerr.Wrap(ErrRevisionNotFound, err.Error(), goerr.V("rev", rev))
	}
	commit, err = tag.Commit()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to peel tag", goerr.V("rev", rev))
	}
	return commit, nil
}

func (r *Repository) Commits(ctx context.Context, rev string, limit int) ([]*model.Commit, error) {
	commit, err := r.resolve(rev)
	if err != nil {
		return nil, err
	}
	return r.walk(ctx, commit.Hash, limit)
}

func (r *Repository) CommitsBetween(ctx context.Context, from, to string, limit int) ([]*model.Commit, error) {
	if model.IsBlankRev(from) {
		return r.Commits(ctx, to, limit)
	}

	toCommit, err := r.resolve(to)
	if err != nil {
		return nil, err
	}
	fromCommit, err := r.resolve(from)
	if err != nil {
		return nil, err
	}

	commits, err := between(ctx, fromCommit, toCommit, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to walk history", goerr.V("from", from), goerr.V("to", to))
	}
	return commits, nil
}

// commitQueue pops the newest commit first. On equal committer time hidden commits go first
// so that exclusion reaches shared ancestors before they are emitted.
type commitQueue struct {
	commits []*object.Commit
	hidden  map[plumbing.Hash]bool
}

func (q *commitQueue) Len() int { return len(q.commits) }
func (q *commitQueue) Less(i, j int) bool {
	a, b := q.commits[i], q.commits[j]
	if !a.Committer.When.Equal(b.Committer.When) {
		return a.Committer.When.After(b.Committer.When)
	}
	return q.hidden[a.Hash] && !q.hidden[b.Hash]
}
func (q *commitQueue) Swap(i, j int) { q.commits[i], q.commits[j] = q.commits[j], q.commits[i] }
func (q *commitQueue) Push(x any)    { q.commits = append(q.commits, x.(*object.Commit)) }
func (q *commitQueue) Pop() any {
	last := q.commits[len(q.commits)-1]
	q.commits = q.commits[:len(q.commits)-1]
	return last
}

// between returns commits reachable from to but not from from, newest first, like `git log from..to`.
// Both sides are walked together and the walk ends once every queued commit is reachable from from,
// so only history above the merge base is read.
func between(ctx context.Context, from, to *object.Commit, limit int) ([]*model.Commit, error) {
	const (
		queued = iota + 1
		done
	)
	state := map[plumbing.Hash]int{}
	q := &commitQueue{hidden: map[plumbing.Hash]bool{}}
	visible := 0

	push := func(c *object.Commit, hide bool) {
		switch state[c.Hash] {
		case 0:
			state[c.Hash] = queued
			q.hidden[c.Hash] = hide
			if !hide {
				visible++
			}
			heap.Push(q, c)
		case queued:
			if hide && !q.hidden[c.Hash] {
				// still queued, so the heap order has to be restored after the flip
				q.hidden[c.Hash] = true
				visible--
				heap.Init(q)
			}
		}
	}

	push(from, true)
	push(to, false)

	var commits []*model.Commit
	for visible > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := heap.Pop(q).(*object.Commit)
		state[c.Hash] = done
		hide := q.hidden[c.Hash]
		if !hide {
			visible--
			commits = append(commits, toModel(c))
			if limit > 0 && len(commits) >= limit {
				break
			}
		}
		if err := c.Parents().ForEach(func(p *object.Commit) error {
			push(p, hide)
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return commits, nil
}

// walk collects commits reachable from head in committer time order.
// limit <= 0 means unbounded.
func (r *Repository) walk(ctx context.Context, head plumbing.Hash, limit int) ([]*model.Commit, error) {
	iter, err := r.repo.Log(&gogit.LogOptions{From: head, Order: gogit.LogOrderCommitterTime})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to walk history", goerr.V("head", head.String()))
	}
	defer iter.Close()

	var commits []*model.Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		commits = append(commits, toModel(c))
		if limit > 0 && len(commits) >= limit {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to walk history", goerr.V("head", head.String()))
	}
	return commits, nil
}

func (r *Repository) CommitCount(ctx context.Context, rev string) (int, error) {
	commits, err := r.Commits(ctx, rev, 0)
	if err != nil {
		return 0, err
	}
	return len(commits), nil
}

func (r *Repository) FindCommit(ctx context.Context, rev string) (*model.Commit, error) {
	commit, err := r.resolve(rev)
	if err != nil {
		return nil, err
	}
	return toModel(commit), nil
}

func (r *Repository) BranchExists(ctx context.Context, name string) (bool, error) {
	_, err := r.repo.Reference(plumbing.NewBranchReferenceName(name), false)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, goerr.Wrap(err, "failed to look up branch", goerr.V("branch", name))
	}
	return true, nil
}

func (r *Repository) BranchNames(ctx context.Context) ([]string, error) {
	iter, err := r.repo.Branches()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list branches")
	}
	defer iter.Close()

	var names []string
	if err := iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to list branches")
	}
	return names, nil
}

func (r *Repository) FindTag(ctx context.Context, name string) (*model.Tag, error) {
	ref, err := r.repo.Tag(name)
	if errors.Is(err, gogit.ErrTagNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to look up tag", goerr.V("tag", name))
	}

	tagObj, err := r.repo.TagObject(ref.Hash())
	switch {
	case errors.Is(err, plumbing.ErrObjectNotFound):
		// lightweight tag
		return &model.Tag{Name: name, TargetID: ref.Hash().String()}, nil
	case err != nil:
		return nil, goerr.Wrap(err, "failed to read tag object", goerr.V("tag", name))
	}

	commit, err := tagObj.Commit()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to peel tag", goerr.V("tag", name))
	}
	return &model.Tag{
		Name:     name,
		Message:  tagObj.Message,
		TargetID: commit.Hash.String(),
	}, nil
}

func (r *Repository) tree(rev string) (*object.Tree, error) {
	if model.IsBlankRev(rev) {
		return nil, nil
	}
	commit, err := r.resolve(rev)
	if err != nil {
		return nil, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read tree", goerr.V("rev", rev))
	}
	return tree, nil
}

func (r *Repository) RawChanges(ctx context.Context, from, to string) ([]model.PathChange, error) {
	fromTree, err := r.tree(from)
	if err != nil {
		return nil, err
	}
	toTree, err := r.tree(to)
	if err != nil {
		return nil, err
	}
	return diffTrees(ctx, fromTree, toTree)
}

func (r *Repository) CommitPaths(ctx context.Context, sha string) ([]model.PathChange, error) {
	commit, err := r.resolve(sha)
	if err != nil {
		return nil, err
	}
	toTree, err := commit.Tree()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read tree", goerr.V("sha", sha))
	}

	var fromTree *object.Tree
	if commit.NumParents() > 0 {
		parent, err := commit.Parent(0)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read parent", goerr.V("sha", sha))
		}
		if fromTree, err = parent.Tree(); err != nil {
			return nil, goerr.Wrap(err, "failed to read parent tree", goerr.V("sha", sha))
		}
	}
	return diffTrees(ctx, fromTree, toTree)
}

func diffTrees(ctx context.Context, from, to *object.Tree) ([]model.PathChange, error) {
	changes, err := object.DiffTreeWithOptions(ctx, from, to, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to diff trees")
	}

	result := make([]model.PathChange, 0, len(changes))
	for _, c := range changes {
		action, err := c.Action()
		if err != nil {
			return nil, goerr.Wrap(err, "failed to classify change")
		}

		pc := model.PathChange{OldPath: c.From.Name, NewPath: c.To.Name}
		switch action {
		case merkletrie.Insert:
			pc.Operation = model.ChangeAdded
		case merkletrie.Delete:
			pc.Operation = model.ChangeDeleted
		default:
			pc.Operation = model.ChangeModified
			if c.From.Name != c.To.Name {
				pc.Operation = model.ChangeRenamed
			}
		}
		result = append(result, pc)
	}
	return result, nil
}

func (r *Repository) ReadBlob(ctx context.Context, rev, path string) ([]byte, error) {
	commit, err := r.resolve(rev)
	if err != nil {
		return nil, err
	}
	file, err := commit.File(path)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read file", goerr.V("rev", rev), goerr.V("path", path))
	}
	contents, err := file.Contents()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read blob", goerr.V("rev", rev), goerr.V("path", path))
	}
	return []byte(contents), nil
}

func (r *Repository) ListFiles(ctx context.Context, rev string) ([]string, error) {
	tree, err := r.tree(rev)
	if err != nil || tree == nil {
		return nil, err
	}

	var paths []string
	if err := tree.Files().ForEach(func(f *object.File) error {
		paths = append(paths, f.Name)
		return nil
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to list files", goerr.V("rev", rev))
	}
	return paths, nil
}

func (r *Repository) CopyGitattributes(ctx context.Context, ref string) error {
	fs, ok := r.repo.Storer.(*filesystem.Storage)
	if !ok {
		return nil
	}
	dotgit := fs.Filesystem()

	content, err := r.ReadBlob(ctx, ref, gitattributesPath)
	if err != nil {
		return err
	}
	if content == nil {
		if err := dotgit.Remove(infoAttributes); err != nil && !os.IsNotExist(err) {
			return goerr.Wrap(err, "failed to remove info/attributes")
		}
		return nil
	}

	if err := dotgit.MkdirAll("info", 0o755); err != nil {
		return goerr.Wrap(err, "failed to create info directory")
	}
	if err := util.WriteFile(dotgit, infoAttributes, content, 0o644); err != nil {
		return goerr.Wrap(err, "failed to write info/attributes")
	}
	return nil
}

func (r *Repository) ChangeHead(ctx context.Context, branch string) error {
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branch))
	if err := r.repo.Storer.SetReference(head); err != nil {
		return goerr.Wrap(err, "failed to change HEAD", goerr.V("branch", branch))
	}
	return nil
}

func (r *Repository) LooseObjectCount(ctx context.Context) (int, error) {
	los, ok := r.repo.Storer.(storer.LooseObjectStorer)
	if !ok {
		return 0, nil
	}

	n := 0
	if err := los.ForEachObjectHash(func(plumbing.Hash) error {
		n++
		return nil
	}); err != nil {
		return 0, goerr.Wrap(err, "failed to count loose objects")
	}
	return n, nil
}

// Repack packs loose objects. Storages without pack support, such as in-memory ones, are left as is.
func (r *Repository) Repack(ctx context.Context, full bool) error {
	if _, ok := r.repo.Storer.(storer.PackedObjectStorer); !ok {
		return nil
	}
	if _, ok := r.repo.Storer.(storer.LooseObjectStorer); ok && full {
		if err := r.repo.Prune(gogit.PruneOptions{
			OnlyObjectsOlderThan: time.Now().Add(-pruneGracePeriod),
			Handler:              r.repo.DeleteObject,
		}); err != nil {
			return goerr.Wrap(err, "failed to prune repository")
		}
	}

	if err := r.repo.RepackObjects(&gogit.RepackConfig{UseRefDeltas: true}); err != nil {
		return goerr.Wrap(err, "failed to repack repository")
	}
	return nil
}

func (r *Repository) PushMirror(ctx context.Context, url string) error {
	remote := gogit.NewRemote(r.repo.Storer, &config.RemoteConfig{
		Name: "mirror",
		URLs: []string{url},
	})

	err := remote.PushContext(ctx, &gogit.PushOptions{
		RemoteName: "mirror",
		RefSpecs: []config.RefSpec{
			"+refs/heads/*:refs/heads/*",
			"+refs/tags/*:refs/tags/*",
		},
		Prune: true,
	})
	if errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return nil
	}
	if err != nil {
		return goerr.Wrap(err, "failed to push mirror")
	}
	return nil
}

func toModel(c *object.Commit) *model.Commit {
	parents := make([]string, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}
	return &model.Commit{
		ID:          c.Hash.String(),
		Message:     c.Message,
		AuthorName:  c.Author.Name,
		AuthorEmail: c.Author.Email,
		AuthoredAt:  c.Author.When,
		CommittedAt: c.Committer.When,
		ParentIDs:   parents,
	}
}
