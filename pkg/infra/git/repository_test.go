package git_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/refhook/pkg/domain/model"
	"github.com/m-mizutani/refhook/pkg/infra/git"
)

type testRepo struct {
	t    *testing.T
	repo *gogit.Repository
	fs   billy.Filesystem
	wt   *gogit.Worktree
	now  time.Time
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	fs := memfs.New()
	repo, err := gogit.Init(memory.NewStorage(), fs)
	gt.NoError(t, err)
	wt, err := repo.Worktree()
	gt.NoError(t, err)

	return &testRepo{
		t:    t,
		repo: repo,
		fs:   fs,
		wt:   wt,
		now:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *testRepo) commit(msg string, files map[string]string) plumbing.Hash {
	r.t.Helper()
	for path, content := range files {
		if content == "" {
			_, err := r.wt.Remove(path)
			gt.NoError(r.t, err)
			continue
		}
		gt.NoError(r.t, util.WriteFile(r.fs, path, []byte(content), 0o644))
		_, err := r.wt.Add(path)
		gt.NoError(r.t, err)
	}

	r.now = r.now.Add(time.Minute)
	sig := &object.Signature{Name: "Alice", Email: "alice@example.com", When: r.now}
	h, err := r.wt.Commit(msg, &gogit.CommitOptions{Author: sig, Committer: sig})
	gt.NoError(r.t, err)
	return h
}

func (r *testRepo) branch(name string, h plumbing.Hash) {
	r.t.Helper()
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), h)
	gt.NoError(r.t, r.repo.Storer.SetReference(ref))
}

func (r *testRepo) checkout(name string) {
	r.t.Helper()
	gt.NoError(r.t, r.wt.Checkout(&gogit.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(name)}))
}

func TestCommits(t *testing.T) {
	ctx := context.Background()
	tr := newTestRepo(t)
	c1 := tr.commit("first\n\nbody", map[string]string{"README.md": "hello"})
	c2 := tr.commit("second", map[string]string{"README.md": "hello world"})
	c3 := tr.commit("third", map[string]string{"main.go": "package main"})

	repo := git.New(tr.repo)

	t.Run("newest first", func(t *testing.T) {
		commits, err := repo.Commits(ctx, c3.String(), 0)
		gt.NoError(t, err)
		gt.A(t, commits).Length(3)
		gt.Equal(t, commits[0].ID, c3.String())
		gt.Equal(t, commits[1].ID, c2.String())
		gt.Equal(t, commits[2].ID, c1.String())
		gt.Equal(t, commits[2].Title(), "first")
		gt.Equal(t, commits[0].AuthorEmail, "alice@example.com")
	})

	t.Run("limit", func(t *testing.T) {
		commits, err := repo.Commits(ctx, "master", 2)
		gt.NoError(t, err)
		gt.A(t, commits).Length(2)
	})

	t.Run("count", func(t *testing.T) {
		n, err := repo.CommitCount(ctx, "master")
		gt.NoError(t, err)
		gt.Equal(t, n, 3)
	})

	t.Run("unknown revision", func(t *testing.T) {
		_, err := repo.Commits(ctx, "no-such-branch", 0)
		gt.Error(t, err)
	})
}

func TestCommitsBetween(t *testing.T) {
	ctx := context.Background()
	tr := newTestRepo(t)
	base := tr.commit("base", map[string]string{"a.txt": "a"})
	tr.branch("feature", base)
	tr.checkout("feature")
	f1 := tr.commit("feature one", map[string]string{"b.txt": "b"})
	f2 := tr.commit("feature two", map[string]string{"c.txt": "c"})

	repo := git.New(tr.repo)

	t.Run("by branch name", func(t *testing.T) {
		commits, err := repo.CommitsBetween(ctx, "master", f2.String(), 0)
		gt.NoError(t, err)
		gt.A(t, commits).Length(2)
		gt.Equal(t, commits[0].ID, f2.String())
		gt.Equal(t, commits[1].ID, f1.String())
	})

	t.Run("by sha with limit", func(t *testing.T) {
		commits, err := repo.CommitsBetween(ctx, base.String(), f2.String(), 1)
		gt.NoError(t, err)
		gt.A(t, commits).Length(1)
		gt.Equal(t, commits[0].ID, f2.String())
	})

	t.Run("blank from", func(t *testing.T) {
		commits, err := repo.CommitsBetween(ctx, model.BlankSHA1, f2.String(), 0)
		gt.NoError(t, err)
		gt.A(t, commits).Length(3)
	})

	t.Run("same revision", func(t *testing.T) {
		commits, err := repo.CommitsBetween(ctx, f2.String(), f2.String(), 0)
		gt.NoError(t, err)
		gt.A(t, commits).Length(0)
	})

	t.Run("diverged from", func(t *testing.T) {
		tr.checkout("master")
		m1 := tr.commit("master one", map[string]string{"m.txt": "m"})

		commits, err := repo.CommitsBetween(ctx, m1.String(), f2.String(), 0)
		gt.NoError(t, err)
		gt.A(t, commits).Length(2)
		gt.Equal(t, commits[0].ID, f2.String())
		gt.Equal(t, commits[1].ID, f1.String())
	})
}

// countingStorage counts object reads
type countingStorage struct {
	*memory.Storage
	reads int
}

func (s *countingStorage) EncodedObject(t plumbing.ObjectType, h plumbing.Hash) (plumbing.EncodedObject, error) {
	s.reads++
	return s.Storage.EncodedObject(t, h)
}

func TestCommitsBetweenStopsAtMergeBase(t *testing.T) {
	ctx := context.Background()
	storage := &countingStorage{Storage: memory.NewStorage()}
	fs := memfs.New()
	repo, err := gogit.Init(storage, fs)
	gt.NoError(t, err)
	wt, err := repo.Worktree()
	gt.NoError(t, err)
	tr := &testRepo{t: t, repo: repo, fs: fs, wt: wt, now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	var tip plumbing.Hash
	for i := range 200 {
		tip = tr.commit(fmt.Sprintf("history %d", i), map[string]string{"log.txt": fmt.Sprint(i)})
	}
	tr.branch("feature", tip)
	tr.checkout("feature")
	f1 := tr.commit("feature one", map[string]string{"b.txt": "b"})
	f2 := tr.commit("feature two", map[string]string{"c.txt": "c"})

	storage.reads = 0
	commits, err := git.New(repo).CommitsBetween(ctx, tip.String(), f2.String(), 0)
	gt.NoError(t, err)
	gt.A(t, commits).Length(2)
	gt.Equal(t, commits[0].ID, f2.String())
	gt.Equal(t, commits[1].ID, f1.String())
	gt.True(t, storage.reads < 20)
}

func TestBranchesAndTags(t *testing.T) {
	ctx := context.Background()
	tr := newTestRepo(t)
	c1 := tr.commit("initial", map[string]string{"a.txt": "a"})
	tr.branch("develop", c1)

	_, err := tr.repo.CreateTag("v1.0.0", c1, &gogit.CreateTagOptions{
		Tagger:  &object.Signature{Name: "Alice", Email: "alice@example.com", When: tr.now},
		Message: "Release 1.0.0",
	})
	gt.NoError(t, err)
	_, err = tr.repo.CreateTag("light", c1, nil)
	gt.NoError(t, err)

	repo := git.New(tr.repo)

	exists, err := repo.BranchExists(ctx, "develop")
	gt.NoError(t, err)
	gt.True(t, exists)

	exists, err = repo.BranchExists(ctx, "missing")
	gt.NoError(t, err)
	gt.False(t, exists)

	names, err := repo.BranchNames(ctx)
	gt.NoError(t, err)
	gt.A(t, names).Length(2)

	t.Run("annotated tag", func(t *testing.T) {
		tag, err := repo.FindTag(ctx, "v1.0.0")
		gt.NoError(t, err)
		gt.V(t, tag).NotNil()
		gt.Equal(t, tag.TargetID, c1.String())
		gt.String(t, tag.Message).Contains("Release 1.0.0")

		commit, err := repo.FindCommit(ctx, "v1.0.0")
		gt.NoError(t, err)
		gt.Equal(t, commit.ID, c1.String())
	})

	t.Run("lightweight tag", func(t *testing.T) {
		tag, err := repo.FindTag(ctx, "light")
		gt.NoError(t, err)
		gt.Equal(t, tag.TargetID, c1.String())
		gt.Equal(t, tag.Message, "")
	})

	t.Run("missing tag", func(t *testing.T) {
		tag, err := repo.FindTag(ctx, "nope")
		gt.NoError(t, err)
		gt.V(t, tag).Nil()
	})
}

func TestRawChanges(t *testing.T) {
	ctx := context.Background()
	tr := newTestRepo(t)
	c1 := tr.commit("initial", map[string]string{"a.txt": "a", "b.txt": "b"})
	c2 := tr.commit("change", map[string]string{"a.txt": "a2", "b.txt": "", "c.txt": "c"})

	repo := git.New(tr.repo)

	t.Run("between revisions", func(t *testing.T) {
		changes, err := repo.RawChanges(ctx, c1.String(), c2.String())
		gt.NoError(t, err)
		ops := map[string]model.ChangeOperation{}
		for _, c := range changes {
			ops[c.Path()] = c.Operation
		}
		gt.Equal(t, ops["a.txt"], model.ChangeModified)
		gt.Equal(t, ops["b.txt"], model.ChangeDeleted)
		gt.Equal(t, ops["c.txt"], model.ChangeAdded)
	})

	t.Run("from blank", func(t *testing.T) {
		changes, err := repo.RawChanges(ctx, model.BlankSHA1, c1.String())
		gt.NoError(t, err)
		gt.A(t, changes).Length(2)
		for _, c := range changes {
			gt.Equal(t, c.Operation, model.ChangeAdded)
		}
	})

	t.Run("single commit", func(t *testing.T) {
		changes, err := repo.CommitPaths(ctx, c1.String())
		gt.NoError(t, err)
		gt.A(t, changes).Length(2)
	})
}

func TestReadBlobAndListFiles(t *testing.T) {
	ctx := context.Background()
	tr := newTestRepo(t)
	c1 := tr.commit("initial", map[string]string{"docs/guide.md": "# Guide", ".gitattributes": "*.md text"})

	repo := git.New(tr.repo)

	data, err := repo.ReadBlob(ctx, c1.String(), ".gitattributes")
	gt.NoError(t, err)
	gt.Equal(t, string(data), "*.md text")

	data, err = repo.ReadBlob(ctx, c1.String(), "missing.txt")
	gt.NoError(t, err)
	gt.V(t, data).Nil()

	files, err := repo.ListFiles(ctx, "master")
	gt.NoError(t, err)
	gt.A(t, files).Length(2)
}

func TestChangeHead(t *testing.T) {
	ctx := context.Background()
	tr := newTestRepo(t)
	c1 := tr.commit("initial", map[string]string{"a.txt": "a"})
	tr.branch("main", c1)

	repo := git.New(tr.repo)
	gt.NoError(t, repo.ChangeHead(ctx, "main"))

	head, err := tr.repo.Storer.Reference(plumbing.HEAD)
	gt.NoError(t, err)
	gt.Equal(t, head.Target(), plumbing.NewBranchReferenceName("main"))

	// in-memory storage has neither info/attributes nor loose objects
	gt.NoError(t, repo.CopyGitattributes(ctx, "main"))
	n, err := repo.LooseObjectCount(ctx)
	gt.NoError(t, err)
	gt.Equal(t, n, 0)
}

func TestOpenerStorageRoot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	_, err := gogit.PlainInit(filepath.Join(root, "group", "app.git"), true)
	gt.NoError(t, err)

	opener := git.NewOpener(git.WithStorageRoot(root))
	repo, err := opener.Open(ctx, "group/app.git")
	gt.NoError(t, err)

	names, err := repo.BranchNames(ctx)
	gt.NoError(t, err)
	gt.A(t, names).Length(0)

	_, err = opener.Open(ctx, "group/missing.git")
	gt.Error(t, err)
}
