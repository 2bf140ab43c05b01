package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
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
	"github.com/m-mizutani/refhook/pkg/domain/interfaces"
	"github.com/m-mizutani/refhook/pkg/domain/model"
	"github.com/m-mizutani/refhook/pkg/infra/db"
	"github.com/m-mizutani/refhook/pkg/infra/git"
	"github.com/m-mizutani/refhook/pkg/usecase"
)

var testNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// testRepo is an in-memory repository with a worktree for building history
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
	return &testRepo{t: t, repo: repo, fs: fs, wt: wt, now: testNow.Add(-24 * time.Hour)}
}

func (r *testRepo) commit(msg string, files map[string]string) string {
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
	return h.String()
}

func (r *testRepo) branch(name, sha string) {
	r.t.Helper()
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), plumbing.NewHash(sha))
	gt.NoError(r.t, r.repo.Storer.SetReference(ref))
}

func (r *testRepo) checkout(name string, create bool) {
	r.t.Helper()
	gt.NoError(r.t, r.wt.Checkout(&gogit.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(name), Create: create}))
}

// tag returns the SHA a push of the tag would carry as its new revision
func (r *testRepo) tag(name, sha, message string) string {
	r.t.Helper()
	var opts *gogit.CreateTagOptions
	if message != "" {
		opts = &gogit.CreateTagOptions{
			Message: message,
			Tagger:  &object.Signature{Name: "Alice", Email: "alice@example.com", When: r.now},
		}
	}
	ref, err := r.repo.CreateTag(name, plumbing.NewHash(sha), opts)
	gt.NoError(r.t, err)
	return ref.Hash().String()
}

type fakeOpener struct {
	repos   map[string]*gogit.Repository
	pushErr error
}

func (x *fakeOpener) Open(ctx context.Context, path string) (interfaces.RepositoryMaintainer, error) {
	repo, ok := x.repos[path]
	if !ok {
		return nil, errors.New("no repository at " + path)
	}
	return &mirrorRepo{Repository: git.New(repo), pushErr: x.pushErr}, nil
}

// mirrorRepo records mirror pushes instead of talking to a remote
type mirrorRepo struct {
	*git.Repository
	pushErr error
}

func (x *mirrorRepo) PushMirror(ctx context.Context, url string) error {
	return x.pushErr
}

type enqueued struct {
	Class model.JobClass
	Delay time.Duration
	Args  any
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []enqueued
}

func (x *fakeQueue) PerformAsync(ctx context.Context, class model.JobClass, args any) (string, error) {
	return x.PerformIn(ctx, 0, class, args)
}

func (x *fakeQueue) PerformIn(ctx context.Context, delay time.Duration, class model.JobClass, args any) (string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.jobs = append(x.jobs, enqueued{Class: class, Delay: delay, Args: args})
	return "job", nil
}

func (x *fakeQueue) byClass(class model.JobClass) []enqueued {
	x.mu.Lock()
	defer x.mu.Unlock()
	var out []enqueued
	for _, j := range x.jobs {
		if j.Class == class {
			out = append(out, j)
		}
	}
	return out
}

type fakeLease struct {
	held      map[string]string
	cancelled []string
}

func (x *fakeLease) TryObtain(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if x.held == nil {
		x.held = map[string]string{}
	}
	if _, ok := x.held[key]; ok {
		return "", nil
	}
	x.held[key] = "uuid-" + key
	return x.held[key], nil
}

func (x *fakeLease) Cancel(ctx context.Context, key, uuid string) error {
	if x.held[key] == uuid {
		delete(x.held, key)
		x.cancelled = append(x.cancelled, key)
	}
	return nil
}

type fakeCounter struct {
	counts map[string]int64
	events map[string]int
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: map[string]int64{}, events: map[string]int{}}
}

func (x *fakeCounter) Increment(ctx context.Context, key string) (int64, error) {
	x.counts[key]++
	return x.counts[key], nil
}

func (x *fakeCounter) Reset(ctx context.Context, key string) error {
	delete(x.counts, key)
	return nil
}

func (x *fakeCounter) TrackEvent(ctx context.Context, name string, projectID int64) error {
	x.events[name]++
	return nil
}

type fakeCache struct {
	types       map[int64]map[string]string
	commitCount map[int64]int
}

func (x *fakeCache) SetFileTypes(ctx context.Context, projectID int64, types map[string]string) error {
	if x.types == nil {
		x.types = map[int64]map[string]string{}
	}
	x.types[projectID] = types
	return nil
}

func (x *fakeCache) GetFileTypes(ctx context.Context, projectID int64) (map[string]string, error) {
	return x.types[projectID], nil
}

func (x *fakeCache) SetStatistics(ctx context.Context, projectID int64, commitCount int) error {
	if x.commitCount == nil {
		x.commitCount = map[int64]int{}
	}
	x.commitCount[projectID] = commitCount
	return nil
}

type fakePipelines struct {
	requests []model.PipelineParams
	failRef  string
	result   *model.PipelineResult
}

func (x *fakePipelines) CreatePipeline(ctx context.Context, project *model.Project, user *model.User, repo interfaces.Repository, params model.PipelineParams) (*model.PipelineResult, error) {
	x.requests = append(x.requests, params)
	if params.Ref == x.failRef {
		return nil, errors.New("pipeline creation failed")
	}
	if x.result != nil {
		return x.result, nil
	}
	return &model.PipelineResult{Pipeline: &model.Pipeline{ID: int64(len(x.requests)), Status: model.PipelineCreated}}, nil
}

type sentHook struct {
	URL      string
	Token    string
	HookType model.HookType
	Body     []byte
}

type fakeSender struct {
	sent []sentHook
	err  error
}

func (x *fakeSender) Send(ctx context.Context, url, token string, hookType model.HookType, body []byte) error {
	x.sent = append(x.sent, sentHook{URL: url, Token: token, HookType: hookType, Body: body})
	return x.err
}

type jiraCall struct {
	Method string
	Key    string
	Body   string
	Remove bool
}

type fakeJira struct {
	calls []jiraCall
	err   error
}

func (x *fakeJira) AddComment(ctx context.Context, integration *model.JiraIntegration, issueKey, body string) error {
	x.calls = append(x.calls, jiraCall{Method: "comment", Key: issueKey, Body: body})
	return x.err
}

func (x *fakeJira) TransitionIssue(ctx context.Context, integration *model.JiraIntegration, issueKey string) error {
	x.calls = append(x.calls, jiraCall{Method: "transition", Key: issueKey})
	return x.err
}

func (x *fakeJira) SyncDevInfo(ctx context.Context, integration *model.JiraIntegration, args model.JiraConnectSyncArgs, remove bool) error {
	x.calls = append(x.calls, jiraCall{Method: "devinfo", Key: args.BranchName, Remove: remove})
	return x.err
}

type fakeChat struct {
	notified []*model.PushData
}

func (x *fakeChat) NotifyPush(ctx context.Context, integration *model.SlackIntegration, data *model.PushData) error {
	x.notified = append(x.notified, data)
	return nil
}

type fakeTracker struct {
	mu     sync.Mutex
	errors []error
	tags   []map[string]string
}

func (x *fakeTracker) Report(ctx context.Context, err error, tags map[string]string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.errors = append(x.errors, err)
	x.tags = append(x.tags, tags)
}

const (
	testProjectID = int64(1)
	testUserID    = int64(10)
	repoPath      = "/repos/group/app.git"
	wikiPath      = "/repos/group/app.wiki.git"
)

// env wires a use case to an in-memory database, repository and recording fakes
type env struct {
	ctx       context.Context
	db        *db.Client
	repo      *testRepo
	wiki      *testRepo
	queue     *fakeQueue
	lease     *fakeLease
	counter   *fakeCounter
	cache     *fakeCache
	pipelines *fakePipelines
	sender    *fakeSender
	jira      *fakeJira
	chat      *fakeChat
	tracker   *fakeTracker
	opener    *fakeOpener
	project   *model.Project
	user      *model.User
}

func newEnv(t *testing.T, configure ...func(*model.Project)) *env {
	t.Helper()
	ctx := context.Background()

	client, err := db.Open(ctx, ":memory:", db.WithClock(func() time.Time { return testNow }))
	gt.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	e := &env{
		ctx:       ctx,
		db:        client,
		repo:      newTestRepo(t),
		wiki:      newTestRepo(t),
		queue:     &fakeQueue{},
		lease:     &fakeLease{},
		counter:   newFakeCounter(),
		cache:     &fakeCache{},
		pipelines: &fakePipelines{},
		sender:    &fakeSender{},
		jira:      &fakeJira{},
		chat:      &fakeChat{},
		tracker:   &fakeTracker{},
	}
	e.opener = &fakeOpener{repos: map[string]*gogit.Repository{
		repoPath: e.repo.repo,
		wikiPath: e.wiki.repo,
	}}

	e.project = &model.Project{
		ID:                 testProjectID,
		Name:               "app",
		FullPath:           "group/app",
		WebURL:             "https://git.example.com/group/app",
		DefaultBranch:      "master",
		RepositoryPath:     repoPath,
		WikiRepositoryPath: wikiPath,
		WikiDefaultBranch:  "master",
		IssuesEnabled:      true,
	}
	for _, fn := range configure {
		fn(e.project)
	}
	gt.NoError(t, client.PutProject(ctx, e.project))

	e.user = &model.User{ID: testUserID, Username: "bob", Name: "Bob", Email: "bob@example.com"}
	gt.NoError(t, client.PutUser(ctx, e.user))
	return e
}

func (e *env) useCase(opts ...usecase.Option) *usecase.UseCase {
	base := []usecase.Option{
		usecase.WithLease(e.lease),
		usecase.WithCounter(e.counter),
		usecase.WithFileTypeCache(e.cache),
		usecase.WithErrorTracker(e.tracker),
		usecase.WithHookSender(e.sender),
		usecase.WithJiraClient(e.jira),
		usecase.WithChatNotifier(e.chat),
		usecase.WithClock(func() time.Time { return testNow }),
	}
	return usecase.New(e.db, e.opener, e.queue, e.pipelines, append(base, opts...)...)
}

// pushContext loads the stored project so handlers see persisted state
func (e *env) pushContext(t *testing.T, uc *usecase.UseCase, pushOptions ...string) *usecase.PushContext {
	t.Helper()
	project, err := e.db.GetProject(e.ctx, testProjectID)
	gt.NoError(t, err)
	repo, err := e.opener.Open(e.ctx, repoPath)
	gt.NoError(t, err)
	return uc.NewPushContext(project, e.user, repo, pushOptions)
}

func change(index int, oldRev, newRev, ref string) model.RefChange {
	return model.RefChange{Index: index, OldRev: oldRev, NewRev: newRev, Ref: ref}
}

func pushData(t *testing.T, job enqueued) model.PushData {
	t.Helper()
	args, ok := job.Args.(model.WebHookArgs)
	gt.True(t, ok)
	var data model.PushData
	gt.NoError(t, json.Unmarshal(args.Data, &data))
	return data
}

func stepError(cr model.ChangeResult, name string) error {
	for _, s := range cr.Steps {
		if s.Name == name {
			return s.Error
		}
	}
	return nil
}
