package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gojira "github.com/andygrunwald/go-jira"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/interfaces"
	"github.com/m-mizutani/refhook/pkg/domain/model"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 1024
)

// Client talks to the Jira REST API through go-jira and to the development information API,
// which go-jira does not cover, over plain HTTP.
type Client struct {
	httpClient *http.Client
}

var _ interfaces.JiraClient = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(x *Client) {
		x.httpClient = c
	}
}

func New(opts ...Option) *Client {
	c := &Client{httpClient: &http.Client{Timeout: defaultTimeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// issues returns a go-jira issue service authenticated for integration
func (c *Client) issues(integration *model.JiraIntegration) (*gojira.IssueService, error) {
	tp := &gojira.BasicAuthTransport{
		Username:  integration.Username,
		Password:  integration.Token,
		Transport: c.httpClient.Transport,
	}
	client, err := gojira.NewClient(&http.Client{Transport: tp, Timeout: c.httpClient.Timeout}, integration.URL)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create jira client", goerr.V("url", integration.URL))
	}
	return client.Issue, nil
}

func (c *Client) do(ctx context.Context, integration *model.JiraIntegration, method, path string, payload any) error {
	endpoint := strings.TrimRight(integration.URL, "/") + path

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return goerr.Wrap(err, "failed to marshal jira request", goerr.V("path", path))
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return goerr.Wrap(err, "failed to build jira request", goerr.V("url", endpoint))
	}
	req.SetBasicAuth(integration.Username, integration.Token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "failed to call jira", goerr.V("url", endpoint))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return goerr.New("jira returned error status",
			goerr.V("url", endpoint),
			goerr.V("method", method),
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(respBody)),
		)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) AddComment(ctx context.Context, integration *model.JiraIntegration, issueKey, body string) error {
	issues, err := c.issues(integration)
	if err != nil {
		return err
	}
	if _, _, err := issues.AddCommentWithContext(ctx, issueKey, &gojira.Comment{Body: body}); err != nil {
		return goerr.Wrap(err, "failed to comment on jira issue", goerr.V("issue", issueKey))
	}
	return nil
}

// TransitionIssue applies every configured transition ID in order.
// Nothing is done when the integration has no transition configured.
func (c *Client) TransitionIssue(ctx context.Context, integration *model.JiraIntegration, issueKey string) error {
	ids := strings.FieldsFunc(integration.CloseTransitionID, func(r rune) bool { return r == ',' || r == ' ' })
	if len(ids) == 0 {
		return nil
	}

	issues, err := c.issues(integration)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := issues.DoTransitionWithContext(ctx, issueKey, id); err != nil {
			return goerr.Wrap(err, "failed to transition jira issue", goerr.V("issue", issueKey), goerr.V("transition", id))
		}
	}
	return nil
}

type devInfoRepository struct {
	ID               string          `json:"id"`
	UpdateSequenceID int64           `json:"updateSequenceId"`
	Branches         []devInfoBranch `json:"branches,omitempty"`
	Commits          []devInfoCommit `json:"commits,omitempty"`
}

type devInfoBranch struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	UpdateSequenceID int64  `json:"updateSequenceId"`
}

type devInfoCommit struct {
	ID               string `json:"id"`
	Hash             string `json:"hash"`
	UpdateSequenceID int64  `json:"updateSequenceId"`
}

// SyncDevInfo pushes branch and commit development information, or deletes the branch when remove is set
func (c *Client) SyncDevInfo(ctx context.Context, integration *model.JiraIntegration, args model.JiraConnectSyncArgs, remove bool) error {
	repoID := strconv.FormatInt(args.ProjectID, 10)

	if remove {
		path := "/rest/devinfo/0.10/repository/" + repoID + "/branch/" + url.PathEscape(args.BranchName) +
			"?_updateSequenceId=" + strconv.FormatInt(args.UpdateSeqID, 10)
		return c.do(ctx, integration, http.MethodDelete, path, nil)
	}

	repo := devInfoRepository{ID: repoID, UpdateSequenceID: args.UpdateSeqID}
	if args.BranchName != "" {
		repo.Branches = append(repo.Branches, devInfoBranch{
			ID:               args.BranchName,
			Name:             args.BranchName,
			UpdateSequenceID: args.UpdateSeqID,
		})
	}
	for _, sha := range args.CommitSHAs {
		repo.Commits = append(repo.Commits, devInfoCommit{ID: sha, Hash: sha, UpdateSequenceID: args.UpdateSeqID})
	}

	payload := map[string]any{"repositories": []devInfoRepository{repo}}
	return c.do(ctx, integration, http.MethodPost, "/rest/devinfo/0.10/bulk", payload)
}
