package db

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/interfaces"
	"github.com/m-mizutani/refhook/pkg/domain/model"
	"gopkg.in/yaml.v3"
)

const (
	// CIConfigPath is where the pipeline definition is read from
	CIConfigPath = ".gitlab-ci.yml"

	pipelineSourcePush = "push"
	failureConfigError = "config_error"
)

// PipelineCreator persists pipeline records for pushes. The CI configuration
// is only checked to be a well-formed YAML mapping.
type PipelineCreator struct {
	client *Client
}

func NewPipelineCreator(client *Client) *PipelineCreator {
	return &PipelineCreator{client: client}
}

var _ interfaces.PipelineCreator = (*PipelineCreator)(nil)

func (x *PipelineCreator) CreatePipeline(ctx context.Context, project *model.Project, user *model.User, repo interfaces.Repository, params model.PipelineParams) (*model.PipelineResult, error) {
	sha := params.CheckoutSHA
	if sha == "" {
		sha = params.After
	}
	if model.IsBlankRev(sha) {
		return &model.PipelineResult{Message: "Reference not found"}, nil
	}
	if _, skip := params.PushOptions["ci.skip"]; skip {
		return &model.PipelineResult{Message: "Pipeline skipped by push option"}, nil
	}

	content, err := repo.ReadBlob(ctx, sha, CIConfigPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read CI config", goerr.V("sha", sha))
	}
	if content == nil {
		return &model.PipelineResult{Message: "Missing CI config file"}, nil
	}

	pipeline := &model.Pipeline{
		ProjectID: project.ID,
		UserID:    user.ID,
		Source:    pipelineSourcePush,
		Ref:       model.ShortRefName(params.Ref),
		Tag:       model.RefChange{Ref: params.Ref}.Kind() == model.RefKindTag,
		SHA:       sha,
		BeforeSHA: params.Before,
		Status:    model.PipelineCreated,
	}

	message := ""
	var doc map[string]any
	if err := yaml.Unmarshal(content, &doc); err != nil || len(doc) == 0 {
		pipeline.Status = model.PipelineFailed
		pipeline.FailureReason = failureConfigError
		message = "Invalid CI config YAML"
		if err != nil {
			message = "Invalid CI config YAML: " + err.Error()
		}
	}

	if err := x.client.insertPipeline(ctx, pipeline); err != nil {
		return nil, err
	}
	return &model.PipelineResult{Pipeline: pipeline, Message: message}, nil
}

func (c *Client) insertPipeline(ctx context.Context, p *model.Pipeline) error {
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO pipelines (project_id, user_id, source, ref, tag, sha, before_sha, status, failure_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ProjectID, p.UserID, p.Source, p.Ref, boolToInt(p.Tag), p.SHA, p.BeforeSHA,
		string(p.Status), p.FailureReason, c.now().UTC().Truncate(time.Second).Unix())
	if err != nil {
		return goerr.Wrap(err, "failed to insert pipeline", goerr.V("project_id", p.ProjectID), goerr.V("ref", p.Ref))
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return goerr.Wrap(err, "failed to get pipeline id")
	}
	p.Locked = true
	return nil
}

// PutPipeline inserts a pipeline and sets its ID
func (c *Client) PutPipeline(ctx context.Context, p *model.Pipeline) error {
	return c.insertPipeline(ctx, p)
}

// ListPipelines returns the pipelines of a project in creation order
func (c *Client) ListPipelines(ctx context.Context, projectID int64) ([]*model.Pipeline, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, project_id, user_id, source, ref, tag, sha, before_sha, status, failure_reason, locked
		FROM pipelines WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list pipelines", goerr.V("project_id", projectID))
	}
	defer rows.Close()

	var pipelines []*model.Pipeline
	for rows.Next() {
		var p model.Pipeline
		var status string
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.UserID, &p.Source, &p.Ref, &p.Tag, &p.SHA,
			&p.BeforeSHA, &status, &p.FailureReason, &p.Locked); err != nil {
			return nil, goerr.Wrap(err, "failed to scan pipeline", goerr.V("project_id", projectID))
		}
		p.Status = model.PipelineStatus(status)
		pipelines = append(pipelines, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate pipelines", goerr.V("project_id", projectID))
	}
	return pipelines, nil
}

// UnlockPipelines releases the artifacts of every pipeline built for a ref
func (c *Client) UnlockPipelines(ctx context.Context, projectID int64, ref string, tag bool) (int, error) {
	res, err := c.db.ExecContext(ctx, `
		UPDATE pipelines SET locked = 0
		WHERE project_id = ? AND ref = ? AND tag = ? AND locked = 1`,
		projectID, ref, boolToInt(tag))
	if err != nil {
		return 0, goerr.Wrap(err, "failed to unlock pipelines", goerr.V("project_id", projectID), goerr.V("ref", ref))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count unlocked pipelines", goerr.V("project_id", projectID))
	}
	return int(n), nil
}
