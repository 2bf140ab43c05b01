package model

type PipelineStatus string

const (
	PipelineCreated PipelineStatus = "created"
	PipelineFailed  PipelineStatus = "failed"
)

// PipelineParams is what a push asks the pipeline creator for
type PipelineParams struct {
	Before      string            `json:"before"`
	After       string            `json:"after"`
	Ref         string            `json:"ref"`
	CheckoutSHA string            `json:"checkout_sha"`
	Variables   map[string]string `json:"variables_attributes"`
	PushOptions map[string]string `json:"push_options,omitempty"`
}

// Sanitized drops push options, which can carry user-provided values, for logging
func (p PipelineParams) Sanitized() PipelineParams {
	p.PushOptions = nil
	return p
}

type Pipeline struct {
	ID            int64          `json:"id"`
	ProjectID     int64          `json:"project_id"`
	UserID        int64          `json:"user_id"`
	Source        string         `json:"source"`
	Ref           string         `json:"ref"`
	Tag           bool           `json:"tag"`
	SHA           string         `json:"sha"`
	BeforeSHA     string         `json:"before_sha"`
	Status        PipelineStatus `json:"status"`
	FailureReason string         `json:"failure_reason,omitempty"`
	// Locked artifacts are kept until the ref is deleted
	Locked bool `json:"locked"`
}

// PipelineResult is the outcome of a pipeline creation request.
// Pipeline is nil when nothing was persisted.
type PipelineResult struct {
	Pipeline *Pipeline
	Message  string
}

// Persisted reports whether a pipeline record exists, even a failed one
func (r *PipelineResult) Persisted() bool {
	return r != nil && r.Pipeline != nil
}
