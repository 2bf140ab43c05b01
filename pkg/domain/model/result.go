package model

// StepResult is the outcome of one best-effort step of a ref change
type StepResult struct {
	Name    string `json:"name"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   error  `json:"-"`
}

// ChangeResult aggregates the steps run for one ref change
type ChangeResult struct {
	Change RefChange    `json:"change"`
	Steps  []StepResult `json:"steps"`
}

// Failed returns the steps that returned an error
func (r *ChangeResult) Failed() []StepResult {
	var failed []StepResult
	for _, s := range r.Steps {
		if s.Error != nil {
			failed = append(failed, s)
		}
	}
	return failed
}

// Ran reports whether the named step ran, successfully or not
func (r *ChangeResult) Ran(name string) bool {
	for _, s := range r.Steps {
		if s.Name == name && !s.Skipped {
			return true
		}
	}
	return false
}

// PushResult aggregates the outcome of one push
type PushResult struct {
	Changes         []ChangeResult `json:"changes"`
	HooksExecuted   int            `json:"hooks_executed"`
	PipelinesQueued int            `json:"pipelines_requested"`
	WikiEvents      int            `json:"wiki_events,omitempty"`
}

// Errors returns every step error across changes
func (r *PushResult) Errors() []error {
	var errs []error
	for _, c := range r.Changes {
		for _, s := range c.Failed() {
			errs = append(errs, s.Error)
		}
	}
	return errs
}
