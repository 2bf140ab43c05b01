package model

// HookType names the trigger a hook subscribes to
type HookType string

const (
	PushHooks             HookType = "push_hooks"
	TagPushHooks          HookType = "tag_push_hooks"
	WikiPageHooks         HookType = "wiki_page_hooks"
	RepositoryUpdateHooks HookType = "repository_update_hooks"
)

// EventHeader returns the X-Gitlab-Event header value for the hook type
func (t HookType) EventHeader() string {
	switch t {
	case PushHooks:
		return "Push Hook"
	case TagPushHooks:
		return "Tag Push Hook"
	case WikiPageHooks:
		return "Wiki Page Hook"
	default:
		return "System Hook"
	}
}

type ProjectHook struct {
	ID                     int64  `json:"id"`
	ProjectID              int64  `json:"project_id"`
	URL                    string `json:"url"`
	Token                  string `json:"-"`
	PushEvents             bool   `json:"push_events"`
	TagPushEvents          bool   `json:"tag_push_events"`
	WikiPageEvents         bool   `json:"wiki_page_events"`
	PushEventsBranchFilter string `json:"push_events_branch_filter"`
}

// Subscribes reports whether the hook wants events of hookType
func (h *ProjectHook) Subscribes(hookType HookType) bool {
	switch hookType {
	case PushHooks:
		return h.PushEvents
	case TagPushHooks:
		return h.TagPushEvents
	case WikiPageHooks:
		return h.WikiPageEvents
	default:
		return false
	}
}

type SystemHook struct {
	URL                    string `toml:"url" validate:"required,url"`
	Token                  string `toml:"token"`
	PushEvents             bool   `toml:"push_events"`
	TagPushEvents          bool   `toml:"tag_push_events"`
	RepositoryUpdateEvents bool   `toml:"repository_update_events"`
}

// Subscribes reports whether the system hook wants events of hookType
func (h *SystemHook) Subscribes(hookType HookType) bool {
	switch hookType {
	case PushHooks:
		return h.PushEvents
	case TagPushHooks:
		return h.TagPushEvents
	case RepositoryUpdateHooks:
		return h.RepositoryUpdateEvents
	default:
		return false
	}
}

type JiraIntegration struct {
	ProjectID         int64  `json:"project_id"`
	URL               string `json:"url"`
	Username          string `json:"username"`
	Token             string `json:"-"`
	CloseTransitionID string `json:"jira_issue_transition_id"`
	CommitEvents      bool   `json:"commit_events"`
}

type SlackIntegration struct {
	ProjectID     int64  `json:"project_id"`
	WebhookURL    string `json:"-"`
	Channel       string `json:"channel"`
	PushEvents    bool   `json:"push_events"`
	TagPushEvents bool   `json:"tag_push_events"`
	BranchFilter  string `json:"branches_to_be_notified"`
}

// Subscribes reports whether the integration wants events of hookType
func (s *SlackIntegration) Subscribes(hookType HookType) bool {
	switch hookType {
	case PushHooks:
		return s.PushEvents
	case TagPushHooks:
		return s.TagPushEvents
	default:
		return false
	}
}
