package model

import "time"

// EventAction is the action recorded on an activity event
type EventAction string

const (
	EventPushed    EventAction = "pushed"
	EventCreated   EventAction = "created"
	EventUpdated   EventAction = "updated"
	EventDestroyed EventAction = "destroyed"
)

type Event struct {
	ID          string      `json:"id"`
	ProjectID   int64       `json:"project_id"`
	AuthorID    int64       `json:"author_id"`
	Action      EventAction `json:"action"`
	TargetType  string      `json:"target_type,omitempty"`
	TargetID    int64       `json:"target_id,omitempty"`
	Fingerprint string      `json:"fingerprint,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// PushEventPayload summarises one branch or tag push attached to an Event
type PushEventPayload struct {
	EventID     string    `json:"event_id"`
	CommitFrom  *string   `json:"commit_from"`
	CommitTo    *string   `json:"commit_to"`
	CommitTitle string    `json:"commit_title"`
	CommitCount int       `json:"commit_count"`
	Action      RefAction `json:"action"`
	RefType     RefKind   `json:"ref_type"`
	Ref         *string   `json:"ref"`
	RefCount    *int      `json:"ref_count"`
}

// MaxCommitTitleLength caps PushEventPayload.CommitTitle
const MaxCommitTitleLength = 70

// NewPushEventPayload derives the payload for a single ref change
func NewPushEventPayload(change RefChange, commitTitle string, commitCount int) *PushEventPayload {
	payload := &PushEventPayload{
		CommitTitle: truncateTitle(commitTitle),
		CommitCount: commitCount,
		Action:      change.Action(),
		RefType:     change.Kind(),
	}

	ref := change.ShortName()
	payload.Ref = &ref

	if !IsBlankRev(change.OldRev) {
		from := change.OldRev
		payload.CommitFrom = &from
	}
	if !IsBlankRev(change.NewRev) {
		to := change.NewRev
		payload.CommitTo = &to
	} else {
		payload.CommitCount = 0
		payload.CommitTitle = ""
	}

	return payload
}

// NewBulkPushEventPayload derives the payload standing for many changes of the same action
func NewBulkPushEventPayload(kind RefKind, action RefAction, refCount int) *PushEventPayload {
	count := refCount
	return &PushEventPayload{
		Action:   action,
		RefType:  kind,
		RefCount: &count,
	}
}

func truncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= MaxCommitTitleLength {
		return title
	}
	return string(runes[:MaxCommitTitleLength-3]) + "..."
}
