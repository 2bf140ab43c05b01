package slack

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/interfaces"
	"github.com/m-mizutani/refhook/pkg/domain/model"
	"github.com/slack-go/slack"
)

const attachmentColor = "#345"

// Notifier posts push summaries to Slack incoming webhooks
type Notifier struct{}

var _ interfaces.ChatNotifier = (*Notifier)(nil)

func New() *Notifier {
	return &Notifier{}
}

func (x *Notifier) NotifyPush(ctx context.Context, integration *model.SlackIntegration, data *model.PushData) error {
	msg := &slack.WebhookMessage{
		Channel:     integration.Channel,
		Text:        PushMessage(data),
		Attachments: commitAttachments(data),
	}

	if err := slack.PostWebhookContext(ctx, integration.WebhookURL, msg); err != nil {
		return goerr.Wrap(err, "failed to post slack message",
			goerr.V("project_id", data.ProjectID),
			goerr.V("ref", data.Ref),
		)
	}
	return nil
}

// PushMessage renders the one-line summary of a push in Slack link markup
func PushMessage(data *model.PushData) string {
	refType := "branch"
	if data.ObjectKind == "tag_push" {
		refType = "tag"
	}
	ref := model.ShortRefName(data.Ref)
	project := fmt.Sprintf("<%s|%s>", data.Project.WebURL, data.Project.PathWithNamespace)

	switch {
	case model.IsBlankRev(data.Before):
		return fmt.Sprintf("%s pushed new %s <%s/-/tree/%s|%s> to %s",
			data.UserName, refType, data.Project.WebURL, ref, ref, project)
	case model.IsBlankRev(data.After):
		return fmt.Sprintf("%s removed %s %s from %s", data.UserName, refType, ref, project)
	default:
		return fmt.Sprintf("%s pushed to %s <%s/-/tree/%s|%s> of %s (<%s/-/compare/%s...%s|Compare changes>)",
			data.UserName, refType, data.Project.WebURL, ref, ref, project,
			data.Project.WebURL, shortSHA(data.Before), shortSHA(data.After))
	}
}

func commitAttachments(data *model.PushData) []slack.Attachment {
	if len(data.Commits) == 0 {
		return nil
	}

	lines := make([]string, 0, len(data.Commits))
	for _, c := range data.Commits {
		lines = append(lines, fmt.Sprintf("<%s|%s>: %s - %s", c.URL, shortSHA(c.ID), c.Title, c.Author.Name))
	}
	text := strings.Join(lines, "\n")
	return []slack.Attachment{{
		Color:    attachmentColor,
		Text:     text,
		Fallback: text,
	}}
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
