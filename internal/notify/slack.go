package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/hearthwatch/hearthwatch/internal/alerts"
)

// SlackNotifier posts new alerts to a Slack channel.
type SlackNotifier struct {
	client  *slack.Client
	channel string
}

// NewSlackNotifier creates a notifier for the given bot token and channel.
func NewSlackNotifier(token, channel string) *SlackNotifier {
	return &SlackNotifier{
		client:  slack.New(token),
		channel: channel,
	}
}

// Name implements Notifier.
func (n *SlackNotifier) Name() string {
	return "slack"
}

// NotifyAlert implements Notifier.
func (n *SlackNotifier) NotifyAlert(ctx context.Context, alert alerts.Alert) error {
	alarm := alert.FirstAlarm

	fields := make([]slack.AttachmentField, 0, len(alarm.Details))
	for _, d := range alarm.Details {
		fields = append(fields, slack.AttachmentField{
			Title: d.IntegrationKey,
			Value: d.Value,
			Short: true,
		})
	}

	attachment := slack.Attachment{
		Color:  levelColor(alarm.Level),
		Title:  alarm.Title,
		Text:   fmt.Sprintf("%s alert from %s", alarm.Level, alarm.Source),
		Fields: fields,
		Footer: fmt.Sprintf("alert %s", alert.ID),
		Ts:     json.Number(fmt.Sprintf("%d", alert.StartedAt.Unix())),
	}

	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(fmt.Sprintf("%s %s", levelEmoji(alarm.Level), alarm.Title), false),
		slack.MsgOptionAttachments(attachment),
	)
	return err
}

func levelColor(level alerts.Level) string {
	switch level {
	case alerts.LevelCritical:
		return "danger"
	case alerts.LevelWarning:
		return "warning"
	default:
		return "good"
	}
}

func levelEmoji(level alerts.Level) string {
	switch level {
	case alerts.LevelCritical:
		return ":red_circle:"
	case alerts.LevelWarning:
		return ":large_yellow_circle:"
	default:
		return ":large_blue_circle:"
	}
}
