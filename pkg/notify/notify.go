// Package notify is the narrow outbound notification adapter: one method
// that turns an incident, anomaly, or kill-switch event into a single Slack
// message. It has no inbound surface (no slash commands, modals, or DM
// handling) — ward is a control plane, not a chat app, so this package only
// ever speaks outward.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// Severity mirrors the severity vocabulary used across the Snapshot and
// Incident components so callers can pass theirs straight through.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) emoji() string {
	switch s {
	case SeverityCritical:
		return ":rotating_light:"
	case SeverityHigh:
		return ":warning:"
	case SeverityMedium:
		return ":large_orange_diamond:"
	default:
		return ":information_source:"
	}
}

// Notification is one outbound message: an incident opened, an anomaly
// detected, or a kill-switch tripped.
type Notification struct {
	Source   string // "incident" | "anomaly" | "kill_switch"
	Severity Severity
	Title    string
	Detail   string
	TenantID string
}

// Notifier posts Notifications to a single configured Slack channel. A zero
// bot token disables delivery: Send then only logs, never errors, so the
// rest of the system never has to branch on whether notifications are
// configured.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// New builds a Notifier. If botToken is empty, Send becomes log-only.
func New(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// Enabled reports whether Send will actually reach Slack.
func (n *Notifier) Enabled() bool {
	return n.client != nil && n.channel != ""
}

// Send posts one Notification. Delivery failures are returned: the
// maintenance outbox task requeues on them, while the incident and
// kill-switch handlers call Send on a goroutine and ignore the result.
func (n *Notifier) Send(ctx context.Context, note Notification) error {
	if !n.Enabled() {
		n.logger.Debug("notifier disabled, skipping send",
			"source", note.Source, "tenant_id", note.TenantID, "title", note.Title)
		return nil
	}

	text := fmt.Sprintf("%s *%s* (tenant %s)\n%s", note.Severity.emoji(), note.Title, note.TenantID, note.Detail)
	_, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("posting notification to slack: %w", err)
	}

	n.logger.Info("notification sent", "source", note.Source, "tenant_id", note.TenantID, "severity", note.Severity)
	return nil
}
