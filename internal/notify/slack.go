// Package notify implements the optional end-of-run summary notification
// (SPEC_FULL §DOMAIN STACK), adapted from the teacher's pkg/slack.Notifier
// enable-if-token-present idiom.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/atlas-health/atlas/internal/export"
)

// SlackNotifier posts a one-line export summary to a configured Slack
// channel at the end of a run. It implements export.Notifier.
type SlackNotifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewSlackNotifier builds a SlackNotifier. If botToken or channel is empty,
// the notifier is a no-op: callers can wire it unconditionally and skip the
// "is this configured" branch at the call site.
func NewSlackNotifier(botToken, channel string, logger *slog.Logger) *SlackNotifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &SlackNotifier{client: client, channel: channel, logger: logger}
}

// Enabled reports whether this notifier has a bot token and channel.
func (n *SlackNotifier) Enabled() bool {
	return n.client != nil && n.channel != ""
}

// NotifySummary posts the run outcome as a single Slack message.
func (n *SlackNotifier) NotifySummary(ctx context.Context, summary export.Summary) error {
	if !n.Enabled() {
		n.logger.Debug("slack notifier disabled, skipping summary post")
		return nil
	}

	text := summaryText(summary)
	_, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("posting export summary to slack: %w", err)
	}
	return nil
}

func summaryText(s export.Summary) string {
	status := "completed"
	switch {
	case s.Interrupted:
		status = "interrupted"
	case s.Failed > 0 || len(s.Errors) > 0:
		status = "completed with errors"
	}

	msg := fmt.Sprintf(
		"Atlas export %s: %d subjects, %d compositions (%d ok, %d failed), duration %s",
		status, s.SubjectsProcessed, s.CompositionsTotal, s.Successful, s.Failed, s.Duration.Round(time.Millisecond),
	)
	if s.Interrupted {
		msg += fmt.Sprintf(" — %s", s.ShutdownReason)
	}
	if s.Verification != nil {
		msg += fmt.Sprintf(" | verification: %d passed, %d failed, %d skipped", s.Verification.Passed, s.Verification.Failed, s.Verification.Skipped)
	}
	return msg
}
