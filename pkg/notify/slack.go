// Package notify delivers SLA alerts to an operator-facing channel.
// Adapted from the teacher's pkg/slack client: the Slack API wrapper and
// fingerprint-based thread lookup are kept nearly as-is, but repurposed
// from incident-alert formatting to SLA-alert formatting, and the
// fingerprint is now an alert type rather than an arbitrary incident key
// (so repeated breaches of the same alert thread together instead of
// spamming a new top-level message per evaluation cycle).
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/G3niusYukki/xianyu-chatops/pkg/sla"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// SlackClient is a thin wrapper around the slack-go SDK, limited to the
// two operations the alert channel needs: post and find-by-fingerprint.
type SlackClient struct {
	api       *goslack.Client
	channelID string
	logger    *slog.Logger
}

func NewSlackClient(token, channelID string) *SlackClient {
	return &SlackClient{
		api:       goslack.New(token),
		channelID: channelID,
		logger:    slog.Default().With("component", "notify-slack"),
	}
}

// AlertNotifier posts SLA alerts to Slack, threading repeat breaches of
// the same alert type under one parent message.
type AlertNotifier struct {
	client *SlackClient
}

func NewAlertNotifier(client *SlackClient) *AlertNotifier {
	return &AlertNotifier{client: client}
}

// Notify posts an alert, threading it under the most recent message for
// the same alert type posted in the last 24 hours, if any.
func (n *AlertNotifier) Notify(ctx context.Context, alert sla.Alert) error {
	threadTS, err := n.client.findThreadFor(ctx, string(alert.AlertType))
	if err != nil {
		n.client.logger.Warn("thread lookup failed, posting as new message", "alert_type", alert.AlertType, "error", err)
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*%s*\n%s", alert.Title, alert.Message), false, false),
			nil, nil,
		),
		goslack.NewContextBlock("", goslack.NewTextBlockObject(goslack.MarkdownType,
			fmt.Sprintf("type: `%s` | raised: %s", alert.AlertType, alert.CreatedAt.Format(time.RFC3339)), false, false)),
	}

	return n.client.postMessage(ctx, blocks, threadTS, 10*time.Second)
}

func (c *SlackClient) postMessage(ctx context.Context, blocks []goslack.Block, threadTS string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := []goslack.MsgOption{goslack.MsgOptionBlocks(blocks...)}
	if threadTS != "" {
		opts = append(opts, goslack.MsgOptionTS(threadTS))
	}

	_, _, err := c.api.PostMessageContext(ctx, c.channelID, opts...)
	if err != nil {
		return fmt.Errorf("chat.postMessage failed: %w", err)
	}
	return nil
}

// findThreadFor searches recent channel history for a message whose text
// contains the given alert type, paging through up to 1000 messages from
// the last 24 hours. Returns the message timestamp (ts) for threading, or
// empty string if not found.
func (c *SlackClient) findThreadFor(ctx context.Context, alertType string) (string, error) {
	oldest := fmt.Sprintf("%d", time.Now().Add(-24*time.Hour).Unix())
	needle := normalizeText(alertType)

	params := &goslack.GetConversationHistoryParameters{
		ChannelID: c.channelID,
		Oldest:    oldest,
		Limit:     200,
	}

	const maxPages = 5
	for page := 0; page < maxPages; page++ {
		history, err := c.api.GetConversationHistoryContext(ctx, params)
		if err != nil {
			return "", fmt.Errorf("conversations.history failed: %w", err)
		}

		for _, msg := range history.Messages {
			if strings.Contains(normalizeText(collectMessageText(msg)), needle) {
				return msg.Timestamp, nil
			}
		}

		if !history.HasMore || history.ResponseMetaData.NextCursor == "" {
			break
		}
		params.Cursor = history.ResponseMetaData.NextCursor
	}

	return "", nil
}

func normalizeText(s string) string {
	s = strings.ToLower(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func collectMessageText(msg goslack.Message) string {
	var parts []string
	if msg.Text != "" {
		parts = append(parts, msg.Text)
	}
	for _, att := range msg.Attachments {
		if att.Text != "" {
			parts = append(parts, att.Text)
		}
		if att.Fallback != "" {
			parts = append(parts, att.Fallback)
		}
	}
	return strings.Join(parts, " ")
}
