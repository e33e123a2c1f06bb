package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/spikewatch/spikewatch/internal/cards"
	"github.com/spikewatch/spikewatch/internal/rca"
	"github.com/spikewatch/spikewatch/internal/traces"
	"github.com/spikewatch/spikewatch/internal/utils"
)

// SlackNotifier delivers incident summaries to a Slack incoming webhook.
// Delivery failure is reported to the caller, which logs it and moves on;
// there is no in-cycle retry.
type SlackNotifier struct {
	webhookURL string
	portalBase string
}

// NewSlackNotifier creates a notifier for the given webhook. portalBase,
// when set, is used to build a browsable link to the artifact directory.
func NewSlackNotifier(webhookURL, portalBase string) *SlackNotifier {
	return &SlackNotifier{webhookURL: webhookURL, portalBase: portalBase}
}

// NotifyCard sends the card summary, severity, top tags and artifact link.
func (n *SlackNotifier) NotifyCard(ctx context.Context, card *cards.ErrorCard, report *rca.Report, artifactID string, topTags []traces.TagKV) error {
	msg := &slack.WebhookMessage{
		Text: buildMessage(card, report, n.artifactLink(artifactID), topTags),
	}
	if err := slack.PostWebhookContext(ctx, n.webhookURL, msg); err != nil {
		return fmt.Errorf("failed to post incident to Slack: %w", err)
	}
	return nil
}

func (n *SlackNotifier) artifactLink(artifactID string) string {
	if n.portalBase == "" {
		return artifactID
	}
	return strings.TrimRight(n.portalBase, "/") + "/?error_dir=" + artifactID
}

// buildMessage formats the alert body. Pure.
func buildMessage(card *cards.ErrorCard, report *rca.Report, link string, topTags []traces.TagKV) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s *ERROR ALERT* (%s)\n\n", report.Severity.Emoji(), report.Severity))
	sb.WriteString(fmt.Sprintf("*Service*: %s\n", card.Service))
	sb.WriteString(fmt.Sprintf("*Environment*: %s\n", card.Env))
	sb.WriteString(fmt.Sprintf("*Root Operation*: %s\n", card.RootName))
	sb.WriteString(fmt.Sprintf("*HTTP Status*: %s\n", card.HTTPCode))
	sb.WriteString(fmt.Sprintf("*Exception*: %s\n", card.Exception))
	sb.WriteString(fmt.Sprintf("*Error Count*: %s\n", utils.FormatCount(card.Count)))
	if report.Summary.FirstOverall != "" {
		sb.WriteString(fmt.Sprintf("*First Encountered*: %s\n", report.Summary.FirstOverall))
	}
	if report.Summary.LastOverall != "" {
		sb.WriteString(fmt.Sprintf("*Latest Encountered*: %s\n", report.Summary.LastOverall))
	}
	sb.WriteString(fmt.Sprintf("*Primary Cause*: %s\n", report.PrimaryCause))

	if len(topTags) > 0 {
		sb.WriteString("\n*Tags*:\n")
		for _, tag := range topTags {
			sb.WriteString(fmt.Sprintf("• %s: %s\n", tag.Key, utils.TruncateText(tag.Value, 120)))
		}
	}

	sb.WriteString(fmt.Sprintf("\n*Report*: %s\n", link))

	return sb.String()
}
