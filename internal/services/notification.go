package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/debatehub/backend/internal/config"
	"github.com/debatehub/backend/internal/models"
	"github.com/debatehub/backend/pkg/logger"
)

// FlagNotification tells moderators that a record needs a human decision.
type FlagNotification struct {
	RecordID    uint
	ContentRef  string
	Title       string
	Status      string
	RiskLevel   string
	Confidence  float64
	Categories  []string
	Reasons     []string
	SubmitterID string
}

func newFlagNotification(r *models.ModerationRecord) *FlagNotification {
	return &FlagNotification{
		RecordID:    r.ID,
		ContentRef:  r.ContentRef,
		Title:       r.Title,
		Status:      r.Status,
		RiskLevel:   r.RiskLevel,
		Confidence:  r.Confidence,
		Categories:  r.Categories,
		Reasons:     r.Reasons,
		SubmitterID: r.SubmitterID,
	}
}

// NotificationAdapter formats and delivers a notification for one webhook flavour.
type NotificationAdapter interface {
	Send(ctx context.Context, webhook string, n *FlagNotification) error
}

func getAdapter(kind string) NotificationAdapter {
	switch kind {
	case "slack":
		return &slackAdapter{}
	case "discord":
		return &discordAdapter{}
	case "teams":
		return &teamsAdapter{}
	default:
		return &genericAdapter{}
	}
}

// NotificationService alerts moderators about flagged records. It is a no-op
// without a configured webhook.
type NotificationService struct {
	webhook string
	adapter NotificationAdapter
}

func NewNotificationService(cfg config.NotifyConfig) *NotificationService {
	return &NotificationService{
		webhook: cfg.Webhook,
		adapter: getAdapter(cfg.Type),
	}
}

func (s *NotificationService) Enabled() bool {
	return s != nil && s.webhook != ""
}

// NotifyFlagged sends the alert. Errors are returned for the caller to log;
// they never affect the moderation outcome.
func (s *NotificationService) NotifyFlagged(ctx context.Context, r *models.ModerationRecord) error {
	if !s.Enabled() {
		return nil
	}
	logger.Infof("[Notification] Record %d flagged (%s), notifying moderators", r.ID, r.RiskLevel)
	return s.adapter.Send(ctx, s.webhook, newFlagNotification(r))
}

var notificationHTTPClient = &http.Client{Timeout: 10 * time.Second}

func postJSON(ctx context.Context, webhookURL string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := notificationHTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func riskEmoji(risk string) string {
	switch risk {
	case "CRITICAL":
		return "🔴"
	case "HIGH":
		return "🟠"
	case "MEDIUM":
		return "🟡"
	}
	return "🟢"
}

func buildMessage(n *FlagNotification) string {
	var sb strings.Builder

	sb.WriteString("## Moderation Alert\n\n")
	fmt.Fprintf(&sb, "**Record**: #%d\n", n.RecordID)
	if n.Title != "" {
		title := n.Title
		if utf8.RuneCountInString(title) > 100 {
			title = truncateRunes(title, 100) + "..."
		}
		fmt.Fprintf(&sb, "**Title**: %s\n", title)
	}
	if n.ContentRef != "" {
		fmt.Fprintf(&sb, "**Content**: %s\n", n.ContentRef)
	}
	fmt.Fprintf(&sb, "**Risk**: %s %s (confidence %.0f%%)\n", riskEmoji(n.RiskLevel), n.RiskLevel, n.Confidence*100)
	fmt.Fprintf(&sb, "**Status**: %s\n", n.Status)
	if len(n.Categories) > 0 {
		fmt.Fprintf(&sb, "**Categories**: %s\n", strings.Join(n.Categories, ", "))
	}
	if len(n.Reasons) > 0 {
		sb.WriteString("\n**Reasons**:\n")
		for _, reason := range n.Reasons {
			fmt.Fprintf(&sb, "- %s\n", reason)
		}
	}
	return sb.String()
}

type genericAdapter struct{}

func (a *genericAdapter) Send(ctx context.Context, webhook string, n *FlagNotification) error {
	payload := map[string]interface{}{
		"event":        EventRecordFlagged,
		"record_id":    n.RecordID,
		"content_ref":  n.ContentRef,
		"title":        n.Title,
		"status":       n.Status,
		"risk_level":   n.RiskLevel,
		"confidence":   n.Confidence,
		"categories":   n.Categories,
		"reasons":      n.Reasons,
		"submitter_id": n.SubmitterID,
	}
	return postJSON(ctx, webhook, payload)
}

type slackAdapter struct{}

func (a *slackAdapter) Send(ctx context.Context, webhook string, n *FlagNotification) error {
	header := fmt.Sprintf("*Moderation Alert* #%d\n%s *Risk*: %s\n*Status*: %s",
		n.RecordID, riskEmoji(n.RiskLevel), n.RiskLevel, n.Status)

	details := "_no reasons given_"
	if len(n.Reasons) > 0 {
		details = "• " + strings.Join(n.Reasons, "\n• ")
	}

	payload := map[string]interface{}{
		"text": header,
		"blocks": []map[string]interface{}{
			{
				"type": "section",
				"text": map[string]string{"type": "mrkdwn", "text": header},
			},
			{
				"type": "section",
				"text": map[string]string{"type": "mrkdwn", "text": details},
			},
		},
	}
	return postJSON(ctx, webhook, payload)
}

type discordAdapter struct{}

func (a *discordAdapter) Send(ctx context.Context, webhook string, n *FlagNotification) error {
	msg := buildMessage(n)
	// Discord rejects content over 2000 characters.
	if utf8.RuneCountInString(msg) > 2000 {
		msg = truncateRunes(msg, 1997) + "..."
	}
	return postJSON(ctx, webhook, map[string]interface{}{"content": msg})
}

type teamsAdapter struct{}

func buildAdaptiveCard(text string) map[string]interface{} {
	return map[string]interface{}{
		"type": "message",
		"attachments": []map[string]interface{}{
			{
				"contentType": "application/vnd.microsoft.card.adaptive",
				"content": map[string]interface{}{
					"type":    "AdaptiveCard",
					"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
					"version": "1.5",
					"body": []map[string]interface{}{
						{
							"type": "TextBlock",
							"text": text,
							"wrap": true,
						},
					},
				},
			},
		},
	}
}

func (a *teamsAdapter) Send(ctx context.Context, webhook string, n *FlagNotification) error {
	return postJSON(ctx, webhook, buildAdaptiveCard(buildMessage(n)))
}
