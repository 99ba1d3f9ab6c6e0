package delivery

import (
	"context"
	"strings"
	"testing"

	"github.com/oddside/automation-runtime/internal/app/storage/memory"
	"github.com/oddside/automation-runtime/pkg/logger"
)

func TestEmailSenderRendersGameInviteTemplate(t *testing.T) {
	ctx := context.Background()
	sender := NewEmailSender(memory.New(), nil, logger.NewDefault("test"))

	result, err := sender.Send(ctx, "del1", TemplateGameInvite,
		[]EmailRecipient{{UserID: "u1", Email: "u1@example.com", Name: "Jake"}},
		"", "", map[string]any{"game_title": "Friday Game", "buy_in_amount": "25"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.SentCount != 1 {
		t.Fatalf("expected 1 sent, got %+v", result)
	}

	var logs []EmailRecord
	memStore := sender.emailLogs
	if err := memStore.Find(ctx, nil, nil, 0, &logs); err != nil {
		t.Fatalf("list email logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 logged email, got %d", len(logs))
	}
	if !strings.Contains(logs[0].Subject, "Friday Game") {
		t.Fatalf("expected the rendered subject to include the game title, got %q", logs[0].Subject)
	}
	if !strings.Contains(logs[0].Body, "$25") {
		t.Fatalf("expected the rendered body to include the buy-in, got %q", logs[0].Body)
	}
}

func TestEmailSenderCustomTemplateUsesSuppliedSubjectAndBody(t *testing.T) {
	ctx := context.Background()
	sender := NewEmailSender(memory.New(), nil, logger.NewDefault("test"))

	_, err := sender.Send(ctx, "del1", TemplateCustom,
		[]EmailRecipient{{UserID: "u1", Email: "u1@example.com"}},
		"Custom Subject", "Custom Body", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	var logs []EmailRecord
	if err := sender.emailLogs.Find(ctx, nil, nil, 0, &logs); err != nil {
		t.Fatalf("list email logs: %v", err)
	}
	if logs[0].Subject != "Custom Subject" || logs[0].Body != "Custom Body" {
		t.Fatalf("expected the custom subject/body to pass through untouched, got %+v", logs[0])
	}
}

func TestEmailSenderIsIdempotentOnDeliveryID(t *testing.T) {
	ctx := context.Background()
	sender := NewEmailSender(memory.New(), nil, logger.NewDefault("test"))
	recipients := []EmailRecipient{{UserID: "u1", Email: "u1@example.com"}}

	if _, err := sender.Send(ctx, "del1", TemplateWeeklyDigest, recipients, "", "", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	second, err := sender.Send(ctx, "del1", TemplateWeeklyDigest, recipients, "", "", nil)
	if err != nil {
		t.Fatalf("Send (retry): %v", err)
	}
	if second.Results[0].Status != "duplicate" {
		t.Fatalf("expected retry to report duplicate, got %+v", second)
	}
}
