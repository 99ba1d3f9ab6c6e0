package delivery

import (
	"context"
	"testing"

	"github.com/oddside/automation-runtime/internal/app/storage/memory"
)

func TestNotificationSenderSendsOnePerRecipient(t *testing.T) {
	ctx := context.Background()
	sender := NewNotificationSender(memory.New())

	result, err := sender.Send(ctx, "del1", []string{"u1", "u2"}, "Game Tonight", "Buy-in is $20", "game_reminder", map[string]any{"game_id": "g1"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.SentCount != 2 || result.FailedCount != 0 {
		t.Fatalf("expected 2 sent, got %+v", result)
	}
}

func TestNotificationSenderIsIdempotentOnDeliveryID(t *testing.T) {
	ctx := context.Background()
	sender := NewNotificationSender(memory.New())

	first, err := sender.Send(ctx, "del1", []string{"u1"}, "Title", "Message", "general", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	second, err := sender.Send(ctx, "del1", []string{"u1"}, "Title", "Message", "general", nil)
	if err != nil {
		t.Fatalf("Send (retry): %v", err)
	}
	if second.Results[0].Status != "duplicate" {
		t.Fatalf("expected retry to report duplicate, got %+v", second)
	}
	if first.SentCount != second.SentCount {
		t.Fatalf("expected a retried send to report the same count, got %d vs %d", first.SentCount, second.SentCount)
	}
}

func TestNotificationSenderRejectsEmptyRecipients(t *testing.T) {
	ctx := context.Background()
	sender := NewNotificationSender(memory.New())
	if _, err := sender.Send(ctx, "del1", nil, "t", "m", "general", nil); err == nil {
		t.Fatal("expected an error for no recipients")
	}
}
