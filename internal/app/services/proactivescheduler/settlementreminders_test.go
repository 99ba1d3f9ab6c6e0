package proactivescheduler

import (
	"context"
	"testing"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/directory"
	"github.com/oddside/automation-runtime/internal/app/domain/ledger"
	"github.com/oddside/automation-runtime/internal/app/services/paymentrecon"
	"github.com/oddside/automation-runtime/internal/app/services/policy"
	"github.com/oddside/automation-runtime/internal/app/storage"
	"github.com/oddside/automation-runtime/internal/app/storage/memory"
)

type recordingPaymentReminderSender struct {
	calls []string
}

func (r *recordingPaymentReminderSender) SendPaymentReminder(ctx context.Context, reminder paymentrecon.Reminder) error {
	r.calls = append(r.calls, reminder.Entry.LedgerID)
	return nil
}

func alwaysOnScanOptions() paymentrecon.ScanOptions {
	return paymentrecon.ScanOptions{
		RemindersEnabled: func(string) bool { return true },
		LocalHour:        func(string) int { return 12 },
		IsWeekend:        func(string) bool { return false },
		GroupDailyCount:  func(context.Context, string) (int64, error) { return 0, nil },
	}
}

func TestSettlementReminderScanRemindsOutstandingEntriesOnSettledGame(t *testing.T) {
	ctx := context.Background()
	gameNights := memory.New()
	entries := memory.New()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	if err := gameNights.InsertOne(ctx, "g1", directory.GameNight{
		GameID: "g1", GroupID: "grp1", Status: directory.GameNightSettled,
	}); err != nil {
		t.Fatalf("insert game: %v", err)
	}
	if err := entries.InsertOne(ctx, "l1", ledger.Entry{
		LedgerID: "l1", GroupID: "grp1", GameID: "g1", FromUserID: "u1", ToUserID: "u2",
		Amount: 20, Status: ledger.StatusOpen, CreatedAt: now,
	}); err != nil {
		t.Fatalf("insert entry: %v", err)
	}

	reconciler := paymentrecon.NewReconciler(entries, gameNights, memory.New(), memory.New(), policy.NewPaymentPolicy(policy.NewMemoryCounter()))
	sender := &recordingPaymentReminderSender{}
	scan := NewSettlementReminderScan(gameNights, reconciler, sender, alwaysOnScanOptions())
	scan.now = func() time.Time { return now }

	if err := scan.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(sender.calls) != 1 || sender.calls[0] != "l1" {
		t.Fatalf("expected a reminder for entry l1, got %v", sender.calls)
	}

	var updated ledger.Entry
	if err := entries.FindOne(ctx, storage.Filter{"ledger_id": "l1"}, &updated); err != nil {
		t.Fatalf("find updated entry: %v", err)
	}
	if updated.ReminderCount != 1 {
		t.Fatalf("expected reminder count to be recorded, got %d", updated.ReminderCount)
	}
}

func TestSettlementReminderScanSkipsGameWithinCooldown(t *testing.T) {
	ctx := context.Background()
	gameNights := memory.New()
	entries := memory.New()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	if err := gameNights.InsertOne(ctx, "g1", directory.GameNight{
		GameID: "g1", GroupID: "grp1", Status: directory.GameNightSettled,
	}); err != nil {
		t.Fatalf("insert game: %v", err)
	}
	if err := entries.InsertOne(ctx, "l1", ledger.Entry{
		LedgerID: "l1", GroupID: "grp1", GameID: "g1", FromUserID: "u1", ToUserID: "u2",
		Amount: 20, Status: ledger.StatusOpen, CreatedAt: now,
	}); err != nil {
		t.Fatalf("insert entry: %v", err)
	}

	reconciler := paymentrecon.NewReconciler(entries, gameNights, memory.New(), memory.New(), policy.NewPaymentPolicy(policy.NewMemoryCounter()))
	sender := &recordingPaymentReminderSender{}
	scan := NewSettlementReminderScan(gameNights, reconciler, sender, alwaysOnScanOptions())
	scan.now = func() time.Time { return now }

	if err := scan.Tick(ctx); err != nil {
		t.Fatalf("first Tick: %v", err)
	}
	if err := scan.Tick(ctx); err != nil {
		t.Fatalf("second Tick: %v", err)
	}
	if len(sender.calls) != 1 {
		t.Fatalf("expected only one reminder within the settled-game cooldown, got %v", sender.calls)
	}
}
