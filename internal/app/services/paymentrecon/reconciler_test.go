package paymentrecon

import (
	"context"
	"testing"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/ledger"
	"github.com/oddside/automation-runtime/internal/app/services/policy"
	"github.com/oddside/automation-runtime/internal/app/storage"
	"github.com/oddside/automation-runtime/internal/app/storage/memory"
)

func seedEntry(t *testing.T, store storage.Store, e ledger.Entry) {
	t.Helper()
	if err := store.InsertOne(context.Background(), e.LedgerID, e); err != nil {
		t.Fatalf("seed entry %s: %v", e.LedgerID, err)
	}
}

func alwaysOpenOptions() ScanOptions {
	return ScanOptions{
		RemindersEnabled: func(string) bool { return true },
		LocalHour:        func(string) int { return 12 },
		IsWeekend:        func(string) bool { return false },
		GroupDailyCount:  func(context.Context, string) (int64, error) { return 0, nil },
	}
}

func TestScanOverdueReturnsAllowedReminders(t *testing.T) {
	store := memory.New()
	seedEntry(t, store, ledger.Entry{
		LedgerID: "l1", GroupID: "g1", FromUserID: "u1", ToUserID: "u2",
		Status: ledger.StatusOpen, CreatedAt: time.Now().Add(-3 * 24 * time.Hour),
	})
	r := NewReconciler(store, memory.New(), memory.New(), memory.New(), policy.NewPaymentPolicy(policy.NewMemoryCounter()))

	reminders, err := r.ScanOverdue(context.Background(), alwaysOpenOptions())
	if err != nil {
		t.Fatalf("ScanOverdue: %v", err)
	}
	if len(reminders) != 1 {
		t.Fatalf("expected 1 reminder, got %d", len(reminders))
	}
	if reminders[0].Urgency != policy.PaymentUrgencyFirm {
		t.Fatalf("expected firm urgency for 3 days overdue, got %s", reminders[0].Urgency)
	}
}

func TestScanOverdueSkipsNotYetOverdue(t *testing.T) {
	store := memory.New()
	seedEntry(t, store, ledger.Entry{
		LedgerID: "l1", GroupID: "g1", FromUserID: "u1", ToUserID: "u2",
		Status: ledger.StatusOpen, CreatedAt: time.Now(),
	})
	r := NewReconciler(store, memory.New(), memory.New(), memory.New(), policy.NewPaymentPolicy(policy.NewMemoryCounter()))

	reminders, err := r.ScanOverdue(context.Background(), alwaysOpenOptions())
	if err != nil {
		t.Fatalf("ScanOverdue: %v", err)
	}
	if len(reminders) != 0 {
		t.Fatalf("expected no reminders for a fresh entry, got %d", len(reminders))
	}
}

func TestDetectChronicNonPayers(t *testing.T) {
	store := memory.New()
	for i, id := range []string{"l1", "l2", "l3"} {
		seedEntry(t, store, ledger.Entry{
			LedgerID: id, GroupID: "g1", FromUserID: "u1", ToUserID: "u2",
			Status: ledger.StatusOpen, CreatedAt: time.Now().Add(-time.Duration(5+i) * 24 * time.Hour),
		})
	}
	r := NewReconciler(store, memory.New(), memory.New(), memory.New(), policy.NewPaymentPolicy(policy.NewMemoryCounter()))

	chronic, err := r.DetectChronicNonPayers(context.Background())
	if err != nil {
		t.Fatalf("DetectChronicNonPayers: %v", err)
	}
	if len(chronic) != 1 || chronic[0].UserID != "u1" {
		t.Fatalf("expected u1 flagged chronic, got %+v", chronic)
	}
	if chronic[0].OverdueCount != 3 {
		t.Fatalf("expected overdue count 3, got %d", chronic[0].OverdueCount)
	}
}

func amountPtr(v int64) *int64 { return &v }

func TestMatchAndMarkPaidByMetadata(t *testing.T) {
	store := memory.New()
	seedEntry(t, store, ledger.Entry{
		LedgerID: "l1", GroupID: "g1", FromUserID: "u1", ToUserID: "u2",
		Status: ledger.StatusOpen, CreatedAt: time.Now().Add(-24 * time.Hour),
		AmountCents: amountPtr(2500),
	})
	r := NewReconciler(store, memory.New(), memory.New(), memory.New(), policy.NewPaymentPolicy(policy.NewMemoryCounter()))

	evt := StripeEvent{PaymentIntentID: "pi_1", AmountCents: 2500, Currency: "usd", LedgerID: "l1"}
	result, err := r.MatchAndMarkPaid(context.Background(), evt, "u1")
	if err != nil {
		t.Fatalf("MatchAndMarkPaid: %v", err)
	}
	if result == nil || !result.AutoMarked {
		t.Fatalf("expected metadata match to auto-mark paid, got %+v", result)
	}

	var got ledger.Entry
	if err := store.FindOne(context.Background(), storage.Filter{"ledger_id": "l1"}, &got); err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if got.Status != ledger.StatusPaid {
		t.Fatalf("expected entry marked paid, got status %s", got.Status)
	}
}

func TestMatchAndMarkPaidByAmountStaysUnmarked(t *testing.T) {
	store := memory.New()
	seedEntry(t, store, ledger.Entry{
		LedgerID: "l1", GroupID: "g1", FromUserID: "u1", ToUserID: "u2",
		Status: ledger.StatusOpen, CreatedAt: time.Now().Add(-24 * time.Hour),
		AmountCents: amountPtr(2500),
	})
	r := NewReconciler(store, memory.New(), memory.New(), memory.New(), policy.NewPaymentPolicy(policy.NewMemoryCounter()))

	evt := StripeEvent{PaymentIntentID: "pi_2", AmountCents: 2500, Currency: "usd"}
	result, err := r.MatchAndMarkPaid(context.Background(), evt, "u1")
	if err != nil {
		t.Fatalf("MatchAndMarkPaid: %v", err)
	}
	if result == nil || result.AutoMarked {
		t.Fatalf("expected amount-only match to require manual review, got %+v", result)
	}
}

func TestParseStripeWebhook(t *testing.T) {
	body := []byte(`{"data":{"object":{"id":"pi_3","amount_received":1000,"currency":"usd","metadata":{"ledger_id":"l9"}}}}`)
	evt, err := ParseStripeWebhook(body)
	if err != nil {
		t.Fatalf("ParseStripeWebhook: %v", err)
	}
	if evt.PaymentIntentID != "pi_3" || evt.AmountCents != 1000 || evt.LedgerID != "l9" {
		t.Fatalf("unexpected parse result: %+v", evt)
	}
}
