package paymentrecon

import (
	"context"
	"testing"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/ledger"
	"github.com/oddside/automation-runtime/internal/app/services/policy"
	"github.com/oddside/automation-runtime/internal/app/storage/memory"
)

func TestConsolidateDebtsNetsBidirectionalEntries(t *testing.T) {
	store := memory.New()
	base := time.Now().Add(-5 * 24 * time.Hour)
	seedEntry(t, store, ledger.Entry{
		LedgerID: "e1", GroupID: "g1", FromUserID: "u1", ToUserID: "u2",
		Amount: 30, Currency: "USD", Status: ledger.StatusOpen, CreatedAt: base,
	})
	seedEntry(t, store, ledger.Entry{
		LedgerID: "e2", GroupID: "g1", FromUserID: "u2", ToUserID: "u1",
		Amount: 10, Currency: "USD", Status: ledger.StatusOpen, CreatedAt: base.Add(24 * time.Hour),
	})
	// Disputed entries never net in.
	seedEntry(t, store, ledger.Entry{
		LedgerID: "e3", GroupID: "g1", FromUserID: "u1", ToUserID: "u2",
		Amount: 100, Currency: "USD", Status: ledger.StatusDisputed, CreatedAt: base,
	})
	// Different currency: tracked separately, never netted against USD.
	seedEntry(t, store, ledger.Entry{
		LedgerID: "e4", GroupID: "g1", FromUserID: "u1", ToUserID: "u2",
		Amount: 5, Currency: "EUR", Status: ledger.StatusOpen, CreatedAt: base,
	})

	r := NewReconciler(store, memory.New(), memory.New(), memory.New(), policy.NewPaymentPolicy(policy.NewMemoryCounter()))
	plan, err := r.ConsolidateDebts(context.Background(), "g1")
	if err != nil {
		t.Fatalf("ConsolidateDebts: %v", err)
	}

	if len(plan.Pairs) != 2 {
		t.Fatalf("expected 2 netted pairs (USD + EUR), got %d: %+v", len(plan.Pairs), plan.Pairs)
	}
	var usdPair *DebtPair
	for i := range plan.Pairs {
		if plan.Pairs[i].Currency == "USD" {
			usdPair = &plan.Pairs[i]
		}
	}
	if usdPair == nil {
		t.Fatalf("expected a USD pair in %+v", plan.Pairs)
	}
	if usdPair.FromUserID != "u1" || usdPair.ToUserID != "u2" || usdPair.NetAmount != 20 {
		t.Fatalf("expected u1 owes u2 20 USD net, got %+v", usdPair)
	}

	if len(plan.Plan) != 2 {
		t.Fatalf("expected one allocation step per currency pair, got %d", len(plan.Plan))
	}
}
