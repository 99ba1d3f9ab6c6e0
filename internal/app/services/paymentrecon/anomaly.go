package paymentrecon

import (
	"context"
	"fmt"

	"github.com/oddside/automation-runtime/internal/app/domain/directory"
	"github.com/oddside/automation-runtime/internal/app/domain/ledger"
	"github.com/oddside/automation-runtime/internal/app/storage"
)

// AnomalyKind classifies a detected payment anomaly, grounded on
// ledger_reconciler.py's _detect_anomalies.
type AnomalyKind string

const (
	AnomalyDuplicateEntry       AnomalyKind = "duplicate_entry"
	AnomalyDuplicatePaymentUse  AnomalyKind = "duplicate_payment_intent"
	AnomalyOrphanedEntry        AnomalyKind = "orphaned_cancelled_game"
)

// Anomaly is one flagged irregularity for a human to review; detection
// never mutates ledger state on its own.
type Anomaly struct {
	Kind      AnomalyKind
	LedgerIDs []string
	Detail    string
}

// DetectAnomalies scans every ledger entry for three irregularities: exact
// duplicate entries (same payer/payee/amount/game, suggesting a double
// write), the same Stripe payment intent applied to more than one entry,
// and outstanding entries tied to a game night that was later cancelled.
func (r *Reconciler) DetectAnomalies(ctx context.Context) ([]Anomaly, error) {
	var all []ledger.Entry
	if err := r.entries.Find(ctx, nil, nil, 0, &all); err != nil {
		return nil, fmt.Errorf("scan all entries for anomalies: %w", err)
	}

	var anomalies []Anomaly
	anomalies = append(anomalies, detectDuplicateEntries(all)...)
	anomalies = append(anomalies, detectDuplicatePaymentIntents(all)...)

	orphaned, err := r.detectOrphanedEntries(ctx, all)
	if err != nil {
		return nil, err
	}
	anomalies = append(anomalies, orphaned...)

	return anomalies, nil
}

type duplicateKey struct {
	fromUserID, toUserID, gameID string
	amount                       float64
}

func detectDuplicateEntries(entries []ledger.Entry) []Anomaly {
	byKey := make(map[duplicateKey][]string)
	for _, e := range entries {
		if !e.Outstanding() {
			continue
		}
		key := duplicateKey{e.FromUserID, e.ToUserID, e.GameID, e.Amount}
		byKey[key] = append(byKey[key], e.LedgerID)
	}
	var out []Anomaly
	for key, ids := range byKey {
		if len(ids) < 2 {
			continue
		}
		out = append(out, Anomaly{
			Kind:      AnomalyDuplicateEntry,
			LedgerIDs: ids,
			Detail:    fmt.Sprintf("%d entries for the same debt in game %s", len(ids), key.gameID),
		})
	}
	return out
}

func detectDuplicatePaymentIntents(entries []ledger.Entry) []Anomaly {
	byIntent := make(map[string][]string)
	for _, e := range entries {
		if e.StripePaymentIntentID == "" {
			continue
		}
		byIntent[e.StripePaymentIntentID] = append(byIntent[e.StripePaymentIntentID], e.LedgerID)
	}
	var out []Anomaly
	for intentID, ids := range byIntent {
		if len(ids) < 2 {
			continue
		}
		out = append(out, Anomaly{
			Kind:      AnomalyDuplicatePaymentUse,
			LedgerIDs: ids,
			Detail:    fmt.Sprintf("stripe payment intent %s applied to %d entries", intentID, len(ids)),
		})
	}
	return out
}

func (r *Reconciler) detectOrphanedEntries(ctx context.Context, entries []ledger.Entry) ([]Anomaly, error) {
	if r.gameNights == nil {
		return nil, nil
	}

	gameIDs := make(map[string]bool)
	for _, e := range entries {
		if e.Outstanding() && e.GameID != "" {
			gameIDs[e.GameID] = true
		}
	}

	var out []Anomaly
	for gameID := range gameIDs {
		var game directory.GameNight
		if err := r.gameNights.FindOne(ctx, storage.Filter{"game_id": gameID}, &game); err != nil {
			continue
		}
		if game.Status != directory.GameNightCancelled {
			continue
		}
		var ids []string
		for _, e := range entries {
			if e.GameID == gameID && e.Outstanding() {
				ids = append(ids, e.LedgerID)
			}
		}
		if len(ids) == 0 {
			continue
		}
		out = append(out, Anomaly{
			Kind:      AnomalyOrphanedEntry,
			LedgerIDs: ids,
			Detail:    fmt.Sprintf("%d outstanding entries reference cancelled game %s", len(ids), gameID),
		})
	}
	return out, nil
}
