package paymentrecon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/oddside/automation-runtime/internal/app/domain/ledger"
	"github.com/oddside/automation-runtime/internal/app/storage"
)

// StripeEvent is the subset of a Stripe payment_intent.succeeded webhook
// body the matcher needs, pulled out with gjson rather than unmarshaled
// into a full Stripe SDK type since only a handful of fields matter here.
type StripeEvent struct {
	StripeEventID   string // the webhook envelope's top-level id, for dedup
	PaymentIntentID string
	Status          string // PaymentIntent.status; "succeeded" is the only one this matcher acts on
	AmountCents     int64
	Currency        string
	LedgerID        string // from metadata.ledger_id, if the client set it
}

// ParseStripeWebhook extracts the fields the reconciler's matcher needs from
// a raw payment_intent.succeeded event body, including the top-level event
// id a Phase A dedup check keys on.
func ParseStripeWebhook(body []byte) (StripeEvent, error) {
	root := gjson.ParseBytes(body)
	intent := root.Get("data.object")
	if !intent.Exists() {
		return StripeEvent{}, fmt.Errorf("stripe webhook: missing data.object")
	}
	eventID := root.Get("id").String()
	if eventID == "" {
		eventID = intent.Get("id").String()
	}
	return StripeEvent{
		StripeEventID:   eventID,
		PaymentIntentID: intent.Get("id").String(),
		Status:          intent.Get("status").String(),
		AmountCents:     intent.Get("amount_received").Int(),
		Currency:        strings.ToLower(intent.Get("currency").String()),
		LedgerID:        intent.Get("metadata.ledger_id").String(),
	}, nil
}

// MatchConfidence is how sure the matcher is that a Stripe event pays a
// given ledger entry; AllowAutoMarkPaid gates on this.
type MatchConfidence float64

const (
	// confidenceMetadataMatch is used when the webhook carries the ledger ID
	// directly in its metadata and the amount was verified exactly.
	confidenceMetadataMatch MatchConfidence = 1.0
	// confidenceMetadataUnverified is the same strategy with the amount
	// unverified, so manual review is still required.
	confidenceMetadataUnverified MatchConfidence = 0.7
	// confidenceAmountMatch is used for the fallback phase: exact
	// amount+currency match against exactly one open entry for the payer.
	confidenceAmountMatch MatchConfidence = 0.8
)

// VerificationCheck is one Phase A pre-condition, reported whether it
// passed or failed so a caller can see exactly why a match was rejected.
type VerificationCheck struct {
	Check  string
	Passed bool
	Detail string
}

// MatchResult is the outcome of matching one Stripe event against the
// ledger.
type MatchResult struct {
	Entry            *ledger.Entry
	Confidence       MatchConfidence
	AutoMarked       bool
	DuplicateWebhook bool
	Checks           []VerificationCheck
	FailedChecks     []string
}

// reconciliationLogEntry is one row of payment_reconciliation_log: a
// webhook-dedup record, a match-attempt audit row, or a KPI snapshot,
// grounded on ledger_reconciler.py's payment_reconciliation_log writes
// (event types stripe_match_attempt / stripe_auto_matched / kpi_snapshot).
type reconciliationLogEntry struct {
	ID                    string    `json:"id" bson:"id"`
	EventType             string    `json:"event_type" bson:"event_type"`
	StripeEventID         string    `json:"stripe_event_id,omitempty" bson:"stripe_event_id,omitempty"`
	StripePaymentIntentID string    `json:"stripe_payment_intent_id,omitempty" bson:"stripe_payment_intent_id,omitempty"`
	LedgerID              string    `json:"ledger_id,omitempty" bson:"ledger_id,omitempty"`
	GroupID               string    `json:"group_id,omitempty" bson:"group_id,omitempty"`
	MatchMethod           string    `json:"match_method,omitempty" bson:"match_method,omitempty"`
	CreatedAt             time.Time `json:"created_at" bson:"created_at"`
}

const (
	eventTypeMatchAttempt = "stripe_match_attempt"
	eventTypeAutoMatched  = "stripe_auto_matched"
	eventTypeKPISnapshot  = "kpi_snapshot"
)

// checkDuplicateWebhook looks up stripeEventID in the reconciliation log,
// the dedup gate spec §4.6.2 requires run before any matching logic.
func (r *Reconciler) checkDuplicateWebhook(ctx context.Context, stripeEventID string) (bool, error) {
	if stripeEventID == "" || r.reconciliationLog == nil {
		return false, nil
	}
	var existing reconciliationLogEntry
	err := r.reconciliationLog.FindOne(ctx, storage.Filter{"stripe_event_id": stripeEventID}, &existing)
	if err == storage.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check duplicate webhook %s: %w", stripeEventID, err)
	}
	return true, nil
}

func (r *Reconciler) logReconciliation(ctx context.Context, entry reconciliationLogEntry) error {
	if r.reconciliationLog == nil {
		return nil
	}
	entry.ID = "prlog_" + uuid.NewString()
	entry.CreatedAt = r.clock()
	if err := r.reconciliationLog.InsertOne(ctx, entry.ID, entry); err != nil {
		return fmt.Errorf("log reconciliation event %s: %w", entry.EventType, err)
	}
	return nil
}

// VerifyPhaseA runs the pure, no-state-change verification pass spec
// §4.6.2's two-phase protocol requires before any entry is ever mutated:
// payment succeeded, currency match, exact-cents amount match, entry still
// open/pending, and no other paid entry already claims this payment intent.
// Grounded on ledger_reconciler.py's _verify_stripe_payment.
func (r *Reconciler) VerifyPhaseA(ctx context.Context, entry *ledger.Entry, evt StripeEvent) (verified bool, checks []VerificationCheck, failedChecks []string, err error) {
	status := evt.Status
	if status == "" {
		status = "succeeded" // a caller that doesn't carry PaymentIntent status implies success
	}
	checks = append(checks, VerificationCheck{
		Check: "payment_succeeded", Passed: status == "succeeded",
		Detail: fmt.Sprintf("status=%s", status),
	})

	entryCurrency := strings.ToLower(entry.Currency)
	if entryCurrency == "" {
		entryCurrency = "usd"
	}
	paymentCurrency := evt.Currency
	if paymentCurrency == "" {
		paymentCurrency = "usd"
	}
	checks = append(checks, VerificationCheck{
		Check: "currency_match", Passed: entryCurrency == paymentCurrency,
		Detail: fmt.Sprintf("entry=%s, payment=%s", entryCurrency, paymentCurrency),
	})

	checks = append(checks, VerificationCheck{
		Check: "amount_match", Passed: amountMatches(*entry, evt),
		Detail: fmt.Sprintf("entry_cents=%v, payment_cents=%d", entry.AmountCents, evt.AmountCents),
	})

	isOpen := entry.Status == ledger.StatusPending || entry.Status == ledger.StatusOpen
	checks = append(checks, VerificationCheck{
		Check: "entry_still_open", Passed: isOpen,
		Detail: fmt.Sprintf("status=%s", entry.Status),
	})

	duplicate := false
	if evt.PaymentIntentID != "" {
		var other ledger.Entry
		dupErr := r.entries.FindOne(ctx, storage.Filter{
			"stripe_payment_intent_id": evt.PaymentIntentID,
			"status":                   string(ledger.StatusPaid),
		}, &other)
		if dupErr == nil && other.LedgerID != entry.LedgerID {
			duplicate = true
		} else if dupErr != nil && dupErr != storage.ErrNotFound {
			return false, nil, nil, fmt.Errorf("check duplicate payment intent %s: %w", evt.PaymentIntentID, dupErr)
		}
	}
	checks = append(checks, VerificationCheck{
		Check: "no_duplicate_application", Passed: !duplicate,
		Detail: fmt.Sprintf("stripe_payment_intent_id=%s", evt.PaymentIntentID),
	})

	verified = true
	for _, c := range checks {
		if !c.Passed {
			verified = false
			failedChecks = append(failedChecks, c.Check)
		}
	}
	return verified, checks, failedChecks, nil
}

// MatchAndMarkPaid runs the full two-phase reconciliation: a webhook-dedup
// check, then the match strategies (metadata.ledger_id first, then exact
// amount+currency against the payer's open entries), then Phase A
// verification, and only on verified+confident does it apply Phase B's
// mutation. Grounded on ledger_reconciler.py's _match_stripe_payment.
func (r *Reconciler) MatchAndMarkPaid(ctx context.Context, evt StripeEvent, payerUserID string) (*MatchResult, error) {
	duplicate, err := r.checkDuplicateWebhook(ctx, evt.StripeEventID)
	if err != nil {
		return nil, err
	}
	if duplicate {
		return &MatchResult{DuplicateWebhook: true}, nil
	}

	if evt.Status != "" && evt.Status != "succeeded" {
		return nil, nil
	}

	var result *MatchResult
	matchMethod := ""
	if evt.LedgerID != "" {
		var entry ledger.Entry
		if err := r.entries.FindOne(ctx, storage.Filter{"ledger_id": evt.LedgerID}, &entry); err == nil {
			confidence := confidenceMetadataMatch
			if !amountMatches(entry, evt) {
				confidence = confidenceMetadataUnverified
			}
			matchMethod = "metadata_ledger_id"
			result, err = r.finishMatch(ctx, &entry, evt, confidence, matchMethod)
			if err != nil {
				return nil, err
			}
		}
	}

	if result == nil {
		var candidates []ledger.Entry
		filter := storage.Filter{"status": string(ledger.StatusOpen), "from_user_id": payerUserID}
		if err := r.entries.Find(ctx, filter, nil, 0, &candidates); err != nil {
			return nil, fmt.Errorf("find candidate entries: %w", err)
		}

		var matches []ledger.Entry
		for _, c := range candidates {
			if amountMatches(c, evt) {
				matches = append(matches, c)
			}
		}
		if len(matches) == 1 {
			matchMethod = "amount_match"
			result, err = r.finishMatch(ctx, &matches[0], evt, confidenceAmountMatch, matchMethod)
			if err != nil {
				return nil, err
			}
		}
	}

	ledgerID := ""
	if result != nil && result.Entry != nil {
		ledgerID = result.Entry.LedgerID
	} else {
		matchMethod = ""
	}
	if err := r.logReconciliation(ctx, reconciliationLogEntry{
		EventType:             eventTypeMatchAttempt,
		StripeEventID:         evt.StripeEventID,
		StripePaymentIntentID: evt.PaymentIntentID,
		LedgerID:              ledgerID,
		MatchMethod:           matchMethod,
	}); err != nil {
		return nil, err
	}

	return result, nil
}

func amountMatches(entry ledger.Entry, evt StripeEvent) bool {
	if entry.AmountCents != nil {
		return *entry.AmountCents == evt.AmountCents
	}
	paymentAmount := float64(evt.AmountCents) / 100
	diff := entry.Amount - paymentAmount
	if diff < 0 {
		diff = -diff
	}
	return diff < 0.01
}

// finishMatch runs Phase A verification over the candidate entry and, only
// if it passes and the confidence clears the auto-mark-paid threshold,
// applies Phase B's atomic mutation.
func (r *Reconciler) finishMatch(ctx context.Context, entry *ledger.Entry, evt StripeEvent, confidence MatchConfidence, matchMethod string) (*MatchResult, error) {
	verified, checks, failed, err := r.VerifyPhaseA(ctx, entry, evt)
	if err != nil {
		return nil, err
	}
	result := &MatchResult{Entry: entry, Confidence: confidence, Checks: checks, FailedChecks: failed}
	if !verified || !AllowAutoMarkPaidConfidence(confidence) {
		return result, nil
	}

	now := r.clock()
	entry.MarkPaid(evt.PaymentIntentID, now)
	update := storage.Update{Set: map[string]any{
		"status":                   string(ledger.StatusPaid),
		"stripe_payment_intent_id": evt.PaymentIntentID,
		"paid_at":                  now,
	}}
	if err := r.entries.UpdateOne(ctx, storage.Filter{"ledger_id": entry.LedgerID}, update); err != nil {
		return nil, fmt.Errorf("mark entry %s paid: %w", entry.LedgerID, err)
	}
	result.AutoMarked = true

	if err := r.logReconciliation(ctx, reconciliationLogEntry{
		EventType:             eventTypeAutoMatched,
		StripeEventID:         evt.StripeEventID,
		StripePaymentIntentID: evt.PaymentIntentID,
		LedgerID:              entry.LedgerID,
		GroupID:               entry.GroupID,
		MatchMethod:           matchMethod,
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// AllowAutoMarkPaidConfidence mirrors policy.AllowAutoMarkPaid's 0.95
// threshold: only an exact metadata match clears it, so the amount-only and
// unverified-metadata fallbacks always land in manual review.
func AllowAutoMarkPaidConfidence(c MatchConfidence) bool {
	return float64(c) >= 0.95
}
