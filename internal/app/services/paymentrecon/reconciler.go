// Package paymentrecon scans outstanding ledger entries for overdue debts,
// matches incoming Stripe payment events against them, and flags chronic
// non-payers, all gated by the payment policy engine.
package paymentrecon

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/oddside/automation-runtime/internal/app/domain/ledger"
	"github.com/oddside/automation-runtime/internal/app/services/policy"
	"github.com/oddside/automation-runtime/internal/app/storage"
)

// Reminder is an allowed, policy-checked reminder ready for a delivery
// adapter; the reconciler never sends anything itself.
type Reminder struct {
	Entry    ledger.Entry
	Urgency  policy.PaymentUrgency
	Decision policy.Decision
}

// Reconciler scans the ledger collection and matches Stripe events against
// it.
type Reconciler struct {
	entries           storage.Store
	gameNights        storage.Store
	reconciliationLog storage.Store
	remindersLog      storage.Store
	policy            *policy.PaymentPolicy
	limiter           *rate.Limiter
	now               func() time.Time
}

// NewReconciler builds a Reconciler over the ledger-entries collection, the
// game_nights collection it cross-checks for anomaly detection, and the
// payment_reconciliation_log/payment_reminders_log audit collections the
// two-phase Stripe matcher and KPI computation read and write. Reminders are
// paced by a token-bucket limiter (one per second, burst 5) so a scan over a
// large overdue backlog doesn't hand a delivery adapter a thundering herd of
// reminders to send at once.
func NewReconciler(entries, gameNights, reconciliationLog, remindersLog storage.Store, paymentPolicy *policy.PaymentPolicy) *Reconciler {
	return &Reconciler{
		entries:           entries,
		gameNights:        gameNights,
		reconciliationLog: reconciliationLog,
		remindersLog:      remindersLog,
		policy:            paymentPolicy,
		limiter:           rate.NewLimiter(rate.Limit(1), 5),
		now:               time.Now,
	}
}

func (r *Reconciler) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// outstandingStatuses are the ledger entry statuses the payment scans read:
// "pending" (awaiting its first reminder) and "open" (reminded at least
// once). storage.Filter only matches by field equality (no $in), so a
// multi-status read is two Find calls merged here rather than a single
// filter.
var outstandingStatuses = []string{string(ledger.StatusPending), string(ledger.StatusOpen)}

// findOutstanding reads every pending/open entry matching extra, merging the
// per-status Find calls storage.Filter's equality-only contract requires.
func (r *Reconciler) findOutstanding(ctx context.Context, extra storage.Filter) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, status := range outstandingStatuses {
		filter := storage.Filter{"status": status}
		for k, v := range extra {
			filter[k] = v
		}
		var batch []ledger.Entry
		if err := r.entries.Find(ctx, filter, nil, 0, &batch); err != nil {
			return nil, fmt.Errorf("find %s entries: %w", status, err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

// ScanOptions parameterizes ScanOverdue with the per-group settings the
// policy needs but the ledger entry itself doesn't carry.
type ScanOptions struct {
	RemindersEnabled func(groupID string) bool
	LocalHour        func(groupID string) int
	IsWeekend        func(groupID string) bool
	GroupDailyCount  func(ctx context.Context, groupID string) (int64, error)
}

// ScanOverdue finds every outstanding, overdue ledger entry and returns the
// subset the payment policy allows reminding right now.
func (r *Reconciler) ScanOverdue(ctx context.Context, opts ScanOptions) ([]Reminder, error) {
	entries, err := r.findOutstanding(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("scan overdue entries: %w", err)
	}
	return r.remindPass(ctx, entries, opts, false)
}

// ScanSettlementDue finds the pending/open ledger entries a just-settled
// game produced and returns the subset the payment policy allows reminding,
// grounded on event_listener.py's post-settlement handler, which scans with
// overdue_days=0 so a brand-new settlement debt gets its gentle reminder
// immediately instead of waiting for ScanOverdue's next overdue day.
func (r *Reconciler) ScanSettlementDue(ctx context.Context, gameID string, opts ScanOptions) ([]Reminder, error) {
	entries, err := r.findOutstanding(ctx, storage.Filter{"game_id": gameID})
	if err != nil {
		return nil, fmt.Errorf("scan settlement entries for game %s: %w", gameID, err)
	}
	return r.remindPass(ctx, entries, opts, true)
}

// remindPass runs the payment-policy check over entries, optionally
// including entries that aren't yet overdue (day 0) for a settlement scan.
func (r *Reconciler) remindPass(ctx context.Context, entries []ledger.Entry, opts ScanOptions, includeDayZero bool) ([]Reminder, error) {
	now := r.clock()
	var out []Reminder
	for _, entry := range entries {
		days := entry.DaysOverdue(now)
		if days <= 0 && !includeDayZero {
			continue
		}

		groupDaily, err := opts.GroupDailyCount(ctx, entry.GroupID)
		if err != nil {
			return nil, fmt.Errorf("group daily count for %s: %w", entry.GroupID, err)
		}

		req := policy.ReminderRequest{
			Entry:            &entry,
			RemindersEnabled: opts.RemindersEnabled(entry.GroupID),
			LocalHour:        opts.LocalHour(entry.GroupID),
			IsWeekend:        opts.IsWeekend(entry.GroupID),
			GroupDailyCount:  groupDaily,
		}
		decision, err := r.policy.Check(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("policy check for entry %s: %w", entry.LedgerID, err)
		}
		if !decision.Allowed {
			continue
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
		out = append(out, Reminder{Entry: entry, Urgency: policy.ClassifyUrgency(days), Decision: decision})
	}
	return out, nil
}

// reminderLogEntry is one row of payment_reminders_log, grounded on
// ledger_reconciler.py's _compute_kpis reminder-conversion query, which
// reads sent_at/ledger_id/group_id rows to measure reminder-to-payment
// conversion.
type reminderLogEntry struct {
	ID       string    `json:"id" bson:"id"`
	LedgerID string    `json:"ledger_id" bson:"ledger_id"`
	GroupID  string    `json:"group_id" bson:"group_id"`
	SentAt   time.Time `json:"sent_at" bson:"sent_at"`
}

// RecordReminderSent bumps an entry's reminder bookkeeping after a delivery
// adapter has actually sent it, and appends a payment_reminders_log row so
// KPI computation can measure reminder-to-payment conversion.
func (r *Reconciler) RecordReminderSent(ctx context.Context, ledgerID string) error {
	now := r.clock()
	if err := r.entries.UpdateOne(ctx, storage.Filter{"ledger_id": ledgerID}, storage.Update{
		Inc: map[string]int64{"reminder_count": 1},
		Set: map[string]any{"last_reminder_at": now},
	}); err != nil {
		return err
	}

	if r.remindersLog == nil {
		return nil
	}
	var entry ledger.Entry
	if err := r.entries.FindOne(ctx, storage.Filter{"ledger_id": ledgerID}, &entry); err != nil {
		return fmt.Errorf("find entry %s for reminder log: %w", ledgerID, err)
	}
	logEntry := reminderLogEntry{ID: "prem_" + uuid.NewString(), LedgerID: ledgerID, GroupID: entry.GroupID, SentAt: now}
	if err := r.remindersLog.InsertOne(ctx, logEntry.ID, logEntry); err != nil {
		return fmt.Errorf("log reminder sent for %s: %w", ledgerID, err)
	}
	return nil
}

// ChronicNonPayer summarizes a user's overdue history across groups.
type ChronicNonPayer struct {
	UserID        string
	OverdueCount  int
	OldestOverdue int
}

// ChronicThresholdEntries is the minimum number of currently-overdue
// entries a user must owe before being flagged chronic.
const ChronicThresholdEntries = 3

// DetectChronicNonPayers returns users with at least ChronicThresholdEntries
// currently-outstanding, overdue ledger entries.
func (r *Reconciler) DetectChronicNonPayers(ctx context.Context) ([]ChronicNonPayer, error) {
	entries, err := r.findOutstanding(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("scan entries: %w", err)
	}

	now := r.clock()
	byUser := make(map[string]*ChronicNonPayer)
	for _, entry := range entries {
		days := entry.DaysOverdue(now)
		if days <= 0 {
			continue
		}
		agg, ok := byUser[entry.FromUserID]
		if !ok {
			agg = &ChronicNonPayer{UserID: entry.FromUserID}
			byUser[entry.FromUserID] = agg
		}
		agg.OverdueCount++
		if days > agg.OldestOverdue {
			agg.OldestOverdue = days
		}
	}

	var out []ChronicNonPayer
	for _, agg := range byUser {
		if agg.OverdueCount >= ChronicThresholdEntries {
			out = append(out, *agg)
		}
	}
	return out, nil
}
