package paymentrecon

import (
	"context"
	"fmt"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/ledger"
	"github.com/oddside/automation-runtime/internal/app/storage"
)

// kpiWindow is the rolling window KPI computation looks back over,
// grounded on ledger_reconciler.py's _compute_kpis 30-day default.
const kpiWindow = 30 * 24 * time.Hour

// kpiConversionWindows are the reminder-to-payment conversion checkpoints
// KPIs report, matching _compute_kpis' 24h/72h buckets.
var kpiConversionWindows = []time.Duration{24 * time.Hour, 72 * time.Hour}

// KPISnapshot summarizes payment-reconciliation health over the rolling
// window, grounded on ledger_reconciler.py's _compute_kpis.
type KPISnapshot struct {
	WindowStart time.Time
	WindowEnd   time.Time

	MatchAttempts   int
	AutoMatched     int
	AutoMatchRate   float64 // AutoMatched / MatchAttempts, 0 if no attempts

	MedianDaysToPay float64
	HavePaidSample  bool

	// ReminderConversion maps each window in kpiConversionWindows to the
	// fraction of reminders sent in that window whose entry was paid
	// within it.
	ReminderConversion map[time.Duration]float64

	EscalationRate float64 // entries ever escalated / total entries in window
	DisputeRate    float64 // disputed entries / total entries in window
}

// ComputeKPIs reads the reconciliation and reminder logs plus the ledger
// itself to build one rolling-window snapshot. A nil reconciliationLog or
// remindersLog (e.g. in a test wiring only the ledger store) degrades those
// sections to zero values rather than failing the whole computation.
func (r *Reconciler) ComputeKPIs(ctx context.Context) (KPISnapshot, error) {
	now := r.clock()
	snap := KPISnapshot{
		WindowStart:        now.Add(-kpiWindow),
		WindowEnd:          now,
		ReminderConversion: make(map[time.Duration]float64),
	}

	if err := r.computeMatchRate(ctx, &snap); err != nil {
		return snap, err
	}

	var entries []ledger.Entry
	if err := r.entries.Find(ctx, nil, nil, 0, &entries); err != nil {
		return snap, fmt.Errorf("scan entries for kpis: %w", err)
	}
	windowed := make([]ledger.Entry, 0, len(entries))
	for _, e := range entries {
		if !e.CreatedAt.Before(snap.WindowStart) {
			windowed = append(windowed, e)
		}
	}

	snap.MedianDaysToPay, snap.HavePaidSample = medianDaysToPay(windowed)
	snap.EscalationRate = rateOf(windowed, func(e ledger.Entry) bool { return e.SoftEscalated || e.HardEscalated })
	snap.DisputeRate = rateOf(windowed, func(e ledger.Entry) bool { return e.Status == ledger.StatusDisputed })

	if err := r.computeReminderConversion(ctx, &snap); err != nil {
		return snap, err
	}

	if err := r.logReconciliation(ctx, reconciliationLogEntry{EventType: eventTypeKPISnapshot}); err != nil {
		return snap, err
	}
	return snap, nil
}

func (r *Reconciler) computeMatchRate(ctx context.Context, snap *KPISnapshot) error {
	if r.reconciliationLog == nil {
		return nil
	}
	var rows []reconciliationLogEntry
	if err := r.reconciliationLog.Find(ctx, nil, nil, 0, &rows); err != nil {
		return fmt.Errorf("scan reconciliation log for kpis: %w", err)
	}
	for _, row := range rows {
		if row.CreatedAt.Before(snap.WindowStart) {
			continue
		}
		switch row.EventType {
		case eventTypeMatchAttempt:
			snap.MatchAttempts++
		case eventTypeAutoMatched:
			snap.AutoMatched++
		}
	}
	if snap.MatchAttempts > 0 {
		snap.AutoMatchRate = float64(snap.AutoMatched) / float64(snap.MatchAttempts)
	}
	return nil
}

func (r *Reconciler) computeReminderConversion(ctx context.Context, snap *KPISnapshot) error {
	for _, w := range kpiConversionWindows {
		snap.ReminderConversion[w] = 0
	}
	if r.remindersLog == nil {
		return nil
	}
	var reminders []reminderLogEntry
	if err := r.remindersLog.Find(ctx, nil, nil, 0, &reminders); err != nil {
		return fmt.Errorf("scan reminders log for kpis: %w", err)
	}

	for _, w := range kpiConversionWindows {
		var sent, converted int
		for _, rem := range reminders {
			if rem.SentAt.Before(snap.WindowStart) {
				continue
			}
			sent++
			var entry ledger.Entry
			if err := r.entries.FindOne(ctx, storage.Filter{"ledger_id": rem.LedgerID}, &entry); err != nil {
				continue
			}
			if entry.Status == ledger.StatusPaid && entry.PaidAt != nil && entry.PaidAt.Sub(rem.SentAt) <= w {
				converted++
			}
		}
		if sent > 0 {
			snap.ReminderConversion[w] = float64(converted) / float64(sent)
		}
	}
	return nil
}

func medianDaysToPay(entries []ledger.Entry) (float64, bool) {
	var days []float64
	for _, e := range entries {
		if e.Status == ledger.StatusPaid && e.PaidAt != nil {
			d := e.PaidAt.Sub(e.CreatedAt).Hours() / 24
			if d >= 0 {
				days = append(days, d)
			}
		}
	}
	m, ok := median(days)
	return m, ok
}

func rateOf(entries []ledger.Entry, pred func(ledger.Entry) bool) float64 {
	if len(entries) == 0 {
		return 0
	}
	var count int
	for _, e := range entries {
		if pred(e) {
			count++
		}
	}
	return float64(count) / float64(len(entries))
}
