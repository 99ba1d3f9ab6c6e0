package paymentrecon

import (
	"context"
	"fmt"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/ledger"
	"github.com/oddside/automation-runtime/internal/app/storage"
)

// Escalation thresholds, grounded on ledger_reconciler.py's v2 escalation
// policy docstring: soft escalation gives the host visibility without
// blocking anything; hard escalation either fires unconditionally past 14
// days overdue, or once the reminder budget is exhausted (5+ reminders)
// with a minimum 3-day guard so a same-day reminder burst can't trip it.
const (
	softEscalationDays     = 7
	softEscalationReminders = 2
	hardEscalationDays      = 14
	hardEscalationReminders = 5
	hardEscalationMinDays   = 3
)

// EscalationState is what ApplyEscalations computed for one entry.
type EscalationState struct {
	LedgerID      string
	SoftEscalated bool
	HardEscalated bool
}

// classifyEscalation applies the single authoritative escalation timeline
// to one entry's current days-overdue and reminder count.
func classifyEscalation(daysOverdue, reminderCount int) (soft, hard bool) {
	soft = daysOverdue >= softEscalationDays && reminderCount >= softEscalationReminders
	hard = daysOverdue >= hardEscalationDays ||
		(reminderCount >= hardEscalationReminders && daysOverdue >= hardEscalationMinDays)
	return soft, hard
}

// ApplyEscalations scans every outstanding entry, recomputes its soft/hard
// escalation flags from the current days-overdue and reminder count, and
// persists only the entries whose computed state differs from what's
// stored. Returns every entry that was actually escalated (newly or still)
// this pass, so a caller can notify a host surface.
func (r *Reconciler) ApplyEscalations(ctx context.Context) ([]EscalationState, error) {
	entries, err := r.findOutstanding(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("scan entries for escalation: %w", err)
	}

	now := r.clock()
	var escalated []EscalationState
	for _, entry := range entries {
		days := entry.DaysOverdue(now)
		soft, hard := classifyEscalation(days, entry.ReminderCount)
		if soft != entry.SoftEscalated || hard != entry.HardEscalated {
			update := storage.Update{Set: map[string]any{
				"soft_escalated": soft,
				"hard_escalated": hard,
			}}
			if err := r.entries.UpdateOne(ctx, storage.Filter{"ledger_id": entry.LedgerID}, update); err != nil {
				return nil, fmt.Errorf("apply escalation for entry %s: %w", entry.LedgerID, err)
			}
		}
		if soft || hard {
			escalated = append(escalated, EscalationState{LedgerID: entry.LedgerID, SoftEscalated: soft, HardEscalated: hard})
		}
	}
	return escalated, nil
}

// escalatedRecently reports whether entry counts as escalated within window
// for the chronic non-payer absolute threshold; this runtime stores only the
// entry's current escalation flags rather than a full escalation history,
// so "escalated in the last 90 days" is approximated as "currently
// escalated and created within the window" (see chronic.go).
func escalatedRecently(entry ledger.Entry, now time.Time, window time.Duration) bool {
	if !entry.SoftEscalated && !entry.HardEscalated {
		return false
	}
	return now.Sub(entry.CreatedAt) <= window
}
