package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/ledger"
)

const (
	paymentUserDailyCap    = 2
	paymentGroupDailyCap   = 10
	paymentEntryCooldown   = 24 * time.Hour
	paymentEntryMaxReminders = 5
	autoMarkPaidMinConfidence = 0.95
)

// PaymentUrgency mirrors ledger.UrgencyLevel but names the four reminder
// tiers the payment policy schedules copy and escalation around.
type PaymentUrgency string

const (
	PaymentUrgencyGentle   PaymentUrgency = "gentle"
	PaymentUrgencyFirm     PaymentUrgency = "firm"
	PaymentUrgencyFinal    PaymentUrgency = "final"
	PaymentUrgencyEscalate PaymentUrgency = "escalate"
)

// ClassifyUrgency maps days-overdue into the four reminder tiers: 1-2
// gentle, 3-6 firm, 7-13 final, >=14 escalate.
func ClassifyUrgency(daysOverdue int) PaymentUrgency {
	switch ledger.Urgency(daysOverdue) {
	case ledger.UrgencyLow:
		return PaymentUrgencyGentle
	case ledger.UrgencyMedium:
		return PaymentUrgencyFirm
	case ledger.UrgencyHigh:
		return PaymentUrgencyFinal
	case ledger.UrgencyCritical:
		return PaymentUrgencyEscalate
	default:
		return PaymentUrgencyGentle
	}
}

// ReminderRequest describes a candidate payment reminder to be checked.
type ReminderRequest struct {
	Entry            *ledger.Entry
	RemindersEnabled bool
	LocalHour        int
	IsWeekend        bool
	GroupDailyCount  int64
}

// PaymentPolicy gates payment reminders sent against a ledger entry.
type PaymentPolicy struct {
	counter Counter
	now     func() time.Time
}

// NewPaymentPolicy builds a PaymentPolicy over the given counter.
func NewPaymentPolicy(counter Counter) *PaymentPolicy {
	return &PaymentPolicy{counter: counter, now: time.Now}
}

func (p *PaymentPolicy) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// Check runs the ordered payment-reminder checks.
func (p *PaymentPolicy) Check(ctx context.Context, req ReminderRequest) (Decision, error) {
	var passed []string
	now := p.clock()
	e := req.Entry

	if !req.RemindersEnabled {
		return deny(passed, "reminders_enabled", "group has payment reminders disabled"), nil
	}
	passed = append(passed, "reminders_enabled")

	days := e.DaysOverdue(now)
	urgency := ClassifyUrgency(days)

	if inQuietHours(req.LocalHour) {
		exempt := urgency == PaymentUrgencyFinal || urgency == PaymentUrgencyEscalate
		if !exempt {
			return deny(passed, "quiet_hours", "blocked by quiet hours; not yet final/escalate tier"), nil
		}
	}
	passed = append(passed, "quiet_hours")

	if req.IsWeekend {
		exempt := urgency == PaymentUrgencyFinal || urgency == PaymentUrgencyEscalate
		if !exempt {
			return deny(passed, "weekend_gate", "blocked by weekend gate; not yet final/escalate tier"), nil
		}
	}
	passed = append(passed, "weekend_gate")

	bucket := dayBucket(now)
	userKey := fmt.Sprintf("payment_daily:user:%s:%s", e.FromUserID, bucket)
	userCount, err := p.counter.Get(ctx, userKey)
	if err != nil {
		return Decision{}, err
	}
	if userCount >= paymentUserDailyCap {
		return deny(passed, "user_daily_cap", "per-user daily payment reminder cap exceeded"), nil
	}
	passed = append(passed, "user_daily_cap")

	if req.GroupDailyCount >= paymentGroupDailyCap {
		return deny(passed, "group_daily_cap", "per-group daily payment reminder cap exceeded"), nil
	}
	passed = append(passed, "group_daily_cap")

	if e.LastReminderAt != nil && now.Sub(*e.LastReminderAt) < paymentEntryCooldown {
		return deny(passed, "entry_cooldown", "ledger entry reminded within the last 24h"), nil
	}
	passed = append(passed, "entry_cooldown")

	if e.ReminderCount >= paymentEntryMaxReminders {
		return deny(passed, "entry_max_reminders", "ledger entry has reached its maximum reminder count"), nil
	}
	passed = append(passed, "entry_max_reminders")

	return allow(passed), nil
}

// AllowAutoMarkPaid reports whether a Stripe-match candidate can
// automatically settle a ledger entry without human confirmation.
func AllowAutoMarkPaid(confidence float64) bool {
	return confidence >= autoMarkPaidMinConfidence
}
