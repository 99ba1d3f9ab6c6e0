// Package ledger defines the Ledger-Entry entity tracked by payment
// reconciliation.
package ledger

import "time"

// Status is the ledger entry's settlement state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusOpen      Status = "open"
	StatusPaid      Status = "paid"
	StatusDisputed  Status = "disputed"
	StatusCancelled Status = "cancelled"
)

// Entry is one debt owed between two players for a game.
type Entry struct {
	LedgerID              string     `json:"ledger_id" bson:"ledger_id"`
	GroupID               string     `json:"group_id" bson:"group_id"`
	GameID                string     `json:"game_id" bson:"game_id"`
	FromUserID            string     `json:"from_user_id" bson:"from_user_id"`
	ToUserID              string     `json:"to_user_id" bson:"to_user_id"`
	Amount                float64    `json:"amount" bson:"amount"`
	AmountCents           *int64     `json:"amount_cents,omitempty" bson:"amount_cents,omitempty"`
	Currency              string     `json:"currency" bson:"currency"`
	Status                Status     `json:"status" bson:"status"`
	ReminderCount         int        `json:"reminder_count" bson:"reminder_count"`
	LastReminderAt        *time.Time `json:"last_reminder_at,omitempty" bson:"last_reminder_at,omitempty"`
	SoftEscalated         bool       `json:"soft_escalated" bson:"soft_escalated"`
	HardEscalated         bool       `json:"hard_escalated" bson:"hard_escalated"`
	StripePaymentIntentID string     `json:"stripe_payment_intent_id,omitempty" bson:"stripe_payment_intent_id,omitempty"`
	PaidAt                *time.Time `json:"paid_at,omitempty" bson:"paid_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at" bson:"created_at"`
}

// Outstanding reports whether the entry still represents unsettled debt.
func (e *Entry) Outstanding() bool {
	switch e.Status {
	case StatusPending, StatusOpen, StatusDisputed:
		return true
	default:
		return false
	}
}

// DaysOverdue returns whole days between the entry's creation and now for an
// outstanding entry, or 0 if it is settled.
func (e *Entry) DaysOverdue(now time.Time) int {
	if !e.Outstanding() {
		return 0
	}
	days := int(now.Sub(e.CreatedAt).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// MarkPaid transitions the entry to paid, stamping the Stripe payment
// intent and timestamp. Callers are responsible for enforcing the
// one-payment-intent-per-paid-entry invariant against the store before
// calling this (paymentrecon's Stripe verification runs that lookup as its
// no_duplicate_application check).
func (e *Entry) MarkPaid(paymentIntentID string, at time.Time) {
	e.Status = StatusPaid
	e.StripePaymentIntentID = paymentIntentID
	e.PaidAt = &at
}

// RecordReminder bumps the reminder counter and timestamp.
func (e *Entry) RecordReminder(at time.Time) {
	e.ReminderCount++
	e.LastReminderAt = &at
}

// UrgencyLevel classifies how overdue an entry is.
type UrgencyLevel string

const (
	UrgencyNone     UrgencyLevel = "none"
	UrgencyLow      UrgencyLevel = "low"
	UrgencyMedium   UrgencyLevel = "medium"
	UrgencyHigh     UrgencyLevel = "high"
	UrgencyCritical UrgencyLevel = "critical"
)

// Urgency buckets days-overdue into the engagement-facing urgency tiers:
// 1-2 low, 3-6 medium, 7-13 high, >=14 critical.
func Urgency(daysOverdue int) UrgencyLevel {
	switch {
	case daysOverdue <= 0:
		return UrgencyNone
	case daysOverdue <= 2:
		return UrgencyLow
	case daysOverdue <= 6:
		return UrgencyMedium
	case daysOverdue <= 13:
		return UrgencyHigh
	default:
		return UrgencyCritical
	}
}
