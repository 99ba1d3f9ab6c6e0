package ledger

import (
	"testing"
	"time"
)

func TestUrgencyBuckets(t *testing.T) {
	cases := []struct {
		days int
		want UrgencyLevel
	}{
		{0, UrgencyNone},
		{1, UrgencyLow},
		{2, UrgencyLow},
		{3, UrgencyMedium},
		{6, UrgencyMedium},
		{7, UrgencyHigh},
		{13, UrgencyHigh},
		{14, UrgencyCritical},
		{30, UrgencyCritical},
	}
	for _, c := range cases {
		if got := Urgency(c.days); got != c.want {
			t.Errorf("Urgency(%d) = %s, want %s", c.days, got, c.want)
		}
	}
}

func TestOutstandingStatuses(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusOpen, StatusDisputed} {
		e := &Entry{Status: s}
		if !e.Outstanding() {
			t.Errorf("expected status %s to be outstanding", s)
		}
	}
	for _, s := range []Status{StatusPaid, StatusCancelled} {
		e := &Entry{Status: s}
		if e.Outstanding() {
			t.Errorf("expected status %s to not be outstanding", s)
		}
	}
}

func TestDaysOverdueSettledIsZero(t *testing.T) {
	e := &Entry{Status: StatusPaid, CreatedAt: time.Now().Add(-30 * 24 * time.Hour)}
	if got := e.DaysOverdue(time.Now()); got != 0 {
		t.Fatalf("expected 0 days overdue for settled entry, got %d", got)
	}
}

func TestMarkPaid(t *testing.T) {
	e := &Entry{Status: StatusOpen}
	now := time.Now()
	e.MarkPaid("pi_123", now)
	if e.Status != StatusPaid || e.StripePaymentIntentID != "pi_123" {
		t.Fatalf("expected entry marked paid with intent id, got %+v", e)
	}
}
