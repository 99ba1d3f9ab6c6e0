package proactivescheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/directory"
	"github.com/oddside/automation-runtime/internal/app/services/paymentrecon"
	"github.com/oddside/automation-runtime/internal/app/storage"
)

// settledGameLookback is how long the scan waits after sweeping a settled
// game before sweeping it again. Every settled game is swept, however long
// ago it settled.
const settledGameLookback = 72 * time.Hour

// PaymentReminderSender delivers one payment reminder and reports success so
// the scan can record it against the ledger entry for reminder-conversion
// KPIs.
type PaymentReminderSender interface {
	SendPaymentReminder(ctx context.Context, reminder paymentrecon.Reminder) error
}

// SettlementReminderScan gives every recently-settled game's outstanding
// ledger entries a gentle reminder at day 0, rather than waiting for the
// first day-1 overdue scan. Grounded on event_listener.py's
// _handle_post_settlement_reminders, which runs payment reconciliation with
// overdue_days=0 right after a settlement is generated ("include brand new
// entries"); the original source only wires that handler to the
// settlement_generated event, never to a periodic loop, so this adapts it
// into one.
type SettlementReminderScan struct {
	gameNights  storage.Store
	reconciler  *paymentrecon.Reconciler
	sender      PaymentReminderSender
	scanOptions paymentrecon.ScanOptions
	now         func() time.Time

	reminded map[string]time.Time
}

// NewSettlementReminderScan builds a SettlementReminderScan.
func NewSettlementReminderScan(gameNights storage.Store, reconciler *paymentrecon.Reconciler, sender PaymentReminderSender, opts paymentrecon.ScanOptions) *SettlementReminderScan {
	return &SettlementReminderScan{
		gameNights:  gameNights,
		reconciler:  reconciler,
		sender:      sender,
		scanOptions: opts,
		now:         time.Now,
		reminded:    make(map[string]time.Time),
	}
}

func (s *SettlementReminderScan) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Tick implements scheduler.TickFunc.
func (s *SettlementReminderScan) Tick(ctx context.Context) error {
	var games []directory.GameNight
	if err := s.gameNights.Find(ctx, storage.Filter{"status": string(directory.GameNightSettled)}, nil, 0, &games); err != nil {
		return fmt.Errorf("list settled games: %w", err)
	}

	now := s.clock()
	for _, g := range games {
		if last, ok := s.reminded[g.GameID]; ok {
			if now.Sub(last) < settledGameLookback {
				continue
			}
		}

		reminders, err := s.reconciler.ScanSettlementDue(ctx, g.GameID, s.scanOptions)
		if err != nil {
			return fmt.Errorf("scan settlement reminders for game %s: %w", g.GameID, err)
		}
		if len(reminders) == 0 {
			continue
		}

		for _, r := range reminders {
			if err := s.sender.SendPaymentReminder(ctx, r); err != nil {
				return fmt.Errorf("send settlement reminder for entry %s: %w", r.Entry.LedgerID, err)
			}
			if err := s.reconciler.RecordReminderSent(ctx, r.Entry.LedgerID); err != nil {
				return fmt.Errorf("record settlement reminder for entry %s: %w", r.Entry.LedgerID, err)
			}
		}
		s.reminded[g.GameID] = now
	}
	return nil
}

// SendPaymentReminder implements PaymentReminderSender through the
// structured logger.
func (n *LoggerNotifier) SendPaymentReminder(ctx context.Context, reminder paymentrecon.Reminder) error {
	n.log.WithField("ledger_id", reminder.Entry.LedgerID).
		WithField("group_id", reminder.Entry.GroupID).
		WithField("urgency", string(reminder.Urgency)).
		Info("sending settlement payment reminder")
	return nil
}
