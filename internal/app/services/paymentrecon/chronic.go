package paymentrecon

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/ledger"
)

// chronicWindow is how far back escalations and paid history count toward
// the chronic non-payer flag.
const chronicWindow = 90 * 24 * time.Hour

// chronicAbsoluteEscalations is the 90-day escalation-count threshold, the
// other half of the absolute OR in _flag_chronic_nonpayers: 3+ overdue
// entries right now, or 2+ escalations in the last 90 days.
const chronicAbsoluteEscalations = 2

// chronicRelativeMultiplier is how far above the group's median
// time-to-pay a user's own average must sit before the relative half of
// the flag is satisfied.
const chronicRelativeMultiplier = 1.5

// FlaggedNonPayer is a user who trips both the absolute and relative
// chronic non-payer thresholds.
type FlaggedNonPayer struct {
	UserID           string
	OverdueCount     int
	EscalatedCount   int
	AvgDaysToPay     float64
	GroupMedianDays  float64
	AbsoluteReason   string
}

// FlagChronicNonPayers requires BOTH an absolute signal (3+ entries
// currently overdue, or 2+ escalated within the last 90 days) AND a
// relative signal (the user's average time-to-pay is at least
// chronicRelativeMultiplier times their group's median time-to-pay) before
// flagging a user. This differs from _flag_chronic_nonpayers, which treats
// the relative comparison as additional context rather than a gate; here
// it's a requirement. A user with no group baseline to compare against
// (the group has no paid history yet) auto-satisfies the relative half,
// since there's nothing to measure them against.
func (r *Reconciler) FlagChronicNonPayers(ctx context.Context) ([]FlaggedNonPayer, error) {
	outstanding, err := r.findOutstanding(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("scan outstanding entries: %w", err)
	}

	var paid []ledger.Entry
	if err := r.entries.Find(ctx, nil, nil, 0, &paid); err != nil {
		return nil, fmt.Errorf("scan all entries: %w", err)
	}

	now := r.clock()

	type absoluteAgg struct {
		overdueCount   int
		escalatedCount int
		groupID        string
	}
	byUser := make(map[string]*absoluteAgg)
	for _, entry := range outstanding {
		days := entry.DaysOverdue(now)
		agg, ok := byUser[entry.FromUserID]
		if !ok {
			agg = &absoluteAgg{groupID: entry.GroupID}
			byUser[entry.FromUserID] = agg
		}
		if days > 0 {
			agg.overdueCount++
		}
		if escalatedRecently(entry, now, chronicWindow) {
			agg.escalatedCount++
		}
	}

	// Time-to-pay per user and per group, from settled history only.
	userDaysToPay := make(map[string][]float64)
	groupDaysToPay := make(map[string][]float64)
	for _, entry := range paid {
		if entry.Status != ledger.StatusPaid || entry.PaidAt == nil {
			continue
		}
		daysToPay := entry.PaidAt.Sub(entry.CreatedAt).Hours() / 24
		if daysToPay < 0 {
			continue
		}
		userDaysToPay[entry.FromUserID] = append(userDaysToPay[entry.FromUserID], daysToPay)
		groupDaysToPay[entry.GroupID] = append(groupDaysToPay[entry.GroupID], daysToPay)
		if agg, ok := byUser[entry.FromUserID]; ok && agg.groupID == "" {
			agg.groupID = entry.GroupID
		}
	}

	var out []FlaggedNonPayer
	for userID, agg := range byUser {
		var absoluteReason string
		switch {
		case agg.overdueCount >= ChronicThresholdEntries:
			absoluteReason = "overdue_count"
		case agg.escalatedCount >= chronicAbsoluteEscalations:
			absoluteReason = "escalation_count"
		default:
			continue
		}

		avgUser, haveUser := average(userDaysToPay[userID])
		groupMedian, haveGroup := median(groupDaysToPay[agg.groupID])

		relativeSatisfied := true
		if haveUser && haveGroup && groupMedian > 0 {
			relativeSatisfied = avgUser >= groupMedian*chronicRelativeMultiplier
		}
		if !relativeSatisfied {
			continue
		}

		out = append(out, FlaggedNonPayer{
			UserID:          userID,
			OverdueCount:    agg.overdueCount,
			EscalatedCount:  agg.escalatedCount,
			AvgDaysToPay:    avgUser,
			GroupMedianDays: groupMedian,
			AbsoluteReason:  absoluteReason,
		})
	}
	return out, nil
}

func average(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

func median(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], true
	}
	return (sorted[mid-1] + sorted[mid]) / 2, true
}
