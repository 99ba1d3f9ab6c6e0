package paymentrecon

import (
	"context"
	"fmt"
	"sort"

	"github.com/oddside/automation-runtime/internal/app/domain/ledger"
)

// DebtPair nets every entry between the same two users and currency into a
// single owed amount, grounded on ledger_reconciler.py's _consolidate_debts
// bidirectional netting.
type DebtPair struct {
	FromUserID string
	ToUserID   string
	Currency   string
	NetAmount  float64
	LedgerIDs  []string
}

// AllocationStep is one suggested payment in a consolidation plan: pay the
// oldest debt first.
type AllocationStep struct {
	FromUserID string
	ToUserID   string
	Currency   string
	Amount     float64
	LedgerIDs  []string
}

// ConsolidationPlan is a view-only summary of a group's outstanding debts
// after bidirectional netting, with an oldest-first allocation plan. It
// never mutates the ledger; a host or payer acts on it manually.
type ConsolidationPlan struct {
	GroupID string
	Pairs   []DebtPair
	Plan    []AllocationStep
}

// ConsolidateDebts builds a netted, oldest-first consolidation plan for one
// group's outstanding debts, excluding disputed entries and never netting
// across currencies.
func (r *Reconciler) ConsolidateDebts(ctx context.Context, groupID string) (ConsolidationPlan, error) {
	entries, err := r.findOutstanding(ctx, map[string]any{"group_id": groupID})
	if err != nil {
		return ConsolidationPlan{}, fmt.Errorf("scan group %s entries: %w", groupID, err)
	}

	type pairKey struct {
		a, b, currency string
	}
	byPair := make(map[pairKey][]ledger.Entry)
	for _, e := range entries {
		if e.Status == ledger.StatusDisputed {
			continue
		}
		// Normalize the pair key so A->B and B->A entries net against each
		// other rather than being tracked as two separate debts.
		a, b := e.FromUserID, e.ToUserID
		if a > b {
			a, b = b, a
		}
		key := pairKey{a, b, e.Currency}
		byPair[key] = append(byPair[key], e)
	}

	var pairs []DebtPair
	for key, group := range byPair {
		var net float64
		var ids []string
		for _, e := range group {
			ids = append(ids, e.LedgerID)
			if e.FromUserID == key.a {
				net += e.Amount
			} else {
				net -= e.Amount
			}
		}
		if net == 0 {
			continue
		}
		pair := DebtPair{Currency: key.currency, LedgerIDs: ids}
		if net > 0 {
			pair.FromUserID, pair.ToUserID, pair.NetAmount = key.a, key.b, net
		} else {
			pair.FromUserID, pair.ToUserID, pair.NetAmount = key.b, key.a, -net
		}
		pairs = append(pairs, pair)
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].FromUserID != pairs[j].FromUserID {
			return pairs[i].FromUserID < pairs[j].FromUserID
		}
		return pairs[i].ToUserID < pairs[j].ToUserID
	})

	plan := allocationPlan(entries, pairs)
	return ConsolidationPlan{GroupID: groupID, Pairs: pairs, Plan: plan}, nil
}

// allocationPlan orders each netted pair's constituent entries oldest-first,
// so a payer sees which underlying debt their payment should clear first.
func allocationPlan(entries []ledger.Entry, pairs []DebtPair) []AllocationStep {
	byID := make(map[string]ledger.Entry, len(entries))
	for _, e := range entries {
		byID[e.LedgerID] = e
	}

	var steps []AllocationStep
	for _, pair := range pairs {
		ordered := append([]string(nil), pair.LedgerIDs...)
		sort.Slice(ordered, func(i, j int) bool {
			return byID[ordered[i]].CreatedAt.Before(byID[ordered[j]].CreatedAt)
		})
		steps = append(steps, AllocationStep{
			FromUserID: pair.FromUserID,
			ToUserID:   pair.ToUserID,
			Currency:   pair.Currency,
			Amount:     pair.NetAmount,
			LedgerIDs:  ordered,
		})
	}
	return steps
}
