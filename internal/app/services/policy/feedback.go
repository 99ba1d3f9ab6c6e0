package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/feedback"
)

const feedbackPotThresholdCents = 100 * 100

// FeedbackTier distinguishes read-only auto-fixes from ones that mutate
// ledger/game state.
type FeedbackTier string

const (
	TierVerify FeedbackTier = "verify"
	TierMutate FeedbackTier = "mutate"
)

// fixCooldown is the minimum interval between automated fix attempts of the
// same type against the same target, ranging 1-24h by blast radius.
var fixCooldown = map[string]time.Duration{
	"recompute_ledger":    1 * time.Hour,
	"resend_invite":       1 * time.Hour,
	"void_duplicate_game": 6 * time.Hour,
	"reissue_payment":     24 * time.Hour,
}

const defaultFixCooldown = time.Hour
const maxFixRetries = 3

func fixCooldownFor(fixType string) time.Duration {
	if d, ok := fixCooldown[fixType]; ok {
		return d
	}
	return defaultFixCooldown
}

// AutoFixRequest describes a candidate automated fix to be checked.
type AutoFixRequest struct {
	Feedback        *feedback.Feedback
	FixType         string
	Tier            FeedbackTier
	Confirmed       bool
	ActorRole       Role
	PotCents        int64
	LastAttemptAt   *time.Time
	RetryCount      int
}

// FeedbackPolicy gates automated feedback fixes.
type FeedbackPolicy struct {
	now func() time.Time
}

// NewFeedbackPolicy builds a FeedbackPolicy.
func NewFeedbackPolicy() *FeedbackPolicy {
	return &FeedbackPolicy{now: time.Now}
}

func (p *FeedbackPolicy) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// Check runs the ordered auto-fix checks.
func (p *FeedbackPolicy) Check(ctx context.Context, req AutoFixRequest) (Decision, error) {
	var passed []string

	if req.Feedback.Classification != nil && req.Feedback.Classification.Severity == feedback.SeverityCritical {
		return deny(passed, "critical_block", "critical-severity feedback may never be auto-fixed"), nil
	}
	passed = append(passed, "critical_block")

	if req.PotCents > feedbackPotThresholdCents {
		return deny(passed, "pot_threshold", "pot exceeds $100; requires human review"), nil
	}
	passed = append(passed, "pot_threshold")

	if req.Tier == TierMutate {
		if !req.Confirmed {
			return deny(passed, "mutate_confirmation", "mutating fix requires explicit confirmation"), nil
		}
		if req.ActorRole != RoleAdmin {
			return deny(passed, "mutate_role", "mutating fix requires host or admin role"), nil
		}
	}
	passed = append(passed, "mutate_gate")

	if req.LastAttemptAt != nil {
		cooldown := fixCooldownFor(req.FixType)
		if p.clock().Sub(*req.LastAttemptAt) < cooldown {
			return deny(passed, "fix_cooldown", fmt.Sprintf("fix type %s is within its cooldown", req.FixType)), nil
		}
	}
	passed = append(passed, "fix_cooldown")

	if req.RetryCount >= maxFixRetries {
		return deny(passed, "max_retries", "fix has reached its per-entry retry limit"), nil
	}
	passed = append(passed, "max_retries")

	return allow(passed), nil
}
