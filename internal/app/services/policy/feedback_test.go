package policy

import (
	"context"
	"testing"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/feedback"
)

func baseFixRequest() AutoFixRequest {
	return AutoFixRequest{
		Feedback: &feedback.Feedback{FeedbackID: "f1"},
		FixType:  "recompute_ledger",
		Tier:     TierVerify,
	}
}

func TestFeedbackPolicyAllowsVerifyTier(t *testing.T) {
	p := NewFeedbackPolicy()
	dec, err := p.Check(context.Background(), baseFixRequest())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("expected allowed, got denied: %s", dec.BlockedReason)
	}
}

func TestFeedbackPolicyBlocksCriticalSeverity(t *testing.T) {
	p := NewFeedbackPolicy()
	req := baseFixRequest()
	req.Feedback.Classification = &feedback.Classification{Severity: feedback.SeverityCritical}
	dec, _ := p.Check(context.Background(), req)
	if dec.Allowed {
		t.Fatalf("expected critical severity to block auto-fix")
	}
}

func TestFeedbackPolicyBlocksPotOverThreshold(t *testing.T) {
	p := NewFeedbackPolicy()
	req := baseFixRequest()
	req.PotCents = 100*100 + 1
	dec, _ := p.Check(context.Background(), req)
	if dec.Allowed {
		t.Fatalf("expected pot over $100 to block auto-fix")
	}
}

func TestFeedbackPolicyRequiresConfirmationForMutate(t *testing.T) {
	p := NewFeedbackPolicy()
	req := baseFixRequest()
	req.Tier = TierMutate
	req.ActorRole = RoleAdmin
	dec, _ := p.Check(context.Background(), req)
	if dec.Allowed {
		t.Fatalf("expected unconfirmed mutate fix to block")
	}

	req.Confirmed = true
	dec, err := p.Check(context.Background(), req)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("expected confirmed admin mutate fix to be allowed, got %s", dec.BlockedReason)
	}
}

func TestFeedbackPolicyBlocksMutateForNonAdmin(t *testing.T) {
	p := NewFeedbackPolicy()
	req := baseFixRequest()
	req.Tier = TierMutate
	req.Confirmed = true
	req.ActorRole = RoleMember
	dec, _ := p.Check(context.Background(), req)
	if dec.Allowed {
		t.Fatalf("expected non-admin mutate fix to block")
	}
}

func TestFeedbackPolicyBlocksFixCooldown(t *testing.T) {
	p := NewFeedbackPolicy()
	req := baseFixRequest()
	recent := time.Now().Add(-10 * time.Minute)
	req.LastAttemptAt = &recent
	dec, _ := p.Check(context.Background(), req)
	if dec.Allowed {
		t.Fatalf("expected fix cooldown to block")
	}
}

func TestFeedbackPolicyBlocksMaxRetries(t *testing.T) {
	p := NewFeedbackPolicy()
	req := baseFixRequest()
	req.RetryCount = 3
	dec, _ := p.Check(context.Background(), req)
	if dec.Allowed {
		t.Fatalf("expected max retries to block")
	}
}
