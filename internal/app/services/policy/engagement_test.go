package policy

import (
	"context"
	"testing"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/engagement"
)

func baseNudgeRequest() NudgeRequest {
	return NudgeRequest{
		GroupID:           "g1",
		UserID:            "u1",
		Category:          "inactive_group",
		GroupEngagementOn: true,
		Preferences:       engagement.Preferences{UserID: "u1", PreferredChannels: []string{"push", "in_app"}},
		LocalHour:         12,
	}
}

func TestEngagementPolicyAllowsFreshNudge(t *testing.T) {
	p := NewEngagementPolicy(NewMemoryCounter())
	dec, channels, err := p.Check(context.Background(), baseNudgeRequest())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("expected allowed, got denied: %s", dec.BlockedReason)
	}
	if len(channels) != 2 {
		t.Fatalf("expected preferred channels retained, got %v", channels)
	}
}

func TestEngagementPolicyBlocksMutedCategory(t *testing.T) {
	p := NewEngagementPolicy(NewMemoryCounter())
	req := baseNudgeRequest()
	req.Preferences.MutedCategories = []string{"inactive_group"}
	dec, _, _ := p.Check(context.Background(), req)
	if dec.Allowed {
		t.Fatalf("expected muted category to block")
	}
	if dec.BlockedReason != "user_mute" {
		t.Fatalf("expected user_mute reason, got %s", dec.BlockedReason)
	}
}

func TestEngagementPolicyBlocksCategoryCooldown(t *testing.T) {
	p := NewEngagementPolicy(NewMemoryCounter())
	req := baseNudgeRequest()
	recent := time.Now().Add(-1 * time.Hour)
	req.LastSameCategoryAt = &recent
	dec, _, _ := p.Check(context.Background(), req)
	if dec.Allowed {
		t.Fatalf("expected category cooldown (7d for inactive_group) to block 1h-old nudge")
	}
}

func TestEngagementPolicyBlocksDailyCap(t *testing.T) {
	counter := NewMemoryCounter()
	p := NewEngagementPolicy(counter)
	ctx := context.Background()
	if _, err := counter.Increment(ctx, "engagement_daily:u1:"+dayBucket(time.Now()), 24*time.Hour); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	dec, _, _ := p.Check(ctx, baseNudgeRequest())
	if dec.Allowed {
		t.Fatalf("expected daily cap to block second nudge")
	}
}

func TestEngagementPolicyNarrowsChannelsInQuietHours(t *testing.T) {
	p := NewEngagementPolicy(NewMemoryCounter())
	req := baseNudgeRequest()
	req.Preferences.QuietStart = "22:00"
	req.Preferences.QuietEnd = "08:00"
	req.LocalHour = 23
	dec, channels, err := p.Check(context.Background(), req)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !dec.Allowed {
		t.Fatalf("quiet hours should narrow channels, not block: %s", dec.BlockedReason)
	}
	if len(channels) != 1 || channels[0] != "in_app" {
		t.Fatalf("expected channels narrowed to in_app, got %v", channels)
	}
}

func TestEngagementPolicyBlocksEscalationCap(t *testing.T) {
	p := NewEngagementPolicy(NewMemoryCounter())
	req := baseNudgeRequest()
	req.UnresolvedNudges = 2
	dec, _, _ := p.Check(context.Background(), req)
	if dec.Allowed {
		t.Fatalf("expected escalation cap to block")
	}
}

func TestEngagementPolicySuppressesBigWinnerOnRecentLoss(t *testing.T) {
	p := NewEngagementPolicy(NewMemoryCounter())
	req := baseNudgeRequest()
	req.Category = "big_winner"
	req.Risk.RecentBigLoss = true
	dec, _, _ := p.Check(context.Background(), req)
	if dec.Allowed {
		t.Fatalf("expected big_winner nudge to be suppressed after a recent big loss")
	}
}
