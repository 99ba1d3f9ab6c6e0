package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/engagement"
)

const engagementDailyCap = 1
const engagementEscalationCap = 2

// categoryCooldown is the minimum interval between nudges of the same
// category for a given group/user pair; categories not listed default to
// 7 days.
var categoryCooldown = map[string]time.Duration{
	"inactive_group": 7 * 24 * time.Hour,
	"inactive_user":  14 * 24 * time.Hour,
	"milestone":      0,
	"big_winner":     14 * 24 * time.Hour,
	"digest":         7 * 24 * time.Hour,
}

const defaultCategoryCooldown = 7 * 24 * time.Hour

func cooldownFor(category string) time.Duration {
	if d, ok := categoryCooldown[category]; ok {
		return d
	}
	return defaultCategoryCooldown
}

// Tone is the emotional register selected for a nudge's copy.
type Tone string

const (
	TonePlayful    Tone = "playful"
	ToneRespectful Tone = "respectful"
	ToneNeutral    Tone = "neutral"
)

// SelectTone picks the nudge tone per category and dormancy.
func SelectTone(category string, daysDormant int) Tone {
	switch category {
	case "milestone", "big_winner":
		return TonePlayful
	case "digest":
		return ToneNeutral
	}
	if daysDormant > 60 {
		return ToneRespectful
	}
	return ToneNeutral
}

// RiskFlags carries signals that can veto a nudge regardless of cooldowns.
type RiskFlags struct {
	RecentBigLoss bool
	JustLeftGroup bool
}

// NudgeRequest describes a candidate engagement nudge to be checked.
type NudgeRequest struct {
	GroupID            string
	UserID             string
	Category           string
	GroupEngagementOn  bool
	Preferences        engagement.Preferences
	LocalHour          int
	LastSameCategoryAt *time.Time
	UnresolvedNudges   int
	Risk               RiskFlags
}

// EngagementPolicy gates engagement nudges. On any internal error it fails
// closed (blocks) rather than propagating, since a nudge is never worth
// risking an unhandled panic reaching the chat surface.
type EngagementPolicy struct {
	counter Counter
	now     func() time.Time
}

// NewEngagementPolicy builds an EngagementPolicy over the given counter.
func NewEngagementPolicy(counter Counter) *EngagementPolicy {
	return &EngagementPolicy{counter: counter, now: time.Now}
}

func (p *EngagementPolicy) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// Check runs the engagement gate, returning the retained channel list on
// success (during quiet hours this narrows to in_app only).
func (p *EngagementPolicy) Check(ctx context.Context, req NudgeRequest) (dec Decision, channels []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			dec = deny(nil, "panic", "engagement policy failed closed on internal error")
			err = nil
		}
	}()

	var passed []string
	if !req.GroupEngagementOn {
		return deny(passed, "engagement_enabled", "group has engagement disabled"), nil, nil
	}
	passed = append(passed, "engagement_enabled")

	if !req.Preferences.AllowsCategory(req.Category) {
		return deny(passed, "user_mute", "user has muted this category or all nudges"), nil, nil
	}
	passed = append(passed, "user_mute")

	if req.LastSameCategoryAt != nil {
		cooldown := cooldownFor(req.Category)
		if cooldown > 0 && p.clock().Sub(*req.LastSameCategoryAt) < cooldown {
			return deny(passed, "category_cooldown", fmt.Sprintf("category %s is within its cooldown", req.Category)), nil, nil
		}
	}
	passed = append(passed, "category_cooldown")

	bucket := p.clock().UTC().Format("2006-01-02")
	dailyKey := fmt.Sprintf("engagement_daily:%s:%s", req.UserID, bucket)
	count, err := p.counter.Get(ctx, dailyKey)
	if err != nil {
		return deny(passed, "daily_cap", "daily cap counter unavailable; failing closed"), nil, nil
	}
	if count >= engagementDailyCap {
		return deny(passed, "daily_cap", "user already received an engagement message today"), nil, nil
	}
	passed = append(passed, "daily_cap")

	if req.UnresolvedNudges >= engagementEscalationCap {
		return deny(passed, "escalation_cap", "unresolved nudges for this inactivity cycle at cap"), nil, nil
	}
	passed = append(passed, "escalation_cap")

	if req.Risk.RecentBigLoss && req.Category == "big_winner" {
		return deny(passed, "risk_flags", "user recently had a big loss; suppressing celebratory nudge"), nil, nil
	}
	if req.Risk.JustLeftGroup {
		return deny(passed, "risk_flags", "user just left the group"), nil, nil
	}
	passed = append(passed, "risk_flags")

	localHour := req.LocalHour
	channels = req.Preferences.PreferredChannels
	if req.Preferences.InQuietHours(localHour) {
		channels = []string{"in_app"}
	}
	passed = append(passed, "quiet_hours")

	return allow(passed), channels, nil
}
