// Package engagement defines the Engagement-Event and Engagement-Preferences
// entities used by the scorer, policy, and nudge delivery components.
package engagement

import "time"

// EventType enumerates the closed set of engagement-event kinds.
type EventType string

const (
	EventNudgeSent            EventType = "nudge_sent"
	EventNudgeMuted           EventType = "nudge_muted"
	EventGameStartedAfterNudge EventType = "game_started_after_nudge"
)

// Event is a logged nudge interaction, used both for cooldown enforcement and
// for measuring nudge efficacy.
type Event struct {
	EventType EventType `json:"event_type" bson:"event_type"`
	PlanID    string    `json:"plan_id,omitempty" bson:"plan_id,omitempty"`
	GroupID   string    `json:"group_id" bson:"group_id"`
	UserID    string    `json:"user_id,omitempty" bson:"user_id,omitempty"`
	Category  string    `json:"category" bson:"category"`
	Channel   string    `json:"channel,omitempty" bson:"channel,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Preferences are a user's per-account nudge opt-outs and channel choices.
type Preferences struct {
	UserID              string   `json:"user_id" bson:"user_id"`
	MutedAll            bool     `json:"muted_all" bson:"muted_all"`
	MutedCategories     []string `json:"muted_categories,omitempty" bson:"muted_categories,omitempty"`
	PreferredChannels   []string `json:"preferred_channels,omitempty" bson:"preferred_channels,omitempty"`
	PreferredTone       string   `json:"preferred_tone,omitempty" bson:"preferred_tone,omitempty"`
	TimezoneOffsetHours int      `json:"timezone_offset_hours" bson:"timezone_offset_hours"`
	QuietStart          string   `json:"quiet_start" bson:"quiet_start"`
	QuietEnd            string   `json:"quiet_end" bson:"quiet_end"`
}

// AllowsCategory reports whether the user has not globally muted, and has
// not muted, the given category.
func (p Preferences) AllowsCategory(category string) bool {
	if p.MutedAll {
		return false
	}
	for _, c := range p.MutedCategories {
		if c == category {
			return false
		}
	}
	return true
}

// InQuietHours reports whether localHour (0-23, already shifted to the
// user's local time) falls within the user's configured quiet window. A
// window that wraps midnight (start > end) is handled.
func (p Preferences) InQuietHours(localHour int) bool {
	start, end := parseHour(p.QuietStart), parseHour(p.QuietEnd)
	if start < 0 || end < 0 {
		return false
	}
	if start == end {
		return false
	}
	if start < end {
		return localHour >= start && localHour < end
	}
	return localHour >= start || localHour < end
}

func parseHour(hhmm string) int {
	if len(hhmm) < 2 {
		return -1
	}
	h := 0
	for i := 0; i < 2 && i < len(hhmm); i++ {
		c := hhmm[i]
		if c < '0' || c > '9' {
			return -1
		}
		h = h*10 + int(c-'0')
	}
	if h < 0 || h > 23 {
		return -1
	}
	return h
}
