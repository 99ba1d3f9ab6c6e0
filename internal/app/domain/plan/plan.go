// Package plan defines the Plan entity: an ephemeral, rendered message ready
// for a delivery adapter, produced by the planner/template renderer and
// consumed exactly once.
package plan

import "time"

// RecipientType is who a plan is addressed to.
type RecipientType string

const (
	RecipientUser  RecipientType = "user"
	RecipientGroup RecipientType = "group"
	RecipientAdmin RecipientType = "admin"
)

// Plan is a rendered, not-yet-delivered message. It is consumed by a
// delivery adapter and then recorded as an engagement.Event; it is never
// itself persisted long-term.
type Plan struct {
	PlanID              string         `json:"plan_id" bson:"plan_id"`
	PlanType            string         `json:"plan_type" bson:"plan_type"`
	TemplateKey         string         `json:"template_key" bson:"template_key"`
	Category            string         `json:"category" bson:"category"`
	Title               string         `json:"title" bson:"title"`
	Body                string         `json:"body" bson:"body"`
	Tone                string         `json:"tone,omitempty" bson:"tone,omitempty"`
	RecipientType       RecipientType  `json:"recipient_type" bson:"recipient_type"`
	RecipientID         string         `json:"recipient_id" bson:"recipient_id"`
	GroupID             string         `json:"group_id,omitempty" bson:"group_id,omitempty"`
	ChannelPreference   []string       `json:"channel_preference,omitempty" bson:"channel_preference,omitempty"`
	Variables           map[string]any `json:"variables,omitempty" bson:"variables,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt           time.Time      `json:"created_at" bson:"created_at"`
}
