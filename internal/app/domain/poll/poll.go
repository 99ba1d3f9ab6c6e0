// Package poll models a group's scheduling poll: a set of candidate game
// times members vote on, resolved or reproposed by the stale-poll scan.
package poll

import "time"

// Status is a poll's lifecycle state.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// Option is one candidate time slot and the user IDs who voted for it.
type Option struct {
	OptionID string   `json:"option_id" bson:"option_id"`
	Label    string   `json:"label" bson:"label"`
	DateTime time.Time `json:"date_time" bson:"date_time"`
	Votes    []string `json:"votes,omitempty" bson:"votes,omitempty"`
}

// Poll is one availability poll posted to a group.
type Poll struct {
	PollID         string     `json:"poll_id" bson:"poll_id"`
	GroupID        string     `json:"group_id" bson:"group_id"`
	CreatedBy      string     `json:"created_by" bson:"created_by"`
	Type           string     `json:"type" bson:"type"`
	Question       string     `json:"question" bson:"question"`
	Options        []Option   `json:"options" bson:"options"`
	Status         Status     `json:"status" bson:"status"`
	ExpiresAt      time.Time  `json:"expires_at" bson:"expires_at"`
	WinningOption  string     `json:"winning_option,omitempty" bson:"winning_option,omitempty"`
	MessageID      string     `json:"message_id,omitempty" bson:"message_id,omitempty"`
	GameID         string     `json:"game_id,omitempty" bson:"game_id,omitempty"`
	ReproposalOf   string     `json:"reproposal_of,omitempty" bson:"reproposal_of,omitempty"`
	CreatedAt      time.Time  `json:"created_at" bson:"created_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty" bson:"closed_at,omitempty"`
}

// TotalVotes sums the votes cast across every option, the stale-poll scan's
// "not enough responses" signal.
func (p Poll) TotalVotes() int {
	total := 0
	for _, opt := range p.Options {
		total += len(opt.Votes)
	}
	return total
}
