// Package event defines the Event entity: the envelope every subsystem
// publishes and consumes through the event bus.
package event

import "time"

// Type enumerates the closed set of event types the core consumes or emits.
type Type string

const (
	TypeGameEnded             Type = "game_ended"
	TypeGameCreated            Type = "game_created"
	TypeSettlementGenerated    Type = "settlement_generated"
	TypePaymentDue             Type = "payment_due"
	TypePaymentOverdue         Type = "payment_overdue"
	TypePaymentReceived        Type = "payment_received"
	TypePlayerConfirmed        Type = "player_confirmed"
	TypeAllPlayersConfirmed    Type = "all_players_confirmed"
	TypeGroupMessage           Type = "group_message"
	TypeChipDiscrepancy        Type = "chip_discrepancy"
	TypeGameStale              Type = "game_stale"
	TypeRSVPResponse           Type = "rsvp_response"
	TypeStripePaymentReceived  Type = "stripe_payment_received"
	TypeFeedbackSubmitted      Type = "feedback_submitted"
)

// Event is the envelope carried through the event bus. EventID is stamped
// when missing and used to de-duplicate re-delivery.
type Event struct {
	EventID   string         `json:"event_id" bson:"event_id"`
	EventType Type           `json:"event_type" bson:"event_type"`
	Payload   map[string]any `json:"payload" bson:"payload"`
	Timestamp time.Time      `json:"timestamp" bson:"timestamp"`
}

// Field resolves a dotted payload path (e.g. "game.id"), returning false if
// any segment is absent or not a nested map.
func (e Event) Field(path string) (any, bool) {
	return lookup(e.Payload, path)
}

func lookup(m map[string]any, path string) (any, bool) {
	if m == nil {
		return nil, false
	}
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			head, rest := path[:i], path[i+1:]
			next, ok := m[head]
			if !ok {
				return nil, false
			}
			nested, ok := next.(map[string]any)
			if !ok {
				return nil, false
			}
			return lookup(nested, rest)
		}
	}
	v, ok := m[path]
	return v, ok
}
