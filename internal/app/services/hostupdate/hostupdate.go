// Package hostupdate implements the host update channel: structured,
// private updates about group activity, game planning, and AI actions that
// are never posted into group chat. Grounded on host_update_service.py's
// send_update and its per-topic convenience wrappers.
package hostupdate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oddside/automation-runtime/internal/app/storage"
	"github.com/oddside/automation-runtime/pkg/logger"
)

// Priority ranks an update for push escalation and host-feed ordering.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// escalates reports whether priority warrants a push notification even when
// the caller didn't explicitly ask for one.
func (p Priority) escalates() bool {
	return p == PriorityHigh || p == PriorityUrgent
}

// Type enumerates the update topics host_update_service.py's convenience
// methods cover.
type Type string

const (
	TypeRSVPUpdate       Type = "rsvp_update"
	TypePollUpdate       Type = "poll_update"
	TypeGameReminder     Type = "game_reminder"
	TypeSettlementStatus Type = "settlement_status"
	TypeSuggestionSent   Type = "suggestion_sent"
	TypeMemberActivity   Type = "member_activity"
	TypeAIAction         Type = "ai_action"
)

// Update is one private, host-targeted message, stored in the queryable
// host_updates feed.
type Update struct {
	UpdateID  string         `json:"update_id" bson:"update_id"`
	GroupID   string         `json:"group_id" bson:"group_id"`
	HostID    string         `json:"host_id" bson:"host_id"`
	Type      Type           `json:"type" bson:"type"`
	Title     string         `json:"title" bson:"title"`
	Message   string         `json:"message" bson:"message"`
	Data      map[string]any `json:"data,omitempty" bson:"data,omitempty"`
	Priority  Priority       `json:"priority" bson:"priority"`
	Read      bool           `json:"read" bson:"read"`
	CreatedAt time.Time      `json:"created_at" bson:"created_at"`
}

// PushEscalator sends a push notification for a high-priority update. Real
// vendor adapters (Expo, FCM/APNs) implement this; LoggerPushEscalator is
// the staging-safe fallback, the same pattern as delivery.LoggerExecutor.
type PushEscalator interface {
	Escalate(ctx context.Context, update Update) error
}

// LoggerPushEscalator records every escalation through the structured
// logger instead of a real push vendor.
type LoggerPushEscalator struct {
	log *logger.Logger
}

// NewLoggerPushEscalator builds a LoggerPushEscalator that writes through log.
func NewLoggerPushEscalator(log *logger.Logger) *LoggerPushEscalator {
	return &LoggerPushEscalator{log: log}
}

// Escalate implements PushEscalator.
func (e *LoggerPushEscalator) Escalate(ctx context.Context, update Update) error {
	e.log.WithField("host_id", update.HostID).
		WithField("update_id", update.UpdateID).
		WithField("priority", string(update.Priority)).
		Info("host update push escalation")
	return nil
}

// Channel keeps a host informed through the private update feed, escalating
// high-priority updates to push. It does not duplicate updates into group
// chat or a general notifications collection: host_updates is this
// runtime's one feed, and in-app/WebSocket fanout is a delivery-layer
// concern outside this core (spec Non-goals: chat delivery/WebSocket
// fanout, push-vendor internals).
type Channel struct {
	hostUpdates storage.Store
	push        PushEscalator
	now         func() time.Time
}

// New builds a Channel over the host_updates collection.
func New(hostUpdates storage.Store, push PushEscalator) *Channel {
	return &Channel{hostUpdates: hostUpdates, push: push, now: time.Now}
}

func (c *Channel) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// Send stores update and escalates to push when priority or sendPush calls
// for it, grounded on host_update_service.py's send_update.
func (c *Channel) Send(ctx context.Context, groupID, hostID string, updateType Type, title, message string, data map[string]any, priority Priority, sendPush bool) (Update, error) {
	update := Update{
		UpdateID:  "hup_" + uuid.NewString(),
		GroupID:   groupID,
		HostID:    hostID,
		Type:      updateType,
		Title:     title,
		Message:   message,
		Data:      data,
		Priority:  priority,
		Read:      false,
		CreatedAt: c.clock(),
	}
	if err := c.hostUpdates.InsertOne(ctx, update.UpdateID, update); err != nil {
		return Update{}, fmt.Errorf("insert host update: %w", err)
	}

	if c.push != nil && (sendPush || priority.escalates()) {
		if err := c.push.Escalate(ctx, update); err != nil {
			return update, fmt.Errorf("escalate host update: %w", err)
		}
	}
	return update, nil
}

// NotifyRSVPUpdate reports a game's RSVP tally to the host, grounded on
// notify_rsvp_update: priority drops to low once nobody is still pending.
func (c *Channel) NotifyRSVPUpdate(ctx context.Context, groupID, hostID, gameTitle string, confirmed, declined, maybe, pending int) (Update, error) {
	total := confirmed + declined + maybe + pending
	message := fmt.Sprintf("%d confirmed, %d declined", confirmed, declined)
	if maybe > 0 {
		message += fmt.Sprintf(", %d maybe", maybe)
	}
	message += fmt.Sprintf(", %d pending out of %d invited", pending, total)

	priority := PriorityNormal
	if pending == 0 {
		priority = PriorityLow
	}
	return c.Send(ctx, groupID, hostID, TypeRSVPUpdate, fmt.Sprintf("RSVP Update: %s", gameTitle), message,
		map[string]any{"confirmed": confirmed, "declined": declined, "maybe": maybe, "pending": pending}, priority, false)
}

// NotifyPollResult reports a resolved poll, grounded on notify_poll_result.
func (c *Channel) NotifyPollResult(ctx context.Context, groupID, hostID, pollID, winningOption string, voteCount int) (Update, error) {
	message := fmt.Sprintf("%q wins with %d vote(s). Want me to create the game?", winningOption, voteCount)
	return c.Send(ctx, groupID, hostID, TypePollUpdate, "Poll Resolved", message,
		map[string]any{"poll_id": pollID, "winning_option": winningOption}, PriorityHigh, false)
}

// NotifySettlementStatus reports outstanding payments, grounded on
// notify_settlement_status.
func (c *Channel) NotifySettlementStatus(ctx context.Context, groupID, hostID, gameID string, outstanding int, totalOwed float64) (Update, error) {
	message := fmt.Sprintf("%d payment(s) still pending ($%.2f total)", outstanding, totalOwed)
	return c.Send(ctx, groupID, hostID, TypeSettlementStatus, "Outstanding Settlements", message,
		map[string]any{"game_id": gameID, "outstanding": outstanding, "total_owed": totalOwed}, PriorityNormal, false)
}

// NotifyGameReminder reports an upcoming game's confirmation status,
// grounded on notify_game_reminder: escalates to push inside 2 hours.
func (c *Channel) NotifyGameReminder(ctx context.Context, groupID, hostID, gameID string, hoursUntil, confirmed, noResponse int) (Update, error) {
	message := fmt.Sprintf("Game in %d hours — %d confirmed", hoursUntil, confirmed)
	if noResponse > 0 {
		message += fmt.Sprintf(", %d haven't responded", noResponse)
	}
	priority := PriorityNormal
	if hoursUntil <= 2 {
		priority = PriorityHigh
	}
	return c.Send(ctx, groupID, hostID, TypeGameReminder, "Upcoming Game", message,
		map[string]any{"game_id": gameID, "hours_until": hoursUntil}, priority, hoursUntil <= 2)
}

// NotifyAIAction reports an automated action taken in the group, grounded
// on notify_ai_action.
func (c *Channel) NotifyAIAction(ctx context.Context, groupID, hostID, action, description string, data map[string]any) (Update, error) {
	return c.Send(ctx, groupID, hostID, TypeAIAction, fmt.Sprintf("AI Action: %s", action), description, data, PriorityLow, false)
}

// NotifyMemberInactive reports a member going quiet, grounded on
// notify_member_inactive.
func (c *Channel) NotifyMemberInactive(ctx context.Context, groupID, hostID, memberName string, daysInactive int) (Update, error) {
	message := fmt.Sprintf("%s hasn't played in %d days", memberName, daysInactive)
	return c.Send(ctx, groupID, hostID, TypeMemberActivity, "Inactive Member", message, nil, PriorityLow, false)
}

// Pending returns a host's update feed for a group, newest first, grounded
// on get_host_updates. unreadOnly restricts to Read == false; limit <= 0
// means unlimited.
func (c *Channel) Pending(ctx context.Context, groupID, hostID string, unreadOnly bool, limit int) ([]Update, error) {
	filter := storage.Filter{"group_id": groupID, "host_id": hostID}
	if unreadOnly {
		filter["read"] = false
	}
	var updates []Update
	if err := c.hostUpdates.Find(ctx, filter, &storage.Sort{Field: "created_at", Desc: true}, limit, &updates); err != nil {
		return nil, fmt.Errorf("list host updates: %w", err)
	}
	return updates, nil
}

// MarkRead marks a single update read, grounded on mark_read.
func (c *Channel) MarkRead(ctx context.Context, updateID, hostID string) error {
	err := c.hostUpdates.UpdateOne(ctx, storage.Filter{"update_id": updateID, "host_id": hostID}, storage.Update{Set: map[string]any{"read": true}})
	if err != nil {
		return fmt.Errorf("mark host update read: %w", err)
	}
	return nil
}

// MarkAllRead marks every unread update for a group/host pair read,
// grounded on mark_all_read.
func (c *Channel) MarkAllRead(ctx context.Context, groupID, hostID string) (int64, error) {
	n, err := c.hostUpdates.UpdateMany(ctx, storage.Filter{"group_id": groupID, "host_id": hostID, "read": false}, storage.Update{Set: map[string]any{"read": true}})
	if err != nil {
		return 0, fmt.Errorf("mark all host updates read: %w", err)
	}
	return n, nil
}
