package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oddside/automation-runtime/internal/app/services/chatwatcher"
	"github.com/oddside/automation-runtime/internal/app/storage"
	"github.com/oddside/automation-runtime/pkg/logger"
)

// systemUserID is the chat identity every system-authored message is
// attributed to, grounded on automation_runner.py's group_messages.insert_one
// call ("user_id": "ai_assistant").
const systemUserID = "ai_assistant"

// GroupMessageRecord is one message written to a group's chat, grounded on
// automation_runner.py's _action_generate_summary group_messages document.
type GroupMessageRecord struct {
	MessageID  string         `json:"message_id" bson:"message_id"`
	DeliveryID string         `json:"delivery_id" bson:"delivery_id"`
	GroupID    string         `json:"group_id" bson:"group_id"`
	UserID     string         `json:"user_id" bson:"user_id"`
	Content    string         `json:"content" bson:"content"`
	Type       string         `json:"type" bson:"type"`
	Metadata   map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at" bson:"created_at"`
	Deleted    bool           `json:"deleted" bson:"deleted"`
}

// Broadcaster fans a posted message out through the external chat channel
// (websocket, push, ...) the wider product uses. LoggerBroadcaster is the
// staging-safe fallback.
type Broadcaster interface {
	Broadcast(ctx context.Context, groupID string, msg GroupMessageRecord) error
}

// LoggerBroadcaster records every broadcast through the structured logger.
type LoggerBroadcaster struct {
	log *logger.Logger
}

// NewLoggerBroadcaster builds a LoggerBroadcaster that writes through log.
func NewLoggerBroadcaster(log *logger.Logger) *LoggerBroadcaster {
	return &LoggerBroadcaster{log: log}
}

// Broadcast implements Broadcaster.
func (b *LoggerBroadcaster) Broadcast(ctx context.Context, groupID string, msg GroupMessageRecord) error {
	b.log.WithField("group_id", groupID).WithField("message_id", msg.MessageID).Info("broadcasting group message")
	return nil
}

// ChatPoster writes a system-owned chat message and broadcasts it,
// satisfying spec §4.11's chat-post external contract. It also implements
// chatwatcher.ChatResponder so the chat watcher can post its response
// decisions through the same adapter the rest of C14 uses.
type ChatPoster struct {
	messages    storage.Store
	broadcaster Broadcaster
	now         func() time.Time
}

// NewChatPoster builds a ChatPoster over the group_messages collection and a
// broadcaster. A nil broadcaster is replaced by a LoggerBroadcaster.
func NewChatPoster(messages storage.Store, broadcaster Broadcaster, log *logger.Logger) *ChatPoster {
	if broadcaster == nil {
		broadcaster = NewLoggerBroadcaster(log)
	}
	return &ChatPoster{messages: messages, broadcaster: broadcaster, now: time.Now}
}

func (p *ChatPoster) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// PostMessage writes content as a system message in groupID and broadcasts
// it, idempotent on deliveryID.
func (p *ChatPoster) PostMessage(ctx context.Context, deliveryID, groupID, content, messageType string, metadata map[string]any) (GroupMessageRecord, error) {
	if deliveryID == "" {
		return GroupMessageRecord{}, fmt.Errorf("chat post: delivery_id is required")
	}
	if groupID == "" {
		return GroupMessageRecord{}, fmt.Errorf("chat post: group_id is required")
	}

	var existing GroupMessageRecord
	if err := p.messages.FindOne(ctx, storage.Filter{"delivery_id": deliveryID}, &existing); err == nil {
		return existing, nil
	} else if err != storage.ErrNotFound {
		return GroupMessageRecord{}, fmt.Errorf("check existing group message: %w", err)
	}

	rec := GroupMessageRecord{
		MessageID:  "gmsg_" + uuid.NewString(),
		DeliveryID: deliveryID,
		GroupID:    groupID,
		UserID:     systemUserID,
		Content:    content,
		Type:       messageType,
		Metadata:   metadata,
		CreatedAt:  p.clock(),
	}
	if err := p.messages.InsertOne(ctx, rec.MessageID, rec); err != nil {
		return GroupMessageRecord{}, fmt.Errorf("insert group message: %w", err)
	}
	if err := p.broadcaster.Broadcast(ctx, groupID, rec); err != nil {
		return rec, fmt.Errorf("broadcast group message: %w", err)
	}
	return rec, nil
}

// PostResponse implements chatwatcher.ChatResponder, translating a chat
// watcher decision into a posted system message. Each decision is a fresh
// logical send (the watcher's own throttle already prevents redundant
// responses), so the delivery id is minted per call rather than threaded
// through from the caller.
func (p *ChatPoster) PostResponse(ctx context.Context, groupID string, decision chatwatcher.Decision) error {
	content := fmt.Sprintf("[%s] %s", decision.ResponseType, decision.Reason)
	_, err := p.PostMessage(ctx, "chatresp_"+uuid.NewString(), groupID, content, "ai", map[string]any{
		"priority":      string(decision.Priority),
		"response_type": decision.ResponseType,
	})
	return err
}
