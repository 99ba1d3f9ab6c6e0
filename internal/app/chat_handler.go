package app

import (
	"context"

	"github.com/oddside/automation-runtime/internal/app/domain/directory"
	"github.com/oddside/automation-runtime/internal/app/domain/event"
	"github.com/oddside/automation-runtime/internal/app/services/chatwatcher"
	"github.com/oddside/automation-runtime/internal/app/storage"
)

// handleGroupMessage adapts a group_message event into a chatwatcher.Message,
// looks up the group's engagement flag, and posts through responder whenever
// the watcher decides to respond.
func handleGroupMessage(watcher *chatwatcher.Watcher, groups storage.Store, responder chatwatcher.ChatResponder) func(ctx context.Context, evt event.Event) error {
	return func(ctx context.Context, evt event.Event) error {
		groupID := stringField(evt.Payload, "group_id")

		msg := chatwatcher.Message{
			GroupID: groupID,
			UserID:  stringField(evt.Payload, "user_id"),
			Content: stringField(evt.Payload, "content"),
			Sender:  chatwatcher.Sender(stringField(evt.Payload, "sender")),
		}
		if msg.Sender == "" {
			msg.Sender = chatwatcher.SenderUser
		}

		chatEnabled := true
		var group directory.Group
		if err := groups.FindOne(ctx, storage.Filter{"group_id": groupID}, &group); err == nil {
			chatEnabled = group.EngagementEnabled
		}

		decision := watcher.ShouldRespond(msg, chatEnabled)
		if !decision.Respond {
			return nil
		}
		return responder.PostResponse(ctx, groupID, decision)
	}
}
