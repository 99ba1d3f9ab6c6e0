package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oddside/automation-runtime/internal/app/storage"
)

// NotificationRecord is one recipient's in-app notification, grounded on
// tools/notification_sender.py's notification document shape. DeliveryID
// carries the caller-supplied idempotency key (spec §4.11): the same
// delivery_id retried after a timeout is a no-op rather than a duplicate
// send.
type NotificationRecord struct {
	NotificationID string         `json:"notification_id" bson:"notification_id"`
	DeliveryID     string         `json:"delivery_id" bson:"delivery_id"`
	UserID         string         `json:"user_id" bson:"user_id"`
	Title          string         `json:"title" bson:"title"`
	Message        string         `json:"message" bson:"message"`
	Type           string         `json:"type" bson:"type"`
	Data           map[string]any `json:"data,omitempty" bson:"data,omitempty"`
	Read           bool           `json:"read" bson:"read"`
	CreatedAt      time.Time      `json:"created_at" bson:"created_at"`
}

// RecipientResult reports one recipient's send outcome.
type RecipientResult struct {
	UserID string `json:"user_id"`
	Status string `json:"status"` // "sent", "failed", or "duplicate"
	Error  string `json:"error,omitempty"`
}

// NotificationResult summarizes a Send call across its recipients.
type NotificationResult struct {
	SentCount   int               `json:"sent_count"`
	FailedCount int               `json:"failed_count"`
	Results     []RecipientResult `json:"results"`
}

// NotificationSender stores in-app notifications, grounded on
// tools/notification_sender.py's NotificationSenderTool. Push/email fan-out
// for the same event goes through PushEscalator (internal/app/services/hostupdate)
// and EmailSender respectively; this adapter only owns the `notifications`
// collection.
type NotificationSender struct {
	notifications storage.Store
	now           func() time.Time
}

// NewNotificationSender builds a NotificationSender over the notifications
// collection.
func NewNotificationSender(notifications storage.Store) *NotificationSender {
	return &NotificationSender{notifications: notifications, now: time.Now}
}

func (n *NotificationSender) clock() time.Time {
	if n.now != nil {
		return n.now()
	}
	return time.Now()
}

// Send notifies userIDs, idempotent on deliveryID: a retried call with a
// deliveryID already recorded returns the original result without inserting
// again.
func (n *NotificationSender) Send(ctx context.Context, deliveryID string, userIDs []string, title, message, notificationType string, data map[string]any) (NotificationResult, error) {
	if deliveryID == "" {
		return NotificationResult{}, fmt.Errorf("notification send: delivery_id is required")
	}
	if len(userIDs) == 0 {
		return NotificationResult{}, fmt.Errorf("notification send: no user ids provided")
	}

	var existing []NotificationRecord
	if err := n.notifications.Find(ctx, storage.Filter{"delivery_id": deliveryID}, nil, 0, &existing); err != nil {
		return NotificationResult{}, fmt.Errorf("check existing notifications: %w", err)
	}
	if len(existing) > 0 {
		results := make([]RecipientResult, len(existing))
		for i, rec := range existing {
			results[i] = RecipientResult{UserID: rec.UserID, Status: "duplicate"}
		}
		return NotificationResult{SentCount: len(existing), Results: results}, nil
	}

	now := n.clock()
	result := NotificationResult{Results: make([]RecipientResult, 0, len(userIDs))}
	for _, userID := range userIDs {
		rec := NotificationRecord{
			NotificationID: "ntf_" + uuid.NewString(),
			DeliveryID:     deliveryID,
			UserID:         userID,
			Title:          title,
			Message:        message,
			Type:           notificationType,
			Data:           data,
			CreatedAt:      now,
		}
		if err := n.notifications.InsertOne(ctx, rec.NotificationID, rec); err != nil {
			result.FailedCount++
			result.Results = append(result.Results, RecipientResult{UserID: userID, Status: "failed", Error: err.Error()})
			continue
		}
		result.SentCount++
		result.Results = append(result.Results, RecipientResult{UserID: userID, Status: "sent"})
	}
	return result, nil
}
