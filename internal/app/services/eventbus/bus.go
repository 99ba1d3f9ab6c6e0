// Package eventbus implements the in-process publish/dispatch core every
// subsystem routes domain events through: handlers register per event type,
// each emit persists one event-log record, and a failing handler never
// prevents its siblings from running.
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oddside/automation-runtime/internal/app/domain/event"
	"github.com/oddside/automation-runtime/internal/app/storage"
)

// Handler processes one delivered event. A returned error is logged and
// swallowed; the bus does not retry — durable intent belongs in the job
// queue.
type Handler func(ctx context.Context, evt event.Event) error

// Seen tracks event IDs a handler has already processed, so redelivery (a
// retry at a higher layer, or a process restart mid-dispatch) is a no-op.
type Seen interface {
	// MarkIfNew records handlerName+eventID as seen and reports whether it
	// was new (true) or already recorded (false).
	MarkIfNew(ctx context.Context, handlerName, eventID string) (bool, error)
}

// Bus dispatches events to registered handlers and persists an event log.
type Bus struct {
	mu       sync.RWMutex
	handlers map[event.Type][]namedHandler
	events   storage.Store
	seen     Seen
	log      *logrus.Entry
	now      func() time.Time
}

type namedHandler struct {
	name string
	fn   Handler
}

// New builds a Bus backed by the given event log store. seen may be nil, in
// which case idempotent short-circuiting is skipped (handlers are expected
// to be idempotent on their own, e.g. via a natural key).
func New(events storage.Store, seen Seen, log *logrus.Entry) *Bus {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Bus{
		handlers: make(map[event.Type][]namedHandler),
		events:   events,
		seen:     seen,
		log:      log,
		now:      time.Now,
	}
}

// Subscribe registers a named handler for eventType. Handlers for the same
// type run in registration order.
func (b *Bus) Subscribe(eventType event.Type, name string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], namedHandler{name: name, fn: fn})
}

// Emit tags payload with event_id/event_type if absent, persists one event
// log record, then runs every handler registered for eventType sequentially.
// It returns once all handlers have run to completion or failure; handler
// errors are logged, not propagated.
func (b *Bus) Emit(ctx context.Context, eventType event.Type, payload map[string]any) (event.Event, error) {
	if payload == nil {
		payload = make(map[string]any)
	}
	eventID, _ := payload["event_id"].(string)
	if eventID == "" {
		eventID = uuid.NewString()
		payload["event_id"] = eventID
	}
	if _, ok := payload["event_type"]; !ok {
		payload["event_type"] = string(eventType)
	}

	evt := event.Event{
		EventID:   eventID,
		EventType: eventType,
		Payload:   payload,
		Timestamp: b.now(),
	}

	if b.events != nil {
		if err := b.events.InsertOne(ctx, eventID, evt); err != nil {
			b.log.WithError(err).WithField("event_id", eventID).Warn("event log persist failed")
		}
	}

	b.mu.RLock()
	handlers := append([]namedHandler(nil), b.handlers[eventType]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatchOne(ctx, h, evt)
	}

	return evt, nil
}

func (b *Bus) dispatchOne(ctx context.Context, h namedHandler, evt event.Event) {
	entry := b.log.WithFields(logrus.Fields{
		"event_id":   evt.EventID,
		"event_type": evt.EventType,
		"handler":    h.name,
	})

	if b.seen != nil {
		isNew, err := b.seen.MarkIfNew(ctx, h.name, evt.EventID)
		if err != nil {
			entry.WithError(err).Warn("idempotency check failed; dispatching anyway")
		} else if !isNew {
			entry.Debug("event already processed by this handler, skipping")
			return
		}
	}

	defer func() {
		if r := recover(); r != nil {
			entry.Errorf("handler panicked: %v", r)
		}
	}()

	if err := h.fn(ctx, evt); err != nil {
		entry.WithError(err).Warn("event handler failed")
	}
}
