// Package chatwatcher decides whether the system should respond to a group
// chat message: never to its own or system messages, always on a direct
// mention, otherwise throttled per group and gated by intent keywords.
package chatwatcher

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oddside/automation-runtime/pkg/logger"
)

// Priority ranks how strongly a message calls for a response.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
	PriorityNone   Priority = "none"
)

// Sender distinguishes who produced a message; the watcher never responds
// to its own messages or to system messages.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderSystem    Sender = "system"
	SenderAssistant Sender = "assistant"
)

// Throttle and context-accumulation parameters, mirrored from the product's
// chat-watcher defaults.
const (
	ThrottleWindow            = 5 * time.Minute
	MinMessagesBeforeResponse = 2
)

// Message is one incoming group chat message to be evaluated.
type Message struct {
	GroupID string
	UserID  string
	Content string
	Sender  Sender
}

// Decision is the watcher's verdict on whether, why, and how urgently to
// respond.
type Decision struct {
	Respond      bool
	Reason       string
	Priority     Priority
	ResponseType string
}

func noRespond(reason string) Decision {
	return Decision{Respond: false, Reason: reason, Priority: PriorityNone}
}

// directMentionTriggers fire regardless of throttle; they're the one case
// the product treats as the user talking directly to ODDSIDE.
var directMentionTriggers = []string{
	"@oddside", "hey oddside", "oddside,", "oddside!", "oddside?", "yo oddside",
}

var schedulingKeywords = []string{
	"game this", "game on", "game night", "play this",
	"poker this", "poker on", "when are we", "when's the next",
	"set up a game", "create a game", "schedule", "plan a game",
	"friday night", "saturday night", "this weekend",
	"who's free", "who's down", "who wants to play",
	"should we play", "let's play", "wanna play",
}

var availabilityKeywords = []string{
	"i'm free", "i'm available", "i can make it", "i'm in",
	"i'm out", "can't make it", "not available", "busy",
	"count me in", "count me out", "i'm down",
	"what time", "what day", "works for me",
}

var paymentKeywords = []string{
	"owe", "owes", "pay", "paid", "settle", "settlement",
	"venmo", "zelle", "cash app", "transfer", "send me",
	"how much", "balance", "debt",
}

var gameChatKeywords = []string{
	"poker", "game", "play", "cards", "hand", "bluff",
	"all-in", "fold", "raise", "call", "chips", "buy-in",
	"cash out", "last game", "good game", "gg",
}

func containsAny(content string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(content, kw) {
			return true
		}
	}
	return false
}

// groupState is the per-group throttle/context the watcher owns exclusively
// (§5 shared-resource policy: in-memory caches belong to one component).
type groupState struct {
	lastResponse    time.Time
	messagesSinceAI int
}

// Watcher holds the per-group response state across calls to ShouldRespond.
type Watcher struct {
	mu     sync.Mutex
	groups map[string]*groupState
	now    func() time.Time
}

// New builds a Watcher.
func New() *Watcher {
	return &Watcher{groups: make(map[string]*groupState), now: time.Now}
}

func (w *Watcher) clock() time.Time {
	if w.now != nil {
		return w.now()
	}
	return time.Now()
}

func (w *Watcher) stateFor(groupID string) *groupState {
	s, ok := w.groups[groupID]
	if !ok {
		s = &groupState{}
		w.groups[groupID] = s
	}
	return s
}

// ShouldRespond decides whether to respond to msg. chatEnabled is the
// group-level setting that can disable all chat responses; callers pass
// directory.Group.EngagementEnabled (or a dedicated chat flag, once the
// product exposes one under the same settings document).
func (w *Watcher) ShouldRespond(msg Message, chatEnabled bool) Decision {
	w.mu.Lock()
	defer w.mu.Unlock()

	if msg.Sender == SenderAssistant {
		w.stateFor(msg.GroupID).messagesSinceAI = 0
		return noRespond("assistant message")
	}
	if msg.Sender == SenderSystem {
		return noRespond("system message")
	}

	state := w.stateFor(msg.GroupID)
	state.messagesSinceAI++

	if !chatEnabled {
		return noRespond("chat disabled for this group")
	}

	content := strings.ToLower(msg.Content)
	throttled := w.isThrottled(msg.GroupID)

	if containsAny(content, directMentionTriggers) {
		w.recordResponse(msg.GroupID)
		return Decision{Respond: true, Reason: "direct mention", Priority: PriorityHigh, ResponseType: "direct_response"}
	}

	if containsAny(content, schedulingKeywords) && !throttled {
		w.recordResponse(msg.GroupID)
		return Decision{Respond: true, Reason: "scheduling discussion", Priority: PriorityHigh, ResponseType: "game_suggestion"}
	}

	if containsAny(content, availabilityKeywords) && !throttled {
		w.recordResponse(msg.GroupID)
		return Decision{Respond: true, Reason: "availability mention", Priority: PriorityMedium, ResponseType: "availability_tracking"}
	}

	if containsAny(content, paymentKeywords) && !throttled {
		w.recordResponse(msg.GroupID)
		return Decision{Respond: true, Reason: "payment discussion", Priority: PriorityMedium, ResponseType: "payment_check"}
	}

	if containsAny(content, gameChatKeywords) && !throttled && state.messagesSinceAI >= MinMessagesBeforeResponse {
		w.recordResponse(msg.GroupID)
		return Decision{Respond: true, Reason: "general game chat", Priority: PriorityLow, ResponseType: "casual_chat"}
	}

	return noRespond("not relevant")
}

func (w *Watcher) isThrottled(groupID string) bool {
	state := w.stateFor(groupID)
	if state.lastResponse.IsZero() {
		return false
	}
	return w.clock().Sub(state.lastResponse) < ThrottleWindow
}

func (w *Watcher) recordResponse(groupID string) {
	state := w.stateFor(groupID)
	state.lastResponse = w.clock()
	state.messagesSinceAI = 0
}

// ChatResponder posts a response decision into the group's chat. Real
// channel adapters (in-app, push-backed chat) implement this; LoggerChatResponder
// is the staging-safe fallback.
type ChatResponder interface {
	PostResponse(ctx context.Context, groupID string, decision Decision) error
}

// LoggerChatResponder records every response decision through the structured
// logger instead of posting to a real chat channel, the same staging-safe
// fallback pattern as delivery.LoggerExecutor and engagementjobs.LoggerNudgeExecutor.
type LoggerChatResponder struct {
	log *logger.Logger
}

// NewLoggerChatResponder builds a LoggerChatResponder that writes through log.
func NewLoggerChatResponder(log *logger.Logger) *LoggerChatResponder {
	return &LoggerChatResponder{log: log}
}

// PostResponse implements ChatResponder.
func (r *LoggerChatResponder) PostResponse(ctx context.Context, groupID string, decision Decision) error {
	r.log.WithField("group_id", groupID).
		WithField("reason", decision.Reason).
		WithField("priority", string(decision.Priority)).
		WithField("response_type", decision.ResponseType).
		Info("chat watcher responding")
	return nil
}
