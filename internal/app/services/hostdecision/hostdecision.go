// Package hostdecision implements the host decision queue: pending
// approvals (join requests, buy-ins, cash-outs, game-end, chip
// corrections) that let the automation runtime queue an action for a human
// host instead of acting unattended. Grounded on host_decision.py.
package hostdecision

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oddside/automation-runtime/internal/app/domain/directory"
	"github.com/oddside/automation-runtime/internal/app/services/hostupdate"
	"github.com/oddside/automation-runtime/internal/app/storage"
	"github.com/oddside/automation-runtime/pkg/logger"
)

// Type enumerates the closed set of decisions a host can be asked to
// approve, mirroring host_decision.py's decision_type enum.
type Type string

const (
	TypeJoinRequest    Type = "join_request"
	TypeBuyIn          Type = "buy_in"
	TypeCashOut        Type = "cash_out"
	TypeEndGame        Type = "end_game"
	TypeChipCorrection Type = "chip_correction"
)

// Status is a decision's place in its pending/approved/rejected/expired
// lifecycle.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// DefaultExpiry matches host_decision.py's expires_minutes default of 30.
const DefaultExpiry = 30 * time.Minute

// Decision is one pending (or resolved) host approval.
type Decision struct {
	DecisionID      string         `json:"decision_id" bson:"decision_id"`
	HostID          string         `json:"host_id" bson:"host_id"`
	GameID          string         `json:"game_id" bson:"game_id"`
	GroupID         string         `json:"group_id,omitempty" bson:"group_id,omitempty"`
	DecisionType    Type           `json:"decision_type" bson:"decision_type"`
	Context         map[string]any `json:"context,omitempty" bson:"context,omitempty"`
	Recommendation  string         `json:"recommendation,omitempty" bson:"recommendation,omitempty"`
	PlayerName      string         `json:"player_name,omitempty" bson:"player_name,omitempty"`
	Status          Status         `json:"status" bson:"status"`
	RejectionReason string         `json:"rejection_reason,omitempty" bson:"rejection_reason,omitempty"`
	CreatedAt       time.Time      `json:"created_at" bson:"created_at"`
	ExpiresAt       time.Time      `json:"expires_at" bson:"expires_at"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty" bson:"processed_at,omitempty"`
}

// ActionResult is what came of executing an approved decision.
type ActionResult struct {
	Action string         `json:"action"`
	Detail map[string]any `json:"detail,omitempty"`
}

// ActionExecutor carries out the effect of an approved decision — adding a
// player, crediting a buy-in, settling a cash-out, ending a game,
// correcting a chip count. This runtime's directory package is read-only
// (see its package doc), so mutating game_nights itself is this executor's
// job, not the queue's; a real executor plugs into whichever subsystem owns
// game state, and LoggerActionExecutor is the staging-safe fallback, the
// same pattern as delivery.LoggerExecutor.
type ActionExecutor interface {
	Execute(ctx context.Context, decision Decision) (ActionResult, error)
}

// LoggerActionExecutor records every approved action through the structured
// logger instead of mutating real game state.
type LoggerActionExecutor struct {
	log *logger.Logger
}

// NewLoggerActionExecutor builds a LoggerActionExecutor that writes through log.
func NewLoggerActionExecutor(log *logger.Logger) *LoggerActionExecutor {
	return &LoggerActionExecutor{log: log}
}

// Execute implements ActionExecutor.
func (e *LoggerActionExecutor) Execute(ctx context.Context, decision Decision) (ActionResult, error) {
	e.log.WithField("decision_id", decision.DecisionID).
		WithField("decision_type", string(decision.DecisionType)).
		WithField("game_id", decision.GameID).
		Info("executing approved host decision")
	return ActionResult{Action: string(decision.DecisionType) + "_logged", Detail: decision.Context}, nil
}

// BulkFailure records one decision ID's failure during a bulk approve.
type BulkFailure struct {
	DecisionID string
	Error      string
}

// Queue manages the host decision collection, grounded on
// host_decision.py's HostDecisionTool. updates is optional (nil-safe) — a
// caller that doesn't want a host-update-feed entry per decision can omit
// it, the same optional-dependency pattern feedbackpipeline.Pipeline uses
// for its LLM classifier.
type Queue struct {
	decisions storage.Store
	profiles  storage.Store
	executor  ActionExecutor
	updates   *hostupdate.Channel
	now       func() time.Time
}

// New builds a Queue.
func New(decisions, profiles storage.Store, executor ActionExecutor, updates *hostupdate.Channel) *Queue {
	return &Queue{decisions: decisions, profiles: profiles, executor: executor, updates: updates, now: time.Now}
}

func (q *Queue) clock() time.Time {
	if q.now != nil {
		return q.now()
	}
	return time.Now()
}

// QueueDecision stores a pending decision for a host to approve or reject,
// grounded on _queue_decision. expiresIn <= 0 uses DefaultExpiry.
func (q *Queue) QueueDecision(ctx context.Context, hostID, gameID, groupID string, decisionType Type, decisionContext map[string]any, recommendation string, expiresIn time.Duration) (Decision, error) {
	if hostID == "" || gameID == "" || decisionType == "" {
		return Decision{}, fmt.Errorf("host_id, game_id, and decision_type are required")
	}
	if expiresIn <= 0 {
		expiresIn = DefaultExpiry
	}

	now := q.clock()
	decision := Decision{
		DecisionID:     uuid.NewString(),
		HostID:         hostID,
		GameID:         gameID,
		GroupID:        groupID,
		DecisionType:   decisionType,
		Context:        decisionContext,
		Recommendation: recommendation,
		Status:         StatusPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(expiresIn),
	}

	if playerID, ok := decisionContext["player_id"].(string); ok && playerID != "" && q.profiles != nil {
		var profile directory.Profile
		if err := q.profiles.FindOne(ctx, storage.Filter{"user_id": playerID}, &profile); err == nil {
			decision.PlayerName = profile.Name
		}
	}

	if err := q.decisions.InsertOne(ctx, decision.DecisionID, decision); err != nil {
		return Decision{}, fmt.Errorf("insert host decision: %w", err)
	}

	if q.updates != nil && groupID != "" {
		title, message := notificationCopy(decisionType, decisionContext, decision.PlayerName)
		if _, err := q.updates.Send(ctx, groupID, hostID, hostupdate.TypeAIAction, title, message,
			map[string]any{"decision_id": decision.DecisionID, "decision_type": string(decisionType)}, hostupdate.PriorityNormal, false); err != nil {
			return decision, fmt.Errorf("notify host of queued decision: %w", err)
		}
	}

	return decision, nil
}

func notificationCopy(decisionType Type, decisionContext map[string]any, playerName string) (string, string) {
	player := playerName
	if player == "" {
		player = "A player"
	}
	titles := map[Type]string{
		TypeJoinRequest:    "Join Request",
		TypeBuyIn:          "Buy-In Request",
		TypeCashOut:        "Cash-Out Request",
		TypeEndGame:        "End Game Request",
		TypeChipCorrection: "Chip Correction Needed",
	}
	title, ok := titles[decisionType]
	if !ok {
		title = "Host Decision Needed"
	}

	switch decisionType {
	case TypeJoinRequest:
		return title, fmt.Sprintf("%s wants to join the game", player)
	case TypeBuyIn:
		return title, fmt.Sprintf("%s requested a $%v buy-in", player, decisionContext["amount"])
	case TypeCashOut:
		return title, fmt.Sprintf("%s wants to cash out %v chips", player, decisionContext["chips"])
	case TypeEndGame:
		return title, "Game end requested"
	case TypeChipCorrection:
		return title, fmt.Sprintf("Chip correction needed for %s", player)
	default:
		return title, "Action requires your approval"
	}
}

// grouped buckets decisions by type for display, grounded on _get_pending's
// grouped dict.
type grouped map[Type][]Decision

// Pending returns unexpired pending decisions for a host and/or game,
// newest first, along with a per-type grouping.
func (q *Queue) Pending(ctx context.Context, hostID, gameID string) ([]Decision, grouped, error) {
	filter := storage.Filter{"status": string(StatusPending)}
	if hostID != "" {
		filter["host_id"] = hostID
	}
	if gameID != "" {
		filter["game_id"] = gameID
	}

	var decisions []Decision
	if err := q.decisions.Find(ctx, filter, &storage.Sort{Field: "created_at", Desc: true}, 50, &decisions); err != nil {
		return nil, nil, fmt.Errorf("list pending host decisions: %w", err)
	}

	now := q.clock()
	var unexpired []Decision
	byType := grouped{}
	for _, d := range decisions {
		if d.ExpiresAt.Before(now) {
			continue
		}
		unexpired = append(unexpired, d)
		byType[d.DecisionType] = append(byType[d.DecisionType], d)
	}
	return unexpired, byType, nil
}

// Approve marks a decision approved and runs its executor, grounded on
// _approve.
func (q *Queue) Approve(ctx context.Context, decisionID string) (ActionResult, error) {
	var decision Decision
	if err := q.decisions.FindOne(ctx, storage.Filter{"decision_id": decisionID, "status": string(StatusPending)}, &decision); err != nil {
		return ActionResult{}, fmt.Errorf("decision not found or already processed: %w", err)
	}

	now := q.clock()
	err := q.decisions.UpdateOne(ctx, storage.Filter{"decision_id": decisionID}, storage.Update{
		Set: map[string]any{"status": string(StatusApproved), "processed_at": now},
	})
	if err != nil {
		return ActionResult{}, fmt.Errorf("mark decision approved: %w", err)
	}

	result, err := q.executor.Execute(ctx, decision)
	if err != nil {
		return ActionResult{}, fmt.Errorf("execute approved decision: %w", err)
	}
	return result, nil
}

// Reject marks a decision rejected, grounded on _reject.
func (q *Queue) Reject(ctx context.Context, decisionID, reason string) error {
	var decision Decision
	if err := q.decisions.FindOne(ctx, storage.Filter{"decision_id": decisionID, "status": string(StatusPending)}, &decision); err != nil {
		return fmt.Errorf("decision not found or already processed: %w", err)
	}

	now := q.clock()
	err := q.decisions.UpdateOne(ctx, storage.Filter{"decision_id": decisionID}, storage.Update{
		Set: map[string]any{"status": string(StatusRejected), "rejection_reason": reason, "processed_at": now},
	})
	if err != nil {
		return fmt.Errorf("mark decision rejected: %w", err)
	}
	return nil
}

// BulkApprove approves a batch of decisions, continuing past individual
// failures, grounded on _bulk_approve.
func (q *Queue) BulkApprove(ctx context.Context, decisionIDs []string) (approved []string, failed []BulkFailure) {
	for _, id := range decisionIDs {
		if _, err := q.Approve(ctx, id); err != nil {
			failed = append(failed, BulkFailure{DecisionID: id, Error: err.Error()})
			continue
		}
		approved = append(approved, id)
	}
	return approved, failed
}

// ExpireOld transitions overdue pending decisions to expired, grounded on
// _expire_old.
func (q *Queue) ExpireOld(ctx context.Context) (int64, error) {
	var pending []Decision
	if err := q.decisions.Find(ctx, storage.Filter{"status": string(StatusPending)}, nil, 0, &pending); err != nil {
		return 0, fmt.Errorf("list pending host decisions: %w", err)
	}

	now := q.clock()
	var expired int64
	for _, d := range pending {
		if !d.ExpiresAt.Before(now) {
			continue
		}
		err := q.decisions.UpdateOne(ctx, storage.Filter{"decision_id": d.DecisionID}, storage.Update{
			Set: map[string]any{"status": string(StatusExpired), "processed_at": now},
		})
		if err != nil {
			return expired, fmt.Errorf("expire decision %s: %w", d.DecisionID, err)
		}
		expired++
	}
	return expired, nil
}
