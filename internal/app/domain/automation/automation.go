// Package automation defines the User-Automation entity: its trigger,
// actions, conditions, and health scoring, independent of how it is built
// or run.
package automation

import (
	"fmt"
	"time"

	"github.com/oddside/automation-runtime/internal/apperr"
)

// TriggerKind distinguishes event-driven from schedule-driven triggers.
type TriggerKind string

const (
	TriggerEventBased TriggerKind = "event-based"
	TriggerSchedule    TriggerKind = "schedule"
)

// EventTriggerType enumerates the closed set of event-based trigger types.
type EventTriggerType string

const (
	EventGameEnded          EventTriggerType = "game_ended"
	EventGameCreated        EventTriggerType = "game_created"
	EventSettlementGenerated EventTriggerType = "settlement_generated"
	EventPaymentDue          EventTriggerType = "payment_due"
	EventPaymentOverdue      EventTriggerType = "payment_overdue"
	EventPaymentReceived     EventTriggerType = "payment_received"
	EventPlayerConfirmed     EventTriggerType = "player_confirmed"
	EventAllPlayersConfirmed EventTriggerType = "all_players_confirmed"
)

var validEventTriggerTypes = map[EventTriggerType]bool{
	EventGameEnded: true, EventGameCreated: true, EventSettlementGenerated: true,
	EventPaymentDue: true, EventPaymentOverdue: true, EventPaymentReceived: true,
	EventPlayerConfirmed: true, EventAllPlayersConfirmed: true,
}

// MinScheduleIntervalMinutes is the minimum effective interval a cron
// schedule may resolve to.
const MinScheduleIntervalMinutes = 15

// MaxDistinctMinutesPerHour bounds how many distinct minute-of-hour values a
// cron expression's minute field may enumerate.
const MaxDistinctMinutesPerHour = 4

// Trigger is a tagged variant: event-based or schedule.
type Trigger struct {
	Kind         TriggerKind      `json:"kind" bson:"kind"`
	EventType    EventTriggerType `json:"event_type,omitempty" bson:"event_type,omitempty"`
	CronExpr     string           `json:"cron_expr,omitempty" bson:"cron_expr,omitempty"`
}

// Validate checks the trigger against the allowlist and, for schedules, that
// a cron expression is present. Cron field parsing and the frequency
// constraint (minimum interval, distinct-minutes cap) live in the builder's
// ValidateSchedule, which owns the cron library call; this only validates
// shape that can be judged without parsing.
func (t Trigger) Validate() error {
	switch t.Kind {
	case TriggerEventBased:
		if !validEventTriggerTypes[t.EventType] {
			return apperr.New(apperr.KindInputInvalid, fmt.Sprintf("unknown event trigger type %q", t.EventType))
		}
		return nil
	case TriggerSchedule:
		if t.CronExpr == "" {
			return apperr.New(apperr.KindInputInvalid, "schedule trigger requires a cron expression")
		}
		return nil
	default:
		return apperr.New(apperr.KindInputInvalid, fmt.Sprintf("unknown trigger kind %q", t.Kind))
	}
}

// ActionType enumerates the closed set of action types.
type ActionType string

const (
	ActionSendNotification   ActionType = "send_notification"
	ActionSendEmail          ActionType = "send_email"
	ActionSendPaymentReminder ActionType = "send_payment_reminder"
	ActionAutoRSVP           ActionType = "auto_rsvp"
	ActionCreateGame         ActionType = "create_game"
	ActionGenerateSummary    ActionType = "generate_summary"
)

// requiredParams lists the params each action type must carry.
var requiredParams = map[ActionType][]string{
	ActionSendNotification:    {"title", "body"},
	ActionSendEmail:           {"subject", "body"},
	ActionSendPaymentReminder: {"ledger_id"},
	ActionAutoRSVP:            {"game_id", "response"},
	ActionCreateGame:          {"group_id"},
	ActionGenerateSummary:     {"game_id"},
}

// MinActionTimeoutMS and MaxActionTimeoutMS bound Action.TimeoutMS.
const (
	MinActionTimeoutMS = 1000
	MaxActionTimeoutMS = 60000
)

// Action is one step of an automation's effect.
type Action struct {
	Type      ActionType     `json:"type" bson:"type"`
	Params    map[string]any `json:"params" bson:"params"`
	TimeoutMS int            `json:"timeout_ms,omitempty" bson:"timeout_ms,omitempty"`
}

// Validate checks the action type, required params, and timeout bound.
func (a Action) Validate() error {
	required, ok := requiredParams[a.Type]
	if !ok {
		return apperr.New(apperr.KindInputInvalid, fmt.Sprintf("unknown action type %q", a.Type))
	}
	for _, key := range required {
		if _, present := a.Params[key]; !present {
			return apperr.New(apperr.KindInputInvalid, fmt.Sprintf("action %s missing required param %q", a.Type, key))
		}
	}
	if a.TimeoutMS != 0 && (a.TimeoutMS < MinActionTimeoutMS || a.TimeoutMS > MaxActionTimeoutMS) {
		return apperr.New(apperr.KindInputInvalid, fmt.Sprintf("action timeout_ms %d out of range [%d,%d]", a.TimeoutMS, MinActionTimeoutMS, MaxActionTimeoutMS))
	}
	return nil
}

// MaxActionsPerAutomation bounds the number of actions an automation may run.
const MaxActionsPerAutomation = 5

// MaxAutomationsPerOwner bounds how many automations a single owner may have.
const MaxAutomationsPerOwner = 20

// ConsecutiveErrorsAutoDisable is the threshold at which an automation is
// auto-disabled for repeated failure.
const ConsecutiveErrorsAutoDisable = 5

// ExecutionOptions configures a run's failure/timeout behaviour.
type ExecutionOptions struct {
	StopOnFailure   bool `json:"stop_on_failure" bson:"stop_on_failure"`
	ActionTimeoutMS int  `json:"action_timeout_ms" bson:"action_timeout_ms"`
	MaxDurationMS   int  `json:"max_duration_ms" bson:"max_duration_ms"`
}

const (
	MinActionTimeoutOptionMS = 1000
	MaxActionTimeoutOptionMS = 60000
	MinMaxDurationMS         = 5000
	MaxMaxDurationMS         = 300000
)

// Validate checks ExecutionOptions' bounded fields.
func (o ExecutionOptions) Validate() error {
	if o.ActionTimeoutMS != 0 && (o.ActionTimeoutMS < MinActionTimeoutOptionMS || o.ActionTimeoutMS > MaxActionTimeoutOptionMS) {
		return apperr.New(apperr.KindInputInvalid, fmt.Sprintf("action_timeout_ms %d out of range [%d,%d]", o.ActionTimeoutMS, MinActionTimeoutOptionMS, MaxActionTimeoutOptionMS))
	}
	if o.MaxDurationMS != 0 && (o.MaxDurationMS < MinMaxDurationMS || o.MaxDurationMS > MaxMaxDurationMS) {
		return apperr.New(apperr.KindInputInvalid, fmt.Sprintf("max_duration_ms %d out of range [%d,%d]", o.MaxDurationMS, MinMaxDurationMS, MaxMaxDurationMS))
	}
	return nil
}

// AuditEvent is one append-only entry in an automation's event log.
type AuditEvent struct {
	At      time.Time `json:"at" bson:"at"`
	Kind    string    `json:"kind" bson:"kind"`
	Message string    `json:"message,omitempty" bson:"message,omitempty"`
}

// Automation is a user-owned rule: a trigger, up to 5 actions, a condition
// set, and execution bookkeeping.
type Automation struct {
	AutomationID        string            `json:"automation_id" bson:"automation_id"`
	UserID               string            `json:"user_id" bson:"user_id"`
	Name                 string            `json:"name" bson:"name"`
	Description          string            `json:"description,omitempty" bson:"description,omitempty"`
	Trigger              Trigger           `json:"trigger" bson:"trigger"`
	Actions              []Action          `json:"actions" bson:"actions"`
	Conditions           map[string]any    `json:"conditions,omitempty" bson:"conditions,omitempty"`
	ExecutionOptions      ExecutionOptions  `json:"execution_options" bson:"execution_options"`
	GroupID              string            `json:"group_id,omitempty" bson:"group_id,omitempty"`
	Enabled              bool              `json:"enabled" bson:"enabled"`
	AutoDisabled          bool              `json:"auto_disabled" bson:"auto_disabled"`
	AutoDisabledReason    string            `json:"auto_disabled_reason,omitempty" bson:"auto_disabled_reason,omitempty"`
	RunCount             int               `json:"run_count" bson:"run_count"`
	ErrorCount           int               `json:"error_count" bson:"error_count"`
	SkipCount            int               `json:"skip_count" bson:"skip_count"`
	ConsecutiveErrors     int               `json:"consecutive_errors" bson:"consecutive_errors"`
	ConsecutiveSkips      int               `json:"consecutive_skips" bson:"consecutive_skips"`
	LastRun              *time.Time        `json:"last_run,omitempty" bson:"last_run,omitempty"`
	LastRunResult        string            `json:"last_run_result,omitempty" bson:"last_run_result,omitempty"`
	LastEventID          string            `json:"last_event_id,omitempty" bson:"last_event_id,omitempty"`
	Timezone             string            `json:"timezone" bson:"timezone"`
	EngineVersion        string            `json:"engine_version" bson:"engine_version"`
	Events               []AuditEvent      `json:"events,omitempty" bson:"events,omitempty"`
}

// Eligible reports whether the automation is allowed to run at all.
func (a *Automation) Eligible() bool {
	return a.Enabled && !a.AutoDisabled
}

// Validate enforces the builder-time structural invariants that do not
// require an owner's existing automation count (callers must check
// MaxAutomationsPerOwner separately, since that needs a store lookup).
func (a *Automation) Validate() error {
	if len(a.Actions) == 0 {
		return apperr.New(apperr.KindInputInvalid, "automation requires at least one action")
	}
	if len(a.Actions) > MaxActionsPerAutomation {
		return apperr.New(apperr.KindInputInvalid, fmt.Sprintf("automation has %d actions, max is %d", len(a.Actions), MaxActionsPerAutomation))
	}
	if err := a.Trigger.Validate(); err != nil {
		return err
	}
	for i, act := range a.Actions {
		if err := act.Validate(); err != nil {
			return apperr.Wrap(apperr.KindInputInvalid, fmt.Sprintf("action[%d]", i), err)
		}
	}
	return a.ExecutionOptions.Validate()
}

// RecordSuccess resets failure streaks and bumps run_count.
func (a *Automation) RecordSuccess(at time.Time) {
	a.RunCount++
	a.ConsecutiveErrors = 0
	a.ConsecutiveSkips = 0
	a.LastRun = &at
	a.LastRunResult = "success"
}

// RecordFailure bumps error counters and auto-disables past the threshold.
func (a *Automation) RecordFailure(at time.Time) {
	a.RunCount++
	a.ErrorCount++
	a.ConsecutiveErrors++
	a.ConsecutiveSkips = 0
	a.LastRun = &at
	a.LastRunResult = "failed"
	if a.ConsecutiveErrors >= ConsecutiveErrorsAutoDisable {
		a.Enabled = false
		a.AutoDisabled = true
		a.AutoDisabledReason = fmt.Sprintf("auto-disabled after %d consecutive errors", a.ConsecutiveErrors)
	}
}

// RecordSkip bumps skip counters without touching error streaks.
func (a *Automation) RecordSkip(at time.Time) {
	a.SkipCount++
	a.ConsecutiveSkips++
	a.LastRun = &at
	a.LastRunResult = "skipped"
}

// HealthStatus classifies a computed health score.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
	HealthDisabled HealthStatus = "disabled"
	HealthNew      HealthStatus = "new"
)

// HealthScore computes the 0-100 score and status described by the builder's
// read-time health model.
func (a *Automation) HealthScore() (int, HealthStatus) {
	if a.AutoDisabled || !a.Enabled {
		return 0, HealthDisabled
	}
	if a.RunCount == 0 {
		return 100, HealthNew
	}

	score := 100
	errorRate := float64(a.ErrorCount) / float64(a.RunCount)
	totalOutcomes := a.RunCount + a.SkipCount
	skipRate := 0.0
	if totalOutcomes > 0 {
		skipRate = float64(a.SkipCount) / float64(totalOutcomes)
	}

	switch {
	case errorRate > 0.50:
		score -= 40
	case errorRate > 0.20:
		score -= 20
	}
	if skipRate > 0.80 {
		score -= 25
	}
	if a.ConsecutiveErrors >= 3 {
		score -= 30
	}
	if a.ConsecutiveSkips >= 20 {
		score -= 20
	}
	if a.LastRunResult == "failed" {
		score -= 10
	}
	if score < 0 {
		score = 0
	}

	var status HealthStatus
	switch {
	case score >= 80:
		status = HealthHealthy
	case score >= 50:
		status = HealthWarning
	default:
		status = HealthCritical
	}
	return score, status
}

// RunStatus is the outcome of one automation-run.
type RunStatus string

const (
	RunSuccess        RunStatus = "success"
	RunPartialFailure RunStatus = "partial_failure"
	RunSkipped        RunStatus = "skipped"
	RunFailed         RunStatus = "failed"
)

// ActionResult records one action's execution outcome within a run.
type ActionResult struct {
	Index   int        `json:"index" bson:"index"`
	Type    ActionType `json:"type" bson:"type"`
	Success bool       `json:"success" bson:"success"`
	Message string     `json:"message,omitempty" bson:"message,omitempty"`
	Error   string      `json:"error,omitempty" bson:"error,omitempty"`
}

// SafelistedSummaryKeys are the only payload keys a run's event_summary may
// carry — enforced to prevent free-form payload leakage into the audit log.
var SafelistedSummaryKeys = map[string]bool{
	"game_id": true, "group_id": true, "trigger_type": true,
	"amount": true, "days_overdue": true, "event_type": true,
}

// SafelistSummary filters an arbitrary payload down to the safelisted keys.
func SafelistSummary(payload map[string]any) map[string]any {
	out := make(map[string]any, len(SafelistedSummaryKeys))
	for k, v := range payload {
		if SafelistedSummaryKeys[k] {
			out[k] = v
		}
	}
	return out
}

// Run is the persisted record of one execution (or skip) of an automation.
type Run struct {
	RunID         string         `json:"run_id" bson:"run_id"`
	AutomationID  string         `json:"automation_id" bson:"automation_id"`
	Status        RunStatus      `json:"status" bson:"status"`
	Reason        string         `json:"reason,omitempty" bson:"reason,omitempty"`
	ActionResults []ActionResult `json:"action_results,omitempty" bson:"action_results,omitempty"`
	EventSummary  map[string]any `json:"event_summary,omitempty" bson:"event_summary,omitempty"`
	CreatedAt     time.Time      `json:"created_at" bson:"created_at"`
}
