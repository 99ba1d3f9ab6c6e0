package automationengine

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oddside/automation-runtime/internal/app/core/service"
	"github.com/oddside/automation-runtime/internal/app/domain/automation"
	"github.com/oddside/automation-runtime/internal/app/domain/event"
	"github.com/oddside/automation-runtime/internal/app/storage"
)

// ActionExecutor runs one action and reports its outcome. Implementations
// live in the delivery-adapter layer; the runner only sequences calls.
type ActionExecutor interface {
	Execute(ctx context.Context, action automation.Action, payload map[string]any, ownerID string) (message string, err error)
}

// relevanceFields are the payload keys the fan-out path checks to decide
// whether an automation's owner is a party to the event.
var relevanceFields = []string{"host_id", "from_user_id", "to_user_id", "player_id", "user_id"}

// Runner executes automations either by explicit ID or by fanning an event
// out to every matching, eligible automation.
type Runner struct {
	automations storage.Store
	runs        storage.Store
	executor    ActionExecutor
	tracer      service.Tracer
	now         func() time.Time
}

// NewRunner builds a Runner over the automations and automation-runs
// collections.
func NewRunner(automations, runs storage.Store, executor ActionExecutor) *Runner {
	return &Runner{automations: automations, runs: runs, executor: executor, tracer: service.NoopTracer, now: time.Now}
}

// WithTracer attaches an observability tracer.
func (r *Runner) WithTracer(t service.Tracer) *Runner {
	if t != nil {
		r.tracer = t
	}
	return r
}

func (r *Runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

var tokenPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// resolveParams substitutes {{var}} tokens from payload and {{user_id}}
// from ownerID. Only scalar substitutions are performed; unresolved tokens
// are left literal.
func resolveParams(params map[string]any, payload map[string]any, ownerID string) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		s, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}
		out[k] = tokenPattern.ReplaceAllStringFunc(s, func(tok string) string {
			name := strings.TrimSpace(tokenPattern.FindStringSubmatch(tok)[1])
			if name == "user_id" {
				return ownerID
			}
			if val, found := event.Event{Payload: payload}.Field(name); found {
				if scalar, ok := asScalar(val); ok {
					return scalar
				}
			}
			return tok
		})
	}
	return out
}

func asScalar(v any) (string, bool) {
	switch n := v.(type) {
	case string:
		return n, true
	case float64, int, int64, bool:
		return fmt.Sprintf("%v", n), true
	default:
		return "", false
	}
}

// isRelevant reports whether ownerID appears in any of the relevance
// fields, or the event's group scope matches an owned group.
func isRelevant(ownerID, ownerGroupID string, payload map[string]any) bool {
	for _, field := range relevanceFields {
		if v, ok := payload[field]; ok {
			if s, ok := v.(string); ok && s == ownerID {
				return true
			}
		}
	}
	if ids, ok := payload["player_ids"].([]any); ok {
		for _, id := range ids {
			if s, ok := id.(string); ok && s == ownerID {
				return true
			}
		}
	}
	if ownerGroupID != "" {
		if g, ok := payload["group_id"].(string); ok && g == ownerGroupID {
			return true
		}
	}
	return false
}

// RunResult is the runner's outcome for one automation invocation.
type RunResult struct {
	Run       automation.Run
	DryRun    bool
	Automation *automation.Automation
}

// RunByID executes (or, if dryRun, only evaluates) a single automation
// against the given event.
func (r *Runner) RunByID(ctx context.Context, automationID string, evt event.Event, dryRun bool) (*RunResult, error) {
	var a automation.Automation
	if err := r.automations.FindOne(ctx, storage.Filter{"automation_id": automationID}, &a); err != nil {
		return nil, err
	}
	return r.execute(ctx, &a, evt, dryRun)
}

// RunByTrigger fans an event out to every enabled, eligible, relevant
// automation whose trigger matches evt.EventType.
func (r *Runner) RunByTrigger(ctx context.Context, evt event.Event) ([]*RunResult, error) {
	var candidates []automation.Automation
	filter := storage.Filter{"trigger.event_type": string(evt.EventType)}
	if err := r.automations.Find(ctx, filter, nil, 0, &candidates); err != nil {
		return nil, err
	}

	var results []*RunResult
	for i := range candidates {
		a := &candidates[i]
		if !a.Eligible() {
			continue
		}
		if !isRelevant(a.UserID, a.GroupID, evt.Payload) {
			continue
		}
		res, err := r.execute(ctx, a, evt, false)
		if err != nil {
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) execute(ctx context.Context, a *automation.Automation, evt event.Event, dryRun bool) (*RunResult, error) {
	ctx, end := r.tracer.StartSpan(ctx, "automationengine.run", map[string]string{"automation_id": a.AutomationID})
	var runErr error
	defer func() { end(runErr) }()

	conditions, convErr := toConditions(a.Conditions)
	if convErr != nil {
		runErr = convErr
		return nil, convErr
	}

	summary := automation.SafelistSummary(evt.Payload)
	now := r.clock()

	if !EvaluateAll(conditions, evt.Payload) {
		run := automation.Run{RunID: uuid.NewString(), AutomationID: a.AutomationID, Status: automation.RunSkipped, Reason: "conditions_unmet", EventSummary: summary, CreatedAt: now}
		a.RecordSkip(now)
		r.persistRunAndAutomation(ctx, a, run, dryRun)
		return &RunResult{Run: run, DryRun: dryRun, Automation: a}, nil
	}

	if dryRun {
		run := automation.Run{RunID: uuid.NewString(), AutomationID: a.AutomationID, Status: automation.RunSuccess, Reason: "dry_run", EventSummary: summary, CreatedAt: now}
		return &RunResult{Run: run, DryRun: true, Automation: a}, nil
	}

	stopOnFailure := a.ExecutionOptions.StopOnFailure
	var results []automation.ActionResult
	anyFailure := false
	for i, act := range a.Actions {
		resolved := act
		resolved.Params = resolveParams(act.Params, evt.Payload, a.UserID)

		msg, err := r.executor.Execute(ctx, resolved, evt.Payload, a.UserID)
		ar := automation.ActionResult{Index: i, Type: act.Type, Success: err == nil, Message: msg}
		if err != nil {
			ar.Error = err.Error()
			anyFailure = true
		}
		results = append(results, ar)
		if err != nil && stopOnFailure {
			break
		}
	}

	status := automation.RunSuccess
	if anyFailure {
		status = automation.RunPartialFailure
		if allFailed(results) {
			status = automation.RunFailed
		}
	}

	run := automation.Run{RunID: uuid.NewString(), AutomationID: a.AutomationID, Status: status, ActionResults: results, EventSummary: summary, CreatedAt: now}
	if anyFailure {
		a.RecordFailure(now)
	} else {
		a.RecordSuccess(now)
	}
	a.LastEventID = evt.EventID
	r.persistRunAndAutomation(ctx, a, run, false)
	return &RunResult{Run: run, Automation: a}, nil
}

func allFailed(results []automation.ActionResult) bool {
	for _, r := range results {
		if r.Success {
			return false
		}
	}
	return len(results) > 0
}

func (r *Runner) persistRunAndAutomation(ctx context.Context, a *automation.Automation, run automation.Run, dryRun bool) {
	if dryRun {
		return
	}
	_ = r.runs.InsertOne(ctx, run.RunID, run)
	_ = r.automations.UpdateOne(ctx, storage.Filter{"automation_id": a.AutomationID}, storage.Update{Set: map[string]any{
		"run_count": a.RunCount, "error_count": a.ErrorCount, "skip_count": a.SkipCount,
		"consecutive_errors": a.ConsecutiveErrors, "consecutive_skips": a.ConsecutiveSkips,
		"last_run": a.LastRun, "last_run_result": a.LastRunResult, "last_event_id": a.LastEventID,
		"enabled": a.Enabled, "auto_disabled": a.AutoDisabled, "auto_disabled_reason": a.AutoDisabledReason,
	}})
}

// toConditions converts the automation's loosely-typed condition map into
// the DSL's typed Condition slice.
func toConditions(raw map[string]any) ([]Condition, error) {
	var out []Condition
	for field, v := range raw {
		clause, ok := v.(map[string]any)
		if !ok {
			continue
		}
		op, _ := clause["op"].(string)
		out = append(out, Condition{Field: field, Op: Op(op), Value: clause["value"]})
	}
	return out, nil
}
