package automationengine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oddside/automation-runtime/internal/apperr"
	"github.com/oddside/automation-runtime/internal/app/domain/automation"
	"github.com/oddside/automation-runtime/internal/app/storage"
)

// Policy is consulted at build time (create/update) before a definition is
// persisted; the automation policy engine implements it.
type Policy interface {
	CheckBuild(ctx context.Context, a *automation.Automation) error
}

// Builder provides CRUD over user automations, enforcing the structural
// invariants from the data model (action/owner caps, condition shape, cron
// frequency) and delegating business-policy checks to Policy.
type Builder struct {
	store  storage.Store
	policy Policy
	now    func() time.Time
}

// NewBuilder constructs a Builder over the automations collection store.
func NewBuilder(store storage.Store, policy Policy) *Builder {
	return &Builder{store: store, policy: policy, now: time.Now}
}

func (b *Builder) clock() time.Time {
	if b.now != nil {
		return b.now()
	}
	return time.Now()
}

// Create validates, policy-checks, snapshots the owner timezone, and
// persists a new automation.
func (b *Builder) Create(ctx context.Context, a *automation.Automation, ownerTimezone, engineVersion string) (*automation.Automation, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := b.validateConditionDSL(a); err != nil {
		return nil, err
	}

	count, err := b.store.CountDocuments(ctx, storage.Filter{"user_id": a.UserID})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExternalUnavailable, "count existing automations", err)
	}
	if count >= automation.MaxAutomationsPerOwner {
		return nil, apperr.New(apperr.KindInputInvalid, fmt.Sprintf("owner already has %d automations, max is %d", count, automation.MaxAutomationsPerOwner))
	}

	if b.policy != nil {
		if err := b.policy.CheckBuild(ctx, a); err != nil {
			return nil, err
		}
	}

	if a.AutomationID == "" {
		a.AutomationID = uuid.NewString()
	}
	a.Timezone = ownerTimezone
	a.EngineVersion = engineVersion
	a.Enabled = true
	a.Events = append(a.Events, automation.AuditEvent{At: b.clock(), Kind: "created"})

	if err := b.store.InsertOne(ctx, a.AutomationID, a); err != nil {
		return nil, apperr.Wrap(apperr.KindExternalUnavailable, "persist automation", err)
	}
	return a, nil
}

// Update re-validates the whole definition and re-runs the build-time
// policy check, then replaces the stored fields that are safe to edit
// in place (trigger, actions, conditions, options, name/description).
func (b *Builder) Update(ctx context.Context, automationID string, mutate func(*automation.Automation)) (*automation.Automation, error) {
	var existing automation.Automation
	if err := b.store.FindOne(ctx, storage.Filter{"automation_id": automationID}, &existing); err != nil {
		return nil, err
	}
	mutate(&existing)

	if err := existing.Validate(); err != nil {
		return nil, err
	}
	if err := b.validateConditionDSL(&existing); err != nil {
		return nil, err
	}
	if b.policy != nil {
		if err := b.policy.CheckBuild(ctx, &existing); err != nil {
			return nil, err
		}
	}
	existing.Events = append(existing.Events, automation.AuditEvent{At: b.clock(), Kind: "updated"})

	update := storage.Update{Set: map[string]any{
		"name": existing.Name, "description": existing.Description,
		"trigger": existing.Trigger, "actions": existing.Actions,
		"conditions": existing.Conditions, "execution_options": existing.ExecutionOptions,
		"events": existing.Events,
	}}
	if err := b.store.UpdateOne(ctx, storage.Filter{"automation_id": automationID}, update); err != nil {
		return nil, apperr.Wrap(apperr.KindExternalUnavailable, "persist automation update", err)
	}
	return &existing, nil
}

// Toggle flips enabled and clears auto-disable state when re-enabling.
func (b *Builder) Toggle(ctx context.Context, automationID string, enabled bool) error {
	set := map[string]any{"enabled": enabled}
	if enabled {
		set["auto_disabled"] = false
		set["auto_disabled_reason"] = ""
		set["consecutive_errors"] = 0
	}
	return b.store.UpdateOne(ctx, storage.Filter{"automation_id": automationID}, storage.Update{Set: set})
}

// Delete removes an automation permanently.
func (b *Builder) Delete(ctx context.Context, automationID string) error {
	return b.store.DeleteOne(ctx, storage.Filter{"automation_id": automationID})
}

// List returns up to limit automations owned by userID, most recently
// created first.
func (b *Builder) List(ctx context.Context, userID string, limit int) ([]automation.Automation, error) {
	var out []automation.Automation
	err := b.store.Find(ctx, storage.Filter{"user_id": userID}, nil, limit, &out)
	return out, err
}

// validateConditionDSL parses a.Conditions (keyed by field name to a
// {op, value} clause) and checks each clause's shape with Condition.Validate,
// then, for schedule triggers, runs ValidateSchedule on the cron expression.
// Condition keys are not checked against the fields the trigger's event
// carries.
func (b *Builder) validateConditionDSL(a *automation.Automation) error {
	for field, raw := range a.Conditions {
		clause, ok := raw.(map[string]any)
		if !ok {
			return apperr.New(apperr.KindInputInvalid, fmt.Sprintf("condition %q must be an object", field))
		}
		opRaw, _ := clause["op"].(string)
		c := Condition{Field: field, Op: Op(opRaw), Value: clause["value"]}
		if err := c.Validate(); err != nil {
			return err
		}
	}
	if a.Trigger.Kind == automation.TriggerSchedule {
		if _, err := ValidateSchedule(a.Trigger.CronExpr); err != nil {
			return err
		}
	}
	return nil
}
