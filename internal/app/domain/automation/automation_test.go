package automation

import (
	"testing"
	"time"

	"github.com/oddside/automation-runtime/internal/apperr"
)

func validAutomation() *Automation {
	return &Automation{
		Trigger: Trigger{Kind: TriggerEventBased, EventType: EventGameEnded},
		Actions: []Action{
			{Type: ActionSendNotification, Params: map[string]any{"title": "t", "body": "b"}},
		},
		Enabled: true,
	}
}

func TestValidateRejectsTooManyActions(t *testing.T) {
	a := validAutomation()
	for i := 0; i < MaxActionsPerAutomation; i++ {
		a.Actions = append(a.Actions, Action{Type: ActionSendNotification, Params: map[string]any{"title": "t", "body": "b"}})
	}
	if err := a.Validate(); !apperr.Is(err, apperr.KindInputInvalid) {
		t.Fatalf("expected input_invalid for too many actions, got %v", err)
	}
}

func TestValidateRejectsMissingRequiredParam(t *testing.T) {
	a := validAutomation()
	a.Actions = []Action{{Type: ActionSendPaymentReminder, Params: map[string]any{}}}
	if err := a.Validate(); !apperr.Is(err, apperr.KindInputInvalid) {
		t.Fatalf("expected input_invalid for missing param, got %v", err)
	}
}

func TestValidateRejectsUnknownTriggerEventType(t *testing.T) {
	a := validAutomation()
	a.Trigger = Trigger{Kind: TriggerEventBased, EventType: "bogus"}
	if err := a.Validate(); !apperr.Is(err, apperr.KindInputInvalid) {
		t.Fatalf("expected input_invalid for unknown trigger, got %v", err)
	}
}

func TestValidateAcceptsWellFormedAutomation(t *testing.T) {
	if err := validAutomation().Validate(); err != nil {
		t.Fatalf("expected valid automation, got %v", err)
	}
}

func TestRecordFailureAutoDisablesAtThreshold(t *testing.T) {
	a := validAutomation()
	now := time.Now()
	for i := 0; i < ConsecutiveErrorsAutoDisable; i++ {
		a.RecordFailure(now)
	}
	if !a.AutoDisabled || a.Enabled {
		t.Fatalf("expected auto-disable after %d consecutive errors", ConsecutiveErrorsAutoDisable)
	}
	if a.Eligible() {
		t.Fatalf("expected auto-disabled automation to be ineligible")
	}
}

func TestRecordSuccessResetsStreaks(t *testing.T) {
	a := validAutomation()
	now := time.Now()
	a.RecordFailure(now)
	a.RecordFailure(now)
	a.RecordSuccess(now)
	if a.ConsecutiveErrors != 0 {
		t.Fatalf("expected consecutive errors reset to 0, got %d", a.ConsecutiveErrors)
	}
}

func TestHealthScoreNewAutomation(t *testing.T) {
	a := validAutomation()
	score, status := a.HealthScore()
	if score != 100 || status != HealthNew {
		t.Fatalf("expected 100/new for fresh automation, got %d/%s", score, status)
	}
}

func TestHealthScoreHighErrorRate(t *testing.T) {
	a := validAutomation()
	a.RunCount = 10
	a.ErrorCount = 6
	score, status := a.HealthScore()
	if score != 60 {
		t.Fatalf("expected score 60 (100-40), got %d", score)
	}
	if status != HealthWarning {
		t.Fatalf("expected warning status at score 60, got %s", status)
	}
}

func TestHealthScoreDisabled(t *testing.T) {
	a := validAutomation()
	a.AutoDisabled = true
	score, status := a.HealthScore()
	if score != 0 || status != HealthDisabled {
		t.Fatalf("expected 0/disabled, got %d/%s", score, status)
	}
}

func TestSafelistSummaryDropsUnlistedKeys(t *testing.T) {
	out := SafelistSummary(map[string]any{"game_id": "g1", "secret_token": "abc"})
	if _, ok := out["secret_token"]; ok {
		t.Fatalf("expected secret_token to be dropped")
	}
	if out["game_id"] != "g1" {
		t.Fatalf("expected game_id to survive safelisting")
	}
}
