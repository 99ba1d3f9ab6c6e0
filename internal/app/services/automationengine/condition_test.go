package automationengine

import "testing"

func TestConditionValidateBetweenRequiresTwoElements(t *testing.T) {
	c := Condition{Field: "amount", Op: OpBetween, Value: []any{1.0}}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error for malformed between")
	}
}

func TestConditionValidateExistsForbidsValue(t *testing.T) {
	c := Condition{Field: "amount", Op: OpExists, Value: 1}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error for exists with a value")
	}
}

func TestConditionEvaluateMissingFieldIsFalse(t *testing.T) {
	c := Condition{Field: "amount", Op: OpGt, Value: 10.0}
	if c.Evaluate(map[string]any{}) {
		t.Fatalf("expected missing field to evaluate false")
	}
}

func TestConditionEvaluateExists(t *testing.T) {
	c := Condition{Field: "amount", Op: OpExists}
	if !c.Evaluate(map[string]any{"amount": 5.0}) {
		t.Fatalf("expected exists to be true when field present")
	}
	if c.Evaluate(map[string]any{}) {
		t.Fatalf("expected exists to be false when field absent")
	}
}

func TestConditionEvaluateBetween(t *testing.T) {
	c := Condition{Field: "days_overdue", Op: OpBetween, Value: []any{3.0, 6.0}}
	if !c.Evaluate(map[string]any{"days_overdue": 5.0}) {
		t.Fatalf("expected 5 to be within [3,6]")
	}
	if c.Evaluate(map[string]any{"days_overdue": 10.0}) {
		t.Fatalf("expected 10 to be outside [3,6]")
	}
}

func TestConditionEvaluateContains(t *testing.T) {
	c := Condition{Field: "message", Op: OpContains, Value: "lost money"}
	if !c.Evaluate(map[string]any{"message": "I lost money last night"}) {
		t.Fatalf("expected contains match")
	}
}

func TestEvaluateAllRequiresEveryCondition(t *testing.T) {
	conditions := []Condition{
		{Field: "amount", Op: OpGt, Value: 10.0},
		{Field: "currency", Op: OpEq, Value: "usd"},
	}
	payload := map[string]any{"amount": 20.0, "currency": "usd"}
	if !EvaluateAll(conditions, payload) {
		t.Fatalf("expected all conditions to hold")
	}

	payload["currency"] = "eur"
	if EvaluateAll(conditions, payload) {
		t.Fatalf("expected conjunction to fail when one condition fails")
	}
}

func TestEvaluateAllEmptySetHolds(t *testing.T) {
	if !EvaluateAll(nil, map[string]any{}) {
		t.Fatalf("expected empty condition set to hold")
	}
}
