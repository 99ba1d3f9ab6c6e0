package automationengine

import (
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"

	"github.com/oddside/automation-runtime/internal/apperr"
)

// Op is one condition-DSL operator.
type Op string

const (
	OpEq         Op = "eq"
	OpNeq        Op = "neq"
	OpGt         Op = "gt"
	OpGte        Op = "gte"
	OpLt         Op = "lt"
	OpLte        Op = "lte"
	OpIn         Op = "in"
	OpNotIn      Op = "not_in"
	OpExists     Op = "exists"
	OpNotExists  Op = "not_exists"
	OpContains   Op = "contains"
	OpStartsWith Op = "starts_with"
	OpBetween    Op = "between"
	OpAnyOf      Op = "any_of"
)

// Condition is one clause of the automation's condition set: "field" is a
// dotted payload path resolved with jsonpath against the event payload.
type Condition struct {
	Field string `json:"field" bson:"field"`
	Op    Op     `json:"op" bson:"op"`
	Value any    `json:"value,omitempty" bson:"value,omitempty"`
}

// Validate enforces the builder-time shape rules for each operator: between
// needs a 2-element [min,max]; in/not_in/any_of need arrays; contains/
// starts_with need strings; exists/not_exists forbid a value.
func (c Condition) Validate() error {
	switch c.Op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte:
		return nil
	case OpBetween:
		arr, ok := c.Value.([]any)
		if !ok || len(arr) != 2 {
			return apperr.New(apperr.KindInputInvalid, fmt.Sprintf("condition %q: between requires a two-element [min,max]", c.Field))
		}
		return nil
	case OpIn, OpNotIn, OpAnyOf:
		if _, ok := c.Value.([]any); !ok {
			return apperr.New(apperr.KindInputInvalid, fmt.Sprintf("condition %q: %s requires an array value", c.Field, c.Op))
		}
		return nil
	case OpContains, OpStartsWith:
		if _, ok := c.Value.(string); !ok {
			return apperr.New(apperr.KindInputInvalid, fmt.Sprintf("condition %q: %s requires a string value", c.Field, c.Op))
		}
		return nil
	case OpExists, OpNotExists:
		if c.Value != nil {
			return apperr.New(apperr.KindInputInvalid, fmt.Sprintf("condition %q: %s forbids a value field", c.Field, c.Op))
		}
		return nil
	default:
		return apperr.New(apperr.KindInputInvalid, fmt.Sprintf("condition %q: unknown operator %q", c.Field, c.Op))
	}
}

// resolve looks up Field in payload via jsonpath, treating the field as a
// relative dotted path rooted at "$.".
func resolve(field string, payload map[string]any) (any, bool) {
	path := "$." + strings.TrimPrefix(field, "$.")
	v, err := jsonpath.Get(path, map[string]any(payload))
	if err != nil {
		return nil, false
	}
	return v, true
}

// Evaluate reports whether the condition holds against payload. A missing
// field makes any non-exists-family condition evaluate to false.
func (c Condition) Evaluate(payload map[string]any) bool {
	v, found := resolve(c.Field, payload)
	switch c.Op {
	case OpExists:
		return found
	case OpNotExists:
		return !found
	}
	if !found {
		return false
	}

	switch c.Op {
	case OpEq:
		return equalLoose(v, c.Value)
	case OpNeq:
		return !equalLoose(v, c.Value)
	case OpGt, OpGte, OpLt, OpLte:
		vf, vok := asFloat(v)
		wf, wok := asFloat(c.Value)
		if !vok || !wok {
			return false
		}
		switch c.Op {
		case OpGt:
			return vf > wf
		case OpGte:
			return vf >= wf
		case OpLt:
			return vf < wf
		default:
			return vf <= wf
		}
	case OpBetween:
		arr, ok := c.Value.([]any)
		if !ok || len(arr) != 2 {
			return false
		}
		vf, vok := asFloat(v)
		lo, lok := asFloat(arr[0])
		hi, hok := asFloat(arr[1])
		return vok && lok && hok && vf >= lo && vf <= hi
	case OpIn, OpAnyOf:
		arr, ok := c.Value.([]any)
		if !ok {
			return false
		}
		for _, item := range arr {
			if equalLoose(v, item) {
				return true
			}
		}
		return false
	case OpNotIn:
		arr, ok := c.Value.([]any)
		if !ok {
			return false
		}
		for _, item := range arr {
			if equalLoose(v, item) {
				return false
			}
		}
		return true
	case OpContains:
		vs, vok := v.(string)
		ws, wok := c.Value.(string)
		return vok && wok && strings.Contains(vs, ws)
	case OpStartsWith:
		vs, vok := v.(string)
		ws, wok := c.Value.(string)
		return vok && wok && strings.HasPrefix(vs, ws)
	default:
		return false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func equalLoose(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return a == b
}

// EvaluateAll reports whether every condition in the set holds (logical
// AND). An empty set always holds.
func EvaluateAll(conditions []Condition, payload map[string]any) bool {
	for _, c := range conditions {
		if !c.Evaluate(payload) {
			return false
		}
	}
	return true
}
