// Package condition implements the rule condition tree: field comparisons
// combined with and/or groups, parsed from JSON and evaluated against event data.
package condition

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidCondition = errors.New("invalid condition")

type FieldOperator string

const (
	OpEquals      FieldOperator = "equals"
	OpNotEquals   FieldOperator = "not_equals"
	OpContains    FieldOperator = "contains"
	OpExists      FieldOperator = "exists"
	OpGreaterThan FieldOperator = "greater_than"
	OpLessThan    FieldOperator = "less_than"
)

func (o FieldOperator) Valid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpContains, OpExists, OpGreaterThan, OpLessThan:
		return true
	}
	return false
}

type GroupOperator string

const (
	OpAnd GroupOperator = "and"
	OpOr  GroupOperator = "or"
)

func (o GroupOperator) Valid() bool { return o == OpAnd || o == OpOr }

// Condition is either a FieldCondition or a Group.
type Condition interface {
	isCondition()
}

// FieldCondition compares the value at a dotted path with Value.
type FieldCondition struct {
	Field    string
	Operator FieldOperator
	Value    any
}

// Group combines child conditions with and/or.
type Group struct {
	Operator   GroupOperator
	Conditions []Condition
}

func (FieldCondition) isCondition() {}
func (Group) isCondition()          {}

// MatchAll is the condition used for rules stored without one.
var MatchAll Condition = Group{Operator: OpAnd}

type wireCondition struct {
	Field      *string           `json:"field,omitempty"`
	Operator   string            `json:"operator"`
	Value      json.RawMessage   `json:"value,omitempty"`
	Conditions []json.RawMessage `json:"conditions,omitempty"`
}

// Parse decodes a JSON condition tree, rejecting unknown operators and
// malformed nodes. An empty document or JSON null yields MatchAll.
func Parse(raw []byte) (Condition, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return MatchAll, nil
	}
	return parseNode(trimmed, "$")
}

func parseNode(raw []byte, at string) (Condition, error) {
	var w wireCondition
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w at %s: %v", ErrInvalidCondition, at, err)
	}

	// a node carrying "conditions" (even an empty list) is a group
	if w.Conditions != nil || hasKey(raw, "conditions") {
		op := GroupOperator(w.Operator)
		if !op.Valid() {
			return nil, fmt.Errorf("%w at %s: unknown group operator %q", ErrInvalidCondition, at, w.Operator)
		}
		if w.Field != nil {
			return nil, fmt.Errorf("%w at %s: group cannot have a field", ErrInvalidCondition, at)
		}
		g := Group{Operator: op, Conditions: make([]Condition, 0, len(w.Conditions))}
		for i, child := range w.Conditions {
			c, err := parseNode(child, fmt.Sprintf("%s.conditions[%d]", at, i))
			if err != nil {
				return nil, err
			}
			g.Conditions = append(g.Conditions, c)
		}
		return g, nil
	}

	if w.Field == nil || strings.TrimSpace(*w.Field) == "" {
		return nil, fmt.Errorf("%w at %s: field is required", ErrInvalidCondition, at)
	}
	op := FieldOperator(w.Operator)
	if !op.Valid() {
		return nil, fmt.Errorf("%w at %s: unknown operator %q", ErrInvalidCondition, at, w.Operator)
	}

	fc := FieldCondition{Field: *w.Field, Operator: op}
	if op == OpExists {
		return fc, nil
	}
	if w.Value == nil {
		return nil, fmt.Errorf("%w at %s: operator %s requires a value", ErrInvalidCondition, at, op)
	}
	v, err := decodeValue(w.Value)
	if err != nil {
		return nil, fmt.Errorf("%w at %s: %v", ErrInvalidCondition, at, err)
	}
	fc.Value = v
	return fc, nil
}

func hasKey(raw []byte, key string) bool {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	_, ok := m[key]
	return ok
}

// decodeValue keeps numbers as float64 so they compare with decoded payloads.
func decodeValue(raw json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// MarshalJSON renders the wire form accepted by Parse.
func (c FieldCondition) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"field":    c.Field,
		"operator": c.Operator,
	}
	if c.Operator != OpExists {
		out["value"] = c.Value
	}
	return json.Marshal(out)
}

func (g Group) MarshalJSON() ([]byte, error) {
	children := g.Conditions
	if children == nil {
		children = []Condition{}
	}
	return json.Marshal(struct {
		Operator   GroupOperator `json:"operator"`
		Conditions []Condition   `json:"conditions"`
	}{g.Operator, children})
}
