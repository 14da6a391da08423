package condition

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, doc string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(doc), &m))
	return m
}

func mustParse(t *testing.T, doc string) Condition {
	t.Helper()
	c, err := Parse([]byte(doc))
	require.NoError(t, err)
	return c
}

func TestEvaluate_ScheduledWithPatient(t *testing.T) {
	c := mustParse(t, `{
		"operator": "and",
		"conditions": [
			{"field": "status", "operator": "equals", "value": "scheduled"},
			{"field": "patientId", "operator": "exists"}
		]
	}`)

	assert.True(t, Evaluate(c, decode(t, `{"status": "scheduled", "patientId": "123"}`)))
	assert.False(t, Evaluate(c, decode(t, `{"status": "completed", "patientId": "123"}`)))
	assert.False(t, Evaluate(c, decode(t, `{"status": "scheduled"}`)))
}

func TestEvaluate_EmptyGroups(t *testing.T) {
	data := decode(t, `{"a": 1}`)

	assert.True(t, Evaluate(Group{Operator: OpAnd}, data))
	assert.True(t, Evaluate(Group{Operator: OpAnd, Conditions: []Condition{}}, nil))
	assert.False(t, Evaluate(Group{Operator: OpOr}, data))
	assert.False(t, Evaluate(Group{Operator: OpOr, Conditions: []Condition{}}, nil))
}

func TestEvaluate_Exists(t *testing.T) {
	data := decode(t, `{
		"appointment": {"provider": {"id": "p1", "room": null}, "tags": ["new"]},
		"zero": 0,
		"empty": "",
		"nothing": null
	}`)

	cases := map[string]bool{
		"appointment":                 true,
		"appointment.provider.id":     true,
		"appointment.provider.room":   false,
		"appointment.provider.shift":  false,
		"appointment.provider.id.x":   false,
		"appointment.tags.0":          true,
		"appointment.tags.1":          false,
		"zero":                        true,
		"empty":                       true,
		"nothing":                     false,
		"nothing.deeper":              false,
		"missing.appointment.deep.id": false,
	}
	for path, want := range cases {
		t.Run(path, func(t *testing.T) {
			c := FieldCondition{Field: path, Operator: OpExists}
			assert.Equal(t, want, Evaluate(c, data))
		})
	}
}

func TestEvaluate_EqualsIsStrict(t *testing.T) {
	data := decode(t, `{"count": 3, "flag": true, "code": "3", "obj": {"a": 1}, "nil": null}`)

	assert.True(t, Evaluate(FieldCondition{Field: "count", Operator: OpEquals, Value: 3.0}, data))
	assert.True(t, Evaluate(FieldCondition{Field: "count", Operator: OpEquals, Value: 3}, data))
	assert.False(t, Evaluate(FieldCondition{Field: "count", Operator: OpEquals, Value: "3"}, data))
	assert.False(t, Evaluate(FieldCondition{Field: "code", Operator: OpEquals, Value: 3.0}, data))
	assert.True(t, Evaluate(FieldCondition{Field: "flag", Operator: OpEquals, Value: true}, data))
	assert.False(t, Evaluate(FieldCondition{Field: "obj", Operator: OpEquals, Value: map[string]any{"a": 1.0}}, data))
	assert.True(t, Evaluate(FieldCondition{Field: "nil", Operator: OpEquals, Value: nil}, data))
	assert.False(t, Evaluate(FieldCondition{Field: "missing", Operator: OpEquals, Value: nil}, data))
}

func TestEvaluate_NotEquals(t *testing.T) {
	data := decode(t, `{"status": "scheduled"}`)

	assert.False(t, Evaluate(FieldCondition{Field: "status", Operator: OpNotEquals, Value: "scheduled"}, data))
	assert.True(t, Evaluate(FieldCondition{Field: "status", Operator: OpNotEquals, Value: "cancelled"}, data))
	assert.True(t, Evaluate(FieldCondition{Field: "missing", Operator: OpNotEquals, Value: "x"}, data))
}

func TestEvaluate_Contains(t *testing.T) {
	data := decode(t, `{
		"reason": "Annual PHYSICAL exam",
		"tags": ["vip", "new-patient", 7],
		"count": 12
	}`)

	t.Run("substring is case-insensitive", func(t *testing.T) {
		assert.True(t, Evaluate(FieldCondition{Field: "reason", Operator: OpContains, Value: "physical"}, data))
		assert.False(t, Evaluate(FieldCondition{Field: "reason", Operator: OpContains, Value: "dental"}, data))
	})

	t.Run("list membership is exact per element", func(t *testing.T) {
		assert.True(t, Evaluate(FieldCondition{Field: "tags", Operator: OpContains, Value: "vip"}, data))
		assert.True(t, Evaluate(FieldCondition{Field: "tags", Operator: OpContains, Value: 7.0}, data))
		assert.False(t, Evaluate(FieldCondition{Field: "tags", Operator: OpContains, Value: "new"}, data))
		assert.False(t, Evaluate(FieldCondition{Field: "tags", Operator: OpContains, Value: "VIP"}, data))
	})

	t.Run("other shapes are false", func(t *testing.T) {
		assert.False(t, Evaluate(FieldCondition{Field: "count", Operator: OpContains, Value: "1"}, data))
		assert.False(t, Evaluate(FieldCondition{Field: "reason", Operator: OpContains, Value: 1.0}, data))
		assert.False(t, Evaluate(FieldCondition{Field: "missing", Operator: OpContains, Value: "x"}, data))
	})
}

func TestEvaluate_NumericComparisons(t *testing.T) {
	data := decode(t, `{"amount": 150.5, "label": "200", "nested": {"n": -1}}`)

	assert.True(t, Evaluate(FieldCondition{Field: "amount", Operator: OpGreaterThan, Value: 100.0}, data))
	assert.False(t, Evaluate(FieldCondition{Field: "amount", Operator: OpGreaterThan, Value: 150.5}, data))
	assert.True(t, Evaluate(FieldCondition{Field: "amount", Operator: OpLessThan, Value: 151}, data))
	assert.True(t, Evaluate(FieldCondition{Field: "nested.n", Operator: OpLessThan, Value: 0.0}, data))

	// strings are never coerced
	assert.False(t, Evaluate(FieldCondition{Field: "label", Operator: OpGreaterThan, Value: 100.0}, data))
	assert.False(t, Evaluate(FieldCondition{Field: "amount", Operator: OpGreaterThan, Value: "100"}, data))
	assert.False(t, Evaluate(FieldCondition{Field: "missing", Operator: OpLessThan, Value: 1.0}, data))
}

func TestEvaluate_OrAndNesting(t *testing.T) {
	c := mustParse(t, `{
		"operator": "or",
		"conditions": [
			{"field": "type", "operator": "equals", "value": "urgent"},
			{
				"operator": "and",
				"conditions": [
					{"field": "visit.kind", "operator": "equals", "value": "follow-up"},
					{"field": "visit.daysSince", "operator": "greater_than", "value": 30}
				]
			}
		]
	}`)

	assert.True(t, Evaluate(c, decode(t, `{"type": "urgent"}`)))
	assert.True(t, Evaluate(c, decode(t, `{"type": "routine", "visit": {"kind": "follow-up", "daysSince": 45}}`)))
	assert.False(t, Evaluate(c, decode(t, `{"type": "routine", "visit": {"kind": "follow-up", "daysSince": 10}}`)))
	assert.False(t, Evaluate(c, decode(t, `{}`)))
}

func TestEvaluate_InvalidShapesAreFalse(t *testing.T) {
	data := decode(t, `{"status": "scheduled"}`)

	assert.False(t, Evaluate(nil, data))
	assert.False(t, Evaluate((*Group)(nil), data))
	assert.False(t, Evaluate((*FieldCondition)(nil), data))
	assert.False(t, Evaluate(FieldCondition{Field: "status", Operator: "matches", Value: "s.*"}, data))
	assert.False(t, Evaluate(Group{Operator: "xor", Conditions: []Condition{MatchAll}}, data))
	assert.False(t, Evaluate(Group{Operator: OpAnd, Conditions: []Condition{nil}}, data))
	assert.False(t, Evaluate(FieldCondition{Field: "", Operator: OpExists}, data))
}

func TestEvaluate_IsPure(t *testing.T) {
	c := mustParse(t, `{"operator": "and", "conditions": [
		{"field": "tags", "operator": "contains", "value": "vip"},
		{"field": "score", "operator": "greater_than", "value": 5}
	]}`)
	data := decode(t, `{"tags": ["vip"], "score": 9}`)
	before, err := json.Marshal(data)
	require.NoError(t, err)

	first := Evaluate(c, data)
	second := Evaluate(c, data)

	assert.Equal(t, first, second)
	after, err := json.Marshal(data)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}
