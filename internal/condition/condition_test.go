package condition

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Shapes(t *testing.T) {
	t.Run("empty document matches all", func(t *testing.T) {
		for _, doc := range []string{"", "  ", "null"} {
			c, err := Parse([]byte(doc))
			require.NoError(t, err)
			assert.Equal(t, MatchAll, c)
		}
	})

	t.Run("field condition", func(t *testing.T) {
		c, err := Parse([]byte(`{"field": "a.b", "operator": "greater_than", "value": 4}`))
		require.NoError(t, err)
		assert.Equal(t, FieldCondition{Field: "a.b", Operator: OpGreaterThan, Value: 4.0}, c)
	})

	t.Run("exists needs no value", func(t *testing.T) {
		c, err := Parse([]byte(`{"field": "patientId", "operator": "exists"}`))
		require.NoError(t, err)
		assert.Equal(t, FieldCondition{Field: "patientId", Operator: OpExists}, c)
	})

	t.Run("explicit null value is kept", func(t *testing.T) {
		c, err := Parse([]byte(`{"field": "cancelledAt", "operator": "equals", "value": null}`))
		require.NoError(t, err)
		assert.Equal(t, FieldCondition{Field: "cancelledAt", Operator: OpEquals, Value: nil}, c)
	})

	t.Run("nested groups", func(t *testing.T) {
		c, err := Parse([]byte(`{"operator": "or", "conditions": [
			{"operator": "and", "conditions": []},
			{"field": "x", "operator": "exists"}
		]}`))
		require.NoError(t, err)

		g, ok := c.(Group)
		require.True(t, ok)
		assert.Equal(t, OpOr, g.Operator)
		require.Len(t, g.Conditions, 2)
		assert.Equal(t, Group{Operator: OpAnd, Conditions: []Condition{}}, g.Conditions[0])
	})

	t.Run("null conditions list is an empty group", func(t *testing.T) {
		c, err := Parse([]byte(`{"operator": "or", "conditions": null}`))
		require.NoError(t, err)
		assert.Equal(t, Group{Operator: OpOr, Conditions: []Condition{}}, c)
	})
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":               `{"field":`,
		"array root":             `[]`,
		"unknown field operator": `{"field": "a", "operator": "regex", "value": "x"}`,
		"unknown group operator": `{"operator": "xor", "conditions": []}`,
		"missing field":          `{"operator": "equals", "value": 1}`,
		"blank field":            `{"field": " ", "operator": "exists"}`,
		"missing value":          `{"field": "a", "operator": "equals"}`,
		"group with field":       `{"field": "a", "operator": "and", "conditions": []}`,
		"bad nested child":       `{"operator": "and", "conditions": [{"field": "a", "operator": "like", "value": 1}]}`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalidCondition)
		})
	}
}

func TestParse_ErrorNamesLocation(t *testing.T) {
	_, err := Parse([]byte(`{"operator": "and", "conditions": [{"field": "ok", "operator": "exists"}, {"field": "a", "operator": "like", "value": 1}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$.conditions[1]")
}

func TestMarshal_RoundTrip(t *testing.T) {
	tree := Group{Operator: OpAnd, Conditions: []Condition{
		FieldCondition{Field: "status", Operator: OpEquals, Value: "scheduled"},
		FieldCondition{Field: "patientId", Operator: OpExists},
		Group{Operator: OpOr},
	}}

	raw, err := json.Marshal(tree)
	require.NoError(t, err)
	assert.JSONEq(t, `{"operator":"and","conditions":[
		{"field":"status","operator":"equals","value":"scheduled"},
		{"field":"patientId","operator":"exists"},
		{"operator":"or","conditions":[]}
	]}`, string(raw))

	back, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, Group{Operator: OpAnd, Conditions: []Condition{
		FieldCondition{Field: "status", Operator: OpEquals, Value: "scheduled"},
		FieldCondition{Field: "patientId", Operator: OpExists},
		Group{Operator: OpOr, Conditions: []Condition{}},
	}}, back)
}
