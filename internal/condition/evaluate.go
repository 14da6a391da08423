package condition

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Evaluate reports whether data satisfies c. It is pure and total: malformed
// trees, unknown operators and type mismatches evaluate to false instead of
// failing, so a broken rule does not fire.
func Evaluate(c Condition, data map[string]any) (matched bool) {
	defer func() {
		if recover() != nil {
			matched = false
		}
	}()
	return eval(c, data)
}

func eval(c Condition, data map[string]any) bool {
	switch n := c.(type) {
	case FieldCondition:
		return evalField(n, data)
	case *FieldCondition:
		return n != nil && evalField(*n, data)
	case Group:
		return evalGroup(n, data)
	case *Group:
		return n != nil && evalGroup(*n, data)
	default:
		return false
	}
}

func evalGroup(g Group, data map[string]any) bool {
	switch g.Operator {
	case OpAnd:
		for _, child := range g.Conditions {
			if !eval(child, data) {
				return false
			}
		}
		return true
	case OpOr:
		for _, child := range g.Conditions {
			if eval(child, data) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func evalField(fc FieldCondition, data map[string]any) bool {
	actual, found := Lookup(data, fc.Field)

	switch fc.Operator {
	case OpEquals:
		return found && strictEqual(actual, fc.Value)
	case OpNotEquals:
		return !(found && strictEqual(actual, fc.Value))
	case OpExists:
		return found && actual != nil
	case OpContains:
		return found && contains(actual, fc.Value)
	case OpGreaterThan:
		a, okA := toNumber(actual)
		b, okB := toNumber(fc.Value)
		return found && okA && okB && a > b
	case OpLessThan:
		a, okA := toNumber(actual)
		b, okB := toNumber(fc.Value)
		return found && okA && okB && a < b
	default:
		return false
	}
}

// Lookup walks a dot-separated path through nested objects (and list indexes).
// found is false when any segment is missing or an intermediate value is null;
// a present null leaf returns (nil, true).
func Lookup(data map[string]any, path string) (value any, found bool) {
	if data == nil || path == "" {
		return nil, false
	}

	var cur any = data
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			// nil or scalar intermediate
			return nil, false
		}
	}
	return cur, true
}

func contains(actual, want any) bool {
	switch a := actual.(type) {
	case string:
		w, ok := want.(string)
		if !ok {
			return false
		}
		return strings.Contains(strings.ToLower(a), strings.ToLower(w))
	case []any:
		for _, el := range a {
			if strictEqual(el, want) {
				return true
			}
		}
		return false
	case []string:
		w, ok := want.(string)
		if !ok {
			return false
		}
		for _, el := range a {
			if el == w {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// strictEqual compares scalars by type and value. Objects and lists never
// compare equal, matching identity semantics for freshly decoded documents.
func strictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if na, ok := toNumber(a); ok {
		nb, ok := toNumber(b)
		return ok && na == nb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}

func toNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
