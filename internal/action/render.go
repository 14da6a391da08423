package action

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/condition"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Render replaces {{dotted.path}} placeholders with values from event data.
// Missing or null values render as an empty string.
func Render(tmpl string, data map[string]any) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		path := placeholder.FindStringSubmatch(m)[1]
		v, ok := condition.Lookup(data, path)
		if !ok || v == nil {
			return ""
		}
		return format(v)
	})
}

func format(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

// patientFromEvent reads the fallback patient id carried by most CRM events.
func patientFromEvent(data map[string]any) string {
	v, ok := condition.Lookup(data, "patientId")
	if !ok || v == nil {
		return ""
	}
	switch v.(type) {
	case string, float64, json.Number:
		return strings.TrimSpace(format(v))
	}
	return ""
}
