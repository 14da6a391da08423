package util

import (
	"regexp"
	"strings"
)

var nonDialable = regexp.MustCompile(`[^\d\+]+`)

// NormalizePhone tries to normalize user input into E.164-like format.
// countryCode (digits only, e.g. "1") is applied to national numbers.
func NormalizePhone(raw, countryCode string) string {
	s := nonDialable.ReplaceAllString(strings.TrimSpace(raw), "")
	if s == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(s, "+"):
		return "+" + strings.ReplaceAll(s[1:], "+", "")
	case strings.HasPrefix(s, "00"):
		return "+" + s[2:]
	case countryCode != "" && strings.HasPrefix(s, countryCode) && len(s) > 10:
		return "+" + s
	case strings.HasPrefix(s, "0") && len(s) == 11:
		return "+" + countryCode + s[1:]
	case len(s) == 10:
		return "+" + countryCode + s
	}

	return s
}
