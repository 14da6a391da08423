// Package migrations embeds the schemas applied by the migrate command.
package migrations

import (
	_ "embed"
	"strings"
)

//go:embed 001_init.sql
var Init string

//go:embed clickhouse_001_action_logs.sql
var ClickHouse string

// Statements splits a script on ";" for drivers that run one statement per call.
func Statements(script string) []string {
	var out []string
	for _, s := range strings.Split(script, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
