// Package config handles rehearse.yaml and .env loading.
package config

import (
	"os"
	"regexp"
	"strings"
)

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} in input with values from
// the process environment.
//
// ${VAR} expands to the value, or to "" if unset. ${VAR:-default} expands
// to default when VAR is unset or empty. Missing values surface later, when
// the consumer rejects them (e.g. an empty api.base_url).
func ExpandEnv(input string) string {
	return ExpandEnvFunc(input, os.LookupEnv)
}

// ExpandEnvFunc is ExpandEnv with a custom variable lookup.
func ExpandEnvFunc(input string, lookup func(string) (string, bool)) string {
	matches := envVarPattern.FindAllStringSubmatchIndex(input, -1)
	if len(matches) == 0 {
		return input
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(input[last:m[0]])
		last = m[1]

		name := input[m[2]:m[3]]
		if value, ok := lookup(name); ok && value != "" {
			b.WriteString(value)
			continue
		}
		// m[6:8] is the default group, -1 when absent.
		if m[6] >= 0 {
			b.WriteString(input[m[6]:m[7]])
		}
	}
	b.WriteString(input[last:])
	return b.String()
}
