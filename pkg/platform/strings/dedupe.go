// Package strings cleans up list-valued settings.
package strings

import "strings"

// SplitList splits a comma separated value such as KAFKA_BROKERS into its
// distinct, non-blank entries.
func SplitList(raw string) []string {
	return DedupeAndTrim(strings.Split(raw, ","))
}

// DedupeAndTrim trims every entry and drops blanks and repeats, keeping the
// first occurrence order. It returns nil when nothing is left.
func DedupeAndTrim(values []string) []string {
	var out []string
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
