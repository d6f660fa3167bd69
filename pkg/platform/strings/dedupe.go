// Package strings provides string list helpers shared by config parsing
// and request decoding.
package strings

import (
	"strings"
)

// DedupeTrimmed trims each value and drops empties and repeats, keeping
// first-seen order. A nil or empty input yields nil.
func DedupeTrimmed[T ~string](values []T) []T {
	var result []T
	seen := make(map[T]struct{}, len(values))
	for _, v := range values {
		trimmed := T(strings.TrimSpace(string(v)))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

// SplitList splits a comma-separated setting such as a broker list.
func SplitList(raw string) []string {
	return DedupeTrimmed(strings.Split(raw, ","))
}
