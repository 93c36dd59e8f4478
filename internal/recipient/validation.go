package recipient

import (
	"regexp"
	"strings"
)

// addressPattern matches something@something.something with no whitespace
var addressPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsValidAddress reports whether s looks like an email address after trimming.
func IsValidAddress(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	return addressPattern.MatchString(s)
}

// Filter trims values and keeps only the ones that look like email addresses,
// preserving their order. With dedupe set, repeated addresses are dropped
// (case-insensitive, first occurrence wins).
func Filter(values []string, dedupe bool) []string {
	out := make([]string, 0, len(values))
	var seen map[string]struct{}
	if dedupe {
		seen = make(map[string]struct{}, len(values))
	}

	for _, v := range values {
		v = strings.TrimSpace(v)
		if !IsValidAddress(v) {
			continue
		}
		if dedupe {
			key := strings.ToLower(v)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, v)
	}

	return out
}
