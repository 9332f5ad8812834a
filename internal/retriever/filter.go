package retriever

import (
	"fmt"
	"strings"
)

// substringKeys are matched case-insensitively as substrings; every other key must match exactly.
var substringKeys = map[string]bool{
	"filename": true,
	"source":   true,
	"title":    true,
	"path":     true,
}

// Match reports whether meta satisfies every filter. A missing key fails the filter.
// List values (work_types, norm_codes) match when any element matches.
func Match(meta map[string]any, filters map[string]string) bool {
	for key, want := range filters {
		v, ok := meta[key]
		if !ok || !matchValue(key, v, want) {
			return false
		}
	}
	return true
}

func matchValue(key string, v any, want string) bool {
	switch list := v.(type) {
	case []string:
		for _, s := range list {
			if matchScalar(key, s, want) {
				return true
			}
		}
		return false
	case []any:
		for _, s := range list {
			if matchScalar(key, fmt.Sprint(s), want) {
				return true
			}
		}
		return false
	default:
		return matchScalar(key, fmt.Sprint(v), want)
	}
}

func matchScalar(key, got, want string) bool {
	if substringKeys[key] {
		return strings.Contains(strings.ToLower(got), strings.ToLower(want))
	}
	return got == want
}
