package routing

import (
	"strings"
)

// FailureRules is the versioned rule table for error-shaped response
// bodies. The backend contract allows soft failures returned as HTTP 200
// with an error message body, so bodies are matched against a marker
// prefix list and a phrase vocabulary. Keeping the rules in one testable
// structure keeps failure detection independent of network code.
type FailureRules struct {
	Version string `yaml:"version"`

	// A body beginning with one of these (after trimming) is a failure
	Prefixes []string `yaml:"prefixes"`

	// Case-insensitive substrings anywhere in the body
	Phrases []string `yaml:"phrases"`
}

// DefaultFailureRules returns the built-in failure detection table
func DefaultFailureRules() *FailureRules {
	return &FailureRules{
		Version: "2024-11",
		Prefixes: []string{
			"error:",
			"[error]",
			"error -",
			"failed:",
		},
		Phrases: []string{
			"service unavailable",
			"temporarily unavailable",
			"model is unavailable",
			"an error occurred",
			"internal error",
			"rate limit",
			"limit exceeded",
			"quota exceeded",
			"overloaded",
			"try again later",
			"capacity at the moment",
		},
	}
}

// Match reports whether body is error-shaped and, if so, which rule
// matched. An empty body also counts as a failure: a backend that
// answered nothing has not answered.
func (r *FailureRules) Match(body string) (string, bool) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "empty body", true
	}

	lower := strings.ToLower(trimmed)
	for _, p := range r.Prefixes {
		if strings.HasPrefix(lower, p) {
			return "prefix " + p, true
		}
	}
	for _, ph := range r.Phrases {
		if strings.Contains(lower, ph) {
			return "phrase " + ph, true
		}
	}
	return "", false
}
