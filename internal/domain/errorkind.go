package domain

import "strings"

// ErrorKind classifies a delivery failure for retry policy decisions.
type ErrorKind string

const (
	ErrorKindNetwork     ErrorKind = "NETWORK_ERROR"
	ErrorKindRateLimit   ErrorKind = "RATE_LIMIT"
	ErrorKindInvalidUser ErrorKind = "INVALID_USER"
	ErrorKindPermission  ErrorKind = "PERMISSION_ERROR"
	ErrorKindTimeout     ErrorKind = "TIMEOUT_ERROR"
	ErrorKindContent     ErrorKind = "CONTENT_ERROR"
	ErrorKindSystem      ErrorKind = "SYSTEM_ERROR"
	ErrorKindUnknown     ErrorKind = "UNKNOWN_ERROR"
)

func (k ErrorKind) String() string { return string(k) }

func (k ErrorKind) IsValid() bool {
	switch k {
	case ErrorKindNetwork, ErrorKindRateLimit, ErrorKindInvalidUser, ErrorKindPermission,
		ErrorKindTimeout, ErrorKindContent, ErrorKindSystem, ErrorKindUnknown:
		return true
	}
	return false
}

// classifyRule maps message substrings to an error kind. Rules are evaluated
// in order; the first kind with any matching pattern wins.
type classifyRule struct {
	kind     ErrorKind
	patterns []string
}

var classifyRules = []classifyRule{
	{ErrorKindNetwork, []string{"connection", "network", "dns", "socket"}},
	{ErrorKindRateLimit, []string{"rate limit", "too many requests", "429"}},
	{ErrorKindInvalidUser, []string{"invalid user", "user not found", "forbidden", "403", "404"}},
	{ErrorKindPermission, []string{"permission", "unauthorized", "401"}},
	{ErrorKindTimeout, []string{"timeout", "timed out"}},
	{ErrorKindContent, []string{"template", "content", "image", "invalid format"}},
	{ErrorKindSystem, []string{"system error", "internal error", "500", "502", "503"}},
}

// ClassifyError maps a failure message to an ErrorKind using ordered
// case-insensitive substring matching. Unrecognized messages classify as
// UNKNOWN_ERROR, which the default policy treats as non-retryable.
func ClassifyError(message string) ErrorKind {
	normalized := strings.ToLower(message)
	for _, rule := range classifyRules {
		for _, pattern := range rule.patterns {
			if strings.Contains(normalized, pattern) {
				return rule.kind
			}
		}
	}
	return ErrorKindUnknown
}
