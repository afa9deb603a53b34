package security

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// previewLimit bounds how much of a rejected input may appear in error
// messages and logs. Full payloads are never echoed back to callers.
const previewLimit = 32

// PathSecurityError reports a rejected path. The message names the violated
// rule but never contains the full offending path.
type PathSecurityError struct {
	Reason string
}

func (e *PathSecurityError) Error() string {
	return "path security violation: " + e.Reason
}

// SanitizationError reports input rejected by the sanitizer. Context
// identifies which pattern taxonomy matched.
type SanitizationError struct {
	Context Context
	Reason  string
}

func (e *SanitizationError) Error() string {
	if e.Context == "" {
		return "sanitization failed: " + e.Reason
	}
	return fmt.Sprintf("sanitization failed (%s): %s", e.Context, e.Reason)
}

// RateLimitError reports a denied request together with the duration after
// which a retry may succeed.
type RateLimitError struct {
	Identity   string
	Resource   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s on %s: retry after %s",
		e.Identity, e.Resource, e.RetryAfter.Round(time.Millisecond))
}

// preview returns a bounded prefix of s safe to include in logs. The cut
// backs up to a rune boundary so the prefix stays valid UTF-8.
func preview(s string) string {
	if len(s) <= previewLimit {
		return s
	}
	cut := previewLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
