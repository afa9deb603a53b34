// Package security is the safety boundary between untrusted,
// natural-language-derived input and the agent's tools.
//
// # Overview
//
// Three independent components, sharing only the error-reporting
// convention:
//   - PathValidator: canonicalizes a user-supplied path and authorizes it
//     against an allow-list/deny-list policy (path traversal, CWE-22).
//   - Sanitizer: detects or neutralizes injection-style content in strings
//     destined for SQL, shell, path, HTML, or code contexts (CWE-78,
//     CWE-79, CWE-89); also sanitizes JSON documents.
//   - RateLimiter: bounds request frequency per (identity, resource) pair
//     with a hybrid token-bucket + sliding-window scheme.
//
// # Usage
//
// Path validation before any filesystem access:
//
//	pathVal, err := security.NewPathValidator(security.PathConfig{
//	    AllowedBasePaths: []string{workDir},
//	})
//	safe, err := pathVal.Validate(userInput, security.OpRead)
//
// String sanitization before input reaches an interpreter:
//
//	san, err := security.NewSanitizer(security.SanitizerConfig{})
//	out, err := san.SanitizeString(query, security.ContextSQL, false)
//
// Rate limiting in front of tool dispatch:
//
//	limiter := security.NewRateLimiter(security.RateLimitConfig{
//	    RequestsPerMinute: 60, BurstSize: 10,
//	})
//	allowed, retryAfter := limiter.Check(sessionID, toolName, 1)
//
// # Design Philosophy
//
// All components fail closed: any detected risk is rejected rather than
// passed through best-effort, except the documented permissive-stripping
// branches (non-strict shell/path/html contexts). Errors carry a structured
// reason sufficient for an actionable caller-facing message but never echo
// the full raw payload (a bounded preview at most). Pattern sets are
// compiled once at construction and fail fast on malformed input. No
// component retries internally; honoring RetryAfter is the caller's
// responsibility.
//
// Denials both log (audit trail, with a security_event attribute) and
// return errors. This is a deliberate exception to the "handle errors once"
// rule: removing either side would create a security gap.
//
// # Concurrency
//
// All three components are synchronous and safe for concurrent use. The
// RateLimiter serializes per-key state under one mutex per instance; the
// PathValidator guards its result cache the same way. Distinct identities
// are fully isolated from each other.
package security
