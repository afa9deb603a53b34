package security

import (
	"encoding/json"
	"fmt"
	"go/parser"
	"go/token"
	"log/slog"
	"net/mail"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// Context selects which pattern taxonomy and escaping policy
// SanitizeString applies.
type Context string

// Sanitization contexts.
const (
	ContextSQL     Context = "sql"
	ContextShell   Context = "shell"
	ContextPath    Context = "path"
	ContextHTML    Context = "html"
	ContextGeneral Context = "general"
	ContextCode    Context = "code"
)

// DefaultMaxInputLength is the ceiling applied when SanitizerConfig.MaxLength
// is zero.
const DefaultMaxInputLength = 10000

// shellMetachars is the fixed set stripped from shell-context input that
// passed the pattern check.
const shellMetachars = ";|&`$<>(){}[]!#"

// urlSchemeBlacklist lists schemes SanitizeURL always rejects.
var urlSchemeBlacklist = []string{"javascript", "vbscript", "data", "file"}

// SanitizerConfig configures a Sanitizer. The zero value yields a sanitizer
// with secure defaults: HTML disallowed, Unicode allowed, 10k length ceiling.
type SanitizerConfig struct {
	// MaxLength rejects longer inputs. Zero means DefaultMaxInputLength.
	MaxLength int

	// AllowHTML controls the html/general contexts: when false all input is
	// entity-escaped; when true XSS patterns raise and surviving markup is
	// stripped of scripts and event handlers.
	AllowHTML bool

	// AllowUnicode controls normalization: when true input is NFKC
	// normalized; when false non-ASCII bytes are dropped.
	AllowUnicode bool

	// CustomPatterns are additional regexes unioned into the strict pass.
	// Malformed patterns fail construction.
	CustomPatterns []string
}

// Sanitizer detects or neutralizes injection-style content in strings
// destined for SQL, shell, path, HTML, or code interpreters. Pattern sets
// are compiled once at construction and shared read-only; the sanitizer is
// safe for concurrent use.
type Sanitizer struct {
	maxLength    int
	allowHTML    bool
	allowUnicode bool
	custom       *patternSet
}

// NewSanitizer creates a Sanitizer, compiling any custom patterns and
// failing fast on a malformed one.
func NewSanitizer(cfg SanitizerConfig) (*Sanitizer, error) {
	custom, err := compilePatterns("custom", cfg.CustomPatterns)
	if err != nil {
		return nil, err
	}

	maxLen := cfg.MaxLength
	if maxLen <= 0 {
		maxLen = DefaultMaxInputLength
	}

	return &Sanitizer{
		maxLength:    maxLen,
		allowHTML:    cfg.AllowHTML,
		allowUnicode: cfg.AllowUnicode,
		custom:       custom,
	}, nil
}

// SanitizeString runs input through the pipeline for the given context:
// length check, Unicode normalization, then the context-specific pass.
// Detected injection shapes return a *SanitizationError; the permissive
// branches (shell/path/html stripping) neutralize instead of raising.
//
// With strict set, the union of all pattern sets is re-run over the result
// and any remaining match raises, regardless of context.
func (s *Sanitizer) SanitizeString(input string, sctx Context, strict bool) (string, error) {
	if len(input) > s.maxLength {
		return "", &SanitizationError{
			Context: sctx,
			Reason:  fmt.Sprintf("input exceeds maximum length %d", s.maxLength),
		}
	}

	if s.allowUnicode {
		input = norm.NFKC.String(input)
	} else {
		input = dropNonASCII(input)
	}

	out, err := s.sanitizeForContext(input, sctx)
	if err != nil {
		return "", err
	}

	if strict {
		for _, set := range s.unionSets() {
			if pattern, ok := set.match(out); ok {
				slog.Warn("strict pass rejected input",
					"taxonomy", set.name,
					"pattern", pattern,
					"input_preview", preview(out),
					"security_event", "strict_sanitization_violation")
				return "", &SanitizationError{
					Context: sctx,
					Reason:  "strict mode: " + set.name + " pattern matched",
				}
			}
		}
	}

	return out, nil
}

func (s *Sanitizer) sanitizeForContext(input string, sctx Context) (string, error) {
	switch sctx {
	case ContextSQL:
		if pattern, ok := sqlPatterns.match(input); ok {
			s.warnMatch(sctx, "sql", pattern, input)
			return "", &SanitizationError{Context: sctx, Reason: "SQL injection pattern detected"}
		}
		return strings.ReplaceAll(input, "'", "''"), nil

	case ContextShell:
		if pattern, ok := shellPatterns.match(input); ok {
			s.warnMatch(sctx, "shell", pattern, input)
			return "", &SanitizationError{Context: sctx, Reason: "shell injection pattern detected"}
		}
		return stripRunes(input, shellMetachars), nil

	case ContextPath:
		if pattern, ok := traversalPatterns.match(input); ok {
			s.warnMatch(sctx, "traversal", pattern, input)
			return "", &SanitizationError{Context: sctx, Reason: "path traversal pattern detected"}
		}
		// Tilde first: removing it can join two dots into a fresh "..".
		out := strings.ReplaceAll(input, "~", "")
		return strings.ReplaceAll(out, "..", ""), nil

	case ContextHTML, ContextGeneral:
		if !s.allowHTML {
			return html.EscapeString(input), nil
		}
		if pattern, ok := xssPatterns.match(input); ok {
			s.warnMatch(sctx, "xss", pattern, input)
			return "", &SanitizationError{Context: sctx, Reason: "XSS pattern detected"}
		}
		// No pattern matched, but scripts and event handlers are stripped
		// anyway as defense in depth.
		return stripActiveHTML(input), nil

	case ContextCode:
		if pattern, ok := goDangerousPatterns.match(input); ok {
			s.warnMatch(sctx, "go-code", pattern, input)
			return "", &SanitizationError{Context: sctx, Reason: "dangerous code construct detected"}
		}
		if pattern, ok := pythonDangerousPatterns.match(input); ok {
			s.warnMatch(sctx, "python-code", pattern, input)
			return "", &SanitizationError{Context: sctx, Reason: "dangerous code construct detected"}
		}
		return input, nil

	default:
		// Unknown contexts fail closed.
		return "", &SanitizationError{Context: sctx, Reason: "unsupported sanitization context"}
	}
}

// SanitizeJSON parses data as JSON and recursively sanitizes every string
// leaf with the general context. Non-string leaves pass through unchanged;
// nesting is preserved (key order is not guaranteed). Invalid JSON raises.
func (s *Sanitizer) SanitizeJSON(data []byte) ([]byte, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &SanitizationError{Reason: "invalid JSON: " + err.Error()}
	}

	cleaned, err := s.sanitizeValue(doc)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(cleaned)
	if err != nil {
		return nil, &SanitizationError{Reason: "re-encoding JSON: " + err.Error()}
	}
	return out, nil
}

// sanitizeValue walks a decoded JSON value, sanitizing string leaves.
func (s *Sanitizer) sanitizeValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return s.SanitizeString(val, ContextGeneral, false)
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, item := range val {
			cleaned, err := s.sanitizeValue(item)
			if err != nil {
				return nil, err
			}
			result[k] = cleaned
		}
		return result, nil
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			cleaned, err := s.sanitizeValue(item)
			if err != nil {
				return nil, err
			}
			result[i] = cleaned
		}
		return result, nil
	default:
		// Numbers, booleans, null pass through unchanged.
		return v, nil
	}
}

// SanitizeCode statically screens source code before it is stored or shown.
// Go source is screened against dangerous-call patterns (process spawning,
// unsafe, dynamic loading) and must parse with go/parser. Python source is
// screened against its own pattern list (dynamic execution, subprocess,
// writable file handles, pickle) and a structural delimiter check. Other
// languages fail closed.
func (s *Sanitizer) SanitizeCode(code, language string) (string, error) {
	if len(code) > s.maxLength {
		return "", &SanitizationError{
			Context: ContextCode,
			Reason:  fmt.Sprintf("code exceeds maximum length %d", s.maxLength),
		}
	}

	switch strings.ToLower(language) {
	case "go":
		if pattern, ok := goDangerousPatterns.match(code); ok {
			s.warnMatch(ContextCode, "go-code", pattern, code)
			return "", &SanitizationError{Context: ContextCode, Reason: "dangerous Go construct detected"}
		}
		fset := token.NewFileSet()
		if _, err := parser.ParseFile(fset, "input.go", code, parser.AllErrors); err != nil {
			return "", &SanitizationError{Context: ContextCode, Reason: "Go source does not parse"}
		}
		return code, nil

	case "python":
		if pattern, ok := pythonDangerousPatterns.match(code); ok {
			s.warnMatch(ContextCode, "python-code", pattern, code)
			return "", &SanitizationError{Context: ContextCode, Reason: "dangerous Python construct detected"}
		}
		if err := checkPythonStructure(code); err != nil {
			return "", &SanitizationError{Context: ContextCode, Reason: err.Error()}
		}
		return code, nil

	default:
		return "", &SanitizationError{
			Context: ContextCode,
			Reason:  "unsupported language: " + language,
		}
	}
}

// SanitizeURL rejects scriptable and local schemes, then returns the URL
// with all characters outside the reserved-safe set percent-encoded.
func (s *Sanitizer) SanitizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	lower := strings.ToLower(trimmed)
	for _, scheme := range urlSchemeBlacklist {
		if strings.HasPrefix(lower, scheme+":") {
			slog.Warn("blacklisted URL scheme rejected",
				"scheme", scheme,
				"security_event", "url_scheme_violation")
			return "", &SanitizationError{Reason: "URL scheme " + scheme + " is not permitted"}
		}
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", &SanitizationError{Reason: "invalid URL"}
	}
	for _, scheme := range urlSchemeBlacklist {
		if strings.EqualFold(u.Scheme, scheme) {
			return "", &SanitizationError{Reason: "URL scheme " + scheme + " is not permitted"}
		}
	}

	// String re-encodes everything outside the RFC 3986 safe set.
	return u.String(), nil
}

// emailPattern is the accepted address shape after mail.ParseAddress
// succeeds: a plain addr-spec with an alphanumeric dotted domain.
var emailPattern = mustPatterns("email", []string{
	`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`,
})

// ValidateEmail checks the address format and returns the normalized
// (lower-cased) address.
func (s *Sanitizer) ValidateEmail(address string) (string, error) {
	trimmed := strings.TrimSpace(address)
	if len(trimmed) > 254 {
		return "", &SanitizationError{Reason: "email address too long"}
	}
	parsed, err := mail.ParseAddress(trimmed)
	if err != nil || parsed.Name != "" || parsed.Address != trimmed {
		return "", &SanitizationError{Reason: "invalid email address"}
	}
	if _, ok := emailPattern.match(trimmed); !ok {
		return "", &SanitizationError{Reason: "invalid email address"}
	}
	return strings.ToLower(trimmed), nil
}

// ValidateInteger parses value as a base-10 integer and enforces the
// inclusive range.
func (s *Sanitizer) ValidateInteger(value string, minVal, maxVal int64) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, &SanitizationError{Reason: "not a valid integer"}
	}
	if n < minVal || n > maxVal {
		return 0, &SanitizationError{
			Reason: fmt.Sprintf("integer out of range [%d, %d]", minVal, maxVal),
		}
	}
	return n, nil
}

// unionSets is the strict-mode taxonomy union.
func (s *Sanitizer) unionSets() []*patternSet {
	return []*patternSet{sqlPatterns, shellPatterns, traversalPatterns, xssPatterns, s.custom}
}

func (s *Sanitizer) warnMatch(sctx Context, taxonomy, pattern, input string) {
	slog.Warn("injection pattern rejected",
		"context", string(sctx),
		"taxonomy", taxonomy,
		"pattern", pattern,
		"input_preview", preview(input),
		"security_event", "sanitization_violation")
}

// dropNonASCII coerces input to ASCII by removing all other bytes.
func dropNonASCII(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for i := 0; i < len(input); i++ {
		if input[i] < 0x80 {
			b.WriteByte(input[i])
		}
	}
	return b.String()
}

// stripRunes removes every rune of set from input.
func stripRunes(input, set string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(set, r) {
			return -1
		}
		return r
	}, input)
}

// activeElements are dropped wholesale (tag and content) by stripActiveHTML.
var activeElements = map[string]bool{
	"script": true, "iframe": true, "object": true,
	"embed": true, "applet": true, "style": true,
}

// stripActiveHTML removes script-bearing elements, inline event-handler
// attributes, and scriptable URL attributes from markup, preserving the
// rest. Token-level rewriting, not a grammar-complete HTML sanitizer.
func stripActiveHTML(input string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(input))
	var b strings.Builder
	depth := 0 // nesting depth inside dropped elements

	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			return b.String()
		}
		tok := tokenizer.Token()

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			if activeElements[tok.Data] {
				if tt == html.StartTagToken {
					depth++
				}
				continue
			}
			if depth > 0 {
				continue
			}
			tok.Attr = filterAttributes(tok.Attr)
			b.WriteString(tok.String())

		case html.EndTagToken:
			if activeElements[tok.Data] {
				if depth > 0 {
					depth--
				}
				continue
			}
			if depth > 0 {
				continue
			}
			b.WriteString(tok.String())

		default:
			if depth > 0 {
				continue
			}
			b.WriteString(tok.String())
		}
	}
}

// filterAttributes drops on* event handlers and scriptable URL values.
func filterAttributes(attrs []html.Attribute) []html.Attribute {
	kept := attrs[:0]
	for _, attr := range attrs {
		name := strings.ToLower(attr.Key)
		if strings.HasPrefix(name, "on") || name == "srcdoc" {
			continue
		}
		val := strings.ToLower(strings.TrimSpace(attr.Val))
		if strings.HasPrefix(val, "javascript:") ||
			strings.HasPrefix(val, "vbscript:") ||
			strings.HasPrefix(val, "data:text/html") {
			continue
		}
		kept = append(kept, attr)
	}
	return kept
}

// checkPythonStructure is a structural delimiter screen: balanced brackets
// outside string literals, terminated strings, no trailing line escape. It
// deliberately stops short of a grammar parse.
func checkPythonStructure(code string) error {
	var stack []byte
	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}

	inString := false
	var quote byte
	escaped := false

	for i := 0; i < len(code); i++ {
		c := code[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case quote:
				inString = false
			}
			continue
		}
		switch c {
		case '\'', '"':
			inString = true
			quote = c
			// Swallow triple quotes so an embedded single quote of the
			// same kind does not terminate the literal prematurely.
			if i+2 < len(code) && code[i+1] == c && code[i+2] == c {
				end := strings.Index(code[i+3:], strings.Repeat(string(c), 3))
				if end < 0 {
					return fmt.Errorf("unterminated triple-quoted string")
				}
				i += 3 + end + 2
				inString = false
			}
		case '#':
			for i < len(code) && code[i] != '\n' {
				i++
			}
		case '(', '[', '{':
			stack = append(stack, c)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[c] {
				return fmt.Errorf("unbalanced %q", c)
			}
			stack = stack[:len(stack)-1]
		}
	}

	if inString {
		return fmt.Errorf("unterminated string literal")
	}
	if len(stack) > 0 {
		return fmt.Errorf("unbalanced %q", stack[len(stack)-1])
	}
	if strings.HasSuffix(strings.TrimRight(code, " \t"), "\\") {
		return fmt.Errorf("trailing line continuation")
	}
	return nil
}
