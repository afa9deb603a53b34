package security

import (
	"fmt"
	"regexp"
)

// patternSet is an immutable, pre-compiled collection of dangerous-input
// regexes for one taxonomy. Sets are compiled once at package init (or, for
// custom patterns, at sanitizer construction) and shared read-only across
// all validations.
type patternSet struct {
	name     string
	patterns []*regexp.Regexp
}

// match reports the first pattern that matches s, if any.
func (p *patternSet) match(s string) (string, bool) {
	for _, re := range p.patterns {
		if re.MatchString(s) {
			return re.String(), true
		}
	}
	return "", false
}

// compilePatterns compiles raw expressions into a set, failing on the first
// malformed pattern. Built-in sets use mustPatterns instead.
func compilePatterns(name string, raw []string) (*patternSet, error) {
	compiled := make([]*regexp.Regexp, 0, len(raw))
	for _, p := range raw {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling %s pattern %q: %w", name, p, err)
		}
		compiled = append(compiled, re)
	}
	return &patternSet{name: name, patterns: compiled}, nil
}

func mustPatterns(name string, raw []string) *patternSet {
	set, err := compilePatterns(name, raw)
	if err != nil {
		panic(err)
	}
	return set
}

// sqlPatterns matches SQL injection shapes: statement keywords in query
// position, comment markers, boolean tautologies, and stacked statements.
var sqlPatterns = mustPatterns("sql", []string{
	`(?i)\b(union(\s+all)?\s+select)\b`,
	`(?i)\bselect\b.+\bfrom\b`,
	`(?i)\binsert\s+into\b`,
	`(?i)\bupdate\s+\w+\s+set\b`,
	`(?i)\bdelete\s+from\b`,
	`(?i)\bdrop\s+(table|database|index|view)\b`,
	`(?i)\btruncate\s+table\b`,
	`(?i)\balter\s+(table|database)\b`,
	`(?i)\bexec(ute)?\s*\(`,
	`(?i)\bxp_cmdshell\b`,
	`--[^\r\n]*$`,
	`/\*.*\*/`,
	`(?i)'\s*(or|and)\s*'[^']*'\s*=\s*'`,
	`(?i)'\s*(or|and)\s*\d+\s*=\s*\d+`,
	`(?i)\b(or|and)\s+\d+\s*=\s*\d+\b`,
	`(?i);\s*(select|insert|update|delete|drop|create|alter)\b`,
})

// shellPatterns matches command injection shapes: substitution, chained
// commands, pipes into interpreters, and redirection at devices.
var shellPatterns = mustPatterns("shell", []string{
	"`[^`]*`",
	`\$\([^)]*\)`,
	`\$\{[^}]*\}`,
	`(?i)(;|&&|\|\|)\s*(rm|mv|cp|dd|curl|wget|nc|ncat|chmod|chown|sudo|kill|pkill|shutdown|reboot|mkfs)\b`,
	`(?i)\|\s*(sh|bash|zsh|dash|ksh|csh|cmd|powershell|python\d?|perl|ruby)\b`,
	`(?i)>\s*/(dev|etc|proc|sys)/`,
	`(?i)\b(rm\s+-rf?|mkfs|dd\s+if=)\b`,
	"\\n\\s*(rm|curl|wget|nc|sudo)\\b",
})

// traversalPatterns matches directory escape attempts, including
// percent-encoded, double-encoded, and UTF-8 overlong-encoded variants.
var traversalPatterns = mustPatterns("traversal", []string{
	`\.\.[/\\]`,
	`[/\\]\.\.$`,
	`^\.\.$`,
	`^~`,
	`(?i)%2e%2e`,
	`(?i)%252e`,
	`(?i)%2f`,
	`(?i)%5c`,
	`(?i)%c0%ae`,
	`(?i)%c1%9c`,
	`\x00`,
})

// xssPatterns matches script tags, inline event handlers, scriptable
// protocols, and embeddable active content.
var xssPatterns = mustPatterns("xss", []string{
	`(?i)<\s*script`,
	`(?i)<\s*/\s*script`,
	`(?i)\bjavascript\s*:`,
	`(?i)\bvbscript\s*:`,
	`(?i)\bdata\s*:\s*text/html`,
	`(?i)\bon[a-z]+\s*=`,
	`(?i)<\s*(iframe|object|embed|applet|form|meta|link)\b`,
	`(?i)\bexpression\s*\(`,
	`(?i)srcdoc\s*=`,
})

// goDangerousPatterns matches Go source constructs that spawn processes,
// bypass the type system, or perform dynamic loading.
var goDangerousPatterns = mustPatterns("go-code", []string{
	`(?m)^\s*import\s+.*"os/exec"`,
	`"os/exec"`,
	`\bexec\.(Command|CommandContext|LookPath)\b`,
	`\bsyscall\.(Exec|ForkExec|StartProcess)\b`,
	`\bos\.StartProcess\b`,
	`"unsafe"`,
	`\bunsafe\.Pointer\b`,
	`\bplugin\.Open\b`,
	`(?m)^\s*//\s*#include\b`,
	`"C"`,
})

// pythonDangerousPatterns matches Python source constructs for dynamic
// execution, process spawning, writable file handles, and (de)serialization.
var pythonDangerousPatterns = mustPatterns("python-code", []string{
	`\beval\s*\(`,
	`\bexec\s*\(`,
	`\bcompile\s*\(`,
	`\b__import__\s*\(`,
	`\bgetattr\s*\([^)]*,\s*['"]__`,
	`(?m)^\s*(import|from)\s+(os|subprocess|sys|shutil|socket)\b`,
	`\bos\.(system|popen|spawn\w*|exec\w*)\s*\(`,
	`\bsubprocess\.(run|call|Popen|check_output|check_call)\s*\(`,
	`\bopen\s*\([^)]*,\s*['"][wax]\+?b?['"]`,
	`(?m)^\s*(import|from)\s+(pickle|marshal|shelve|dill)\b`,
	`\bpickle\.(load|loads)\s*\(`,
	`\bmarshal\.(load|loads)\s*\(`,
})

// pathTokenPatterns rejects dangerous literal tokens in raw, unresolved
// paths: literal dot-dot anywhere (even mid-filename, where cleaning would
// keep it), home/variable expansion, drive letters, null and control bytes,
// characters no supported OS accepts in file names, and encoded traversal
// that OS-level resolution would miss.
var pathTokenPatterns = mustPatterns("path-token", []string{
	`\.\.`,
	`^~`,
	`^\$`,
	`^[a-zA-Z]:([/\\]|$)`,
	"[\x00-\x1f]",
	`[<>"|?*]`,
	`(?i)%(25)*2e%(25)*2e`,
	`(?i)%(25)*2f`,
	`(?i)%(25)*5c`,
	`(?i)%c0%ae`,
	`(?i)%c1%9c`,
})
