package security

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Operation identifies what the caller intends to do with a validated path.
type Operation string

// Supported path operations. OpExecute exists so callers can express the
// intent, but it is unconditionally rejected: no operation in this system
// may execute a file.
const (
	OpRead    Operation = "read"
	OpWrite   Operation = "write"
	OpDelete  Operation = "delete"
	OpList    Operation = "list"
	OpExecute Operation = "execute"
)

// DefaultMaxPathLength is the ceiling applied when PathConfig.MaxPathLength
// is zero. Matches the common PATH_MAX on Linux.
const DefaultMaxPathLength = 4096

// maxFilenameLength bounds names produced by SanitizeFilename.
const maxFilenameLength = 255

// defaultForbiddenPaths are system locations no validated path may resolve
// into, regardless of configuration.
var defaultForbiddenPaths = []string{
	"/etc", "/proc", "/sys", "/dev", "/boot", "/root", "/var/log",
	`C:\Windows`, `C:\Program Files`, `C:\Program Files (x86)`,
}

// dangerousExtensions are always rejected, even when a configured allow-list
// would otherwise admit them: executables, shell scripts, platform binaries.
var dangerousExtensions = []string{
	".exe", ".dll", ".so", ".dylib",
	".sh", ".bash", ".zsh", ".ps1",
	".bat", ".cmd", ".com", ".scr", ".msi", ".app", ".vbs",
}

// PathConfig configures a PathValidator. The zero value yields a validator
// with secure defaults: symlinks and hidden files rejected, system
// directories forbidden, dangerous extensions blocked.
type PathConfig struct {
	// AllowedBasePaths restricts validated paths to descendants of at least
	// one entry. Empty means no containment restriction (forbidden-path and
	// token checks still apply).
	AllowedBasePaths []string

	// AllowSymlinks permits the leaf entry to be a symbolic link.
	AllowSymlinks bool

	// AllowHiddenFiles permits path components starting with a dot.
	AllowHiddenFiles bool

	// MaxPathLength rejects longer raw paths. Zero means DefaultMaxPathLength.
	MaxPathLength int

	// AllowedExtensions, when non-empty, is an allow-list: a file's
	// extension must be a member. Extensions include the leading dot.
	AllowedExtensions []string

	// ForbiddenExtensions are rejected in addition to the built-in
	// dangerous-extension set.
	ForbiddenExtensions []string

	// ForbiddenPaths are rejected resolution targets in addition to the
	// built-in system directories.
	ForbiddenPaths []string
}

// PathValidator canonicalizes user-supplied paths and authorizes them
// against an allow-list/deny-list policy (CWE-22). It rejects traversal
// tokens before OS resolution can be fooled by them, refuses disallowed
// symlinks, and confines resolved paths to the configured base directories.
//
// A successful (path, operation) validation is memoized until Clear is
// called. The validation result is a value, not a live handle: filesystem
// state may change after validation (TOCTOU is out of scope).
//
// Safe for concurrent use.
type PathValidator struct {
	allowedBases  []string
	allowSymlinks bool
	allowHidden   bool
	maxPathLen    int
	allowedExts   map[string]struct{}
	forbiddenExts map[string]struct{}
	forbiddenDirs []string

	mu    sync.RWMutex
	cache map[pathCacheKey]string
}

type pathCacheKey struct {
	path string
	op   Operation
}

// NewPathValidator creates a PathValidator. Allowed base paths are
// absolutized and symlink-resolved at construction; a base that cannot be
// made absolute is an error.
func NewPathValidator(cfg PathConfig) (*PathValidator, error) {
	bases := make([]string, 0, len(cfg.AllowedBasePaths))
	for _, dir := range cfg.AllowedBasePaths {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolving allowed base %s: %w", dir, err)
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		bases = append(bases, filepath.Clean(abs))
	}

	maxLen := cfg.MaxPathLength
	if maxLen <= 0 {
		maxLen = DefaultMaxPathLength
	}

	allowedExts := make(map[string]struct{}, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowedExts[normalizeExt(ext)] = struct{}{}
	}

	forbiddenExts := make(map[string]struct{},
		len(dangerousExtensions)+len(cfg.ForbiddenExtensions))
	for _, ext := range dangerousExtensions {
		forbiddenExts[ext] = struct{}{}
	}
	for _, ext := range cfg.ForbiddenExtensions {
		forbiddenExts[normalizeExt(ext)] = struct{}{}
	}

	forbiddenDirs := make([]string, 0,
		len(defaultForbiddenPaths)+len(cfg.ForbiddenPaths))
	forbiddenDirs = append(forbiddenDirs, defaultForbiddenPaths...)
	forbiddenDirs = append(forbiddenDirs, cfg.ForbiddenPaths...)

	return &PathValidator{
		allowedBases:  bases,
		allowSymlinks: cfg.AllowSymlinks,
		allowHidden:   cfg.AllowHiddenFiles,
		maxPathLen:    maxLen,
		allowedExts:   allowedExts,
		forbiddenExts: forbiddenExts,
		forbiddenDirs: forbiddenDirs,
		cache:         make(map[pathCacheKey]string),
	}, nil
}

// Validate checks path for the given operation and returns the absolute,
// canonical, symlink-resolved form. Any violation returns a
// *PathSecurityError naming the violated rule; error messages never echo
// the full offending path.
func (v *PathValidator) Validate(path string, op Operation) (string, error) {
	// Execution is denied before anything else, including the cache.
	if op == OpExecute {
		return "", &PathSecurityError{Reason: "execute operation is not permitted"}
	}

	// 1. Empty and length ceilings.
	if path == "" {
		return "", &PathSecurityError{Reason: "empty path"}
	}
	if len(path) > v.maxPathLen {
		return "", &PathSecurityError{
			Reason: fmt.Sprintf("path exceeds maximum length %d", v.maxPathLen),
		}
	}

	key := pathCacheKey{path: path, op: op}
	v.mu.RLock()
	cached, ok := v.cache[key]
	v.mu.RUnlock()
	if ok {
		return cached, nil
	}

	// 2. Dangerous literal tokens, caught before any OS resolution.
	if pattern, ok := pathTokenPatterns.match(path); ok {
		slog.Warn("dangerous path token rejected",
			"path_preview", preview(path),
			"pattern", pattern,
			"security_event", "path_token_violation")
		return "", &PathSecurityError{Reason: "path contains a dangerous token"}
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", &PathSecurityError{Reason: "path cannot be made absolute"}
	}

	// 3. Symlink-ness of the original leaf entry, checked before resolution
	// (resolution would silently follow the link).
	if !v.allowSymlinks {
		if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
			slog.Warn("symlink rejected",
				"path_preview", preview(path),
				"security_event", "symlink_violation")
			return "", &PathSecurityError{Reason: "symbolic links are not permitted"}
		}
	}

	// 4. Canonical resolution. A missing leaf is fine (new-file writes);
	// the nearest existing ancestor is resolved instead so traversal
	// through symlinked ancestors is still caught.
	resolved, err := resolvePath(abs)
	if err != nil {
		return "", &PathSecurityError{Reason: "path cannot be resolved"}
	}

	// 5. Containment in allowed bases, component-wise.
	base, ok := v.containingBase(resolved)
	if !ok {
		slog.Warn("path outside allowed directories",
			"path_preview", preview(path),
			"security_event", "path_containment_violation")
		return "", &PathSecurityError{Reason: "path is outside allowed directories"}
	}

	// 6. Forbidden system locations.
	for _, dir := range v.forbiddenDirs {
		if isWithin(dir, resolved) {
			slog.Warn("forbidden system path rejected",
				"forbidden", dir,
				"security_event", "forbidden_path_violation")
			return "", &PathSecurityError{Reason: "path targets a forbidden system location"}
		}
	}

	// 7. Hidden components.
	if !v.allowHidden && hasHiddenComponent(base, resolved) {
		return "", &PathSecurityError{Reason: "hidden files are not permitted"}
	}

	// 8. Extension policy.
	if err := v.checkExtension(resolved, op); err != nil {
		return "", err
	}

	// 9. Operation-specific checks.
	if op == OpWrite {
		if err := checkWritableParent(resolved); err != nil {
			return "", err
		}
	}

	// 10. Memoize the success.
	v.mu.Lock()
	v.cache[key] = resolved
	v.mu.Unlock()

	return resolved, nil
}

// Clear drops all memoized validation results.
func (v *PathValidator) Clear() {
	v.mu.Lock()
	v.cache = make(map[pathCacheKey]string)
	v.mu.Unlock()
}

// SafeJoin joins an untrusted relative fragment onto base. Traversal and
// home-expansion tokens are stripped from the fragment first, then the
// joined result goes through Validate.
func (v *PathValidator) SafeJoin(base, relative string) (string, error) {
	cleaned := strings.ReplaceAll(relative, "~", "")
	cleaned = strings.ReplaceAll(cleaned, "..", "")
	cleaned = strings.TrimLeft(cleaned, `/\`)
	joined := filepath.Join(base, filepath.Clean(cleaned))
	return v.Validate(joined, OpRead)
}

// filenameReplacer substitutes characters that are separators, reserved, or
// whitespace controls on at least one supported platform.
var filenameReplacer = strings.NewReplacer(
	"/", "_", `\`, "_", "\x00", "",
	"<", "_", ">", "_", ":", "_", `"`, "_",
	"|", "_", "?", "_", "*", "_",
	"\n", "_", "\r", "_", "\t", "_",
)

// SanitizeFilename reduces an untrusted name to a single safe path
// component. Separators and null bytes are removed, leading dots stripped,
// reserved characters replaced, and the result truncated preserving the
// extension. An empty result falls back to a placeholder.
func SanitizeFilename(name string) string {
	name = filenameReplacer.Replace(name)
	name = strings.TrimLeft(name, ".")
	name = strings.TrimSpace(name)

	if len(name) > maxFilenameLength {
		ext := filepath.Ext(name)
		if len(ext) >= maxFilenameLength {
			ext = ""
		}
		name = name[:maxFilenameLength-len(ext)] + ext
	}

	if name == "" {
		return "unnamed_file"
	}
	return name
}

// resolvePath canonicalizes abs via EvalSymlinks. When the leaf (or deeper
// ancestors) do not exist yet, the nearest existing ancestor is resolved
// and the missing suffix re-attached.
func resolvePath(abs string) (string, error) {
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	var missing []string
	current := abs
	for {
		parent := filepath.Dir(current)
		if parent == current {
			return filepath.Clean(abs), nil
		}
		missing = append([]string{filepath.Base(current)}, missing...)
		resolved, err = filepath.EvalSymlinks(parent)
		if err == nil {
			return filepath.Join(append([]string{resolved}, missing...)...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		current = parent
	}
}

// containingBase returns the allowed base that contains path. When no bases
// are configured every path is considered contained (with an empty base).
func (v *PathValidator) containingBase(path string) (string, bool) {
	if len(v.allowedBases) == 0 {
		return "", true
	}
	for _, base := range v.allowedBases {
		if isWithin(base, path) {
			return base, true
		}
	}
	return "", false
}

// isWithin reports whether path equals base or is a component-wise
// descendant of it. Never a naive string-prefix check: /allowed-evil must
// not match /allowed.
func isWithin(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// hasHiddenComponent reports whether any component of path below base
// starts with a dot.
func hasHiddenComponent(base, path string) bool {
	rel := path
	if base != "" {
		r, err := filepath.Rel(base, path)
		if err != nil {
			return true
		}
		rel = r
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part != "." && part != ".." && strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

func (v *PathValidator) checkExtension(path string, op Operation) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		// Directories and extensionless entries carry no extension to
		// check; listing must not require an allow-list hit.
		return nil
	}
	if _, forbidden := v.forbiddenExts[ext]; forbidden {
		slog.Warn("forbidden extension rejected",
			"extension", ext,
			"security_event", "extension_violation")
		return &PathSecurityError{Reason: "file extension " + ext + " is forbidden"}
	}
	if len(v.allowedExts) > 0 && op != OpList {
		if _, ok := v.allowedExts[ext]; !ok {
			return &PathSecurityError{Reason: "file extension " + ext + " is not in the allow-list"}
		}
	}
	return nil
}

// checkWritableParent requires the parent directory of path to exist and be
// writable before a write operation is approved.
func checkWritableParent(path string) error {
	parent := filepath.Dir(path)
	info, err := os.Stat(parent)
	if err != nil {
		return &PathSecurityError{Reason: "parent directory does not exist"}
	}
	if !info.IsDir() {
		return &PathSecurityError{Reason: "parent is not a directory"}
	}
	if info.Mode().Perm()&0o200 == 0 {
		return &PathSecurityError{Reason: "parent directory is not writable"}
	}
	return nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
