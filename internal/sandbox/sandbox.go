// Package sandbox validates relative paths against a root directory,
// producing SandboxPath values that are the only handles the Atomic Writer
// will accept. No file write in the system is observable outside a root.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Reason distinguishes why Join rejected a candidate path.
type Reason string

const (
	ReasonAbsolutePath     Reason = "absolute_path"
	ReasonParentTraversal  Reason = "parent_traversal"
	ReasonSymlinkNotAllow  Reason = "symlink_not_allowed"
	ReasonHardlinkNotAllow Reason = "hardlink_not_allowed"
	ReasonEscapeAttempt    Reason = "escape_attempt"
)

// ViolationError is returned by Join when rel fails sandbox policy.
type ViolationError struct {
	Reason Reason
	Rel    string
	Detail string
}

func (e *ViolationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("sandbox: %s: %q: %s", e.Reason, e.Rel, e.Detail)
	}
	return fmt.Sprintf("sandbox: %s: %q", e.Reason, e.Rel)
}

// Config enumerates the sandbox's escape-hatch policy. Both default to the
// strictest setting.
type Config struct {
	AllowSymlinks  bool
	AllowHardlinks bool
}

// Root is a canonicalized base directory under which every SandboxPath must
// resolve.
type Root struct {
	base   string // canonical, absolute
	config Config
}

// New canonicalizes base and returns a Root, failing if base does not exist,
// is not a directory, or cannot be canonicalized (e.g. contains a symlink
// loop).
func New(base string, config Config) (*Root, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("sandbox: cannot make %q absolute: %w", base, err)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("sandbox: cannot canonicalize root %q: %w", base, err)
	}
	info, err := os.Stat(canon)
	if err != nil {
		return nil, fmt.Errorf("sandbox: cannot stat root %q: %w", canon, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sandbox: root %q is not a directory", canon)
	}
	return &Root{base: stripWinPrefix(canon), config: config}, nil
}

// Base returns the canonical absolute root directory.
func (r *Root) Base() string { return r.base }

// Path is an opaque handle guaranteed descendant of its Root and lstat
// verified against the symlink/hardlink policy at construction time. It can
// only be constructed through Root.Join.
type Path struct {
	root *Root
	abs  string // canonical absolute path
	rel  string // original relative path requested
}

// String returns the canonical absolute path.
func (p Path) String() string { return p.abs }

// AsPath returns the canonical absolute path (alias of String, named after
// the spec's SandboxPath.as_path()).
func (p Path) AsPath() string { return p.abs }

// Rel returns the relative path originally passed to Join.
func (p Path) Rel() string { return p.rel }

// Root returns the Root this Path was joined against.
func (p Path) Root() *Root { return p.root }

// Join validates rel against r's policy and returns a Path descendant of the
// root, or a *ViolationError describing the first violation found.
func (r *Root) Join(rel string) (Path, error) {
	if filepath.IsAbs(rel) {
		return Path{}, &ViolationError{Reason: ReasonAbsolutePath, Rel: rel}
	}
	// Reject backslash-style absolute/traversal on any platform, since
	// packets and diffs may carry paths authored on Windows.
	normalizedRel := filepath.ToSlash(rel)
	for _, part := range strings.Split(normalizedRel, "/") {
		if part == ".." {
			return Path{}, &ViolationError{Reason: ReasonParentTraversal, Rel: rel}
		}
	}

	candidate := filepath.Join(r.base, filepath.FromSlash(normalizedRel))

	if info, err := os.Lstat(candidate); err == nil {
		if info.Mode()&os.ModeSymlink != 0 && !r.config.AllowSymlinks {
			return Path{}, &ViolationError{Reason: ReasonSymlinkNotAllow, Rel: rel}
		}
		if isHardlinked(info) && !r.config.AllowHardlinks {
			return Path{}, &ViolationError{Reason: ReasonHardlinkNotAllow, Rel: rel}
		}
	}

	resolved, err := resolveForContainment(candidate)
	if err != nil {
		return Path{}, &ViolationError{Reason: ReasonEscapeAttempt, Rel: rel, Detail: err.Error()}
	}

	if !isDescendant(r.base, resolved) {
		return Path{}, &ViolationError{Reason: ReasonEscapeAttempt, Rel: rel}
	}

	return Path{root: r, abs: resolved, rel: rel}, nil
}

// resolveForContainment canonicalizes candidate as far as the filesystem
// allows: if the full path exists, EvalSymlinks resolves it completely; if
// it (or a trailing component) does not yet exist, the deepest existing
// ancestor is resolved and the remaining components are appended verbatim,
// still catching an escape introduced by an existing ancestor symlink.
func resolveForContainment(candidate string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(candidate); err == nil {
		return stripWinPrefix(resolved), nil
	}

	dir := filepath.Dir(candidate)
	tail := []string{filepath.Base(candidate)}
	for {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			full := resolved
			for i := len(tail) - 1; i >= 0; i-- {
				full = filepath.Join(full, tail[i])
			}
			return stripWinPrefix(full), nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return stripWinPrefix(candidate), nil
		}
		tail = append(tail, filepath.Base(dir))
		dir = parent
	}
}

// isDescendant reports whether resolved is base or a descendant of base,
// using a case-insensitive compare on platforms with case-insensitive
// filesystems.
func isDescendant(base, resolved string) bool {
	b, r := base, resolved
	if caseInsensitiveFS() {
		b = strings.ToLower(b)
		r = strings.ToLower(r)
	}
	if b == r {
		return true
	}
	return strings.HasPrefix(r, b+string(filepath.Separator))
}

func caseInsensitiveFS() bool {
	return runtime.GOOS == "windows" || runtime.GOOS == "darwin"
}

// stripWinPrefix removes the \\?\ extended-length prefix Windows sometimes
// adds during canonicalization, so comparisons and user-facing paths stay
// stable.
func stripWinPrefix(p string) string {
	const prefix = `\\?\`
	return strings.TrimPrefix(p, prefix)
}
