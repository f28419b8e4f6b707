// Package selector walks a root directory and emits files classified by
// priority for the Packet Builder, honoring include/exclude glob
// configuration the way codeNERD's workspace scanner honors its own
// allow/deny directory list.
package selector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"xchecker/internal/canon"
	"xchecker/internal/xlog"
)

// Priority classifies a selected file for budget-aware packet assembly.
// Ordered Upstream > High > Medium > Low; the zero value is the lowest
// priority so an unrecognized file never silently outranks a classified one.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityUpstream
)

func (p Priority) String() string {
	switch p {
	case PriorityUpstream:
		return "upstream"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// File is one selected file and its metadata.
type File struct {
	Path               string // relative to root, slash-separated
	Content            string
	Priority           Priority
	BLAKE3PreRedaction string
	Bytes              int
	Lines              int
}

// ClassRule assigns Priority to paths matching Glob.
type ClassRule struct {
	Glob     string
	Priority Priority
}

// Config controls which files Select walks and how they are classified.
type Config struct {
	Include []string
	Exclude []string
	Classes []ClassRule // evaluated in order; first match wins
}

// DefaultClasses mirrors the teacher's directory allow-list in spirit:
// specific, high-value trees get elevated priority over the flat default.
func DefaultClasses() []ClassRule {
	return []ClassRule{
		{Glob: "**/*.core.yaml", Priority: PriorityUpstream},
		{Glob: "requirements/**", Priority: PriorityHigh},
		{Glob: "design/**", Priority: PriorityHigh},
		{Glob: "docs/**", Priority: PriorityMedium},
	}
}

var defaultExcludeDirs = map[string]bool{
	".git":         true,
	".xchecker":    true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	".cache":       true,
}

// Select walks root and returns every file matched by cfg.Include and not
// matched by cfg.Exclude, each classified by priority. Files with the
// ".core.yaml" suffix are always Upstream regardless of Classes.
func Select(ctx context.Context, root string, cfg Config) ([]File, error) {
	log := xlog.Get(xlog.CategorySelector)
	log.Info("selecting files under %s", root)

	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if name != "." && strings.HasPrefix(name, ".") && defaultExcludeDirs[name] {
				return filepath.SkipDir
			}
			if defaultExcludeDirs[name] {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if !matchesAny(rel, cfg.Include) {
			return nil
		}
		if matchesAny(rel, cfg.Exclude) {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("selector: walk %s: %w", root, err)
	}

	results := make([]File, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(16)

	for i, rel := range paths {
		i, rel := i, rel
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			full := filepath.Join(root, filepath.FromSlash(rel))
			content, err := os.ReadFile(full)
			if err != nil {
				return fmt.Errorf("selector: read %s: %w", rel, err)
			}

			text := string(content)
			hash, err := canon.Hash(text, canon.KindFromName(rel))
			if err != nil {
				log.Warn("hash failed for %s, falling back to raw text hash: %v", rel, err)
				hash, _ = canon.Hash(text, canon.KindText)
			}

			results[i] = File{
				Path:               rel,
				Content:            text,
				Priority:           classify(rel, cfg.Classes),
				BLAKE3PreRedaction: hash,
				Bytes:              len(content),
				Lines:              countLines(text),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Debug("selected %d files", len(results))
	return results, nil
}

// classify returns the priority for rel: ".core.yaml" is always Upstream,
// otherwise the first matching class rule applies, defaulting to Low.
func classify(rel string, classes []ClassRule) Priority {
	if strings.HasSuffix(rel, ".core.yaml") {
		return PriorityUpstream
	}
	for _, c := range classes {
		if match, _ := filepath.Match(c.Glob, rel); match {
			return c.Priority
		}
		if matchGlobstar(c.Glob, rel) {
			return c.Priority
		}
	}
	return PriorityLow
}

// matchesAny reports whether rel matches any of the glob patterns, which may
// use a leading "**/" or trailing "/**" for recursive matching beyond what
// filepath.Match supports natively.
func matchesAny(rel string, globs []string) bool {
	for _, g := range globs {
		if matchGlobstar(g, rel) {
			return true
		}
		if ok, _ := filepath.Match(g, rel); ok {
			return true
		}
	}
	return false
}

// matchGlobstar handles the "**/" prefix and "/**" suffix conventions used
// throughout this package's glob configuration, falling back to
// filepath.Match for the remainder of the pattern.
func matchGlobstar(pattern, rel string) bool {
	switch {
	case strings.HasPrefix(pattern, "**/"):
		suffix := pattern[3:]
		if ok, _ := filepath.Match(suffix, filepath.Base(rel)); ok {
			return true
		}
		for i := 0; i < len(rel); i++ {
			if rel[i] == '/' {
				if ok, _ := filepath.Match(suffix, rel[i+1:]); ok {
					return true
				}
			}
		}
		return false
	case strings.HasSuffix(pattern, "/**"):
		prefix := pattern[:len(pattern)-3]
		return rel == prefix || strings.HasPrefix(rel, prefix+"/")
	default:
		ok, _ := filepath.Match(pattern, rel)
		return ok
	}
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}

// SortForPacket orders files by (priority descending, LIFO within class) —
// the order the Packet Builder consumes them in: Upstream first, and within
// a class, the most recently selected file first.
func SortForPacket(files []File) []File {
	out := make([]File, len(files))
	copy(out, files)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	// LIFO within class: reverse contiguous runs of equal priority.
	start := 0
	for start < len(out) {
		end := start
		for end < len(out) && out[end].Priority == out[start].Priority {
			end++
		}
		reverse(out[start:end])
		start = end
	}
	return out
}

func reverse(files []File) {
	for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
		files[i], files[j] = files[j], files[i]
	}
}
