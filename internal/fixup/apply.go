package fixup

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/agext/levenshtein"
	"github.com/zeebo/blake3"
	"go.uber.org/multierr"

	"xchecker/internal/atomicfile"
	"xchecker/internal/sandbox"
)

// fuzzySearchWindow bounds how far applyHunk will look for a drifted hunk's
// context before giving up.
const fuzzySearchWindow = 50

// fuzzyMatchThreshold is the minimum levenshtein similarity a fuzzy
// candidate position must score to be accepted.
const fuzzyMatchThreshold = 0.7

// FuzzyMatchFailed reports that a hunk's context could not be re-anchored
// within the search window after an exact-position match failed.
type FuzzyMatchFailed struct {
	ExpectedLine int
	SearchWindow int
}

func (e *FuzzyMatchFailed) Error() string {
	return fmt.Sprintf("fixup: no fuzzy match for hunk expected near line %d within +/-%d lines", e.ExpectedLine, e.SearchWindow)
}

// AppliedFile is one successfully-applied diff's receipt contribution.
type AppliedFile struct {
	Path         string
	BLAKE3First8 string
	Applied      bool
	Warnings     []string
}

// FailedFile is one diff that could not be applied.
type FailedFile struct {
	Path   string
	Reason string
}

// FixupResult aggregates every diff block processed in one Apply call.
type FixupResult struct {
	AppliedFiles []AppliedFile
	FailedFiles  []FailedFile
	Warnings     []string
	ThreeWayUsed bool
}

// Apply applies every parsed diff to its target file under root, in order.
// A failure on one diff is recorded in FailedFiles and processing continues
// with the next; it never aborts the batch and never partially writes a
// target file (the Atomic Writer guarantees that).
func Apply(root *sandbox.Root, diffs []*FileDiff) FixupResult {
	var result FixupResult

	for _, fd := range diffs {
		applied, err := applyOne(root, fd)
		if err != nil {
			result.FailedFiles = append(result.FailedFiles, FailedFile{Path: fd.TargetPath, Reason: err.Error()})
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", fd.TargetPath, err))
			continue
		}
		result.AppliedFiles = append(result.AppliedFiles, applied)
		result.Warnings = append(result.Warnings, applied.Warnings...)
	}

	return result
}

// applyOne runs the full apply-mode procedure for a single target file:
// sandbox validation, original-content read, hunk application with
// cumulative offset and fuzzy re-anchoring, hashing, and the atomic write
// (which itself creates the .bak sibling and restores permissions).
func applyOne(root *sandbox.Root, fd *FileDiff) (AppliedFile, error) {
	path, err := root.Join(fd.TargetPath)
	if err != nil {
		return AppliedFile{}, fmt.Errorf("sandbox rejected target path: %w", err)
	}

	original, err := os.ReadFile(path.AsPath())
	if err != nil {
		return AppliedFile{}, fmt.Errorf("could not read original content: %w", err)
	}
	originalContent := normalizeLineEndings(string(original))

	newContent, err := applyHunks(originalContent, fd.Hunks)
	if err != nil {
		return AppliedFile{}, err
	}

	var warnings []string
	if !defaultEngine.changed(originalContent, newContent) {
		warnings = append(warnings, "hunk application produced no net change")
	}

	sum := blake3.Sum256([]byte(newContent))
	hash8 := hex.EncodeToString(sum[:])[:8]

	writeResult, err := atomicfile.Write(path, []byte(newContent))
	if err != nil {
		return AppliedFile{}, fmt.Errorf("could not write result: %w", err)
	}
	warnings = append(warnings, writeResult.Warnings...)

	return AppliedFile{Path: fd.TargetPath, BLAKE3First8: hash8, Applied: true, Warnings: warnings}, nil
}

// applyHunks applies every hunk in order against original, tracking a
// cumulative line offset so later hunks account for earlier insertions and
// deletions, per the apply-mode procedure.
func applyHunks(original string, hunks []Hunk) (string, error) {
	lines := splitLines(original)
	offset := 0

	var errs error
	for _, h := range hunks {
		expected := h.OldStart - 1 + offset
		pos, err := anchorHunk(lines, h, expected)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		newLines, delta, err := applyHunkAt(lines, h, pos)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		lines = newLines
		offset += delta
	}
	if errs != nil {
		return "", errs
	}

	return strings.Join(lines, "\n"), nil
}

// anchorHunk finds the line index at which h's old-side context (context
// and removed lines, never added lines) matches the text, first at the
// expected exact position, then via a fuzzy +/-50-line search.
func anchorHunk(lines []string, h Hunk, expected int) (int, error) {
	oldLines := oldSideLines(h)

	if expected >= 0 && contextMatches(lines, oldLines, expected) {
		return expected, nil
	}

	best := -1
	bestScore := 0.0
	start := expected - fuzzySearchWindow
	end := expected + fuzzySearchWindow
	if start < 0 {
		start = 0
	}
	if end > len(lines) {
		end = len(lines)
	}
	for pos := start; pos <= end; pos++ {
		score := contextSimilarity(lines, oldLines, pos)
		if score > bestScore {
			bestScore = score
			best = pos
		}
	}

	if best == -1 || bestScore < fuzzyMatchThreshold {
		return -1, &FuzzyMatchFailed{ExpectedLine: h.OldStart, SearchWindow: fuzzySearchWindow}
	}
	return best, nil
}

// oldSideLines extracts the lines the old file must contain at a hunk's
// position: context lines and removed lines, in order, skipping additions.
func oldSideLines(h Hunk) []string {
	old := make([]string, 0, len(h.Lines))
	for _, l := range h.Lines {
		if l.Kind == ' ' || l.Kind == '-' {
			old = append(old, l.Text)
		}
	}
	return old
}

// contextMatches reports whether lines[pos:pos+len(oldLines)] equals
// oldLines exactly.
func contextMatches(lines, oldLines []string, pos int) bool {
	if pos < 0 || pos+len(oldLines) > len(lines) {
		return false
	}
	for i, want := range oldLines {
		if lines[pos+i] != want {
			return false
		}
	}
	return true
}

// contextSimilarity scores how well lines[pos:pos+len(oldLines)] matches
// oldLines, averaging per-line levenshtein similarity over whitespace-
// collapsed text so re-indentation alone doesn't sink the score.
func contextSimilarity(lines, oldLines []string, pos int) float64 {
	if pos < 0 || pos+len(oldLines) > len(lines) || len(oldLines) == 0 {
		return 0
	}
	total := 0.0
	for i, want := range oldLines {
		got := lines[pos+i]
		total += levenshtein.Match(collapseWhitespace(want), collapseWhitespace(got), nil)
	}
	return total / float64(len(oldLines))
}

// applyHunkAt rewrites lines by applying h starting at pos, returning the
// new slice and the net line-count delta (inserted minus removed) for the
// caller's cumulative offset.
func applyHunkAt(lines []string, h Hunk, pos int) ([]string, int, error) {
	out := make([]string, 0, len(lines)+len(h.Lines))
	out = append(out, lines[:pos]...)

	cursor := pos
	delta := 0
	for _, l := range h.Lines {
		switch l.Kind {
		case ' ':
			if cursor >= len(lines) {
				return nil, 0, fmt.Errorf("fixup: context line past end of file at position %d", cursor)
			}
			out = append(out, lines[cursor])
			cursor++
		case '-':
			if cursor >= len(lines) {
				return nil, 0, fmt.Errorf("fixup: removed line past end of file at position %d", cursor)
			}
			cursor++
			delta--
		case '+':
			out = append(out, l.Text)
			delta++
		}
	}
	out = append(out, lines[cursor:]...)

	return out, delta, nil
}

// collapseWhitespace reduces every run of whitespace to a single space and
// trims the ends, so indentation drift doesn't defeat fuzzy matching.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
