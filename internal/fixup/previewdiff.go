package fixup

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Engine wraps diffmatchpatch for the two-way comparisons Preview mode uses
// to sanity-check a hunk's effect, adapted from codeNERD's diff engine and
// trimmed to what a dry-run validation needs: no hunk/line-type conversion,
// no caching, just "did this change anything" and "is this state stable".
type Engine struct {
	dmp *diffmatchpatch.DiffMatchPatch
}

// NewEngine constructs an Engine with semantic cleanup and no timeout, the
// same tuning codeNERD uses for code diffs.
func NewEngine() *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	return &Engine{dmp: dmp}
}

var defaultEngine = NewEngine()

// lineDiff runs a and b through the line-hashing reduction so DiffMain
// operates on whole lines instead of runes, then cleans up the result
// semantically.
func (e *Engine) lineDiff(a, b string) []diffmatchpatch.Diff {
	chars1, chars2, lineArray := e.dmp.DiffLinesToChars(a, b)
	diffs := e.dmp.DiffMain(chars1, chars2, false)
	diffs = e.dmp.DiffCleanupSemantic(diffs)
	return e.dmp.DiffCharsToLines(diffs, lineArray)
}

// changed reports whether diffmatchpatch finds any non-equal line op
// between oldContent and newContent — used to catch a hunk that parsed and
// "applied" cleanly but produced no net change.
func (e *Engine) changed(oldContent, newContent string) bool {
	for _, d := range e.lineDiff(oldContent, newContent) {
		if d.Type != diffmatchpatch.DiffEqual {
			return true
		}
	}
	return false
}

// idempotent reports whether diffing content against itself yields only
// Equal ops, the trivial stability check Preview runs once per candidate
// result before reporting validation_passed.
func (e *Engine) idempotent(content string) bool {
	for _, d := range e.lineDiff(content, content) {
		if d.Type != diffmatchpatch.DiffEqual {
			return false
		}
	}
	return true
}

// normalizeLineEndings converts CRLF and lone CR to LF, the normalization
// Preview and Apply both require before counting or comparing lines.
func normalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
