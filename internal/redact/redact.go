// Package redact scans text for secret-shaped substrings and redacts them,
// without ever surfacing the secret itself in a Match's context.
package redact

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"bitbucket.org/creachadair/stringset"
)

// Match describes one detected secret occurrence.
type Match struct {
	PatternID   string
	Path        string
	Line        int // 1-based
	ColumnStart int
	ColumnEnd   int
	Context     string // neighbouring text with the secret replaced by [REDACTED]
}

// Config extends the builtin pattern set with extra patterns and suppresses
// a subset of pattern ids globally.
type Config struct {
	ExtraPatterns map[string]*regexp.Regexp // id -> pattern; stored as extra_pattern_<id> unless already prefixed
	Ignore        stringset.Set
}

// Redactor scans and redacts text against a fixed builtin pattern set plus
// any configured extra patterns, honoring an ignore list of pattern ids.
type Redactor struct {
	patterns []Pattern
}

// defaultRedactor is the process-wide Redactor used by user-facing error
// formatters. It is initialized lazily on first use and is read-only
// thereafter; a per-run Redactor built from configuration overrides it where
// the Packet Builder or Error Reporter have a Config available.
var defaultRedactor = New(Config{})

// Default returns the lazily-initialized, read-only default Redactor.
func Default() *Redactor { return defaultRedactor }

// New builds a Redactor from the builtin patterns plus cfg's extras, with
// cfg's ignore list applied.
func New(cfg Config) *Redactor {
	r := &Redactor{}
	for _, p := range builtinPatterns {
		if cfg.Ignore.Contains(p.ID) {
			continue
		}
		r.patterns = append(r.patterns, p)
	}
	ids := make([]string, 0, len(cfg.ExtraPatterns))
	for id := range cfg.ExtraPatterns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fullID := id
		if !strings.HasPrefix(fullID, "extra_pattern_") {
			fullID = "extra_pattern_" + id
		}
		if cfg.Ignore.Contains(fullID) {
			continue
		}
		r.patterns = append(r.patterns, Pattern{ID: fullID, Regexp: cfg.ExtraPatterns[id]})
	}
	return r
}

type byteRange struct {
	start, end int
	patternID  string
}

// findRanges returns every raw byte range matched by any pattern, sorted by
// start offset.
func (r *Redactor) findRanges(text string) []byteRange {
	var ranges []byteRange
	for _, p := range r.patterns {
		for _, loc := range p.Regexp.FindAllStringIndex(text, -1) {
			ranges = append(ranges, byteRange{loc[0], loc[1], p.ID})
		}
	}
	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].start != ranges[j].start {
			return ranges[i].start < ranges[j].start
		}
		return ranges[i].end > ranges[j].end // widest match first at a given start
	})
	return ranges
}

// mergeOverlapping collapses overlapping/adjacent ranges (from different
// patterns matching the same or overlapping substrings) into the widest
// span seen at each position, keeping the first pattern id encountered.
func mergeOverlapping(ranges []byteRange) []byteRange {
	var merged []byteRange
	for _, rg := range ranges {
		if len(merged) > 0 && rg.start < merged[len(merged)-1].end {
			if rg.end > merged[len(merged)-1].end {
				merged[len(merged)-1].end = rg.end
			}
			continue
		}
		merged = append(merged, rg)
	}
	return merged
}

// Scan returns every Match found in text, one per pattern occurrence,
// ordered by position. Distinct overlapping patterns are each reported as
// their own Match; Redact collapses overlaps when building replacement text.
func (r *Redactor) Scan(text, path string) []Match {
	ranges := r.findRanges(text)
	lineStarts := computeLineStarts(text)

	matches := make([]Match, 0, len(ranges))
	for _, rg := range ranges {
		line, col := lineAndColumn(lineStarts, rg.start)
		matches = append(matches, Match{
			PatternID:   rg.patternID,
			Path:        path,
			Line:        line,
			ColumnStart: col,
			ColumnEnd:   col + (rg.end - rg.start),
			Context:     buildContext(text, rg.start, rg.end),
		})
	}
	return matches
}

// Result is the output of Redact: the redacted text, every match found (in
// the original, pre-redaction coordinates), and whether anything matched.
type Result struct {
	Text       string
	Matches    []Match
	HasSecrets bool
}

// Redact replaces every matched range in text with
// "[REDACTED:<pattern_id>]". Redact is idempotent: redacting already
// redacted text is a no-op because "[REDACTED:...]" markers do not match any
// active pattern.
func (r *Redactor) Redact(text, path string) Result {
	matches := r.Scan(text, path)
	if len(matches) == 0 {
		return Result{Text: text, HasSecrets: false}
	}

	merged := mergeOverlapping(r.findRanges(text))

	var b strings.Builder
	last := 0
	for _, rg := range merged {
		b.WriteString(text[last:rg.start])
		b.WriteString(fmt.Sprintf("[REDACTED:%s]", rg.patternID))
		last = rg.end
	}
	b.WriteString(text[last:])

	return Result{Text: b.String(), Matches: matches, HasSecrets: true}
}

// RedactString is a lightweight "***" replacement for log/error paths: it
// does not compute line/column metadata, just masks every match in place.
func (r *Redactor) RedactString(text string) string {
	out := text
	for _, p := range r.patterns {
		out = p.Regexp.ReplaceAllString(out, "***")
	}
	return out
}

func computeLineStarts(text string) []int {
	starts := []int{0}
	for i, r := range text {
		if r == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func lineAndColumn(lineStarts []int, offset int) (line, col int) {
	for i := len(lineStarts) - 1; i >= 0; i-- {
		if lineStarts[i] <= offset {
			return i + 1, offset - lineStarts[i]
		}
	}
	return 1, offset
}

const contextRadius = 10

// buildContext returns the ±contextRadius characters around [start,end) with
// the match itself replaced by "[REDACTED]", so the secret never appears in
// a struct that might be logged or rendered.
func buildContext(text string, start, end int) string {
	lo := start - contextRadius
	if lo < 0 {
		lo = 0
	}
	hi := end + contextRadius
	if hi > len(text) {
		hi = len(text)
	}
	return text[lo:start] + "[REDACTED]" + text[end:hi]
}
