// Package validate checks a phase's raw Markdown output against shape
// rules — meta-summary openers, minimum length, required headings —
// before it is canonicalized and staged.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"xchecker/internal/xlog"
)

// bannedOpeners are case-insensitive prefixes that mark a response as a
// meta-summary of work rather than the document itself.
var bannedOpeners = []string{
	"i will",
	"here is",
	"i have created",
	"i've created",
	"perfect!",
	"great!",
	"based on",
	"as requested",
}

// Issue is one validation failure.
type Issue struct {
	Rule    string
	Message string
}

// Result is the outcome of validating one phase's output.
type Result struct {
	Issues []Issue
}

func (r Result) Passed() bool { return len(r.Issues) == 0 }

// Rules bundles the tunable parts of validation for one phase.
type Rules struct {
	MinLength         int
	RequiredHeadings  []string // all must be present (literal substring match)
	RequireAnyOf      [][]string // at least one from each group must be present
}

// DefaultRules returns the rule set for each spec-generation phase.
func DefaultRules() map[string]Rules {
	return map[string]Rules{
		"requirements": {
			MinLength: 400,
			RequiredHeadings: []string{
				"# Requirements Document",
				"## Introduction",
			},
			RequireAnyOf: [][]string{
				{"### Requirement"},
				{"**User Story:**"},
				{"WHEN ", "IF ", "WHERE ", "GIVEN "}, // EARS-style acceptance criteria
			},
		},
		"design": {
			MinLength:    400,
			RequireAnyOf: [][]string{{"## Architecture", "## Components"}},
		},
		"tasks": {
			MinLength:    200,
			RequireAnyOf: [][]string{{"- [ ]", "- [x]", "- [X]"}},
		},
		"review": {
			MinLength: 100,
		},
		"fixup": {
			MinLength: 0,
		},
	}
}

// Validate applies rules for phase to raw (already trimmed). strict
// controls only how the caller should react; Validate always reports every
// issue it finds regardless of mode.
func Validate(phase string, raw string, rules map[string]Rules) Result {
	log := xlog.Get(xlog.CategoryValidate)
	text := strings.TrimSpace(raw)

	var issues []Issue
	if opener := matchedBannedOpener(text); opener != "" {
		issues = append(issues, Issue{Rule: "meta_summary", Message: fmt.Sprintf("output begins with banned opener %q", opener)})
	}

	r, ok := rules[phase]
	if !ok {
		log.Debug("no rules registered for phase %s", phase)
		return Result{Issues: issues}
	}

	if len(text) < r.MinLength {
		issues = append(issues, Issue{
			Rule:    "min_length",
			Message: fmt.Sprintf("output is %d characters, require >= %d", len(text), r.MinLength),
		})
	}

	for _, heading := range r.RequiredHeadings {
		if !strings.Contains(text, heading) {
			issues = append(issues, Issue{Rule: "required_heading", Message: fmt.Sprintf("missing required heading %q", heading)})
		}
	}

	for _, group := range r.RequireAnyOf {
		if !containsAny(text, group) {
			issues = append(issues, Issue{
				Rule:    "required_content",
				Message: fmt.Sprintf("missing at least one of %v", group),
			})
		}
	}

	if len(issues) > 0 {
		log.Warn("phase %s validation found %d issue(s)", phase, len(issues))
	}
	return Result{Issues: issues}
}

func containsAny(text string, candidates []string) bool {
	for _, c := range candidates {
		if strings.Contains(text, c) {
			return true
		}
	}
	return false
}

func matchedBannedOpener(text string) string {
	lower := strings.ToLower(text)
	for _, opener := range bannedOpeners {
		if strings.HasPrefix(lower, opener) {
			return opener
		}
	}
	return ""
}

// earsPattern recognizes the common EARS acceptance-criterion forms;
// reserved for callers that want a stricter check than substring matching.
var earsPattern = regexp.MustCompile(`(?i)\b(WHEN|IF|WHERE|GIVEN)\b.*\bTHEN\b.*\bSHALL\b`)

// HasEARSCriterion reports whether text contains at least one
// WHEN/IF/WHERE/GIVEN ... THEN ... SHALL acceptance criterion.
func HasEARSCriterion(text string) bool {
	return earsPattern.MatchString(text)
}
