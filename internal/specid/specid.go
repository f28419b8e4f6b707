// Package specid sanitizes and validates spec identifiers used as directory
// names under .xchecker/specs/.
package specid

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Sanitize normalizes raw to NFKC, retains only [A-Za-z0-9._-], replacing
// every other rune with '_', then collapses runs of '.' to a single '.' to
// prevent accidental traversal segments ("..", "...") from surviving.
//
// Sanitize never fails; pair it with Validate to reject the degenerate case
// where nothing usable survives.
func Sanitize(raw string) string {
	normalized := norm.NFKC.String(raw)

	var b strings.Builder
	b.Grow(len(normalized))
	for _, r := range normalized {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	collapsed := collapseDots(b.String())
	return collapsed
}

func collapseDots(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	runDot := false
	for _, r := range s {
		if r == '.' {
			if runDot {
				continue
			}
			runDot = true
		} else {
			runDot = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Validate reports whether id is a non-empty string containing at least one
// alphanumeric, '-', or '.' character. Call after Sanitize.
func Validate(id string) error {
	if id == "" {
		return fmt.Errorf("specid: sanitized id is empty")
	}
	hasUseful := strings.ContainsFunc(id, func(r rune) bool {
		return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '.'
	})
	if !hasUseful {
		return fmt.Errorf("specid: %q contains no alphanumeric, '-', or '.' character", id)
	}
	return nil
}

// Normalize is Sanitize followed by Validate, returning the usable id or an
// error describing why raw could not be turned into one.
func Normalize(raw string) (string, error) {
	id := Sanitize(raw)
	if err := Validate(id); err != nil {
		return "", err
	}
	return id, nil
}
