// Package fixup parses unified diffs out of Review-phase output and applies
// them to the spec workspace under sandbox policy, with fuzzy hunk
// re-anchoring when the target file has drifted from the diff's original
// context.
package fixup

import (
	"fmt"
	"regexp"
	"strings"

	sgdiff "github.com/sourcegraph/go-diff/diff"
)

// markerPattern matches the case-insensitive markers that indicate a Review
// document carries a fixup plan worth acting on.
var markerPattern = regexp.MustCompile(`(?i)fixup plan:|needs fixups`)

// HasMarker reports whether text contains a fixup marker.
func HasMarker(text string) bool {
	return markerPattern.MatchString(text)
}

// fencedDiffPattern captures the body of a ```diff ... ``` fenced block.
var fencedDiffPattern = regexp.MustCompile("(?s)```diff\\s*\\n(.*?)```")

// ExtractDiffBlocks returns the body of every ```diff fenced code block
// appearing after the first fixup marker in text. If text carries no
// marker, it returns nil: there is nothing to do.
func ExtractDiffBlocks(text string) []string {
	loc := markerPattern.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	rest := text[loc[1]:]

	matches := fencedDiffPattern.FindAllStringSubmatch(rest, -1)
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		block := strings.TrimRight(m[1], "\n")
		if strings.TrimSpace(block) != "" {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

// Line is one line of a hunk body, tagged with its diff role.
type Line struct {
	Kind byte // ' ', '+', or '-'
	Text string
}

// Hunk is one `@@ -old_start,old_count +new_start,new_count @@` block.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// FileDiff is one parsed diff block targeting a single file.
type FileDiff struct {
	TargetPath string
	Hunks      []Hunk
}

// ParseError reports a diff block that could not be parsed into a FileDiff.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return fmt.Sprintf("fixup: %s", e.Reason) }

// ParseDiffBlock parses one unified-diff block (as extracted by
// ExtractDiffBlocks) into a FileDiff, using go-diff for header and hunk
// parsing. The target path is taken from the +++ header, falling back to
// --- when +++ names /dev/null, with any leading "a/" or "b/" stripped.
func ParseDiffBlock(block string) (*FileDiff, error) {
	normalized := strings.ReplaceAll(block, "\r\n", "\n")
	if !strings.HasSuffix(normalized, "\n") {
		normalized += "\n"
	}

	fd, err := sgdiff.ParseFileDiff([]byte(normalized))
	if err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("could not parse diff headers/hunks: %v", err)}
	}

	target := stripGitPrefix(fd.NewName)
	if target == "" || target == "/dev/null" {
		target = stripGitPrefix(fd.OrigName)
	}
	if target == "" || target == "/dev/null" {
		return nil, &ParseError{Reason: "diff block names no target path"}
	}

	hunks := make([]Hunk, 0, len(fd.Hunks))
	for _, h := range fd.Hunks {
		hunks = append(hunks, Hunk{
			OldStart: int(h.OrigStartLine),
			OldCount: int(h.OrigLines),
			NewStart: int(h.NewStartLine),
			NewCount: int(h.NewLines),
			Lines:    parseHunkBody(h.Body),
		})
	}
	if len(hunks) == 0 {
		return nil, &ParseError{Reason: "diff block has no hunks"}
	}

	return &FileDiff{TargetPath: target, Hunks: hunks}, nil
}

// parseHunkBody splits a go-diff Hunk.Body into role-tagged lines.
func parseHunkBody(body []byte) []Line {
	text := strings.TrimSuffix(string(body), "\n")
	if text == "" {
		return nil
	}
	rawLines := strings.Split(text, "\n")
	lines := make([]Line, 0, len(rawLines))
	for _, raw := range rawLines {
		if raw == "" {
			lines = append(lines, Line{Kind: ' ', Text: ""})
			continue
		}
		kind := raw[0]
		if kind != '+' && kind != '-' && kind != ' ' {
			kind = ' '
			lines = append(lines, Line{Kind: kind, Text: raw})
			continue
		}
		lines = append(lines, Line{Kind: kind, Text: raw[1:]})
	}
	return lines
}

// stripGitPrefix removes a leading "a/" or "b/" from a diff header path.
func stripGitPrefix(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		return name[2:]
	}
	return name
}

// ParseAll parses every diff block with ExtractDiffBlocks already applied,
// returning the successfully parsed diffs and a message per block that
// failed to parse.
func ParseAll(blocks []string) ([]*FileDiff, []string) {
	diffs := make([]*FileDiff, 0, len(blocks))
	var messages []string
	for i, block := range blocks {
		fd, err := ParseDiffBlock(block)
		if err != nil {
			messages = append(messages, fmt.Sprintf("block %d: %v", i, err))
			continue
		}
		diffs = append(diffs, fd)
	}
	return diffs, messages
}
