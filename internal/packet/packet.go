// Package packet assembles the context packet handed to the LLM for a
// phase: priority-ordered file content, budget-enforced, scanned for
// secrets before anything leaves the process.
package packet

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/zeebo/blake3"

	"xchecker/internal/atomicfile"
	"xchecker/internal/redact"
	"xchecker/internal/sandbox"
	"xchecker/internal/selector"
	"xchecker/internal/xlog"
)

// hashPacket returns the lowercase-hex BLAKE3 digest of the exact packet
// bytes handed to the LLM, with no further normalization: the packet is
// already a fixed string, not a file kind the Canonicalizer understands.
func hashPacket(text string) string {
	sum := blake3.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Budget bounds the packet's size.
type Budget struct {
	MaxBytes int64
	MaxLines int64
}

// Evidence records one file's contribution to a packet, in the order it was
// appended.
type Evidence struct {
	Path               string
	Priority           selector.Priority
	BLAKE3PreRedaction string
	Bytes              int
	Lines              int
}

// Packet is the assembled, budget-checked, redacted context handed to the
// LLM for one phase invocation.
type Packet struct {
	Content          string
	BLAKE3PostRedact string
	Evidence         []Evidence
	BudgetUsedBytes  int64
	BudgetUsedLines  int64
}

// SecretDetected is returned when the pre-LLM secret scan finds a match in
// any selected file. No LLM call is made when this error is returned.
type SecretDetected struct {
	PatternID string
	Path      string
	Line      int
}

func (e *SecretDetected) Error() string {
	return fmt.Sprintf("packet: secret detected in %s:%d (pattern %s)", e.Path, e.Line, e.PatternID)
}

// Overflow is returned when the Upstream-only phase-1 pass alone exceeds
// budget; Upstream files are never evicted to make room.
type Overflow struct {
	UsedBytes int64
	UsedLines int64
	MaxBytes  int64
	MaxLines  int64
}

func (e *Overflow) Error() string {
	return fmt.Sprintf("packet: budget overflow: used=%d bytes/%d lines, max=%d bytes/%d lines",
		e.UsedBytes, e.UsedLines, e.MaxBytes, e.MaxLines)
}

// Builder assembles packets from selected files, a budget, and a Redactor.
type Builder struct {
	Budget       Budget
	Redactor     *redact.Redactor
	DebugPackets bool
}

// NewBuilder constructs a Builder.
func NewBuilder(budget Budget, redactor *redact.Redactor, debugPackets bool) *Builder {
	if redactor == nil {
		redactor = redact.Default()
	}
	return &Builder{Budget: budget, Redactor: redactor, DebugPackets: debugPackets}
}

// Build runs the packet-building algorithm over files (already selected by
// the Selector, unsorted) and writes the packet preview (and, on overflow,
// a manifest; and, in debug mode, an unredacted copy) under contextRoot via
// root. phase names the files written, e.g. "requirements".
func (b *Builder) Build(root *sandbox.Root, contextRoot string, phase string, files []selector.File) (*Packet, error) {
	log := xlog.Get(xlog.CategoryPacket)
	ordered := selector.SortForPacket(files)

	for _, f := range ordered {
		if matches := b.Redactor.Scan(f.Content, f.Path); len(matches) > 0 {
			m := matches[0]
			log.Warn("secret detected pre-LLM: %s:%d pattern=%s", f.Path, m.Line, m.PatternID)
			return nil, &SecretDetected{PatternID: m.PatternID, Path: f.Path, Line: m.Line}
		}
	}

	var (
		content         []byte
		evidence        []Evidence
		usedBytes       int64
		usedLines       int64
		upstreamOnlyEnd int
	)

	for i, f := range ordered {
		if f.Priority != selector.PriorityUpstream {
			break
		}
		upstreamOnlyEnd = i + 1
	}

	appendFile := func(f selector.File) {
		content = append(content, []byte(f.Content)...)
		evidence = append(evidence, Evidence{
			Path:               f.Path,
			Priority:           f.Priority,
			BLAKE3PreRedaction: f.BLAKE3PreRedaction,
			Bytes:              f.Bytes,
			Lines:              f.Lines,
		})
		usedBytes += int64(f.Bytes)
		usedLines += int64(f.Lines)
	}

	for _, f := range ordered[:upstreamOnlyEnd] {
		appendFile(f)
	}

	if b.overBudget(usedBytes, usedLines) {
		overflow := &Overflow{UsedBytes: usedBytes, UsedLines: usedLines, MaxBytes: b.Budget.MaxBytes, MaxLines: b.Budget.MaxLines}
		redacted := b.Redactor.Redact(string(content), phase)
		if err := b.writePreview(root, contextRoot, phase, redacted.Text); err != nil {
			return nil, err
		}
		if err := b.writeManifest(root, contextRoot, phase, overflow, evidence); err != nil {
			return nil, err
		}
		return nil, overflow
	}

	for _, f := range ordered[upstreamOnlyEnd:] {
		wouldBytes := usedBytes + int64(f.Bytes)
		wouldLines := usedLines + int64(f.Lines)
		if b.overBudget(wouldBytes, wouldLines) {
			log.Debug("dropping %s (priority=%s) to stay within budget", f.Path, f.Priority)
			continue
		}
		appendFile(f)
	}

	redacted := b.Redactor.Redact(string(content), phase)
	if err := b.writePreview(root, contextRoot, phase, redacted.Text); err != nil {
		return nil, err
	}
	if b.DebugPackets {
		if err := b.writeDebugCopy(root, contextRoot, phase, string(content)); err != nil {
			return nil, err
		}
	}

	hash := hashPacket(redacted.Text)
	log.Info("packet built for phase %s: %d bytes, %d files", phase, len(redacted.Text), len(evidence))

	return &Packet{
		Content:          redacted.Text,
		BLAKE3PostRedact: hash,
		Evidence:         evidence,
		BudgetUsedBytes:  usedBytes,
		BudgetUsedLines:  usedLines,
	}, nil
}

func (b *Builder) overBudget(bytes, lines int64) bool {
	if b.Budget.MaxBytes > 0 && bytes > b.Budget.MaxBytes {
		return true
	}
	if b.Budget.MaxLines > 0 && lines > b.Budget.MaxLines {
		return true
	}
	return false
}

func (b *Builder) writePreview(root *sandbox.Root, contextRoot, phase, text string) error {
	rel := filepath.ToSlash(filepath.Join(contextRoot, phase+"-packet.txt"))
	p, err := root.Join(rel)
	if err != nil {
		return fmt.Errorf("packet: sandbox join preview: %w", err)
	}
	_, err = atomicfile.Write(p, []byte(text))
	return err
}

func (b *Builder) writeDebugCopy(root *sandbox.Root, contextRoot, phase, text string) error {
	rel := filepath.ToSlash(filepath.Join(contextRoot, phase+"-packet-debug.txt"))
	p, err := root.Join(rel)
	if err != nil {
		return fmt.Errorf("packet: sandbox join debug: %w", err)
	}
	_, err = atomicfile.Write(p, []byte(text))
	return err
}

type manifestFile struct {
	Path               string `json:"path"`
	Priority           string `json:"priority"`
	BLAKE3PreRedaction string `json:"blake3_pre_redaction"`
	Bytes              int    `json:"bytes"`
	Lines              int    `json:"lines"`
}

type manifestDoc struct {
	UsedBytes int64          `json:"used_bytes"`
	UsedLines int64          `json:"used_lines"`
	MaxBytes  int64          `json:"max_bytes"`
	MaxLines  int64          `json:"max_lines"`
	Files     []manifestFile `json:"files"`
}

func (b *Builder) writeManifest(root *sandbox.Root, contextRoot, phase string, overflow *Overflow, evidence []Evidence) error {
	doc := manifestDoc{
		UsedBytes: overflow.UsedBytes,
		UsedLines: overflow.UsedLines,
		MaxBytes:  overflow.MaxBytes,
		MaxLines:  overflow.MaxLines,
	}
	for _, e := range evidence {
		doc.Files = append(doc.Files, manifestFile{
			Path:               e.Path,
			Priority:           e.Priority.String(),
			BLAKE3PreRedaction: e.BLAKE3PreRedaction,
			Bytes:              e.Bytes,
			Lines:              e.Lines,
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("packet: marshal manifest: %w", err)
	}

	rel := filepath.ToSlash(filepath.Join(contextRoot, phase+"-packet.manifest.json"))
	p, err := root.Join(rel)
	if err != nil {
		return fmt.Errorf("packet: sandbox join manifest: %w", err)
	}
	_, err = atomicfile.Write(p, data)
	return err
}
