// Package receipt creates and persists immutable per-phase receipts: a
// structured, content-addressed record of every input and output of a
// phase invocation. Modeled on codeNERD's JSON-lines audit logger, but
// append-only at one-file-per-receipt granularity instead of a single log.
package receipt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"xchecker/internal/atomicfile"
	"xchecker/internal/canon"
	"xchecker/internal/packet"
	"xchecker/internal/redact"
	"xchecker/internal/sandbox"
	"xchecker/internal/xlog"
)

// Runner identifies the environment the LLM subprocess executed under.
type Runner string

const (
	RunnerNative Runner = "native"
	RunnerWSL    Runner = "wsl"
)

// FileHash is one entry in a receipt's ordered output list.
type FileHash struct {
	Path               string    `json:"path"`
	Kind               canon.Kind `json:"kind"`
	BLAKE3Canonicalized string   `json:"blake3_canonicalized"`
}

// SchemaVersion is the stable receipt schema identifier.
const SchemaVersion = "receipt.v1"

// Receipt is the immutable, append-only record written after every phase
// attempt, successful or not.
type Receipt struct {
	SchemaVersion string            `json:"schema_version"`
	ReceiptID     string            `json:"receipt_id"`
	SpecID        string            `json:"spec_id"`
	Phase         string            `json:"phase"`
	ExitCode      int               `json:"exit_code"`
	Outputs       []FileHash        `json:"outputs"`
	ToolVersions  map[string]string `json:"tool_versions"`
	ModelAlias    string            `json:"model_alias,omitempty"`
	ModelFullName string            `json:"model_full_name"`
	Flags         map[string]string `json:"flags"`
	PacketEvidence []packet.Evidence `json:"packet_evidence"`
	StderrTail    string            `json:"stderr_tail,omitempty"`
	Warnings      []string          `json:"warnings"`
	EmittedAt     string            `json:"emitted_at"` // RFC3339
	Runner        Runner            `json:"runner"`
	RunnerDistro  string            `json:"runner_distro,omitempty"`
}

// maxStderrTail bounds the stored stderr tail to 2 KiB, per the receipt's
// contract that originals are never persisted unredacted or unbounded.
const maxStderrTail = 2048

// Builder accumulates receipt fields for one phase attempt.
type Builder struct {
	r        *redact.Redactor
	specID   string
	phase    string
	exitCode int
	outputs  []FileHash
	tools    map[string]string
	flags    map[string]string
	evidence []packet.Evidence
	warnings []string
	stderr   string
	modelAlias, modelFullName string
	runner   Runner
	distro   string
}

// NewBuilder starts a receipt for specID/phase. redactor may be nil to use
// the package default.
func NewBuilder(specID, phase string, redactor *redact.Redactor) *Builder {
	if redactor == nil {
		redactor = redact.Default()
	}
	return &Builder{
		r:      redactor,
		specID: specID,
		phase:  phase,
		tools:  map[string]string{},
		flags:  map[string]string{},
		runner: RunnerNative,
	}
}

func (b *Builder) WithExitCode(code int) *Builder { b.exitCode = code; return b }

func (b *Builder) WithModel(alias, fullName string) *Builder {
	b.modelAlias, b.modelFullName = alias, fullName
	return b
}

func (b *Builder) WithToolVersion(name, version string) *Builder {
	b.tools[name] = version
	return b
}

func (b *Builder) WithFlag(key, value string) *Builder {
	b.flags[key] = value
	return b
}

func (b *Builder) WithPacketEvidence(evidence []packet.Evidence) *Builder {
	b.evidence = evidence
	return b
}

func (b *Builder) WithWarning(msg string) *Builder {
	b.warnings = append(b.warnings, msg)
	return b
}

func (b *Builder) WithRunner(r Runner, distro string) *Builder {
	b.runner, b.distro = r, distro
	return b
}

// WithStderrTail redacts and truncates raw to at most maxStderrTail chars
// before storing it; raw is never persisted unredacted.
func (b *Builder) WithStderrTail(raw string) *Builder {
	if raw == "" {
		return b
	}
	redacted := b.r.RedactString(raw)
	if len(redacted) > maxStderrTail {
		redacted = redacted[len(redacted)-maxStderrTail:]
	}
	b.stderr = redacted
	return b
}

// AddFileHash records path/kind/canonical-hash for one artifact output.
func (b *Builder) AddFileHash(path string, kind canon.Kind, blake3Hex string) *Builder {
	b.outputs = append(b.outputs, FileHash{Path: path, Kind: kind, BLAKE3Canonicalized: blake3Hex})
	return b
}

// Build produces the final Receipt.
func (b *Builder) Build() Receipt {
	sort.Slice(b.outputs, func(i, j int) bool { return b.outputs[i].Path < b.outputs[j].Path })
	return Receipt{
		SchemaVersion:  SchemaVersion,
		ReceiptID:      uuid.NewString(),
		SpecID:         b.specID,
		Phase:          b.phase,
		ExitCode:       b.exitCode,
		Outputs:        b.outputs,
		ToolVersions:   b.tools,
		ModelAlias:     b.modelAlias,
		ModelFullName:  b.modelFullName,
		Flags:          b.flags,
		PacketEvidence: b.evidence,
		StderrTail:     b.stderr,
		Warnings:       b.warnings,
		EmittedAt:      time.Now().UTC().Format(time.RFC3339),
		Runner:         b.runner,
		RunnerDistro:   b.distro,
	}
}

// Store writes and lists receipts under receipts/ in a spec workspace.
type Store struct {
	root          *sandbox.Root
	receiptsDir   string // relative to root, e.g. "receipts"
}

// NewStore constructs a Store rooted at root, writing under receiptsDir.
func NewStore(root *sandbox.Root, receiptsDir string) *Store {
	return &Store{root: root, receiptsDir: receiptsDir}
}

// Write persists r atomically as receipts/<phase>-<emitted_at>.json, with a
// filesystem-safe rendering of the RFC3339 timestamp.
func (s *Store) Write(r Receipt) (string, error) {
	log := xlog.Get(xlog.CategoryReceipt)

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("receipt: marshal: %w", err)
	}

	safeTS := filesystemSafeTimestamp(r.EmittedAt)
	rel := filepath.ToSlash(filepath.Join(s.receiptsDir, fmt.Sprintf("%s-%s.json", r.Phase, safeTS)))
	p, err := s.root.Join(rel)
	if err != nil {
		return "", fmt.Errorf("receipt: sandbox join: %w", err)
	}

	if _, err := atomicfile.Write(p, data); err != nil {
		return "", fmt.Errorf("receipt: write: %w", err)
	}

	log.Info("receipt written: %s", rel)
	return p.Rel(), nil
}

// List returns every receipt under receiptsDir, ordered by emitted_at
// ascending.
func (s *Store) List() ([]Receipt, error) {
	dir := filepath.Join(s.root.Base(), filepath.FromSlash(s.receiptsDir))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("receipt: list %s: %w", dir, err)
	}

	var receipts []Receipt
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("receipt: read %s: %w", e.Name(), err)
		}
		var r Receipt
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("receipt: parse %s: %w", e.Name(), err)
		}
		receipts = append(receipts, r)
	}

	sort.Slice(receipts, func(i, j int) bool { return receipts[i].EmittedAt < receipts[j].EmittedAt })
	return receipts, nil
}

// filesystemSafeTimestamp replaces characters RFC3339 allows but that are
// awkward in filenames (notably ":") with "-".
func filesystemSafeTimestamp(ts string) string {
	out := make([]byte, len(ts))
	for i := 0; i < len(ts); i++ {
		if ts[i] == ':' {
			out[i] = '-'
		} else {
			out[i] = ts[i]
		}
	}
	return string(out)
}
