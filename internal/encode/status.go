package encode

import (
	"github.com/dustin/go-humanize"

	"xchecker/internal/redact"
)

// StatusSchemaVersion is status-json's stable schema identifier.
const StatusSchemaVersion = "status-json.v2"

// PhaseStatus is one phase's position in the workflow.
type PhaseStatus struct {
	Phase string `json:"phase"`
	State string `json:"state"`
}

// ArtifactSummary is one promoted artifact's name and truncated hash.
type ArtifactSummary struct {
	Name         string `json:"name"`
	BLAKE3Prefix string `json:"blake3_prefix"`
}

// ConfigSummary is the effective configuration snapshot Status JSON embeds,
// with byte budgets rendered human-readable alongside their raw value.
type ConfigSummary struct {
	BudgetMaxBytes        int64  `json:"budget_max_bytes"`
	BudgetMaxBytesHuman   string `json:"budget_max_bytes_human"`
	BudgetMaxLines        int64  `json:"budget_max_lines"`
	LockDrift             string `json:"lock_drift"`
	PhaseTimeout          string `json:"phase_timeout"`
	StrictValidation      bool   `json:"strict_validation"`
}

// ArtifactInfo is the input form BuildStatus accepts for one artifact.
type ArtifactInfo struct {
	Name   string
	BLAKE3 string
}

// ConfigInfo is the input form BuildStatus accepts for the effective
// configuration.
type ConfigInfo struct {
	MaxBytes         int64
	MaxLines         int64
	LockDrift        string
	PhaseTimeout     string
	StrictValidation bool
}

// Status is the status-json.v2 document.
type Status struct {
	SchemaVersion     string            `json:"schema_version"`
	SpecID            string            `json:"spec_id"`
	Phases            []PhaseStatus     `json:"phases"`
	Artifacts         []ArtifactSummary `json:"artifacts"`
	Config            ConfigSummary     `json:"config"`
	PendingFixupCount int               `json:"pending_fixup_count"`
	LockDrifted       bool              `json:"lock_drifted"`
}

// BuildStatus assembles a Status from already-gathered phase states,
// promoted artifacts, and effective configuration.
func BuildStatus(specID string, phases []PhaseStatus, artifacts []ArtifactInfo, cfg ConfigInfo, pendingFixupCount int, lockDrifted bool) Status {
	summaries := make([]ArtifactSummary, 0, len(artifacts))
	for _, a := range artifacts {
		summaries = append(summaries, ArtifactSummary{Name: a.Name, BLAKE3Prefix: blake3Prefix(a.BLAKE3)})
	}

	return Status{
		SchemaVersion: StatusSchemaVersion,
		SpecID:        specID,
		Phases:        phases,
		Artifacts:     summaries,
		Config: ConfigSummary{
			BudgetMaxBytes:      cfg.MaxBytes,
			BudgetMaxBytesHuman: humanize.Bytes(uint64(cfg.MaxBytes)),
			BudgetMaxLines:      cfg.MaxLines,
			LockDrift:           cfg.LockDrift,
			PhaseTimeout:        cfg.PhaseTimeout,
			StrictValidation:    cfg.StrictValidation,
		},
		PendingFixupCount: pendingFixupCount,
		LockDrifted:       lockDrifted,
	}
}

// EncodeStatus renders s as redacted, indented JSON.
func EncodeStatus(s Status, redactor *redact.Redactor) ([]byte, error) {
	return marshalRedacted(s, redactor)
}
