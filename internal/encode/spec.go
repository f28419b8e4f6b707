package encode

import "xchecker/internal/redact"

// SpecSchemaVersion is spec-json's stable schema identifier.
const SpecSchemaVersion = "spec-json.v1"

// ConfigDigest is spec-json's no-content configuration summary: names the
// effective knobs without echoing any file content.
type ConfigDigest struct {
	LockDrift        string `json:"lock_drift"`
	PhaseTimeout     string `json:"phase_timeout"`
	StrictValidation bool   `json:"strict_validation"`
}

// Spec is the spec-json.v1 document: a top-level view of a workspace with
// no content fields.
type Spec struct {
	SchemaVersion string        `json:"schema_version"`
	SpecID        string        `json:"spec_id"`
	Phases        []PhaseStatus `json:"phases"`
	ConfigSummary ConfigDigest  `json:"config_summary"`
}

// BuildSpec assembles a Spec document from already-gathered state.
func BuildSpec(specID string, phases []PhaseStatus, cfg ConfigInfo) Spec {
	return Spec{
		SchemaVersion: SpecSchemaVersion,
		SpecID:        specID,
		Phases:        phases,
		ConfigSummary: ConfigDigest{
			LockDrift:        cfg.LockDrift,
			PhaseTimeout:     cfg.PhaseTimeout,
			StrictValidation: cfg.StrictValidation,
		},
	}
}

// EncodeSpec renders s as redacted, indented JSON.
func EncodeSpec(s Spec, redactor *redact.Redactor) ([]byte, error) {
	return marshalRedacted(s, redactor)
}
