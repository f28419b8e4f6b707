package encode

import "xchecker/internal/redact"

// GateSchemaVersion is gate-json's stable schema identifier.
const GateSchemaVersion = "gate-json.v1"

// Gate is the gate-json.v1 document: a pass/fail verdict over a fixed set
// of named conditions, for CI-style consumption.
type Gate struct {
	SchemaVersion   string   `json:"schema_version"`
	SpecID          string   `json:"spec_id"`
	Passed          bool     `json:"passed"`
	Conditions      []string `json:"conditions"`
	FailureReasons  []string `json:"failure_reasons"`
	Summary         string   `json:"summary"`
}

// BuildGate assembles a Gate document. passed is true only when
// failureReasons is empty; conditions names every condition evaluated,
// regardless of outcome.
func BuildGate(specID string, conditions, failureReasons []string, summary string) Gate {
	return Gate{
		SchemaVersion:  GateSchemaVersion,
		SpecID:         specID,
		Passed:         len(failureReasons) == 0,
		Conditions:     conditions,
		FailureReasons: failureReasons,
		Summary:        summary,
	}
}

// EncodeGate renders g as redacted, indented JSON.
func EncodeGate(g Gate, redactor *redact.Redactor) ([]byte, error) {
	return marshalRedacted(g, redactor)
}
