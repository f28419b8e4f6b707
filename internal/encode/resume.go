package encode

import "xchecker/internal/redact"

// ResumeSchemaVersion is resume-json's stable schema identifier.
const ResumeSchemaVersion = "resume-json.v1"

// CurrentInputs is the subset of workspace state Resume JSON reports,
// deliberately excluding raw artifact content.
type CurrentInputs struct {
	AvailableArtifacts []string `json:"available_artifacts"`
	SpecExists         bool     `json:"spec_exists"`
	LatestCompleted    string   `json:"latest_completed_phase"`
}

// Resume is the resume-json.v1 document: where a run would pick up if
// resumed now.
type Resume struct {
	SchemaVersion string        `json:"schema_version"`
	SpecID        string        `json:"spec_id"`
	Phase         string        `json:"phase"`
	CurrentInputs CurrentInputs `json:"current_inputs"`
	NextSteps     []string      `json:"next_steps"`
}

// BuildResume assembles a Resume document from already-gathered state.
func BuildResume(specID, phase string, availableArtifacts []string, specExists bool, latestCompleted string, nextSteps []string) Resume {
	return Resume{
		SchemaVersion: ResumeSchemaVersion,
		SpecID:        specID,
		Phase:         phase,
		CurrentInputs: CurrentInputs{
			AvailableArtifacts: availableArtifacts,
			SpecExists:         specExists,
			LatestCompleted:    latestCompleted,
		},
		NextSteps: nextSteps,
	}
}

// EncodeResume renders r as redacted, indented JSON.
func EncodeResume(r Resume, redactor *redact.Redactor) ([]byte, error) {
	return marshalRedacted(r, redactor)
}
