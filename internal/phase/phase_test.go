package phase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractMetadata_EmptyDocumentIsAllZero(t *testing.T) {
	m := ExtractMetadata("Build an API")
	assert.Equal(t, 0, m.TotalRequirements)
	assert.Equal(t, 0, m.TotalUserStories)
}

func TestExtractMetadata_CountsRequirementsAndUserStories(t *testing.T) {
	doc := `# Requirements Document

### Requirement 1

**User Story:** As a user, I want X, so that Y.

WHEN the user does X THEN the system SHALL do Y.

### Requirement 2

**User Story:** As an admin, I want Z, so that W.
`
	m := ExtractMetadata(doc)
	assert.Equal(t, 2, m.TotalRequirements)
	assert.Equal(t, 2, m.TotalUserStories)
	assert.Equal(t, 1, m.TotalEARSCriteria)
}

func TestExtractMetadata_CountsTasksButNotSubtasksAsTasks(t *testing.T) {
	doc := "- [ ] Task one\n  - [x] Subtask one\n- [x] Task two\n"
	m := ExtractMetadata(doc)
	assert.Equal(t, 2, m.TotalTasks)
	assert.Equal(t, 1, m.TotalSubtasks)
}

func TestMetadata_ToYAMLNestsUnderMetadataKey(t *testing.T) {
	m := Metadata{TotalRequirements: 3}
	out, err := m.ToYAML()
	require.NoError(t, err)
	assert.Contains(t, out, "metadata:")
	assert.Contains(t, out, "total_requirements: 3")
}

func TestHasFixupMarker_CaseInsensitive(t *testing.T) {
	assert.True(t, HasFixupMarker("FIXUP PLAN:\n..."))
	assert.True(t, HasFixupMarker("the review needs fixups before merge"))
	assert.False(t, HasFixupMarker("everything looks good"))
}

func TestRequirementsPhase_PromptIncludesAntiMetaSummaryPreamble(t *testing.T) {
	p := NewRequirementsPhase()
	prompt := p.Prompt(Context{ProblemStatement: "Build an API"})
	assert.Contains(t, prompt, `Do not begin with "I will"`)
	assert.Contains(t, prompt, "Build an API")
}

func TestRequirementsPhase_PostprocessProducesMdAndCoreYAML(t *testing.T) {
	p := NewRequirementsPhase()
	result, err := p.Postprocess("# Requirements Document\n\nsome content\n", Context{})
	require.NoError(t, err)
	require.Len(t, result.Artifacts, 2)
	assert.Equal(t, "00-requirements.md", result.Artifacts[0].Name)
	assert.Equal(t, "00-requirements.core.yaml", result.Artifacts[1].Name)
	assert.Equal(t, StepContinue, result.NextStep.Kind)
}

func TestReviewPhase_SetsNeedsFixupsMetadataWhenMarkerPresent(t *testing.T) {
	p := NewReviewPhase()
	result, err := p.Postprocess("# Review\n\nFIXUP PLAN:\n```diff\n--- a/x\n+++ b/x\n```\n", Context{})
	require.NoError(t, err)
	assert.Equal(t, "true", result.Metadata["needs_fixups"])
}

func TestDeps_FormLinearChain(t *testing.T) {
	assert.Empty(t, deps[Requirements])
	assert.Equal(t, []ID{Requirements}, deps[Design])
	assert.Equal(t, []ID{Review}, deps[Fixup])
}

func TestExpectedArtifacts_UnknownPhaseReturnsNil(t *testing.T) {
	assert.Nil(t, ExpectedArtifacts(Final))
	assert.Len(t, ExpectedArtifacts(Requirements), 2)
}
