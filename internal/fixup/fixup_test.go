package fixup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xchecker/internal/phase"
	"xchecker/internal/sandbox"
)

func TestHasMarker_CaseInsensitive(t *testing.T) {
	assert.True(t, HasMarker("FIXUP PLAN:\n```diff\n```"))
	assert.True(t, HasMarker("the review needs fixups before merge"))
	assert.False(t, HasMarker("everything looks good"))
}

func TestExtractDiffBlocks_OnlyAfterMarker(t *testing.T) {
	text := "```diff\n--- a/ignored\n+++ b/ignored\n@@ -1,1 +1,1 @@\n-x\n+y\n```\n\nFIXUP PLAN:\n\n```diff\n--- a/src/a\n+++ b/src/a\n@@ -1,1 +1,1 @@\n-old\n+new\n```\n"
	blocks := ExtractDiffBlocks(text)
	require.Len(t, blocks, 1)
	assert.Contains(t, blocks[0], "src/a")
}

func TestExtractDiffBlocks_NoMarkerReturnsNil(t *testing.T) {
	assert.Nil(t, ExtractDiffBlocks("nothing to see here"))
}

func exampleDiffBlock(targetPath string) string {
	return "--- a/" + targetPath + "\n" +
		"+++ b/" + targetPath + "\n" +
		"@@ -1,3 +1,4 @@\n" +
		" line1\n" +
		"-line2\n" +
		"+line2a\n" +
		"+line2b\n" +
		" line3\n"
}

func TestParseDiffBlock_ExtractsTargetPathAndHunkCounts(t *testing.T) {
	fd, err := ParseDiffBlock(exampleDiffBlock("src/a"))
	require.NoError(t, err)
	assert.Equal(t, "src/a", fd.TargetPath)
	require.Len(t, fd.Hunks, 1)
	assert.Equal(t, 1, fd.Hunks[0].OldStart)
	assert.Equal(t, 3, fd.Hunks[0].OldCount)
	assert.Equal(t, 4, fd.Hunks[0].NewCount)
}

func TestParseDiffBlock_RejectsHeaderlessText(t *testing.T) {
	_, err := ParseDiffBlock("not a diff at all")
	assert.Error(t, err)
}

func newTestRoot(t *testing.T, files map[string]string) *sandbox.Root {
	t.Helper()
	base := t.TempDir()
	for name, content := range files {
		full := filepath.Join(base, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	root, err := sandbox.New(base, sandbox.Config{})
	require.NoError(t, err)
	return root
}

// TestPreview_AddsTwoLinesRemovesOne mirrors the E5 scenario: a one-hunk
// diff adding two lines and removing one reports a validated, two-line-
// added/one-line-removed change summary for its single target file.
func TestPreview_AddsTwoLinesRemovesOne(t *testing.T) {
	root := newTestRoot(t, map[string]string{"src/a": "line1\nline2\nline3\n"})
	fd, err := ParseDiffBlock(exampleDiffBlock("src/a"))
	require.NoError(t, err)

	preview := Preview(root, []*FileDiff{fd})

	assert.Equal(t, []string{"src/a"}, preview.TargetFiles)
	summary := preview.ChangeSummary["src/a"]
	assert.Equal(t, 1, summary.HunkCount)
	assert.Equal(t, 2, summary.LinesAdded)
	assert.Equal(t, 1, summary.LinesRemoved)
	assert.True(t, summary.ValidationPassed)
	assert.True(t, preview.AllValid)
}

func TestPreview_MissingTargetFileFailsValidation(t *testing.T) {
	root := newTestRoot(t, map[string]string{})
	fd, err := ParseDiffBlock(exampleDiffBlock("src/missing"))
	require.NoError(t, err)

	preview := Preview(root, []*FileDiff{fd})

	assert.False(t, preview.AllValid)
	assert.False(t, preview.ChangeSummary["src/missing"].ValidationPassed)
}

func TestApply_WritesResultAndBackupAndRestoresPermissions(t *testing.T) {
	root := newTestRoot(t, map[string]string{"src/a": "line1\nline2\nline3\n"})
	fd, err := ParseDiffBlock(exampleDiffBlock("src/a"))
	require.NoError(t, err)

	result := Apply(root, []*FileDiff{fd})

	require.Len(t, result.AppliedFiles, 1)
	applied := result.AppliedFiles[0]
	assert.Equal(t, "src/a", applied.Path)
	assert.True(t, applied.Applied)
	assert.Len(t, applied.BLAKE3First8, 8)

	content, err := os.ReadFile(filepath.Join(root.Base(), "src", "a"))
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2a\nline2b\nline3\n", string(content))

	_, statErr := os.Stat(filepath.Join(root.Base(), "src", "a.bak"))
	assert.NoError(t, statErr)
}

func TestApply_FailureIsRecordedAndBatchContinues(t *testing.T) {
	root := newTestRoot(t, map[string]string{"src/a": "line1\nline2\nline3\n"})
	missing, err := ParseDiffBlock(exampleDiffBlock("src/missing"))
	require.NoError(t, err)
	present, err := ParseDiffBlock(exampleDiffBlock("src/a"))
	require.NoError(t, err)

	result := Apply(root, []*FileDiff{missing, present})

	require.Len(t, result.FailedFiles, 1)
	assert.Equal(t, "src/missing", result.FailedFiles[0].Path)
	require.Len(t, result.AppliedFiles, 1)
	assert.Equal(t, "src/a", result.AppliedFiles[0].Path)
}

// TestApplyHunks_FuzzyMatchFailsWhenDriftExceedsWindow mirrors the hunk-at-
// sixty-lines-drift scenario: a hunk declaring old_start 1 whose real
// context sits 60 lines below falls outside the +/-50 fuzzy window and
// fails with FuzzyMatchFailed.
func TestApplyHunks_FuzzyMatchFailsWhenDriftExceedsWindow(t *testing.T) {
	filler := make([]string, 60)
	for i := range filler {
		filler[i] = "filler"
	}
	original := strings.Join(filler, "\n") + "\ntarget1\ntarget2\ntarget3\n"

	hunk := Hunk{
		OldStart: 1,
		OldCount: 3,
		NewStart: 1,
		NewCount: 3,
		Lines: []Line{
			{Kind: ' ', Text: "target1"},
			{Kind: '-', Text: "target2"},
			{Kind: '+', Text: "target2-fixed"},
			{Kind: ' ', Text: "target3"},
		},
	}

	_, err := applyHunks(original, []Hunk{hunk})
	require.Error(t, err)
	var fuzzyErr *FuzzyMatchFailed
	require.ErrorAs(t, err, &fuzzyErr)
	assert.Equal(t, 1, fuzzyErr.ExpectedLine)
	assert.Equal(t, fuzzySearchWindow, fuzzyErr.SearchWindow)
}

// TestApplyHunks_FuzzyMatchSucceedsWithinWindowAndWhitespaceDrift confirms a
// hunk whose context drifted a few lines and gained re-indentation still
// anchors via the fuzzy path.
func TestApplyHunks_FuzzyMatchSucceedsWithinWindowAndWhitespaceDrift(t *testing.T) {
	original := "padding1\npadding2\n  target1\ntarget2\ntarget3\n"

	hunk := Hunk{
		OldStart: 1,
		OldCount: 3,
		NewStart: 1,
		NewCount: 3,
		Lines: []Line{
			{Kind: ' ', Text: "target1"},
			{Kind: '-', Text: "target2"},
			{Kind: '+', Text: "target2-fixed"},
			{Kind: ' ', Text: "target3"},
		},
	}

	result, err := applyHunks(original, []Hunk{hunk})
	require.NoError(t, err)
	assert.Contains(t, result, "target2-fixed")
	assert.Contains(t, result, "padding1")
}

func TestInferRewindTarget_PicksEarliestPhase(t *testing.T) {
	result := FixupResult{
		AppliedFiles: []AppliedFile{
			{Path: "artifacts/20-tasks.md", Applied: true},
			{Path: "artifacts/10-design.md", Applied: true},
		},
	}

	target, ok := InferRewindTarget(result)
	require.True(t, ok)
	assert.Equal(t, phase.Design, target)
}

func TestInferRewindTarget_NoPhaseNameReturnsNotOK(t *testing.T) {
	result := FixupResult{AppliedFiles: []AppliedFile{{Path: "artifacts/30-review.md", Applied: true}}}

	_, ok := InferRewindTarget(result)
	assert.False(t, ok)
}
