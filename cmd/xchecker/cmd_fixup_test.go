package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xchecker/internal/config"
)

// withTestWorkspace points the package-level workspace/spec-id/cfg globals
// at a fresh temp directory for the duration of one test, the state
// specRoot() and loadReviewDiffs() read from.
func withTestWorkspace(t *testing.T) {
	t.Helper()
	workspace = t.TempDir()
	specIDRaw = "fixup-cmd-test"
	cfg = config.DefaultConfig()
	t.Cleanup(func() {
		workspace = ""
		specIDRaw = ""
		cfg = nil
	})
}

const reviewWithFixupPlan = "Review found one issue.\n\nFIXUP PLAN:\n\n```diff\n--- a/src/a\n+++ b/src/a\n@@ -1,1 +1,1 @@\n-old\n+new\n```\n"

func TestLoadReviewDiffs_ParsesFencedBlockAfterMarker(t *testing.T) {
	withTestWorkspace(t)

	root, _, err := specRoot()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root.Base(), "artifacts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root.Base(), "artifacts", "30-review.md"), []byte(reviewWithFixupPlan), 0o644))

	diffs, messages, err := loadReviewDiffs()
	require.NoError(t, err)
	assert.Empty(t, messages)
	require.Len(t, diffs, 1)
	assert.Equal(t, "src/a", diffs[0].TargetPath)
}

func TestLoadReviewDiffs_NoMarkerReturnsNoDiffs(t *testing.T) {
	withTestWorkspace(t)

	root, _, err := specRoot()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root.Base(), "artifacts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root.Base(), "artifacts", "30-review.md"), []byte("Review found nothing to fix."), 0o644))

	diffs, messages, err := loadReviewDiffs()
	require.NoError(t, err)
	assert.Empty(t, messages)
	assert.Empty(t, diffs)
}
