package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xchecker/internal/artifact"
	"xchecker/internal/canon"
	"xchecker/internal/phase"
	"xchecker/internal/receipt"
	"xchecker/internal/sandbox"
)

func newTestSpecRoot(t *testing.T) *sandbox.Root {
	t.Helper()
	base := t.TempDir()
	for _, dir := range []string{"artifacts", "artifacts/.partial", "receipts"} {
		require.NoError(t, os.MkdirAll(filepath.Join(base, dir), 0o755))
	}
	root, err := sandbox.New(base, sandbox.Config{})
	require.NoError(t, err)
	return root
}

func promote(t *testing.T, store *artifact.Store, name, content string) {
	t.Helper()
	a, err := artifact.New(name, content, canon.KindMarkdown)
	require.NoError(t, err)
	require.NoError(t, store.Stage(a))
	require.NoError(t, store.Promote([]string{name}))
}

func TestPhaseStates_ReportsSucceededOnlyWhenBothArtifactsPromoted(t *testing.T) {
	root := newTestSpecRoot(t)
	store := artifact.NewStore(root, "artifacts")

	promote(t, store, "00-requirements.md", "some requirements")

	states, err := phaseStates(store)
	require.NoError(t, err)

	var requirementsState, designState string
	for _, s := range states {
		switch s.Phase {
		case string(phase.Requirements):
			requirementsState = s.State
		case string(phase.Design):
			designState = s.State
		case string(phase.Final):
			assert.Equal(t, "not_started", s.State)
		}
	}
	assert.Equal(t, "not_started", requirementsState, "the .core.yaml sibling was never promoted")
	assert.Equal(t, "not_started", designState)

	promote(t, store, "00-requirements.core.yaml", "total_requirements: 0\n")
	states, err = phaseStates(store)
	require.NoError(t, err)
	for _, s := range states {
		if s.Phase == string(phase.Requirements) {
			assert.Equal(t, "succeeded", s.State)
		}
	}
}

func TestPendingFixupCount_OneWhenReviewDoneAndFixupIsNot(t *testing.T) {
	root := newTestSpecRoot(t)
	store := artifact.NewStore(root, "artifacts")

	assert.Equal(t, 0, pendingFixupCount(store))

	promote(t, store, "30-review.md", "review body")
	promote(t, store, "30-review.core.yaml", "needs_fixups: true\n")
	assert.Equal(t, 1, pendingFixupCount(store))

	promote(t, store, "40-fixup.md", "fixup body")
	promote(t, store, "40-fixup.core.yaml", "applied: true\n")
	assert.Equal(t, 0, pendingFixupCount(store))
}

func TestLatestOutputHashes_LaterReceiptOverwritesEarlier(t *testing.T) {
	root := newTestSpecRoot(t)
	store := receipt.NewStore(root, "receipts")

	first := receipt.NewBuilder("s1", "requirements", nil).
		WithExitCode(0).
		AddFileHash("00-requirements.md", canon.KindMarkdown, "aaaa1111").
		Build()
	_, err := store.Write(first)
	require.NoError(t, err)

	second := receipt.NewBuilder("s1", "requirements", nil).
		WithExitCode(0).
		AddFileHash("00-requirements.md", canon.KindMarkdown, "bbbb2222").
		Build()
	_, err = store.Write(second)
	require.NoError(t, err)

	hashes, err := latestOutputHashes(store)
	require.NoError(t, err)
	assert.Equal(t, "bbbb2222", hashes["00-requirements.md"])
}

func TestIsLocked_FalseWhenNoOtherHolderExists(t *testing.T) {
	root := newTestSpecRoot(t)
	assert.False(t, isLocked(root))
}
