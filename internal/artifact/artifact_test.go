package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xchecker/internal/canon"
	"xchecker/internal/sandbox"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "artifacts", partialDir), 0o755))
	root, err := sandbox.New(base, sandbox.Config{})
	require.NoError(t, err)
	return NewStore(root, "artifacts")
}

func TestNew_ComputesHashOverCanonicalContent(t *testing.T) {
	a, err := New("00-requirements.md", "# Requirements Document\r\n\r\n\r\ntrailing   \n", canon.KindMarkdown)
	require.NoError(t, err)
	assert.NotEmpty(t, a.BLAKE3)
	assert.NotContains(t, a.Content, "\r")
}

func TestStage_RejectsTamperedHash(t *testing.T) {
	store := newTestStore(t)
	a := Artifact{Name: "x.md", Content: "hello", Kind: canon.KindMarkdown, BLAKE3: "not-a-real-hash"}

	err := store.Stage(a)
	assert.Error(t, err)
}

func TestStageThenPromote_MakesArtifactVisibleInList(t *testing.T) {
	store := newTestStore(t)
	a, err := New("00-requirements.md", "# Requirements Document\n", canon.KindMarkdown)
	require.NoError(t, err)

	require.NoError(t, store.Stage(a))

	names, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, names, "staged artifacts are not yet visible under artifacts/")

	require.NoError(t, store.Promote([]string{a.Name}))

	names, err = store.List()
	require.NoError(t, err)
	assert.Contains(t, names, a.Name)
}

func TestPhaseCompleted_TrueOnlyWhenAllExpectedPresent(t *testing.T) {
	store := newTestStore(t)
	md, err := New("00-requirements.md", "# Requirements Document\n", canon.KindMarkdown)
	require.NoError(t, err)
	require.NoError(t, store.Stage(md))
	require.NoError(t, store.Promote([]string{md.Name}))

	done, err := store.PhaseCompleted([]string{"00-requirements.md", "00-requirements.core.yaml"})
	require.NoError(t, err)
	assert.False(t, done)

	done, err = store.PhaseCompleted([]string{"00-requirements.md"})
	require.NoError(t, err)
	assert.True(t, done)
}

func TestGetLatestCompletedPhase_StopsAtFirstIncomplete(t *testing.T) {
	store := newTestStore(t)
	for _, name := range []string{"00-requirements.md", "00-requirements.core.yaml"} {
		a, err := New(name, "content\n", canon.KindText)
		require.NoError(t, err)
		require.NoError(t, store.Stage(a))
	}
	require.NoError(t, store.Promote([]string{"00-requirements.md", "00-requirements.core.yaml"}))

	latest, err := GetLatestCompletedPhase(store, []string{"requirements", "design", "tasks"})
	require.NoError(t, err)
	assert.Equal(t, "requirements", latest)
}
