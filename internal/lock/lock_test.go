package lock

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_SecondAcquirerGetsContentionError(t *testing.T) {
	dir := t.TempDir()

	l1 := New(dir)
	require.NoError(t, l1.Acquire(false, 0))
	defer l1.Release()

	l2 := New(dir)
	err := l2.Acquire(false, 0)
	require.Error(t, err)
	var ce *ContentionError
	assert.ErrorAs(t, err, &ce)
}

func TestAcquire_ReleaseThenReacquireSucceeds(t *testing.T) {
	dir := t.TempDir()

	l1 := New(dir)
	require.NoError(t, l1.Acquire(false, 0))
	require.NoError(t, l1.Release())

	l2 := New(dir)
	require.NoError(t, l2.Acquire(false, 0))
	require.NoError(t, l2.Release())
}

func TestRecordPins_DoesNotOverwriteExisting(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	require.NoError(t, l.RecordPins(Pins{ModelFullName: "model-a", LLMCLIVersion: "1.0"}))
	require.NoError(t, l.RecordPins(Pins{ModelFullName: "model-b", LLMCLIVersion: "2.0"}))

	data, err := os.ReadFile(filepath.Join(dir, "lock.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "model-a")
	assert.NotContains(t, string(data), "model-b")
}

func TestCheckDrift_DetectsMismatchedFields(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	require.NoError(t, l.RecordPins(Pins{ModelFullName: "model-a", LLMCLIVersion: "1.0"}))

	drifts, err := l.CheckDrift(Pins{ModelFullName: "model-b", LLMCLIVersion: "1.0"})
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, "model_full_name", drifts[0].Field)
}

func TestCheckDrift_NoPinsFileMeansNoDrift(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	drifts, err := l.CheckDrift(Pins{ModelFullName: "anything"})
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

func TestHandleDrift_StrictModeReturnsError(t *testing.T) {
	drifts := []Drift{{Field: "model_full_name", Recorded: "a", Current: "b"}}

	assert.NoError(t, HandleDrift(DriftWarn, drifts))

	err := HandleDrift(DriftStrict, drifts)
	require.Error(t, err)
	var de *DriftError
	assert.ErrorAs(t, err, &de)
}

func TestAcquire_ForceRemovesStaleLock(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "lock")
	require.NoError(t, os.WriteFile(lockPath, []byte{}, 0o644))

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(lockPath, old, old))

	l := New(dir)
	err := l.Acquire(true, time.Minute)
	require.NoError(t, err)
	require.NoError(t, l.Release())
}
