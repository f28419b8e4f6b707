package sandbox

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoot(t *testing.T, config Config) (*Root, string) {
	t.Helper()
	dir := t.TempDir()
	root, err := New(dir, config)
	require.NoError(t, err)
	return root, dir
}

func TestJoin_RejectsAbsolutePath(t *testing.T) {
	root, _ := newTestRoot(t, Config{})

	_, err := root.Join("/etc/passwd")
	require.Error(t, err)

	var verr *ViolationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ReasonAbsolutePath, verr.Reason)
}

func TestJoin_RejectsParentTraversal(t *testing.T) {
	root, _ := newTestRoot(t, Config{})

	for _, rel := range []string{"../etc/passwd", "a/../../b", "a/b/../../../c"} {
		_, err := root.Join(rel)
		require.Errorf(t, err, "rel=%q", rel)
		var verr *ViolationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, ReasonParentTraversal, verr.Reason)
	}
}

func TestJoin_AcceptsOrdinaryRelativePath(t *testing.T) {
	root, base := newTestRoot(t, Config{})

	p, err := root.Join("artifacts/00-requirements.md")
	require.NoError(t, err)
	assert.True(t, hasPrefixDir(p.AsPath(), base))
	assert.Equal(t, "artifacts/00-requirements.md", p.Rel())
}

func TestJoin_RejectsSymlinkByDefault(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires elevated privileges on windows")
	}
	root, base := newTestRoot(t, Config{})

	target := filepath.Join(base, "real.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	link := filepath.Join(base, "link.txt")
	require.NoError(t, os.Symlink(target, link))

	_, err := root.Join("link.txt")
	require.Error(t, err)
	var verr *ViolationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ReasonSymlinkNotAllow, verr.Reason)
}

func TestJoin_AllowsSymlinkWhenConfigured(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires elevated privileges on windows")
	}
	root, base := newTestRoot(t, Config{AllowSymlinks: true})

	target := filepath.Join(base, "real.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	link := filepath.Join(base, "link.txt")
	require.NoError(t, os.Symlink(target, link))

	_, err := root.Join("link.txt")
	assert.NoError(t, err)
}

func TestJoin_RejectsSymlinkEscapeViaAncestorDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires elevated privileges on windows")
	}
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("x"), 0o644))

	root, base := newTestRoot(t, Config{AllowSymlinks: true})
	require.NoError(t, os.Symlink(outside, filepath.Join(base, "escape")))

	_, err := root.Join("escape/secret.txt")
	require.Error(t, err)
	var verr *ViolationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ReasonEscapeAttempt, verr.Reason)
}

func TestNew_FailsOnMissingBase(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "does-not-exist"), Config{})
	require.Error(t, err)
}

func TestNew_FailsWhenBaseIsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "notadir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := New(file, Config{})
	require.Error(t, err)
}

func hasPrefixDir(p, dir string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel != ".." && len(rel) > 0 && rel[0] != '.'
}
