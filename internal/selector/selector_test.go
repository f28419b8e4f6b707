package selector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// TestMain verifies the errgroup-bounded concurrent file reads in Select
// never leak a goroutine past the end of the package's tests.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func defaultConfig() Config {
	return Config{
		Include: []string{"**/*.yaml", "**/*.md"},
		Exclude: []string{"**/.git/**"},
		Classes: DefaultClasses(),
	}
}

func TestSelect_ClassifiesCoreYAMLAsUpstreamRegardless(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "misc/anything.core.yaml", "a: 1\n")

	files, err := Select(context.Background(), root, defaultConfig())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, PriorityUpstream, files[0].Priority)
}

func TestSelect_HonorsIncludeExclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "docs/guide.md", "# hi\n")
	writeFile(t, root, "secret.yaml", "a: 1\n")
	writeFile(t, root, "node_modules/pkg/file.md", "ignored\n")

	files, err := Select(context.Background(), root, defaultConfig())
	require.NoError(t, err)

	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	assert.ElementsMatch(t, []string{"docs/guide.md", "secret.yaml"}, paths)
}

func TestSelect_DocsDirectoryIsMediumPriority(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "docs/guide.md", "# hi\n")

	files, err := Select(context.Background(), root, defaultConfig())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, PriorityMedium, files[0].Priority)
}

func TestSelect_ComputesPreRedactionHash(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "docs/a.md", "same content\n")
	writeFile(t, root, "docs/b.md", "same content\n")

	files, err := Select(context.Background(), root, defaultConfig())
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, files[0].BLAKE3PreRedaction, files[1].BLAKE3PreRedaction)
	assert.NotEmpty(t, files[0].BLAKE3PreRedaction)
}

func TestSortForPacket_UpstreamFirstThenLIFOWithinClass(t *testing.T) {
	files := []File{
		{Path: "low1", Priority: PriorityLow},
		{Path: "up1", Priority: PriorityUpstream},
		{Path: "low2", Priority: PriorityLow},
		{Path: "up2", Priority: PriorityUpstream},
	}

	sorted := SortForPacket(files)
	require.Len(t, sorted, 4)
	assert.Equal(t, "up2", sorted[0].Path)
	assert.Equal(t, "up1", sorted[1].Path)
	assert.Equal(t, "low2", sorted[2].Path)
	assert.Equal(t, "low1", sorted[3].Path)
}

func TestMatchGlobstar_PrefixAndSuffixForms(t *testing.T) {
	assert.True(t, matchGlobstar("**/*.core.yaml", "a/b/c.core.yaml"))
	assert.True(t, matchGlobstar("docs/**", "docs/a/b.md"))
	assert.True(t, matchGlobstar("docs/**", "docs"))
	assert.False(t, matchGlobstar("docs/**", "other/a.md"))
}
