package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFilesByExtension(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := t.TempDir()
	for _, dir := range []string{"study", ".git/refs"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}
	for _, name := range []string{"tools.hcl", "study/samples.hcl", "global.hcl", "notes.txt", ".git/refs/stale.hcl"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(""), 0o644))
	}

	// --- Act ---
	files, err := FindFilesByExtension(root, ".hcl")

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "global.hcl"),
		filepath.Join(root, "study", "samples.hcl"),
		filepath.Join(root, "tools.hcl"),
	}, files)

	_, err = FindFilesByExtension(root, "")
	assert.Error(t, err)
}

func TestLayout_Ensure(t *testing.T) {
	t.Parallel()

	l, err := NewLayout(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	require.NoError(t, l.Ensure("S1", "S2"))

	for _, dir := range []string{
		l.ShDir(),
		l.LogDir(),
		l.Sample("S1").Bam,
		l.Sample("S2").Mutation,
		l.Cohort().Root,
	} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, filepath.Join(l.Root, "S1", "tmp"), l.Sample("S1").Tmp)
}
