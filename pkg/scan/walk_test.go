package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bulwarkecc/bulwark/pkg/eccfile"
)

func TestWalkSortedRelativePaths(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "deep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "zz.bin"), []byte("12345"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "a.txt"), []byte("abc"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "deep", "b.txt"), nil, 0o644))

	files, err := Walk(root)
	require.NoError(t, err)
	assert.Equal(t, []eccfile.FileInfo{
		{RelPath: "sub/a.txt", Size: 3},
		{RelPath: "sub/deep/b.txt", Size: 0},
		{RelPath: "zz.bin", Size: 5},
	}, files)
}

func TestLoadErrorsList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.csv")
	csv := "filepath,errors\nphotos/a.jpg,3\ndocs/b.pdf,1\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	got, err := LoadErrorsList(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{
		"photos/a.jpg": {},
		"docs/b.pdf":   {},
	}, got)
}
