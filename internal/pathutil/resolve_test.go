package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	got, err := ExpandHome("~")
	require.NoError(t, err)
	assert.Equal(t, home, got)

	got, err = ExpandHome("~/data/run1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "data", "run1"), got)

	got, err = ExpandHome("~bob/data")
	require.NoError(t, err)
	assert.Equal(t, "~bob/data", got)

	got, err = ExpandHome("relative/dir")
	require.NoError(t, err)
	assert.Equal(t, "relative/dir", got)
}

func TestResolveAbsolutePath(t *testing.T) {
	base, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(base, "real"), 0755))

	got, err := ResolveAbsolutePath(filepath.Join(base, "real"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "real"), got)

	got, err = ResolveAbsolutePath(filepath.Join(base, "real", "not", "yet"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "real", "not", "yet"), got)

	wd, err := os.Getwd()
	require.NoError(t, err)
	got, err = ResolveAbsolutePath("")
	require.NoError(t, err)
	assert.Equal(t, wd, got)
}

func TestResolveAbsolutePathFollowsSymlinkedAncestor(t *testing.T) {
	base, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	target := filepath.Join(base, "target")
	require.NoError(t, os.Mkdir(target, 0755))
	link := filepath.Join(base, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	got, err := ResolveAbsolutePath(filepath.Join(link, "new", "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(target, "new", "file.txt"), got)
}

func TestResolveAll(t *testing.T) {
	base, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	got, err := ResolveAll([]string{base, filepath.Join(base, "x")})
	require.NoError(t, err)
	assert.Equal(t, []string{base, filepath.Join(base, "x")}, got)
}
