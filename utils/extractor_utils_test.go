package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jfrog/go-archive-unpack/archive_extractor/archiver_errors"
)

func TestSafeRelativePath(t *testing.T) {
	valid := map[string]string{
		"dir/x.txt":       filepath.Join("dir", "x.txt"),
		"./dir/x.txt":     filepath.Join("dir", "x.txt"),
		"dir/../x.txt":    "x.txt",
		"dir/":            "dir",
		"a//b/./c":        filepath.Join("a", "b", "c"),
		"./":              "",
		".":               "",
		"":                "",
	}
	for name, want := range valid {
		got, err := SafeRelativePath(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	for _, name := range []string{"../../evil", "../x", "dir/../../x", "/etc/passwd", "\\windows\\x", "..\\..\\evil"} {
		_, err := SafeRelativePath(name)
		assert.ErrorIs(t, err, archiver_errors.ErrPathTraversal, name)
	}
}

func TestSafeLinkTarget(t *testing.T) {
	assert.NoError(t, SafeLinkTarget("dir/link", "x.txt"))
	assert.NoError(t, SafeLinkTarget("dir/link", "../top.txt"))
	assert.NoError(t, SafeLinkTarget("dir/link", ".."))
	assert.ErrorIs(t, SafeLinkTarget("dir/link", "../../out"), archiver_errors.ErrPathTraversal)
	assert.ErrorIs(t, SafeLinkTarget("link", "/etc/passwd"), archiver_errors.ErrPathTraversal)
	assert.ErrorIs(t, SafeLinkTarget("link", ""), archiver_errors.ErrPathTraversal)
}

func TestPathHelpers(t *testing.T) {
	assert.True(t, IsFolder("dir/"))
	assert.False(t, IsFolder("dir/x"))
	assert.Equal(t, "a/b", CleanPathKeepingUnixSlash("a/./b/"))
	assert.Equal(t, "a/b/c", JoinPathKeepingUnixSlash("a", "b", "c"))
}

func TestIsSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.WriteFile(target, nil, 0o644))
	assert.False(t, IsSymlink(target))
	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skip("symlinks not supported:", err)
	}
	assert.True(t, IsSymlink(link))
	assert.False(t, IsSymlink(filepath.Join(dir, "missing")))
}
