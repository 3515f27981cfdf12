package utils

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jfrog/go-archive-unpack/archive_extractor/archiver_errors"
)

const (
	FolderSuffix string = "/"
)

func IsFolder(path string) bool {
	return strings.HasSuffix(path, FolderSuffix)
}

func IsSymlink(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeSymlink == os.ModeSymlink
}

// In Windows, filepath.Clean operation will replace all slashes '/'
// to backslashes '\\'
// This can mess-up with the code that makes path comparisons
func CleanPathKeepingUnixSlash(path string) string {
	return filepath.ToSlash(filepath.Clean(path))
}

func JoinPathKeepingUnixSlash(elem ...string) string {
	return filepath.ToSlash(filepath.Join(elem...))
}

// SafeRelativePath converts an archive entry name into a path relative to the
// extraction root. Names that are absolute or climb above the root are
// rejected with ErrPathTraversal. An empty result means the root itself.
func SafeRelativePath(name string) (string, error) {
	slashed := strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", archiver_errors.ErrPathTraversal
	}
	cleaned := path.Clean(slashed)
	if cleaned == "." {
		return "", nil
	}
	rel := filepath.FromSlash(cleaned)
	if !filepath.IsLocal(rel) {
		return "", archiver_errors.ErrPathTraversal
	}
	return rel, nil
}

// SafeLinkTarget checks that a symlink created at name (relative to the root)
// pointing at target resolves inside the root.
func SafeLinkTarget(name, target string) error {
	if target == "" {
		return archiver_errors.ErrPathTraversal
	}
	slashed := strings.ReplaceAll(target, "\\", "/")
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(target) {
		return archiver_errors.ErrPathTraversal
	}
	resolved := path.Join(path.Dir(filepath.ToSlash(name)), slashed)
	if resolved == "." {
		return nil
	}
	if !filepath.IsLocal(filepath.FromSlash(resolved)) {
		return archiver_errors.ErrPathTraversal
	}
	return nil
}
