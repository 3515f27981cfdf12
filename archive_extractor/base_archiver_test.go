package archive_extractor

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blakesmith/ar"
	"github.com/cavaliercoder/go-cpio"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/mholt/archives"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"

	"github.com/jfrog/go-archive-unpack/compression"
)

var testModTime = time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)

type testEntry struct {
	Name     string
	Body     string
	Mode     int64
	Dir      bool
	Link     string
	Hardlink string // tar only
}

func fileEntry(name, body string, mode int64) testEntry {
	return testEntry{Name: name, Body: body, Mode: mode}
}

func dirEntryOf(name string) testEntry {
	return testEntry{Name: name, Mode: 0o755, Dir: true}
}

// scenarioEntries is dir/ with x.txt (0644) and y.txt (0755).
func scenarioEntries() []testEntry {
	return []testEntry{
		dirEntryOf("dir/"),
		fileEntry("dir/x.txt", "hello x\n", 0o644),
		fileEntry("dir/y.txt", "#!/bin/sh\necho y\n", 0o755),
	}
}

func tarBytes(t *testing.T, entries []testEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, Mode: e.Mode, ModTime: testModTime}
		switch {
		case e.Dir:
			hdr.Typeflag = tar.TypeDir
		case e.Link != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.Link
		case e.Hardlink != "":
			hdr.Typeflag = tar.TypeLink
			hdr.Linkname = e.Hardlink
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.Body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.Body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func arBytes(t *testing.T, entries []testEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	aw := ar.NewWriter(&buf)
	require.NoError(t, aw.WriteGlobalHeader())
	for _, e := range entries {
		require.NoError(t, aw.WriteHeader(&ar.Header{
			Name:    e.Name,
			ModTime: testModTime,
			Mode:    e.Mode,
			Size:    int64(len(e.Body)),
		}))
		_, err := aw.Write([]byte(e.Body))
		require.NoError(t, err)
	}
	return buf.Bytes()
}

func cpioBytes(t *testing.T, entries []testEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	cw := cpio.NewWriter(&buf)
	for _, e := range entries {
		hdr := &cpio.Header{Name: e.Name, ModTime: testModTime}
		if e.Dir {
			hdr.Mode = cpio.FileMode(0o040000 | e.Mode)
		} else {
			hdr.Mode = cpio.FileMode(0o100000 | e.Mode)
			hdr.Size = int64(len(e.Body))
		}
		require.NoError(t, cw.WriteHeader(hdr))
		if !e.Dir {
			_, err := cw.Write([]byte(e.Body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, cw.Close())
	return buf.Bytes()
}

func zipBytes(t *testing.T, entries []testEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		fh := &zip.FileHeader{Name: e.Name, Method: zip.Deflate, Modified: testModTime}
		body := e.Body
		switch {
		case e.Dir:
			fh.Method = zip.Store
			fh.SetMode(fs.ModeDir | fs.FileMode(e.Mode))
		case e.Link != "":
			fh.SetMode(fs.ModeSymlink | 0o777)
			body = e.Link
		default:
			fh.SetMode(fs.FileMode(e.Mode))
		}
		w, err := zw.CreateHeader(fh)
		require.NoError(t, err)
		if !e.Dir {
			_, err = w.Write([]byte(body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func compressBytes(t *testing.T, codec compression.Codec, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	var err error
	switch codec {
	case compression.None:
		return data
	case compression.Gzip:
		w = gzip.NewWriter(&buf)
	case compression.Bzip2:
		w, err = archives.Bz2{}.OpenWriter(&buf)
	case compression.Xz:
		w, err = xz.NewWriter(&buf)
	case compression.Lzma:
		w, err = lzma.NewWriter(&buf)
	case compression.Zstd:
		w, err = zstd.NewWriter(&buf)
	case compression.Lzip:
		w, err = archives.Lzip{}.OpenWriter(&buf)
	case compression.Lz4:
		w = lz4.NewWriter(&buf)
	default:
		t.Fatalf("no writer for %v", codec)
	}
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func writeTestFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func tarArchive(t *testing.T, name string, codec compression.Codec, entries []testEntry) string {
	t.Helper()
	return writeTestFile(t, name, compressBytes(t, codec, tarBytes(t, entries)))
}

// readTree maps every path below root (slash separated) to its content;
// directories map to "/".
func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	tree := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		switch {
		case d.IsDir():
			tree[rel] = "/"
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			tree[rel] = "-> " + target
		default:
			b, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			tree[rel] = string(b)
		}
		return nil
	})
	require.NoError(t, err)
	return tree
}

func scenarioTree() map[string]string {
	return map[string]string{
		"dir":       "/",
		"dir/x.txt": "hello x\n",
		"dir/y.txt": "#!/bin/sh\necho y\n",
	}
}
