package archive_extractor

import (
	"archive/tar"
	"io"
	"os"
	"strings"

	"github.com/blakesmith/ar"
	"github.com/cavaliercoder/go-cpio"
)

// EntryReader yields archive records in archive order and returns io.EOF once
// the archive is exhausted. The content of the previous header must be drained
// before Next is called again.
type EntryReader interface {
	Next() (*ArchiveHeader, error)
}

// Container is the entry layout carried inside a (possibly compressed) stream.
type Container int

const (
	ContainerTar Container = iota
	ContainerAr
	ContainerCpio
)

func (c Container) String() string {
	switch c {
	case ContainerAr:
		return "ar"
	case ContainerCpio:
		return "cpio"
	default:
		return "tar"
	}
}

func NewEntryReader(container Container, r io.Reader) EntryReader {
	switch container {
	case ContainerAr:
		return &arEntryReader{ar: ar.NewReader(r)}
	case ContainerCpio:
		return &cpioEntryReader{cr: cpio.NewReader(r)}
	default:
		return &tarEntryReader{tr: tar.NewReader(r)}
	}
}

// tar

type tarEntryReader struct {
	tr *tar.Reader
}

func (t *tarEntryReader) Next() (*ArchiveHeader, error) {
	hdr, err := t.tr.Next()
	if err != nil {
		return nil, err
	}
	var entryType EntryType
	switch hdr.Typeflag {
	case tar.TypeReg:
		entryType = EntryFile
	case tar.TypeDir:
		entryType = EntryDirectory
	case tar.TypeSymlink:
		entryType = EntrySymlink
	case tar.TypeLink:
		entryType = EntryHardlink
	default:
		entryType = EntryOther
	}
	header := NewArchiveHeader(t.tr, hdr.Name, entryType, hdr.FileInfo().Mode(), hdr.ModTime, hdr.Size)
	header.LinkName = hdr.Linkname
	return header, nil
}

// ar (deb packages and static libraries)

type arEntryReader struct {
	ar *ar.Reader
}

func (a *arEntryReader) Next() (*ArchiveHeader, error) {
	hdr, err := a.ar.Next()
	if err != nil {
		return nil, err
	}
	entryType := EntryFile
	name := hdr.Name
	switch name {
	case "/", "//", "/SYM64/", "__.SYMDEF":
		// symbol and long-name tables
		entryType = EntryOther
	default:
		// GNU ar terminates names with a slash
		name = strings.TrimSuffix(name, "/")
	}
	return NewArchiveHeader(a.ar, name, entryType, unixMode(uint32(hdr.Mode)), hdr.ModTime, hdr.Size), nil
}

// unixMode converts raw unix permission bits, as stored by ar and cpio, to an
// os.FileMode that keeps setuid, setgid and sticky.
func unixMode(mode uint32) os.FileMode {
	m := os.FileMode(mode & 0o777)
	if mode&0o4000 != 0 {
		m |= os.ModeSetuid
	}
	if mode&0o2000 != 0 {
		m |= os.ModeSetgid
	}
	if mode&0o1000 != 0 {
		m |= os.ModeSticky
	}
	return m
}

// cpio (newc / odc)

const (
	cpioTypeMask    = 0o170000
	cpioTypeDir     = 0o040000
	cpioTypeRegular = 0o100000
	cpioTypeSymlink = 0o120000
)

type cpioEntryReader struct {
	cr *cpio.Reader
}

func (c *cpioEntryReader) Next() (*ArchiveHeader, error) {
	hdr, err := c.cr.Next()
	if err != nil {
		return nil, err
	}
	mode := uint32(hdr.Mode)
	var entryType EntryType
	switch mode & cpioTypeMask {
	case cpioTypeRegular, 0:
		entryType = EntryFile
	case cpioTypeDir:
		entryType = EntryDirectory
	case cpioTypeSymlink:
		entryType = EntrySymlink
	default:
		entryType = EntryOther
	}
	header := NewArchiveHeader(c.cr, hdr.Name, entryType, unixMode(mode), hdr.ModTime, hdr.Size)
	header.LinkName = hdr.Linkname
	return header, nil
}
