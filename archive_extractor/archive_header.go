package archive_extractor

import (
	"io"
	"os"
	"sync"
	"time"
)

type EntryType int

const (
	EntryFile EntryType = iota
	EntryDirectory
	EntrySymlink
	EntryHardlink
	EntryOther
)

func (et EntryType) String() string {
	switch et {
	case EntryFile:
		return "file"
	case EntryDirectory:
		return "directory"
	case EntrySymlink:
		return "symlink"
	case EntryHardlink:
		return "hardlink"
	default:
		return "other"
	}
}

// ArchiveHeader is one record of an archive. ArchiveReader streams the record's
// content and is only valid until Release is called; the reader that produced
// the header does not advance before that.
type ArchiveHeader struct {
	ArchiveReader io.Reader
	Name          string
	Type          EntryType
	Mode          os.FileMode
	ModTime       time.Time
	Size          int64
	LinkName      string

	released chan struct{}
	once     sync.Once
}

// entryModeBits are the mode bits carried from an archive onto disk.
const entryModeBits = os.ModePerm | os.ModeSetuid | os.ModeSetgid | os.ModeSticky

func NewArchiveHeader(archiveReader io.Reader, name string, entryType EntryType, mode os.FileMode, modTime time.Time, size int64) *ArchiveHeader {
	return &ArchiveHeader{
		ArchiveReader: archiveReader,
		Name:          name,
		Type:          entryType,
		Mode:          mode & entryModeBits,
		ModTime:       modTime,
		Size:          size,
		released:      make(chan struct{}),
	}
}

func (ah *ArchiveHeader) IsFolder() bool {
	return ah.Type == EntryDirectory
}

// Release hands the underlying stream back to the archive reader. Safe to call
// more than once.
func (ah *ArchiveHeader) Release() {
	ah.once.Do(func() { close(ah.released) })
}

// Drain discards whatever content is left and releases the header.
func (ah *ArchiveHeader) Drain() error {
	defer ah.Release()
	if ah.ArchiveReader == nil {
		return nil
	}
	_, err := io.Copy(io.Discard, ah.ArchiveReader)
	return err
}

// Released is closed once the header's content has been handed back.
func (ah *ArchiveHeader) Released() <-chan struct{} {
	return ah.released
}
