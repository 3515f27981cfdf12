package archive_extractor

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/mholt/archives"

	"github.com/jfrog/go-archive-unpack/archive_extractor/archiver_errors"
)

// ZipArchiver extracts zip archives. The central directory needs random
// access, so entries are visited in directory order and written one at a time.
type ZipArchiver struct {
	conf *extractConfiguration
}

func NewZipArchiver(options ...Option) *ZipArchiver {
	return &ZipArchiver{conf: newExtractConfiguration(options...)}
}

func (za *ZipArchiver) ExtractArchive(ctx context.Context, src, dest string) error {
	return extractSeekable(ctx, archives.Zip{}, src, dest, za.conf)
}

// SevenZipArchiver extracts 7z archives in process, without an external tool.
type SevenZipArchiver struct {
	conf *extractConfiguration
}

func NewSevenZipArchiver(options ...Option) *SevenZipArchiver {
	return &SevenZipArchiver{conf: newExtractConfiguration(options...)}
}

func (sa *SevenZipArchiver) ExtractArchive(ctx context.Context, src, dest string) error {
	return extractSeekable(ctx, archives.SevenZip{}, src, dest, sa.conf)
}

// extractSeekable drives a random access format through the same filter,
// limits, progress accounting and materializer as the streaming formats.
func extractSeekable(ctx context.Context, format archives.Extractor, src, dest string, conf *extractConfiguration) error {
	if conf == nil {
		conf = newExtractConfiguration()
	}
	f, err := os.Open(src)
	if err != nil {
		return archiver_errors.New(archiver_errors.KindSourceOpen, src, err)
	}
	defer f.Close()
	fInfo, err := f.Stat()
	if err != nil {
		return archiver_errors.New(archiver_errors.KindSourceOpen, src, err)
	}
	limitBytes, err := maxBytesLimit(src, conf.MaxCompressRatio)
	if err != nil {
		return archiver_errors.New(archiver_errors.KindSourceOpen, src, err)
	}
	tracker := newProgressTracker(fInfo.Size(), conf.Progress)
	conf.state.trackProgress(tracker)
	conf.state.advance(StateReading)

	m, err := newMaterializer(dest, conf)
	if err != nil {
		return err
	}
	defer m.Close()

	limit := &LimitAggregatingReadCloserProvider{Limit: limitBytes}
	counter := &entryCounter{max: conf.MaxNumberOfEntries}
	log := conf.log()
	input := &countingFile{file: f, add: tracker.addRead}

	err = format.Extract(ctx, input, func(ctx context.Context, info archives.FileInfo) error {
		conf.state.advance(StateParsing)
		name := info.NameInArchive
		if err := counter.add(); err != nil {
			return archiver_errors.New(archiver_errors.KindLimit, name, err)
		}
		if excluded(conf.Filter, name) {
			log.Debug("entry excluded by filter", "name", name)
			return nil
		}
		mode := info.Mode()
		switch {
		case info.IsDir():
			return m.writeDir(NewArchiveHeader(nil, name, EntryDirectory, mode, info.ModTime(), 0))
		case mode&fs.ModeSymlink != 0:
			if !conf.Symlinks {
				log.Debug("skipping symlink", "name", name, "target", info.LinkTarget)
				return nil
			}
			hdr := NewArchiveHeader(nil, name, EntrySymlink, mode, info.ModTime(), 0)
			hdr.LinkName = info.LinkTarget
			return m.writeSymlink(hdr)
		case mode.IsRegular():
			return writeSeekableEntry(m, conf, tracker, limit, info)
		default:
			log.Debug("skipping unsupported entry", "name", name)
			return nil
		}
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		// anything not classified by the handler comes from the format reader
		return archiver_errors.New(archiver_errors.KindDecode, src, err)
	}
	if err := m.finalizeDirs(); err != nil {
		return err
	}
	tracker.finish()
	return nil
}

func writeSeekableEntry(m *materializer, conf *extractConfiguration, tracker *progressTracker,
	limit *LimitAggregatingReadCloserProvider, info archives.FileInfo) error {
	name := info.NameInArchive
	hdr := NewArchiveHeader(nil, name, EntryFile, info.Mode(), info.ModTime(), info.Size())
	rel, err := m.resolve(hdr)
	if err != nil {
		return err
	}
	rc, err := info.Open()
	if err != nil {
		return archiver_errors.New(archiver_errors.KindDecode, name, err)
	}
	defer rc.Close()
	content := &kindReader{kind: archiver_errors.KindDecode, path: name, reader: rc}
	hdr.ArchiveReader = tracker.decompressed(limit.CreateLimitAggregatingReadCloser(content))
	conf.state.advance(StateWriting)
	conf.state.addPending(1)
	defer conf.state.addPending(-1)
	return m.writeFile(hdr, rel)
}

// countingFile reports every byte read from the archive file, through either
// the sequential or the random access path.
type countingFile struct {
	file *os.File
	add  func(int64)
}

func (cf *countingFile) Read(p []byte) (int, error) {
	n, err := cf.file.Read(p)
	cf.add(int64(n))
	return n, err
}

func (cf *countingFile) ReadAt(p []byte, off int64) (int, error) {
	n, err := cf.file.ReadAt(p, off)
	cf.add(int64(n))
	return n, err
}

func (cf *countingFile) Seek(offset int64, whence int) (int64, error) {
	return cf.file.Seek(offset, whence)
}

var _ interface {
	io.ReaderAt
	io.ReadSeeker
} = (*countingFile)(nil)
