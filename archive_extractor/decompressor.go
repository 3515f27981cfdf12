package archive_extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jfrog/go-archive-unpack/archive_extractor/archiver_errors"
	"github.com/jfrog/go-archive-unpack/compression"
)

const (
	NotCompressedOrNotSupportedError = "file %v is not compressed or the compression method is not supported"
)

// sourceStream is the read side of a streaming job: the archive file, the
// counter of compressed bytes and, once decompress is called, the decoder.
type sourceStream struct {
	path    string
	file    *os.File
	info    os.FileInfo
	conf    *extractConfiguration
	tracker *progressTracker
	limit   *LimitAggregatingReadCloserProvider
	counted io.Reader
	decoder io.ReadCloser
}

func openSource(path string, conf *extractConfiguration) (*sourceStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, archiver_errors.New(archiver_errors.KindSourceOpen, path, err)
	}
	fInfo, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, archiver_errors.New(archiver_errors.KindSourceOpen, path, err)
	}
	if !fInfo.Mode().IsRegular() {
		f.Close()
		return nil, archiver_errors.New(archiver_errors.KindSourceOpen, path, fmt.Errorf("%s is not a regular file", path))
	}
	limit, err := maxBytesLimit(path, conf.MaxCompressRatio)
	if err != nil {
		f.Close()
		return nil, archiver_errors.New(archiver_errors.KindSourceOpen, path, err)
	}
	tracker := newProgressTracker(fInfo.Size(), conf.Progress)
	conf.state.trackProgress(tracker)
	conf.state.advance(StateReading)
	return &sourceStream{
		path:    path,
		file:    f,
		info:    fInfo,
		conf:    conf,
		tracker: tracker,
		limit:   &LimitAggregatingReadCloserProvider{Limit: limit},
	}, nil
}

// raw is the archive file with every byte read counted as compressed input.
func (s *sourceStream) raw() io.Reader {
	if s.counted == nil {
		s.counted = s.tracker.compressed(&kindReader{kind: archiver_errors.KindSourceOpen, path: s.path, reader: s.file})
	}
	return s.counted
}

// decompress builds the decoder for codec on top of the counted source and
// returns the counted, size-limited decoded stream.
func (s *sourceStream) decompress(codec compression.Codec) (io.Reader, error) {
	return s.decompressFrom(codec, s.raw())
}

// decompressFrom is decompress for a source whose leading bytes were already
// consumed through raw, possibly behind a buffer.
func (s *sourceStream) decompressFrom(codec compression.Codec, raw io.Reader) (io.Reader, error) {
	dr, err := compression.NewStreamReader(codec, raw, compression.WithBufSize(s.conf.BufSize))
	if err != nil {
		return nil, classifyReadError(s.path, err)
	}
	s.decoder = dr
	s.conf.state.advance(StateDecompressing)
	s.conf.log().Debug("decompressing", "codec", codec.String(), "size", s.info.Size())
	return s.tracker.decompressed(s.limit.CreateLimitAggregatingReadCloser(dr)), nil
}

func (s *sourceStream) Close() error {
	var err error
	if s.decoder != nil {
		err = s.decoder.Close()
	}
	return errors.Join(err, s.file.Close())
}

// kindReader classifies every read failure of reader as kind.
type kindReader struct {
	kind   archiver_errors.Kind
	path   string
	reader io.Reader
}

func (kr *kindReader) Read(p []byte) (int, error) {
	n, err := kr.reader.Read(p)
	if err != nil && err != io.EOF {
		err = archiver_errors.New(kr.kind, kr.path, err)
	}
	return n, err
}

// Decompressor unpacks a single compressed file (not an archive) into dest,
// named after the source without its compression extension.
type Decompressor struct {
	// Codec forces the codec; None sniffs it from the file.
	Codec compression.Codec
	conf  *extractConfiguration
}

func NewDecompressor(codec compression.Codec, options ...Option) *Decompressor {
	return &Decompressor{Codec: codec, conf: newExtractConfiguration(options...)}
}

func (dc *Decompressor) ExtractArchive(ctx context.Context, src, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conf := dc.conf
	if conf == nil {
		conf = newExtractConfiguration()
	}
	codec := dc.Codec
	if codec == compression.None {
		detected, err := compression.DetectFile(src)
		if err != nil {
			return archiver_errors.New(archiver_errors.KindSourceOpen, src, err)
		}
		codec = detected
	}
	if codec == compression.None {
		return archiver_errors.New(archiver_errors.KindDecode, src, fmt.Errorf(NotCompressedOrNotSupportedError, src))
	}
	source, err := openSource(src, conf)
	if err != nil {
		return err
	}
	defer source.Close()
	decoded, err := source.decompress(codec)
	if err != nil {
		return err
	}
	conf.state.advance(StateParsing)

	// removing the compression extension since now we have a decompressed file
	name := strings.TrimSuffix(source.info.Name(), filepath.Ext(source.info.Name()))
	m, err := newMaterializer(dest, conf)
	if err != nil {
		return err
	}
	defer m.Close()
	if excluded(conf.Filter, name) {
		conf.log().Debug("entry excluded by filter", "name", name)
		source.tracker.finish()
		return nil
	}
	hdr := NewArchiveHeader(decoded, name, EntryFile, source.info.Mode(), source.info.ModTime(), -1)
	rel, err := m.resolve(hdr)
	if err != nil {
		return err
	}
	conf.state.advance(StateWriting)
	conf.state.addPending(1)
	defer conf.state.addPending(-1)
	if err := m.writeFile(hdr, rel); err != nil {
		return err
	}
	source.tracker.finish()
	return nil
}
