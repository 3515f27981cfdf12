package archive_extractor

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/jfrog/go-archive-unpack/archive_extractor/archiver_errors"
	"github.com/jfrog/go-archive-unpack/compression"
)

// TarArchiver extracts stream formats: a codec wrapped around tar, ar or cpio
// entries. Reading, decoding and parsing run on one goroutine, materializing on
// another, and each file write on its own.
type TarArchiver struct {
	Codec     compression.Codec
	Container Container
	conf      *extractConfiguration
}

func NewTarArchiver(codec compression.Codec, container Container, options ...Option) *TarArchiver {
	return &TarArchiver{Codec: codec, Container: container, conf: newExtractConfiguration(options...)}
}

func (ta *TarArchiver) ExtractArchive(ctx context.Context, src, dest string) error {
	return extractStream(ctx, ta.conf, src, dest, ta.Container, func(source *sourceStream) (io.Reader, error) {
		return source.decompress(ta.Codec)
	})
}

// payloadOpener positions the source at its entry stream and returns the
// decoded entries.
type payloadOpener func(source *sourceStream) (io.Reader, error)

func extractStream(ctx context.Context, conf *extractConfiguration, src, dest string, container Container, open payloadOpener) error {
	if conf == nil {
		conf = newExtractConfiguration()
	}
	source, err := openSource(src, conf)
	if err != nil {
		return err
	}
	defer source.Close()
	m, err := newMaterializer(dest, conf)
	if err != nil {
		return err
	}
	defer m.Close()

	g, gctx := errgroup.WithContext(ctx)
	entries := make(chan *ArchiveHeader)
	g.Go(func() error {
		defer close(entries)
		return parseStream(gctx, conf, source, container, open, entries)
	})
	g.Go(func() error {
		return m.consume(gctx, g, entries)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if err := m.finalizeDirs(); err != nil {
		return err
	}
	source.tracker.finish()
	return nil
}

// parseStream emits entries in archive order and waits for each one to be released
// before reading the next, so at most one entry is in flight.
func parseStream(ctx context.Context, conf *extractConfiguration, source *sourceStream, container Container,
	open payloadOpener, entries chan<- *ArchiveHeader) error {
	decoded, err := open(source)
	if err != nil {
		return err
	}
	reader := NewEntryReader(container, decoded)
	conf.state.advance(StateParsing)
	counter := &entryCounter{max: conf.MaxNumberOfEntries}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return classifyReadError(source.path, err)
		}
		if err := counter.add(); err != nil {
			return archiver_errors.New(archiver_errors.KindLimit, hdr.Name, err)
		}
		select {
		case entries <- hdr:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case <-hdr.Released():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	// read through trailing padding so the decoder verifies its checksum
	if _, err := io.Copy(io.Discard, decoded); err != nil {
		return classifyReadError(source.path, err)
	}
	return nil
}
