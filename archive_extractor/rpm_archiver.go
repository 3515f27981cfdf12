package archive_extractor

import (
	"bufio"
	"context"
	"fmt"
	"io"

	rpm "github.com/jfrog/go-rpm/v2"

	"github.com/jfrog/go-archive-unpack/archive_extractor/archiver_errors"
	"github.com/jfrog/go-archive-unpack/compression"
)

const rpmPayloadCpio = "cpio"

// RpmArchiver extracts the files of an rpm package. The lead, signature and
// header sections are read with go-rpm; the payload that follows them is
// decoded and unpacked as cpio.
type RpmArchiver struct {
	conf *extractConfiguration
}

func NewRpmArchiver(options ...Option) *RpmArchiver {
	return &RpmArchiver{conf: newExtractConfiguration(options...)}
}

func (ra *RpmArchiver) ExtractArchive(ctx context.Context, src, dest string) error {
	return extractStream(ctx, ra.conf, src, dest, ContainerCpio, openRpmPayload)
}

func openRpmPayload(source *sourceStream) (io.Reader, error) {
	br := bufio.NewReader(source.raw())
	pkg, err := rpm.ReadPackageFile(br)
	if err != nil {
		return nil, archiver_errors.New(archiver_errors.KindParse, source.path, err)
	}
	if format := pkg.PayloadFormat(); format != "" && format != rpmPayloadCpio {
		return nil, archiver_errors.New(archiver_errors.KindParse, source.path,
			fmt.Errorf("unsupported rpm payload format %q", format))
	}
	// packages do not always declare their compressor, so the payload's own
	// signature takes precedence
	magic, err := br.Peek(compression.MaxMagicBytes)
	if err != nil && err != io.EOF {
		return nil, archiver_errors.New(archiver_errors.KindParse, source.path, err)
	}
	codec := compression.Detect(magic)
	if codec == compression.None {
		codec = rpmPayloadCodec(pkg.PayloadCompression())
	}
	source.conf.log().Debug("reading rpm package",
		"name", pkg.Name(), "version", pkg.Version(), "release", pkg.Release(), "payload", codec.String())
	return source.decompressFrom(codec, br)
}

// rpmPayloadCodec maps the payload compressor tag of an rpm header.
func rpmPayloadCodec(name string) compression.Codec {
	switch name {
	case "gzip":
		return compression.Gzip
	case "bzip2":
		return compression.Bzip2
	case "xz":
		return compression.Xz
	case "lzma":
		return compression.Lzma
	case "zstd":
		return compression.Zstd
	default:
		return compression.None
	}
}
