package archive_extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jfrog/go-archive-unpack/archive_extractor/archiver_errors"
	"github.com/jfrog/go-archive-unpack/compression"
)

var ErrUnknownFormat = errors.New("unknown archive format")

type Format string

const (
	FormatTarGz    Format = "targz"
	FormatTarBz2   Format = "tarbz2"
	FormatTarXz    Format = "tarxz"
	FormatZip      Format = "zip"
	FormatSevenZip Format = "7z"
	FormatTar      Format = "tar"
	FormatTarZst   Format = "tarzst"
	FormatTarLz4   Format = "tarlz4"
	FormatTarLzma  Format = "tarlzma"
	FormatTarLz    Format = "tarlz"
	FormatAr       Format = "ar"
	FormatCpio     Format = "cpio"
	FormatRpm      Format = "rpm"
	// FormatCompressed is a single compressed file, not an archive.
	FormatCompressed Format = "compressed"
	// FormatAuto picks the format from the file content.
	FormatAuto Format = "auto"
)

var formatAliases = map[string]Format{
	"tgz":      FormatTarGz,
	"gz":       FormatTarGz,
	"tbz2":     FormatTarBz2,
	"bz2":      FormatTarBz2,
	"txz":      FormatTarXz,
	"xz":       FormatTarXz,
	"tzst":     FormatTarZst,
	"zst":      FormatTarZst,
	"tlz4":     FormatTarLz4,
	"lz4":      FormatTarLz4,
	"lzma":     FormatTarLzma,
	"lz":       FormatTarLz,
	"7za":      FormatSevenZip,
	"sevenzip": FormatSevenZip,
}

var knownFormats = []Format{
	FormatTarGz, FormatTarBz2, FormatTarXz, FormatZip, FormatSevenZip, FormatTar, FormatTarZst,
	FormatTarLz4, FormatTarLzma, FormatTarLz, FormatAr, FormatCpio, FormatRpm, FormatCompressed, FormatAuto,
}

// streamFormats maps the formats handled by TarArchiver to their codec and container.
var streamFormats = map[Format]struct {
	codec     compression.Codec
	container Container
}{
	FormatTarGz:   {compression.Gzip, ContainerTar},
	FormatTarBz2:  {compression.Bzip2, ContainerTar},
	FormatTarXz:   {compression.Xz, ContainerTar},
	FormatTar:     {compression.None, ContainerTar},
	FormatTarZst:  {compression.Zstd, ContainerTar},
	FormatTarLz4:  {compression.Lz4, ContainerTar},
	FormatTarLzma: {compression.Lzma, ContainerTar},
	FormatTarLz:   {compression.Lzip, ContainerTar},
	FormatAr:      {compression.None, ContainerAr},
	FormatCpio:    {compression.None, ContainerCpio},
}

// ParseFormat resolves a format name or alias, ignoring case and a leading dot.
func ParseFormat(name string) (Format, error) {
	key := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), ".")
	if f, ok := formatAliases[key]; ok {
		return f, nil
	}
	for _, f := range knownFormats {
		if string(f) == key {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// FormatNames lists every accepted format name and alias, sorted.
func FormatNames() []string {
	names := make([]string, 0, len(knownFormats)+len(formatAliases))
	for _, f := range knownFormats {
		names = append(names, string(f))
	}
	for alias := range formatAliases {
		names = append(names, alias)
	}
	sort.Strings(names)
	return names
}

var (
	zipMagic      = []byte("PK\x03\x04")
	zipEmptyMagic = []byte("PK\x05\x06")
	sevenZipMagic = []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}
	arMagic       = []byte("!<arch>\n")
	rpmMagic      = []byte{0xED, 0xAB, 0xEE, 0xDB}
	// new ascii, crc and old binary cpio headers
	cpioMagics = [][]byte{[]byte("070701"), []byte("070702"), []byte("070707"), {0xC7, 0x71}}
)

const (
	tarMagicOffset = 257
	sniffLen       = 512
)

// DetectFormat inspects the first bytes of path. Container signatures are
// checked first, then the compression codec; a compressed stream is assumed
// to hold a tar unless its name says otherwise.
func DetectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	header := make([]byte, sniffLen)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	header = header[:n]
	switch {
	case bytes.HasPrefix(header, zipMagic), bytes.HasPrefix(header, zipEmptyMagic):
		return FormatZip, nil
	case bytes.HasPrefix(header, sevenZipMagic):
		return FormatSevenZip, nil
	case bytes.HasPrefix(header, arMagic):
		return FormatAr, nil
	case bytes.HasPrefix(header, rpmMagic):
		return FormatRpm, nil
	}
	for _, magic := range cpioMagics {
		if bytes.HasPrefix(header, magic) {
			return FormatCpio, nil
		}
	}
	if len(header) >= tarMagicOffset+5 && string(header[tarMagicOffset:tarMagicOffset+5]) == "ustar" {
		return FormatTar, nil
	}
	codec := compression.Detect(header)
	if codec == compression.None {
		codec = compression.ByExtension(path)
	}
	switch codec {
	case compression.Gzip:
		return compressedFormat(path, FormatTarGz), nil
	case compression.Bzip2:
		return compressedFormat(path, FormatTarBz2), nil
	case compression.Xz:
		return compressedFormat(path, FormatTarXz), nil
	case compression.Zstd:
		return compressedFormat(path, FormatTarZst), nil
	case compression.Lz4:
		return compressedFormat(path, FormatTarLz4), nil
	case compression.Lzma:
		return compressedFormat(path, FormatTarLzma), nil
	case compression.Lzip:
		return compressedFormat(path, FormatTarLz), nil
	}
	return "", fmt.Errorf("%w: cannot detect format of %s", ErrUnknownFormat, path)
}

// compressedFormat keeps tarFormat for names like x.tar.gz or x.tgz and falls
// back to a single-file decompression for names like x.txt.gz.
func compressedFormat(path string, tarFormat Format) Format {
	lower := strings.ToLower(path)
	if strings.Contains(lower, ".tar.") || strings.HasPrefix(lowerExt(lower), ".t") {
		return tarFormat
	}
	stem := strings.TrimSuffix(lower, lowerExt(lower))
	if lowerExt(stem) != "" {
		return FormatCompressed
	}
	return tarFormat
}

func lowerExt(name string) string {
	slash := strings.LastIndexAny(name, `/\`)
	dot := strings.LastIndexByte(name, '.')
	if dot <= slash+1 {
		return ""
	}
	return name[dot:]
}

// Extractor extracts the archive at src into dest.
type Extractor interface {
	ExtractArchive(ctx context.Context, src, dest string) error
}

// newExtractor returns the strategy for format, resolving FormatAuto from src.
func newExtractor(format Format, src string, conf *extractConfiguration) (Extractor, error) {
	if format == "" || format == FormatAuto {
		detected, err := DetectFormat(src)
		if err != nil {
			if errors.Is(err, ErrUnknownFormat) {
				return nil, archiver_errors.New(archiver_errors.KindDecode, src, err)
			}
			return nil, archiver_errors.New(archiver_errors.KindSourceOpen, src, err)
		}
		conf.log().Debug("detected archive format", "format", string(detected))
		format = detected
	}
	if sf, ok := streamFormats[format]; ok {
		return &TarArchiver{Codec: sf.codec, Container: sf.container, conf: conf}, nil
	}
	switch format {
	case FormatZip:
		return &ZipArchiver{conf: conf}, nil
	case FormatSevenZip:
		if conf.InProcessSevenZip {
			return &SevenZipArchiver{conf: conf}, nil
		}
		return &SevenZipCommand{Binary: conf.SevenZipBinary, conf: conf}, nil
	case FormatRpm:
		return &RpmArchiver{conf: conf}, nil
	case FormatCompressed:
		return &Decompressor{conf: conf}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Extract runs a job for format synchronously.
func Extract(ctx context.Context, format Format, src, dest string, options ...Option) error {
	return NewJob(format, src, dest, options...).Run(ctx)
}

// Operation starts an extraction job in the background. done, if not nil, is
// called exactly once with the outcome.
type Operation func(src, dest string, filter Filter, progress ProgressFunc, done CompletionFunc) *Job

func operationFor(format Format) Operation {
	return func(src, dest string, filter Filter, progress ProgressFunc, done CompletionFunc) *Job {
		return startJob(context.Background(), format, src, dest, done, WithFilter(filter), WithProgress(progress))
	}
}

var (
	TarGz    = operationFor(FormatTarGz)
	TarBz2   = operationFor(FormatTarBz2)
	TarXz    = operationFor(FormatTarXz)
	Zip      = operationFor(FormatZip)
	SevenZip = operationFor(FormatSevenZip)
)

// Lookup returns the operation registered under a format name or alias.
func Lookup(name string) (Operation, error) {
	format, err := ParseFormat(name)
	if err != nil {
		return nil, err
	}
	return operationFor(format), nil
}

// StartJob is the option-taking form of the format operations.
func StartJob(ctx context.Context, format Format, src, dest string, done CompletionFunc, options ...Option) *Job {
	return startJob(ctx, format, src, dest, done, options...)
}

func startJob(ctx context.Context, format Format, src, dest string, done CompletionFunc, options ...Option) *Job {
	job := NewJob(format, src, dest, options...)
	// a fresh job cannot already be started
	_ = job.Start(ctx, done)
	return job
}
