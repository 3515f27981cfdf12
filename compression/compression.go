package compression

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/mholt/archives"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// Codec identifies the compression applied on top of an archive stream.
type Codec int

const (
	None Codec = iota
	Gzip
	Bzip2
	Xz
	Lzma
	Zstd
	Lzip
	Lz4
)

var codecNames = map[Codec]string{
	None:  "none",
	Gzip:  "gzip",
	Bzip2: "bzip2",
	Xz:    "xz",
	Lzma:  "lzma",
	Zstd:  "zstd",
	Lzip:  "lzip",
	Lz4:   "lz4",
}

func (c Codec) String() string {
	if name, ok := codecNames[c]; ok {
		return name
	}
	return fmt.Sprintf("codec(%d)", int(c))
}

const (
	bz2Ext   = ".bz2"
	tbz2Ext  = ".tbz2"
	gzExt    = ".gz"
	tgzExt   = ".tgz"
	xzExt    = ".xz"
	txzExt   = ".txz"
	lzmaExt  = ".lzma"
	tlzmaExt = ".tlzma"
	zstdExt  = ".zst"
	tzstExt  = ".tzst"
	lzipExt  = ".lz"
	lz4Ext   = ".lz4"
	tlz4Ext  = ".tlz4"

	// MaxMagicBytes is the longest signature checked by Detect (xz).
	MaxMagicBytes = 6
)

var (
	gzipMagic = []byte{0x1F, 0x8B}
	bz2Magic  = []byte{0x42, 0x5A, 0x68}
	xzMagic   = []byte{0xFD, 0x37, 0x7A, 0x58, 0x5A, 0x00}
	lzmaMagic = []byte{0x5D, 0x00, 0x00}
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	lzipMagic = []byte{0x4C, 0x5A, 0x49, 0x50} // "LZIP"
	lz4Magic  = []byte{0x04, 0x22, 0x4D, 0x18}
)

const defaultBufSize = 32 * 1024

type readerConfiguration struct {
	BufSize int
}

type Option func(*readerConfiguration)

func WithBufSize(size int) Option {
	return func(c *readerConfiguration) {
		if size > 0 {
			c.BufSize = size
		}
	}
}

// Provider turns a compressed byte stream into a decompressed one.
type Provider func(io.Reader) (io.ReadCloser, error)

var providers = map[Codec]Provider{
	None:  fileReader,
	Gzip:  gzipReader,
	Bzip2: bz2Reader,
	Xz:    xzReader,
	Lzma:  lzmaReader,
	Zstd:  zstdReader,
	Lzip:  lzipReader,
	Lz4:   lz4Reader,
}

// ProviderFor returns the decompression strategy registered for codec.
func ProviderFor(codec Codec) (Provider, error) {
	p, ok := providers[codec]
	if !ok {
		return nil, fmt.Errorf("unsupported compression codec %v", codec)
	}
	return p, nil
}

// NewStreamReader wraps r with the decompressor for codec. Errors raised while
// building the decompressor and while reading from it are *ErrDecode, so callers
// can tell corrupt input apart from failures of the surrounding pipeline.
func NewStreamReader(codec Codec, r io.Reader, options ...Option) (io.ReadCloser, error) {
	config := &readerConfiguration{BufSize: defaultBufSize}
	for _, option := range options {
		option(config)
	}
	getReader, err := ProviderFor(codec)
	if err != nil {
		return nil, err
	}
	dr, err := getReader(bufio.NewReaderSize(r, config.BufSize))
	if err != nil {
		return nil, &ErrDecode{codec: codec, err: err}
	}
	return &dReader{reader: dr, codec: codec}, nil
}

// Detect reports the codec whose signature prefixes header, or None.
func Detect(header []byte) Codec {
	switch {
	case bytes.HasPrefix(header, bz2Magic):
		return Bzip2
	case bytes.HasPrefix(header, gzipMagic):
		return Gzip
	case bytes.HasPrefix(header, xzMagic):
		return Xz
	case bytes.HasPrefix(header, lzmaMagic):
		return Lzma
	case bytes.HasPrefix(header, lzipMagic):
		return Lzip
	case bytes.HasPrefix(header, zstdMagic):
		return Zstd
	case bytes.HasPrefix(header, lz4Magic):
		return Lz4
	}
	return None
}

// ByExtension maps a file name to a codec using its extension only.
func ByExtension(path string) Codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case bz2Ext, tbz2Ext:
		return Bzip2
	case gzExt, tgzExt:
		return Gzip
	case xzExt, txzExt:
		return Xz
	case lzmaExt, tlzmaExt:
		return Lzma
	case zstdExt, tzstExt:
		return Zstd
	case lzipExt:
		return Lzip
	case lz4Ext, tlz4Ext:
		return Lz4
	}
	return None
}

// DetectFile sniffs the codec of the file at path: magic bytes first, falling
// back to the extension when the content has no known signature.
func DetectFile(path string) (Codec, error) {
	magic, err := getMagicBytes(path)
	if err != nil {
		return None, err
	}
	if codec := Detect(magic); codec != None {
		return codec, nil
	}
	return ByExtension(path), nil
}

func getMagicBytes(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	b := make([]byte, MaxMagicBytes)
	n, err := io.ReadFull(f, b)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return b[:n], nil
}

// decompressing reader

type dReader struct {
	reader io.ReadCloser
	codec  Codec
}

func (dr *dReader) Read(p []byte) (int, error) {
	n, err := dr.reader.Read(p)
	if err != nil && err != io.EOF {
		var de *ErrDecode
		if !errors.As(err, &de) {
			err = &ErrDecode{codec: dr.codec, err: err}
		}
	}
	return n, err
}

func (dr *dReader) Close() error {
	return dr.reader.Close()
}

// ErrDecode marks a failure to decode compressed input.
type ErrDecode struct {
	codec Codec
	err   error
}

func (e *ErrDecode) Error() string {
	return fmt.Sprintf("%v decode: %s", e.codec, e.err.Error())
}

func (e *ErrDecode) Unwrap() error {
	return e.err
}

// Codec returns the codec that failed.
func (e *ErrDecode) Codec() Codec {
	return e.codec
}

func IsDecodeError(err error) bool {
	var de *ErrDecode
	return errors.As(err, &de)
}

// compression readers

func bz2Reader(reader io.Reader) (io.ReadCloser, error) {
	return archives.Bz2{}.OpenReader(reader)
}

func gzipReader(reader io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(reader)
}

func xzReader(reader io.Reader) (io.ReadCloser, error) {
	r, err := xz.NewReader(reader)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(r), nil
}

func lzmaReader(reader io.Reader) (io.ReadCloser, error) {
	r, err := lzma.NewReader(reader)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(r), nil
}

func lzipReader(reader io.Reader) (io.ReadCloser, error) {
	return archives.Lzip{}.OpenReader(reader)
}

func zstdReader(reader io.Reader) (io.ReadCloser, error) {
	r, err := zstd.NewReader(reader, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return r.IOReadCloser(), nil
}

func lz4Reader(reader io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(reader)), nil
}

func fileReader(reader io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(reader), nil
}
