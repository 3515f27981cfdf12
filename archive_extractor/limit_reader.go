package archive_extractor

import (
	"errors"
	"io"
	"os"
	"sync/atomic"
)

var (
	ErrCompressLimitReached = errors.New("decompressed size exceeds the allowed compression ratio")
	ErrTooManyEntries       = errors.New("archive has too many entries")
)

func IsErrCompressLimitReached(err error) bool {
	return errors.Is(err, ErrCompressLimitReached)
}

// maxBytesLimit converts a compression ratio into an absolute cap on
// decompressed bytes. Zero means no cap.
func maxBytesLimit(path string, maxCompressRatio int64) (int64, error) {
	if maxCompressRatio <= 0 {
		return 0, nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size() * maxCompressRatio, nil
}

// LimitAggregatingReadCloserProvider hands out readers that share one byte
// budget, so the cap holds across every entry of an archive.
type LimitAggregatingReadCloserProvider struct {
	Limit int64
	total atomic.Int64
}

func (p *LimitAggregatingReadCloserProvider) CreateLimitAggregatingReadCloser(r io.Reader) io.ReadCloser {
	return &limitAggregatingReadCloser{reader: r, provider: p}
}

type limitAggregatingReadCloser struct {
	reader   io.Reader
	provider *LimitAggregatingReadCloserProvider
}

func (l *limitAggregatingReadCloser) Read(p []byte) (int, error) {
	n, err := l.reader.Read(p)
	// keeps failing once over budget, even on reads that return no bytes
	if l.provider.Limit > 0 && l.provider.total.Add(int64(n)) > l.provider.Limit {
		return n, ErrCompressLimitReached
	}
	return n, err
}

func (l *limitAggregatingReadCloser) Close() error {
	if c, ok := l.reader.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// entryCounter enforces MaxNumberOfEntries. Zero means unlimited.
type entryCounter struct {
	max   int
	count atomic.Int64
}

func (ec *entryCounter) add() error {
	n := ec.count.Add(1)
	if ec.max > 0 && n > int64(ec.max) {
		return ErrTooManyEntries
	}
	return nil
}
