package archive_extractor

import (
	"io"
	"sync"
	"sync/atomic"
)

// ProgressFunc receives the number of uncompressed bytes produced so far and
// the current estimate of the archive's total uncompressed size. Calls are
// serialized and bytesTransferred never decreases between calls.
type ProgressFunc func(bytesTransferred, estimatedTotalBytes int64)

type ProgressState struct {
	// BytesRead counts compressed bytes consumed from the source.
	BytesRead int64
	// TotalBytes is the size of the compressed source.
	TotalBytes int64
	// EstimatedTotalUncompressed extrapolates BytesWritten by the share of the
	// source read so far. Zero until the first compressed byte is read.
	EstimatedTotalUncompressed int64
	// BytesWritten counts uncompressed bytes produced by the decoder.
	BytesWritten int64
}

// CompressedReadPercentage is the share of the source consumed, in [0, 100].
func (ps ProgressState) CompressedReadPercentage() float64 {
	if ps.TotalBytes <= 0 || ps.BytesRead <= 0 {
		return 0
	}
	read := ps.BytesRead
	if read > ps.TotalBytes {
		read = ps.TotalBytes
	}
	return float64(read) * 100 / float64(ps.TotalBytes)
}

type progressTracker struct {
	total    int64
	read     atomic.Int64
	written  atomic.Int64
	callback ProgressFunc

	mu           sync.Mutex
	lastReported int64
}

func newProgressTracker(totalBytes int64, callback ProgressFunc) *progressTracker {
	return &progressTracker{total: totalBytes, callback: callback, lastReported: -1}
}

func (pt *progressTracker) State() ProgressState {
	st := ProgressState{
		BytesRead:    pt.read.Load(),
		TotalBytes:   pt.total,
		BytesWritten: pt.written.Load(),
	}
	if pct := st.CompressedReadPercentage(); pct > 0 {
		st.EstimatedTotalUncompressed = int64(float64(st.BytesWritten) * 100 / pct)
		if st.EstimatedTotalUncompressed < st.BytesWritten {
			st.EstimatedTotalUncompressed = st.BytesWritten
		}
	}
	return st
}

func (pt *progressTracker) addRead(n int64) {
	pt.read.Add(n)
}

func (pt *progressTracker) addWritten(n int64) {
	pt.written.Add(n)
	pt.report(false)
}

// finish emits a last event whose estimate is the exact uncompressed size.
func (pt *progressTracker) finish() {
	pt.report(true)
}

func (pt *progressTracker) report(final bool) {
	if pt.callback == nil {
		return
	}
	pt.mu.Lock()
	defer pt.mu.Unlock()
	st := pt.State()
	if st.BytesWritten < pt.lastReported || (st.BytesWritten == pt.lastReported && !final) {
		return
	}
	estimate := st.EstimatedTotalUncompressed
	if final {
		estimate = st.BytesWritten
	}
	pt.lastReported = st.BytesWritten
	pt.callback(st.BytesWritten, estimate)
}

// compressed wraps the raw source so every byte handed to the decoder is counted.
func (pt *progressTracker) compressed(r io.Reader) io.Reader {
	return &countingReader{reader: r, add: pt.addRead}
}

// decompressed wraps the decoder output.
func (pt *progressTracker) decompressed(r io.Reader) io.Reader {
	return &countingReader{reader: r, add: pt.addWritten}
}

type countingReader struct {
	reader io.Reader
	add    func(int64)
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.reader.Read(p)
	if n > 0 {
		cr.add(int64(n))
	}
	return n, err
}
