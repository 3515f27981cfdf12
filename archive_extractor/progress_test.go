package archive_extractor

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressEstimateGuardedBeforeFirstRead(t *testing.T) {
	pt := newProgressTracker(1000, nil)
	st := pt.State()
	assert.Zero(t, st.CompressedReadPercentage())
	assert.Zero(t, st.EstimatedTotalUncompressed)

	// decoder output before the source counter moved must not divide by zero
	pt.addWritten(10)
	assert.Zero(t, pt.State().EstimatedTotalUncompressed)

	empty := newProgressTracker(0, nil)
	empty.addRead(5)
	assert.Zero(t, empty.State().EstimatedTotalUncompressed)
}

func TestProgressEstimate(t *testing.T) {
	pt := newProgressTracker(1000, nil)
	pt.addRead(250)
	pt.addWritten(1000)
	st := pt.State()
	assert.InDelta(t, 25.0, st.CompressedReadPercentage(), 0.001)
	assert.Equal(t, int64(4000), st.EstimatedTotalUncompressed)

	// reading past the declared size caps the percentage
	pt.addRead(2000)
	assert.InDelta(t, 100.0, pt.State().CompressedReadPercentage(), 0.001)
	assert.Equal(t, int64(1000), pt.State().EstimatedTotalUncompressed)
}

func TestProgressCallbackMonotonic(t *testing.T) {
	var transferred, estimates []int64
	pt := newProgressTracker(100, func(done, total int64) {
		transferred = append(transferred, done)
		estimates = append(estimates, total)
	})
	src := pt.compressed(bytes.NewReader(make([]byte, 100)))
	out := pt.decompressed(io.LimitReader(src, 100))
	buf := make([]byte, 7)
	for {
		_, err := out.Read(buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	pt.finish()

	require.NotEmpty(t, transferred)
	for i := 1; i < len(transferred); i++ {
		assert.GreaterOrEqual(t, transferred[i], transferred[i-1])
	}
	last := len(transferred) - 1
	assert.Equal(t, int64(100), transferred[last])
	assert.Equal(t, int64(100), estimates[last])
	for i := range estimates {
		assert.GreaterOrEqual(t, estimates[i], transferred[i])
	}
}
