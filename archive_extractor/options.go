package archive_extractor

import (
	"log/slog"
)

const defaultBufSize = 32 * 1024

type extractConfiguration struct {
	Filter              Filter
	Progress            ProgressFunc
	Logger              *slog.Logger
	BufSize             int
	MaxCompressRatio    int64
	MaxNumberOfEntries  int
	MaxConcurrentWrites int
	Symlinks            bool
	PreserveTimes       bool
	SevenZipBinary      string
	InProcessSevenZip   bool

	// set by the owning Job
	state *jobState
}

type Option func(*extractConfiguration)

func newExtractConfiguration(options ...Option) *extractConfiguration {
	conf := &extractConfiguration{
		BufSize:       defaultBufSize,
		PreserveTimes: true,
	}
	for _, option := range options {
		option(conf)
	}
	return conf
}

// log returns the logger, falling back to a discard logger if nil.
func (c *extractConfiguration) log() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

// WithFilter skips every entry the filter excludes. A nil filter accepts everything.
func WithFilter(filter Filter) Option {
	return func(c *extractConfiguration) {
		c.Filter = filter
	}
}

func WithProgress(progress ProgressFunc) Option {
	return func(c *extractConfiguration) {
		c.Progress = progress
	}
}

// WithLogger sets the logger used by the job. If nil, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *extractConfiguration) {
		c.Logger = logger
	}
}

// WithBufSize sets the read buffer placed in front of the decoder.
func WithBufSize(size int) Option {
	return func(c *extractConfiguration) {
		if size > 0 {
			c.BufSize = size
		}
	}
}

// WithMaxCompressRatio fails the job once the decompressed bytes exceed
// ratio times the archive size. Zero disables the check.
func WithMaxCompressRatio(ratio int64) Option {
	return func(c *extractConfiguration) {
		c.MaxCompressRatio = ratio
	}
}

// WithMaxEntries fails the job when the archive has more than n entries.
// Zero disables the check.
func WithMaxEntries(n int) Option {
	return func(c *extractConfiguration) {
		c.MaxNumberOfEntries = n
	}
}

// WithMaxConcurrentWrites bounds the number of files being written at once.
// Values < 1 leave writers unbounded.
func WithMaxConcurrentWrites(n int) Option {
	return func(c *extractConfiguration) {
		c.MaxConcurrentWrites = n
	}
}

// WithSymlinks materializes symbolic links whose target stays inside the
// destination. By default links are skipped.
func WithSymlinks(enabled bool) Option {
	return func(c *extractConfiguration) {
		c.Symlinks = enabled
	}
}

// WithPreserveTimes controls whether entry modification times are applied.
// Enabled by default.
func WithPreserveTimes(preserve bool) Option {
	return func(c *extractConfiguration) {
		c.PreserveTimes = preserve
	}
}

// WithSevenZipBinary pins the executable used for 7z archives instead of
// searching PATH.
func WithSevenZipBinary(path string) Option {
	return func(c *extractConfiguration) {
		c.SevenZipBinary = path
	}
}

// WithInProcessSevenZip extracts 7z archives with the built-in decoder instead
// of an external executable.
func WithInProcessSevenZip() Option {
	return func(c *extractConfiguration) {
		c.InProcessSevenZip = true
	}
}
