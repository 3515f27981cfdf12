package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jfrog/go-archive-unpack/archive_extractor"
)

type options struct {
	format       string
	excludes     []string
	matchMode    string
	symlinks     bool
	maxRatio     int64
	maxEntries   int
	maxWriters   int
	sevenZipBin  string
	inProcess7z  bool
	showProgress bool
	verbose      bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "unpack [flags] <archive> <destination>",
		Short: "Extract an archive into a directory",
		Long: `Extract tar (gzip, bzip2, xz, zstd, lz4, lzma, lzip), zip, 7z, ar, cpio
and rpm archives into a destination directory, streaming entries as they are decoded.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args[0], args[1])
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.format, "format", "f", string(archive_extractor.FormatAuto),
		"archive format, one of: "+strings.Join(archive_extractor.FormatNames(), ", "))
	flags.StringArrayVarP(&opts.excludes, "exclude", "x", nil, "skip entries matching the pattern (repeatable)")
	flags.StringVar(&opts.matchMode, "match-mode", string(archive_extractor.MatchRegexp),
		"how --exclude patterns match entry paths: "+matchModeNames())
	flags.BoolVar(&opts.symlinks, "symlinks", false, "create symbolic links that stay inside the destination")
	flags.Int64Var(&opts.maxRatio, "max-ratio", 0, "fail when output exceeds this multiple of the archive size (0 disables)")
	flags.IntVar(&opts.maxEntries, "max-entries", 0, "fail when the archive has more entries (0 disables)")
	flags.IntVar(&opts.maxWriters, "max-writers", 0, "bound concurrent file writes (0 is unbounded)")
	flags.StringVar(&opts.sevenZipBin, "7z-binary", "", "7-Zip executable for 7z archives (default: search PATH)")
	flags.BoolVar(&opts.inProcess7z, "in-process-7z", false, "extract 7z archives without an external tool")
	flags.BoolVarP(&opts.showProgress, "progress", "p", false, "print progress to stderr")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log every entry decision")
	return cmd
}

func matchModeNames() string {
	names := make([]string, 0, len(archive_extractor.MatchModes))
	for _, m := range archive_extractor.MatchModes {
		names = append(names, string(m))
	}
	return strings.Join(names, ", ")
}

func (o *options) extractOptions(logger *slog.Logger, progress archive_extractor.ProgressFunc) ([]archive_extractor.Option, error) {
	extractOpts := []archive_extractor.Option{
		archive_extractor.WithLogger(logger),
		archive_extractor.WithSymlinks(o.symlinks),
		archive_extractor.WithMaxCompressRatio(o.maxRatio),
		archive_extractor.WithMaxEntries(o.maxEntries),
		archive_extractor.WithMaxConcurrentWrites(o.maxWriters),
		archive_extractor.WithSevenZipBinary(o.sevenZipBin),
	}
	if o.inProcess7z {
		extractOpts = append(extractOpts, archive_extractor.WithInProcessSevenZip())
	}
	if len(o.excludes) > 0 {
		filters := make([]archive_extractor.Filter, 0, len(o.excludes))
		for _, pattern := range o.excludes {
			f, err := archive_extractor.NewMatchFilter(pattern, archive_extractor.MatchMode(o.matchMode))
			if err != nil {
				return nil, fmt.Errorf("invalid --exclude %q: %w", pattern, err)
			}
			filters = append(filters, f)
		}
		extractOpts = append(extractOpts, archive_extractor.WithFilter(archive_extractor.AnyOf(filters...)))
	}
	if progress != nil {
		extractOpts = append(extractOpts, archive_extractor.WithProgress(progress))
	}
	return extractOpts, nil
}

func run(cmd *cobra.Command, opts *options, src, dest string) error {
	format, err := archive_extractor.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	stderr := cmd.ErrOrStderr()
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	var progress archive_extractor.ProgressFunc
	if opts.showProgress {
		progress = newProgressPrinter(stderr).print
	}
	extractOpts, err := opts.extractOptions(logger, progress)
	if err != nil {
		return err
	}
	return archive_extractor.Extract(cmd.Context(), format, src, dest, extractOpts...)
}

// progressPrinter prints at most one line per mebibyte of output, plus the
// final total.
type progressPrinter struct {
	mu   sync.Mutex
	w    io.Writer
	last uint64
}

const progressStep = 1 << 20

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

func (pp *progressPrinter) print(transferred, estimated int64) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	done := uint64(transferred)
	final := transferred == estimated
	if !final && done-pp.last < progressStep && pp.last != 0 {
		return
	}
	pp.last = done
	if final {
		fmt.Fprintf(pp.w, "extracted %s\n", humanize.IBytes(done))
		return
	}
	fmt.Fprintf(pp.w, "%s of ~%s\n", humanize.IBytes(done), humanize.IBytes(uint64(estimated)))
}
