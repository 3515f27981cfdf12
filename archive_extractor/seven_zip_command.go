package archive_extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/jfrog/go-archive-unpack/archive_extractor/archiver_errors"
)

const maxToolOutput = 4096

// SevenZipCommand extracts 7z archives by running an external 7-Zip binary.
// The tool writes the destination itself, so filters and progress do not apply.
type SevenZipCommand struct {
	// Binary is the executable to run. Empty searches PATH.
	Binary string
	conf   *extractConfiguration
}

func NewSevenZipCommand(binary string, options ...Option) *SevenZipCommand {
	return &SevenZipCommand{Binary: binary, conf: newExtractConfiguration(options...)}
}

func sevenZipCandidates() []string {
	if runtime.GOOS == "windows" {
		return []string{"7za.exe", "7z.exe"}
	}
	return []string{"7z", "7za", "7zz"}
}

func (sc *SevenZipCommand) lookPath() (string, error) {
	if sc.Binary != "" {
		bin, err := exec.LookPath(sc.Binary)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", archiver_errors.ErrToolNotFound, sc.Binary, err)
		}
		return bin, nil
	}
	candidates := sevenZipCandidates()
	for _, name := range candidates {
		if bin, err := exec.LookPath(name); err == nil {
			return bin, nil
		}
	}
	return "", fmt.Errorf("%w: none of %s found in PATH", archiver_errors.ErrToolNotFound, strings.Join(candidates, ", "))
}

func (sc *SevenZipCommand) ExtractArchive(ctx context.Context, src, dest string) error {
	conf := sc.conf
	if conf == nil {
		conf = newExtractConfiguration()
	}
	log := conf.log()
	fInfo, err := os.Stat(src)
	if err != nil {
		return archiver_errors.New(archiver_errors.KindSourceOpen, src, err)
	}
	if !fInfo.Mode().IsRegular() {
		return archiver_errors.New(archiver_errors.KindSourceOpen, src, fmt.Errorf("%s is not a regular file", src))
	}
	bin, err := sc.lookPath()
	if err != nil {
		return archiver_errors.New(archiver_errors.KindExternalTool, src, err)
	}
	if err := os.MkdirAll(dest, defaultDirMode); err != nil {
		return archiver_errors.New(archiver_errors.KindWrite, dest, err)
	}
	if conf.Filter != nil {
		log.Warn("entry filter is not applied by the external 7z tool")
	}
	conf.state.advance(StateReading)

	args := []string{"x", "-y", "-o" + dest, src}
	log.Info("running 7z", "command", bin+" "+strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	conf.state.advance(StateWriting)
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		output := strings.TrimSpace(stderr.String())
		if len(output) > maxToolOutput {
			output = output[:maxToolOutput]
		}
		log.Debug("7z failed", "stderr", output)
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			err = fmt.Errorf("%s exited with status %d: %s: %w", filepath.Base(bin), exitErr.ExitCode(), output, err)
		}
		return archiver_errors.New(archiver_errors.KindExternalTool, src, err)
	}
	return nil
}
