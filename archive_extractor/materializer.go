package archive_extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/jfrog/go-archive-unpack/archive_extractor/archiver_errors"
	"github.com/jfrog/go-archive-unpack/compression"
	"github.com/jfrog/go-archive-unpack/utils"
)

const (
	defaultDirMode = 0o755
	maxLinkTarget  = 4096
)

type dirEntry struct {
	rel     string
	mode    os.FileMode
	modTime time.Time
}

// materializer writes accepted entries below one destination root. Every
// filesystem call goes through an os.Root, so nothing can land outside it.
type materializer struct {
	dest string
	root *os.Root
	conf *extractConfiguration

	dirs sync.Map // relative directories already created

	mu         sync.Mutex
	dirEntries []dirEntry
}

func newMaterializer(dest string, conf *extractConfiguration) (*materializer, error) {
	if err := os.MkdirAll(dest, defaultDirMode); err != nil {
		return nil, archiver_errors.New(archiver_errors.KindWrite, dest, err)
	}
	root, err := os.OpenRoot(dest)
	if err != nil {
		return nil, archiver_errors.New(archiver_errors.KindWrite, dest, err)
	}
	return &materializer{dest: dest, root: root, conf: conf}, nil
}

func (m *materializer) Close() error {
	return m.root.Close()
}

func (m *materializer) resolve(hdr *ArchiveHeader) (string, error) {
	rel, err := utils.SafeRelativePath(hdr.Name)
	if err != nil {
		return "", archiver_errors.New(archiver_errors.KindWrite, hdr.Name, err)
	}
	return rel, nil
}

// mkdirAll creates rel and its parents. Concurrent calls for the same or
// overlapping directories are fine.
func (m *materializer) mkdirAll(rel string) error {
	if rel == "" || rel == "." {
		return nil
	}
	if _, ok := m.dirs.Load(rel); ok {
		return nil
	}
	if err := m.root.MkdirAll(rel, defaultDirMode); err != nil {
		return err
	}
	m.dirs.Store(rel, struct{}{})
	return nil
}

// consume materializes entries in archive order until the channel closes.
// File content is written on goroutines of g; everything else happens inline.
func (m *materializer) consume(ctx context.Context, g *errgroup.Group, entries <-chan *ArchiveHeader) error {
	var sem *semaphore.Weighted
	if m.conf.MaxConcurrentWrites > 0 {
		sem = semaphore.NewWeighted(int64(m.conf.MaxConcurrentWrites))
	}
	log := m.conf.log()
	for hdr := range entries {
		if excluded(m.conf.Filter, hdr.Name) {
			log.Debug("entry excluded by filter", "name", hdr.Name)
			if err := hdr.Drain(); err != nil {
				return classifyReadError(hdr.Name, err)
			}
			continue
		}
		switch hdr.Type {
		case EntryFile:
			rel, err := m.resolve(hdr)
			if err != nil {
				hdr.Release()
				return err
			}
			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					hdr.Release()
					return err
				}
			}
			m.conf.state.advance(StateWriting)
			m.conf.state.addPending(1)
			g.Go(func() error {
				defer func() {
					if sem != nil {
						sem.Release(1)
					}
					m.conf.state.addPending(-1)
				}()
				return m.writeFile(hdr, rel)
			})
		case EntryDirectory:
			if err := m.writeDir(hdr); err != nil {
				return err
			}
		case EntrySymlink:
			if !m.conf.Symlinks {
				log.Debug("skipping symlink", "name", hdr.Name, "target", hdr.LinkName)
				if err := hdr.Drain(); err != nil {
					return classifyReadError(hdr.Name, err)
				}
				continue
			}
			if err := m.writeSymlink(hdr); err != nil {
				return err
			}
		case EntryHardlink:
			log.Debug("skipping hard link", "name", hdr.Name, "target", hdr.LinkName)
			if err := hdr.Drain(); err != nil {
				return classifyReadError(hdr.Name, err)
			}
		default:
			log.Debug("skipping unsupported entry", "name", hdr.Name, "type", hdr.Type)
			if err := hdr.Drain(); err != nil {
				return classifyReadError(hdr.Name, err)
			}
		}
	}
	return nil
}

// writeFile streams the entry into place. The header is released as soon as
// its content is consumed so the archive reader can move on while the file is
// closed and stamped.
func (m *materializer) writeFile(hdr *ArchiveHeader, rel string) error {
	defer hdr.Release()
	m.conf.log().Debug("writing file", "name", hdr.Name, "mode", hdr.Mode, "size", hdr.Size)
	if err := m.mkdirAll(filepath.Dir(rel)); err != nil {
		return archiver_errors.New(archiver_errors.KindWrite, hdr.Name, err)
	}
	f, err := m.create(rel, hdr.Mode)
	if err != nil {
		return archiver_errors.New(archiver_errors.KindWrite, hdr.Name, err)
	}
	src := &readErrorRecorder{reader: hdr.ArchiveReader}
	_, copyErr := io.Copy(f, src)
	hdr.Release()
	closeErr := f.Close()
	if src.err != nil {
		return classifyReadError(hdr.Name, src.err)
	}
	if err := errors.Join(copyErr, closeErr); err != nil {
		return archiver_errors.New(archiver_errors.KindWrite, hdr.Name, err)
	}
	// the open mode is subject to umask
	if err := m.root.Chmod(rel, hdr.Mode); err != nil {
		return archiver_errors.New(archiver_errors.KindWrite, hdr.Name, err)
	}
	if m.conf.PreserveTimes && !hdr.ModTime.IsZero() {
		if err := m.root.Chtimes(rel, hdr.ModTime, hdr.ModTime); err != nil {
			return archiver_errors.New(archiver_errors.KindWrite, hdr.Name, err)
		}
	}
	return nil
}

// create truncates or creates rel. Read-only leftovers from an earlier
// extraction are replaced.
func (m *materializer) create(rel string, mode os.FileMode) (*os.File, error) {
	flags := os.O_CREATE | os.O_TRUNC | os.O_WRONLY
	f, err := m.root.OpenFile(rel, flags, mode)
	if err == nil || !errors.Is(err, fs.ErrPermission) {
		return f, err
	}
	if rmErr := m.root.Remove(rel); rmErr != nil {
		return nil, err
	}
	return m.root.OpenFile(rel, flags, mode)
}

func (m *materializer) writeDir(hdr *ArchiveHeader) error {
	defer hdr.Release()
	rel, err := m.resolve(hdr)
	if err != nil {
		return err
	}
	if rel == "" {
		return nil
	}
	if err := m.mkdirAll(rel); err != nil {
		return archiver_errors.New(archiver_errors.KindWrite, hdr.Name, err)
	}
	m.mu.Lock()
	m.dirEntries = append(m.dirEntries, dirEntry{rel: rel, mode: hdr.Mode, modTime: hdr.ModTime})
	m.mu.Unlock()
	return nil
}

func (m *materializer) writeSymlink(hdr *ArchiveHeader) error {
	target := hdr.LinkName
	if target == "" && hdr.ArchiveReader != nil {
		// cpio keeps the target as entry content
		b, err := io.ReadAll(io.LimitReader(hdr.ArchiveReader, maxLinkTarget))
		if err != nil {
			hdr.Release()
			return classifyReadError(hdr.Name, err)
		}
		target = string(b)
	}
	if err := hdr.Drain(); err != nil {
		return classifyReadError(hdr.Name, err)
	}
	rel, err := m.resolve(hdr)
	if err != nil {
		return err
	}
	if err := utils.SafeLinkTarget(filepath.ToSlash(rel), target); err != nil {
		return archiver_errors.New(archiver_errors.KindWrite, hdr.Name, err)
	}
	// the target is checked against rel as written, which only holds when no
	// parent of rel is itself a link
	if dir := m.linkedParent(rel); dir != "" {
		return archiver_errors.New(archiver_errors.KindWrite, hdr.Name,
			fmt.Errorf("%w: parent %s is a symbolic link", archiver_errors.ErrPathTraversal, filepath.ToSlash(dir)))
	}
	if err := m.mkdirAll(filepath.Dir(rel)); err != nil {
		return archiver_errors.New(archiver_errors.KindWrite, hdr.Name, err)
	}
	if err := m.root.Remove(rel); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return archiver_errors.New(archiver_errors.KindWrite, hdr.Name, err)
	}
	if err := m.root.Symlink(target, rel); err != nil {
		return archiver_errors.New(archiver_errors.KindWrite, hdr.Name, err)
	}
	return nil
}

// linkedParent returns the first parent directory of rel that exists as a
// symbolic link below the root, or "" when there is none.
func (m *materializer) linkedParent(rel string) string {
	parent := filepath.Dir(rel)
	if parent == "." {
		return ""
	}
	parts := strings.Split(parent, string(filepath.Separator))
	for i := range parts {
		dir := filepath.Join(parts[:i+1]...)
		info, err := m.root.Lstat(dir)
		if err != nil {
			// missing parents are created as directories
			return ""
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return dir
		}
	}
	return ""
}

// finalizeDirs applies directory modes and times once no more files will be
// written below them, deepest first.
func (m *materializer) finalizeDirs() error {
	m.mu.Lock()
	dirs := m.dirEntries
	m.dirEntries = nil
	m.mu.Unlock()
	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i].rel, string(filepath.Separator)) > strings.Count(dirs[j].rel, string(filepath.Separator))
	})
	for _, d := range dirs {
		if err := m.root.Chmod(d.rel, d.mode|0o700); err != nil {
			return archiver_errors.New(archiver_errors.KindWrite, d.rel, err)
		}
		if m.conf.PreserveTimes && !d.modTime.IsZero() {
			if err := m.root.Chtimes(d.rel, d.modTime, d.modTime); err != nil {
				return archiver_errors.New(archiver_errors.KindWrite, d.rel, err)
			}
		}
	}
	return nil
}

// readErrorRecorder remembers the error returned by the archive side of a
// copy, so it is not mistaken for a destination failure.
type readErrorRecorder struct {
	reader io.Reader
	err    error
}

func (r *readErrorRecorder) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if err != nil && err != io.EOF {
		r.err = err
	}
	return n, err
}

func classifyReadError(name string, err error) error {
	switch {
	case compression.IsDecodeError(err):
		return archiver_errors.New(archiver_errors.KindDecode, name, err)
	case IsErrCompressLimitReached(err), errors.Is(err, ErrTooManyEntries):
		return archiver_errors.New(archiver_errors.KindLimit, name, err)
	default:
		return archiver_errors.New(archiver_errors.KindParse, name, err)
	}
}
