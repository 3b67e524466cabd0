// Package archive packs the host's log files into a compressed tarball
// per closed session and prunes old tarballs.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// Ext is appended to every archive key.
const Ext = ".tar.zst"

var (
	ErrNoLogs     = errors.New("no log files to archive")
	ErrInvalidKey = errors.New("invalid archive key")
)

// Options configures an Archiver.
type Options struct {
	LogDir string
	Dir    string
	Glob   string
	Retain int
	// Flush is called before packing so buffered log lines reach disk.
	Flush func() error
}

// Archiver implements the orchestrator's log archive collaborator.
type Archiver struct {
	logDir string
	dir    string
	glob   string
	retain int
	flush  func() error
	logger *zap.Logger

	mu sync.Mutex
}

// New creates an archiver. Glob defaults to "*.log*"; Retain <= 0 keeps
// every archive.
func New(opts Options, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Glob == "" {
		opts.Glob = "*.log*"
	}
	return &Archiver{
		logDir: opts.LogDir,
		dir:    opts.Dir,
		glob:   opts.Glob,
		retain: opts.Retain,
		flush:  opts.Flush,
		logger: logger.Named("archive"),
	}
}

// Backup packs the current log files into <Dir>/<key>.tar.zst.
func (a *Archiver) Backup(key string) error {
	if !validKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.flush != nil {
		if err := a.flush(); err != nil {
			a.logger.Debug("Log flush failed", zap.Error(err))
		}
	}

	files, err := a.sources()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return ErrNoLogs
	}

	target := filepath.Join(a.dir, filepath.FromSlash(key)+Ext)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	if err := a.pack(target, files); err != nil {
		return err
	}
	a.logger.Debug("Archive written", zap.String("path", target), zap.Int("files", len(files)))

	return a.prune(key[:strings.IndexByte(key, '/')])
}

// List returns every archive key under Dir, oldest first within a name.
func (a *Archiver) List() ([]string, error) {
	return a.list(a.dir)
}

func (a *Archiver) sources() ([]string, error) {
	matches, err := doublestar.FilepathGlob(filepath.Join(a.logDir, a.glob))
	if err != nil {
		return nil, fmt.Errorf("glob logs: %w", err)
	}

	archiveDir, _ := filepath.Abs(a.dir)
	files := matches[:0]
	for _, m := range matches {
		if abs, err := filepath.Abs(m); err == nil && archiveDir != "" && strings.HasPrefix(abs, archiveDir+string(filepath.Separator)) {
			continue
		}
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, m)
	}
	sort.Strings(files)
	return files, nil
}

func (a *Archiver) pack(target string, files []string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".archive-*")
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	zw, err := zstd.NewWriter(tmp)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	for _, path := range files {
		if err := a.addFile(tw, path); err != nil {
			zw.Close()
			return err
		}
	}

	if err := tw.Close(); err != nil {
		zw.Close()
		return fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zstd: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("rename archive: %w", err)
	}
	return nil
}

// addFile copies exactly the size seen at stat time, since the live log
// may keep growing while it is read.
func (a *Archiver) addFile(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("tar header %s: %w", path, err)
	}
	if rel, err := filepath.Rel(a.logDir, path); err == nil {
		header.Name = filepath.ToSlash(rel)
	}

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write header %s: %w", path, err)
	}
	if _, err := io.CopyN(tw, f, header.Size); err != nil {
		return fmt.Errorf("copy %s: %w", path, err)
	}
	return nil
}

func (a *Archiver) prune(name string) error {
	if a.retain <= 0 {
		return nil
	}

	keys, err := a.list(filepath.Join(a.dir, name))
	if err != nil {
		return err
	}
	if len(keys) <= a.retain {
		return nil
	}

	for _, key := range keys[:len(keys)-a.retain] {
		path := filepath.Join(a.dir, filepath.FromSlash(key)+Ext)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("prune %s: %w", key, err)
		}
		a.logger.Debug("Pruned archive", zap.String("key", key))
	}
	return nil
}

func (a *Archiver) list(root string) ([]string, error) {
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	var (
		mu   sync.Mutex
		keys []string
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), Ext) {
			return nil
		}
		rel, err := filepath.Rel(a.dir, path)
		if err != nil {
			return nil
		}

		mu.Lock()
		keys = append(keys, strings.TrimSuffix(filepath.ToSlash(rel), Ext))
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}

	sort.Strings(keys)
	return keys, nil
}

func validKey(key string) bool {
	i := strings.IndexByte(key, '/')
	if i <= 0 || i == len(key)-1 || strings.HasPrefix(key, "/") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

// Nop stands in when no archive directory is configured.
type Nop struct {
	Logger *zap.Logger
}

// Backup logs the key it would have used.
func (n Nop) Backup(key string) error {
	if n.Logger != nil {
		n.Logger.Debug("Archiving disabled", zap.String("key", key))
	}
	return nil
}
