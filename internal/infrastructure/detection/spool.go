package detection

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/SessionHost/internal/domain/events"
)

// spoolEvent is the file format read from the spool directory.
type spoolEvent struct {
	Event string `json:"event"`
	ID    int    `json:"id"`
	Name  string `json:"name"`
}

// SpoolWatcher reads *.json event files dropped into a directory and
// publishes them to a Feed. Published files are removed; unreadable or
// unpublishable ones are renamed with a .rejected suffix. Producers should write to a temporary
// name and rename into place.
type SpoolWatcher struct {
	dir     string
	feed    *Feed
	logger  *zap.Logger
	watcher *fsnotify.Watcher
}

// NewSpoolWatcher watches dir, creating it if needed.
func NewSpoolWatcher(dir string, feed *Feed, logger *zap.Logger) (*SpoolWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	return &SpoolWatcher{
		dir:     dir,
		feed:    feed,
		logger:  logger.Named("spool"),
		watcher: watcher,
	}, nil
}

// Run drains files already in the directory, in name order, then processes
// new files until ctx is cancelled.
func (s *SpoolWatcher) Run(ctx context.Context) error {
	defer s.watcher.Close()

	if err := s.drain(); err != nil {
		s.logger.Warn("Failed to drain spool directory", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				s.process(ev.Name)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Watcher error", zap.Error(err))
		}
	}
}

func (s *SpoolWatcher) drain() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		s.process(filepath.Join(s.dir, name))
	}
	return nil
}

func (s *SpoolWatcher) process(path string) {
	if !strings.HasSuffix(path, ".json") {
		return
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return // already handled
	}
	if err != nil {
		s.logger.Warn("Failed to read event file", zap.String("path", path), zap.Error(err))
		return
	}
	if len(data) == 0 {
		return // still being written; a Write event follows
	}

	var ev spoolEvent
	if err := sonic.Unmarshal(data, &ev); err != nil {
		s.reject(path, err)
		return
	}
	if err := s.feed.Publish(events.Kind(ev.Event), ev.ID, ev.Name); err != nil {
		s.reject(path, err)
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("Failed to remove event file", zap.String("path", path), zap.Error(err))
	}
}

func (s *SpoolWatcher) reject(path string, cause error) {
	s.logger.Warn("Rejecting event file", zap.String("path", path), zap.Error(cause))
	if err := os.Rename(path, path+".rejected"); err != nil {
		s.logger.Warn("Failed to reject event file", zap.String("path", path), zap.Error(err))
	}
}
