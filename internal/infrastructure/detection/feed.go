// Package detection delivers game lifecycle events from outside the host:
// pushed over HTTP into a Feed, or dropped as files into a spool directory.
package detection

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/SessionHost/internal/domain/events"
)

var (
	ErrNotStarted  = errors.New("detection feed not started")
	ErrUnknownKind = errors.New("unknown detection event")
)

// Feed fans published events out to one listener per kind. It implements
// the orchestrator's Detector.
type Feed struct {
	logger *zap.Logger

	mu       sync.RWMutex
	started  bool
	launched func(events.Launched)
	closed   func(events.Closed)
	post     func(events.PostSession)
}

// NewFeed creates a feed.
func NewFeed(logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{logger: logger.Named("detection")}
}

// OnLaunched sets the launched listener, replacing any previous one.
func (f *Feed) OnLaunched(fn func(events.Launched)) {
	f.mu.Lock()
	f.launched = fn
	f.mu.Unlock()
}

// OnClosed sets the closed listener, replacing any previous one.
func (f *Feed) OnClosed(fn func(events.Closed)) {
	f.mu.Lock()
	f.closed = fn
	f.mu.Unlock()
}

// OnPostSession sets the post-session listener, replacing any previous one.
func (f *Feed) OnPostSession(fn func(events.PostSession)) {
	f.mu.Lock()
	f.post = fn
	f.mu.Unlock()
}

// Start enables delivery. Events published before Start are rejected.
func (f *Feed) Start() error {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	f.logger.Info("Detection started")
	return nil
}

// Started reports whether Start was called.
func (f *Feed) Started() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.started
}

// Publish delivers one event of the given kind.
func (f *Feed) Publish(kind events.Kind, gameID int, name string) error {
	f.mu.RLock()
	started := f.started
	launched, closed, post := f.launched, f.closed, f.post
	f.mu.RUnlock()

	if !started {
		return ErrNotStarted
	}

	f.logger.Debug("Detection event",
		zap.String("event", string(kind)),
		zap.Int("game_id", gameID),
		zap.String("game", name),
	)

	switch kind {
	case events.KindLaunched:
		if launched != nil {
			launched(events.Launched{ID: gameID, Name: name})
		}
	case events.KindClosed:
		if closed != nil {
			closed(events.Closed{ID: gameID, Name: name})
		}
	case events.KindPostSession:
		if post != nil {
			post(events.PostSession{Name: name})
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return nil
}
