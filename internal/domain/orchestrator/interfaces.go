package orchestrator

import (
	"github.com/GriffinCanCode/SessionHost/internal/domain/events"
)

// Detector emits game lifecycle events to one listener per kind.
type Detector interface {
	OnLaunched(func(events.Launched))
	OnClosed(func(events.Closed))
	OnPostSession(func(events.PostSession))
	Start() error
}

// ConnectionBus emits window-connected events.
type ConnectionBus interface {
	OnWindowConnected(func(events.WindowConnected))
}

// Disconnector tells the transport a window peer is gone. Only the peer
// identified by connector is dropped.
type Disconnector interface {
	WindowDisconnected(window, connector string)
}

// Telemetry subscribes to and releases in-game features.
type Telemetry interface {
	OnSessionLaunched(features []string)
	OnSessionClosed()
}

// Archiver files the current logs under a key.
type Archiver interface {
	Backup(key string) error
}

// Executor runs fn, possibly later on another goroutine. It reports false
// when fn was dropped.
type Executor interface {
	Post(fn func()) bool
}

// Recorder receives orchestrator counters.
type Recorder interface {
	RecordSessionEvent(kind, outcome string)
	SetSessionActive(active bool)
}

// Inline runs posted functions immediately on the caller's goroutine.
type Inline struct{}

// Post runs fn.
func (Inline) Post(fn func()) bool {
	fn()
	return true
}
