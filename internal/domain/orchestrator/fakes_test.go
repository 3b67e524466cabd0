package orchestrator

import (
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/SessionHost/internal/domain/catalog"
	"github.com/GriffinCanCode/SessionHost/internal/domain/dispatch"
	"github.com/GriffinCanCode/SessionHost/internal/domain/events"
	"github.com/GriffinCanCode/SessionHost/internal/domain/notify"
	"github.com/GriffinCanCode/SessionHost/internal/domain/session"
	"github.com/GriffinCanCode/SessionHost/internal/domain/window"
)

const inGame = "in_game"

var closedAt = time.Date(2024, 3, 5, 10, 20, 30, 123_000_000, time.UTC)

// fakeTransport delivers only while a peer is connected, like the real hub.
type fakeTransport struct {
	mu           sync.Mutex
	connected    map[string]bool
	attempts     int
	delivered    []dispatch.Message
	disconnected []string
	connectors   []string
}

func (f *fakeTransport) SendMessage(window string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.connected[window] {
		f.delivered = append(f.delivered, payload.(dispatch.Message))
	}
}

func (f *fakeTransport) WindowDisconnected(window, connector string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.connected, window)
	f.disconnected = append(f.disconnected, window)
	f.connectors = append(f.connectors, connector)
}

func (f *fakeTransport) connect(window string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected == nil {
		f.connected = make(map[string]bool)
	}
	f.connected[window] = true
}

func (f *fakeTransport) deliveredMessages() []dispatch.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dispatch.Message(nil), f.delivered...)
}

// fakeWindows confirms closes immediately unless hold is set.
type fakeWindows struct {
	opened  []string
	closed  []string
	hold    bool
	pending []func(window.Handle)
}

func (f *fakeWindows) OpenWindow(name string) { f.opened = append(f.opened, name) }

func (f *fakeWindows) CloseWindow(name string, onClosed func(window.Handle)) {
	f.closed = append(f.closed, name)
	if f.hold {
		f.pending = append(f.pending, onClosed)
		return
	}
	onClosed(window.Handle{Name: name, ConnectorID: "conn_test"})
}

type fakeTelemetry struct {
	launched [][]string
	closed   int
}

func (f *fakeTelemetry) OnSessionLaunched(features []string) {
	f.launched = append(f.launched, features)
}

func (f *fakeTelemetry) OnSessionClosed() { f.closed++ }

type fakeArchiver struct {
	keys []string
	err  error
}

func (f *fakeArchiver) Backup(key string) error {
	f.keys = append(f.keys, key)
	return f.err
}

type fakeDetector struct {
	launched func(events.Launched)
	closed   func(events.Closed)
	post     func(events.PostSession)
	started  bool
}

func (f *fakeDetector) OnLaunched(fn func(events.Launched))       { f.launched = fn }
func (f *fakeDetector) OnClosed(fn func(events.Closed))           { f.closed = fn }
func (f *fakeDetector) OnPostSession(fn func(events.PostSession)) { f.post = fn }
func (f *fakeDetector) Start() error {
	if f.started {
		return errors.New("already started")
	}
	f.started = true
	return nil
}

type fakeBus struct {
	connected func(events.WindowConnected)
}

func (f *fakeBus) OnWindowConnected(fn func(events.WindowConnected)) { f.connected = fn }

type fakeRecorder struct {
	mu     sync.Mutex
	events map[string]int
	active bool
}

func (f *fakeRecorder) RecordSessionEvent(kind, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.events == nil {
		f.events = make(map[string]int)
	}
	f.events[kind+"/"+outcome]++
}

func (f *fakeRecorder) SetSessionActive(active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = active
}

type harness struct {
	orch      *Orchestrator
	transport *fakeTransport
	windows   *fakeWindows
	telemetry *fakeTelemetry
	archiver  *fakeArchiver
	metrics   *fakeRecorder
	cache     *notify.Cache
}

func newHarness(t require.TestingT) *harness {
	configs, err := catalog.New([]catalog.Entry{
		{ID: 7, Name: "Foo", Features: []string{"kill", "death"}},
		{ID: 9, Name: "My Game!", Features: []string{"match_info"}},
	})
	require.NoError(t, err)

	h := &harness{
		transport: &fakeTransport{},
		windows:   &fakeWindows{},
		telemetry: &fakeTelemetry{},
		archiver:  &fakeArchiver{},
		metrics:   &fakeRecorder{},
		cache:     &notify.Cache{},
	}
	logger := zap.NewNop()
	h.orch = New(Deps{
		Tracker:    session.NewTracker(configs),
		Windows:    window.NewCoordinator(h.windows, logger),
		Dispatcher: dispatch.New(h.transport, h.cache, inGame, logger),
		Transport:  h.transport,
		Telemetry:  h.telemetry,
		Archiver:   h.archiver,
		WindowName: inGame,
		Logger:     logger,
		Metrics:    h.metrics,
		Now:        func() time.Time { return closedAt },
	})
	return h
}

func (h *harness) connectWindow() {
	h.transport.connect(inGame)
	h.orch.HandleWindowConnected(events.WindowConnected{Window: inGame, ConnectorID: "conn_test"})
}

func (h *harness) windowHandle() window.Handle {
	return window.Handle{Name: inGame, ConnectorID: "conn_test"}
}
