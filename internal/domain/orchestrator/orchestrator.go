package orchestrator

import (
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/SessionHost/internal/domain/dispatch"
	"github.com/GriffinCanCode/SessionHost/internal/domain/events"
	"github.com/GriffinCanCode/SessionHost/internal/domain/session"
	"github.com/GriffinCanCode/SessionHost/internal/domain/window"
)

// State is the orchestrator's session state.
type State string

const (
	StateIdle   State = "idle"
	StateActive State = "active"
)

const (
	outcomeHandled = "handled"
	outcomeIgnored = "ignored"
)

// Deps are the components and collaborators the orchestrator drives.
type Deps struct {
	Tracker    *session.Tracker
	Windows    *window.Coordinator
	Dispatcher *dispatch.Dispatcher
	Transport  Disconnector
	Telemetry  Telemetry
	Archiver   Archiver
	WindowName string
	Logger     *zap.Logger
	Metrics    Recorder
	Now        func() time.Time
}

// Orchestrator reacts to lifecycle events. Not safe for concurrent use.
type Orchestrator struct {
	tracker    *session.Tracker
	windows    *window.Coordinator
	dispatcher *dispatch.Dispatcher
	transport  Disconnector
	telemetry  Telemetry
	archiver   Archiver
	windowName string
	logger     *zap.Logger
	metrics    Recorder
	now        func() time.Time
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	State      State               `json:"state"`
	Session    *session.Descriptor `json:"session,omitempty"`
	Window     string              `json:"window"`
	WindowOpen bool                `json:"window_open"`
	Pending    string              `json:"pending_notification,omitempty"`
	HasPending bool                `json:"has_pending_notification"`
}

// New creates an orchestrator.
func New(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		tracker:    deps.Tracker,
		windows:    deps.Windows,
		dispatcher: deps.Dispatcher,
		transport:  deps.Transport,
		telemetry:  deps.Telemetry,
		archiver:   deps.Archiver,
		windowName: deps.WindowName,
		logger:     logger.Named("orchestrator"),
		metrics:    deps.Metrics,
		now:        now,
	}
}

// Attach registers one listener per event kind on the detector and bus,
// each routed through exec, then starts the detector.
func (o *Orchestrator) Attach(detector Detector, bus ConnectionBus, exec Executor) error {
	if exec == nil {
		exec = Inline{}
	}

	detector.OnLaunched(func(ev events.Launched) {
		o.post(exec, events.KindLaunched, func() { o.HandleLaunched(ev) })
	})
	detector.OnClosed(func(ev events.Closed) {
		o.post(exec, events.KindClosed, func() { o.HandleClosed(ev) })
	})
	detector.OnPostSession(func(ev events.PostSession) {
		o.post(exec, events.KindPostSession, func() { o.HandlePostSession(ev) })
	})
	bus.OnWindowConnected(func(ev events.WindowConnected) {
		o.post(exec, events.KindWindowConnected, func() { o.HandleWindowConnected(ev) })
	})

	return detector.Start()
}

func (o *Orchestrator) post(exec Executor, kind events.Kind, fn func()) {
	if !exec.Post(fn) {
		o.logger.Warn("Event dropped, loop stopped", zap.String("event", string(kind)))
	}
}

// HandleLaunched starts a session for a configured game.
func (o *Orchestrator) HandleLaunched(ev events.Launched) {
	log := o.logger.With(zap.Int("game_id", ev.ID), zap.String("game", ev.Name))

	desc, ok := o.tracker.Resolve(ev.ID, ev.Name)
	if !ok {
		log.Debug("Ignoring launch of unconfigured game")
		o.record(events.KindLaunched, outcomeIgnored)
		return
	}

	if active, ok := o.tracker.Active(); ok {
		if active.ID == ev.ID {
			log.Debug("Ignoring duplicate launch", zap.String("run_id", active.RunID))
			o.record(events.KindLaunched, outcomeIgnored)
			return
		}
		log.Warn("Launch while another session is active, superseding it",
			zap.Int("previous_game_id", active.ID),
			zap.String("previous_run_id", active.RunID),
		)
	}

	o.tracker.Begin(desc)
	o.windows.OpenFor(o.windowName)
	o.dispatcher.SessionStarted(desc.LaunchText())
	o.telemetry.OnSessionLaunched(desc.Features)

	log.Info("Game session started",
		zap.String("run_id", desc.RunID),
		zap.Strings("features", desc.Features),
	)
	o.record(events.KindLaunched, outcomeHandled)
	o.setActive(true)
}

// HandleClosed ends the active session when the configured game exits.
func (o *Orchestrator) HandleClosed(ev events.Closed) {
	log := o.logger.With(zap.Int("game_id", ev.ID), zap.String("game", ev.Name))

	if !o.tracker.IsConfigured(ev.ID) {
		log.Debug("Ignoring close of unconfigured game")
		o.record(events.KindClosed, outcomeIgnored)
		return
	}

	desc, ok := o.tracker.End(ev.ID)
	if !ok {
		log.Debug("Ignoring close, no matching active session")
		o.record(events.KindClosed, outcomeIgnored)
		return
	}

	name := ev.Name
	if name == "" {
		name = desc.Name
	}

	o.windows.CloseFor(o.windowName, func(h window.Handle) {
		o.transport.WindowDisconnected(h.Name, h.ConnectorID)

		key := session.ArchiveKey(name, o.now())
		if err := o.archiver.Backup(key); err != nil {
			log.Warn("Log archive failed", zap.String("key", key), zap.Error(err))
			return
		}
		log.Info("Session logs archived", zap.String("key", key))
	})
	o.dispatcher.SessionClosed()
	o.telemetry.OnSessionClosed()

	log.Info("Game session closed", zap.String("run_id", desc.RunID))
	o.record(events.KindClosed, outcomeHandled)
	o.setActive(false)
}

// HandlePostSession logs the post-game hook. It touches no session state.
func (o *Orchestrator) HandlePostSession(ev events.PostSession) {
	o.logger.Info("Running post-game logic", zap.String("game", ev.Name))
	o.record(events.KindPostSession, outcomeHandled)
}

// HandleWindowConnected admits the peer and replays the cached notification
// to the in-game window, whatever the session state.
func (o *Orchestrator) HandleWindowConnected(ev events.WindowConnected) {
	if ev.Admit != nil {
		ev.Admit()
	}
	if ev.Window != o.windowName {
		o.logger.Debug("Ignoring connection from other window",
			zap.String("window", ev.Window),
			zap.String("connector", ev.ConnectorID),
		)
		o.record(events.KindWindowConnected, outcomeIgnored)
		return
	}

	replayed := o.dispatcher.WindowConnected(ev.Window)
	o.logger.Info("In-game window connected",
		zap.String("connector", ev.ConnectorID),
		zap.Bool("replayed", replayed),
	)
	o.record(events.KindWindowConnected, outcomeHandled)
}

// Status reports the current state. Call it on the same executor as the
// handlers.
func (o *Orchestrator) Status() Status {
	st := Status{
		State:      StateIdle,
		Window:     o.windowName,
		WindowOpen: o.windows.IsOpen(o.windowName),
	}
	if desc, ok := o.tracker.Active(); ok {
		st.State = StateActive
		st.Session = &desc
	}
	st.Pending, st.HasPending = o.dispatcher.Pending()
	return st
}

func (o *Orchestrator) record(kind events.Kind, outcome string) {
	if o.metrics != nil {
		o.metrics.RecordSessionEvent(string(kind), outcome)
	}
}

func (o *Orchestrator) setActive(active bool) {
	if o.metrics != nil {
		o.metrics.SetSessionActive(active)
	}
}
