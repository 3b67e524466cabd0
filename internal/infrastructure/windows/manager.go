// Package windows is the window service: it shows and hides named windows
// by sending control messages over the window transport, optionally
// launching the window's process.
package windows

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/SessionHost/internal/domain/window"
	"github.com/GriffinCanCode/SessionHost/internal/shared/id"
)

// Control is a window control message.
type Control struct {
	Type string `json:"type"`
}

// Transport is the subset of the window transport the manager needs.
type Transport interface {
	SendMessage(window string, payload any)
	AwaitDisconnect(window string) (id.ConnectorID, <-chan struct{})
}

// Manager implements window.Service.
type Manager struct {
	transport    Transport
	launcher     Launcher
	closeTimeout time.Duration
	logger       *zap.Logger

	mu        sync.Mutex
	processes map[string]Process
	wg        sync.WaitGroup
}

// NewManager creates a manager. launcher may be nil when windows are
// started outside the host.
func NewManager(transport Transport, launcher Launcher, closeTimeout time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if closeTimeout <= 0 {
		closeTimeout = 5 * time.Second
	}
	return &Manager{
		transport:    transport,
		launcher:     launcher,
		closeTimeout: closeTimeout,
		logger:       logger.Named("windows"),
		processes:    make(map[string]Process),
	}
}

// OpenWindow shows the named window. A connected window is told to show
// itself; with a launcher configured the window's process is started if it
// is not already running.
func (m *Manager) OpenWindow(name string) {
	m.transport.SendMessage(name, Control{Type: "open"})

	if m.launcher == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.processes[name]; running {
		return
	}
	proc, err := m.launcher.Launch(name)
	if err != nil {
		m.logger.Warn("Failed to launch window", zap.String("window", name), zap.Error(err))
		return
	}
	m.processes[name] = proc
	m.logger.Info("Window process launched", zap.String("window", name))
}

// CloseWindow asks the window to close and calls onClosed once it has
// disconnected, or after the close timeout. onClosed always runs on another
// goroutine.
func (m *Manager) CloseWindow(name string, onClosed func(window.Handle)) {
	connector, gone := m.transport.AwaitDisconnect(name)
	if connector != "" {
		m.transport.SendMessage(name, Control{Type: "close"})
	}

	m.mu.Lock()
	proc := m.processes[name]
	delete(m.processes, name)
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		timer := time.NewTimer(m.closeTimeout)
		defer timer.Stop()
		select {
		case <-gone:
		case <-timer.C:
			m.logger.Warn("Window did not disconnect before timeout",
				zap.String("window", name),
				zap.Duration("timeout", m.closeTimeout),
			)
		}

		if proc != nil {
			if err := proc.Stop(); err != nil {
				m.logger.Warn("Failed to stop window process", zap.String("window", name), zap.Error(err))
			}
		}
		onClosed(window.Handle{Name: name, ConnectorID: connector.String()})
	}()
}

// Wait blocks until pending close confirmations have run.
func (m *Manager) Wait() {
	m.wg.Wait()
}
