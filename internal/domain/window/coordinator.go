// Package window opens and closes the named in-game window in step with
// session transitions.
package window

import (
	"sync"

	"go.uber.org/zap"
)

// Handle identifies a window that the window service confirmed closed.
type Handle struct {
	Name        string `json:"name"`
	ConnectorID string `json:"connector_id,omitempty"`
}

// Service is the external window manager. Both calls are asynchronous
// requests; CloseWindow confirms through onClosed.
type Service interface {
	OpenWindow(name string)
	CloseWindow(name string, onClosed func(Handle))
}

// Coordinator issues at most one open per session and at most one close per
// open. Not safe for concurrent use.
type Coordinator struct {
	service Service
	logger  *zap.Logger
	open    map[string]bool
}

// NewCoordinator creates a coordinator over service.
func NewCoordinator(service Service, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		service: service,
		logger:  logger.Named("window"),
		open:    make(map[string]bool),
	}
}

// OpenFor requests the named window. It reports whether a request was
// issued; a window already open is left alone.
func (c *Coordinator) OpenFor(name string) bool {
	if c.open[name] {
		c.logger.Debug("Window already open", zap.String("window", name))
		return false
	}
	c.open[name] = true
	c.service.OpenWindow(name)
	c.logger.Info("Window open requested", zap.String("window", name))
	return true
}

// CloseFor requests the named window be closed and runs onClosed exactly once
// when the service confirms. Closing a window that is not open is a no-op.
func (c *Coordinator) CloseFor(name string, onClosed func(Handle)) bool {
	if !c.open[name] {
		c.logger.Debug("Window not open, nothing to close", zap.String("window", name))
		return false
	}
	delete(c.open, name)

	var once sync.Once
	c.service.CloseWindow(name, func(h Handle) {
		once.Do(func() {
			c.logger.Info("Window closed",
				zap.String("window", h.Name),
				zap.String("connector", h.ConnectorID),
			)
			if onClosed != nil {
				onClosed(h)
			}
		})
	})
	c.logger.Info("Window close requested", zap.String("window", name))
	return true
}

// IsOpen reports whether the named window is expected to exist.
func (c *Coordinator) IsOpen(name string) bool {
	return c.open[name]
}
