// Package dispatch delivers the session-start notification to the in-game
// window, either immediately or by replay when the window connects later.
package dispatch

import (
	"go.uber.org/zap"

	"github.com/GriffinCanCode/SessionHost/internal/domain/notify"
)

// TypeSessionStarted is the message type of the session-start notification.
const TypeSessionStarted = "session-started"

// Message is the payload sent to the window. Live and replayed deliveries
// use the same shape.
type Message struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Sender is the fire-and-forget transport. Sending to a window with no
// connected peer does nothing.
type Sender interface {
	SendMessage(window string, payload any)
}

// Recorder receives delivery counts. Delivery is "live" or "replay".
type Recorder interface {
	RecordNotification(delivery string)
}

// Dispatcher owns the notification cache lifecycle. Not safe for concurrent
// use.
type Dispatcher struct {
	sender  Sender
	cache   *notify.Cache
	window  string
	logger  *zap.Logger
	metrics Recorder
}

// New creates a dispatcher that targets the named window.
func New(sender Sender, cache *notify.Cache, window string, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sender: sender,
		cache:  cache,
		window: window,
		logger: logger.Named("dispatch"),
	}
}

// WithMetrics attaches a delivery recorder.
func (d *Dispatcher) WithMetrics(r Recorder) *Dispatcher {
	d.metrics = r
	return d
}

// SessionStarted caches text and makes one immediate delivery attempt.
func (d *Dispatcher) SessionStarted(text string) {
	d.cache.Set(text)
	d.send(text, "live")
}

// WindowConnected replays the cached notification to window, if any. It
// reports whether a replay was sent. The cache is left intact so every
// reconnect gets the same text.
func (d *Dispatcher) WindowConnected(window string) bool {
	if window != d.window {
		return false
	}
	text, ok := d.cache.Peek()
	if !ok {
		d.logger.Debug("Nothing to replay", zap.String("window", window))
		return false
	}
	d.send(text, "replay")
	return true
}

// SessionClosed drops the cached notification.
func (d *Dispatcher) SessionClosed() {
	d.cache.Clear()
}

// Pending returns the cached notification.
func (d *Dispatcher) Pending() (string, bool) {
	return d.cache.Peek()
}

func (d *Dispatcher) send(text, delivery string) {
	d.sender.SendMessage(d.window, Message{Type: TypeSessionStarted, Text: text})
	if d.metrics != nil {
		d.metrics.RecordNotification(delivery)
	}
	d.logger.Debug("Notification sent",
		zap.String("window", d.window),
		zap.String("delivery", delivery),
		zap.String("text", text),
	)
}
