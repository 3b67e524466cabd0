// Package events defines the lifecycle events the orchestrator reacts to.
package events

// Kind names an event kind. Each kind has exactly one active listener.
type Kind string

const (
	KindLaunched        Kind = "launched"
	KindClosed          Kind = "closed"
	KindPostSession     Kind = "post-session"
	KindWindowConnected Kind = "window-connected"
)

// Launched reports that a game process started.
type Launched struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Closed reports that a game process exited.
type Closed struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// PostSession carries the end-of-game summary hook.
type PostSession struct {
	Name string `json:"name"`
}

// WindowConnected reports that a window peer connected to the transport.
// The peer receives no sends until Admit is called.
type WindowConnected struct {
	Window      string `json:"window"`
	ConnectorID string `json:"connector_id"`
	Admit       func() `json:"-"`
}
