package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/SessionHost/internal/domain/events"
	"github.com/GriffinCanCode/SessionHost/internal/shared/id"
)

// Recorder receives connection and message counts.
type Recorder interface {
	IncWSConnections()
	DecWSConnections()
	RecordWSMessage(direction, msgType string)
}

// inbound is a message received from a window.
type inbound struct {
	Type string `json:"type"`
}

// Hub tracks connected windows and delivers messages to them.
type Hub struct {
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	metrics    Recorder
	sendBuffer int

	mu          sync.RWMutex
	peers       map[string]*peer // admitted, by window
	conns       map[*peer]struct{}
	closed      bool
	onConnected func(events.WindowConnected)
}

// NewHub creates a hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // windows are served from an app-local origin
			},
		},
		logger:     logger.Named("ws"),
		sendBuffer: 32,
		peers:      make(map[string]*peer),
		conns:      make(map[*peer]struct{}),
	}
}

// WithMetrics attaches a recorder.
func (h *Hub) WithMetrics(r Recorder) *Hub {
	h.metrics = r
	return h
}

// OnWindowConnected sets the listener for new window connections,
// replacing any previous listener.
func (h *Hub) OnWindowConnected(fn func(events.WindowConnected)) {
	h.mu.Lock()
	h.onConnected = fn
	h.mu.Unlock()
}

// SendMessage encodes payload as JSON and queues it for the window. Nothing
// happens when the window is not connected or its peer is not yet admitted.
func (h *Hub) SendMessage(window string, payload any) {
	data, err := sonic.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to encode message", zap.String("window", window), zap.Error(err))
		return
	}

	h.mu.RLock()
	p := h.peers[window]
	h.mu.RUnlock()

	msgType := messageType(data)
	if p == nil {
		h.logger.Debug("No peer connected, message dropped",
			zap.String("window", window),
			zap.String("type", msgType),
		)
		return
	}
	if !p.enqueue(data) {
		h.logger.Warn("Peer send buffer full or closed, message dropped",
			zap.String("window", window),
			zap.String("connector", p.id.String()),
			zap.String("type", msgType),
		)
		return
	}
	h.record("out", msgType)
}

// WindowDisconnected drops the window's peer when it is still the one
// identified by connector. A newer peer for the same window is kept.
func (h *Hub) WindowDisconnected(window, connector string) {
	h.mu.Lock()
	p := h.peers[window]
	if p == nil || connector == "" || p.id.String() != connector {
		h.mu.Unlock()
		h.logger.Debug("Ignoring disconnect of stale connector",
			zap.String("window", window),
			zap.String("connector", connector),
		)
		return
	}
	delete(h.peers, window)
	h.mu.Unlock()

	p.close()
	h.logger.Info("Window disconnected", zap.String("window", window), zap.String("connector", connector))
}

// AwaitDisconnect returns the connector currently serving window and a
// channel closed when that peer goes away. With no peer connected the
// connector is empty and the channel is already closed.
func (h *Hub) AwaitDisconnect(window string) (id.ConnectorID, <-chan struct{}) {
	h.mu.RLock()
	p := h.peers[window]
	h.mu.RUnlock()

	if p == nil {
		done := make(chan struct{})
		close(done)
		return "", done
	}
	return p.id, p.closed
}

// Windows lists the connected window names.
func (h *Hub) Windows() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.peers))
	for name := range h.peers {
		names = append(names, name)
	}
	return names
}

// Close drops every peer, admitted or not. Later connections are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := h.conns
	h.conns = make(map[*peer]struct{})
	h.peers = make(map[string]*peer)
	h.mu.Unlock()

	for p := range conns {
		p.close()
	}
}

// HandleConnection upgrades the request and serves the window named by the
// :window path parameter until it disconnects.
func (h *Hub) HandleConnection(c *gin.Context) {
	window := c.Param("window")
	if window == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "window name required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.String("window", window), zap.Error(err))
		return
	}

	p := newPeer(window, conn, h.sendBuffer)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.conns[p] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.IncWSConnections()
	}
	defer h.unregister(p)

	go p.writePump()

	h.send(p, map[string]any{
		"type":      "system",
		"message":   "connected",
		"connector": p.id.String(),
	})
	h.emitConnected(p)

	h.readPump(p)
}

// admit makes p the window's live peer, replacing any previous one. A peer
// that already went away, or was dropped by Close, is not admitted.
func (h *Hub) admit(p *peer) {
	h.mu.Lock()
	if _, live := h.conns[p]; !live {
		h.mu.Unlock()
		return
	}
	old := h.peers[p.window]
	h.peers[p.window] = p
	h.mu.Unlock()

	if old != nil && old != p {
		h.logger.Info("Replacing existing window connection",
			zap.String("window", p.window),
			zap.String("old_connector", old.id.String()),
		)
		old.close()
	}
	h.logger.Info("Window connected", zap.String("window", p.window), zap.String("connector", p.id.String()))
}

func (h *Hub) unregister(p *peer) {
	p.close()

	h.mu.Lock()
	delete(h.conns, p)
	if h.peers[p.window] == p {
		delete(h.peers, p.window)
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.DecWSConnections()
	}
}

// emitConnected hands the new peer to the listener, which admits it. With no
// listener the peer is admitted at once.
func (h *Hub) emitConnected(p *peer) {
	h.mu.RLock()
	fn := h.onConnected
	h.mu.RUnlock()

	if fn == nil {
		h.admit(p)
		return
	}

	var once sync.Once
	fn(events.WindowConnected{
		Window:      p.window,
		ConnectorID: p.id.String(),
		Admit:       func() { once.Do(func() { h.admit(p) }) },
	})
}

func (h *Hub) readPump(p *peer) {
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket read error", zap.String("window", p.window), zap.Error(err))
			}
			return
		}

		var msg inbound
		if err := sonic.Unmarshal(data, &msg); err != nil {
			h.send(p, map[string]any{"type": "error", "message": "invalid message"})
			continue
		}
		h.record("in", msg.Type)

		switch msg.Type {
		case "ping":
			h.send(p, map[string]any{"type": "pong"})
		case "closing":
			h.logger.Debug("Window acknowledged close", zap.String("window", p.window))
			return
		default:
			h.send(p, map[string]any{"type": "error", "message": "unknown message type"})
		}
	}
}

func (h *Hub) send(p *peer, payload any) {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return
	}
	if p.enqueue(data) {
		h.record("out", messageType(data))
	}
}

func (h *Hub) record(direction, msgType string) {
	if h.metrics != nil {
		h.metrics.RecordWSMessage(direction, msgType)
	}
}

// messageType extracts the "type" field of an encoded message.
func messageType(data []byte) string {
	node, err := sonic.Get(data, "type")
	if err != nil {
		return "unknown"
	}
	s, err := node.String()
	if err != nil || s == "" {
		return "unknown"
	}
	return s
}
