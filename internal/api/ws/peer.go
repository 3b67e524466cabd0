package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/GriffinCanCode/SessionHost/internal/shared/id"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// peer is one connected window. Only writePump writes to conn.
type peer struct {
	id     id.ConnectorID
	window string
	conn   *websocket.Conn
	send   chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newPeer(window string, conn *websocket.Conn, buffer int) *peer {
	return &peer{
		id:     id.NewConnectorID(),
		window: window,
		conn:   conn,
		send:   make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
}

// enqueue queues data without blocking. It reports false when the peer is
// closed or its buffer is full.
func (p *peer) enqueue(data []byte) bool {
	select {
	case <-p.closed:
		return false
	default:
	}
	select {
	case p.send <- data:
		return true
	default:
		return false
	}
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		_ = p.conn.Close()
	})
}

func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.close()
	}()

	for {
		select {
		case <-p.closed:
			return
		case data := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
