// CRC: crc-Monitor.md, Spec: main.md
package server

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/zot/p2p-ci/internal/index"
)

// WSConnection is one monitor subscriber
// CRC: crc-Monitor.md
type WSConnection struct {
	conn    *websocket.Conn
	monitor *Monitor
	sendCh  chan index.Event
	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
}

// NewWSConnection creates a subscriber with a bounded send buffer
func NewWSConnection(conn *websocket.Conn, buffer int, m *Monitor) *WSConnection {
	return &WSConnection{
		conn:    conn,
		monitor: m,
		sendCh:  make(chan index.Event, buffer),
		closeCh: make(chan struct{}),
	}
}

// Start begins processing the WebSocket connection
func (ws *WSConnection) Start() {
	go ws.readPump()
	go ws.writePump()
}

// SendEvent queues an event for the subscriber
func (ws *WSConnection) SendEvent(e index.Event) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.closed {
		return fmt.Errorf("connection closed")
	}

	select {
	case ws.sendCh <- e:
		return nil
	default:
		return fmt.Errorf("send buffer full")
	}
}

// Close closes the WebSocket connection
func (ws *WSConnection) Close() {
	ws.mu.Lock()
	if ws.closed {
		ws.mu.Unlock()
		return
	}
	ws.closed = true
	ws.mu.Unlock()

	if ws.monitor != nil {
		ws.monitor.removeClient(ws)
	}
	close(ws.closeCh)
	ws.conn.Close()
}

// readPump discards client frames and notices disconnects
func (ws *WSConnection) readPump() {
	defer ws.Close()

	for {
		if _, _, err := ws.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) && ws.monitor != nil {
				ws.monitor.logger.Debug().Err(err).Msg("websocket read error")
			}
			return
		}
	}
}

// writePump writes queued events to the WebSocket
func (ws *WSConnection) writePump() {
	defer ws.Close()

	for {
		select {
		case e := <-ws.sendCh:
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			if err := ws.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ws.closeCh:
			return
		}
	}
}
