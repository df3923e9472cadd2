// CRC: crc-Monitor.md, Spec: main.md
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zot/p2p-ci/internal/config"
	"github.com/zot/p2p-ci/internal/index"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // read-only feed
	},
}

// Monitor serves a read-only HTTP view of the index and streams index
// events to websocket subscribers.
// CRC: crc-Monitor.md
type Monitor struct {
	config     config.MonitorConfig
	host       string
	store      *index.Store
	logger     zerolog.Logger
	httpServer *http.Server
	port       int
	addr       net.Addr
	clients    map[*WSConnection]bool
	mu         sync.RWMutex
}

// NewMonitor creates a monitor bound to host and subscribes it to store events
func NewMonitor(cfg config.MonitorConfig, host string, store *index.Store, logger zerolog.Logger) *Monitor {
	m := &Monitor{
		config:  cfg,
		host:    host,
		store:   store,
		logger:  logger.With().Str("component", "monitor").Logger(),
		clients: make(map[*WSConnection]bool),
	}
	store.SetListener(m.broadcast)
	return m
}

// Router builds the monitor's HTTP routes
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ping", m.handlePing).Methods(http.MethodGet)
	r.HandleFunc("/entries", m.handleEntries).Methods(http.MethodGet)
	r.HandleFunc("/entries/{number:[0-9]+}", m.handleLookup).Methods(http.MethodGet)
	r.HandleFunc("/stats", m.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/ws", m.handleWebSocket)
	return r
}

// Start listens on the first free port in the configured range
// Sequence: seq-server-startup.md
func (m *Monitor) Start() error {
	startPort := m.config.Port
	var listener net.Listener
	var err error
	for attempt := 0; attempt < m.config.PortRange; attempt++ {
		port := startPort + attempt
		listener, err = net.Listen("tcp", net.JoinHostPort(m.host, strconv.Itoa(port)))
		if err == nil {
			m.addr = listener.Addr()
			m.port = m.addr.(*net.TCPAddr).Port
			break
		}
	}
	if listener == nil {
		return fmt.Errorf("failed to find available port starting from %d", startPort)
	}

	m.httpServer = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := m.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			m.logger.Error().Err(err).Msg("monitor server error")
		}
	}()

	m.logger.Info().Msgf("monitor started on http://localhost:%d", m.port)
	return nil
}

// Stop closes all websocket subscribers and shuts down the HTTP server
func (m *Monitor) Stop() error {
	m.mu.Lock()
	clients := make([]*WSConnection, 0, len(m.clients))
	for c := range m.clients {
		clients = append(clients, c)
	}
	m.clients = make(map[*WSConnection]bool)
	m.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}

	if m.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.httpServer.Shutdown(ctx)
}

// Port returns the port the monitor is listening on
func (m *Monitor) Port() int {
	return m.port
}

// Addr returns the bound address, or nil before Start
func (m *Monitor) Addr() net.Addr {
	return m.addr
}

// ClientCount returns the number of websocket subscribers
func (m *Monitor) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *Monitor) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (m *Monitor) handleEntries(w http.ResponseWriter, r *http.Request) {
	entries := m.store.ListAll()
	if entries == nil {
		entries = []index.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (m *Monitor) handleLookup(w http.ResponseWriter, r *http.Request) {
	var n int
	if _, err := fmt.Sscan(mux.Vars(r)["number"], &n); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid number"})
		return
	}
	entries := m.store.Lookup(n)
	if len(entries) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (m *Monitor) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, m.store.Stats())
}

func (m *Monitor) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	ws := NewWSConnection(conn, m.config.SendBuffer, m)
	m.mu.Lock()
	m.clients[ws] = true
	m.mu.Unlock()
	ws.Start()

	m.logger.Debug().Str("remote", r.RemoteAddr).Msg("monitor subscriber connected")
}

// broadcast fans an index event out to subscribers without blocking;
// a subscriber whose buffer is full is dropped
func (m *Monitor) broadcast(e index.Event) {
	m.mu.RLock()
	clients := make([]*WSConnection, 0, len(m.clients))
	for c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.RUnlock()

	for _, c := range clients {
		if err := c.SendEvent(e); err != nil {
			m.logger.Debug().Err(err).Msg("dropping monitor subscriber")
			c.Close()
		}
	}
}

func (m *Monitor) removeClient(ws *WSConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, ws)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
