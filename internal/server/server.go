// CRC: crc-Server.md, Spec: main.md
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zot/p2p-ci/internal/config"
	"github.com/zot/p2p-ci/internal/index"
)

// Server is the central index server: it accepts peer connections and runs
// one session per connection against the shared index store.
// CRC: crc-Server.md
type Server struct {
	ctx      context.Context
	cancel   context.CancelFunc
	config   *config.Config
	store    *index.Store
	logger   zerolog.Logger
	listener *net.TCPListener
	monitor  *Monitor
	sessions map[*session]bool
	mu       sync.RWMutex
	shutdown atomic.Bool
	wg       sync.WaitGroup
	loopDone chan struct{}
}

// New creates an index server over store
// CRC: crc-Server.md
func New(ctx context.Context, cfg *config.Config, store *index.Store, logger zerolog.Logger) *Server {
	ctx, cancel := context.WithCancel(ctx)
	s := &Server{
		ctx:      ctx,
		cancel:   cancel,
		config:   cfg,
		store:    store,
		logger:   logger.With().Str("component", "index-server").Logger(),
		sessions: make(map[*session]bool),
		loopDone: make(chan struct{}),
	}
	if cfg.Monitor.Enabled {
		s.monitor = NewMonitor(cfg.Monitor, cfg.Server.Host, store, logger)
	}
	return s
}

// Start binds the listening socket and starts the accept loop
// CRC: crc-Server.md
// Sequence: seq-server-startup.md
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Server.Host, fmt.Sprint(s.config.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln.(*net.TCPListener)

	if s.monitor != nil {
		if err := s.monitor.Start(); err != nil {
			s.listener.Close()
			return fmt.Errorf("failed to start monitor: %w", err)
		}
	}

	go s.acceptLoop()

	s.logger.Info().Str("addr", s.listener.Addr().String()).Msg("index server listening")
	return nil
}

// acceptLoop polls Accept with a deadline so the shutdown flag is observed
func (s *Server) acceptLoop() {
	defer close(s.loopDone)

	poll := s.config.Server.Timeouts.AcceptPoll.Duration
	for !s.shutdown.Load() {
		if err := s.listener.SetDeadline(time.Now().Add(poll)); err != nil {
			if !s.shutdown.Load() {
				s.logger.Error().Err(err).Msg("failed to set accept deadline")
			}
			return
		}

		conn, err := s.listener.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) || s.shutdown.Load() {
				return
			}
			s.logger.Error().Err(err).Msg("accept failed")
			continue
		}

		sess := newSession(uuid.NewString(), conn, s)
		s.mu.Lock()
		s.sessions[sess] = true
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.removeSession(sess)
			sess.run()
		}()
	}
}

func (s *Server) removeSession(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess)
}

// Stop closes the listener and all live sessions, then waits for them to finish
// CRC: crc-Server.md
func (s *Server) Stop() error {
	if s.shutdown.Swap(true) {
		return nil
	}
	s.cancel()

	var err error
	if s.listener != nil {
		err = s.listener.Close()
		<-s.loopDone
	}

	// close outside the lock; sessions remove themselves on exit
	s.mu.RLock()
	live := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		live = append(live, sess)
	}
	s.mu.RUnlock()
	for _, sess := range live {
		sess.conn.Close()
	}
	s.wg.Wait()

	if s.monitor != nil {
		if merr := s.monitor.Stop(); merr != nil && err == nil {
			err = merr
		}
	}

	s.logger.Info().Msg("index server stopped")
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Addr returns the bound address, or nil before Start
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound port
func (s *Server) Port() int {
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Monitor returns the HTTP monitor, or nil when disabled
func (s *Server) Monitor() *Monitor {
	return s.monitor
}

// Done returns a channel that is closed when the server is stopped
func (s *Server) Done() <-chan struct{} {
	return s.ctx.Done()
}

// SessionCount returns the number of open peer connections
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
