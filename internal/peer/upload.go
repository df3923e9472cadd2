// CRC: crc-UploadServer.md, Spec: main.md
package peer

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/zot/p2p-ci/internal/protocol"
	"github.com/zot/p2p-ci/internal/storage"
)

const acceptPoll = time.Second

// UploadServer answers GET requests from other peers out of the local store.
// Each connection carries exactly one request.
// CRC: crc-UploadServer.md
type UploadServer struct {
	host        string
	port        int
	store       *storage.Store
	osName      string
	ReadTimeout time.Duration
	logger      zerolog.Logger
	mu          sync.Mutex
	listener    *net.TCPListener
	shutdown    atomic.Bool
	wg          sync.WaitGroup
	loopDone    chan struct{}
}

// NewUploadServer creates an upload server bound to host:port once started
func NewUploadServer(host string, port int, store *storage.Store, osName string, logger zerolog.Logger) *UploadServer {
	return &UploadServer{
		host:        host,
		port:        port,
		store:       store,
		osName:      osName,
		ReadTimeout: 5 * time.Second,
		logger:      logger.With().Str("component", "upload").Logger(),
	}
}

// Start binds the socket and starts accepting
func (u *UploadServer) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.listener != nil {
		return errors.New("upload server already running")
	}

	addr := net.JoinHostPort(u.host, strconv.Itoa(u.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	u.listener = ln.(*net.TCPListener)
	u.shutdown.Store(false)
	u.loopDone = make(chan struct{})

	go u.acceptLoop(u.listener, u.loopDone)

	u.logger.Info().Str("addr", u.listener.Addr().String()).Msg("upload server listening")
	return nil
}

// Stop closes the listener and waits for in-flight transfers
func (u *UploadServer) Stop() {
	u.mu.Lock()
	ln, done := u.listener, u.loopDone
	u.listener = nil
	u.mu.Unlock()

	if ln == nil {
		return
	}
	u.shutdown.Store(true)
	ln.Close()
	<-done
	u.wg.Wait()
	u.logger.Info().Msg("upload server stopped")
}

// Addr returns the bound address, or nil when stopped
func (u *UploadServer) Addr() net.Addr {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.listener == nil {
		return nil
	}
	return u.listener.Addr()
}

func (u *UploadServer) acceptLoop(ln *net.TCPListener, done chan struct{}) {
	defer close(done)

	for !u.shutdown.Load() {
		ln.SetDeadline(time.Now().Add(acceptPoll))
		conn, err := ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return
		}

		u.wg.Add(1)
		go func() {
			defer u.wg.Done()
			u.handle(conn)
		}()
	}
}

func (u *UploadServer) handle(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	log := u.logger.With().Str("remote", remote).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("unhandled error serving request")
			u.sendError(conn, protocol.StatusInternalServerError)
		}
	}()

	conn.SetReadDeadline(time.Now().Add(u.ReadTimeout))
	raw, err := protocol.ReadHead(conn)
	if raw == "" {
		if err != nil && !errors.Is(err, io.EOF) {
			log.Debug().Err(err).Msg("read failed")
		}
		return
	}
	log.Info().Msgf("P2P request:\n%s", protocol.Printable(raw))

	code, err := u.serve(conn, raw)
	if err != nil {
		var perr *protocol.ProtocolError
		switch {
		case errors.As(err, &perr):
			log.Warn().Err(err).Msg("malformed P2P request")
		case code == protocol.StatusNotFound:
			log.Warn().Err(err).Msg("requested RFC not found")
		default:
			log.Error().Err(err).Msg("unhandled error serving request")
		}
		u.sendError(conn, code)
	}
}

// serve validates a GET and writes the file; on failure it returns the status to send
func (u *UploadServer) serve(conn net.Conn, raw string) (int, error) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		return protocol.StatusBadRequest, err
	}
	method, resource, version, err := protocol.ParseRequestLine(msg.StartLine)
	if err != nil {
		return protocol.StatusBadRequest, err
	}
	if version != protocol.Version {
		return protocol.StatusVersionNotSupported, fmt.Errorf("unsupported version %q", version)
	}
	if method != protocol.MethodGet {
		return protocol.StatusBadRequest, &protocol.ProtocolError{Msg: "unsupported method " + method}
	}
	if _, ok := msg.Headers.Get("Host"); !ok {
		return protocol.StatusBadRequest, &protocol.ProtocolError{Msg: "missing Host header"}
	}
	if _, ok := msg.Headers.Get("OS"); !ok {
		return protocol.StatusBadRequest, &protocol.ProtocolError{Msg: "missing OS header"}
	}
	n, err := protocol.ParseRFCResource(resource)
	if err != nil {
		return protocol.StatusBadRequest, err
	}

	content, err := u.store.Read(n)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return protocol.StatusNotFound, fmt.Errorf("RFC %d: %w", n, err)
		}
		return protocol.StatusInternalServerError, err
	}
	info, err := u.store.Stat(n)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return protocol.StatusNotFound, fmt.Errorf("RFC %d: %w", n, err)
		}
		return protocol.StatusInternalServerError, err
	}

	headers := protocol.Headers{
		{Key: "Date", Value: httpDate(time.Now())},
		{Key: "OS", Value: u.osName},
		{Key: "Last-Modified", Value: httpDate(info.ModTime())},
		{Key: "Content-Length", Value: strconv.Itoa(len(content))},
		{Key: "Content-Type", Value: "text/plain"},
	}
	payload := protocol.BuildStatus(protocol.Version, protocol.StatusOK, protocol.Reason(protocol.StatusOK), headers, string(content))
	u.logger.Debug().Msgf("P2P response:\n%s", protocol.Printable(string(payload)))
	if _, err := conn.Write(payload); err != nil {
		u.logger.Debug().Err(err).Msg("write failed")
	}
	return protocol.StatusOK, nil
}

func (u *UploadServer) sendError(conn net.Conn, code int) {
	headers := protocol.Headers{
		{Key: "Date", Value: httpDate(time.Now())},
		{Key: "OS", Value: u.osName},
		{Key: "Content-Length", Value: "0"},
		{Key: "Content-Type", Value: "text/plain"},
	}
	payload := protocol.BuildStatus(protocol.Version, code, protocol.Reason(code), headers, "")
	u.logger.Debug().Msgf("P2P error response:\n%s", protocol.Printable(string(payload)))
	conn.Write(payload)
}

func httpDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}
