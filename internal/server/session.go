// CRC: crc-SessionHandler.md, Spec: main.md
package server

import (
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zot/p2p-ci/internal/index"
	"github.com/zot/p2p-ci/internal/protocol"
)

// session serves one peer connection until the peer closes it.
// The peer seen most recently on the connection is deregistered at the end.
// CRC: crc-SessionHandler.md
type session struct {
	id     string
	conn   net.Conn
	server *Server
	store  *index.Store
	logger zerolog.Logger
	peer   *index.PeerKey
}

func newSession(id string, conn net.Conn, s *Server) *session {
	return &session{
		id:     id,
		conn:   conn,
		server: s,
		store:  s.store,
		logger: s.logger.With().Str("session", id).Str("remote", conn.RemoteAddr().String()).Logger(),
	}
}

// run loops AWAIT_REQUEST -> DISPATCH until the connection closes
// Sequence: seq-index-session.md
func (ss *session) run() {
	defer ss.close()
	defer func() {
		if r := recover(); r != nil {
			ss.logger.Error().Interface("panic", r).Msg("session aborted")
		}
	}()

	ss.logger.Debug().Msg("connection accepted")
	reader := protocol.NewHeadReader(ss.conn)
	poll := ss.server.config.Server.Timeouts.Read.Duration
	for {
		if poll > 0 {
			ss.conn.SetReadDeadline(time.Now().Add(poll))
		}

		raw, err := reader.Next()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				// idle peers stay registered; the deadline only lets Stop be noticed
				if ss.server.shutdown.Load() {
					return
				}
				continue
			}
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			case errors.Is(err, io.ErrUnexpectedEOF):
				ss.logger.Debug().Msg("connection closed mid-request")
			default:
				ss.logger.Debug().Err(err).Msg("read failed")
			}
			return
		}

		ss.logger.Debug().Msgf("request:\n%s", protocol.Printable(raw))
		code, body := ss.handle(raw)
		if err := ss.write(code, body); err != nil {
			ss.logger.Debug().Err(err).Msg("write failed")
			return
		}
	}
}

func (ss *session) close() {
	ss.conn.Close()
	if ss.peer == nil {
		return
	}
	purged := ss.store.UnregisterPeer(ss.peer.Host, ss.peer.Port)
	ss.logger.Info().
		Str("peer", net.JoinHostPort(ss.peer.Host, strconv.Itoa(ss.peer.Port))).
		Ints("purged", purged).
		Msg("peer disconnected")
}

// handle decodes and dispatches one request, returning the status and body
func (ss *session) handle(raw string) (int, string) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		ss.logger.Warn().Err(err).Msg("bad request")
		return protocol.StatusBadRequest, ""
	}
	method, resource, version, err := protocol.ParseRequestLine(msg.StartLine)
	if err != nil {
		ss.logger.Warn().Err(err).Msg("bad request")
		return protocol.StatusBadRequest, ""
	}
	if version != protocol.Version {
		return protocol.StatusVersionNotSupported, ""
	}

	host, hasHost := msg.Headers.Get("Host")
	portText, hasPort := msg.Headers.Get("Port")
	if !hasHost || host == "" || !hasPort {
		return protocol.StatusBadRequest, ""
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		return protocol.StatusBadRequest, ""
	}

	ss.store.RegisterPeer(host, port)
	ss.peer = &index.PeerKey{Host: host, Port: port}

	switch method {
	case protocol.MethodAdd:
		return ss.handleAdd(resource, msg.Headers, host, port)
	case protocol.MethodLookup:
		return ss.handleLookup(resource)
	case protocol.MethodList:
		return ss.handleList(resource)
	default:
		return protocol.StatusBadRequest, ""
	}
}

func (ss *session) handleAdd(resource string, headers protocol.Headers, host string, port int) (int, string) {
	n, err := protocol.ParseRFCResource(resource)
	if err != nil {
		return protocol.StatusBadRequest, ""
	}
	title, ok := headers.Get("Title")
	if !ok || title == "" {
		return protocol.StatusBadRequest, ""
	}

	ss.store.Add(n, title, host, port)
	ss.logger.Info().Int("rfc", n).Str("title", title).Str("host", host).Int("port", port).Msg("added")
	return protocol.StatusOK, protocol.FormatEntry(n, title, host, port)
}

func (ss *session) handleLookup(resource string) (int, string) {
	n, err := protocol.ParseRFCResource(resource)
	if err != nil {
		return protocol.StatusBadRequest, ""
	}
	entries := ss.store.Lookup(n)
	if len(entries) == 0 {
		return protocol.StatusNotFound, ""
	}
	return protocol.StatusOK, formatEntries(entries)
}

func (ss *session) handleList(resource string) (int, string) {
	if resource != "ALL" {
		return protocol.StatusBadRequest, ""
	}
	entries := ss.store.ListAll()
	if len(entries) == 0 {
		return protocol.StatusNotFound, ""
	}
	return protocol.StatusOK, formatEntries(entries)
}

func formatEntries(entries []index.Entry) string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = protocol.FormatEntry(e.Number, e.Title, e.Host, e.Port)
	}
	return strings.Join(lines, protocol.CRLF)
}

// FormatResponse renders an index server response: a bare status line, the
// body after an empty line when present, and a trailing empty line.
func FormatResponse(code int, body string) []byte {
	var b strings.Builder
	b.WriteString(protocol.Version + " " + strconv.Itoa(code) + " " + protocol.Reason(code))
	if body != "" {
		b.WriteString(protocol.Terminator)
		b.WriteString(body)
	}
	b.WriteString(protocol.Terminator)
	return []byte(b.String())
}

func (ss *session) write(code int, body string) error {
	raw := FormatResponse(code, body)
	ss.logger.Debug().Msgf("response:\n%s", protocol.Printable(string(raw)))
	_, err := ss.conn.Write(raw)
	return err
}
