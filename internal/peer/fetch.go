// CRC: crc-FetchClient.md, Spec: main.md
package peer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/zot/p2p-ci/internal/protocol"
)

// FetchResult is a successful GET
type FetchResult struct {
	Raw     string
	Body    string
	Headers protocol.Headers
}

// FetchClient downloads files from other peers, one connection per request
// CRC: crc-FetchClient.md
type FetchClient struct {
	Timeout time.Duration
	OS      string
	logger  zerolog.Logger
}

// NewFetchClient creates a client sending osName in the OS header
func NewFetchClient(osName string, logger zerolog.Logger) *FetchClient {
	return &FetchClient{
		Timeout: 5 * time.Second,
		OS:      osName,
		logger:  logger.With().Str("component", "fetch").Logger(),
	}
}

// Get requests RFC n from host:port
// Sequence: seq-download.md
func (f *FetchClient) Get(ctx context.Context, n int, host string, port int) (*FetchResult, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &protocol.ConnectivityError{Addr: addr, Err: err}
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	payload := protocol.BuildRequest(protocol.MethodGet, protocol.RFCResource(n), protocol.Headers{
		{Key: "Host", Value: host},
		{Key: "OS", Value: f.OS},
	}, "")
	f.logger.Info().Str("peer", addr).Int("rfc", n).Msg("GET request")
	if _, err := conn.Write(payload); err != nil {
		return nil, &protocol.ConnectivityError{Addr: addr, Err: err}
	}

	raw, err := protocol.ReadContentLength(conn)
	if err != nil {
		// a timeout after the head still yields a checkable response
		var ne net.Error
		if !(errors.As(err, &ne) && ne.Timeout()) || raw == "" {
			return nil, &protocol.ConnectivityError{Addr: addr, Err: err}
		}
	}
	if raw == "" {
		return nil, &protocol.ConnectivityError{Addr: addr, Err: errors.New("connection closed without response")}
	}

	msg, err := protocol.Decode(raw)
	if err != nil {
		return nil, err
	}
	_, code, reason, err := protocol.ParseStatusLine(msg.StartLine)
	if err != nil {
		return nil, err
	}
	f.logger.Info().Str("peer", addr).Str("status", msg.StartLine).Msg("GET response")

	if code != protocol.StatusOK {
		return nil, &protocol.ApplicationError{Code: code, Reason: reason, Op: "GET " + protocol.RFCResource(n)}
	}
	if expected, ok := msg.Headers.Get("Content-Length"); ok && expected != "" {
		want, err := strconv.Atoi(expected)
		if err != nil {
			return nil, &protocol.ProtocolError{Msg: "invalid Content-Length " + strconv.Quote(expected)}
		}
		if len(msg.Body) != want {
			return nil, &protocol.ProtocolError{Msg: fmt.Sprintf("content length mismatch: got %d bytes, want %d", len(msg.Body), want)}
		}
	}

	return &FetchResult{Raw: raw, Body: msg.Body, Headers: msg.Headers}, nil
}
