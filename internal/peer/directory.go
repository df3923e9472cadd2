// CRC: crc-DirectoryClient.md, Spec: main.md
package peer

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zot/p2p-ci/internal/protocol"
)

// Response is a parsed index server response
type Response struct {
	StatusCode int
	Reason     string
	Headers    protocol.Headers
	Body       string
	Raw        string
	StatusLine string
}

// Locations parses the entry lines in the body
func (r *Response) Locations() []Location {
	var result []Location
	for _, line := range protocol.ParseEntryLines(r.Body) {
		result = append(result, Location(line))
	}
	return result
}

// ParseResponse decodes a raw index server response
func ParseResponse(raw string) (*Response, error) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		return nil, err
	}
	_, code, reason, err := protocol.ParseStatusLine(msg.StartLine)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: code,
		Reason:     reason,
		Headers:    msg.Headers,
		Body:       strings.TrimRight(msg.Body, protocol.CRLF),
		Raw:        raw,
		StatusLine: msg.StartLine,
	}, nil
}

// Directory is the peer's view of the index: the central server or an offline file
type Directory interface {
	Add(ctx context.Context, n int, title string) (*Response, error)
	Lookup(ctx context.Context, n int, title string) (*Response, error)
	List(ctx context.Context) (*Response, error)
	Offline() bool
	Close() error
}

// DirectoryClient talks to the index server over one persistent connection.
// A failed connection is discarded and reopened on the next request.
// CRC: crc-DirectoryClient.md
type DirectoryClient struct {
	serverAddr  string
	peerHost    string
	peerPort    int
	DialTimeout time.Duration
	ReadTimeout time.Duration
	logger      zerolog.Logger
	mu          sync.Mutex
	conn        net.Conn
}

// NewDirectoryClient creates a client advertising peerHost:peerPort
func NewDirectoryClient(serverHost string, serverPort int, peerHost string, peerPort int, logger zerolog.Logger) *DirectoryClient {
	return &DirectoryClient{
		serverAddr:  net.JoinHostPort(serverHost, strconv.Itoa(serverPort)),
		peerHost:    peerHost,
		peerPort:    peerPort,
		DialTimeout: 5 * time.Second,
		ReadTimeout: 5 * time.Second,
		logger:      logger.With().Str("component", "directory").Logger(),
	}
}

func (c *DirectoryClient) peerHeaders() protocol.Headers {
	return protocol.Headers{
		{Key: "Host", Value: c.peerHost},
		{Key: "Port", Value: strconv.Itoa(c.peerPort)},
	}
}

// Add advertises RFC n under title
func (c *DirectoryClient) Add(ctx context.Context, n int, title string) (*Response, error) {
	headers := append(c.peerHeaders(), protocol.Header{Key: "Title", Value: title})
	return c.send(ctx, protocol.MethodAdd, protocol.RFCResource(n), headers)
}

// Lookup asks which peers hold RFC n; title defaults to "RFC <n>"
func (c *DirectoryClient) Lookup(ctx context.Context, n int, title string) (*Response, error) {
	if title == "" {
		title = protocol.RFCResource(n)
	}
	headers := append(c.peerHeaders(), protocol.Header{Key: "Title", Value: title})
	return c.send(ctx, protocol.MethodLookup, protocol.RFCResource(n), headers)
}

// List requests the whole index
func (c *DirectoryClient) List(ctx context.Context) (*Response, error) {
	return c.send(ctx, protocol.MethodList, "ALL", c.peerHeaders())
}

// Offline is false for the network client
func (c *DirectoryClient) Offline() bool {
	return false
}

// Close drops the connection; the server deregisters this peer
func (c *DirectoryClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropLocked()
}

func (c *DirectoryClient) dropLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *DirectoryClient) send(ctx context.Context, method, resource string, headers protocol.Headers) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		d := net.Dialer{Timeout: c.DialTimeout}
		conn, err := d.DialContext(ctx, "tcp", c.serverAddr)
		if err != nil {
			return nil, &protocol.ConnectivityError{Addr: c.serverAddr, Err: err}
		}
		c.conn = conn
		c.logger.Debug().Str("server", c.serverAddr).Msg("connected to index server")
	}

	deadline := time.Now().Add(c.ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetDeadline(deadline)

	payload := protocol.BuildRequest(method, resource, headers, "")
	c.logger.Debug().Msgf("request to %s:\n%s", c.serverAddr, protocol.Printable(string(payload)))
	if _, err := c.conn.Write(payload); err != nil {
		c.dropLocked()
		return nil, &protocol.ConnectivityError{Addr: c.serverAddr, Err: err}
	}

	raw, err := protocol.ReadTerminated(c.conn, c.serverAddr)
	if err != nil {
		c.dropLocked()
		return nil, err
	}
	c.logger.Debug().Msgf("response from %s:\n%s", c.serverAddr, protocol.Printable(raw))

	resp, err := ParseResponse(raw)
	if err != nil {
		c.dropLocked()
		return nil, err
	}
	return resp, nil
}
