package peer

import (
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zot/p2p-ci/internal/protocol"
)

func startUpload(t *testing.T) (*UploadServer, string) {
	t.Helper()
	store := newStore(t)
	_, err := store.Save(7, []byte("Seven\r\nbody text"))
	require.NoError(t, err)

	u := NewUploadServer("127.0.0.1", 0, store, testOS, zerolog.Nop())
	require.NoError(t, u.Start())
	t.Cleanup(u.Stop)
	return u, u.Addr().String()
}

// roundTrip sends raw and decodes the single response
func roundTrip(t *testing.T, addr, raw string) *protocol.Message {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	_, err = conn.Write([]byte(raw))
	require.NoError(t, err)
	resp, err := protocol.ReadContentLength(conn)
	require.NoError(t, err)
	msg, err := protocol.Decode(resp)
	require.NoError(t, err)
	return msg
}

func statusOf(t *testing.T, msg *protocol.Message) int {
	t.Helper()
	_, code, _, err := protocol.ParseStatusLine(msg.StartLine)
	require.NoError(t, err)
	return code
}

// TestUploadServesFile tests the 200 response headers and body
func TestUploadServesFile(t *testing.T) {
	_, addr := startUpload(t)

	msg := roundTrip(t, addr, "GET RFC 7 P2P-CI/1.0\r\nHost: somehost\r\nOS: other\r\n\r\n")
	assert.Equal(t, protocol.StatusOK, statusOf(t, msg))
	assert.Equal(t, "Seven\r\nbody text", msg.Body)

	var keys []string
	for _, h := range msg.Headers {
		keys = append(keys, h.Key)
	}
	assert.Equal(t, []string{"Date", "OS", "Last-Modified", "Content-Length", "Content-Type"}, keys)
	assert.Equal(t, "16", msg.Headers.Value("Content-Length"))
	assert.Equal(t, "text/plain", msg.Headers.Value("Content-Type"))
	assert.Equal(t, testOS, msg.Headers.Value("OS"))

	_, err := time.Parse(http.TimeFormat, msg.Headers.Value("Date"))
	assert.NoError(t, err)
	_, err = time.Parse(http.TimeFormat, msg.Headers.Value("Last-Modified"))
	assert.NoError(t, err)
}

func TestUploadErrors(t *testing.T) {
	_, addr := startUpload(t)

	cases := []struct {
		name string
		raw  string
		want int
	}{
		{"not found", "GET RFC 8 P2P-CI/1.0\r\nHost: h\r\nOS: o\r\n\r\n", 404},
		{"wrong version", "GET RFC 7 P2P-CI/2.0\r\nHost: h\r\nOS: o\r\n\r\n", 505},
		{"wrong method", "PUT RFC 7 P2P-CI/1.0\r\nHost: h\r\nOS: o\r\n\r\n", 400},
		{"missing OS", "GET RFC 7 P2P-CI/1.0\r\nHost: h\r\n\r\n", 400},
		{"missing Host", "GET RFC 7 P2P-CI/1.0\r\nOS: o\r\n\r\n", 400},
		{"bad resource", "GET DOC 7 P2P-CI/1.0\r\nHost: h\r\nOS: o\r\n\r\n", 400},
		{"non-numeric number", "GET RFC seven P2P-CI/1.0\r\nHost: h\r\nOS: o\r\n\r\n", 400},
		{"bad header", "GET RFC 7 P2P-CI/1.0\r\nHost h\r\n\r\n", 400},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := roundTrip(t, addr, tc.raw)
			assert.Equal(t, tc.want, statusOf(t, msg))
			assert.Equal(t, "0", msg.Headers.Value("Content-Length"))
			assert.Equal(t, "text/plain", msg.Headers.Value("Content-Type"))
			assert.Empty(t, msg.Body)
		})
	}
}

func TestUploadStartTwice(t *testing.T) {
	u, _ := startUpload(t)
	assert.Error(t, u.Start())

	u.Stop()
	assert.Nil(t, u.Addr())
	u.Stop()
}
