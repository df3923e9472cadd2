package peer

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/zot/p2p-ci/internal/config"
	"github.com/zot/p2p-ci/internal/index"
	"github.com/zot/p2p-ci/internal/server"
	"github.com/zot/p2p-ci/internal/storage"
)

const testOS = "testos-1.0"

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func startIndexServer(t *testing.T) (*server.Server, *index.Store) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.Timeouts.AcceptPoll = config.Duration{Duration: 50 * time.Millisecond}

	store := index.New()
	s := server.New(context.Background(), cfg, store, zerolog.Nop())
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Stop() })
	return s, store
}

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.New(filepath.Join(t.TempDir(), "rfc_store"))
	require.NoError(t, err)
	return s
}

// newTestNode builds a peer on a free loopback port talking to the index server at serverPort
func newTestNode(t *testing.T, serverPort int, store *storage.Store) *Node {
	t.Helper()
	port := freePort(t)
	logger := zerolog.Nop()

	dir := NewDirectoryClient("127.0.0.1", serverPort, "127.0.0.1", port, logger)
	upload := NewUploadServer("127.0.0.1", port, store, testOS, logger)
	fetch := NewFetchClient(testOS, logger)
	fetch.Timeout = 2 * time.Second

	n := NewNode(NodeConfig{Host: "127.0.0.1", Port: port}, dir, upload, store, fetch, logger)
	t.Cleanup(func() { n.Shutdown() })
	return n
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
