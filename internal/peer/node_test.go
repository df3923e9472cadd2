package peer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zot/p2p-ci/internal/protocol"
)

// TestEndToEnd tests A advertising, B looking up and downloading, and A leaving
func TestEndToEnd(t *testing.T) {
	s, index := startIndexServer(t)
	ctx := context.Background()

	storeA := newStore(t)
	storeA.Save(1, []byte("First Document\nbody of one"))
	a := newTestNode(t, s.Port(), storeA)
	require.NoError(t, a.Start(ctx))

	b := newTestNode(t, s.Port(), newStore(t))
	require.NoError(t, b.Start(ctx))

	_, locations, err := b.Lookup(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, locations, 1)
	assert.Equal(t, Location{Number: 1, Title: "First Document", Host: "127.0.0.1", Port: a.config.Port}, locations[0])

	result, err := b.DownloadFromPeers(ctx, 1, locations)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, result.AddResponse.StatusCode)
	assert.Contains(t, result.PeerRaw, "Content-Length: 26")

	data, err := b.Store().Read(1)
	require.NoError(t, err)
	assert.Equal(t, "First Document\nbody of one", string(data))
	assert.Len(t, index.Lookup(1), 2)

	require.NoError(t, a.Shutdown())
	waitFor(t, func() bool { return len(index.Lookup(1)) == 1 })

	_, locations, err = b.Lookup(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, locations, 1)
	assert.Equal(t, b.config.Port, locations[0].Port)

	require.NoError(t, b.Shutdown())
	waitFor(t, func() bool { return len(index.ListAll()) == 0 })
}

func TestLookupMissing(t *testing.T) {
	s, _ := startIndexServer(t)
	n := newTestNode(t, s.Port(), newStore(t))
	require.NoError(t, n.Start(context.Background()))

	resp, locations, err := n.Lookup(context.Background(), 99, "")
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusNotFound, resp.StatusCode)
	assert.Empty(t, locations)

	resp, err = n.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusNotFound, resp.StatusCode)
}

// TestDownloadFallsBack tests that a dead candidate is skipped
func TestDownloadFallsBack(t *testing.T) {
	s, _ := startIndexServer(t)
	ctx := context.Background()

	storeA := newStore(t)
	storeA.Save(5, []byte("Five"))
	a := newTestNode(t, s.Port(), storeA)
	require.NoError(t, a.Start(ctx))

	b := newTestNode(t, s.Port(), newStore(t))
	require.NoError(t, b.Start(ctx))

	candidates := []Location{
		{Number: 5, Title: "Five", Host: "127.0.0.1", Port: freePort(t)},
		{Number: 5, Title: "Five", Host: "127.0.0.1", Port: a.config.Port},
	}
	result, err := b.DownloadFromPeers(ctx, 5, candidates)
	require.NoError(t, err)
	assert.Equal(t, b.Store().PathFor(5), result.Path)

	_, err = b.DownloadFromPeers(ctx, 6, candidates)
	assert.Error(t, err)
}

func TestDownloadFromSelf(t *testing.T) {
	s, _ := startIndexServer(t)
	store := newStore(t)
	store.Save(3, []byte("Three"))
	n := newTestNode(t, s.Port(), store)
	self := Location{Number: 3, Host: "127.0.0.1", Port: n.config.Port}

	result, err := n.DownloadFromPeers(context.Background(), 3, []Location{self})
	require.NoError(t, err)
	assert.Nil(t, result.AddResponse)
	assert.Empty(t, result.PeerRaw)

	self.Number = 4
	_, err = n.DownloadFromPeers(context.Background(), 4, []Location{self})
	assert.Error(t, err, "self without a local copy is skipped")
}

// TestLookupRefreshesLocalCopy tests that a stale local copy is overwritten from another peer
func TestLookupRefreshesLocalCopy(t *testing.T) {
	s, _ := startIndexServer(t)
	ctx := context.Background()

	storeA := newStore(t)
	storeA.Save(8, []byte("Eight v2"))
	a := newTestNode(t, s.Port(), storeA)
	require.NoError(t, a.Start(ctx))

	storeB := newStore(t)
	storeB.Save(8, []byte("Eight v1"))
	b := newTestNode(t, s.Port(), storeB)
	require.NoError(t, b.Start(ctx))

	_, locations, err := b.Lookup(ctx, 8, "")
	require.NoError(t, err)
	assert.Len(t, locations, 2)

	data, err := storeB.Read(8)
	require.NoError(t, err)
	assert.Equal(t, "Eight v2", string(data))
}

func TestAddLocal(t *testing.T) {
	s, index := startIndexServer(t)
	n := newTestNode(t, s.Port(), newStore(t))

	src := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(src, []byte("content"), 0644))

	resp, err := n.AddLocal(context.Background(), 12, "My Title", src)
	require.NoError(t, err)
	assert.Equal(t, "RFC 12 My Title 127.0.0.1 "+strconv.Itoa(n.config.Port), resp.Body)
	assert.True(t, n.Store().Has(12))
	assert.Len(t, index.Lookup(12), 1)

	_, err = n.AddLocal(context.Background(), 13, "x", filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestSyncWithoutServer(t *testing.T) {
	store := newStore(t)
	store.Save(1, []byte("One"))
	store.Save(2, []byte("Two"))
	n := newTestNode(t, freePort(t), store)

	err := n.Sync(context.Background())
	var cerr *protocol.ConnectivityError
	assert.True(t, errors.As(err, &cerr))

	// Start tolerates the failed sync
	assert.NoError(t, n.Start(context.Background()))
}

func TestSeed(t *testing.T) {
	sample := t.TempDir()
	os.WriteFile(filepath.Join(sample, "rfc_sample_791.txt"), []byte("IP"), 0644)
	os.WriteFile(filepath.Join(sample, "rfc_793.txt"), []byte("TCP"), 0644)
	os.WriteFile(filepath.Join(sample, "README.txt"), []byte("skip"), 0644)
	os.WriteFile(filepath.Join(sample, "rfc_1.md"), []byte("skip"), 0644)

	n := newTestNode(t, freePort(t), newStore(t))
	count, err := n.Seed(sample)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	numbers, err := n.Store().List()
	require.NoError(t, err)
	assert.Equal(t, []int{791, 793}, numbers)

	_, err = n.Seed(filepath.Join(sample, "absent"))
	assert.Error(t, err)
}

// TestOfflineNode tests a node running against the offline index file
func TestOfflineNode(t *testing.T) {
	store := newStore(t)
	store.Save(2, []byte("Two"))
	logger := zerolog.Nop()
	port := freePort(t)

	dir, err := NewOfflineDirectory(filepath.Join(t.TempDir(), "offline_index.json"), "127.0.0.1", port, logger)
	require.NoError(t, err)
	n := NewNode(NodeConfig{Host: "127.0.0.1", Port: port}, dir, NewUploadServer("127.0.0.1", port, store, testOS, logger), store, NewFetchClient(testOS, logger), logger)
	require.NoError(t, n.Start(context.Background()))
	defer n.Shutdown()

	resp, err := n.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "RFC 2 Two 127.0.0.1 "+strconv.Itoa(port), resp.Body)
	assert.True(t, n.Offline())
}
