// CRC: crc-CommandRouter.md, Spec: main.md
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zot/p2p-ci/internal/config"
	"github.com/zot/p2p-ci/internal/logging"
	"github.com/zot/p2p-ci/internal/peer"
	"github.com/zot/p2p-ci/internal/pidfile"
	"github.com/zot/p2p-ci/internal/storage"
)

var (
	peerConfigPath string
	peerFlags      config.PeerFlags
)

// PeerCmd represents the peer command
// CRC: crc-CommandRouter.md
var PeerCmd = &cobra.Command{
	Use:   "peer",
	Short: "Run a peer: upload server plus interactive shell",
	Long: `Run a peer node.
The peer serves the RFCs in its local store to other peers, registers them
with the central index server, and opens an interactive shell for
looking up and downloading RFCs.

With --offline the central server is replaced by a JSON index file that
several peers on one machine can share.`,
	Args: cobra.NoArgs,
	RunE: runPeer,
}

func init() {
	f := PeerCmd.Flags()
	f.StringVar(&peerConfigPath, "config", "", "Config file (default: ./"+config.ConfigFileName+" if present)")
	f.StringVar(&peerFlags.ServerHost, "server-host", "", "Central server host (default: localhost)")
	f.IntVar(&peerFlags.ServerPort, "server-port", 0, fmt.Sprintf("Central server port (default: %d)", config.DefaultServerPort))
	f.StringVar(&peerFlags.Host, "peer-host", "", "Peer host to advertise (default: localhost)")
	f.IntVar(&peerFlags.Port, "peer-port", 0, "Peer upload server port (default: 6000)")
	f.StringVar(&peerFlags.RFCStore, "rfc-store", "", "Directory where RFC files are stored locally (default: rfc_store)")
	f.StringVar(&peerFlags.SampleDir, "sample-dir", "", "Sample RFC directory used by the seed command (default: sample_rfc)")
	f.BoolVar(&peerFlags.Offline, "offline", false, "Run without a central server (uses a local index file)")
	f.StringVar(&peerFlags.OfflineIndex, "offline-index", "", "Path to the shared index file when --offline is set (default: offline_index.json)")
	f.CountVarP(&peerFlags.Verbosity, "verbose", "v", "Verbose output (can be specified multiple times: -v, -vv)")
}

// buildNode wires a peer node from configuration
func buildNode(cfg *config.Config, logger zerolog.Logger) (*peer.Node, error) {
	store, err := storage.New(cfg.Peer.RFCStore)
	if err != nil {
		return nil, err
	}
	osName := peer.OSBanner()

	upload := peer.NewUploadServer(cfg.Peer.Host, cfg.Peer.Port, store, osName, logger)
	upload.ReadTimeout = cfg.Peer.Timeouts.Upload.Duration

	var dir peer.Directory
	if cfg.Peer.Offline {
		od, err := peer.NewOfflineDirectory(cfg.Peer.OfflineIndex, cfg.Peer.Host, cfg.Peer.Port, logger)
		if err != nil {
			return nil, err
		}
		dir = od
	} else {
		dc := peer.NewDirectoryClient(cfg.Peer.ServerHost, cfg.Peer.ServerPort, cfg.Peer.Host, cfg.Peer.Port, logger)
		dc.DialTimeout = cfg.Peer.Timeouts.Dial.Duration
		dc.ReadTimeout = cfg.Peer.Timeouts.Read.Duration
		dir = dc
	}

	fetch := peer.NewFetchClient(osName, logger)
	fetch.Timeout = cfg.Peer.Timeouts.Fetch.Duration

	return peer.NewNode(peer.NodeConfig{Host: cfg.Peer.Host, Port: cfg.Peer.Port}, dir, upload, store, fetch, logger), nil
}

func runPeer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(peerConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.MergePeer(peerFlags)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.New(cfg.Behavior.Verbosity, cmd.ErrOrStderr())

	node, err := buildNode(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("failed to start peer: %w", err)
	}

	if err := pidfile.Register("peer", fmt.Sprintf("%s:%d", cfg.Peer.Host, cfg.Peer.Port)); err != nil {
		logger.Warn().Err(err).Msg("failed to register process")
	}
	defer func() {
		if err := node.Shutdown(); err != nil {
			logger.Debug().Err(err).Msg("shutdown returned error")
		}
		if err := pidfile.Unregister(); err != nil {
			logger.Warn().Err(err).Msg("failed to unregister process")
		}
	}()

	shell := NewShell(node, cfg.Peer.SampleDir, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
	if err := shell.Run(ctx); err != nil && !isConnectivity(err) {
		return err
	}
	return nil
}
