// CRC: crc-CommandRouter.md, Spec: main.md
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zot/p2p-ci/internal/config"
	"github.com/zot/p2p-ci/internal/index"
	"github.com/zot/p2p-ci/internal/logging"
	"github.com/zot/p2p-ci/internal/pidfile"
	"github.com/zot/p2p-ci/internal/server"
)

var (
	serverConfigPath  string
	serverHost        string
	serverPort        int
	serverMonitor     bool
	serverMonitorPort int
	serverVerbose     int
)

// ServerCmd represents the server command
// CRC: crc-CommandRouter.md
var ServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the central index server",
	Long: `Run the central index server.
Peers connect to it to ADD the RFCs they host, LOOKUP who hosts an RFC,
and LIST the whole index. A peer's entries are removed when its
connection closes.`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

func init() {
	ServerCmd.Flags().StringVar(&serverConfigPath, "config", "", "Config file (default: ./"+config.ConfigFileName+" if present)")
	ServerCmd.Flags().StringVar(&serverHost, "host", "", "Address to bind (default: 0.0.0.0)")
	ServerCmd.Flags().IntVarP(&serverPort, "port", "p", 0, fmt.Sprintf("Port to listen on (default: %d)", config.DefaultServerPort))
	ServerCmd.Flags().BoolVar(&serverMonitor, "monitor", false, "Serve the HTTP monitor (status JSON and websocket event feed)")
	ServerCmd.Flags().IntVar(&serverMonitorPort, "monitor-port", 0, "Monitor port (default: auto-select starting from 8734)")
	ServerCmd.Flags().CountVarP(&serverVerbose, "verbose", "v", "Verbose output (can be specified multiple times: -v, -vv)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serverConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.MergeServer(config.ServerFlags{
		Host:        serverHost,
		Port:        serverPort,
		Monitor:     serverMonitor,
		MonitorPort: serverMonitorPort,
		Verbosity:   serverVerbose,
	})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.New(cfg.Behavior.Verbosity, cmd.ErrOrStderr())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := server.New(ctx, cfg, index.New(), logger)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	// Register this process in the PID tracking file
	if err := pidfile.Register("server", srv.Addr().String()); err != nil {
		logger.Warn().Err(err).Msg("failed to register process")
	}
	defer func() {
		if err := srv.Stop(); err != nil {
			logger.Warn().Err(err).Msg("server stop returned error")
		}
		// unregister only once nothing is listening anymore
		if err := pidfile.Unregister(); err != nil {
			logger.Warn().Err(err).Msg("failed to unregister process")
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Index server running on %s\n", srv.Addr())
	if m := srv.Monitor(); m != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Monitor running at http://localhost:%d\n", m.Port())
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
		fmt.Fprintln(cmd.OutOrStdout(), "\nShutting down...")
	case <-srv.Done():
	}
	return nil
}
