// CRC: crc-CommandRouter.md, Spec: main.md
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zot/p2p-ci/internal/config"
	"github.com/zot/p2p-ci/internal/storage"
)

var (
	storeDir        string
	storeConfigPath string
)

// LsCmd represents the ls command
var LsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List RFCs in the local store",
	Long: `List the RFC files held in a peer's local store with their titles.
Works without a running peer or index server.`,
	Args: cobra.NoArgs,
	RunE: runLs,
}

func init() {
	addStoreFlags(LsCmd)
}

// addStoreFlags registers the flags shared by the local-store commands
func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&storeDir, "rfc-store", "", "Local RFC store directory (default: from config, else rfc_store)")
	cmd.Flags().StringVar(&storeConfigPath, "config", "", "Config file (default: ./"+config.ConfigFileName+" if present)")
}

// openStore resolves the store directory from the flag or configuration
func openStore() (*storage.Store, *config.Config, error) {
	cfg, err := config.Load(storeConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.MergePeer(config.PeerFlags{RFCStore: storeDir})
	store, err := storage.New(cfg.Peer.RFCStore)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func runLs(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}

	numbers, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list store: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(numbers) == 0 {
		fmt.Fprintf(out, "No RFCs in %s\n", store.Root())
		return nil
	}

	fmt.Fprintf(out, "RFCs in %s (%d):\n\n", store.Root(), len(numbers))
	for _, n := range numbers {
		fmt.Fprintf(out, "%d\t%s\n", n, store.Title(n))
	}
	return nil
}
