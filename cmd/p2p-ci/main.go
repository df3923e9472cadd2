// CRC: crc-CommandRouter.md, Spec: main.md
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zot/p2p-ci/internal/commands"
)

// CRC: crc-CommandRouter.md
var rootCmd = &cobra.Command{
	Use:   "p2p-ci",
	Short: "Peer-to-peer RFC sharing with a centralized index",
	Long: `p2p-ci runs the two halves of the P2P-CI/1.0 system.

  p2p-ci server   runs the central index server, which records which peer
                  holds which RFC and answers LOOKUP and LIST requests.
  p2p-ci peer     runs a peer: it serves its local RFC files to other peers,
                  registers them with the index server, and opens a shell
                  for looking up and downloading RFCs.

Settings are read from ./p2p-ci.toml when present; flags override them.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.PeerCmd)
	rootCmd.AddCommand(commands.LsCmd)
	rootCmd.AddCommand(commands.CatCmd)
	rootCmd.AddCommand(commands.SeedCmd)
	rootCmd.AddCommand(commands.PsCmd)
	rootCmd.AddCommand(commands.KillCmd)
	rootCmd.AddCommand(commands.KillAllCmd)
	rootCmd.AddCommand(commands.VersionCmd)
	rootCmd.AddCommand(commands.AboutCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
