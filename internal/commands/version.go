// CRC: crc-CommandRouter.md, Spec: main.md
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zot/p2p-ci/internal/protocol"
)

const Version = "1.0.0"

// VersionCmd represents the version command
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display the version of p2p-ci",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "p2p-ci version %s (protocol %s)\n", Version, protocol.Version)
	},
}
