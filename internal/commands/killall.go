// CRC: crc-CommandRouter.md, Spec: main.md
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zot/p2p-ci/internal/pidfile"
)

// KillAllCmd represents the killall command
var KillAllCmd = &cobra.Command{
	Use:   "killall",
	Short: "Terminate all running p2p-ci servers and peers",
	RunE:  runKillAll,
}

func runKillAll(cmd *cobra.Command, args []string) error {
	killed, err := pidfile.KillAll()
	if err != nil {
		return fmt.Errorf("failed to kill processes: %w", err)
	}

	if killed == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No running p2p-ci instances found")
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Successfully killed %d process(es)\n", killed)
	}
	return nil
}
