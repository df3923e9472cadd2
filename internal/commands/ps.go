// CRC: crc-CommandRouter.md, Spec: main.md
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zot/p2p-ci/internal/pidfile"
)

var psVerbose bool

// PsCmd represents the ps command
// CRC: crc-CommandRouter.md
var PsCmd = &cobra.Command{
	Use:   "ps",
	Short: "List running p2p-ci servers and peers",
	Long:  `List process IDs, roles and listen addresses for all running p2p-ci instances.`,
	RunE:  runPs,
}

func init() {
	PsCmd.Flags().BoolVarP(&psVerbose, "verbose", "v", false, "Show command line arguments")
}

func runPs(cmd *cobra.Command, args []string) error {
	records, err := pidfile.List()
	if err != nil {
		return fmt.Errorf("failed to list processes: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No running p2p-ci instances found")
		return nil
	}

	fmt.Fprintf(out, "Running p2p-ci instances (%d):\n", len(records))
	if psVerbose {
		fmt.Fprintln(out, "PID\tROLE\tADDR\tCOMMAND")
	} else {
		fmt.Fprintln(out, "PID\tROLE\tADDR")
	}
	for _, r := range records {
		if !psVerbose {
			fmt.Fprintf(out, "%d\t%s\t%s\n", r.PID, r.Role, r.Addr)
			continue
		}
		cmdline, err := pidfile.CommandLine(r.PID)
		switch {
		case err != nil:
			fmt.Fprintf(out, "%d\t%s\t%s\t<error: %v>\n", r.PID, r.Role, r.Addr, err)
		case cmdline == "":
			fmt.Fprintf(out, "%d\t%s\t%s\t<no command line available>\n", r.PID, r.Role, r.Addr)
		default:
			fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", r.PID, r.Role, r.Addr, cmdline)
		}
	}
	return nil
}
