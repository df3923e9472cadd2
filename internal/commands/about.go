package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// AboutCmd represents the about command
var AboutCmd = &cobra.Command{
	Use:   "about",
	Short: "Display information about p2p-ci",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "p2p-ci - a centralized index server and RFC-sharing peers")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Peers register the RFCs they hold with the index server")
		fmt.Fprintln(out, "and download RFC files directly from each other.")
		fmt.Fprintln(out, "MIT Licensed")
	},
}
