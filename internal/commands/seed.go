// CRC: crc-CommandRouter.md, Spec: main.md
package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

// SeedCmd represents the seed command
var SeedCmd = &cobra.Command{
	Use:   "seed [DIR]",
	Short: "Import sample RFCs into the local store",
	Long: `Copy every *.txt file in DIR (default: the configured sample directory)
into the local store. The RFC number is taken from the "_<n>" suffix of the
file name, so rfc_sample_791.txt becomes rfc_791.txt.

The files are advertised the next time a peer starts on this store.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSeed,
}

func init() {
	addStoreFlags(SeedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	store, cfg, err := openStore()
	if err != nil {
		return err
	}

	dir := cfg.Peer.SampleDir
	if len(args) == 1 {
		dir = args[0]
	}

	imported, skipped, err := store.ImportDir(dir)
	for _, path := range skipped {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: no RFC number in name\n", filepath.Base(path))
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d RFC(s) from %s into %s.\n", imported, dir, store.Root())
	return nil
}
