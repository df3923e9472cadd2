// CRC: crc-CommandRouter.md, Spec: main.md
package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"
)

// CatCmd represents the cat command
var CatCmd = &cobra.Command{
	Use:   "cat RFC",
	Short: "Display an RFC from the local store",
	Long: `Display the contents of an RFC held in the local store.

Example:
  p2p-ci cat 791 --rfc-store peer_a_store`,
	Args: cobra.ExactArgs(1),
	RunE: runCat,
}

func init() {
	addStoreFlags(CatCmd)
}

func runCat(cmd *cobra.Command, args []string) error {
	n, err := parseNumber(args[0])
	if err != nil {
		return err
	}

	store, _, err := openStore()
	if err != nil {
		return err
	}

	data, err := store.Read(n)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to read RFC %d: %w", n, err)
		}
		numbers, _ := store.List()
		if len(numbers) == 0 {
			return fmt.Errorf("RFC %d not found: %s is empty", n, store.Root())
		}
		available := make([]string, len(numbers))
		for i, num := range numbers {
			available[i] = fmt.Sprint(num)
		}
		return fmt.Errorf("RFC %d not found\nAvailable: %s", n, strings.Join(available, ", "))
	}

	_, err = cmd.OutOrStdout().Write(data)
	return err
}
