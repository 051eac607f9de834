package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bulwarkecc/bulwark/pkg/eccfile"
)

// reindexCmd represents the reindex command
var reindexCmd = &cobra.Command{
	Use:   "reindex <ecc-file>",
	Short: "Rebuild the companion offsets index of an ecc file",
	Long: `Reindex rescans the ecc file for marker tokens and rewrites
<ecc-file>.idx. Use it when the index was lost or the ecc file was
modified by a structural repair.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eccPath := args[0]

		// Prefer the grammar recorded in the file's own header; fall
		// back to the configured tokens when it is unreadable.
		format, err := cfg.Format()
		if err != nil {
			return err
		}
		if r, oerr := eccfile.Open(eccPath); oerr == nil {
			format = r.Format
			r.Close()
		}

		n, err := eccfile.RegenerateIndex(eccPath, eccPath+eccfile.IndexSuffix, format)
		if err != nil {
			return err
		}
		fmt.Printf("indexed %d markers into %s\n", n, eccPath+eccfile.IndexSuffix)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}
