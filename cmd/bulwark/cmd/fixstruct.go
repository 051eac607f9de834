package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bulwarkecc/bulwark/pkg/eccfile"
	"github.com/bulwarkecc/bulwark/pkg/structure"
)

var (
	fixTolerance float64
	fixIndexPath string
	fixNoIndex   bool
)

// fixstructCmd represents the fixstruct command
var fixstructCmd = &cobra.Command{
	Use:   "fixstruct <ecc-file> <output-ecc-file>",
	Short: "Repair the ecc file's own markers and delimiters",
	Long: `Fixstruct re-anchors the entry markers and field delimiters of a
corrupted ecc file, writing the repaired copy to a new path. Offsets
from the companion index are applied first when available; everything
else is found by approximate matching within the given tolerance.

Run this before repair when the ecc file itself took damage.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eccPath, outPath := args[0], args[1]

		format, err := cfg.Format()
		if err != nil {
			return err
		}
		indexPath := fixIndexPath
		if indexPath == "" && !fixNoIndex {
			if candidate := eccPath + eccfile.IndexSuffix; fileExists(candidate) {
				indexPath = candidate
			}
		}
		if fixNoIndex {
			indexPath = ""
		}

		r := &structure.Rescuer{Format: format, Threshold: fixTolerance}
		stats, err := r.RepairFile(eccPath, outPath, indexPath)
		if stats != nil {
			fmt.Printf("entry markers: %d valid, %d rewritten by scan, %d rewritten from index\n",
				stats.ValidEntryMarkers, stats.RepairedEntryMarker, stats.IndexRepaired)
			fmt.Printf("field delimiters: %d valid, %d rewritten\n",
				stats.ValidFieldDelims, stats.RepairedFieldDelim)
			if stats.IndexMisses > 0 {
				fmt.Printf("index records unusable: %d\n", stats.IndexMisses)
			}
		}
		return err
	},
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func init() {
	rootCmd.AddCommand(fixstructCmd)
	fixstructCmd.Flags().Float64Var(&fixTolerance, "tolerance", 0.3, "Accepted edit distance as a fraction of marker length (0 = exact only)")
	fixstructCmd.Flags().StringVar(&fixIndexPath, "index", "", "Path to the offsets index (default: <ecc-file>.idx if present)")
	fixstructCmd.Flags().BoolVar(&fixNoIndex, "no-index", false, "Ignore any offsets index and rely on scanning alone")
}
