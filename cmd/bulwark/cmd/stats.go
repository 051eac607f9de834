package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bulwarkecc/bulwark/pkg/eccfile"
	"github.com/bulwarkecc/bulwark/pkg/scan"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats <source-dir>",
	Short: "Predict the ecc file size for a directory tree",
	Long: `Stats computes the exact size the ecc file would have for the
given parameters, without encoding anything, so storage can be budgeted
before committing to a rate.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		over, err := codecParams(cmd)
		if err != nil {
			return err
		}
		files, err := scan.Walk(args[0])
		if err != nil {
			return err
		}

		var total int64
		for _, fi := range files {
			total += fi.Size
		}
		predicted, err := eccfile.PredictSize(over.params, over.format, files)
		if err != nil {
			return err
		}

		pct := 0.0
		if total > 0 {
			pct = float64(predicted) * 100 / float64(total)
		}
		fmt.Printf("%d files, %d bytes\n", len(files), total)
		fmt.Printf("predicted ecc file size: %d bytes = %.1f%% of the protected data\n", predicted, pct)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	codecFlags(statsCmd)
}
