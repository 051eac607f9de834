package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bulwarkecc/bulwark/pkg/eccfile"
	"github.com/bulwarkecc/bulwark/pkg/scan"
)

var verifyErrorsFile string

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify <ecc-file> <source-dir>",
	Short: "Check protected files against their ecc file without writing",
	Long: `Verify decodes corrupted blocks in memory and reports, per file,
how many tracks are valid, repairable, and beyond the correctable
bound. Nothing is written.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		r, err := openReader(args[0])
		if err != nil {
			return err
		}
		defer r.Close()

		opts := eccfile.RepairOptions{SrcDir: args[1]}
		if verifyErrorsFile != "" {
			if opts.Only, err = scan.LoadErrorsList(verifyErrorsFile); err != nil {
				return err
			}
		}
		report, err := eccfile.Verify(r, opts)
		if err != nil {
			return err
		}
		if runMetrics != nil {
			runMetrics.ObserveReport("verify", report)
			runMetrics.ObserveRun("verify", time.Since(start))
		}
		fmt.Print(report.Summary())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringVar(&verifyErrorsFile, "errors-file", "", "CSV of relative paths to check (first column)")
}
