package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bulwarkecc/bulwark/pkg/eccfile"
	"github.com/bulwarkecc/bulwark/pkg/scan"
)

var (
	repairIgnoreSize bool
	repairErrorsFile string
)

// repairCmd represents the repair command
var repairCmd = &cobra.Command{
	Use:   "repair <ecc-file> <source-dir> <output-dir>",
	Short: "Repair corrupted files from their ecc file",
	Long: `Repair writes best-effort repaired copies of the protected files
under the output directory. Each block is verified against its recorded
digest; repairs that do not re-hash to the digest are never committed,
and unrepairable blocks keep the corrupted input bytes.

Example:
  bulwark repair photos.ecc ~/photos ~/photos-repaired`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		eccPath, srcDir, outDir := args[0], args[1], args[2]
		start := time.Now()

		r, err := openReader(eccPath)
		if err != nil {
			return err
		}
		defer r.Close()

		opts := eccfile.RepairOptions{SrcDir: srcDir, OutDir: outDir, IgnoreSize: repairIgnoreSize}
		if repairErrorsFile != "" {
			if opts.Only, err = scan.LoadErrorsList(repairErrorsFile); err != nil {
				return err
			}
		}

		report, err := eccfile.Repair(r, opts)
		if err != nil {
			return err
		}
		if runMetrics != nil {
			runMetrics.ObserveReport("repair", report)
			runMetrics.ObserveRun("repair", time.Since(start))
		}
		fmt.Print(report.Summary())

		if _, _, unrepairable := report.Totals(); unrepairable > 0 || report.CorruptEntries > 0 {
			return fmt.Errorf("partial recovery: %d unrepairable tracks, %d unreadable entries", unrepairable, report.CorruptEntries)
		}
		return nil
	},
}

// openReader opens an ecc file, falling back to the configured
// parameters when the comment header is too corrupted to parse.
func openReader(eccPath string) (*eccfile.Reader, error) {
	r, err := eccfile.Open(eccPath)
	if err == nil {
		return r, nil
	}
	if errors.Is(err, eccfile.ErrBadMagic) || errors.Is(err, eccfile.ErrBadParams) {
		format, ferr := cfg.Format()
		if ferr != nil {
			return nil, ferr
		}
		fmt.Printf("warning: ecc header unreadable (%v), using configured parameters\n", err)
		return eccfile.OpenWithParams(eccPath, cfg.Codec, format)
	}
	return nil, err
}

func init() {
	rootCmd.AddCommand(repairCmd)
	repairCmd.Flags().BoolVar(&repairIgnoreSize, "ignore-size", false, "Proceed on files whose size changed since generation")
	repairCmd.Flags().StringVar(&repairErrorsFile, "errors-file", "", "CSV of relative paths to repair (first column), e.g. from an integrity audit")
}
