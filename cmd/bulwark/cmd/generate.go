package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/bulwarkecc/bulwark/pkg/eccfile"
	"github.com/bulwarkecc/bulwark/pkg/scan"
)

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate <source-dir> <ecc-file>",
	Short: "Generate an ecc file protecting a directory tree",
	Long: `Generate scans the source directory and writes one ecc entry per
regular file, plus a companion offsets index next to the ecc file.

Example:
  bulwark generate ~/photos photos.ecc --rate 0.2
  bulwark generate ~/archive archive.ecc --adaptive --rate 0.3 --rate2 0.2 --rate3 0.1 --header-size 4096`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		srcDir, eccPath := args[0], args[1]
		start := time.Now()

		over, err := codecParams(cmd)
		if err != nil {
			return err
		}
		files, err := scan.Walk(srcDir)
		if err != nil {
			return err
		}

		w, err := eccfile.NewWriter(eccPath, over.params, over.format)
		if err != nil {
			return err
		}

		var protected int64
		for _, fi := range files {
			f, err := os.Open(filepath.Join(srcDir, filepath.FromSlash(fi.RelPath)))
			if err != nil {
				w.Close()
				return fmt.Errorf("opening %s: %w", fi.RelPath, err)
			}
			err = w.AddFile(fi.RelPath, f, fi.Size)
			f.Close()
			if err != nil {
				w.Close()
				return err
			}
			covered := over.params.ProtectedLength(fi.Size)
			protected += covered
			if runMetrics != nil {
				runMetrics.ObserveGenerated(covered)
			}
		}
		if err := w.Close(); err != nil {
			return err
		}
		if runMetrics != nil {
			runMetrics.ObserveRun("generate", time.Since(start))
		}

		st, err := os.Stat(eccPath)
		if err != nil {
			return err
		}
		fmt.Printf("run %s: %d files, %d bytes protected, ecc file %d bytes (%s + index)\n",
			w.RunID(), len(files), protected, st.Size(), eccPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	codecFlags(generateCmd)
}
