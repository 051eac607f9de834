package eccfile

import (
	"fmt"
	"strings"
)

// FileResult is the per-file outcome of a repair or verify run. Counts
// are per track; partial recovery shows up as a mix of repaired and
// unrepairable tracks, never as a bare failure.
type FileResult struct {
	RelPath      string
	Blocks       int
	Valid        int
	Repaired     int
	Unrepairable int
	Skipped      bool
	MetaRepaired bool
	Note         string
}

// Report is the outcome of a whole run.
type Report struct {
	RunID          string
	EccPath        string
	Files          []FileResult
	CorruptEntries int
}

// Totals sums the track counts across all files.
func (r *Report) Totals() (valid, repaired, unrepairable int) {
	for _, f := range r.Files {
		valid += f.Valid
		repaired += f.Repaired
		unrepairable += f.Unrepairable
	}
	return valid, repaired, unrepairable
}

// Summary renders a human-readable per-file and total account.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: %s\n", r.RunID, r.EccPath)
	for _, f := range r.Files {
		if f.Skipped {
			fmt.Fprintf(&b, "  %s: skipped (%s)\n", f.RelPath, f.Note)
			continue
		}
		fmt.Fprintf(&b, "  %s: %d blocks, %d valid, %d repaired, %d unrepairable",
			f.RelPath, f.Blocks, f.Valid, f.Repaired, f.Unrepairable)
		if f.MetaRepaired {
			b.WriteString(", metadata repaired")
		}
		if f.Note != "" {
			fmt.Fprintf(&b, " (%s)", f.Note)
		}
		b.WriteByte('\n')
	}
	valid, repaired, unrepairable := r.Totals()
	fmt.Fprintf(&b, "total: %d files, %d valid, %d repaired, %d unrepairable, %d unreadable entries\n",
		len(r.Files), valid, repaired, unrepairable, r.CorruptEntries)
	return b.String()
}
