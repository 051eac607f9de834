package eccfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/segmentio/ksuid"
	"golang.org/x/sync/errgroup"

	"github.com/bulwarkecc/bulwark/pkg/rs"
)

// RepairOptions configures a repair or verify run.
type RepairOptions struct {
	// SrcDir is the root the recorded relative paths resolve against.
	SrcDir string

	// OutDir receives the repaired files. Files are never modified in
	// place: the output starts as a verbatim copy and only verified
	// block repairs are committed over it.
	OutDir string

	// IgnoreSize proceeds on a file whose current size differs from the
	// recorded size; block boundaries may then be misaligned, so only
	// tracks that still verify are repaired.
	IgnoreSize bool

	// Only restricts the run to the listed relative paths (as recorded
	// in the ecc file), typically loaded from an external audit's error
	// list. Nil means every entry.
	Only map[string]struct{}
}

// Repair walks every entry of the ecc file and writes best-effort
// repaired copies of the protected files under OutDir. Per-track
// failures degrade only their own block; the run only fails on I/O
// errors or an unreadable ecc stream.
func Repair(r *Reader, opts RepairOptions) (*Report, error) {
	return run(r, opts, false)
}

// Verify is Repair without committing anything: it decodes corrupted
// tracks in memory to report which blocks would be repaired and which
// are beyond the correctable bound.
func Verify(r *Reader, opts RepairOptions) (*Report, error) {
	return run(r, opts, true)
}

func run(r *Reader, opts RepairOptions, dryRun bool) (*Report, error) {
	report := &Report{RunID: ksuid.New().String(), EccPath: r.f.Name()}
	codec, err := rs.New(r.Params.BlockSize, MessageSize(r.Params.BlockSize, r.Params.RateS1), r.Params.Profile)
	if err != nil {
		return nil, err
	}

	for {
		entry, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, ErrEntryCorrupt) {
			log.Errorw("unreadable ecc entry", "err", err)
			report.CorruptEntries++
			continue
		}
		if err != nil {
			return report, err
		}
		if opts.Only != nil {
			if _, ok := opts.Only[entry.RelPath]; !ok {
				continue
			}
		}
		report.Files = append(report.Files, repairEntry(r, codec, entry, opts, dryRun))
	}
	return report, nil
}

func repairEntry(r *Reader, codec *rs.Codec, entry *Entry, opts RepairOptions, dryRun bool) FileResult {
	res := FileResult{RelPath: entry.RelPath, MetaRepaired: entry.MetaRepaired}
	srcPath := filepath.Join(opts.SrcDir, filepath.FromSlash(entry.RelPath))

	src, err := os.Open(srcPath)
	if err != nil {
		res.Skipped = true
		res.Note = fmt.Sprintf("cannot open source: %v", err)
		return res
	}
	defer src.Close()

	st, err := src.Stat()
	if err != nil {
		res.Skipped = true
		res.Note = err.Error()
		return res
	}
	if st.Size() != entry.FileSize {
		if !opts.IgnoreSize {
			res.Skipped = true
			res.Note = fmt.Sprintf("%v: now %d bytes, recorded %d", ErrSizeMismatch, st.Size(), entry.FileSize)
			return res
		}
		log.Warnw("file size changed, blocks may be misaligned", "path", entry.RelPath, "now", st.Size(), "recorded", entry.FileSize)
		res.Note = "size mismatch ignored"
	}

	var out *os.File
	if !dryRun {
		outPath := filepath.Join(opts.OutDir, filepath.FromSlash(entry.RelPath))
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			res.Skipped = true
			res.Note = err.Error()
			return res
		}
		if err := copyFileContents(src, outPath); err != nil {
			res.Skipped = true
			res.Note = fmt.Sprintf("cannot stage output: %v", err)
			return res
		}
		out, err = os.OpenFile(outPath, os.O_RDWR, 0o644)
		if err != nil {
			res.Skipped = true
			res.Note = err.Error()
			return res
		}
		defer out.Close()
	}

	// Slice the track region up front; tracks are then repaired in
	// parallel, each committing to a distinct byte range of the output.
	type work struct {
		block          Block
		digest, parity []byte
	}
	var jobs []work
	tracks := entry.Tracks
	hs := r.h.Size()
	it := r.Params.Blocks(entry.FileSize)
	for {
		b, ok := it.Next()
		if !ok {
			break
		}
		need := hs + b.ParitySize(r.Params.BlockSize)
		if len(tracks) < need {
			// Truncated entry: every remaining block has no track.
			res.Unrepairable += countRemaining(it) + 1
			res.Note = "track region truncated"
			break
		}
		jobs = append(jobs, work{block: b, digest: tracks[:hs], parity: tracks[hs:need]})
		tracks = tracks[need:]
	}
	res.Blocks = len(jobs) + res.Unrepairable

	statuses := make([]TrackStatus, len(jobs))
	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range jobs {
		i := i
		g.Go(func() error {
			jb := jobs[i]
			buf := make([]byte, jb.block.Length)
			n, err := src.ReadAt(buf, jb.block.Offset)
			if err != nil && err != io.EOF {
				return err
			}
			buf = buf[:n]
			repaired, status, rerr := RepairBlock(codec, r.h, buf, jb.digest, jb.parity, jb.block.MsgSize)
			statuses[i] = status
			if rerr != nil {
				log.Debugw("block not repaired", "path", entry.RelPath, "offset", jb.block.Offset, "err", rerr)
			}
			if status == TrackRepaired && !dryRun {
				if _, err := out.WriteAt(repaired, jb.block.Offset); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		res.Skipped = true
		res.Note = err.Error()
		return res
	}

	for _, s := range statuses {
		switch s {
		case TrackValid:
			res.Valid++
		case TrackRepaired:
			res.Repaired++
		case TrackUnrepairable:
			res.Unrepairable++
		}
	}
	if res.Repaired > 0 || res.Unrepairable > 0 {
		log.Infow("file processed", "path", entry.RelPath,
			"valid", res.Valid, "repaired", res.Repaired, "unrepairable", res.Unrepairable)
	}
	return res
}

func countRemaining(it *BlockIter) int {
	n := 0
	for {
		if _, ok := it.Next(); !ok {
			return n
		}
		n++
	}
}

// copyFileContents writes a fresh copy of src at path, reading from the
// start regardless of src's current offset.
func copyFileContents(src *os.File, path string) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := out.ReadFrom(io.NewSectionReader(src, 0, 1<<62)); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
