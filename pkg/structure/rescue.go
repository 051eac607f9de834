// Package structure repairs the ecc container's own framing. Marker and
// delimiter bytes decay like any other data; this package re-anchors
// them from a known-offset index when one is available, and otherwise by
// approximate matching against the marker tokens, so that entry decoding
// can proceed on a structurally valid file.
package structure

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	logging "github.com/ipfs/go-log/v2"

	"github.com/bulwarkecc/bulwark/pkg/eccfile"
)

var log = logging.Logger("bulwark/structure")

// ErrStructuralCorruption means no entry marker could be located, even
// under approximate matching; the file cannot be aligned for decoding.
var ErrStructuralCorruption = errors.New("structure: no entry marker could be located")

const scanChunkSize = 64 * 1024

// Rescuer re-anchors markers in a corrupted ecc file.
type Rescuer struct {
	Format eccfile.Format

	// Threshold is the accepted edit distance as a fraction of the
	// marker length, in [0,1]. Low values minimize false positives but
	// may miss heavily corrupted markers; high values detect more at
	// the risk of rewriting ordinary data that merely resembles a
	// marker.
	Threshold float64
}

// Stats reports the outcome of a structural repair run.
type Stats struct {
	ValidEntryMarkers   int
	ValidFieldDelims    int
	RepairedEntryMarker int
	RepairedFieldDelim  int
	IndexRepaired       int
	IndexMisses         int
}

// Anchored reports whether at least one entry marker is in place.
func (s *Stats) Anchored() bool {
	return s.ValidEntryMarkers+s.RepairedEntryMarker+s.IndexRepaired > 0
}

type candidate struct {
	pos  int64
	dist int
}

// RepairFile copies inputPath to outputPath and repairs marker bytes in
// the copy. If indexPath is non-empty the recorded offsets are applied
// first; the approximate scan then covers whatever the index missed.
// When not a single entry marker can be anchored the returned error
// wraps ErrStructuralCorruption; the partial output file is kept.
func (r *Rescuer) RepairFile(inputPath, outputPath, indexPath string) (*Stats, error) {
	if r.Threshold < 0 || r.Threshold > 1 {
		return nil, fmt.Errorf("structure: threshold %v outside [0,1]", r.Threshold)
	}
	if err := copyFile(inputPath, outputPath); err != nil {
		return nil, err
	}
	out, err := os.OpenFile(outputPath, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	stats := &Stats{}
	if indexPath != "" {
		if err := r.repairFromIndex(out, indexPath, stats); err != nil {
			return stats, err
		}
	}
	if err := r.repairByScan(out, stats); err != nil {
		return stats, err
	}
	if !stats.Anchored() {
		return stats, fmt.Errorf("%w: %s", ErrStructuralCorruption, outputPath)
	}
	return stats, nil
}

// repairFromIndex seeks to every offset the index recorded, verifies
// the expected token is present, and rewrites it when it is not.
func (r *Rescuer) repairFromIndex(out *os.File, indexPath string, stats *Stats) error {
	records, err := eccfile.ReadIndex(indexPath)
	if err != nil {
		return fmt.Errorf("structure: reading index: %w", err)
	}
	size, err := out.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}

	for _, rec := range records {
		token := r.tokenFor(rec.Type)
		if token == nil {
			log.Warnw("index record with unknown marker type", "type", rec.Type, "offset", rec.Offset)
			stats.IndexMisses++
			continue
		}
		if rec.Offset < 0 || rec.Offset+int64(len(token)) > size {
			log.Warnw("index offset outside ecc file", "offset", rec.Offset)
			stats.IndexMisses++
			continue
		}
		current := make([]byte, len(token))
		if _, err := out.ReadAt(current, rec.Offset); err != nil {
			return err
		}
		if bytes.Equal(current, token) {
			continue
		}
		if _, err := out.WriteAt(token, rec.Offset); err != nil {
			return err
		}
		stats.IndexRepaired++
	}
	return nil
}

// repairByScan slides a window over the file and compares it against
// each marker token with a capped edit distance. Tie-break is
// deterministic: the leftmost match wins, and a nearby later window
// replaces it only on a strictly smaller distance (greedy with
// backtracking).
func (r *Rescuer) repairByScan(out *os.File, stats *Stats) error {
	tokens := [][]byte{r.Format.EntryMarker, r.Format.FieldDelim}
	caps := make([]int, len(tokens))
	maxLen := 0
	for i, tok := range tokens {
		caps[i] = int(math.Round(float64(len(tok)) * r.Threshold))
		if len(tok) > maxLen {
			maxLen = len(tok)
		}
	}
	valid := []*int{&stats.ValidEntryMarkers, &stats.ValidFieldDelims}
	found := make([][]candidate, len(tokens))

	var offset int64
	skipUntil := int64(-1)
	buf := make([]byte, scanChunkSize)
	for {
		n, err := out.ReadAt(buf, offset)
		if n == 0 {
			if err == io.EOF {
				break
			}
			return err
		}
		chunk := buf[:n]
		last := err == io.EOF

		// On intermediate chunks stop maxLen short of the end; the next
		// chunk re-covers that overlap so no window is ever split.
		limit := len(chunk)
		if !last {
			limit -= maxLen
		}
		for i := 0; i < limit; i++ {
			pos := offset + int64(i)
			if pos < skipUntil {
				continue
			}
			for m, tok := range tokens {
				if i+len(tok) > len(chunk) {
					continue
				}
				window := chunk[i : i+len(tok)]
				d := windowDistance(window, tok, caps[m])
				switch {
				case d == 0:
					*valid[m]++
					// A corrupted-marker candidate just before an exact
					// match was a partial view of this marker.
					if prev := len(found[m]) - 1; prev >= 0 && pos-found[m][prev].pos <= int64(len(tok)) {
						found[m] = found[m][:prev]
					}
					if su := pos + int64(len(tok)); su > skipUntil {
						skipUntil = su
					}
				case d <= caps[m]:
					if prev := len(found[m]) - 1; prev >= 0 && pos-found[m][prev].pos <= int64(len(tok)) {
						if d < found[m][prev].dist {
							found[m][prev] = candidate{pos: pos, dist: d}
						}
					} else {
						found[m] = append(found[m], candidate{pos: pos, dist: d})
					}
				}
				if d == 0 {
					break
				}
			}
		}
		if last {
			break
		}
		offset += int64(limit)
	}

	repaired := []*int{&stats.RepairedEntryMarker, &stats.RepairedFieldDelim}
	for m, tok := range tokens {
		for _, cand := range found[m] {
			log.Debugw("rewriting marker", "type", m+1, "offset", cand.pos, "distance", cand.dist)
			if _, err := out.WriteAt(tok, cand.pos); err != nil {
				return err
			}
			*repaired[m]++
		}
	}
	return nil
}

// windowDistance computes the capped distance between a window and a
// token. The Hamming distance is an upper bound on the edit distance
// for equal-length slices, so it serves as a cheap accept before the
// full Levenshtein.
func windowDistance(window, token []byte, cap int) int {
	if h := Hamming(window, token); h >= 0 && h <= cap {
		return h
	}
	return Levenshtein(window, token, cap)
}

func (r *Rescuer) tokenFor(t eccfile.MarkerType) []byte {
	switch t {
	case eccfile.MarkerEntry:
		return r.Format.EntryMarker
	case eccfile.MarkerField:
		return r.Format.FieldDelim
	default:
		return nil
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
