package eccfile

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/bulwarkecc/bulwark/pkg/hasher"
	"github.com/bulwarkecc/bulwark/pkg/rs"
)

const readChunkSize = 256 * 1024

// Reader scans entries out of an ecc file. It never trusts a stored
// length: entries are located by their marker token, so a corrupted
// entry is skipped rather than desynchronizing the rest of the file.
type Reader struct {
	Params Params
	Format Format

	// HeaderLen is the byte length of the parsed comment header, or 0
	// when the reader was opened with explicit parameters.
	HeaderLen int64

	f     *os.File
	size  int64
	h     *hasher.Hasher
	intra *rs.Codec
	pos   int64
}

// Open opens an ecc file, recovering the parameters and token grammar
// from its comment header. When the header is corrupted it returns an
// error wrapping ErrBadMagic or ErrBadParams; the caller can then fall
// back to OpenWithParams using a saved configuration.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	params, format, hlen, err := parseHeader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, err
	}
	r, err := newReader(f, params, format)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.HeaderLen = hlen
	r.pos = hlen
	return r, nil
}

// OpenWithParams opens an ecc file with explicit parameters, ignoring
// the comment header. Used when the header region is too corrupted to
// parse.
func OpenWithParams(path string, params Params, format Format) (*Reader, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := newReader(f, params, format)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func newReader(f *os.File, params Params, format Format) (*Reader, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	h, err := hasher.New(params.HashAlgo)
	if err != nil {
		return nil, err
	}
	intra, err := rs.New(intraBlockSize, intraMessageSize(), params.Profile)
	if err != nil {
		return nil, err
	}
	return &Reader{
		Params: params,
		Format: format,
		f:      f,
		size:   st.Size(),
		h:      h,
		intra:  intra,
	}, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error { return r.f.Close() }

// Hasher returns the digest engine matching the file's parameters.
func (r *Reader) Hasher() *hasher.Hasher { return r.h }

// Entry is one parsed ecc entry, reconciled across replicated copies.
type Entry struct {
	Offset   int64
	RelPath  string
	FileSize int64

	// Tracks is the raw digest+parity region, sliced per block by the
	// schedule.
	Tracks []byte

	// MetaRepaired is set when the path/size field needed the
	// intra-field code to decode.
	MetaRepaired bool

	// Copies is how many replicated raw copies were reconciled.
	Copies int
}

// Next returns the next entry, reconciling replicated copies by
// byte-wise majority vote before parsing. io.EOF signals a clean end of
// file; an error wrapping ErrEntryCorrupt means this entry could not be
// parsed but the reader has advanced and Next can be called again.
func (r *Reader) Next() (*Entry, error) {
	offset, data, err := r.nextRaw()
	if err != nil {
		return nil, err
	}
	copies := [][]byte{data}
	for len(copies) < r.Params.Replication {
		_, dup, err := r.nextRaw()
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Warnw("replicated entry truncated", "offset", offset, "copies", len(copies), "want", r.Params.Replication)
				break
			}
			return nil, err
		}
		copies = append(copies, dup)
	}

	entry, err := r.parseEntry(voteBytes(copies))
	if err != nil {
		return nil, fmt.Errorf("entry at offset %d: %w", offset, err)
	}
	entry.Offset = offset
	entry.Copies = len(copies)
	return entry, nil
}

// nextRaw returns the bytes between the next entry marker and the one
// after it (or EOF), advancing the scan position.
func (r *Reader) nextRaw() (int64, []byte, error) {
	start, err := r.findMarker(r.pos)
	if err != nil {
		return 0, nil, err
	}
	bodyStart := start + int64(len(r.Format.EntryMarker))
	end, err := r.findMarker(bodyStart)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return 0, nil, err
		}
		end = r.size
	}
	data := make([]byte, end-bodyStart)
	if _, err := r.f.ReadAt(data, bodyStart); err != nil {
		return 0, nil, err
	}
	r.pos = end
	return start, data, nil
}

// findMarker returns the offset of the next exact entry-marker
// occurrence at or after from, or io.EOF.
func (r *Reader) findMarker(from int64) (int64, error) {
	marker := r.Format.EntryMarker
	buf := make([]byte, readChunkSize)
	for off := from; off < r.size; {
		n, err := r.f.ReadAt(buf, off)
		if n > 0 {
			if i := bytes.Index(buf[:n], marker); i >= 0 {
				return off + int64(i), nil
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		// Step back so a marker split across the chunk boundary is seen
		// whole in the next read.
		off += int64(n - (len(marker) - 1))
	}
	return 0, io.EOF
}

// parseEntry splits an entry body into its fields and verifies (and if
// needed repairs) the path+size metadata with the intra-field code.
func (r *Reader) parseEntry(data []byte) (*Entry, error) {
	delim := r.Format.FieldDelim
	i1 := bytes.Index(data, delim)
	if i1 < 0 {
		return nil, fmt.Errorf("%w: no field delimiter", ErrEntryCorrupt)
	}
	rest := data[i1+len(delim):]
	i2 := bytes.Index(rest, delim)
	if i2 < 0 {
		return nil, fmt.Errorf("%w: missing size field", ErrEntryCorrupt)
	}
	rest2 := rest[i2+len(delim):]
	i3 := bytes.Index(rest2, delim)
	if i3 < 0 {
		return nil, fmt.Errorf("%w: missing metadata parity field", ErrEntryCorrupt)
	}

	relpath := string(data[:i1])
	sizeStr := string(rest[:i2])
	intraHex := rest2[:i3]
	tracks := rest2[i3+len(delim):]

	relpath, sizeStr, repaired, err := r.verifyMeta(relpath, sizeStr, intraHex)
	if err != nil {
		return nil, err
	}
	fileSize, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil || fileSize < 0 {
		return nil, fmt.Errorf("%w: unreadable file size %q", ErrEntryCorrupt, sizeStr)
	}

	// A corrupted marker can merge two entries; anything beyond the
	// schedule's track region belongs to no block of this entry.
	if want := r.Params.TrackRegionSize(fileSize, r.h.Size()); int64(len(tracks)) > want {
		tracks = tracks[:want]
	}

	return &Entry{
		RelPath:      relpath,
		FileSize:     fileSize,
		Tracks:       tracks,
		MetaRepaired: repaired,
	}, nil
}

// verifyMeta checks the path+size field against its intra-field parity
// and decodes a repair when the check fails. An unverifiable parity
// field (bad hex, misaligned chunks) is logged and the fields are used
// as parsed; the per-track digests still guard the actual repairs.
func (r *Reader) verifyMeta(relpath, sizeStr string, intraHex []byte) (string, string, bool, error) {
	parity := make([]byte, hex.DecodedLen(len(intraHex)))
	if _, err := hex.Decode(parity, intraHex); err != nil {
		log.Warnw("metadata parity field unreadable", "path", relpath, "err", err)
		return relpath, sizeStr, false, nil
	}

	k := intraMessageSize()
	nsym := intraBlockSize - k
	meta := metaField(relpath, sizeStr)
	chunks := (len(meta) + k - 1) / k
	if chunks == 0 || len(parity) != chunks*nsym {
		log.Warnw("metadata parity field misaligned", "path", relpath, "have", len(parity), "want", chunks*nsym)
		return relpath, sizeStr, false, nil
	}

	repaired := false
	fixed := make([]byte, 0, len(meta))
	for i := 0; i < chunks; i++ {
		chunk := meta[i*k : min((i+1)*k, len(meta))]
		p := parity[i*nsym : (i+1)*nsym]
		word := append(append(make([]byte, 0, len(chunk)+nsym), chunk...), p...)
		if r.intra.CheckK(word, k) {
			fixed = append(fixed, chunk...)
			continue
		}
		msg, _, err := r.intra.DecodeK(word, k, nil)
		if err != nil {
			return "", "", false, fmt.Errorf("%w: path/size metadata unrecoverable: %w", ErrEntryCorrupt, err)
		}
		fixed = append(fixed, msg...)
		repaired = true
	}

	if repaired {
		sep := bytes.LastIndexByte(fixed, '|')
		if sep < 0 {
			return "", "", false, fmt.Errorf("%w: repaired metadata has no separator", ErrEntryCorrupt)
		}
		relpath = string(fixed[:sep])
		sizeStr = string(fixed[sep+1:])
		log.Infow("entry metadata repaired", "path", relpath)
	}
	return relpath, sizeStr, repaired, nil
}

// voteBytes reconciles replicated copies position by position: each
// output byte is the most frequent byte at that position among the
// copies that reach it, earliest copy winning ties. The output length
// is the modal copy length.
func voteBytes(copies [][]byte) []byte {
	if len(copies) == 1 {
		return copies[0]
	}
	lengths := map[int]int{}
	for _, c := range copies {
		lengths[len(c)]++
	}
	outLen, best := 0, 0
	for _, c := range copies {
		if n := lengths[len(c)]; n > best || (n == best && len(c) > outLen) {
			outLen, best = len(c), n
		}
	}

	out := make([]byte, outLen)
	var counts [256]int
	for i := range out {
		for j := range counts {
			counts[j] = 0
		}
		winner, winCount := byte(0), 0
		for _, c := range copies {
			if i >= len(c) {
				continue
			}
			counts[c[i]]++
			if counts[c[i]] > winCount {
				winner, winCount = c[i], counts[c[i]]
			}
		}
		out[i] = winner
	}
	return out
}
