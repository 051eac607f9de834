package eccfile

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/segmentio/ksuid"
	"golang.org/x/sync/errgroup"

	"github.com/bulwarkecc/bulwark/pkg/hasher"
	"github.com/bulwarkecc/bulwark/pkg/rs"
)

var log = logging.Logger("bulwark/eccfile")

// encodeBatchBlocks bounds how many blocks are held in memory per
// parallel encode batch.
const encodeBatchBlocks = 256

// Writer generates an ecc file and its companion index.
type Writer struct {
	params Params
	format Format
	runID  string

	f   *os.File
	w   *bufio.Writer
	off int64

	codec *rs.Codec
	intra *rs.Codec
	h     *hasher.Hasher
	idx   *IndexWriter

	files int
}

// NewWriter creates the ecc file at path (and the index at
// path+IndexSuffix) and writes the comment header.
func NewWriter(path string, params Params, format Format) (*Writer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}
	codec, err := rs.New(params.BlockSize, MessageSize(params.BlockSize, params.RateS1), params.Profile)
	if err != nil {
		return nil, err
	}
	intra, err := rs.New(intraBlockSize, intraMessageSize(), params.Profile)
	if err != nil {
		return nil, err
	}
	h, err := hasher.New(params.HashAlgo)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	idx, err := NewIndexWriter(path + IndexSuffix)
	if err != nil {
		f.Close()
		return nil, err
	}

	w := &Writer{
		params: params,
		format: format,
		runID:  ksuid.New().String(),
		f:      f,
		w:      bufio.NewWriterSize(f, 1<<20),
		codec:  codec,
		intra:  intra,
		h:      h,
		idx:    idx,
	}
	if err := w.write(headerBytes(params, format, w.runID, time.Now())); err != nil {
		w.Close()
		return nil, err
	}
	log.Infow("ecc file created", "path", path, "run", w.runID, "profile", params.Profile)
	return w, nil
}

// RunID returns the generation run identifier stamped in the header.
func (w *Writer) RunID() string { return w.runID }

func (w *Writer) write(b []byte) error {
	n, err := w.w.Write(b)
	w.off += int64(n)
	return err
}

// AddFile appends one entry (replicated per the parameters) protecting
// the first ProtectedLength(size) bytes read from src. The relative
// path is recorded as-is; it must not contain the marker tokens.
func (w *Writer) AddFile(relpath string, src io.Reader, size int64) error {
	if bytes.Contains([]byte(relpath), w.format.EntryMarker) || bytes.Contains([]byte(relpath), w.format.FieldDelim) {
		return fmt.Errorf("%w: path %q contains a marker token", ErrBadParams, relpath)
	}

	entry, delims, err := w.buildEntry(relpath, src, size)
	if err != nil {
		return fmt.Errorf("eccfile: entry for %s: %w", relpath, err)
	}

	for rep := 0; rep < w.params.Replication; rep++ {
		if err := w.idx.Add(MarkerEntry, w.off); err != nil {
			return err
		}
		markerEnd := w.off + int64(len(w.format.EntryMarker))
		for _, d := range delims {
			if err := w.idx.Add(MarkerField, markerEnd+d); err != nil {
				return err
			}
		}
		if err := w.write(w.format.EntryMarker); err != nil {
			return err
		}
		if err := w.write(entry); err != nil {
			return err
		}
	}
	w.files++
	return nil
}

// buildEntry assembles the entry body (everything after the entry
// marker) and returns it with the relative offsets of its field
// delimiters for the index.
func (w *Writer) buildEntry(relpath string, src io.Reader, size int64) ([]byte, []int64, error) {
	sizeStr := strconv.FormatInt(size, 10)
	intra, err := w.intraParity(metaField(relpath, sizeStr))
	if err != nil {
		return nil, nil, err
	}

	var buf bytes.Buffer
	var delims []int64
	writeDelim := func() {
		delims = append(delims, int64(buf.Len()))
		buf.Write(w.format.FieldDelim)
	}
	buf.WriteString(relpath)
	writeDelim()
	buf.WriteString(sizeStr)
	writeDelim()
	buf.Write(intra)
	writeDelim()

	if err := w.encodeTracks(&buf, src, size); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), delims, nil
}

// encodeTracks reads the protected region of src block by block and
// appends digest+parity tracks to buf. Blocks within a batch are
// encoded in parallel; tracks are appended in block order.
func (w *Writer) encodeTracks(buf *bytes.Buffer, src io.Reader, size int64) error {
	type job struct {
		data    []byte
		msgSize int
	}
	batch := make([]job, 0, encodeBatchBlocks)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		tracks := make([][]byte, len(batch))
		g := new(errgroup.Group)
		g.SetLimit(runtime.GOMAXPROCS(0))
		for i := range batch {
			i := i
			g.Go(func() error {
				jb := batch[i]
				parity, err := w.codec.ParityK(jb.data, jb.msgSize)
				if err != nil {
					return err
				}
				tracks[i] = append(w.h.Sum(jb.data), parity...)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for _, tr := range tracks {
			buf.Write(tr)
		}
		batch = batch[:0]
		return nil
	}

	it := w.params.Blocks(size)
	for {
		b, ok := it.Next()
		if !ok {
			break
		}
		data := make([]byte, b.Length)
		if _, err := io.ReadFull(src, data); err != nil {
			return fmt.Errorf("reading block at %d: %w", b.Offset, err)
		}
		batch = append(batch, job{data: data, msgSize: b.MsgSize})
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// intraParity computes the hex-encoded parity chunks protecting the
// path+size metadata field.
func (w *Writer) intraParity(meta []byte) ([]byte, error) {
	k := intraMessageSize()
	var parity []byte
	for i := 0; i < len(meta); i += k {
		chunk := meta[i:min(i+k, len(meta))]
		p, err := w.intra.ParityK(chunk, k)
		if err != nil {
			return nil, err
		}
		parity = append(parity, p...)
	}
	out := make([]byte, hex.EncodedLen(len(parity)))
	hex.Encode(out, parity)
	return out, nil
}

// metaField is the byte string protected by the intra-field code. The
// separator splits from the right on read, so paths containing it are
// still recoverable.
func metaField(relpath, sizeStr string) []byte {
	return []byte(relpath + "|" + sizeStr)
}

// Close flushes and closes the ecc file and the index.
func (w *Writer) Close() error {
	flushErr := w.w.Flush()
	fileErr := w.f.Close()
	idxErr := w.idx.Close()
	if flushErr != nil {
		return flushErr
	}
	if fileErr != nil {
		return fileErr
	}
	return idxErr
}
