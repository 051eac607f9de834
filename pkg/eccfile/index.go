package eccfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// The companion index lists the byte offset of every marker token in
// the ecc file so structural repair can resynchronize in O(1) instead
// of rescanning. It is deliberately not error-corrected: it is cheap to
// regenerate from the ecc file, and a record whose offset turns out not
// to hold a marker is simply treated as a miss.

// IndexSuffix is appended to the ecc file path to name its index.
const IndexSuffix = ".idx"

// MarkerType tags which token an index record points at.
type MarkerType byte

const (
	MarkerEntry MarkerType = 1
	MarkerField MarkerType = 2
)

const indexRecordSize = 1 + 8

// IndexRecord is one (marker type, byte offset) pair.
type IndexRecord struct {
	Type   MarkerType
	Offset int64
}

// IndexWriter streams index records while the ecc file is generated.
type IndexWriter struct {
	f *os.File
	w *bufio.Writer
}

// NewIndexWriter creates (truncating) the index file at path.
func NewIndexWriter(path string) (*IndexWriter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &IndexWriter{f: f, w: bufio.NewWriter(f)}, nil
}

// Add appends one record.
func (iw *IndexWriter) Add(t MarkerType, offset int64) error {
	var rec [indexRecordSize]byte
	rec[0] = byte(t)
	binary.BigEndian.PutUint64(rec[1:], uint64(offset))
	_, err := iw.w.Write(rec[:])
	return err
}

// Close flushes and closes the index file.
func (iw *IndexWriter) Close() error {
	if err := iw.w.Flush(); err != nil {
		iw.f.Close()
		return err
	}
	return iw.f.Close()
}

// ReadIndex loads all records from an index file. A trailing partial
// record (truncated index) is dropped with no error; the scan fallback
// covers whatever is missing.
func ReadIndex(path string) ([]IndexRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	records := make([]IndexRecord, 0, len(data)/indexRecordSize)
	for i := 0; i+indexRecordSize <= len(data); i += indexRecordSize {
		records = append(records, IndexRecord{
			Type:   MarkerType(data[i]),
			Offset: int64(binary.BigEndian.Uint64(data[i+1 : i+indexRecordSize])),
		})
	}
	return records, nil
}

// RegenerateIndex rebuilds the index by scanning the ecc file for exact
// marker occurrences and rewrites indexPath. Returns the record count.
func RegenerateIndex(eccPath, indexPath string, format Format) (int, error) {
	if err := format.Validate(); err != nil {
		return 0, err
	}
	f, err := os.Open(eccPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	iw, err := NewIndexWriter(indexPath)
	if err != nil {
		return 0, err
	}

	tokens := []struct {
		t   MarkerType
		tok []byte
	}{
		{MarkerEntry, format.EntryMarker},
		{MarkerField, format.FieldDelim},
	}
	maxLen := len(format.EntryMarker)
	if len(format.FieldDelim) > maxLen {
		maxLen = len(format.FieldDelim)
	}

	count := 0
	buf := make([]byte, 64*1024)
	var offset int64
	for {
		n, err := f.ReadAt(buf, offset)
		if n == 0 {
			if err == io.EOF {
				break
			}
			iw.Close()
			return count, err
		}
		chunk := buf[:n]
		last := err == io.EOF
		limit := len(chunk)
		if !last {
			limit -= maxLen - 1
		}
		// The entry marker wins at a shared position; overlapping hits
		// of the same token are impossible with the default alternating
		// patterns but positions inside a found token are skipped anyway.
		skipUntil := -1
		for i := 0; i < limit; i++ {
			if i < skipUntil {
				continue
			}
			for _, tk := range tokens {
				if i+len(tk.tok) <= len(chunk) && bytes.Equal(chunk[i:i+len(tk.tok)], tk.tok) {
					if err := iw.Add(tk.t, offset+int64(i)); err != nil {
						iw.Close()
						return count, err
					}
					count++
					skipUntil = i + len(tk.tok)
					break
				}
			}
		}
		if last {
			break
		}
		offset += int64(limit)
	}
	if err := iw.Close(); err != nil {
		return count, fmt.Errorf("eccfile: closing index: %w", err)
	}
	return count, nil
}
