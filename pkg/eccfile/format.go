// Package eccfile reads and writes the ecc container: a text-delimited
// file holding, per protected file, a sequence of independent tracks
// (block digest + Reed-Solomon parity). The format favors survivability
// over compactness: entries are framed by explicit marker tokens rather
// than length prefixes, so a scanner can resynchronize after corruption
// without trusting any single offset, and the header is a
// human-readable comment block so the parameters can be recovered by
// eye even if this program is lost.
package eccfile

import (
	"errors"
	"fmt"
	"math"

	"github.com/bulwarkecc/bulwark/pkg/hasher"
	"github.com/bulwarkecc/bulwark/pkg/rs"
)

// Magic is the first line of every ecc file.
const Magic = "**BULWARKECCv1**\n"

// CommentPrefix starts every human-readable header line after the magic.
const CommentPrefix = "** "

// Default marker tokens. Alternating multi-byte patterns so that
// payload bytes ending with a partial pattern cannot shift the detected
// start of the next entry. They must match between generation and
// repair of the same file; they cannot be auto-detected from a
// corrupted file.
var (
	DefaultEntryMarker = []byte("\xfe\xff\xfe\xff\xfe\xff\xfe\xff\xfe\xff")
	DefaultFieldDelim  = []byte("\xfa\xff\xfa\xff\xfa")
)

var (
	// ErrBadMagic means the file does not start with the format magic.
	ErrBadMagic = errors.New("eccfile: bad magic")

	// ErrEntryCorrupt means an entry's fields could not be parsed even
	// after intra-field repair.
	ErrEntryCorrupt = errors.New("eccfile: corrupt entry")

	// ErrVerificationFailed means a repaired block does not re-hash to
	// the recorded digest; the repair is rejected.
	ErrVerificationFailed = errors.New("eccfile: repaired block failed hash verification")

	// ErrSizeMismatch means a file's current size differs from the size
	// recorded at generation time.
	ErrSizeMismatch = errors.New("eccfile: file size differs from recorded size")

	// ErrBadParams means the container parameters are invalid.
	ErrBadParams = errors.New("eccfile: invalid parameters")
)

// Format holds the token grammar of an ecc file.
type Format struct {
	EntryMarker []byte
	FieldDelim  []byte
}

// DefaultFormat returns the standard token grammar.
func DefaultFormat() Format {
	return Format{
		EntryMarker: append([]byte(nil), DefaultEntryMarker...),
		FieldDelim:  append([]byte(nil), DefaultFieldDelim...),
	}
}

// Validate checks the tokens are usable.
func (f Format) Validate() error {
	if len(f.EntryMarker) < 4 || len(f.FieldDelim) < 2 {
		return fmt.Errorf("%w: marker tokens too short", ErrBadParams)
	}
	return nil
}

// Intra-field code geometry: the path and recorded size of every entry
// carry their own parity so a flipped byte in either cannot orphan the
// whole entry. Rate 0.25 over the full GF(2^8) codeword length.
const (
	intraBlockSize = 255
	intraRate      = 0.25
)

// Params are the codec and schedule parameters of an ecc file. They are
// stamped into the comment header at generation time and must be
// identical at repair time.
type Params struct {
	Profile   rs.Profile  `yaml:"profile"`
	BlockSize int         `yaml:"block_size"` // codeword length n per track
	HashAlgo  hasher.Algo `yaml:"hash_algo"`

	// HeaderSize bounds the protected region in fixed-rate mode: only
	// the first HeaderSize bytes of each file are covered (0 = whole
	// file). In adaptive mode it is the region covered at RateS1 before
	// the schedule starts decreasing.
	HeaderSize int64 `yaml:"header_size"`

	// RateS1 is the resiliency rate (fraction of block bytes that can
	// be corrupted and still repaired) of the header region, and of the
	// whole protected region in fixed-rate mode.
	RateS1 float64 `yaml:"rate_s1"`

	// Adaptive enables the variable-rate schedule: RateS1 within the
	// header region, then a linear ramp from RateS2 down to RateS3
	// across the remainder of the file.
	Adaptive bool    `yaml:"adaptive"`
	RateS2   float64 `yaml:"rate_s2"`
	RateS3   float64 `yaml:"rate_s3"`

	// Replication writes each entry this many times in a row; the
	// reader reconciles the copies by byte-wise majority vote. 1 means
	// no replication.
	Replication int `yaml:"replication"`
}

// Validate checks parameter sanity. Rates must keep at least one
// message byte per block and the schedule must be non-increasing.
func (p Params) Validate() error {
	if !p.Profile.Valid() {
		return fmt.Errorf("%w: unknown codec profile %d", ErrBadParams, p.Profile)
	}
	if p.BlockSize < 3 || p.BlockSize > 255 {
		return fmt.Errorf("%w: block size %d outside [3,255]", ErrBadParams, p.BlockSize)
	}
	if p.HeaderSize < 0 {
		return fmt.Errorf("%w: negative header size", ErrBadParams)
	}
	if p.Replication < 1 {
		return fmt.Errorf("%w: replication %d < 1", ErrBadParams, p.Replication)
	}
	rates := []float64{p.RateS1}
	if p.Adaptive {
		if p.RateS1 < p.RateS2 || p.RateS2 < p.RateS3 {
			return fmt.Errorf("%w: adaptive rates must be non-increasing (s1 >= s2 >= s3)", ErrBadParams)
		}
		rates = append(rates, p.RateS2, p.RateS3)
	}
	for _, r := range rates {
		if MessageSize(p.BlockSize, r) < 1 {
			return fmt.Errorf("%w: rate %v leaves no message bytes in a %d-byte block", ErrBadParams, r, p.BlockSize)
		}
		if r <= 0 {
			return fmt.Errorf("%w: rate %v not positive", ErrBadParams, r)
		}
	}
	if _, err := hasher.New(p.HashAlgo); err != nil {
		return err
	}
	return nil
}

// MessageSize returns the message length k of an n-byte codeword at the
// given resiliency rate. The parity share is 2*rate of the block, so up
// to rate*n corrupted bytes per block are repairable.
func MessageSize(n int, rate float64) int {
	return n - int(math.Round(float64(n)*rate*2))
}

// intraMessageSize is the message length of the intra-field code.
func intraMessageSize() int {
	return MessageSize(intraBlockSize, intraRate)
}
