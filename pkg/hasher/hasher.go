// Package hasher provides the fixed-size block digests stored inside
// ecc tracks. Every algorithm must have a constant output size so the
// container can compute track boundaries without length prefixes.
package hasher

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrUnknownAlgo is returned for an unsupported digest algorithm.
var ErrUnknownAlgo = errors.New("hasher: unknown algorithm")

// Algo names a supported digest algorithm.
type Algo string

const (
	// MD5 is the default track digest: 32 hex characters, short enough
	// to keep the per-track overhead low and human-inspectable inside
	// the text-delimited ecc file.
	MD5 Algo = "md5"

	// SHA1 trades 8 more bytes per track for a stronger digest.
	SHA1 Algo = "sha1"

	// None disables hashing (size 0); used for intra-field codes where
	// the RS check itself decides whether repair is needed.
	None Algo = "none"
)

// Hasher computes fixed-size hex digests of message blocks.
type Hasher struct {
	algo Algo
}

// New returns a Hasher for the named algorithm.
func New(algo Algo) (*Hasher, error) {
	switch algo {
	case MD5, SHA1, None:
		return &Hasher{algo: algo}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgo, algo)
	}
}

// Algo returns the configured algorithm.
func (h *Hasher) Algo() Algo { return h.algo }

// Size returns the digest length in bytes. It is constant per
// algorithm; the container relies on this to slice tracks.
func (h *Hasher) Size() int {
	switch h.algo {
	case MD5:
		return 2 * md5.Size
	case SHA1:
		return 2 * sha1.Size
	default:
		return 0
	}
}

// Sum returns the hex-encoded digest of block.
func (h *Hasher) Sum(block []byte) []byte {
	switch h.algo {
	case MD5:
		d := md5.Sum(block)
		return hexBytes(d[:])
	case SHA1:
		d := sha1.Sum(block)
		return hexBytes(d[:])
	default:
		return nil
	}
}

func hexBytes(d []byte) []byte {
	out := make([]byte, hex.EncodedLen(len(d)))
	hex.Encode(out, d)
	return out
}
