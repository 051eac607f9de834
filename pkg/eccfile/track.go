package eccfile

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/bulwarkecc/bulwark/pkg/hasher"
	"github.com/bulwarkecc/bulwark/pkg/rs"
)

// TrackStatus is the per-block outcome of a repair pass. Partial
// recovery is a first-class result: a run never reduces to a bare
// success or failure boolean.
type TrackStatus int

const (
	// TrackValid: the block's digest matches, no repair needed.
	TrackValid TrackStatus = iota

	// TrackRepaired: the block was decoded and the repair re-hashed to
	// the recorded digest.
	TrackRepaired

	// TrackUnrepairable: corruption exceeds the correctable bound, or a
	// computed repair failed re-hash verification. The caller keeps the
	// corrupted input bytes for this block.
	TrackUnrepairable
)

func (s TrackStatus) String() string {
	switch s {
	case TrackValid:
		return "valid"
	case TrackRepaired:
		return "repaired"
	case TrackUnrepairable:
		return "unrepairable"
	default:
		return fmt.Sprintf("TrackStatus(%d)", int(s))
	}
}

// RepairBlock checks one block against its track and repairs it when
// the digest does not match. The returned slice is the block to commit:
// the input block itself when valid or unrepairable, or the verified
// repaired bytes. An unverified repair candidate is never returned;
// the error then wraps ErrVerificationFailed or rs.ErrUncorrectable and
// the status is TrackUnrepairable.
func RepairBlock(codec *rs.Codec, h *hasher.Hasher, block, digest, parity []byte, msgSize int) ([]byte, TrackStatus, error) {
	if bytes.Equal(h.Sum(block), digest) {
		return block, TrackValid, nil
	}

	word := make([]byte, 0, len(block)+len(parity))
	word = append(word, block...)
	word = append(word, parity...)
	repaired, _, err := codec.DecodeK(word, msgSize, nil)
	if err != nil {
		if errors.Is(err, rs.ErrUncorrectable) {
			return block, TrackUnrepairable, err
		}
		return block, TrackUnrepairable, fmt.Errorf("eccfile: block decode: %w", err)
	}
	if !bytes.Equal(h.Sum(repaired), digest) {
		// The decode converged on a codeword, but not the one the block
		// was generated from. Keep the corrupted input.
		return block, TrackUnrepairable, fmt.Errorf("%w (block at parity length %d)", ErrVerificationFailed, len(parity))
	}
	return repaired, TrackRepaired, nil
}
