package eccfile

// The resiliency-rate schedule is a pure function of (byte offset, file
// size, params): it is recomputed identically at generation and repair
// time and never stored per block, so the format's critical metadata
// stays minimal.

// Block describes one protected block of a file.
type Block struct {
	Offset  int64 // byte offset of the block in the original file
	MsgSize int   // message length k at this offset
	Length  int   // actual bytes in this block (< MsgSize only at EOF)
}

// ParitySize returns the parity length of this block's track.
func (b Block) ParitySize(blockSize int) int {
	return blockSize - b.MsgSize
}

// ProtectedLength returns how many leading bytes of a file the schedule
// covers. Fixed-rate mode with a header size bounds protection to that
// prefix; adaptive mode always covers the whole file.
func (p Params) ProtectedLength(fileSize int64) int64 {
	if !p.Adaptive && p.HeaderSize > 0 && fileSize > p.HeaderSize {
		return p.HeaderSize
	}
	return fileSize
}

// RateAt returns the resiliency rate for the block starting at the
// given byte offset. Within the header region the rate is RateS1; in
// adaptive mode the remainder ramps linearly from RateS2 down to
// RateS3 by offset, clamped so the schedule never increases.
func (p Params) RateAt(offset, fileSize int64) float64 {
	if !p.Adaptive || offset < p.HeaderSize {
		return p.RateS1
	}
	span := fileSize - p.HeaderSize
	if span <= 0 {
		return p.RateS1
	}
	x := float64(offset-p.HeaderSize) / float64(span)
	rate := p.RateS2 + x*(p.RateS3-p.RateS2)
	if rate < p.RateS3 {
		rate = p.RateS3
	}
	if rate > p.RateS2 {
		rate = p.RateS2
	}
	return rate
}

// BlockIter walks the blocks of one file under the schedule. Block
// boundaries depend on the per-offset message size, so iteration is the
// only way to enumerate them.
type BlockIter struct {
	p         Params
	fileSize  int64
	protected int64
	off       int64
}

// Blocks returns an iterator over the protected blocks of a file.
func (p Params) Blocks(fileSize int64) *BlockIter {
	return &BlockIter{p: p, fileSize: fileSize, protected: p.ProtectedLength(fileSize)}
}

// Next returns the next block, or ok=false when the protected region is
// exhausted.
func (it *BlockIter) Next() (Block, bool) {
	if it.off >= it.protected {
		return Block{}, false
	}
	k := MessageSize(it.p.BlockSize, it.p.RateAt(it.off, it.fileSize))
	length := k
	if rem := it.protected - it.off; rem < int64(k) {
		length = int(rem)
	}
	b := Block{Offset: it.off, MsgSize: k, Length: length}
	it.off += int64(k)
	return b, true
}

// TrackRegionSize returns the total byte length of the track region of
// an entry for a file of the given size (digests plus parity for every
// block). The reader uses it to bound the entry without trusting any
// stored length.
func (p Params) TrackRegionSize(fileSize int64, hashSize int) int64 {
	var total int64
	it := p.Blocks(fileSize)
	for {
		b, ok := it.Next()
		if !ok {
			return total
		}
		total += int64(hashSize + b.ParitySize(p.BlockSize))
	}
}
