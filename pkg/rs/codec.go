// Package rs implements a systematic Reed-Solomon codec with combined
// error and erasure decoding over GF(2^8). Codewords are n bytes: the
// message in the high-degree positions followed by n-k parity bytes.
// The correcting power follows the Singleton relation 2e + v <= n-k for
// e errors at unknown positions and v supplied erasures.
package rs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bulwarkecc/bulwark/pkg/gf"
)

var (
	// ErrBadParams means an invalid (n, k) geometry or profile.
	ErrBadParams = errors.New("rs: invalid codec parameters")

	// ErrUncorrectable means the corruption exceeds the Singleton bound
	// and the codeword cannot be decoded. Callers are expected to catch
	// this per block and degrade, never to abort a whole run.
	ErrUncorrectable = errors.New("rs: too many errors to correct")
)

// Codec encodes and decodes one (n, k) Reed-Solomon geometry. A Codec
// is safe for concurrent use; the generator polynomial cache is the
// only shared mutable state and is build-once, read-many.
type Codec struct {
	N   int
	K   int
	FCR int

	ft *gf.FieldTables

	mu   sync.RWMutex
	gens map[int][]int // parity length -> generator polynomial
}

// New creates a codec for the given geometry using a parameter profile.
func New(n, k int, profile Profile) (*Codec, error) {
	ft, err := profile.Field()
	if err != nil {
		return nil, err
	}
	_, _, fcr, _ := profile.FieldParams()
	return NewWithField(n, k, fcr, ft)
}

// NewWithField creates a codec over an explicitly constructed field.
// Multiple codecs may share one FieldTables.
func NewWithField(n, k, fcr int, ft *gf.FieldTables) (*Codec, error) {
	if n < 3 || n > ft.Order() {
		return nil, fmt.Errorf("%w: n=%d must be in [3, %d]", ErrBadParams, n, ft.Order())
	}
	if k < 1 || k >= n {
		return nil, fmt.Errorf("%w: k=%d must be in [1, n-1] for n=%d", ErrBadParams, k, n)
	}
	return &Codec{N: n, K: k, FCR: fcr, ft: ft, gens: make(map[int][]int)}, nil
}

// Field returns the codec's field tables.
func (c *Codec) Field() *gf.FieldTables { return c.ft }

// generator returns the cached generator polynomial for nsym parity
// symbols: g(x) = prod_{i=0}^{nsym-1} (x - alpha^(fcr+i)). Building it
// is the expensive part of variable-rate encoding, so it is memoized.
func (c *Codec) generator(nsym int) []int {
	c.mu.RLock()
	g, ok := c.gens[nsym]
	c.mu.RUnlock()
	if ok {
		return g
	}

	g = []int{1}
	for i := 0; i < nsym; i++ {
		g = c.ft.PolyMul(g, []int{1, c.ft.Exp(c.FCR + i)})
	}

	c.mu.Lock()
	if cached, ok := c.gens[nsym]; ok {
		g = cached
	} else {
		c.gens[nsym] = g
	}
	c.mu.Unlock()
	return g
}

// Encode encodes msg with the codec's default message length and
// returns the full n-byte codeword, msg left-padded with zeros if
// shorter than k.
func (c *Codec) Encode(msg []byte) ([]byte, error) {
	return c.EncodeK(msg, c.K)
}

// EncodeK encodes msg against an explicit message length k (same n).
// Variable-rate container blocks use this to shorten the code per
// block without rebuilding the codec.
func (c *Codec) EncodeK(msg []byte, k int) ([]byte, error) {
	parity, err := c.ParityK(msg, k)
	if err != nil {
		return nil, err
	}
	out := make([]byte, c.N)
	copy(out[k-len(msg):c.N-len(parity)], msg)
	copy(out[c.N-len(parity):], parity)
	return out, nil
}

// Parity returns only the n-k parity bytes for msg.
func (c *Codec) Parity(msg []byte) ([]byte, error) {
	return c.ParityK(msg, c.K)
}

// ParityK returns only the parity bytes for msg against message length
// k. The parity of a shortened message equals the parity of the
// zero-padded one, so no explicit padding is needed here.
func (c *Codec) ParityK(msg []byte, k int) ([]byte, error) {
	if k < 1 || k >= c.N {
		return nil, fmt.Errorf("%w: k=%d out of range for n=%d", ErrBadParams, k, c.N)
	}
	if len(msg) > k {
		return nil, fmt.Errorf("%w: message length %d exceeds k=%d", ErrBadParams, len(msg), k)
	}
	nsym := c.N - k

	// Multiply the message by x^nsym, then the parity is the remainder
	// of division by g(x). The additive inverse under XOR is the value
	// itself, so the remainder is used as-is.
	dividend := make([]int, len(msg)+nsym)
	for i, b := range msg {
		dividend[i] = int(b)
	}
	rem := c.ft.PolySynthRem(dividend, c.generator(nsym))

	parity := make([]byte, nsym)
	for i, v := range rem {
		parity[i] = byte(v)
	}
	return parity, nil
}

// DecodeOptions controls Decode behavior.
type DecodeOptions struct {
	// ErasePos lists symbol positions (0-based from the left of the
	// codeword) known in advance to be wrong.
	ErasePos []int

	// OnlyErasures skips the error-locator search and treats ErasePos
	// as the complete errata set.
	OnlyErasures bool

	// Strip removes leading zero bytes from the decoded message. Leave
	// it false for binary payloads so padding is never confused with
	// data.
	Strip bool
}

// Check reports whether data is a valid codeword under the codec's
// default geometry: all recomputed syndromes are zero. A true result
// only certifies validity up to the Singleton bound; a false result is
// a definitive corruption signal.
func (c *Codec) Check(data []byte) bool {
	return c.CheckK(data, c.K)
}

// CheckK is Check with an explicit message length.
func (c *Codec) CheckK(data []byte, k int) bool {
	if k < 1 || k >= c.N || len(data) <= c.N-k {
		return false
	}
	return allZero(c.syndromes(toInts(data), c.N-k))
}

// Decode decodes a received codeword (message followed by parity) and
// returns the corrected message and parity. Corruption beyond
// 2e + v <= n-k fails with ErrUncorrectable; a wrong message is never
// silently returned.
func (c *Codec) Decode(data []byte, opts *DecodeOptions) (msg, parity []byte, err error) {
	return c.DecodeK(data, c.K, opts)
}

// DecodeK is Decode with an explicit message length.
func (c *Codec) DecodeK(data []byte, k int, opts *DecodeOptions) (msg, parity []byte, err error) {
	if opts == nil {
		opts = &DecodeOptions{}
	}
	if k < 1 || k >= c.N {
		return nil, nil, fmt.Errorf("%w: k=%d out of range for n=%d", ErrBadParams, k, c.N)
	}
	nsym := c.N - k
	if len(data) <= nsym {
		return nil, nil, fmt.Errorf("%w: codeword of %d bytes has no message for nsym=%d", ErrBadParams, len(data), nsym)
	}
	if len(data) > c.N {
		return nil, nil, fmt.Errorf("%w: codeword length %d exceeds n=%d", ErrBadParams, len(data), c.N)
	}
	for _, p := range opts.ErasePos {
		if p < 0 || p >= len(data) {
			return nil, nil, fmt.Errorf("%w: erasure position %d outside codeword", ErrBadParams, p)
		}
	}
	if len(opts.ErasePos) > nsym {
		return nil, nil, fmt.Errorf("%w: %d erasures exceed n-k=%d", ErrUncorrectable, len(opts.ErasePos), nsym)
	}

	word := toInts(data)
	synd := c.syndromes(word, nsym)
	if allZero(synd) {
		return c.split(word, nsym, opts.Strip)
	}

	var errata []int
	if opts.OnlyErasures {
		errata = append(errata, opts.ErasePos...)
	} else {
		fsynd := c.forneySyndromes(synd, opts.ErasePos, len(word))
		errLoc, err := c.berlekampMassey(fsynd)
		if err != nil {
			return nil, nil, err
		}
		errPos := c.chienSearch(errLoc, len(word))
		if errPos == nil {
			return nil, nil, fmt.Errorf("%w: could not locate errors", ErrUncorrectable)
		}
		errata = append(append(errata, opts.ErasePos...), errPos...)
	}

	if err := c.correctErrata(word, synd, errata); err != nil {
		return nil, nil, err
	}
	if !allZero(c.syndromes(word, nsym)) {
		return nil, nil, fmt.Errorf("%w: correction did not converge", ErrUncorrectable)
	}
	return c.split(word, nsym, opts.Strip)
}

// syndromes evaluates the received word at alpha^(fcr+j) for
// j = 0..nsym-1. The result keeps its fixed length of nsym entries even
// when some are structurally zero.
func (c *Codec) syndromes(word []int, nsym int) []int {
	s := make([]int, nsym)
	for j := 0; j < nsym; j++ {
		s[j] = c.ft.PolyEval(word, c.ft.Exp(c.FCR+j))
	}
	return s
}

// forneySyndromes folds the supplied erasure positions into the
// syndromes so that Berlekamp-Massey only has to locate the remaining
// unknown errors.
func (c *Codec) forneySyndromes(synd, erasePos []int, nmess int) []int {
	fsynd := append([]int(nil), synd...)
	for _, p := range erasePos {
		x := c.ft.Exp(nmess - 1 - p)
		for i := 0; i < len(fsynd)-1; i++ {
			fsynd[i] = c.ft.Mul(fsynd[i], x) ^ fsynd[i+1]
		}
		fsynd = fsynd[:len(fsynd)-1]
	}
	return fsynd
}

// berlekampMassey computes the error locator polynomial from the
// (erasure-adjusted) syndromes.
func (c *Codec) berlekampMassey(synd []int) ([]int, error) {
	errLoc := []int{1}
	oldLoc := []int{1}

	for i := 0; i < len(synd); i++ {
		oldLoc = append(oldLoc, 0)
		delta := synd[i]
		for j := 1; j < len(errLoc); j++ {
			delta ^= c.ft.Mul(errLoc[len(errLoc)-1-j], synd[i-j])
		}
		if delta == 0 {
			continue
		}
		if len(oldLoc) > len(errLoc) {
			newLoc := c.ft.PolyScale(oldLoc, delta)
			inv, err := c.ft.Inverse(delta)
			if err != nil {
				return nil, err
			}
			oldLoc = c.ft.PolyScale(errLoc, inv)
			errLoc = newLoc
		}
		errLoc = gf.PolyAdd(errLoc, c.ft.PolyScale(oldLoc, delta))
	}

	errLoc = gf.PolyTrim(errLoc)
	errCount := len(errLoc) - 1
	if errCount*2 > len(synd) {
		return nil, fmt.Errorf("%w: locator degree %d exceeds remaining budget %d", ErrUncorrectable, errCount, len(synd))
	}
	return errLoc, nil
}

// chienSearch finds the roots of the error locator by evaluating it at
// every codeword position. It returns nil when the number of found
// roots does not match the locator's degree, which means decoding must
// fail rather than guess.
func (c *Codec) chienSearch(errLoc []int, nmess int) []int {
	want := len(errLoc) - 1
	var pos []int
	for i := 0; i < nmess; i++ {
		if c.ft.PolyEval(errLoc, c.ft.Exp(c.ft.Order()-i)) == 0 {
			pos = append(pos, nmess-1-i)
		}
	}
	if len(pos) != want {
		return nil
	}
	return pos
}

// correctErrata applies the Forney algorithm to compute the error
// magnitude at each errata position and XOR-corrects the word in place.
func (c *Codec) correctErrata(word, synd, pos []int) error {
	// Errata locator from the known positions.
	loc := []int{1}
	for _, p := range pos {
		x := c.ft.Exp(len(word) - 1 - p)
		loc = c.ft.PolyMul(loc, []int{x, 1})
	}

	// Errata evaluator: (syndromes * locator) truncated to len(pos).
	if len(pos) > len(synd) {
		return fmt.Errorf("%w: %d errata exceed syndrome budget %d", ErrUncorrectable, len(pos), len(synd))
	}
	eval := make([]int, len(pos))
	for i := 0; i < len(pos); i++ {
		eval[i] = synd[len(pos)-1-i]
	}
	eval = c.ft.PolyMul(eval, loc)
	eval = eval[len(eval)-len(pos):]

	// The formal derivative of the locator keeps only odd-power terms.
	deriv := make([]int, 0, len(loc)/2)
	for i := len(loc) & 1; i < len(loc); i += 2 {
		deriv = append(deriv, loc[i])
	}

	for _, p := range pos {
		x := c.ft.Exp(p + c.ft.Size() - len(word))
		xp := c.ft.Exp((len(word) - 1 - p) * (1 - c.FCR))
		y := c.ft.Mul(c.ft.PolyEval(eval, x), xp)
		z := c.ft.PolyEval(deriv, c.ft.Mul(x, x))
		mag, err := c.ft.Div(y, z)
		if err != nil {
			return fmt.Errorf("%w: locator derivative vanished at position %d", ErrUncorrectable, p)
		}
		word[p] ^= mag
	}
	return nil
}

func (c *Codec) split(word []int, nsym int, strip bool) (msg, parity []byte, err error) {
	msgInts := word[:len(word)-nsym]
	if strip {
		msgInts = gf.PolyTrim(msgInts)
	}
	return toBytes(msgInts), toBytes(word[len(word)-nsym:]), nil
}

func toInts(b []byte) []int {
	r := make([]int, len(b))
	for i, v := range b {
		r[i] = int(v)
	}
	return r
}

func toBytes(p []int) []byte {
	r := make([]byte, len(p))
	for i, v := range p {
		r[i] = byte(v)
	}
	return r
}

func allZero(p []int) bool {
	for _, v := range p {
		if v != 0 {
			return false
		}
	}
	return true
}
