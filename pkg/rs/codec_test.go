package rs

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCodec(t *testing.T, n, k int, profile Profile) *Codec {
	t.Helper()
	c, err := New(n, k, profile)
	require.NoError(t, err)
	return c
}

func TestNewValidation(t *testing.T) {
	_, err := New(255, 255, ProfileBase3)
	assert.ErrorIs(t, err, ErrBadParams)

	_, err = New(256, 223, ProfileBase3)
	assert.ErrorIs(t, err, ErrBadParams)

	_, err = New(255, 0, ProfileBase3)
	assert.ErrorIs(t, err, ErrBadParams)

	_, err = New(255, 223, Profile(9))
	assert.ErrorIs(t, err, ErrBadParams)
}

func TestEncodeIsSystematic(t *testing.T) {
	c := newCodec(t, 255, 223, ProfileBase3)
	msg := []byte("systematic codes carry the message verbatim")
	code, err := c.Encode(msg)
	require.NoError(t, err)
	require.Len(t, code, 255)
	assert.Equal(t, msg, code[223-len(msg):223])
	assert.True(t, c.Check(code))
}

func TestRoundTripZeroErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, profile := range []Profile{ProfileBase3, ProfileUAT} {
		for _, geom := range [][2]int{{15, 11}, {255, 223}, {100, 50}, {27, 9}} {
			c := newCodec(t, geom[0], geom[1], profile)
			msg := make([]byte, c.K)
			rng.Read(msg)
			code, err := c.Encode(msg)
			require.NoError(t, err)

			got, parity, err := c.Decode(code, nil)
			require.NoError(t, err)
			assert.Equal(t, msg, got, "profile=%d n=%d k=%d", profile, geom[0], geom[1])
			assert.Equal(t, code[c.K:], parity)
		}
	}
}

// Scenario: RS(15,11), message [1..11], two flipped symbols anywhere in
// the codeword decode back to the original message.
func TestTwoErrorsCorrected(t *testing.T) {
	c := newCodec(t, 15, 11, ProfileBase3)
	msg := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	code, err := c.Encode(msg)
	require.NoError(t, err)

	for i := 0; i < 15; i++ {
		for j := i + 1; j < 15; j++ {
			corrupted := append([]byte(nil), code...)
			corrupted[i] ^= 0x55
			corrupted[j] ^= 0xAA
			got, _, err := c.Decode(corrupted, nil)
			require.NoError(t, err, "errors at %d,%d", i, j)
			assert.Equal(t, msg, got, "errors at %d,%d", i, j)
		}
	}
}

// Scenario: same codec, three flipped symbols exceed (n-k)/2 = 2 and
// must fail loudly instead of returning a plausible wrong message.
func TestThreeErrorsUncorrectable(t *testing.T) {
	c := newCodec(t, 15, 11, ProfileBase3)
	msg := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	code, err := c.Encode(msg)
	require.NoError(t, err)

	corrupted := append([]byte(nil), code...)
	corrupted[1] ^= 0x11
	corrupted[6] ^= 0x22
	corrupted[12] ^= 0x33

	_, _, err = c.Decode(corrupted, nil)
	assert.ErrorIs(t, err, ErrUncorrectable)
}

// With v correct erasure positions supplied and e unknown errors,
// decoding succeeds whenever 2e + v <= n-k.
func TestErasureBound(t *testing.T) {
	c := newCodec(t, 15, 11, ProfileBase3)
	msg := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	code, err := c.Encode(msg)
	require.NoError(t, err)

	// v=4 erasures, e=0: exactly at the bound.
	corrupted := append([]byte(nil), code...)
	erase := []int{0, 4, 9, 14}
	for _, p := range erase {
		corrupted[p] ^= 0xFF
	}
	got, _, err := c.Decode(corrupted, &DecodeOptions{ErasePos: erase})
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	// v=2, e=1: 2*1+2 = 4 <= 4.
	corrupted = append([]byte(nil), code...)
	corrupted[2] ^= 0x0F
	corrupted[7] ^= 0xF0
	corrupted[11] ^= 0x3C
	got, _, err = c.Decode(corrupted, &DecodeOptions{ErasePos: []int{2, 7}})
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	// v=3, e=1: 2*1+3 = 5 > 4 must fail.
	corrupted = append([]byte(nil), code...)
	for _, p := range []int{1, 5, 10} {
		corrupted[p] ^= 0x77
	}
	corrupted[13] ^= 0x44
	_, _, err = c.Decode(corrupted, &DecodeOptions{ErasePos: []int{1, 5, 10}})
	assert.ErrorIs(t, err, ErrUncorrectable)
}

func TestOnlyErasures(t *testing.T) {
	c := newCodec(t, 15, 11, ProfileBase3)
	msg := []byte{200, 201, 202, 203, 204, 205, 206, 207, 208, 209, 210}
	code, err := c.Encode(msg)
	require.NoError(t, err)

	corrupted := append([]byte(nil), code...)
	erase := []int{3, 8, 10, 12}
	for _, p := range erase {
		corrupted[p] = 0
	}
	got, _, err := c.Decode(corrupted, &DecodeOptions{ErasePos: erase, OnlyErasures: true})
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	_, _, err = c.Decode(corrupted, &DecodeOptions{ErasePos: []int{3, 8, 10, 12, 1}, OnlyErasures: true})
	assert.ErrorIs(t, err, ErrUncorrectable)
}

func TestShortenedMessagesAndStrip(t *testing.T) {
	c := newCodec(t, 255, 223, ProfileBase3)

	// Binary payload starting with zeros must survive a nostrip decode.
	msg := []byte{0, 0, 7, 8, 9}
	code, err := c.Encode(msg)
	require.NoError(t, err)
	got, _, err := c.Decode(code, nil)
	require.NoError(t, err)
	require.Len(t, got, 223)
	assert.Equal(t, msg, got[223-len(msg):])

	// With Strip set, the left padding and the payload's own leading
	// zeros are removed.
	got, _, err = c.Decode(code, &DecodeOptions{Strip: true})
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 8, 9}, got)
}

func TestVariableKSharesOneCodec(t *testing.T) {
	c := newCodec(t, 255, 223, ProfileBase3)
	rng := rand.New(rand.NewSource(3))

	for _, k := range []int{223, 191, 128, 64, 11} {
		msg := make([]byte, k)
		rng.Read(msg)
		code, err := c.EncodeK(msg, k)
		require.NoError(t, err)
		require.Len(t, code, 255)

		corrupted := append([]byte(nil), code...)
		corrupted[0] ^= 1
		corrupted[len(corrupted)-1] ^= 1
		got, _, err := c.DecodeK(corrupted, k, nil)
		require.NoError(t, err)
		assert.Equal(t, msg, got, "k=%d", k)
		assert.True(t, c.CheckK(code, k))
		assert.False(t, c.CheckK(corrupted, k))
	}
}

func TestParityMatchesEncode(t *testing.T) {
	c := newCodec(t, 15, 11, ProfileBase3)
	msg := []byte{9, 9, 9}
	code, err := c.Encode(msg)
	require.NoError(t, err)
	parity, err := c.Parity(msg)
	require.NoError(t, err)
	assert.Equal(t, code[11:], parity)
}

func TestCheckDetectsCorruption(t *testing.T) {
	c := newCodec(t, 15, 11, ProfileBase3)
	code, err := c.Encode([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11})
	require.NoError(t, err)
	assert.True(t, c.Check(code))
	code[5] ^= 1
	assert.False(t, c.Check(code))
}

func TestProfileDescriptions(t *testing.T) {
	for _, p := range []Profile{ProfileBase3, ProfileBase3Alt, ProfileBase3Fast, ProfileUAT} {
		assert.True(t, p.Valid())
		assert.NotEmpty(t, p.Description())
	}
	assert.False(t, Profile(0).Valid())
}
