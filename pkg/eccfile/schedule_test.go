package eccfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bulwarkecc/bulwark/pkg/hasher"
	"github.com/bulwarkecc/bulwark/pkg/rs"
)

func fixedParams() Params {
	return Params{
		Profile:     rs.ProfileBase3,
		BlockSize:   255,
		HashAlgo:    hasher.MD5,
		RateS1:      0.2,
		Replication: 1,
	}
}

func adaptiveParams() Params {
	p := fixedParams()
	p.Adaptive = true
	p.HeaderSize = 1024
	p.RateS1 = 0.3
	p.RateS2 = 0.2
	p.RateS3 = 0.1
	return p
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, fixedParams().Validate())
	require.NoError(t, adaptiveParams().Validate())

	p := fixedParams()
	p.RateS1 = 0.5 // leaves no message bytes
	assert.ErrorIs(t, p.Validate(), ErrBadParams)

	p = adaptiveParams()
	p.RateS2 = 0.4 // schedule would increase after the header region
	assert.ErrorIs(t, p.Validate(), ErrBadParams)

	p = fixedParams()
	p.Replication = 0
	assert.ErrorIs(t, p.Validate(), ErrBadParams)
}

func TestMessageSize(t *testing.T) {
	// parity share is twice the rate: a 0.2 rate on 255 bytes keeps
	// 153 message bytes and can repair up to 51 corrupted bytes.
	assert.Equal(t, 153, MessageSize(255, 0.2))
	assert.Equal(t, 255-128, MessageSize(255, 0.25))
}

func TestScheduleFixedRate(t *testing.T) {
	p := fixedParams()
	assert.Equal(t, p.RateS1, p.RateAt(0, 10000))
	assert.Equal(t, p.RateS1, p.RateAt(9000, 10000))
	assert.Equal(t, int64(10000), p.ProtectedLength(10000))

	p.HeaderSize = 1000
	assert.Equal(t, int64(1000), p.ProtectedLength(10000))
	assert.Equal(t, int64(500), p.ProtectedLength(500))
}

func TestScheduleAdaptiveMonotone(t *testing.T) {
	p := adaptiveParams()
	const fileSize = 100_000
	prev := p.RateAt(0, fileSize)
	assert.Equal(t, p.RateS1, prev)
	for off := int64(0); off < fileSize; off += 997 {
		r := p.RateAt(off, fileSize)
		assert.LessOrEqual(t, r, prev, "rate increased at offset %d", off)
		assert.GreaterOrEqual(t, r, p.RateS3)
		prev = r
	}
	// Whole file is protected in adaptive mode.
	assert.Equal(t, int64(fileSize), p.ProtectedLength(fileSize))
}

func TestBlocksCoverProtectedRegion(t *testing.T) {
	for _, p := range []Params{fixedParams(), adaptiveParams()} {
		for _, size := range []int64{0, 1, 152, 153, 459, 100_000} {
			var covered int64
			it := p.Blocks(size)
			for {
				b, ok := it.Next()
				if !ok {
					break
				}
				assert.Equal(t, covered, b.Offset)
				assert.Greater(t, b.MsgSize, 0)
				assert.LessOrEqual(t, b.Length, b.MsgSize)
				covered += int64(b.MsgSize)
				if b.Length < b.MsgSize {
					covered = b.Offset + int64(b.Length)
				}
			}
			assert.Equal(t, p.ProtectedLength(size), covered, "size=%d adaptive=%v", size, p.Adaptive)
		}
	}
}

func TestTrackRegionSize(t *testing.T) {
	p := fixedParams()
	h, err := hasher.New(p.HashAlgo)
	require.NoError(t, err)
	// 3 full blocks of 153 bytes: 3 tracks of 32+102 bytes.
	assert.Equal(t, int64(3*(32+102)), p.TrackRegionSize(459, h.Size()))
	assert.Equal(t, int64(0), p.TrackRegionSize(0, h.Size()))
}
