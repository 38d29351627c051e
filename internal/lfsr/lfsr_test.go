package lfsr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// referencePrefix is the start of the reference memory image (addresses 0x0000-0x000F).
var referencePrefix = []byte{
	0xff, 0xfe, 0x00, 0x0e, 0x00, 0x7e, 0x03, 0x8e,
	0x1f, 0xfe, 0xe0, 0x09, 0xe0, 0x46, 0xe2, 0x71,
}

func TestNextByte_FirstByteMatchesReferenceImage(t *testing.T) {
	g := NewDefault()
	assert.Equal(t, uint8(0xff), g.NextByte())
}

func TestNextByte_ReferencePrefix(t *testing.T) {
	g := NewDefault()
	got := make([]byte, len(referencePrefix))
	g.Fill(got)
	assert.Equal(t, referencePrefix, got)
}

func TestNextBit_FirstSteps(t *testing.T) {
	g := NewDefault()

	// 0xFFFF: tap = 0x9, folded to 0x8, bit 15 injected as 0.
	assert.Equal(t, uint8(1), g.NextBit())
	assert.Equal(t, uint16(0x7FFF), g.Seed())

	// 0x7FFF: same taps, high bit stays clear.
	assert.Equal(t, uint8(1), g.NextBit())
	assert.Equal(t, uint16(0x3FFF), g.Seed())
}

func TestNextBit_ZeroSeedIsFixedPoint(t *testing.T) {
	g := New(0)
	for i := 0; i < 64; i++ {
		require.Equal(t, uint8(0), g.NextBit())
	}
	assert.Equal(t, uint16(0), g.Seed())
}

func TestNextBit_PeriodFromDefaultSeed(t *testing.T) {
	g := NewDefault()
	n := 0
	for {
		g.NextBit()
		n++
		if g.Seed() == DefaultSeed {
			break
		}
		require.Less(t, n, 1<<16, "register never returned to its seed")
	}
	assert.Equal(t, 57337, n)
}

func TestDeterminism(t *testing.T) {
	a := make([]byte, 4096)
	b := make([]byte, 4096)
	New(0xACE1).Fill(a)
	New(0xACE1).Fill(b)
	assert.Equal(t, a, b)

	c := make([]byte, 4096)
	New(0xACE2).Fill(c)
	assert.NotEqual(t, a, c)
}

func TestNextByte_PacksMSBFirst(t *testing.T) {
	bits := New(0x1234)
	bytes := New(0x1234)

	var want uint8
	for i := 0; i < 8; i++ {
		want = want<<1 | bits.NextBit()
	}
	assert.Equal(t, want, bytes.NextByte())
	assert.Equal(t, bits.Seed(), bytes.Seed())
}
