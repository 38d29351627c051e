// Package lfsr provides the deterministic byte generator used to seed the
// harness memory image.
//
// The generator is a 16-bit shift register with taps at bits 0 and 3. It makes
// no claim to randomness quality. What matters is that the output is
// bit-identical to the stream the golden traces were captured against: a single
// flipped bit changes the memory image and invalidates every comparison
// downstream.
package lfsr

// DefaultSeed is the seed the reference memory image was generated from.
const DefaultSeed uint16 = 0xFFFF

const (
	tapMask       = 0x0009 // bits 0 and 3
	foldShift     = 3
	feedbackShift = 15
	byteBits      = 8
)

// Generator produces a reproducible bit and byte stream from a 16-bit seed.
//
// A Generator is not safe for concurrent use. Each harness owns its own.
type Generator struct {
	seed uint16
}

// New creates a generator starting from seed.
func New(seed uint16) *Generator {
	return &Generator{seed: seed}
}

// NewDefault creates a generator starting from DefaultSeed.
func NewDefault() *Generator {
	return New(DefaultSeed)
}

// Seed returns the current register state.
func (g *Generator) Seed() uint16 {
	return g.seed
}

// NextBit advances the register by one position and returns the new low bit.
func (g *Generator) NextBit() uint8 {
	tap := g.seed & tapMask
	tap ^= tap >> foldShift
	g.seed = (g.seed >> 1) | (tap << feedbackShift)
	return uint8(g.seed & 1)
}

// NextByte packs the next eight bits, most significant bit first.
func (g *Generator) NextByte() uint8 {
	var b uint8
	for i := 0; i < byteBits; i++ {
		b = (b << 1) | g.NextBit()
	}
	return b
}

// Fill writes successive bytes into dst.
func (g *Generator) Fill(dst []byte) {
	for i := range dst {
		dst[i] = g.NextByte()
	}
}
