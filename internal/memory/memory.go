// Package memory implements the instrumented address space the unit under
// test runs against.
package memory

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/roach88/stepcheck/internal/lfsr"
)

// Size is the full 16-bit address space.
const Size = 0x10000

// Tracer receives writes for comparison against a golden trace.
type Tracer interface {
	// Suspended reports whether writes should bypass comparison.
	Suspended() bool

	// CheckWrite compares one write. The result is informational only;
	// memory stores the byte regardless.
	CheckWrite(addr uint16, value uint8) bool
}

// Memory is a 64 KiB byte array seeded from a generator.
//
// Reads are never traced. Writes are always stored, then forwarded to the
// attached tracer unless it is suspended.
type Memory struct {
	cells  [Size]uint8
	tracer Tracer
}

// New allocates memory and seeds every address, in address order, from gen.
func New(gen *lfsr.Generator) *Memory {
	m := &Memory{}
	gen.Fill(m.cells[:])
	return m
}

// Attach sets the tracer that receives writes. A nil tracer disables tracing.
func (m *Memory) Attach(t Tracer) {
	m.tracer = t
}

// Read returns the byte stored at addr.
func (m *Memory) Read(addr uint16) uint8 {
	return m.cells[addr]
}

// Write stores value at addr and forwards it to the tracer.
func (m *Memory) Write(addr uint16, value uint8) {
	m.cells[addr] = value
	if m.tracer == nil || m.tracer.Suspended() {
		return
	}
	m.tracer.CheckWrite(addr, value)
}

// Bytes returns a copy of the whole image.
func (m *Memory) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, m.cells[:])
	return out
}

// Digest returns the hex SHA-256 of the current image.
func (m *Memory) Digest() string {
	sum := sha256.Sum256(m.cells[:])
	return hex.EncodeToString(sum[:])
}
