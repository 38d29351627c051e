package testutil

import (
	"fmt"
	"sync"
)

// FixedIDGenerator returns run IDs in a fixed sequence.
//
// The IDs are shaped like UUIDv7 strings so they sort the same way real IDs
// do. The same generator state always yields the same IDs.
//
// Thread-safety: Generate is safe for concurrent use.
type FixedIDGenerator struct {
	mu sync.Mutex
	n  int
}

// NewFixedIDGenerator creates a generator whose first ID ends in 1.
func NewFixedIDGenerator() *FixedIDGenerator {
	return &FixedIDGenerator{}
}

// Generate returns the next ID. Implements store.IDGenerator.
func (g *FixedIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("00000000-0000-7000-8000-%012d", g.n)
}
