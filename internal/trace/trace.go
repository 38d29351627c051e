// Package trace matches the memory writes of a unit under test against an
// ordered golden sequence of (address, value) pairs.
//
// The matcher is a single forward cursor. A matching write advances it; a
// mismatching write raises a divergence flag and leaves it in place. The
// final entry is a sentinel which, once reached, accepts every later write.
package trace

import (
	"errors"
	"fmt"
)

// ErrMalformedTrace is returned when a golden trace cannot be used.
var ErrMalformedTrace = errors.New("malformed trace")

// Entry is one expected write. The sentinel uses 0xFFFF for both fields,
// which is why Value is wider than a byte.
type Entry struct {
	Address uint16 `json:"address"`
	Value   uint16 `json:"value"`
}

// Sentinel terminates every golden trace.
var Sentinel = Entry{Address: 0xFFFF, Value: 0xFFFF}

// IsSentinel reports whether e is the end-of-trace marker.
func (e Entry) IsSentinel() bool {
	return e == Sentinel
}

// Matches reports whether a write of value to addr is the expected one.
func (e Entry) Matches(addr uint16, value uint8) bool {
	return e.Address == addr && e.Value == uint16(value)
}

// Mode selects how the matcher treats writes after a divergence.
type Mode int

const (
	// ModeStrict stops comparing for the rest of the step once a write
	// diverged. The cursor never moves past an unmatched entry.
	ModeStrict Mode = iota

	// ModeResync searches a bounded window ahead of the cursor for the
	// write and, on a hit, skips the entries in between.
	ModeResync
)

// DefaultWindow is the number of entries ModeResync looks ahead.
const DefaultWindow = 8

// MaxWindow bounds the resync look-ahead.
const MaxWindow = 64

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeStrict:
		return "strict"
	case ModeResync:
		return "resync"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode converts a configuration name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "strict":
		return ModeStrict, nil
	case "resync":
		return ModeResync, nil
	default:
		return ModeStrict, fmt.Errorf("unknown trace mode %q (want strict or resync)", s)
	}
}

// Divergence is the first mismatching write seen since the flag was last
// cleared.
type Divergence struct {
	// Expected is the entry at the cursor when the write arrived.
	Expected Entry `json:"expected"`

	// ActualAddress and ActualValue are the write the unit performed.
	ActualAddress uint16 `json:"actual_address"`
	ActualValue   uint8  `json:"actual_value"`

	// Cursor is the index of Expected in the trace.
	Cursor int `json:"cursor"`

	// Resynced is true when resync mode found the write further ahead.
	Resynced bool `json:"resynced,omitempty"`
}
