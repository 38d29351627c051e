package trace

import "fmt"

// Option configures a Matcher.
type Option func(*Matcher)

// WithMode sets the divergence mode. The default is ModeStrict.
func WithMode(mode Mode) Option {
	return func(m *Matcher) {
		m.mode = mode
	}
}

// WithWindow sets the resync look-ahead. Values outside 1..MaxWindow are
// clamped.
func WithWindow(n int) Option {
	return func(m *Matcher) {
		switch {
		case n < 1:
			n = 1
		case n > MaxWindow:
			n = MaxWindow
		}
		m.window = n
	}
}

// Matcher compares writes against a golden trace.
//
// Matcher is not safe for concurrent use.
type Matcher struct {
	entries []Entry
	end     int // index of the sentinel

	cursor   int
	score    int
	skipped  int
	diverged bool
	first    Divergence

	mode   Mode
	window int
}

// NewMatcher validates entries and returns a matcher positioned at the first
// one. The slice is copied.
func NewMatcher(entries []Entry, opts ...Option) (*Matcher, error) {
	if err := Validate(entries); err != nil {
		return nil, err
	}

	m := &Matcher{
		entries: append([]Entry(nil), entries...),
		end:     len(entries) - 1,
		mode:    ModeStrict,
		window:  DefaultWindow,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Validate checks that entries end in exactly one sentinel and that every
// other value fits in a byte.
func Validate(entries []Entry) error {
	if len(entries) == 0 {
		return fmt.Errorf("%w: empty trace", ErrMalformedTrace)
	}
	last := len(entries) - 1
	for i, e := range entries {
		if e.IsSentinel() {
			if i != last {
				return fmt.Errorf("%w: sentinel at index %d, want %d", ErrMalformedTrace, i, last)
			}
			continue
		}
		if e.Value > 0xFF {
			return fmt.Errorf("%w: entry %d value 0x%x exceeds a byte", ErrMalformedTrace, i, e.Value)
		}
	}
	if !entries[last].IsSentinel() {
		return fmt.Errorf("%w: missing sentinel", ErrMalformedTrace)
	}
	return nil
}

// CheckWrite compares one write against the entry at the cursor and
// reports whether it was accepted.
func (m *Matcher) CheckWrite(addr uint16, value uint8) bool {
	if m.cursor == m.end {
		return true
	}
	if m.diverged && m.mode == ModeStrict {
		return true
	}

	want := m.entries[m.cursor]
	if want.Matches(addr, value) {
		m.score++
		m.cursor++
		return true
	}

	at := m.cursor
	resynced := false
	if m.mode == ModeResync {
		if j, ok := m.lookAhead(addr, value); ok {
			m.skipped += j - m.cursor
			m.score++
			m.cursor = j + 1
			resynced = true
		}
	}

	if !m.diverged {
		m.diverged = true
		m.first = Divergence{
			Expected:      want,
			ActualAddress: addr,
			ActualValue:   value,
			Cursor:        at,
			Resynced:      resynced,
		}
	}
	return false
}

// lookAhead returns the index of the first entry after the cursor, within
// the window and before the sentinel, that matches the write.
func (m *Matcher) lookAhead(addr uint16, value uint8) (int, bool) {
	limit := m.cursor + m.window
	if limit > m.end-1 {
		limit = m.end - 1
	}
	for j := m.cursor + 1; j <= limit; j++ {
		if m.entries[j].Matches(addr, value) {
			return j, true
		}
	}
	return 0, false
}

// Suspended reports whether writes currently bypass comparison. Only a
// strict matcher with a raised flag is suspended.
func (m *Matcher) Suspended() bool {
	return m.diverged && m.mode == ModeStrict
}

// Diverged reports whether a mismatch was seen since the last clear.
func (m *Matcher) Diverged() bool {
	return m.diverged
}

// Divergence returns the first mismatch since the last clear.
func (m *Matcher) Divergence() (Divergence, bool) {
	return m.first, m.diverged
}

// ClearDivergence lowers the flag. The cursor is left where it is.
func (m *Matcher) ClearDivergence() {
	m.diverged = false
	m.first = Divergence{}
}

// Cursor returns the index of the next expected entry.
func (m *Matcher) Cursor() int { return m.cursor }

// Score returns the number of writes matched so far.
func (m *Matcher) Score() int { return m.score }

// Skipped returns the number of entries passed over by resync.
func (m *Matcher) Skipped() int { return m.skipped }

// Exhausted reports whether the cursor is at the sentinel.
func (m *Matcher) Exhausted() bool { return m.cursor == m.end }

// Len returns the number of entries including the sentinel.
func (m *Matcher) Len() int { return len(m.entries) }

// Mode returns the configured mode.
func (m *Matcher) Mode() Mode { return m.mode }

// Window returns the resync look-ahead.
func (m *Matcher) Window() int { return m.window }
