package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/stepcheck/internal/fixture"
	"github.com/roach88/stepcheck/internal/harness"
	"github.com/roach88/stepcheck/internal/testutil"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// runReport runs the reference fixture through the replay unit, optionally
// wrapped by a fault.
func runReport(t *testing.T, wrap func(harness.Unit) harness.Unit) *harness.Report {
	t.Helper()
	g := fixture.Default()
	var unit harness.Unit = testutil.MustReplayUnit(g)
	if wrap != nil {
		unit = wrap(unit)
	}
	h, err := harness.New(unit, g)
	if err != nil {
		t.Fatalf("harness.New() failed: %v", err)
	}
	report, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	return report
}
