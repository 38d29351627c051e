package harness_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stepcheck/internal/fixture"
	"github.com/roach88/stepcheck/internal/harness"
	"github.com/roach88/stepcheck/internal/testutil"
	"github.com/roach88/stepcheck/internal/trace"
)

func replay(t *testing.T, g *fixture.Golden) *testutil.ReplayUnit {
	t.Helper()
	u, err := testutil.NewReplayUnit(g)
	require.NoError(t, err)
	return u
}

func run(t *testing.T, unit harness.Unit, g *fixture.Golden, opts ...harness.Option) *harness.Report {
	t.Helper()
	h, err := harness.New(unit, g, opts...)
	require.NoError(t, err)
	report, err := h.Run(context.Background())
	require.NoError(t, err)
	return report
}

func TestRun_FullPass(t *testing.T) {
	g := fixture.Default()
	report := run(t, replay(t, g), g)

	assert.True(t, report.Pass)
	assert.Equal(t, 256, report.PassCount)
	assert.Equal(t, 256, report.StepCount)
	assert.Equal(t, 256, report.StepsRun)
	assert.Nil(t, report.FirstFailure)
	assert.Empty(t, report.FailedSteps)
	assert.Empty(t, report.MemoryDivergences)
	assert.Equal(t, 55, report.WritesMatched)
	assert.Equal(t, 55, report.TraceLength)
	assert.Equal(t, 55, report.Cursor)
	assert.True(t, report.Exhausted)
	assert.Equal(t, "strict", report.Mode)
	assert.Equal(t, g.Digest(), report.FixtureDigest)
	assert.Equal(t, "cpu6502-random-256", report.Fixture)
}

func TestRun_Deterministic(t *testing.T) {
	g := fixture.Default()
	first := run(t, testutil.NewSpuriousWrite(replay(t, g), 10, 0x2000, 0xaa), g)
	second := run(t, testutil.NewSpuriousWrite(replay(t, g), 10, 0x2000, 0xaa), g)

	assert.Equal(t, first.Digest(), second.Digest())
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("reports differ (-first +second):\n%s", diff)
	}

	clean := run(t, replay(t, g), g)
	assert.NotEqual(t, first.Digest(), clean.Digest())
}

func TestRun_RegisterFault(t *testing.T) {
	g := fixture.Default()
	report := run(t, testutil.NewRegisterFault(replay(t, g), 20, 2, 0x42), g)

	assert.False(t, report.Pass)
	assert.Equal(t, 255, report.PassCount)
	assert.Equal(t, []int{20}, report.FailedSteps)
	assert.Empty(t, report.MemoryDivergences)

	want := &harness.StepDiagnostic{
		Step:   20,
		PC:     0xfa73,
		Opcode: 0x47,
		Expected: harness.RegisterSet{
			"a": 0x27, "b": 0x00, "x": 0x79, "y": 0xfd,
			"z": 0x00, "p": 0x94, "s": 0xfd, "pc": 0xfa74,
		},
		Actual: harness.RegisterSet{
			"a": 0x27, "b": 0x00, "x": 0x42, "y": 0xfd,
			"z": 0x00, "p": 0x94, "s": 0xfd, "pc": 0xfa74,
		},
		Mismatched:     []string{"x"},
		ExpectedOpcode: 0xb6,
		ActualOpcode:   0xb6,
	}
	if diff := cmp.Diff(want, report.FirstFailure); diff != "" {
		t.Errorf("diagnostic mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_EachStepFaultIsIsolated(t *testing.T) {
	g := fixture.Default()
	for _, step := range []int{0, 1, 2, 83, 128, 255} {
		report := run(t, testutil.NewRegisterFault(replay(t, g), step, 0, 0x1ff), g)
		assert.Equal(t, 255, report.PassCount, "step %d", step)
		assert.Equal(t, []int{step}, report.FailedSteps)
		require.NotNil(t, report.FirstFailure)
		assert.Equal(t, step, report.FirstFailure.Step)
	}
}

func TestRun_MaskedComparison(t *testing.T) {
	g := fixture.Default()
	require.Equal(t, uint32(0x16), g.Snapshots[5].Registers[0])

	report := run(t, testutil.NewRegisterFault(replay(t, g), 5, 0, 0x116), g)
	assert.True(t, report.Pass, "0x116 and 0x16 agree under the 8-bit mask")
}

func TestRun_ProgramCounterUsesWideMask(t *testing.T) {
	g := fixture.Default()
	pc := g.Snapshots[30].Registers[7]

	report := run(t, testutil.NewRegisterFault(replay(t, g), 30, 7, pc|0x10000), g)
	assert.True(t, report.Pass)

	report = run(t, testutil.NewRegisterFault(replay(t, g), 30, 7, pc^0x0100), g)
	assert.False(t, report.Pass)
	assert.Equal(t, []string{"pc"}, report.FirstFailure.Mismatched)
}

func TestRun_SpuriousWriteStrict(t *testing.T) {
	g := fixture.Default()
	report := run(t, testutil.NewSpuriousWrite(replay(t, g), 10, 0x2000, 0xaa), g)

	assert.Equal(t, 255, report.PassCount)
	assert.Equal(t, []int{10}, report.FailedSteps)
	require.Len(t, report.MemoryDivergences, 1)
	assert.Equal(t, harness.WriteDivergence{
		Step:          10,
		Expected:      trace.Entry{Address: 0x6b03, Value: 0x00},
		ActualAddress: 0x2000,
		ActualValue:   0xaa,
		Cursor:        6,
	}, report.MemoryDivergences[0])
	assert.Equal(t, 55, report.WritesMatched, "cursor held and realigned at step 13")
	assert.True(t, report.Exhausted)

	require.NotNil(t, report.FirstFailure)
	assert.Empty(t, report.FirstFailure.Mismatched)
}

func TestRun_OpcodeReadAfterStep(t *testing.T) {
	g := fixture.Default()
	pc := g.PC(9)
	report := run(t, testutil.NewSpuriousWrite(replay(t, g), 10, pc, 0xaa), g)

	require.NotNil(t, report.FirstFailure)
	assert.Equal(t, 10, report.FirstFailure.Step)
	assert.Equal(t, pc, report.FirstFailure.PC)
	assert.Equal(t, uint8(0xaa), report.FirstFailure.Opcode, "step overwrote its own instruction byte")
}

func TestRun_SpuriousWriteInWritingStep(t *testing.T) {
	g := fixture.Default()

	strict := run(t, testutil.NewSpuriousWrite(replay(t, g), 13, 0x2000, 0xaa), g)
	assert.Equal(t, 208, strict.PassCount)
	assert.Equal(t, 6, strict.Cursor, "the golden write of step 13 passed unseen")
	assert.False(t, strict.Exhausted)
	assert.Len(t, strict.FailedSteps, 48)

	resync := run(t, testutil.NewSpuriousWrite(replay(t, g), 13, 0x2000, 0xaa), g,
		harness.WithMode(trace.ModeResync))
	assert.Equal(t, 255, resync.PassCount)
	assert.Equal(t, []int{13}, resync.FailedSteps)
	assert.Equal(t, 55, resync.WritesMatched)
	assert.Equal(t, "resync", resync.Mode)
}

func TestRun_DroppedWrite(t *testing.T) {
	g := fixture.Default()

	strict := run(t, testutil.NewDroppedWrite(replay(t, g), 16, 0), g)
	assert.Equal(t, 210, strict.PassCount)
	assert.False(t, strict.Failed(16), "a missing write is seen at the next write")
	assert.Equal(t, 26, strict.FailedSteps[0])
	assert.Equal(t, 7, strict.Cursor)

	resync := run(t, testutil.NewDroppedWrite(replay(t, g), 16, 0), g,
		harness.WithMode(trace.ModeResync))
	assert.Equal(t, 255, resync.PassCount)
	assert.Equal(t, []int{26}, resync.FailedSteps)
	assert.Equal(t, 54, resync.WritesMatched)
	assert.Equal(t, 1, resync.Skipped)
	assert.True(t, resync.MemoryDivergences[0].Resynced)
	assert.True(t, resync.Exhausted)
}

func TestRun_ResyncWindowOfOne(t *testing.T) {
	g := fixture.Default()

	// Step 2 writes entries 1..3. Dropping entry 1 leaves entry 2 one ahead.
	report := run(t, testutil.NewDroppedWrite(replay(t, g), 2, 0), g,
		harness.WithMode(trace.ModeResync), harness.WithResyncWindow(1))
	assert.Equal(t, 255, report.PassCount)
	assert.Equal(t, 1, report.Skipped)
}

func TestRun_SentinelIsSticky(t *testing.T) {
	g := fixture.Default()
	// Step 252 performs the last golden write; later writes hit the sentinel.
	report := run(t, testutil.NewSpuriousWrite(replay(t, g), 253, 0x0100, 0x99), g)

	assert.True(t, report.Pass)
	assert.Equal(t, 55, report.Cursor)
}

func TestRun_ContextCancelled(t *testing.T) {
	g := fixture.Default()
	ctx, cancel := context.WithCancel(context.Background())

	unit := &cancelAfter{Unit: replay(t, g), steps: 101, cancel: cancel}
	h, err := harness.New(unit, g)
	require.NoError(t, err)

	report, err := h.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.True(t, report.Aborted)
	assert.False(t, report.Pass)
	assert.Equal(t, 101, report.StepsRun)
	assert.Equal(t, 101, report.PassCount)
}

func TestRun_AlreadyRun(t *testing.T) {
	g := fixture.Default()
	h, err := harness.New(replay(t, g), g)
	require.NoError(t, err)

	_, err = h.Run(context.Background())
	require.NoError(t, err)
	_, err = h.Run(context.Background())
	assert.ErrorIs(t, err, harness.ErrAlreadyRun)
}

func TestNew_Errors(t *testing.T) {
	g := fixture.Default()

	_, err := harness.New(replay(t, g), g, harness.WithSteps(258))
	assert.True(t, errors.Is(err, harness.ErrStepCountMismatch))

	_, err = harness.New(&narrowUnit{Unit: replay(t, g)}, g)
	assert.True(t, errors.Is(err, harness.ErrRegisterIndex))

	_, err = harness.New(nil, g)
	assert.Error(t, err)

	_, err = harness.New(replay(t, g), nil)
	assert.Error(t, err)

	_, err = harness.New(replay(t, g), g, harness.WithSteps(256))
	assert.NoError(t, err)
}

func TestNew_SeedsMemory(t *testing.T) {
	g := fixture.Default()
	h, err := harness.New(replay(t, g), g)
	require.NoError(t, err)

	assert.Equal(t, uint8(0xff), h.Memory().Read(0))
	assert.Equal(t, "152961ffec6b887118e2fee136e569c2d7aa26943f9c9640e35f330e98e1512c", h.Memory().Digest())
}

func TestRun_Logging(t *testing.T) {
	g := fixture.Default()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	run(t, testutil.NewSpuriousWrite(replay(t, g), 10, 0x2000, 0xaa), g, harness.WithLogger(logger))

	out := buf.String()
	assert.Contains(t, out, "unexpected memory access")
	assert.Contains(t, out, "expected_addr=6b03")
	assert.Contains(t, out, "actual_addr=2000")
	assert.Contains(t, out, "step suite failed")
	assert.NotContains(t, out, "level=DEBUG")
}

func TestRun_Golden(t *testing.T) {
	g := fixture.Default()
	resync := harness.WithMode(trace.ModeResync)

	tests := []struct {
		name string
		unit func() harness.Unit
		opts []harness.Option
	}{
		{"full_pass", func() harness.Unit { return replay(t, g) }, nil},
		{"register_fault", func() harness.Unit { return testutil.NewRegisterFault(replay(t, g), 20, 2, 0x42) }, nil},
		{"pc_fault", func() harness.Unit { return testutil.NewRegisterFault(replay(t, g), 30, 7, 0x1234) }, nil},
		{"spurious_write_strict", func() harness.Unit { return testutil.NewSpuriousWrite(replay(t, g), 10, 0x2000, 0xaa) }, nil},
		{"spurious_write_resync", func() harness.Unit { return testutil.NewSpuriousWrite(replay(t, g), 13, 0x2000, 0xaa) }, []harness.Option{resync}},
		{"dropped_write_strict", func() harness.Unit { return testutil.NewDroppedWrite(replay(t, g), 16, 0) }, nil},
		{"dropped_write_resync", func() harness.Unit { return testutil.NewDroppedWrite(replay(t, g), 16, 0) }, []harness.Option{resync}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			harness.AssertGolden(t, tt.name, run(t, tt.unit(), g, tt.opts...))
		})
	}
}

// cancelAfter cancels its context once the wrapped unit has run steps steps.
type cancelAfter struct {
	harness.Unit
	steps  int
	done   int
	cancel context.CancelFunc
}

func (c *cancelAfter) Step() {
	c.Unit.Step()
	c.done++
	if c.done == c.steps {
		c.cancel()
	}
}

// narrowUnit exposes one register fewer than the layout needs.
type narrowUnit struct {
	harness.Unit
}

func (n *narrowUnit) NumRegisters() int { return n.Unit.NumRegisters() - 1 }
