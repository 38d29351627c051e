package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/stepcheck/internal/fixture"
	"github.com/roach88/stepcheck/internal/lfsr"
	"github.com/roach88/stepcheck/internal/memory"
	"github.com/roach88/stepcheck/internal/trace"
)

var (
	// ErrStepCountMismatch is returned when the configured step count
	// differs from the number of golden snapshots.
	ErrStepCountMismatch = errors.New("step count does not match golden snapshots")

	// ErrRegisterIndex is returned when the register layout names an index
	// the unit does not expose.
	ErrRegisterIndex = errors.New("register layout exceeds unit registers")

	// ErrAlreadyRun is returned by a second call to Run.
	ErrAlreadyRun = errors.New("harness already run")
)

// Option configures a Harness.
type Option func(*options)

type options struct {
	logger *slog.Logger
	mode   trace.Mode
	window int
	steps  int
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMode sets the write-trace mode.
func WithMode(mode trace.Mode) Option {
	return func(o *options) {
		o.mode = mode
	}
}

// WithResyncWindow sets the look-ahead used by trace.ModeResync.
func WithResyncWindow(n int) Option {
	return func(o *options) {
		o.window = n
	}
}

// WithSteps sets the expected step count. It must equal the number of
// golden snapshots.
func WithSteps(n int) Option {
	return func(o *options) {
		o.steps = n
	}
}

// Harness drives one unit through one golden trace.
//
// A Harness is single-use and not safe for concurrent use.
type Harness struct {
	unit    Unit
	golden  *fixture.Golden
	mem     *memory.Memory
	matcher *trace.Matcher
	logger  *slog.Logger
	steps   int
	ran     bool
}

// New builds seeded memory and the write matcher, and binds memory to the
// unit. It fails fast on configuration that could never pass.
func New(unit Unit, golden *fixture.Golden, opts ...Option) (*Harness, error) {
	if unit == nil {
		return nil, fmt.Errorf("harness: unit is required")
	}
	if golden == nil {
		return nil, fmt.Errorf("harness: golden trace is required")
	}

	o := options{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		mode:   trace.ModeStrict,
		window: trace.DefaultWindow,
		steps:  golden.Steps(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.steps != golden.Steps() {
		return nil, fmt.Errorf("%w: configured %d, golden %q has %d",
			ErrStepCountMismatch, o.steps, golden.Name, golden.Steps())
	}
	if n := unit.NumRegisters(); len(golden.Layout) > n {
		return nil, fmt.Errorf("%w: layout needs index %d, unit exposes %d",
			ErrRegisterIndex, len(golden.Layout)-1, n)
	}

	matcher, err := trace.NewMatcher(golden.Writes,
		trace.WithMode(o.mode),
		trace.WithWindow(o.window),
	)
	if err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}

	mem := memory.New(lfsr.New(golden.Seed))
	mem.Attach(matcher)
	unit.BindMemory(mem)

	return &Harness{
		unit:    unit,
		golden:  golden,
		mem:     mem,
		matcher: matcher,
		logger:  o.logger,
		steps:   o.steps,
	}, nil
}

// Memory returns the instrumented memory bound to the unit.
func (h *Harness) Memory() *memory.Memory {
	return h.mem
}

// Run executes every golden step and returns the aggregated report.
//
// Divergences are recorded in the report, never returned as errors. The
// context is checked between steps; on cancellation the partial report is
// returned, marked aborted, together with ctx.Err().
func (h *Harness) Run(ctx context.Context) (*Report, error) {
	if h.ran {
		return nil, ErrAlreadyRun
	}
	h.ran = true

	report := &Report{
		Fixture:       h.golden.Name,
		FixtureDigest: h.golden.Digest(),
		Mode:          h.matcher.Mode().String(),
		StepCount:     h.steps,
		TraceLength:   h.matcher.Len() - 1,
	}

	h.logger.Info("step suite started",
		"fixture", report.Fixture,
		"steps", h.steps,
		"mode", report.Mode,
	)

	var runErr error
	for step := 0; step < h.steps; step++ {
		if err := ctx.Err(); err != nil {
			report.Aborted = true
			runErr = err
			h.logger.Warn("step suite aborted", "step", step, "error", err)
			break
		}
		h.runStep(step, report)
		report.StepsRun++
	}

	report.WritesMatched = h.matcher.Score()
	report.Cursor = h.matcher.Cursor()
	report.Skipped = h.matcher.Skipped()
	report.Exhausted = h.matcher.Exhausted()
	report.Pass = report.PassCount == report.StepCount && !report.Aborted

	if report.Pass {
		h.logger.Info("step suite passed",
			"pass", report.PassCount,
			"writes_matched", report.WritesMatched,
		)
	} else {
		h.logger.Error("step suite failed",
			"pass", report.PassCount,
			"steps", report.StepCount,
			"writes_matched", report.WritesMatched,
		)
	}
	return report, runErr
}

func (h *Harness) runStep(step int, report *Report) {
	pcIndex := h.golden.PCIndex()
	pc := uint16(h.unit.ReadRegister(pcIndex) & 0xFFFF)

	h.unit.Step()
	// Read after the step so a write to the instruction's own address shows.
	opcode := h.mem.Read(pc)

	ok := true
	if d, diverged := h.matcher.Divergence(); diverged {
		ok = false
		h.logger.Warn("unexpected memory access",
			"step", step,
			"expected_addr", fmt.Sprintf("%04x", d.Expected.Address),
			"expected_value", fmt.Sprintf("%02x", d.Expected.Value),
			"actual_addr", fmt.Sprintf("%04x", d.ActualAddress),
			"actual_value", fmt.Sprintf("%02x", d.ActualValue),
			"cursor", d.Cursor,
		)
		report.MemoryDivergences = append(report.MemoryDivergences, WriteDivergence{
			Step:          step,
			Expected:      d.Expected,
			ActualAddress: d.ActualAddress,
			ActualValue:   d.ActualValue,
			Cursor:        d.Cursor,
			Resynced:      d.Resynced,
		})
		h.matcher.ClearDivergence()
	}

	want := h.golden.Snapshots[step]
	expected := make(RegisterSet, len(h.golden.Layout))
	actual := make(RegisterSet, len(h.golden.Layout))
	var mismatched []string
	for i, reg := range h.golden.Layout {
		e := want.Registers[i] & reg.Mask
		a := h.unit.ReadRegister(i) & reg.Mask
		expected[reg.Name] = e
		actual[reg.Name] = a
		if e != a {
			mismatched = append(mismatched, reg.Name)
		}
	}
	if len(mismatched) > 0 {
		ok = false
	}

	h.logger.Debug("step",
		"step", step,
		"pc", fmt.Sprintf("%04x", pc),
		"opcode", fmt.Sprintf("%02x", opcode),
		"ok", ok,
	)

	if ok {
		report.PassCount++
		return
	}
	report.FailedSteps = append(report.FailedSteps, step)
	if report.FirstFailure != nil {
		return
	}

	actualPC := uint16(actual[fixture.PCRegister])
	report.FirstFailure = &StepDiagnostic{
		Step:           step,
		PC:             pc,
		Opcode:         opcode,
		Expected:       expected,
		Actual:         actual,
		Mismatched:     mismatched,
		ExpectedOpcode: h.mem.Read(h.golden.PC(step)),
		ActualOpcode:   h.mem.Read(actualPC),
	}
	h.logger.Info("step failed",
		"step", step,
		"pc", fmt.Sprintf("%04x", pc),
		"opcode", fmt.Sprintf("%02x", opcode),
		"registers", mismatched,
	)
}
