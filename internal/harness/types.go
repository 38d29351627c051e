package harness

import (
	"slices"

	"github.com/roach88/stepcheck/internal/canon"
	"github.com/roach88/stepcheck/internal/trace"
)

// RegisterSet maps register names to masked values.
type RegisterSet map[string]uint32

// StepDiagnostic describes the first failing step of a run.
type StepDiagnostic struct {
	Step int `json:"step"`

	// PC is the program counter before the step ran. Opcode is the byte at
	// PC once the step has completed.
	PC     uint16 `json:"pc"`
	Opcode uint8  `json:"opcode"`

	Expected RegisterSet `json:"expected"`
	Actual   RegisterSet `json:"actual"`

	// Mismatched names the registers that differed. Empty when only
	// memory diverged.
	Mismatched []string `json:"mismatched,omitempty"`

	// ExpectedOpcode and ActualOpcode are the bytes under the expected and
	// actual program counters after the step.
	ExpectedOpcode uint8 `json:"expected_opcode"`
	ActualOpcode   uint8 `json:"actual_opcode"`
}

// WriteDivergence is the first unexpected write of a failing step.
type WriteDivergence struct {
	Step          int         `json:"step"`
	Expected      trace.Entry `json:"expected"`
	ActualAddress uint16      `json:"actual_address"`
	ActualValue   uint8       `json:"actual_value"`
	Cursor        int         `json:"cursor"`
	Resynced      bool        `json:"resynced,omitempty"`
}

// Report is the outcome of a step suite.
type Report struct {
	Fixture       string `json:"fixture"`
	FixtureDigest string `json:"fixture_digest"`
	Mode          string `json:"mode"`

	// Pass is true only when every step passed and the run was not aborted.
	Pass      bool `json:"pass"`
	PassCount int  `json:"pass_count"`
	StepCount int  `json:"step_count"`
	StepsRun  int  `json:"steps_run"`
	Aborted   bool `json:"aborted,omitempty"`

	FailedSteps  []int           `json:"failed_steps,omitempty"`
	FirstFailure *StepDiagnostic `json:"first_failure,omitempty"`

	MemoryDivergences []WriteDivergence `json:"memory_divergences,omitempty"`

	// WritesMatched is the trace score. TraceLength excludes the sentinel.
	WritesMatched int  `json:"writes_matched"`
	TraceLength   int  `json:"trace_length"`
	Cursor        int  `json:"cursor"`
	Skipped       int  `json:"skipped,omitempty"`
	Exhausted     bool `json:"exhausted"`
}

// Digest returns the canonical content digest of the report.
func (r *Report) Digest() string {
	return canon.MustDigest(canon.DomainReport, r)
}

// Failed reports whether step is among the failed steps.
func (r *Report) Failed(step int) bool {
	return slices.Contains(r.FailedSteps, step)
}
