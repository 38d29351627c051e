package cli

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/stepcheck/internal/fixture"
	"github.com/roach88/stepcheck/internal/harness"
	"github.com/roach88/stepcheck/internal/testutil"
)

// faultSpec holds the raw --inject-*/--drop-write flag values.
type faultSpec struct {
	registers []string // step:register:value
	writes    []string // step:address:value
	drops     []string // step:n
}

// wrapFaults wraps unit with every requested fault: register faults
// innermost, then extra writes, then dropped writes.
func wrapFaults(unit harness.Unit, golden *fixture.Golden, faults faultSpec) (harness.Unit, error) {
	names := golden.RegisterNames()
	for _, raw := range faults.registers {
		parts, err := splitFault(raw, 3, "step:register:value")
		if err != nil {
			return nil, err
		}
		step, err := parseStep(parts[0], golden)
		if err != nil {
			return nil, fmt.Errorf("--inject-register %q: %w", raw, err)
		}
		index := slices.Index(names, parts[1])
		if index < 0 {
			return nil, fmt.Errorf("--inject-register %q: unknown register %q (have %s)",
				raw, parts[1], strings.Join(names, ","))
		}
		value, err := strconv.ParseUint(parts[2], 0, 32)
		if err != nil {
			return nil, fmt.Errorf("--inject-register %q: value: %w", raw, err)
		}
		unit = testutil.NewRegisterFault(unit, step, index, uint32(value))
	}

	for _, raw := range faults.writes {
		parts, err := splitFault(raw, 3, "step:address:value")
		if err != nil {
			return nil, err
		}
		step, err := parseStep(parts[0], golden)
		if err != nil {
			return nil, fmt.Errorf("--inject-write %q: %w", raw, err)
		}
		addr, err := strconv.ParseUint(parts[1], 0, 16)
		if err != nil {
			return nil, fmt.Errorf("--inject-write %q: address: %w", raw, err)
		}
		value, err := strconv.ParseUint(parts[2], 0, 8)
		if err != nil {
			return nil, fmt.Errorf("--inject-write %q: value: %w", raw, err)
		}
		unit = testutil.NewSpuriousWrite(unit, step, uint16(addr), uint8(value))
	}

	for _, raw := range faults.drops {
		parts, err := splitFault(raw, 2, "step:n")
		if err != nil {
			return nil, err
		}
		step, err := parseStep(parts[0], golden)
		if err != nil {
			return nil, fmt.Errorf("--drop-write %q: %w", raw, err)
		}
		nth, err := strconv.Atoi(parts[1])
		if err != nil || nth < 0 {
			return nil, fmt.Errorf("--drop-write %q: n must be a non-negative integer", raw)
		}
		unit = testutil.NewDroppedWrite(unit, step, nth)
	}

	return unit, nil
}

func splitFault(raw string, n int, form string) ([]string, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != n {
		return nil, fmt.Errorf("fault %q: want %s", raw, form)
	}
	return parts, nil
}

func parseStep(s string, golden *fixture.Golden) (int, error) {
	step, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("step: %w", err)
	}
	if step < 0 || step >= golden.Steps() {
		return 0, fmt.Errorf("step %d out of range [0, %d)", step, golden.Steps())
	}
	return step, nil
}
