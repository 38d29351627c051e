package testutil

import (
	"fmt"

	"github.com/roach88/stepcheck/internal/fixture"
	"github.com/roach88/stepcheck/internal/harness"
)

// ReplayUnit is a harness.Unit that plays a golden trace back.
//
// On each step it performs the golden writes the schedule assigns to that
// step, then exposes the golden snapshot as its registers. A harness run
// against a ReplayUnit of an unmodified fixture always passes.
type ReplayUnit struct {
	golden *fixture.Golden
	bus    harness.Bus
	step   int
	next   int
	regs   []uint32
}

// NewReplayUnit returns a unit for golden. The fixture must carry a schedule.
func NewReplayUnit(golden *fixture.Golden) (*ReplayUnit, error) {
	if len(golden.Schedule) == 0 {
		return nil, fmt.Errorf("fixture %q has no schedule to replay", golden.Name)
	}
	return &ReplayUnit{golden: golden}, nil
}

// MustReplayUnit is like NewReplayUnit but panics on error.
func MustReplayUnit(golden *fixture.Golden) *ReplayUnit {
	u, err := NewReplayUnit(golden)
	if err != nil {
		panic(err)
	}
	return u
}

// BindMemory implements harness.Unit.
func (u *ReplayUnit) BindMemory(bus harness.Bus) {
	u.bus = bus
}

// Step implements harness.Unit. Past the end of the trace the unit holds
// its last state.
func (u *ReplayUnit) Step() {
	if u.step >= len(u.golden.Snapshots) {
		return
	}
	for n := u.golden.Schedule[u.step]; n > 0; n-- {
		w := u.golden.Writes[u.next]
		u.bus.Write(w.Address, uint8(w.Value))
		u.next++
	}
	u.regs = u.golden.Snapshots[u.step].Registers
	u.step++
}

// ReadRegister implements harness.Unit. Registers read zero before the
// first step.
func (u *ReplayUnit) ReadRegister(index int) uint32 {
	if index < 0 || index >= len(u.regs) {
		return 0
	}
	return u.regs[index]
}

// NumRegisters implements harness.Unit.
func (u *ReplayUnit) NumRegisters() int {
	return len(u.golden.Layout)
}
