package fixture

import (
	"fmt"

	"github.com/roach88/stepcheck/internal/lfsr"
	"github.com/roach88/stepcheck/internal/memory"
)

// Inconsistency is a step whose golden opcode is not the byte found under
// the golden program counter after replaying the schedule.
type Inconsistency struct {
	Step int    `json:"step"`
	PC   uint16 `json:"pc"`
	Want uint8  `json:"want"`
	Got  uint8  `json:"got"`
}

func (i Inconsistency) String() string {
	return fmt.Sprintf("step %d: opcode at %04x is %02x, fixture says %02x", i.Step, i.PC, i.Got, i.Want)
}

// CheckConsistency replays the golden writes over the seeded image,
// step by step according to the schedule, and reports every step whose
// recorded opcode disagrees with memory. It fails when the fixture has no
// schedule.
func CheckConsistency(g *Golden) ([]Inconsistency, error) {
	if len(g.Schedule) == 0 {
		return nil, fmt.Errorf("%w: fixture %q has no schedule", ErrInvalidFixture, g.Name)
	}

	mem := memory.New(lfsr.New(g.Seed))
	next := 0
	var bad []Inconsistency
	for step, n := range g.Schedule {
		for ; n > 0; n-- {
			w := g.Writes[next]
			mem.Write(w.Address, uint8(w.Value))
			next++
		}
		pc := g.PC(step)
		if got := mem.Read(pc); got != g.Snapshots[step].Opcode {
			bad = append(bad, Inconsistency{Step: step, PC: pc, Want: g.Snapshots[step].Opcode, Got: got})
		}
	}
	return bad, nil
}
