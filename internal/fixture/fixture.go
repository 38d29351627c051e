// Package fixture loads golden traces: the per-step register snapshots and
// the ordered memory-write sequence of a reference run.
package fixture

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/stepcheck/internal/canon"
	"github.com/roach88/stepcheck/internal/trace"
)

// ErrInvalidFixture is returned for fixtures that fail validation.
var ErrInvalidFixture = errors.New("invalid fixture")

// Version is the only fixture format version understood.
const Version = 1

//go:embed data/cpu6502_random.yaml
var defaultYAML []byte

// Register describes one visible register of the unit.
type Register struct {
	Name string `json:"name"`

	// Mask is applied to both sides before comparison.
	Mask uint32 `json:"mask"`
}

// knownRegisters maps register names to their comparison width.
var knownRegisters = map[string]uint32{
	"a":  0xFF,
	"b":  0xFF,
	"x":  0xFF,
	"y":  0xFF,
	"z":  0xFF,
	"p":  0xFF,
	"s":  0xFF,
	"pc": 0xFFFF,
}

// PCRegister is the name of the program counter.
const PCRegister = "pc"

// Snapshot is the expected register state after one step, plus the opcode
// byte the reference observed under the new program counter.
type Snapshot struct {
	Registers []uint32 `json:"registers"`
	Opcode    uint8    `json:"opcode"`
}

// Golden is a validated golden trace.
type Golden struct {
	Version   int           `json:"version"`
	Name      string        `json:"name"`
	Seed      uint16        `json:"seed"`
	Layout    []Register    `json:"layout"`
	Snapshots []Snapshot    `json:"snapshots"`
	Writes    []trace.Entry `json:"writes"`

	// Schedule is the number of golden writes the reference performed in
	// each step. Comparison never reads it; replay does.
	Schedule []int `json:"schedule,omitempty"`

	pcIndex int
}

// file is the on-disk YAML shape.
type file struct {
	Version   int        `yaml:"version"`
	Name      string     `yaml:"name"`
	Steps     int        `yaml:"steps"`
	Seed      uint16     `yaml:"seed"`
	Registers []string   `yaml:"registers"`
	Snapshots [][]uint32 `yaml:"snapshots"`
	Writes    [][]uint32 `yaml:"writes"`
	Schedule  []int      `yaml:"schedule"`
}

// Default returns the embedded reference fixture.
func Default() *Golden {
	g, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded fixture: %v", err))
	}
	return g
}

// DefaultYAML returns a copy of the embedded fixture source.
func DefaultYAML() []byte {
	return bytes.Clone(defaultYAML)
}

// Load reads and validates a fixture file.
func Load(path string) (*Golden, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates fixture YAML. Unknown fields are rejected.
func Parse(data []byte) (*Golden, error) {
	var f file
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %w", ErrInvalidFixture, err)
	}

	g, err := build(&f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFixture, err)
	}
	return g, nil
}

func build(f *file) (*Golden, error) {
	if f.Version != Version {
		return nil, fmt.Errorf("unsupported version %d (want %d)", f.Version, Version)
	}
	if f.Name == "" {
		return nil, fmt.Errorf("name is required")
	}

	g := &Golden{Version: f.Version, Name: f.Name, Seed: f.Seed, pcIndex: -1}

	seen := make(map[string]bool, len(f.Registers))
	for i, name := range f.Registers {
		mask, ok := knownRegisters[name]
		if !ok {
			return nil, fmt.Errorf("registers[%d]: unknown register %q", i, name)
		}
		if seen[name] {
			return nil, fmt.Errorf("registers[%d]: duplicate register %q", i, name)
		}
		seen[name] = true
		if name == PCRegister {
			g.pcIndex = i
		}
		g.Layout = append(g.Layout, Register{Name: name, Mask: mask})
	}
	if g.pcIndex < 0 {
		return nil, fmt.Errorf("registers must include %q", PCRegister)
	}

	if len(f.Snapshots) == 0 {
		return nil, fmt.Errorf("at least one snapshot is required")
	}
	if f.Steps != 0 && f.Steps != len(f.Snapshots) {
		return nil, fmt.Errorf("steps is %d but %d snapshots are given", f.Steps, len(f.Snapshots))
	}
	width := len(g.Layout) + 1
	for i, row := range f.Snapshots {
		if len(row) != width {
			return nil, fmt.Errorf("snapshots[%d]: %d values, want %d", i, len(row), width)
		}
		snap := Snapshot{Registers: make([]uint32, len(g.Layout))}
		for r, reg := range g.Layout {
			if row[r] > reg.Mask {
				return nil, fmt.Errorf("snapshots[%d]: %s value 0x%x out of range", i, reg.Name, row[r])
			}
			snap.Registers[r] = row[r]
		}
		op := row[width-1]
		if op > 0xFF {
			return nil, fmt.Errorf("snapshots[%d]: opcode 0x%x out of range", i, op)
		}
		snap.Opcode = uint8(op)
		g.Snapshots = append(g.Snapshots, snap)
	}

	for i, row := range f.Writes {
		if len(row) != 2 {
			return nil, fmt.Errorf("writes[%d]: %d values, want 2", i, len(row))
		}
		if row[0] > 0xFFFF || row[1] > 0xFFFF {
			return nil, fmt.Errorf("writes[%d]: value out of range", i)
		}
		g.Writes = append(g.Writes, trace.Entry{Address: uint16(row[0]), Value: uint16(row[1])})
	}
	if err := trace.Validate(g.Writes); err != nil {
		return nil, fmt.Errorf("writes: %w", err)
	}

	if len(f.Schedule) > 0 {
		if len(f.Schedule) != len(g.Snapshots) {
			return nil, fmt.Errorf("schedule has %d steps, want %d", len(f.Schedule), len(g.Snapshots))
		}
		total := 0
		for i, n := range f.Schedule {
			if n < 0 {
				return nil, fmt.Errorf("schedule[%d]: negative count %d", i, n)
			}
			total += n
		}
		if total != len(g.Writes)-1 {
			return nil, fmt.Errorf("schedule accounts for %d writes, trace has %d", total, len(g.Writes)-1)
		}
		g.Schedule = f.Schedule
	}

	return g, nil
}

// Steps returns the number of golden steps.
func (g *Golden) Steps() int { return len(g.Snapshots) }

// PCIndex returns the layout index of the program counter.
func (g *Golden) PCIndex() int { return g.pcIndex }

// PC returns the expected program counter after step.
func (g *Golden) PC(step int) uint16 {
	return uint16(g.Snapshots[step].Registers[g.pcIndex])
}

// RegisterNames returns the layout names in order.
func (g *Golden) RegisterNames() []string {
	names := make([]string, len(g.Layout))
	for i, r := range g.Layout {
		names[i] = r.Name
	}
	return names
}

// Digest returns the canonical content digest of the fixture.
func (g *Golden) Digest() string {
	return canon.MustDigest(canon.DomainFixture, g)
}
