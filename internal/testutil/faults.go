package testutil

import "github.com/roach88/stepcheck/internal/harness"

// RegisterFault wraps a unit and reports Value for one register after one
// step. Every other read passes through.
type RegisterFault struct {
	harness.Unit
	step     int
	register int
	value    uint32
	done     int
}

// NewRegisterFault corrupts register of u after step.
func NewRegisterFault(u harness.Unit, step, register int, value uint32) *RegisterFault {
	return &RegisterFault{Unit: u, step: step, register: register, value: value}
}

// Step implements harness.Unit.
func (f *RegisterFault) Step() {
	f.Unit.Step()
	f.done++
}

// ReadRegister implements harness.Unit.
func (f *RegisterFault) ReadRegister(index int) uint32 {
	if index == f.register && f.done == f.step+1 {
		return f.value
	}
	return f.Unit.ReadRegister(index)
}

// SpuriousWrite wraps a unit and performs one extra write at the start of
// one step.
type SpuriousWrite struct {
	harness.Unit
	step    int
	address uint16
	value   uint8
	bus     harness.Bus
	current int
}

// NewSpuriousWrite makes u write value to address before executing step.
func NewSpuriousWrite(u harness.Unit, step int, address uint16, value uint8) *SpuriousWrite {
	return &SpuriousWrite{Unit: u, step: step, address: address, value: value}
}

// BindMemory implements harness.Unit.
func (f *SpuriousWrite) BindMemory(bus harness.Bus) {
	f.bus = bus
	f.Unit.BindMemory(bus)
}

// Step implements harness.Unit.
func (f *SpuriousWrite) Step() {
	if f.current == f.step {
		f.bus.Write(f.address, f.value)
	}
	f.Unit.Step()
	f.current++
}

// DroppedWrite wraps a unit and swallows one write of one step. Writes are
// counted from zero within the step.
type DroppedWrite struct {
	harness.Unit
	step    int
	nth     int
	current int
	seen    int
}

// NewDroppedWrite drops the nth write u performs during step.
func NewDroppedWrite(u harness.Unit, step, nth int) *DroppedWrite {
	return &DroppedWrite{Unit: u, step: step, nth: nth}
}

// BindMemory implements harness.Unit.
func (f *DroppedWrite) BindMemory(bus harness.Bus) {
	f.Unit.BindMemory(&droppingBus{Bus: bus, fault: f})
}

// Step implements harness.Unit.
func (f *DroppedWrite) Step() {
	f.seen = 0
	f.Unit.Step()
	f.current++
}

type droppingBus struct {
	harness.Bus
	fault *DroppedWrite
}

func (b *droppingBus) Write(addr uint16, value uint8) {
	f := b.fault
	if f.current == f.step {
		n := f.seen
		f.seen++
		if n == f.nth {
			return
		}
	}
	b.Bus.Write(addr, value)
}
