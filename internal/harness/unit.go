package harness

// Bus is the memory capability handed to a unit. The unit cannot tell
// whether its writes are being compared.
type Bus interface {
	Read(addr uint16) uint8
	Write(addr uint16, value uint8)
}

// Unit is the emulator core under test.
//
// Step executes exactly one instruction. ReadRegister returns the register
// at a layout index; the harness masks the value before comparing it.
type Unit interface {
	BindMemory(bus Bus)
	Step()
	ReadRegister(index int) uint32
	NumRegisters() int
}
