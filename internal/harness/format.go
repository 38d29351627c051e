package harness

import (
	"fmt"
	"strings"
)

// displayOrder is the column order of the diagnostic table. It mirrors the
// header of the recorded 6502 run logs, which print s ahead of p.
var displayOrder = []string{"a", "b", "x", "y", "z", "s", "p", "pc"}

// Render formats a report as the plain-text run log.
func Render(r *Report) string {
	var b strings.Builder

	diagPending := r.FirstFailure != nil
	for _, d := range r.MemoryDivergences {
		if diagPending && d.Step > r.FirstFailure.Step {
			writeDiagnostic(&b, r.FirstFailure)
			diagPending = false
		}
		writeDivergence(&b, d)
	}
	if diagPending {
		writeDiagnostic(&b, r.FirstFailure)
	}

	if r.Aborted {
		fmt.Fprintf(&b, "STEP ABORTED (ran %d/%d steps)\n", r.StepsRun, r.StepCount)
	}
	if r.Pass {
		fmt.Fprintf(&b, "STEP OK (pass %d tests)\n", r.StepCount)
	} else {
		fmt.Fprintf(&b, "STEP NG (pass %d/%d tests)\n", r.PassCount, r.StepCount)
	}
	fmt.Fprintf(&b, "writes matched %d/%d (cursor %d", r.WritesMatched, r.TraceLength, r.Cursor)
	if r.Skipped > 0 {
		fmt.Fprintf(&b, ", skipped %d", r.Skipped)
	}
	b.WriteString(")\n")
	return b.String()
}

func writeDivergence(b *strings.Builder, d WriteDivergence) {
	fmt.Fprintf(b, "UNEXPECTED MEMORY ACCESS (step %d)\n", d.Step)
	if d.Expected.IsSentinel() {
		b.WriteString("e: end of trace\n")
	} else {
		fmt.Fprintf(b, "e: %04x := %02x\n", d.Expected.Address, d.Expected.Value)
	}
	fmt.Fprintf(b, "a: %04x := %02x\n", d.ActualAddress, d.ActualValue)
	if d.Resynced {
		b.WriteString("   resynced\n")
	}
}

func writeDiagnostic(b *strings.Builder, d *StepDiagnostic) {
	fmt.Fprintf(b, "STEP %d failed (PC:%04x/INST:%02x)\n", d.Step, d.PC, d.Opcode)

	cols := columns(d.Expected)
	b.WriteString("   ")
	for _, name := range cols {
		fmt.Fprintf(b, "%*s ", width(name), name)
	}
	b.WriteString(" i\n")

	writeRow(b, "e", cols, d.Expected, d.ExpectedOpcode)
	writeRow(b, "a", cols, d.Actual, d.ActualOpcode)
}

func writeRow(b *strings.Builder, label string, cols []string, set RegisterSet, opcode uint8) {
	fmt.Fprintf(b, "%s: ", label)
	for _, name := range cols {
		fmt.Fprintf(b, "%0*x ", width(name), set[name])
	}
	fmt.Fprintf(b, "%02x\n", opcode)
}

// columns returns the registers present in set, in display order.
func columns(set RegisterSet) []string {
	cols := make([]string, 0, len(set))
	for _, name := range displayOrder {
		if _, ok := set[name]; ok {
			cols = append(cols, name)
		}
	}
	return cols
}

func width(name string) int {
	if name == "pc" {
		return 4
	}
	return 2
}
