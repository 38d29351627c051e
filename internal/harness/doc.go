// Package harness runs a unit under test against a golden trace, one
// instruction at a time, and reports every step that diverged.
//
// # Step Contract
//
// The harness seeds a 64 KiB image from the generator, binds it to the unit
// once, and then for each golden step:
//
//  1. Records the program counter
//  2. Calls Step exactly once and reads the opcode at the recorded address
//  3. Fails the step if any write diverged from the golden write trace
//  4. Fails the step if any register differs from the golden snapshot
//     under that register's mask
//  5. Counts a pass when neither check failed
//
// A failing step never stops the run. The write cursor stays on the entry
// that was expected, so a dropped write surfaces at the next step that
// writes. In resync mode a bounded look-ahead lets the cursor skip it.
//
// # Usage
//
//	golden := fixture.Default()
//	h, err := harness.New(unit, golden, harness.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	report, err := h.Run(ctx)
//	if err != nil {
//	    return err
//	}
//	fmt.Print(harness.Render(report))
//
// # Determinism
//
// A report depends only on the fixture and the unit. Report.Digest is
// stable across runs and hosts.
package harness
