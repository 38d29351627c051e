// Package store provides SQLite-backed run history for stepcheck.
//
// Each harness run is recorded once, with its canonical report and one row
// per failed step:
//   - runs: verdict, counts, fixture identity, report digest and JSON
//   - step_failures: (run, step, kind) with a one-line detail
//
// # Ordering
//
// Every run gets a logical seq on insert. All listings order by seq, never
// by recorded_at, so history reads the same regardless of host clocks.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Run IDs are UUIDv7 strings from an IDGenerator.
package store
