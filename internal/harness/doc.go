// Package harness runs YAML-defined allocation scenarios end to end
// against an in-memory room store, producing deterministic traces for
// golden-file comparison.
//
// Each scenario declares a resource type, a sequence of ledger steps
// (establish, restock, adjust, allocate, transition, opacity change), and
// an expected final ledger position. Fixed clocks and sequential ids keep
// the trace byte-stable across runs.
package harness
