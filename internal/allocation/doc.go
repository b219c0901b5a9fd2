// Package allocation tracks finite resources across organizations and
// individuals: relations carry the inventory ledger, a pure validator
// checks requests against merged constraints and allocation history, and
// the service orchestrates the ledger mutation, the allocation record, the
// individual's vault shadow copy, and the operation log entry.
//
// Validation failures are structural results, never error returns, so a
// caller sees every problem in one pass. Inventory and TTL concerns are
// advisory by design: the validator never blocks an allocation because
// stock looks low, preserving operator discretion in emergencies.
package allocation
