// Package store provides the SQLite-backed sync journal.
//
// Every successful sync is appended as one run with one entry per function:
//   - sync_runs: run id, target schema and pgproxy version
//   - sync_entries: function, classification, outcome and body digest
//
// # Ordering
//
// Runs are ordered by seq INTEGER, assigned on insert. Wall-clock time is
// never recorded. Entries keep the order the synchronizer reported them in.
//
// # Idempotency
//
// Recording a run whose id already exists is a no-op.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
