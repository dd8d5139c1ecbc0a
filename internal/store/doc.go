// Package store provides SQLite-backed storage for the target environment.
//
// The store holds:
//   - Sites, content tree nodes and their culture versions (documents)
//   - Document attachments, including variants
//   - Generic configuration objects and their site bindings
//   - Media library folders and files
//   - The outbound connector queue and the per-run task log
//
// # Identity
//
// Primary keys are local to the target. Rows are matched across
// environments by GUID (or code name for objects without one); the
// Store implements translation.Lookup for that purpose.
//
// # Transactions
//
// The pool holds a single connection. Begin returns a Tx whose embedded
// Store runs every query inside the transaction; the parent Store must
// not be used until the transaction ends.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Queries that return lists use a deterministic ORDER BY so that
// snapshots are stable across runs.
package store
