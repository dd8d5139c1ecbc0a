// Package engine dispatches staging tasks.
//
// A task is matched against the subscription registry, applied to the
// target store inside its own transaction, and then handed to the
// interested connectors: synchronous process types call the connector
// after commit, asynchronous ones are written to the outbound queue in
// the same transaction as the change itself.
//
// Two entry points share that pipeline:
//
//   - Enqueue + Run is a single-writer loop that processes tasks in FIFO
//     order and logs failures without stopping.
//   - RunBatch processes a decoded batch as one run, optionally across
//     several workers. Tasks of one entity always stay on one worker in
//     seq order; different entities are independent.
//
// Task seqs come from the source log. Tasks without one are stamped by
// the dispatcher's Clock, never by wall-clock time.
//
// Every outcome (applied, failed, cancelled) lands in the store's task
// log. Failures are *RuntimeError values with a Code; cancellation is
// reported through ErrCancelled and commits the work done so far.
package engine
