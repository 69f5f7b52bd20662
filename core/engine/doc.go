// Package engine is the synchronization core of the mapping registry.
//
// It maintains an in-memory directory of named mappings and a merged alias
// dictionary, kept consistent with three independently changing sources:
// a watched local directory, a remote resource server reached over
// conditional reads, and the immutable package repository. The engine is
// strictly read-only towards all of them; change is observed, never caused.
//
// # Structure
//
//   - Store: the canonical key->entry map plus the merged alias view.
//     Readers get snapshots; mutations are incremental and atomic.
//   - Precedence resolver: layers per-source views, file > server
//     (> built-in for aliases), warning once per shadowed key.
//   - Diff engine: computes minimal upserts/deletes against the store,
//     never a wholesale replace; single-key reconciliation re-checks
//     ownership so a lower-precedence source cannot clobber a higher one.
//   - Drivers: file poller (fingerprint-based), server poller (conditional
//     alias refresh + incremental changed-since search), forced resync
//     (full reload, the only path that sees server-side deletions).
//
// # Concurrency
//
// Each driver runs on its own timer with a single-flight guard; ticks that
// fire while the previous one is running are skipped. All store mutations
// funnel through the store's mutex, and readers never block on writers.
//
// # Failure containment
//
// No failure in this package terminates the process. An unavailable source
// leaves previously known-good state untouched and is retried next tick; a
// single invalid entry is skipped while the rest of its batch applies.
package engine
