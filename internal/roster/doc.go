// Package roster reconciles a periodic enrollment roster against the people
// known to the access-control store.
//
// This package is the heart of rostersync. It holds all reconciliation logic
// independent of how the roster is read or where the persisted population
// lives, so it can be driven by the CLI, the scheduler, or tests.
//
// # Pipeline
//
// One run processes one full roster snapshot:
//
//  1. [DetectColumns] infers which header supplies each logical field.
//  2. [Normalize] turns every raw row into a typed [RosterRecord], dropping
//     rows without a document or name.
//  3. [Dedupe] collapses rows that share a [PersonKey]; first one wins.
//  4. [Reconciler.Reconcile] classifies each record against the persisted
//     person and applies the prescribed mutation inside one transaction.
//  5. [Reporter] accumulates outcomes into buckets and renders the run log,
//     the change report and the synchronized roster.
//
// [Orchestrator.Run] sequences the steps and returns a [RunResult].
//
// # Reconciliation cases
//
//	Case  Roster    Persisted   Action
//	1     active    (missing)   insert with the default role
//	2     active    active      none (maintained)
//	3     inactive  active      deactivate and close open access sessions
//	4     inactive  inactive    none (maintained)
//	5     active    inactive    reactivate and refresh the name
//
// Any other combination is recorded as an error without mutation. A failure
// while reconciling one record never aborts the run.
//
// # Error Handling
//
// Fatal conditions are reported as [*RunError] values wrapping one of the
// sentinels [ErrSourceUnavailable], [ErrConnectivity], [ErrMissingColumns] or
// [ErrEmptySnapshot]. Each carries a short code for support reference.
package roster
