// Package rserr defines the structured error kinds surfaced by the
// materialization planner and replay-path manager.
//
// Each kind mirrors one of the error variants described in the
// specification's error handling design: GraphInvariantViolated,
// UnknownDomain, UnknownShard, ObligationUnresolvable,
// ReplayTimeoutExceeded, and DomainCommunication. Planning errors
// (the first four) must never leave the live graph or registry mutated;
// apply errors (DomainCommunication) surface immediately with no
// rollback.
package rserr

import (
	"gopkg.in/src-d/go-errors.v1"
)

var (
	// ErrGraphInvariantViolated is raised when a commit would break one of
	// invariants I1-I7. Fatal to the migration; the plan is discarded.
	ErrGraphInvariantViolated = errors.NewKind("graph invariant violated: %s")

	// ErrUnknownDomain is raised when a migration plan action names a
	// domain that was never declared valid for this plan.
	ErrUnknownDomain = errors.NewKind("unknown domain: %d")

	// ErrUnknownShard is raised when a migration plan action names a
	// shard index outside the declared shard count for its domain.
	ErrUnknownShard = errors.NewKind("unknown shard %d for domain %d")

	// ErrObligationUnresolvable is raised when an operator's ParentColumns
	// cannot resolve a column referenced by an obligation.
	ErrObligationUnresolvable = errors.NewKind("could not resolve obligation past operator; node => %d, ancestor => %d, column => %d")

	// ErrReplayTimeoutExceeded is reserved for a future bounded replay
	// barrier. The current barrier never times out (see DESIGN.md open
	// questions), so this kind is never raised, but is kept so callers can
	// match on it without a breaking change later.
	ErrReplayTimeoutExceeded = errors.NewKind("replay timeout exceeded waiting for tag %d")

	// ErrDomainCommunication wraps a transport-level failure encountered
	// while applying a migration plan. Surfaced immediately; no rollback
	// is attempted.
	ErrDomainCommunication = errors.NewKind("domain communication failure: %s")

	// ErrMigrationPlanFailed wraps any error produced during the planning
	// stage, matching the Rust source's MigrationPlanFailed wrapper.
	ErrMigrationPlanFailed = errors.NewKind("migration planning failed: %s")

	// ErrMigrationApplyFailed wraps any error produced while applying an
	// already-planned migration.
	ErrMigrationApplyFailed = errors.NewKind("migration apply failed: %s")
)
