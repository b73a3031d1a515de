// Package cluster defines the small client interface the controller
// uses to reach whatever external system holds leader election and
// shared configuration state, plus a default in-memory implementation
// usable in tests and single-node deployments.
//
// Grounded on the `Authority` trait in the original (`consensus::Authority`),
// which the real system backs with ZooKeeper (`ZookeeperAuthority`) or, for
// tests and single-process deployments, a purely local implementation
// (`LocalAuthority`). Only the latter is retrieved in this pack, so only
// its shape is ported; real multi-process coordination is out of scope
// (§1) — this package owns the interface a real backend would implement,
// matching the teacher's own small-interface idiom for external
// collaborators (`auth.Auth` in `auth/auth.go`).
package cluster

import "context"

// Epoch identifies a leadership term. Epochs increase monotonically
// every time a new leader is elected.
type Epoch int64

// Authority is the client interface the controller uses to coordinate
// leader election and store small amounts of shared state. Every method
// takes a context so a caller can bound how long it is willing to wait
// on an operation that may block on an external coordination service.
type Authority interface {
	// BecomeLeader attempts to become leader, recording payload as the
	// new leader's announcement data. Returns the new epoch on success,
	// or a nil epoch (and nil error) if someone else is already leader.
	BecomeLeader(ctx context.Context, payload []byte) (*Epoch, error)

	// GetLeader returns the current leader's epoch and announcement
	// payload, blocking until a leader exists.
	GetLeader(ctx context.Context) (Epoch, []byte, error)

	// AwaitNewEpoch blocks until the leader's epoch differs from
	// current, then returns the new epoch.
	AwaitNewEpoch(ctx context.Context, current Epoch) (Epoch, error)

	// TryRead performs a non-blocking read at path, reporting false if
	// no value is stored there.
	TryRead(ctx context.Context, path string) ([]byte, bool, error)

	// ReadModifyWrite reads the value at path (nil if absent), passes it
	// to f, and writes back the result.
	ReadModifyWrite(ctx context.Context, path string, f func([]byte) []byte) error
}
