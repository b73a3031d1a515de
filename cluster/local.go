package cluster

import (
	"context"
	"sync"
)

// LocalAuthority is an in-memory Authority backed by a single mutex and
// a closed-channel broadcast for waking blocked callers. It never loses
// an election to a competitor (there is only one process holding it),
// so it is meant for tests and single-node deployments, mirroring the
// original's own `LocalAuthority`.
type LocalAuthority struct {
	mu sync.Mutex

	epoch     Epoch
	hasLeader bool
	payload   []byte

	data map[string][]byte

	// notify is closed (and replaced) on every state change, waking any
	// goroutine blocked in a select on it.
	notify chan struct{}
}

var _ Authority = (*LocalAuthority)(nil)

// NewLocalAuthority returns an empty LocalAuthority with no leader.
func NewLocalAuthority() *LocalAuthority {
	return &LocalAuthority{
		data:   make(map[string][]byte),
		notify: make(chan struct{}),
	}
}

func (a *LocalAuthority) wakeLocked() {
	close(a.notify)
	a.notify = make(chan struct{})
}

// BecomeLeader always succeeds: a LocalAuthority has no competing
// process to contend with.
func (a *LocalAuthority) BecomeLeader(ctx context.Context, payload []byte) (*Epoch, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.epoch++
	a.hasLeader = true
	a.payload = append([]byte(nil), payload...)
	e := a.epoch
	a.wakeLocked()
	return &e, nil
}

// GetLeader blocks until a leader has been elected.
func (a *LocalAuthority) GetLeader(ctx context.Context) (Epoch, []byte, error) {
	for {
		a.mu.Lock()
		if a.hasLeader {
			e, p := a.epoch, append([]byte(nil), a.payload...)
			a.mu.Unlock()
			return e, p, nil
		}
		ch := a.notify
		a.mu.Unlock()

		select {
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		case <-ch:
		}
	}
}

// AwaitNewEpoch blocks until the leader's epoch differs from current.
func (a *LocalAuthority) AwaitNewEpoch(ctx context.Context, current Epoch) (Epoch, error) {
	for {
		a.mu.Lock()
		if a.hasLeader && a.epoch != current {
			e := a.epoch
			a.mu.Unlock()
			return e, nil
		}
		ch := a.notify
		a.mu.Unlock()

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ch:
		}
	}
}

// TryRead returns the value stored at path without blocking.
func (a *LocalAuthority) TryRead(ctx context.Context, path string) ([]byte, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	v, ok := a.data[path]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// ReadModifyWrite reads path, applies f, and writes the result back.
// Since the whole operation runs under a.mu, it never needs to retry:
// no other caller can observe or mutate path in between the read and
// the write.
func (a *LocalAuthority) ReadModifyWrite(ctx context.Context, path string, f func([]byte) []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := f(a.data[path])
	a.data[path] = next
	a.wakeLocked()
	return nil
}
