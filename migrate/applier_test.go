package migrate

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noria-core/materializer/graph"
)

type fakeClient struct {
	placed     []Place
	sent       []Send
	replayAt   int32 // QueryReplayDone answers true once polls reach this count
	polls      int32
	placeErr   error
	sendErr    error
}

func (f *fakeClient) PlaceDomain(ctx context.Context, domain graph.DomainID, workers []WorkerID, nodes []graph.NodeHandle) error {
	f.placed = append(f.placed, Place{Domain: domain, Workers: workers, Nodes: nodes})
	return f.placeErr
}

func (f *fakeClient) SendToHealthy(ctx context.Context, domain graph.DomainID, shard *int, req Request) (Response, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if _, ok := req.(QueryReplayDoneRequest); ok {
		n := atomic.AddInt32(&f.polls, 1)
		return n >= f.replayAt, nil
	}
	f.sent = append(f.sent, Send{Domain: domain, Shard: shard, Request: req})
	return nil, nil
}

func TestApplierAppliesEntriesInOrder(t *testing.T) {
	p := New(nil)
	p.DeclareDomain(0, 1)
	require.NoError(t, p.Place(0, []WorkerID{"w1"}, []graph.NodeHandle{1}))
	require.NoError(t, p.Send(0, nil, ReadyRequest{Node: 1}))

	client := &fakeClient{replayAt: 1}
	applier := NewApplier(nil, client)
	require.NoError(t, applier.Apply(context.Background(), p))

	require.Len(t, client.placed, 1)
	require.Len(t, client.sent, 1)
}

func TestApplierAwaitsReplayBarrierUntilTrue(t *testing.T) {
	p := New(nil)
	p.DeclareDomain(0, 1)
	p.AddPending(PendingReplay{Tag: 1, SourceDomain: 0, SourceNode: 2})

	client := &fakeClient{replayAt: 3}
	applier := NewApplier(nil, client)
	applier.pollInterval = 0

	require.NoError(t, applier.Apply(context.Background(), p))
	require.GreaterOrEqual(t, client.polls, int32(3))
}

func TestApplierPropagatesTransportError(t *testing.T) {
	p := New(nil)
	p.DeclareDomain(0, 1)
	require.NoError(t, p.Send(0, nil, ReadyRequest{Node: 1}))

	client := &fakeClient{sendErr: context.DeadlineExceeded}
	applier := NewApplier(nil, client)
	err := applier.Apply(context.Background(), p)
	require.Error(t, err)
}
