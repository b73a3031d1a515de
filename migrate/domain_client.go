package migrate

import (
	"context"

	"github.com/noria-core/materializer/graph"
)

// DomainClient is the outbound RPC surface the Applier drives. A real
// implementation forwards SendToHealthy over whatever transport Worker
// processes listen on (explicitly out of scope for this module: see
// DESIGN.md); PlaceDomain stands up a fresh domain on a set of workers.
//
// For QueryReplayDoneRequest specifically, SendToHealthy with a nil
// shard is expected to fan the request out to every shard of domain and
// report true once any shard answers true, matching the "any shard
// answers true" barrier semantics.
type DomainClient interface {
	SendToHealthy(ctx context.Context, domain graph.DomainID, shard *int, req Request) (Response, error)
	PlaceDomain(ctx context.Context, domain graph.DomainID, workers []WorkerID, nodes []graph.NodeHandle) error
}
