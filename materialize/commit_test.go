package materialize

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noria-core/materializer/graph"
	"github.com/noria-core/materializer/migrate"
	"github.com/noria-core/materializer/operator"
	"github.com/noria-core/materializer/rserr"
)

// buildFilteredReader builds the seed scenario S1 graph:
// Base(uid,name) -> Filter(uid=?) -> Reader(key=uid).
func buildFilteredReader(t *testing.T) (*graph.Graph, graph.NodeHandle, graph.NodeHandle, graph.NodeHandle) {
	t.Helper()
	g := graph.New()

	base := g.AddNode(graph.Node{Kind: graph.Base, Name: "users", Columns: []string{"uid", "name"}, Operator: operator.Base{}})
	g.AddEdge(g.Source(), base)

	filter := g.AddNode(graph.Node{Kind: graph.Internal, Name: "active_users", Columns: []string{"uid", "name"}, Operator: operator.Filter{Parent: base}})
	g.AddEdge(base, filter)

	reader := g.AddNode(graph.Node{Kind: graph.Reader, Name: "users_reader", Reader: &graph.ReaderSpec{Key: []int{0}}})
	g.AddEdge(filter, reader)

	return g, base, filter, reader
}

func TestCommitSimpleFilteredReaderS1(t *testing.T) {
	g, base, filter, reader := buildFilteredReader(t)
	r := New(nil)
	plan := migrate.New(nil)

	newNodes := map[graph.NodeHandle]bool{base: true, filter: true, reader: true}
	require.NoError(t, r.Commit(g, newNodes, plan))

	require.True(t, r.IsMaterialized(base))
	require.Contains(t, r.Indexes(base), graph.HashMap([]int{0}))

	require.False(t, r.IsMaterialized(filter), "pure query-through filter never gets its own state")

	require.True(t, r.IsMaterialized(reader))
	require.True(t, r.IsPartial(reader))
	require.Contains(t, r.Indexes(reader), graph.HashMap([]int{0}))

	paths := r.PathsFor(reader)
	require.Len(t, paths, 1, "exactly one replay path with a fresh tag")
	for _, path := range paths {
		require.Len(t, path, 3)
		require.Equal(t, reader, path[0].Node)
		require.Equal(t, filter, path[1].Node)
		require.Equal(t, base, path[2].Node)
	}

	var readerReadies int
	var sawPrepareBase, sawSetupReplay bool
	for _, entry := range plan.Entries() {
		send, ok := entry.(migrate.Send)
		if !ok {
			continue
		}
		switch req := send.Request.(type) {
		case migrate.ReadyRequest:
			if req.Node == reader {
				readerReadies++
			}
		case migrate.PrepareStateRequest:
			if req.Node == base {
				sawPrepareBase = true
			}
		case migrate.SetupReplayPathRequest:
			sawSetupReplay = true
		}
	}
	require.Equal(t, 1, readerReadies, "one Ready message for the reader")
	require.True(t, sawPrepareBase)
	require.True(t, sawSetupReplay)
}

func TestCommitAggregationForcesGroupKeyMaterializationS2(t *testing.T) {
	g := graph.New()
	base := g.AddNode(graph.Node{Kind: graph.Base, Name: "votes", Columns: []string{"aid", "uid"}, Operator: operator.Base{}})
	g.AddEdge(g.Source(), base)

	count := g.AddNode(graph.Node{Kind: graph.Internal, Name: "vote_count", Columns: []string{"aid", "n"}, Operator: operator.GroupBy{Parent: base, GroupCols: []int{0}}})
	g.AddEdge(base, count)

	reader := g.AddNode(graph.Node{Kind: graph.Reader, Name: "vote_count_reader", Reader: &graph.ReaderSpec{Key: []int{0}}})
	g.AddEdge(count, reader)

	r := New(nil)
	plan := migrate.New(nil)
	newNodes := map[graph.NodeHandle]bool{base: true, count: true, reader: true}
	require.NoError(t, r.Commit(g, newNodes, plan))

	require.True(t, r.IsMaterialized(base))
	require.Contains(t, r.Indexes(base), graph.HashMap([]int{0}))

	require.True(t, r.IsMaterialized(count))
	require.True(t, r.IsPartial(count))

	require.True(t, r.IsMaterialized(reader))
	require.True(t, r.IsPartial(reader))

	totalPaths := len(r.PathsFor(count)) + len(r.PathsFor(reader))
	require.Equal(t, 2, totalPaths, "one path feeding Count from Base, one feeding Reader from Count")
}

// TestCommitShardMergerAliasingRejectedS6 builds spec.md §8 S6 literally:
// a parent sharded by column 0 whose two output columns (0, 0) both
// resolve back to the same source column 0 of a materialized ancestor.
// A shard merger reunifying that parent's shards must be rejected, since
// a downstream replay keyed on the aliased column would silently query
// only one shard while the merger still waits on every shard.
func TestCommitShardMergerAliasingRejectedS6(t *testing.T) {
	g := graph.New()
	base := g.AddNode(graph.Node{Kind: graph.Base, Name: "sharded_src", Columns: []string{"x"}, Operator: operator.Base{}})
	g.AddEdge(g.Source(), base)

	// proj duplicates base's single column into two output columns, both
	// deriving from source column 0, and is itself sharded by column 0.
	proj := g.AddNode(graph.Node{
		Kind:     graph.Internal,
		Name:     "dup_x",
		Columns:  []string{"x", "x_dup"},
		Operator: operator.Project{Parent: base, Sources: []int{0, 0}},
		Sharding: graph.ByColumn(0),
	})
	g.AddEdge(base, proj)

	merger := g.AddNode(graph.Node{Kind: graph.ShardMerger, Name: "merger", Columns: []string{"x", "x_dup"}})
	g.AddEdge(proj, merger)

	r := New(nil)
	r.have.Add(base, graph.HashMap([]int{0}))
	newNodes := map[graph.NodeHandle]bool{proj: true, merger: true}

	err := r.checkShardMergerAliasing(g, newNodes)
	require.Error(t, err)
	require.True(t, rserr.ErrGraphInvariantViolated.Is(err))
}

// TestCommitShardMergerAliasingAcceptsDistinctColumns is the negative
// case: a parent sharded by column 0 whose columns resolve to distinct
// source columns passes cleanly.
func TestCommitShardMergerAliasingAcceptsDistinctColumns(t *testing.T) {
	g := graph.New()
	base := g.AddNode(graph.Node{Kind: graph.Base, Name: "sharded_src", Columns: []string{"x", "y"}, Operator: operator.Base{}})
	g.AddEdge(g.Source(), base)

	proj := g.AddNode(graph.Node{
		Kind:     graph.Internal,
		Name:     "identity_proj",
		Columns:  []string{"x", "y"},
		Operator: operator.Project{Parent: base, Sources: []int{0, 1}},
		Sharding: graph.ByColumn(0),
	})
	g.AddEdge(base, proj)

	merger := g.AddNode(graph.Node{Kind: graph.ShardMerger, Name: "merger", Columns: []string{"x", "y"}})
	g.AddEdge(proj, merger)

	r := New(nil)
	r.have.Add(base, graph.HashMap([]int{0}))
	newNodes := map[graph.NodeHandle]bool{proj: true, merger: true}

	require.NoError(t, r.checkShardMergerAliasing(g, newNodes))
}
