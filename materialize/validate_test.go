package materialize

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noria-core/materializer/graph"
)

func TestValidateReportsDirectFullBelowPartialEdge(t *testing.T) {
	g := graph.New()
	parent := g.AddNode(graph.Node{Kind: graph.Internal, Name: "parent"})
	child := g.AddNode(graph.Node{Kind: graph.Internal, Name: "child"})
	g.AddEdge(parent, child)

	r := New(nil)
	r.have.Add(parent, graph.HashMap([]int{0}))
	r.partial[parent] = true
	r.have.Add(child, graph.HashMap([]int{0}))
	r.partial[child] = false

	invalid, err := r.Validate(g, map[graph.NodeHandle]bool{child: true})
	require.NoError(t, err)
	require.NotNil(t, invalid)
	require.Equal(t, parent, invalid.Parent)
	require.Equal(t, child, invalid.Child)
}

func TestValidatePassesWhenNoViolationExists(t *testing.T) {
	g := graph.New()
	parent := g.AddNode(graph.Node{Kind: graph.Internal, Name: "parent"})
	child := g.AddNode(graph.Node{Kind: graph.Internal, Name: "child"})
	g.AddEdge(parent, child)

	r := New(nil)
	r.have.Add(parent, graph.HashMap([]int{0}))
	r.partial[parent] = false
	r.have.Add(child, graph.HashMap([]int{0}))
	r.partial[child] = false

	invalid, err := r.Validate(g, map[graph.NodeHandle]bool{child: true})
	require.NoError(t, err)
	require.Nil(t, invalid)
}

func TestForceFullPreventsPartialAdmission(t *testing.T) {
	g, base, _, groupby, reader := buildChain(t)
	r := New(nil)
	r.ForceFull(groupby)

	newNodes := map[graph.NodeHandle]bool{base: true, groupby: true, reader: true}
	require.NoError(t, r.Extend(g, newNodes))

	require.True(t, r.IsMaterialized(groupby))
	require.False(t, r.IsPartial(groupby))
}
