package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewGraphHasOnlySource(t *testing.T) {
	g := New()
	require.Equal(t, g.Source(), g.Source())
	require.True(t, g.MustNode(g.Source()).IsSource())
	require.Empty(t, g.TopoOrder())
}

func TestAddNodeAndEdge(t *testing.T) {
	g := New()
	base := g.AddNode(Node{Kind: Base, Name: "U", Columns: []string{"uid", "name"}})
	g.AddEdge(g.Source(), base)

	filter := g.AddNode(Node{Kind: Internal, Name: "Filter"})
	g.AddEdge(base, filter)

	require.True(t, g.FindEdge(base, filter))
	require.False(t, g.FindEdge(filter, base))
	require.ElementsMatch(t, []NodeHandle{filter}, g.NeighborsOut(base))
	require.ElementsMatch(t, []NodeHandle{base}, g.NeighborsIn(filter))
}

func TestTopoOrderRespectsDependencies(t *testing.T) {
	g := New()
	base := g.AddNode(Node{Kind: Base, Name: "U"})
	g.AddEdge(g.Source(), base)
	filter := g.AddNode(Node{Kind: Internal, Name: "Filter"})
	g.AddEdge(base, filter)
	reader := g.AddNode(Node{Kind: Reader, Name: "Reader"})
	g.AddEdge(filter, reader)

	order := g.TopoOrder()
	pos := make(map[NodeHandle]int, len(order))
	for i, h := range order {
		pos[h] = i
	}
	require.Less(t, pos[base], pos[filter])
	require.Less(t, pos[filter], pos[reader])
}

func TestTopoOrderSkipsDropped(t *testing.T) {
	g := New()
	base := g.AddNode(Node{Kind: Base, Name: "U"})
	g.AddEdge(g.Source(), base)
	dead := g.AddNode(Node{Kind: Dropped, Name: "Dead"})

	order := g.TopoOrder()
	require.Contains(t, order, base)
	require.NotContains(t, order, dead)
}

func TestRemoveEdge(t *testing.T) {
	g := New()
	a := g.AddNode(Node{Kind: Base, Name: "A"})
	b := g.AddNode(Node{Kind: Internal, Name: "B"})
	g.AddEdge(a, b)
	require.True(t, g.FindEdge(a, b))

	g.RemoveEdge(a, b)
	require.False(t, g.FindEdge(a, b))
	require.Empty(t, g.NeighborsOut(a))
	require.Empty(t, g.NeighborsIn(b))
}

func TestDuplicateNodeGetsFreshHandleNoEdges(t *testing.T) {
	g := New()
	a := g.AddNode(Node{Kind: Base, Name: "A", Columns: []string{"x"}})
	b := g.AddNode(Node{Kind: Internal, Name: "B"})
	g.AddEdge(a, b)

	dup := g.DuplicateNode(a)
	require.NotEqual(t, a, dup)
	require.Equal(t, g.MustNode(a).Name, g.MustNode(dup).Name)
	require.Empty(t, g.NeighborsOut(dup))
	require.Empty(t, g.NeighborsIn(dup))
}

func TestAncestorsDFSStopsWhenVisitReturnsFalse(t *testing.T) {
	g := New()
	a := g.AddNode(Node{Kind: Base, Name: "A"})
	b := g.AddNode(Node{Kind: Internal, Name: "B"})
	c := g.AddNode(Node{Kind: Internal, Name: "C"})
	g.AddEdge(a, b)
	g.AddEdge(b, c)

	var visited []NodeHandle
	g.AncestorsDFS(c, func(h NodeHandle) bool {
		visited = append(visited, h)
		return false // never cross
	})
	require.ElementsMatch(t, []NodeHandle{b}, visited)
}
