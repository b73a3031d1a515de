package graph

import (
	"encoding/binary"
	"fmt"

	"github.com/spaolacci/murmur3"
)

// Edge is a directed parent->child dependency. Edges carry no payload.
type Edge struct {
	Parent NodeHandle
	Child  NodeHandle
}

// Graph is an acyclic operator graph with a distinguished source node.
// It exposes only pure, deterministic operations; it is the caller's
// responsibility to serialize mutation (see the controller package,
// which is the sole owner of a live Graph).
type Graph struct {
	source NodeHandle
	nodes  map[NodeHandle]*Node
	out    map[NodeHandle][]NodeHandle
	in     map[NodeHandle][]NodeHandle
	next   NodeHandle
}

// New returns a Graph containing only its distinguished source node.
func New() *Graph {
	g := &Graph{
		nodes: make(map[NodeHandle]*Node),
		out:   make(map[NodeHandle][]NodeHandle),
		in:    make(map[NodeHandle][]NodeHandle),
	}
	src := g.allocHandle()
	g.nodes[src] = &Node{ID: src, Kind: Source, Domain: NoDomain}
	g.source = src
	return g
}

func (g *Graph) allocHandle() NodeHandle {
	h := g.next
	g.next++
	return h
}

// Source returns the handle of the distinguished source node.
func (g *Graph) Source() NodeHandle { return g.source }

// AddNode adds a node to the graph and returns its newly assigned
// handle. The node's ID field is overwritten with the assigned handle.
func (g *Graph) AddNode(n Node) NodeHandle {
	h := g.allocHandle()
	n.ID = h
	if n.Domain == 0 && n.Kind != Source {
		// zero value ambiguity: callers that don't set Domain explicitly
		// get NoDomain, not domain 0.
		n.Domain = NoDomain
	}
	g.nodes[h] = &n
	return h
}

// Node returns the node for handle h, or nil if it doesn't exist.
func (g *Graph) Node(h NodeHandle) *Node {
	return g.nodes[h]
}

// MustNode returns the node for handle h, panicking if it doesn't exist.
// Used internally where the handle is known-valid by construction (e.g.
// while iterating a topological order derived from the same graph).
func (g *Graph) MustNode(h NodeHandle) *Node {
	n, ok := g.nodes[h]
	if !ok {
		panic(fmt.Sprintf("graph: no such node %d", h))
	}
	return n
}

// AddEdge adds a directed parent->child edge.
func (g *Graph) AddEdge(parent, child NodeHandle) {
	g.out[parent] = append(g.out[parent], child)
	g.in[child] = append(g.in[child], parent)
}

// FindEdge reports whether an edge from parent to child exists.
func (g *Graph) FindEdge(parent, child NodeHandle) bool {
	for _, c := range g.out[parent] {
		if c == child {
			return true
		}
	}
	return false
}

// RemoveEdge removes a single parent->child edge, if present.
func (g *Graph) RemoveEdge(parent, child NodeHandle) {
	g.out[parent] = removeHandle(g.out[parent], child)
	g.in[child] = removeHandle(g.in[child], parent)
}

func removeHandle(s []NodeHandle, h NodeHandle) []NodeHandle {
	for i, v := range s {
		if v == h {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// NeighborsOut returns the children of a node, in insertion order.
func (g *Graph) NeighborsOut(h NodeHandle) []NodeHandle {
	return append([]NodeHandle(nil), g.out[h]...)
}

// NeighborsIn returns the parents of a node, in insertion order.
func (g *Graph) NeighborsIn(h NodeHandle) []NodeHandle {
	return append([]NodeHandle(nil), g.in[h]...)
}

// DuplicateNode creates a new node that is a structural copy of the
// original (same kind, columns, sharding, domain, operator) but with a
// fresh handle and no edges. Used by the redundant-partial repair loop
// in package controller to materialize a second, fully materialized copy
// of a partial node, so that a full child need not sit below it.
func (g *Graph) DuplicateNode(h NodeHandle) NodeHandle {
	orig := g.MustNode(h)
	cp := *orig
	nh := g.allocHandle()
	cp.ID = nh
	cp.EagerEvict = false
	g.nodes[nh] = &cp
	return nh
}

// TopoOrder returns all non-source, non-dropped nodes in topological
// order (parents before children).
func (g *Graph) TopoOrder() []NodeHandle {
	indeg := make(map[NodeHandle]int, len(g.nodes))
	for h := range g.nodes {
		indeg[h] = len(g.in[h])
	}
	var ready []NodeHandle
	for h, d := range indeg {
		if d == 0 {
			ready = append(ready, h)
		}
	}
	// deterministic order: process in handle order
	sortHandles(ready)

	order := make([]NodeHandle, 0, len(g.nodes))
	for len(ready) > 0 {
		h := ready[0]
		ready = ready[1:]
		order = append(order, h)
		for _, c := range g.out[h] {
			indeg[c]--
			if indeg[c] == 0 {
				ready = insertSorted(ready, c)
			}
		}
	}

	out := make([]NodeHandle, 0, len(order))
	for _, h := range order {
		n := g.nodes[h]
		if n.IsSource() || n.IsDropped() {
			continue
		}
		out = append(out, h)
	}
	return out
}

func sortHandles(s []NodeHandle) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func insertSorted(s []NodeHandle, h NodeHandle) []NodeHandle {
	i := 0
	for i < len(s) && s[i] < h {
		i++
	}
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = h
	return s
}

// AncestorsDFS walks ancestors (via incoming edges) of start, calling
// visit for each ancestor reached. The walk stops descending past any
// node for which visit returns false (false meaning "don't cross this
// node", matching the DFS-crosses-non-materialized-nodes shape used by
// the partiality analyzer).
func (g *Graph) AncestorsDFS(start NodeHandle, visit func(NodeHandle) bool) {
	seen := make(map[NodeHandle]bool)
	var stack []NodeHandle
	stack = append(stack, g.in[start]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		if visit(n) {
			stack = append(stack, g.in[n]...)
		}
	}
}

// contentHash returns a hash of a node's name and output column names,
// without hashing the whole node. The per-column hashes are combined
// with XOR, so column order does not affect the result.
func contentHash(n *Node) uint32 {
	h := murmur3.Sum32([]byte(n.Name))
	buf := make([]byte, 4)
	for _, c := range n.Columns {
		binary.LittleEndian.PutUint32(buf, murmur3.Sum32([]byte(c)))
		h ^= murmur3.Sum32(buf)
	}
	return h
}

// SameShape reports whether two nodes' contentHash values match, a cheap
// pre-check before comparing full operator state: nodes with the same
// name and output columns always match, but different nodes may collide
// and column order is not compared.
func SameShape(a, b *Node) bool {
	return contentHash(a) == contentHash(b)
}
