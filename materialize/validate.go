package materialize

import "github.com/noria-core/materializer/graph"

// InvalidEdge names a direct edge from a partially materialized parent
// to a fully materialized child: a full node can only be derived from
// complete upstream state, so a full child can never sit directly below
// a partial parent (I1).
type InvalidEdge struct {
	Parent graph.NodeHandle
	Child  graph.NodeHandle
}

// Validate scans the nodes named by newNodes for an I1 violation,
// reporting at most one InvalidEdge per call. It never mutates anything:
// the caller (see package controller's repair loop) is expected to
// duplicate Parent into a fully materialized node, reroute Child's edge
// onto the duplicate, re-run Extend, and call Validate again, repeating
// until no violation remains.
func (r *Registry) Validate(g *graph.Graph, newNodes map[graph.NodeHandle]bool) (*InvalidEdge, error) {
	for child := range newNodes {
		if !r.have.HasNode(child) || r.partial[child] {
			continue
		}
		for _, parent := range g.NeighborsIn(child) {
			if r.have.HasNode(parent) && r.partial[parent] {
				return &InvalidEdge{Parent: parent, Child: child}, nil
			}
		}
	}
	return nil, nil
}

// ForceFull permanently forbids n from ever being admitted as partial,
// regardless of what the obligation computer would otherwise decide.
// Used by the redundant-partial repair loop to mark a duplicate node
// (created specifically to serve as a full ancestor) as full, since
// nothing else about the duplicate's own contract says so.
func (r *Registry) ForceFull(n graph.NodeHandle) {
	r.forceFull[n] = true
}
