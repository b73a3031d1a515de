package graph

// Tag uniquely identifies one replay path, process-wide. Tags are
// allocated monotonically by a single counter owned by the controller
// (see materialize.Registry.nextTag) and must fit in 32 bits for the
// wire format.
type Tag uint32

// PathEntry is one hop of a replay path: a node, and either the columns
// of the index being reconstructed at that node, or nil if this hop
// forces a full replay segment (a generated column broke key-based
// provenance, per invariant I7).
type PathEntry struct {
	Node    NodeHandle
	Columns []int // nil marks a full replay segment
}

// IsFull reports whether this hop is part of a full (non-keyed) replay
// segment.
func (e PathEntry) IsFull() bool { return e.Columns == nil }

// ReplayPath is an ordered list of hops, starting at the node requesting
// reconstruction (inclusive) and ending at a materialized ancestor.
type ReplayPath []PathEntry

// Clone returns a deep copy of the path.
func (p ReplayPath) Clone() ReplayPath {
	out := make(ReplayPath, len(p))
	for i, e := range p {
		cols := append([]int(nil), e.Columns...)
		out[i] = PathEntry{Node: e.Node, Columns: cols}
	}
	return out
}

// LastNode returns the node at the end of the path (the materialized
// ancestor the path terminates at).
func (p ReplayPath) LastNode() NodeHandle {
	return p[len(p)-1].Node
}
