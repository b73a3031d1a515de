// Package graph implements the operator graph model and index catalog
// described by the materialization planner's data model: an acyclic
// operator graph with a distinguished source, per-node output columns,
// sharding and domain assignment, and the index sets the catalog
// tracks for each node.
//
// All operations here are pure, synchronous and deterministic. The
// graph is mutated only during migration planning, and only by the
// single owner holding it (see the controller package).
package graph

import "fmt"

// NodeHandle is a stable integer handle identifying a node. Handles are
// never reused once assigned.
type NodeHandle int

// DomainID identifies a scheduling unit that owns a contiguous subgraph
// of operators.
type DomainID int

// NoDomain marks a not-yet-assigned domain. It is not DomainID's zero
// value; Graph.AddNode maps a zero Domain to NoDomain.
const NoDomain DomainID = -1

// Kind is the type of a node in the operator graph.
type Kind int

const (
	// Source is the single distinguished root of the graph.
	Source Kind = iota
	// Base is a base table; always materialized (I2).
	Base
	// Internal is a regular dataflow operator.
	Internal
	// Reader exposes maintained state to external queriers.
	Reader
	// Ingress marks where data enters a domain from another domain.
	Ingress
	// Egress marks where data leaves a domain toward another domain.
	Egress
	// Sharder splits a stream across shards by column.
	Sharder
	// ShardMerger reunifies shards from a sharded subgraph.
	ShardMerger
	// Dropped marks a node removed from the live graph; dropped nodes are
	// skipped by every topological walk.
	Dropped
)

func (k Kind) String() string {
	switch k {
	case Source:
		return "source"
	case Base:
		return "base"
	case Internal:
		return "internal"
	case Reader:
		return "reader"
	case Ingress:
		return "ingress"
	case Egress:
		return "egress"
	case Sharder:
		return "sharder"
	case ShardMerger:
		return "shard-merger"
	case Dropped:
		return "dropped"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sharding describes how a node's state is horizontally partitioned.
type Sharding struct {
	// Column is the sharding column index, or nil if the node is not
	// sharded.
	Column *int
}

// None reports whether the node carries no sharding.
func (s Sharding) None() bool { return s.Column == nil }

// ByColumn returns a Sharding partitioned by the given column.
func ByColumn(col int) Sharding {
	c := col
	return Sharding{Column: &c}
}

// Node is one vertex of the operator graph.
type Node struct {
	ID   NodeHandle
	Kind Kind
	// Name is used for frontier heuristics (the "SHALLOW_"/"FULL_"
	// prefixes) and for diagnostics.
	Name string
	// Columns lists this node's output columns in order.
	Columns []string
	// Sharding describes how this node's state is partitioned, if at all.
	Sharding Sharding
	// Domain is the domain this node has been assigned to. NoDomain until
	// placement runs.
	Domain DomainID
	// EagerEvict ("purge") marks this node as beyond the materialization
	// frontier: state is aggressively evicted once it's no longer
	// immediately useful.
	EagerEvict bool

	// Operator is the operator-supplied contract used by the obligation
	// computer and partiality analyzer. Nil for non-internal kinds.
	Operator Operator

	// Reader holds reader-specific state. Nil for non-reader kinds.
	Reader *ReaderSpec
}

// ReaderSpec is the reader-specific state carried by a Reader node.
type ReaderSpec struct {
	// Key is the column list the reader is keyed on. A nil Key means the
	// reader is streaming-only and needs no index or materialization.
	Key []int
}

// IsMaterialized reports whether this reader maintains queryable state
// (as opposed to being streaming-only).
func (r *ReaderSpec) IsMaterialized() bool { return r != nil && r.Key != nil }

// Operator is implemented by whatever package models concrete dataflow
// operators (see package operator). It is declared here, rather than
// imported, to avoid a cycle: the graph must be able to hold a reference
// to an operator without depending on the concrete operator types.
type Operator interface {
	// SuggestIndexes reports indexes this operator would like some
	// ancestor (possibly itself) to carry, keyed by the node that should
	// carry the index, with a flag distinguishing lookup obligations
	// (which force materialization) from replay obligations (which only
	// force an index where one already exists or will exist).
	SuggestIndexes(self NodeHandle) map[NodeHandle]SuggestedIndex
	// ParentColumns resolves the provenance of output column col,
	// returning one entry per parent that contributes to it. A nil
	// *int for a parent means the column is generated by this operator
	// (no provenance through that parent).
	ParentColumns(col int) ([]ParentColumn, error)
	// CanQueryThrough reports whether a lookup obligation may be hoisted
	// through this operator without materializing it.
	CanQueryThrough() bool
	// RequiresFullMaterialization reports an operator annotation
	// overriding partiality admissibility to always-full.
	RequiresFullMaterialization() bool
}

// SuggestedIndex is one entry of an operator's suggested index map.
type SuggestedIndex struct {
	Index       Index
	NeedsLookup bool
}

// ParentColumn is one entry of column provenance: the parent node, and
// the column in that parent that supplies the value, or nil if the
// column is generated (no such provenance).
type ParentColumn struct {
	Parent NodeHandle
	Column *int
}

// IsBase, IsReader, IsInternal, IsSource, IsDropped, IsShardMerger report
// the node's kind.
func (n *Node) IsBase() bool        { return n.Kind == Base }
func (n *Node) IsReader() bool      { return n.Kind == Reader }
func (n *Node) IsInternal() bool    { return n.Kind == Internal }
func (n *Node) IsSource() bool      { return n.Kind == Source }
func (n *Node) IsDropped() bool     { return n.Kind == Dropped }
func (n *Node) IsShardMerger() bool { return n.Kind == ShardMerger }
func (n *Node) IsEgress() bool      { return n.Kind == Egress }

// CanQueryThrough reports whether this node's operator allows lookup
// obligations to be hoisted through it. Non-internal nodes never allow
// query-through.
func (n *Node) CanQueryThrough() bool {
	return n.Kind == Internal && n.Operator != nil && n.Operator.CanQueryThrough()
}

// RequiresFullMaterialization reports whether this node's operator
// forces full materialization regardless of descendant partiality.
func (n *Node) RequiresFullMaterialization() bool {
	return n.Kind == Internal && n.Operator != nil && n.Operator.RequiresFullMaterialization()
}

// ParentColumns resolves provenance for output column col through this
// node's operator. Only valid on internal nodes.
func (n *Node) ParentColumns(col int) ([]ParentColumn, error) {
	if n.Operator == nil {
		return nil, fmt.Errorf("node %d: no operator to resolve parent columns", n.ID)
	}
	return n.Operator.ParentColumns(col)
}

// SuggestIndexes returns this node's operator's suggested indexes, or an
// empty map if the node has no operator.
func (n *Node) SuggestIndexes() map[NodeHandle]SuggestedIndex {
	if n.Operator == nil {
		return nil
	}
	return n.Operator.SuggestIndexes(n.ID)
}
