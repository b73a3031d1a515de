// Package materialize implements the materialization registry, the
// obligation computer, the partiality analyzer, the replay-path
// planner, and the commit orchestration described by the
// specification's component design (§4.2-§4.5). It is ported directly
// from the Noria/ReadySet controller's
// `controller::migrate::materialization` module (see DESIGN.md), kept
// in the teacher's idiom: a single owning struct threading a scoped
// logger, one method per responsibility, structured errors from
// package rserr.
package materialize

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/noria-core/materializer/graph"
)

// FrontierStrategy selects which (partial) materializations are placed
// beyond the materialization frontier (eagerly evicted, "purge").
//
// Only partial nodes are considered. Regardless of strategy, every
// partial node whose name starts with "SHALLOW_" is placed beyond the
// frontier.
type FrontierStrategy struct {
	kind  frontierKind
	match string
}

type frontierKind int

const (
	frontierNone frontierKind = iota
	frontierAllPartial
	frontierReaders
	frontierMatch
)

// FrontierNone places no nodes beyond the frontier. This is the default.
var FrontierNone = FrontierStrategy{kind: frontierNone}

// FrontierAllPartial places every partial materialization beyond the
// frontier.
var FrontierAllPartial = FrontierStrategy{kind: frontierAllPartial}

// FrontierReaders places every partial reader beyond the frontier.
var FrontierReaders = FrontierStrategy{kind: frontierReaders}

// FrontierMatch places every partial node whose name contains substr
// beyond the frontier.
func FrontierMatch(substr string) FrontierStrategy {
	return FrontierStrategy{kind: frontierMatch, match: substr}
}

// Status is the materialization status of a single node.
type Status struct {
	Materialized bool
	Partial      bool
	BeyondFrontier bool
}

// Registry is the materialization registry: per node, whether it has
// state, which indexes that state carries, whether it is partial, and
// whether it sits beyond the eviction frontier. It also owns the
// monotonic tag counter used to allocate replay path tags.
//
// A Registry is not safe for concurrent use; the controller serializes
// all migrations through a single owner, matching the single-writer
// model described by the specification's concurrency section.
type Registry struct {
	log *logrus.Entry

	// have is every materialized node's current index set.
	have *graph.Catalog
	// added is the subset of indexes added since the last commit. Every
	// entry in added is also present in have.
	added *graph.Catalog

	// paths records, per node, the replay paths installed for it, keyed
	// by tag.
	paths map[graph.NodeHandle]map[graph.Tag]graph.ReplayPath

	partial map[graph.NodeHandle]bool

	partialEnabled   bool
	frontierStrategy FrontierStrategy

	tagCounter uint32

	// redundant maps a partial node to a fully materialized duplicate
	// created by the redundant-partial repair loop (see controller package),
	// so later lookups can find an existing duplicate instead of making a
	// new one every time the same edge is encountered again.
	redundant map[graph.NodeHandle]graph.NodeHandle

	// fresh accumulates the replay paths recorded by the most recent
	// Extend call, for Commit to drain into domain messages. Extend
	// resets this at the start of every call.
	fresh []freshPath

	// forceFull marks nodes that may never be admitted as partial,
	// regardless of what the obligation computer would otherwise decide.
	// Set via ForceFull by the redundant-partial repair loop.
	forceFull map[graph.NodeHandle]bool
}

// freshPath is one replay path recorded during an Extend pass, not yet
// staged into a migration plan.
type freshPath struct {
	Node graph.NodeHandle
	Idx  graph.Index
	Tag  graph.Tag
	Path graph.ReplayPath
}

// New returns an empty Registry logging through log.
func New(log *logrus.Entry) *Registry {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{
		log:              log,
		have:             graph.NewCatalog(),
		added:            graph.NewCatalog(),
		paths:            make(map[graph.NodeHandle]map[graph.Tag]graph.ReplayPath),
		partial:          make(map[graph.NodeHandle]bool),
		partialEnabled:   true,
		frontierStrategy: FrontierNone,
		redundant:        make(map[graph.NodeHandle]graph.NodeHandle),
		forceFull:        make(map[graph.NodeHandle]bool),
	}
}

// DisablePartial disables partial materialization for all new
// materializations from this point on.
func (r *Registry) DisablePartial() { r.partialEnabled = false }

// SetFrontierStrategy sets which nodes are placed beyond the
// materialization frontier.
func (r *Registry) SetFrontierStrategy(fs FrontierStrategy) { r.frontierStrategy = fs }

func (r *Registry) nextTag() graph.Tag {
	return graph.Tag(atomic.AddUint32(&r.tagCounter, 1) - 1)
}

// IsMaterialized reports whether n currently holds any state.
func (r *Registry) IsMaterialized(n graph.NodeHandle) bool {
	return r.have.HasNode(n)
}

// IsPartial reports whether n is currently partially materialized.
func (r *Registry) IsPartial(n graph.NodeHandle) bool {
	return r.partial[n]
}

// Indexes returns the indexes currently held by n.
func (r *Registry) Indexes(n graph.NodeHandle) []graph.Index {
	return r.have.List(n)
}

// GetStatus retrieves the materialization status of n, consulting the
// node itself for reader-state (a materialized reader counts as
// materialized even before any index has been explicitly added to the
// registry).
func (r *Registry) GetStatus(n graph.NodeHandle, node *graph.Node) Status {
	materialized := r.have.HasNode(n) || (node.Reader != nil && node.Reader.IsMaterialized())
	if !materialized {
		return Status{}
	}
	if r.partial[n] {
		return Status{Materialized: true, Partial: true, BeyondFrontier: node.EagerEvict}
	}
	return Status{Materialized: true}
}

// GetRedundant returns the fully materialized duplicate of n created by
// the redundant-partial repair loop, if one exists.
func (r *Registry) GetRedundant(n graph.NodeHandle) (graph.NodeHandle, bool) {
	d, ok := r.redundant[n]
	return d, ok
}

// RecordRedundant registers dup as the fully materialized duplicate of
// orig, merging in any entries discovered during planning.
func (r *Registry) RecordRedundant(extra map[graph.NodeHandle]graph.NodeHandle) {
	for orig, dup := range extra {
		r.redundant[orig] = dup
	}
}

// Snapshot returns the set of currently materialized nodes. Callers
// that need to run Extend more than once before a final Commit/Finalize
// (see package controller's redundant-partial repair loop) take this
// snapshot once, before the first Extend call, and pass it on to
// Finalize so newly materialized nodes are correctly recognized as new
// regardless of which Extend call actually added them.
func (r *Registry) Snapshot() map[graph.NodeHandle]bool {
	out := make(map[graph.NodeHandle]bool, len(r.have.Nodes()))
	for _, n := range r.have.Nodes() {
		out[n] = true
	}
	return out
}

// PathsFor returns the replay paths installed for node n, keyed by tag.
func (r *Registry) PathsFor(n graph.NodeHandle) map[graph.Tag]graph.ReplayPath {
	return r.paths[n]
}

// recordPath installs path under tag against node n.
func (r *Registry) recordPath(n graph.NodeHandle, tag graph.Tag, path graph.ReplayPath) {
	byTag, ok := r.paths[n]
	if !ok {
		byTag = make(map[graph.Tag]graph.ReplayPath)
		r.paths[n] = byTag
	}
	byTag[tag] = path
}
