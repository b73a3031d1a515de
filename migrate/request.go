// Package migrate implements the Migration Plan and Applier: the
// serializable record of domain-placement and domain-message actions a
// commit produces, and the component that executes that record against
// live domains over RPC.
//
// It is ported from the Noria/ReadySet controller's
// `controller::migrate` module (see DESIGN.md): `DomainMigrationPlan`
// becomes Plan and `StoredDomainRequest` becomes Request. The
// redundant-partial duplication repair loop lives in package controller,
// not here, since it needs package materialize, which imports this one.
package migrate

import (
	"github.com/noria-core/materializer/graph"
)

// WorkerID identifies a worker process a domain shard can be placed on.
type WorkerID string

// Request is one domain-directed message a Plan can carry. Concrete
// types below implement it as a marker; the Applier type-switches on the
// concrete type to decide how to execute it.
type Request interface {
	isRequest()
}

// Response is whatever a domain returns for a Request. QueryReplayDone
// returns a bool; everything else returns nil on success.
type Response interface{}

// AddNodeRequest installs a brand new node (with no state) into a
// domain.
type AddNodeRequest struct {
	Node graph.NodeHandle
}

func (AddNodeRequest) isRequest() {}

// AddBaseColumnRequest informs a base node's domain of a new column and
// its default value, so in-flight and future writes see it.
type AddBaseColumnRequest struct {
	Node    graph.NodeHandle
	Field   string
	Default any
}

func (AddBaseColumnRequest) isRequest() {}

// DropBaseColumnRequest informs a base node's domain that a column has
// been removed.
type DropBaseColumnRequest struct {
	Node   graph.NodeHandle
	Column int
}

func (DropBaseColumnRequest) isRequest() {}

// PrepareStateRequest tells a domain to allocate the given index set for
// a node before any replay path references it.
type PrepareStateRequest struct {
	Node    graph.NodeHandle
	Indexes []graph.Index
}

func (PrepareStateRequest) isRequest() {}

// SetupReplayPathRequest installs one replay path under the given tag.
type SetupReplayPathRequest struct {
	Tag  graph.Tag
	Path graph.ReplayPath
}

func (SetupReplayPathRequest) isRequest() {}

// StartReplayRequest kicks off replay along an already-installed path,
// reading from the given source node.
type StartReplayRequest struct {
	Tag    graph.Tag
	Source graph.NodeHandle
}

func (StartReplayRequest) isRequest() {}

// ReadyRequest marks a node as ready to serve the given index set, and
// whether it sits beyond the materialization frontier (eager eviction).
type ReadyRequest struct {
	Node    graph.NodeHandle
	Indexes []graph.Index
	Purge   bool
}

func (ReadyRequest) isRequest() {}

// QueryReplayDoneRequest is a barrier: the Applier polls the target
// domain with this request until some shard answers true.
type QueryReplayDoneRequest struct {
	Tag graph.Tag
}

func (QueryReplayDoneRequest) isRequest() {}
