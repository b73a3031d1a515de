package materialize

import (
	"fmt"

	"github.com/noria-core/materializer/graph"
	"github.com/noria-core/materializer/migrate"
	"github.com/noria-core/materializer/rserr"
)

// Commit runs the full materialization commit orchestration against
// newNodes: obligation computation, partiality analysis, invariant
// enforcement, frontier-strategy application, and replay-path
// installation. Every resulting domain message is staged into plan
// rather than sent directly — the live graph and registry are only
// mutated here, never over RPC; a separate migrate.Applier executes the
// plan afterward, matching the Plan Builder / Applier split described by
// the design notes.
//
// If any step fails, Commit returns before clearing the `added` set
// (Extend may already have added entries to it, and to `have`), so
// a caller that discards both plan and the staged graph/registry copy on
// error sees no partial effect. The live copies themselves are expected
// to be staging copies owned by the caller (see the controller package),
// not the authoritative graph directly.
func (r *Registry) Commit(g *graph.Graph, newNodes map[graph.NodeHandle]bool, plan *migrate.Plan) error {
	before := r.Snapshot()

	if err := r.Extend(g, newNodes); err != nil {
		return rserr.ErrMigrationPlanFailed.New(err.Error())
	}

	return r.Finalize(g, newNodes, before, plan)
}

// Finalize runs the invariant checks, frontier-strategy application,
// and replay-path installation a commit needs, against whatever
// extended state the registry is already in — without calling Extend
// itself.
//
// This is split out from Commit for package controller's redundant-
// partial repair loop (see DESIGN.md): that loop must call Extend and
// Validate repeatedly, mutating the graph between rounds, before the
// final commit runs — but Commit's own `before` snapshot has to be
// taken once, ahead of the *first* Extend call of the whole migration,
// not re-taken right before this last step. A second before snapshot
// taken here would already include every node the repair loop's own
// Extend calls had folded into `have`, making every one of them look
// pre-existing and silently swallowing their Ready messages.
func (r *Registry) Finalize(g *graph.Graph, newNodes map[graph.NodeHandle]bool, before map[graph.NodeHandle]bool, plan *migrate.Plan) error {
	if err := r.checkFullAbovePartial(g); err != nil {
		return err
	}

	r.applyFrontierStrategy(g)

	if err := r.checkFrontierDiscipline(g); err != nil {
		return err
	}

	if err := r.checkShardMergerAliasing(g, newNodes); err != nil {
		return err
	}

	// Group the paths Extend freshly recorded by node, so this walk never
	// re-plans a path itself: doing so after Extend has already folded ni
	// into `have` would make the planner see ni as its own materialized
	// ancestor and return a trivial one-hop path instead of the real
	// replay route (see DESIGN.md).
	freshByNode := make(map[graph.NodeHandle][]freshPath, len(r.fresh))
	for _, fp := range r.fresh {
		freshByNode[fp.Node] = append(freshByNode[fp.Node], fp)
	}

	for _, ni := range g.TopoOrder() {
		if !r.have.HasNode(ni) || r.added.Count(ni) == 0 {
			continue
		}

		node := g.MustNode(ni)
		domain := node.Domain
		plan.DeclareDomain(domain, 1)

		prepared := make(map[string]bool)
		for _, fp := range freshByNode[ni] {
			key := indexKey(fp.Idx)
			if !prepared[key] {
				prepared[key] = true
				if err := plan.Send(domain, nil, migrate.PrepareStateRequest{Node: ni, Indexes: []graph.Index{fp.Idx}}); err != nil {
					return rserr.ErrMigrationPlanFailed.New(err.Error())
				}
			}

			if err := plan.Send(domain, nil, migrate.SetupReplayPathRequest{Tag: fp.Tag, Path: fp.Path}); err != nil {
				return rserr.ErrMigrationPlanFailed.New(err.Error())
			}
			source := fp.Path.LastNode()
			plan.AddPending(migrate.PendingReplay{
				Tag:          fp.Tag,
				SourceDomain: g.MustNode(source).Domain,
				SourceNode:   source,
			})
		}

		if !before[ni] {
			if err := plan.Send(domain, nil, migrate.ReadyRequest{
				Node:    ni,
				Indexes: r.have.List(ni),
				Purge:   node.EagerEvict,
			}); err != nil {
				return rserr.ErrMigrationPlanFailed.New(err.Error())
			}
		}
	}

	if err := r.checkPartialKeyConsistency(); err != nil {
		return err
	}

	r.added = graph.NewCatalog()
	return nil
}

// indexKey returns a value suitable as a map key for deduping on index
// identity, since graph.Index carries a slice and so isn't itself
// comparable.
func indexKey(idx graph.Index) string {
	return fmt.Sprintf("%d:%v", idx.Kind, idx.Columns)
}
