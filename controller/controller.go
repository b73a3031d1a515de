package controller

import (
	"github.com/noria-core/materializer/graph"
	"github.com/noria-core/materializer/migrate"
)

// Plan finalizes this migration: it assigns every newly added node to a
// domain, stages its placement and installation, repairs any redundant-
// partial violation the new nodes introduced, and runs the
// materialization commit, producing a migrate.Plan ready for an
// Applier. It never performs RPC itself — only the returned Plan's
// Apply does.
//
// Domain assignment here is a deliberate simplification: the original
// runs a cost-based `scheduling::Scheduler` to pack multiple nodes per
// domain (its source was not retrieved into this pack — see
// DESIGN.md). This module's scope is index and replay-path planning,
// not partitioning, so Plan assigns one fresh domain per node instead,
// which is sufficient to drive the rest of the pipeline correctly; a
// real deployment would substitute a packing scheduler here without
// touching the materialization registry at all.
func (m *Migration) Plan() (*migrate.Plan, error) {
	reg := m.ctrl.registry
	g := m.g

	newNodes := m.AddedNodes()
	before := reg.Snapshot()
	if err := m.repairRedundantPartial(newNodes); err != nil {
		return nil, err
	}

	m.assignDomains(newNodes)

	plan := migrate.New(m.ctrl.log.WithField("component", "migrate"))
	for n := range newNodes {
		node := g.MustNode(n)
		plan.DeclareDomain(node.Domain, 1)
	}
	// Column changes, and an Add's egress->ingress fan-out, may name
	// nodes placed in a prior migration, so their domains need declaring
	// here too, not just newNodes'.
	columnTargets := make(map[int][]graph.NodeHandle, len(m.columns))
	for i, ch := range m.columns {
		targets := []graph.NodeHandle{ch.node}
		if ch.kind == columnAdd {
			targets = addColumnInformTargets(g, ch.node)
		}
		columnTargets[i] = targets
		for _, target := range targets {
			plan.DeclareDomain(g.MustNode(target).Domain, 1)
		}
	}
	for _, n := range g.TopoOrder() {
		if !newNodes[n] {
			continue
		}
		node := g.MustNode(n)
		if err := plan.Place(node.Domain, nil, []graph.NodeHandle{n}); err != nil {
			return nil, err
		}
		if err := plan.Send(node.Domain, nil, migrate.AddNodeRequest{Node: n}); err != nil {
			return nil, err
		}
	}
	for i, ch := range m.columns {
		for _, target := range columnTargets[i] {
			var req migrate.Request
			switch ch.kind {
			case columnAdd:
				req = migrate.AddBaseColumnRequest{Node: target, Field: ch.field, Default: ch.def}
			case columnDrop:
				req = migrate.DropBaseColumnRequest{Node: target, Column: ch.column}
			}
			if err := plan.Send(g.MustNode(target).Domain, nil, req); err != nil {
				return nil, err
			}
		}
	}

	if err := reg.Finalize(g, newNodes, before, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// repairRedundantPartial repeatedly extends the registry against
// newNodes and validates the result, duplicating the partial parent of
// any I1 violation as a fully materialized node and rerouting the
// offending edge onto the duplicate,
// until no violation remains. Grounded on `Migration::plan`'s
// `InvalidEdge` handling (`migrate/mod.rs` lines ~900-945, see
// DESIGN.md): look up or create a fully materialized duplicate of the
// violating parent, reroute the child's edge onto it, recreate the
// parent's own incoming edges onto the duplicate if it's new, and loop.
func (m *Migration) repairRedundantPartial(newNodes map[graph.NodeHandle]bool) error {
	reg := m.ctrl.registry
	g := m.g
	local := make(map[graph.NodeHandle]graph.NodeHandle)

	for {
		if err := reg.Extend(g, newNodes); err != nil {
			return err
		}
		invalid, err := reg.Validate(g, newNodes)
		if err != nil {
			return err
		}
		if invalid == nil {
			return nil
		}

		dup, created := m.duplicateFor(local, invalid.Parent)
		if created {
			newNodes[dup] = true
			reg.ForceFull(dup)
			for _, anc := range g.NeighborsIn(invalid.Parent) {
				g.AddEdge(anc, dup)
			}
		}

		g.AddEdge(dup, invalid.Child)
		g.RemoveEdge(invalid.Parent, invalid.Child)
	}
}

// duplicateFor returns the fully materialized duplicate standing in for
// parent, reusing one already recorded by a prior Plan call (via the
// registry's redundant map) or created earlier in this same repair
// loop (via local), creating a fresh one only if neither exists.
func (m *Migration) duplicateFor(local map[graph.NodeHandle]graph.NodeHandle, parent graph.NodeHandle) (graph.NodeHandle, bool) {
	reg := m.ctrl.registry
	if d, ok := reg.GetRedundant(parent); ok {
		return d, false
	}
	if d, ok := local[parent]; ok {
		return d, false
	}
	dup := m.g.DuplicateNode(parent)
	local[parent] = dup
	reg.RecordRedundant(map[graph.NodeHandle]graph.NodeHandle{parent: dup})
	return dup, true
}

// assignDomains gives every node in newNodes still carrying NoDomain a
// fresh domain of its own, in topological order so domain IDs read
// roughly source-to-sink.
func (m *Migration) assignDomains(newNodes map[graph.NodeHandle]bool) {
	for _, n := range m.g.TopoOrder() {
		if !newNodes[n] {
			continue
		}
		node := m.g.MustNode(n)
		if node.Domain == graph.NoDomain {
			node.Domain = m.ctrl.allocDomain()
		}
	}
}
