package materialize

import (
	"github.com/sirupsen/logrus"

	"github.com/noria-core/materializer/graph"
	"github.com/noria-core/materializer/rserr"
)

// Extend extends the current set of materializations with any additional
// materializations needed to satisfy indexing obligations raised by the
// given set of newly-added nodes.
//
// This is the obligation computer (§4.2) and partiality analyzer (§4.3)
// combined into a single pass, exactly as the original does it: lookup
// obligations are resolved first (they're the only ones that can force a
// node to become materialized), then a reverse-topological worklist pass
// resolves replay obligations, deciding partiality as it goes.
func (r *Registry) Extend(g *graph.Graph, newNodes map[graph.NodeHandle]bool) error {
	r.fresh = nil

	lookupObligations := make(map[graph.NodeHandle]*graph.IndexSet)
	replayObligations := make(map[graph.NodeHandle]*graph.IndexSet)

	addLookup := func(n graph.NodeHandle, idx graph.Index) {
		s, ok := lookupObligations[n]
		if !ok {
			s = graph.NewIndexSet()
			lookupObligations[n] = s
		}
		s.Add(idx)
	}
	addReplay := func(n graph.NodeHandle, idx graph.Index) {
		s, ok := replayObligations[n]
		if !ok {
			s = graph.NewIndexSet()
			replayObligations[n] = s
		}
		s.Add(idx)
	}

	// Step 1: find indexes we need to add, from each new node's own
	// contract (reader key, or operator suggestions).
	for n := range newNodes {
		node := g.MustNode(n)

		type want struct {
			node   graph.NodeHandle
			index  graph.Index
			lookup bool
		}
		var wants []want

		if node.IsReader() {
			if node.Reader.IsMaterialized() {
				wants = append(wants, want{node: n, index: graph.HashMap(node.Reader.Key), lookup: false})
			} else {
				continue // streaming only, no indexing needed
			}
		} else {
			for target, sugg := range node.SuggestIndexes() {
				wants = append(wants, want{node: target, index: sugg.Index, lookup: sugg.NeedsLookup})
			}
		}

		if len(wants) == 0 && node.IsBase() {
			// we must always materialize base nodes: invariant I2.
			wants = append(wants, want{node: n, index: graph.HashMap([]int{0}), lookup: true})
		}

		for _, w := range wants {
			r.log.WithFields(logrus.Fields{
				"node": w.node, "columns": w.index.Columns, "lookup": w.lookup,
			}).Trace("new indexing obligation")
			if w.lookup {
				addLookup(w.node, w.index)
			} else {
				addReplay(w.node, w.index)
			}
		}
	}

	// Step 2: lookup obligations are rigid: they require a materialization,
	// and can only be pushed through query-through nodes, never across
	// domains. They're handled first because they're the only ones that
	// can force non-materialized nodes to become materialized.
	for n, indexes := range lookupObligations {
		mi := n
		m := g.MustNode(mi)
		cur := indexes
		for {
			if r.have.HasNode(mi) {
				break
			}
			if !m.IsInternal() || !m.CanQueryThrough() {
				break
			}
			parents := g.NeighborsIn(mi)
			if len(parents) != 1 {
				return rserr.ErrGraphInvariantViolated.New("query-through node has more than one ancestor")
			}
			parent := parents[0]
			mapped, err := mapIndices(m, parent, cur)
			if err != nil {
				return err
			}
			mi = parent
			cur = mapped
			m = g.MustNode(mi)
		}

		for _, idx := range cur.All() {
			r.log.WithFields(logrus.Fields{"node": mi, "columns": idx.Columns}).Info("adding lookup index to view")
			if r.have.Add(mi, idx) {
				addReplay(mi, idx)
				r.added.Add(mi, idx)
			}
		}
	}

	// Step 3: walk the graph bottom-up (reverse topological order),
	// resolving replay obligations and deciding partiality as we go. A
	// node may receive additional indexes after being visited only if we
	// process it in this order, which is why the order matters.
	ordered := g.TopoOrder()
	for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	}

	for _, ni := range ordered {
		indexes, ok := replayObligations[ni]
		if !ok {
			continue
		}
		delete(replayObligations, ni)

		node := g.MustNode(ni)
		able := r.partialEnabled
		add := make(map[graph.NodeHandle]*graph.IndexSet)

		if node.IsBase() {
			able = false
		}
		if node.IsInternal() && node.RequiresFullMaterialization() {
			r.log.WithField("node", ni).Warn("full because required")
			able = false
		}
		if r.forceFull[ni] {
			r.log.WithField("node", ni).Warn("full because forced by redundant-partial repair")
			able = false
		}

		// we are already fully materialized with existing indexes, so we
		// can't be demoted to partial.
		if !newNodes[ni] && r.added.Count(ni) != r.have.Count(ni) && !r.partial[ni] {
			r.log.WithField("node", ni).Warn("cannot turn full into partial")
			able = false
		}

		// do we have a full materialization below us?
		if able && r.hasFullMaterializationBelow(g, ni) {
			able = false
		}

		if able {
			for _, idx := range indexes.All() {
				paths, err := r.planPathsFor(g, ni, idx.Columns)
				if err != nil {
					return err
				}
				for _, path := range paths {
					nToSkip := 0
					if len(path) > 0 && path[0].Node == ni {
						nToSkip = 1
					}
					for i := nToSkip; i < len(path); i++ {
						entry := path[i]
						if entry.IsFull() {
							r.log.WithField("node", entry.Node).Warnf("full because node before %d requested full replay", entry.Node)
							able = false
							break
						}
						ancIdx := graph.NewIndex(idx.Kind, entry.Columns)
						if r.have.HasNode(entry.Node) {
							if !r.have.Has(entry.Node, ancIdx) {
								ensureSet(add, entry.Node).Add(ancIdx)
							}
							break
						}
						if i == nToSkip && nToSkip == 0 {
							r.log.WithField("node", entry.Node).Warnf("forcing materialization for node %d with generated columns", entry.Node)
							r.have.Ensure(entry.Node)
							ensureSet(add, entry.Node).Add(ancIdx)
						}
					}
					if !able {
						break
					}
				}
				if !able {
					break
				}
			}
		}

		if able {
			r.partial[ni] = true
			r.log.Warnf("using partial materialization for %d", ni)
			for mi, idxs := range add {
				for _, idx := range idxs.All() {
					addReplay(mi, idx)
				}
			}
		} else if node.EagerEvict {
			return rserr.ErrGraphInvariantViolated.New("full materialization placed beyond materialization frontier")
		}

		// Record a replay path, under a fresh tag, for every index this
		// node was obligated to carry. This must happen before ni is
		// recorded into `have` below: the planner needs to see ni as not
		// yet materialized so it walks to a real upstream ancestor instead
		// of terminating the search on ni itself.
		for _, idx := range indexes.All() {
			paths, err := r.planPathsFor(g, ni, idx.Columns)
			if err != nil {
				return err
			}
			for _, path := range paths {
				tag := r.nextTag()
				r.recordPath(ni, tag, path)
				r.fresh = append(r.fresh, freshPath{Node: ni, Idx: idx, Tag: tag, Path: path})
			}
		}

		// regardless of the partiality decision, fulfil the replay
		// obligations that were raised against this node: it becomes (or
		// remains) materialized, carrying every index it was asked for.
		for _, idx := range indexes.All() {
			added := r.have.Add(ni, idx)
			if added {
				r.log.WithFields(logrus.Fields{"on": ni, "columns": idx.Columns}).Info("adding index to view")
			}
			if added || r.partial[ni] {
				r.added.Add(ni, idx)
			}
		}
	}

	if len(replayObligations) != 0 {
		return rserr.ErrGraphInvariantViolated.New("replay obligations left unresolved after worklist pass")
	}
	return nil
}

func ensureSet(m map[graph.NodeHandle]*graph.IndexSet, n graph.NodeHandle) *graph.IndexSet {
	s, ok := m[n]
	if !ok {
		s = graph.NewIndexSet()
		m[n] = s
	}
	return s
}

// hasFullMaterializationBelow reports whether any materialized
// descendant of ni (reached via non-materialized nodes) is fully
// materialized, or whose name forces full via the "FULL_" annotation
// override.
func (r *Registry) hasFullMaterializationBelow(g *graph.Graph, ni graph.NodeHandle) bool {
	stack := g.NeighborsOut(ni)
	for len(stack) > 0 {
		child := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		cn := g.MustNode(child)
		if hasFullPrefix(cn.Name) {
			return true
		}

		if r.have.HasNode(child) {
			if !r.partial[child] {
				r.log.WithFields(logrus.Fields{"node": ni, "child": child}).Warn("full because descendant is full")
				return true
			}
			continue
		}
		if cn.IsReader() && cn.Reader.IsMaterialized() {
			if !r.partial[child] {
				r.log.WithFields(logrus.Fields{"node": ni, "reader": child}).Warn("full because reader below is full")
				return true
			}
			continue
		}
		stack = append(stack, g.NeighborsOut(child)...)
	}
	return false
}

func hasFullPrefix(name string) bool {
	return len(name) >= len("FULL_") && name[:len("FULL_")] == "FULL_"
}

// mapIndices rewrites each index in indices from node n's own column
// space into parent's column space, via n's ParentColumns contract.
func mapIndices(n *graph.Node, parent graph.NodeHandle, indices *graph.IndexSet) (*graph.IndexSet, error) {
	out := graph.NewIndexSet()
	for _, idx := range indices.All() {
		cols := make([]int, len(idx.Columns))
		for i, col := range idx.Columns {
			if !n.IsInternal() {
				return nil, rserr.ErrGraphInvariantViolated.New("non-internal, non-base node in obligation hoisting")
			}
			pcs, err := n.ParentColumns(col)
			if err != nil {
				return nil, err
			}
			resolved := -1
			for _, pc := range pcs {
				if pc.Parent == parent && pc.Column != nil {
					resolved = *pc.Column
					break
				}
			}
			if resolved < 0 {
				return nil, rserr.ErrObligationUnresolvable.New(n.ID, parent, col)
			}
			cols[i] = resolved
		}
		out.Add(graph.NewIndex(idx.Kind, cols))
	}
	return out, nil
}

