package materialize

import (
	"github.com/noria-core/materializer/graph"
	"github.com/noria-core/materializer/rserr"
)

// planPathsFor computes the replay path(s) needed to reconstruct columns
// of node ni, starting at ni itself and walking upward until a
// materialized ancestor is reached at every branch.
//
// Resolution normally follows column provenance (operator.ParentColumns),
// which is what lets a path branch at a Union: each parent the union
// pulls from gets its own path (Extend then gives each path its own
// fresh tag). If a column's
// provenance is nil (generated, e.g. a GroupBy aggregate or computed
// Project expression), there is no keyed path past that point, so the
// walk switches to a full replay segment that follows raw graph edges
// instead of column provenance until a materialized ancestor or a base
// is found; columns are not inspected again inside that segment. A
// branch in the graph (a node with other than one parent) while inside
// a full segment leaves no way to reconstruct a single coherent full
// copy, so that is reported as unresolvable.
func (r *Registry) planPathsFor(g *graph.Graph, ni graph.NodeHandle, columns []int) ([]graph.ReplayPath, error) {
	type frame struct {
		node    graph.NodeHandle
		columns []int // nil while inside a full segment
		path    graph.ReplayPath
	}

	start := frame{node: ni, columns: append([]int(nil), columns...), path: graph.ReplayPath{{Node: ni, Columns: append([]int(nil), columns...)}}}
	var out []graph.ReplayPath
	stack := []frame{start}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if r.have.HasNode(f.node) && len(f.path) > 1 {
			out = append(out, f.path)
			continue
		}
		if r.have.HasNode(f.node) && len(f.path) == 1 {
			// ni is itself already materialized: trivially satisfied path
			// of length one.
			out = append(out, f.path)
			continue
		}

		node := g.MustNode(f.node)

		if f.columns == nil {
			// full segment: walk raw graph edges.
			if node.IsBase() {
				out = append(out, f.path)
				continue
			}
			parents := g.NeighborsIn(f.node)
			if len(parents) != 1 {
				return nil, rserr.ErrObligationUnresolvable.New(f.node, graph.NoDomain, -1)
			}
			next := frame{
				node:    parents[0],
				columns: nil,
				path:    append(f.path.Clone(), graph.PathEntry{Node: parents[0], Columns: nil}),
			}
			stack = append(stack, next)
			continue
		}

		if node.IsBase() {
			out = append(out, f.path)
			continue
		}

		if !node.IsInternal() {
			// Reader, Ingress, Egress, Sharder and ShardMerger carry no
			// operator contract: they pass every column straight through to
			// their single upstream node unchanged.
			parents := g.NeighborsIn(f.node)
			if len(parents) != 1 {
				return nil, rserr.ErrObligationUnresolvable.New(f.node, graph.NoDomain, -1)
			}
			next := frame{
				node:    parents[0],
				columns: append([]int(nil), f.columns...),
				path:    append(f.path.Clone(), graph.PathEntry{Node: parents[0], Columns: append([]int(nil), f.columns...)}),
			}
			stack = append(stack, next)
			continue
		}

		branches, generated, err := resolveBranches(node, f.columns)
		if err != nil {
			return nil, err
		}

		if generated {
			if node.IsSource() {
				return nil, rserr.ErrObligationUnresolvable.New(f.node, graph.NoDomain, -1)
			}
			parents := g.NeighborsIn(f.node)
			if len(parents) != 1 {
				return nil, rserr.ErrObligationUnresolvable.New(f.node, graph.NoDomain, -1)
			}
			next := frame{
				node:    parents[0],
				columns: nil,
				path:    append(f.path.Clone(), graph.PathEntry{Node: parents[0], Columns: nil}),
			}
			stack = append(stack, next)
			continue
		}

		for parent, cols := range branches {
			next := frame{
				node:    parent,
				columns: cols,
				path:    append(f.path.Clone(), graph.PathEntry{Node: parent, Columns: cols}),
			}
			stack = append(stack, next)
		}
	}

	if len(out) == 0 {
		return nil, rserr.ErrObligationUnresolvable.New(ni, graph.NoDomain, -1)
	}
	return out, nil
}

// resolveBranches resolves every column in cols through node's
// ParentColumns contract, grouping the results by parent. It requires
// every column to resolve to the same set of parents (the branch
// structure must be uniform across all key columns), else the obligation
// cannot be expressed as a single coherent set of per-parent paths.
func resolveBranches(node *graph.Node, cols []int) (map[graph.NodeHandle][]int, bool, error) {
	var parentOrder []graph.NodeHandle
	branch := make(map[graph.NodeHandle][]int)

	for i, col := range cols {
		pcs, err := node.ParentColumns(col)
		if err != nil {
			return nil, false, err
		}
		if len(pcs) == 0 {
			return nil, false, rserr.ErrObligationUnresolvable.New(node.ID, graph.NoDomain, col)
		}

		for _, pc := range pcs {
			if pc.Column == nil {
				if i != 0 || len(cols) != 1 {
					// a generated column mixed in with other resolvable
					// columns can't be reconciled into one path.
					return nil, false, rserr.ErrObligationUnresolvable.New(node.ID, pc.Parent, col)
				}
				return nil, true, nil
			}
		}

		if i == 0 {
			for _, pc := range pcs {
				parentOrder = append(parentOrder, pc.Parent)
			}
		} else if len(pcs) != len(parentOrder) {
			return nil, false, rserr.ErrObligationUnresolvable.New(node.ID, graph.NoDomain, col)
		}

		for _, pc := range pcs {
			branch[pc.Parent] = append(branch[pc.Parent], *pc.Column)
		}
	}

	return branch, false, nil
}
