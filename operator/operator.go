// Package operator models the small set of dataflow operator kinds the
// obligation computer and partiality analyzer need to consult. Per the
// design notes on "query-through polymorphism", operators are modeled as
// a capability record (an interface) rather than via inheritance: each
// concrete operator type answers SuggestIndexes, ParentColumns,
// CanQueryThrough and RequiresFullMaterialization for itself.
//
// These are intentionally the operator-supplied contracts the
// materialization planner treats as given, not invented by the planner:
// per-operator execution semantics (joins, aggregates, projections) live
// entirely outside this module's scope. The types here exist only to
// drive the seed scenarios and tests.
package operator

import "github.com/noria-core/materializer/graph"

// Operator re-exports graph.Operator so callers building a migration
// against this package never need to import graph just to name the
// interface type their own operator values already satisfy.
type Operator = graph.Operator

// PostLookup describes post-processing applied to the results of a
// reader lookup (ordering, limiting, aggregation over the looked-up
// rows). The shape of post-lookup processing is owned by the execution
// layer; this module only threads it through Maintain calls untouched.
type PostLookup struct {
	Order  []int
	Limit  int
	Offset int
}

// PlaceholderKind distinguishes how a bind parameter maps onto a view's
// key columns.
type PlaceholderKind int

const (
	// PlaceholderEquality binds a single key column for equality lookup.
	PlaceholderEquality PlaceholderKind = iota
	// PlaceholderRange binds a key column for a range lookup.
	PlaceholderRange
)

// PlaceholderMapping records which bind parameter maps onto which key
// column of a maintained view, and how.
type PlaceholderMapping struct {
	Kind      PlaceholderKind
	KeyColumn int
}

// Base is the operator kind for a base table. Base nodes never suggest
// an index of their own (the obligation computer synthesizes Hash([0])
// for them per invariant I2 if nothing more specific applies), can never
// be queried through, and never require full materialization (the
// question doesn't apply: bases are always fully materialized).
type Base struct{}

func (Base) SuggestIndexes(graph.NodeHandle) map[graph.NodeHandle]graph.SuggestedIndex {
	return nil
}

func (Base) ParentColumns(col int) ([]graph.ParentColumn, error) {
	return nil, nil
}

func (Base) CanQueryThrough() bool { return false }

func (Base) RequiresFullMaterialization() bool { return false }

// BaseSpec describes a base table's own schema and storage knobs, as
// handed to the builder's AddBase call. It mirrors the small set of
// facts the original's `Base` node-kind carries ahead of any operator
// logic: a primary key, a default value per column, and how the table's
// rows are partitioned across shards. Of these, the builder's AddBase
// reads only Sharding.
type BaseSpec struct {
	// PrimaryKey lists the column indexes making up the table's key. A
	// nil PrimaryKey means the table is keyed by row order only (the
	// obligation computer still forces Hash([0]) per I2).
	PrimaryKey []int

	// Defaults holds one default value per column in field order. No
	// code in this module reads it; a later AddColumn takes its own
	// default value as an argument.
	Defaults []any

	// Sharding describes how this base table's own rows are sharded,
	// independent from how any downstream view re-shards them.
	Sharding graph.Sharding
}

// Identity is a pass-through operator (e.g. a renamed column alias) that
// can always be queried through and never suggests its own index.
type Identity struct {
	// Parent is the single ancestor this node passes columns through to
	// unchanged.
	Parent graph.NodeHandle
	// NumColumns is the number of output columns.
	NumColumns int
}

func (Identity) SuggestIndexes(graph.NodeHandle) map[graph.NodeHandle]graph.SuggestedIndex {
	return nil
}

func (id Identity) ParentColumns(col int) ([]graph.ParentColumn, error) {
	c := col
	return []graph.ParentColumn{{Parent: id.Parent, Column: &c}}, nil
}

func (Identity) CanQueryThrough() bool { return true }

func (Identity) RequiresFullMaterialization() bool { return false }

// Filter is a row-filtering operator (WHERE col = ?). It passes every
// column straight through to its single parent and can be queried
// through, since a lookup against a filtered view can be pushed to a
// lookup against the unfiltered parent.
type Filter struct {
	Parent graph.NodeHandle
}

func (Filter) SuggestIndexes(graph.NodeHandle) map[graph.NodeHandle]graph.SuggestedIndex {
	return nil
}

func (f Filter) ParentColumns(col int) ([]graph.ParentColumn, error) {
	c := col
	return []graph.ParentColumn{{Parent: f.Parent, Column: &c}}, nil
}

func (Filter) CanQueryThrough() bool { return true }

func (Filter) RequiresFullMaterialization() bool { return false }

// GroupBy is an aggregation operator (e.g. COUNT/SUM grouped by a key).
// It suggests that its own state be indexed by the group key (a replay
// obligation, not a lookup obligation: the aggregate itself decides
// whether it needs to be materialized via the obligations flowing
// through it from downstream), and cannot be queried through, since an
// aggregate's output rows don't correspond 1:1 with input rows.
type GroupBy struct {
	Parent    graph.NodeHandle
	GroupCols []int
}

func (g GroupBy) SuggestIndexes(self graph.NodeHandle) map[graph.NodeHandle]graph.SuggestedIndex {
	return map[graph.NodeHandle]graph.SuggestedIndex{
		self: {Index: graph.HashMap(g.GroupCols), NeedsLookup: false},
	}
}

func (g GroupBy) ParentColumns(col int) ([]graph.ParentColumn, error) {
	for i, gc := range g.GroupCols {
		if i == col {
			c := gc
			return []graph.ParentColumn{{Parent: g.Parent, Column: &c}}, nil
		}
	}
	// aggregate value columns have no provenance: generated.
	return []graph.ParentColumn{{Parent: g.Parent, Column: nil}}, nil
}

func (GroupBy) CanQueryThrough() bool { return false }

func (GroupBy) RequiresFullMaterialization() bool { return false }

// EquiJoin is an equality join of two parents. It suggests an index on
// each parent's join column (lookup obligations, since a join performs
// equality probes into both sides) and cannot be queried through.
type EquiJoin struct {
	Left, Right         graph.NodeHandle
	LeftCol, RightCol   int
	LeftCols, RightCols []int // full column lists of each side, for provenance
}

func (j EquiJoin) SuggestIndexes(self graph.NodeHandle) map[graph.NodeHandle]graph.SuggestedIndex {
	return map[graph.NodeHandle]graph.SuggestedIndex{
		j.Left:  {Index: graph.HashMap([]int{j.LeftCol}), NeedsLookup: true},
		j.Right: {Index: graph.HashMap([]int{j.RightCol}), NeedsLookup: true},
	}
}

func (j EquiJoin) ParentColumns(col int) ([]graph.ParentColumn, error) {
	if col < len(j.LeftCols) {
		c := j.LeftCols[col]
		return []graph.ParentColumn{{Parent: j.Left, Column: &c}}, nil
	}
	rc := col - len(j.LeftCols)
	if rc < len(j.RightCols) {
		c := j.RightCols[rc]
		return []graph.ParentColumn{{Parent: j.Right, Column: &c}}, nil
	}
	return nil, nil
}

func (EquiJoin) CanQueryThrough() bool { return false }

func (EquiJoin) RequiresFullMaterialization() bool { return false }

// Union merges rows from multiple parents with identical schemas.
// Resolving a column through a Union branches into one provenance entry
// per parent, which is exactly what causes the replay-path planner to
// emit multiple paths for a single obligation.
type Union struct {
	Parents []graph.NodeHandle
}

func (Union) SuggestIndexes(graph.NodeHandle) map[graph.NodeHandle]graph.SuggestedIndex {
	return nil
}

func (u Union) ParentColumns(col int) ([]graph.ParentColumn, error) {
	out := make([]graph.ParentColumn, 0, len(u.Parents))
	for _, p := range u.Parents {
		c := col
		out = append(out, graph.ParentColumn{Parent: p, Column: &c})
	}
	return out, nil
}

func (Union) CanQueryThrough() bool { return true }

func (Union) RequiresFullMaterialization() bool { return false }

// Project computes output columns from a single parent, some of which
// may be straight pass-throughs and some of which may be computed
// expressions with no column provenance (e.g. `uid+1`). Generated
// columns are exactly what forces a replay segment to fall back to full
// materialization (invariant I7).
type Project struct {
	Parent graph.NodeHandle
	// Sources maps each output column to the parent column it passes
	// through, or -1 if the output column is computed (generated).
	Sources []int
}

func (Project) SuggestIndexes(graph.NodeHandle) map[graph.NodeHandle]graph.SuggestedIndex {
	return nil
}

func (p Project) ParentColumns(col int) ([]graph.ParentColumn, error) {
	if col < 0 || col >= len(p.Sources) {
		return nil, nil
	}
	src := p.Sources[col]
	if src < 0 {
		return []graph.ParentColumn{{Parent: p.Parent, Column: nil}}, nil
	}
	c := src
	return []graph.ParentColumn{{Parent: p.Parent, Column: &c}}, nil
}

func (Project) CanQueryThrough() bool { return true }

func (Project) RequiresFullMaterialization() bool { return false }
