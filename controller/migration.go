package controller

import (
	"fmt"

	"github.com/noria-core/materializer/graph"
	"github.com/noria-core/materializer/operator"
	"github.com/noria-core/materializer/rserr"
)

// columnChangeKind distinguishes an AddColumn from a DropColumn entry in
// a Migration's change log.
type columnChangeKind int

const (
	columnAdd columnChangeKind = iota
	columnDrop
)

// columnChange records one AddColumn/DropColumn call against an
// already-existing (not newly-added-this-migration) node, mirroring the
// original's `ColumnChange::Add`/`ColumnChange::Drop` entries threaded
// through `Migration::columns`.
type columnChange struct {
	kind    columnChangeKind
	node    graph.NodeHandle
	field   string
	def     any
	column  int
}

// Migration accumulates graph fragments and schema/reader changes
// before they're staged into a migrate.Plan. It wraps a single live
// graph.Graph plus the set of nodes added during this migration, the
// schema change log, and a by-name memo of readers already created —
// the same four pieces of state the original's `Migration` struct
// threads through `add_ingredient`/`add_base`/`add_column`/
// `drop_column`/`ensure_reader_for` (`migrate/mod.rs` lines 376-622).
//
// A Migration is not safe for concurrent use.
type Migration struct {
	ctrl *Controller
	g    *graph.Graph

	added   map[graph.NodeHandle]bool
	columns []columnChange
	readers map[string]graph.NodeHandle
}

// Begin starts a new migration against the controller's live graph.
func (c *Controller) Begin(g *graph.Graph) *Migration {
	return &Migration{
		ctrl:    c,
		g:       g,
		added:   make(map[graph.NodeHandle]bool),
		readers: make(map[string]graph.NodeHandle),
	}
}

// parentsOf collects the distinct parent nodes op's output columns
// provenance through, in first-seen order. This is how the builder
// derives the edges for a freshly added node from the operator alone,
// without requiring a redundant explicit parent list: every operator
// already names its own parent(s) as struct fields, and ParentColumns
// is the uniform way to read them back out.
func parentsOf(op graph.Operator, numCols int) ([]graph.NodeHandle, error) {
	seen := make(map[graph.NodeHandle]bool)
	var out []graph.NodeHandle
	for col := 0; col < numCols; col++ {
		pcs, err := op.ParentColumns(col)
		if err != nil {
			return nil, err
		}
		for _, pc := range pcs {
			if !seen[pc.Parent] {
				seen[pc.Parent] = true
				out = append(out, pc.Parent)
			}
		}
	}
	return out, nil
}

// AddIngredient adds a new internal node running op, with the given
// output field names, wiring an edge from every ancestor named by op's
// own ParentColumns contract. Grounded on `Migration::add_ingredient`
// (`migrate/mod.rs` lines ~390-410): compute ancestors, insert the node,
// add one edge per ancestor, track it in `added`.
//
// op's ParentColumns is expected to resolve cleanly for every one of
// the node's own output columns — it is describing its own struct
// fields, not looking anything up — so a failure here indicates a
// malformed operator value handed in by the caller, not a runtime
// condition; AddIngredient panics rather than force every caller to
// check an error that well-formed operators never produce, matching
// this module's existing Must-prefixed-panic idiom (graph.MustNode).
func (m *Migration) AddIngredient(name string, fields []string, op operator.Operator) graph.NodeHandle {
	parents, err := parentsOf(op, len(fields))
	if err != nil {
		panic(fmt.Sprintf("controller: malformed operator for ingredient %q: %v", name, err))
	}

	n := m.g.AddNode(graph.Node{
		Kind:     graph.Internal,
		Name:     name,
		Columns:  append([]string(nil), fields...),
		Operator: op,
		Domain:   graph.NoDomain,
	})
	for _, p := range parents {
		m.g.AddEdge(p, n)
	}
	m.added[n] = true
	return n
}

// AddBase adds a new base table node. Grounded on
// `Migration::add_base` (`migrate/mod.rs` lines ~412-430): a single
// edge from the graph's source, no operator-derived provenance since a
// base table has no ancestors.
func (m *Migration) AddBase(name string, fields []string, spec operator.BaseSpec) graph.NodeHandle {
	n := m.g.AddNode(graph.Node{
		Kind:     graph.Base,
		Name:     name,
		Columns:  append([]string(nil), fields...),
		Operator: operator.Base{},
		Sharding: spec.Sharding,
		Domain:   graph.NoDomain,
	})
	m.g.AddEdge(m.g.Source(), n)
	m.added[n] = true
	return n
}

// AddColumn appends a new column to an already-existing node (one not
// added during this migration — a brand new node already has its full
// field list) and records the change for the applier to relay as an
// AddBaseColumnRequest. Grounded on `Migration::add_column`
// (`migrate/mod.rs` lines ~470-490), including its invariant that you
// cannot add a column to a node added in the same migration.
func (m *Migration) AddColumn(node graph.NodeHandle, field string, def any) (int, error) {
	if m.added[node] {
		return 0, rserr.ErrGraphInvariantViolated.New("cannot add a column to a node added in the same migration")
	}
	n := m.g.MustNode(node)
	n.Columns = append(n.Columns, field)
	idx := len(n.Columns) - 1
	m.columns = append(m.columns, columnChange{kind: columnAdd, node: node, field: field, def: def})
	return idx, nil
}

// DropColumn marks column as removed from node, recording the change
// for the applier to relay as a DropBaseColumnRequest. The column's
// index stays reserved — rows written under the old schema, and any
// replay path already keyed on this column index, are left alone; only
// new writes and later migrations observe the drop. Grounded on
// `Migration::drop_column` (`migrate/mod.rs` lines ~492-508) and its
// matching invariant.
func (m *Migration) DropColumn(node graph.NodeHandle, column int) error {
	if m.added[node] {
		return rserr.ErrGraphInvariantViolated.New("cannot drop a column from a node added in the same migration")
	}
	n := m.g.MustNode(node)
	if column < 0 || column >= len(n.Columns) {
		return rserr.ErrGraphInvariantViolated.New(fmt.Sprintf("column %d out of range for node %d", column, node))
	}
	m.columns = append(m.columns, columnChange{kind: columnDrop, node: node, column: column})
	return nil
}

// addColumnInformTargets returns every node that must be told about a
// newly added column on n: n itself, plus every ingress node one
// egress-hop downstream of it in another domain, so in-flight replays
// crossing that domain boundary see the new column too. Grounded on
// `inform_col_changes` in `migrate/mod.rs` (lines ~327-366): only the
// Add case informs descendants; Drop only ever informs n itself, since a
// dropped column only matters to new writes entering at n.
func addColumnInformTargets(g *graph.Graph, n graph.NodeHandle) []graph.NodeHandle {
	out := []graph.NodeHandle{n}
	for _, child := range g.NeighborsOut(n) {
		if !g.MustNode(child).IsEgress() {
			continue
		}
		out = append(out, g.NeighborsOut(child)...)
	}
	return out
}

// ensureReaderFor returns the Reader node mirroring src, creating and
// memoizing one under name if this is the first Maintain/MaintainAnonymous
// call for that name this migration. Grounded on
// `Migration::ensure_reader_for` (`migrate/mod.rs` lines ~524-552): a
// name prefixed "SHALLOW_" places the reader beyond the eviction
// frontier (EagerEvict), same as the frontier-strategy "SHALLOW_"
// override the materialize package itself honors.
func (m *Migration) ensureReaderFor(src graph.NodeHandle, name string) graph.NodeHandle {
	if n, ok := m.readers[name]; ok {
		return n
	}
	parent := m.g.MustNode(src)
	r := m.g.AddNode(graph.Node{
		Kind:       graph.Reader,
		Name:       name,
		Columns:    append([]string(nil), parent.Columns...),
		EagerEvict: hasShallowPrefix(name),
		Domain:     graph.NoDomain,
	})
	m.g.AddEdge(src, r)
	m.readers[name] = r
	m.added[r] = true
	return r
}

func hasShallowPrefix(name string) bool {
	return len(name) >= len("SHALLOW_") && name[:len("SHALLOW_")] == "SHALLOW_"
}

// Maintain installs (or reuses, if name already names a reader created
// this migration) a maintained, keyed view reading from node. Grounded
// on `Migration::maintain` (`migrate/mod.rs` lines ~554-570): the reader
// is keyed on idx's columns, with postLookup and placeholders threaded
// through for the query layer to consult, untouched by this package.
func (m *Migration) Maintain(name string, node graph.NodeHandle, idx graph.Index, postLookup operator.PostLookup, placeholders []operator.PlaceholderMapping) error {
	r := m.ensureReaderFor(node, name)
	rn := m.g.MustNode(r)
	rn.Reader = &graph.ReaderSpec{Key: append([]int(nil), idx.Columns...)}
	m.readerMeta(r, postLookup, placeholders)
	return nil
}

// MaintainAnonymous installs an unnamed maintained view, synthesizing a
// name from the node handle so repeat calls against the same node
// within one migration still memoize onto the same reader. Grounded on
// `Migration::maintain_anonymous` (`migrate/mod.rs` lines ~572-586).
func (m *Migration) MaintainAnonymous(node graph.NodeHandle, idx graph.Index, postLookup operator.PostLookup) (graph.NodeHandle, error) {
	name := fmt.Sprintf("ANON_%d", node)
	if err := m.Maintain(name, node, idx, postLookup, nil); err != nil {
		return 0, err
	}
	return m.readers[name], nil
}

// readerMeta is a hook for reader-side metadata (post-lookup ordering,
// placeholder mappings) not consulted by the materialization planner
// itself; it exists so Maintain's full original signature is honored
// even though this module's scope stops at index/replay planning. A
// real query layer would store these per-reader for execution.
func (m *Migration) readerMeta(graph.NodeHandle, operator.PostLookup, []operator.PlaceholderMapping) {}

// AddedNodes returns the set of nodes added during this migration so
// far, for Plan to pass on to the materialization registry's Extend.
func (m *Migration) AddedNodes() map[graph.NodeHandle]bool {
	out := make(map[graph.NodeHandle]bool, len(m.added))
	for n := range m.added {
		out[n] = true
	}
	return out
}

// Graph returns the live graph this migration is building against.
func (m *Migration) Graph() *graph.Graph { return m.g }
