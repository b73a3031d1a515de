package controller

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noria-core/materializer/graph"
	"github.com/noria-core/materializer/migrate"
	"github.com/noria-core/materializer/operator"
)

// TestPlanSimpleFilteredReaderS1 drives spec.md §8 seed scenario S1
// (Base -> Filter -> Reader) through the builder API end to end,
// instead of constructing graph.Node literals directly as
// materialize/commit_test.go does.
func TestPlanSimpleFilteredReaderS1(t *testing.T) {
	c := New(nil, nil, nil)
	g := graph.New()
	m := c.Begin(g)

	base := m.AddBase("users", []string{"uid", "name"}, operator.BaseSpec{PrimaryKey: []int{0}})
	filter := m.AddIngredient("active_users", []string{"uid", "name"}, operator.Filter{Parent: base})
	require.NoError(t, m.Maintain("users_reader", filter, graph.HashMap([]int{0}), operator.PostLookup{}, nil))

	plan, err := m.Plan()
	require.NoError(t, err)
	require.NotNil(t, plan)

	reg := c.Registry()
	require.True(t, reg.IsMaterialized(base))
	require.False(t, reg.IsMaterialized(filter), "pure query-through filter never gets its own state")

	reader := m.readers["users_reader"]
	require.True(t, reg.IsMaterialized(reader))
	require.True(t, reg.IsPartial(reader))

	var sawAddNode, sawReady int
	for _, entry := range plan.Entries() {
		send, ok := entry.(migrate.Send)
		if !ok {
			continue
		}
		switch send.Request.(type) {
		case migrate.AddNodeRequest:
			sawAddNode++
		case migrate.ReadyRequest:
			sawReady++
		}
	}
	require.Equal(t, 3, sawAddNode, "one AddNode per node added this migration (base, filter, reader)")
	require.GreaterOrEqual(t, sawReady, 1)
}

// TestPlanRedundantPartialRepairDuplicatesFullAncestor exercises the
// repair loop across two migrations: the first leaves `count` partially
// materialized (the ordinary outcome, nothing below it needs more than
// that yet); the second adds a reader that must be fully materialized
// directly below it. Since `count`'s partiality was already committed
// by the first migration, the obligation computer's own forward-looking
// check (a new full descendant forces its ancestor full too) never gets
// a chance to reconsider `count` — only the repair loop, driven by
// Validate's direct I1 scan, catches and fixes this.
func TestPlanRedundantPartialRepairDuplicatesFullAncestor(t *testing.T) {
	c := New(nil, nil, nil)
	g := graph.New()

	m1 := c.Begin(g)
	base := m1.AddBase("accounts", []string{"aid", "uid"}, operator.BaseSpec{})
	count := m1.AddIngredient("account_count", []string{"aid", "n"}, operator.GroupBy{Parent: base, GroupCols: []int{0}})
	require.NoError(t, m1.Maintain("count_reader", count, graph.HashMap([]int{0}), operator.PostLookup{}, nil))
	_, err := m1.Plan()
	require.NoError(t, err)

	reg := c.Registry()
	require.True(t, reg.IsMaterialized(count))
	require.True(t, reg.IsPartial(count), "nothing yet below it needs more than partial")

	m2 := c.Begin(g)
	require.NoError(t, m2.Maintain("full_count_reader", count, graph.HashMap([]int{0}), operator.PostLookup{}, nil))
	fullReader := m2.readers["full_count_reader"]
	reg.ForceFull(fullReader)

	plan, err := m2.Plan()
	require.NoError(t, err)
	require.NotNil(t, plan)

	require.True(t, reg.IsMaterialized(fullReader))
	require.False(t, reg.IsPartial(fullReader), "forced full")

	dup, ok := reg.GetRedundant(count)
	require.True(t, ok, "repair loop must have duplicated count as a full ancestor for fullReader")
	require.True(t, reg.IsMaterialized(dup))
	require.False(t, reg.IsPartial(dup))

	parents := g.NeighborsIn(fullReader)
	require.Equal(t, []graph.NodeHandle{dup}, parents, "fullReader's edge must be rerouted onto the duplicate")
}

// TestAddColumnRejectsNodeAddedThisMigration exercises the invariant
// ported from Migration::add_column: you cannot extend the schema of a
// node that doesn't exist in any prior, committed migration yet.
func TestAddColumnRejectsNodeAddedThisMigration(t *testing.T) {
	c := New(nil, nil, nil)
	g := graph.New()
	m := c.Begin(g)

	base := m.AddBase("users", []string{"uid"}, operator.BaseSpec{})
	_, err := m.AddColumn(base, "email", nil)
	require.Error(t, err)
}

// TestAddColumnOnExistingNodeAppendsAndRecordsChange exercises AddColumn
// against a node from a previous migration (so it is not in this
// Migration's `added` set).
func TestAddColumnOnExistingNodeAppendsAndRecordsChange(t *testing.T) {
	c := New(nil, nil, nil)
	g := graph.New()

	first := c.Begin(g)
	base := first.AddBase("users", []string{"uid"}, operator.BaseSpec{})
	_, err := first.Plan()
	require.NoError(t, err)

	second := c.Begin(g)
	idx, err := second.AddColumn(base, "email", "")
	require.NoError(t, err)
	require.Equal(t, 1, idx)
	require.Equal(t, []string{"uid", "email"}, g.MustNode(base).Columns)
	require.Len(t, second.columns, 1)
	require.Equal(t, columnAdd, second.columns[0].kind)
}

// TestAddColumnInformsEgressIngressFanOut exercises the egress->ingress
// propagation from `inform_col_changes`: adding a column to a base node
// with a domain-crossing egress/ingress pair downstream must message
// both the base's own domain and the ingress node's domain, while a
// DropColumn must message only the dropped node itself.
func TestAddColumnInformsEgressIngressFanOut(t *testing.T) {
	c := New(nil, nil, nil)
	g := graph.New()

	base := g.AddNode(graph.Node{Kind: graph.Base, Name: "users", Columns: []string{"uid"}, Operator: operator.Base{}, Domain: 0})
	g.AddEdge(g.Source(), base)
	egress := g.AddNode(graph.Node{Kind: graph.Egress, Name: "users_egress", Columns: []string{"uid"}, Domain: 0})
	g.AddEdge(base, egress)
	ingress := g.AddNode(graph.Node{Kind: graph.Ingress, Name: "users_ingress", Columns: []string{"uid"}, Domain: 1})
	g.AddEdge(egress, ingress)

	m := c.Begin(g)
	_, err := m.AddColumn(base, "email", nil)
	require.NoError(t, err)
	require.NoError(t, m.DropColumn(base, 0))

	plan, err := m.Plan()
	require.NoError(t, err)

	var addTargets, dropTargets []graph.NodeHandle
	for _, entry := range plan.Entries() {
		send, ok := entry.(migrate.Send)
		if !ok {
			continue
		}
		switch req := send.Request.(type) {
		case migrate.AddBaseColumnRequest:
			addTargets = append(addTargets, req.Node)
		case migrate.DropBaseColumnRequest:
			dropTargets = append(dropTargets, req.Node)
		}
	}
	require.ElementsMatch(t, []graph.NodeHandle{base, ingress}, addTargets, "AddColumn informs the base and its ingress descendant across the egress hop")
	require.Equal(t, []graph.NodeHandle{base}, dropTargets, "DropColumn only informs the node itself")
}
