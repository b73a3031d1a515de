package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndexEqual(t *testing.T) {
	a := HashMap([]int{0, 1})
	b := HashMap([]int{0, 1})
	c := HashMap([]int{1, 0})
	d := NewIndex(Ordered, []int{0, 1})

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c), "column order matters")
	require.False(t, a.Equal(d), "index kind matters")
}

func TestIndexSetDedup(t *testing.T) {
	s := NewIndexSet()
	require.True(t, s.Add(HashMap([]int{0})))
	require.False(t, s.Add(HashMap([]int{0})), "duplicate add reports false")
	require.True(t, s.Add(HashMap([]int{1})))
	require.Equal(t, 2, s.Len())
	require.True(t, s.Contains(HashMap([]int{0})))
	require.False(t, s.Contains(HashMap([]int{2})))
}

func TestIndexSetClone(t *testing.T) {
	s := NewIndexSet()
	s.Add(HashMap([]int{0}))
	clone := s.Clone()
	clone.Add(HashMap([]int{1}))

	require.Equal(t, 1, s.Len())
	require.Equal(t, 2, clone.Len())
}

func TestCatalogAddHasList(t *testing.T) {
	c := NewCatalog()
	n := NodeHandle(3)
	require.False(t, c.HasNode(n))

	require.True(t, c.Add(n, HashMap([]int{0})))
	require.True(t, c.HasNode(n))
	require.True(t, c.Has(n, HashMap([]int{0})))
	require.False(t, c.Has(n, HashMap([]int{1})))
	require.Len(t, c.List(n), 1)
}

func TestCatalogCloneIsIndependent(t *testing.T) {
	c := NewCatalog()
	n := NodeHandle(1)
	c.Add(n, HashMap([]int{0}))

	clone := c.Clone()
	clone.Add(n, HashMap([]int{1}))

	require.Equal(t, 1, c.Count(n))
	require.Equal(t, 2, clone.Count(n))
}

func TestIndexColumnsEqualAndSharesColumn(t *testing.T) {
	idx := HashMap([]int{1, 2})
	require.True(t, idx.ColumnsEqual([]int{1, 2}))
	require.False(t, idx.ColumnsEqual([]int{1, 2, 3}))
	require.True(t, idx.SharesColumn([]int{2, 9}))
	require.False(t, idx.SharesColumn([]int{9}))
}
