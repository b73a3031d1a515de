package graph

import (
	"encoding/binary"

	"github.com/cespare/xxhash"
)

// IndexKind is the physical organization of an index: hash or ordered.
type IndexKind int

const (
	// Hash indexes support equality lookups only.
	Hash IndexKind = iota
	// Ordered indexes support range lookups in addition to equality.
	Ordered
)

func (k IndexKind) String() string {
	if k == Ordered {
		return "ordered"
	}
	return "hash"
}

// Index is an ordered list of column indices plus the kind of index
// (hash or ordered) carried over them. Equality is structural: two
// indexes are equal iff they have the same kind and the same columns in
// the same order.
type Index struct {
	Kind    IndexKind
	Columns []int
}

// NewIndex builds an Index, copying columns so later mutation of the
// caller's slice can't alias into the index.
func NewIndex(kind IndexKind, columns []int) Index {
	cols := make([]int, len(columns))
	copy(cols, columns)
	return Index{Kind: kind, Columns: cols}
}

// HashMap builds a Hash index over the given columns, mirroring the
// teacher's Index::hash_map convenience constructor.
func HashMap(columns []int) Index {
	return NewIndex(Hash, columns)
}

// Equal reports structural equality between two indexes.
func (i Index) Equal(o Index) bool {
	if i.Kind != o.Kind || len(i.Columns) != len(o.Columns) {
		return false
	}
	for idx, c := range i.Columns {
		if o.Columns[idx] != c {
			return false
		}
	}
	return true
}

// HashKey returns a structural hash of the index, suitable for use as a
// map key surrogate when an Index itself can't be used directly (e.g. in
// IndexSet, which the obligation computer's worklist maps are built on).
// Column order is part of the hash.
//
// Two indexes with the same kind and columns always hash identically;
// different indexes may (rarely) collide, so callers that need exact
// equality should still confirm with Equal.
func (i Index) HashKey() uint64 {
	h := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(i.Kind))
	h.Write(buf[:])
	for _, c := range i.Columns {
		binary.LittleEndian.PutUint64(buf[:], uint64(c))
		h.Write(buf[:])
	}
	return h.Sum64()
}

// ColumnsEqual reports whether this index's column list is exactly the
// given list, ignoring index kind. Used by invariant I6 (partial key
// consistency), which requires an ancestor index whose columns are
// exactly a descendant's partial key.
func (i Index) ColumnsEqual(columns []int) bool {
	if len(i.Columns) != len(columns) {
		return false
	}
	for idx, c := range i.Columns {
		if columns[idx] != c {
			return false
		}
	}
	return true
}

// SharesColumn reports whether this index and the given column set
// overlap in at least one column.
func (i Index) SharesColumn(columns []int) bool {
	set := make(map[int]struct{}, len(columns))
	for _, c := range columns {
		set[c] = struct{}{}
	}
	for _, c := range i.Columns {
		if _, ok := set[c]; ok {
			return true
		}
	}
	return false
}

// IndexSet is a deduplicated set of indexes over a single node, keyed
// internally by HashKey with Equal used to break ties.
type IndexSet struct {
	byHash map[uint64][]Index
}

// NewIndexSet returns an empty IndexSet.
func NewIndexSet() *IndexSet {
	return &IndexSet{byHash: make(map[uint64][]Index)}
}

// Contains reports whether idx is already present in the set.
func (s *IndexSet) Contains(idx Index) bool {
	for _, candidate := range s.byHash[idx.HashKey()] {
		if candidate.Equal(idx) {
			return true
		}
	}
	return false
}

// Add inserts idx into the set, reporting whether it was newly added.
func (s *IndexSet) Add(idx Index) bool {
	if s.Contains(idx) {
		return false
	}
	h := idx.HashKey()
	s.byHash[h] = append(s.byHash[h], idx)
	return true
}

// Len reports the number of distinct indexes in the set.
func (s *IndexSet) Len() int {
	n := 0
	for _, v := range s.byHash {
		n += len(v)
	}
	return n
}

// All returns every index in the set, in no particular order.
func (s *IndexSet) All() []Index {
	out := make([]Index, 0, s.Len())
	for _, v := range s.byHash {
		out = append(out, v...)
	}
	return out
}

// Clone returns a deep copy of the set.
func (s *IndexSet) Clone() *IndexSet {
	clone := NewIndexSet()
	for h, v := range s.byHash {
		cp := make([]Index, len(v))
		copy(cp, v)
		clone.byHash[h] = cp
	}
	return clone
}
