package migrate

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mitchellh/hashstructure"
	"github.com/stretchr/testify/require"

	"github.com/noria-core/materializer/graph"
)

// TestReplayPathWireRoundTrip exercises the msgpack wire codec a domain
// would use to receive a SetupReplayPathRequest: encode, decode, and
// confirm the structural hash (not just a field-by-field require.Equal)
// matches, the way the original's plan round trip is verified.
func TestReplayPathWireRoundTrip(t *testing.T) {
	col := 1
	path := graph.ReplayPath{
		{Node: 3, Columns: []int{0}},
		{Node: 2, Columns: nil},
		{Node: 1, Columns: []int{col}},
	}

	before, err := hashstructure.Hash(path, nil)
	require.NoError(t, err)

	wire, err := EncodeReplayPath(path)
	require.NoError(t, err)

	decoded, err := DecodeReplayPath(wire)
	require.NoError(t, err)

	after, err := hashstructure.Hash(decoded, nil)
	require.NoError(t, err)

	require.Equal(t, before, after, "structural hash must survive the wire round trip")
	if diff := cmp.Diff(path, decoded); diff != "" {
		t.Fatalf("decoded path differs from original (-want +got):\n%s", diff)
	}
}
