package migrate

import (
	msgpack "gopkg.in/vmihailenco/msgpack.v2"

	"github.com/noria-core/materializer/graph"
)

// EncodeReplayPath serializes a replay path for the wire, the same way a
// SetupReplayPathRequest would be relayed to a domain in a real
// deployment (§4.6, §9 of the spec). msgpack.v2 round-trips the flat
// Node/Columns shape of graph.ReplayPath without any custom codec
// work, which is why it's the wire format here rather than JSON.
func EncodeReplayPath(path graph.ReplayPath) ([]byte, error) {
	return msgpack.Marshal(path)
}

// DecodeReplayPath is the inverse of EncodeReplayPath.
func DecodeReplayPath(b []byte) (graph.ReplayPath, error) {
	var path graph.ReplayPath
	if err := msgpack.Unmarshal(b, &path); err != nil {
		return nil, err
	}
	return path, nil
}
