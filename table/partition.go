// Package table implements spec.md §4.4's global table: a sharded
// key/value store fronted by a sharder, an accumulator, and a
// marshaller, with put/update/get routed either straight to a local
// partition or across the fabric to the shard's owning rank.
package table

// KV is one key/value pair, used by Partition.Snapshot and the
// supplemental ShardSnapshot operation.
type KV struct {
	Key   []byte
	Value interface{}
}

// Partition stores the live key/value state for one shard. Put/Update
// are called from the dispatcher goroutine for remote requests and
// from the caller's goroutine for a local Table.Put/Update, and Get
// may run concurrently with them, so implementations guard their own
// state (a lock, or bolt transactions).
//
// (grounded on mvcc's treeIndex / backend split: an ordered in-memory
// index, or a durable bolt-backed store, behind one interface)
type Partition interface {
	Get(key []byte) (value interface{}, found bool, err error)
	Put(key []byte, value interface{}) error
	Update(key []byte, incoming interface{}, acc Accumulator) error

	// Snapshot returns every live key/value pair in key order, used by
	// the checkpoint writer and by the supplemental ShardSnapshot
	// operation.
	Snapshot() ([]KV, error)

	Close() error
}

// Accumulator merges an incoming update into the existing value for a
// key. Implementations must be associative, since updates from
// different workers may be reordered on the wire, and commutative if
// the table's request queue is asynchronous.
type Accumulator interface {
	Merge(existing, incoming interface{}) interface{}
}

// Marshaller converts between a table's value type and wire bytes.
type Marshaller interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(b []byte) (interface{}, error)
}

// Sharder maps a key to a shard index in [0, numShards).
type Sharder interface {
	Shard(key []byte, numShards int) int
}
