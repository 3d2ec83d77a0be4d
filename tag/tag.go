// Package tag defines the small, closed set of message tags that
// classify every datagram flowing through the fabric, and the tagged
// envelope (tag + opaque payload) that Transport exchanges.
//
// (lapis proto.worker MessageTypes)
package tag

// Tag is a fabric message class. The set is closed and fixed at compile
// time: spec.md §6 enumerates exactly these classes.
type Tag int32

const (
	// REGISTER_WORKER announces a worker process to the coordinator.
	RegisterWorker Tag = iota

	// SHARD_ASSIGNMENT carries the owner-rank map for a table's shards.
	ShardAssignment

	// MODEL_CONFIG carries the layer graph configuration to workers.
	ModelConfig

	// PUT_REQUEST is a table put, routed to the request queue.
	PutRequest

	// GET_REQUEST is a table get, routed to the request queue.
	GetRequest

	// UPDATE_REQUEST is a table update (merge-through-accumulator),
	// routed to the request queue.
	UpdateRequest

	// PutResponse carries a get's result (or a miss) back to the
	// requester via the per-(tag,source) response queue.
	PutResponse

	// DataPutRequest carries a batch of disk-table records.
	DataPutRequest

	// DataPutRequestFinish marks the last DataPutRequest frame for a
	// disk-table producer.
	DataPutRequestFinish

	// BarrierRequest is sent by the coordinator to start a barrier.
	BarrierRequest

	// BarrierReply is sent by a non-coordinator once its sends are
	// flushed, acknowledging BarrierRequest.
	BarrierReply

	// BarrierReady is broadcast by the coordinator once every rank has
	// replied, releasing the barrier.
	BarrierReady

	// Shutdown asks a rank's loops to stop.
	Shutdown
)

// String returns a human-readable tag name, used in log lines.
func (t Tag) String() string {
	switch t {
	case RegisterWorker:
		return "REGISTER_WORKER"
	case ShardAssignment:
		return "SHARD_ASSIGNMENT"
	case ModelConfig:
		return "MODEL_CONFIG"
	case PutRequest:
		return "PUT_REQUEST"
	case GetRequest:
		return "GET_REQUEST"
	case UpdateRequest:
		return "UPDATE_REQUEST"
	case PutResponse:
		return "PUT_RESPONSE"
	case DataPutRequest:
		return "DATA_PUT_REQUEST"
	case DataPutRequestFinish:
		return "DATA_PUT_REQUEST_FINISH"
	case BarrierRequest:
		return "BARRIER_REQUEST"
	case BarrierReply:
		return "BARRIER_REPLY"
	case BarrierReady:
		return "BARRIER_READY"
	case Shutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN_TAG"
	}
}

// IsTableRequest reports whether t is one of the three tags the request
// queue classifies and admits (put/get/update).
func (t Tag) IsTableRequest() bool {
	return t == PutRequest || t == GetRequest || t == UpdateRequest
}

// IsDiskData reports whether t is a bulk disk-table data tag, routed to
// the disk queue rather than the request queue.
func (t Tag) IsDiskData() bool {
	return t == DataPutRequest || t == DataPutRequestFinish
}

// Message is a tagged, opaque envelope exchanged over the fabric.
//
// (lapis core.TaggedMessage)
type Message struct {
	Tag     Tag
	Payload []byte
}
