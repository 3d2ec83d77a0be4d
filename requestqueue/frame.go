// Package requestqueue implements the two admission strategies that sit
// between Transport and the request dispatcher: an asynchronous,
// per-server round-robin queue, and a synchronous queue that serializes
// puts/updates against gets on the same key.
//
// (lapis core.RequestQueue / ASyncRequestQueue / SyncRequestQueue)
package requestqueue

import (
	"encoding/binary"
	"fmt"

	"github.com/anhdinh/lapis-go/pkg/types"
)

// EncodeFrame builds the wire payload a PUT/GET/UPDATE message carries:
// the rank-local server index owning the shard, the rank that sent the
// request (so a GET handler can address its reply), a length-prefixed
// key, and finally the raw value bytes (empty for a GET).
// ExtractServer/ExtractSource/ExtractKey read the leading fields
// without touching the value, the "cheap" parse spec.md's Enqueue
// relies on.
func EncodeFrame(server int, src types.Rank, key, value []byte) []byte {
	buf := make([]byte, 4+4+4+len(key)+len(value))
	binary.BigEndian.PutUint32(buf[0:4], uint32(server))
	binary.BigEndian.PutUint32(buf[4:8], uint32(int32(src)))
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(key)))
	copy(buf[12:12+len(key)], key)
	copy(buf[12+len(key):], value)
	return buf
}

// ExtractServer reads the leading server-index field of a frame built
// by EncodeFrame.
func ExtractServer(payload []byte) (int, error) {
	if len(payload) < 4 {
		return 0, fmt.Errorf("requestqueue: frame too short for server field")
	}
	return int(binary.BigEndian.Uint32(payload[0:4])), nil
}

// ExtractSource reads the requester rank out of a frame built by
// EncodeFrame.
func ExtractSource(payload []byte) (types.Rank, error) {
	if len(payload) < 8 {
		return 0, fmt.Errorf("requestqueue: frame too short for source field")
	}
	return types.Rank(int32(binary.BigEndian.Uint32(payload[4:8]))), nil
}

// ExtractKey reads the length-prefixed key out of a frame built by
// EncodeFrame, without parsing the value that follows it.
//
// (lapis core.RequestQueue::ExtractKey)
func ExtractKey(payload []byte) ([]byte, error) {
	if len(payload) < 12 {
		return nil, fmt.Errorf("requestqueue: frame too short for key header")
	}
	klen := int(binary.BigEndian.Uint32(payload[8:12]))
	if len(payload) < 12+klen {
		return nil, fmt.Errorf("requestqueue: frame too short for key body")
	}
	return payload[12 : 12+klen], nil
}

// SplitKeyValue returns both the key and the value trailing it.
func SplitKeyValue(payload []byte) (key, value []byte, err error) {
	key, err = ExtractKey(payload)
	if err != nil {
		return nil, nil, err
	}
	return key, payload[12+len(key):], nil
}
