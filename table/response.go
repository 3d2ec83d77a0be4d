package table

import "fmt"

// EncodeGetResponse builds the PUT_RESPONSE payload a GET handler
// sends back: a one-byte found flag followed by the marshalled value
// (empty on a miss).
func EncodeGetResponse(found bool, value []byte) []byte {
	buf := make([]byte, 1+len(value))
	if found {
		buf[0] = 1
	}
	copy(buf[1:], value)
	return buf
}

// DecodeGetResponse parses a payload built by EncodeGetResponse.
func DecodeGetResponse(payload []byte) (found bool, value []byte, err error) {
	if len(payload) < 1 {
		return false, nil, fmt.Errorf("table: get response payload empty")
	}
	return payload[0] == 1, payload[1:], nil
}
