// Package disktable implements spec.md §4.5's disk table: a
// block-spilling, append-only store fed over the wire by
// DATA_PUT_REQUEST/DATA_PUT_REQUEST_FINISH frames and read back by
// walking its blocks in order.
//
// (lapis core.DiskTable, core/disk-table.h)
package disktable

import (
	"encoding/binary"
	"fmt"
)

// Record is one disk table entry: an opaque key/value pair, already
// marshalled by the caller.
type Record struct {
	Key   []byte
	Value []byte
}

// EncodeRecord serializes one record as [keyLen|key|value]; value runs
// to the end of the slice since its own length is implicit.
func EncodeRecord(r Record) []byte {
	buf := make([]byte, 4+len(r.Key)+len(r.Value))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(r.Key)))
	copy(buf[4:4+len(r.Key)], r.Key)
	copy(buf[4+len(r.Key):], r.Value)
	return buf
}

// DecodeRecord parses a record built by EncodeRecord. The returned
// slices alias b.
func DecodeRecord(b []byte) (Record, error) {
	if len(b) < 4 {
		return Record{}, fmt.Errorf("disktable: record header truncated")
	}
	klen := binary.BigEndian.Uint32(b[0:4])
	if uint32(len(b)) < 4+klen {
		return Record{}, fmt.Errorf("disktable: record key truncated")
	}
	return Record{Key: b[4 : 4+klen], Value: b[4+klen:]}, nil
}

// EncodeBatch serializes a sequence of records, each as its own
// length-prefixed record, for one DATA_PUT_REQUEST[_FINISH] payload.
func EncodeBatch(records []Record) []byte {
	total := 0
	encoded := make([][]byte, len(records))
	for i, r := range records {
		encoded[i] = EncodeRecord(r)
		total += 4 + len(encoded[i])
	}
	buf := make([]byte, total)
	off := 0
	for _, e := range encoded {
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(e)))
		off += 4
		copy(buf[off:off+len(e)], e)
		off += len(e)
	}
	return buf
}

// DecodeBatch parses a payload built by EncodeBatch.
func DecodeBatch(b []byte) ([]Record, error) {
	var out []Record
	for len(b) > 0 {
		if len(b) < 4 {
			return nil, fmt.Errorf("disktable: batch header truncated")
		}
		n := binary.BigEndian.Uint32(b[0:4])
		b = b[4:]
		if uint32(len(b)) < n {
			return nil, fmt.Errorf("disktable: batch record truncated")
		}
		rec, err := DecodeRecord(b[:n])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
		b = b[n:]
	}
	return out, nil
}
