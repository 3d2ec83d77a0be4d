package table

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
)

// SumAccumulator implements element-wise addition over float64
// vectors, lapis's built-in MyAcc.
//
// (lapis table.MyAcc)
type SumAccumulator struct{}

func (SumAccumulator) Merge(existing, incoming interface{}) interface{} {
	in, _ := incoming.([]float64)
	ex, _ := existing.([]float64)

	n := len(in)
	if len(ex) > n {
		n = len(ex)
	}
	out := make([]float64, n)
	copy(out, ex)
	for i, v := range in {
		out[i] += v
	}
	return out
}

// FloatVectorMarshaller encodes/decodes []float64 as a flat sequence
// of big-endian IEEE-754 doubles.
type FloatVectorMarshaller struct{}

func (FloatVectorMarshaller) Marshal(v interface{}) ([]byte, error) {
	vec, ok := v.([]float64)
	if !ok {
		return nil, fmt.Errorf("table: FloatVectorMarshaller cannot marshal %T", v)
	}
	buf := make([]byte, 8*len(vec))
	for i, f := range vec {
		binary.BigEndian.PutUint64(buf[i*8:(i+1)*8], math.Float64bits(f))
	}
	return buf, nil
}

func (FloatVectorMarshaller) Unmarshal(b []byte) (interface{}, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("table: float vector payload not a multiple of 8 bytes (%d)", len(b))
	}
	vec := make([]float64, len(b)/8)
	for i := range vec {
		vec[i] = math.Float64frombits(binary.BigEndian.Uint64(b[i*8 : (i+1)*8]))
	}
	return vec, nil
}

// HashSharder distributes keys across shards by FNV-1a hash, mod
// numShards.
type HashSharder struct{}

func (HashSharder) Shard(key []byte, numShards int) int {
	if numShards <= 0 {
		return 0
	}
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32() % uint32(numShards))
}
