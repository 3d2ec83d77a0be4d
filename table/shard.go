package table

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/anhdinh/lapis-go/pkg/types"
)

// State is a shard's position in spec.md §4.4's state machine:
// UNASSIGNED → ASSIGNED(owner) → SERVING, plus the supplemental
// CHECKPOINTING sub-state a shard passes through while
// checkpoint.Writer.Snapshot walks it.
type State int32

const (
	Unassigned State = iota
	Assigned
	Serving
	Checkpointing
)

func (s State) String() string {
	switch s {
	case Unassigned:
		return "UNASSIGNED"
	case Assigned:
		return "ASSIGNED"
	case Serving:
		return "SERVING"
	case Checkpointing:
		return "CHECKPOINTING"
	default:
		return "UNKNOWN"
	}
}

// shard holds one partition's state machine and its live data.
type shard struct {
	mu        sync.RWMutex
	state     State
	owner     types.Rank
	partition Partition
}

func (s *shard) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *shard) Owner() types.Rank {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner
}

// assign transitions UNASSIGNED → ASSIGNED(owner).
func (s *shard) assign(owner types.Rank) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = owner
	s.state = Assigned
}

// markServing transitions ASSIGNED → SERVING once the owner has loaded
// any checkpoint and is ready to take requests.
func (s *shard) markServing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Serving
}

// beginCheckpoint transitions SERVING → CHECKPOINTING; requests against
// the shard soft-fail with ShardNotReady until endCheckpoint.
func (s *shard) beginCheckpoint() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Checkpointing
}

func (s *shard) endCheckpoint() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Serving
}

// EncodeShardAssignment serializes an owner-rank-per-shard map for the
// SHARD_ASSIGNMENT control message.
func EncodeShardAssignment(owners []types.Rank) []byte {
	buf := make([]byte, 4*len(owners))
	for i, o := range owners {
		binary.BigEndian.PutUint32(buf[i*4:i*4+4], uint32(int32(o)))
	}
	return buf
}

// DecodeShardAssignment parses a SHARD_ASSIGNMENT payload built by
// EncodeShardAssignment.
func DecodeShardAssignment(payload []byte) ([]types.Rank, error) {
	if len(payload)%4 != 0 {
		return nil, fmt.Errorf("table: shard assignment payload not a multiple of 4 bytes (%d)", len(payload))
	}
	owners := make([]types.Rank, len(payload)/4)
	for i := range owners {
		owners[i] = types.Rank(int32(binary.BigEndian.Uint32(payload[i*4 : i*4+4])))
	}
	return owners, nil
}
