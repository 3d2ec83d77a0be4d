package table

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/anhdinh/lapis-go/dispatcher"
	"github.com/anhdinh/lapis-go/pkg/types"
	"github.com/anhdinh/lapis-go/pkg/xlog"
	"github.com/anhdinh/lapis-go/requestqueue"
	"github.com/anhdinh/lapis-go/tablecore"
	"github.com/anhdinh/lapis-go/tag"
	"github.com/anhdinh/lapis-go/transport"
)

var logger = xlog.NewLogger("table", xlog.INFO)

// Descriptor configures one Table: its shard count, its sharder,
// accumulator and marshaller, and whether shards persist through a
// durable bolt partition or a plain in-memory btree one.
type Descriptor struct {
	Name        string
	NumShards   int
	Sharder     Sharder
	Accumulator Accumulator
	Marshaller  Marshaller

	// Durable selects boltPartition over the default btreePartition.
	Durable bool
	DataDir string // required when Durable
}

func (d *Descriptor) setDefaults() {
	if d.Sharder == nil {
		d.Sharder = HashSharder{}
	}
	if d.Accumulator == nil {
		d.Accumulator = SumAccumulator{}
	}
	if d.Marshaller == nil {
		d.Marshaller = FloatVectorMarshaller{}
	}
}

// Table is spec.md §4.4's global table: num_shards partitions plus the
// sharder/accumulator/marshaller that route and apply requests to them.
//
// (lapis table.GlobalTable)
type Table struct {
	desc   Descriptor
	self   types.Rank
	shards []*shard
	tr     *transport.Transport
	disp   *dispatcher.Dispatcher
}

// New builds a Table and registers its PUT/GET/UPDATE handlers on disp.
// Call ApplyShardAssignment once the coordinator assigns owners, and
// MarkServing once each locally owned shard is ready to take requests.
func New(desc Descriptor, self types.Rank, tr *transport.Transport, disp *dispatcher.Dispatcher) *Table {
	desc.setDefaults()
	shards := make([]*shard, desc.NumShards)
	for i := range shards {
		shards[i] = &shard{}
	}
	t := &Table{desc: desc, self: self, shards: shards, tr: tr, disp: disp}
	disp.RegisterHandler(tag.PutRequest, t.handlePut)
	disp.RegisterHandler(tag.UpdateRequest, t.handleUpdate)
	disp.RegisterHandler(tag.GetRequest, t.handleGet)
	return t
}

// NumShards returns the table's shard count.
func (t *Table) NumShards() int { return len(t.shards) }

// Descriptor returns the table's configuration.
func (t *Table) Descriptor() Descriptor { return t.desc }

// ShardState reports shard s's current state.
func (t *Table) ShardState(s int) State { return t.shards[s].State() }

// ApplyShardAssignment transitions every shard UNASSIGNED → ASSIGNED,
// instantiating a local partition for whichever shards this rank owns.
//
// (lapis worker.cc reacting to MTYPE_SHARD_ASSIGNMENT)
func (t *Table) ApplyShardAssignment(owners []types.Rank) error {
	if len(owners) != len(t.shards) {
		return fmt.Errorf("table: shard assignment has %d owners, want %d", len(owners), len(t.shards))
	}
	for i, owner := range owners {
		t.shards[i].assign(owner)
		if owner != t.self {
			continue
		}
		p, err := t.newPartition(i)
		if err != nil {
			return err
		}
		t.shards[i].mu.Lock()
		t.shards[i].partition = p
		t.shards[i].mu.Unlock()
	}
	return nil
}

func (t *Table) newPartition(shardIdx int) (Partition, error) {
	if !t.desc.Durable {
		return newBtreePartition(), nil
	}
	path := filepath.Join(t.desc.DataDir, fmt.Sprintf("%s.shard-%d.bolt", t.desc.Name, shardIdx))
	return openBoltPartition(path, t.desc.Marshaller)
}

// MarkServing transitions shard s ASSIGNED → SERVING once its owner has
// loaded any checkpoint and is ready to take requests.
func (t *Table) MarkServing(s int) { t.shards[s].markServing() }

// BeginCheckpoint and EndCheckpoint bracket a checkpoint snapshot of
// shard s: requests against it soft-fail with ShardNotReady in between.
func (t *Table) BeginCheckpoint(s int) { t.shards[s].beginCheckpoint() }
func (t *Table) EndCheckpoint(s int)   { t.shards[s].endCheckpoint() }

// ShardSnapshot returns a full ordered dump of shard s's live
// key/value pairs, used by the checkpoint writer.
func (t *Table) ShardSnapshot(s int) ([]KV, error) {
	sh := t.shards[s]
	sh.mu.RLock()
	p := sh.partition
	sh.mu.RUnlock()
	if p == nil {
		return nil, tablecore.New(tablecore.ShardNotReady, "shard not local")
	}
	return p.Snapshot()
}

func (t *Table) localPartition(s int) (Partition, State) {
	sh := t.shards[s]
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.partition, sh.state
}

func (t *Table) applyLocal(s int, key []byte, value interface{}, accumulate bool) error {
	p, state := t.localPartition(s)
	if state != Serving {
		return tablecore.ErrShardNotReady
	}
	if p == nil {
		return tablecore.New(tablecore.ShardNotReady, "partition not initialized")
	}
	if accumulate {
		return p.Update(key, value, t.desc.Accumulator)
	}
	return p.Put(key, value)
}

// Put routes a write to shard's owner: applied directly if local, sent
// as a PUT_REQUEST otherwise. It does not wait for a remote apply to
// complete.
//
// (lapis table.GlobalTable::put)
func (t *Table) Put(key []byte, value interface{}) error {
	s := t.desc.Sharder.Shard(key, len(t.shards))
	owner := t.shards[s].Owner()
	if owner == t.self {
		return t.applyLocal(s, key, value, false)
	}
	raw, err := t.desc.Marshaller.Marshal(value)
	if err != nil {
		return tablecore.Wrap(tablecore.MarshalError, err)
	}
	t.tr.Send(owner, tag.PutRequest, requestqueue.EncodeFrame(s, t.self, key, raw))
	return nil
}

// Update routes a merge-through-accumulator write, the same way Put
// routes a plain write.
//
// (lapis table.GlobalTable::update)
func (t *Table) Update(key []byte, value interface{}) error {
	s := t.desc.Sharder.Shard(key, len(t.shards))
	owner := t.shards[s].Owner()
	if owner == t.self {
		return t.applyLocal(s, key, value, true)
	}
	raw, err := t.desc.Marshaller.Marshal(value)
	if err != nil {
		return tablecore.Wrap(tablecore.MarshalError, err)
	}
	t.tr.Send(owner, tag.UpdateRequest, requestqueue.EncodeFrame(s, t.self, key, raw))
	return nil
}

// Get returns the value for key: read straight from the local
// partition if this rank owns its shard, otherwise a blocking round
// trip through GET_REQUEST/PUT_RESPONSE.
//
// (lapis table.GlobalTable::get)
func (t *Table) Get(ctx context.Context, key []byte) (interface{}, error) {
	s := t.desc.Sharder.Shard(key, len(t.shards))
	owner := t.shards[s].Owner()

	if owner == t.self {
		p, state := t.localPartition(s)
		if state != Serving || p == nil {
			return nil, tablecore.ErrShardNotReady
		}
		v, found, err := p.Get(key)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, tablecore.ErrKeyAbsent
		}
		return v, nil
	}

	t.tr.Send(owner, tag.GetRequest, requestqueue.EncodeFrame(s, t.self, key, nil))
	payload, _, err := t.tr.Read(ctx, owner, tag.PutResponse)
	if err != nil {
		return nil, err
	}
	found, raw, err := DecodeGetResponse(payload)
	if err != nil {
		return nil, tablecore.Wrap(tablecore.ProtocolViolation, err)
	}
	if !found {
		return nil, tablecore.ErrKeyAbsent
	}
	return t.desc.Marshaller.Unmarshal(raw)
}

func (t *Table) handlePut(payload []byte) error {
	s, err := requestqueue.ExtractServer(payload)
	if err != nil {
		return tablecore.Wrap(tablecore.ProtocolViolation, err)
	}
	key, raw, err := requestqueue.SplitKeyValue(payload)
	if err != nil {
		return tablecore.Wrap(tablecore.ProtocolViolation, err)
	}
	value, err := t.desc.Marshaller.Unmarshal(raw)
	if err != nil {
		return tablecore.Wrap(tablecore.MarshalError, err)
	}
	return t.applyLocal(s, key, value, false)
}

func (t *Table) handleUpdate(payload []byte) error {
	s, err := requestqueue.ExtractServer(payload)
	if err != nil {
		return tablecore.Wrap(tablecore.ProtocolViolation, err)
	}
	key, raw, err := requestqueue.SplitKeyValue(payload)
	if err != nil {
		return tablecore.Wrap(tablecore.ProtocolViolation, err)
	}
	value, err := t.desc.Marshaller.Unmarshal(raw)
	if err != nil {
		return tablecore.Wrap(tablecore.MarshalError, err)
	}
	return t.applyLocal(s, key, value, true)
}

func (t *Table) handleGet(payload []byte) error {
	s, err := requestqueue.ExtractServer(payload)
	if err != nil {
		return tablecore.Wrap(tablecore.ProtocolViolation, err)
	}
	src, err := requestqueue.ExtractSource(payload)
	if err != nil {
		return tablecore.Wrap(tablecore.ProtocolViolation, err)
	}
	key, err := requestqueue.ExtractKey(payload)
	if err != nil {
		return tablecore.Wrap(tablecore.ProtocolViolation, err)
	}

	p, state := t.localPartition(s)
	if state != Serving || p == nil {
		return tablecore.ErrShardNotReady
	}

	v, found, err := p.Get(key)
	if err != nil {
		return err
	}
	var raw []byte
	if found {
		raw, err = t.desc.Marshaller.Marshal(v)
		if err != nil {
			return tablecore.Wrap(tablecore.MarshalError, err)
		}
	}
	t.tr.Send(src, tag.PutResponse, EncodeGetResponse(found, raw))
	return nil
}
