// Package client implements the model controller's table API: the
// surface spec.md §6 describes as "consumed by the model controller"
// — create_table/create_disk_table plus the table handle the rest of
// the controller drives directly.
package client

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/anhdinh/lapis-go/disktable"
	"github.com/anhdinh/lapis-go/pkg/types"
	"github.com/anhdinh/lapis-go/pkg/xlog"
	"github.com/anhdinh/lapis-go/runtime"
	"github.com/anhdinh/lapis-go/table"
	"github.com/anhdinh/lapis-go/tag"
)

var logger = xlog.NewLogger("client", xlog.INFO)

// Controller is the model controller's handle onto a rank's tables.
// It owns no transport or dispatch state of its own — all of that
// belongs to the Runtime it wraps.
//
// (lapis table.ModelController)
type Controller struct {
	rt *runtime.Runtime

	mu     sync.Mutex
	tables map[string]*table.Table
}

// NewController attaches a Controller to rt, registering the inline
// callback that applies a coordinator-broadcast shard assignment to
// whichever locally created table it names.
func NewController(rt *runtime.Runtime) *Controller {
	c := &Controller{rt: rt, tables: make(map[string]*table.Table)}
	rt.Tr.RegisterCallback(tag.ShardAssignment, c.onShardAssignment)
	return c
}

// CreateTable builds and registers a table locally. Every rank that
// participates in a table calls CreateTable with an identical
// descriptor; only the coordinator (or whichever rank decides
// placement) then calls AssignShards to pick and broadcast owners.
//
// (lapis client API: create_table)
func (c *Controller) CreateTable(desc table.Descriptor) *table.Table {
	t := c.rt.CreateTable(desc)
	c.mu.Lock()
	c.tables[desc.Name] = t
	c.mu.Unlock()
	return t
}

// CreateDiskTable builds the producer-side handle for a disk table
// and, if this rank might be a destination for its records (it is
// the fixed server, or fixed_server_id is -1 meaning sharded across
// everyone), opens a Writer and registers it as the dispatcher's disk
// handler.
//
// A dispatcher multiplexes exactly one disk handler at a time, per
// spec.md §4.3's single disk queue; a process that needs more than
// one concurrently open disk table needs more than one Runtime.
//
// (lapis client API: create_disk_table)
func (c *Controller) CreateDiskTable(desc disktable.Descriptor) (*disktable.Producer, error) {
	self := c.rt.Tr.Self()
	if desc.FixedServerID < 0 || types.Rank(desc.FixedServerID) == self {
		w, err := disktable.NewWriter(desc)
		if err != nil {
			return nil, err
		}
		c.rt.Disp.RegisterDiskHandler(w.HandleFrame)
	}
	return disktable.NewProducer(desc, c.rt.Tr, self), nil
}

// Table looks up a table this Controller created.
func (c *Controller) Table(name string) (*table.Table, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[name]
	return t, ok
}

// Tables returns every table this Controller has created, keyed by
// name — always the fully populated map, resolving spec.md §9's open
// question about ModelController::GetTables.
func (c *Controller) Tables() map[string]*table.Table {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*table.Table, len(c.tables))
	for k, v := range c.tables {
		out[k] = v
	}
	return out
}

// AssignShards takes shard owners already decided by the caller
// (typically round-robin across known workers) and applies them
// locally, then broadcasts the decision so every other rank's
// same-named table applies it identically.
func (c *Controller) AssignShards(name string, owners []types.Rank) error {
	t, ok := c.Table(name)
	if !ok {
		return fmt.Errorf("client: no table named %q", name)
	}
	if err := t.ApplyShardAssignment(owners); err != nil {
		return err
	}
	c.markLocalShardsServing(t, owners)
	c.rt.Tr.Broadcast(tag.ShardAssignment, encodeNamedAssignment(name, owners))
	return nil
}

func (c *Controller) markLocalShardsServing(t *table.Table, owners []types.Rank) {
	self := c.rt.Tr.Self()
	for s, o := range owners {
		if o == self {
			t.MarkServing(s)
		}
	}
}

func (c *Controller) onShardAssignment(_ types.Rank, payload []byte) {
	name, owners, err := decodeNamedAssignment(payload)
	if err != nil {
		logger.Errorf("decoding shard assignment: %v", err)
		return
	}
	t, ok := c.Table(name)
	if !ok {
		logger.Infof("shard assignment for unknown table %q, ignoring", name)
		return
	}
	if err := t.ApplyShardAssignment(owners); err != nil {
		logger.Errorf("applying shard assignment for %q: %v", name, err)
		return
	}
	c.markLocalShardsServing(t, owners)
}

// AssignRoundRobin is the default placement policy: shard i is owned
// by workers[i%len(workers)].
func AssignRoundRobin(numShards int, workers []types.Rank) []types.Rank {
	owners := make([]types.Rank, numShards)
	for i := range owners {
		owners[i] = workers[i%len(workers)]
	}
	return owners
}

func encodeNamedAssignment(name string, owners []types.Rank) []byte {
	nameBytes := []byte(name)
	body := table.EncodeShardAssignment(owners)
	buf := make([]byte, 4+len(nameBytes)+len(body))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(nameBytes)))
	copy(buf[4:4+len(nameBytes)], nameBytes)
	copy(buf[4+len(nameBytes):], body)
	return buf
}

func decodeNamedAssignment(payload []byte) (name string, owners []types.Rank, err error) {
	if len(payload) < 4 {
		return "", nil, fmt.Errorf("client: shard assignment payload too short")
	}
	n := binary.BigEndian.Uint32(payload[0:4])
	if uint32(len(payload)) < 4+n {
		return "", nil, fmt.Errorf("client: shard assignment name truncated")
	}
	name = string(payload[4 : 4+n])
	owners, err = table.DecodeShardAssignment(payload[4+n:])
	return name, owners, err
}
