package table

import (
	"sync"

	"github.com/google/btree"
)

// btreeItem is one key/value pair ordered by key, satisfying
// btree.Item.
//
// (etcd mvcc.treeIndex, reduced to a flat key/value index)
type btreeItem struct {
	key   string
	value interface{}
}

func (i *btreeItem) Less(other btree.Item) bool {
	return i.key < other.(*btreeItem).key
}

// btreePartition is the default, in-memory Partition, backed by an
// ordered google/btree.BTree instead of a bare map so Snapshot and
// checkpointing get ordered iteration for free.
type btreePartition struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

func newBtreePartition() *btreePartition {
	return &btreePartition{tree: btree.New(32)}
}

func (p *btreePartition) Get(key []byte) (interface{}, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	item := p.tree.Get(&btreeItem{key: string(key)})
	if item == nil {
		return nil, false, nil
	}
	return item.(*btreeItem).value, true, nil
}

func (p *btreePartition) Put(key []byte, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tree.ReplaceOrInsert(&btreeItem{key: string(key), value: value})
	return nil
}

func (p *btreePartition) Update(key []byte, incoming interface{}, acc Accumulator) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := string(key)
	var existing interface{}
	if item := p.tree.Get(&btreeItem{key: k}); item != nil {
		existing = item.(*btreeItem).value
	}
	p.tree.ReplaceOrInsert(&btreeItem{key: k, value: acc.Merge(existing, incoming)})
	return nil
}

func (p *btreePartition) Snapshot() ([]KV, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]KV, 0, p.tree.Len())
	p.tree.Ascend(func(item btree.Item) bool {
		it := item.(*btreeItem)
		out = append(out, KV{Key: []byte(it.key), Value: it.value})
		return true
	})
	return out, nil
}

func (p *btreePartition) Close() error { return nil }
