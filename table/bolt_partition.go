package table

import (
	"fmt"

	"github.com/boltdb/bolt"
)

var shardBucket = []byte("shard")

// boltPartition is the durable Partition (Descriptor.Durable): a shard
// backed by a bolt bucket instead of memory, so a restarted table
// server does not need a checkpoint replay for tables that ask for it.
// The accumulator still runs in Go; bolt is storage, not accumulation.
//
// (etcd mvcc/backend.backend, reduced to one bucket, no batching)
type boltPartition struct {
	db         *bolt.DB
	marshaller Marshaller
}

func openBoltPartition(path string, m Marshaller) (*boltPartition, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("table: open bolt partition %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(shardBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &boltPartition{db: db, marshaller: m}, nil
}

func (p *boltPartition) Get(key []byte) (interface{}, bool, error) {
	var raw []byte
	err := p.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(shardBucket).Get(key)
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	v, err := p.marshaller.Unmarshal(raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (p *boltPartition) Put(key []byte, value interface{}) error {
	raw, err := p.marshaller.Marshal(value)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(shardBucket).Put(key, raw)
	})
}

func (p *boltPartition) Update(key []byte, incoming interface{}, acc Accumulator) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(shardBucket)
		var existing interface{}
		if raw := b.Get(key); raw != nil {
			v, err := p.marshaller.Unmarshal(raw)
			if err != nil {
				return err
			}
			existing = v
		}
		merged := acc.Merge(existing, incoming)
		raw, err := p.marshaller.Marshal(merged)
		if err != nil {
			return err
		}
		return b.Put(key, raw)
	})
}

func (p *boltPartition) Snapshot() ([]KV, error) {
	var out []KV
	err := p.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(shardBucket).ForEach(func(k, v []byte) error {
			value, err := p.marshaller.Unmarshal(v)
			if err != nil {
				return err
			}
			out = append(out, KV{Key: append([]byte(nil), k...), Value: value})
			return nil
		})
	})
	return out, err
}

func (p *boltPartition) Close() error { return p.db.Close() }
