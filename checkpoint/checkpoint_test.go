package checkpoint

import (
	"path/filepath"
	"testing"
)

func TestLogFile_AppendThenReadLatestTableSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shard-0.ckpt")

	lf, err := Create(path, 3)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := lf.Append([]byte("a"), []byte("1"), 1); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := lf.Append([]byte("b"), []byte("2"), 2); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := lf.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	lf2, err := OpenRead(path)
	if err != nil {
		t.Fatalf("open read: %v", err)
	}
	defer lf2.Close()

	if lf2.ShardID() != 3 {
		t.Fatalf("got shard id %d, want 3", lf2.ShardID())
	}
	size, err := lf2.ReadLatestTableSize()
	if err != nil {
		t.Fatalf("read latest table size: %v", err)
	}
	if size != 2 {
		t.Fatalf("got table size %d, want 2", size)
	}
}

func TestBackwardIterator_WalksNewestFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shard-0.ckpt")

	lf, err := Create(path, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i, k := range []string{"a", "b", "c"} {
		if err := lf.Append([]byte(k), []byte{byte(i)}, int32(i+1)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := lf.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	lf2, err := OpenRead(path)
	if err != nil {
		t.Fatalf("open read: %v", err)
	}
	defer lf2.Close()

	it, err := NewBackwardIterator(lf2)
	if err != nil {
		t.Fatalf("new backward iterator: %v", err)
	}
	var keys []string
	for it.Prev() {
		keys = append(keys, string(it.Entry().Key))
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(keys) != 3 || keys[0] != "c" || keys[1] != "b" || keys[2] != "a" {
		t.Fatalf("got %v, want [c b a]", keys)
	}
}

func TestLoadAll_ReturnsOldestFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shard-0.ckpt")

	lf, err := Create(path, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i, k := range []string{"a", "b", "c"} {
		if err := lf.Append([]byte(k), nil, int32(i+1)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := lf.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	entries, err := LoadAll(path)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(entries) != 3 || string(entries[0].Key) != "a" || string(entries[2].Key) != "c" {
		t.Fatalf("got %+v", entries)
	}
}
