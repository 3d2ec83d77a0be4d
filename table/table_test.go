package table

import (
	"context"
	"testing"
	"time"

	"github.com/anhdinh/lapis-go/dispatcher"
	"github.com/anhdinh/lapis-go/pkg/scheduleutil"
	"github.com/anhdinh/lapis-go/pkg/types"
	"github.com/anhdinh/lapis-go/requestqueue"
	"github.com/anhdinh/lapis-go/tag"
	"github.com/anhdinh/lapis-go/transport"
)

func TestTable_LocalPutGet(t *testing.T) {
	tr := transport.New(transport.Config{Self: 0, Addrs: map[types.Rank]string{0: "127.0.0.1:21001"}})
	if err := tr.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tr.Shutdown()

	disp := dispatcher.New(requestqueue.NewAsync(2, time.Millisecond), time.Millisecond)
	tr.RegisterRequestSink(func(src types.Rank, tg tag.Tag, payload []byte) { disp.Enqueue(tg, payload) })
	disp.Start()
	defer disp.Shutdown()

	tbl := New(Descriptor{Name: "t", NumShards: 2}, 0, tr, disp)
	if err := tbl.ApplyShardAssignment([]types.Rank{0, 0}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	tbl.MarkServing(0)
	tbl.MarkServing(1)

	if err := tbl.Put([]byte("x"), []float64{1, 2, 3}); err != nil {
		t.Fatalf("put: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := tbl.Get(ctx, []byte("x"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got := v.([]float64)
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("got %v", got)
	}
}

func TestTable_UpdateAccumulates(t *testing.T) {
	tr := transport.New(transport.Config{Self: 0, Addrs: map[types.Rank]string{0: "127.0.0.1:21002"}})
	if err := tr.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tr.Shutdown()

	disp := dispatcher.New(requestqueue.NewAsync(1, time.Millisecond), time.Millisecond)
	tr.RegisterRequestSink(func(src types.Rank, tg tag.Tag, payload []byte) { disp.Enqueue(tg, payload) })
	disp.Start()
	defer disp.Shutdown()

	tbl := New(Descriptor{Name: "t", NumShards: 1}, 0, tr, disp)
	tbl.ApplyShardAssignment([]types.Rank{0})
	tbl.MarkServing(0)

	tbl.Put([]byte("x"), []float64{1, 1})
	if err := tbl.Update([]byte("x"), []float64{2, 3}); err != nil {
		t.Fatalf("update: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := tbl.Get(ctx, []byte("x"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got := v.([]float64)
	if got[0] != 3 || got[1] != 4 {
		t.Fatalf("got %v, want [3 4]", got)
	}
}

// (lapis worker_test: a get against an assigned shard that is not yet
// serving must soft-fail and, once the shard starts serving, succeed)
func TestTable_ShardNotReadyBeforeServing(t *testing.T) {
	tr := transport.New(transport.Config{Self: 0, Addrs: map[types.Rank]string{0: "127.0.0.1:21003"}})
	if err := tr.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tr.Shutdown()

	disp := dispatcher.New(requestqueue.NewAsync(1, time.Millisecond), time.Millisecond)
	tr.RegisterRequestSink(func(src types.Rank, tg tag.Tag, payload []byte) { disp.Enqueue(tg, payload) })
	disp.Start()
	defer disp.Shutdown()

	tbl := New(Descriptor{Name: "t", NumShards: 1}, 0, tr, disp)
	tbl.ApplyShardAssignment([]types.Rank{0})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := tbl.Get(ctx, []byte("x")); err == nil {
		t.Fatal("expected ShardNotReady before MarkServing")
	}

	tbl.MarkServing(0)
	scheduleutil.WaitSchedule()
	tbl.Put([]byte("x"), []float64{9})

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if _, err := tbl.Get(ctx2, []byte("x")); err != nil {
		t.Fatalf("get after serving: %v", err)
	}
}
