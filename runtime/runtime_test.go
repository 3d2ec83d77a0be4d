package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/anhdinh/lapis-go/pkg/testutil"
	"github.com/anhdinh/lapis-go/pkg/types"
	"github.com/anhdinh/lapis-go/table"
)

func TestRuntime_CreateTablePutGetRoundTrips(t *testing.T) {
	r := New(Config{Self: 0, Addrs: map[types.Rank]string{0: "127.0.0.1:21101"}})
	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer r.Shutdown()

	tbl := r.CreateTable(table.Descriptor{Name: "weights", NumShards: 1})
	if err := tbl.ApplyShardAssignment([]types.Rank{0}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	tbl.MarkServing(0)

	if err := tbl.Put([]byte("k"), []float64{1, 2}); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok := r.Table("weights")
	if !ok || got != tbl {
		t.Fatalf("Table lookup mismatch: ok=%v", ok)
	}
	if _, ok := r.Tables()["weights"]; !ok {
		t.Fatal("expected Tables() to include the created table")
	}
}

func TestRuntime_AwaitQuiescentOnSingleRank(t *testing.T) {
	r := New(Config{Self: 0, Addrs: map[types.Rank]string{0: "127.0.0.1:21102"}})
	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer r.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.AwaitQuiescent(ctx); err != nil {
		// A hang here means the dispatcher or barrier goroutine is stuck;
		// dump every running goroutine's stack to see where.
		testutil.FatalStack(t, "await quiescent: "+err.Error())
	}
}
