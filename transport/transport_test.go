package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/anhdinh/lapis-go/pkg/scheduleutil"
	"github.com/anhdinh/lapis-go/pkg/types"
	"github.com/anhdinh/lapis-go/tag"
)

func newTestWorld(t *testing.T, n int) ([]*Transport, func()) {
	addrs := make(map[types.Rank]string, n)
	for i := 0; i < n; i++ {
		addrs[types.Rank(i)] = testPort()
	}

	trs := make([]*Transport, n)
	for i := 0; i < n; i++ {
		trs[i] = New(Config{Self: types.Rank(i), Addrs: addrs, SleepInterval: time.Millisecond})
		if err := trs[i].Start(); err != nil {
			t.Fatalf("rank %d start: %v", i, err)
		}
	}
	return trs, func() {
		for _, tr := range trs {
			tr.Shutdown()
		}
	}
}

var portCounter = 20000

func testPort() string {
	portCounter++
	return "127.0.0.1:" + itoa(portCounter)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// (etcd rafthttp Test_peerPipeline_start, reduced to Transport.Send)
func TestTransport_SendRoutesToResponseQueue(t *testing.T) {
	trs, stop := newTestWorld(t, 2)
	defer stop()

	trs[1].Send(0, tag.PutResponse, []byte("hello"))
	scheduleutil.WaitSchedule()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	payload, from, err := trs[0].Read(ctx, 1, tag.PutResponse)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(payload) != "hello" || from != 1 {
		t.Fatalf("got %q from %s, want %q from rank 1", payload, from, "hello")
	}
}

func TestTransport_RequestSinkReceivesTableTags(t *testing.T) {
	trs, stop := newTestWorld(t, 2)
	defer stop()

	var mu sync.Mutex
	var got []byte
	done := make(chan struct{}, 1)
	trs[1].RegisterRequestSink(func(src types.Rank, tg tag.Tag, payload []byte) {
		mu.Lock()
		got = payload
		mu.Unlock()
		done <- struct{}{}
	})

	trs[0].Send(1, tag.PutRequest, []byte("put-payload"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("request sink never invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if string(got) != "put-payload" {
		t.Fatalf("got %q", got)
	}
}

func TestTransport_Barrier(t *testing.T) {
	trs, stop := newTestWorld(t, 3) // rank 2 is coordinator
	defer stop()

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			errs[i] = trs[i].Barrier(ctx)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("rank %d Barrier: %v", i, err)
		}
	}
}

func TestTransport_Callback(t *testing.T) {
	trs, stop := newTestWorld(t, 2)
	defer stop()

	done := make(chan types.Rank, 1)
	trs[1].RegisterCallback(tag.ShardAssignment, func(src types.Rank, payload []byte) {
		done <- src
	})

	trs[0].Send(1, tag.ShardAssignment, []byte("assign"))

	select {
	case src := <-done:
		if src != 0 {
			t.Fatalf("callback src = %s, want 0", src)
		}
	case <-time.After(time.Second):
		t.Fatal("callback never invoked")
	}
}
