package fabric

import (
	"context"
	"testing"
	"time"

	"github.com/anhdinh/lapis-go/pkg/tlsutil"
	"github.com/anhdinh/lapis-go/pkg/types"
	"github.com/anhdinh/lapis-go/tag"
)

func TestFabric_SendDeliversToRegisteredHandler(t *testing.T) {
	addrs := map[types.Rank]string{
		0: "127.0.0.1:28811",
		1: "127.0.0.1:28812",
	}

	recv := make(chan tag.Message, 1)
	f0 := New(0, addrs, tlsutil.TLSInfo{})
	f1 := New(1, addrs, tlsutil.TLSInfo{})
	f1.SetHandler(func(src types.Rank, msg tag.Message) {
		if src != 0 {
			t.Errorf("got src %s, want 0", src)
		}
		recv <- msg
	})

	if err := f0.Start(); err != nil {
		t.Fatalf("start f0: %v", err)
	}
	defer f0.Stop()
	if err := f1.Start(); err != nil {
		t.Fatalf("start f1: %v", err)
	}
	defer f1.Stop()

	time.Sleep(20 * time.Millisecond) // let both listeners come up

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f0.Send(ctx, 1, tag.PutRequest, []byte("hello")); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case msg := <-recv:
		if string(msg.Payload) != "hello" {
			t.Fatalf("got payload %q, want %q", msg.Payload, "hello")
		}
		if msg.Tag != tag.PutRequest {
			t.Fatalf("got tag %s, want %s", msg.Tag, tag.PutRequest)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestFabric_SendToUnknownRankFails(t *testing.T) {
	addrs := map[types.Rank]string{0: "127.0.0.1:28813"}
	f0 := New(0, addrs, tlsutil.TLSInfo{})
	if err := f0.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer f0.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f0.Send(ctx, 99, tag.PutRequest, nil); err == nil {
		t.Fatal("expected an error sending to an unregistered rank")
	}
}
