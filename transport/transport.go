// Package transport multiplexes the rank-addressed fabric (package
// fabric) into the four classes of traffic a table server cares about:
// table requests routed to the request queue, bulk disk-table frames
// routed to the disk queue, control-plane messages dispatched inline
// through a registered callback, and everything else parked on a
// per-tag, per-source response queue for synchronous readers.
//
// (grounded on etcd rafthttp.Transport, reduced to the point-to-point,
// fixed-membership case spec.md describes)
package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anhdinh/lapis-go/fabric"
	"github.com/anhdinh/lapis-go/pkg/idutil"
	"github.com/anhdinh/lapis-go/pkg/tlsutil"
	"github.com/anhdinh/lapis-go/pkg/types"
	"github.com/anhdinh/lapis-go/pkg/xlog"
	"github.com/anhdinh/lapis-go/tag"
)

var logger = xlog.NewLogger("transport", xlog.INFO)

// RequestSink receives table request tags (PUT/GET/UPDATE), along with
// the rank that sent them so a GET handler can address its reply.
type RequestSink func(src types.Rank, t tag.Tag, payload []byte)

// DiskSink receives bulk disk-table data frames (DATA_PUT[_FINISH]).
type DiskSink func(src types.Rank, t tag.Tag, payload []byte)

// Callback is invoked inline, on the goroutine that received the
// message, for control-plane tags that must bypass every queue.
type Callback func(src types.Rank, payload []byte)

// Config configures a Transport instance.
type Config struct {
	Self          types.Rank
	Addrs         map[types.Rank]string
	SleepInterval time.Duration // default 1ms, per spec.md §6

	// TLSInfo, if non-empty, switches the underlying fabric to TLS
	// instead of plain HTTP (mutual when TrustedCAFile or
	// ClientCertAuth is set).
	TLSInfo tlsutil.TLSInfo
}

// Transport is the process-wide message endpoint described by
// spec.md §4.1, one instance per rank.
type Transport struct {
	self        types.Rank
	coordinator types.Rank
	worldSize   int
	sleep       time.Duration

	fab *fabric.Fabric

	sendMu  sync.Mutex
	pending []outboundSend
	active  int32

	responses *responseQueues
	stats     statsTracker

	reqSinkMu sync.RWMutex
	reqSink   RequestSink

	diskSinkMu sync.RWMutex
	diskSink   DiskSink

	callbacksMu sync.RWMutex
	callbacks   map[tag.Tag]Callback

	failuresMu sync.Mutex
	failures   map[types.Rank]int

	sendIDs *idutil.Generator

	stopCh chan struct{}
	wg     sync.WaitGroup
}

type outboundSend struct {
	id      uint64
	dst     types.Rank
	tag     tag.Tag
	payload []byte
}

// New constructs a Transport bound to cfg.Self. Start must be called
// before any Send/Read/Barrier traffic flows.
func New(cfg Config) *Transport {
	sleep := cfg.SleepInterval
	if sleep <= 0 {
		sleep = time.Millisecond
	}
	t := &Transport{
		self:        cfg.Self,
		coordinator: types.Coordinator(len(cfg.Addrs)),
		worldSize:   len(cfg.Addrs),
		sleep:       sleep,
		fab:         fabric.New(cfg.Self, cfg.Addrs, cfg.TLSInfo),
		responses:   newResponseQueues(),
		callbacks:   make(map[tag.Tag]Callback),
		failures:    make(map[types.Rank]int),
		sendIDs:     idutil.NewGenerator(uint16(cfg.Self), time.Now()),
		stopCh:      make(chan struct{}),
	}
	t.fab.SetHandler(t.onMessage)
	return t
}

// Start opens the local listener. The I/O side of message routing runs
// inline on the fabric's HTTP handler goroutines (see onMessage); the
// outbound send drain runs on its own goroutine started here.
func (t *Transport) Start() error {
	if err := t.fab.Start(); err != nil {
		return err
	}
	t.wg.Add(1)
	go t.sendLoop()
	return nil
}

// RegisterRequestSink installs the table-request routing target (the
// request queue's Enqueue). It may be called before or after Start; a
// table request that arrives while no sink is installed is dropped
// with a warning.
func (t *Transport) RegisterRequestSink(sink RequestSink) {
	t.reqSinkMu.Lock()
	t.reqSink = sink
	t.reqSinkMu.Unlock()
}

// RegisterDiskSink installs the disk-queue routing target. It may be
// called before or after Start; a disk frame that arrives while no
// sink is installed is dropped with a warning.
func (t *Transport) RegisterDiskSink(sink DiskSink) {
	t.diskSinkMu.Lock()
	t.diskSink = sink
	t.diskSinkMu.Unlock()
}

// RegisterCallback installs an inline handler for tag t, run on the
// receiving goroutine after routing. Used for control-plane messages
// (shard assignment, model config) that must not wait behind a queue.
func (t *Transport) RegisterCallback(tg tag.Tag, fn Callback) {
	t.callbacksMu.Lock()
	t.callbacks[tg] = fn
	t.callbacksMu.Unlock()
}

// Self returns this transport's own rank.
func (t *Transport) Self() types.Rank { return t.self }

// Coordinator returns the coordinator rank for this world.
func (t *Transport) Coordinator() types.Rank { return t.coordinator }

// WorldSize returns the number of ranks in this fabric.
func (t *Transport) WorldSize() int { return t.worldSize }

// onMessage classifies one inbound message and routes it. It must not
// block: it only enqueues (or, for response-queue traffic, appends
// under a short-held mutex).
func (t *Transport) onMessage(src types.Rank, msg tag.Message) {
	if msg.Tag.IsDiskData() {
		t.stats.observe(len(msg.Payload))
	}

	switch {
	case msg.Tag.IsTableRequest():
		t.reqSinkMu.RLock()
		sink := t.reqSink
		t.reqSinkMu.RUnlock()
		if sink != nil {
			sink(src, msg.Tag, msg.Payload)
		} else {
			logger.Warningf("dropping %s from %s: no request sink registered", msg.Tag, src)
		}
	case msg.Tag.IsDiskData():
		t.diskSinkMu.RLock()
		sink := t.diskSink
		t.diskSinkMu.RUnlock()
		if sink != nil {
			sink(src, msg.Tag, msg.Payload)
		} else {
			logger.Warningf("dropping %s from %s: no disk sink registered", msg.Tag, src)
		}
	default:
		t.responses.push(src, msg.Tag, msg.Payload)
	}

	t.callbacksMu.RLock()
	cb := t.callbacks[msg.Tag]
	t.callbacksMu.RUnlock()
	if cb != nil {
		cb(src, msg.Payload)
	}
}

// Send queues payload for delivery to dst under tag t. It returns once
// the send is recorded, not once it reaches dst; Flush waits for that.
func (t *Transport) Send(dst types.Rank, tg tag.Tag, payload []byte) {
	id := t.sendIDs.Next()
	t.sendMu.Lock()
	t.pending = append(t.pending, outboundSend{id: id, dst: dst, tag: tg, payload: payload})
	t.sendMu.Unlock()
}

// Broadcast sends payload under tag t to every rank except the
// coordinator.
func (t *Transport) Broadcast(tg tag.Tag, payload []byte) {
	for r := types.Rank(0); int(r) < t.worldSize; r++ {
		if r == t.coordinator {
			continue
		}
		t.Send(r, tg, payload)
	}
}

// sendLoop is the outbound half of spec.md §4.1's I/O loop: deliver
// submitted sends one at a time, in submission order, so messages to
// each destination arrive in the order they were sent, sleeping
// briefly whenever there is nothing to drain.
func (t *Transport) sendLoop() {
	defer t.wg.Done()
	for {
		select {
		case <-t.stopCh:
			return
		default:
		}

		t.sendMu.Lock()
		if len(t.pending) == 0 {
			t.sendMu.Unlock()
			time.Sleep(t.sleep)
			continue
		}
		next := t.pending[0]
		t.pending = t.pending[1:]
		atomic.AddInt32(&t.active, 1)
		t.sendMu.Unlock()

		t.deliver(next)
	}
}

func (t *Transport) deliver(s outboundSend) {
	defer atomic.AddInt32(&t.active, -1)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := t.fab.Send(ctx, s.dst, s.tag, s.payload); err != nil {
		// Transport never drops messages on the core's behalf; a failed
		// send is logged and counted, not retried or surfaced as an error
		// (spec.md §4.1 "Failure semantics").
		t.failuresMu.Lock()
		t.failures[s.dst]++
		t.failuresMu.Unlock()
		logger.Warningf("send #%d (%s to %s) failed: %v", s.id, s.tag, s.dst, err)
	}
}

// Flush returns once the outbound queue is empty and every in-flight
// send has retired.
func (t *Transport) Flush() {
	for {
		t.sendMu.Lock()
		n := len(t.pending)
		t.sendMu.Unlock()
		if n == 0 && atomic.LoadInt32(&t.active) == 0 {
			return
		}
		time.Sleep(t.sleep)
	}
}

// Read blocks until a message tagged t arrives from src (or, if src is
// types.AnyRank, from any rank), and returns its payload and actual
// source.
func (t *Transport) Read(ctx context.Context, src types.Rank, tg tag.Tag) ([]byte, types.Rank, error) {
	for {
		if payload, from, ok := t.responses.pop(src, tg); ok {
			return payload, from, nil
		}
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-t.stopCh:
			return nil, 0, fmt.Errorf("transport: shut down while waiting for %s from %s", tg, src)
		case <-time.After(t.sleep):
		}
	}
}

// TryRead polls once for a message tagged t from src, without blocking.
func (t *Transport) TryRead(src types.Rank, tg tag.Tag) (payload []byte, from types.Rank, ok bool) {
	return t.responses.pop(src, tg)
}

// Barrier implements the coordinator-driven two-phase barrier: the
// coordinator collects a BARRIER_REPLY from every other rank before
// releasing everyone with BARRIER_READY; non-coordinators reply only
// after flushing their own pending sends.
func (t *Transport) Barrier(ctx context.Context) error {
	if t.self == t.coordinator {
		t.Broadcast(tag.BarrierRequest, nil)
		for r := types.Rank(0); int(r) < t.worldSize; r++ {
			if r == t.coordinator {
				continue
			}
			if _, _, err := t.Read(ctx, r, tag.BarrierReply); err != nil {
				return err
			}
		}
		t.Broadcast(tag.BarrierReady, nil)
		t.Flush()
		return nil
	}

	if _, _, err := t.Read(ctx, t.coordinator, tag.BarrierRequest); err != nil {
		return err
	}
	t.Flush()
	t.Send(t.coordinator, tag.BarrierReply, nil)
	t.Flush()
	if _, _, err := t.Read(ctx, t.coordinator, tag.BarrierReady); err != nil {
		return err
	}
	return nil
}

// Stats returns a snapshot of the DATA_PUT throughput counters.
func (t *Transport) Stats() Stats { return t.stats.snapshot() }

// Failures returns the number of failed sends observed per destination
// rank.
func (t *Transport) Failures() map[types.Rank]int {
	t.failuresMu.Lock()
	defer t.failuresMu.Unlock()
	out := make(map[types.Rank]int, len(t.failures))
	for k, v := range t.failures {
		out[k] = v
	}
	return out
}

// Shutdown stops the send loop and tears down the fabric. Callers
// should Flush first if outstanding sends must reach their
// destination.
func (t *Transport) Shutdown() {
	select {
	case <-t.stopCh:
		return // already shut down
	default:
		close(t.stopCh)
	}
	t.wg.Wait()
	t.fab.Stop()
}
