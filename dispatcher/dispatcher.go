// Package dispatcher implements spec.md §4.3's request dispatcher: a
// single owner of one request queue plus a handler table indexed by
// tag, replacing the original's process-wide singleton with an
// explicit handle a Runtime owns (see the "cyclic ownership" redesign
// in DESIGN.md).
//
// (lapis core.RequestDispatcher)
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anhdinh/lapis-go/pkg/xlog"
	"github.com/anhdinh/lapis-go/requestqueue"
	"github.com/anhdinh/lapis-go/tablecore"
	"github.com/anhdinh/lapis-go/tag"
)

var logger = xlog.NewLogger("dispatcher", xlog.INFO)

// Handler processes one table request's payload. Returning nil marks
// the request complete; returning an error of kind
// tablecore.ShardNotReady re-enqueues the raw payload at the tail of
// the queue; any other error is logged and the request is dropped.
type Handler func(payload []byte) error

// DiskHandler processes one disk-queue frame (DATA_PUT[_FINISH]).
type DiskHandler func(payload []byte) error

// Dispatcher owns a request queue, a handler table, and the two
// goroutines (table_dispatch_loop, disk_dispatch_loop) that drain them.
type Dispatcher struct {
	queue requestqueue.Queue
	sleep time.Duration

	handlersMu sync.RWMutex
	handlers   map[tag.Tag]Handler

	diskMu      sync.Mutex
	diskQueue   [][]byte
	diskHandler DiskHandler

	outstanding int32

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Dispatcher around queue but does not start its
// loops; call Start once handlers are registered.
func New(queue requestqueue.Queue, sleep time.Duration) *Dispatcher {
	if sleep <= 0 {
		sleep = time.Millisecond
	}
	return &Dispatcher{
		queue:    queue,
		sleep:    sleep,
		handlers: make(map[tag.Tag]Handler),
		stopCh:   make(chan struct{}),
	}
}

// RegisterHandler installs the handler for tag t. It may be called
// before or after Start; the global table registers its PUT/GET/UPDATE
// handlers here when it is created.
func (d *Dispatcher) RegisterHandler(t tag.Tag, h Handler) {
	d.handlersMu.Lock()
	d.handlers[t] = h
	d.handlersMu.Unlock()
}

// RegisterDiskHandler installs the single handler the disk dispatch
// loop drains DATA_PUT[_FINISH] frames through.
func (d *Dispatcher) RegisterDiskHandler(h DiskHandler) {
	d.diskMu.Lock()
	d.diskHandler = h
	d.diskMu.Unlock()
}

// Start spawns the table and disk dispatch loops.
func (d *Dispatcher) Start() {
	d.wg.Add(2)
	go d.tableDispatchLoop()
	go d.diskDispatchLoop()
}

// Enqueue admits a table request (PUT/GET/UPDATE).
//
// (lapis core.RequestDispatcher::Enqueue)
func (d *Dispatcher) Enqueue(t tag.Tag, payload []byte) {
	d.queue.Enqueue(t, payload)
	atomic.AddInt32(&d.outstanding, 1)
}

// EnqueueDiskFrame admits a bulk disk-table data frame.
func (d *Dispatcher) EnqueueDiskFrame(payload []byte) {
	d.diskMu.Lock()
	d.diskQueue = append(d.diskQueue, payload)
	d.diskMu.Unlock()
}

// Active reports whether any request is outstanding, used by the
// coordinator to decide when a training step is globally quiescent.
func (d *Dispatcher) Active() bool {
	return atomic.LoadInt32(&d.outstanding) > 0
}

// SyncLocalGet/SyncLocalPut/EventComplete forward to the underlying
// queue, for callers (e.g. the global table's client-side put/get)
// that need to serialize against their own outstanding requests.
func (d *Dispatcher) SyncLocalGet(key []byte) bool { return d.queue.SyncLocalGet(key) }
func (d *Dispatcher) SyncLocalPut(key []byte) bool { return d.queue.SyncLocalPut(key) }

// tableDispatchLoop pulls the next admissible request, looks up the
// handler for its tag, and either marks it complete or re-enqueues it.
//
// (lapis core.RequestDispatcher::table_dispatch_loop)
func (d *Dispatcher) tableDispatchLoop() {
	defer d.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-d.stopCh
		cancel()
	}()

	for {
		t, payload, ok := d.queue.NextRequest(ctx)
		if !ok {
			return
		}

		key, _ := requestqueue.ExtractKey(payload)

		d.handlersMu.RLock()
		h := d.handlers[t]
		d.handlersMu.RUnlock()

		if h == nil {
			logger.Warningf("no handler registered for %s, dropping request", t)
			atomic.AddInt32(&d.outstanding, -1)
			d.queue.EventComplete(key)
			continue
		}

		err := h(payload)
		switch {
		case err == nil:
			atomic.AddInt32(&d.outstanding, -1)
			d.queue.EventComplete(key)
		case errors.Is(err, tablecore.ErrShardNotReady):
			d.queue.Enqueue(t, payload)
		default:
			logger.Errorf("%s handler failed, dropping request: %v", t, err)
			atomic.AddInt32(&d.outstanding, -1)
			d.queue.EventComplete(key)
		}
	}
}

// diskDispatchLoop drains the disk queue through the registered disk
// handler. Unlike the table queue, disk frames never get re-enqueued
// on failure: any error the handler returns (a disk write failure is
// DiskIO) aborts the process from this loop.
func (d *Dispatcher) diskDispatchLoop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopCh:
			return
		default:
		}

		d.diskMu.Lock()
		if len(d.diskQueue) == 0 {
			d.diskMu.Unlock()
			time.Sleep(d.sleep)
			continue
		}
		payload := d.diskQueue[0]
		d.diskQueue = d.diskQueue[1:]
		handler := d.diskHandler
		d.diskMu.Unlock()

		if handler == nil {
			logger.Warningf("no disk handler registered, dropping %d byte frame", len(payload))
			continue
		}
		if err := handler(payload); err != nil {
			logger.Fatalf("disk write failed: %v", err)
		}
	}
}

// Shutdown stops both dispatch loops.
func (d *Dispatcher) Shutdown() {
	select {
	case <-d.stopCh:
		return
	default:
		close(d.stopCh)
	}
	d.wg.Wait()
}
