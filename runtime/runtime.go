// Package runtime gives one rank's Transport, Dispatcher, and tables
// an explicit owner, replacing the singleton-registry pattern the
// original used (spec.md's REDESIGN FLAGS: cyclic global ownership).
// Every other package takes its collaborators as constructor
// arguments; Runtime is just where a process wires them together.
package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anhdinh/lapis-go/dispatcher"
	"github.com/anhdinh/lapis-go/pkg/tlsutil"
	"github.com/anhdinh/lapis-go/pkg/types"
	"github.com/anhdinh/lapis-go/pkg/xlog"
	"github.com/anhdinh/lapis-go/requestqueue"
	"github.com/anhdinh/lapis-go/table"
	"github.com/anhdinh/lapis-go/tag"
	"github.com/anhdinh/lapis-go/transport"
)

var logger = xlog.NewLogger("runtime", xlog.INFO)

// Config configures the Transport and Dispatcher a Runtime owns.
type Config struct {
	Self          types.Rank
	Addrs         map[types.Rank]string
	Sync          bool // SyncQueue admission policy instead of AsyncQueue
	NumLocalFIFOs int
	QueueSleep    time.Duration

	// TLSInfo, if non-empty, runs this rank's fabric over TLS (mutual
	// when TrustedCAFile or ClientCertAuth is set).
	TLSInfo tlsutil.TLSInfo
}

func (c *Config) setDefaults() {
	if c.NumLocalFIFOs <= 0 {
		c.NumLocalFIFOs = 1
	}
	if c.QueueSleep <= 0 {
		c.QueueSleep = time.Millisecond
	}
}

// Runtime owns one rank's Transport, Dispatcher, and the tables
// registered against them.
type Runtime struct {
	cfg  Config
	Tr   *transport.Transport
	Disp *dispatcher.Dispatcher

	mu     sync.RWMutex
	tables map[string]*table.Table
}

// New builds a Runtime's Transport and Dispatcher and wires the
// Transport's request/disk sinks into the Dispatcher's queues, but
// does not start either; call Start.
func New(cfg Config) *Runtime {
	cfg.setDefaults()

	var q requestqueue.Queue
	if cfg.Sync {
		q = requestqueue.NewSync(cfg.NumLocalFIFOs, cfg.QueueSleep)
	} else {
		q = requestqueue.NewAsync(cfg.NumLocalFIFOs, cfg.QueueSleep)
	}

	disp := dispatcher.New(q, cfg.QueueSleep)
	tr := transport.New(transport.Config{Self: cfg.Self, Addrs: cfg.Addrs, TLSInfo: cfg.TLSInfo})

	tr.RegisterRequestSink(func(_ types.Rank, t tag.Tag, payload []byte) { disp.Enqueue(t, payload) })
	tr.RegisterDiskSink(func(_ types.Rank, _ tag.Tag, payload []byte) { disp.EnqueueDiskFrame(payload) })

	return &Runtime{cfg: cfg, Tr: tr, Disp: disp, tables: make(map[string]*table.Table)}
}

// Start brings up the Transport's fabric listener and the
// Dispatcher's dispatch loops.
func (r *Runtime) Start() error {
	if err := r.Tr.Start(); err != nil {
		return err
	}
	r.Disp.Start()
	return nil
}

// CreateTable builds a Table against this Runtime's Transport and
// Dispatcher and registers it under desc.Name for later lookup via
// Tables/Table.
func (r *Runtime) CreateTable(desc table.Descriptor) *table.Table {
	t := table.New(desc, r.cfg.Self, r.Tr, r.Disp)
	r.mu.Lock()
	r.tables[desc.Name] = t
	r.mu.Unlock()
	return t
}

// Table looks up a previously created table by name.
func (r *Runtime) Table(name string) (*table.Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[name]
	return t, ok
}

// Tables returns every table this Runtime has created, keyed by name.
//
// (lapis §12 supplemental: resolves spec.md's Open Question about
// ModelController.GetTables returning an always-empty map)
func (r *Runtime) Tables() map[string]*table.Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*table.Table, len(r.tables))
	for k, v := range r.tables {
		out[k] = v
	}
	return out
}

// AwaitQuiescent blocks until a fabric-wide barrier completes and this
// rank's own dispatcher has drained every in-flight request, the
// condition a coordinator waits on before declaring an epoch done.
//
// (lapis §12 supplemental barrier helper)
func (r *Runtime) AwaitQuiescent(ctx context.Context) error {
	if err := r.Tr.Barrier(ctx); err != nil {
		return fmt.Errorf("runtime: barrier: %w", err)
	}
	for r.Disp.Active() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.cfg.QueueSleep):
		}
	}
	return nil
}

// Shutdown tears down the transport and dispatcher, in that order so
// no request arrives after the dispatcher has stopped consuming.
func (r *Runtime) Shutdown() {
	r.Tr.Shutdown()
	r.Disp.Shutdown()
	logger.Infof("rank %d: shut down", r.cfg.Self)
}
