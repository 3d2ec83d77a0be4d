// Package fabric implements the rank-addressed, point-to-point message
// fabric that Transport (see package transport) multiplexes into
// per-tag, per-peer queues. It stands in for the MPI world of
// spec.md §4.1: a fixed set of ranks, each reachable at one HTTP
// address, exchanging tagged byte payloads. Messages one sender passes
// to Send one after another reach the receiver in that order; each Send
// is a single attempt, and a failed one is reported to the caller and
// counted, not retried.
//
// The send side is grounded on rafthttp's pipeline (one POST per
// message); the receive side is
// grounded on rafthttp's pipelineHandler (one HTTP endpoint per
// process, dispatching on a header-carried tag).
package fabric

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io/ioutil"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	lapisioutil "github.com/anhdinh/lapis-go/pkg/ioutil"
	"github.com/anhdinh/lapis-go/pkg/netutil"
	"github.com/anhdinh/lapis-go/pkg/probing"
	"github.com/anhdinh/lapis-go/pkg/tlsutil"
	"github.com/anhdinh/lapis-go/pkg/types"
	"github.com/anhdinh/lapis-go/pkg/xlog"
	"github.com/anhdinh/lapis-go/tag"
)

var logger = xlog.NewLogger("fabric", xlog.INFO)

const (
	pathPrefix    = "/fabric"
	healthPath    = "/fabric/health"
	headerFromID  = "X-Fabric-From"
	headerTag     = "X-Fabric-Tag"
	maxConnReadN = 64 << 20 // 64MB, a generous cap on one DataPut frame.
)

// Handler is invoked for every message a rank receives, on the HTTP
// server goroutine that read it off the wire. Handlers must not block;
// Transport's registered handler only ever enqueues.
type Handler func(src types.Rank, msg tag.Message)

// Fabric is the process-wide message endpoint. One Fabric instance
// serves exactly one rank.
//
// (etcd rafthttp.Transporter, reduced to point-to-point send/receive)
type Fabric struct {
	self  types.Rank
	addrs map[types.Rank]string // rank -> host:port

	tlsInfo tlsutil.TLSInfo
	scheme  string

	client *http.Client
	srv    *http.Server

	mu      sync.RWMutex
	handler Handler

	failuresMu sync.Mutex
	failures   map[types.Rank]int
}

// New returns a Fabric for rank self, with addrs giving every rank's
// listen address (including self's, used to start the local server).
// A zero tlsInfo leaves the fabric on plain HTTP; a non-empty one
// (cert/key file pair) switches both the server and the client
// transport to TLS, the same CertFile/KeyFile/TrustedCAFile shape
// etcd's peer transport takes. The server demands and verifies client
// certificates only when TrustedCAFile or ClientCertAuth is set.
func New(self types.Rank, addrs map[types.Rank]string, tlsInfo tlsutil.TLSInfo) *Fabric {
	scheme := "http"
	client := &http.Client{Timeout: 30 * time.Second}
	if !tlsInfo.Empty() {
		scheme = "https"
		tr, err := netutil.NewTransport(tlsInfo, 5*time.Second)
		if err != nil {
			// Keep the default client transport rather than fail
			// construction; the scheme stays https, and Start will surface
			// the same TLSInfo error when it builds the server-side
			// tls.Config.
			logger.Warningf("fabric: building TLS client transport: %v", err)
		} else {
			client.Transport = tr
		}
	}
	return &Fabric{
		self:     self,
		addrs:    addrs,
		tlsInfo:  tlsInfo,
		scheme:   scheme,
		client:   client,
		failures: make(map[types.Rank]int),
	}
}

// SetHandler installs the callback invoked for every inbound message.
// Must be called before Start.
func (f *Fabric) SetHandler(h Handler) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

// Start begins serving inbound messages on self's address.
//
// (etcd rafthttp.Transport.Start)
func (f *Fabric) Start() error {
	addr, ok := f.addrs[f.self]
	if !ok {
		return fmt.Errorf("fabric: no address registered for rank %s", f.self)
	}

	mux := http.NewServeMux()
	mux.Handle(pathPrefix, f)
	mux.Handle(healthPath, probing.NewHTTPHealthHandler())
	f.srv = &http.Server{Addr: addr, Handler: mux}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	var tlsConfig *tls.Config
	if f.scheme == "https" {
		tlsConfig, err = f.tlsInfo.ServerConfig()
		if err != nil {
			return fmt.Errorf("fabric: building TLS server config: %w", err)
		}
	}
	ln, err = netutil.NewListenerWithKeepAlive(ln, f.scheme, tlsConfig)
	if err != nil {
		return err
	}

	go func() {
		if err := f.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("fabric server on %s stopped: %v", addr, err)
		}
	}()

	logger.Infof("rank %s listening on %s (%s)", f.self, addr, f.scheme)
	return nil
}

// Stop tears down the local server. Outstanding client connections are
// abandoned; callers should Flush first.
//
// (etcd rafthttp.Transport.Stop)
func (f *Fabric) Stop() {
	if f.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		f.srv.Shutdown(ctx)
	}
}

// ServeHTTP implements http.Handler, receiving one message per POST.
//
// (etcd rafthttp.pipelineHandler.ServeHTTP)
func (f *Fabric) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		rw.Header().Set("Allow", "POST")
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	fromTxt := req.Header.Get(headerFromID)
	from, err := strconv.Atoi(fromTxt)
	if err != nil {
		http.Error(rw, fmt.Sprintf("bad %s header: %v", headerFromID, err), http.StatusBadRequest)
		return
	}

	tagTxt := req.Header.Get(headerTag)
	tg, err := strconv.Atoi(tagTxt)
	if err != nil {
		http.Error(rw, fmt.Sprintf("bad %s header: %v", headerTag, err), http.StatusBadRequest)
		return
	}

	body, err := ioutil.ReadAll(lapisioutil.NewLimitedBufferReader(req.Body, maxConnReadN))
	if err != nil {
		http.Error(rw, fmt.Sprintf("failed to read payload: %v", err), http.StatusInternalServerError)
		return
	}

	f.mu.RLock()
	h := f.handler
	f.mu.RUnlock()

	if h != nil {
		h(types.Rank(from), tag.Message{Tag: tag.Tag(tg), Payload: body})
	}

	rw.WriteHeader(http.StatusOK)
}

// Send delivers payload to dst under tag t. It blocks for the duration
// of one HTTP round trip; Transport calls it from its outbound drain
// loop, never from a client-facing call, so this does not violate
// spec.md's "non-blocking send" contract at the Transport layer.
//
// (etcd rafthttp.pipeline.post)
func (f *Fabric) Send(ctx context.Context, dst types.Rank, t tag.Tag, payload []byte) error {
	addr, ok := f.addrs[dst]
	if !ok {
		return fmt.Errorf("fabric: no address registered for rank %s", dst)
	}

	url := f.scheme + "://" + addr + pathPrefix
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.Header.Set(headerFromID, strconv.Itoa(int(f.self)))
	req.Header.Set(headerTag, strconv.Itoa(int(t)))

	resp, err := f.client.Do(req)
	if err != nil {
		f.recordFailure(dst)
		return err
	}
	defer resp.Body.Close()
	ioutil.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		f.recordFailure(dst)
		return fmt.Errorf("fabric: send to %s failed with status %s", dst, resp.Status)
	}
	return nil
}

func (f *Fabric) recordFailure(dst types.Rank) {
	f.failuresMu.Lock()
	f.failures[dst]++
	f.failuresMu.Unlock()
}

// Failures returns the number of failed sends observed per destination
// rank, for NetworkThread-style throughput/failure reporting.
func (f *Fabric) Failures() map[types.Rank]int {
	f.failuresMu.Lock()
	defer f.failuresMu.Unlock()
	out := make(map[types.Rank]int, len(f.failures))
	for k, v := range f.failures {
		out[k] = v
	}
	return out
}

// Ranks returns every rank known to this fabric, including self.
func (f *Fabric) Ranks() []types.Rank {
	out := make([]types.Rank, 0, len(f.addrs))
	for r := range f.addrs {
		out = append(out, r)
	}
	return out
}

// Self returns this fabric's own rank.
func (f *Fabric) Self() types.Rank { return f.self }
