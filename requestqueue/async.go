package requestqueue

import (
	"context"
	"sync"
	"time"

	"github.com/anhdinh/lapis-go/tag"
)

// AsyncQueue holds one FIFO per table server and round-robins across
// them; it gives no cross-key ordering guarantee beyond FIFO per
// producer.
//
// (lapis core.ASyncRequestQueue)
type AsyncQueue struct {
	mu    sync.Mutex
	fifos [][]queueEntry
	rr    int
	sleep time.Duration
}

// NewAsync returns an AsyncQueue with numServers per-server FIFOs.
func NewAsync(numServers int, sleep time.Duration) *AsyncQueue {
	return &AsyncQueue{fifos: make([][]queueEntry, numServers), sleep: sleep}
}

func (q *AsyncQueue) Enqueue(t tag.Tag, payload []byte) {
	server, err := ExtractServer(payload)
	if err != nil || server < 0 || server >= len(q.fifos) {
		server = 0
	}
	q.mu.Lock()
	q.fifos[server] = append(q.fifos[server], queueEntry{tag: t, payload: payload})
	q.mu.Unlock()
}

func (q *AsyncQueue) NextRequest(ctx context.Context) (tag.Tag, []byte, bool) {
	for {
		q.mu.Lock()
		n := len(q.fifos)
		for i := 0; i < n; i++ {
			idx := (q.rr + i) % n
			if len(q.fifos[idx]) > 0 {
				e := q.fifos[idx][0]
				q.fifos[idx] = q.fifos[idx][1:]
				q.rr = (idx + 1) % n
				q.mu.Unlock()
				return e.tag, e.payload, true
			}
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return 0, nil, false
		case <-time.After(q.sleep):
		}
	}
}

func (q *AsyncQueue) SyncLocalGet(key []byte) bool { return true }
func (q *AsyncQueue) SyncLocalPut(key []byte) bool { return true }
func (q *AsyncQueue) EventComplete(key []byte)     {}
