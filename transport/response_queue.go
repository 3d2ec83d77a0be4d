package transport

import (
	"sync"

	"github.com/anhdinh/lapis-go/pkg/types"
	"github.com/anhdinh/lapis-go/tag"
)

// responseQueues holds one FIFO per (tag, source rank) pair, the side
// channel that Read/TryRead drain. One mutex guards the queues of
// every tag; there is no per-tag mutex. It is held only for a single
// append or pop, and Read polls rather than waiting under it, so a
// slow reader on one tag does not block routing of another.
//
// (spec.md §5: "response_queue[tag] — per-tag recursive mutex")
type responseQueues struct {
	mu   sync.Mutex
	byTag map[tag.Tag]map[types.Rank][][]byte
}

func newResponseQueues() *responseQueues {
	return &responseQueues{byTag: make(map[tag.Tag]map[types.Rank][][]byte)}
}

func (q *responseQueues) push(src types.Rank, t tag.Tag, payload []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	bySrc, ok := q.byTag[t]
	if !ok {
		bySrc = make(map[types.Rank][][]byte)
		q.byTag[t] = bySrc
	}
	bySrc[src] = append(bySrc[src], payload)
}

// pop removes and returns the oldest payload queued for (src, t). If
// src is types.AnyRank, the oldest payload across every source rank
// for t is returned, along with the rank it actually came from.
func (q *responseQueues) pop(src types.Rank, t tag.Tag) (payload []byte, from types.Rank, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	bySrc, ok := q.byTag[t]
	if !ok {
		return nil, 0, false
	}

	if src != types.AnyRank {
		fifo := bySrc[src]
		if len(fifo) == 0 {
			return nil, 0, false
		}
		payload, bySrc[src] = fifo[0], fifo[1:]
		return payload, src, true
	}

	for rank, fifo := range bySrc {
		if len(fifo) == 0 {
			continue
		}
		payload, bySrc[rank] = fifo[0], fifo[1:]
		return payload, rank, true
	}
	return nil, 0, false
}
