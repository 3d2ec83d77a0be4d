package requestqueue

import (
	"context"

	"github.com/anhdinh/lapis-go/tag"
)

// Queue is the interface both admission strategies implement, matching
// spec.md §4.2's `{next_request, enqueue, sync_local_get, sync_local_put,
// event_complete}`.
type Queue interface {
	// Enqueue admits a freshly received table request. Cheap: it only
	// parses the leading server/key framing, never the full message.
	Enqueue(t tag.Tag, payload []byte)

	// NextRequest blocks until a request is admissible and returns it,
	// or returns ok=false if ctx is done first.
	NextRequest(ctx context.Context) (t tag.Tag, payload []byte, ok bool)

	// SyncLocalGet reports whether a get against key may proceed given
	// this client's own outstanding requests. The async queue always
	// returns true.
	SyncLocalGet(key []byte) bool

	// SyncLocalPut is SyncLocalGet's put/update counterpart.
	SyncLocalPut(key []byte) bool

	// EventComplete releases whatever admission state NextRequest
	// reserved when it returned the request for key.
	EventComplete(key []byte)
}

type queueEntry struct {
	tag     tag.Tag
	payload []byte
	keyID   int
}
