package disktable

import (
	"sync"

	"github.com/anhdinh/lapis-go/pkg/types"
	"github.com/anhdinh/lapis-go/tag"
	"github.com/anhdinh/lapis-go/transport"
)

// Producer is the writer-side half of a disk table: it buffers
// put_str calls and flushes them as DATA_PUT_REQUEST frames, then
// signals completion with DATA_PUT_REQUEST_FINISH.
//
// (lapis core.DiskTable::put_str / finish_put)
type Producer struct {
	desc Descriptor
	tr   *transport.Transport
	self types.Rank

	mu  sync.Mutex
	buf []Record
}

// NewProducer builds a Producer for desc, sending through tr.
func NewProducer(desc Descriptor, tr *transport.Transport, self types.Rank) *Producer {
	desc.setDefaults()
	return &Producer{desc: desc, tr: tr, self: self}
}

// PutStr buffers one key/value pair, flushing a DATA_PUT_REQUEST once
// the buffer reaches the descriptor's block size.
func (p *Producer) PutStr(key, value []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf = append(p.buf, Record{Key: append([]byte(nil), key...), Value: append([]byte(nil), value...)})
	if len(p.buf) >= p.desc.MaxRecordsPerBlock {
		p.flushLocked(tag.DataPutRequest)
	}
}

// FinishPut flushes any buffered records (even an empty buffer, so
// the destination server sees the DATA_PUT_REQUEST_FINISH marking the
// table as fully received) and tells the destination the stream is
// complete.
//
// (lapis core.DiskTable::finish_put)
func (p *Producer) FinishPut() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushLocked(tag.DataPutRequestFinish)
}

func (p *Producer) flushLocked(t tag.Tag) {
	dst := p.destinationLocked()
	payload := EncodeBatch(p.buf)
	p.tr.Send(dst, t, payload)
	p.buf = p.buf[:0]
}

// destinationLocked picks the server that should receive the current
// buffer: the descriptor's fixed server if set, else a hash of the
// next (first buffered) key across NumServers.
//
// (lapis core.DiskTable::SendDataBuffer)
func (p *Producer) destinationLocked() types.Rank {
	if p.desc.FixedServerID >= 0 {
		return types.Rank(p.desc.FixedServerID)
	}
	if len(p.buf) == 0 {
		return types.Rank(0)
	}
	return types.Rank(shardFor(p.buf[0].Key, p.desc.NumServers))
}
