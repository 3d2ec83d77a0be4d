package checkpoint

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Entry is one decoded checkpoint log record.
type Entry struct {
	Key       []byte
	Value     []byte
	TableSize int32
}

// BackwardIterator walks a checkpoint log newest-record-first, using
// each record's trailing total-length field to jump straight to its
// start without touching anything before it.
//
// (lapis src/core/file.cc LogFile::previous_entry)
type BackwardIterator struct {
	lf  *LogFile
	pos int64 // offset of the first byte not yet consumed, scanning backward
	cur Entry
	err error
}

// NewBackwardIterator positions the iterator at lf's current end of
// file and is ready to yield the last record written.
func NewBackwardIterator(lf *LogFile) (*BackwardIterator, error) {
	end, err := lf.f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	return &BackwardIterator{lf: lf, pos: end}, nil
}

// Prev decodes the record immediately before the iterator's current
// position and moves the iterator to that record's start. It returns
// false once the header (4 bytes, at offset 0) is reached.
func (it *BackwardIterator) Prev() bool {
	if it.err != nil {
		return false
	}
	if it.pos <= 4 {
		return false
	}

	var lenBuf [4]byte
	if _, err := it.lf.f.ReadAt(lenBuf[:], it.pos-4); err != nil {
		it.err = err
		return false
	}
	total := int64(binary.BigEndian.Uint32(lenBuf[:]))
	start := it.pos - total
	if start < 4 || total < recordOverhead {
		it.err = fmt.Errorf("checkpoint: corrupt record ending at offset %d", it.pos)
		return false
	}

	rec := make([]byte, total)
	if _, err := it.lf.f.ReadAt(rec, start); err != nil {
		it.err = err
		return false
	}
	klen := binary.BigEndian.Uint32(rec[0:4])
	if int64(4+klen) > total-8 {
		it.err = fmt.Errorf("checkpoint: corrupt key length at offset %d", start)
		return false
	}
	key := rec[4 : 4+klen]
	value := rec[4+klen : total-8]
	tableSize := int32(binary.BigEndian.Uint32(rec[total-8 : total-4]))

	it.cur = Entry{Key: key, Value: value, TableSize: tableSize}
	it.pos = start
	return true
}

// Entry returns the record Prev most recently decoded.
func (it *BackwardIterator) Entry() Entry { return it.cur }

// Err returns the first error Prev encountered, if any.
func (it *BackwardIterator) Err() error { return it.err }
