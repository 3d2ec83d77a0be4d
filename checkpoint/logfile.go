// Package checkpoint implements spec.md §4.7's checkpoint log: a
// log-structured file, one per shard, that supports cheap backward
// scanning (each record's own length sits at its very end) so a
// reader can find the most recent table size, or walk records newest
// first, without replaying the log from the start.
//
// (lapis core.LogFile, src/core/file.cc LogFile)
package checkpoint

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/anhdinh/lapis-go/pkg/fileutil"
)

// recordOverhead is the fixed-size part of an on-disk record: the
// leading key-length field plus the trailing table-size and
// total-length fields.
const recordOverhead = 4 + 4 + 4

// LogFile is one shard's checkpoint log: a 4-byte shard-id header
// followed by a sequence of key/value/table-size records.
//
// On-disk record layout, matching src/core/file.cc's LogFile::append:
//
//	key_len(4) | key | value | table_size(4) | total_len(4)
//
// total_len counts the whole record (key_len field through itself),
// so a reader at the end of one record can step back exactly
// total_len bytes to reach its start.
type LogFile struct {
	f       *os.File
	shardID int32
}

// Create opens a fresh checkpoint log for shardID at path, writing
// the shard-id header. Any existing file at path is truncated, since
// Create is for writing a brand new checkpoint, not appending to one.
func Create(path string, shardID int32) (*LogFile, error) {
	f, err := fileutil.OpenToOverwrite(path)
	if err != nil {
		return nil, err
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(shardID))
	if _, err := f.Write(hdr[:]); err != nil {
		f.Close()
		return nil, err
	}
	return &LogFile{f: f, shardID: shardID}, nil
}

// OpenAppend opens an existing checkpoint log for further appends,
// seeking to EOF and verifying the shard-id header.
func OpenAppend(path string) (*LogFile, error) {
	f, err := fileutil.OpenToAppend(path)
	if err != nil {
		return nil, err
	}
	lf := &LogFile{f: f}
	if err := lf.readShardIDLocked(); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, err
	}
	return lf, nil
}

// OpenRead opens an existing checkpoint log for backward/forward
// scanning.
func OpenRead(path string) (*LogFile, error) {
	f, err := fileutil.OpenToRead(path)
	if err != nil {
		return nil, err
	}
	lf := &LogFile{f: f}
	if err := lf.readShardIDLocked(); err != nil {
		f.Close()
		return nil, err
	}
	return lf, nil
}

func (lf *LogFile) readShardIDLocked() error {
	if _, err := lf.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	var hdr [4]byte
	if _, err := io.ReadFull(lf.f, hdr[:]); err != nil {
		return fmt.Errorf("checkpoint: reading shard-id header: %w", err)
	}
	lf.shardID = int32(binary.BigEndian.Uint32(hdr[:]))
	return nil
}

// ShardID returns the shard id stamped in the log's header.
func (lf *LogFile) ShardID() int32 { return lf.shardID }

// Append writes one record: key, value, and the table's size (entry
// count) as of this write.
//
// (lapis src/core/file.cc LogFile::append)
func (lf *LogFile) Append(key, value []byte, tableSize int32) error {
	total := int32(recordOverhead + len(key) + len(value))
	buf := make([]byte, total)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(key)))
	off := 4
	copy(buf[off:], key)
	off += len(key)
	copy(buf[off:], value)
	off += len(value)
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(tableSize))
	off += 4
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(total))

	_, err := lf.f.Write(buf)
	return err
}

// ReadLatestTableSize seeks to the table_size field of the very last
// record (8 bytes before EOF) and returns it, leaving the file
// positioned at EOF.
//
// (lapis src/core/file.cc LogFile::read_latest_table_size)
func (lf *LogFile) ReadLatestTableSize() (int32, error) {
	end, err := lf.f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if end < 4+8 {
		return 0, fmt.Errorf("checkpoint: log has no records")
	}
	if _, err := lf.f.Seek(-8, io.SeekEnd); err != nil {
		return 0, err
	}
	var buf [4]byte
	if _, err := io.ReadFull(lf.f, buf[:]); err != nil {
		return 0, err
	}
	if _, err := lf.f.Seek(end, io.SeekStart); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

// Close closes the underlying file.
func (lf *LogFile) Close() error { return lf.f.Close() }

// Sync flushes pending writes to disk.
func (lf *LogFile) Sync() error { return lf.f.Sync() }
