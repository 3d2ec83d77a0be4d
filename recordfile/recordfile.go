// Package recordfile implements spec.md §4.6's record file: a binary
// sequence of length-prefixed chunks, written through a tmp-staged
// file that becomes visible only once sealed.
//
// (lapis core.RecordFile)
package recordfile

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/anhdinh/lapis-go/pkg/crcutil"
	"github.com/anhdinh/lapis-go/pkg/fileutil"
	"github.com/anhdinh/lapis-go/pkg/ioutil"
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// pageBytesN is the page-writer flush granularity for write-mode files,
// the same 4KB default etcd's WAL uses for its page writer.
const pageBytesN = 4096

// Mode selects how Open treats the path.
type Mode int

const (
	ReadMode Mode = iota
	WriteMode
)

// File is one record file, open for either sequential reads or
// append-style chunked writes.
type File struct {
	f       *os.File
	pw      *ioutil.PageWriter // write-mode only, buffers WriteChunk in page-sized flushes
	mode    Mode
	path    string
	tmpPath string
}

// Open opens path for reading, or stages "<path>.tmp" for writing;
// Close reconciles the write case by fsync-then-rename.
func Open(path string, mode Mode) (*File, error) {
	if mode == ReadMode {
		f, err := fileutil.OpenToRead(path)
		if err != nil {
			return nil, err
		}
		return &File{f: f, mode: mode, path: path}, nil
	}
	f, tmp, err := fileutil.OpenTmpForWrite(path)
	if err != nil {
		return nil, err
	}
	return &File{f: f, pw: ioutil.NewPageWriter(f, pageBytesN), mode: mode, path: path, tmpPath: tmp}, nil
}

// WriteChunk writes one length-prefixed chunk: a big-endian int32
// length, the data, then a trailing CRC-32C of data so ReadChunk can
// detect a torn or bit-flipped write.
//
// (lapis core.RecordFile::writeChunk)
func (r *File) WriteChunk(data []byte) error {
	if r.mode != WriteMode {
		return fmt.Errorf("recordfile: WriteChunk on a file opened for reading")
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := r.pw.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := r.pw.Write(data); err != nil {
		return err
	}
	sum := crcutil.New(0, crcTable)
	sum.Write(data)
	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], sum.Sum32())
	_, err := r.pw.Write(crcBuf[:])
	return err
}

// ReadChunk reads one length-prefixed chunk and verifies its trailing
// CRC. ok is false at a clean EOF (no more chunks); a short read
// mid-chunk, or a CRC mismatch, is reported as an error, since either
// means the file is truncated or corrupt.
//
// (lapis core.RecordFile::readChunk)
func (r *File) ReadChunk() (data []byte, ok bool, err error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r.f, lenBuf[:]); err != nil {
		if err == io.EOF {
			return nil, false, nil
		}
		return nil, false, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.f, buf); err != nil {
		return nil, false, err
	}
	var crcBuf [4]byte
	if _, err := io.ReadFull(r.f, crcBuf[:]); err != nil {
		return nil, false, fmt.Errorf("recordfile: reading chunk crc: %w", err)
	}
	sum := crcutil.New(0, crcTable)
	sum.Write(buf)
	if got, want := sum.Sum32(), binary.BigEndian.Uint32(crcBuf[:]); got != want {
		return nil, false, fmt.Errorf("recordfile: chunk crc mismatch: got %x, want %x", got, want)
	}
	return buf, true, nil
}

// Seek advances by re-reading chunks from the current position until
// the file offset meets or exceeds pos; random access here is
// approximate, exactly as spec.md §4.6 describes.
//
// (lapis core.RecordFile::seek)
func (r *File) Seek(pos int64) error {
	for {
		cur, err := r.f.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}
		if cur >= pos {
			return nil
		}
		_, ok, err := r.ReadChunk()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

// Tell returns the file's current offset.
func (r *File) Tell() (int64, error) {
	return r.f.Seek(0, io.SeekCurrent)
}

// Close reconciles a write-mode file (fsync, then rename the tmp file
// into place) or simply closes a read-mode file.
func (r *File) Close() error {
	if r.mode == WriteMode {
		if err := r.pw.Flush(); err != nil {
			r.f.Close()
			return err
		}
		return fileutil.SealTmp(r.f, r.tmpPath, r.path)
	}
	return r.f.Close()
}
