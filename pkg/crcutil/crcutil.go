package crcutil

import (
	"hash"
	"hash/crc32"
)

// digest is a hash.Hash32 that starts from a caller-supplied initial crc
// instead of zero, so a writer can resume a running checksum across
// appends to a block or checkpoint file without re-reading everything
// written so far.
type digest struct {
	crc uint32
	tab *crc32.Table
}

// New returns a new hash.Hash32 computing the CRC-32 checksum using the
// polynomial represented by tab, seeded with the given initial value.
//
// (etcd pkg.crc.New)
func New(initial uint32, tab *crc32.Table) hash.Hash32 {
	return &digest{initial, tab}
}

func (d *digest) Write(p []byte) (n int, err error) {
	d.crc = crc32.Update(d.crc, d.tab, p)
	return len(p), nil
}

func (d *digest) Sum32() uint32 { return d.crc }

func (d *digest) Reset() { d.crc = 0 }

func (d *digest) Size() int { return crc32.Size }

func (d *digest) BlockSize() int { return 1 }

func (d *digest) Sum(in []byte) []byte {
	s := d.Sum32()
	return append(in, byte(s>>24), byte(s>>16), byte(s>>8), byte(s))
}
