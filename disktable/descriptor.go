package disktable

import (
	"hash/fnv"

	"github.com/anhdinh/lapis-go/tablecore"
)

// Descriptor configures one disk table: where its blocks live, how
// big a block grows before it spills, and which server ultimately
// receives each record.
//
// (lapis core.DiskTableDescriptor)
type Descriptor struct {
	Name               string
	DataDir            string
	MaxRecordsPerBlock int

	// FixedServerID pins every record to one server; -1 (set
	// explicitly by callers, since the zero value pins to server 0)
	// shards by hashing the next key across NumServers instead.
	FixedServerID int
	NumServers    int

	// Compressed is always rejected: spec.md §12 carries forward the
	// original's LZO path as unsupported rather than silently
	// reinterpreting compressed blocks as plain ones.
	Compressed bool
}

func (d *Descriptor) setDefaults() {
	if d.MaxRecordsPerBlock <= 0 {
		d.MaxRecordsPerBlock = 1 << 20
	}
	if d.NumServers <= 0 {
		d.NumServers = 1
	}
}

// Validate rejects an unsupported descriptor before any file is
// opened.
//
// (lapis file.cc RecordFile: an LZO file opens with fp=NULL)
func (d Descriptor) Validate() error {
	if d.Compressed {
		return tablecore.ErrCompressionUnsupported
	}
	return nil
}

func shardFor(key []byte, numServers int) int {
	if numServers <= 0 {
		return 0
	}
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32() % uint32(numServers))
}
