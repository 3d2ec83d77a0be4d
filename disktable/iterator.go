package disktable

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/anhdinh/lapis-go/pkg/fileutil"
	"github.com/anhdinh/lapis-go/recordfile"
)

// FileBlock describes one sealed block on disk.
//
// (lapis core.DiskTable::FileBlock)
type FileBlock struct {
	Path string
	Size int64
}

// Load lists every sealed block belonging to name under dataDir, in
// block order.
//
// (lapis core.DiskTable::Load)
func Load(dataDir, name string) ([]FileBlock, error) {
	matches, err := fileutil.Glob(dataDir + "/" + name + "_*")
	if err != nil {
		return nil, err
	}
	blocks := make([]FileBlock, 0, len(matches))
	for _, m := range matches {
		if strings.HasSuffix(m, fileutil.TmpSuffix) {
			continue // a block still being written, not yet sealed
		}
		info, err := os.Stat(m)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, FileBlock{Path: m, Size: info.Size()})
	}
	sort.Slice(blocks, func(i, j int) bool {
		return blockIndex(blocks[i].Path) < blockIndex(blocks[j].Path)
	})
	return blocks, nil
}

func blockIndex(path string) int {
	i := strings.LastIndex(path, "_")
	if i < 0 {
		return 0
	}
	n, err := strconv.Atoi(path[i+1:])
	if err != nil {
		return 0
	}
	return n
}

// Iterator walks every record across a disk table's blocks, in block
// and within-block order.
//
// (lapis core.DiskTableIterator)
type Iterator struct {
	blocks []FileBlock
	idx    int
	file   *recordfile.File
	cur    Record
	done   bool
}

// NewIterator opens blocks[0] (if any) and positions the iterator on
// the first record.
func NewIterator(blocks []FileBlock) (*Iterator, error) {
	it := &Iterator{blocks: blocks, idx: -1}
	if len(blocks) == 0 {
		it.done = true
		return it, nil
	}
	if err := it.openBlock(0); err != nil {
		return nil, err
	}
	if err := it.advance(); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *Iterator) openBlock(i int) error {
	if it.file != nil {
		it.file.Close()
	}
	f, err := recordfile.Open(it.blocks[i].Path, recordfile.ReadMode)
	if err != nil {
		return err
	}
	it.file = f
	it.idx = i
	return nil
}

// Value returns the record the iterator currently sits on. Call Done
// first.
func (it *Iterator) Value() Record { return it.cur }

// Done reports whether the iterator has exhausted every block.
func (it *Iterator) Done() bool { return it.done }

// Next advances to the next record, rolling across block boundaries.
func (it *Iterator) Next() error { return it.advance() }

func (it *Iterator) advance() error {
	for {
		chunk, ok, err := it.file.ReadChunk()
		if err != nil {
			return fmt.Errorf("disktable: reading %s: %w", it.blocks[it.idx].Path, err)
		}
		if ok {
			rec, err := DecodeRecord(chunk)
			if err != nil {
				return err
			}
			it.cur = rec
			return nil
		}
		if it.idx+1 >= len(it.blocks) {
			it.file.Close()
			it.done = true
			return nil
		}
		if err := it.openBlock(it.idx + 1); err != nil {
			return err
		}
	}
}
