package disktable

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/anhdinh/lapis-go/pkg/xlog"
	"github.com/anhdinh/lapis-go/recordfile"
	"github.com/anhdinh/lapis-go/tablecore"
)

var logger = xlog.NewLogger("disktable", xlog.INFO)

// Writer is the server side of a disk table: it appends every record
// from incoming DATA_PUT_REQUEST[_FINISH] frames to the current
// block, sealing and rolling to the next block once MaxRecordsPerBlock
// is reached.
//
// (lapis core.DiskTable::DumpToFile)
type Writer struct {
	desc Descriptor

	mu           sync.Mutex
	currentBlock int
	count        int
	file         *recordfile.File
}

// NewWriter opens the first block for desc.
func NewWriter(desc Descriptor) (*Writer, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	desc.setDefaults()
	w := &Writer{desc: desc}
	if err := w.openBlock(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) blockPath(i int) string {
	return filepath.Join(w.desc.DataDir, fmt.Sprintf("%s_%d", w.desc.Name, i))
}

func (w *Writer) openBlock() error {
	f, err := recordfile.Open(w.blockPath(w.currentBlock), recordfile.WriteMode)
	if err != nil {
		return err
	}
	w.file = f
	w.count = 0
	return nil
}

// HandleFrame is registered as the dispatcher's disk handler: it
// decodes one DATA_PUT_REQUEST[_FINISH] payload and appends each
// record to disk, spilling to a new block as needed.
func (w *Writer) HandleFrame(payload []byte) error {
	records, err := DecodeBatch(payload)
	if err != nil {
		return tablecore.Wrap(tablecore.ProtocolViolation, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range records {
		if err := w.file.WriteChunk(EncodeRecord(r)); err != nil {
			return tablecore.Wrap(tablecore.DiskIO, err)
		}
		w.count++
		if w.count >= w.desc.MaxRecordsPerBlock {
			if err := w.sealAndAdvanceLocked(); err != nil {
				return tablecore.Wrap(tablecore.DiskIO, err)
			}
		}
	}
	return nil
}

func (w *Writer) sealAndAdvanceLocked() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	w.currentBlock++
	logger.Infof("%s: rolled to block %d", w.desc.Name, w.currentBlock)
	return w.openBlock()
}

// Close seals whatever block is currently open.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
