package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/anhdinh/lapis-go/pkg/fileutil"
	"github.com/anhdinh/lapis-go/pkg/xlog"
	"github.com/anhdinh/lapis-go/table"
	"github.com/anhdinh/lapis-go/tablecore"
)

var logger = xlog.NewLogger("checkpoint", xlog.INFO)

// LoadAll reads every record out of the checkpoint log at path,
// oldest first, by scanning backward from EOF and reversing.
//
// (lapis core worker recovery: a shard's owner replays its log on
// startup before marking the shard SERVING)
func LoadAll(path string) ([]Entry, error) {
	lf, err := OpenRead(path)
	if err != nil {
		return nil, err
	}
	defer lf.Close()

	it, err := NewBackwardIterator(lf)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for it.Prev() {
		entries = append(entries, it.Entry())
	}
	if it.Err() != nil {
		return nil, it.Err()
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Writer manages one shard's checkpoint log: incremental Append calls
// mirror live Put/Update traffic, and Snapshot periodically replaces
// the log with a single full dump of the shard's current contents so
// recovery never has to replay an unbounded history.
//
// (lapis core.LogFile driving worker checkpointing)
type Writer struct {
	dir     string
	name    string
	shardID int

	mu sync.Mutex
	lf *LogFile
}

// Open attaches a Writer to shard shardID's checkpoint log under dir,
// creating it if absent.
func Open(dir, name string, shardID int) (*Writer, error) {
	w := &Writer{dir: dir, name: name, shardID: shardID}
	path := w.path()
	if fileutil.ExistFileOrDir(path) {
		lf, err := OpenAppend(path)
		if err != nil {
			return nil, err
		}
		w.lf = lf
		return w, nil
	}
	lf, err := Create(path, int32(shardID))
	if err != nil {
		return nil, err
	}
	w.lf = lf
	return w, nil
}

func (w *Writer) path() string {
	return filepath.Join(w.dir, fmt.Sprintf("%s.shard-%d.ckpt", w.name, w.shardID))
}

// Append records one live write so it survives a crash between
// snapshots.
func (w *Writer) Append(key, value []byte, tableSize int32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.lf.Append(key, value, tableSize); err != nil {
		return tablecore.Wrap(tablecore.DiskIO, err)
	}
	return w.lf.Sync()
}

// Snapshot brackets a full checkpoint of shard s: the table is put
// into its CHECKPOINTING substate for the duration, so concurrent
// requests soft-fail with ShardNotReady instead of racing the dump.
//
// (lapis §12 supplemental: checkpoint-triggered ShardNotReady)
func (w *Writer) Snapshot(tbl *table.Table, s int) error {
	tbl.BeginCheckpoint(s)
	defer tbl.EndCheckpoint(s)

	kvs, err := tbl.ShardSnapshot(s)
	if err != nil {
		return err
	}

	path := w.path()
	lf, err := Create(path+".tmp", int32(w.shardID))
	if err != nil {
		return tablecore.Wrap(tablecore.DiskIO, err)
	}
	for _, kv := range kvs {
		raw, err := tbl.Descriptor().Marshaller.Marshal(kv.Value)
		if err != nil {
			lf.Close()
			return tablecore.Wrap(tablecore.MarshalError, err)
		}
		if err := lf.Append(kv.Key, raw, int32(len(kvs))); err != nil {
			lf.Close()
			return tablecore.Wrap(tablecore.DiskIO, err)
		}
	}
	if err := lf.Sync(); err != nil {
		lf.Close()
		return tablecore.Wrap(tablecore.DiskIO, err)
	}
	if err := lf.Close(); err != nil {
		return tablecore.Wrap(tablecore.DiskIO, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.lf.Close(); err != nil {
		return tablecore.Wrap(tablecore.DiskIO, err)
	}
	if err := fileutil.MkdirAll(w.dir); err != nil {
		return tablecore.Wrap(tablecore.DiskIO, err)
	}
	if err := os.Rename(path+".tmp", path); err != nil {
		return tablecore.Wrap(tablecore.DiskIO, err)
	}
	newLf, err := OpenAppend(path)
	if err != nil {
		return tablecore.Wrap(tablecore.DiskIO, err)
	}
	w.lf = newLf

	logger.Infof("%s shard %d: checkpointed %d keys", w.name, s, len(kvs))
	return nil
}

// Close closes the underlying log file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lf.Close()
}
