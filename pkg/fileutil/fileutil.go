// Package fileutil collects the filesystem primitives the disk table,
// record file and checkpoint log build on: directory bootstrap, glob
// listing, and the tmp-file-then-rename idiom that makes a written block
// or checkpoint atomically visible to readers.
package fileutil

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
)

const (
	// PrivateFileMode grants owner to read/write a file.
	PrivateFileMode = 0600

	// PrivateDirMode grants owner to make/remove files inside the directory.
	PrivateDirMode = 0700

	// TmpSuffix is appended to a file's final name while it is staged;
	// the name without the suffix is invisible to readers until Rename.
	TmpSuffix = ".tmp"
)

// OpenToRead opens a file for reads. Make sure to close the file.
func OpenToRead(fpath string) (*os.File, error) {
	f, err := os.OpenFile(fpath, os.O_RDONLY, PrivateFileMode)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// OpenToOverwrite creates or opens a file for overwriting.
// Make sure to close the file.
func OpenToOverwrite(fpath string) (*os.File, error) {
	f, err := os.OpenFile(fpath, os.O_RDWR|os.O_TRUNC|os.O_CREATE, PrivateFileMode)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// OpenToOverwriteOnly opens a file only for overwriting.
func OpenToOverwriteOnly(fpath string) (*os.File, error) {
	f, err := os.OpenFile(fpath, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, PrivateFileMode)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// OpenToAppend opens a file for appends. If the file does not eixst, it creates one.
// Make sure to close the file.
func OpenToAppend(fpath string) (*os.File, error) {
	f, err := os.OpenFile(fpath, os.O_RDWR|os.O_APPEND|os.O_CREATE, PrivateFileMode)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// OpenToAppendOnly opens a file only for appends.
func OpenToAppendOnly(fpath string) (*os.File, error) {
	f, err := os.OpenFile(fpath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, PrivateFileMode)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// DirWritable returns nil if dir is writable.
func DirWritable(dir string) error {
	f := filepath.Join(dir, ".touch")
	if err := ioutil.WriteFile(f, []byte(""), PrivateFileMode); err != nil {
		return err
	}
	return os.Remove(f)
}

// ReadDir returns the filenames in the given directory in sorted order.
func ReadDir(dir string) ([]string, error) {
	d, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	ns, err := d.Readdirnames(-1)
	if err != nil {
		return nil, err
	}
	sort.Strings(ns)

	return ns, nil
}

// MkdirAll runs os.MkdirAll with writable check.
//
// (etcd pkg.fileutil.TouchDirAll)
func MkdirAll(dir string) error {
	// If path is already a directory, MkdirAll does nothing
	// and returns nil.
	err := os.MkdirAll(dir, PrivateDirMode)
	if err != nil {
		// if mkdirAll("a/text") and "text" is not
		// a directory, this will return syscall.ENOTDIR
		return err
	}
	return DirWritable(dir)
}

// MkdirAllEmpty is similar to MkdirAll but returns error
// if the deepest directory was not empty.
//
// (etcd pkg.fileutil.CreateDirAll)
func MkdirAllEmpty(dir string) error {
	err := MkdirAll(dir)
	if err == nil {
		var ns []string
		ns, err = ReadDir(dir)
		if err != nil {
			return err
		}
		if len(ns) != 0 {
			err = fmt.Errorf("expected %q to be empty, got %q", dir, ns)
		}
	}
	return err
}

// ExistFileOrDir returns true if the file or directory exists.
//
// (etcd pkg.fileutil.Exist)
func ExistFileOrDir(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// DirHasFiles returns true only when the directory exists
// and it is non-empty.
func DirHasFiles(dir string) bool {
	ns, err := ReadDir(dir)
	if err != nil {
		return false
	}
	return len(ns) != 0
}

// WriteSync writes data to fpath, syncing before close so a caller that
// observes success knows the bytes reached disk.
func WriteSync(fpath string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	n, err := f.Write(data)
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}
	if err == nil {
		err = f.Sync()
	}
	if e := f.Close(); err == nil {
		err = e
	}
	return err
}

// SealTmp fsyncs and closes f, then renames tmpName to finalName. This is
// the block/checkpoint staging sequence from spec.md §3: writers create
// "<final>.tmp", write into it, then atomically rename to "<final>" so no
// reader ever observes a partially written file.
func SealTmp(f *os.File, tmpName, finalName string) error {
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, finalName)
}

// OpenTmpForWrite creates "<finalName>.tmp" for writing, truncating any
// partial leftover from a prior crash.
func OpenTmpForWrite(finalName string) (f *os.File, tmpName string, err error) {
	tmpName = finalName + TmpSuffix
	f, err = os.OpenFile(tmpName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, PrivateFileMode)
	return f, tmpName, err
}

// Glob lists files matching pattern in sorted order. Unlike filepath.Glob,
// a no-match result is an empty, non-nil slice.
func Glob(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	if matches == nil {
		matches = []string{}
	}
	return matches, nil
}
