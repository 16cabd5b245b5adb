package kio

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ProgressFunc observes a batch pass: done files finished out of total.
// Converters call it once per processed file; a nil ProgressFunc is ignored.
type ProgressFunc func(done, total int)

// FileIterator walks the files under a directory carrying a suffix, in
// sorted order of their slash-separated relative paths. The listing is taken
// once up front so a pass is deterministic and restartable.
type FileIterator struct {
	files []string
	next  int
}

// NewFileIterator lists root recursively. A missing root yields an empty
// iterator.
func NewFileIterator(root, suffix string) (*FileIterator, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return &FileIterator{}, nil
		}
		return nil, errors.Wrapf(err, "listing %s", root)
	}
	sort.Strings(files)
	return &FileIterator{files: files}, nil
}

// Len returns how many files the iterator will yield in total.
func (it *FileIterator) Len() int {
	return len(it.files)
}

// Next returns the next relative path, or false when the pass is done.
func (it *FileIterator) Next() (string, bool) {
	if it.next >= len(it.files) {
		return "", false
	}
	rel := it.files[it.next]
	it.next++
	return rel, true
}

// Reset rewinds the iterator for another pass.
func (it *FileIterator) Reset() {
	it.next = 0
}
