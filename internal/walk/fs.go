// Package walk yields regular files under one or more roots as an iterator,
// feeding local directory scans.
package walk

import (
	"context"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
)

// Entry is a handle for one regular file found during the walk.
type Entry struct {
	root    fs.FS
	path    string // relative to root
	abspath string
	info    fs.FileInfo
}

// Path returns the file path prefixed with the root name, in most cases an
// absolute path.
func (e Entry) Path() string { return e.abspath }

// Size returns the file size recorded during the walk.
func (e Entry) Size() int64 { return e.info.Size() }

// ReadAll loads the file content.
func (e Entry) ReadAll() ([]byte, error) {
	return fs.ReadFile(e.root, e.path)
}

// Roots is a convenience wrapper around FS for os.Root. See FS for details.
func Roots(ctx context.Context, roots ...*os.Root) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for _, root := range roots {
			for entry, err := range FS(ctx, root.FS(), root.Name()) {
				if !yield(entry, err) {
					return
				}
			}
		}
	}
}

// FS recursively walks the filesystem rooted at root and yields every
// regular file found, or an error when file information retrieval fails.
// Symlinks are not followed. A cancelled context stops the walk.
func FS(ctx context.Context, root fs.FS, name string) iter.Seq2[Entry, error] {
	if root == nil {
		panic("root is nil")
	}

	return func(yield func(Entry, error) bool) {
		fn := func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return fs.SkipAll
			}
			entry := Entry{
				root:    root,
				path:    path,
				abspath: filepath.Join(name, path),
			}
			if err != nil {
				if !yield(entry, err) {
					return fs.SkipAll
				}
				return nil
			}
			info, err := d.Info()
			if err != nil {
				if !yield(entry, err) {
					return fs.SkipAll
				}
				return nil
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			entry.info = info
			if !yield(entry, nil) {
				return fs.SkipAll
			}
			return nil
		}
		_ = fs.WalkDir(root, ".", fn)
	}
}
