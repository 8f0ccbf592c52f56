package vfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"time"

	"github.com/meigma/pnp/internal/pathutil"
)

// ErrInvalidWhence is returned by Seek for a whence other than io.SeekStart,
// io.SeekCurrent or io.SeekEnd.
var ErrInvalidWhence = errors.New("pnp: invalid whence")

// File is a fully materialized, independently seekable virtual file.
//
// Seek clamps targets below 0 to 0 and accepts targets past the end; reads
// from there return io.EOF and EOF reports true. A File is not safe for
// concurrent use, but distinct Files never share state.
type File struct {
	path   string
	data   []byte
	off    int64
	closed bool
}

// Interface compliance.
var (
	_ fs.File       = (*File)(nil)
	_ io.ReadSeeker = (*File)(nil)
	_ io.ReaderAt   = (*File)(nil)
)

func newFile(path string, data []byte) *File {
	return &File{path: path, data: data}
}

// Read reads up to len(p) bytes from the cursor.
func (f *File) Read(p []byte) (int, error) {
	if f.closed {
		return 0, &fs.PathError{Op: "read", Path: f.path, Err: fs.ErrClosed}
	}
	if f.off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[f.off:])
	f.off += int64(n)
	return n, nil
}

// ReadAt reads len(p) bytes at off without moving the cursor.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.closed {
		return 0, &fs.PathError{Op: "read", Path: f.path, Err: fs.ErrClosed}
	}
	if off < 0 {
		return 0, &fs.PathError{Op: "read", Path: f.path, Err: fmt.Errorf("negative offset %d", off)}
	}
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Seek sets the cursor and returns it. Targets below 0 clamp to 0.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, &fs.PathError{Op: "seek", Path: f.path, Err: fs.ErrClosed}
	}
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = f.off
	case io.SeekEnd:
		base = int64(len(f.data))
	default:
		return f.off, &fs.PathError{Op: "seek", Path: f.path, Err: ErrInvalidWhence}
	}
	target := base + offset
	switch {
	case offset > 0 && target < base:
		target = math.MaxInt64
	case target < 0:
		target = 0
	}
	f.off = target
	return f.off, nil
}

// Tell returns the cursor.
func (f *File) Tell() int64 {
	return f.off
}

// EOF reports whether the cursor is at or past the end of the content.
func (f *File) EOF() bool {
	return f.off >= int64(len(f.data))
}

// Len returns the content size in bytes.
func (f *File) Len() int {
	return len(f.data)
}

// Stat returns metadata for the open file, including its real size.
func (f *File) Stat() (fs.FileInfo, error) {
	return fileInfo{name: pathutil.Base(f.path), size: int64(len(f.data))}, nil
}

// Close releases the buffer. Further reads fail with fs.ErrClosed.
func (f *File) Close() error {
	if f.closed {
		return &fs.PathError{Op: "close", Path: f.path, Err: fs.ErrClosed}
	}
	f.closed = true
	f.data = nil
	return nil
}

type fileInfo struct {
	name string
	size int64
}

func (i fileInfo) Name() string       { return i.name }
func (i fileInfo) Size() int64        { return i.size }
func (i fileInfo) Mode() fs.FileMode  { return 0o444 }
func (i fileInfo) ModTime() time.Time { return time.Time{} }
func (i fileInfo) IsDir() bool        { return false }
func (i fileInfo) Sys() any           { return nil }
