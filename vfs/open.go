package vfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"time"

	"github.com/meigma/pnp/archive"
	"github.com/meigma/pnp/internal/pathutil"
	"github.com/meigma/pnp/internal/sizing"
	"github.com/meigma/pnp/manifest"
)

// ErrSizeOverflow is returned when a segment cannot be addressed in the
// source.
var ErrSizeOverflow = archive.ErrSizeOverflow

// Open resolves p and returns its decompressed content as a new File with
// the cursor at 0. The File owns its buffer and stays valid after the
// archive is unregistered.
func (fsys *FileSystem) Open(p string) (*File, error) {
	h, key, err := fsys.Resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := fsys.readEntry(h, key)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: p, Err: err}
	}
	return newFile(p, data), nil
}

// ReadFile resolves p and returns a copy of its decompressed content.
func (fsys *FileSystem) ReadFile(p string) ([]byte, error) {
	f, err := fsys.Open(p)
	if err != nil {
		return nil, err
	}
	return f.data, nil
}

// readEntry returns the decompressed bytes of key in h, consulting the entry
// cache when enabled. The returned slice is never shared with the cache.
func (fsys *FileSystem) readEntry(h *Handle, key string) ([]byte, error) {
	seg, _ := h.Manifest.Lookup(key)
	if fsys.cache == nil {
		return ReadSegment(h, seg)
	}

	cacheKey := strconv.FormatUint(h.id, 10) + ":" + key
	if data, ok := fsys.cache.Get(cacheKey); ok {
		fsys.log().Debug("entry cache hit", "archive", h.Name, "path", key)
		return clone(data), nil
	}

	result, err, _ := fsys.group.Do(cacheKey, func() (any, error) {
		if data, ok := fsys.cache.Get(cacheKey); ok {
			return data, nil
		}
		fsys.log().Debug("entry cache miss", "archive", h.Name, "path", key)
		data, err := ReadSegment(h, seg)
		if err != nil {
			return nil, err
		}
		fsys.cache.Add(cacheKey, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	data, _ := result.([]byte) //nolint:errcheck // type assertion always succeeds when err is nil
	return clone(data), nil
}

// ReadSegment reads exactly seg.Length bytes at h.BaseOffset+seg.Offset and
// decompresses them with h's codec. It never reads outside the segment.
func ReadSegment(h *Handle, seg manifest.Segment) ([]byte, error) {
	startOff, length, err := sizing.Window(h.BaseOffset, seg.Offset, seg.Length, ErrSizeOverflow)
	if err != nil {
		return nil, err
	}

	raw := make([]byte, length)
	if _, err := io.ReadFull(io.NewSectionReader(h.Source, startOff, int64(length)), raw); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read segment %s: %w", seg, err)
	}
	return h.Codec.Decompress(raw)
}

// Stat returns placeholder metadata for p: zero size, zero modification
// time and mode 0444. The decompressed size is not reported; computing it
// would require decompressing the entry.
func (fsys *FileSystem) Stat(p string) (fs.FileInfo, error) {
	_, key, err := fsys.Resolve(p)
	if err != nil {
		return nil, err
	}
	return placeholderInfo{name: pathutil.Base(key)}, nil
}

// Exists reports whether p resolves to a manifest entry.
func (fsys *FileSystem) Exists(p string) bool {
	_, _, err := fsys.Resolve(p)
	return err == nil
}

// placeholderInfo implements fs.FileInfo for Stat.
type placeholderInfo struct {
	name string
}

func (i placeholderInfo) Name() string       { return i.name }
func (i placeholderInfo) Size() int64        { return 0 }
func (i placeholderInfo) Mode() fs.FileMode  { return 0o444 }
func (i placeholderInfo) ModTime() time.Time { return time.Time{} }
func (i placeholderInfo) IsDir() bool        { return false }
func (i placeholderInfo) Sys() any           { return nil }

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
