// Package vfs resolves pnp:// virtual paths against registered containers
// and materializes entries as in-memory files.
//
// A [FileSystem] is an explicit registry of archive handles. It provides no
// locking of its own: Register, Unregister and Teardown must be serialized by
// the caller against concurrent Open calls. The optional entry cache enabled
// by [WithEntryCache] is internally synchronized.
package vfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/pnp/codec"
	"github.com/meigma/pnp/manifest"
)

// Scheme is the URL scheme of virtual paths.
const Scheme = "pnp"

// Sentinel errors for virtual file system operations.
var (
	// ErrNotFound is returned when a virtual path does not resolve to a
	// manifest entry of any registered archive. It matches fs.ErrNotExist.
	ErrNotFound = fmt.Errorf("pnp: not found: %w", fs.ErrNotExist)

	// ErrInvalidPath is returned for paths that are not pnp:// URLs.
	ErrInvalidPath = fmt.Errorf("pnp: invalid virtual path: %w", fs.ErrInvalid)

	// ErrInvalidHandle is returned by Register for an incomplete handle.
	ErrInvalidHandle = errors.New("pnp: invalid archive handle")
)

// Handle is a registered archive: a byte source, the codec its entries are
// compressed with, the offset of its data section within the source, and its
// manifest.
type Handle struct {
	Name       string
	Source     io.ReaderAt
	Codec      codec.Codec
	BaseOffset int64
	Manifest   *manifest.Manifest

	// id distinguishes successive registrations under one name in cache keys.
	id uint64
}

// FileSystem is a registry of archive handles keyed by name.
type FileSystem struct {
	handles []*Handle
	nextID  uint64

	cache  *lru.Cache[string, []byte]
	group  singleflight.Group
	logger *slog.Logger
}

// Option configures a FileSystem.
type Option func(*FileSystem)

// WithLogger sets the logger for registry and cache events.
func WithLogger(logger *slog.Logger) Option {
	return func(fsys *FileSystem) {
		fsys.logger = logger
	}
}

// WithEntryCache keeps up to n decompressed entries in an LRU cache.
// Concurrent misses on the same entry share one read. Values n <= 0
// disable caching.
func WithEntryCache(n int) Option {
	return func(fsys *FileSystem) {
		if n <= 0 {
			fsys.cache = nil
			return
		}
		cache, err := lru.New[string, []byte](n)
		if err != nil {
			return
		}
		fsys.cache = cache
	}
}

// New returns an empty FileSystem.
func New(opts ...Option) *FileSystem {
	fsys := &FileSystem{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(fsys)
	}
	return fsys
}

// log returns the logger, falling back to a discard logger if nil.
func (fsys *FileSystem) log() *slog.Logger {
	if fsys.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return fsys.logger
}

// Register inserts or replaces the archive registered under name. A
// replaced name keeps its position in resolution order.
//
// The codec is guarded first: if it is unavailable Register returns
// codec.ErrUnavailable and the registry is unchanged.
func (fsys *FileSystem) Register(name string, source io.ReaderAt, c codec.Codec, baseOffset int64, m *manifest.Manifest) error {
	if err := codec.Guard(c); err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	switch {
	case name == "" || strings.HasSuffix(name, "/") || strings.Contains(name, "://"):
		return fmt.Errorf("%w: name %q", ErrInvalidHandle, name)
	case source == nil:
		return fmt.Errorf("%w: %s: nil source", ErrInvalidHandle, name)
	case m == nil:
		return fmt.Errorf("%w: %s: nil manifest", ErrInvalidHandle, name)
	case baseOffset < 0:
		return fmt.Errorf("%w: %s: negative base offset %d", ErrInvalidHandle, name, baseOffset)
	}

	fsys.nextID++
	h := &Handle{
		Name:       name,
		Source:     source,
		Codec:      c,
		BaseOffset: baseOffset,
		Manifest:   m,
		id:         fsys.nextID,
	}
	for i, old := range fsys.handles {
		if old.Name == name {
			fsys.handles[i] = h
			fsys.log().Debug("archive replaced", "name", name, "entries", m.Len())
			return nil
		}
	}
	fsys.handles = append(fsys.handles, h)
	fsys.log().Debug("archive registered", "name", name, "entries", m.Len(), "codec", c.Kind())
	return nil
}

// Unregister removes the archive registered under name. Files already
// opened from it remain valid.
func (fsys *FileSystem) Unregister(name string) {
	for i, h := range fsys.handles {
		if h.Name == name {
			fsys.handles = append(fsys.handles[:i], fsys.handles[i+1:]...)
			fsys.log().Debug("archive unregistered", "name", name)
			return
		}
	}
}

// Teardown removes every registered archive and drops cached entries.
func (fsys *FileSystem) Teardown() {
	fsys.handles = nil
	if fsys.cache != nil {
		fsys.cache.Purge()
	}
}

// Names returns the registered names in resolution order.
func (fsys *FileSystem) Names() []string {
	names := make([]string, len(fsys.handles))
	for i, h := range fsys.handles {
		names[i] = h.Name
	}
	return names
}

// Handle returns the archive registered under name.
func (fsys *FileSystem) Handle(name string) (*Handle, bool) {
	for _, h := range fsys.handles {
		if h.Name == name {
			return h, true
		}
	}
	return nil, false
}
