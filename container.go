package pnp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/meigma/pnp/archive"
	"github.com/meigma/pnp/codec"
	"github.com/meigma/pnp/manifest"
	"github.com/meigma/pnp/vfs"
	pnphttp "github.com/meigma/pnp/vfs/http"
)

// Container is a parsed artifact ready to be registered with a
// vfs.FileSystem.
type Container struct {
	// Shebang is the artifact's interpreter line, or empty.
	Shebang string

	// Descriptor is decoded from the loader text.
	Descriptor archive.Descriptor

	// Manifest maps logical paths to segments of the data section.
	Manifest *manifest.Manifest

	source   io.ReaderAt
	base     int64
	dataSize int64
	codec    codec.Codec
	closer   io.Closer
	logger   *slog.Logger
}

// OpenOption configures Open, OpenURL and Read.
type OpenOption func(*openConfig)

type openConfig struct {
	httpOpts []pnphttp.Option
	logger   *slog.Logger
}

// OpenWithLogger sets the logger for load and boot events.
func OpenWithLogger(logger *slog.Logger) OpenOption {
	return func(cfg *openConfig) {
		cfg.logger = logger
	}
}

// OpenWithHTTPOptions configures the range-request source used by OpenURL.
func OpenWithHTTPOptions(opts ...pnphttp.Option) OpenOption {
	return func(cfg *openConfig) {
		cfg.httpOpts = append(cfg.httpOpts, opts...)
	}
}

func newOpenConfig(opts []OpenOption) *openConfig {
	cfg := &openConfig{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(cfg)
	}
	return cfg
}

// prefixBufferSize is the read-ahead used while scanning for the marker
// line. Larger buffers mean fewer range requests for remote artifacts.
const prefixBufferSize = 64 << 10

// Open parses the container at path. Seekable containers are read in place
// with random access; streamable containers have their data section
// decoded into memory. The returned Container must be closed.
func Open(path string, opts ...OpenOption) (*Container, error) {
	cfg := newOpenConfig(opts)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	c, err := load(f, info.Size(), cfg)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	c.closer = f
	return c, nil
}

// OpenURL parses a container served over HTTP. The server must support
// range requests; seekable containers then fetch only the bytes of the
// entries that are opened.
func OpenURL(ctx context.Context, url string, opts ...OpenOption) (*Container, error) {
	cfg := newOpenConfig(opts)
	httpOpts := append([]pnphttp.Option{pnphttp.WithLogger(cfg.logger)}, cfg.httpOpts...)
	src, err := pnphttp.NewSource(ctx, url, httpOpts...)
	if err != nil {
		return nil, err
	}
	c, err := load(src, src.Size(), cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	return c, nil
}

// Read parses a container from a forward-only stream such as a pipe. The
// data section is held in memory whatever the layout.
func Read(r io.Reader, opts ...OpenOption) (*Container, error) {
	cfg := newOpenConfig(opts)
	br := bufio.NewReaderSize(r, prefixBufferSize)
	prefix, err := archive.ReadPrefix(br)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch prefix.Descriptor.Layout {
	case archive.LayoutStreamable:
		data, err = archive.ReadLiteral(br)
	default:
		data, err = io.ReadAll(br)
	}
	if err != nil {
		return nil, err
	}
	return newContainer(prefix, bytes.NewReader(data), 0, int64(len(data)), cfg)
}

// load parses a container from a random-access source of the given size.
func load(src io.ReaderAt, size int64, cfg *openConfig) (*Container, error) {
	br := bufio.NewReaderSize(io.NewSectionReader(src, 0, size), prefixBufferSize)
	prefix, err := archive.ReadPrefix(br)
	if err != nil {
		return nil, err
	}

	if prefix.Descriptor.Layout == archive.LayoutStreamable {
		data, err := archive.ReadLiteral(br)
		if err != nil {
			return nil, err
		}
		return newContainer(prefix, bytes.NewReader(data), 0, int64(len(data)), cfg)
	}
	return newContainer(prefix, src, prefix.Length, size-prefix.Length, cfg)
}

func newContainer(prefix *archive.Prefix, src io.ReaderAt, base, dataSize int64, cfg *openConfig) (*Container, error) {
	c, err := codec.New(prefix.Descriptor.Codec)
	if err != nil {
		return nil, err
	}
	if err := codec.Guard(c); err != nil {
		return nil, err
	}

	h := &vfs.Handle{Source: src, Codec: c, BaseOffset: base}
	raw, err := vfs.ReadSegment(h, prefix.Descriptor.Manifest)
	if err != nil {
		return nil, fmt.Errorf("%w: read manifest: %w", manifest.ErrInvalid, err)
	}
	m, err := manifest.Decode(raw)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(uint64(dataSize)); err != nil { //nolint:gosec // dataSize is non-negative
		return nil, err
	}
	for _, b := range prefix.Descriptor.Bootstrap {
		if seg, ok := m.Lookup(b.Name); !ok || seg != b.Segment {
			return nil, fmt.Errorf("%w: bootstrap %s does not match manifest", manifest.ErrInvalid, b.Name)
		}
	}

	container := &Container{
		Shebang:    prefix.Shebang,
		Descriptor: prefix.Descriptor,
		Manifest:   m,
		source:     src,
		base:       base,
		dataSize:   dataSize,
		codec:      c,
		logger:     cfg.logger,
	}
	container.log().Info("container loaded",
		"entries", m.Len(),
		"codec", c.Kind(),
		"layout", prefix.Descriptor.Layout,
		"bootstraps", len(prefix.Descriptor.Bootstrap))
	return container, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (c *Container) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// Codec returns the codec the container's entries are compressed with.
func (c *Container) Codec() codec.Codec {
	return c.codec
}

// DataSize returns the length of the data section.
func (c *Container) DataSize() int64 {
	return c.dataSize
}

// Register registers the container with fsys under name, replacing any
// archive already registered there.
func (c *Container) Register(fsys *vfs.FileSystem, name string) error {
	return fsys.Register(name, c.source, c.codec, c.base, c.Manifest)
}

// ReadEntry returns the decompressed content of the entry at path.
func (c *Container) ReadEntry(path string) ([]byte, error) {
	key := manifest.CleanPath(path)
	seg, ok := c.Manifest.Lookup(key)
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: path, Err: ErrNotFound}
	}
	return vfs.ReadSegment(c.handle(), seg)
}

// Boot registers the container with fsys under name and hands every
// bootstrap entry to sink in declared order. It stops at the first error.
func (c *Container) Boot(ctx context.Context, fsys *vfs.FileSystem, name string, sink ExecutionSink) error {
	if sink == nil {
		return errors.New("pnp: nil execution sink")
	}
	if err := c.Register(fsys, name); err != nil {
		return err
	}
	h := c.handle()
	for _, b := range c.Descriptor.Bootstrap {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := vfs.ReadSegment(h, b.Segment)
		if err != nil {
			return fmt.Errorf("boot %s: %w", b.Name, err)
		}
		c.log().Debug("executing bootstrap", "archive", name, "entry", b.Name, "size", len(data))
		if err := sink.Execute(ctx, data, b.Name); err != nil {
			return fmt.Errorf("boot %s: %w", b.Name, err)
		}
	}
	return nil
}

// Close releases the underlying file, if any. Files already opened through
// a vfs.FileSystem stay valid; new opens against a closed seekable
// container fail.
func (c *Container) Close() error {
	if c.closer == nil {
		return nil
	}
	err := c.closer.Close()
	c.closer = nil
	return err
}

func (c *Container) handle() *vfs.Handle {
	return &vfs.Handle{Source: c.source, Codec: c.codec, BaseOffset: c.base, Manifest: c.Manifest}
}
