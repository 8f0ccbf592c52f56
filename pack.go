package pnp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/opencontainers/go-digest"

	"github.com/meigma/pnp/archive"
	"github.com/meigma/pnp/codec"
	"github.com/meigma/pnp/loader"
	"github.com/meigma/pnp/manifest"
)

// Result describes a packed container.
type Result struct {
	// Digest is the sha256 digest of the complete artifact.
	Digest digest.Digest

	// Size is the artifact length in bytes.
	Size int64

	// DataSize is the length of the data section before layout encoding.
	DataSize uint64

	// Descriptor is the descriptor embedded in the loader text.
	Descriptor archive.Descriptor

	// Manifest maps logical paths to segments of the data section.
	Manifest *manifest.Manifest

	// Entries lists every segment written, including the manifest, in
	// write order.
	Entries []archive.Entry
}

// Pack builds a container from the configured sources and writes it to w.
//
// The codec is guarded first, and the data section is assembled in memory,
// so a failure before framing (an unavailable codec, a missing source,
// cancellation, a loader error) leaves w untouched. Errors from w itself
// can leave a partial artifact; PackFile discards those.
func Pack(ctx context.Context, w io.Writer, opts ...PackOption) (*Result, error) {
	cfg := newPackConfig(opts)
	if err := codec.Guard(cfg.codec); err != nil {
		return nil, err
	}
	if cfg.generator == nil {
		return nil, errors.New("pnp: nil loader generator")
	}

	sources, bootstraps, err := cfg.collect(ctx)
	if err != nil {
		return nil, err
	}

	var data bytes.Buffer
	b, err := newBuilder(cfg, &data)
	if err != nil {
		return nil, err
	}
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := b.addSource(manifest.CleanPath(src.Name), src.Path); err != nil {
			return nil, err
		}
	}
	boot := make([]archive.BootEntry, 0, len(bootstraps))
	for _, path := range bootstraps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, err := b.addBootstrap(path)
		if err != nil {
			return nil, err
		}
		boot = append(boot, entry)
	}

	mseg, err := b.w.FinalizeManifest(b.m)
	if err != nil {
		return nil, err
	}
	desc := archive.Descriptor{
		Version:   archive.DescriptorVersion,
		Codec:     cfg.codec.Kind(),
		Layout:    cfg.layout,
		Manifest:  mseg,
		Bootstrap: boot,
	}
	text, err := cfg.generator.Generate(loader.Spec{
		Descriptor: desc,
		Shebang:    cfg.shebang,
		Vars:       cfg.vars,
	})
	if err != nil {
		return nil, fmt.Errorf("generate loader: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dataSize := b.w.Offset()
	digester := digest.Canonical.Digester()
	n, err := archive.WriteContainer(io.MultiWriter(w, digester.Hash()), archive.ContainerSpec{
		Shebang: cfg.shebang,
		Loader:  text,
		Layout:  cfg.layout,
		Data:    &data,
	})
	if err != nil {
		return nil, fmt.Errorf("write container: %w", err)
	}

	res := &Result{
		Digest:     digester.Digest(),
		Size:       n,
		DataSize:   dataSize,
		Descriptor: desc,
		Manifest:   b.m,
		Entries:    b.w.Entries(),
	}
	cfg.log().Info("container packed",
		"entries", b.m.Len(),
		"bootstraps", len(boot),
		"codec", desc.Codec,
		"layout", desc.Layout,
		"size", n,
		"digest", res.Digest)
	return res, nil
}

// PackFile packs a container into the file at path. The file is written
// atomically with mode 0755; on any error the previous file, if any, is
// left in place.
func PackFile(ctx context.Context, path string, opts ...PackOption) (*Result, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o755))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	defer pending.Cleanup() //nolint:errcheck // no-op after CloseAtomicallyReplace

	res, err := Pack(ctx, pending, opts...)
	if err != nil {
		return nil, err
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return nil, fmt.Errorf("replace %s: %w", path, err)
	}
	return res, nil
}

// collect merges discovered and configured sources and bootstraps,
// discovery first.
func (cfg *packConfig) collect(ctx context.Context) ([]Source, []string, error) {
	var (
		sources    []Source
		bootstraps []string
	)
	if cfg.discovery != nil {
		s, err := cfg.discovery.Sources(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("discover sources: %w", err)
		}
		b, err := cfg.discovery.Bootstraps(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("discover bootstraps: %w", err)
		}
		sources = append(sources, s...)
		bootstraps = append(bootstraps, b...)
	}
	sources = append(sources, cfg.sources...)
	bootstraps = append(bootstraps, cfg.bootstraps...)
	return sources, bootstraps, nil
}

// builder writes entries and records them in the manifest. Each file is
// written once per minification mode; later names for the same file share
// its segment.
type builder struct {
	cfg     *packConfig
	w       *archive.Writer
	m       *manifest.Manifest
	written map[fileKey]manifest.Segment
	names   map[string]string
}

type fileKey struct {
	path   string
	minify bool
}

func newBuilder(cfg *packConfig, data io.Writer) (*builder, error) {
	w, err := archive.NewWriter(data, cfg.codec, archive.WithLogger(cfg.logger))
	if err != nil {
		return nil, err
	}
	return &builder{
		cfg:     cfg,
		w:       w,
		m:       manifest.New(),
		written: make(map[fileKey]manifest.Segment),
		names:   make(map[string]string),
	}, nil
}

func (b *builder) addSource(name, path string) error {
	if name == "/" {
		return fmt.Errorf("pack %s: empty entry name", path)
	}
	seg, err := b.write(name, path)
	if err != nil {
		return err
	}
	if _, dup := b.m.Lookup(name); dup {
		b.cfg.log().Warn("duplicate entry name, last wins", "name", name, "path", path)
	}
	if err := b.m.Set(name, seg); err != nil {
		return err
	}
	if _, ok := b.names[filepath.Clean(path)]; !ok {
		b.names[filepath.Clean(path)] = name
	}
	return nil
}

// addBootstrap resolves path to an entry, packing it if no source covers
// the same file. A source name later reassigned to another file no longer
// covers it.
func (b *builder) addBootstrap(path string) (archive.BootEntry, error) {
	clean := filepath.Clean(path)
	if name, ok := b.names[clean]; ok {
		seg, _ := b.m.Lookup(name)
		if own, ok := b.written[fileKey{path: clean, minify: b.isSource(name)}]; ok && own == seg {
			return archive.BootEntry{Name: name, Segment: seg}, nil
		}
		b.cfg.log().Debug("bootstrap name reassigned, packing separately", "name", name, "path", path)
	}

	name := manifest.CleanPath(filepath.ToSlash(path))
	if err := b.addSource(name, path); err != nil {
		return archive.BootEntry{}, err
	}
	seg, _ := b.m.Lookup(name)
	return archive.BootEntry{Name: name, Segment: seg}, nil
}

func (b *builder) write(name, path string) (manifest.Segment, error) {
	key := fileKey{path: filepath.Clean(path), minify: b.isSource(name)}
	if seg, ok := b.written[key]; ok {
		return seg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return manifest.Segment{}, &fs.PathError{Op: "pack", Path: path, Err: ErrMissingSource}
		}
		return manifest.Segment{}, fmt.Errorf("read %s: %w", path, err)
	}
	if key.minify {
		content = []byte(b.cfg.minifier(string(content)))
	}
	seg, err := b.w.WriteEntry(name, content)
	if err != nil {
		return manifest.Segment{}, err
	}
	b.written[key] = seg
	return seg, nil
}

func (b *builder) isSource(name string) bool {
	if b.cfg.minifier == nil {
		return false
	}
	for _, ext := range b.cfg.sourceExts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
