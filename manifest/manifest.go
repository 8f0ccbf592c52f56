//go:generate flatc --go --go-namespace fb -o internal schema/manifest.fbs

// Package manifest maps logical paths to segments of a container's
// compressed data stream and defines the manifest's canonical encoding.
//
// The encoding is a FlatBuffers table (schema/manifest.fbs) that preserves
// insertion order, so decoding and re-encoding a manifest yields the same
// bytes.
package manifest

import (
	"errors"
	"fmt"
	"iter"

	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/meigma/pnp/internal/pathutil"
	"github.com/meigma/pnp/internal/sizing"
	"github.com/meigma/pnp/manifest/internal/fb"
)

// Version is the manifest encoding version written by Encode.
const Version = 1

// ErrInvalid is returned when a manifest fails to decode or violates its
// invariants.
var ErrInvalid = errors.New("pnp: invalid manifest")

// Segment is a byte range within a compressed data stream.
type Segment struct {
	Offset uint64 `yaml:"offset"`
	Length uint64 `yaml:"length"`
}

// End returns the offset of the first byte after the segment and false if
// that offset overflows.
func (s Segment) End() (uint64, bool) {
	return sizing.AddUint64(s.Offset, s.Length)
}

func (s Segment) String() string {
	return fmt.Sprintf("[%d,%d]", s.Offset, s.Length)
}

// Manifest is an insertion-ordered mapping from canonical path to Segment.
//
// The zero value is not usable; create manifests with New or Decode.
type Manifest struct {
	paths    []string
	segments map[string]Segment
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{segments: make(map[string]Segment)}
}

// Set records seg under path. Paths must be canonical (see CleanPath).
// Setting an existing path replaces its segment and keeps its position.
func (m *Manifest) Set(path string, seg Segment) error {
	if !pathutil.IsClean(path) {
		return fmt.Errorf("%w: path %q is not canonical", ErrInvalid, path)
	}
	if _, ok := m.segments[path]; !ok {
		m.paths = append(m.paths, path)
	}
	m.segments[path] = seg
	return nil
}

// Lookup returns the segment recorded for path.
func (m *Manifest) Lookup(path string) (Segment, bool) {
	seg, ok := m.segments[path]
	return seg, ok
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	return len(m.paths)
}

// Paths returns the recorded paths in insertion order.
func (m *Manifest) Paths() []string {
	return append([]string(nil), m.paths...)
}

// All returns an iterator over entries in insertion order.
func (m *Manifest) All() iter.Seq2[string, Segment] {
	return func(yield func(string, Segment) bool) {
		for _, p := range m.paths {
			if !yield(p, m.segments[p]) {
				return
			}
		}
	}
}

// Validate checks that every segment lies within a data stream of dataSize
// bytes.
func (m *Manifest) Validate(dataSize uint64) error {
	for p, seg := range m.All() {
		end, ok := seg.End()
		if !ok || end > dataSize {
			return fmt.Errorf("%w: segment %s of %q exceeds data size %d", ErrInvalid, seg, p, dataSize)
		}
	}
	return nil
}

// CleanPath converts a logical name to the canonical key form used by
// manifests: absolute, slash-separated, without "." or ".." segments.
func CleanPath(name string) string {
	return pathutil.Clean(name)
}

// Encode serializes m to its canonical FlatBuffers form.
func Encode(m *Manifest) []byte {
	builder := flatbuffers.NewBuilder(256 + 64*len(m.paths))

	// Build entries in reverse order (FlatBuffers requirement)
	offsets := make([]flatbuffers.UOffsetT, len(m.paths))
	for i := len(m.paths) - 1; i >= 0; i-- {
		p := m.paths[i]
		seg := m.segments[p]
		pathOffset := builder.CreateString(p)

		fb.EntryStart(builder)
		fb.EntryAddPath(builder, pathOffset)
		fb.EntryAddOffset(builder, seg.Offset)
		fb.EntryAddLength(builder, seg.Length)
		offsets[i] = fb.EntryEnd(builder)
	}

	fb.ManifestStartEntriesVector(builder, len(offsets))
	for i := len(offsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(offsets[i])
	}
	entries := builder.EndVector(len(offsets))

	fb.ManifestStart(builder)
	fb.ManifestAddVersion(builder, Version)
	fb.ManifestAddEntries(builder, entries)
	builder.Finish(fb.ManifestEnd(builder))
	return builder.FinishedBytes()
}

// Decode parses a manifest produced by Encode. Malformed input fails with
// ErrInvalid; duplicate or non-canonical paths are rejected.
func Decode(data []byte) (m *Manifest, err error) {
	if len(data) < flatbuffers.SizeUOffsetT {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalid, len(data))
	}
	// FlatBuffers accessors index the buffer without bounds validation.
	defer func() {
		if r := recover(); r != nil {
			m = nil
			err = fmt.Errorf("%w: %v", ErrInvalid, r)
		}
	}()

	root := fb.GetRootAsManifest(data, 0)
	if v := root.Version(); v != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalid, v)
	}

	n := root.EntriesLength()
	if n < 0 || n > len(data)/flatbuffers.SizeUOffsetT {
		return nil, fmt.Errorf("%w: entry count %d", ErrInvalid, n)
	}

	m = New()
	var entry fb.Entry
	for i := range n {
		if !root.Entries(&entry, i) {
			return nil, fmt.Errorf("%w: missing entry %d", ErrInvalid, i)
		}
		p := string(entry.Path())
		if _, dup := m.segments[p]; dup {
			return nil, fmt.Errorf("%w: duplicate path %q", ErrInvalid, p)
		}
		if err := m.Set(p, Segment{Offset: entry.Offset(), Length: entry.Length()}); err != nil {
			return nil, err
		}
	}
	return m, nil
}
