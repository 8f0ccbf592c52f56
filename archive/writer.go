// Package archive writes and frames pnp containers.
//
// A container is a data section of independently compressed entries followed
// by the compressed manifest that locates them. [Writer] produces the data
// section; [WriteContainer] frames it with an optional shebang line and the
// loader text in one of two layouts, and [ReadPrefix] parses that framing
// back.
package archive

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/meigma/pnp/codec"
	"github.com/meigma/pnp/internal/sizing"
	"github.com/meigma/pnp/manifest"
)

// Sentinel errors for archive operations.
var (
	// ErrFinalized is returned when writing to a Writer whose manifest has
	// already been written.
	ErrFinalized = errors.New("pnp: archive finalized")

	// ErrSizeOverflow is returned when the write cursor would overflow.
	ErrSizeOverflow = errors.New("pnp: size overflow")
)

// Entry records one WriteEntry call.
type Entry struct {
	// Name is the logical name passed to WriteEntry.
	Name string

	// Segment locates the compressed bytes in the data stream.
	Segment manifest.Segment

	// Size is the uncompressed length.
	Size uint64
}

// Writer appends compressed entries to a data stream.
//
// Writer never rewinds: segments are returned in strictly increasing,
// non-overlapping order. A Writer is not safe for concurrent use. After any
// write error the Writer stays failed and the output must be discarded.
type Writer struct {
	w         io.Writer
	codec     codec.Codec
	cursor    uint64
	entries   []Entry
	finalized bool
	err       error
	logger    *slog.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithLogger sets the logger for per-entry debug output.
func WithLogger(logger *slog.Logger) WriterOption {
	return func(w *Writer) {
		w.logger = logger
	}
}

// NewWriter returns a Writer that compresses entries with c and appends
// them to w. It fails with codec.ErrUnavailable before touching w if c cannot
// run in this build.
func NewWriter(w io.Writer, c codec.Codec, opts ...WriterOption) (*Writer, error) {
	if err := codec.Guard(c); err != nil {
		return nil, err
	}
	aw := &Writer{w: w, codec: c}
	for _, opt := range opts {
		opt(aw)
	}
	return aw, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (w *Writer) log() *slog.Logger {
	if w.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return w.logger
}

// Codec returns the codec applied to every entry.
func (w *Writer) Codec() codec.Codec {
	return w.codec
}

// Offset returns the current write cursor.
func (w *Writer) Offset() uint64 {
	return w.cursor
}

// Entries returns the entries written so far in call order.
func (w *Writer) Entries() []Entry {
	return append([]Entry(nil), w.entries...)
}

// WriteEntry compresses data, appends it at the cursor and returns its
// segment. Calling WriteEntry twice with the same name appends twice.
func (w *Writer) WriteEntry(name string, data []byte) (manifest.Segment, error) {
	if w.finalized {
		return manifest.Segment{}, ErrFinalized
	}
	return w.write(name, data)
}

// FinalizeManifest encodes m and writes it as one more compressed entry,
// returning that entry's segment. No further entries can be written.
func (w *Writer) FinalizeManifest(m *manifest.Manifest) (manifest.Segment, error) {
	if w.finalized {
		return manifest.Segment{}, ErrFinalized
	}
	seg, err := w.write("manifest", manifest.Encode(m))
	if err != nil {
		return manifest.Segment{}, err
	}
	w.finalized = true
	w.log().Debug("manifest written", "entries", m.Len(), "offset", seg.Offset, "length", seg.Length)
	return seg, nil
}

func (w *Writer) write(name string, data []byte) (manifest.Segment, error) {
	if w.err != nil {
		return manifest.Segment{}, w.err
	}

	compressed, err := w.codec.Compress(data)
	if err != nil {
		w.err = fmt.Errorf("compress %s: %w", name, err)
		return manifest.Segment{}, w.err
	}

	length := uint64(len(compressed))
	end, ok := sizing.AddUint64(w.cursor, length)
	if !ok {
		w.err = ErrSizeOverflow
		return manifest.Segment{}, w.err
	}

	n, err := w.w.Write(compressed)
	if err == nil && n != len(compressed) {
		err = io.ErrShortWrite
	}
	if err != nil {
		w.err = fmt.Errorf("write %s: %w", name, err)
		return manifest.Segment{}, w.err
	}

	seg := manifest.Segment{Offset: w.cursor, Length: length}
	w.cursor = end
	w.entries = append(w.entries, Entry{Name: name, Segment: seg, Size: uint64(len(data))})
	w.log().Debug("entry written", "name", name, "offset", seg.Offset, "length", seg.Length, "size", len(data))
	return seg, nil
}
