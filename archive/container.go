package archive

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Marker is the line separating the loader text from the data section.
const Marker = "__PNP_DATA__"

// MaxPrefixSize bounds how many bytes ReadPrefix scans looking for Marker.
const MaxPrefixSize = 16 << 20

// ErrInvalidLoader is returned when loader text cannot be framed: it lacks a
// descriptor block, contains the marker line, or disagrees with the layout.
var ErrInvalidLoader = errors.New("pnp: invalid loader text")

// ContainerSpec describes an artifact to frame.
type ContainerSpec struct {
	// Shebang is written as the first line when non-empty.
	Shebang string

	// Loader is the loader text. It must embed exactly one descriptor block
	// (see EncodeDescriptor) whose layout matches Layout.
	Loader []byte

	// Layout selects how Data is embedded.
	Layout Layout

	// Data is the complete data section produced by a Writer.
	Data io.Reader
}

// WriteContainer frames spec into w and returns the number of bytes written.
//
// Seekable artifacts are laid out as
//
//	[shebang\n] loader Marker\n data
//
// and streamable artifacts as
//
//	[shebang\n] loader Marker\n base64(data)\n
func WriteContainer(w io.Writer, spec ContainerSpec) (int64, error) {
	if err := checkShebang(spec.Shebang, spec.Loader); err != nil {
		return 0, err
	}
	desc, err := DecodeDescriptor(spec.Loader)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidLoader, err)
	}
	if desc.Layout != spec.Layout {
		return 0, fmt.Errorf("%w: descriptor layout %s, container layout %s", ErrInvalidLoader, desc.Layout, spec.Layout)
	}
	if hasLine(spec.Loader, Marker) {
		return 0, fmt.Errorf("%w: contains marker line", ErrInvalidLoader)
	}

	cw := &countingWriter{W: w}
	if spec.Shebang != "" {
		if _, err := io.WriteString(cw, spec.Shebang+"\n"); err != nil {
			return int64(cw.N), err
		}
	}
	loader := spec.Loader
	if len(loader) > 0 && loader[len(loader)-1] != '\n' {
		loader = append(loader[:len(loader):len(loader)], '\n')
	}
	if _, err := cw.Write(loader); err != nil {
		return int64(cw.N), err
	}
	if _, err := io.WriteString(cw, Marker+"\n"); err != nil {
		return int64(cw.N), err
	}

	switch spec.Layout {
	case LayoutSeekable:
		if _, err := io.Copy(cw, spec.Data); err != nil {
			return int64(cw.N), fmt.Errorf("write data: %w", err)
		}
	case LayoutStreamable:
		enc := base64.NewEncoder(base64.StdEncoding, cw)
		if _, err := io.Copy(enc, spec.Data); err != nil {
			return int64(cw.N), fmt.Errorf("write data: %w", err)
		}
		if err := enc.Close(); err != nil {
			return int64(cw.N), fmt.Errorf("write data: %w", err)
		}
		if _, err := io.WriteString(cw, "\n"); err != nil {
			return int64(cw.N), err
		}
	default:
		return int64(cw.N), fmt.Errorf("%w: unknown layout %d", ErrInvalidLoader, spec.Layout)
	}
	return int64(cw.N), nil //nolint:gosec // bounded by bytes actually written
}

// Prefix is the parsed text preceding a container's data section.
type Prefix struct {
	// Shebang is the interpreter line including "#!", or empty.
	Shebang string

	// Loader is the loader text, excluding shebang and marker lines.
	Loader []byte

	// Descriptor is decoded from the loader text.
	Descriptor Descriptor

	// Length is the number of bytes up to and including the marker line.
	// In the seekable layout, segment offsets are relative to it.
	Length int64
}

// ReadPrefix consumes br up to and including the marker line. On return br
// is positioned at the first byte of the data section.
func ReadPrefix(br *bufio.Reader) (*Prefix, error) {
	var (
		p      Prefix
		loader bytes.Buffer
		first  = true
	)
	for {
		line, err := readLine(br, MaxPrefixSize-p.Length)
		p.Length += int64(len(line))
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: marker line not found", ErrInvalidContainer)
			}
			return nil, err
		}

		text := strings.TrimRight(string(line), "\r\n")
		switch {
		case first && strings.HasPrefix(text, "#!"):
			p.Shebang = text
		case text == Marker:
			p.Loader = loader.Bytes()
			desc, err := DecodeDescriptor(p.Loader)
			if err != nil {
				return nil, err
			}
			p.Descriptor = desc
			return &p, nil
		default:
			loader.Write(line)
		}
		first = false
	}
}

// ReadLiteral reads the base64 data line of a streamable container from br
// and returns the decoded data section.
func ReadLiteral(br *bufio.Reader) ([]byte, error) {
	line, err := br.ReadBytes('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	line = bytes.TrimRight(line, "\r\n")
	data := make([]byte, base64.StdEncoding.DecodedLen(len(line)))
	n, err := base64.StdEncoding.Decode(data, line)
	if err != nil {
		return nil, fmt.Errorf("%w: data literal: %v", ErrInvalidContainer, err)
	}
	return data[:n], nil
}

// readLine reads one '\n'-terminated line of at most budget bytes. A final
// line without terminator is returned with io.EOF.
func readLine(br *bufio.Reader, budget int64) ([]byte, error) {
	var line []byte
	for {
		chunk, err := br.ReadSlice('\n')
		line = append(line, chunk...)
		if int64(len(line)) > budget {
			return line, fmt.Errorf("%w: prefix exceeds %d bytes", ErrInvalidContainer, MaxPrefixSize)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			return line, err
		}
		return line, nil
	}
}

// checkShebang rejects framing that ReadPrefix would split differently:
// a shebang must be one "#!" line, and without one the loader must not start
// with "#!".
func checkShebang(shebang string, loader []byte) error {
	switch {
	case shebang == "":
		if bytes.HasPrefix(loader, []byte("#!")) {
			return fmt.Errorf("%w: loader starts with a shebang line", ErrInvalidLoader)
		}
	case strings.ContainsAny(shebang, "\r\n"):
		return fmt.Errorf("%w: shebang spans multiple lines", ErrInvalidLoader)
	case shebang == Marker:
		return fmt.Errorf("%w: shebang is the marker line", ErrInvalidLoader)
	case !strings.HasPrefix(shebang, "#!"):
		return fmt.Errorf("%w: shebang %q does not start with #!", ErrInvalidLoader, shebang)
	}
	return nil
}

func hasLine(text []byte, want string) bool {
	for _, line := range strings.Split(string(text), "\n") {
		if strings.TrimSuffix(line, "\r") == want {
			return true
		}
	}
	return false
}

// countingWriter wraps a writer and counts bytes written.
type countingWriter struct {
	W io.Writer
	N uint64
}

// Write implements io.Writer.
func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.W.Write(p)
	if n > 0 {
		cw.N += uint64(n) //nolint:gosec // n is non-negative by io.Writer contract
	}
	return n, err
}
