package archive

import (
	"fmt"
	"strings"
)

// Layout selects how the data section is embedded in the artifact.
type Layout uint8

const (
	// LayoutSeekable appends the raw data section after the loader text.
	// Readers seek to prefix length plus segment offset.
	LayoutSeekable Layout = iota

	// LayoutStreamable embeds the data section as a single base64 line so
	// the artifact can be consumed from a non-seekable pipe.
	LayoutStreamable
)

func (l Layout) String() string {
	switch l {
	case LayoutSeekable:
		return "seekable"
	case LayoutStreamable:
		return "streamable"
	default:
		return "unknown"
	}
}

// ParseLayout converts a layout name to its Layout.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "seekable", "":
		return LayoutSeekable, nil
	case "streamable":
		return LayoutStreamable, nil
	default:
		return 0, fmt.Errorf("%w: unknown layout %q", ErrInvalidContainer, s)
	}
}
