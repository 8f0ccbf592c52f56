package pnp

import (
	"errors"

	"github.com/meigma/pnp/archive"
	"github.com/meigma/pnp/codec"
	"github.com/meigma/pnp/manifest"
	"github.com/meigma/pnp/vfs"
)

// ErrMissingSource is returned when a file to be packed does not exist.
var ErrMissingSource = errors.New("pnp: missing source")

// Errors re-exported from codec.
var (
	// ErrCodecUnavailable is returned when the selected codec is compiled out
	// of this build. It is reported before any container byte is written.
	ErrCodecUnavailable = codec.ErrUnavailable

	// ErrDecode is returned when an entry fails to decompress.
	ErrDecode = codec.ErrDecode

	// ErrUnknownCodec is returned for an unrecognized codec name.
	ErrUnknownCodec = codec.ErrUnknown
)

// Errors re-exported from manifest, archive and vfs.
var (
	// ErrInvalidManifest is returned when a container's manifest fails to
	// decode or points outside the data section.
	ErrInvalidManifest = manifest.ErrInvalid

	// ErrInvalidContainer is returned when an artifact's framing cannot be
	// parsed.
	ErrInvalidContainer = archive.ErrInvalidContainer

	// ErrSizeOverflow is returned when a size or offset overflows.
	ErrSizeOverflow = archive.ErrSizeOverflow

	// ErrNotFound is returned when a virtual path does not resolve. It
	// matches fs.ErrNotExist.
	ErrNotFound = vfs.ErrNotFound
)
