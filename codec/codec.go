// Package codec implements the compression strategies applied to every
// container entry.
//
// The set of codecs is closed: [KindNone], [KindBase64], [KindGzip] and
// [KindBzip2]. Gzip and Bzip2 depend on compression libraries that can be
// compiled out with the pnp_nogzip and pnp_nobzip2 build tags; a binary built
// that way reports the codec as unavailable and [Guard] rejects it before any
// container byte is produced or consumed.
package codec

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for codec operations.
var (
	// ErrUnavailable is returned when a codec's compression library is not
	// present in this build.
	ErrUnavailable = errors.New("pnp: codec unavailable")

	// ErrDecode is returned when compressed data fails to decompress.
	ErrDecode = errors.New("pnp: decode failed")

	// ErrUnknown is returned for a codec kind outside the supported set.
	ErrUnknown = errors.New("pnp: unknown codec")
)

// Kind identifies a codec variant.
type Kind uint8

const (
	KindNone Kind = iota
	KindBase64
	KindGzip
	KindBzip2
)

// Kinds returns every supported codec kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindNone, KindBase64, KindGzip, KindBzip2}
}

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBase64:
		return "base64"
	case KindGzip:
		return "gzip"
	case KindBzip2:
		return "bzip2"
	default:
		return "unknown"
	}
}

// ParseKind converts a codec name to its Kind. Matching is case-insensitive
// and "bzip" is accepted as an alias for "bzip2".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return KindNone, nil
	case "base64":
		return KindBase64, nil
	case "gzip":
		return KindGzip, nil
	case "bzip2", "bzip":
		return KindBzip2, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknown, s)
	}
}

// Codec compresses and decompresses whole entries.
//
// Implementations hold no mutable state; Compress and Decompress are pure
// functions satisfying Decompress(Compress(x)) == x for every x, including
// the empty slice.
type Codec interface {
	// Kind identifies the variant.
	Kind() Kind

	// Available reports whether the codec can run in this build.
	Available() bool

	// Compress encodes data.
	Compress(data []byte) ([]byte, error)

	// Decompress decodes data produced by Compress. Malformed input fails
	// with ErrDecode.
	Decompress(data []byte) ([]byte, error)
}

// New returns the codec for k. The codec is returned even when it is
// unavailable so callers can report it; use Guard before relying on it.
func New(k Kind) (Codec, error) {
	switch k {
	case KindNone:
		return noneCodec{}, nil
	case KindBase64:
		return base64Codec{}, nil
	case KindGzip:
		return newGzip(), nil
	case KindBzip2:
		return newBzip2(), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknown, k)
	}
}

// MustNew is like New but panics on an unknown kind.
func MustNew(k Kind) Codec {
	c, err := New(k)
	if err != nil {
		panic(err)
	}
	return c
}

// Guard fails with ErrUnavailable if c cannot run in this build.
func Guard(c Codec) error {
	if c == nil {
		return fmt.Errorf("%w: nil codec", ErrUnknown)
	}
	if !c.Available() {
		return fmt.Errorf("%w: %s", ErrUnavailable, c.Kind())
	}
	return nil
}

// Disabled returns a stand-in for a codec whose library is missing. It
// reports itself unavailable and fails every operation with ErrUnavailable.
func Disabled(k Kind) Codec {
	return disabledCodec{kind: k}
}

type disabledCodec struct {
	kind Kind
}

func (d disabledCodec) Kind() Kind      { return d.kind }
func (d disabledCodec) Available() bool { return false }

func (d disabledCodec) Compress([]byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", ErrUnavailable, d.kind)
}

func (d disabledCodec) Decompress([]byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", ErrUnavailable, d.kind)
}

// decodeErr wraps a library failure as ErrDecode.
func decodeErr(k Kind, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrDecode, k, err)
}
