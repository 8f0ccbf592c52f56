//go:build !pnp_nogzip

package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

type gzipCodec struct{}

func newGzip() Codec { return gzipCodec{} }

func (gzipCodec) Kind() Kind      { return KindGzip }
func (gzipCodec) Available() bool { return true }

// Compress writes a single gzip member. The header carries no name or
// modification time, so output depends only on the input bytes.
func (gzipCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gzipCodec) Decompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, decodeErr(KindGzip, err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, decodeErr(KindGzip, err)
	}
	return out, nil
}
