//go:build !pnp_nobzip2

package codec

import (
	"bytes"
	"io"

	"github.com/dsnet/compress/bzip2"
)

type bzip2Codec struct{}

func newBzip2() Codec { return bzip2Codec{} }

func (bzip2Codec) Kind() Kind      { return KindBzip2 }
func (bzip2Codec) Available() bool { return true }

func (bzip2Codec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.BestCompression})
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

func (bzip2Codec) Decompress(data []byte) ([]byte, error) {
	zr, err := bzip2.NewReader(bytes.NewReader(data), nil)
	if err != nil {
		return nil, decodeErr(KindBzip2, err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, decodeErr(KindBzip2, err)
	}
	return out, nil
}
