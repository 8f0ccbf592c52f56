package codec

import "encoding/base64"

// base64Codec is not a compression, but it keeps arbitrary bytes printable.
type base64Codec struct{}

func (base64Codec) Kind() Kind      { return KindBase64 }
func (base64Codec) Available() bool { return true }

func (base64Codec) Compress(data []byte) ([]byte, error) {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(data)))
	base64.StdEncoding.Encode(out, data)
	return out, nil
}

func (base64Codec) Decompress(data []byte) ([]byte, error) {
	out := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
	n, err := base64.StdEncoding.Decode(out, data)
	if err != nil {
		return nil, decodeErr(KindBase64, err)
	}
	return out[:n], nil
}
