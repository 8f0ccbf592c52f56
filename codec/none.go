package codec

type noneCodec struct{}

func (noneCodec) Kind() Kind      { return KindNone }
func (noneCodec) Available() bool { return true }

func (noneCodec) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (noneCodec) Decompress(data []byte) ([]byte, error) {
	return data, nil
}
