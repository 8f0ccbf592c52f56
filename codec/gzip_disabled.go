//go:build pnp_nogzip

package codec

func newGzip() Codec { return Disabled(KindGzip) }
