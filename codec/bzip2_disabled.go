//go:build pnp_nobzip2

package codec

func newBzip2() Codec { return Disabled(KindBzip2) }
