// Package rangecoder implements the adaptive arithmetic coder keyed by a
// 64-bit tagged context, used for the genotype run-length path. The
// context map and adaptive models live in an explicit *Coders value
// threaded through every call; there is no ambient singleton (see the
// "Global shared state" design note).
package rangecoder

// Kind discriminates the six context cases. Contexts are modeled as a
// tagged struct rather than a raw bitmask; Context.pack/unpack convert
// to the 64-bit wire form only at the coder boundary.
type Kind uint8

const (
	KindSymbol Kind = iota
	KindPrefix
	KindSuffix
	KindLarge1
	KindLarge2
	KindLarge3
)

const (
	symbolMask = 0xffff
	prefixMask = 0xfffff
	flagShift  = 60
)

// Context is the coder's key: a discriminator plus a small payload
// (typically the previous symbol's context, masked to the bits reserved
// for that case).
type Context struct {
	Kind    Kind
	Payload uint64
}

func (c Context) mask() uint64 {
	switch c.Kind {
	case KindSymbol:
		return symbolMask
	case KindPrefix:
		return prefixMask
	default:
		return 0xffffffffffffffff >> (64 - flagShift)
	}
}

// pack converts a Context to its 64-bit wire representation: a 4-bit
// flag in the top nibble (1=symbol .. 6=large3) plus the masked payload.
func (c Context) pack() uint64 {
	flag := uint64(c.Kind) + 1
	return flag<<flagShift | (c.Payload & c.mask())
}

// Unpack reconstructs a Context from its 64-bit wire representation.
func Unpack(x uint64) Context {
	flag := x >> flagShift
	c := Context{Kind: Kind(flag - 1)}
	c.Payload = x & c.mask()
	return c
}
