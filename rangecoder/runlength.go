package rangecoder

// Run-length prefix alphabet: values 0..directMax-1 carry the run length
// verbatim; directMax, directMax+1, directMax+2 mark "large" runs whose
// residual needs 1, 2 or 3 further 16-bit words respectively. The decoder always
// learns the exact residual width from the prefix symbol itself, so
// there is never any ambiguity about how many large-value words follow.
const (
	directMax      = 252
	largeWidth1    = directMax
	largeWidth2    = directMax + 1
	largeWidth3    = directMax + 2
	prefixAlphabet = directMax + 3
	wordAlphabet   = 1 << 16
)

// EncodeRunLength encodes (symbol, runLength): the symbol under
// KindSymbol|prevContext, then the length under the prefix scheme
// above. symbolAlphabetSize is the alphabet size for symbol itself.
func EncodeRunLength(c *Coders, enc *Encoder, prevContext uint64, symbol, symbolAlphabetSize, runLength uint32) {
	symCtx := Context{Kind: KindSymbol, Payload: prevContext}
	EncodeSymbol(c, enc, symCtx, symbol, symbolAlphabetSize)

	prefixCtx := Context{Kind: KindPrefix, Payload: prevContext}
	if runLength < directMax {
		EncodeSymbol(c, enc, prefixCtx, runLength, prefixAlphabet)
		return
	}

	residual := runLength - directMax
	width, words := splitResidual(residual)
	EncodeSymbol(c, enc, prefixCtx, uint32(largeWidth1+width-1), prefixAlphabet)

	bands := []Kind{KindLarge1, KindLarge2, KindLarge3}
	for i := 0; i < width; i++ {
		EncodeSymbol(c, enc, Context{Kind: bands[i]}, words[i], wordAlphabet)
	}
}

// DecodeRunLength is the symmetric decode.
func DecodeRunLength(c *Coders, dec *Decoder, prevContext uint64, symbolAlphabetSize uint32) (symbol, runLength uint32) {
	symCtx := Context{Kind: KindSymbol, Payload: prevContext}
	symbol = DecodeSymbol(c, dec, symCtx, symbolAlphabetSize)

	prefixCtx := Context{Kind: KindPrefix, Payload: prevContext}
	prefix := DecodeSymbol(c, dec, prefixCtx, prefixAlphabet)
	if prefix < directMax {
		return symbol, prefix
	}

	width := int(prefix-largeWidth1) + 1
	bands := []Kind{KindLarge1, KindLarge2, KindLarge3}
	var residual uint64
	for i := 0; i < width; i++ {
		word := DecodeSymbol(c, dec, Context{Kind: bands[i]}, wordAlphabet)
		residual |= uint64(word) << (16 * i)
	}
	return symbol, directMax + uint32(residual)
}

// splitResidual picks the smallest word width (1 or 2 16-bit words; a
// third band exists for the wire format but a uint32 residual never
// needs it) that represents residual exactly, per the "smallest
// encoding wins" tie-break rule.
func splitResidual(residual uint32) (width int, words [3]uint32) {
	if residual < 1<<16 {
		return 1, [3]uint32{residual, 0, 0}
	}
	return 2, [3]uint32{residual & 0xffff, residual >> 16, 0}
}
