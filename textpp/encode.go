package textpp

import "github.com/genomepack/vcfile/core"

// Encode serializes the learned token table so the decompressor can
// rebuild an identical Dictionary. An untrained dictionary encodes as
// an empty table.
func (d *Dictionary) Encode() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var buf []byte
	buf = core.AppendUvarint(buf, uint64(len(d.tokens)))
	for _, tok := range d.tokens {
		buf = core.AppendString(buf, tok)
	}
	return buf
}

// DecodeDictionary parses a blob produced by Encode into a trained,
// read-only Dictionary.
func DecodeDictionary(blob []byte) (*Dictionary, error) {
	pos := 0
	count, pos, err := core.ReadUvarint(blob, pos)
	if err != nil {
		return nil, core.FormatErrorf("textpp: truncated token count: %v", err)
	}

	d := NewDictionary()
	d.trained = true
	d.tokens = make([]string, count)
	for i := uint64(0); i < count; i++ {
		var tok string
		tok, pos, err = core.ReadString(blob, pos)
		if err != nil {
			return nil, core.FormatErrorf("textpp: truncated token %d: %v", i, err)
		}
		d.tokens[i] = tok
		d.byToken[tok] = uint32(i)
		if len(tok) > d.maxTokenLen {
			d.maxTokenLen = len(tok)
		}
	}
	if pos != len(blob) {
		return nil, core.FormatErrorf("textpp: %d trailing bytes after token table", len(blob)-pos)
	}
	return d, nil
}

// Trained reports whether the one-shot learning phase has run.
func (d *Dictionary) Trained() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.trained
}
