// Package textpp is the text preprocessor: a per-archive dictionary of
// frequent tokens plus back-references, applied to string-valued data
// substreams before they reach the entropy coder adapter. Dictionary
// learning across concurrently staged text packages is serialized by a
// single mutex, mirroring the "text section" critical section the queue
// package exposes to the worker pool.
package textpp

import (
	"encoding/binary"
	"sync"

	"github.com/genomepack/vcfile/core"
)

// maxBlockSize is the cap enforced by PPCompressFlag: one bit of the
// enclosing package's size word marks preprocessing, leaving 30 bits (1
// GiB) for the size itself.
const maxBlockSize = int(core.PPCompressFlag) - 1

// Dictionary is a per-archive token table built once from the first text
// package that trains it, then reused (read-only) by every subsequent
// Preprocess/Postprocess call. It is safe for concurrent read access
// once Learn has completed; Learn itself must run under the caller's
// text-section lock.
type Dictionary struct {
	mu          sync.RWMutex
	tokens      []string
	byToken     map[string]uint32
	maxTokenLen int
	trained     bool
}

func NewDictionary() *Dictionary {
	return &Dictionary{byToken: make(map[string]uint32)}
}

// Learn scans values and records the most frequent whitespace/punctuation
// delimited tokens. It is idempotent: a Dictionary trains exactly once
// per archive; later calls are no-ops.
func (d *Dictionary) Learn(values [][]byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.trained {
		return
	}
	d.trained = true

	freq := make(map[string]int)
	for _, v := range values {
		for _, tok := range splitTokens(v) {
			if len(tok) >= 3 {
				freq[tok]++
			}
		}
	}

	type kv struct {
		tok   string
		count int
	}
	ranked := make([]kv, 0, len(freq))
	for tok, count := range freq {
		if count > 1 {
			ranked = append(ranked, kv{tok, count})
		}
	}
	// Simple selection: stable order by descending count, then token, so
	// dictionary IDs are deterministic given identical input regardless
	// of map iteration order.
	for i := 0; i < len(ranked); i++ {
		best := i
		for j := i + 1; j < len(ranked); j++ {
			if ranked[j].count > ranked[best].count ||
				(ranked[j].count == ranked[best].count && ranked[j].tok < ranked[best].tok) {
				best = j
			}
		}
		ranked[i], ranked[best] = ranked[best], ranked[i]
	}
	if len(ranked) > 65535 {
		ranked = ranked[:65535]
	}

	d.tokens = make([]string, len(ranked))
	for i, e := range ranked {
		d.tokens[i] = e.tok
		d.byToken[e.tok] = uint32(i)
		if len(e.tok) > d.maxTokenLen {
			d.maxTokenLen = len(e.tok)
		}
	}
}

func splitTokens(v []byte) []string {
	var tokens []string
	start := -1
	isSep := func(b byte) bool {
		return b == ',' || b == ';' || b == '|' || b == ' ' || b == '\t' || b == '='
	}
	for i, b := range v {
		if isSep(b) {
			if start >= 0 {
				tokens = append(tokens, string(v[start:i]))
				start = -1
			}
		} else if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, string(v[start:]))
	}
	return tokens
}

// escByte and refByte are the two control bytes used by the trivial
// back-reference scheme: an escByte followed by a literal escByte is a
// literal, an escByte followed by refByte and a uvarint token id is a
// dictionary reference.
const (
	escByte = 0xFE
	refByte = 0xFF
)

// Preprocess replaces dictionary tokens in x with compact back-references.
// It returns core.ErrCodec if the encoded result would exceed the 1 GiB
// preprocessed-block cap (PPCompressFlag reserves one size bit).
func (d *Dictionary) Preprocess(x []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]byte, 0, len(x))
	var buf [binary.MaxVarintLen32]byte

	i := 0
	for i < len(x) {
		tok, tokLen := longestTokenAt(x, i, d.byToken, d.maxTokenLen)
		if tokLen > 0 {
			id := d.byToken[tok]
			out = append(out, escByte, refByte)
			n := binary.PutUvarint(buf[:], uint64(id))
			out = append(out, buf[:n]...)
			i += tokLen
			continue
		}
		b := x[i]
		if b == escByte {
			out = append(out, escByte, escByte)
		} else {
			out = append(out, b)
		}
		i++
	}

	if len(out) > maxBlockSize {
		return nil, core.CodecErrorf(nil, "preprocessed block of %d bytes exceeds %d byte cap", len(out), maxBlockSize)
	}
	return out, nil
}

// longestTokenAt greedily matches the longest dictionary token starting
// at x[i], if any. maxTokenLen bounds the candidate lengths tried, so
// an empty or small dictionary costs almost nothing per byte.
func longestTokenAt(x []byte, i int, byToken map[string]uint32, maxTokenLen int) (string, int) {
	limit := len(x) - i
	if limit > maxTokenLen {
		limit = maxTokenLen
	}
	for l := limit; l >= 3; l-- {
		cand := string(x[i : i+l])
		if _, ok := byToken[cand]; ok {
			return cand, l
		}
	}
	return "", 0
}

// Postprocess reverses Preprocess. Postprocess(Preprocess(x)) == x for
// every x accepted by Preprocess.
func (d *Dictionary) Postprocess(x []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]byte, 0, len(x))
	i := 0
	for i < len(x) {
		b := x[i]
		if b == escByte {
			if i+1 >= len(x) {
				return nil, core.CodecErrorf(nil, "truncated escape sequence at byte %d", i)
			}
			switch x[i+1] {
			case escByte:
				out = append(out, escByte)
				i += 2
			case refByte:
				id, n := binary.Uvarint(x[i+2:])
				if n <= 0 {
					return nil, core.CodecErrorf(nil, "malformed back-reference at byte %d", i)
				}
				if int(id) >= len(d.tokens) {
					return nil, core.CodecErrorf(nil, "back-reference id %d out of range", id)
				}
				out = append(out, d.tokens[id]...)
				i += 2 + n
			default:
				return nil, core.CodecErrorf(nil, "unknown escape byte 0x%02x at byte %d", x[i+1], i)
			}
			continue
		}
		out = append(out, b)
		i++
	}
	return out, nil
}
