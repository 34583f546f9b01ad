package rangecoder

import "sync"

// DefaultMaxCounterLog bounds the adaptive models' running total before
// a halving pass. Encoder and decoder must use the same value or their
// models diverge.
const DefaultMaxCounterLog = 16

// Coders is the shared, explicit context-to-model map. It is passed by
// both the encoder and the decoder; as long as both sides issue the
// same sequence of EncodeSymbol/DecodeSymbol calls, their Coders values
// evolve identically.
type Coders struct {
	mu            sync.Mutex
	models        map[uint64]*model
	maxCounterLog uint32
}

func NewCoders() *Coders {
	return NewCodersWithLog(DefaultMaxCounterLog)
}

func NewCodersWithLog(maxCounterLog uint32) *Coders {
	return &Coders{models: make(map[uint64]*model), maxCounterLog: maxCounterLog}
}

func (c *Coders) findLocked(ctx Context, alphabetSize uint32) *model {
	key := ctx.pack()
	m, ok := c.models[key]
	if !ok {
		m = newModel(alphabetSize, c.maxCounterLog)
		c.models[key] = m
	}
	return m
}

// EncodeSymbol encodes symbol under ctx's adaptive model, creating the
// model on first use.
func EncodeSymbol(c *Coders, enc *Encoder, ctx Context, symbol, alphabetSize uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.findLocked(ctx, alphabetSize)
	cum, freq, tot := m.cumFreqOf(symbol)
	enc.Encode(cum, freq, tot)
	m.update(symbol)
}

// DecodeSymbol is the symmetric decode.
func DecodeSymbol(c *Coders, dec *Decoder, ctx Context, alphabetSize uint32) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.findLocked(ctx, alphabetSize)
	cumValue := dec.GetFreq(m.total)
	symbol, cum, freq := m.symbolAt(cumValue)
	dec.Decode(cum, freq, m.total)
	m.update(symbol)
	return symbol
}
