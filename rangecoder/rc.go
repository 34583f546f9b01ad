package rangecoder

// Encoder/Decoder implement a carry-less byte-oriented range coder (the
// Subbotin construction): low/range shrink to the sub-interval assigned
// to a symbol's cumulative frequency, renormalizing by emitting/reading
// one byte whenever the top byte of low and low+range agree, or the
// range has shrunk below botValue.

const (
	topValue = uint32(1) << 24
	botValue = uint32(1) << 16
)

type Encoder struct {
	low uint32
	rng uint32
	out []byte
}

func NewEncoder() *Encoder {
	return &Encoder{rng: 0xFFFFFFFF}
}

// Encode narrows the current interval to the sub-range
// [cumFreq, cumFreq+freq) out of totFreq.
func (e *Encoder) Encode(cumFreq, freq, totFreq uint32) {
	r := e.rng / totFreq
	e.low += r * cumFreq
	e.rng = r * freq
	e.normalize()
}

func (e *Encoder) normalize() {
	for {
		if (e.low ^ (e.low + e.rng)) < topValue {
			// top byte settled
		} else if e.rng < botValue {
			e.rng = -e.low & (botValue - 1)
		} else {
			break
		}
		e.out = append(e.out, byte(e.low>>24))
		e.low <<= 8
		e.rng <<= 8
	}
}

// Finish flushes the remaining state and returns the encoded bytes.
func (e *Encoder) Finish() []byte {
	for i := 0; i < 4; i++ {
		e.out = append(e.out, byte(e.low>>24))
		e.low <<= 8
	}
	return e.out
}

type Decoder struct {
	low, rng, code uint32
	r              uint32
	in             []byte
	pos            int
}

func NewDecoder(in []byte) *Decoder {
	d := &Decoder{rng: 0xFFFFFFFF, in: in}
	for i := 0; i < 4; i++ {
		d.code = d.code<<8 | uint32(d.nextByte())
	}
	return d
}

func (d *Decoder) nextByte() byte {
	if d.pos >= len(d.in) {
		d.pos++
		return 0
	}
	b := d.in[d.pos]
	d.pos++
	return b
}

// GetFreq returns the cumulative frequency value (in [0, totFreq)) that
// the next symbol's range must contain; the caller looks this value up
// in its model to find the symbol, then calls Decode to consume it.
func (d *Decoder) GetFreq(totFreq uint32) uint32 {
	d.r = d.rng / totFreq
	v := (d.code - d.low) / d.r
	if v >= totFreq {
		v = totFreq - 1
	}
	return v
}

// Decode consumes the symbol whose sub-range is [cumFreq, cumFreq+freq).
func (d *Decoder) Decode(cumFreq, freq, totFreq uint32) {
	d.low += cumFreq * d.r
	d.rng = freq * d.r
	d.normalize()
}

func (d *Decoder) normalize() {
	for {
		if (d.low ^ (d.low + d.rng)) < topValue {
		} else if d.rng < botValue {
			d.rng = -d.low & (botValue - 1)
		} else {
			break
		}
		d.code = d.code<<8 | uint32(d.nextByte())
		d.low <<= 8
		d.rng <<= 8
	}
}
