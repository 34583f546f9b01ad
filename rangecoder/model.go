package rangecoder

// model is an adaptive frequency table for one context: symbol counts
// updated after every encode/decode, halved whenever the running total
// crosses 1<<maxCounterLog so encoder and decoder stay bit-for-bit in
// sync from identical call sequences.
type model struct {
	freq     []uint32
	total    uint32
	maxTotal uint32
}

const updateIncrement = 32

func newModel(alphabetSize, maxCounterLog uint32) *model {
	f := make([]uint32, alphabetSize)
	for i := range f {
		f[i] = 1
	}
	return &model{freq: f, total: alphabetSize, maxTotal: uint32(1) << maxCounterLog}
}

// cumFreqOf returns (cumFreq, freq, total) for symbol, as required by
// Encoder.Encode.
func (m *model) cumFreqOf(symbol uint32) (cum, freq, tot uint32) {
	var c uint32
	for i := uint32(0); i < symbol; i++ {
		c += m.freq[i]
	}
	return c, m.freq[symbol], m.total
}

// symbolAt resolves the symbol whose cumulative range contains
// cumValue, as required by Decoder.GetFreq's result.
func (m *model) symbolAt(cumValue uint32) (symbol, cum, freq uint32) {
	var c uint32
	for i, f := range m.freq {
		if cumValue < c+f {
			return uint32(i), c, f
		}
		c += f
	}
	last := uint32(len(m.freq) - 1)
	return last, c - m.freq[last], m.freq[last]
}

func (m *model) update(symbol uint32) {
	m.freq[symbol] += updateIncrement
	m.total += updateIncrement
	if m.total > m.maxTotal {
		var newTotal uint32
		for i, f := range m.freq {
			nf := (f >> 1) | 1
			m.freq[i] = nf
			newTotal += nf
		}
		m.total = newTotal
	}
}
