package router

import (
	"encoding/binary"

	"github.com/genomepack/vcfile/buffer"
	"github.com/genomepack/vcfile/codec"
	"github.com/genomepack/vcfile/core"
	"github.com/genomepack/vcfile/pbwt"
	"github.com/genomepack/vcfile/queue"
	"github.com/genomepack/vcfile/rangecoder"
	"github.com/genomepack/vcfile/textpp"
)

// Pipeline bundles the shared codec state a worker needs to run any
// route: the text dictionary plus its serializing section, and the
// range-coder/PBWT state for the genotype path. The genotype state is
// only ever touched under the coder section for the GT stream, which
// serializes GT packages in part order.
type Pipeline struct {
	Dict   *textpp.Dictionary
	Text   *queue.TextSection
	Coders *rangecoder.Coders
	PBWT   *pbwt.State
}

// Part framing: every archive part starts with a fixed 32-bit size
// word. For data parts the word is the pre-entropy-coding byte length,
// with PPCompressFlag set when the text preprocessor ran; for size
// parts it is the raw length of the serialized size vector. The body is
// the entropy-coded (or range-coded) payload.
const partHeaderLen = 4

// Compress runs one package through its route and returns the size and
// data part blobs to append to the archive.
func (p *Pipeline) Compress(pkg *Package) (sizePart, dataPart []byte, err error) {
	sizePart, err = p.compressSizes(pkg.Sizes)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case pkg.Route.GT:
		dataPart, err = p.compressGT(pkg.Sizes, pkg.Data)
	case pkg.Route.Text:
		dataPart, err = p.compressText(pkg)
	default:
		dataPart, err = compressPlain(pkg.Data, pkg.Route.Preset)
	}
	if err != nil {
		return nil, nil, err
	}
	return sizePart, dataPart, nil
}

// DecompressSizes reverses compressSizes.
func (p *Pipeline) DecompressSizes(part []byte) ([]uint32, error) {
	word, body, err := splitPart(part)
	if err != nil {
		return nil, err
	}
	raw, err := codec.DecodeBlock(body, codec.PresetSize, int(word))
	if err != nil {
		return nil, err
	}
	if len(raw)%4 != 0 {
		return nil, core.FormatErrorf("router: size part body is %d bytes, not a multiple of 4", len(raw))
	}
	sizes := make([]uint32, len(raw)/4)
	for i := range sizes {
		sizes[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return sizes, nil
}

// DecompressData reverses the data half of Compress. The GT route
// additionally needs the part's size vector to split the permuted
// stream back into per-site vectors.
func (p *Pipeline) DecompressData(part []byte, route Route, sizes []uint32) ([]byte, error) {
	word, body, err := splitPart(part)
	if err != nil {
		return nil, err
	}

	if route.GT {
		return p.decompressGT(body, word, sizes)
	}

	rawLen := int(word & core.PPSizeMask)
	out, err := codec.DecodeBlock(body, route.Preset, rawLen)
	if err != nil {
		return nil, err
	}
	if word&core.PPCompressFlag != 0 {
		out, err = p.Dict.Postprocess(out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *Pipeline) compressSizes(sizes []uint32) ([]byte, error) {
	raw := make([]byte, 4*len(sizes))
	for i, s := range sizes {
		binary.LittleEndian.PutUint32(raw[i*4:], s)
	}
	body, err := codec.EncodeBlock(raw, codec.PresetSize)
	if err != nil {
		return nil, err
	}
	return framePart(uint32(len(raw)), body), nil
}

func (p *Pipeline) compressText(pkg *Package) ([]byte, error) {
	p.Text.Lock()
	if !p.Dict.Trained() {
		p.Dict.Learn(buffer.Slices(pkg.Sizes, pkg.Data))
	}
	p.Text.Unlock()

	pre, err := p.Dict.Preprocess(pkg.Data)
	if err != nil {
		return nil, err
	}
	body, err := codec.EncodeBlock(pre, pkg.Route.Preset)
	if err != nil {
		return nil, err
	}
	return framePart(uint32(len(pre))|core.PPCompressFlag, body), nil
}

func compressPlain(data []byte, preset codec.Preset) ([]byte, error) {
	if len(data) >= int(core.PPCompressFlag) {
		return nil, core.CodecErrorf(nil, "router: data part of %d bytes overflows the size word", len(data))
	}
	body, err := codec.EncodeBlock(data, preset)
	if err != nil {
		return nil, err
	}
	return framePart(uint32(len(data)), body), nil
}

// compressGT permutes every site through PBWT, then run-length encodes
// the concatenated permuted stream under the range coder, each run's
// symbol conditioned on the previous run's symbol.
func (p *Pipeline) compressGT(sizes []uint32, data []byte) ([]byte, error) {
	perm := make([]byte, 0, len(data))
	for _, site := range buffer.Slices(sizes, data) {
		out, err := p.PBWT.Encode(site)
		if err != nil {
			return nil, err
		}
		perm = append(perm, out...)
	}

	enc := rangecoder.NewEncoder()
	prev := uint64(0)
	i := 0
	for i < len(perm) {
		symbol := perm[i]
		run := 1
		for i+run < len(perm) && perm[i+run] == symbol {
			run++
		}
		rangecoder.EncodeRunLength(p.Coders, enc, prev, uint32(symbol), 256, uint32(run))
		prev = uint64(symbol)
		i += run
	}
	return framePart(uint32(len(perm)), enc.Finish()), nil
}

func (p *Pipeline) decompressGT(body []byte, word uint32, sizes []uint32) ([]byte, error) {
	total := int(word)
	perm := make([]byte, 0, total)

	dec := rangecoder.NewDecoder(body)
	prev := uint64(0)
	for len(perm) < total {
		symbol, run := rangecoder.DecodeRunLength(p.Coders, dec, prev, 256)
		if len(perm)+int(run) > total {
			return nil, core.FormatErrorf("router: genotype run overflows part by %d bytes", len(perm)+int(run)-total)
		}
		for j := uint32(0); j < run; j++ {
			perm = append(perm, byte(symbol))
		}
		prev = uint64(symbol)
	}

	out := make([]byte, 0, total)
	off := 0
	for _, sz := range sizes {
		site, err := p.PBWT.Decode(perm[off : off+int(sz)])
		if err != nil {
			return nil, err
		}
		out = append(out, site...)
		off += int(sz)
	}
	return out, nil
}

func framePart(word uint32, body []byte) []byte {
	part := make([]byte, partHeaderLen+len(body))
	binary.LittleEndian.PutUint32(part, word)
	copy(part[partHeaderLen:], body)
	return part
}

func splitPart(part []byte) (uint32, []byte, error) {
	if len(part) < partHeaderLen {
		return 0, nil, core.FormatErrorf("router: part of %d bytes is shorter than its header", len(part))
	}
	return binary.LittleEndian.Uint32(part), part[partHeaderLen:], nil
}
