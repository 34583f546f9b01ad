package codec

import (
	"bytes"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/genomepack/vcfile/core"
)

// zstdEncoderPool/zstdDecoderPool amortize the comparatively expensive
// construction of a zstd encoder/decoder across EncodeBlock/DecodeBlock
// calls, mirroring the pooling the corpus applies around the same
// library.
var (
	zstdEncoderPool = sync.Pool{New: func() any {
		// Single-goroutine encoders keep the output bytes independent of
		// scheduling, so one stream compresses identically at any pool
		// size.
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil
		}
		return enc
	}}
	zstdDecoderPool = sync.Pool{New: func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil
		}
		return dec
	}}
)

// EncodeBlock compresses data under the given preset's configured
// backend. It is safe to call concurrently for distinct calls (each call
// either uses a pooled-but-exclusively-owned-for-the-call encoder, or a
// stateless library function).
func EncodeBlock(data []byte, preset Preset) ([]byte, error) {
	p := Lookup(preset)
	switch p.Backend {
	case BackendZstd:
		return encodeZstd(data)
	case BackendLZ4:
		return encodeLZ4(data)
	case BackendSnappy:
		return snappy.Encode(nil, data), nil
	default:
		return nil, core.CodecErrorf(nil, "unknown backend %d for preset %s", p.Backend, preset)
	}
}

// DecodeBlock reverses EncodeBlock. rawSize is the uncompressed length
// hint recorded alongside the block (required by the LZ4 block API,
// advisory elsewhere).
func DecodeBlock(data []byte, preset Preset, rawSize int) ([]byte, error) {
	p := Lookup(preset)
	switch p.Backend {
	case BackendZstd:
		return decodeZstd(data)
	case BackendLZ4:
		return decodeLZ4(data, rawSize)
	case BackendSnappy:
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, core.CodecErrorf(err, "snappy decode failed")
		}
		return out, nil
	default:
		return nil, core.CodecErrorf(nil, "unknown backend %d for preset %s", p.Backend, preset)
	}
}

func encodeZstd(data []byte) ([]byte, error) {
	v := zstdEncoderPool.Get()
	enc, _ := v.(*zstd.Encoder)
	if enc == nil {
		return nil, core.CodecErrorf(nil, "failed to obtain zstd encoder")
	}
	defer zstdEncoderPool.Put(enc)

	buf := core.BufferPool.Get()
	defer core.BufferPool.Put(buf)

	enc.Reset(buf)
	if _, err := enc.Write(data); err != nil {
		return nil, core.CodecErrorf(err, "zstd write failed")
	}
	if err := enc.Close(); err != nil {
		return nil, core.CodecErrorf(err, "zstd close failed")
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func decodeZstd(data []byte) ([]byte, error) {
	v := zstdDecoderPool.Get()
	dec, _ := v.(*zstd.Decoder)
	if dec == nil {
		return nil, core.CodecErrorf(nil, "failed to obtain zstd decoder")
	}
	defer zstdDecoderPool.Put(dec)

	if err := dec.Reset(bytes.NewReader(data)); err != nil {
		return nil, core.CodecErrorf(err, "zstd reset failed")
	}
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, core.CodecErrorf(err, "zstd decode failed")
	}
	return out, nil
}

// lz4RawFlag/lz4CompressedFlag prefix every LZ4 block so DecodeBlock can
// tell a stored-raw fallback (incompressible input) apart from a real
// compressed block without relying on length heuristics.
const (
	lz4RawFlag        byte = 0
	lz4CompressedFlag byte = 1
)

func encodeLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, 1+lz4.CompressBlockBound(len(data)))
	var c lz4.Compressor
	n, err := c.CompressBlock(data, dst[1:])
	if err != nil {
		return nil, core.CodecErrorf(err, "lz4 compress failed")
	}
	if n == 0 {
		// Incompressible (or empty) block: lz4 signals this by writing
		// zero bytes.
		raw := make([]byte, 1+len(data))
		raw[0] = lz4RawFlag
		copy(raw[1:], data)
		return raw, nil
	}
	dst[0] = lz4CompressedFlag
	return dst[:1+n], nil
}

func decodeLZ4(data []byte, rawSize int) ([]byte, error) {
	if rawSize < 0 {
		return nil, core.CodecErrorf(nil, "negative raw size %d", rawSize)
	}
	if len(data) == 0 {
		if rawSize != 0 {
			return nil, core.CodecErrorf(nil, "empty lz4 block but rawSize %d", rawSize)
		}
		return []byte{}, nil
	}
	flag, body := data[0], data[1:]
	if flag == lz4RawFlag {
		out := make([]byte, len(body))
		copy(out, body)
		return out, nil
	}
	dst := make([]byte, rawSize)
	n, err := lz4.UncompressBlock(body, dst)
	if err != nil {
		return nil, core.CodecErrorf(err, "lz4 decompress failed")
	}
	if n != rawSize {
		return nil, core.CodecErrorf(nil, "lz4 decompress: got %d bytes, want %d", n, rawSize)
	}
	return dst, nil
}
