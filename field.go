package vcfile

import (
	"encoding/binary"
	"math"

	"github.com/genomepack/vcfile/core"
)

// Field payloads use one canonical byte encoding per value type, so the
// same bytes come back out of decodeField that went into encodeField
// and the graph-optimizer can compare streams structurally:
//
//	flag          one 0x01 byte when set, empty when absent
//	int           zigzag varint per element
//	real          8-byte little-endian float64 bits per element
//	char/string   INFO: the raw value; FORMAT: uvarint count, then
//	              uvarint-length-prefixed entries
//
// An absent field is the empty payload for every type.
func encodeField(desc core.KeyDesc, fd *core.FieldDesc) ([]byte, error) {
	if !fd.Present {
		return nil, nil
	}
	switch desc.ValueType {
	case core.ValueFlag:
		return []byte{1}, nil
	case core.ValueInt:
		var out []byte
		for _, v := range fd.Ints {
			out = core.AppendVarint(out, v)
		}
		return out, nil
	case core.ValueReal:
		out := make([]byte, 8*len(fd.Reals))
		for i, v := range fd.Reals {
			binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
		}
		return out, nil
	default:
		if desc.Kind == core.KindInfo {
			if len(fd.Bytes) != 1 {
				return nil, core.SchemaErrorf("key %d: INFO string field wants one value, got %d", desc.KeyID, len(fd.Bytes))
			}
			return append([]byte(nil), fd.Bytes[0]...), nil
		}
		var out []byte
		out = core.AppendUvarint(out, uint64(len(fd.Bytes)))
		for _, b := range fd.Bytes {
			out = core.AppendUvarint(out, uint64(len(b)))
			out = append(out, b...)
		}
		return out, nil
	}
}

func decodeField(desc core.KeyDesc, payload []byte, fd *core.FieldDesc) error {
	*fd = core.FieldDesc{KeyID: desc.KeyID}
	if len(payload) == 0 {
		return nil
	}
	fd.Present = true

	switch desc.ValueType {
	case core.ValueFlag:
		return nil
	case core.ValueInt:
		pos := 0
		for pos < len(payload) {
			v, next, err := core.ReadVarint(payload, pos)
			if err != nil {
				return core.FormatErrorf("key %d: bad int payload: %v", desc.KeyID, err)
			}
			fd.Ints = append(fd.Ints, v)
			pos = next
		}
		return nil
	case core.ValueReal:
		if len(payload)%8 != 0 {
			return core.FormatErrorf("key %d: real payload of %d bytes is not a multiple of 8", desc.KeyID, len(payload))
		}
		for i := 0; i < len(payload); i += 8 {
			fd.Reals = append(fd.Reals, math.Float64frombits(binary.LittleEndian.Uint64(payload[i:])))
		}
		return nil
	default:
		if desc.Kind == core.KindInfo {
			fd.Bytes = [][]byte{append([]byte(nil), payload...)}
			return nil
		}
		count, pos, err := core.ReadUvarint(payload, 0)
		if err != nil {
			return core.FormatErrorf("key %d: bad string payload count: %v", desc.KeyID, err)
		}
		fd.Bytes = make([][]byte, 0, count)
		for i := uint64(0); i < count; i++ {
			var n uint64
			n, pos, err = core.ReadUvarint(payload, pos)
			if err != nil {
				return core.FormatErrorf("key %d: bad string payload entry %d: %v", desc.KeyID, i, err)
			}
			if pos+int(n) > len(payload) {
				return core.FormatErrorf("key %d: string payload entry %d overruns payload", desc.KeyID, i)
			}
			fd.Bytes = append(fd.Bytes, append([]byte(nil), payload[pos:pos+int(n)]...))
			pos += int(n)
		}
		return nil
	}
}

// Genotype fields bypass encodeField: the allele codes become one byte
// per haplotype so the PBWT transform can permute them directly.
func encodeGT(fd *core.FieldDesc, noHaplotypes int) ([]byte, error) {
	if len(fd.Ints) != noHaplotypes {
		return nil, core.SchemaErrorf("genotype field holds %d alleles, want %d", len(fd.Ints), noHaplotypes)
	}
	out := make([]byte, noHaplotypes)
	for i, a := range fd.Ints {
		if a < 0 || a > 255 {
			return nil, core.SchemaErrorf("allele code %d out of byte range", a)
		}
		out[i] = byte(a)
	}
	return out, nil
}

func decodeGT(keyID int, payload []byte, fd *core.FieldDesc) {
	*fd = core.FieldDesc{KeyID: keyID, Present: true, Ints: make([]int64, len(payload))}
	for i, b := range payload {
		fd.Ints[i] = int64(b)
	}
}
