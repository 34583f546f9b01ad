package core

import "encoding/binary"

// AppendString appends a length-prefixed string: a uvarint length followed
// by the raw bytes. Used for the structural metadata blobs and the
// archive directory's stream names.
func AppendString(buf []byte, s string) []byte {
	buf = AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

// ReadString is the symmetric reader for AppendString.
func ReadString(buf []byte, pos int) (string, int, error) {
	n, pos, err := ReadUvarint(buf, pos)
	if err != nil {
		return "", pos, err
	}
	if pos+int(n) > len(buf) {
		return "", pos, FormatErrorf("truncated string field")
	}
	s := string(buf[pos : pos+int(n)])
	return s, pos + int(n), nil
}

// AppendUvarint appends x as a uvarint.
func AppendUvarint(buf []byte, x uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], x)
	return append(buf, tmp[:n]...)
}

// ReadUvarint reads a uvarint starting at pos.
func ReadUvarint(buf []byte, pos int) (uint64, int, error) {
	x, n := binary.Uvarint(buf[pos:])
	if n <= 0 {
		return 0, pos, FormatErrorf("truncated uvarint field")
	}
	return x, pos + n, nil
}

// AppendVarint appends x as a zigzag varint; the canonical element
// encoding for int-typed field payloads.
func AppendVarint(buf []byte, x int64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], x)
	return append(buf, tmp[:n]...)
}

// ReadVarint reads a zigzag varint starting at pos.
func ReadVarint(buf []byte, pos int) (int64, int, error) {
	x, n := binary.Varint(buf[pos:])
	if n <= 0 {
		return 0, pos, FormatErrorf("truncated varint field")
	}
	return x, pos + n, nil
}

// AppendFixed32/64 append fixed-width little-endian integers; the
// archive footer stores the directory offset as a fixed64 (the
// directory's own offsets and lengths are uvarints).
func AppendFixed32(buf []byte, x uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], x)
	return append(buf, tmp[:]...)
}

func AppendFixed64(buf []byte, x uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], x)
	return append(buf, tmp[:]...)
}

func ReadFixed32(buf []byte, pos int) (uint32, int, error) {
	if pos+4 > len(buf) {
		return 0, pos, FormatErrorf("truncated fixed32 field")
	}
	return binary.LittleEndian.Uint32(buf[pos:]), pos + 4, nil
}

func ReadFixed64(buf []byte, pos int) (uint64, int, error) {
	if pos+8 > len(buf) {
		return 0, pos, FormatErrorf("truncated fixed64 field")
	}
	return binary.LittleEndian.Uint64(buf[pos:]), pos + 8, nil
}
