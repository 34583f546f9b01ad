package codec

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeBlockRoundTrip(t *testing.T) {
	presets := []Preset{PresetSize, PresetData, PresetFlag, PresetText, PresetInt, PresetReal, PresetDBPos}
	inputs := [][]byte{
		nil,
		[]byte("a"),
		bytes.Repeat([]byte("hello world "), 500),
		make([]byte, 1<<16), // all zero, highly compressible
	}

	for _, preset := range presets {
		for _, in := range inputs {
			encoded, err := EncodeBlock(in, preset)
			if err != nil {
				t.Fatalf("preset %s: EncodeBlock(%d bytes): %v", preset, len(in), err)
			}
			decoded, err := DecodeBlock(encoded, preset, len(in))
			if err != nil {
				t.Fatalf("preset %s: DecodeBlock: %v", preset, err)
			}
			if !bytes.Equal(decoded, in) && !(len(decoded) == 0 && len(in) == 0) {
				t.Fatalf("preset %s: round-trip mismatch: got %d bytes, want %d", preset, len(decoded), len(in))
			}
		}
	}
}

func TestEncodeBlockIncompressible(t *testing.T) {
	// Random-looking data that LZ4 typically cannot shrink.
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i*167 + 13)
	}
	encoded, err := EncodeBlock(data, PresetInt)
	if err != nil {
		t.Fatalf("EncodeBlock: %v", err)
	}
	decoded, err := DecodeBlock(encoded, PresetInt, len(data))
	if err != nil {
		t.Fatalf("DecodeBlock: %v", err)
	}
	if !bytes.Equal(decoded, data) {
		t.Fatalf("round-trip mismatch for incompressible block")
	}
}
