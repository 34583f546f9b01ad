package params

import (
	"errors"
	"testing"

	"github.com/genomepack/vcfile/core"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := Params{NoThreads: 3, NeglectLimit: 42}
	blob := p.Encode()
	if len(blob) != BlobLen {
		t.Fatalf("blob length = %d, want %d", len(blob), BlobLen)
	}
	if string(blob[:4]) != "GTS1" {
		t.Fatalf("blob magic = %q, want GTS1", blob[:4])
	}

	got, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.NeglectLimit != 42 {
		t.Fatalf("NeglectLimit = %d, want 42", got.NeglectLimit)
	}
	if got.NoThreads != DefaultNoThreads {
		t.Fatalf("NoThreads = %d, want default %d", got.NoThreads, DefaultNoThreads)
	}
}

func TestDecodeRejectsBadBlob(t *testing.T) {
	if _, err := Decode([]byte("GTS1")); !errors.Is(err, core.ErrFormat) {
		t.Fatalf("short blob: got %v, want format error", err)
	}
	if _, err := Decode([]byte("XXXX\x05")); !errors.Is(err, core.ErrFormat) {
		t.Fatalf("bad magic: got %v, want format error", err)
	}
}

func TestClamp(t *testing.T) {
	p := Params{NoThreads: 0, NeglectLimit: 9000}
	p.Clamp()
	if p.NoThreads != 1 {
		t.Fatalf("NoThreads = %d, want 1", p.NoThreads)
	}
	if p.NeglectLimit != MaxNeglectLimit {
		t.Fatalf("NeglectLimit = %d, want %d", p.NeglectLimit, MaxNeglectLimit)
	}
}
