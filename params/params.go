// Package params holds the engine's tunable settings and the 5-byte
// configuration blob serialized into every archive.
package params

import (
	"github.com/genomepack/vcfile/core"
)

const (
	// DefaultNoThreads is the worker-pool size used when SetNoThreads is
	// never called.
	DefaultNoThreads = 8

	// DefaultNeglectLimit is the PBWT rare-branch pruning bound used when
	// SetNeglectLimit is never called.
	DefaultNeglectLimit = 10

	// MaxNeglectLimit is the largest neglect limit representable in the
	// blob's single settings byte.
	MaxNeglectLimit = 255
)

// blobMagic is the leading tag of the configuration blob, identical to
// the archive footer magic.
const blobMagic = "GTS1"

// BlobLen is the exact serialized size of a Params blob.
const BlobLen = len(blobMagic) + 1

// Params carries the settings a caller may adjust before the first
// variant is staged. NoThreads is in-memory only; NeglectLimit also
// travels in the serialized blob so the decompressor can rebuild the
// same PBWT state.
type Params struct {
	NoThreads    int
	NeglectLimit int
}

// Default returns the settings used when the caller adjusts nothing.
func Default() Params {
	return Params{NoThreads: DefaultNoThreads, NeglectLimit: DefaultNeglectLimit}
}

// Clamp normalizes out-of-range settings in place: NoThreads is never
// below 1, NeglectLimit is bounded to what the blob byte can carry.
func (p *Params) Clamp() {
	if p.NoThreads < 1 {
		p.NoThreads = 1
	}
	if p.NeglectLimit < 0 {
		p.NeglectLimit = 0
	}
	if p.NeglectLimit > MaxNeglectLimit {
		p.NeglectLimit = MaxNeglectLimit
	}
}

// Encode serializes the blob: exactly 5 bytes, "G T S 1" followed by the
// neglect limit.
func (p Params) Encode() []byte {
	out := make([]byte, 0, BlobLen)
	out = append(out, blobMagic...)
	out = append(out, byte(p.NeglectLimit))
	return out
}

// Decode parses a blob produced by Encode. NoThreads is not part of the
// wire format and comes back as the default.
func Decode(blob []byte) (Params, error) {
	if len(blob) != BlobLen {
		return Params{}, core.FormatErrorf("params: blob is %d bytes, want %d", len(blob), BlobLen)
	}
	if string(blob[:len(blobMagic)]) != blobMagic {
		return Params{}, core.FormatErrorf("params: bad blob magic %q", blob[:len(blobMagic)])
	}
	return Params{NoThreads: DefaultNoThreads, NeglectLimit: int(blob[len(blobMagic)])}, nil
}
