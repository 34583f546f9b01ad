// Package buffer implements the per-substream append-only staging area:
// a sequence of per-variant element counts plus their concatenated
// payload, handed off to the worker pool once a flush threshold is hit.
// The backing slices come from shared pools: a Store draws fresh ones
// on first append after a Take, and workers return a flushed pair via
// Recycle once its package has been compressed, so the per-flush
// allocate/release cycle stays off the allocator.
package buffer

import (
	"sync"

	"github.com/genomepack/vcfile/core"
)

// Flush thresholds for the three buffer kinds.
const (
	MaxOrdinarySize = 8 << 20
	MaxGTSize       = 256 << 20
	MaxDBSize       = 8 << 20
)

// Kind selects which flush threshold a Store enforces.
type Kind int

const (
	KindOrdinary Kind = iota
	KindGT
	KindDB
)

func (k Kind) threshold() int {
	switch k {
	case KindGT:
		return MaxGTSize
	case KindDB:
		return MaxDBSize
	default:
		return MaxOrdinarySize
	}
}

// Shared pools backing every Store's slices.
var (
	dataPool  = core.NewBytePool()
	sizesPool = sync.Pool{New: func() any { return make([]uint32, 0, 1024) }}
)

// Recycle returns a (sizes, data) pair obtained from Take to the shared
// pools. Callers must not touch either slice afterwards; workers call
// this once a package's compressed output has been written.
func Recycle(sizes []uint32, data []byte) {
	if sizes != nil {
		sizesPool.Put(sizes[:0])
	}
	if data != nil {
		dataPool.Put(data)
	}
}

// Store is a single substream's staging buffer: a vector of per-variant
// sizes (in variant order) and the concatenation of their payloads.
// Reassembling per-variant slices is a prefix-sum over Sizes.
type Store struct {
	mu    sync.Mutex
	kind  Kind
	sizes []uint32
	data  []byte
}

func NewStore(kind Kind) *Store {
	return &Store{kind: kind}
}

// Append records one variant's element count and payload.
func (s *Store) Append(sizeEntry uint32, dataBytes []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sizes == nil {
		s.sizes = sizesPool.Get().([]uint32)[:0]
		s.data = dataPool.Get(len(dataBytes))
	}
	s.sizes = append(s.sizes, sizeEntry)
	s.data = append(s.data, dataBytes...)
}

// Flushed reports whether the data buffer has crossed this store's
// flush threshold.
func (s *Store) Flushed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data) >= s.kind.threshold()
}

// Len reports the number of variants currently staged.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sizes)
}

// Peek returns copies of the staged sizes/data pair without resetting
// the store. The graph-optimizer scans buffered samples this way before
// deciding which streams are ever materialized.
func (s *Store) Peek() (sizes []uint32, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes = append([]uint32(nil), s.sizes...)
	data = append([]byte(nil), s.data...)
	return sizes, data
}

// Take hands off the staged sizes/data pair and resets the store to
// empty, giving exclusive ownership of the returned slices to the
// caller (normally a queued package); the next Append draws fresh
// slices from the pools. Pass the pair to Recycle when done with it.
func (s *Store) Take() (sizes []uint32, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes, s.sizes = s.sizes, nil
	data, s.data = s.data, nil
	return sizes, data
}

// Slices reassembles per-variant payload slices from a (sizes, data)
// pair produced by Take, via a prefix sum over sizes.
func Slices(sizes []uint32, data []byte) [][]byte {
	out := make([][]byte, len(sizes))
	off := 0
	for i, sz := range sizes {
		n := int(sz)
		out[i] = data[off : off+n]
		off += n
	}
	return out
}
