package core

import (
	"bytes"
	"sync"
)

// BufferPool hands out reset *bytes.Buffer values so the hot compression
// path (one buffer per package, per flush) does not thrash the allocator.
var BufferPool = newBufferPool()

type bufferPool struct {
	pool sync.Pool
}

func newBufferPool() *bufferPool {
	return &bufferPool{
		pool: sync.Pool{New: func() any { return new(bytes.Buffer) }},
	}
}

func (p *bufferPool) Get() *bytes.Buffer {
	return p.pool.Get().(*bytes.Buffer)
}

func (p *bufferPool) Put(b *bytes.Buffer) {
	if b == nil {
		return
	}
	b.Reset()
	p.pool.Put(b)
}

// BytePool hands out []byte slices of at least the requested capacity,
// reused across calls to reduce GC pressure in the buffered substream
// store's flush cycle.
type BytePool struct {
	pool sync.Pool
}

func NewBytePool() *BytePool {
	return &BytePool{pool: sync.Pool{New: func() any { return make([]byte, 0, 4096) }}}
}

func (p *BytePool) Get(minCap int) []byte {
	b := p.pool.Get().([]byte)
	if cap(b) < minCap {
		return make([]byte, 0, minCap)
	}
	return b[:0]
}

func (p *BytePool) Put(b []byte) {
	p.pool.Put(b[:0])
}
