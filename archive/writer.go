package archive

import (
	"io"
	"log/slog"
	"sync"

	"github.com/genomepack/vcfile/core"
)

// Writer appends named, part-indexed blobs to an underlying io.Writer and
// finalizes the container with a directory and magic footer.
//
// Writer is safe for concurrent AppendPart calls across different
// stream ids; callers are responsible for serializing appends to the
// *same* id in increasing part-index order (the queue package's coder
// section enforces this).
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	offset uint64
	dir    *directory
	nextID uint32
	logger *slog.Logger
}

// NewWriter wraps w, an append-only sink, as a fresh archive.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, dir: newDirectory(), logger: slog.Default().With("component", "archive.Writer")}
}

// RegisterStream assigns a stable numeric id to name. Calling it twice
// for the same name is a programming error and panics; schema setup
// happens once before any data flows (see vcfile's freeze).
func (w *Writer) RegisterStream(name string) uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.dir.ids[name]; exists {
		panic("archive: stream " + name + " already registered")
	}
	id := w.nextID
	w.nextID++
	w.dir.register(name, id)
	return id
}

// AppendPart writes data as the next part of stream id and returns its
// part index. The write (offset bookkeeping plus directory update) is
// atomic with respect to other AppendPart calls.
func (w *Writer) AppendPart(id uint32, data []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.dir.names[id]; !ok {
		return 0, core.FormatErrorf("archive: unknown stream id %d", id)
	}

	n, err := w.w.Write(data)
	if err != nil {
		return 0, core.IOErrorf(err, "archive: append part for stream %q", w.dir.names[id])
	}
	if n != len(data) {
		return 0, core.IOErrorf(io.ErrShortWrite, "archive: short write for stream %q", w.dir.names[id])
	}

	entry := partEntry{Offset: w.offset, Length: uint32(len(data))}
	idx := w.dir.appendPart(id, entry)
	w.offset += uint64(len(data))
	return idx, nil
}

// Finalize writes the directory blob followed by the 8-byte directory
// offset and the 4-byte magic, per the container's footer layout.
func (w *Writer) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	dirOffset := w.offset
	dirBlob := w.dir.encode()

	n, err := w.w.Write(dirBlob)
	if err != nil {
		return core.IOErrorf(err, "archive: write directory blob")
	}
	w.offset += uint64(n)

	var footer []byte
	footer = core.AppendFixed64(footer, dirOffset)
	footer = append(footer, Magic...)
	if _, err := w.w.Write(footer); err != nil {
		return core.IOErrorf(err, "archive: write footer")
	}
	w.offset += uint64(len(footer))

	w.logger.Debug("archive finalized", "directory_offset", dirOffset, "streams", len(w.dir.order))
	return nil
}
