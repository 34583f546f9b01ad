package archive

import (
	"io"
	"log/slog"

	"github.com/genomepack/vcfile/core"
)

// Reader provides random access into a finalized archive: it reads the
// footer first, then the directory it points to, then resolves
// individual parts on demand.
type Reader struct {
	r      io.ReaderAt
	size   int64
	dir    *directory
	logger *slog.Logger
}

// OpenReader parses the footer and directory of a finalized archive of
// the given total size.
func OpenReader(r io.ReaderAt, size int64) (*Reader, error) {
	if size < int64(footerLen) {
		return nil, core.FormatErrorf("archive: container too small to hold a footer (%d bytes)", size)
	}

	footer := make([]byte, footerLen)
	if _, err := r.ReadAt(footer, size-int64(footerLen)); err != nil {
		return nil, core.IOErrorf(err, "archive: read footer")
	}

	magic := string(footer[directoryOffsetLen:])
	if magic != Magic {
		return nil, core.FormatErrorf("archive: bad magic %q, want %q", magic, Magic)
	}
	dirOffset, _, err := core.ReadFixed64(footer, 0)
	if err != nil {
		return nil, core.FormatErrorf("archive: malformed footer: %v", err)
	}

	dirLen := size - int64(footerLen) - int64(dirOffset)
	if dirOffset > uint64(size) || dirLen < 0 {
		return nil, core.FormatErrorf("archive: directory offset %d out of range for size %d", dirOffset, size)
	}
	dirBlob := make([]byte, dirLen)
	if _, err := r.ReadAt(dirBlob, int64(dirOffset)); err != nil {
		return nil, core.IOErrorf(err, "archive: read directory blob")
	}

	dir, err := decodeDirectory(dirBlob)
	if err != nil {
		return nil, err
	}

	return &Reader{r: r, size: size, dir: dir, logger: slog.Default().With("component", "archive.Reader")}, nil
}

// StreamID resolves a registered stream name to its numeric id.
func (r *Reader) StreamID(name string) (uint32, bool) {
	id, ok := r.dir.ids[name]
	return id, ok
}

// StreamNames returns every registered stream name, in registration order.
func (r *Reader) StreamNames() []string {
	out := make([]string, len(r.dir.order))
	copy(out, r.dir.order)
	return out
}

// NumParts returns how many parts stream id has.
func (r *Reader) NumParts(id uint32) int {
	return len(r.dir.parts[id])
}

// ReadPart returns the bytes of the partIndex-th part of stream id.
func (r *Reader) ReadPart(id uint32, partIndex int) ([]byte, error) {
	name, ok := r.dir.names[id]
	if !ok {
		return nil, core.FormatErrorf("archive: unknown stream id %d", id)
	}
	parts := r.dir.parts[id]
	if partIndex < 0 || partIndex >= len(parts) {
		return nil, core.FormatErrorf("archive: stream %q has no part %d", name, partIndex)
	}
	entry := parts[partIndex]
	buf := make([]byte, entry.Length)
	if _, err := r.r.ReadAt(buf, int64(entry.Offset)); err != nil {
		return nil, core.IOErrorf(err, "archive: read part %d of stream %q", partIndex, name)
	}
	return buf, nil
}

// CopyPart writes the partIndex-th part of stream id to w. The part is
// read fully into memory (via ReadPart) before it is written.
func (r *Reader) CopyPart(w io.Writer, id uint32, partIndex int) (int64, error) {
	data, err := r.ReadPart(id, partIndex)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	if err != nil {
		return int64(n), core.IOErrorf(err, "archive: copy part %d of stream id %d", partIndex, id)
	}
	return int64(n), nil
}
