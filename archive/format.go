// Package archive implements the on-disk container: a sequence of named,
// part-indexed blobs followed by a directory and a fixed magic footer.
package archive

// Magic is the 4-byte footer tag, shared with the parameter blob's
// leading bytes ("G T S 1").
const Magic = "GTS1"

const (
	magicLen           = len(Magic)
	directoryOffsetLen = 8 // little-endian uint64
	footerLen          = directoryOffsetLen + magicLen
)

// partEntry records one appended part's location within the container.
type partEntry struct {
	Offset uint64
	Length uint32
}
