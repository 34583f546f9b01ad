package router

// Package is the unit of deferred compression handed from the
// orchestrator to the worker pool: one flushed (sizes, data) pair for
// one substream, tagged with the archive stream ids and the part index
// both blobs must be appended under. A Package is mutable while the
// orchestrator stages it and immutable once pushed onto the queue.
type Package struct {
	Route      Route
	KeyID      int // declared key for fields/gt packages, db id for db packages
	SizeStream uint32
	DataStream uint32
	PartIndex  int
	Sizes      []uint32
	Data       []byte

	// SkipSizes marks a package whose size stream is a size-graph edge
	// target: only the data part is appended, the sizes are
	// reconstructed from the edge's source on decompression.
	SkipSizes bool
}
