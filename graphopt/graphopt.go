// Package graphopt discovers functional redundancy between substreams:
// streams whose per-variant sizes, or whole payloads, are reproducible
// from another stream are replaced by a compact function descriptor, so
// only spanning-forest roots are materialized in the archive.
package graphopt

import (
	"bytes"
	"hash/fnv"
	"sort"

	"github.com/genomepack/vcfile/core"
)

// Relation is the menu of reconstruction functions an edge can carry,
// ordered: discovery tries them in this order and the first match wins.
type Relation uint8

const (
	// RelIdentity reproduces the target verbatim from the source.
	RelIdentity Relation = iota
	// RelOffset reproduces an int-typed target by adding a constant to
	// every element of the source.
	RelOffset
)

// Edge records that Dst's stream is reproducible from Src's via
// Relation (with Param as the relation's constant, if any). Edges
// always point from a lower key id to a higher one.
type Edge struct {
	Src      int
	Dst      int
	Relation Relation
	Param    int64
}

// Graph is a spanning forest over key ids: every key is either a root
// (its stream is materialized) or the target of exactly one edge.
type Graph struct {
	Edges []Edge
}

// IsTarget reports whether key is reconstructed rather than stored.
func (g *Graph) IsTarget(key int) bool {
	for _, e := range g.Edges {
		if e.Dst == key {
			return true
		}
	}
	return false
}

// EdgeFor returns the incoming edge for key, if any.
func (g *Graph) EdgeFor(key int) (Edge, bool) {
	for _, e := range g.Edges {
		if e.Dst == key {
			return e, true
		}
	}
	return Edge{}, false
}

// Empty reports whether the graph carries no edges.
func (g *Graph) Empty() bool {
	return g == nil || len(g.Edges) == 0
}

// Validate checks the spanning-forest shape: no key is the target of
// more than one edge, no edge targets its own source, and every source
// is itself a root (no chains, so cycles are impossible).
func (g *Graph) Validate() error {
	targets := make(map[int]bool)
	for _, e := range g.Edges {
		if e.Src == e.Dst {
			return core.FormatErrorf("graph: self-edge on key %d", e.Src)
		}
		if targets[e.Dst] {
			return core.FormatErrorf("graph: key %d is the target of two edges", e.Dst)
		}
		targets[e.Dst] = true
	}
	for _, e := range g.Edges {
		if targets[e.Src] {
			return core.FormatErrorf("graph: edge source %d is itself a target", e.Src)
		}
	}
	return nil
}

// Sample is one key's buffered substream content as seen at discovery
// time.
type Sample struct {
	Key     int
	Sizes   []uint32
	Data    []byte
	Numeric bool // int-typed payloads, eligible for RelOffset
}

// DiscoverSizeGraph groups size streams by fingerprint and links
// strictly equal ones: the lowest key id in each equality class becomes
// the root, every other member gets an identity edge from it.
func DiscoverSizeGraph(samples []Sample) *Graph {
	ordered := append([]Sample(nil), samples...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Key < ordered[j].Key })

	buckets := make(map[uint64][]Sample)
	for _, s := range ordered {
		buckets[fingerprintSizes(s.Sizes)] = append(buckets[fingerprintSizes(s.Sizes)], s)
	}

	g := &Graph{}
	for _, bucket := range buckets {
		for len(bucket) > 1 {
			root := bucket[0]
			var rest []Sample
			for _, s := range bucket[1:] {
				if sizesEqual(root.Sizes, s.Sizes) {
					g.Edges = append(g.Edges, Edge{Src: root.Key, Dst: s.Key, Relation: RelIdentity})
				} else {
					rest = append(rest, s)
				}
			}
			bucket = rest
		}
	}
	sortEdges(g)
	return g
}

// DiscoverDataGraph links data streams reproducible from another: first
// strict equality (within fingerprint buckets), then, for numeric keys,
// a constant element offset verified by re-encoding. A key already the
// target of an edge is never considered again, and a key that is already
// an identity source is never made a target, keeping the forest flat.
func DiscoverDataGraph(samples []Sample) *Graph {
	ordered := append([]Sample(nil), samples...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Key < ordered[j].Key })

	g := &Graph{}
	claimed := make(map[int]bool)
	sources := make(map[int]bool)

	buckets := make(map[uint64][]Sample)
	for _, s := range ordered {
		fp := fingerprintData(s.Sizes, s.Data)
		buckets[fp] = append(buckets[fp], s)
	}
	for _, bucket := range buckets {
		for len(bucket) > 1 {
			root := bucket[0]
			var rest []Sample
			for _, s := range bucket[1:] {
				if sizesEqual(root.Sizes, s.Sizes) && bytes.Equal(root.Data, s.Data) {
					g.Edges = append(g.Edges, Edge{Src: root.Key, Dst: s.Key, Relation: RelIdentity})
					claimed[s.Key] = true
					sources[root.Key] = true
				} else {
					rest = append(rest, s)
				}
			}
			bucket = rest
		}
	}

	for i, a := range ordered {
		if claimed[a.Key] || !a.Numeric {
			continue
		}
		for _, b := range ordered[i+1:] {
			if claimed[b.Key] || sources[b.Key] || !b.Numeric {
				continue
			}
			if offset, ok := tryOffset(a, b); ok {
				g.Edges = append(g.Edges, Edge{Src: a.Key, Dst: b.Key, Relation: RelOffset, Param: offset})
				claimed[b.Key] = true
			}
		}
	}

	sortEdges(g)
	return g
}

// Apply reconstructs the target's (sizes, data) pair from the source's
// per the edge's relation.
func Apply(e Edge, srcSizes []uint32, srcData []byte) ([]uint32, []byte, error) {
	switch e.Relation {
	case RelIdentity:
		sizes := append([]uint32(nil), srcSizes...)
		data := append([]byte(nil), srcData...)
		return sizes, data, nil
	case RelOffset:
		return applyOffset(srcSizes, srcData, e.Param)
	default:
		return nil, nil, core.FormatErrorf("graph: unknown relation %d on edge %d->%d", e.Relation, e.Src, e.Dst)
	}
}

// tryOffset tests whether b's payload is a's with a constant added to
// every varint element. The candidate constant comes from the first
// element pair; the match is then verified by actually re-encoding a
// with that offset and comparing bytes, so a false positive is
// impossible.
func tryOffset(a, b Sample) (int64, bool) {
	if len(a.Sizes) != len(b.Sizes) || len(a.Data) == 0 || len(b.Data) == 0 {
		return 0, false
	}
	firstA, _, errA := core.ReadVarint(a.Data, 0)
	firstB, _, errB := core.ReadVarint(b.Data, 0)
	if errA != nil || errB != nil {
		return 0, false
	}
	offset := firstB - firstA
	if offset == 0 {
		// Identity would have claimed it already; a zero offset here means
		// the payloads differ somewhere and re-encoding cannot fix that.
		return 0, false
	}

	sizes, data, err := applyOffset(a.Sizes, a.Data, offset)
	if err != nil {
		return 0, false
	}
	if !sizesEqual(sizes, b.Sizes) || !bytes.Equal(data, b.Data) {
		return 0, false
	}
	return offset, true
}

func applyOffset(srcSizes []uint32, srcData []byte, offset int64) ([]uint32, []byte, error) {
	sizes := make([]uint32, 0, len(srcSizes))
	data := make([]byte, 0, len(srcData))

	pos := 0
	for _, sz := range srcSizes {
		end := pos + int(sz)
		if end > len(srcData) {
			return nil, nil, core.FormatErrorf("graph: size vector overruns data by %d bytes", end-len(srcData))
		}
		startOut := len(data)
		for pos < end {
			var v int64
			var err error
			v, pos, err = core.ReadVarint(srcData, pos)
			if err != nil {
				return nil, nil, core.FormatErrorf("graph: source payload is not a varint stream: %v", err)
			}
			data = core.AppendVarint(data, v+offset)
		}
		sizes = append(sizes, uint32(len(data)-startOut))
	}
	return sizes, data, nil
}

func sizesEqual(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func fingerprintSizes(sizes []uint32) uint64 {
	h := fnv.New64a()
	var tmp [4]byte
	for _, s := range sizes {
		tmp[0] = byte(s)
		tmp[1] = byte(s >> 8)
		tmp[2] = byte(s >> 16)
		tmp[3] = byte(s >> 24)
		h.Write(tmp[:])
	}
	return h.Sum64()
}

func fingerprintData(sizes []uint32, data []byte) uint64 {
	h := fnv.New64a()
	var tmp [4]byte
	for _, s := range sizes {
		tmp[0] = byte(s)
		tmp[1] = byte(s >> 8)
		tmp[2] = byte(s >> 16)
		tmp[3] = byte(s >> 24)
		h.Write(tmp[:])
	}
	h.Write(data)
	return h.Sum64()
}

func sortEdges(g *Graph) {
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].Dst != g.Edges[j].Dst {
			return g.Edges[i].Dst < g.Edges[j].Dst
		}
		return g.Edges[i].Src < g.Edges[j].Src
	})
}
