package graphopt

import "github.com/genomepack/vcfile/core"

// EncodeGraphs serializes the size and data graphs as one blob for the
// archive's structural metadata stream.
func EncodeGraphs(sizeGraph, dataGraph *Graph) []byte {
	var buf []byte
	buf = appendGraph(buf, sizeGraph)
	buf = appendGraph(buf, dataGraph)
	return buf
}

// DecodeGraphs parses a blob produced by EncodeGraphs and validates
// both forests.
func DecodeGraphs(blob []byte) (sizeGraph, dataGraph *Graph, err error) {
	pos := 0
	sizeGraph, pos, err = readGraph(blob, pos)
	if err != nil {
		return nil, nil, err
	}
	dataGraph, pos, err = readGraph(blob, pos)
	if err != nil {
		return nil, nil, err
	}
	if pos != len(blob) {
		return nil, nil, core.FormatErrorf("graph: %d trailing bytes after graphs", len(blob)-pos)
	}
	if err := sizeGraph.Validate(); err != nil {
		return nil, nil, err
	}
	if err := dataGraph.Validate(); err != nil {
		return nil, nil, err
	}
	return sizeGraph, dataGraph, nil
}

func appendGraph(buf []byte, g *Graph) []byte {
	if g == nil {
		return core.AppendUvarint(buf, 0)
	}
	buf = core.AppendUvarint(buf, uint64(len(g.Edges)))
	for _, e := range g.Edges {
		buf = core.AppendUvarint(buf, uint64(e.Src))
		buf = core.AppendUvarint(buf, uint64(e.Dst))
		buf = append(buf, byte(e.Relation))
		buf = core.AppendVarint(buf, e.Param)
	}
	return buf
}

func readGraph(blob []byte, pos int) (*Graph, int, error) {
	count, pos, err := core.ReadUvarint(blob, pos)
	if err != nil {
		return nil, pos, core.FormatErrorf("graph: truncated edge count: %v", err)
	}
	g := &Graph{}
	for i := uint64(0); i < count; i++ {
		var src, dst uint64
		src, pos, err = core.ReadUvarint(blob, pos)
		if err != nil {
			return nil, pos, core.FormatErrorf("graph: truncated edge %d source: %v", i, err)
		}
		dst, pos, err = core.ReadUvarint(blob, pos)
		if err != nil {
			return nil, pos, core.FormatErrorf("graph: truncated edge %d target: %v", i, err)
		}
		if pos >= len(blob) {
			return nil, pos, core.FormatErrorf("graph: truncated edge %d relation", i)
		}
		rel := Relation(blob[pos])
		pos++
		var param int64
		param, pos, err = core.ReadVarint(blob, pos)
		if err != nil {
			return nil, pos, core.FormatErrorf("graph: truncated edge %d parameter: %v", i, err)
		}
		g.Edges = append(g.Edges, Edge{Src: int(src), Dst: int(dst), Relation: rel, Param: param})
	}
	return g, pos, nil
}
