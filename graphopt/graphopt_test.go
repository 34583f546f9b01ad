package graphopt

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/genomepack/vcfile/core"
)

func intPayload(values ...int64) (sizes []uint32, data []byte) {
	for _, v := range values {
		start := len(data)
		data = core.AppendVarint(data, v)
		sizes = append(sizes, uint32(len(data)-start))
	}
	return sizes, data
}

func TestDiscoverSizeGraphLinksEqualStreams(t *testing.T) {
	samples := []Sample{
		{Key: 0, Sizes: []uint32{1, 1, 2}},
		{Key: 1, Sizes: []uint32{1, 1, 2}},
		{Key: 2, Sizes: []uint32{4, 4, 4}},
	}
	g := DiscoverSizeGraph(samples)
	require.NoError(t, g.Validate())
	require.Len(t, g.Edges, 1)
	require.Equal(t, Edge{Src: 0, Dst: 1, Relation: RelIdentity}, g.Edges[0])
	require.True(t, g.IsTarget(1))
	require.False(t, g.IsTarget(2))
}

func TestDiscoverDataGraphIdentityAndOffset(t *testing.T) {
	sizesA, dataA := intPayload(10, 20, 30)
	sizesB, dataB := intPayload(10, 20, 30)
	sizesC, dataC := intPayload(15, 25, 35)

	samples := []Sample{
		{Key: 0, Sizes: sizesA, Data: dataA, Numeric: true},
		{Key: 1, Sizes: sizesB, Data: dataB, Numeric: true},
		{Key: 2, Sizes: sizesC, Data: dataC, Numeric: true},
	}
	g := DiscoverDataGraph(samples)
	require.NoError(t, g.Validate())
	require.Len(t, g.Edges, 2)

	identity, ok := g.EdgeFor(1)
	require.True(t, ok)
	require.Equal(t, RelIdentity, identity.Relation)
	require.Equal(t, 0, identity.Src)

	offset, ok := g.EdgeFor(2)
	require.True(t, ok)
	require.Equal(t, RelOffset, offset.Relation)
	require.Equal(t, int64(5), offset.Param)
	require.Equal(t, 0, offset.Src)
}

func TestApplyReconstructsTarget(t *testing.T) {
	sizesA, dataA := intPayload(100, -7, 0, 1<<40)
	sizesB, dataB := intPayload(103, -4, 3, 1<<40+3)

	samples := []Sample{
		{Key: 0, Sizes: sizesA, Data: dataA, Numeric: true},
		{Key: 1, Sizes: sizesB, Data: dataB, Numeric: true},
	}
	g := DiscoverDataGraph(samples)
	edge, ok := g.EdgeFor(1)
	require.True(t, ok)

	gotSizes, gotData, err := Apply(edge, sizesA, dataA)
	require.NoError(t, err)
	require.Equal(t, sizesB, gotSizes)
	require.Equal(t, dataB, gotData)
}

func TestDiscoverDataGraphRejectsNonFunctionalPairs(t *testing.T) {
	// Same element count but no single constant maps one onto the other.
	sizesA, dataA := intPayload(1, 2, 3)
	sizesB, dataB := intPayload(2, 4, 6)

	samples := []Sample{
		{Key: 0, Sizes: sizesA, Data: dataA, Numeric: true},
		{Key: 1, Sizes: sizesB, Data: dataB, Numeric: true},
	}
	g := DiscoverDataGraph(samples)
	require.Empty(t, g.Edges)
}

func TestValidateRejectsDoubleTarget(t *testing.T) {
	g := &Graph{Edges: []Edge{
		{Src: 0, Dst: 2, Relation: RelIdentity},
		{Src: 1, Dst: 2, Relation: RelIdentity},
	}}
	require.Error(t, g.Validate())
}

func TestValidateRejectsChains(t *testing.T) {
	g := &Graph{Edges: []Edge{
		{Src: 0, Dst: 1, Relation: RelIdentity},
		{Src: 1, Dst: 2, Relation: RelIdentity},
	}}
	require.Error(t, g.Validate())
}

func TestEncodeDecodeGraphsRoundTrip(t *testing.T) {
	sizeGraph := &Graph{Edges: []Edge{{Src: 0, Dst: 3, Relation: RelIdentity}}}
	dataGraph := &Graph{Edges: []Edge{{Src: 1, Dst: 4, Relation: RelOffset, Param: -12}}}

	blob := EncodeGraphs(sizeGraph, dataGraph)
	gotSize, gotData, err := DecodeGraphs(blob)
	require.NoError(t, err)
	require.Equal(t, sizeGraph.Edges, gotSize.Edges)
	require.Equal(t, dataGraph.Edges, gotData.Edges)
}
