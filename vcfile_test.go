package vcfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/genomepack/vcfile/archive"
	"github.com/genomepack/vcfile/core"
	"github.com/genomepack/vcfile/graphopt"
	"github.com/genomepack/vcfile/queue"
	"github.com/genomepack/vcfile/rangecoder"
	"github.com/genomepack/vcfile/router"
	"github.com/genomepack/vcfile/textpp"
)

func tempArchive(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.gts")
}

func openArchive(t *testing.T, path string) *archive.Reader {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	info, err := f.Stat()
	require.NoError(t, err)
	ar, err := archive.OpenReader(f, info.Size())
	require.NoError(t, err)
	return ar
}

func TestRoundTripFullSchema(t *testing.T) {
	path := tempArchive(t)
	ctx := context.Background()

	keys := []core.KeyDesc{
		{KeyID: 0, Kind: core.KindInfo, ValueType: core.ValueInt, Arity: 1},
		{KeyID: 1, Kind: core.KindInfo, ValueType: core.ValueString, Arity: 1},
		{KeyID: 2, Kind: core.KindFormat, ValueType: core.ValueReal, Arity: 1},
		{KeyID: 3, Kind: core.KindFormat, ValueType: core.ValueInt, Arity: 1},
	}

	w := New()
	require.NoError(t, w.OpenForWriting(path, len(keys)))
	require.NoError(t, w.SetMeta([]byte("produced by round-trip test")))
	require.NoError(t, w.SetHeader([]byte("##fileformat=VCFv4.3\n")))
	require.NoError(t, w.AddSamples([]string{"NA00001", "NA00002"}))
	require.NoError(t, w.SetKeys(keys))
	require.NoError(t, w.SetPloidy(2))
	require.NoError(t, w.SetNoSamples(2))
	require.NoError(t, w.SetGTID(3))
	require.NoError(t, w.SetNeglectLimit(12))
	require.NoError(t, w.InitPBWT())

	const n = 50
	var descs []core.VariantDesc
	var allFields [][]core.FieldDesc
	for i := 0; i < n; i++ {
		desc := core.VariantDesc{
			Chrom: fmt.Sprintf("%d", 1+i/25),
			Pos:   int64(1000 + i*37),
			ID:    fmt.Sprintf("rs%06d", i),
			Ref:   "A",
			Alt:   "T",
			Qual:  float32(i) * 0.25,
		}
		fields := []core.FieldDesc{
			{KeyID: 0, Present: true, Ints: []int64{int64(i * 10)}},
			{KeyID: 1, Present: true, Bytes: [][]byte{[]byte(fmt.Sprintf("missense_variant|gene%d", i%3))}},
			{KeyID: 2, Present: true, Reals: []float64{float64(i) * 0.5, float64(i) * 0.75}},
			{KeyID: 3, Present: true, Ints: []int64{int64(i % 2), 0, 1, int64(i % 3 / 2)}},
		}
		if i%7 == 0 {
			fields[0] = core.FieldDesc{KeyID: 0}
		}
		require.NoError(t, w.SetVariant(ctx, &desc, fields))
		descs = append(descs, desc)
		allFields = append(allFields, fields)
	}
	require.NoError(t, w.Close())

	r := New()
	require.NoError(t, r.OpenForReading(path))
	defer r.Close()

	meta, err := r.GetMeta()
	require.NoError(t, err)
	require.Equal(t, []byte("produced by round-trip test"), meta)
	header, err := r.GetHeader()
	require.NoError(t, err)
	require.Equal(t, []byte("##fileformat=VCFv4.3\n"), header)
	samples, err := r.GetSamples()
	require.NoError(t, err)
	require.Equal(t, []string{"NA00001", "NA00002"}, samples)
	gotKeys, err := r.GetKeys()
	require.NoError(t, err)
	require.Equal(t, keys, gotKeys)
	ploidy, err := r.GetPloidy()
	require.NoError(t, err)
	require.Equal(t, 2, ploidy)
	gtID, err := r.GetGTID()
	require.NoError(t, err)
	require.Equal(t, 3, gtID)
	noSamples, err := r.GetNoSamples()
	require.NoError(t, err)
	require.Equal(t, 2, noSamples)
	neglect, err := r.GetNeglectLimit()
	require.NoError(t, err)
	require.Equal(t, 12, neglect)
	noVariants, err := r.GetNoVariants()
	require.NoError(t, err)
	require.Equal(t, int64(n), noVariants)
	require.Equal(t, w.GetArchiveID(), r.GetArchiveID())

	for i := 0; i < n; i++ {
		var desc core.VariantDesc
		fields := make([]core.FieldDesc, len(keys))
		ok, err := r.GetVariant(ctx, &desc, fields)
		require.NoError(t, err, "variant %d", i)
		require.True(t, ok, "variant %d", i)
		require.Equal(t, descs[i], desc, "variant %d", i)
		require.Equal(t, allFields[i], fields, "variant %d", i)
	}
	var desc core.VariantDesc
	ok, err := r.GetVariant(ctx, &desc, make([]core.FieldDesc, len(keys)))
	require.NoError(t, err)
	require.False(t, ok, "reader must report end of stream")
}

// S1: a single INFO integer key holding the same value twice compresses
// and round-trips.
func TestScenarioConstantIntKey(t *testing.T) {
	path := tempArchive(t)
	ctx := context.Background()
	keys := []core.KeyDesc{{KeyID: 0, Kind: core.KindInfo, ValueType: core.ValueInt, Arity: 1}}

	w := New()
	require.NoError(t, w.OpenForWriting(path, 1))
	require.NoError(t, w.SetKeys(keys))
	for i := 0; i < 2; i++ {
		desc := core.VariantDesc{Chrom: "1", Pos: int64(100 + i)}
		fields := []core.FieldDesc{{KeyID: 0, Present: true, Ints: []int64{42}}}
		require.NoError(t, w.SetVariant(ctx, &desc, fields))
	}
	require.NoError(t, w.Close())

	r := New()
	require.NoError(t, r.OpenForReading(path))
	defer r.Close()
	for i := 0; i < 2; i++ {
		var desc core.VariantDesc
		fields := make([]core.FieldDesc, 1)
		ok, err := r.GetVariant(ctx, &desc, fields)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []int64{42}, fields[0].Ints)
	}
}

// S2: positions are stored as deltas against the previous position,
// with the base reset to zero on every chromosome change.
func TestScenarioPositionDeltas(t *testing.T) {
	path := tempArchive(t)
	ctx := context.Background()

	w := New()
	require.NoError(t, w.OpenForWriting(path, 0))
	chroms := []string{"1", "1", "2"}
	positions := []int64{100, 200, 100}
	for i := range chroms {
		desc := core.VariantDesc{Chrom: chroms[i], Pos: positions[i]}
		require.NoError(t, w.SetVariant(ctx, &desc, nil))
	}
	require.NoError(t, w.Close())

	ar := openArchive(t, path)
	id, ok := ar.StreamID(core.DBStreamNameData[core.DBPos])
	require.True(t, ok)
	require.Equal(t, 1, ar.NumParts(id))
	part, err := ar.ReadPart(id, 0)
	require.NoError(t, err)

	pipe := &router.Pipeline{Dict: textpp.NewDictionary(), Text: &queue.TextSection{}, Coders: rangecoder.NewCoders()}
	raw, err := pipe.DecompressData(part, router.ForDB(core.DBPos), nil)
	require.NoError(t, err)

	var deltas []int64
	pos := 0
	for pos < len(raw) {
		var v int64
		v, pos, err = core.ReadVarint(raw, pos)
		require.NoError(t, err)
		deltas = append(deltas, v)
	}
	require.Equal(t, []int64{100, 100, 100}, deltas)

	r := New()
	require.NoError(t, r.OpenForReading(path))
	defer r.Close()
	for i := range chroms {
		var desc core.VariantDesc
		ok, err := r.GetVariant(ctx, &desc, nil)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, chroms[i], desc.Chrom)
		require.Equal(t, positions[i], desc.Pos)
	}
}

// S3: two keys with identical size streams share one materialized size
// stream; the target's is never written.
func TestScenarioSizeGraphElision(t *testing.T) {
	path := tempArchive(t)
	ctx := context.Background()
	keys := []core.KeyDesc{
		{KeyID: 0, Kind: core.KindInfo, ValueType: core.ValueInt, Arity: 1},
		{KeyID: 1, Kind: core.KindInfo, ValueType: core.ValueInt, Arity: 1},
	}

	w := New()
	require.NoError(t, w.OpenForWriting(path, 2))
	require.NoError(t, w.SetKeys(keys))

	a := []int64{1, 5, 3}
	b := []int64{2, 1, 9}
	for i := 0; i < 3; i++ {
		desc := core.VariantDesc{Chrom: "1", Pos: int64(100 * (i + 1))}
		fields := []core.FieldDesc{
			{KeyID: 0, Present: true, Ints: []int64{a[i]}},
			{KeyID: 1, Present: true, Ints: []int64{b[i]}},
		}
		require.NoError(t, w.SetVariant(ctx, &desc, fields))
	}
	require.NoError(t, w.Close())

	ar := openArchive(t, path)
	sizeID, ok := ar.StreamID("key_1_size")
	require.True(t, ok)
	require.Zero(t, ar.NumParts(sizeID), "size-graph target must not be materialized")
	dataID, ok := ar.StreamID("key_1_data")
	require.True(t, ok)
	require.Equal(t, 1, ar.NumParts(dataID), "target's data is its own")

	r := New()
	require.NoError(t, r.OpenForReading(path))
	defer r.Close()
	for i := 0; i < 3; i++ {
		var desc core.VariantDesc
		fields := make([]core.FieldDesc, 2)
		ok, err := r.GetVariant(ctx, &desc, fields)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []int64{a[i]}, fields[0].Ints)
		require.Equal(t, []int64{b[i]}, fields[1].Ints)
	}
}

// A data-graph identity edge elides both target streams.
func TestScenarioDataGraphElision(t *testing.T) {
	path := tempArchive(t)
	ctx := context.Background()
	keys := []core.KeyDesc{
		{KeyID: 0, Kind: core.KindInfo, ValueType: core.ValueInt, Arity: 1},
		{KeyID: 1, Kind: core.KindInfo, ValueType: core.ValueInt, Arity: 1},
	}

	w := New()
	require.NoError(t, w.OpenForWriting(path, 2))
	require.NoError(t, w.SetKeys(keys))
	values := []int64{7, 11, 13, 17}
	for _, v := range values {
		desc := core.VariantDesc{Chrom: "1", Pos: v}
		fields := []core.FieldDesc{
			{KeyID: 0, Present: true, Ints: []int64{v}},
			{KeyID: 1, Present: true, Ints: []int64{v}},
		}
		require.NoError(t, w.SetVariant(ctx, &desc, fields))
	}
	require.NoError(t, w.Close())

	ar := openArchive(t, path)
	for _, name := range []string{"key_1_size", "key_1_data"} {
		id, ok := ar.StreamID(name)
		require.True(t, ok)
		require.Zero(t, ar.NumParts(id), "data-graph target stream %s must not be materialized", name)
	}

	r := New()
	require.NoError(t, r.OpenForReading(path))
	defer r.Close()
	for _, v := range values {
		var desc core.VariantDesc
		fields := make([]core.FieldDesc, 2)
		ok, err := r.GetVariant(ctx, &desc, fields)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []int64{v}, fields[0].Ints)
		require.Equal(t, []int64{v}, fields[1].Ints)
	}
}

// S4: an all-reference genotype stream compresses to well under 1% of
// its raw size.
func TestScenarioGenotypeCompression(t *testing.T) {
	path := tempArchive(t)
	ctx := context.Background()
	keys := []core.KeyDesc{{KeyID: 0, Kind: core.KindFormat, ValueType: core.ValueInt, Arity: 1}}

	w := New()
	require.NoError(t, w.OpenForWriting(path, 1))
	require.NoError(t, w.SetKeys(keys))
	require.NoError(t, w.SetPloidy(2))
	require.NoError(t, w.SetNoSamples(4))
	require.NoError(t, w.SetGTID(0))
	require.NoError(t, w.InitPBWT())

	const n = 1000
	rawBytes := 0
	for i := 0; i < n; i++ {
		desc := core.VariantDesc{Chrom: "1", Pos: int64(i)}
		fields := []core.FieldDesc{
			{KeyID: 0, Present: true, Ints: make([]int64, 8)}, // all-reference
		}
		rawBytes += 8
		require.NoError(t, w.SetVariant(ctx, &desc, fields))
	}
	require.NoError(t, w.Close())

	ar := openArchive(t, path)
	id, ok := ar.StreamID("key_0_data")
	require.True(t, ok)
	require.Equal(t, 1, ar.NumParts(id))
	part, err := ar.ReadPart(id, 0)
	require.NoError(t, err)
	require.Less(t, len(part), rawBytes/100, "genotype stream should compress below 1%% of raw")

	r := New()
	require.NoError(t, r.OpenForReading(path))
	defer r.Close()
	for i := 0; i < n; i++ {
		var desc core.VariantDesc
		fields := make([]core.FieldDesc, 1)
		ok, err := r.GetVariant(ctx, &desc, fields)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, make([]int64, 8), fields[0].Ints)
	}
}

// S5: a truncated archive fails to open with a format error.
func TestScenarioTruncatedArchive(t *testing.T) {
	path := tempArchive(t)
	ctx := context.Background()

	w := New()
	require.NoError(t, w.OpenForWriting(path, 0))
	desc := core.VariantDesc{Chrom: "1", Pos: 1}
	require.NoError(t, w.SetVariant(ctx, &desc, nil))
	require.NoError(t, w.Close())

	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	truncated := filepath.Join(t.TempDir(), "truncated.gts")
	require.NoError(t, os.WriteFile(truncated, blob[:len(blob)-16], 0o644))

	r := New()
	err = r.OpenForReading(truncated)
	require.ErrorIs(t, err, core.ErrFormat)
}

// S6: the same input compressed with 1 and with 8 threads yields
// stream-by-stream identical archives.
func TestScenarioThreadedDeterminism(t *testing.T) {
	ctx := context.Background()
	keys := []core.KeyDesc{
		{KeyID: 0, Kind: core.KindInfo, ValueType: core.ValueInt, Arity: 1},
		{KeyID: 1, Kind: core.KindInfo, ValueType: core.ValueString, Arity: 1},
		{KeyID: 2, Kind: core.KindFormat, ValueType: core.ValueInt, Arity: 1},
	}

	build := func(threads int) string {
		path := filepath.Join(t.TempDir(), fmt.Sprintf("threads%d.gts", threads))
		w := New()
		require.NoError(t, w.OpenForWriting(path, len(keys)))
		require.NoError(t, w.SetKeys(keys))
		require.NoError(t, w.SetPloidy(2))
		require.NoError(t, w.SetNoSamples(2))
		require.NoError(t, w.SetGTID(2))
		require.NoError(t, w.SetNoThreads(threads))
		require.NoError(t, w.InitPBWT())
		for i := 0; i < 10000; i++ {
			desc := core.VariantDesc{
				Chrom: fmt.Sprintf("%d", 1+i/4000),
				Pos:   int64(i * 3),
				ID:    fmt.Sprintf("rs%d", i),
				Ref:   "G",
				Alt:   "C",
				Qual:  float32(i % 100),
			}
			fields := []core.FieldDesc{
				{KeyID: 0, Present: true, Ints: []int64{int64(i % 50)}},
				{KeyID: 1, Present: true, Bytes: [][]byte{[]byte(fmt.Sprintf("synonymous_variant|gene%d", i%5))}},
				{KeyID: 2, Present: true, Ints: []int64{int64(i % 2), 0, 1, 0}},
			}
			require.NoError(t, w.SetVariant(ctx, &desc, fields))
		}
		require.NoError(t, w.Close())
		return path
	}

	single := openArchive(t, build(1))
	threaded := openArchive(t, build(8))

	names := single.StreamNames()
	require.Equal(t, names, threaded.StreamNames())
	for _, name := range names {
		if name == streamSchema {
			continue // carries the per-archive random instance id
		}
		idS, ok := single.StreamID(name)
		require.True(t, ok)
		idT, ok := threaded.StreamID(name)
		require.True(t, ok)
		require.Equal(t, single.NumParts(idS), threaded.NumParts(idT), "stream %s", name)
		for part := 0; part < single.NumParts(idS); part++ {
			a, err := single.ReadPart(idS, part)
			require.NoError(t, err)
			b, err := threaded.ReadPart(idT, part)
			require.NoError(t, err)
			require.Equal(t, a, b, "stream %s part %d", name, part)
		}
	}
}

func TestStateMachine(t *testing.T) {
	path := tempArchive(t)
	ctx := context.Background()

	unopened := New()
	_, err := unopened.GetVariant(ctx, &core.VariantDesc{}, nil)
	require.ErrorIs(t, err, core.ErrState)

	f := New()
	require.NoError(t, f.OpenForWriting(path, 0))
	require.ErrorIs(t, f.OpenForReading(path), core.ErrState)

	require.NoError(t, f.SetVariant(ctx, &core.VariantDesc{Chrom: "1", Pos: 1}, nil))
	require.ErrorIs(t, f.SetPloidy(2), core.ErrState)

	require.NoError(t, f.Close())
	require.ErrorIs(t, f.Close(), core.ErrState)
}

func TestOpenForWritingRefusesExisting(t *testing.T) {
	path := tempArchive(t)
	require.NoError(t, os.WriteFile(path, []byte("occupied"), 0o644))
	f := New()
	require.ErrorIs(t, f.OpenForWriting(path, 0), core.ErrIO)
}

func TestOptimizeDBExplicitGraphs(t *testing.T) {
	path := tempArchive(t)
	ctx := context.Background()
	keys := []core.KeyDesc{
		{KeyID: 0, Kind: core.KindInfo, ValueType: core.ValueInt, Arity: 1},
		{KeyID: 1, Kind: core.KindInfo, ValueType: core.ValueInt, Arity: 1},
	}

	w := New()
	require.NoError(t, w.OpenForWriting(path, 2))
	require.NoError(t, w.SetKeys(keys))
	for _, v := range []int64{3, 9, 27} {
		desc := core.VariantDesc{Chrom: "1", Pos: v}
		fields := []core.FieldDesc{
			{KeyID: 0, Present: true, Ints: []int64{v}},
			{KeyID: 1, Present: true, Ints: []int64{v}},
		}
		require.NoError(t, w.SetVariant(ctx, &desc, fields))
	}

	sizeGraph := &graphopt.Graph{Edges: []graphopt.Edge{{Src: 0, Dst: 1, Relation: graphopt.RelIdentity}}}
	dataGraph := &graphopt.Graph{Edges: []graphopt.Edge{{Src: 0, Dst: 1, Relation: graphopt.RelIdentity}}}
	require.NoError(t, w.OptimizeDB(sizeGraph, dataGraph))
	require.ErrorIs(t, w.OptimizeDB(nil, nil), core.ErrState)
	require.NoError(t, w.Close())

	r := New()
	require.NoError(t, r.OpenForReading(path))
	defer r.Close()
	for _, v := range []int64{3, 9, 27} {
		var desc core.VariantDesc
		fields := make([]core.FieldDesc, 2)
		ok, err := r.GetVariant(ctx, &desc, fields)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []int64{v}, fields[1].Ints)
	}
}

func TestStatsAndSpans(t *testing.T) {
	path := tempArchive(t)
	ctx := context.Background()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())

	w := New(WithTracer(tp.Tracer("vcfile-test")))
	require.NoError(t, w.OpenForWriting(path, 0))
	for i := 0; i < 10; i++ {
		desc := core.VariantDesc{Chrom: "1", Pos: int64(i)}
		require.NoError(t, w.SetVariant(ctx, &desc, nil))
	}
	require.NoError(t, w.Close())

	stats := w.GetStats()
	require.Positive(t, stats.NoParts)
	require.Positive(t, stats.P50)
	require.LessOrEqual(t, stats.P50, stats.P99)

	var names []string
	for _, span := range exporter.GetSpans() {
		names = append(names, span.Name)
	}
	require.Contains(t, names, "CompressedFile.Close")
	require.Contains(t, names, "CompressedFile.enqueuePackage")
}
