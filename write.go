package vcfile

import (
	"context"
	"encoding/binary"
	"math"

	"go.opentelemetry.io/otel/attribute"

	"github.com/genomepack/vcfile/archive"
	"github.com/genomepack/vcfile/buffer"
	"github.com/genomepack/vcfile/core"
	"github.com/genomepack/vcfile/graphopt"
	"github.com/genomepack/vcfile/queue"
	"github.com/genomepack/vcfile/rangecoder"
	"github.com/genomepack/vcfile/router"
	"github.com/genomepack/vcfile/textpp"
)

// streamPair tracks one substream's archive ids and how many packages
// have been enqueued for it; the next package takes parts as its part
// index.
type streamPair struct {
	sizeID uint32
	dataID uint32
	parts  int
}

type writeState struct {
	aw    *archive.Writer
	coder *queue.CoderSection
	pipe  *router.Pipeline
	q     *queue.Queue[*router.Package]
	pool  *queue.Pool[*router.Package]

	started   bool
	optimized bool
	sizeGraph *graphopt.Graph
	dataGraph *graphopt.Graph

	dbStores [core.NoDBFields]*buffer.Store
	dbPairs  [core.NoDBFields]streamPair

	keyStores []*buffer.Store
	keyPairs  []streamPair

	metaIDs map[string]uint32

	prevChrom string
	prevPos   int64
}

// freeze validates the schema, registers every archive stream, and
// launches the worker pool. It runs exactly once, on the first
// SetVariant (or on Close for an empty archive); after it the schema is
// immutable.
func (f *CompressedFile) freeze() error {
	w := f.w
	if w.started {
		return nil
	}
	if f.noKeys > 0 && len(f.keys) == 0 {
		return core.SchemaErrorf("SetVariant before SetKeys (%d keys declared)", f.noKeys)
	}
	if f.gtID >= 0 {
		if f.keys[f.gtID].Kind != core.KindFormat {
			return core.SchemaErrorf("genotype key %d is not a FORMAT key", f.gtID)
		}
		if f.noSamples < 1 {
			return core.SchemaErrorf("genotype key designated but no samples declared")
		}
	}

	for i := 0; i < core.NoDBFields; i++ {
		sizeName, dataName := dbPairNames(i)
		w.dbPairs[i] = streamPair{
			sizeID: w.aw.RegisterStream(sizeName),
			dataID: w.aw.RegisterStream(dataName),
		}
		w.dbStores[i] = buffer.NewStore(buffer.KindDB)
	}

	w.keyStores = make([]*buffer.Store, f.noKeys)
	w.keyPairs = make([]streamPair, f.noKeys)
	for k := 0; k < f.noKeys; k++ {
		sizeName, dataName := keyPairNames(k)
		w.keyPairs[k] = streamPair{
			sizeID: w.aw.RegisterStream(sizeName),
			dataID: w.aw.RegisterStream(dataName),
		}
		kind := buffer.KindOrdinary
		if k == f.gtID {
			kind = buffer.KindGT
		}
		w.keyStores[k] = buffer.NewStore(kind)
	}

	w.metaIDs = make(map[string]uint32)
	for _, name := range []string{
		streamMeta, streamHeader, streamSamples, streamKeys,
		streamSchema, streamParams, streamDict, streamGraphs,
	} {
		w.metaIDs[name] = w.aw.RegisterStream(name)
	}

	w.pipe = &router.Pipeline{
		Dict:   textpp.NewDictionary(),
		Text:   &queue.TextSection{},
		Coders: rangecoder.NewCoders(),
		PBWT:   f.pbwtState,
	}
	w.q = queue.New[*router.Package]()
	w.pool = queue.Run(context.Background(), w.q, f.prm.NoThreads, f.compressWorker)

	w.started = true
	f.logger.Debug("schema frozen", "no_keys", f.noKeys, "gt_key", f.gtID, "no_threads", f.prm.NoThreads)
	return nil
}

// SetVariant appends one variant record: the fixed database tuple plus
// one field value per declared key.
func (f *CompressedFile) SetVariant(ctx context.Context, desc *core.VariantDesc, fields []core.FieldDesc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.st != stateWriting {
		return f.fail(core.StateErrorf("SetVariant in state %s", f.st))
	}
	if f.lastErr != nil {
		return f.lastErr
	}
	if len(fields) != f.noKeys {
		return f.fail(core.SchemaErrorf("SetVariant got %d fields, want %d", len(fields), f.noKeys))
	}
	if err := f.freeze(); err != nil {
		return f.fail(err)
	}

	w := f.w
	if err := f.stageDB(desc); err != nil {
		return f.fail(err)
	}
	for k := range fields {
		if err := f.stageField(k, &fields[k]); err != nil {
			return f.fail(err)
		}
	}
	f.noVariants++

	for i := 0; i < core.NoDBFields; i++ {
		if w.dbStores[i].Flushed() {
			f.flushDB(ctx, i)
		}
	}
	for k := 0; k < f.noKeys; k++ {
		if w.keyStores[k].Flushed() {
			f.flushKey(ctx, k, false)
		}
	}
	return nil
}

// stageDB splits the database tuple into the six fixed substreams. The
// position stream is delta-coded against the previous position, with
// the delta base reset to zero whenever the chromosome changes.
func (f *CompressedFile) stageDB(desc *core.VariantDesc) error {
	w := f.w

	if desc.Chrom != w.prevChrom {
		w.prevChrom = desc.Chrom
		w.prevPos = 0
	}
	delta := desc.Pos - w.prevPos
	w.prevPos = desc.Pos

	w.dbStores[core.DBChrom].Append(uint32(len(desc.Chrom)), []byte(desc.Chrom))

	posPayload := core.AppendVarint(nil, delta)
	w.dbStores[core.DBPos].Append(uint32(len(posPayload)), posPayload)

	w.dbStores[core.DBID].Append(uint32(len(desc.ID)), []byte(desc.ID))
	w.dbStores[core.DBRef].Append(uint32(len(desc.Ref)), []byte(desc.Ref))
	w.dbStores[core.DBAlt].Append(uint32(len(desc.Alt)), []byte(desc.Alt))

	var qual [4]byte
	binary.LittleEndian.PutUint32(qual[:], math.Float32bits(desc.Qual))
	w.dbStores[core.DBQual].Append(4, qual[:])
	return nil
}

func (f *CompressedFile) stageField(k int, fd *core.FieldDesc) error {
	w := f.w
	if k == f.gtID {
		if f.pbwtState == nil {
			return core.StateErrorf("genotype field staged before InitPBWT")
		}
		payload, err := encodeGT(fd, f.noHaplotypes())
		if err != nil {
			return err
		}
		w.keyStores[k].Append(uint32(len(payload)), payload)
		return nil
	}

	payload, err := encodeField(f.keys[k], fd)
	if err != nil {
		return err
	}
	w.keyStores[k].Append(uint32(len(payload)), payload)
	return nil
}

func (f *CompressedFile) flushDB(ctx context.Context, dbID int) {
	w := f.w
	sizes, data := w.dbStores[dbID].Take()
	f.enqueue(ctx, router.ForDB(dbID), dbID, &w.dbPairs[dbID], sizes, data, false)
}

func (f *CompressedFile) flushKey(ctx context.Context, k int, skipSizes bool) {
	w := f.w
	sizes, data := w.keyStores[k].Take()
	f.enqueue(ctx, router.ForKey(f.keys[k], k == f.gtID), k, &w.keyPairs[k], sizes, data, skipSizes)
}

// enqueue stages one package for the worker pool. Dictionary training
// happens here, on the producer goroutine, so the learned table depends
// only on variant order and never on worker scheduling.
func (f *CompressedFile) enqueue(ctx context.Context, route router.Route, keyID int, pair *streamPair, sizes []uint32, data []byte, skipSizes bool) {
	w := f.w
	if route.Text && !w.pipe.Dict.Trained() {
		w.pipe.Text.Lock()
		w.pipe.Dict.Learn(buffer.Slices(sizes, data))
		w.pipe.Text.Unlock()
	}

	pkg := &router.Package{
		Route:      route,
		KeyID:      keyID,
		SizeStream: pair.sizeID,
		DataStream: pair.dataID,
		PartIndex:  pair.parts,
		Sizes:      sizes,
		Data:       data,
		SkipSizes:  skipSizes,
	}
	pair.parts++

	_, span := f.tracer.Start(ctx, "CompressedFile.enqueuePackage")
	span.SetAttributes(
		attribute.Int("key_id", keyID),
		attribute.Int("part_index", pkg.PartIndex),
		attribute.Int("raw_bytes", len(data)),
	)
	span.End()

	w.q.Push(pkg)
}

// compressWorker is the pool body: compress one package under the coder
// section for its data stream, then append its parts in part order. On
// a cancelled pool the section is still entered and left, so waiters on
// later parts of the same stream are never stranded.
func (f *CompressedFile) compressWorker(ctx context.Context, pkg *router.Package) error {
	w := f.w
	w.coder.Enter(pkg.DataStream, pkg.PartIndex)
	defer w.coder.Leave(pkg.DataStream, pkg.PartIndex)

	if err := ctx.Err(); err != nil {
		return err
	}

	sizePart, dataPart, err := w.pipe.Compress(pkg)
	if err != nil {
		return err
	}

	if !pkg.SkipSizes {
		if _, err := w.aw.AppendPart(pkg.SizeStream, sizePart); err != nil {
			return err
		}
		f.recordPart(len(sizePart))
	}
	if _, err := w.aw.AppendPart(pkg.DataStream, dataPart); err != nil {
		return err
	}
	f.recordPart(len(dataPart))

	buffer.Recycle(pkg.Sizes, pkg.Data)
	pkg.Sizes, pkg.Data = nil, nil
	return nil
}

// OptimizeDB installs (or discovers) the substream redundancy graphs.
// With both arguments empty the graphs are computed from the buffered
// samples: only keys that have never flushed a part participate, so a
// target stream is guaranteed to have no raw parts on disk.
func (f *CompressedFile) OptimizeDB(sizeGraph, dataGraph *graphopt.Graph) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.st != stateWriting {
		return f.fail(core.StateErrorf("OptimizeDB in state %s", f.st))
	}
	if f.w.optimized {
		return f.fail(core.StateErrorf("OptimizeDB called twice"))
	}

	_, span := f.tracer.Start(context.Background(), "CompressedFile.OptimizeDB")
	defer span.End()

	if sizeGraph == nil {
		sizeGraph = &graphopt.Graph{}
	}
	if dataGraph == nil {
		dataGraph = &graphopt.Graph{}
	}
	if sizeGraph.Empty() && dataGraph.Empty() {
		sizeGraph, dataGraph = f.discoverGraphs()
	} else {
		if err := sizeGraph.Validate(); err != nil {
			return f.fail(err)
		}
		if err := dataGraph.Validate(); err != nil {
			return f.fail(err)
		}
	}

	span.SetAttributes(
		attribute.Int("size_edges", len(sizeGraph.Edges)),
		attribute.Int("data_edges", len(dataGraph.Edges)),
	)
	f.w.sizeGraph = sizeGraph
	f.w.dataGraph = dataGraph
	f.w.optimized = true
	return nil
}

// discoverGraphs samples every never-flushed, non-genotype key store
// and runs both discovery passes.
func (f *CompressedFile) discoverGraphs() (*graphopt.Graph, *graphopt.Graph) {
	if !f.w.started {
		return &graphopt.Graph{}, &graphopt.Graph{}
	}
	var samples []graphopt.Sample
	for k := 0; k < f.noKeys; k++ {
		if k == f.gtID || f.w.keyPairs[k].parts > 0 {
			continue
		}
		sizes, data := f.w.keyStores[k].Peek()
		if len(sizes) == 0 {
			continue
		}
		samples = append(samples, graphopt.Sample{
			Key:     k,
			Sizes:   sizes,
			Data:    data,
			Numeric: f.keys[k].ValueType == core.ValueInt,
		})
	}
	return graphopt.DiscoverSizeGraph(samples), graphopt.DiscoverDataGraph(samples)
}

// closeWriting drains everything: run the optimizer if the caller
// didn't, flush residual buffers (skipping graph targets), join the
// pool, then write the structural metadata streams and the directory.
func (f *CompressedFile) closeWriting() error {
	ctx, span := f.tracer.Start(context.Background(), "CompressedFile.Close")
	defer span.End()

	if err := f.freeze(); err != nil {
		return err
	}
	w := f.w

	if !w.optimized {
		w.sizeGraph, w.dataGraph = f.discoverGraphs()
		w.optimized = true
	}

	for i := 0; i < core.NoDBFields; i++ {
		if w.dbStores[i].Len() > 0 {
			f.flushDB(ctx, i)
		}
	}
	for k := 0; k < f.noKeys; k++ {
		if w.dataGraph.IsTarget(k) {
			buffer.Recycle(w.keyStores[k].Take())
			continue
		}
		if w.keyStores[k].Len() == 0 {
			continue
		}
		f.flushKey(ctx, k, w.sizeGraph.IsTarget(k))
	}

	w.q.MarkProducerDone()
	if err := w.pool.Wait(); err != nil {
		f.logger.Error("worker pool failed", "error", err)
		return err
	}

	metaParts := []struct {
		name string
		blob []byte
	}{
		{streamMeta, f.meta},
		{streamHeader, f.header},
		{streamSamples, encodeSamples(f.samples)},
		{streamKeys, encodeKeys(f.keys)},
		{streamSchema, f.encodeSchema()},
		{streamParams, f.prm.Encode()},
		{streamDict, w.pipe.Dict.Encode()},
		{streamGraphs, graphopt.EncodeGraphs(w.sizeGraph, w.dataGraph)},
	}
	for _, mp := range metaParts {
		if _, err := w.aw.AppendPart(w.metaIDs[mp.name], mp.blob); err != nil {
			return err
		}
	}

	if err := w.aw.Finalize(); err != nil {
		return err
	}
	if err := f.file.Close(); err != nil {
		return core.IOErrorf(err, "close archive %q", f.path)
	}

	span.SetAttributes(attribute.Int64("no_variants", f.noVariants))
	f.logger.Info("archive closed", "path", f.path, "no_variants", f.noVariants)
	return nil
}
