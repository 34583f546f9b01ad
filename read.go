package vcfile

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/genomepack/vcfile/archive"
	"github.com/genomepack/vcfile/core"
	"github.com/genomepack/vcfile/graphopt"
	"github.com/genomepack/vcfile/params"
	"github.com/genomepack/vcfile/pbwt"
	"github.com/genomepack/vcfile/queue"
	"github.com/genomepack/vcfile/rangecoder"
	"github.com/genomepack/vcfile/router"
	"github.com/genomepack/vcfile/textpp"
)

// Logical pair indices: the six database streams come first, declared
// keys follow.
func dbIdx(dbID int) int   { return dbID }
func keyIdx(keyID int) int { return core.NoDBFields + keyID }

type readState struct {
	ar   *archive.Reader
	pipe *router.Pipeline

	sizeGraph *graphopt.Graph
	dataGraph *graphopt.Graph

	cursors []*streamCursor // indexed by dbIdx/keyIdx

	prep *prefetcher

	variantsRead int64
	prevChrom    string
	prevPos      int64
}

// streamCursor walks one substream part by part, exposing per-variant
// payload slices in variant order.
type streamCursor struct {
	idx    int
	keyID  int // -1 for database streams
	route  router.Route
	sizeID uint32
	dataID uint32

	noParts  int
	nextPart int

	sizes []uint32
	data  []byte
	si    int
	off   int
}

// prepToken orders the re-interleaving of decoded substream parts: one
// token per (pair, part index), consumed by the prefetch pool.
type prepToken struct {
	idx  int
	part int
}

type partResult struct {
	sizes []uint32
	data  []byte
	err   error
}

// prefetcher decodes root, non-genotype parts ahead of the consumer.
// Results are retained for the lifetime of the read so graph-edge
// targets can re-derive their content from a source pair that the
// source's own cursor also reads.
type prefetcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	results map[prepToken]*partResult
	able    map[int]bool
	pool    *queue.Pool[prepToken]
}

func (p *prefetcher) put(tok prepToken, res *partResult) {
	p.mu.Lock()
	p.results[tok] = res
	p.mu.Unlock()
	p.cond.Broadcast()
}

func (p *prefetcher) get(tok prepToken) *partResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.results[tok] == nil {
		p.cond.Wait()
	}
	return p.results[tok]
}

// OpenForReading validates the archive's footer and directory, loads
// the structural metadata streams, rebuilds the codec state (dictionary,
// range-coder models, PBWT) and starts the prefetch pool.
func (f *CompressedFile) OpenForReading(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.st != stateNone {
		return f.fail(core.StateErrorf("OpenForReading in state %s", f.st))
	}

	_, span := f.tracer.Start(context.Background(), "CompressedFile.OpenForReading")
	defer span.End()

	file, err := os.Open(path)
	if err != nil {
		return f.fail(core.IOErrorf(err, "open archive %q", path))
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return f.fail(core.IOErrorf(err, "stat archive %q", path))
	}
	ar, err := archive.OpenReader(file, info.Size())
	if err != nil {
		file.Close()
		return f.fail(err)
	}

	f.path = path
	f.file = file
	f.r = &readState{ar: ar}

	if err := f.loadMetadata(); err != nil {
		file.Close()
		f.r = nil
		return f.fail(err)
	}
	if err := f.buildCursors(); err != nil {
		file.Close()
		f.r = nil
		return f.fail(err)
	}
	f.startPrefetch()

	f.st = stateReading
	span.SetAttributes(attribute.Int64("no_variants", f.noVariants))
	f.logger.Info("archive opened for reading", "path", path, "no_variants", f.noVariants, "archive_id", f.archiveID)
	return nil
}

func (f *CompressedFile) readMetaBlob(name string) ([]byte, error) {
	id, ok := f.r.ar.StreamID(name)
	if !ok {
		return nil, core.FormatErrorf("archive is missing metadata stream %q", name)
	}
	if f.r.ar.NumParts(id) != 1 {
		return nil, core.FormatErrorf("metadata stream %q has %d parts, want 1", name, f.r.ar.NumParts(id))
	}
	return f.r.ar.ReadPart(id, 0)
}

func (f *CompressedFile) loadMetadata() error {
	schemaBlob, err := f.readMetaBlob(streamSchema)
	if err != nil {
		return err
	}
	if err := f.decodeSchema(schemaBlob); err != nil {
		return err
	}

	keysBlob, err := f.readMetaBlob(streamKeys)
	if err != nil {
		return err
	}
	if f.keys, err = decodeKeys(keysBlob); err != nil {
		return err
	}
	if len(f.keys) != f.noKeys {
		return core.FormatErrorf("keys blob declares %d keys, schema %d", len(f.keys), f.noKeys)
	}

	samplesBlob, err := f.readMetaBlob(streamSamples)
	if err != nil {
		return err
	}
	if f.samples, err = decodeSamples(samplesBlob); err != nil {
		return err
	}

	if f.meta, err = f.readMetaBlob(streamMeta); err != nil {
		return err
	}
	if f.header, err = f.readMetaBlob(streamHeader); err != nil {
		return err
	}

	paramsBlob, err := f.readMetaBlob(streamParams)
	if err != nil {
		return err
	}
	prm, err := params.Decode(paramsBlob)
	if err != nil {
		return err
	}
	f.prm.NeglectLimit = prm.NeglectLimit

	dictBlob, err := f.readMetaBlob(streamDict)
	if err != nil {
		return err
	}
	dict, err := textpp.DecodeDictionary(dictBlob)
	if err != nil {
		return err
	}

	graphsBlob, err := f.readMetaBlob(streamGraphs)
	if err != nil {
		return err
	}
	if f.r.sizeGraph, f.r.dataGraph, err = graphopt.DecodeGraphs(graphsBlob); err != nil {
		return err
	}

	if f.gtID >= 0 {
		if f.pbwtState, err = pbwt.Init(f.ploidy, f.noSamples, f.prm.NeglectLimit); err != nil {
			return err
		}
	}

	f.r.pipe = &router.Pipeline{
		Dict:   dict,
		Text:   &queue.TextSection{},
		Coders: rangecoder.NewCoders(),
		PBWT:   f.pbwtState,
	}
	return nil
}

func (f *CompressedFile) buildCursors() error {
	r := f.r
	r.cursors = make([]*streamCursor, core.NoDBFields+f.noKeys)

	resolve := func(name string) (uint32, error) {
		id, ok := r.ar.StreamID(name)
		if !ok {
			return 0, core.FormatErrorf("archive is missing stream %q", name)
		}
		return id, nil
	}

	for i := 0; i < core.NoDBFields; i++ {
		sizeName, dataName := dbPairNames(i)
		sizeID, err := resolve(sizeName)
		if err != nil {
			return err
		}
		dataID, err := resolve(dataName)
		if err != nil {
			return err
		}
		r.cursors[dbIdx(i)] = &streamCursor{
			idx: dbIdx(i), keyID: -1, route: router.ForDB(i),
			sizeID: sizeID, dataID: dataID,
			noParts: r.ar.NumParts(dataID),
		}
	}

	for k := 0; k < f.noKeys; k++ {
		sizeName, dataName := keyPairNames(k)
		sizeID, err := resolve(sizeName)
		if err != nil {
			return err
		}
		dataID, err := resolve(dataName)
		if err != nil {
			return err
		}
		c := &streamCursor{
			idx: keyIdx(k), keyID: k, route: router.ForKey(f.keys[k], k == f.gtID),
			sizeID: sizeID, dataID: dataID,
			noParts: r.ar.NumParts(dataID),
		}
		if edge, ok := r.dataGraph.EdgeFor(k); ok {
			srcName, _ := keyPairNames(edge.Src)
			srcID, err := resolve(srcName)
			if err != nil {
				return err
			}
			// A data-graph target mirrors its source's part sequence.
			c.noParts = r.ar.NumParts(srcID)
		}
		r.cursors[keyIdx(k)] = c
	}
	return nil
}

// startPrefetch enqueues one token per root, non-genotype part and
// launches the decode pool. The producer side finishes immediately;
// workers drain in the background while GetVariant consumes.
func (f *CompressedFile) startPrefetch() {
	r := f.r
	p := &prefetcher{
		results: make(map[prepToken]*partResult),
		able:    make(map[int]bool),
	}
	p.cond = sync.NewCond(&p.mu)

	q := queue.New[prepToken]()
	for _, c := range r.cursors {
		if c.route.GT {
			continue
		}
		if c.keyID >= 0 && (r.sizeGraph.IsTarget(c.keyID) || r.dataGraph.IsTarget(c.keyID)) {
			continue
		}
		p.able[c.idx] = true
		for part := 0; part < c.noParts; part++ {
			q.Push(prepToken{idx: c.idx, part: part})
		}
	}
	q.MarkProducerDone()

	p.pool = queue.Run(context.Background(), q, f.prm.NoThreads, func(_ context.Context, tok prepToken) error {
		sizes, data, err := f.decodePairRaw(r.cursors[tok.idx], tok.part)
		p.put(tok, &partResult{sizes: sizes, data: data, err: err})
		// Decode errors surface through the waiting cursor, not by
		// killing the pool: a dead pool would strand other waiters.
		return nil
	})
	r.prep = p
}

// decodePairRaw reads and decodes one (size, data) part pair straight
// from the archive. Only valid for root pairs; the genotype pair is
// additionally stateful and must be decoded in part order by a single
// caller.
func (f *CompressedFile) decodePairRaw(c *streamCursor, part int) ([]uint32, []byte, error) {
	rawSize, err := f.r.ar.ReadPart(c.sizeID, part)
	if err != nil {
		return nil, nil, err
	}
	sizes, err := f.r.pipe.DecompressSizes(rawSize)
	if err != nil {
		return nil, nil, err
	}
	rawData, err := f.r.ar.ReadPart(c.dataID, part)
	if err != nil {
		return nil, nil, err
	}
	data, err := f.r.pipe.DecompressData(rawData, c.route, sizes)
	if err != nil {
		return nil, nil, err
	}
	return sizes, data, nil
}

// decodedPair returns one decoded part pair for a root cursor, served
// from the prefetcher when the pair participates in it.
func (f *CompressedFile) decodedPair(c *streamCursor, part int) ([]uint32, []byte, error) {
	if f.r.prep != nil && f.r.prep.able[c.idx] {
		res := f.r.prep.get(prepToken{idx: c.idx, part: part})
		return res.sizes, res.data, res.err
	}
	return f.decodePairRaw(c, part)
}

// loadPart advances a cursor to its next part, resolving graph edges:
// a data-graph target re-derives both vectors from its source, a
// size-graph target reads its own data under its source's sizes.
func (f *CompressedFile) loadPart(ctx context.Context, c *streamCursor) error {
	if c.nextPart >= c.noParts {
		return core.FormatErrorf("stream pair %d exhausted after %d parts", c.idx, c.noParts)
	}
	part := c.nextPart

	_, span := f.tracer.Start(ctx, "CompressedFile.loadPart")
	span.SetAttributes(attribute.Int("pair", c.idx), attribute.Int("part_index", part))
	defer span.End()

	r := f.r
	var sizes []uint32
	var data []byte
	var err error

	switch {
	case c.keyID >= 0 && r.dataGraph.IsTarget(c.keyID):
		edge, _ := r.dataGraph.EdgeFor(c.keyID)
		src := r.cursors[keyIdx(edge.Src)]
		srcSizes, srcData, srcErr := f.decodedPair(src, part)
		if srcErr != nil {
			return srcErr
		}
		sizes, data, err = graphopt.Apply(edge, srcSizes, srcData)
	case c.keyID >= 0 && r.sizeGraph.IsTarget(c.keyID):
		edge, _ := r.sizeGraph.EdgeFor(c.keyID)
		src := r.cursors[keyIdx(edge.Src)]
		var srcErr error
		sizes, _, srcErr = f.decodedPair(src, part)
		if srcErr != nil {
			return srcErr
		}
		var rawData []byte
		rawData, err = r.ar.ReadPart(c.dataID, part)
		if err == nil {
			data, err = r.pipe.DecompressData(rawData, c.route, sizes)
		}
	default:
		sizes, data, err = f.decodedPair(c, part)
	}
	if err != nil {
		return err
	}

	c.sizes, c.data = sizes, data
	c.si, c.off = 0, 0
	c.nextPart++
	return nil
}

// next returns the cursor's next per-variant payload slice.
func (f *CompressedFile) next(ctx context.Context, c *streamCursor) ([]byte, error) {
	for c.si >= len(c.sizes) {
		if err := f.loadPart(ctx, c); err != nil {
			return nil, err
		}
	}
	sz := int(c.sizes[c.si])
	if c.off+sz > len(c.data) {
		return nil, core.FormatErrorf("stream pair %d: size vector overruns data", c.idx)
	}
	v := c.data[c.off : c.off+sz]
	c.si++
	c.off += sz
	return v, nil
}

// GetVariant reads the next variant record into desc and fields. It
// returns false with a nil error at end of stream.
func (f *CompressedFile) GetVariant(ctx context.Context, desc *core.VariantDesc, fields []core.FieldDesc) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.st != stateReading {
		return false, f.fail(core.StateErrorf("GetVariant in state %s", f.st))
	}
	if f.lastErr != nil {
		return false, f.lastErr
	}
	r := f.r
	if r.variantsRead >= f.noVariants {
		return false, nil
	}
	if len(fields) != f.noKeys {
		return false, f.fail(core.SchemaErrorf("GetVariant got %d fields, want %d", len(fields), f.noKeys))
	}

	chromB, err := f.next(ctx, r.cursors[dbIdx(core.DBChrom)])
	if err != nil {
		return false, f.fail(err)
	}
	desc.Chrom = string(chromB)
	if desc.Chrom != r.prevChrom {
		r.prevChrom = desc.Chrom
		r.prevPos = 0
	}

	posB, err := f.next(ctx, r.cursors[dbIdx(core.DBPos)])
	if err != nil {
		return false, f.fail(err)
	}
	delta, _, err := core.ReadVarint(posB, 0)
	if err != nil {
		return false, f.fail(core.FormatErrorf("bad position delta: %v", err))
	}
	desc.Pos = r.prevPos + delta
	r.prevPos = desc.Pos

	idB, err := f.next(ctx, r.cursors[dbIdx(core.DBID)])
	if err != nil {
		return false, f.fail(err)
	}
	desc.ID = string(idB)

	refB, err := f.next(ctx, r.cursors[dbIdx(core.DBRef)])
	if err != nil {
		return false, f.fail(err)
	}
	desc.Ref = string(refB)

	altB, err := f.next(ctx, r.cursors[dbIdx(core.DBAlt)])
	if err != nil {
		return false, f.fail(err)
	}
	desc.Alt = string(altB)

	qualB, err := f.next(ctx, r.cursors[dbIdx(core.DBQual)])
	if err != nil {
		return false, f.fail(err)
	}
	if len(qualB) != 4 {
		return false, f.fail(core.FormatErrorf("qual payload is %d bytes, want 4", len(qualB)))
	}
	desc.Qual = math.Float32frombits(binary.LittleEndian.Uint32(qualB))

	for k := 0; k < f.noKeys; k++ {
		payload, err := f.next(ctx, r.cursors[keyIdx(k)])
		if err != nil {
			return false, f.fail(err)
		}
		if k == f.gtID {
			decodeGT(k, payload, &fields[k])
			continue
		}
		if err := decodeField(f.keys[k], payload, &fields[k]); err != nil {
			return false, f.fail(err)
		}
	}

	r.variantsRead++
	return true, nil
}

func (f *CompressedFile) closeReading() error {
	if f.r.prep != nil {
		if err := f.r.prep.pool.Wait(); err != nil {
			f.logger.Error("prefetch pool failed", "error", err)
		}
	}
	if err := f.file.Close(); err != nil {
		return core.IOErrorf(err, "close archive %q", f.path)
	}
	return nil
}
