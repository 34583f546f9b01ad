// Package vcfile is the CompressedFile orchestrator: the public API of
// the variant compression engine. It decomposes a stream of variant
// records into per-key substreams, stages them in flush-thresholded
// buffers, hands filled buffers to a worker pool as packages, and
// writes the compressed parts into a part-indexed archive container.
// On the way back out it mirrors every step, re-interleaving decoded
// substreams into variant records.
package vcfile

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/caio/go-tdigest/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/genomepack/vcfile/archive"
	"github.com/genomepack/vcfile/core"
	"github.com/genomepack/vcfile/params"
	"github.com/genomepack/vcfile/pbwt"
	"github.com/genomepack/vcfile/queue"
)

type state int

const (
	stateNone state = iota
	stateWriting
	stateReading
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateNone:
		return "none"
	case stateWriting:
		return "writing"
	case stateReading:
		return "reading"
	default:
		return "closed"
	}
}

// Structural metadata streams, written by the orchestrator itself after
// the worker pool has drained.
const (
	streamMeta    = "meta"
	streamHeader  = "header"
	streamSamples = "samples"
	streamKeys    = "keys"
	streamSchema  = "schema"
	streamParams  = "params"
	streamDict    = "dict"
	streamGraphs  = "graphs"
)

// CompressedFile is the single-owner handle over one archive, in either
// writing or reading mode. It is not safe for concurrent use by
// multiple goroutines; internally it fans work out to its own pool.
type CompressedFile struct {
	mu      sync.Mutex
	st      state
	lastErr error

	logger *slog.Logger
	tracer trace.Tracer

	path string
	file *os.File

	prm       params.Params
	archiveID uuid.UUID

	// Schema, fixed before the first SetVariant.
	noKeys  int
	keys    []core.KeyDesc
	gtID    int // -1 when no genotype key is designated
	ploidy  int
	samples []string
	meta    []byte
	header  []byte

	noSamples  int
	noVariants int64

	pbwtState *pbwt.State

	w *writeState
	r *readState

	statsMu sync.Mutex
	digest  *tdigest.TDigest
	noParts int64
}

// Option adjusts a CompressedFile before it opens.
type Option func(*CompressedFile)

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *CompressedFile) { f.logger = l }
}

// WithTracer installs an OpenTelemetry tracer; the default is a no-op.
func WithTracer(t trace.Tracer) Option {
	return func(f *CompressedFile) { f.tracer = t }
}

// New returns an unopened CompressedFile with default settings.
func New(opts ...Option) *CompressedFile {
	f := &CompressedFile{
		st:     stateNone,
		logger: slog.Default().With("component", "vcfile"),
		tracer: noop.NewTracerProvider().Tracer("vcfile"),
		prm:    params.Default(),
		gtID:   -1,
		ploidy: 1,
	}
	td, err := tdigest.New()
	if err == nil {
		f.digest = td
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// OpenForWriting creates a fresh archive at path for noKeys declared
// keys. It fails if the file already exists.
func (f *CompressedFile) OpenForWriting(path string, noKeys int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.st != stateNone {
		return f.fail(core.StateErrorf("OpenForWriting in state %s", f.st))
	}
	if noKeys < 0 {
		return f.fail(core.SchemaErrorf("negative key count %d", noKeys))
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return f.fail(core.IOErrorf(err, "create archive %q", path))
	}

	f.path = path
	f.file = file
	f.noKeys = noKeys
	f.archiveID = uuid.New()
	f.w = &writeState{
		aw:    archive.NewWriter(file),
		coder: queue.NewCoderSection(),
	}
	f.st = stateWriting
	f.logger.Info("archive opened for writing", "path", path, "no_keys", noKeys, "archive_id", f.archiveID)
	return nil
}

// Close flushes every remaining buffer, runs the graph-optimizer if it
// has not run yet, writes the structural metadata streams and the
// directory, and joins the worker pool. In reading mode it just tears
// the prefetch pool down.
func (f *CompressedFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.st {
	case stateWriting:
		err := f.closeWriting()
		f.st = stateClosed
		if err != nil {
			return f.fail(err)
		}
		return nil
	case stateReading:
		err := f.closeReading()
		f.st = stateClosed
		if err != nil {
			return f.fail(err)
		}
		return nil
	default:
		return f.fail(core.StateErrorf("Close in state %s", f.st))
	}
}

// LastError returns the first error observed on this handle, if any.
func (f *CompressedFile) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// fail records err in the last-error slot (first error wins) and
// returns it.
func (f *CompressedFile) fail(err error) error {
	if f.lastErr == nil {
		f.lastErr = err
	}
	return err
}

// GetArchiveID returns the archive's random instance identifier.
func (f *CompressedFile) GetArchiveID() uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.archiveID
}

// Stats summarizes compressed part sizes across the archive.
type Stats struct {
	NoParts int64
	P50     float64
	P90     float64
	P99     float64
}

// GetStats reports approximate quantiles of compressed part sizes.
// Diagnostic only; it never affects the on-disk format.
func (f *CompressedFile) GetStats() Stats {
	f.statsMu.Lock()
	defer f.statsMu.Unlock()
	s := Stats{NoParts: f.noParts}
	if f.digest != nil && f.noParts > 0 {
		s.P50 = f.digest.Quantile(0.5)
		s.P90 = f.digest.Quantile(0.9)
		s.P99 = f.digest.Quantile(0.99)
	}
	return s
}

func (f *CompressedFile) recordPart(n int) {
	f.statsMu.Lock()
	defer f.statsMu.Unlock()
	f.noParts++
	if f.digest != nil {
		_ = f.digest.AddWeighted(float64(n), 1)
	}
}

func dbPairNames(dbID int) (string, string) {
	return core.DBStreamNameSize[dbID], core.DBStreamNameData[dbID]
}

func keyPairNames(keyID int) (string, string) {
	return fmt.Sprintf("key_%d_size", keyID), fmt.Sprintf("key_%d_data", keyID)
}

// noHaplotypes is the genotype vector length every GT field must carry.
func (f *CompressedFile) noHaplotypes() int {
	return f.noSamples * f.ploidy
}
