package vcfile

import (
	"github.com/google/uuid"

	"github.com/genomepack/vcfile/core"
	"github.com/genomepack/vcfile/pbwt"
)

// Setters. All of these must run before the first SetVariant; their
// order among themselves is free.

func (f *CompressedFile) setterGuard() error {
	if f.st != stateWriting {
		return core.StateErrorf("schema setter in state %s", f.st)
	}
	if f.w.started {
		return core.StateErrorf("schema setter after the first SetVariant")
	}
	return nil
}

// SetMeta attaches an opaque caller annotation blob, round-tripped
// verbatim.
func (f *CompressedFile) SetMeta(meta []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.setterGuard(); err != nil {
		return f.fail(err)
	}
	f.meta = append([]byte(nil), meta...)
	return nil
}

// SetHeader attaches the original VCF header text, opaque to the
// engine.
func (f *CompressedFile) SetHeader(header []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.setterGuard(); err != nil {
		return f.fail(err)
	}
	f.header = append([]byte(nil), header...)
	return nil
}

// AddSamples appends sample names to the ordered sample list.
func (f *CompressedFile) AddSamples(names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.setterGuard(); err != nil {
		return f.fail(err)
	}
	f.samples = append(f.samples, names...)
	return nil
}

// SetKeys declares the schema's key descriptors; the count must match
// the one given to OpenForWriting.
func (f *CompressedFile) SetKeys(keys []core.KeyDesc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.setterGuard(); err != nil {
		return f.fail(err)
	}
	if len(keys) != f.noKeys {
		return f.fail(core.SchemaErrorf("SetKeys got %d keys, archive declared %d", len(keys), f.noKeys))
	}
	for i, k := range keys {
		if k.KeyID != i {
			return f.fail(core.SchemaErrorf("key %d declares id %d, ids must be dense", i, k.KeyID))
		}
	}
	f.keys = append([]core.KeyDesc(nil), keys...)
	return nil
}

func (f *CompressedFile) SetPloidy(ploidy int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.setterGuard(); err != nil {
		return f.fail(err)
	}
	if ploidy < 1 {
		return f.fail(core.SchemaErrorf("ploidy %d, want >= 1", ploidy))
	}
	f.ploidy = ploidy
	return nil
}

// SetGTID designates the genotype key among the declared keys.
func (f *CompressedFile) SetGTID(keyID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.setterGuard(); err != nil {
		return f.fail(err)
	}
	if keyID < 0 || keyID >= f.noKeys {
		return f.fail(core.SchemaErrorf("genotype key id %d out of range [0,%d)", keyID, f.noKeys))
	}
	f.gtID = keyID
	return nil
}

func (f *CompressedFile) SetNeglectLimit(limit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.setterGuard(); err != nil {
		return f.fail(err)
	}
	f.prm.NeglectLimit = limit
	f.prm.Clamp()
	return nil
}

func (f *CompressedFile) SetNoThreads(n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.setterGuard(); err != nil {
		return f.fail(err)
	}
	f.prm.NoThreads = n
	f.prm.Clamp()
	return nil
}

func (f *CompressedFile) SetNoSamples(n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.setterGuard(); err != nil {
		return f.fail(err)
	}
	if n < 0 {
		return f.fail(core.SchemaErrorf("negative sample count %d", n))
	}
	f.noSamples = n
	return nil
}

// InitPBWT builds the genotype transform state from the schema. It must
// run once after ploidy/samples/neglect limit are set and before the
// first genotype-bearing SetVariant.
func (f *CompressedFile) InitPBWT() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.st != stateWriting {
		return f.fail(core.StateErrorf("InitPBWT in state %s", f.st))
	}
	if f.pbwtState != nil {
		return f.fail(core.StateErrorf("InitPBWT called twice"))
	}
	st, err := pbwt.Init(f.ploidy, f.noSamples, f.prm.NeglectLimit)
	if err != nil {
		return f.fail(err)
	}
	f.pbwtState = st
	if f.w.pipe != nil {
		f.w.pipe.PBWT = st
	}
	return nil
}

// Getters, valid only after OpenForReading; in any other state they
// fail with a state error.

func (f *CompressedFile) getterGuard() error {
	if f.st != stateReading {
		return core.StateErrorf("schema getter in state %s", f.st)
	}
	return nil
}

func (f *CompressedFile) GetMeta() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getterGuard(); err != nil {
		return nil, f.fail(err)
	}
	return append([]byte(nil), f.meta...), nil
}

func (f *CompressedFile) GetHeader() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getterGuard(); err != nil {
		return nil, f.fail(err)
	}
	return append([]byte(nil), f.header...), nil
}

func (f *CompressedFile) GetSamples() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getterGuard(); err != nil {
		return nil, f.fail(err)
	}
	return append([]string(nil), f.samples...), nil
}

func (f *CompressedFile) GetKeys() ([]core.KeyDesc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getterGuard(); err != nil {
		return nil, f.fail(err)
	}
	return append([]core.KeyDesc(nil), f.keys...), nil
}

func (f *CompressedFile) GetPloidy() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getterGuard(); err != nil {
		return 0, f.fail(err)
	}
	return f.ploidy, nil
}

func (f *CompressedFile) GetGTID() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getterGuard(); err != nil {
		return 0, f.fail(err)
	}
	return f.gtID, nil
}

func (f *CompressedFile) GetNoVariants() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getterGuard(); err != nil {
		return 0, f.fail(err)
	}
	return f.noVariants, nil
}

func (f *CompressedFile) GetNoSamples() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getterGuard(); err != nil {
		return 0, f.fail(err)
	}
	return f.noSamples, nil
}

func (f *CompressedFile) GetNeglectLimit() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getterGuard(); err != nil {
		return 0, f.fail(err)
	}
	return f.prm.NeglectLimit, nil
}

// Metadata blob serialization. The samples, keys and schema blobs are
// small structural records; they use the same uvarint/length-prefixed
// primitives as the archive directory.

func encodeSamples(samples []string) []byte {
	var buf []byte
	buf = core.AppendUvarint(buf, uint64(len(samples)))
	for _, s := range samples {
		buf = core.AppendString(buf, s)
	}
	return buf
}

func decodeSamples(blob []byte) ([]string, error) {
	count, pos, err := core.ReadUvarint(blob, 0)
	if err != nil {
		return nil, core.FormatErrorf("samples blob: %v", err)
	}
	out := make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		var s string
		s, pos, err = core.ReadString(blob, pos)
		if err != nil {
			return nil, core.FormatErrorf("samples blob entry %d: %v", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func encodeKeys(keys []core.KeyDesc) []byte {
	var buf []byte
	buf = core.AppendUvarint(buf, uint64(len(keys)))
	for _, k := range keys {
		buf = append(buf, byte(k.Kind), byte(k.ValueType))
		buf = core.AppendVarint(buf, int64(k.Arity))
	}
	return buf
}

func decodeKeys(blob []byte) ([]core.KeyDesc, error) {
	count, pos, err := core.ReadUvarint(blob, 0)
	if err != nil {
		return nil, core.FormatErrorf("keys blob: %v", err)
	}
	out := make([]core.KeyDesc, 0, count)
	for i := uint64(0); i < count; i++ {
		if pos+2 > len(blob) {
			return nil, core.FormatErrorf("keys blob entry %d truncated", i)
		}
		k := core.KeyDesc{KeyID: int(i), Kind: core.KeyKind(blob[pos]), ValueType: core.ValueType(blob[pos+1])}
		pos += 2
		var arity int64
		arity, pos, err = core.ReadVarint(blob, pos)
		if err != nil {
			return nil, core.FormatErrorf("keys blob entry %d arity: %v", i, err)
		}
		k.Arity = int(arity)
		out = append(out, k)
	}
	return out, nil
}

// schemaBlob carries the scalar schema fields plus the archive's
// instance identifier.
func (f *CompressedFile) encodeSchema() []byte {
	var buf []byte
	buf = core.AppendUvarint(buf, uint64(f.noKeys))
	buf = core.AppendUvarint(buf, uint64(f.ploidy))
	buf = core.AppendVarint(buf, int64(f.gtID))
	buf = core.AppendUvarint(buf, uint64(f.noSamples))
	buf = core.AppendUvarint(buf, uint64(f.noVariants))
	buf = append(buf, f.archiveID[:]...)
	return buf
}

func (f *CompressedFile) decodeSchema(blob []byte) error {
	noKeys, pos, err := core.ReadUvarint(blob, 0)
	if err != nil {
		return core.FormatErrorf("schema blob key count: %v", err)
	}
	ploidy, pos, err := core.ReadUvarint(blob, pos)
	if err != nil {
		return core.FormatErrorf("schema blob ploidy: %v", err)
	}
	gtID, pos, err := core.ReadVarint(blob, pos)
	if err != nil {
		return core.FormatErrorf("schema blob genotype key: %v", err)
	}
	noSamples, pos, err := core.ReadUvarint(blob, pos)
	if err != nil {
		return core.FormatErrorf("schema blob sample count: %v", err)
	}
	noVariants, pos, err := core.ReadUvarint(blob, pos)
	if err != nil {
		return core.FormatErrorf("schema blob variant count: %v", err)
	}
	if pos+16 != len(blob) {
		return core.FormatErrorf("schema blob: %d bytes after scalars, want 16", len(blob)-pos)
	}
	var id uuid.UUID
	copy(id[:], blob[pos:])

	f.noKeys = int(noKeys)
	f.ploidy = int(ploidy)
	f.gtID = int(gtID)
	f.noSamples = int(noSamples)
	f.noVariants = int64(noVariants)
	f.archiveID = id
	return nil
}
