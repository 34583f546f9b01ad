// Package codec is the entropy coder adapter: a uniform wrapper over a
// small set of block codecs, selected per named preset. Each substream
// family gets the backend that matches its statistical character.
package codec

// Params is the block-coder parameter tuple carried by every preset.
// The concrete backends (zstd/lz4/snappy) only consult Backend; the
// remaining fields are carried with each preset but no backend reads
// them.
type Params struct {
	BlockSizeLog int
	SortOrder    int
	LZPHashSize  int
	CoderMode    int
	Backend      Backend
}

// Backend selects the concrete block codec a preset is bound to.
type Backend int

const (
	BackendZstd Backend = iota
	BackendLZ4
	BackendSnappy
)

// Preset names one parameter bundle: six stream-family presets plus one
// per database field.
type Preset string

const (
	PresetSize Preset = "size"
	PresetData Preset = "data"
	PresetFlag Preset = "flag"
	PresetText Preset = "text"
	PresetInt  Preset = "int"
	PresetReal Preset = "real"

	PresetDBChrom Preset = "db_chrom"
	PresetDBPos   Preset = "db_pos"
	PresetDBID    Preset = "db_id"
	PresetDBRef   Preset = "db_ref"
	PresetDBAlt   Preset = "db_alt"
	PresetDBQual  Preset = "db_qual"
)

// Presets differ mainly in Backend; the library backend itself is the
// tuning knob that matters for these stream families.
var presets = map[Preset]Params{
	PresetSize:    {BlockSizeLog: 25, SortOrder: 16, LZPHashSize: 128, CoderMode: 0, Backend: BackendZstd},
	PresetData:    {BlockSizeLog: 25, SortOrder: 16, LZPHashSize: 64, CoderMode: 0, Backend: BackendZstd},
	PresetFlag:    {BlockSizeLog: 25, SortOrder: 16, LZPHashSize: 64, CoderMode: 0, Backend: BackendSnappy},
	PresetText:    {BlockSizeLog: 25, SortOrder: 16, LZPHashSize: 64, CoderMode: 0, Backend: BackendZstd},
	PresetInt:     {BlockSizeLog: 25, SortOrder: 16, LZPHashSize: 64, CoderMode: 0, Backend: BackendLZ4},
	PresetReal:    {BlockSizeLog: 25, SortOrder: 16, LZPHashSize: 64, CoderMode: 0, Backend: BackendLZ4},
	PresetDBChrom: {BlockSizeLog: 25, SortOrder: 16, LZPHashSize: 64, CoderMode: 0, Backend: BackendZstd},
	PresetDBPos:   {BlockSizeLog: 25, SortOrder: 16, LZPHashSize: 64, CoderMode: 0, Backend: BackendLZ4},
	PresetDBID:    {BlockSizeLog: 25, SortOrder: 16, LZPHashSize: 64, CoderMode: 0, Backend: BackendZstd},
	PresetDBRef:   {BlockSizeLog: 25, SortOrder: 16, LZPHashSize: 64, CoderMode: 0, Backend: BackendZstd},
	PresetDBAlt:   {BlockSizeLog: 25, SortOrder: 16, LZPHashSize: 64, CoderMode: 0, Backend: BackendZstd},
	PresetDBQual:  {BlockSizeLog: 25, SortOrder: 16, LZPHashSize: 64, CoderMode: 0, Backend: BackendLZ4},
}

// Lookup returns the Params for a named preset, panicking on an unknown
// preset since the set is fixed at compile time and callers always pass
// a constant from this package.
func Lookup(p Preset) Params {
	params, ok := presets[p]
	if !ok {
		panic("codec: unknown preset " + string(p))
	}
	return params
}
