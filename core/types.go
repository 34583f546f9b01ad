// Package core holds the value types, error taxonomy and small shared
// helpers used across the compression engine: key/field/variant
// descriptors, package and database-stream constants, and varint-ish
// byte helpers for the structural metadata blobs (meta/header/samples/keys).
package core

// KeyKind distinguishes INFO fields (one value per variant) from FORMAT
// fields (one value per sample).
type KeyKind uint8

const (
	KindInfo KeyKind = iota
	KindFormat
)

// ValueType is the wire type of a field's payload.
type ValueType uint8

const (
	ValueFlag ValueType = iota
	ValueInt
	ValueReal
	ValueChar
	ValueString
)

// KeyDesc describes one schema key, fixed for the lifetime of an archive.
type KeyDesc struct {
	KeyID     int
	Kind      KeyKind
	ValueType ValueType
	Arity     int // declared number of values per record; -1 means variable
}

// VariantDesc is the fixed "database" tuple shared by every variant.
type VariantDesc struct {
	Chrom string
	Pos   int64
	ID    string
	Ref   string
	Alt   string
	Qual  float32
}

// FieldDesc is one INFO/FORMAT field's value for a single variant: either
// a flat byte payload (flag/string/char) or a typed numeric slice.
type FieldDesc struct {
	KeyID   int
	Present bool
	Ints    []int64
	Reals   []float64
	Bytes   [][]byte // one entry per sample for FORMAT, one entry for INFO
}

// Six fixed database streams plus their canonical names, identical on
// encode and decode.
const (
	DBChrom = iota
	DBPos
	DBID
	DBRef
	DBAlt
	DBQual
	NoDBFields
)

var DBStreamNameSize = [NoDBFields]string{
	"db_chrom_size", "db_pos_size", "db_id_size", "db_ref_size", "db_alt_size", "db_qual_size",
}

var DBStreamNameData = [NoDBFields]string{
	"db_chrom_data", "db_pos_data", "db_id_data", "db_ref_data", "db_alt_data", "db_qual_data",
}

// PackageType distinguishes the three families of deferred-compression
// work units the orchestrator hands to the worker pool.
type PackageType uint8

const (
	PackageFields PackageType = iota
	PackageGT
	PackageDB
)

// PPCompressFlag is reserved in the high bit of a package's size word to
// mark that the text preprocessor ran on this block; it caps a single
// preprocessed block at 1 GiB (the remaining 30 bits).
const PPCompressFlag uint32 = 1 << 30

// PPSizeMask recovers the real size once PPCompressFlag has been checked.
const PPSizeMask uint32 = PPCompressFlag - 1
