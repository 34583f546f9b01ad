// Package router selects and runs the per-key compression pipeline: the
// text db fields (chrom, id, ref, alt) and text-valued key streams go
// through the text preprocessor and the entropy coder adapter, numeric
// and flag streams (db pos and qual included) go straight to
// their matching codec preset, and the genotype stream takes the
// PBWT -> run-length -> range-coder path, never touching the entropy
// coder adapter.
package router

import (
	"github.com/genomepack/vcfile/codec"
	"github.com/genomepack/vcfile/core"
)

// Route describes the pipeline one substream's data parts flow through.
type Route struct {
	Preset codec.Preset
	Text   bool // dictionary preprocess before the entropy coder
	GT     bool // PBWT + range coder, skipping the entropy coder
}

// ForKey routes an INFO/FORMAT key by its value type. gtKey marks the
// designated genotype key, which overrides the type-based choice.
func ForKey(desc core.KeyDesc, gtKey bool) Route {
	if gtKey {
		return Route{GT: true}
	}
	switch desc.ValueType {
	case core.ValueFlag:
		return Route{Preset: codec.PresetFlag}
	case core.ValueInt:
		return Route{Preset: codec.PresetInt}
	case core.ValueReal:
		return Route{Preset: codec.PresetReal}
	default:
		return Route{Preset: codec.PresetText, Text: true}
	}
}

// ForDB routes one of the six fixed database streams. Chrom, id, ref
// and alt are text; pos arrives already delta-coded and qual is
// numeric, so both skip the preprocessor.
func ForDB(dbID int) Route {
	switch dbID {
	case core.DBChrom:
		return Route{Preset: codec.PresetDBChrom, Text: true}
	case core.DBPos:
		return Route{Preset: codec.PresetDBPos}
	case core.DBID:
		return Route{Preset: codec.PresetDBID, Text: true}
	case core.DBRef:
		return Route{Preset: codec.PresetDBRef, Text: true}
	case core.DBAlt:
		return Route{Preset: codec.PresetDBAlt, Text: true}
	default:
		return Route{Preset: codec.PresetDBQual}
	}
}
