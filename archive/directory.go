package archive

import "github.com/genomepack/vcfile/core"

// directory is the in-memory structural index: stream name -> numeric id,
// and per-id ordered vector of parts. It is itself serialized as the
// container's final blob.
type directory struct {
	order []string          // registration order, for deterministic serialization
	ids   map[string]uint32 // name -> id
	names map[uint32]string // id -> name
	parts map[uint32][]partEntry
}

func newDirectory() *directory {
	return &directory{
		ids:   make(map[string]uint32),
		names: make(map[uint32]string),
		parts: make(map[uint32][]partEntry),
	}
}

func (d *directory) register(name string, id uint32) {
	d.order = append(d.order, name)
	d.ids[name] = id
	d.names[id] = name
	d.parts[id] = nil
}

func (d *directory) appendPart(id uint32, e partEntry) int {
	d.parts[id] = append(d.parts[id], e)
	return len(d.parts[id]) - 1
}

// encode serializes the directory as:
//
//	uvarint(numStreams)
//	{ string(name), uvarint(id), uvarint(numParts), { uvarint(offset), uvarint(length) }... }...
func (d *directory) encode() []byte {
	var buf []byte
	buf = core.AppendUvarint(buf, uint64(len(d.order)))
	for _, name := range d.order {
		id := d.ids[name]
		buf = core.AppendString(buf, name)
		buf = core.AppendUvarint(buf, uint64(id))
		parts := d.parts[id]
		buf = core.AppendUvarint(buf, uint64(len(parts)))
		for _, p := range parts {
			buf = core.AppendUvarint(buf, p.Offset)
			buf = core.AppendUvarint(buf, uint64(p.Length))
		}
	}
	return buf
}

func decodeDirectory(raw []byte) (*directory, error) {
	d := newDirectory()
	pos := 0

	numStreams, pos, err := core.ReadUvarint(raw, pos)
	if err != nil {
		return nil, core.FormatErrorf("archive: truncated directory: %v", err)
	}
	for i := uint64(0); i < numStreams; i++ {
		var name string
		name, pos, err = core.ReadString(raw, pos)
		if err != nil {
			return nil, core.FormatErrorf("archive: truncated directory entry %d name: %v", i, err)
		}
		var id64 uint64
		id64, pos, err = core.ReadUvarint(raw, pos)
		if err != nil {
			return nil, core.FormatErrorf("archive: truncated directory entry %d id: %v", i, err)
		}
		id := uint32(id64)
		d.register(name, id)

		var numParts uint64
		numParts, pos, err = core.ReadUvarint(raw, pos)
		if err != nil {
			return nil, core.FormatErrorf("archive: truncated directory entry %d part count: %v", i, err)
		}
		parts := make([]partEntry, 0, numParts)
		for j := uint64(0); j < numParts; j++ {
			var off, length uint64
			off, pos, err = core.ReadUvarint(raw, pos)
			if err != nil {
				return nil, core.FormatErrorf("archive: truncated directory entry %d part %d offset: %v", i, j, err)
			}
			length, pos, err = core.ReadUvarint(raw, pos)
			if err != nil {
				return nil, core.FormatErrorf("archive: truncated directory entry %d part %d length: %v", i, j, err)
			}
			parts = append(parts, partEntry{Offset: off, Length: uint32(length)})
		}
		d.parts[id] = parts
	}
	return d, nil
}
