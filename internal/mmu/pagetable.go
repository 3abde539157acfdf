package mmu

// A table entry is a tagged frame number rather than a raw pointer: bit 31
// marks the entry present and the low bits hold the frame index. The host
// offset of a mapped page is recomputed on demand from the frame index, so
// frame 0 and "unmapped" can never be confused.
type tableEntry uint32

const (
	entryUnmapped tableEntry = 0
	entryPresent  tableEntry = 1 << 31
)

func mappedEntry(frame uint32) tableEntry { return entryPresent | tableEntry(frame) }

func (e tableEntry) mapped() bool  { return e&entryPresent != 0 }
func (e tableEntry) frame() uint32 { return uint32(e &^ entryPresent) }

// PageDirectory is the two-level page table: a directory of lazily allocated
// second-level tables. It carries no lock of its own; the manager's pagedir
// lock guards every access.
type PageDirectory struct {
	geo    Geometry
	tables [][]tableEntry
}

// NewPageDirectory returns a directory with every slot empty.
func NewPageDirectory(geo Geometry) *PageDirectory {
	return &PageDirectory{
		geo:    geo,
		tables: make([][]tableEntry, geo.DirLen),
	}
}

// Lookup returns the frame mapped at (dir, tab), if any.
func (d *PageDirectory) Lookup(dir, tab uint32) (uint32, bool) {
	t := d.tables[dir]
	if t == nil || !t[tab].mapped() {
		return 0, false
	}
	return t[tab].frame(), true
}

// Map installs a frame at (dir, tab), allocating the second-level table on
// first touch with every entry unmapped.
func (d *PageDirectory) Map(dir, tab, frame uint32) {
	if d.tables[dir] == nil {
		d.tables[dir] = make([]tableEntry, d.geo.TableLen)
	}
	d.tables[dir][tab] = mappedEntry(frame)
}

// Unmap clears the entry at (dir, tab) and returns the frame it held. Once
// every entry in the table is unmapped the table itself is released and the
// directory slot emptied.
func (d *PageDirectory) Unmap(dir, tab uint32) (uint32, bool) {
	t := d.tables[dir]
	if t == nil || !t[tab].mapped() {
		return 0, false
	}
	frame := t[tab].frame()
	t[tab] = entryUnmapped

	for _, e := range t {
		if e.mapped() {
			return frame, true
		}
	}
	d.tables[dir] = nil
	return frame, true
}

// walk visits every mapped entry in (dir, tab, frame) order.
func (d *PageDirectory) walk(visit func(dir, tab, frame uint32)) {
	for dir, t := range d.tables {
		if t == nil {
			continue
		}
		for tab, e := range t {
			if e.mapped() {
				visit(uint32(dir), uint32(tab), e.frame())
			}
		}
	}
}
