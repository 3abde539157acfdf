package mmu

// TLB is a fixed-capacity translation cache with FIFO replacement, modelled
// as a ring buffer: start indexes the oldest entry and inserts go at
// (start+count) mod cap, evicting the oldest slot when full.
//
// Entries key on the full virtual address used at translation time, offset
// included, so a lookup only hits when the same byte address is translated
// again. Lookups are a linear scan from oldest to newest.
type TLB struct {
	slots []tlbSlot
	start int
	count int

	hits   uint64
	misses uint64
}

type tlbSlot struct {
	va VirtAddr
	pa PhysAddr
}

// NewTLB returns an empty TLB with the given capacity.
func NewTLB(capacity int) *TLB {
	return &TLB{slots: make([]tlbSlot, capacity)}
}

// Len returns the number of live entries.
func (t *TLB) Len() int { return t.count }

// Lookup scans for va and returns the cached physical address. Every call
// counts as exactly one hit or one miss.
func (t *TLB) Lookup(va VirtAddr) (PhysAddr, bool) {
	for i := 0; i < t.count; i++ {
		s := &t.slots[(t.start+i)%len(t.slots)]
		if s.va == va {
			t.hits++
			return s.pa, true
		}
	}
	t.misses++
	return 0, false
}

// Insert records a translation, evicting the oldest entry when full.
func (t *TLB) Insert(va VirtAddr, pa PhysAddr) {
	if t.count == len(t.slots) {
		t.start = (t.start + 1) % len(t.slots)
		t.count--
	}
	t.slots[(t.start+t.count)%len(t.slots)] = tlbSlot{va: va, pa: pa}
	t.count++
}

// InvalidatePage drops every entry whose key falls inside the page starting
// at pageBase, preserving the age order of the survivors.
func (t *TLB) InvalidatePage(pageBase VirtAddr, pageSize uint32) {
	kept := 0
	for i := 0; i < t.count; i++ {
		s := t.slots[(t.start+i)%len(t.slots)]
		if s.va&^VirtAddr(pageSize-1) == pageBase {
			continue
		}
		t.slots[(t.start+kept)%len(t.slots)] = s
		kept++
	}
	t.count = kept
}

// Stats returns the hit and miss counters.
func (t *TLB) Stats() (hits, misses uint64) {
	return t.hits, t.misses
}

// MissRate returns misses / (hits + misses), or 0 before any lookup.
func (t *TLB) MissRate() float64 {
	total := t.hits + t.misses
	if total == 0 {
		return 0
	}
	return float64(t.misses) / float64(total)
}
