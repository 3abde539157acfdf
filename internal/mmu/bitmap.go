package mmu

// Bitmap tracks page or frame allocation state with one byte per entry.
// Entry 0 is reserved by convention: every search starts at index 1 so an
// allocation never hands out page number zero.
type Bitmap struct {
	bits []byte
}

// NewBitmap returns a bitmap with n entries, all free.
func NewBitmap(n uint32) *Bitmap {
	return &Bitmap{bits: make([]byte, n)}
}

// Len returns the number of entries.
func (b *Bitmap) Len() uint32 { return uint32(len(b.bits)) }

// Test reports whether entry i is allocated. Indices past the end of the
// bitmap read as free.
func (b *Bitmap) Test(i uint32) bool {
	return i < uint32(len(b.bits)) && b.bits[i] != 0
}

// Set marks entry i allocated.
func (b *Bitmap) Set(i uint32) { b.bits[i] = 1 }

// Clear marks entry i free.
func (b *Bitmap) Clear(i uint32) { b.bits[i] = 0 }

// FindRun scans for n contiguous free entries and returns the index of the
// first. The scan starts at entry 1.
func (b *Bitmap) FindRun(n uint32) (uint32, bool) {
	if n == 0 || uint64(n) >= uint64(len(b.bits)) {
		return 0, false
	}
	limit := uint32(len(b.bits)) - n
	for i := uint32(1); i <= limit; i++ {
		if b.bits[i] != 0 {
			continue
		}
		j := uint32(1)
		for ; j < n; j++ {
			if b.bits[i+j] != 0 {
				break
			}
		}
		if j == n {
			return i, true
		}
		// skip past the allocated entry that broke the run
		i += j
	}
	return 0, false
}

// FindFree collects the first n free entries, which need not be contiguous.
// The scan starts at entry 1.
func (b *Bitmap) FindFree(n uint32) ([]uint32, bool) {
	if n == 0 {
		return nil, false
	}
	found := make([]uint32, 0, n)
	for i := uint32(1); i < uint32(len(b.bits)) && uint32(len(found)) < n; i++ {
		if b.bits[i] == 0 {
			found = append(found, i)
		}
	}
	if uint32(len(found)) != n {
		return nil, false
	}
	return found, true
}
