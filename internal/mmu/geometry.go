package mmu

import (
	"fmt"
	"math/bits"
)

// AddressWidth is the width of a simulated virtual address in bits. The
// manager models a 32-bit machine regardless of the host architecture.
const AddressWidth = 32

// VirtAddr is a simulated 32-bit virtual address.
type VirtAddr uint32

// PhysAddr is an offset into the simulated physical buffer. Translation
// composes a frame base with the page offset; nothing ever hands out a raw
// host pointer.
type PhysAddr uint32

// Geometry carries the bit-field split of a virtual address. It is computed
// once from the page size and never changes afterwards.
//
// The low OffsetBits select a byte within a page, the next TableBits select a
// second-level table entry and the remaining DirBits select a directory slot.
// When the non-offset bits are odd the extra bit goes to the table index.
type Geometry struct {
	PageSize uint32

	OffsetBits uint
	TableBits  uint
	DirBits    uint

	// TableLen and DirLen are the entry counts of a second-level table and
	// of the directory (2^TableBits and 2^DirBits).
	TableLen uint32
	DirLen   uint32

	offsetMask uint32
	tableMask  uint32
	dirMask    uint32
}

// mask builds a mask covering bit positions [a, b).
func mask(a, b uint) uint32 {
	return uint32((uint64(1)<<(b-a))-1) << a
}

// NewGeometry derives the address split for the given page size.
func NewGeometry(pageSize uint32) (Geometry, error) {
	if pageSize < 16 || bits.OnesCount32(pageSize) != 1 {
		return Geometry{}, fmt.Errorf("mmu: page size %d is not a power of two >= 16", pageSize)
	}

	offsetBits := uint(bits.TrailingZeros32(pageSize))
	dirBits := (AddressWidth - offsetBits) / 2
	tableBits := (AddressWidth - offsetBits) - dirBits

	return Geometry{
		PageSize:   pageSize,
		OffsetBits: offsetBits,
		TableBits:  tableBits,
		DirBits:    dirBits,
		TableLen:   1 << tableBits,
		DirLen:     1 << dirBits,
		offsetMask: mask(0, offsetBits),
		tableMask:  mask(offsetBits, offsetBits+tableBits),
		dirMask:    mask(offsetBits+tableBits, AddressWidth),
	}, nil
}

// Decompose splits a virtual address into its directory index, table index
// and page offset.
func (g Geometry) Decompose(va VirtAddr) (dir, tab, off uint32) {
	dir = (uint32(va) & g.dirMask) >> (g.OffsetBits + g.TableBits)
	tab = (uint32(va) & g.tableMask) >> g.OffsetBits
	off = uint32(va) & g.offsetMask
	return dir, tab, off
}

// Recompose builds the page-aligned virtual address selecting the given
// directory and table indices. It is the exact inverse of Decompose modulo
// the offset.
func (g Geometry) Recompose(dir, tab uint32) VirtAddr {
	return VirtAddr(dir<<(g.OffsetBits+g.TableBits) | tab<<g.OffsetBits)
}

// VPN returns the linear virtual page number of an address.
func (g Geometry) VPN(va VirtAddr) uint32 {
	dir, tab, _ := g.Decompose(va)
	return dir*g.TableLen + tab
}

// VPNToAddr returns the page-aligned virtual address of a page number.
func (g Geometry) VPNToAddr(n uint32) VirtAddr {
	return g.Recompose(n/g.TableLen, n%g.TableLen)
}

// FrameToPhys returns the physical base offset of a frame.
func (g Geometry) FrameToPhys(frame uint32) PhysAddr {
	return PhysAddr(frame * g.PageSize)
}

// PhysToFrame returns the frame number containing a physical offset.
func (g Geometry) PhysToFrame(pa PhysAddr) uint32 {
	return uint32(pa) / g.PageSize
}

// PageBase masks away the offset bits of a virtual address.
func (g Geometry) PageBase(va VirtAddr) VirtAddr {
	return va &^ VirtAddr(g.offsetMask)
}

// PageCount returns how many pages are needed to hold n bytes.
func (g Geometry) PageCount(n uint64) uint32 {
	return uint32((n + uint64(g.PageSize) - 1) / uint64(g.PageSize))
}
