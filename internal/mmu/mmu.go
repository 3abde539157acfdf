// Package mmu implements a two-level, software-managed virtual memory
// manager over a flat byte buffer standing in for physical RAM. Virtual
// addresses are 32 bits wide; allocation is byte granular at the API and
// page granular underneath, with contiguous virtual runs mapped onto
// scattered physical frames.
package mmu

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/ZachLondono/Virtual-Memory-Manager/internal/hostmem"
)

var (
	ErrOutOfVirtualSpace = errors.New("mmu: no contiguous run of free virtual pages")
	ErrOutOfFrames       = errors.New("mmu: insufficient free physical frames")
	ErrUnmappedAddress   = errors.New("mmu: address not mapped")
)

// Config sizes the simulated machine. Every field has one effect: PageSize sets
// the offset bits and the directory/table split, VirtualBytes the virtual
// bitmap length, PhysicalBytes the physical bitmap length and the buffer
// allocation, and TLBSlots the FIFO capacity.
type Config struct {
	PageSize      uint32
	VirtualBytes  uint64
	PhysicalBytes uint64
	TLBSlots      int

	Logger *slog.Logger
}

// Validate checks the geometry constraints.
func (c Config) Validate() error {
	if _, err := NewGeometry(c.PageSize); err != nil {
		return err
	}
	if c.VirtualBytes == 0 || c.VirtualBytes > 1<<AddressWidth {
		return fmt.Errorf("mmu: virtual memory size %d outside (0, 4GiB]", c.VirtualBytes)
	}
	if c.VirtualBytes%uint64(c.PageSize) != 0 {
		return fmt.Errorf("mmu: virtual memory size %d is not a multiple of the page size %d", c.VirtualBytes, c.PageSize)
	}
	if c.PhysicalBytes == 0 || c.PhysicalBytes%uint64(c.PageSize) != 0 {
		return fmt.Errorf("mmu: physical memory size %d is not a positive multiple of the page size %d", c.PhysicalBytes, c.PageSize)
	}
	if c.PhysicalBytes < 2*uint64(c.PageSize) {
		return fmt.Errorf("mmu: physical memory size %d leaves no usable frame after reserving frame 0", c.PhysicalBytes)
	}
	if c.TLBSlots < 1 {
		return fmt.Errorf("mmu: TLB capacity %d must be at least 1", c.TLBSlots)
	}
	return nil
}

// Manager owns the simulated address space: the geometry, both allocation
// bitmaps, the page directory, the TLB and the physical buffer.
//
// Three locks partition the state. When more than one is needed they are
// acquired in the order bitmap -> pagedir -> tlb.
type Manager struct {
	logger *slog.Logger
	geo    Geometry

	// bitmapMu guards both allocation bitmaps. It spans the search and the
	// bit flips of an allocation so concurrent callers observe disjoint
	// runs and disjoint frames.
	bitmapMu   sync.Mutex
	virtPages  *Bitmap
	physFrames *Bitmap

	// pagedirMu guards the directory and its tables.
	pagedirMu sync.Mutex
	dir       *PageDirectory

	// tlbMu guards the TLB ring and its counters.
	tlbMu sync.Mutex
	tlb   *TLB

	mem *hostmem.Region
}

// New builds a manager from the given configuration: it allocates the
// physical buffer, derives the geometry, and constructs empty bitmaps,
// directory and TLB.
func New(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	geo, err := NewGeometry(cfg.PageSize)
	if err != nil {
		return nil, err
	}

	mem, err := hostmem.Alloc(cfg.PhysicalBytes)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	return &Manager{
		logger:     logger,
		geo:        geo,
		virtPages:  NewBitmap(uint32(cfg.VirtualBytes / uint64(cfg.PageSize))),
		physFrames: NewBitmap(uint32(cfg.PhysicalBytes / uint64(cfg.PageSize))),
		dir:        NewPageDirectory(geo),
		tlb:        NewTLB(cfg.TLBSlots),
		mem:        mem,
	}, nil
}

// Close releases the physical buffer.
func (m *Manager) Close() error {
	return m.mem.Close()
}

// Geometry returns the address-split parameters.
func (m *Manager) Geometry() Geometry { return m.geo }

// Translate walks the TLB and then the page table to resolve a virtual
// address. The returned physical address composes the frame base with the
// offset already present in va. It fails with ErrUnmappedAddress when the
// page is unallocated and never touches the buffer itself.
func (m *Manager) Translate(va VirtAddr) (PhysAddr, error) {
	m.tlbMu.Lock()
	defer m.tlbMu.Unlock()

	if pa, ok := m.tlb.Lookup(va); ok {
		return pa, nil
	}

	dir, tab, off := m.geo.Decompose(va)
	if !m.virtPages.Test(dir*m.geo.TableLen + tab) {
		return 0, fmt.Errorf("translate %#x: %w", uint32(va), ErrUnmappedAddress)
	}

	frame, ok := m.dir.Lookup(dir, tab)
	if !ok {
		return 0, fmt.Errorf("translate %#x: %w", uint32(va), ErrUnmappedAddress)
	}

	pa := m.geo.FrameToPhys(frame) + PhysAddr(off)
	m.tlb.Insert(va, pa)
	return pa, nil
}

// mapPage installs a frame for the page containing va. The allocator has
// already set the page's bitmap bit and holds the bitmap lock; the pagedir
// lock is taken here.
func (m *Manager) mapPage(va VirtAddr, frame uint32) error {
	dir, tab, _ := m.geo.Decompose(va)
	if !m.virtPages.Test(dir*m.geo.TableLen + tab) {
		return fmt.Errorf("map %#x: page not marked allocated", uint32(va))
	}

	m.pagedirMu.Lock()
	defer m.pagedirMu.Unlock()
	m.dir.Map(dir, tab, frame)
	return nil
}

// Alloc reserves enough pages to hold numBytes bytes: a contiguous run of
// virtual pages mapped onto any free physical frames. It returns the
// page-aligned virtual address of the first page, which is never 0.
func (m *Manager) Alloc(numBytes uint32) (VirtAddr, error) {
	if numBytes == 0 {
		return 0, fmt.Errorf("mmu: allocation size must be at least 1 byte")
	}
	nPages := m.geo.PageCount(uint64(numBytes))

	m.bitmapMu.Lock()
	defer m.bitmapMu.Unlock()

	firstVPN, ok := m.virtPages.FindRun(nPages)
	if !ok {
		m.logger.Warn("allocation failed, insufficient virtual memory",
			slog.Uint64("bytes", uint64(numBytes)), slog.Uint64("pages", uint64(nPages)))
		return 0, fmt.Errorf("alloc %d bytes: %w", numBytes, ErrOutOfVirtualSpace)
	}

	frames, ok := m.physFrames.FindFree(nPages)
	if !ok {
		m.logger.Warn("allocation failed, insufficient physical memory",
			slog.Uint64("bytes", uint64(numBytes)), slog.Uint64("pages", uint64(nPages)))
		return 0, fmt.Errorf("alloc %d bytes: %w", numBytes, ErrOutOfFrames)
	}

	firstVA := m.geo.VPNToAddr(firstVPN)
	for i, frame := range frames {
		vpn := firstVPN + uint32(i)
		m.virtPages.Set(vpn)
		m.physFrames.Set(frame)
		if err := m.mapPage(m.geo.VPNToAddr(vpn), frame); err != nil {
			m.unwindAlloc(firstVPN, frames[:i+1])
			return 0, err
		}
	}

	return firstVA, nil
}

// unwindAlloc undoes the bitmap bits and mappings of a partially installed
// allocation so a failed Alloc leaves no state behind.
func (m *Manager) unwindAlloc(firstVPN uint32, frames []uint32) {
	m.pagedirMu.Lock()
	defer m.pagedirMu.Unlock()
	for i, frame := range frames {
		vpn := firstVPN + uint32(i)
		m.virtPages.Clear(vpn)
		m.physFrames.Clear(frame)
		m.dir.Unmap(vpn/m.geo.TableLen, vpn%m.geo.TableLen)
	}
}

// Free unmaps the nPages = ceil(size/PageSize) pages starting at the page
// containing va. Every page in the range must currently be mapped or the
// call fails without changing anything. Freed pages are dropped from the
// TLB so a stale translation cannot outlive its mapping.
func (m *Manager) Free(va VirtAddr, size uint32) error {
	if size == 0 {
		return fmt.Errorf("mmu: free size must be at least 1 byte")
	}
	nPages := m.geo.PageCount(uint64(size))
	base := m.geo.PageBase(va)

	m.bitmapMu.Lock()
	defer m.bitmapMu.Unlock()
	m.pagedirMu.Lock()
	defer m.pagedirMu.Unlock()

	// validate the whole range before touching anything
	for i := uint32(0); i < nPages; i++ {
		page := base + VirtAddr(i*m.geo.PageSize)
		dir, tab, _ := m.geo.Decompose(page)
		if _, ok := m.dir.Lookup(dir, tab); !ok || !m.virtPages.Test(dir*m.geo.TableLen+tab) {
			m.logger.Warn("attempting to free invalid address",
				slog.String("va", fmt.Sprintf("%#x", uint32(page))))
			return fmt.Errorf("free %#x: %w", uint32(page), ErrUnmappedAddress)
		}
	}

	for i := uint32(0); i < nPages; i++ {
		page := base + VirtAddr(i*m.geo.PageSize)
		dir, tab, _ := m.geo.Decompose(page)
		frame, _ := m.dir.Unmap(dir, tab)
		m.physFrames.Clear(frame)
		m.virtPages.Clear(dir*m.geo.TableLen + tab)
	}

	m.tlbMu.Lock()
	for i := uint32(0); i < nPages; i++ {
		m.tlb.InvalidatePage(base+VirtAddr(i*m.geo.PageSize), m.geo.PageSize)
	}
	m.tlbMu.Unlock()

	return nil
}

// Put copies src into the simulated memory starting at va, page by page. A
// va that is not page aligned is handled by splitting the first chunk at the
// page boundary. A translation fault stops the copy; chunks before the fault
// have already been written.
func (m *Manager) Put(va VirtAddr, src []byte) error {
	return m.copyPages(va, len(src), func(pa PhysAddr, done, n int) error {
		_, err := m.mem.WriteAt(src[done:done+n], int64(pa))
		return err
	})
}

// Get copies from the simulated memory starting at va into dst, page by
// page, with the same chunking and fault behavior as Put.
func (m *Manager) Get(va VirtAddr, dst []byte) error {
	return m.copyPages(va, len(dst), func(pa PhysAddr, done, n int) error {
		_, err := m.mem.ReadAt(dst[done:done+n], int64(pa))
		return err
	})
}

// copyPages drives a page-chunked copy through the translator. Each chunk
// translates and copies under the bitmap lock so a page cannot be freed out
// from underneath a copy in progress.
func (m *Manager) copyPages(va VirtAddr, size int, chunk func(pa PhysAddr, done, n int) error) error {
	done := 0
	for done < size {
		cur := va + VirtAddr(done)
		n := int(m.geo.PageSize - uint32(cur)%m.geo.PageSize)
		if rem := size - done; n > rem {
			n = rem
		}

		m.bitmapMu.Lock()
		pa, err := m.Translate(cur)
		if err != nil {
			m.bitmapMu.Unlock()
			m.logger.Warn("segmentation fault: access to invalid address",
				slog.String("va", fmt.Sprintf("%#x", uint32(cur))))
			return err
		}
		err = chunk(pa, done, n)
		m.bitmapMu.Unlock()
		if err != nil {
			return err
		}
		done += n
	}
	return nil
}

// TLBStats returns the hit and miss counters.
func (m *Manager) TLBStats() (hits, misses uint64) {
	m.tlbMu.Lock()
	defer m.tlbMu.Unlock()
	return m.tlb.Stats()
}

// TLBMissRate returns misses / (hits + misses) over all translations so far.
func (m *Manager) TLBMissRate() float64 {
	m.tlbMu.Lock()
	defer m.tlbMu.Unlock()
	return m.tlb.MissRate()
}

// Dump writes the mapped portion of the page table to w, one line per page,
// in (directory, table) order.
func (m *Manager) Dump(w io.Writer) error {
	m.pagedirMu.Lock()
	defer m.pagedirMu.Unlock()

	var err error
	m.dir.walk(func(dir, tab, frame uint32) {
		if err != nil {
			return
		}
		va := m.geo.Recompose(dir, tab)
		_, err = fmt.Fprintf(w, "va %#010x dir %4d tab %4d -> frame %6d pa %#010x\n",
			uint32(va), dir, tab, frame, uint32(m.geo.FrameToPhys(frame)))
	})
	return err
}
