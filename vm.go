// Package vmm simulates a software-managed virtual memory manager for
// operating-systems coursework. A VM owns a fixed-size byte buffer standing
// in for physical RAM and exposes byte-granular allocation over page-level
// mappings: a two-level page table, bitmap frame and page accounting, and
// address translation through a FIFO TLB.
//
// Alloc, Free, Put and Get on one VM may run concurrently. Translate holds
// only the TLB lock while it reads the bitmaps and page table, so a
// Translate concurrent with an Alloc or Free on the same VM is not
// synchronized with it. The package also keeps a process-wide
// default instance, created lazily by the first Alloc, mirroring the
// classic single-manager API.
package vmm

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/ZachLondono/Virtual-Memory-Manager/internal/mmu"
)

// VirtAddr is a simulated 32-bit virtual address.
type VirtAddr = mmu.VirtAddr

// PhysAddr is an offset into the simulated physical buffer.
type PhysAddr = mmu.PhysAddr

var (
	ErrOutOfVirtualSpace = mmu.ErrOutOfVirtualSpace
	ErrOutOfFrames       = mmu.ErrOutOfFrames
	ErrUnmappedAddress   = mmu.ErrUnmappedAddress

	ErrNotInitialized = errors.New("vmm: memory manager not initialized")
)

// VM is a handle to one simulated address space.
type VM struct {
	m *mmu.Manager
}

// Option tunes a VM at construction time.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for allocation failures and invalid
// accesses. The default logs text to stderr.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a VM with the given configuration.
func New(cfg Config, opts ...Option) (*VM, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	mcfg := cfg.manager()
	mcfg.Logger = o.logger
	m, err := mmu.New(mcfg)
	if err != nil {
		return nil, err
	}
	return &VM{m: m}, nil
}

// Close releases the simulated physical buffer.
func (vm *VM) Close() error { return vm.m.Close() }

// PageSize returns the configured page size.
func (vm *VM) PageSize() uint32 { return vm.m.Geometry().PageSize }

// Alloc reserves enough pages for numBytes bytes and returns the
// page-aligned virtual address of the first page. The returned address is
// never 0.
func (vm *VM) Alloc(numBytes uint32) (VirtAddr, error) { return vm.m.Alloc(numBytes) }

// Free unmaps ceil(size/PageSize) pages starting at the page containing va.
// Every page in the range must be mapped or the call fails without changes.
func (vm *VM) Free(va VirtAddr, size uint32) error { return vm.m.Free(va, size) }

// Put copies src into simulated memory at va.
func (vm *VM) Put(va VirtAddr, src []byte) error { return vm.m.Put(va, src) }

// Get copies len(dst) bytes of simulated memory at va into dst.
func (vm *VM) Get(va VirtAddr, dst []byte) error { return vm.m.Get(va, dst) }

// Translate resolves va to its physical address without touching memory.
func (vm *VM) Translate(va VirtAddr) (PhysAddr, error) { return vm.m.Translate(va) }

// TLBStats returns the TLB hit and miss counters.
func (vm *VM) TLBStats() (hits, misses uint64) { return vm.m.TLBStats() }

// TLBMissRate returns misses / (hits + misses) over all translations.
func (vm *VM) TLBMissRate() float64 { return vm.m.TLBMissRate() }

// PrintTLBMissRate writes "TLB miss rate x" to stderr.
func (vm *VM) PrintTLBMissRate() {
	fmt.Fprintf(os.Stderr, "TLB miss rate %f\n", vm.m.TLBMissRate())
}

// DumpPageTable writes every live mapping to w, one line per page.
func (vm *VM) DumpPageTable(w io.Writer) error { return vm.m.Dump(w) }

// The process-wide default instance. The first Alloc creates it with
// DefaultConfig; every other operation fails with ErrNotInitialized until
// then.
var (
	defaultMu sync.Mutex
	defaultVM *VM
)

func defaultInstance(create bool) (*VM, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultVM != nil {
		return defaultVM, nil
	}
	if !create {
		return nil, ErrNotInitialized
	}
	vm, err := New(DefaultConfig())
	if err != nil {
		return nil, err
	}
	defaultVM = vm
	return defaultVM, nil
}

// Alloc allocates from the default VM, creating it on first use.
func Alloc(numBytes uint32) (VirtAddr, error) {
	vm, err := defaultInstance(true)
	if err != nil {
		return 0, err
	}
	return vm.Alloc(numBytes)
}

// Free releases an allocation from the default VM.
func Free(va VirtAddr, size uint32) error {
	vm, err := defaultInstance(false)
	if err != nil {
		return err
	}
	return vm.Free(va, size)
}

// Put copies src into the default VM's memory at va.
func Put(va VirtAddr, src []byte) error {
	vm, err := defaultInstance(false)
	if err != nil {
		return err
	}
	return vm.Put(va, src)
}

// Get copies from the default VM's memory at va into dst.
func Get(va VirtAddr, dst []byte) error {
	vm, err := defaultInstance(false)
	if err != nil {
		return err
	}
	return vm.Get(va, dst)
}

// Translate resolves va through the default VM.
func Translate(va VirtAddr) (PhysAddr, error) {
	vm, err := defaultInstance(false)
	if err != nil {
		return 0, err
	}
	return vm.Translate(va)
}

// PrintTLBMissRate reports the default VM's miss rate on stderr.
func PrintTLBMissRate() {
	vm, err := defaultInstance(false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "TLB miss rate unavailable: %v\n", err)
		return
	}
	vm.PrintTLBMissRate()
}
