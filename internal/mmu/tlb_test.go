package mmu

import "testing"

func TestTLBBound(t *testing.T) {
	tlb := NewTLB(4)

	for i := 0; i < 20; i++ {
		tlb.Insert(VirtAddr(i*0x1000), PhysAddr(i*0x1000))
		if tlb.Len() > 4 {
			t.Fatalf("after %d inserts Len = %d, exceeds capacity 4", i+1, tlb.Len())
		}
	}
	if tlb.Len() != 4 {
		t.Fatalf("Len = %d, want 4", tlb.Len())
	}
}

func TestTLBFIFOEviction(t *testing.T) {
	tlb := NewTLB(4)

	// six distinct keys: exactly the first two must have been evicted
	for i := 0; i < 6; i++ {
		tlb.Insert(VirtAddr(i*0x1000), PhysAddr(i*0x100))
	}

	for i := 0; i < 2; i++ {
		if _, ok := tlb.Lookup(VirtAddr(i * 0x1000)); ok {
			t.Fatalf("entry %d survived eviction", i)
		}
	}
	for i := 2; i < 6; i++ {
		pa, ok := tlb.Lookup(VirtAddr(i * 0x1000))
		if !ok {
			t.Fatalf("entry %d missing", i)
		}
		if pa != PhysAddr(i*0x100) {
			t.Fatalf("entry %d pa = %#x, want %#x", i, uint32(pa), i*0x100)
		}
	}
}

func TestTLBCounters(t *testing.T) {
	tlb := NewTLB(4)

	tlb.Insert(0x1000, 0x80)

	if _, ok := tlb.Lookup(0x1000); !ok {
		t.Fatal("expected hit")
	}
	if _, ok := tlb.Lookup(0x2000); ok {
		t.Fatal("expected miss")
	}
	if _, ok := tlb.Lookup(0x1000); !ok {
		t.Fatal("expected hit")
	}

	hits, misses := tlb.Stats()
	if hits != 2 || misses != 1 {
		t.Fatalf("Stats = (%d, %d), want (2, 1)", hits, misses)
	}
	if got := tlb.MissRate(); got != 1.0/3.0 {
		t.Fatalf("MissRate = %v, want 1/3", got)
	}
}

func TestTLBMissRateEmpty(t *testing.T) {
	tlb := NewTLB(4)
	if got := tlb.MissRate(); got != 0 {
		t.Fatalf("MissRate on fresh TLB = %v, want 0", got)
	}
}

func TestTLBInvalidatePage(t *testing.T) {
	tlb := NewTLB(8)

	// two entries inside page 0x3000 (different offsets), two outside
	tlb.Insert(0x3000, 0x100)
	tlb.Insert(0x3004, 0x104)
	tlb.Insert(0x4000, 0x200)
	tlb.Insert(0x5008, 0x308)

	tlb.InvalidatePage(0x3000, 4096)

	if tlb.Len() != 2 {
		t.Fatalf("Len = %d after invalidate, want 2", tlb.Len())
	}
	if _, ok := tlb.Lookup(0x3000); ok {
		t.Fatal("0x3000 survived invalidation")
	}
	if _, ok := tlb.Lookup(0x3004); ok {
		t.Fatal("0x3004 survived invalidation")
	}
	if _, ok := tlb.Lookup(0x4000); !ok {
		t.Fatal("0x4000 dropped by invalidation of another page")
	}
	if _, ok := tlb.Lookup(0x5008); !ok {
		t.Fatal("0x5008 dropped by invalidation of another page")
	}
}

func TestTLBInvalidatePreservesFIFOOrder(t *testing.T) {
	tlb := NewTLB(3)

	tlb.Insert(0x1000, 0x1)
	tlb.Insert(0x2000, 0x2)
	tlb.Insert(0x3000, 0x3)

	tlb.InvalidatePage(0x2000, 4096)

	// filling back up must evict 0x1000 first, then 0x3000
	tlb.Insert(0x4000, 0x4)
	tlb.Insert(0x5000, 0x5)
	if _, ok := tlb.Lookup(0x1000); ok {
		t.Fatal("0x1000 should have been evicted as the oldest entry")
	}
	if _, ok := tlb.Lookup(0x3000); !ok {
		t.Fatal("0x3000 evicted out of order")
	}
}
