package vmm_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	vmm "github.com/ZachLondono/Virtual-Memory-Manager"
)

func newTestVM(t *testing.T) *vmm.VM {
	t.Helper()
	cfg := vmm.Config{
		PageSize:       4096,
		VirtualMemory:  16 << 20,
		PhysicalMemory: 1 << 20,
		TLBEntries:     16,
	}
	vm, err := vmm.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { vm.Close() })
	return vm
}

func TestRoundTripAtOffsets(t *testing.T) {
	vm := newTestVM(t)

	const size = 2 * 4096
	va, err := vm.Alloc(size)
	if err != nil {
		t.Fatalf("Alloc error = %v", err)
	}

	for _, k := range []uint32{0, 8, 4096, 4100} {
		pattern := []byte{byte(k), 0xAB, 0xCD, byte(k >> 8)}
		if err := vm.Put(va+vmm.VirtAddr(k), pattern); err != nil {
			t.Fatalf("Put at +%d error = %v", k, err)
		}
		got := make([]byte, len(pattern))
		if err := vm.Get(va+vmm.VirtAddr(k), got); err != nil {
			t.Fatalf("Get at +%d error = %v", k, err)
		}
		if !bytes.Equal(got, pattern) {
			t.Fatalf("round trip at +%d = %v, want %v", k, got, pattern)
		}
	}
}

func TestUseAfterFreeFaults(t *testing.T) {
	vm := newTestVM(t)

	va, err := vm.Alloc(8192)
	if err != nil {
		t.Fatalf("Alloc error = %v", err)
	}
	if err := vm.Free(va, 8192); err != nil {
		t.Fatalf("Free error = %v", err)
	}
	if err := vm.Get(va, make([]byte, 4)); !errors.Is(err, vmm.ErrUnmappedAddress) {
		t.Fatalf("Get after free error = %v, want ErrUnmappedAddress", err)
	}
}

func putMatrix(t *testing.T, vm *vmm.VM, va vmm.VirtAddr, m []int32) {
	t.Helper()
	buf := make([]byte, 4*len(m))
	for i, v := range m {
		binary.NativeEndian.PutUint32(buf[4*i:], uint32(v))
	}
	if err := vm.Put(va, buf); err != nil {
		t.Fatalf("Put matrix error = %v", err)
	}
}

func TestMatMultIdentity(t *testing.T) {
	vm := newTestVM(t)

	const n = 4
	const size = 4 * n * n

	mat1, err := vm.Alloc(size)
	if err != nil {
		t.Fatalf("Alloc mat1 error = %v", err)
	}
	mat2, err := vm.Alloc(size)
	if err != nil {
		t.Fatalf("Alloc mat2 error = %v", err)
	}
	answer, err := vm.Alloc(size)
	if err != nil {
		t.Fatalf("Alloc answer error = %v", err)
	}

	identity := make([]int32, n*n)
	for i := 0; i < n; i++ {
		identity[i*n+i] = 1
	}
	putMatrix(t, vm, mat1, identity)

	m := []int32{
		3, -1, 4, 1,
		5, 9, -2, 6,
		5, 3, 5, 8,
		-9, 7, 9, 3,
	}
	putMatrix(t, vm, mat2, m)
	putMatrix(t, vm, answer, make([]int32, n*n))

	if err := vmm.MatMult(vm, mat1, mat2, n, answer); err != nil {
		t.Fatalf("MatMult error = %v", err)
	}

	want := make([]byte, size)
	for i, v := range m {
		binary.NativeEndian.PutUint32(want[4*i:], uint32(v))
	}
	got := make([]byte, size)
	if err := vm.Get(answer, got); err != nil {
		t.Fatalf("Get answer error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("identity multiply did not reproduce the input matrix")
	}
}

func TestDefaultInstanceLifecycle(t *testing.T) {
	// before the first Alloc nothing else works
	if err := vmm.Free(0x1000, 1); !errors.Is(err, vmm.ErrNotInitialized) {
		t.Fatalf("Free before init error = %v, want ErrNotInitialized", err)
	}
	if _, err := vmm.Translate(0x1000); !errors.Is(err, vmm.ErrNotInitialized) {
		t.Fatalf("Translate before init error = %v, want ErrNotInitialized", err)
	}

	va, err := vmm.Alloc(64)
	if err != nil {
		t.Fatalf("Alloc error = %v", err)
	}
	if err := vmm.Put(va, []byte("hello")); err != nil {
		t.Fatalf("Put error = %v", err)
	}
	got := make([]byte, 5)
	if err := vmm.Get(va, got); err != nil {
		t.Fatalf("Get error = %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("Get = %q, want hello", got)
	}
	if err := vmm.Free(va, 64); err != nil {
		t.Fatalf("Free error = %v", err)
	}
}
