// Command vmbench exercises the virtual memory manager with the classic
// matrix-multiply workload: three simulated allocations, every element read
// and written through Get/Put, and the TLB accounting printed at the end.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/docker/go-units"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	vmm "github.com/ZachLondono/Virtual-Memory-Manager"
)

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	configPath := fs.String("config", "", "Optional yaml config file")
	pageSize := fs.String("pagesize", "", "Page size, e.g. 4KiB")
	physMem := fs.String("physmem", "", "Simulated physical memory size, e.g. 1GiB")
	virtMem := fs.String("virtmem", "", "Virtual address space size, e.g. 4GiB")
	tlbEntries := fs.Int("tlb", 0, "TLB capacity in entries")
	dim := fs.Int("n", 16, "Matrix dimension")
	rounds := fs.Int("rounds", 10, "Number of multiplication rounds")
	seed := fs.Int64("seed", 1, "Seed for the matrix contents")
	dump := fs.Bool("dump", false, "Dump the page table after the run")

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg := vmm.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = vmm.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
	}
	for _, override := range []struct {
		raw  string
		dest *vmm.Size
	}{
		{*pageSize, &cfg.PageSize},
		{*physMem, &cfg.PhysicalMemory},
		{*virtMem, &cfg.VirtualMemory},
	} {
		if override.raw == "" {
			continue
		}
		n, err := units.RAMInBytes(override.raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid size %q: %v\n", override.raw, err)
			os.Exit(1)
		}
		*override.dest = vmm.Size(n)
	}
	if *tlbEntries > 0 {
		cfg.TLBEntries = *tlbEntries
	}

	vm, err := vmm.New(cfg, vmm.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create vm: %v\n", err)
		os.Exit(1)
	}
	defer vm.Close()

	logger.Info("vm created",
		slog.String("pageSize", cfg.PageSize.String()),
		slog.String("physicalMemory", cfg.PhysicalMemory.String()),
		slog.String("virtualMemory", cfg.VirtualMemory.String()),
		slog.Int("tlbEntries", cfg.TLBEntries))

	if err := run(vm, logger, *dim, *rounds, *seed); err != nil {
		fmt.Fprintf(os.Stderr, "benchmark failed: %v\n", err)
		os.Exit(1)
	}

	if *dump {
		if err := vm.DumpPageTable(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "failed to dump page table: %v\n", err)
			os.Exit(1)
		}
	}

	vm.PrintTLBMissRate()
}

func run(vm *vmm.VM, logger *slog.Logger, n, rounds int, seed int64) error {
	bytes := uint32(4 * n * n)

	mat1, err := vm.Alloc(bytes)
	if err != nil {
		return err
	}
	mat2, err := vm.Alloc(bytes)
	if err != nil {
		return err
	}
	answer, err := vm.Alloc(bytes)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(seed))
	buf := make([]byte, bytes)
	for i := 0; i < n*n; i++ {
		binary.NativeEndian.PutUint32(buf[4*i:], uint32(rng.Int31n(100)))
	}
	if err := vm.Put(mat1, buf); err != nil {
		return err
	}
	for i := 0; i < n*n; i++ {
		binary.NativeEndian.PutUint32(buf[4*i:], uint32(rng.Int31n(100)))
	}
	if err := vm.Put(mat2, buf); err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if term.IsTerminal(int(os.Stderr.Fd())) {
		bar = progressbar.Default(int64(rounds))
	}

	zero := make([]byte, bytes)
	start := time.Now()
	for round := 0; round < rounds; round++ {
		if err := vm.Put(answer, zero); err != nil {
			return err
		}
		if err := vmm.MatMult(vm, mat1, mat2, n, answer); err != nil {
			return err
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	elapsed := time.Since(start)

	hits, misses := vm.TLBStats()
	logger.Info("benchmark complete",
		slog.Int("n", n),
		slog.Int("rounds", rounds),
		slog.Duration("elapsed", elapsed),
		slog.Uint64("tlbHits", hits),
		slog.Uint64("tlbMisses", misses))

	for _, region := range []struct {
		name string
		va   vmm.VirtAddr
	}{{"mat1", mat1}, {"mat2", mat2}, {"answer", answer}} {
		if err := vm.Free(region.va, bytes); err != nil {
			return fmt.Errorf("free %s: %w", region.name, err)
		}
	}
	return nil
}
