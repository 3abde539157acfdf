package vmm_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	vmm "github.com/ZachLondono/Virtual-Memory-Manager"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vm.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigHumanSizes(t *testing.T) {
	path := writeConfig(t, `
pageSize: 4KiB
virtualMemory: 16MiB
physicalMemory: 1MiB
tlbEntries: 32
`)

	cfg, err := vmm.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error = %v", err)
	}

	want := vmm.Config{
		PageSize:       4096,
		VirtualMemory:  16 << 20,
		PhysicalMemory: 1 << 20,
		TLBEntries:     32,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigIntegerSizes(t *testing.T) {
	path := writeConfig(t, `
pageSize: 8192
physicalMemory: 2097152
`)

	cfg, err := vmm.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error = %v", err)
	}

	if cfg.PageSize != 8192 || cfg.PhysicalMemory != 2<<20 {
		t.Fatalf("sizes = (%d, %d), want (8192, %d)", cfg.PageSize, cfg.PhysicalMemory, 2<<20)
	}
	// unset fields keep their defaults
	def := vmm.DefaultConfig()
	if cfg.VirtualMemory != def.VirtualMemory || cfg.TLBEntries != def.TLBEntries {
		t.Fatalf("defaults not preserved: %+v", cfg)
	}
}

func TestLoadConfigRejectsBadSize(t *testing.T) {
	path := writeConfig(t, `pageSize: "lots"`)
	if _, err := vmm.LoadConfig(path); err == nil {
		t.Fatal("LoadConfig expected error for unparseable size")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := vmm.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadConfig expected error for missing file")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	vm, err := vmm.New(vmm.DefaultConfig())
	if err != nil {
		t.Fatalf("New(DefaultConfig()) error = %v", err)
	}
	vm.Close()
}
