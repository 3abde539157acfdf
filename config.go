package vmm

import (
	"fmt"
	"os"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"

	"github.com/ZachLondono/Virtual-Memory-Manager/internal/mmu"
)

// Size is a byte count that unmarshals from either a plain integer or a
// human-readable string such as "4KiB" or "1GiB".
type Size uint64

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	var n uint64
	if err := value.Decode(&n); err == nil {
		*s = Size(n)
		return nil
	}

	var str string
	if err := value.Decode(&str); err != nil {
		return fmt.Errorf("config: size must be an integer or a string: %w", err)
	}
	parsed, err := units.RAMInBytes(str)
	if err != nil {
		return fmt.Errorf("config: invalid size %q: %w", str, err)
	}
	*s = Size(parsed)
	return nil
}

// String renders the size in binary units.
func (s Size) String() string {
	return units.BytesSize(float64(s))
}

// Config holds the tunable parameters of a VM. Each field has a single
// effect: PageSize sets the offset bits and the directory/table
// split, VirtualMemory the virtual bitmap length, PhysicalMemory the
// physical bitmap length and the buffer allocation, and TLBEntries the FIFO
// capacity of the TLB.
type Config struct {
	PageSize       Size `yaml:"pageSize"`
	VirtualMemory  Size `yaml:"virtualMemory"`
	PhysicalMemory Size `yaml:"physicalMemory"`
	TLBEntries     int  `yaml:"tlbEntries"`
}

// DefaultConfig returns the classic parameters: 4 KiB pages, a 4 GiB
// virtual address space, 1 GiB of simulated physical memory and 120 TLB
// entries.
func DefaultConfig() Config {
	return Config{
		PageSize:       4096,
		VirtualMemory:  4 * units.GiB,
		PhysicalMemory: 1 * units.GiB,
		TLBEntries:     120,
	}
}

// LoadConfig reads a yaml config file, filling unset fields from
// DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) manager() mmu.Config {
	return mmu.Config{
		PageSize:      uint32(c.PageSize),
		VirtualBytes:  uint64(c.VirtualMemory),
		PhysicalBytes: uint64(c.PhysicalMemory),
		TLBSlots:      c.TLBEntries,
	}
}
