//go:build unix

package hostmem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func allocRegion(size int) (*Region, error) {
	mem, err := unix.Mmap(
		-1,
		0,
		size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANONYMOUS|unix.MAP_PRIVATE,
	)
	if err != nil {
		return nil, fmt.Errorf("hostmem: mmap %d bytes: %w", size, err)
	}
	return &Region{data: mem, mapped: true}, nil
}

func (r *Region) release() error {
	if !r.mapped || r.data == nil {
		r.data = nil
		return nil
	}
	data := r.data
	r.data = nil
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("hostmem: munmap: %w", err)
	}
	return nil
}
