package vmm

import "encoding/binary"

// MatMult multiplies two n x n int32 matrices held in simulated memory and
// accumulates into answer, element by element, using only Get and Put. The
// answer region is expected to be zeroed first. Matrices are stored row
// major in the host's native byte order.
func MatMult(vm *VM, mat1, mat2 VirtAddr, n int, answer VirtAddr) error {
	const elem = 4

	at := func(base VirtAddr, row, col int) VirtAddr {
		return base + VirtAddr(elem*(row*n+col))
	}

	var buf [elem]byte
	read := func(base VirtAddr, row, col int) (int32, error) {
		if err := vm.Get(at(base, row, col), buf[:]); err != nil {
			return 0, err
		}
		return int32(binary.NativeEndian.Uint32(buf[:])), nil
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				a, err := read(mat1, i, k)
				if err != nil {
					return err
				}
				b, err := read(mat2, k, j)
				if err != nil {
					return err
				}
				acc, err := read(answer, i, j)
				if err != nil {
					return err
				}

				binary.NativeEndian.PutUint32(buf[:], uint32(acc+a*b))
				if err := vm.Put(at(answer, i, j), buf[:]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
