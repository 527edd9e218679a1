//go:build linux

package dma

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Pages come from an anonymous private mapping, which is page-aligned
// and stays put for the life of the mapping, so the mapped address can
// serve as the bus address.
func allocPages(size int) ([]byte, error) {
	mem, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANONYMOUS|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return mem, nil
}

func release(mem []byte) error {
	return unix.Munmap(mem)
}

func busAddr(mem []byte) uint64 {
	return uint64(uintptr(unsafe.Pointer(&mem[0])))
}

func pageSize() int {
	return unix.Getpagesize()
}
