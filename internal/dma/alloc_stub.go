//go:build !linux

package dma

import (
	"os"
	"unsafe"
)

// Non-Linux builds back regions with ordinary heap memory. Go slices
// do not move once allocated, so the element address still works as a
// stable bus address for the loopback resolver.
func allocPages(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func release(mem []byte) error {
	return nil
}

func busAddr(mem []byte) uint64 {
	return uint64(uintptr(unsafe.Pointer(&mem[0])))
}

func pageSize() int {
	return os.Getpagesize()
}
