// Package dma provides page-granular memory regions that the device
// side of a virtqueue can address directly. Addresses handed out here
// are bus addresses from the driver's point of view: descriptors and
// attach-backing entries carry them verbatim, and the loopback device
// model resolves them back to buffers through the package registry.
//
// Cache coherency follows the usual DMA discipline: SyncToDevice before
// the device reads a range, SyncFromDevice before the guest reads a
// range the device wrote. On the targets this package supports both are
// compiler/runtime ordering points rather than cache maintenance
// operations, but callers must not skip them.
package dma

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Segment is one physically contiguous piece of a region, as named in
// descriptor chains and attach-backing entries.
type Segment struct {
	Addr   uint64
	Length uint32
}

// Region is DMA-visible memory. A region allocated with AllocRegion is
// a single contiguous segment.
type Region struct {
	mem  []byte
	segs []Segment
}

// Bytes returns the region's guest-visible byte view.
func (r *Region) Bytes() []byte { return r.mem }

// Len returns the region size in bytes.
func (r *Region) Len() int { return len(r.mem) }

// Segments returns the bus-address segments backing the region, in
// guest byte order.
func (r *Region) Segments() []Segment { return r.segs }

// Addr returns the bus address of the region's first byte.
func (r *Region) Addr() uint64 { return r.segs[0].Addr }

// fence is a cheap ordering point shared by the sync hooks.
var fence atomic.Uint32

// SyncToDevice publishes guest writes in [off, off+n) to the device.
func (r *Region) SyncToDevice(off, n int) {
	_ = r.mem[off : off+n]
	fence.Add(1)
}

// SyncFromDevice makes device writes in [off, off+n) visible to the
// guest.
func (r *Region) SyncFromDevice(off, n int) {
	_ = r.mem[off : off+n]
	fence.Load()
}

// Free unmaps the region and removes it from the resolver registry.
// The region must not be referenced by an in-flight command.
func (r *Region) Free() error {
	unregister(r)
	return release(r.mem)
}

// AllocRegion allocates one DMA-visible segment of at least size bytes,
// rounded up to the page granularity.
func AllocRegion(size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("dma: invalid region size %d", size)
	}
	mem, err := allocPages(PageAlign(size))
	if err != nil {
		return nil, err
	}
	r := &Region{
		mem:  mem,
		segs: []Segment{{Addr: busAddr(mem), Length: uint32(len(mem))}},
	}
	register(r)
	return r, nil
}

// registry maps bus address ranges back to live regions so the
// loopback device model can dereference descriptor addresses the way
// real hardware dereferences physical addresses.
var registry struct {
	mu      sync.RWMutex
	regions []*Region
}

func register(r *Region) {
	registry.mu.Lock()
	registry.regions = append(registry.regions, r)
	registry.mu.Unlock()
}

func unregister(r *Region) {
	registry.mu.Lock()
	for i, q := range registry.regions {
		if q == r {
			registry.regions = append(registry.regions[:i], registry.regions[i+1:]...)
			break
		}
	}
	registry.mu.Unlock()
}

// Resolve maps a bus address range to the backing buffer. It fails if
// the range is not wholly inside one live region segment, which on real
// hardware would be a stray DMA.
func Resolve(addr uint64, length uint32) ([]byte, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	for _, r := range registry.regions {
		var off uint64
		for _, s := range r.segs {
			if addr >= s.Addr && addr+uint64(length) <= s.Addr+uint64(s.Length) {
				start := off + (addr - s.Addr)
				return r.mem[start : start+uint64(length)], nil
			}
			off += uint64(s.Length)
		}
	}
	return nil, fmt.Errorf("dma: no region maps [%#x, %#x)", addr, addr+uint64(length))
}

// PageAlign rounds n up to the page granularity.
func PageAlign(n int) int {
	ps := pageSize()
	return (n + ps - 1) &^ (ps - 1)
}
