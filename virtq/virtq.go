// Package virtq defines the narrow interface through which the driver
// consumes a virtqueue. The ring primitive itself (descriptor table,
// rings, doorbell) lives behind this interface; the driver only submits
// descriptor chains and polls for completion.
package virtq

// BufferRange names a bus-addressed byte range for one descriptor.
type BufferRange struct {
	Addr uint64
	Len  uint32
}

// Queue is one virtqueue as seen by the driver.
//
// Enqueue posts a single descriptor chain: the readable ranges are
// device-readable (the request), the writable ranges device-writable
// (the response). ShouldNotify reports whether the device asked for a
// doorbell after the last Enqueue; Notify rings it. CanPop reports
// whether a completed chain is waiting; Pop retires it and returns the
// number of bytes the device wrote.
//
// Implementations are not required to be safe for concurrent use: the
// transport adapter serializes all access under its own lock.
type Queue interface {
	Enqueue(readable, writable []BufferRange) error
	ShouldNotify() bool
	Notify()
	CanPop() bool
	Pop() (written uint32, err error)
	Size() int
}

// QueueError reports a ring-level failure. Both enqueue and pop
// failures indicate a broken ring invariant and are never retried.
type QueueError string

func (e QueueError) Error() string { return string(e) }

const (
	// ErrQueueFull is returned by Enqueue when no descriptors are free.
	ErrQueueFull QueueError = "virtq: queue full"
	// ErrQueueClosed is returned after the queue has been shut down.
	ErrQueueClosed QueueError = "virtq: queue closed"
	// ErrNothingToPop is returned by Pop without a completed chain.
	ErrNothingToPop QueueError = "virtq: no completed descriptor"
)
