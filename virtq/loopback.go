package virtq

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/calder-f/go-virtgpu/internal/dma"
)

// DeviceModel is the device side of a loopback queue. It receives the
// request chain resolved into byte slices, writes its response into
// resp, and returns the number of response bytes written. It runs on a
// queue-owned goroutine, never on the submitting context.
type DeviceModel func(queueIndex uint16, req [][]byte, resp [][]byte) uint32

// Loopback is an in-memory Queue backed by a DeviceModel instead of a
// hardware ring. It preserves the contract the driver depends on:
// chains complete asynchronously, completions surface through
// CanPop/Pop, and descriptor addresses are dereferenced the way a
// device dereferences bus addresses.
type Loopback struct {
	index   uint16
	size    int
	latency time.Duration
	model   DeviceModel

	mu       sync.Mutex
	inflight int
	closed   bool

	notifyRequested atomic.Bool
	notifications   atomic.Uint64

	done chan uint32
}

// NewLoopback creates a loopback queue of the given descriptor
// capacity. latency delays each completion, simulating device work.
func NewLoopback(index uint16, size int, latency time.Duration, model DeviceModel) *Loopback {
	return &Loopback{
		index:   index,
		size:    size,
		latency: latency,
		model:   model,
		done:    make(chan uint32, size),
	}
}

// SetLatency changes the per-command completion delay. Only safe to
// call while no command is in flight.
func (q *Loopback) SetLatency(d time.Duration) { q.latency = d }

// Notifications returns how many times the doorbell was rung.
func (q *Loopback) Notifications() uint64 { return q.notifications.Load() }

// Close marks the queue dead; subsequent Enqueues fail.
func (q *Loopback) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

func (q *Loopback) Size() int { return q.size }

func (q *Loopback) Enqueue(readable, writable []BufferRange) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	// Each range consumes one descriptor.
	if q.inflight+len(readable)+len(writable) > q.size {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.inflight += len(readable) + len(writable)
	q.mu.Unlock()

	ndesc := len(readable) + len(writable)
	release := func() {
		q.mu.Lock()
		q.inflight -= ndesc
		q.mu.Unlock()
	}

	req, err := resolveAll(readable)
	if err != nil {
		release()
		return QueueError("virtq: " + err.Error())
	}
	resp, err := resolveAll(writable)
	if err != nil {
		release()
		return QueueError("virtq: " + err.Error())
	}
	q.notifyRequested.Store(true)

	go func() {
		if q.latency > 0 {
			time.Sleep(q.latency)
		}
		written := q.model(q.index, req, resp)
		release()
		q.done <- written
	}()
	return nil
}

func resolveAll(ranges []BufferRange) ([][]byte, error) {
	bufs := make([][]byte, len(ranges))
	for i, r := range ranges {
		b, err := dma.Resolve(r.Addr, r.Len)
		if err != nil {
			return nil, err
		}
		bufs[i] = b
	}
	return bufs, nil
}

func (q *Loopback) ShouldNotify() bool {
	return q.notifyRequested.Load()
}

func (q *Loopback) Notify() {
	q.notifyRequested.Store(false)
	q.notifications.Add(1)
}

func (q *Loopback) CanPop() bool {
	return len(q.done) > 0
}

func (q *Loopback) Pop() (uint32, error) {
	select {
	case written := <-q.done:
		return written, nil
	default:
		return 0, ErrNothingToPop
	}
}
