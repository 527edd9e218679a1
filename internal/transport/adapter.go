// Package transport implements the synchronous submit-and-wait round
// trip over one virtqueue. Each adapter owns its queue plus a pair of
// DMA regions (outbound request bytes, inbound response bytes); the
// control and cursor queues get independent adapters so a slow control
// command never delays a cursor update.
package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/calder-f/go-virtgpu/internal/dma"
	"github.com/calder-f/go-virtgpu/internal/logging"
	"github.com/calder-f/go-virtgpu/virtq"
)

// Error wraps a virtqueue enqueue or pop failure. It indicates a ring
// or descriptor-table invariant violation and is fatal to the in-flight
// operation; the adapter never retries.
type Error struct {
	Queue string
	Op    string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s on %s queue: %v", e.Op, e.Queue, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrPoisoned is the cause carried by submissions rejected after an
// earlier round trip timed out on the same adapter. The timed-out
// completion is still outstanding in the queue; popping it for a later
// command would attribute a stale response to the wrong request.
var ErrPoisoned = errors.New("transport: adapter disabled after timeout")

// TimeoutError reports that the device never completed a submitted
// request within the adapter's poll budget. After a timeout the
// adapter refuses all further traffic (see ErrPoisoned).
type TimeoutError struct {
	Queue   string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transport: %s queue: device did not complete within %v", e.Queue, e.Elapsed)
}

// Observer receives one sample per completed round trip.
type Observer interface {
	ObserveRoundTrip(queue string, latency time.Duration, ok bool)
}

// Config parameterizes an adapter.
type Config struct {
	// Name tags log lines and errors ("control", "cursor").
	Name string
	// Queue is the virtqueue this adapter drives.
	Queue virtq.Queue
	// RequestBytes / ResponseBytes size the DMA regions. Both are
	// rounded up to the page granularity.
	RequestBytes  int
	ResponseBytes int
	// PollInterval bounds how hot the completion spin runs; zero means
	// spin without yielding.
	PollInterval time.Duration
	// Timeout bounds the whole wait; zero waits forever.
	Timeout time.Duration

	Observer Observer
	Logger   *logging.Logger
}

// Adapter drives one virtqueue synchronously: exactly one request and
// response round trip is in flight at a time, enforced by the adapter
// lock held from submit through pop.
type Adapter struct {
	mu sync.Mutex // held from submit through pop

	// poisoned is set when a round trip times out. The orphaned
	// completion still owns the queue slot and the response region, so
	// no further chain may be posted.
	poisoned bool

	name string
	q    virtq.Queue
	req  *dma.Region
	resp *dma.Region

	pollInterval time.Duration
	timeout      time.Duration

	obs Observer
	log *logging.Logger
}

// New allocates the adapter's DMA pair and wires it to the queue.
func New(cfg Config) (*Adapter, error) {
	req, err := dma.AllocRegion(cfg.RequestBytes)
	if err != nil {
		return nil, fmt.Errorf("transport: alloc %s request region: %w", cfg.Name, err)
	}
	resp, err := dma.AllocRegion(cfg.ResponseBytes)
	if err != nil {
		req.Free()
		return nil, fmt.Errorf("transport: alloc %s response region: %w", cfg.Name, err)
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	a := &Adapter{
		name:         cfg.Name,
		q:            cfg.Queue,
		req:          req,
		resp:         resp,
		pollInterval: cfg.PollInterval,
		timeout:      cfg.Timeout,
		obs:          cfg.Observer,
		log:          log.WithQueue(cfg.Name),
	}
	return a, nil
}

// Name returns the adapter's queue tag.
func (a *Adapter) Name() string { return a.name }

// Close releases the adapter's DMA regions. The caller must guarantee
// no round trip is in flight.
func (a *Adapter) Close() error {
	if err := a.req.Free(); err != nil {
		return err
	}
	return a.resp.Free()
}

// SubmitAndWait writes the request parts back-to-back into the request
// region, posts the chain (request ranges device-readable, response
// range device-writable), rings the doorbell if asked, busy-polls for
// completion and returns a copy of the response bytes.
//
// The response region is zeroed for respLen bytes before submission so
// stale bytes from a previous command can never be misread as a fresh
// response. After a TimeoutError every later call fails with a
// transport error carrying ErrPoisoned: the timed-out completion is
// still pending in the queue, and a new chain posted behind it would
// pop that stale completion as its own.
func (a *Adapter) SubmitAndWait(parts [][]byte, respLen int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.poisoned {
		return nil, &Error{Queue: a.name, Op: "submit", Err: ErrPoisoned}
	}

	reqMem := a.req.Bytes()
	respMem := a.resp.Bytes()

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	if total > len(reqMem) {
		return nil, &Error{Queue: a.name, Op: "submit", Err: fmt.Errorf("request %d bytes exceeds region %d", total, len(reqMem))}
	}
	if respLen > len(respMem) {
		return nil, &Error{Queue: a.name, Op: "submit", Err: fmt.Errorf("response %d bytes exceeds region %d", respLen, len(respMem))}
	}

	readable := make([]virtq.BufferRange, 0, len(parts))
	off := 0
	for _, p := range parts {
		copy(reqMem[off:], p)
		readable = append(readable, virtq.BufferRange{
			Addr: a.req.Addr() + uint64(off),
			Len:  uint32(len(p)),
		})
		off += len(p)
	}
	a.req.SyncToDevice(0, total)

	for i := range respMem[:respLen] {
		respMem[i] = 0
	}
	writable := []virtq.BufferRange{{Addr: a.resp.Addr(), Len: uint32(respLen)}}
	a.resp.SyncToDevice(0, respLen)

	start := time.Now()
	if err := a.q.Enqueue(readable, writable); err != nil {
		a.observe(start, false)
		return nil, &Error{Queue: a.name, Op: "enqueue", Err: err}
	}
	if a.q.ShouldNotify() {
		a.q.Notify()
	}

	// Synchronous busy-poll. The queue interrupt handler does not wake
	// this waiter; replacing the spin with a wait-queue is an internal
	// change behind this method's contract.
	for !a.q.CanPop() {
		if a.timeout > 0 && time.Since(start) > a.timeout {
			a.poisoned = true
			a.observe(start, false)
			a.log.Warn("round trip timed out, adapter disabled", "elapsed", time.Since(start))
			return nil, &TimeoutError{Queue: a.name, Elapsed: time.Since(start)}
		}
		if a.pollInterval > 0 {
			time.Sleep(a.pollInterval)
		}
	}
	written, err := a.q.Pop()
	if err != nil {
		a.observe(start, false)
		return nil, &Error{Queue: a.name, Op: "pop", Err: err}
	}

	// Only the bytes the device reports written are trusted; the tail
	// of the response stays at its pre-submit zeroes.
	n := int(written)
	if n > respLen {
		n = respLen
	}
	a.resp.SyncFromDevice(0, n)
	out := make([]byte, respLen)
	copy(out, respMem[:n])

	a.observe(start, true)
	a.log.Debug("round trip complete",
		"request_bytes", total,
		"response_bytes", respLen,
		"latency", time.Since(start))
	return out, nil
}

func (a *Adapter) observe(start time.Time, ok bool) {
	if a.obs != nil {
		a.obs.ObserveRoundTrip(a.name, time.Since(start), ok)
	}
}
