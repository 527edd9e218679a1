// Package virtgpu implements a guest driver for the virtio-gpu
// para-virtualized display device: 2D scanout and cursor display over
// the device's control and cursor virtqueues.
//
// The virtqueue ring primitive, DMA allocation and the bus transport
// are collaborators consumed through narrow interfaces; this package
// owns the command protocol, the resource lifecycle and the display
// session operations built on them.
package virtgpu

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/calder-f/go-virtgpu/internal/dma"
	"github.com/calder-f/go-virtgpu/internal/engine"
	"github.com/calder-f/go-virtgpu/internal/gpuwire"
	"github.com/calder-f/go-virtgpu/internal/logging"
	"github.com/calder-f/go-virtgpu/internal/resource"
	"github.com/calder-f/go-virtgpu/internal/transport"
	"github.com/calder-f/go-virtgpu/virtq"
)

// Transport is the bus collaborator: it negotiates features, exposes
// configuration state, builds virtqueues and dispatches interrupts.
// SimTransport implements it for tests; a PCI or MMIO binding would
// implement it for real hardware.
type Transport interface {
	// Features returns the device's offered feature bits.
	Features() uint64

	// NegotiateFeatures accepts a subset of the offered bits.
	NegotiateFeatures(feats uint64) error

	// ConfigureQueue sets up the virtqueue at the given device index
	// with the requested descriptor depth.
	ConfigureQueue(index uint16, depth int) (virtq.Queue, error)

	// NumScanouts reads the scanout count from the device
	// configuration space.
	NumScanouts() uint32

	// RegisterQueueCallback installs the completion interrupt handler
	// for one queue.
	RegisterQueueCallback(index uint16, fn func())

	// RegisterConfigCallback installs the config-change handler.
	RegisterConfigCallback(fn func())

	// Start tells the device the driver is ready (DRIVER_OK).
	Start()
}

// Config parameterizes Open. The zero value of every field gets a
// sensible default.
type Config struct {
	QueueDepth   int
	PollInterval time.Duration
	PollTimeout  time.Duration
	Logger       *logging.Logger
}

// Device is an open virtio-gpu device. All methods are safe for
// concurrent use; control commands serialize on the control queue
// lock, cursor commands on the cursor queue lock.
type Device struct {
	transport Transport

	control *transport.Adapter
	cursor  *transport.Adapter

	ctlEng *engine.Engine
	curEng *engine.Engine

	resources *resource.Manager
	metrics   *Metrics
	log       *logging.Logger

	edidSupported bool

	// Regions allocated for resource backings, freed on Close. Guarded
	// by mu; the resource manager owns all other shared state.
	mu      sync.Mutex
	regions []*dma.Region

	// Interrupt plumbing: the handlers only count events. The
	// completion wait is a poll, not an interrupt wakeup.
	controlIRQs  atomic.Uint64
	cursorIRQs   atomic.Uint64
	configEvents atomic.Uint64
}

// trackRegion remembers a backing region so Close can release it.
func (d *Device) trackRegion(r *dma.Region) {
	d.mu.Lock()
	d.regions = append(d.regions, r)
	d.mu.Unlock()
}

// untrackRegion forgets a region that has already been freed.
func (d *Device) untrackRegion(r *dma.Region) {
	d.mu.Lock()
	for i, have := range d.regions {
		if have == r {
			d.regions = append(d.regions[:i], d.regions[i+1:]...)
			break
		}
	}
	d.mu.Unlock()
}

// Open negotiates features with the device, builds both queue
// adapters with their DMA buffer pairs, and wires interrupt callbacks.
func Open(t Transport, cfg Config) (*Device, error) {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}

	offered := t.Features()
	var want uint64
	if offered&gpuwire.FeatureEDID != 0 {
		want |= gpuwire.FeatureEDID
	}
	if err := t.NegotiateFeatures(want); err != nil {
		return nil, WrapError("OPEN", fmt.Errorf("feature negotiation: %w", err))
	}
	log.Info("negotiated features", "offered", fmt.Sprintf("%#x", offered), "accepted", fmt.Sprintf("%#x", want))

	controlQ, err := t.ConfigureQueue(ControlQueueIndex, cfg.QueueDepth)
	if err != nil {
		return nil, WrapError("OPEN", fmt.Errorf("configure control queue: %w", err))
	}
	cursorQ, err := t.ConfigureQueue(CursorQueueIndex, cfg.QueueDepth)
	if err != nil {
		return nil, WrapError("OPEN", fmt.Errorf("configure cursor queue: %w", err))
	}

	metrics := NewMetrics()

	control, err := transport.New(transport.Config{
		Name:          "control",
		Queue:         controlQ,
		RequestBytes:  requestRegionBytes,
		ResponseBytes: responseRegionBytes,
		PollInterval:  cfg.PollInterval,
		Timeout:       cfg.PollTimeout,
		Observer:      metrics,
		Logger:        log,
	})
	if err != nil {
		return nil, WrapError("OPEN", err)
	}
	cursor, err := transport.New(transport.Config{
		Name:          "cursor",
		Queue:         cursorQ,
		RequestBytes:  requestRegionBytes,
		ResponseBytes: responseRegionBytes,
		PollInterval:  cfg.PollInterval,
		Timeout:       cfg.PollTimeout,
		Observer:      metrics,
		Logger:        log,
	})
	if err != nil {
		control.Close()
		return nil, WrapError("OPEN", err)
	}

	d := &Device{
		transport:     t,
		control:       control,
		cursor:        cursor,
		ctlEng:        engine.New(control, log),
		curEng:        engine.New(cursor, log),
		resources:     resource.NewManager(),
		metrics:       metrics,
		log:           log,
		edidSupported: want&gpuwire.FeatureEDID != 0,
	}

	t.RegisterQueueCallback(ControlQueueIndex, func() { d.controlIRQs.Add(1) })
	t.RegisterQueueCallback(CursorQueueIndex, func() { d.cursorIRQs.Add(1) })
	t.RegisterConfigCallback(func() {
		d.configEvents.Add(1)
		d.log.Info("config space change; display info is stale until re-queried")
	})
	t.Start()

	d.log.Info("device open",
		"queue_depth", cfg.QueueDepth,
		"scanouts", t.NumScanouts(),
		"edid", d.edidSupported)
	return d, nil
}

// EDIDSupported reports whether the device offered GET_EDID.
func (d *Device) EDIDSupported() bool { return d.edidSupported }

// Metrics returns the device's metrics sink.
func (d *Device) Metrics() *Metrics { return d.metrics }

// ConfigEvents returns how many config-change interrupts have fired.
func (d *Device) ConfigEvents() uint64 { return d.configEvents.Load() }

// Close stamps metrics and releases both adapters' DMA pairs. The
// caller must guarantee no command is in flight.
func (d *Device) Close() error {
	d.metrics.Stop()
	if err := d.control.Close(); err != nil {
		return err
	}
	if err := d.cursor.Close(); err != nil {
		return err
	}
	d.mu.Lock()
	regions := d.regions
	d.regions = nil
	d.mu.Unlock()
	for _, r := range regions {
		if err := r.Free(); err != nil {
			return err
		}
	}
	return nil
}
