package virtgpu

import (
	"sync"
	"time"

	"github.com/calder-f/go-virtgpu/internal/gpuwire"
	"github.com/calder-f/go-virtgpu/virtq"
)

// SimGPU is an in-process device model implementing the 2D command
// set. It backs SimTransport's loopback queues and tracks every
// command it handles for verification.
//
// The model keeps its own resource table so guest-side bookkeeping
// bugs (double create, unref of an unknown id) surface as protocol
// errors, the same way qemu reports them.
type SimGPU struct {
	mu sync.Mutex

	scanouts []gpuwire.DisplayOne
	edid     []byte

	resources map[uint32]simResource

	// forced maps a command type to an error response type returned
	// instead of handling the command.
	forced map[uint32]uint32

	// commands records handled command types per queue index.
	commands map[uint16][]uint32
}

type simResource struct {
	width  uint32
	height uint32
	backed bool
}

// NewSimGPU builds a model with one enabled 1280x800 scanout and a
// minimal EDID blob.
func NewSimGPU() *SimGPU {
	g := &SimGPU{
		scanouts:  make([]gpuwire.DisplayOne, gpuwire.MaxScanouts),
		resources: make(map[uint32]simResource),
		forced:    make(map[uint32]uint32),
		commands:  make(map[uint16][]uint32),
	}
	g.scanouts[0] = gpuwire.DisplayOne{
		R:       gpuwire.Rect{Width: 1280, Height: 800},
		Enabled: 1,
	}
	g.edid = []byte{0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00}
	return g
}

// SetScanoutMode changes one scanout's reported mode.
func (g *SimGPU) SetScanoutMode(scanout, width, height uint32, enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var en uint32
	if enabled {
		en = 1
	}
	g.scanouts[scanout] = gpuwire.DisplayOne{
		R:       gpuwire.Rect{Width: width, Height: height},
		Enabled: en,
	}
}

// SetEDID replaces the EDID blob returned for every scanout.
func (g *SimGPU) SetEDID(blob []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edid = append([]byte(nil), blob...)
}

// ForceError makes the model answer cmd with the given error response
// type until cleared.
func (g *SimGPU) ForceError(cmd, respType uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.forced[cmd] = respType
}

// ClearForcedError restores normal handling for cmd.
func (g *SimGPU) ClearForcedError(cmd uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.forced, cmd)
}

// Commands returns the command types handled on one queue, in order.
func (g *SimGPU) Commands(queue uint16) []uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]uint32(nil), g.commands[queue]...)
}

// HasResource reports whether the model has a live resource for id.
func (g *SimGPU) HasResource(id uint32) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.resources[id]
	return ok
}

// Handle is the virtq.DeviceModel entry point.
func (g *SimGPU) Handle(queue uint16, req [][]byte, resp [][]byte) uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()

	in := flatten(req)
	hdr, err := gpuwire.DecodeCtrlHdr(in)
	if err != nil {
		return g.respondNoData(resp, gpuwire.CtrlHdr{}, gpuwire.RespErrUnspec)
	}
	g.commands[queue] = append(g.commands[queue], hdr.Type)

	if respType, ok := g.forced[hdr.Type]; ok {
		return g.respondNoData(resp, hdr, respType)
	}

	switch hdr.Type {
	case gpuwire.CmdGetDisplayInfo:
		return g.handleDisplayInfo(resp, hdr)
	case gpuwire.CmdGetEDID:
		return g.handleGetEDID(in, resp, hdr)
	case gpuwire.CmdResourceCreate2D:
		return g.handleCreate(in, resp, hdr)
	case gpuwire.CmdResourceUnref:
		return g.handleUnref(in, resp, hdr)
	case gpuwire.CmdResourceAttachBacking:
		return g.handleAttach(in, resp, hdr)
	case gpuwire.CmdResourceDetachBacking:
		return g.handleDetach(in, resp, hdr)
	case gpuwire.CmdSetScanout:
		return g.handleSetScanout(in, resp, hdr)
	case gpuwire.CmdTransferToHost2D:
		return g.handleTransfer(in, resp, hdr)
	case gpuwire.CmdResourceFlush:
		return g.handleFlush(in, resp, hdr)
	case gpuwire.CmdUpdateCursor, gpuwire.CmdMoveCursor:
		return g.respondNoData(resp, hdr, gpuwire.RespOKNoData)
	}
	return g.respondNoData(resp, hdr, gpuwire.RespErrUnspec)
}

func (g *SimGPU) handleDisplayInfo(resp [][]byte, hdr gpuwire.CtrlHdr) uint32 {
	var r gpuwire.RespDisplayInfo
	r.Hdr = respHdr(hdr, gpuwire.RespOKDisplayInfo)
	copy(r.PModes[:], g.scanouts)
	buf := make([]byte, gpuwire.RespDisplayInfoSize)
	r.Encode(buf)
	return writeResp(resp, buf)
}

func (g *SimGPU) handleGetEDID(in []byte, resp [][]byte, hdr gpuwire.CtrlHdr) uint32 {
	req, err := gpuwire.DecodeGetEDID(in)
	if err != nil {
		return g.respondNoData(resp, hdr, gpuwire.RespErrUnspec)
	}
	if int(req.Scanout) >= len(g.scanouts) || g.scanouts[req.Scanout].Enabled == 0 {
		return g.respondNoData(resp, hdr, gpuwire.RespErrInvalidScanoutID)
	}
	var r gpuwire.RespEDID
	r.Hdr = respHdr(hdr, gpuwire.RespOKEDID)
	r.Size = uint32(copy(r.EDID[:], g.edid))
	buf := make([]byte, gpuwire.RespEDIDSize)
	r.Encode(buf)
	return writeResp(resp, buf)
}

func (g *SimGPU) handleCreate(in []byte, resp [][]byte, hdr gpuwire.CtrlHdr) uint32 {
	c, err := gpuwire.DecodeResourceCreate2D(in)
	if err != nil {
		return g.respondNoData(resp, hdr, gpuwire.RespErrUnspec)
	}
	if c.ResourceID == 0 {
		return g.respondNoData(resp, hdr, gpuwire.RespErrInvalidResourceID)
	}
	if _, ok := g.resources[c.ResourceID]; ok {
		return g.respondNoData(resp, hdr, gpuwire.RespErrInvalidResourceID)
	}
	if c.Width == 0 || c.Height == 0 {
		return g.respondNoData(resp, hdr, gpuwire.RespErrInvalidParameter)
	}
	g.resources[c.ResourceID] = simResource{width: c.Width, height: c.Height}
	return g.respondNoData(resp, hdr, gpuwire.RespOKNoData)
}

func (g *SimGPU) handleUnref(in []byte, resp [][]byte, hdr gpuwire.CtrlHdr) uint32 {
	u, err := gpuwire.DecodeResourceUnref(in)
	if err != nil {
		return g.respondNoData(resp, hdr, gpuwire.RespErrUnspec)
	}
	if _, ok := g.resources[u.ResourceID]; !ok {
		return g.respondNoData(resp, hdr, gpuwire.RespErrInvalidResourceID)
	}
	delete(g.resources, u.ResourceID)
	return g.respondNoData(resp, hdr, gpuwire.RespOKNoData)
}

func (g *SimGPU) handleAttach(in []byte, resp [][]byte, hdr gpuwire.CtrlHdr) uint32 {
	a, err := gpuwire.DecodeResourceAttachBacking(in)
	if err != nil {
		return g.respondNoData(resp, hdr, gpuwire.RespErrUnspec)
	}
	r, ok := g.resources[a.ResourceID]
	if !ok {
		return g.respondNoData(resp, hdr, gpuwire.RespErrInvalidResourceID)
	}
	if a.NrEntries == 0 ||
		len(in) < gpuwire.ResourceAttachBackingSize+int(a.NrEntries)*gpuwire.MemEntrySize {
		return g.respondNoData(resp, hdr, gpuwire.RespErrInvalidParameter)
	}
	r.backed = true
	g.resources[a.ResourceID] = r
	return g.respondNoData(resp, hdr, gpuwire.RespOKNoData)
}

func (g *SimGPU) handleDetach(in []byte, resp [][]byte, hdr gpuwire.CtrlHdr) uint32 {
	d, err := gpuwire.DecodeResourceDetachBacking(in)
	if err != nil {
		return g.respondNoData(resp, hdr, gpuwire.RespErrUnspec)
	}
	r, ok := g.resources[d.ResourceID]
	if !ok {
		return g.respondNoData(resp, hdr, gpuwire.RespErrInvalidResourceID)
	}
	r.backed = false
	g.resources[d.ResourceID] = r
	return g.respondNoData(resp, hdr, gpuwire.RespOKNoData)
}

func (g *SimGPU) handleSetScanout(in []byte, resp [][]byte, hdr gpuwire.CtrlHdr) uint32 {
	s, err := gpuwire.DecodeSetScanout(in)
	if err != nil {
		return g.respondNoData(resp, hdr, gpuwire.RespErrUnspec)
	}
	if int(s.ScanoutID) >= len(g.scanouts) {
		return g.respondNoData(resp, hdr, gpuwire.RespErrInvalidScanoutID)
	}
	// Resource 0 disables the scanout, no table lookup.
	if s.ResourceID != 0 {
		if _, ok := g.resources[s.ResourceID]; !ok {
			return g.respondNoData(resp, hdr, gpuwire.RespErrInvalidResourceID)
		}
	}
	return g.respondNoData(resp, hdr, gpuwire.RespOKNoData)
}

func (g *SimGPU) handleTransfer(in []byte, resp [][]byte, hdr gpuwire.CtrlHdr) uint32 {
	t, err := gpuwire.DecodeTransferToHost2D(in)
	if err != nil {
		return g.respondNoData(resp, hdr, gpuwire.RespErrUnspec)
	}
	r, ok := g.resources[t.ResourceID]
	if !ok {
		return g.respondNoData(resp, hdr, gpuwire.RespErrInvalidResourceID)
	}
	if !r.backed {
		return g.respondNoData(resp, hdr, gpuwire.RespErrUnspec)
	}
	return g.respondNoData(resp, hdr, gpuwire.RespOKNoData)
}

func (g *SimGPU) handleFlush(in []byte, resp [][]byte, hdr gpuwire.CtrlHdr) uint32 {
	f, err := gpuwire.DecodeResourceFlush(in)
	if err != nil {
		return g.respondNoData(resp, hdr, gpuwire.RespErrUnspec)
	}
	if _, ok := g.resources[f.ResourceID]; !ok {
		return g.respondNoData(resp, hdr, gpuwire.RespErrInvalidResourceID)
	}
	return g.respondNoData(resp, hdr, gpuwire.RespOKNoData)
}

func (g *SimGPU) respondNoData(resp [][]byte, req gpuwire.CtrlHdr, respType uint32) uint32 {
	h := respHdr(req, respType)
	buf := make([]byte, gpuwire.CtrlHdrSize)
	h.Encode(buf)
	return writeResp(resp, buf)
}

// respHdr echoes fence bookkeeping from the request into the response,
// which is what hosts do when FlagFence is set.
func respHdr(req gpuwire.CtrlHdr, respType uint32) gpuwire.CtrlHdr {
	h := gpuwire.CtrlHdr{Type: respType}
	if req.Flags&gpuwire.FlagFence != 0 {
		h.Flags = gpuwire.FlagFence
		h.FenceID = req.FenceID
	}
	return h
}

func flatten(bufs [][]byte) []byte {
	if len(bufs) == 1 {
		return bufs[0]
	}
	var n int
	for _, b := range bufs {
		n += len(b)
	}
	out := make([]byte, 0, n)
	for _, b := range bufs {
		out = append(out, b...)
	}
	return out
}

func writeResp(resp [][]byte, buf []byte) uint32 {
	var written int
	for _, dst := range resp {
		if len(buf) == 0 {
			break
		}
		n := copy(dst, buf)
		buf = buf[n:]
		written += n
	}
	return uint32(written)
}

// SimTransport is a Transport backed by loopback queues and a SimGPU
// model. It lets the full driver stack run without a hypervisor.
type SimTransport struct {
	GPU *SimGPU

	features   uint64
	negotiated uint64
	started    bool

	mu       sync.Mutex
	queues   map[uint16]*virtq.Loopback
	latency  map[uint16]time.Duration
	configCB func()
}

// NewSimTransport builds a transport whose device offers EDID support.
func NewSimTransport() *SimTransport {
	return &SimTransport{
		GPU:      NewSimGPU(),
		features: gpuwire.FeatureEDID,
		queues:   make(map[uint16]*virtq.Loopback),
		latency:  make(map[uint16]time.Duration),
	}
}

// WithoutEDID drops the EDID feature bit from the device offer.
func (t *SimTransport) WithoutEDID() *SimTransport {
	t.features &^= gpuwire.FeatureEDID
	return t
}

// SetQueueLatency delays completions on one queue. Takes effect for
// queues configured afterwards, or immediately on a live queue.
func (t *SimTransport) SetQueueLatency(index uint16, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latency[index] = d
	if q, ok := t.queues[index]; ok {
		q.SetLatency(d)
	}
}

// Queue returns the live loopback queue at index, or nil.
func (t *SimTransport) Queue(index uint16) *virtq.Loopback {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queues[index]
}

// TriggerConfigChange fires the registered config-change callback,
// simulating a display hotplug interrupt.
func (t *SimTransport) TriggerConfigChange() {
	t.mu.Lock()
	cb := t.configCB
	t.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Negotiated returns the accepted feature bits.
func (t *SimTransport) Negotiated() uint64 { return t.negotiated }

// Started reports whether the driver signalled DRIVER_OK.
func (t *SimTransport) Started() bool { return t.started }

func (t *SimTransport) Features() uint64 { return t.features }

func (t *SimTransport) NegotiateFeatures(feats uint64) error {
	if feats&^t.features != 0 {
		return virtq.QueueError("negotiating feature the device did not offer")
	}
	t.negotiated = feats
	return nil
}

func (t *SimTransport) ConfigureQueue(index uint16, depth int) (virtq.Queue, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	q := virtq.NewLoopback(index, depth, t.latency[index], t.GPU.Handle)
	t.queues[index] = q
	return q, nil
}

func (t *SimTransport) NumScanouts() uint32 { return 1 }

func (t *SimTransport) RegisterQueueCallback(index uint16, fn func()) {}

func (t *SimTransport) RegisterConfigCallback(fn func()) {
	t.mu.Lock()
	t.configCB = fn
	t.mu.Unlock()
}

func (t *SimTransport) Start() { t.started = true }

// Close shuts down all loopback queues.
func (t *SimTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, q := range t.queues {
		q.Close()
	}
}

var _ Transport = (*SimTransport)(nil)
