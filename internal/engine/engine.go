// Package engine builds typed virtio-gpu commands, drives them through
// a transport adapter, and validates the response header. One engine
// instance exists per queue; the control engine carries every command
// except UPDATE_CURSOR/MOVE_CURSOR, which go through the cursor engine.
//
// The engine never retries: virtio-gpu commands are not safe to replay
// blindly (a resource-create with a reused id is undefined), so every
// transport or response failure surfaces to the caller unchanged.
package engine

import (
	"fmt"

	"github.com/calder-f/go-virtgpu/internal/gpuwire"
	"github.com/calder-f/go-virtgpu/internal/logging"
	"github.com/calder-f/go-virtgpu/internal/transport"
)

// ResponseError reports a response header whose type was not the
// expected success code for the command sent. The command may have
// partially applied on the device; reconciliation is the caller's
// problem.
type ResponseError struct {
	Cmd  uint32
	Got  uint32
	Want uint32
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("engine: %s: device answered %s (%#x), want %s",
		gpuwire.CmdName(e.Cmd), gpuwire.CmdName(e.Got), e.Got, gpuwire.CmdName(e.Want))
}

// Engine issues commands over one adapter.
type Engine struct {
	ad  *transport.Adapter
	log *logging.Logger
}

// New wires an engine to its adapter.
func New(ad *transport.Adapter, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.Default()
	}
	return &Engine{ad: ad, log: log.WithQueue(ad.Name())}
}

// roundTrip submits parts, expects a respLen-byte response whose header
// type equals want, and returns the raw response bytes.
func (e *Engine) roundTrip(cmd uint32, parts [][]byte, respLen int, want uint32) ([]byte, error) {
	raw, err := e.ad.SubmitAndWait(parts, respLen)
	if err != nil {
		return nil, err
	}
	hdr, err := gpuwire.DecodeCtrlHdr(raw)
	if err != nil {
		return nil, err
	}
	if hdr.Type != want {
		e.log.Warn("unexpected response",
			"cmd", gpuwire.CmdName(cmd),
			"got", gpuwire.CmdName(hdr.Type),
			"want", gpuwire.CmdName(want))
		return nil, &ResponseError{Cmd: cmd, Got: hdr.Type, Want: want}
	}
	return raw, nil
}

// nodata runs a state-mutating command whose only answer is
// RESP_OK_NODATA.
func (e *Engine) nodata(cmd uint32, parts [][]byte) error {
	_, err := e.roundTrip(cmd, parts, gpuwire.CtrlHdrSize, gpuwire.RespOKNoData)
	return err
}

// GetDisplayInfo queries the enabled scanouts and their preferred
// rectangles.
func (e *Engine) GetDisplayInfo() (gpuwire.RespDisplayInfo, error) {
	req := gpuwire.CtrlHdr{Type: gpuwire.CmdGetDisplayInfo}
	buf := make([]byte, gpuwire.CtrlHdrSize)
	req.Encode(buf)

	raw, err := e.roundTrip(gpuwire.CmdGetDisplayInfo, [][]byte{buf},
		gpuwire.RespDisplayInfoSize, gpuwire.RespOKDisplayInfo)
	if err != nil {
		return gpuwire.RespDisplayInfo{}, err
	}
	return gpuwire.DecodeRespDisplayInfo(raw)
}

// GetEDID fetches the EDID blob for one scanout. Callers must have
// negotiated FeatureEDID first.
func (e *Engine) GetEDID(scanout uint32) (gpuwire.RespEDID, error) {
	req := gpuwire.GetEDID{
		Hdr:     gpuwire.CtrlHdr{Type: gpuwire.CmdGetEDID},
		Scanout: scanout,
	}
	buf := make([]byte, gpuwire.GetEDIDSize)
	req.Encode(buf)

	raw, err := e.roundTrip(gpuwire.CmdGetEDID, [][]byte{buf},
		gpuwire.RespEDIDSize, gpuwire.RespOKEDID)
	if err != nil {
		return gpuwire.RespEDID{}, err
	}
	return gpuwire.DecodeRespEDID(raw)
}

// ResourceCreate2D creates a host-side 2D surface.
func (e *Engine) ResourceCreate2D(id, format, width, height uint32) error {
	req := gpuwire.ResourceCreate2D{
		Hdr:        gpuwire.CtrlHdr{Type: gpuwire.CmdResourceCreate2D},
		ResourceID: id,
		Format:     format,
		Width:      width,
		Height:     height,
	}
	buf := make([]byte, gpuwire.ResourceCreate2DSize)
	req.Encode(buf)
	return e.nodata(gpuwire.CmdResourceCreate2D, [][]byte{buf})
}

// ResourceUnref destroys a host-side resource.
func (e *Engine) ResourceUnref(id uint32) error {
	req := gpuwire.ResourceUnref{
		Hdr:        gpuwire.CtrlHdr{Type: gpuwire.CmdResourceUnref},
		ResourceID: id,
	}
	buf := make([]byte, gpuwire.ResourceUnrefSize)
	req.Encode(buf)
	return e.nodata(gpuwire.CmdResourceUnref, [][]byte{buf})
}

// ResourceAttachBacking attaches guest memory segments as a resource's
// backing store. The header and each entry travel as separate request
// parts, in order.
func (e *Engine) ResourceAttachBacking(id uint32, entries []gpuwire.MemEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("engine: attach backing for resource %d with no entries", id)
	}
	req := gpuwire.ResourceAttachBacking{
		Hdr:        gpuwire.CtrlHdr{Type: gpuwire.CmdResourceAttachBacking},
		ResourceID: id,
		NrEntries:  uint32(len(entries)),
	}
	parts := make([][]byte, 0, 1+len(entries))
	buf := make([]byte, gpuwire.ResourceAttachBackingSize)
	req.Encode(buf)
	parts = append(parts, buf)
	for i := range entries {
		eb := make([]byte, gpuwire.MemEntrySize)
		entries[i].Encode(eb)
		parts = append(parts, eb)
	}
	return e.nodata(gpuwire.CmdResourceAttachBacking, parts)
}

// ResourceDetachBacking detaches all backing from a resource.
func (e *Engine) ResourceDetachBacking(id uint32) error {
	req := gpuwire.ResourceDetachBacking{
		Hdr:        gpuwire.CtrlHdr{Type: gpuwire.CmdResourceDetachBacking},
		ResourceID: id,
	}
	buf := make([]byte, gpuwire.ResourceDetachBackingSize)
	req.Encode(buf)
	return e.nodata(gpuwire.CmdResourceDetachBacking, [][]byte{buf})
}

// SetScanout binds a resource to a display output.
func (e *Engine) SetScanout(scanoutID, resourceID uint32, r gpuwire.Rect) error {
	req := gpuwire.SetScanout{
		Hdr:        gpuwire.CtrlHdr{Type: gpuwire.CmdSetScanout},
		R:          r,
		ScanoutID:  scanoutID,
		ResourceID: resourceID,
	}
	buf := make([]byte, gpuwire.SetScanoutSize)
	req.Encode(buf)
	return e.nodata(gpuwire.CmdSetScanout, [][]byte{buf})
}

// TransferToHost2D copies a rectangle of the backing store into the
// host resource. fence asks the device to complete the copy before
// signaling, which the cursor bring-up path relies on.
func (e *Engine) TransferToHost2D(resourceID uint32, r gpuwire.Rect, offset uint64, fence bool) error {
	req := gpuwire.TransferToHost2D{
		Hdr:        gpuwire.CtrlHdr{Type: gpuwire.CmdTransferToHost2D},
		R:          r,
		Offset:     offset,
		ResourceID: resourceID,
	}
	if fence {
		req.Hdr.Flags |= gpuwire.FlagFence
		// A zero fence id hangs qemu.
		req.Hdr.FenceID = 1
	}
	buf := make([]byte, gpuwire.TransferToHost2DSize)
	req.Encode(buf)
	return e.nodata(gpuwire.CmdTransferToHost2D, [][]byte{buf})
}

// ResourceFlush presents a rectangle of the resource on its scanout.
func (e *Engine) ResourceFlush(resourceID uint32, r gpuwire.Rect) error {
	req := gpuwire.ResourceFlush{
		Hdr:        gpuwire.CtrlHdr{Type: gpuwire.CmdResourceFlush},
		R:          r,
		ResourceID: resourceID,
	}
	buf := make([]byte, gpuwire.ResourceFlushSize)
	req.Encode(buf)
	return e.nodata(gpuwire.CmdResourceFlush, [][]byte{buf})
}

// UpdateCursor installs a new cursor image and position. Cursor-queue
// engines only.
func (e *Engine) UpdateCursor(pos gpuwire.CursorPos, resourceID, hotX, hotY uint32) error {
	return e.cursorCmd(gpuwire.CmdUpdateCursor, pos, resourceID, hotX, hotY)
}

// MoveCursor repositions the current cursor without changing its image.
func (e *Engine) MoveCursor(pos gpuwire.CursorPos) error {
	return e.cursorCmd(gpuwire.CmdMoveCursor, pos, 0, 0, 0)
}

func (e *Engine) cursorCmd(cmd uint32, pos gpuwire.CursorPos, resourceID, hotX, hotY uint32) error {
	req := gpuwire.UpdateCursor{
		Hdr:        gpuwire.CtrlHdr{Type: cmd},
		Pos:        pos,
		ResourceID: resourceID,
		HotX:       hotX,
		HotY:       hotY,
	}
	buf := make([]byte, gpuwire.UpdateCursorSize)
	req.Encode(buf)
	return e.nodata(cmd, [][]byte{buf})
}
