package virtgpu

import (
	"fmt"

	"github.com/calder-f/go-virtgpu/internal/dma"
	"github.com/calder-f/go-virtgpu/internal/gpuwire"
	"github.com/calder-f/go-virtgpu/internal/resource"
)

// Cursor is a hardware cursor image bound to a device resource. The
// image is fixed at 64x64 BGRA.
type Cursor struct {
	dev *Device

	ResourceID uint32
	HotX       uint32
	HotY       uint32

	backing *dma.Region
}

// SetupCursor uploads a 64x64 BGRA cursor image and shows it on the
// scanout at the given position. The image commands travel the control
// queue; only the final show travels the cursor queue.
func (d *Device) SetupCursor(image []byte, scanoutID, x, y, hotX, hotY uint32) (*Cursor, error) {
	want := CursorDim * CursorDim * BytesPerPixel
	if len(image) != want {
		return nil, NewError("SETUP_CURSOR", ErrCodeInvalidParameters,
			fmt.Sprintf("cursor image is %d bytes, want %d (64x64 BGRA)", len(image), want))
	}

	id := d.resources.Allocate()
	if err := d.ctlEng.ResourceCreate2D(id, gpuwire.FormatB8G8R8A8, CursorDim, CursorDim); err != nil {
		return nil, d.wrapResource("RESOURCE_CREATE_2D", id, err)
	}
	if err := d.resources.Register(id, gpuwire.FormatB8G8R8A8, CursorDim, CursorDim); err != nil {
		return nil, NewError("RESOURCE_CREATE_2D", ErrCodeResourceState, err.Error())
	}

	backing, err := dma.AllocRegion(want)
	if err != nil {
		return nil, NewError("RESOURCE_ATTACH_BACKING", ErrCodeTransport, err.Error())
	}
	d.trackRegion(backing)
	copy(backing.Bytes(), image)

	if err := d.attachBacking(id, backing); err != nil {
		return nil, err
	}

	// The cursor transfer carries a fence: some hosts will not sample
	// the new image until the fence signals, and a zero fence id hangs
	// them.
	backing.SyncToDevice(0, backing.Len())
	full := gpuwire.Rect{Width: CursorDim, Height: CursorDim}
	if err := d.ctlEng.TransferToHost2D(id, full, 0, true); err != nil {
		return nil, d.wrapResource("TRANSFER_TO_HOST_2D", id, err)
	}

	c := &Cursor{dev: d, ResourceID: id, HotX: hotX, HotY: hotY, backing: backing}
	if err := c.Show(scanoutID, x, y); err != nil {
		return nil, err
	}
	d.log.Info("cursor ready", "resource", id, "scanout", scanoutID)
	return c, nil
}

// Show points the scanout's cursor at this image and places it.
func (c *Cursor) Show(scanoutID, x, y uint32) error {
	d := c.dev
	if err := d.resources.RequireAtLeast(c.ResourceID, "update-cursor", resource.Backed); err != nil {
		return WrapError("UPDATE_CURSOR", err)
	}
	pos := gpuwire.CursorPos{ScanoutID: scanoutID, X: x, Y: y}
	if err := d.curEng.UpdateCursor(pos, c.ResourceID, c.HotX, c.HotY); err != nil {
		return d.wrapResource("UPDATE_CURSOR", c.ResourceID, err)
	}
	return nil
}

// Move repositions the cursor without touching its image. This is the
// cheap path: no resource validation, one cursor-queue command.
func (c *Cursor) Move(scanoutID, x, y uint32) error {
	return c.dev.MoveCursor(scanoutID, x, y)
}

// Hide removes the cursor from the scanout by pointing it at resource
// zero.
func (c *Cursor) Hide(scanoutID uint32) error {
	pos := gpuwire.CursorPos{ScanoutID: scanoutID}
	if err := c.dev.curEng.UpdateCursor(pos, 0, 0, 0); err != nil {
		return WrapError("UPDATE_CURSOR", err)
	}
	return nil
}

// MoveCursor repositions whatever cursor image the scanout currently
// shows.
func (d *Device) MoveCursor(scanoutID, x, y uint32) error {
	pos := gpuwire.CursorPos{ScanoutID: scanoutID, X: x, Y: y}
	if err := d.curEng.MoveCursor(pos); err != nil {
		return WrapError("MOVE_CURSOR", err)
	}
	return nil
}
