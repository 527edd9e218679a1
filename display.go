package virtgpu

import (
	"fmt"

	"github.com/calder-f/go-virtgpu/internal/dma"
	"github.com/calder-f/go-virtgpu/internal/gpuwire"
	"github.com/calder-f/go-virtgpu/internal/resource"
)

// DisplayMode is one scanout's current mode as reported by the device.
type DisplayMode struct {
	Scanout uint32
	X       uint32
	Y       uint32
	Width   uint32
	Height  uint32
	Enabled bool
	Flags   uint32
}

// Framebuffer is a scanned-out 2D resource with guest-writable pixel
// memory. Pixels are B8G8R8A8, row-major from the top-left corner.
type Framebuffer struct {
	dev *Device

	ResourceID uint32
	ScanoutID  uint32
	Width      uint32
	Height     uint32

	backing *dma.Region
}

// QueryDisplayInfo asks the device for the current mode of every
// scanout. Disabled scanouts are included with Enabled false.
func (d *Device) QueryDisplayInfo() ([]DisplayMode, error) {
	info, err := d.ctlEng.GetDisplayInfo()
	if err != nil {
		return nil, WrapError("GET_DISPLAY_INFO", err)
	}
	modes := make([]DisplayMode, 0, gpuwire.MaxScanouts)
	for i, pm := range info.PModes {
		modes = append(modes, DisplayMode{
			Scanout: uint32(i),
			X:       pm.R.X,
			Y:       pm.R.Y,
			Width:   pm.R.Width,
			Height:  pm.R.Height,
			Enabled: pm.Enabled != 0,
			Flags:   pm.Flags,
		})
	}
	return modes, nil
}

// Resolution returns the mode of scanout 0, the output the framebuffer
// convenience path drives. Other scanouts are reachable through
// QueryDisplayInfo.
func (d *Device) Resolution() (width, height uint32, err error) {
	modes, err := d.QueryDisplayInfo()
	if err != nil {
		return 0, 0, err
	}
	if len(modes) == 0 || !modes[0].Enabled {
		return 0, 0, NewError("GET_DISPLAY_INFO", ErrCodeNoScanout, "scanout 0 not enabled")
	}
	return modes[0].Width, modes[0].Height, nil
}

// SetupFramebuffer creates a host resource, attaches guest backing
// memory and binds it to the scanout. On return the framebuffer is
// displayable: write pixels and call Flush.
func (d *Device) SetupFramebuffer(scanoutID, width, height uint32) (*Framebuffer, error) {
	if width == 0 || height == 0 {
		return nil, NewError("SETUP_FRAMEBUFFER", ErrCodeInvalidParameters,
			fmt.Sprintf("zero dimension %dx%d", width, height))
	}

	id := d.resources.Allocate()
	if err := d.ctlEng.ResourceCreate2D(id, gpuwire.FormatB8G8R8A8, width, height); err != nil {
		return nil, d.wrapResource("RESOURCE_CREATE_2D", id, err)
	}
	if err := d.resources.Register(id, gpuwire.FormatB8G8R8A8, width, height); err != nil {
		return nil, NewError("RESOURCE_CREATE_2D", ErrCodeResourceState, err.Error())
	}

	backing, err := dma.AllocRegion(int(width) * int(height) * BytesPerPixel)
	if err != nil {
		return nil, NewError("RESOURCE_ATTACH_BACKING", ErrCodeTransport, err.Error())
	}
	d.trackRegion(backing)

	if err := d.attachBacking(id, backing); err != nil {
		return nil, err
	}

	fullScreen := gpuwire.Rect{Width: width, Height: height}
	if err := d.ctlEng.SetScanout(scanoutID, id, fullScreen); err != nil {
		return nil, d.wrapResource("SET_SCANOUT", id, err)
	}
	if err := d.resources.MarkScannedOut(id, scanoutID); err != nil {
		return nil, WrapError("SET_SCANOUT", err)
	}

	d.log.Info("framebuffer ready",
		"resource", id, "scanout", scanoutID,
		"width", width, "height", height)
	return &Framebuffer{
		dev:        d,
		ResourceID: id,
		ScanoutID:  scanoutID,
		Width:      width,
		Height:     height,
		backing:    backing,
	}, nil
}

// attachBacking sends RESOURCE_ATTACH_BACKING for every segment of the
// region and records the backing in the resource manager.
func (d *Device) attachBacking(id uint32, backing *dma.Region) error {
	segs := backing.Segments()
	entries := make([]gpuwire.MemEntry, len(segs))
	for i, s := range segs {
		entries[i] = gpuwire.MemEntry{Addr: s.Addr, Length: uint32(s.Length)}
	}
	if err := d.ctlEng.ResourceAttachBacking(id, entries); err != nil {
		return d.wrapResource("RESOURCE_ATTACH_BACKING", id, err)
	}
	if err := d.resources.MarkBacked(id, backing); err != nil {
		return WrapError("RESOURCE_ATTACH_BACKING", err)
	}
	return nil
}

// DetachBacking detaches all backing pages from a resource. The
// resource drops back to Created; its memory stays allocated and can
// be re-attached.
func (d *Device) DetachBacking(id uint32) error {
	if err := d.resources.Require(id, "detach-backing", resource.Backed); err != nil {
		return WrapError("RESOURCE_DETACH_BACKING", err)
	}
	if err := d.ctlEng.ResourceDetachBacking(id); err != nil {
		return d.wrapResource("RESOURCE_DETACH_BACKING", id, err)
	}
	if err := d.resources.MarkDetached(id); err != nil {
		return WrapError("RESOURCE_DETACH_BACKING", err)
	}
	return nil
}

// DestroyResource unrefs a resource on the device and retires its id.
// Its backing region, if any, is released.
func (d *Device) DestroyResource(id uint32) error {
	rec, ok := d.resources.Lookup(id)
	if !ok {
		return NewError("RESOURCE_UNREF", ErrCodeResourceState,
			fmt.Sprintf("resource %d: unknown", id))
	}
	if err := d.ctlEng.ResourceUnref(id); err != nil {
		return d.wrapResource("RESOURCE_UNREF", id, err)
	}
	if err := d.resources.MarkDestroyed(id); err != nil {
		return WrapError("RESOURCE_UNREF", err)
	}
	if rec.Backing != nil {
		d.untrackRegion(rec.Backing)
		if err := rec.Backing.Free(); err != nil {
			return NewError("RESOURCE_UNREF", ErrCodeTransport, err.Error())
		}
	}
	d.log.Info("resource destroyed", "resource", id)
	return nil
}

// RequestEDIDInfo fetches the EDID blob for one scanout. It fails with
// ErrCodeUnsupported when the feature was not negotiated.
func (d *Device) RequestEDIDInfo(scanoutID uint32) ([]byte, error) {
	if !d.edidSupported {
		return nil, NewError("GET_EDID", ErrCodeUnsupported, "EDID feature not negotiated")
	}
	resp, err := d.ctlEng.GetEDID(scanoutID)
	if err != nil {
		return nil, WrapError("GET_EDID", err)
	}
	n := resp.Size
	if n > gpuwire.EDIDBlobSize {
		n = gpuwire.EDIDBlobSize
	}
	blob := make([]byte, n)
	copy(blob, resp.EDID[:n])
	return blob, nil
}

// Bytes exposes the pixel memory, exactly Width*Height*4 bytes; the
// page-rounding slack of the backing region is not part of the view.
// Layout is row-major BGRA; the byte offset of (x, y) is
// (y*Width + x) * 4.
func (fb *Framebuffer) Bytes() []byte {
	return fb.backing.Bytes()[:int(fb.Width)*int(fb.Height)*BytesPerPixel]
}

// SetPixel writes one BGRA pixel. Out-of-bounds coordinates are
// ignored.
func (fb *Framebuffer) SetPixel(x, y uint32, b, g, r, a byte) {
	if x >= fb.Width || y >= fb.Height {
		return
	}
	off := (int(y)*int(fb.Width) + int(x)) * BytesPerPixel
	p := fb.Bytes()
	p[off+0] = b
	p[off+1] = g
	p[off+2] = r
	p[off+3] = a
}

// Fill sets every pixel to one BGRA color.
func (fb *Framebuffer) Fill(b, g, r, a byte) {
	p := fb.Bytes()
	for off := 0; off < len(p); off += BytesPerPixel {
		p[off+0] = b
		p[off+1] = g
		p[off+2] = r
		p[off+3] = a
	}
}

// Flush pushes the whole framebuffer to the host and asks the device
// to present it. The transfer and present rectangles are the
// framebuffer's own dimensions, which bound its backing memory; the
// re-queried display mode only feeds the mismatch warning.
func (fb *Framebuffer) Flush() error {
	d := fb.dev
	if err := d.resources.Require(fb.ResourceID, "flush", resource.ScannedOut); err != nil {
		return WrapError("RESOURCE_FLUSH", err)
	}

	modes, err := d.QueryDisplayInfo()
	if err != nil {
		return err
	}
	for _, m := range modes {
		if m.Scanout == fb.ScanoutID && m.Enabled &&
			(m.Width != fb.Width || m.Height != fb.Height) {
			d.log.Warn("scanout mode differs from framebuffer",
				"scanout", fb.ScanoutID,
				"mode", fmt.Sprintf("%dx%d", m.Width, m.Height),
				"framebuffer", fmt.Sprintf("%dx%d", fb.Width, fb.Height))
		}
	}

	fb.backing.SyncToDevice(0, fb.backing.Len())
	full := gpuwire.Rect{Width: fb.Width, Height: fb.Height}
	if err := d.ctlEng.TransferToHost2D(fb.ResourceID, full, 0, false); err != nil {
		return d.wrapResource("TRANSFER_TO_HOST_2D", fb.ResourceID, err)
	}
	if err := d.ctlEng.ResourceFlush(fb.ResourceID, full); err != nil {
		return d.wrapResource("RESOURCE_FLUSH", fb.ResourceID, err)
	}
	d.metrics.RecordFlush(uint64(fb.Width) * uint64(fb.Height) * BytesPerPixel)
	return nil
}

// wrapResource attaches the resource id to a wrapped command error.
func (d *Device) wrapResource(op string, id uint32, err error) error {
	e := WrapError(op, err)
	if e.Resource == 0 {
		e.Resource = id
	}
	return e
}
