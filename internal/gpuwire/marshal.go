package gpuwire

import "encoding/binary"

// All virtio wire traffic is little-endian regardless of guest byte
// order. Each Encode writes exactly the struct's wire size into b and
// each Decode reads the same; callers size buffers with the *Size
// constants. Decode returns ErrShortBuffer rather than panicking on a
// truncated response.

type WireError string

func (e WireError) Error() string { return string(e) }

const ErrShortBuffer WireError = "gpuwire: buffer too short"

func (h *CtrlHdr) Encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], h.Type)
	binary.LittleEndian.PutUint32(b[4:8], h.Flags)
	binary.LittleEndian.PutUint64(b[8:16], h.FenceID)
	binary.LittleEndian.PutUint32(b[16:20], h.CtxID)
	b[20] = h.RingIdx
	b[21] = 0
	b[22] = 0
	b[23] = 0
}

func DecodeCtrlHdr(b []byte) (CtrlHdr, error) {
	if len(b) < CtrlHdrSize {
		return CtrlHdr{}, ErrShortBuffer
	}
	return CtrlHdr{
		Type:    binary.LittleEndian.Uint32(b[0:4]),
		Flags:   binary.LittleEndian.Uint32(b[4:8]),
		FenceID: binary.LittleEndian.Uint64(b[8:16]),
		CtxID:   binary.LittleEndian.Uint32(b[16:20]),
		RingIdx: b[20],
	}, nil
}

func (r *Rect) Encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], r.X)
	binary.LittleEndian.PutUint32(b[4:8], r.Y)
	binary.LittleEndian.PutUint32(b[8:12], r.Width)
	binary.LittleEndian.PutUint32(b[12:16], r.Height)
}

func DecodeRect(b []byte) (Rect, error) {
	if len(b) < RectSize {
		return Rect{}, ErrShortBuffer
	}
	return Rect{
		X:      binary.LittleEndian.Uint32(b[0:4]),
		Y:      binary.LittleEndian.Uint32(b[4:8]),
		Width:  binary.LittleEndian.Uint32(b[8:12]),
		Height: binary.LittleEndian.Uint32(b[12:16]),
	}, nil
}

func (r *RespDisplayInfo) Encode(b []byte) {
	r.Hdr.Encode(b[0:CtrlHdrSize])
	off := CtrlHdrSize
	for i := range r.PModes {
		m := &r.PModes[i]
		m.R.Encode(b[off : off+RectSize])
		binary.LittleEndian.PutUint32(b[off+16:off+20], m.Enabled)
		binary.LittleEndian.PutUint32(b[off+20:off+24], m.Flags)
		off += DisplayOneSize
	}
}

func DecodeRespDisplayInfo(b []byte) (RespDisplayInfo, error) {
	var r RespDisplayInfo
	if len(b) < RespDisplayInfoSize {
		return r, ErrShortBuffer
	}
	hdr, err := DecodeCtrlHdr(b)
	if err != nil {
		return r, err
	}
	r.Hdr = hdr
	off := CtrlHdrSize
	for i := range r.PModes {
		rect, _ := DecodeRect(b[off : off+RectSize])
		r.PModes[i] = DisplayOne{
			R:       rect,
			Enabled: binary.LittleEndian.Uint32(b[off+16 : off+20]),
			Flags:   binary.LittleEndian.Uint32(b[off+20 : off+24]),
		}
		off += DisplayOneSize
	}
	return r, nil
}

func (g *GetEDID) Encode(b []byte) {
	g.Hdr.Encode(b[0:CtrlHdrSize])
	binary.LittleEndian.PutUint32(b[24:28], g.Scanout)
	binary.LittleEndian.PutUint32(b[28:32], 0)
}

func DecodeGetEDID(b []byte) (GetEDID, error) {
	var g GetEDID
	if len(b) < GetEDIDSize {
		return g, ErrShortBuffer
	}
	hdr, err := DecodeCtrlHdr(b)
	if err != nil {
		return g, err
	}
	g.Hdr = hdr
	g.Scanout = binary.LittleEndian.Uint32(b[24:28])
	return g, nil
}

func (r *RespEDID) Encode(b []byte) {
	r.Hdr.Encode(b[0:CtrlHdrSize])
	binary.LittleEndian.PutUint32(b[24:28], r.Size)
	binary.LittleEndian.PutUint32(b[28:32], 0)
	copy(b[32:32+EDIDBlobSize], r.EDID[:])
}

func DecodeRespEDID(b []byte) (RespEDID, error) {
	var r RespEDID
	if len(b) < RespEDIDSize {
		return r, ErrShortBuffer
	}
	hdr, err := DecodeCtrlHdr(b)
	if err != nil {
		return r, err
	}
	r.Hdr = hdr
	r.Size = binary.LittleEndian.Uint32(b[24:28])
	copy(r.EDID[:], b[32:32+EDIDBlobSize])
	return r, nil
}

func (c *ResourceCreate2D) Encode(b []byte) {
	c.Hdr.Encode(b[0:CtrlHdrSize])
	binary.LittleEndian.PutUint32(b[24:28], c.ResourceID)
	binary.LittleEndian.PutUint32(b[28:32], c.Format)
	binary.LittleEndian.PutUint32(b[32:36], c.Width)
	binary.LittleEndian.PutUint32(b[36:40], c.Height)
}

func DecodeResourceCreate2D(b []byte) (ResourceCreate2D, error) {
	var c ResourceCreate2D
	if len(b) < ResourceCreate2DSize {
		return c, ErrShortBuffer
	}
	hdr, err := DecodeCtrlHdr(b)
	if err != nil {
		return c, err
	}
	c.Hdr = hdr
	c.ResourceID = binary.LittleEndian.Uint32(b[24:28])
	c.Format = binary.LittleEndian.Uint32(b[28:32])
	c.Width = binary.LittleEndian.Uint32(b[32:36])
	c.Height = binary.LittleEndian.Uint32(b[36:40])
	return c, nil
}

func (u *ResourceUnref) Encode(b []byte) {
	u.Hdr.Encode(b[0:CtrlHdrSize])
	binary.LittleEndian.PutUint32(b[24:28], u.ResourceID)
	binary.LittleEndian.PutUint32(b[28:32], 0)
}

func DecodeResourceUnref(b []byte) (ResourceUnref, error) {
	var u ResourceUnref
	if len(b) < ResourceUnrefSize {
		return u, ErrShortBuffer
	}
	hdr, err := DecodeCtrlHdr(b)
	if err != nil {
		return u, err
	}
	u.Hdr = hdr
	u.ResourceID = binary.LittleEndian.Uint32(b[24:28])
	return u, nil
}

func (a *ResourceAttachBacking) Encode(b []byte) {
	a.Hdr.Encode(b[0:CtrlHdrSize])
	binary.LittleEndian.PutUint32(b[24:28], a.ResourceID)
	binary.LittleEndian.PutUint32(b[28:32], a.NrEntries)
}

func DecodeResourceAttachBacking(b []byte) (ResourceAttachBacking, error) {
	var a ResourceAttachBacking
	if len(b) < ResourceAttachBackingSize {
		return a, ErrShortBuffer
	}
	hdr, err := DecodeCtrlHdr(b)
	if err != nil {
		return a, err
	}
	a.Hdr = hdr
	a.ResourceID = binary.LittleEndian.Uint32(b[24:28])
	a.NrEntries = binary.LittleEndian.Uint32(b[28:32])
	return a, nil
}

func (m *MemEntry) Encode(b []byte) {
	binary.LittleEndian.PutUint64(b[0:8], m.Addr)
	binary.LittleEndian.PutUint32(b[8:12], m.Length)
	binary.LittleEndian.PutUint32(b[12:16], 0)
}

func DecodeMemEntry(b []byte) (MemEntry, error) {
	if len(b) < MemEntrySize {
		return MemEntry{}, ErrShortBuffer
	}
	return MemEntry{
		Addr:   binary.LittleEndian.Uint64(b[0:8]),
		Length: binary.LittleEndian.Uint32(b[8:12]),
	}, nil
}

func (d *ResourceDetachBacking) Encode(b []byte) {
	d.Hdr.Encode(b[0:CtrlHdrSize])
	binary.LittleEndian.PutUint32(b[24:28], d.ResourceID)
	binary.LittleEndian.PutUint32(b[28:32], 0)
}

func DecodeResourceDetachBacking(b []byte) (ResourceDetachBacking, error) {
	var d ResourceDetachBacking
	if len(b) < ResourceDetachBackingSize {
		return d, ErrShortBuffer
	}
	hdr, err := DecodeCtrlHdr(b)
	if err != nil {
		return d, err
	}
	d.Hdr = hdr
	d.ResourceID = binary.LittleEndian.Uint32(b[24:28])
	return d, nil
}

func (s *SetScanout) Encode(b []byte) {
	s.Hdr.Encode(b[0:CtrlHdrSize])
	s.R.Encode(b[24:40])
	binary.LittleEndian.PutUint32(b[40:44], s.ScanoutID)
	binary.LittleEndian.PutUint32(b[44:48], s.ResourceID)
}

func DecodeSetScanout(b []byte) (SetScanout, error) {
	var s SetScanout
	if len(b) < SetScanoutSize {
		return s, ErrShortBuffer
	}
	hdr, err := DecodeCtrlHdr(b)
	if err != nil {
		return s, err
	}
	s.Hdr = hdr
	s.R, _ = DecodeRect(b[24:40])
	s.ScanoutID = binary.LittleEndian.Uint32(b[40:44])
	s.ResourceID = binary.LittleEndian.Uint32(b[44:48])
	return s, nil
}

func (t *TransferToHost2D) Encode(b []byte) {
	t.Hdr.Encode(b[0:CtrlHdrSize])
	t.R.Encode(b[24:40])
	binary.LittleEndian.PutUint64(b[40:48], t.Offset)
	binary.LittleEndian.PutUint32(b[48:52], t.ResourceID)
	binary.LittleEndian.PutUint32(b[52:56], 0)
}

func DecodeTransferToHost2D(b []byte) (TransferToHost2D, error) {
	var t TransferToHost2D
	if len(b) < TransferToHost2DSize {
		return t, ErrShortBuffer
	}
	hdr, err := DecodeCtrlHdr(b)
	if err != nil {
		return t, err
	}
	t.Hdr = hdr
	t.R, _ = DecodeRect(b[24:40])
	t.Offset = binary.LittleEndian.Uint64(b[40:48])
	t.ResourceID = binary.LittleEndian.Uint32(b[48:52])
	return t, nil
}

func (f *ResourceFlush) Encode(b []byte) {
	f.Hdr.Encode(b[0:CtrlHdrSize])
	f.R.Encode(b[24:40])
	binary.LittleEndian.PutUint32(b[40:44], f.ResourceID)
	binary.LittleEndian.PutUint32(b[44:48], 0)
}

func DecodeResourceFlush(b []byte) (ResourceFlush, error) {
	var f ResourceFlush
	if len(b) < ResourceFlushSize {
		return f, ErrShortBuffer
	}
	hdr, err := DecodeCtrlHdr(b)
	if err != nil {
		return f, err
	}
	f.Hdr = hdr
	f.R, _ = DecodeRect(b[24:40])
	f.ResourceID = binary.LittleEndian.Uint32(b[40:44])
	return f, nil
}

func (p *CursorPos) Encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], p.ScanoutID)
	binary.LittleEndian.PutUint32(b[4:8], p.X)
	binary.LittleEndian.PutUint32(b[8:12], p.Y)
	binary.LittleEndian.PutUint32(b[12:16], 0)
}

func (u *UpdateCursor) Encode(b []byte) {
	u.Hdr.Encode(b[0:CtrlHdrSize])
	u.Pos.Encode(b[24:40])
	binary.LittleEndian.PutUint32(b[40:44], u.ResourceID)
	binary.LittleEndian.PutUint32(b[44:48], u.HotX)
	binary.LittleEndian.PutUint32(b[48:52], u.HotY)
	binary.LittleEndian.PutUint32(b[52:56], 0)
}

func DecodeUpdateCursor(b []byte) (UpdateCursor, error) {
	var u UpdateCursor
	if len(b) < UpdateCursorSize {
		return u, ErrShortBuffer
	}
	hdr, err := DecodeCtrlHdr(b)
	if err != nil {
		return u, err
	}
	u.Hdr = hdr
	u.Pos.ScanoutID = binary.LittleEndian.Uint32(b[24:28])
	u.Pos.X = binary.LittleEndian.Uint32(b[28:32])
	u.Pos.Y = binary.LittleEndian.Uint32(b[32:36])
	u.ResourceID = binary.LittleEndian.Uint32(b[40:44])
	u.HotX = binary.LittleEndian.Uint32(b[44:48])
	u.HotY = binary.LittleEndian.Uint32(b[48:52])
	return u, nil
}
