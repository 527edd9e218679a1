package gpuwire

import (
	"encoding/binary"
	"testing"
)

func TestCtrlHdrLayout(t *testing.T) {
	h := CtrlHdr{
		Type:    CmdTransferToHost2D,
		Flags:   FlagFence,
		FenceID: 0x1122334455667788,
		CtxID:   7,
		RingIdx: 2,
	}
	buf := make([]byte, CtrlHdrSize)
	h.Encode(buf)

	if got := binary.LittleEndian.Uint32(buf[0:4]); got != CmdTransferToHost2D {
		t.Errorf("type = %#x, want %#x", got, CmdTransferToHost2D)
	}
	if got := binary.LittleEndian.Uint32(buf[4:8]); got != FlagFence {
		t.Errorf("flags = %#x, want %#x", got, FlagFence)
	}
	if got := binary.LittleEndian.Uint64(buf[8:16]); got != h.FenceID {
		t.Errorf("fence_id = %#x, want %#x", got, h.FenceID)
	}
	if got := binary.LittleEndian.Uint32(buf[16:20]); got != 7 {
		t.Errorf("ctx_id = %d, want 7", got)
	}
	if buf[20] != 2 {
		t.Errorf("ring_idx = %d, want 2", buf[20])
	}
	if buf[21] != 0 || buf[22] != 0 || buf[23] != 0 {
		t.Errorf("padding not zero: % x", buf[21:24])
	}

	back, err := DecodeCtrlHdr(buf)
	if err != nil {
		t.Fatalf("DecodeCtrlHdr: %v", err)
	}
	if back != h {
		t.Errorf("round trip = %+v, want %+v", back, h)
	}
}

func TestCtrlHdrShortBuffer(t *testing.T) {
	if _, err := DecodeCtrlHdr(make([]byte, CtrlHdrSize-1)); err != ErrShortBuffer {
		t.Errorf("err = %v, want ErrShortBuffer", err)
	}
}

func TestResourceCreate2DRoundTrip(t *testing.T) {
	c := ResourceCreate2D{
		Hdr:        CtrlHdr{Type: CmdResourceCreate2D},
		ResourceID: 42,
		Format:     FormatB8G8R8A8,
		Width:      1280,
		Height:     800,
	}
	buf := make([]byte, ResourceCreate2DSize)
	c.Encode(buf)

	back, err := DecodeResourceCreate2D(buf)
	if err != nil {
		t.Fatalf("DecodeResourceCreate2D: %v", err)
	}
	if back != c {
		t.Errorf("round trip = %+v, want %+v", back, c)
	}
}

func TestSetScanoutLayout(t *testing.T) {
	s := SetScanout{
		Hdr:        CtrlHdr{Type: CmdSetScanout},
		R:          Rect{X: 1, Y: 2, Width: 640, Height: 480},
		ScanoutID:  3,
		ResourceID: 9,
	}
	buf := make([]byte, SetScanoutSize)
	s.Encode(buf)

	// scanout_id sits after the header and rect.
	if got := binary.LittleEndian.Uint32(buf[40:44]); got != 3 {
		t.Errorf("scanout_id = %d, want 3", got)
	}
	if got := binary.LittleEndian.Uint32(buf[44:48]); got != 9 {
		t.Errorf("resource_id = %d, want 9", got)
	}

	back, err := DecodeSetScanout(buf)
	if err != nil {
		t.Fatalf("DecodeSetScanout: %v", err)
	}
	if back != s {
		t.Errorf("round trip = %+v, want %+v", back, s)
	}
}

func TestTransferToHost2DLayout(t *testing.T) {
	tr := TransferToHost2D{
		Hdr:        CtrlHdr{Type: CmdTransferToHost2D, Flags: FlagFence, FenceID: 1},
		R:          Rect{Width: 64, Height: 64},
		Offset:     0x200000,
		ResourceID: 5,
	}
	buf := make([]byte, TransferToHost2DSize)
	tr.Encode(buf)

	if got := binary.LittleEndian.Uint64(buf[40:48]); got != 0x200000 {
		t.Errorf("offset = %#x, want 0x200000", got)
	}
	if got := binary.LittleEndian.Uint32(buf[48:52]); got != 5 {
		t.Errorf("resource_id = %d, want 5", got)
	}

	back, err := DecodeTransferToHost2D(buf)
	if err != nil {
		t.Fatalf("DecodeTransferToHost2D: %v", err)
	}
	if back != tr {
		t.Errorf("round trip = %+v, want %+v", back, tr)
	}
}

func TestRespDisplayInfoRoundTrip(t *testing.T) {
	var r RespDisplayInfo
	r.Hdr.Type = RespOKDisplayInfo
	r.PModes[0] = DisplayOne{R: Rect{Width: 1280, Height: 800}, Enabled: 1}
	r.PModes[3] = DisplayOne{R: Rect{X: 1280, Width: 1920, Height: 1080}, Enabled: 1, Flags: 2}

	buf := make([]byte, RespDisplayInfoSize)
	r.Encode(buf)

	back, err := DecodeRespDisplayInfo(buf)
	if err != nil {
		t.Fatalf("DecodeRespDisplayInfo: %v", err)
	}
	if back != r {
		t.Errorf("round trip mismatch")
	}
	if back.PModes[1].Enabled != 0 {
		t.Errorf("untouched pmode reported enabled")
	}
}

func TestRespEDIDRoundTrip(t *testing.T) {
	var r RespEDID
	r.Hdr.Type = RespOKEDID
	r.Size = 128
	for i := 0; i < 128; i++ {
		r.EDID[i] = byte(i)
	}

	buf := make([]byte, RespEDIDSize)
	r.Encode(buf)

	back, err := DecodeRespEDID(buf)
	if err != nil {
		t.Fatalf("DecodeRespEDID: %v", err)
	}
	if back.Size != 128 {
		t.Errorf("size = %d, want 128", back.Size)
	}
	if back.EDID != r.EDID {
		t.Errorf("edid payload mismatch")
	}
}

func TestAttachBackingWithEntries(t *testing.T) {
	a := ResourceAttachBacking{
		Hdr:        CtrlHdr{Type: CmdResourceAttachBacking},
		ResourceID: 11,
		NrEntries:  2,
	}
	entries := []MemEntry{
		{Addr: 0x1000, Length: 4096},
		{Addr: 0x9000, Length: 8192},
	}

	buf := make([]byte, ResourceAttachBackingSize+len(entries)*MemEntrySize)
	a.Encode(buf)
	for i, e := range entries {
		e.Encode(buf[ResourceAttachBackingSize+i*MemEntrySize:])
	}

	back, err := DecodeResourceAttachBacking(buf)
	if err != nil {
		t.Fatalf("DecodeResourceAttachBacking: %v", err)
	}
	if back != a {
		t.Errorf("header round trip = %+v, want %+v", back, a)
	}
	for i := range entries {
		e, err := DecodeMemEntry(buf[ResourceAttachBackingSize+i*MemEntrySize:])
		if err != nil {
			t.Fatalf("DecodeMemEntry[%d]: %v", i, err)
		}
		if e != entries[i] {
			t.Errorf("entry %d = %+v, want %+v", i, e, entries[i])
		}
	}
}

func TestUpdateCursorRoundTrip(t *testing.T) {
	u := UpdateCursor{
		Hdr:        CtrlHdr{Type: CmdUpdateCursor},
		Pos:        CursorPos{ScanoutID: 0, X: 100, Y: 200},
		ResourceID: 13,
		HotX:       4,
		HotY:       8,
	}
	buf := make([]byte, UpdateCursorSize)
	u.Encode(buf)

	back, err := DecodeUpdateCursor(buf)
	if err != nil {
		t.Fatalf("DecodeUpdateCursor: %v", err)
	}
	if back != u {
		t.Errorf("round trip = %+v, want %+v", back, u)
	}
}

func TestCmdName(t *testing.T) {
	cases := map[uint32]string{
		CmdGetDisplayInfo:        "GET_DISPLAY_INFO",
		CmdResourceCreate2D:      "RESOURCE_CREATE_2D",
		CmdUpdateCursor:          "UPDATE_CURSOR",
		RespOKNoData:             "RESP_OK_NODATA",
		RespErrInvalidResourceID: "RESP_ERR_INVALID_RESOURCE_ID",
		0xdead:                   "UNKNOWN",
	}
	for typ, want := range cases {
		if got := CmdName(typ); got != want {
			t.Errorf("CmdName(%#x) = %q, want %q", typ, got, want)
		}
	}
}
