package gpuwire

import "unsafe"

// CtrlHdr prefixes every request and response on both queues:
//
//	struct virtio_gpu_ctrl_hdr {
//	  __le32 type;
//	  __le32 flags;
//	  __le64 fence_id;
//	  __le32 ctx_id;
//	  __u8   ring_idx;
//	  __u8   padding[3];
//	};
//
// The type field of a response is the sole success/failure
// discriminator.
type CtrlHdr struct {
	Type    uint32
	Flags   uint32
	FenceID uint64
	CtxID   uint32
	RingIdx uint8
	Padding [3]uint8
}

// CtrlHdrSize is the wire size of CtrlHdr.
const CtrlHdrSize = 24

var _ [CtrlHdrSize]byte = [unsafe.Sizeof(CtrlHdr{})]byte{}

// Rect describes a sub-region of a resource or display output.
type Rect struct {
	X      uint32
	Y      uint32
	Width  uint32
	Height uint32
}

const RectSize = 16

var _ [RectSize]byte = [unsafe.Sizeof(Rect{})]byte{}

// DisplayOne is one pmodes entry of the display-info response.
type DisplayOne struct {
	R       Rect
	Enabled uint32
	Flags   uint32
}

const DisplayOneSize = 24

// RespDisplayInfo answers GET_DISPLAY_INFO. The pmodes array is always
// MaxScanouts long; disabled entries have Enabled == 0.
type RespDisplayInfo struct {
	Hdr    CtrlHdr
	PModes [MaxScanouts]DisplayOne
}

const RespDisplayInfoSize = CtrlHdrSize + MaxScanouts*DisplayOneSize

var _ [RespDisplayInfoSize]byte = [unsafe.Sizeof(RespDisplayInfo{})]byte{}

// GetEDID requests the EDID blob for one scanout. Only valid when
// FeatureEDID was negotiated.
type GetEDID struct {
	Hdr     CtrlHdr
	Scanout uint32
	Padding uint32
}

const GetEDIDSize = CtrlHdrSize + 8

var _ [GetEDIDSize]byte = [unsafe.Sizeof(GetEDID{})]byte{}

// RespEDID answers GET_EDID. Size is the valid prefix of EDID.
type RespEDID struct {
	Hdr     CtrlHdr
	Size    uint32
	Padding uint32
	EDID    [EDIDBlobSize]byte
}

const RespEDIDSize = CtrlHdrSize + 8 + EDIDBlobSize

var _ [RespEDIDSize]byte = [unsafe.Sizeof(RespEDID{})]byte{}

// ResourceCreate2D creates a host-side 2D surface. The resource id is
// guest-chosen and must not collide with a live resource.
type ResourceCreate2D struct {
	Hdr        CtrlHdr
	ResourceID uint32
	Format     uint32
	Width      uint32
	Height     uint32
}

const ResourceCreate2DSize = CtrlHdrSize + 16

var _ [ResourceCreate2DSize]byte = [unsafe.Sizeof(ResourceCreate2D{})]byte{}

// ResourceUnref destroys a host-side resource.
type ResourceUnref struct {
	Hdr        CtrlHdr
	ResourceID uint32
	Padding    uint32
}

const ResourceUnrefSize = CtrlHdrSize + 8

var _ [ResourceUnrefSize]byte = [unsafe.Sizeof(ResourceUnref{})]byte{}

// ResourceAttachBacking is followed on the wire by NrEntries MemEntry
// descriptors naming the guest pages backing the resource.
type ResourceAttachBacking struct {
	Hdr        CtrlHdr
	ResourceID uint32
	NrEntries  uint32
}

const ResourceAttachBackingSize = CtrlHdrSize + 8

var _ [ResourceAttachBackingSize]byte = [unsafe.Sizeof(ResourceAttachBacking{})]byte{}

// MemEntry names one contiguous guest memory segment.
type MemEntry struct {
	Addr    uint64
	Length  uint32
	Padding uint32
}

const MemEntrySize = 16

var _ [MemEntrySize]byte = [unsafe.Sizeof(MemEntry{})]byte{}

// ResourceDetachBacking detaches all backing segments from a resource.
type ResourceDetachBacking struct {
	Hdr        CtrlHdr
	ResourceID uint32
	Padding    uint32
}

const ResourceDetachBackingSize = CtrlHdrSize + 8

var _ [ResourceDetachBackingSize]byte = [unsafe.Sizeof(ResourceDetachBacking{})]byte{}

// SetScanout binds a resource to a display output. ResourceID 0
// disables the scanout.
type SetScanout struct {
	Hdr        CtrlHdr
	R          Rect
	ScanoutID  uint32
	ResourceID uint32
}

const SetScanoutSize = CtrlHdrSize + RectSize + 8

var _ [SetScanoutSize]byte = [unsafe.Sizeof(SetScanout{})]byte{}

// TransferToHost2D copies a rectangle of backing memory into the host
// resource. Offset is the byte offset into the backing store where the
// rectangle starts.
type TransferToHost2D struct {
	Hdr        CtrlHdr
	R          Rect
	Offset     uint64
	ResourceID uint32
	Padding    uint32
}

const TransferToHost2DSize = CtrlHdrSize + RectSize + 16

var _ [TransferToHost2DSize]byte = [unsafe.Sizeof(TransferToHost2D{})]byte{}

// ResourceFlush presents a rectangle of the resource on its bound
// scanout(s).
type ResourceFlush struct {
	Hdr        CtrlHdr
	R          Rect
	ResourceID uint32
	Padding    uint32
}

const ResourceFlushSize = CtrlHdrSize + RectSize + 8

var _ [ResourceFlushSize]byte = [unsafe.Sizeof(ResourceFlush{})]byte{}

// CursorPos places the cursor on a scanout.
type CursorPos struct {
	ScanoutID uint32
	X         uint32
	Y         uint32
	Padding   uint32
}

const CursorPosSize = 16

var _ [CursorPosSize]byte = [unsafe.Sizeof(CursorPos{})]byte{}

// UpdateCursor carries both UPDATE_CURSOR (new image + position) and
// MOVE_CURSOR (position only; resource and hotspot ignored).
type UpdateCursor struct {
	Hdr        CtrlHdr
	Pos        CursorPos
	ResourceID uint32
	HotX       uint32
	HotY       uint32
	Padding    uint32
}

const UpdateCursorSize = CtrlHdrSize + CursorPosSize + 16

var _ [UpdateCursorSize]byte = [unsafe.Sizeof(UpdateCursor{})]byte{}
