// Package gpuwire defines the virtio-gpu command and response wire
// format. Every struct here is byte-identical to its on-wire layout
// (virtio spec v1.3, section 5.7); encoding is pure serialization with
// no protocol logic.
package gpuwire

// Control queue commands (2D).
const (
	CmdGetDisplayInfo        = 0x0100
	CmdResourceCreate2D      = 0x0101
	CmdResourceUnref         = 0x0102
	CmdSetScanout            = 0x0103
	CmdResourceFlush         = 0x0104
	CmdTransferToHost2D      = 0x0105
	CmdResourceAttachBacking = 0x0106
	CmdResourceDetachBacking = 0x0107
	CmdGetCapsetInfo         = 0x0108
	CmdGetCapset             = 0x0109
	CmdGetEDID               = 0x010a
)

// Cursor queue commands.
const (
	CmdUpdateCursor = 0x0300
	CmdMoveCursor   = 0x0301
)

// Success responses.
const (
	RespOKNoData      = 0x1100
	RespOKDisplayInfo = 0x1101
	RespOKCapsetInfo  = 0x1102
	RespOKCapset      = 0x1103
	RespOKEDID        = 0x1104
)

// Error responses.
const (
	RespErrUnspec            = 0x1200
	RespErrOutOfMemory       = 0x1201
	RespErrInvalidScanoutID  = 0x1202
	RespErrInvalidResourceID = 0x1203
	RespErrInvalidContextID  = 0x1204
	RespErrInvalidParameter  = 0x1205
)

// Header flags.
const (
	// FlagFence asks the device to signal fence_id completion.
	FlagFence = 1 << 0
)

// Feature bits from the device configuration space.
const (
	// FeatureVirgl indicates 3D (virgl) support. Not negotiated by this
	// driver.
	FeatureVirgl = 1 << 0
	// FeatureEDID indicates GET_EDID support.
	FeatureEDID = 1 << 1
)

// Pixel formats (4 bytes per pixel).
const (
	FormatB8G8R8A8 = 1
	FormatB8G8R8X8 = 2
	FormatA8R8G8B8 = 3
	FormatX8R8G8B8 = 4
	FormatR8G8B8A8 = 67
	FormatX8B8G8R8 = 68
	FormatA8B8G8R8 = 121
	FormatR8G8B8X8 = 134
)

// MaxScanouts is the fixed pmodes array length in the display-info
// response, independent of how many scanouts the device exposes.
const MaxScanouts = 16

// CursorSize is the only cursor resource dimension qemu accepts.
const CursorSize = 64

// EDIDBlobSize is the fixed edid payload array length in the get-edid
// response. The valid prefix is given by the Size field.
const EDIDBlobSize = 1024

// CmdName returns a human-readable name for a command or response type,
// for logs and error messages.
func CmdName(t uint32) string {
	switch t {
	case CmdGetDisplayInfo:
		return "GET_DISPLAY_INFO"
	case CmdResourceCreate2D:
		return "RESOURCE_CREATE_2D"
	case CmdResourceUnref:
		return "RESOURCE_UNREF"
	case CmdSetScanout:
		return "SET_SCANOUT"
	case CmdResourceFlush:
		return "RESOURCE_FLUSH"
	case CmdTransferToHost2D:
		return "TRANSFER_TO_HOST_2D"
	case CmdResourceAttachBacking:
		return "RESOURCE_ATTACH_BACKING"
	case CmdResourceDetachBacking:
		return "RESOURCE_DETACH_BACKING"
	case CmdGetEDID:
		return "GET_EDID"
	case CmdUpdateCursor:
		return "UPDATE_CURSOR"
	case CmdMoveCursor:
		return "MOVE_CURSOR"
	case RespOKNoData:
		return "RESP_OK_NODATA"
	case RespOKDisplayInfo:
		return "RESP_OK_DISPLAY_INFO"
	case RespOKEDID:
		return "RESP_OK_EDID"
	case RespErrUnspec:
		return "RESP_ERR_UNSPEC"
	case RespErrOutOfMemory:
		return "RESP_ERR_OUT_OF_MEMORY"
	case RespErrInvalidScanoutID:
		return "RESP_ERR_INVALID_SCANOUT_ID"
	case RespErrInvalidResourceID:
		return "RESP_ERR_INVALID_RESOURCE_ID"
	case RespErrInvalidContextID:
		return "RESP_ERR_INVALID_CONTEXT_ID"
	case RespErrInvalidParameter:
		return "RESP_ERR_INVALID_PARAMETER"
	}
	return "UNKNOWN"
}
