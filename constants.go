package virtgpu

import "time"

// Virtqueue indexes fixed by the virtio-gpu device model.
const (
	// ControlQueueIndex carries every command except cursor updates.
	ControlQueueIndex = 0

	// CursorQueueIndex is the fast track for UPDATE_CURSOR and
	// MOVE_CURSOR, so they are never delayed behind a slow control
	// command.
	CursorQueueIndex = 1
)

// Default configuration constants.
const (
	// DefaultQueueDepth is the descriptor count per virtqueue.
	DefaultQueueDepth = 64

	// DefaultPollInterval is how often the completion spin yields.
	DefaultPollInterval = 10 * time.Microsecond

	// DefaultPollTimeout bounds a single round trip; a device that
	// stays silent longer is reported as timed out instead of spinning
	// forever.
	DefaultPollTimeout = 5 * time.Second

	// BytesPerPixel is fixed by the BGRA framebuffer format.
	BytesPerPixel = 4

	// CursorDim is the only cursor image dimension the protocol
	// accepts (64x64).
	CursorDim = 64
)

// DMA region sizing. The response region must hold the largest
// response (RESP_OK_EDID, 1056 bytes); the request region must hold an
// attach-backing header plus its entry run.
const (
	requestRegionBytes  = 4096
	responseRegionBytes = 4096
)
