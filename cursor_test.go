package virtgpu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calder-f/go-virtgpu/internal/gpuwire"
)

func testCursorImage() []byte {
	img := make([]byte, CursorDim*CursorDim*BytesPerPixel)
	for i := 3; i < len(img); i += 4 {
		img[i] = 0xff
	}
	return img
}

func TestSetupCursor(t *testing.T) {
	dev, sim := newTestDevice(t)

	c, err := dev.SetupCursor(testCursorImage(), 0, 100, 100, 2, 4)
	require.NoError(t, err)
	assert.NotZero(t, c.ResourceID)
	assert.True(t, sim.GPU.HasResource(c.ResourceID))

	// Image upload runs on the control queue.
	ctl := sim.GPU.Commands(ControlQueueIndex)
	assert.Contains(t, ctl, uint32(gpuwire.CmdResourceCreate2D))
	assert.Contains(t, ctl, uint32(gpuwire.CmdTransferToHost2D))

	// Only the show runs on the cursor queue.
	cur := sim.GPU.Commands(CursorQueueIndex)
	require.Equal(t, []uint32{gpuwire.CmdUpdateCursor}, cur)
}

func TestSetupCursorWrongImageSize(t *testing.T) {
	dev, sim := newTestDevice(t)

	before := len(sim.GPU.Commands(ControlQueueIndex))
	_, err := dev.SetupCursor(make([]byte, 32*32*4), 0, 0, 0, 0, 0)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeInvalidParameters), "err = %v", err)
	assert.Len(t, sim.GPU.Commands(ControlQueueIndex), before)
}

func TestCursorMoveUsesCursorQueue(t *testing.T) {
	dev, sim := newTestDevice(t)

	c, err := dev.SetupCursor(testCursorImage(), 0, 0, 0, 0, 0)
	require.NoError(t, err)

	ctlBefore := len(sim.GPU.Commands(ControlQueueIndex))
	require.NoError(t, c.Move(0, 50, 60))
	require.NoError(t, dev.MoveCursor(0, 70, 80))

	assert.Len(t, sim.GPU.Commands(ControlQueueIndex), ctlBefore,
		"cursor motion leaked onto the control queue")
	cur := sim.GPU.Commands(CursorQueueIndex)
	assert.Equal(t, []uint32{
		gpuwire.CmdUpdateCursor,
		gpuwire.CmdMoveCursor,
		gpuwire.CmdMoveCursor,
	}, cur)
}

func TestCursorHide(t *testing.T) {
	dev, sim := newTestDevice(t)

	c, err := dev.SetupCursor(testCursorImage(), 0, 0, 0, 0, 0)
	require.NoError(t, err)
	require.NoError(t, c.Hide(0))

	cur := sim.GPU.Commands(CursorQueueIndex)
	assert.Equal(t, []uint32{gpuwire.CmdUpdateCursor, gpuwire.CmdUpdateCursor}, cur)
}

func TestCursorIndependentOfSlowControlQueue(t *testing.T) {
	dev, sim := newTestDevice(t)

	c, err := dev.SetupCursor(testCursorImage(), 0, 0, 0, 0, 0)
	require.NoError(t, err)

	// Stall the control queue; cursor moves must not care.
	sim.SetQueueLatency(ControlQueueIndex, 500*time.Millisecond)

	ctlDone := make(chan error, 1)
	go func() {
		_, err := dev.QueryDisplayInfo()
		ctlDone <- err
	}()

	// Give the control command time to occupy its queue.
	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	require.NoError(t, c.Move(0, 10, 10))
	assert.Less(t, time.Since(start), 100*time.Millisecond,
		"cursor move waited on the control queue")

	require.NoError(t, <-ctlDone)
}

func TestShowAfterDestroyRejected(t *testing.T) {
	dev, _ := newTestDevice(t)

	c, err := dev.SetupCursor(testCursorImage(), 0, 0, 0, 0, 0)
	require.NoError(t, err)

	require.NoError(t, dev.DestroyResource(c.ResourceID))

	err = c.Show(0, 0, 0)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeResourceState), "err = %v", err)
}
