package virtgpu

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calder-f/go-virtgpu/internal/engine"
	"github.com/calder-f/go-virtgpu/internal/gpuwire"
	"github.com/calder-f/go-virtgpu/internal/resource"
	"github.com/calder-f/go-virtgpu/internal/transport"
)

func TestErrorString(t *testing.T) {
	e := NewError("SETUP_FRAMEBUFFER", ErrCodeInvalidParameters, "zero dimension 0x800")
	assert.Contains(t, e.Error(), "zero dimension")
	assert.Contains(t, e.Error(), "SETUP_FRAMEBUFFER")

	e = &Error{Op: "FLUSH", Queue: "control", Resource: 3, Code: ErrCodeTransport}
	s := e.Error()
	assert.Contains(t, s, "queue=control")
	assert.Contains(t, s, "resource=3")
}

func TestWrapErrorNil(t *testing.T) {
	assert.Nil(t, WrapError("OP", nil))
}

func TestWrapErrorClassifiesTimeout(t *testing.T) {
	inner := &transport.TimeoutError{Queue: "control", Elapsed: 0}
	e := WrapError("GET_DISPLAY_INFO", inner)

	assert.Equal(t, ErrCodeDeviceTimeout, e.Code)
	assert.Equal(t, "control", e.Queue)
	assert.True(t, IsCode(e, ErrCodeDeviceTimeout))

	var te *transport.TimeoutError
	assert.True(t, errors.As(e, &te), "cause lost in wrapping")
}

func TestWrapErrorClassifiesTransport(t *testing.T) {
	inner := &transport.Error{Queue: "cursor", Op: "enqueue", Err: errors.New("ring full")}
	e := WrapError("MOVE_CURSOR", inner)

	assert.Equal(t, ErrCodeTransport, e.Code)
	assert.Equal(t, "cursor", e.Queue)
}

func TestWrapErrorClassifiesResponse(t *testing.T) {
	inner := &engine.ResponseError{
		Cmd:  gpuwire.CmdResourceCreate2D,
		Got:  gpuwire.RespErrOutOfMemory,
		Want: gpuwire.RespOKNoData,
	}
	e := WrapError("RESOURCE_CREATE_2D", inner)

	assert.Equal(t, ErrCodeUnexpectedResponse, e.Code)
	assert.Equal(t, uint32(gpuwire.RespErrOutOfMemory), e.Wire)
}

func TestWrapErrorClassifiesState(t *testing.T) {
	inner := &resource.StateError{ID: 7, Op: "flush", Have: resource.Backed, Want: resource.ScannedOut}
	e := WrapError("RESOURCE_FLUSH", inner)

	assert.Equal(t, ErrCodeResourceState, e.Code)
	assert.Equal(t, uint32(7), e.Resource)
}

func TestWrapErrorUnknownCause(t *testing.T) {
	inner := errors.New("mystery")
	e := WrapError("OPEN", inner)

	assert.Equal(t, ErrCodeTransport, e.Code)
	assert.True(t, errors.Is(e, inner))
}

func TestWrapErrorRewrapsKeepingCode(t *testing.T) {
	inner := NewError("RESOURCE_CREATE_2D", ErrCodeUnexpectedResponse, "device said no")
	e := WrapError("SETUP_FRAMEBUFFER", inner)

	assert.Equal(t, "SETUP_FRAMEBUFFER", e.Op)
	assert.Equal(t, ErrCodeUnexpectedResponse, e.Code)
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	a := NewError("A", ErrCodeDeviceTimeout, "x")
	b := NewError("B", ErrCodeDeviceTimeout, "y")
	c := NewError("C", ErrCodeTransport, "z")

	require.True(t, errors.Is(a, b))
	require.False(t, errors.Is(a, c))
}

func TestIsCodeOnForeignError(t *testing.T) {
	assert.False(t, IsCode(errors.New("plain"), ErrCodeTransport))
	assert.False(t, IsCode(nil, ErrCodeTransport))
}
