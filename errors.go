package virtgpu

import (
	"errors"
	"fmt"

	"github.com/calder-f/go-virtgpu/internal/engine"
	"github.com/calder-f/go-virtgpu/internal/resource"
	"github.com/calder-f/go-virtgpu/internal/transport"
)

// ErrorCode is the high-level failure category of a driver error.
type ErrorCode string

const (
	// ErrCodeTransport: virtqueue enqueue or pop failed; the ring is
	// presumed corrupt and the operation is never retried.
	ErrCodeTransport ErrorCode = "transport failure"

	// ErrCodeUnexpectedResponse: the response header type was not the
	// success code for the command sent.
	ErrCodeUnexpectedResponse ErrorCode = "unexpected response"

	// ErrCodeResourceState: the operation targeted a resource id in
	// the wrong lifecycle state; rejected before reaching the queue.
	ErrCodeResourceState ErrorCode = "invalid resource state"

	// ErrCodeDeviceTimeout: the device never completed a submitted
	// request within the poll budget.
	ErrCodeDeviceTimeout ErrorCode = "device timeout"

	// ErrCodeInvalidParameters: caller arguments failed validation
	// before any command was built.
	ErrCodeInvalidParameters ErrorCode = "invalid parameters"

	// ErrCodeNoScanout: the device reports no enabled display output.
	ErrCodeNoScanout ErrorCode = "no enabled scanout"

	// ErrCodeUnsupported: the operation needs a feature the device did
	// not offer during negotiation.
	ErrCodeUnsupported ErrorCode = "feature not negotiated"
)

// Error is a structured driver error with operation context.
type Error struct {
	Op       string    // operation that failed ("SETUP_FRAMEBUFFER", "FLUSH", ...)
	Queue    string    // "control" or "cursor", empty if not queue-bound
	Resource uint32    // resource id, 0 if not applicable
	Code     ErrorCode // failure category
	Wire     uint32    // raw response type for unexpected responses, else 0
	Msg      string    // human-readable detail
	Inner    error     // wrapped cause
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	s := fmt.Sprintf("virtgpu: %s", msg)
	if e.Op != "" {
		s += fmt.Sprintf(" (op=%s", e.Op)
		if e.Queue != "" {
			s += fmt.Sprintf(" queue=%s", e.Queue)
		}
		if e.Resource != 0 {
			s += fmt.Sprintf(" resource=%d", e.Resource)
		}
		s += ")"
	}
	return s
}

// Unwrap returns the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Inner }

// Is matches two structured errors by code.
func (e *Error) Is(target error) bool {
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// NewError creates a structured error without a cause.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// WrapError classifies an internal error into a structured *Error.
// Transport, timeout, response and state errors from the internal
// packages each map onto a distinct code; anything else is carried
// as-is under the transport code.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ve, ok := inner.(*Error); ok {
		out := *ve
		out.Op = op
		out.Inner = ve.Inner
		return &out
	}

	var te *transport.Error
	if errors.As(inner, &te) {
		return &Error{Op: op, Queue: te.Queue, Code: ErrCodeTransport, Msg: te.Error(), Inner: inner}
	}
	var to *transport.TimeoutError
	if errors.As(inner, &to) {
		return &Error{Op: op, Queue: to.Queue, Code: ErrCodeDeviceTimeout, Msg: to.Error(), Inner: inner}
	}
	var re *engine.ResponseError
	if errors.As(inner, &re) {
		return &Error{Op: op, Code: ErrCodeUnexpectedResponse, Wire: re.Got, Msg: re.Error(), Inner: inner}
	}
	var se *resource.StateError
	if errors.As(inner, &se) {
		return &Error{Op: op, Resource: se.ID, Code: ErrCodeResourceState, Msg: se.Error(), Inner: inner}
	}
	return &Error{Op: op, Code: ErrCodeTransport, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code == code
	}
	return false
}
