package pvapi

import "fmt"

// Code is a numeric status code from the capture engine.  The driver
// accumulates codes across a batch of engine calls with bitwise OR and
// logs the aggregate once at the end of the batch, so a zero value always
// means the whole batch succeeded.
type Code uint32

// Status codes used by the engine.  The values mirror the vendor protocol
// and must not be reordered.
const (
	ErrSuccess Code = iota
	ErrCameraFault
	ErrInternalFault
	ErrBadHandle
	ErrBadParameter
	ErrBadSequence
	ErrNotFound
	ErrAccessDenied
	ErrUnplugged
	ErrInvalidSetup
	ErrResources
	ErrBandwidth
	ErrQueueFull
	ErrBufferTooSmall
	ErrCancelled
	ErrDataLost
	ErrDataMissing
	ErrTimeout
	ErrOutOfRange
	ErrWrongType
	ErrForbidden
	ErrUnavailable
	ErrFirewall
)

var codeText = map[Code]string{
	ErrSuccess:        "no error",
	ErrCameraFault:    "unexpected camera fault",
	ErrInternalFault:  "unexpected fault in the engine or driver",
	ErrBadHandle:      "camera handle is invalid",
	ErrBadParameter:   "bad parameter to engine call",
	ErrBadSequence:    "sequence of engine calls is incorrect",
	ErrNotFound:       "camera or attribute not found",
	ErrAccessDenied:   "camera cannot be opened in the specified mode",
	ErrUnplugged:      "camera was unplugged",
	ErrInvalidSetup:   "setup is invalid (an attribute is invalid)",
	ErrResources:      "system/network resources or memory not available",
	ErrBandwidth:      "1394 bandwidth not available",
	ErrQueueFull:      "too many frames on queue",
	ErrBufferTooSmall: "frame buffer is too small",
	ErrCancelled:      "frame cancelled by user",
	ErrDataLost:       "the data for the frame was lost",
	ErrDataMissing:    "some data in the frame is missing",
	ErrTimeout:        "timeout during wait",
	ErrOutOfRange:     "attribute value is out of the expected range",
	ErrWrongType:      "attribute is not this type (wrong access function)",
	ErrForbidden:      "attribute write forbidden at this time",
	ErrUnavailable:    "attribute is not available at this time",
	ErrFirewall:       "a firewall is blocking the traffic",
}

// CodeError is an error wrapping a Code.
type CodeError struct {
	// Code is the status code, possibly an OR of several codes if it came
	// from a batch of engine calls
	Code Code
}

// Error satisfies the error interface
func (e CodeError) Error() string {
	if s, ok := codeText[e.Code]; ok {
		return s
	}
	return fmt.Sprintf("aggregate engine status %d", e.Code)
}

// Error converts a Code to an error, nil if the code is ErrSuccess
func Error(c Code) error {
	if c == ErrSuccess {
		return nil
	}
	return CodeError{c}
}

// CodeOf extracts the Code from an error.  nil maps to ErrSuccess and
// errors that did not originate from the engine map to ErrInternalFault,
// so the result is always meaningful to OR into an aggregate status.
func CodeOf(err error) Code {
	if err == nil {
		return ErrSuccess
	}
	if ce, ok := err.(CodeError); ok {
		return ce.Code
	}
	return ErrInternalFault
}
