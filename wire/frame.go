package wire

import (
	"fmt"
)

// FrameType discriminates the two frame variants
type FrameType uint8

const (
	FrameTypeStart FrameType = 1 // handshake, first and only once, caller -> invoker
	FrameTypeData  FrameType = 2 // one payload unit of one logical stream
)

// String returns the frame type name
func (ft FrameType) String() string {
	switch ft {
	case FrameTypeStart:
		return "START"
	case FrameTypeData:
		return "DATA"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", ft)
	}
}

// Frame is the tagged variant exchanged on the physical stream. Exactly one
// of Start and Data is set, matching FrameType.
type Frame struct {
	FrameType FrameType
	Start     *StartFrame
	Data      *DataFrame
}

// StartFrame opens a session.
type StartFrame struct {
	// Function names the function to bind. Empty when the invoker is fixed
	// to a single function.
	Function string
	// AcceptedContentTypes holds, for each output stream, the content types
	// the caller can accept, most preferred first.
	AcceptedContentTypes [][]string
	// InputContentTypes optionally declares, per input stream, the content
	// type the caller will send. Empty entries are negotiated on the first
	// data frame of that stream.
	InputContentTypes []string
}

// DataFrame carries one unit of one logical stream.
type DataFrame struct {
	Index       int
	ContentType string
	// Payload is nil when the frame carries no value (a bare end-of-stream or
	// an error). An empty non-nil slice is an empty value.
	Payload []byte
	Headers map[string]string
	End     bool
	Error   *ErrorInfo
}

// ErrorInfo terminates a logical stream abnormally.
type ErrorInfo struct {
	Code    string
	Message string
}

// HasPayload reports whether the frame carries a value
func (d *DataFrame) HasPayload() bool {
	return d.Payload != nil
}

// IsTerminal reports whether no more frames may follow for this index
func (d *DataFrame) IsTerminal() bool {
	return d.End || d.Error != nil
}

// NewStart creates a START frame
func NewStart(function string, accepted [][]string, inputTypes []string) *Frame {
	return &Frame{
		FrameType: FrameTypeStart,
		Start: &StartFrame{
			Function:             function,
			AcceptedContentTypes: accepted,
			InputContentTypes:    inputTypes,
		},
	}
}

// NewData creates a DATA frame carrying a value
func NewData(index int, contentType string, payload []byte) *Frame {
	if payload == nil {
		payload = []byte{}
	}
	return &Frame{
		FrameType: FrameTypeData,
		Data: &DataFrame{
			Index:       index,
			ContentType: contentType,
			Payload:     payload,
		},
	}
}

// NewLast creates a DATA frame carrying a value and closing the stream
func NewLast(index int, contentType string, payload []byte) *Frame {
	f := NewData(index, contentType, payload)
	f.Data.End = true
	return f
}

// NewEnd creates a bare end-of-stream frame
func NewEnd(index int) *Frame {
	return &Frame{
		FrameType: FrameTypeData,
		Data:      &DataFrame{Index: index, End: true},
	}
}

// NewError creates an error-terminated frame for index
func NewError(index int, code, message string) *Frame {
	return &Frame{
		FrameType: FrameTypeData,
		Data: &DataFrame{
			Index: index,
			Error: &ErrorInfo{Code: code, Message: message},
		},
	}
}

func (f *Frame) String() string {
	switch {
	case f.Start != nil:
		return fmt.Sprintf("START{fn=%q outputs=%d inputs=%v}", f.Start.Function, len(f.Start.AcceptedContentTypes), f.Start.InputContentTypes)
	case f.Data != nil && f.Data.Error != nil:
		return fmt.Sprintf("DATA{#%d err=%s}", f.Data.Index, f.Data.Error.Code)
	case f.Data != nil:
		return fmt.Sprintf("DATA{#%d ct=%q len=%d end=%t}", f.Data.Index, f.Data.ContentType, len(f.Data.Payload), f.Data.End)
	default:
		return f.FrameType.String()
	}
}
