package invoker

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorKind classifies session failures. Every kind is fatal to the session
// it occurs in.
type ErrorKind uint8

const (
	KindMalformedFrame ErrorKind = iota + 1
	KindUnexpectedFrame
	KindIndexOutOfRange
	KindNoCompatibleContentType
	KindUnknownFunction
	KindFunctionFault
	KindArityMismatch
	KindInputAborted
	KindCanceled
)

// String returns the kind name
func (k ErrorKind) String() string {
	switch k {
	case KindMalformedFrame:
		return "MalformedFrame"
	case KindUnexpectedFrame:
		return "UnexpectedFrame"
	case KindIndexOutOfRange:
		return "IndexOutOfRange"
	case KindNoCompatibleContentType:
		return "NoCompatibleContentType"
	case KindUnknownFunction:
		return "UnknownFunction"
	case KindFunctionFault:
		return "FunctionFault"
	case KindArityMismatch:
		return "ArityMismatch"
	case KindInputAborted:
		return "InputAborted"
	case KindCanceled:
		return "Canceled"
	default:
		return fmt.Sprintf("ErrorKind(%d)", uint8(k))
	}
}

// Code is the identifier carried in the code field of error frames.
func (k ErrorKind) Code() string {
	switch k {
	case KindMalformedFrame:
		return "MALFORMED_FRAME"
	case KindUnexpectedFrame:
		return "UNEXPECTED_FRAME"
	case KindIndexOutOfRange:
		return "INDEX_OUT_OF_RANGE"
	case KindNoCompatibleContentType:
		return "NO_COMPATIBLE_CONTENT_TYPE"
	case KindUnknownFunction:
		return "UNKNOWN_FUNCTION"
	case KindFunctionFault:
		return "FUNCTION_FAULT"
	case KindArityMismatch:
		return "ARITY_MISMATCH"
	case KindInputAborted:
		return "INPUT_ABORTED"
	case KindCanceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// KindFromCode is the inverse of ErrorKind.Code. Unknown codes map to 0.
func KindFromCode(code string) ErrorKind {
	for k := KindMalformedFrame; k <= KindCanceled; k++ {
		if k.Code() == code {
			return k
		}
	}
	return 0
}

func (k ErrorKind) grpcCode() codes.Code {
	switch k {
	case KindMalformedFrame, KindArityMismatch:
		return codes.InvalidArgument
	case KindUnexpectedFrame, KindNoCompatibleContentType:
		return codes.FailedPrecondition
	case KindIndexOutOfRange:
		return codes.OutOfRange
	case KindUnknownFunction:
		return codes.NotFound
	case KindFunctionFault, KindInputAborted:
		return codes.Aborted
	case KindCanceled:
		return codes.Canceled
	default:
		return codes.Unknown
	}
}

// Error is the single error type produced by the invoker packages.
// Index is the logical stream the error relates to, or -1.
type Error struct {
	Kind    ErrorKind
	Index   int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Cause != nil {
		if msg == "" {
			msg = e.Cause.Error()
		} else {
			msg = msg + ": " + e.Cause.Error()
		}
	}
	if e.Index >= 0 {
		return fmt.Sprintf("%s (stream %d): %s", e.Kind, e.Index, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports kind equality, so errors.Is(err, &Error{Kind: KindFunctionFault})
// matches any function fault.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// GRPCStatus lets status.FromError and the gRPC server translate the error.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Kind.grpcCode(), e.Error())
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newError(kind ErrorKind, index int, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Index: index, Message: fmt.Sprintf(format, args...)}
}

func MalformedFrame(format string, args ...interface{}) *Error {
	return newError(KindMalformedFrame, -1, format, args...)
}

func UnexpectedFrame(format string, args ...interface{}) *Error {
	return newError(KindUnexpectedFrame, -1, format, args...)
}

func IndexOutOfRange(index, count int) *Error {
	return newError(KindIndexOutOfRange, index, "logical index %d outside [0, %d)", index, count)
}

// NoCompatibleContentType reports an empty intersection between what a
// stream can carry and what the caller accepts.
func NoCompatibleContentType(expected, accepted []string) *Error {
	return newError(KindNoCompatibleContentType, -1, "none of %q is compatible with %q", accepted, expected)
}

func UnknownFunction(name string) *Error {
	return newError(KindUnknownFunction, -1, "no function registered as %q", name)
}

func FunctionFault(cause error) *Error {
	return &Error{Kind: KindFunctionFault, Index: -1, Cause: cause}
}

func ArityMismatch(what string, declared, expected int) *Error {
	return newError(KindArityMismatch, -1, "handshake declares %d %s, function has %d", declared, what, expected)
}

func InputAborted(index int, code, message string) *Error {
	return newError(KindInputAborted, index, "caller aborted input [%s] %s", code, message)
}

func Canceled(cause error) *Error {
	return &Error{Kind: KindCanceled, Index: -1, Cause: cause}
}

// WithIndex returns a copy of e bound to a logical stream.
func (e *Error) WithIndex(index int) *Error {
	c := *e
	c.Index = index
	return &c
}
