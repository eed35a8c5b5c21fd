package wire

import (
	"fmt"

	invoker "github.com/machinefabric/invoker-go"
)

// Codec maps one physical message to exactly one frame and back. Codecs do
// not buffer across messages; the transport must preserve message
// boundaries.
type Codec interface {
	Name() string
	Encode(frame *Frame) ([]byte, error)
	// Decode fails with an invoker.KindMalformedFrame error when the bytes
	// do not form a valid frame.
	Decode(data []byte) (*Frame, error)
}

// Codec names, also used as websocket subprotocol suffixes
const (
	CodecProto = "proto"
	CodecCBOR  = "cbor"
)

// CodecByName returns the codec registered under name
func CodecByName(name string) (Codec, error) {
	switch name {
	case CodecProto, "":
		return ProtoCodec{}, nil
	case CodecCBOR:
		return CBORCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown wire codec %q", name)
	}
}

// validate applies the checks both codecs share once a frame is decoded
func validate(frame *Frame, hasIndex bool) error {
	switch frame.FrameType {
	case FrameTypeStart:
		if frame.Start == nil || frame.Data != nil {
			return invoker.MalformedFrame("START frame without handshake body")
		}
		for i, list := range frame.Start.AcceptedContentTypes {
			for _, ct := range list {
				if ct == "" {
					return invoker.MalformedFrame("empty accepted content type for output %d", i)
				}
			}
		}
	case FrameTypeData:
		if frame.Data == nil || frame.Start != nil {
			return invoker.MalformedFrame("DATA frame without data body")
		}
		if !hasIndex {
			return invoker.MalformedFrame("DATA frame missing required field: index")
		}
		if frame.Data.Index < 0 {
			return invoker.MalformedFrame("DATA frame has negative index %d", frame.Data.Index)
		}
		if frame.Data.Error != nil && frame.Data.Error.Code == "" {
			return invoker.MalformedFrame("error indicator on stream %d without code", frame.Data.Index)
		}
	default:
		return invoker.MalformedFrame("invalid frame_type %d", frame.FrameType)
	}
	return nil
}
