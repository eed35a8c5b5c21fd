package wire

import (
	"math"

	"github.com/fxamacker/cbor/v2"

	invoker "github.com/machinefabric/invoker-go"
)

// CBOR map keys
const (
	keyVersion      = 0  // version (u8)
	keyFrameType    = 1  // frame_type (u8)
	keyFunction     = 2  // function (tstr, START)
	keyAccepted     = 3  // accepted content types ([[tstr]], START)
	keyInputTypes   = 4  // input content types ([tstr], START)
	keyIndex        = 5  // logical index (uint, REQUIRED for DATA)
	keyContentType  = 6  // content_type (tstr, optional)
	keyPayload      = 7  // payload (bstr, optional)
	keyHeaders      = 8  // headers ({tstr: tstr}, optional)
	keyEnd          = 9  // end of stream (bool, optional)
	keyErrorCode    = 10 // error code (tstr, optional)
	keyErrorMessage = 11 // error message (tstr, optional)
)

// CBORCodec encodes frames as CBOR maps with integer keys
type CBORCodec struct{}

func (CBORCodec) Name() string { return CodecCBOR }

// Encode encodes a Frame to CBOR bytes
func (CBORCodec) Encode(frame *Frame) ([]byte, error) {
	m := make(map[int]interface{})

	m[keyVersion] = uint8(invoker.ProtocolVersion)
	m[keyFrameType] = uint8(frame.FrameType)

	switch frame.FrameType {
	case FrameTypeStart:
		if frame.Start == nil {
			return nil, invoker.MalformedFrame("START frame without handshake body")
		}
		if frame.Start.Function != "" {
			m[keyFunction] = frame.Start.Function
		}
		accepted := make([][]string, len(frame.Start.AcceptedContentTypes))
		for i, list := range frame.Start.AcceptedContentTypes {
			if list == nil {
				list = []string{}
			}
			accepted[i] = list
		}
		m[keyAccepted] = accepted
		if len(frame.Start.InputContentTypes) > 0 {
			m[keyInputTypes] = frame.Start.InputContentTypes
		}

	case FrameTypeData:
		d := frame.Data
		if d == nil {
			return nil, invoker.MalformedFrame("DATA frame without data body")
		}
		m[keyIndex] = int64(d.Index)
		if d.ContentType != "" {
			m[keyContentType] = d.ContentType
		}
		if d.Payload != nil {
			m[keyPayload] = d.Payload
		}
		if len(d.Headers) > 0 {
			m[keyHeaders] = d.Headers
		}
		if d.End {
			m[keyEnd] = true
		}
		if d.Error != nil {
			m[keyErrorCode] = d.Error.Code
			if d.Error.Message != "" {
				m[keyErrorMessage] = d.Error.Message
			}
		}

	default:
		return nil, invoker.MalformedFrame("invalid frame_type %d", frame.FrameType)
	}

	return cbor.Marshal(m)
}

// Decode decodes CBOR bytes to a Frame
func (CBORCodec) Decode(data []byte) (*Frame, error) {
	var m map[int]interface{}
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, &invoker.Error{Kind: invoker.KindMalformedFrame, Index: -1, Message: "invalid CBOR", Cause: err}
	}

	frame := &Frame{}

	// 0: version (required)
	verVal, ok := m[keyVersion]
	if !ok {
		return nil, invoker.MalformedFrame("missing version (key 0)")
	}
	ver, ok := verVal.(uint64)
	if !ok {
		return nil, invoker.MalformedFrame("version must be uint")
	}
	if ver != invoker.ProtocolVersion {
		return nil, invoker.MalformedFrame("invalid version %d, expected %d", ver, invoker.ProtocolVersion)
	}

	// 1: frame_type (required)
	ftVal, ok := m[keyFrameType]
	if !ok {
		return nil, invoker.MalformedFrame("missing frame_type (key 1)")
	}
	ft, ok := ftVal.(uint64)
	if !ok {
		return nil, invoker.MalformedFrame("frame_type must be uint")
	}
	frame.FrameType = FrameType(ft)

	hasIndex := false
	switch frame.FrameType {
	case FrameTypeStart:
		s := &StartFrame{}
		if v, ok := m[keyFunction]; ok {
			fn, ok := v.(string)
			if !ok {
				return nil, invoker.MalformedFrame("function must be text")
			}
			s.Function = fn
		}
		if v, ok := m[keyAccepted]; ok {
			lists, ok := v.([]interface{})
			if !ok {
				return nil, invoker.MalformedFrame("accepted content types must be an array")
			}
			for i, l := range lists {
				list, err := stringList(l)
				if err != nil {
					return nil, invoker.MalformedFrame("accepted content types for output %d: %v", i, err)
				}
				s.AcceptedContentTypes = append(s.AcceptedContentTypes, list)
			}
		}
		if v, ok := m[keyInputTypes]; ok {
			list, err := stringList(v)
			if err != nil {
				return nil, invoker.MalformedFrame("input content types: %v", err)
			}
			s.InputContentTypes = list
		}
		frame.Start = s

	case FrameTypeData:
		d := &DataFrame{}
		if v, ok := m[keyIndex]; ok {
			switch idx := v.(type) {
			case uint64:
				if idx > math.MaxInt32 {
					return nil, invoker.MalformedFrame("index %d overflows int32", idx)
				}
				d.Index = int(idx)
			case int64:
				// negative integers decode as int64
				d.Index = int(idx)
			default:
				return nil, invoker.MalformedFrame("index must be an integer")
			}
			hasIndex = true
		}
		if v, ok := m[keyContentType]; ok {
			ct, ok := v.(string)
			if !ok {
				return nil, invoker.MalformedFrame("content_type must be text")
			}
			d.ContentType = ct
		}
		if v, ok := m[keyPayload]; ok {
			payload, ok := v.([]byte)
			if !ok {
				return nil, invoker.MalformedFrame("payload must be a byte string")
			}
			if payload == nil {
				payload = []byte{}
			}
			d.Payload = payload
		}
		if v, ok := m[keyHeaders]; ok {
			raw, ok := v.(map[interface{}]interface{})
			if !ok {
				return nil, invoker.MalformedFrame("headers must be a map")
			}
			d.Headers = make(map[string]string, len(raw))
			for k, hv := range raw {
				ks, kok := k.(string)
				vs, vok := hv.(string)
				if !kok || !vok {
					return nil, invoker.MalformedFrame("headers must map text to text")
				}
				d.Headers[ks] = vs
			}
		}
		if v, ok := m[keyEnd]; ok {
			end, ok := v.(bool)
			if !ok {
				return nil, invoker.MalformedFrame("end must be a bool")
			}
			d.End = end
		}
		if v, ok := m[keyErrorCode]; ok {
			code, ok := v.(string)
			if !ok {
				return nil, invoker.MalformedFrame("error code must be text")
			}
			d.Error = &ErrorInfo{Code: code}
			if mv, ok := m[keyErrorMessage]; ok {
				msg, ok := mv.(string)
				if !ok {
					return nil, invoker.MalformedFrame("error message must be text")
				}
				d.Error.Message = msg
			}
		}
		frame.Data = d
	}

	if err := validate(frame, hasIndex); err != nil {
		return nil, err
	}
	return frame, nil
}

func stringList(v interface{}) ([]string, error) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, invoker.MalformedFrame("expected an array of text")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, invoker.MalformedFrame("expected text, got %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}
