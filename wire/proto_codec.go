package wire

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	invoker "github.com/machinefabric/invoker-go"
)

// Field numbers, see api/invoker.proto
const (
	// Signal
	fieldSignalStart protowire.Number = 1
	fieldSignalData  protowire.Number = 2

	// StartFrame
	fieldStartFunction   protowire.Number = 1
	fieldStartAccepted   protowire.Number = 2
	fieldStartInputTypes protowire.Number = 3

	// ContentTypeList
	fieldListContentTypes protowire.Number = 1

	// DataFrame
	fieldDataIndex       protowire.Number = 1
	fieldDataContentType protowire.Number = 2
	fieldDataPayload     protowire.Number = 3
	fieldDataEnd         protowire.Number = 4
	fieldDataError       protowire.Number = 5
	fieldDataHeaders     protowire.Number = 6

	// Error
	fieldErrorCode    protowire.Number = 1
	fieldErrorMessage protowire.Number = 2

	// map entry
	fieldEntryKey   protowire.Number = 1
	fieldEntryValue protowire.Number = 2
)

// ProtoCodec encodes frames in the protobuf wire format of the Signal
// message in api/invoker.proto, so generated clients in any language can
// talk to the invoker.
type ProtoCodec struct{}

func (ProtoCodec) Name() string { return CodecProto }

// Encode encodes a frame as a Signal message
func (ProtoCodec) Encode(frame *Frame) ([]byte, error) {
	var b []byte
	switch frame.FrameType {
	case FrameTypeStart:
		if frame.Start == nil {
			return nil, invoker.MalformedFrame("START frame without handshake body")
		}
		b = protowire.AppendTag(b, fieldSignalStart, protowire.BytesType)
		b = protowire.AppendBytes(b, appendStart(nil, frame.Start))
	case FrameTypeData:
		if frame.Data == nil {
			return nil, invoker.MalformedFrame("DATA frame without data body")
		}
		b = protowire.AppendTag(b, fieldSignalData, protowire.BytesType)
		b = protowire.AppendBytes(b, appendData(nil, frame.Data))
	default:
		return nil, invoker.MalformedFrame("invalid frame_type %d", frame.FrameType)
	}
	return b, nil
}

func appendStart(b []byte, s *StartFrame) []byte {
	if s.Function != "" {
		b = protowire.AppendTag(b, fieldStartFunction, protowire.BytesType)
		b = protowire.AppendString(b, s.Function)
	}
	for _, list := range s.AcceptedContentTypes {
		var lb []byte
		for _, ct := range list {
			lb = protowire.AppendTag(lb, fieldListContentTypes, protowire.BytesType)
			lb = protowire.AppendString(lb, ct)
		}
		b = protowire.AppendTag(b, fieldStartAccepted, protowire.BytesType)
		b = protowire.AppendBytes(b, lb)
	}
	for _, ct := range s.InputContentTypes {
		b = protowire.AppendTag(b, fieldStartInputTypes, protowire.BytesType)
		b = protowire.AppendString(b, ct)
	}
	return b
}

func appendData(b []byte, d *DataFrame) []byte {
	// index has explicit presence: always written, even when 0
	b = protowire.AppendTag(b, fieldDataIndex, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(d.Index)))
	if d.ContentType != "" {
		b = protowire.AppendTag(b, fieldDataContentType, protowire.BytesType)
		b = protowire.AppendString(b, d.ContentType)
	}
	if d.Payload != nil {
		b = protowire.AppendTag(b, fieldDataPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, d.Payload)
	}
	if d.End {
		b = protowire.AppendTag(b, fieldDataEnd, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	if d.Error != nil {
		var eb []byte
		eb = protowire.AppendTag(eb, fieldErrorCode, protowire.BytesType)
		eb = protowire.AppendString(eb, d.Error.Code)
		if d.Error.Message != "" {
			eb = protowire.AppendTag(eb, fieldErrorMessage, protowire.BytesType)
			eb = protowire.AppendString(eb, d.Error.Message)
		}
		b = protowire.AppendTag(b, fieldDataError, protowire.BytesType)
		b = protowire.AppendBytes(b, eb)
	}
	for k, v := range d.Headers {
		var entry []byte
		entry = protowire.AppendTag(entry, fieldEntryKey, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, fieldEntryValue, protowire.BytesType)
		entry = protowire.AppendString(entry, v)
		b = protowire.AppendTag(b, fieldDataHeaders, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

// Decode decodes a Signal message. Unknown fields are skipped.
func (ProtoCodec) Decode(data []byte) (*Frame, error) {
	frame := &Frame{}
	hasIndex := false
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		switch num {
		case fieldSignalStart:
			if typ != protowire.BytesType {
				return wrongType("start")
			}
			s, err := decodeStart(v)
			if err != nil {
				return err
			}
			frame.FrameType = FrameTypeStart
			frame.Start = s
			frame.Data = nil
		case fieldSignalData:
			if typ != protowire.BytesType {
				return wrongType("data")
			}
			d, present, err := decodeData(v)
			if err != nil {
				return err
			}
			frame.FrameType = FrameTypeData
			frame.Data = d
			frame.Start = nil
			hasIndex = present
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if frame.FrameType == 0 {
		return nil, invoker.MalformedFrame("signal carries neither start nor data")
	}
	if err := validate(frame, hasIndex); err != nil {
		return nil, err
	}
	return frame, nil
}

func decodeStart(data []byte) (*StartFrame, error) {
	s := &StartFrame{}
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		switch num {
		case fieldStartFunction:
			if typ != protowire.BytesType {
				return wrongType("function")
			}
			s.Function = string(v)
		case fieldStartAccepted:
			if typ != protowire.BytesType {
				return wrongType("accepted_content_types")
			}
			list := []string{}
			err := eachField(v, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
				if num == fieldListContentTypes {
					if typ != protowire.BytesType {
						return wrongType("content_types")
					}
					list = append(list, string(v))
				}
				return nil
			})
			if err != nil {
				return err
			}
			s.AcceptedContentTypes = append(s.AcceptedContentTypes, list)
		case fieldStartInputTypes:
			if typ != protowire.BytesType {
				return wrongType("input_content_types")
			}
			s.InputContentTypes = append(s.InputContentTypes, string(v))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func decodeData(data []byte) (*DataFrame, bool, error) {
	d := &DataFrame{}
	hasIndex := false
	err := eachField(data, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch num {
		case fieldDataIndex:
			if typ != protowire.VarintType {
				return wrongType("index")
			}
			idx := int64(x)
			if idx < math.MinInt32 || idx > math.MaxInt32 {
				return invoker.MalformedFrame("index %d overflows int32", idx)
			}
			d.Index = int(idx)
			hasIndex = true
		case fieldDataContentType:
			if typ != protowire.BytesType {
				return wrongType("content_type")
			}
			d.ContentType = string(v)
		case fieldDataPayload:
			if typ != protowire.BytesType {
				return wrongType("payload")
			}
			d.Payload = append([]byte{}, v...)
		case fieldDataEnd:
			if typ != protowire.VarintType {
				return wrongType("end")
			}
			d.End = protowire.DecodeBool(x)
		case fieldDataError:
			if typ != protowire.BytesType {
				return wrongType("error")
			}
			info := &ErrorInfo{}
			err := eachField(v, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
				if typ != protowire.BytesType {
					return nil
				}
				switch num {
				case fieldErrorCode:
					info.Code = string(v)
				case fieldErrorMessage:
					info.Message = string(v)
				}
				return nil
			})
			if err != nil {
				return err
			}
			d.Error = info
		case fieldDataHeaders:
			if typ != protowire.BytesType {
				return wrongType("headers")
			}
			var key, value string
			err := eachField(v, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
				if typ != protowire.BytesType {
					return nil
				}
				switch num {
				case fieldEntryKey:
					key = string(v)
				case fieldEntryValue:
					value = string(v)
				}
				return nil
			})
			if err != nil {
				return err
			}
			if d.Headers == nil {
				d.Headers = make(map[string]string)
			}
			d.Headers[key] = value
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return d, hasIndex, nil
}

// eachField walks the top-level fields of a message. For BytesType fields v
// holds the bytes, for VarintType fields x holds the value. Other wire types
// are skipped.
func eachField(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return invoker.MalformedFrame("bad tag: %v", protowire.ParseError(n))
		}
		b = b[n:]
		switch typ {
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return invoker.MalformedFrame("field %d: %v", num, protowire.ParseError(n))
			}
			b = b[n:]
			if err := fn(num, typ, v, 0); err != nil {
				return err
			}
		case protowire.VarintType:
			x, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return invoker.MalformedFrame("field %d: %v", num, protowire.ParseError(n))
			}
			b = b[n:]
			if err := fn(num, typ, nil, x); err != nil {
				return err
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return invoker.MalformedFrame("field %d: %v", num, protowire.ParseError(n))
			}
			b = b[n:]
			if err := fn(num, typ, nil, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

func wrongType(field string) error {
	return invoker.MalformedFrame("field %s has wrong wire type", field)
}
