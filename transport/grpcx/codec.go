package grpcx

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// rawCodec moves encoded frames through gRPC untouched. Frames are
// encoded by the session so that decoding failures surface as protocol
// errors rather than transport errors. Other services sharing the server
// (health) still get protobuf messages.
type rawCodec struct{}

// Name is reported as the content-subtype. The frames are protobuf
// encoded, so generated clients interoperate.
func (rawCodec) Name() string { return "proto" }

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	switch m := v.(type) {
	case *[]byte:
		return *m, nil
	case []byte:
		return m, nil
	case proto.Message:
		return proto.Marshal(m)
	default:
		return nil, fmt.Errorf("grpcx: cannot marshal %T", v)
	}
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	switch m := v.(type) {
	case *[]byte:
		*m = append((*m)[:0], data...)
		return nil
	case proto.Message:
		return proto.Unmarshal(data, m)
	default:
		return fmt.Errorf("grpcx: cannot unmarshal into %T", v)
	}
}
