// Package payload converts between payload bytes and Go values for each
// supported content type.
package payload

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// Well-known content types
const (
	TextPlain   = "text/plain"
	OctetStream = "application/octet-stream"
	JSON        = "application/json"
	CBOR        = "application/cbor"
	YAML        = "application/yaml"
	XYAML       = "application/x-yaml"
)

// Codec converts values of one content type
type Codec interface {
	ContentType() string
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// cborDecMode decodes untyped maps with string keys so decoded values can be
// validated against JSON schemas
var cborDecMode, _ = cbor.DecOptions{
	DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
}.DecMode()

type textCodec struct{}

func (textCodec) ContentType() string { return TextPlain }

func (textCodec) Encode(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return []byte{}, nil
	case string:
		return []byte(t), nil
	case []byte:
		return t, nil
	case fmt.Stringer:
		return []byte(t.String()), nil
	default:
		return []byte(fmt.Sprint(v)), nil
	}
}

func (textCodec) Decode(data []byte, v interface{}) error {
	switch t := v.(type) {
	case *string:
		*t = string(data)
	case *[]byte:
		*t = append([]byte{}, data...)
	case *interface{}:
		*t = string(data)
	default:
		return fmt.Errorf("%s cannot decode into %T", TextPlain, v)
	}
	return nil
}

type binaryCodec struct{}

func (binaryCodec) ContentType() string { return OctetStream }

func (binaryCodec) Encode(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return []byte{}, nil
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	default:
		return nil, fmt.Errorf("%s cannot encode %T", OctetStream, v)
	}
}

func (binaryCodec) Decode(data []byte, v interface{}) error {
	switch t := v.(type) {
	case *[]byte:
		*t = append([]byte{}, data...)
	case *string:
		*t = string(data)
	case *interface{}:
		*t = append([]byte{}, data...)
	default:
		return fmt.Errorf("%s cannot decode into %T", OctetStream, v)
	}
	return nil
}

type jsonCodec struct{}

func (jsonCodec) ContentType() string { return JSON }

func (jsonCodec) Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Decode(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

type cborCodec struct{}

func (cborCodec) ContentType() string { return CBOR }

func (cborCodec) Encode(v interface{}) ([]byte, error) {
	return cbor.Marshal(v)
}

func (cborCodec) Decode(data []byte, v interface{}) error {
	return cborDecMode.Unmarshal(data, v)
}

type yamlCodec struct {
	contentType string
}

func (c yamlCodec) ContentType() string { return c.contentType }

func (yamlCodec) Encode(v interface{}) ([]byte, error) {
	return yaml.Marshal(v)
}

func (yamlCodec) Decode(data []byte, v interface{}) error {
	return yaml.Unmarshal(data, v)
}

// Text returns the text/plain codec
func Text() Codec { return textCodec{} }

// Binary returns the application/octet-stream codec
func Binary() Codec { return binaryCodec{} }

// JSONCodec returns the application/json codec backed by json-iterator
func JSONCodec() Codec { return jsonCodec{} }

// CBORCodec returns the application/cbor codec
func CBORCodec() Codec { return cborCodec{} }

// YAMLCodec returns a YAML codec registered under contentType
func YAMLCodec(contentType string) Codec { return yamlCodec{contentType: contentType} }
