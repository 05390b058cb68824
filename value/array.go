package value

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"

	"objbridge/message"
	"objbridge/schema"
)

// ArrayKind is the element type of a typed numeric array. Each kind maps to exactly one
// Go slice type:
//
//	ByteArray   []uint8    8-bit
//	ShortArray  []uint16   16-bit
//	IntArray    []uint32   32-bit
//	FloatArray  []float32  32-bit IEEE 754
//	DoubleArray []float64  64-bit IEEE 754
//
// Integer arrays are read unsigned; the remote side uses them for pixel data.
type ArrayKind int

const (
	ByteArray ArrayKind = iota + 1
	ShortArray
	IntArray
	FloatArray
	DoubleArray
)

var arrayKinds = []struct {
	kind     ArrayKind
	wireType string
	tag      schema.TypeTag
	width    int
}{
	{ByteArray, message.TypeByteArray, schema.ByteArray, 1},
	{ShortArray, message.TypeShortArray, schema.ShortArray, 2},
	{IntArray, message.TypeIntArray, schema.IntArray, 4},
	{FloatArray, message.TypeFloatArray, schema.FloatArray, 4},
	{DoubleArray, message.TypeDoubleArray, schema.DoubleArray, 8},
}

// WireType returns the reply envelope type for k.
func (k ArrayKind) WireType() string {
	for _, a := range arrayKinds {
		if a.kind == k {
			return a.wireType
		}
	}
	return ""
}

// Tag returns the parameter type tag for k.
func (k ArrayKind) Tag() schema.TypeTag {
	for _, a := range arrayKinds {
		if a.kind == k {
			return a.tag
		}
	}
	return ""
}

// Width is the element size in bytes.
func (k ArrayKind) Width() int {
	for _, a := range arrayKinds {
		if a.kind == k {
			return a.width
		}
	}
	return 0
}

func (k ArrayKind) String() string {
	if t := k.Tag(); t != "" {
		return string(t)
	}
	return fmt.Sprintf("ArrayKind(%d)", int(k))
}

// ArrayKindOf reports the kind of a typed array value.
func ArrayKindOf(v any) (ArrayKind, bool) {
	switch v.(type) {
	case []uint8:
		return ByteArray, true
	case []uint16:
		return ShortArray, true
	case []uint32:
		return IntArray, true
	case []float32:
		return FloatArray, true
	case []float64:
		return DoubleArray, true
	}
	return 0, false
}

// ArrayKindForWireType maps a reply type such as "double-array" to its kind.
func ArrayKindForWireType(wireType string) (ArrayKind, bool) {
	for _, a := range arrayKinds {
		if a.wireType == wireType {
			return a.kind, true
		}
	}
	return 0, false
}

// ArrayKindForTag maps a parameter tag such as "double[]" to its kind.
func ArrayKindForTag(tag schema.TypeTag) (ArrayKind, bool) {
	for _, a := range arrayKinds {
		if a.tag == tag {
			return a.kind, true
		}
	}
	return 0, false
}

// ArrayBytes returns the big-endian bytes of a typed array.
func ArrayBytes(v any) ([]byte, error) {
	switch a := v.(type) {
	case []uint8:
		out := make([]byte, len(a))
		copy(out, a)
		return out, nil
	case []uint16:
		out := make([]byte, 2*len(a))
		for i, e := range a {
			binary.BigEndian.PutUint16(out[2*i:], e)
		}
		return out, nil
	case []uint32:
		out := make([]byte, 4*len(a))
		for i, e := range a {
			binary.BigEndian.PutUint32(out[4*i:], e)
		}
		return out, nil
	case []float32:
		out := make([]byte, 4*len(a))
		for i, e := range a {
			binary.BigEndian.PutUint32(out[4*i:], math.Float32bits(e))
		}
		return out, nil
	case []float64:
		out := make([]byte, 8*len(a))
		for i, e := range a {
			binary.BigEndian.PutUint64(out[8*i:], math.Float64bits(e))
		}
		return out, nil
	}
	return nil, fmt.Errorf("value: %T is not a typed array", v)
}

// ArrayFromBytes reads big-endian elements of kind from b into a new slice.
func ArrayFromBytes(kind ArrayKind, b []byte) (any, error) {
	w := kind.Width()
	if w == 0 {
		return nil, fmt.Errorf("value: unknown array kind %d", int(kind))
	}
	if len(b)%w != 0 {
		return nil, fmt.Errorf("value: %d bytes is not a whole number of %s elements", len(b), kind)
	}
	n := len(b) / w
	switch kind {
	case ByteArray:
		out := make([]uint8, n)
		copy(out, b)
		return out, nil
	case ShortArray:
		out := make([]uint16, n)
		for i := range out {
			out[i] = binary.BigEndian.Uint16(b[2*i:])
		}
		return out, nil
	case IntArray:
		out := make([]uint32, n)
		for i := range out {
			out[i] = binary.BigEndian.Uint32(b[4*i:])
		}
		return out, nil
	case FloatArray:
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(binary.BigEndian.Uint32(b[4*i:]))
		}
		return out, nil
	default:
		out := make([]float64, n)
		for i := range out {
			out[i] = math.Float64frombits(binary.BigEndian.Uint64(b[8*i:]))
		}
		return out, nil
	}
}

// EncodeArray returns the base64 text of a typed array's big-endian bytes.
func EncodeArray(v any) (string, error) {
	b, err := ArrayBytes(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DecodeArray parses base64 text into a fresh typed array of kind.
func DecodeArray(kind ArrayKind, text string) (any, error) {
	b, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("value: %s payload: %w", kind, err)
	}
	return ArrayFromBytes(kind, b)
}
