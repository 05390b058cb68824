// Package value translates between local Go values and their wire representation.
//
// Scalars pass through as JSON scalars after numeric normalization. Typed numeric arrays
// travel as base64 text of their big-endian bytes. Remote objects go out as a reference
// record holding only the handle identity and come back as a full unresolved-object
// record, which a Resolver turns into a local proxy.
package value

import (
	"encoding/json"
	"fmt"
	"math/big"

	"objbridge/codec"
	"objbridge/message"
	"objbridge/schema"
)

// Object is implemented by local proxies of remote objects.
type Object interface {
	// Ref returns the handle identity, or an error once the handle was released.
	Ref() (schema.HandleID, error)
	ClassName() string
	Interfaces() []string
}

// Resolver wraps an unresolved-object record in a local proxy.
type Resolver interface {
	Resolve(so schema.SerializedObject) (any, error)
}

// Encode converts a local value to its wire form.
func Encode(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool, string:
		return x, nil
	case Object:
		return reference(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			enc, err := Encode(e)
			if err != nil {
				return nil, fmt.Errorf("list element %d: %w", i, err)
			}
			out[i] = enc
		}
		return out, nil
	case map[string]any:
		return codec.Normalize(x), nil
	}
	if _, ok := ArrayKindOf(v); ok {
		return EncodeArray(v)
	}
	if isInteger(v) || isFloating(v) {
		return codec.Normalize(v), nil
	}
	return nil, fmt.Errorf("value: unsupported argument type %T", v)
}

// EncodeArg converts v for a parameter declared as tag. Integers sent to a floating
// parameter are widened so the server receives the type it declared.
func EncodeArg(tag schema.TypeTag, v any) (any, error) {
	if tag.IsFloating() && isInteger(v) {
		switch n := codec.Normalize(v).(type) {
		case int64:
			return float64(n), nil
		case float64:
			return n, nil
		}
	}
	return Encode(v)
}

// EncodeArgs encodes args against the parameter tags of sig.
func EncodeArgs(sig schema.MethodSignature, args []any) ([]any, error) {
	if len(args) != len(sig.Arguments) {
		return nil, fmt.Errorf("value: %s takes %d arguments, got %d", sig, len(sig.Arguments), len(args))
	}
	out := make([]any, len(args))
	for i, a := range args {
		enc, err := EncodeArg(sig.Arguments[i], a)
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s: %w", i, sig, err)
		}
		out[i] = enc
	}
	return out, nil
}

func reference(o Object) (any, error) {
	id, err := o.Ref()
	if err != nil {
		return nil, err
	}
	return map[string]any{message.KeyHashCode: id}, nil
}

// Decode converts a reply envelope into a local value. Exceptions become
// *message.RemoteFault; null becomes nil; unresolved objects go through r.
func Decode(reply message.Message, r Resolver) (any, error) {
	if err := message.CheckException(reply); err != nil {
		return nil, err
	}
	t := reply.Type()
	switch t {
	case message.TypeNull:
		return nil, nil
	case message.TypePrimitive:
		return decodePrimitive(reply[message.KeyValue]), nil
	case message.TypeString:
		s, ok := reply[message.KeyValue].(string)
		if !ok && reply[message.KeyValue] != nil {
			return nil, fmt.Errorf("value: string reply carries %T", reply[message.KeyValue])
		}
		return s, nil
	case message.TypeList:
		return decodeList(reply[message.KeyValue], r)
	case message.TypeObject:
		return decodeObject(reply)
	case message.TypeUnserializedObject:
		so, err := schema.ParseSerialized(reply)
		if err != nil {
			return nil, err
		}
		if r == nil {
			return nil, fmt.Errorf("value: no resolver for %s", so.Class)
		}
		return r.Resolve(so)
	}
	if kind, ok := ArrayKindForWireType(t); ok {
		text, ok := reply[message.KeyValue].(string)
		if !ok {
			return nil, fmt.Errorf("value: %s reply carries %T", t, reply[message.KeyValue])
		}
		return DecodeArray(kind, text)
	}
	return nil, &UnknownWireTypeError{Type: t}
}

func decodePrimitive(v any) any {
	switch x := v.(type) {
	case bool, string, nil:
		return x
	}
	return codec.Normalize(v)
}

func decodeList(v any, r Resolver) (any, error) {
	if v == nil {
		return []any{}, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("value: list reply carries %T", v)
	}
	out := make([]any, len(items))
	for i, item := range items {
		env, ok := envelope(item)
		if !ok {
			return nil, fmt.Errorf("value: list element %d is %T, not an envelope", i, item)
		}
		dec, err := Decode(env, r)
		if err != nil {
			return nil, fmt.Errorf("list element %d: %w", i, err)
		}
		out[i] = dec
	}
	return out, nil
}

func decodeObject(reply message.Message) (any, error) {
	class := reply.String(message.KeyClass)
	if class != string(schema.JSONObject) {
		return nil, fmt.Errorf("value: unrecognized return class %q", class)
	}
	text, ok := reply[message.KeyValue].(string)
	if !ok {
		return nil, fmt.Errorf("value: JSONObject reply carries %T", reply[message.KeyValue])
	}
	var out any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("value: JSONObject payload: %w", err)
	}
	return out, nil
}

func envelope(v any) (message.Message, bool) {
	switch m := v.(type) {
	case message.Message:
		return m, true
	case map[string]any:
		return message.Message(m), true
	}
	return nil, false
}

func isInteger(v any) bool {
	switch x := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, *big.Int:
		return true
	case json.Number:
		_, err := x.Int64()
		return err == nil
	}
	return false
}

func isFloating(v any) bool {
	switch x := v.(type) {
	case float32, float64, *big.Float:
		return true
	case json.Number:
		if _, err := x.Int64(); err == nil {
			return false
		}
		_, err := x.Float64()
		return err == nil
	}
	return false
}
