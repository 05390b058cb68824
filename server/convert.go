package server

import (
	"encoding/json"
	"fmt"
	"reflect"

	"objbridge/message"
	"objbridge/schema"
	"objbridge/value"
)

type tagger interface {
	tag(t reflect.Type) (schema.TypeTag, error)
}

var (
	anyType   = reflect.TypeOf((*any)(nil)).Elem()
	listType  = reflect.TypeOf([]any(nil))
	jsonType  = reflect.TypeOf(map[string]any(nil))
	arrayTags = map[reflect.Type]schema.TypeTag{
		reflect.TypeOf([]uint8(nil)):   schema.ByteArray,
		reflect.TypeOf([]uint16(nil)):  schema.ShortArray,
		reflect.TypeOf([]uint32(nil)):  schema.IntArray,
		reflect.TypeOf([]float32(nil)): schema.FloatArray,
		reflect.TypeOf([]float64(nil)): schema.DoubleArray,
	}
)

// tag maps a Go type to the type tag clients see.
func (s *Server) tag(t reflect.Type) (schema.TypeTag, error) {
	if tag, ok := arrayTags[t]; ok {
		return tag, nil
	}
	switch t {
	case anyType:
		return schema.Object, nil
	case listType:
		return schema.List, nil
	case jsonType:
		return schema.JSONObject, nil
	}
	switch t.Kind() {
	case reflect.Bool:
		return schema.Boolean, nil
	case reflect.Int8:
		return schema.Byte, nil
	case reflect.Int16:
		return schema.Short, nil
	case reflect.Int, reflect.Int32:
		return schema.Int, nil
	case reflect.Int64:
		return schema.Long, nil
	case reflect.Float32:
		return schema.Float, nil
	case reflect.Float64:
		return schema.Double, nil
	case reflect.String:
		return schema.String, nil
	case reflect.Pointer:
		s.mu.RLock()
		c, ok := s.byType[t]
		s.mu.RUnlock()
		if ok {
			return schema.TypeTag(c.name), nil
		}
	}
	return "", fmt.Errorf("%v: %w", t, errUnsupportedType)
}

// decodeArg converts one wire argument to a value of t.
func (s *Server) decodeArg(v any, tag schema.TypeTag, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("null passed for %s", tag)
	}

	switch {
	case tag.IsClass() && tag != schema.JSONObject:
		ref, ok := v.(map[string]any)
		if !ok {
			return reflect.Value{}, fmt.Errorf("expected object reference for %s, got %T", tag, v)
		}
		e, err := s.objects.lookup(ref[message.KeyHashCode])
		if err != nil {
			return reflect.Value{}, err
		}
		if !e.v.Type().AssignableTo(t) {
			return reflect.Value{}, fmt.Errorf("%s is not a %s", e.class.name, tag)
		}
		return e.v, nil
	case tag.IsArray():
		text, ok := v.(string)
		if !ok {
			return reflect.Value{}, fmt.Errorf("expected base64 text for %s, got %T", tag, v)
		}
		kind, _ := value.ArrayKindForTag(tag)
		arr, err := value.DecodeArray(kind, text)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(arr), nil
	case tag.IsInteger():
		n, ok := v.(int64)
		if !ok {
			return reflect.Value{}, fmt.Errorf("expected integer for %s, got %T", tag, v)
		}
		out := reflect.New(t).Elem()
		if out.OverflowInt(n) {
			return reflect.Value{}, fmt.Errorf("%d overflows %s", n, tag)
		}
		out.SetInt(n)
		return out, nil
	case tag.IsFloating():
		var f float64
		switch n := v.(type) {
		case float64:
			f = n
		case int64:
			f = float64(n)
		default:
			return reflect.Value{}, fmt.Errorf("expected number for %s, got %T", tag, v)
		}
		out := reflect.New(t).Elem()
		out.SetFloat(f)
		return out, nil
	}

	rv := reflect.ValueOf(v)
	if !rv.Type().AssignableTo(t) {
		return reflect.Value{}, fmt.Errorf("expected %s, got %T", tag, v)
	}
	return rv, nil
}

func (s *Server) decodeArgs(o *overload, args []any) ([]reflect.Value, error) {
	if len(args) != len(o.params) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", o.sig, len(o.params), len(args))
	}
	out := make([]reflect.Value, len(args))
	for i, a := range args {
		v, err := s.decodeArg(a, o.sig.Arguments[i], o.params[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s: %w", i, o.sig, err)
		}
		out[i] = v
	}
	return out, nil
}

// encode builds the reply envelope for a result. Objects of registered classes are added
// to the object table and sent as unserialized-object records.
func (s *Server) encode(v reflect.Value) (message.Message, error) {
	if !v.IsValid() {
		return message.Message{message.KeyType: message.TypeNull}, nil
	}
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return message.Message{message.KeyType: message.TypeNull}, nil
		}
		v = v.Elem()
	}

	if kind, ok := value.ArrayKindOf(v.Interface()); ok {
		text, err := value.EncodeArray(v.Interface())
		if err != nil {
			return nil, err
		}
		return message.Message{message.KeyType: kind.WireType(), message.KeyValue: text}, nil
	}

	switch v.Kind() {
	case reflect.Bool:
		return primitive(v.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return primitive(v.Int()), nil
	case reflect.Float32, reflect.Float64:
		return primitive(v.Float()), nil
	case reflect.String:
		return message.Message{message.KeyType: message.TypeString, message.KeyValue: v.String()}, nil
	case reflect.Pointer:
		if v.IsNil() {
			return message.Message{message.KeyType: message.TypeNull}, nil
		}
		s.mu.RLock()
		c, ok := s.byType[v.Type()]
		s.mu.RUnlock()
		if ok {
			return s.serialize(c, v), nil
		}
	case reflect.Slice:
		if v.Type() == listType {
			items := make([]any, v.Len())
			for i := range items {
				item, err := s.encode(v.Index(i))
				if err != nil {
					return nil, fmt.Errorf("list element %d: %w", i, err)
				}
				items[i] = map[string]any(item)
			}
			return message.Message{message.KeyType: message.TypeList, message.KeyValue: items}, nil
		}
	case reflect.Map:
		if v.Type() == jsonType {
			b, err := json.Marshal(v.Interface())
			if err != nil {
				return nil, err
			}
			return message.Message{
				message.KeyType:  message.TypeObject,
				message.KeyClass: string(schema.JSONObject),
				message.KeyValue: string(b),
			}, nil
		}
	}
	return nil, fmt.Errorf("cannot send %v", v.Type())
}

func primitive(v any) message.Message {
	return message.Message{message.KeyType: message.TypePrimitive, message.KeyValue: v}
}

func (s *Server) serialize(c *Class, v reflect.Value) message.Message {
	id := s.objects.add(c, v)
	return message.Message{
		message.KeyType:       message.TypeUnserializedObject,
		message.KeyClass:      c.name,
		message.KeyHashCode:   id,
		message.KeyFields:     c.Fields(),
		message.KeyInterfaces: c.Interfaces(),
		message.KeyAPI:        apiRecords(c.API()),
	}
}

func apiRecords(sigs []schema.MethodSignature) []any {
	out := make([]any, len(sigs))
	for i, sig := range sigs {
		out[i] = map[string]any{
			"name":        sig.Name,
			"arguments":   sig.ArgumentStrings(),
			"return-type": string(sig.ReturnType),
		}
	}
	return out
}
