// Package schema describes remote types as the server reports them: type tags, method
// signatures and the per-class type description that proxies are synthesized from.
package schema

import (
	"fmt"
	"strings"

	"objbridge/message"
)

// TypeTag names the remote type of a parameter, return value or field. Object types are
// tagged with their class identity, anything outside the fixed vocabulary below.
type TypeTag string

const (
	Boolean     TypeTag = "boolean"
	Byte        TypeTag = "byte"
	Char        TypeTag = "char"
	Short       TypeTag = "short"
	Int         TypeTag = "int"
	Long        TypeTag = "long"
	Float       TypeTag = "float"
	Double      TypeTag = "double"
	String      TypeTag = "java.lang.String"
	ByteArray   TypeTag = "byte[]"
	ShortArray  TypeTag = "short[]"
	IntArray    TypeTag = "int[]"
	FloatArray  TypeTag = "float[]"
	DoubleArray TypeTag = "double[]"
	List        TypeTag = "java.util.List"
	Void        TypeTag = "void"
	Object      TypeTag = "java.lang.Object"
	JSONObject  TypeTag = "JSONObject"
)

// IsInteger reports whether values of t travel as JSON integers.
func (t TypeTag) IsInteger() bool {
	switch t {
	case Byte, Char, Short, Int, Long:
		return true
	}
	return false
}

// IsFloating reports whether values of t travel as JSON floating numbers.
func (t TypeTag) IsFloating() bool {
	return t == Float || t == Double
}

// IsArray reports whether t is one of the typed numeric arrays.
func (t TypeTag) IsArray() bool {
	switch t {
	case ByteArray, ShortArray, IntArray, FloatArray, DoubleArray:
		return true
	}
	return false
}

// IsClass reports whether t is an object type, i.e. a class identity rather than a
// primitive, string, array, list or void.
func (t TypeTag) IsClass() bool {
	switch {
	case t == Boolean, t == String, t == List, t == Void:
		return false
	case t.IsInteger(), t.IsFloating(), t.IsArray():
		return false
	}
	return t != ""
}

// HandleID is the server-assigned identity of one remote object. It is opaque to the
// client and sent back exactly as received.
type HandleID = any

// MethodSignature is one overload of a remote method or constructor.
type MethodSignature struct {
	Name       string    `json:"name" msgpack:"name"`
	Arguments  []TypeTag `json:"arguments" msgpack:"arguments"`
	ReturnType TypeTag   `json:"return-type,omitempty" msgpack:"return-type,omitempty"`
}

// String renders the signature as name(type, type).
func (s MethodSignature) String() string {
	args := make([]string, len(s.Arguments))
	for i, a := range s.Arguments {
		args[i] = string(a)
	}
	return s.Name + "(" + strings.Join(args, ", ") + ")"
}

// Equal reports whether two signatures share name and parameter types.
func (s MethodSignature) Equal(o MethodSignature) bool {
	if s.Name != o.Name || len(s.Arguments) != len(o.Arguments) {
		return false
	}
	for i := range s.Arguments {
		if s.Arguments[i] != o.Arguments[i] {
			return false
		}
	}
	return true
}

// ArgumentStrings returns the parameter tags as plain strings for the wire.
func (s MethodSignature) ArgumentStrings() []string {
	out := make([]string, len(s.Arguments))
	for i, a := range s.Arguments {
		out[i] = string(a)
	}
	return out
}

// TypeDescription is the server's reflection of one remote class. It is immutable once
// received and keyed by Class.
type TypeDescription struct {
	Class      string
	Fields     []string
	Methods    []MethodSignature
	Interfaces []string
}

// SerializedObject is an "unserialized-object" reply: a type description plus the handle
// identity of the instance. Port is set when the server moved the object to a dedicated
// channel.
type SerializedObject struct {
	TypeDescription
	ID   HandleID
	Port int
}

// ParseSerialized reads an unserialized-object record.
func ParseSerialized(m message.Message) (SerializedObject, error) {
	var so SerializedObject
	class, ok := m[message.KeyClass].(string)
	if !ok || class == "" {
		return so, fmt.Errorf("schema: serialized object without class")
	}
	id, ok := m[message.KeyHashCode]
	if !ok || id == nil {
		return so, fmt.Errorf("schema: serialized object %s without hash-code", class)
	}
	fields, err := stringList(m[message.KeyFields])
	if err != nil {
		return so, fmt.Errorf("schema: %s fields: %w", class, err)
	}
	ifaces, err := stringList(m[message.KeyInterfaces])
	if err != nil {
		return so, fmt.Errorf("schema: %s interfaces: %w", class, err)
	}
	methods, err := ParseSignatures(m[message.KeyAPI])
	if err != nil {
		return so, fmt.Errorf("schema: %s api: %w", class, err)
	}
	so.TypeDescription = TypeDescription{
		Class:      class,
		Fields:     fields,
		Methods:    methods,
		Interfaces: ifaces,
	}
	so.ID = id
	if p, ok := m[message.KeyPort]; ok {
		port, err := toInt(p)
		if err != nil {
			return so, fmt.Errorf("schema: %s port: %w", class, err)
		}
		so.Port = port
	}
	return so, nil
}

// ParseSignatures reads a list of {name, arguments, return-type} records.
func ParseSignatures(v any) ([]MethodSignature, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected list, got %T", v)
	}
	sigs := make([]MethodSignature, 0, len(items))
	for i, item := range items {
		rec, ok := asMap(item)
		if !ok {
			return nil, fmt.Errorf("entry %d: expected object, got %T", i, item)
		}
		name, _ := rec["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("entry %d: missing name", i)
		}
		args, err := stringList(rec["arguments"])
		if err != nil {
			return nil, fmt.Errorf("entry %d (%s): %w", i, name, err)
		}
		sig := MethodSignature{Name: name, Arguments: make([]TypeTag, len(args))}
		for j, a := range args {
			sig.Arguments[j] = TypeTag(a)
		}
		if rt, ok := rec["return-type"].(string); ok {
			sig.ReturnType = TypeTag(rt)
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case message.Message:
		return m, true
	}
	return nil, false
}

func stringList(v any) ([]string, error) {
	switch l := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), l...), nil
	case []any:
		out := make([]string, len(l))
		for i, e := range l {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("element %d: expected string, got %T", i, e)
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected list of strings, got %T", v)
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		return int(n), nil
	case interface{ Int64() (int64, error) }:
		i, err := n.Int64()
		return int(i), err
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}
