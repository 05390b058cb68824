package value

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"objbridge/message"
	"objbridge/schema"
)

type fakeObject struct {
	id       any
	class    string
	ifaces   []string
	released bool
}

func (o *fakeObject) Ref() (schema.HandleID, error) {
	if o.released {
		return nil, errors.New("released")
	}
	return o.id, nil
}

func (o *fakeObject) ClassName() string    { return o.class }
func (o *fakeObject) Interfaces() []string { return o.ifaces }

type recordingResolver struct {
	got []schema.SerializedObject
}

func (r *recordingResolver) Resolve(so schema.SerializedObject) (any, error) {
	r.got = append(r.got, so)
	return &fakeObject{id: so.ID, class: so.Class, ifaces: so.Interfaces}, nil
}

func TestDecodeDoubleArray(t *testing.T) {
	want := []float64{1.5, -2.25, 1e10}
	b := make([]byte, 8*len(want))
	for i, f := range want {
		binary.BigEndian.PutUint64(b[8*i:], math.Float64bits(f))
	}
	reply := message.Message{
		"type":  "double-array",
		"value": base64.StdEncoding.EncodeToString(b),
	}

	got, err := Decode(reply, nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDecodeScalars(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  any
	}{
		{"null", `{"type":"null"}`, nil},
		{"int", `{"type":"primitive","value":42}`, int64(42)},
		{"float", `{"type":"primitive","value":2.5}`, 2.5},
		{"bool", `{"type":"primitive","value":true}`, true},
		{"string", `{"type":"string","value":"Camera"}`, "Camera"},
		{"json object", `{"type":"object","class":"JSONObject","value":"{\"a\":[1,2]}"}`,
			map[string]any{"a": []any{1.0, 2.0}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var m message.Message
			dec := json.NewDecoder(strings.NewReader(tc.reply))
			dec.UseNumber()
			if err := dec.Decode(&m); err != nil {
				t.Fatal(err)
			}
			got, err := Decode(m, nil)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestDecodeUnknownType(t *testing.T) {
	for _, typ := range []string{"", "tuple"} {
		_, err := Decode(message.Message{"type": typ, "value": 1}, nil)
		var wt *UnknownWireTypeError
		if !errors.As(err, &wt) {
			t.Fatalf("type %q: expect *UnknownWireTypeError, got %v", typ, err)
		}
	}
}

func TestDecodeException(t *testing.T) {
	_, err := Decode(message.Exception("no such device"), nil)
	var fault *message.RemoteFault
	if !errors.As(err, &fault) || fault.Message != "no such device" {
		t.Fatalf("expect RemoteFault, got %v", err)
	}
}

func TestDecodeObjectAndList(t *testing.T) {
	r := &recordingResolver{}
	obj := map[string]any{
		"type":       "unserialized-object",
		"class":      "pkg.Foo",
		"hash-code":  int64(7),
		"fields":     []any{"x"},
		"interfaces": []any{"pkg.Foo"},
		"api":        []any{},
	}
	reply := message.Message{
		"type":  "list",
		"value": []any{obj, map[string]any{"type": "string", "value": "s"}},
	}

	got, err := Decode(reply, r)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	items := got.([]any)
	if len(items) != 2 || items[1] != "s" {
		t.Fatalf("unexpected list %v", items)
	}
	if o, ok := items[0].(*fakeObject); !ok || o.class != "pkg.Foo" || o.id != int64(7) {
		t.Fatalf("unexpected object %#v", items[0])
	}
	if len(r.got) != 1 || r.got[0].Fields[0] != "x" {
		t.Fatalf("resolver saw %v", r.got)
	}
}

func TestEncode(t *testing.T) {
	obj := &fakeObject{id: int64(99), class: "pkg.Foo"}

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"bool", true, true},
		{"int", 3, int64(3)},
		{"uint8", uint8(200), int64(200)},
		{"float32", float32(0.5), 0.5},
		{"string", "x", "x"},
		{"object", obj, map[string]any{"hash-code": int64(99)}},
		{"list", []any{1, "a"}, []any{int64(1), "a"}},
		{"bytes", []uint8{1, 2}, base64.StdEncoding.EncodeToString([]byte{1, 2})},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Encode(tc.in)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %#v, want %#v", got, tc.want)
			}
		})
	}

	if _, err := Encode(struct{}{}); err == nil {
		t.Error("expect error for unsupported type")
	}
	obj.released = true
	if _, err := Encode(obj); err == nil {
		t.Error("expect error when encoding a released object")
	}
}

func TestEncodeArgWidensIntegers(t *testing.T) {
	got, err := EncodeArg(schema.Double, 3)
	if err != nil {
		t.Fatal(err)
	}
	if f, ok := got.(float64); !ok || f != 3 {
		t.Fatalf("expect float64(3), got %#v", got)
	}
	got, _ = EncodeArg(schema.Int, 3)
	if got != int64(3) {
		t.Fatalf("expect int64(3), got %#v", got)
	}
}
