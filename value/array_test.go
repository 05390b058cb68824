package value

import (
	"encoding/base64"
	"math"
	"reflect"
	"testing"
)

func TestArrayRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   any
		kind ArrayKind
	}{
		{"byte", []uint8{0, 1, 127, 128, 255}, ByteArray},
		{"short", []uint16{0, 1, 4095, 65535}, ShortArray},
		{"int", []uint32{0, 1, math.MaxInt32, math.MaxUint32}, IntArray},
		{"float", []float32{-1.5, 0, 3.25, math.MaxFloat32}, FloatArray},
		{"double", []float64{-2.5, 0, 1e300, math.SmallestNonzeroFloat64}, DoubleArray},
		{"empty", []float64{}, DoubleArray},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			kind, ok := ArrayKindOf(tc.in)
			if !ok || kind != tc.kind {
				t.Fatalf("ArrayKindOf = %v, %v", kind, ok)
			}
			text, err := EncodeArray(tc.in)
			if err != nil {
				t.Fatalf("EncodeArray failed: %v", err)
			}
			out, err := DecodeArray(kind, text)
			if err != nil {
				t.Fatalf("DecodeArray failed: %v", err)
			}
			if !reflect.DeepEqual(out, tc.in) {
				t.Fatalf("round trip mismatch: got %v, want %v", out, tc.in)
			}
			in, got := reflect.ValueOf(tc.in), reflect.ValueOf(out)
			if in.Len() > 0 && in.Pointer() == got.Pointer() {
				t.Fatal("decoded array aliases its input")
			}
		})
	}
}

func TestDecodeArrayDoesNotAliasBytes(t *testing.T) {
	raw := []byte{1, 2, 3}
	out, err := ArrayFromBytes(ByteArray, raw)
	if err != nil {
		t.Fatal(err)
	}
	raw[0] = 9
	if out.([]uint8)[0] != 1 {
		t.Fatal("decoded byte array shares memory with the input buffer")
	}
}

func TestArrayBigEndian(t *testing.T) {
	text, err := EncodeArray([]uint16{0x0102})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := base64.StdEncoding.DecodeString(text)
	if len(b) != 2 || b[0] != 0x01 || b[1] != 0x02 {
		t.Fatalf("expect big-endian bytes, got %v", b)
	}
}

func TestArrayFromBytesRejectsPartialElement(t *testing.T) {
	if _, err := ArrayFromBytes(DoubleArray, make([]byte, 12)); err == nil {
		t.Fatal("expect error for 12 bytes of doubles")
	}
	if _, err := DecodeArray(IntArray, "not base64!"); err == nil {
		t.Fatal("expect error for invalid base64")
	}
}

func TestArrayKindMappings(t *testing.T) {
	for _, k := range []ArrayKind{ByteArray, ShortArray, IntArray, FloatArray, DoubleArray} {
		if got, ok := ArrayKindForWireType(k.WireType()); !ok || got != k {
			t.Errorf("%s: wire type %q does not map back", k, k.WireType())
		}
		if got, ok := ArrayKindForTag(k.Tag()); !ok || got != k {
			t.Errorf("%s: tag %q does not map back", k, k.Tag())
		}
	}
	if ArrayKind(0).Width() != 0 {
		t.Error("zero kind must have no width")
	}
}
