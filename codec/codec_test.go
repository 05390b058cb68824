package codec

import (
	"encoding/json"
	"math/big"
	"objbridge/message"
	"testing"
)

func TestJSONCodec(t *testing.T) {
	jsonCodec := &JSONCodec{}

	originalMsg := message.RunMethod(int64(9007199254740993), "snapImage", []string{}, []any{})

	data, err := jsonCodec.Encode(originalMsg)
	if err != nil {
		t.Fatalf("JSONCodec Encode failed: %v", err)
	}

	var decodedMsg message.Message
	if err := jsonCodec.Decode(data, &decodedMsg); err != nil {
		t.Fatalf("JSONCodec Decode failed: %v", err)
	}

	if decodedMsg.Command() != message.CmdRunMethod {
		t.Errorf("command mismatch: got %s", decodedMsg.Command())
	}
	// 2^53+1 is not representable as float64; UseNumber keeps it exact.
	id, ok := decodedMsg[message.KeyHashCode].(json.Number)
	if !ok || id.String() != "9007199254740993" {
		t.Errorf("hash-code mismatch: got %#v", decodedMsg[message.KeyHashCode])
	}
}

func TestMsgpackCodec(t *testing.T) {
	msgpackCodec := &MsgpackCodec{}

	originalMsg := Normalize(message.SetField(int64(7), "exposure", 12.5)).(message.Message)

	data, err := msgpackCodec.Encode(originalMsg)
	if err != nil {
		t.Fatalf("MsgpackCodec Encode failed: %v", err)
	}

	var decodedMsg message.Message
	if err := msgpackCodec.Decode(data, &decodedMsg); err != nil {
		t.Fatalf("MsgpackCodec Decode failed: %v", err)
	}

	if decodedMsg.Command() != message.CmdSetField {
		t.Errorf("command mismatch: got %s", decodedMsg.Command())
	}
	if Normalize(decodedMsg[message.KeyHashCode]) != int64(7) {
		t.Errorf("hash-code mismatch: got %#v", decodedMsg[message.KeyHashCode])
	}
	if decodedMsg[message.KeyValue] != 12.5 {
		t.Errorf("value mismatch: got %#v", decodedMsg[message.KeyValue])
	}
}

func TestNormalize(t *testing.T) {
	in := message.Message{
		"i8":     int8(-3),
		"u32":    uint32(70000),
		"f32":    float32(0.5),
		"num":    json.Number("12"),
		"numf":   json.Number("1.25"),
		"big":    big.NewInt(1 << 40),
		"bigf":   big.NewFloat(2.5),
		"nested": []any{int16(4), map[string]any{"x": uint8(1)}},
	}

	out := Normalize(in).(message.Message)

	want := map[string]any{
		"i8":   int64(-3),
		"u32":  int64(70000),
		"f32":  float64(0.5),
		"num":  int64(12),
		"numf": 1.25,
		"big":  int64(1 << 40),
		"bigf": 2.5,
	}
	for k, v := range want {
		if out[k] != v {
			t.Errorf("%s: got %#v, want %#v", k, out[k], v)
		}
	}
	nested := out["nested"].([]any)
	if nested[0] != int64(4) || nested[1].(map[string]any)["x"] != int64(1) {
		t.Errorf("nested not normalized: %#v", nested)
	}
	if _, ok := in["i8"].(int8); !ok {
		t.Error("Normalize must not mutate its input")
	}
}

func TestParseCodecType(t *testing.T) {
	if ct, err := ParseCodecType("msgpack"); err != nil || ct != CodecTypeMsgpack {
		t.Fatalf("expect msgpack, got %v %v", ct, err)
	}
	if _, err := ParseCodecType("xml"); err == nil {
		t.Fatal("expect error for unknown codec")
	}
}
