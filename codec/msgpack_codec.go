package codec

import (
	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackCodec encodes messages as MessagePack. Typed arrays still travel as base64
// strings inside the message so both codecs carry identical message shapes.
type MsgpackCodec struct{}

func (c *MsgpackCodec) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (c *MsgpackCodec) Decode(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

func (c *MsgpackCodec) Type() CodecType {
	return CodecTypeMsgpack
}
