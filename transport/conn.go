// Package transport implements the message channels the client and server talk over.
//
// Every channel carries whole messages. Over TCP the protocol package restores message
// boundaries and the codec package turns a message into bytes; a Conn combines both so
// callers only ever see message.Message values.
//
// ReqChannel is the request/reply channel used by sessions and proxies. It is strictly
// alternating: one request, then exactly one reply. A background goroutine (recvLoop)
// reads frames so that a bounded Receive can give up waiting without leaving a half-read
// frame on the stream.
//
//	caller ──Send(seq=1)──→ conn ──→ server
//	recvLoop ←── reply(seq=1) ──→ replies chan ──→ Receive wakes up
//
// PushChannel and PullChannel are the one-way pair used for streaming data out of band.
package transport

import (
	"errors"
	"net"
	"sync"
	"time"

	"objbridge/codec"
	"objbridge/message"
	"objbridge/protocol"
)

var (
	ErrClosed          = errors.New("transport: channel closed")
	ErrTimeout         = errors.New("transport: send timed out")
	ErrNoReply         = errors.New("transport: no message within deadline")
	ErrRequestInFlight = errors.New("transport: request already in flight")
	ErrNoRequest       = errors.New("transport: receive without outstanding request")
)

// Conn frames messages on a net.Conn. Writes are serialized; reads must come from a
// single goroutine.
type Conn struct {
	net.Conn
	codec   codec.Codec
	sending sync.Mutex // a frame is written in one piece so concurrent writers never interleave
}

// NewConn wraps c, encoding outgoing messages with codecType.
func NewConn(c net.Conn, codecType codec.CodecType) *Conn {
	return &Conn{Conn: c, codec: codec.GetCodec(codecType)}
}

// WriteMessage encodes m and writes it as one frame. A positive timeout bounds the write.
func (c *Conn) WriteMessage(msgType protocol.MsgType, seq uint32, m message.Message, timeout time.Duration) error {
	return c.write(c.codec, msgType, seq, m, timeout)
}

// WriteReply answers req with m, encoded with the codec req was sent with.
func (c *Conn) WriteReply(req *protocol.Header, m message.Message, timeout time.Duration) error {
	return c.write(codec.GetCodec(codec.CodecType(req.CodecType)), protocol.MsgTypeReply, req.Seq, m, timeout)
}

func (c *Conn) write(cdc codec.Codec, msgType protocol.MsgType, seq uint32, m message.Message, timeout time.Duration) error {
	body, err := cdc.Encode(codec.Normalize(m))
	if err != nil {
		return err
	}
	header := protocol.Header{
		CodecType: byte(cdc.Type()),
		MsgType:   msgType,
		Seq:       seq,
		BodyLen:   uint32(len(body)),
	}

	c.sending.Lock()
	defer c.sending.Unlock()
	if timeout > 0 {
		c.SetWriteDeadline(time.Now().Add(timeout))
		defer c.SetWriteDeadline(time.Time{})
	}
	err = protocol.Encode(c.Conn, &header, body)
	if isTimeout(err) {
		return ErrTimeout
	}
	return err
}

// ReadMessage reads one frame and decodes its body with the codec named in the header.
// Numbers in the result are normalized to int64 or float64.
func (c *Conn) ReadMessage() (*protocol.Header, message.Message, error) {
	header, body, err := protocol.Decode(c.Conn)
	if err != nil {
		return nil, nil, err
	}
	var m message.Message
	if err := codec.GetCodec(codec.CodecType(header.CodecType)).Decode(body, &m); err != nil {
		return header, nil, err
	}
	if m == nil {
		m = message.Message{}
	}
	return header, codec.Normalize(m).(message.Message), nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
