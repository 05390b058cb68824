package proxy

import (
	"fmt"
	"sync"
	"time"

	"objbridge/message"
	"objbridge/transport"
)

// fakeChannel records requests and answers them with handler.
type fakeChannel struct {
	mu       sync.Mutex
	requests []message.Message
	handler  func(message.Message) message.Message
	closed   bool
}

func (c *fakeChannel) Request(m message.Message, timeout time.Duration) (message.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, transport.ErrClosed
	}
	c.requests = append(c.requests, m)
	if c.handler == nil {
		return message.Message{"type": "null"}, nil
	}
	reply := c.handler(m)
	if err := message.CheckException(reply); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *fakeChannel) last() message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		return nil
	}
	return c.requests[len(c.requests)-1]
}

func (c *fakeChannel) count(command string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.requests {
		if r.Command() == command {
			n++
		}
	}
	return n
}

func unserialized(class string, id int64, api ...map[string]any) map[string]any {
	list := make([]any, len(api))
	for i, a := range api {
		list[i] = a
	}
	return map[string]any{
		"type":       "unserialized-object",
		"class":      class,
		"hash-code":  id,
		"fields":     []any{},
		"interfaces": []any{class},
		"api":        list,
	}
}

func api(name, ret string, args ...string) map[string]any {
	list := make([]any, len(args))
	for i, a := range args {
		list[i] = a
	}
	return map[string]any{"name": name, "arguments": list, "return-type": ret}
}

func primitive(v any) message.Message {
	return message.Message{"type": "primitive", "value": v}
}

func unexpected(m message.Message) message.Message {
	return message.Exception(fmt.Sprintf("unexpected request %v", m))
}
