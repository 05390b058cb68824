package bridge

import (
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"objbridge/codec"
	"objbridge/message"
	"objbridge/proxy"
	"objbridge/transport"
)

// scriptedServer answers every request on every connection with handle. A nil reply
// means the request is left unanswered.
func scriptedServer(t *testing.T, handle func(message.Message) message.Message) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })

	go func() {
		for {
			raw, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				conn := transport.NewConn(raw, codec.CodecTypeJSON)
				defer conn.Close()
				for {
					header, m, err := conn.ReadMessage()
					if err != nil {
						return
					}
					reply := handle(m)
					if reply == nil {
						continue
					}
					if err := conn.WriteReply(header, reply, 0); err != nil {
						return
					}
				}
			}()
		}
	}()
	return l.Addr().String()
}

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestHandshakeVersion(t *testing.T) {
	tests := []struct {
		name     string
		reply    message.Message
		version  string
		mismatch bool
	}{
		{"expected", message.Message{"version": "2.5.0"}, "2.5.0", false},
		{"legacy", message.Message{}, "2.0.0", true},
		{"newer", message.Message{"version": "3.0.0"}, "3.0.0", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			addr := scriptedServer(t, func(message.Message) message.Message { return tc.reply })
			logger, logs := observed()

			s, err := Connect(addr, WithLogger(logger))
			if err != nil {
				t.Fatalf("connect failed: %v", err)
			}
			defer s.Close()

			if s.ServerVersion() != tc.version {
				t.Errorf("version: got %s, want %s", s.ServerVersion(), tc.version)
			}
			if s.VersionMismatch() != tc.mismatch {
				t.Errorf("mismatch: got %v, want %v", s.VersionMismatch(), tc.mismatch)
			}
			warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
			if tc.mismatch && len(warnings) != 1 {
				t.Fatalf("expect one warning, got %d", len(warnings))
			}
			if !tc.mismatch && len(warnings) != 0 {
				t.Fatalf("expect no warning, got %v", warnings)
			}
			if tc.mismatch && warnings[0].ContextMap()["server"] != tc.version {
				t.Errorf("warning must name the server version: %v", warnings[0].ContextMap())
			}
		})
	}
}

func TestConnectTimeout(t *testing.T) {
	addr := scriptedServer(t, func(message.Message) message.Message { return nil })

	start := time.Now()
	_, err := Connect(addr, WithLogger(zap.NewNop()))
	if !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("expect ErrConnectTimeout, got %v", err)
	}
	var fault *message.RemoteFault
	if errors.As(err, &fault) {
		t.Fatal("timeout must be distinguishable from a remote fault")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("handshake waited %v", elapsed)
	}
}

func TestConnectException(t *testing.T) {
	addr := scriptedServer(t, func(message.Message) message.Message {
		return message.Message{"type": "exception", "message": "server busy"}
	})

	_, err := Connect(addr, WithLogger(zap.NewNop()))
	var fault *message.RemoteFault
	if !errors.As(err, &fault) || fault.Message != "server busy" {
		t.Fatalf("expect RemoteFault, got %v", err)
	}
	if errors.Is(err, ErrConnectTimeout) {
		t.Fatal("exception reply must not be reported as a timeout")
	}
}

func TestConnectRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	if _, err := Connect(addr, WithLogger(zap.NewNop())); err == nil {
		t.Fatal("expect error connecting to a closed port")
	}
	if _, err := Connect("no-port", WithLogger(zap.NewNop())); err == nil {
		t.Fatal("expect error for an address without port")
	}
}

func fooServer(t *testing.T) string {
	t.Helper()
	return scriptedServer(t, fooReply)
}

// fooReply answers as a server exposing pkg.Foo with an (int) and an (int, int)
// constructor.
func fooReply(m message.Message) message.Message {
	switch m.Command() {
	case message.CmdConnect:
		return message.Message{"version": ExpectedVersion}
	case message.CmdGetConstructors:
		return message.Message{"api": []any{
			map[string]any{"name": "pkg.Foo", "arguments": []any{"int"}},
			map[string]any{"name": "pkg.Foo", "arguments": []any{"int", "int"}},
		}}
	case message.CmdConstructor:
		types, _ := m["argument-types"].([]any)
		return message.Message{
			"type":       "unserialized-object",
			"class":      "pkg.Foo",
			"hash-code":  int64(len(types)),
			"fields":     []any{"size"},
			"interfaces": []any{"pkg.Foo"},
			"api": []any{
				map[string]any{"name": "getSize", "arguments": []any{}, "return-type": "int"},
			},
		}
	case message.CmdRunMethod, message.CmdGetField:
		return message.Message{"type": "primitive", "value": 3}
	}
	return message.Message{"type": "null"}
}

func TestConstructResolvesConstructor(t *testing.T) {
	s, err := Connect(fooServer(t), WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	foo, err := s.Construct("pkg.Foo", []any{3})
	if err != nil {
		t.Fatalf("construct failed: %v", err)
	}
	defer foo.Release()

	// the fake server uses the number of argument types as the hash-code
	if id, _ := foo.Ref(); id != int64(1) {
		t.Fatalf("expect the one-argument constructor, got id %v", id)
	}
	if foo.ClassName() != "pkg.Foo" || !foo.Type().HasField("size") {
		t.Errorf("type mismatch: %s %v", foo.ClassName(), foo.Type().Fields())
	}
	if _, ok := foo.Type().Method("get_size"); !ok {
		t.Error("get_size not synthesized")
	}
	if v, err := foo.Call("get_size"); err != nil || v != int64(3) {
		t.Errorf("get_size: %v, %v", v, err)
	}

	if _, err := s.Construct("pkg.Foo", []any{1, 2, 3}); err == nil {
		t.Error("expect argument mismatch for three arguments")
	}
	if _, err := s.Construct("pkg.Bar", nil); !errors.Is(err, ErrNoConstructor) {
		t.Errorf("expect ErrNoConstructor, got %v", err)
	}
}

func TestConstructDropsNilArgs(t *testing.T) {
	s, err := Connect(fooServer(t), WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	foo, err := s.Construct("pkg.Foo", []any{3, nil})
	if err != nil {
		t.Fatalf("nil padding must be dropped before resolution: %v", err)
	}
	defer foo.Release()
	if id, _ := foo.Ref(); id != int64(1) {
		t.Fatalf("expect the one-argument constructor, got id %v", id)
	}

	var missing *proxy.Object
	if _, err := s.Construct("pkg.Foo", []any{missing}); !errors.Is(err, proxy.ErrNilObject) {
		t.Fatalf("expect ErrNilObject, got %v", err)
	}
}

func TestReleaseUnacknowledged(t *testing.T) {
	addr := scriptedServer(t, func(m message.Message) message.Message {
		if m.Command() == message.CmdDestructor {
			return nil
		}
		return fooReply(m)
	})
	logger, logs := observed()
	s, err := Connect(addr, WithLogger(logger), WithReleaseTimeout(200*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	foo, err := s.Construct("pkg.Foo", []any{3})
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := foo.Release(); err != nil {
		t.Fatalf("unacknowledged release must not fail, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("release waited %v", elapsed)
	}
	if logs.FilterMessage("release not acknowledged").Len() != 1 {
		t.Fatalf("expect one release warning, got %v", logs.All())
	}

	// the channel stays usable after the abandoned destructor
	if _, err := s.Construct("pkg.Foo", []any{1}); err != nil {
		t.Fatalf("construct after unacknowledged release: %v", err)
	}
}

func TestReleaseWhileCallPending(t *testing.T) {
	arrived := make(chan struct{}, 1)
	addr := scriptedServer(t, func(m message.Message) message.Message {
		if m.Command() == message.CmdRunMethod {
			arrived <- struct{}{}
			return nil
		}
		return fooReply(m)
	})
	logger, logs := observed()
	s, err := Connect(addr, WithLogger(logger), WithReleaseTimeout(200*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	foo, err := s.Construct("pkg.Foo", []any{3})
	if err != nil {
		t.Fatal(err)
	}

	callDone := make(chan error, 1)
	go func() {
		_, err := foo.Call("get_size")
		callDone <- err
	}()
	select {
	case <-arrived:
	case <-time.After(2 * time.Second):
		t.Fatal("call never reached the server")
	}

	released := make(chan error, 1)
	start := time.Now()
	go func() { released <- foo.Release() }()
	select {
	case err := <-released:
		if err != nil {
			t.Fatalf("release must not fail, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("release blocked behind the pending call")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("release waited %v", elapsed)
	}
	if logs.FilterMessage("release not acknowledged").Len() != 1 {
		t.Fatalf("expect one release warning, got %v", logs.All())
	}

	s.Close()
	select {
	case err := <-callDone:
		if !errors.Is(err, transport.ErrClosed) {
			t.Fatalf("pending call: expect ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending call survived session close")
	}
}

func TestCloseReleasesChannels(t *testing.T) {
	s, err := Connect(fooServer(t), WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatal(err)
	}
	foo, err := s.Construct("pkg.Foo", []any{1, 2})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := foo.Release(); err != nil {
		t.Fatalf("release after session close must not fail, got %v", err)
	}
	if _, err := s.Construct("pkg.Foo", []any{1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expect ErrClosed, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close must be a no-op, got %v", err)
	}
}

func TestPushPull(t *testing.T) {
	s, err := Connect(fooServer(t), WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	push, err := s.ConnectPush(0)
	if err != nil {
		t.Fatal(err)
	}
	_, port, _ := net.SplitHostPort(push.Addr().String())
	pull, err := transport.DialPull(net.JoinHostPort("127.0.0.1", port))
	if err != nil {
		t.Fatal(err)
	}
	defer pull.Close()

	if err := push.Send(message.Message{"type": "string", "value": "frame"}, time.Second); err != nil {
		t.Fatal(err)
	}
	m, err := pull.Receive(time.Second)
	if err != nil || m.String("value") != "frame" {
		t.Fatalf("pull: %v, %v", m, err)
	}

	// the server side of a pull is a push channel the client connects to
	remote, err := transport.Bind("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer remote.Close()
	_, rport, _ := net.SplitHostPort(remote.Addr().String())
	n, _ := strconv.Atoi(rport)
	clientPull, err := s.ConnectPull(n)
	if err != nil {
		t.Fatal(err)
	}
	if err := remote.Send(message.Message{"type": "primitive", "value": 1}, time.Second); err != nil {
		t.Fatal(err)
	}
	if m, err := clientPull.Receive(time.Second); err != nil || m["value"] != int64(1) {
		t.Fatalf("client pull: %v, %v", m, err)
	}
}
