package transport

import (
	"errors"
	"testing"
	"time"

	"objbridge/message"
)

func TestPushPull(t *testing.T) {
	push, err := Bind("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer push.Close()

	pull, err := DialPull(push.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer pull.Close()

	for i := 0; i < 3; i++ {
		if err := push.Send(message.Message{"type": "primitive", "value": i}, time.Second); err != nil {
			t.Fatalf("send %d failed: %v", i, err)
		}
	}
	for i := 0; i < 3; i++ {
		m, err := pull.Receive(time.Second)
		if err != nil {
			t.Fatalf("receive %d failed: %v", i, err)
		}
		if m["value"] != int64(i) {
			t.Fatalf("expect %d, got %v", i, m["value"])
		}
	}

	if _, err := pull.Receive(20 * time.Millisecond); !errors.Is(err, ErrNoReply) {
		t.Fatalf("expect ErrNoReply on empty channel, got %v", err)
	}
}

func TestPushRoundRobin(t *testing.T) {
	push, err := Bind("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer push.Close()

	var pulls []*PullChannel
	for i := 0; i < 2; i++ {
		pull, err := DialPull(push.Addr().String())
		if err != nil {
			t.Fatal(err)
		}
		defer pull.Close()
		pulls = append(pulls, pull)
	}
	deadline := time.Now().Add(time.Second)
	for push.Peers() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if push.Peers() != 2 {
		t.Fatalf("expect 2 peers, got %d", push.Peers())
	}

	for i := 0; i < 4; i++ {
		if err := push.Send(message.Message{"n": i}, time.Second); err != nil {
			t.Fatal(err)
		}
	}
	for i, pull := range pulls {
		for j := 0; j < 2; j++ {
			if _, err := pull.Receive(time.Second); err != nil {
				t.Fatalf("pull %d message %d: %v", i, j, err)
			}
		}
	}
}

func TestPushWithoutPeerTimesOut(t *testing.T) {
	push, err := Bind("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer push.Close()

	if err := push.Send(message.Message{}, 20*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expect ErrTimeout, got %v", err)
	}
	push.Close()
	if err := push.Send(message.Message{}, 0); !errors.Is(err, ErrClosed) {
		t.Fatalf("expect ErrClosed, got %v", err)
	}
}

func TestPullException(t *testing.T) {
	push, err := Bind("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer push.Close()
	pull, err := DialPull(push.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer pull.Close()

	if err := push.Send(message.Exception("acquisition aborted"), time.Second); err != nil {
		t.Fatal(err)
	}
	_, err = pull.Receive(time.Second)
	var fault *message.RemoteFault
	if !errors.As(err, &fault) {
		t.Fatalf("expect RemoteFault, got %v", err)
	}
}
