package realtime

import (
	"context"
	"errors"
	"testing"
	"time"
)

func recv(t *testing.T, c *Conn) Message {
	t.Helper()
	select {
	case msg := <-c.Messages():
		return msg
	case <-time.After(time.Second):
		t.Fatalf("connection %s received nothing", c.ID)
	}
	return Message{}
}

func assertSilent(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case msg := <-c.Messages():
		t.Fatalf("connection %s unexpectedly received %s", c.ID, msg.Event)
	default:
	}
}

func TestRoomIsolation(t *testing.T) {
	hub := NewHub(4, nil)
	admin := hub.Register()
	user := hub.Register()
	if err := hub.Join(admin.ID, "admin"); err != nil {
		t.Fatalf("join admin: %v", err)
	}
	if err := hub.Join(user.ID, "user-42"); err != nil {
		t.Fatalf("join user: %v", err)
	}

	if err := hub.Publish(context.Background(), "admin", Message{Event: "newOrder", Data: []byte(`{}`)}); err != nil {
		t.Fatalf("publish admin: %v", err)
	}
	if got := recv(t, admin); got.Event != "newOrder" {
		t.Fatalf("expected newOrder, got %s", got.Event)
	}
	assertSilent(t, user)

	if err := hub.Publish(context.Background(), "user-42", Message{Event: "orderUpdate", Data: []byte(`{}`)}); err != nil {
		t.Fatalf("publish user: %v", err)
	}
	if got := recv(t, user); got.Event != "orderUpdate" {
		t.Fatalf("expected orderUpdate, got %s", got.Event)
	}
	assertSilent(t, admin)
}

func TestPublishToEmptyRoomIsNoop(t *testing.T) {
	hub := NewHub(1, nil)
	if err := hub.Publish(context.Background(), "admin", Message{Event: "dashboardStats"}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if n := hub.Members("admin"); n != 0 {
		t.Fatalf("expected no members, got %d", n)
	}
}

func TestPublishPreservesOrder(t *testing.T) {
	hub := NewHub(16, nil)
	c := hub.Register()
	if err := hub.Join(c.ID, "admin"); err != nil {
		t.Fatalf("join: %v", err)
	}
	events := []string{"newOrder", "dashboardStats", "orderStatusUpdated", "dashboardStats"}
	for _, ev := range events {
		if err := hub.Publish(context.Background(), "admin", Message{Event: ev}); err != nil {
			t.Fatalf("publish %s: %v", ev, err)
		}
	}
	for i, want := range events {
		if got := recv(t, c); got.Event != want {
			t.Fatalf("event %d: expected %s, got %s", i, want, got.Event)
		}
	}
}

func TestLateJoinerGetsNoReplay(t *testing.T) {
	hub := NewHub(4, nil)
	early := hub.Register()
	_ = hub.Join(early.ID, "admin")
	_ = hub.Publish(context.Background(), "admin", Message{Event: "newOrder"})

	late := hub.Register()
	_ = hub.Join(late.ID, "admin")
	recv(t, early)
	assertSilent(t, late)
}

func TestUnregisterRemovesMembership(t *testing.T) {
	hub := NewHub(4, nil)
	c := hub.Register()
	_ = hub.Join(c.ID, "admin")
	_ = hub.Join(c.ID, "user-1")

	hub.Unregister(c.ID)
	if n := hub.Members("admin"); n != 0 {
		t.Fatalf("expected admin room empty, got %d", n)
	}
	if n := hub.Members("user-1"); n != 0 {
		t.Fatalf("expected user room empty, got %d", n)
	}
	select {
	case <-c.Done():
	default:
		t.Fatal("done channel not closed")
	}
	if err := hub.Join(c.ID, "admin"); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("expected ErrUnknownConnection, got %v", err)
	}
	hub.Unregister(c.ID)
}

func TestLeave(t *testing.T) {
	hub := NewHub(4, nil)
	c := hub.Register()
	_ = hub.Join(c.ID, "admin")
	if err := hub.Leave(c.ID, "admin"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	_ = hub.Publish(context.Background(), "admin", Message{Event: "dashboardStats"})
	assertSilent(t, c)
}

func TestJoinRejectsEmptyRoom(t *testing.T) {
	hub := NewHub(4, nil)
	c := hub.Register()
	if err := hub.Join(c.ID, ""); !errors.Is(err, ErrEmptyRoom) {
		t.Fatalf("expected ErrEmptyRoom, got %v", err)
	}
}

func TestPublishReportsFullMembers(t *testing.T) {
	hub := NewHub(1, nil)
	slow := hub.Register()
	fast := hub.Register()
	_ = hub.Join(slow.ID, "admin")
	_ = hub.Join(fast.ID, "admin")

	_ = hub.Publish(context.Background(), "admin", Message{Event: "a"})
	recv(t, fast)

	err := hub.Publish(context.Background(), "admin", Message{Event: "b"})
	var pubErr *PublishError
	if !errors.As(err, &pubErr) {
		t.Fatalf("expected PublishError, got %v", err)
	}
	if pubErr.Room != "admin" || len(pubErr.Failed) != 1 || pubErr.Failed[0] != slow.ID {
		t.Fatalf("unexpected publish error %+v", pubErr)
	}
	if got := recv(t, fast); got.Event != "b" {
		t.Fatalf("expected b, got %s", got.Event)
	}
}

func TestSendTo(t *testing.T) {
	hub := NewHub(1, nil)
	c := hub.Register()
	other := hub.Register()
	if err := hub.SendTo(c.ID, Message{Event: "dashboardStats"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	recv(t, c)
	assertSilent(t, other)

	_ = hub.SendTo(c.ID, Message{Event: "x"})
	if err := hub.SendTo(c.ID, Message{Event: "y"}); !errors.Is(err, ErrSlowConsumer) {
		t.Fatalf("expected ErrSlowConsumer, got %v", err)
	}
	if err := hub.SendTo("missing", Message{}); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("expected ErrUnknownConnection, got %v", err)
	}
}

func TestCloseEndsConnections(t *testing.T) {
	hub := NewHub(4, nil)
	a := hub.Register()
	b := hub.Register()
	_ = hub.Join(a.ID, "admin")

	hub.Close()
	for _, c := range []*Conn{a, b} {
		select {
		case <-c.Done():
		default:
			t.Fatalf("connection %s still open after Close", c.ID)
		}
	}
	if n := hub.Connections(); n != 0 {
		t.Fatalf("expected no connections, got %d", n)
	}
	if n := hub.Members("admin"); n != 0 {
		t.Fatalf("expected admin room empty, got %d", n)
	}
	if err := hub.Publish(context.Background(), "admin", Message{Event: "x"}); err != nil {
		t.Fatalf("publish after close: %v", err)
	}

	late := hub.Register()
	select {
	case <-late.Done():
	default:
		t.Fatal("connection registered on a closed hub is not done")
	}
	if err := hub.Join(late.ID, "admin"); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("expected ErrUnknownConnection, got %v", err)
	}
	hub.Unregister(a.ID)
	hub.Close()
}
