package realtime

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type flushRecorder struct{ *httptest.ResponseRecorder }

func (flushRecorder) Flush() {}

func TestServeWritesFramesInOrder(t *testing.T) {
	hub := NewHub(4, nil)
	c := hub.Register()
	_ = hub.Join(c.ID, "admin")
	_ = hub.Publish(context.Background(), "admin", Message{Event: "newOrder", Data: []byte(`{"orderId":"1"}`)})

	rec := flushRecorder{httptest.NewRecorder()}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- Serve(ctx, rec, c, Message{Event: "connected", Data: []byte(`{"connectionId":"` + c.ID + `"}`)}, 0)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("serve: %v", err)
	}

	expected := "event: connected\ndata: {\"connectionId\":\"" + c.ID + "\"}\n\n" +
		"event: newOrder\ndata: {\"orderId\":\"1\"}\n\n"
	if rec.Body.String() != expected {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestServeSendsHeartbeat(t *testing.T) {
	hub := NewHub(4, nil)
	c := hub.Register()
	rec := flushRecorder{httptest.NewRecorder()}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- Serve(ctx, rec, c, Message{Event: "connected", Data: []byte(`{}`)}, 10*time.Millisecond)
	}()
	time.Sleep(60 * time.Millisecond)
	cancel()
	<-errCh
	if !strings.Contains(rec.Body.String(), ": ping\n\n") {
		t.Fatalf("expected heartbeat, got %q", rec.Body.String())
	}
}

func TestServeStopsOnUnregister(t *testing.T) {
	hub := NewHub(4, nil)
	c := hub.Register()
	rec := flushRecorder{httptest.NewRecorder()}
	errCh := make(chan error, 1)
	go func() { errCh <- Serve(context.Background(), rec, c, Message{Data: []byte(`{}`)}, 0) }()
	time.Sleep(20 * time.Millisecond)
	hub.Unregister(c.ID)
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not exit after unregister")
	}
}

func TestFrameReader(t *testing.T) {
	body := ": ping\n\n" +
		"event: connected\ndata: {\"connectionId\":\"abc\"}\n\n" +
		"data: line1\ndata: line2\n\n"
	r := NewFrameReader(strings.NewReader(body))

	f, err := r.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if f.Event != "connected" || string(f.Data) != `{"connectionId":"abc"}` {
		t.Fatalf("unexpected frame %+v", f)
	}
	f, err = r.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if f.Event != "" || string(f.Data) != "line1\nline2" {
		t.Fatalf("unexpected frame %q %q", f.Event, f.Data)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}
