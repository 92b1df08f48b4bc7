package subscriber

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"rootcart/domain"
	"rootcart/realtime"
)

// fakeDashboard serves the stream, client event and stats endpoints.
type fakeDashboard struct {
	mu     sync.Mutex
	down   bool
	events []string
	polls  int

	push chan realtime.Message
	drop chan struct{}
}

func newFakeDashboard() *fakeDashboard {
	return &fakeDashboard{push: make(chan realtime.Message, 16), drop: make(chan struct{})}
}

func (f *fakeDashboard) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

func (f *fakeDashboard) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func (f *fakeDashboard) clientEvents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeDashboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/realtime/stream":
		f.stream(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/realtime/"):
		var ev domain.ClientEvent
		if err := sonic.ConfigStd.NewDecoder(r.Body).Decode(&ev); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.events = append(f.events, ev.Event)
		f.mu.Unlock()
		if ev.Event == domain.EventGetDashboardStats {
			msg, _ := realtime.NewMessage(domain.EventDashboardStats, domain.StatsEnvelope{Success: true, Data: domain.Snapshot{TotalOrders: 3}})
			f.push <- msg
		}
		w.WriteHeader(http.StatusOK)
	case r.URL.Path == "/api/dashboard/stats":
		f.mu.Lock()
		f.polls++
		f.mu.Unlock()
		body, _ := sonic.Marshal(domain.StatsEnvelope{Success: true, Data: domain.Snapshot{TotalOrders: 7}})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeDashboard) stream(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	down := f.down
	f.mu.Unlock()
	if down {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	realtime.SetStreamHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	hello, _ := realtime.NewMessage(domain.EventConnected, domain.ConnectedEvent{ConnectionID: "c1"})
	_ = realtime.WriteFrame(w, hello)
	w.(http.Flusher).Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-f.drop:
			return
		case msg := <-f.push:
			_ = realtime.WriteFrame(w, msg)
			w.(http.Flusher).Flush()
		}
	}
}

func quietLogger() *log.Logger {
	l := log.New()
	l.SetOutput(&bytes.Buffer{})
	return l
}

func newTestClient(t *testing.T, srv *httptest.Server, opts Options) *Client {
	t.Helper()
	opts.StreamURL = srv.URL + "/api/realtime/stream"
	opts.APIBaseURL = srv.URL
	opts.Token = "token"
	opts.Logger = quietLogger()
	if opts.PollInterval == 0 {
		opts.PollInterval = 20 * time.Millisecond
	}
	c, err := New(opts)
	require.NoError(t, err)
	c.minBackoff = 10 * time.Millisecond
	c.maxBackoff = 40 * time.Millisecond
	return c
}

func runClient(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestClientAnnouncesAndRequestsSnapshot(t *testing.T) {
	fake := newFakeDashboard()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	var mu sync.Mutex
	var connectivity []bool
	c := newTestClient(t, srv, Options{
		OnConnectivity: func(up bool) {
			mu.Lock()
			connectivity = append(connectivity, up)
			mu.Unlock()
		},
	})
	runClient(t, c)

	require.Eventually(t, func() bool {
		snap, ok := c.Snapshot()
		return ok && snap.TotalOrders == 3
	}, 2*time.Second, 5*time.Millisecond)
	require.True(t, c.IsConnected())
	require.False(t, c.Polling())
	require.Equal(t, []string{domain.EventAdminJoin, domain.EventGetDashboardStats}, fake.clientEvents())
	require.Zero(t, fake.pollCount())

	mu.Lock()
	require.Equal(t, []bool{true}, connectivity)
	mu.Unlock()

	require.NoError(t, c.RefreshStats(context.Background()))
	require.Eventually(t, func() bool {
		return len(fake.clientEvents()) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestClientTracksRecentActivity(t *testing.T) {
	fake := newFakeDashboard()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	seen := make(chan Activity, 32)
	c := newTestClient(t, srv, Options{OnActivity: func(a Activity) { seen <- a }})
	runClient(t, c)
	require.Eventually(t, func() bool {
		_, ok := c.Snapshot()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	for i := 0; i < MaxActivities+2; i++ {
		msg, _ := realtime.NewMessage(domain.EventNewOrder, domain.NewOrderEvent{
			OrderID:     "O" + string(rune('a'+i)),
			Customer:    "Asha",
			TotalAmount: 500,
			Status:      domain.StatusPending,
			Stats:       domain.Snapshot{TotalOrders: int64(10 + i)},
		})
		fake.push <- msg
	}
	msg, _ := realtime.NewMessage(domain.EventOrderStatusUpdated, domain.OrderStatusChangedEvent{
		OrderID:        "O1",
		PreviousStatus: domain.StatusProcessing,
		NewStatus:      domain.StatusDelivered,
		Stats:          domain.Snapshot{TotalOrders: 30},
	})
	fake.push <- msg

	require.Eventually(t, func() bool { return len(seen) == MaxActivities+3 }, 2*time.Second, 5*time.Millisecond)
	acts := c.Activities()
	require.Len(t, acts, MaxActivities)
	require.Equal(t, domain.KindOrderStatusChanged, acts[0].Kind)
	require.Equal(t, domain.StatusProcessing, acts[0].PreviousStatus)
	require.Equal(t, "O"+string(rune('a'+MaxActivities+1)), acts[1].OrderID)

	snap, _ := c.Snapshot()
	require.EqualValues(t, 30, snap.TotalOrders)
}

func TestOrderEventsKeepDegradedFields(t *testing.T) {
	fake := newFakeDashboard()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv, Options{})
	runClient(t, c)
	require.Eventually(t, func() bool {
		_, ok := c.Snapshot()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	waitTotal := func(n int64) {
		t.Helper()
		require.Eventually(t, func() bool {
			snap, _ := c.Snapshot()
			return snap.TotalOrders == n
		}, 2*time.Second, 5*time.Millisecond)
	}
	degraded := []string{"totalCustomers"}

	msg, _ := realtime.NewMessage(domain.EventNewOrder, domain.NewOrderEvent{
		OrderID:  "O1",
		Stats:    domain.Snapshot{TotalOrders: 11},
		Degraded: degraded,
	})
	fake.push <- msg
	waitTotal(11)
	require.Equal(t, degraded, c.Degraded())

	msg, _ = realtime.NewMessage(domain.EventOrderStatusUpdated, domain.OrderStatusChangedEvent{
		OrderID:   "O1",
		NewStatus: domain.StatusShipped,
		Stats:     domain.Snapshot{TotalOrders: 12},
		Degraded:  degraded,
	})
	fake.push <- msg
	waitTotal(12)
	require.Equal(t, degraded, c.Degraded())

	msg, _ = realtime.NewMessage(domain.EventDashboardStats, domain.StatsEnvelope{Success: true, Data: domain.Snapshot{TotalOrders: 13}})
	fake.push <- msg
	waitTotal(13)
	require.Empty(t, c.Degraded())
}

func TestClientFallsBackToPollingWhileDisconnected(t *testing.T) {
	fake := newFakeDashboard()
	fake.setDown(true)
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv, Options{})
	runClient(t, c)

	require.Eventually(t, func() bool { return fake.pollCount() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.False(t, c.IsConnected())
	require.True(t, c.Polling())
	require.LessOrEqual(t, c.pollers.Load(), int32(1))
	snap, ok := c.Snapshot()
	require.True(t, ok)
	require.EqualValues(t, 7, snap.TotalOrders)

	fake.setDown(false)
	require.Eventually(t, c.IsConnected, 2*time.Second, 5*time.Millisecond)
	require.False(t, c.Polling())
	require.Zero(t, c.pollers.Load())
	stopped := fake.pollCount()
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, stopped, fake.pollCount(), "poller kept running after reconnect")

	fake.setDown(true)
	fake.drop <- struct{}{}
	require.Eventually(t, func() bool { return fake.pollCount() > stopped+2 }, 2*time.Second, 5*time.Millisecond)
	require.False(t, c.IsConnected())
	require.Equal(t, int32(1), c.pollers.Load())
}

func TestClientRefreshWhileDisconnectedFetchesDirectly(t *testing.T) {
	fake := newFakeDashboard()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv, Options{})
	require.NoError(t, c.RefreshStats(context.Background()))
	require.Equal(t, 1, fake.pollCount())
	snap, ok := c.Snapshot()
	require.True(t, ok)
	require.EqualValues(t, 7, snap.TotalOrders)
}

func TestClientShopperSession(t *testing.T) {
	fake := newFakeDashboard()
	fake.setDown(true)
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv, Options{Role: RoleUser})
	runClient(t, c)
	time.Sleep(60 * time.Millisecond)
	require.False(t, c.Polling())
	require.Zero(t, fake.pollCount())

	fake.setDown(false)
	require.Eventually(t, c.IsConnected, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []string{domain.EventUserJoin}, fake.clientEvents())

	msg, _ := realtime.NewMessage(domain.EventOrderUpdate, domain.OrderUpdateEvent{OrderID: "O1", Status: domain.StatusShipped, Message: "Your order status has been updated to: Shipped"})
	fake.push <- msg
	require.Eventually(t, func() bool { return len(c.Activities()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, domain.StatusShipped, c.Activities()[0].Status)
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(Options{APIBaseURL: "http://x"})
	require.Error(t, err)
	_, err = New(Options{StreamURL: "http://x/s", APIBaseURL: "http://x", Role: "guest"})
	require.Error(t, err)
	c, err := New(Options{StreamURL: "http://x/s", APIBaseURL: "http://x"})
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, c.opts.Role)
	require.Equal(t, DefaultPollInterval, c.opts.PollInterval)
}
