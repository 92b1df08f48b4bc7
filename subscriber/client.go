// Package subscriber is the dashboard side of the realtime channel: it keeps
// one event stream open, announces its role, tracks the latest snapshot and
// falls back to polling the stats endpoint while the stream is down.
package subscriber

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"rootcart/domain"
	"rootcart/realtime"
)

// MaxActivities is how many recent order events a client remembers.
const MaxActivities = 10

const (
	DefaultPollInterval = 60 * time.Second
	requestTimeout      = 10 * time.Second
)

// Role selects the room a client announces after connecting.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

var errNoConnectedFrame = errors.New("subscriber: stream did not start with a connected event")

// Activity is one entry of the recent order feed.
type Activity struct {
	Kind           domain.EventKind
	OrderID        string
	OrderNumber    string
	Customer       string
	Status         domain.OrderStatus
	PreviousStatus domain.OrderStatus
	TotalAmount    float64
	Message        string
	At             time.Time
}

// Options configures a Client. Callbacks run on the client's own goroutines
// and must not block.
type Options struct {
	StreamURL    string
	APIBaseURL   string
	Token        string
	Role         Role
	PollInterval time.Duration
	HTTPClient   *http.Client
	Logger       *log.Logger

	OnStats        func(snap domain.Snapshot, degraded []string)
	OnActivity     func(Activity)
	OnConnectivity func(connected bool)
}

// Client maintains a dashboard session. Create it with New and drive it with Run.
type Client struct {
	opts   Options
	api    *apiClient
	stream *http.Client
	logger *log.Logger

	minBackoff time.Duration
	maxBackoff time.Duration

	mu          sync.RWMutex
	connected   bool
	connID      string
	snapshot    domain.Snapshot
	degraded    []string
	hasSnapshot bool
	activities  []Activity

	pollMu     sync.Mutex
	pollCancel context.CancelFunc
	pollDone   chan struct{}
	pollers    atomic.Int32
}

func New(opts Options) (*Client, error) {
	if opts.StreamURL == "" || opts.APIBaseURL == "" {
		return nil, errors.New("subscriber: stream and API base URLs are required")
	}
	switch opts.Role {
	case "":
		opts.Role = RoleAdmin
	case RoleAdmin, RoleUser:
	default:
		return nil, fmt.Errorf("subscriber: unknown role %q", opts.Role)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	return &Client{
		opts:       opts,
		api:        &apiClient{baseURL: opts.APIBaseURL, bearer: opts.Token, http: opts.HTTPClient},
		stream:     opts.HTTPClient,
		logger:     opts.Logger,
		minBackoff: time.Second,
		maxBackoff: 5 * time.Second,
	}, nil
}

// IsConnected reports whether the event stream is up and the role announced.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Snapshot returns the most recent snapshot and whether one has been received.
func (c *Client) Snapshot() (domain.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot, c.hasSnapshot
}

// Degraded lists the fields of the current snapshot that could not be computed.
func (c *Client) Degraded() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.degraded...)
}

// Activities returns recent order events, newest first.
func (c *Client) Activities() []Activity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Activity(nil), c.activities...)
}

// Polling reports whether the fallback poller is running.
func (c *Client) Polling() bool {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	return c.pollCancel != nil
}

// Run keeps the session alive until ctx is cancelled, reconnecting with
// exponential backoff. While disconnected the stats endpoint is polled.
func (c *Client) Run(ctx context.Context) error {
	defer c.stopPolling()
	backoff := c.minBackoff
	for {
		if ctx.Err() != nil {
			return nil
		}
		established, err := c.session(ctx)
		if ctx.Err() != nil {
			c.setConnected(ctx, false)
			return nil
		}
		c.setConnected(ctx, false)
		if established {
			backoff = c.minBackoff
		}
		c.logger.WithError(err).WithField("retry_in", backoff.String()).Warn("dashboard stream disconnected")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

// RefreshStats asks for a fresh snapshot: through the stream when connected,
// otherwise directly from the stats endpoint.
func (c *Client) RefreshStats(ctx context.Context) error {
	c.mu.RLock()
	connected, connID := c.connected, c.connID
	c.mu.RUnlock()
	if connected {
		return c.sendEvent(ctx, connID, domain.EventGetDashboardStats)
	}
	return c.fetchStats(ctx)
}

// session runs one stream connection. established is true once the role was
// announced.
func (c *Client) session(ctx context.Context) (established bool, err error) {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(sctx, http.MethodGet, c.opts.StreamURL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, &StatusError{Method: http.MethodGet, Path: c.opts.StreamURL, Code: resp.StatusCode}
	}

	frames := realtime.NewFrameReader(resp.Body)
	first, err := frames.Next()
	if err != nil {
		return false, err
	}
	var hello domain.ConnectedEvent
	if first.Event != domain.EventConnected || sonic.Unmarshal(first.Data, &hello) != nil || hello.ConnectionID == "" {
		return false, errNoConnectedFrame
	}

	join := domain.EventAdminJoin
	if c.opts.Role == RoleUser {
		join = domain.EventUserJoin
	}
	if err := c.sendEvent(sctx, hello.ConnectionID, join); err != nil {
		return false, fmt.Errorf("announce %s: %w", join, err)
	}

	c.mu.Lock()
	c.connID = hello.ConnectionID
	c.mu.Unlock()
	c.setConnected(ctx, true)
	c.logger.WithFields(log.Fields{"conn": hello.ConnectionID, "role": c.opts.Role}).Info("dashboard stream connected")

	if c.opts.Role == RoleAdmin {
		if err := c.sendEvent(sctx, hello.ConnectionID, domain.EventGetDashboardStats); err != nil {
			c.logger.WithError(err).Warn("initial snapshot request failed")
		}
	}

	for {
		f, err := frames.Next()
		if err != nil {
			return true, err
		}
		c.handle(f)
	}
}

func (c *Client) sendEvent(ctx context.Context, connID, event string) error {
	rctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return c.api.postJSON(rctx, "/api/realtime/"+connID+"/events", domain.ClientEvent{Event: event}, nil)
}

func (c *Client) handle(f realtime.Frame) {
	switch f.Event {
	case domain.EventDashboardStats:
		var env domain.StatsEnvelope
		if err := sonic.Unmarshal(f.Data, &env); err != nil {
			c.logger.WithError(err).Warn("bad dashboardStats payload")
			return
		}
		c.setSnapshot(env.Data, env.Degraded)
	case domain.EventNewOrder:
		var ev domain.NewOrderEvent
		if err := sonic.Unmarshal(f.Data, &ev); err != nil {
			c.logger.WithError(err).Warn("bad newOrder payload")
			return
		}
		c.addActivity(Activity{
			Kind:        domain.KindNewOrder,
			OrderID:     ev.OrderID,
			OrderNumber: ev.OrderNumber,
			Customer:    ev.Customer,
			Status:      ev.Status,
			TotalAmount: ev.TotalAmount,
			At:          ev.Timestamp,
		})
		c.setSnapshot(ev.Stats, ev.Degraded)
	case domain.EventOrderStatusUpdated:
		var ev domain.OrderStatusChangedEvent
		if err := sonic.Unmarshal(f.Data, &ev); err != nil {
			c.logger.WithError(err).Warn("bad orderStatusUpdated payload")
			return
		}
		c.addActivity(Activity{
			Kind:           domain.KindOrderStatusChanged,
			OrderID:        ev.OrderID,
			OrderNumber:    ev.OrderNumber,
			Customer:       ev.Customer,
			Status:         ev.NewStatus,
			PreviousStatus: ev.PreviousStatus,
			At:             ev.Timestamp,
		})
		c.setSnapshot(ev.Stats, ev.Degraded)
	case domain.EventOrderUpdate:
		var ev domain.OrderUpdateEvent
		if err := sonic.Unmarshal(f.Data, &ev); err != nil {
			c.logger.WithError(err).Warn("bad orderUpdate payload")
			return
		}
		c.addActivity(Activity{
			Kind:    domain.KindOrderStatusChanged,
			OrderID: ev.OrderID,
			Status:  ev.Status,
			Message: ev.Message,
			At:      time.Now().UTC(),
		})
	default:
		c.logger.WithField("event", f.Event).Debug("ignoring unknown event")
	}
}

func (c *Client) setSnapshot(s domain.Snapshot, degraded []string) {
	c.mu.Lock()
	c.snapshot = s
	c.degraded = degraded
	c.hasSnapshot = true
	c.mu.Unlock()
	if c.opts.OnStats != nil {
		c.opts.OnStats(s, degraded)
	}
}

func (c *Client) addActivity(a Activity) {
	c.mu.Lock()
	c.activities = append([]Activity{a}, c.activities...)
	if len(c.activities) > MaxActivities {
		c.activities = c.activities[:MaxActivities]
	}
	c.mu.Unlock()
	if c.opts.OnActivity != nil {
		c.opts.OnActivity(a)
	}
}

// setConnected flips the connectivity flag and starts or stops the poller.
// The poller is stopped before the flag turns true.
func (c *Client) setConnected(ctx context.Context, connected bool) {
	if connected {
		c.stopPolling()
	} else {
		c.startPolling(ctx)
	}
	c.mu.Lock()
	changed := c.connected != connected
	c.connected = connected
	if !connected {
		c.connID = ""
	}
	c.mu.Unlock()
	if changed && c.opts.OnConnectivity != nil {
		c.opts.OnConnectivity(connected)
	}
}
