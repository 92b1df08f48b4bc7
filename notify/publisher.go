package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rootcart/domain"
	"rootcart/realtime"
	"rootcart/stats"
)

// Channel delivers a message to every member of a room.
type Channel interface {
	Publish(ctx context.Context, room string, msg realtime.Message) error
}

// Snapshotter produces a dashboard snapshot, never failing outright.
type Snapshotter interface {
	Snapshot(ctx context.Context) stats.Result
}

// Exporter forwards order events to downstream consumers.
type Exporter interface {
	Export(ctx context.Context, rec domain.OrderEventRecord) error
}

// ErrClosed is returned by Shutdown when called twice.
var ErrClosed = errors.New("notify: publisher closed")

type Options struct {
	Buffer         int
	HandoffTimeout time.Duration
	JobTimeout     time.Duration
	Exporter       Exporter
}

type job struct {
	kind     domain.EventKind
	order    domain.Order
	previous domain.OrderStatus
	next     domain.OrderStatus
	at       time.Time
}

// Publisher turns committed order writes into dashboard events. Calls hand the
// work to a single worker and return immediately so the order request never
// waits on aggregation or delivery.
type Publisher struct {
	channel  Channel
	stats    Snapshotter
	exporter Exporter
	logger   *log.Logger
	tracer   trace.Tracer
	now      func() time.Time

	handoff    time.Duration
	jobTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
}

func NewPublisher(channel Channel, snap Snapshotter, logger *log.Logger, opts Options) *Publisher {
	if channel == nil || snap == nil {
		panic("notify.NewPublisher: channel and snapshotter are required")
	}
	if logger == nil {
		panic("Logger is not initialized")
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.HandoffTimeout < 0 {
		opts.HandoffTimeout = 0
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 10 * time.Second
	}
	p := &Publisher{
		channel:    channel,
		stats:      snap,
		exporter:   opts.Exporter,
		logger:     logger,
		tracer:     otel.Tracer("rootcart/notify"),
		now:        time.Now,
		handoff:    opts.HandoffTimeout,
		jobTimeout: opts.JobTimeout,
		jobs:       make(chan job, opts.Buffer),
	}
	p.wg.Add(1)
	go p.worker()
	logger.Infof("event publisher started, buffer: %d, handoff: %v", opts.Buffer, opts.HandoffTimeout)
	return p
}

// OrderPlaced is called after a new order has been stored.
func (p *Publisher) OrderPlaced(order domain.Order) {
	p.submit(job{kind: domain.KindNewOrder, order: order, next: order.Status, at: p.now()})
}

// OrderStatusChanged is called after an order's status write has succeeded.
func (p *Publisher) OrderStatusChanged(order domain.Order, previous, next domain.OrderStatus) {
	p.submit(job{kind: domain.KindOrderStatusChanged, order: order, previous: previous, next: next, at: p.now()})
}

// PublishSnapshot sends a fresh dashboardStats to the admin room synchronously.
func (p *Publisher) PublishSnapshot(ctx context.Context) error {
	res := p.stats.Snapshot(ctx)
	return p.publish(ctx, domain.RoomAdmin, domain.EventDashboardStats, envelope(res))
}

func (p *Publisher) submit(j job) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.WithField("order", j.order.ID).Warn("publisher closed, dropping order event")
		return
	}
	if p.tryEnqueue(j) {
		return
	}
	p.logger.WithField("order", j.order.ID).Warn("publish buffer saturated; processing out of band")
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.process(j)
	}()
}

func (p *Publisher) tryEnqueue(j job) bool {
	select {
	case p.jobs <- j:
		return true
	default:
	}
	if p.handoff <= 0 {
		return false
	}
	timer := time.NewTimer(p.handoff)
	defer timer.Stop()
	select {
	case p.jobs <- j:
		return true
	case <-timer.C:
		return false
	}
}

func (p *Publisher) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		p.process(j)
	}
}

func (p *Publisher) process(j job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("panic", r).Error("order event publisher panicked")
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), p.jobTimeout)
	defer cancel()

	ctx, span := p.tracer.Start(ctx, "notify."+string(j.kind), trace.WithAttributes(
		attribute.String("order.id", j.order.ID),
		attribute.String("order.status", string(j.next)),
	))
	defer span.End()

	res := p.stats.Snapshot(ctx)
	var errs []error
	switch j.kind {
	case domain.KindNewOrder:
		errs = p.orderPlaced(ctx, j, res)
	case domain.KindOrderStatusChanged:
		errs = p.statusChanged(ctx, j, res)
	}
	if p.exporter != nil {
		if err := p.exporter.Export(ctx, record(j)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "notification incomplete")
		p.logger.WithError(err).WithFields(log.Fields{
			"order": j.order.ID,
			"kind":  j.kind,
		}).Warn("order notification incomplete")
	}
}

func (p *Publisher) orderPlaced(ctx context.Context, j job, res stats.Result) []error {
	ev := domain.NewOrderEvent{
		OrderID:     j.order.ID,
		OrderNumber: j.order.OrderNumber,
		Customer:    customerName(j.order),
		TotalAmount: j.order.TotalAmount,
		ItemsCount:  len(j.order.Items),
		Status:      j.next,
		Timestamp:   j.at,
		Stats:       res.Snapshot,
		Degraded:    res.Degraded,
	}
	var errs []error
	if err := p.publish(ctx, domain.RoomAdmin, domain.KindNewOrder.WireName(), ev); err != nil {
		errs = append(errs, err)
	}
	if err := p.publish(ctx, domain.RoomAdmin, domain.EventDashboardStats, envelope(res)); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func (p *Publisher) statusChanged(ctx context.Context, j job, res stats.Result) []error {
	ev := domain.OrderStatusChangedEvent{
		OrderID:        j.order.ID,
		OrderNumber:    j.order.OrderNumber,
		NewStatus:      j.next,
		PreviousStatus: j.previous,
		Customer:       customerName(j.order),
		Timestamp:      j.at,
		Stats:          res.Snapshot,
		Degraded:       res.Degraded,
	}
	var errs []error
	if err := p.publish(ctx, domain.RoomAdmin, domain.KindOrderStatusChanged.WireName(), ev); err != nil {
		errs = append(errs, err)
	}
	if err := p.publish(ctx, domain.RoomAdmin, domain.EventDashboardStats, envelope(res)); err != nil {
		errs = append(errs, err)
	}
	if j.order.CustomerID != "" {
		update := domain.OrderUpdateEvent{
			OrderID: j.order.ID,
			Status:  j.next,
			Message: "Your order status has been updated to: " + string(j.next),
		}
		if err := p.publish(ctx, domain.UserRoom(j.order.CustomerID), domain.EventOrderUpdate, update); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (p *Publisher) publish(ctx context.Context, room, event string, payload any) error {
	msg, err := realtime.NewMessage(event, payload)
	if err != nil {
		return err
	}
	return p.channel.Publish(ctx, room, msg)
}

// Shutdown stops accepting events and waits for queued ones to be delivered.
func (p *Publisher) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func envelope(res stats.Result) domain.StatsEnvelope {
	return domain.StatsEnvelope{Success: true, Data: res.Snapshot, Degraded: res.Degraded}
}

func customerName(o domain.Order) string {
	if o.CustomerName != "" {
		return o.CustomerName
	}
	return "Customer"
}

func record(j job) domain.OrderEventRecord {
	return domain.OrderEventRecord{
		Kind:           j.kind,
		OrderID:        j.order.ID,
		OrderNumber:    j.order.OrderNumber,
		CustomerID:     j.order.CustomerID,
		Status:         j.next,
		PreviousStatus: j.previous,
		TotalAmount:    j.order.TotalAmount,
		Timestamp:      j.at,
	}
}
