package stats

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
)

// Source is the read side of the order, product and customer stores.
type Source interface {
	CountProducts(ctx context.Context) (int64, error)
	CountCustomers(ctx context.Context) (int64, error)
	// CountOrders counts orders created at or after since. A zero since counts all orders.
	CountOrders(ctx context.Context, since time.Time) (int64, error)
	CountOrdersByStatus(ctx context.Context, status domain.OrderStatus) (int64, error)
	// SumRevenue totals orders in a revenue status created at or after since.
	SumRevenue(ctx context.Context, since time.Time) (float64, error)
}

// LastKnown remembers the most recent fully computed snapshot.
type LastKnown interface {
	Save(ctx context.Context, snap domain.Snapshot) error
	Load(ctx context.Context) (domain.Snapshot, bool, error)
}

const (
	fieldTotalProducts    = "totalProducts"
	fieldTotalCustomers   = "totalCustomers"
	fieldTotalOrders      = "totalOrders"
	fieldTotalRevenue     = "totalRevenue"
	fieldTodayOrders      = "todayOrders"
	fieldTodayRevenue     = "todayRevenue"
	fieldPendingOrders    = "pendingOrders"
	fieldProcessingOrders = "processingOrders"
)

// Aggregator computes dashboard snapshots from the source of truth. It keeps
// no state between calls apart from the optional last-known fallback.
type Aggregator struct {
	source    Source
	lastKnown LastKnown
	logger    *log.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// Result is a snapshot ready to be served together with its degradation state.
type Result struct {
	Snapshot domain.Snapshot
	Degraded []string
	// Fallback is set when every query failed and the snapshot is last-known or zero.
	Fallback bool
}

func New(source Source, lastKnown LastKnown, logger *log.Logger) *Aggregator {
	if source == nil {
		panic("stats.New: source is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Aggregator{
		source:    source,
		lastKnown: lastKnown,
		logger:    logger,
		tracer:    otel.Tracer("rootcart/stats"),
		now:       time.Now,
	}
}

type query struct {
	field string
	run   func(ctx context.Context) error
}

// Compute runs every sub-query concurrently. A failed query zeroes only its
// own field; the returned error is an *AggregationError naming those fields.
func (a *Aggregator) Compute(ctx context.Context) (domain.Snapshot, error) {
	ctx, span := a.tracer.Start(ctx, "stats.compute")
	defer span.End()

	now := a.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var (
		products, customers, orders, todayOrders, pending, processing int64
		revenue, todayRevenue                                         float64
	)
	queries := []query{
		{fieldTotalProducts, func(ctx context.Context) (err error) {
			products, err = a.source.CountProducts(ctx)
			return err
		}},
		{fieldTotalCustomers, func(ctx context.Context) (err error) {
			customers, err = a.source.CountCustomers(ctx)
			return err
		}},
		{fieldTotalOrders, func(ctx context.Context) (err error) {
			orders, err = a.source.CountOrders(ctx, time.Time{})
			return err
		}},
		{fieldTotalRevenue, func(ctx context.Context) (err error) {
			revenue, err = a.source.SumRevenue(ctx, time.Time{})
			return err
		}},
		{fieldTodayOrders, func(ctx context.Context) (err error) {
			todayOrders, err = a.source.CountOrders(ctx, midnight)
			return err
		}},
		{fieldTodayRevenue, func(ctx context.Context) (err error) {
			todayRevenue, err = a.source.SumRevenue(ctx, midnight)
			return err
		}},
		{fieldPendingOrders, func(ctx context.Context) (err error) {
			pending, err = a.source.CountOrdersByStatus(ctx, domain.StatusPending)
			return err
		}},
		{fieldProcessingOrders, func(ctx context.Context) (err error) {
			processing, err = a.source.CountOrdersByStatus(ctx, domain.StatusProcessing)
			return err
		}},
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures = map[string]error{}
	)
	for _, q := range queries {
		wg.Add(1)
		go func(q query) {
			defer wg.Done()
			if err := q.run(ctx); err != nil {
				mu.Lock()
				failures[q.field] = err
				mu.Unlock()
			}
		}(q)
	}
	wg.Wait()

	// Failed queries may have written partial values before erroring.
	zeroCount := map[string]*int64{
		fieldTotalProducts:    &products,
		fieldTotalCustomers:   &customers,
		fieldTotalOrders:      &orders,
		fieldTodayOrders:      &todayOrders,
		fieldPendingOrders:    &pending,
		fieldProcessingOrders: &processing,
	}
	zeroAmount := map[string]*float64{
		fieldTotalRevenue: &revenue,
		fieldTodayRevenue: &todayRevenue,
	}
	for field := range failures {
		if p, ok := zeroCount[field]; ok {
			*p = 0
		}
		if p, ok := zeroAmount[field]; ok {
			*p = 0
		}
	}

	snap := buildSnapshot(products, customers, orders, todayOrders, pending, processing, revenue, todayRevenue)

	span.SetAttributes(
		attribute.Bool("degraded", len(failures) > 0),
		attribute.Int("failed_queries", len(failures)),
	)
	if len(failures) == 0 {
		return snap, nil
	}
	aggErr := &AggregationError{Failures: failures, queries: len(queries)}
	span.RecordError(aggErr)
	span.SetStatus(codes.Error, "aggregation degraded")
	return snap, aggErr
}

func buildSnapshot(products, customers, orders, todayOrders, pending, processing int64, revenue, todayRevenue float64) domain.Snapshot {
	snap := domain.Snapshot{
		TotalProducts:    max(products, 0),
		TotalCustomers:   max(customers, 0),
		TotalOrders:      max(orders, 0),
		TotalRevenue:     max(revenue, 0),
		TodayOrders:      max(todayOrders, 0),
		TodayRevenue:     max(todayRevenue, 0),
		PendingOrders:    max(pending, 0),
		ProcessingOrders: max(processing, 0),
	}
	snap.AverageOrderValue = averageOrderValue(snap.TotalRevenue, snap.TotalOrders)
	return snap
}

// averageOrderValue is unrounded so it always equals revenue / orders as
// served; rounding belongs to display.
func averageOrderValue(revenue float64, orders int64) float64 {
	if orders <= 0 {
		return 0
	}
	return revenue / float64(orders)
}

// Snapshot computes a snapshot and applies the fallback policy so callers
// never see a hard error: partial failures keep the real fields, a total
// failure serves the last-known snapshot or zeroes.
func (a *Aggregator) Snapshot(ctx context.Context) Result {
	snap, err := a.Compute(ctx)
	if err == nil {
		if a.lastKnown != nil {
			if saveErr := a.lastKnown.Save(ctx, snap); saveErr != nil {
				a.logger.WithError(saveErr).Warn("failed to store last-known dashboard snapshot")
			}
		}
		return Result{Snapshot: snap}
	}

	var aggErr *AggregationError
	if !errors.As(err, &aggErr) {
		a.logger.WithError(err).Error("dashboard stats aggregation failed")
		return Result{Fallback: true}
	}
	fields := aggErr.Fields()
	if !aggErr.Total() {
		a.logger.WithError(err).WithField("degraded", fields).Warn("dashboard stats partially degraded")
		return Result{Snapshot: snap, Degraded: fields}
	}

	a.logger.WithError(err).Error("dashboard stats unavailable, serving fallback")
	if a.lastKnown != nil {
		last, ok, loadErr := a.lastKnown.Load(ctx)
		if loadErr != nil {
			a.logger.WithError(loadErr).Warn("failed to load last-known dashboard snapshot")
		}
		if ok {
			return Result{Snapshot: last, Degraded: fields, Fallback: true}
		}
	}
	return Result{Snapshot: domain.Snapshot{}, Degraded: fields, Fallback: true}
}
