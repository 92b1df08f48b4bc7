package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"rootcart/config"
	"rootcart/domain"
	"rootcart/logging"
	"rootcart/subscriber"
)

func main() {
	cfg, err := config.LoadWatch()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.New(logging.Options{Debug: cfg.Debug, Service: "dashboard-watch"})

	client, err := subscriber.New(subscriber.Options{
		StreamURL:    cfg.StreamURL,
		APIBaseURL:   cfg.APIBaseURL,
		Token:        cfg.Token,
		Role:         subscriber.Role(cfg.Role),
		PollInterval: cfg.PollInterval,
		Logger:       logger,
		OnStats: func(s domain.Snapshot, degraded []string) {
			logger.WithFields(log.Fields{
				"orders":        s.TotalOrders,
				"revenue":       domain.FormatAmount(s.TotalRevenue),
				"today_orders":  s.TodayOrders,
				"today_revenue": domain.FormatAmount(s.TodayRevenue),
				"pending":       s.PendingOrders,
				"processing":    s.ProcessingOrders,
				"products":      s.TotalProducts,
				"customers":     s.TotalCustomers,
				"avg_order":     domain.FormatAmount(s.AverageOrderValue),
				"degraded":      degraded,
			}).Info("dashboard stats")
		},
		OnActivity: func(a subscriber.Activity) {
			logger.WithFields(log.Fields{
				"kind":     a.Kind,
				"order":    a.OrderNumber,
				"customer": a.Customer,
				"status":   a.Status,
				"previous": a.PreviousStatus,
				"amount":   domain.FormatAmount(a.TotalAmount),
				"message":  a.Message,
			}).Info("order activity")
		},
		OnConnectivity: func(up bool) {
			if up {
				logger.Info("live")
				return
			}
			logger.Warn("offline, falling back to polling")
		},
	})
	if err != nil {
		logger.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := client.Run(ctx); err != nil {
		logger.Fatal(err)
	}
}
