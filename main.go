package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"rootcart/api"
	"rootcart/config"
	"rootcart/logging"
	"rootcart/notify"
	"rootcart/realtime"
	"rootcart/stats"
	"rootcart/storage"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.New(logging.Options{Debug: cfg.Debug, LogFile: cfg.LogFile, Service: "rootcart"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	store, err := storage.Connect(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
	cancel()
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}

	hub := realtime.NewHub(realtime.DefaultBuffer, logger)
	var (
		channel   notify.Channel = hub
		lastKnown stats.LastKnown
		deduper   api.Deduper
	)
	if cfg.RedisConnectionString != "" {
		rc := redis.NewClient(redisOptions(cfg.RedisConnectionString))
		defer rc.Close()
		// Only room publishes cross instances; client events need sticky routing.
		relay := realtime.NewRelay(hub, rc, cfg.RealtimeChannel, logger)
		go relay.Run(ctx)
		channel = relay
		lastKnown = storage.NewLastKnown(rc, cfg.SnapshotTTL)
		deduper = api.NewRedisDeduper(rc, cfg.DeduperTTL)
	} else {
		logger.Warn("REDIS_CONNECTION_STRING not set; realtime events stay on this instance")
	}

	var history api.StatusHistory
	var exporter notify.Exporter
	if cfg.StorageConnectionString != "" {
		h, err := storage.NewStatusHistory(cfg.StorageConnectionString, cfg.OrderHistoryTable)
		if err != nil {
			logger.Fatalf("status history: %v", err)
		}
		history = h
		q, err := storage.NewEventQueue(cfg.StorageConnectionString, cfg.OrderEventsQueue)
		if err != nil {
			logger.Fatalf("event queue: %v", err)
		}
		exporter = q
	}

	aggregator := stats.New(store, lastKnown, logger)
	publisher := notify.NewPublisher(channel, aggregator, logger, notify.Options{
		Buffer:         cfg.PublishBuffer,
		HandoffTimeout: cfg.PublishHandoffTimeout,
		Exporter:       exporter,
	})
	go notify.NewBroadcaster(publisher, cfg.BroadcastInterval, logger).Run(ctx)

	numbers, err := api.NewSnowflakeNumbers(cfg.SnowflakeNode)
	if err != nil {
		logger.Fatal(err)
	}
	auth, err := newAuth(cfg)
	if err != nil {
		logger.Fatal(err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))
	e.Use(api.GzipRequestMiddleware())
	if cfg.Debug {
		pprof.Register(e)
	}

	api.Register(e, api.Deps{
		Stats:        aggregator,
		Orders:       store,
		Catalog:      store,
		History:      history,
		Notifier:     publisher,
		Hub:          hub,
		Auth:         auth,
		Deduper:      deduper,
		OrderNumbers: numbers,
		Logger:       logger,
		Heartbeat:    cfg.HeartbeatInterval,
	})

	go func() {
		if err := e.Start(cfg.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http: %v", err)
		}
	}()
	<-ctx.Done()
	logger.Info("shutting down")

	// Streams never go idle, so end them before the server waits for idle connections.
	hub.Close()
	shutdown(logger, []shutdownStep{
		{"http", 10 * time.Second, e.Shutdown},
		{"publisher", 10 * time.Second, publisher.Shutdown},
		{"storage", 5 * time.Second, store.Close},
		{"tracer", 5 * time.Second, tp.Shutdown},
	})
}

type shutdownStep struct {
	name    string
	timeout time.Duration
	run     func(context.Context) error
}

// shutdown runs steps in order, each with its own deadline so a slow step
// does not starve the ones after it.
func shutdown(logger *log.Logger, steps []shutdownStep) {
	for _, step := range steps {
		ctx, cancel := context.WithTimeout(context.Background(), step.timeout)
		if err := step.run(ctx); err != nil {
			logger.WithError(err).WithField("step", step.name).Error("shutdown step failed")
		}
		cancel()
	}
}

// redisOptions accepts a redis:// URL or an Azure style
// "host:port,password=...,ssl=True" connection string.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(k) {
		case "password":
			opts.Password = v
		case "ssl":
			if strings.EqualFold(v, "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts
}

func newAuth(cfg *config.Server) (*api.Auth, error) {
	if cfg.JWTSecret != "" {
		return api.NewSharedSecretAuth(cfg.JWTSecret), nil
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{RefreshInterval: time.Hour})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(jwks, cfg.Auth0Audience, "https://"+cfg.Auth0Domain+"/"), nil
}
