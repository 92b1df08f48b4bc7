package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"rootcart/config"
	"rootcart/logging"
	"rootcart/storage"
)

func main() {
	cfg, err := config.LoadInit()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.New(logging.Options{Debug: cfg.Debug, Service: "storage-init"})
	logger.Info("storage init starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := storage.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		logger.Fatalf("mongo: %v", err)
	}
	defer store.Close(context.Background())

	if err := store.EnsureIndexes(ctx); err != nil {
		logger.Fatalf("ensure indexes: %v", err)
	}

	if cfg.StorageConnectionString != "" {
		if err := storage.CreateTables(ctx, cfg.StorageConnectionString, cfg.OrderHistoryTable); err != nil {
			logger.Fatalf("create tables: %v", err)
		}
		if err := storage.CreateQueues(ctx, cfg.StorageConnectionString, cfg.OrderEventsQueue); err != nil {
			logger.Fatalf("create queues: %v", err)
		}
	} else {
		logger.Info("STORAGE_CONNECTION_STRING not set, skipping tables and queues")
	}

	if cfg.SeedFixtures {
		seeded, err := store.SeedFixtures(ctx, sampleCatalog())
		if err != nil {
			logger.Fatalf("seed fixtures: %v", err)
		}
		logger.WithField("seeded", seeded).Info("fixtures checked")
	}

	logger.Info("storage init complete")
}
