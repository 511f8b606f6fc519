package main

import (
	"context"
	"log"
	"os"
	"time"

	"capitolbrief/config"
	"capitolbrief/feed"
	"capitolbrief/models"
	"capitolbrief/publisher"
	"capitolbrief/services"
	"capitolbrief/storage"
	"capitolbrief/summarizer"
	"capitolbrief/textsource"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// One-shot pipeline invocation for external schedulers. Invocations may
// overlap with each other and with the server's cron; the store's row
// locking keeps that safe. Exits non-zero when the state store fails.
func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := db.AutoMigrate(&models.Bill{}, &models.PublishRecord{}); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	archive, err := storage.NewArchive(cfg)
	if err != nil {
		logging.Fatal("S3 archive client creation failed", zap.Error(err))
	}

	store := services.NewBillStore(db, logging)
	chain := textsource.NewChain(logging, cfg.MinTextLength,
		textsource.NewAPISource(cfg, logging),
		textsource.NewDirectURLSource(cfg, logging),
		textsource.NewScrapeSource(cfg, logging),
	)
	pipeline := services.NewPipeline(cfg, store,
		feed.NewClient(cfg, logging),
		chain,
		summarizer.NewClient(cfg, logging),
		publisher.NewClient(cfg, logging),
		archive,
		logging,
	)

	// Overall deadline for the whole run; individual calls carry shorter timeouts.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	stats, err := pipeline.RunOnce(ctx)
	if err != nil {
		logging.Error("Pipeline run failed", zap.Error(err))
		os.Exit(1)
	}
	logging.Info("Run finished",
		zap.Int("new_bills", stats.NewBills),
		zap.Int("texts_accepted", stats.TextsAccepted),
		zap.Int("summarized", stats.Summarized),
		zap.Bool("published", stats.Published),
		zap.String("post_url", stats.PostURL))
}
