package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/spikewatch/spikewatch/internal/config"
	"github.com/spikewatch/spikewatch/internal/database"
	"github.com/spikewatch/spikewatch/internal/logs"
	"github.com/spikewatch/spikewatch/internal/metrics"
	"github.com/spikewatch/spikewatch/internal/notify"
	"github.com/spikewatch/spikewatch/internal/pipeline"
	"github.com/spikewatch/spikewatch/internal/storage"
	"github.com/spikewatch/spikewatch/internal/traces"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Printf("Starting SpikeWatch error monitor...")
	log.Printf("Environment: %s, services: %d, window: %dm",
		cfg.Environment, len(cfg.TargetServices), cfg.WindowMinutes)

	// Initialize database connection for the incident index
	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		db, err = database.Connect(cfg.DatabaseURL, logger.Warn)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		log.Printf("Database connection established")

		// Run database migrations
		if err := database.AutoMigrate(db); err != nil {
			log.Fatalf("Failed to run database migrations: %v", err)
		}
	} else {
		log.Printf("DATABASE_URL not set, incident index disabled")
	}

	// Initialize artifact storage
	store, err := storage.NewStore(cfg.OutputRoot)
	if err != nil {
		log.Fatalf("Failed to initialize artifact storage: %v", err)
	}
	log.Printf("Artifact storage initialized at %s", cfg.OutputRoot)

	watermark := storage.NewWatermarkStore(cfg.WatermarkPath)

	// Initialize query backends
	timeout := time.Duration(cfg.QueryTimeoutSeconds) * time.Second
	metricsSource := metrics.NewSource(cfg.MetricsURL, cfg.Environment, cfg.WindowMinutes, timeout)
	traceFetcher := traces.NewFetcher(cfg.TraceSearchURL, cfg.TraceDetailURL, cfg.TraceSearchLimit, timeout)
	logFetcher := logs.NewFetcher(cfg.LogsURL, cfg.LogFetchLimit, timeout)

	// Initialize notification sink
	var notifier pipeline.Notifier
	if cfg.SlackWebhookURL != "" {
		notifier = notify.NewSlackNotifier(cfg.SlackWebhookURL, cfg.PortalBaseURL)
		log.Printf("Slack notifications ENABLED")
	} else {
		log.Printf("Slack notifications DISABLED (set SLACK_WEBHOOK_URL to enable)")
	}

	orchestrator := pipeline.New(cfg, metricsSource, traceFetcher, logFetcher, store, watermark, db, notifier)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received %s, finishing current card before shutdown...", sig)
		cancel()
	}()

	log.Println("Monitor is running! Press Ctrl+C to exit.")
	orchestrator.Run(ctx)
	log.Println("Shutdown complete")
}
