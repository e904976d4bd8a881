// Command campaign-worker consumes campaign delivery jobs from SQS and sends
// each one by SMS or email, recording the outcome on the campaign.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wolfman30/vethome-platform/cmd/mainconfig"
	"github.com/wolfman30/vethome-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/vethome-platform/internal/config"
	"github.com/wolfman30/vethome-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).Component("campaign-worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.CampaignQueueURL == "" {
		logger.Error("campaign worker requires CAMPAIGN_QUEUE_URL")
		os.Exit(1)
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	// Campaign state must be shared with the API, so Redis is required.
	rdb := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if rdb == nil {
		logger.Error("campaign worker requires a reachable REDIS_ADDR")
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()

	app, err := bootstrap.BuildApp(ctx, cfg, bootstrap.Options{Redis: rdb, AWS: &awsCfg}, logger)
	if err != nil {
		logger.Error("failed to build services", "error", err)
		os.Exit(1)
	}
	worker := app.NewDeliveryWorker(cfg, logger)
	if worker == nil {
		logger.Error("no campaign queue configured")
		os.Exit(1)
	}

	logger.Info("campaign worker started", "workers", cfg.WorkerCount, "queue_url", cfg.CampaignQueueURL)
	worker.Start(ctx)
	<-ctx.Done()
	logger.Info("shutting down campaign worker")
	worker.Wait()
}
