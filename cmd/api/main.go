package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/vethome-platform/cmd/mainconfig"
	"github.com/wolfman30/vethome-platform/internal/api/router"
	"github.com/wolfman30/vethome-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/vethome-platform/internal/config"
	httpmiddleware "github.com/wolfman30/vethome-platform/internal/http/middleware"
	"github.com/wolfman30/vethome-platform/internal/scheduling"
	"github.com/wolfman30/vethome-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting vethome API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var awsCfg *aws.Config
	if mainconfig.UsesAWS(cfg) {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		awsCfg = &loaded
	}

	rdb := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}
	pool, err := bootstrap.BuildPostgresPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	} else {
		logger.Warn("DATABASE_URL not set; records are kept in memory")
	}

	app, err := bootstrap.BuildApp(ctx, cfg, bootstrap.Options{
		Redis:    rdb,
		Postgres: pool,
		AWS:      awsCfg,
	}, logger)
	if err != nil {
		logger.Error("failed to build services", "error", err)
		os.Exit(1)
	}

	// The in-memory queue only reaches a consumer in this process.
	if _, inProcess := app.Queue.(*scheduling.MemoryQueue); inProcess {
		if worker := app.NewDeliveryWorker(cfg, logger); worker != nil {
			worker.Start(ctx)
			defer worker.Wait()
		}
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.RunEviction(ctx, 5*time.Minute, 10*time.Minute)

	handler := router.New(&router.Config{
		Logger:             logger,
		Authority:          app.Handlers.Authority,
		Registry:           app.Handlers.Registry,
		Catalog:            app.Handlers.Catalog,
		Billing:            app.Handlers.Billing,
		Scheduling:         app.Handlers.Scheduling,
		Reports:            app.Handlers.Reports,
		Audit:              app.Handlers.Audit,
		Clinic:             app.Handlers.Clinic,
		Portal:             app.Handlers.Portal,
		PortalClients:      app.Registry,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
		MetricsHandler:     promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}),
		HealthChecks:       healthChecks(rdb, pool),
	})
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; API and portal are unauthenticated")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	logger.Info("server stopped")
}

func healthChecks(rdb *redis.Client, pool *pgxpool.Pool) map[string]router.HealthCheck {
	checks := map[string]router.HealthCheck{}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	return checks
}
