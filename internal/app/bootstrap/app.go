// Package bootstrap wires configuration into the clinic's services so the
// API server and the campaign worker assemble them the same way.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/vethome-platform/internal/audit"
	"github.com/wolfman30/vethome-platform/internal/authority"
	"github.com/wolfman30/vethome-platform/internal/billing"
	"github.com/wolfman30/vethome-platform/internal/catalog"
	"github.com/wolfman30/vethome-platform/internal/clinic"
	appconfig "github.com/wolfman30/vethome-platform/internal/config"
	"github.com/wolfman30/vethome-platform/internal/gateway"
	"github.com/wolfman30/vethome-platform/internal/llm"
	"github.com/wolfman30/vethome-platform/internal/notify"
	"github.com/wolfman30/vethome-platform/internal/observability/metrics"
	"github.com/wolfman30/vethome-platform/internal/portal"
	"github.com/wolfman30/vethome-platform/internal/registry"
	"github.com/wolfman30/vethome-platform/internal/reports"
	"github.com/wolfman30/vethome-platform/internal/scheduling"
	"github.com/wolfman30/vethome-platform/pkg/logging"
)

// Options carry the already-built infrastructure. Nil members select the
// in-memory variant of every store.
type Options struct {
	Redis    *redis.Client
	Postgres *pgxpool.Pool
	AWS      *aws.Config
	// LLM overrides the model built from config; used by tests.
	LLM      llm.Client
	Registry prometheus.Registerer
	Gatherer prometheus.Gatherer
}

// App is the assembled clinic back end.
type App struct {
	Gateway    *gateway.Adapter
	Authority  *authority.Service
	Registry   *registry.Service
	Catalog    catalog.Repository
	Billing    *billing.Service
	Scheduling *scheduling.Service
	Portal     *portal.Service
	Clinic     *clinic.Service
	Reports    *reports.Service
	Audit      *audit.Service
	Notifier   *notify.Dispatcher

	Campaigns       scheduling.CampaignStore
	// Queue is nil when campaigns are delivered by the simulated dispatcher.
	Queue           scheduling.JobQueue
	CampaignMetrics *metrics.CampaignMetrics

	Handlers Handlers
}

type Handlers struct {
	Authority  *authority.Handler
	Registry   *registry.Handler
	Catalog    *catalog.Handler
	Billing    *billing.Handler
	Scheduling *scheduling.Handler
	Portal     *portal.Handler
	Clinic     *clinic.Handler
	Reports    *reports.Handler
	Audit      *audit.Handler
}

// BuildApp assembles every service from cfg and the given infrastructure.
func BuildApp(ctx context.Context, cfg *appconfig.Config, opts Options, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	model := opts.LLM
	if model == nil {
		var err error
		if model, err = BuildLLMClient(ctx, cfg, opts.AWS, logger); err != nil {
			return nil, err
		}
	}
	policy := gateway.FailClosed
	if cfg.FallbackOnError {
		policy = gateway.FailOpen
	}
	gw := gateway.New(model, policy,
		gateway.WithMetrics(metrics.NewGatewayMetrics(opts.Registry)),
		gateway.WithLogger(logger.Component("gateway")),
	)
	logger.Info("gateway policy", "policy", policy.String())

	app := &App{Gateway: gw}
	rdb, db := opts.Redis, opts.Postgres

	// authority
	var credStore authority.Store = authority.NewMemoryStore()
	if rdb != nil {
		credStore = authority.NewRedisStore(rdb)
	}
	app.Authority = authority.NewService(credStore, gw, logger.Component("authority"))

	// registry
	var clientRepo registry.Repository = registry.NewInMemoryRepository()
	if db != nil {
		clientRepo = registry.NewPostgresRepository(db)
	}
	var attachments registry.AttachmentStore
	if opts.AWS != nil && cfg.AttachmentsBucket != "" {
		attachments = registry.NewS3AttachmentStore(s3.NewFromConfig(*opts.AWS), cfg.AttachmentsBucket, logger)
	}
	app.Registry = registry.NewService(clientRepo, gw, attachments, logger.Component("registry"))

	// catalog
	var itemRepo catalog.Repository = catalog.NewSeededRepository()
	if db != nil {
		itemRepo = catalog.NewPostgresRepository(db)
	}
	app.Catalog = itemRepo

	// audit
	var trail audit.Store = audit.NewMemoryStore()
	if db != nil {
		trail = audit.NewPostgresStore(db)
	}
	app.Audit = audit.NewService(trail, logger.Component("audit"))

	// billing
	var billingRepo billing.Repository = billing.NewInMemoryRepository()
	if db != nil {
		billingRepo = billing.NewPostgresRepository(db)
	}
	var carts billing.CartStore = billing.NewMemoryCartStore()
	if rdb != nil {
		carts = billing.NewRedisCartStore(rdb)
	}
	app.Billing = billing.NewService(billing.Config{
		QuoteValidity:     time.Duration(cfg.QuoteValidityDays) * 24 * time.Hour,
		DefaultCreditTerm: cfg.DefaultCreditTermDays,
	}, billing.Deps{
		Repo:        billingRepo,
		Carts:       carts,
		Credentials: app.Authority,
		Clients:     app.Registry,
		Items:       itemRepo,
		Authority:   gw,
		Metrics:     metrics.NewBillingMetrics(opts.Registry),
		Audit:       app.Audit,
		Logger:      logger.Component("billing"),
	})

	// clinic
	defaults := clinic.Defaults{DoctorName: cfg.DoctorName, ClinicName: cfg.ClinicName, Tier: cfg.PlanTier}
	var profiles clinic.Store = clinic.NewMemoryStore(defaults)
	if rdb != nil {
		profiles = clinic.NewRedisStore(rdb, defaults)
	}
	app.Clinic = clinic.NewService(profiles, app.Registry, app.Billing, logger.Component("clinic"))

	// scheduling
	app.Notifier = BuildNotifier(cfg, opts.AWS, logger.Component("notify"))
	app.CampaignMetrics = metrics.NewCampaignMetrics(opts.Registry)
	var appointments scheduling.Repository = scheduling.NewInMemoryRepository()
	if db != nil {
		appointments = scheduling.NewPostgresRepository(db)
	}
	app.Campaigns = scheduling.NewMemoryCampaignStore()
	if rdb != nil {
		app.Campaigns = scheduling.NewRedisCampaignStore(rdb)
	}
	app.Queue = buildQueue(cfg, opts.AWS, logger)
	var dispatcher scheduling.Dispatcher = scheduling.NewSimulatedDispatcher(app.Campaigns, cfg.CampaignSendDelay, app.CampaignMetrics)
	if app.Queue != nil {
		dispatcher = scheduling.NewQueueDispatcher(app.Queue, app.Campaigns, app.CampaignMetrics, logger.Component("campaigns"))
	}
	profile, err := profiles.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load clinic profile: %w", err)
	}
	app.Scheduling = scheduling.NewService(scheduling.Config{
		DoctorName:  profile.DoctorName,
		ClinicName:  profile.ClinicName,
		Concurrency: cfg.CampaignConcurrency,
	}, scheduling.Deps{
		Repo:       appointments,
		Campaigns:  app.Campaigns,
		Clients:    app.Registry,
		Messages:   gw,
		Dispatcher: dispatcher,
		Metrics:    app.CampaignMetrics,
		Logger:     logger.Component("scheduling"),
	})

	// portal
	var messages portal.MessageStore = portal.NewMemoryMessageStore()
	if rdb != nil {
		messages = portal.NewRedisMessageStore(rdb)
	}
	app.Portal = portal.NewService(app.Registry, app.Billing, messages, gw, portal.NewHub(), logger.Component("portal"))

	app.Reports = reports.NewService(app.Billing, app.Scheduling, app.Clinic, opts.Gatherer, logger.Component("reports"))

	app.Handlers = Handlers{
		Authority:  authority.NewHandler(app.Authority, logger),
		Registry:   registry.NewHandler(app.Registry, logger),
		Catalog:    catalog.NewHandler(itemRepo, gw, logger),
		Billing:    billing.NewHandler(app.Billing, logger),
		Scheduling: scheduling.NewHandler(app.Scheduling, logger),
		Portal:     portal.NewHandler(app.Portal, logger),
		Clinic:     clinic.NewHandler(app.Clinic, logger),
		Reports:    reports.NewHandler(app.Reports, logger),
		Audit:      audit.NewHandler(app.Audit, logger),
	}
	return app, nil
}

// buildQueue selects SQS when a queue URL is set, an in-process queue when
// USE_MEMORY_QUEUE is on, and nil otherwise.
func buildQueue(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) scheduling.JobQueue {
	switch {
	case cfg.CampaignQueueURL != "" && awsCfg != nil:
		logger.Info("campaign delivery via sqs", "queue_url", cfg.CampaignQueueURL)
		return scheduling.NewSQSQueue(sqs.NewFromConfig(*awsCfg), cfg.CampaignQueueURL)
	case cfg.UseMemoryQueue:
		logger.Info("campaign delivery via in-memory queue")
		return scheduling.NewMemoryQueue(256)
	default:
		logger.Info("campaign delivery simulated", "delay", cfg.CampaignSendDelay)
		return nil
	}
}

// NewDeliveryWorker builds the consumer for app's campaign queue. It returns
// nil when campaigns are simulated.
func (a *App) NewDeliveryWorker(cfg *appconfig.Config, logger *logging.Logger) *scheduling.DeliveryWorker {
	if a.Queue == nil {
		return nil
	}
	return scheduling.NewDeliveryWorker(a.Queue, a.Campaigns, a.Notifier, a.CampaignMetrics, logger,
		scheduling.WithWorkerCount(cfg.WorkerCount))
}
