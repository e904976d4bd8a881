package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/vethome-platform/internal/config"
	"github.com/wolfman30/vethome-platform/internal/gateway"
	"github.com/wolfman30/vethome-platform/internal/llm"
	"github.com/wolfman30/vethome-platform/internal/notify"
	"github.com/wolfman30/vethome-platform/internal/registry"
	"github.com/wolfman30/vethome-platform/internal/scheduling"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		FallbackOnError:       true,
		CampaignConcurrency:   2,
		CampaignSendDelay:     time.Millisecond,
		WorkerCount:           1,
		QuoteValidityDays:     7,
		DefaultCreditTermDays: 30,
		DoctorName:            "Dra. Solís",
		ClinicName:            "Patitas",
		PlanTier:              "pro",
	}
}

func TestBuildRedisClient(t *testing.T) {
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, nil, true))

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, nil, true)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })

	mr.Close()
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, nil, true))
}

func TestBuildPostgresPool_Disabled(t *testing.T) {
	pool, err := BuildPostgresPool(context.Background(), &appconfig.Config{})
	require.NoError(t, err)
	assert.Nil(t, pool)
}

func TestBuildLLMClient_Offline(t *testing.T) {
	client, err := BuildLLMClient(context.Background(), &appconfig.Config{}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, llm.Offline{}, client)

	// a Bedrock model without AWS config is skipped
	client, err = BuildLLMClient(context.Background(), &appconfig.Config{BedrockModelID: "anthropic.claude"}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, llm.Offline{}, client)
}

func TestBuildNotifier_Stubs(t *testing.T) {
	d := BuildNotifier(&appconfig.Config{}, nil, nil)
	ch, err := d.Deliver(context.Background(), notify.Notification{
		To:   notify.Recipient{Name: "Ana", Phone: "+50688887777"},
		Body: "Recordatorio",
	})
	require.NoError(t, err)
	assert.Equal(t, notify.ChannelSMS, ch)
}

func TestBuildApp_InMemory(t *testing.T) {
	app, err := BuildApp(context.Background(), testConfig(), Options{
		Registry: prometheus.NewRegistry(),
		Gatherer: prometheus.NewRegistry(),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, gateway.FailOpen, app.Gateway.Policy())
	assert.Nil(t, app.Queue)
	assert.Nil(t, app.NewDeliveryWorker(testConfig(), nil))
	assert.NotNil(t, app.Handlers.Billing)
	assert.NotNil(t, app.Handlers.Portal)

	usage, err := app.Clinic.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pro", string(usage.Plan.Tier))
}

func TestBuildApp_FailClosed(t *testing.T) {
	cfg := testConfig()
	cfg.FallbackOnError = false
	app, err := BuildApp(context.Background(), cfg, Options{Registry: prometheus.NewRegistry()}, nil)
	require.NoError(t, err)
	assert.Equal(t, gateway.FailClosed, app.Gateway.Policy())
}

func TestBuildApp_RedisAndMemoryQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	cfg.UseMemoryQueue = true
	app, err := BuildApp(context.Background(), cfg, Options{Redis: rdb, Registry: prometheus.NewRegistry()}, nil)
	require.NoError(t, err)

	require.NotNil(t, app.Queue)
	assert.IsType(t, &scheduling.MemoryQueue{}, app.Queue)
	assert.IsType(t, &scheduling.RedisCampaignStore{}, app.Campaigns)
	assert.NotNil(t, app.NewDeliveryWorker(cfg, nil))

	c, err := app.Registry.RegisterClient(context.Background(), registry.RegisterClientRequest{
		FullName: "Ana Mora", Phone: "+50688887777",
	})
	require.NoError(t, err)
	counts, err := app.Registry.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Clients)

	summary, err := app.Portal.Summary(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana Mora", summary.Client.FullName)
}
