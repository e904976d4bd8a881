// Command gatewaycheck runs one of each gateway call against the configured
// model and prints the typed result, so a deployment's GEMINI/BEDROCK setup
// can be verified before the clinic relies on it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/wolfman30/vethome-platform/cmd/mainconfig"
	"github.com/wolfman30/vethome-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/vethome-platform/internal/config"
	"github.com/wolfman30/vethome-platform/internal/gateway"
	"github.com/wolfman30/vethome-platform/internal/observability/metrics"
	"github.com/wolfman30/vethome-platform/pkg/logging"
)

func main() {
	failOpen := flag.Bool("fail-open", false, "answer failed calls with fallbacks instead of errors")
	timeout := flag.Duration("timeout", 60*time.Second, "overall timeout")
	flag.Parse()

	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New("warn")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var awsCfg *aws.Config
	if cfg.BedrockModelID != "" {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "aws config: %v\n", err)
			os.Exit(1)
		}
		awsCfg = &loaded
	}
	model, err := bootstrap.BuildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "model: %v\n", err)
		os.Exit(1)
	}

	policy := gateway.FailClosed
	if *failOpen {
		policy = gateway.FailOpen
	}
	gw := gateway.New(model, policy,
		gateway.WithMetrics(metrics.NewGatewayMetrics(prometheus.NewRegistry())),
		gateway.WithLogger(logger))

	fmt.Printf("gateway check (%s)\n", policy)
	failures := 0
	check := func(name string, fn func() (any, error)) {
		start := time.Now()
		res, err := fn()
		elapsed := time.Since(start).Round(time.Millisecond)
		if err != nil {
			failures++
			fmt.Printf("  FAIL %-20s %v (%s)\n", name, err, elapsed)
			return
		}
		out, _ := json.Marshal(res)
		fmt.Printf("  ok   %-20s %s (%s)\n", name, out, elapsed)
	}

	check("validate_credentials", func() (any, error) {
		return gw.ValidateCredentials(ctx, gateway.CredentialCheck{User: "cpf-01-0000-0000", Password: "secret", PIN: "1234", Environment: "sandbox"})
	})
	check("validate_document", func() (any, error) {
		return gw.ValidateDocument(ctx, gateway.DocumentRequest{
			Type:       "FE",
			ClientName: "Ana Mora",
			Items: []gateway.DocumentLine{{
				Name: "Consulta general", CABYS: "8531100000100", Quantity: 1,
				Price: decimal.NewFromInt(15000), Tax: decimal.NewFromInt(600),
			}},
			Subtotal: decimal.NewFromInt(15000),
			Tax:      decimal.NewFromInt(600),
			Total:    decimal.NewFromInt(15600),
		})
	})
	check("lookup_identity", func() (any, error) { return gw.LookupIdentity(ctx, "112345678") })
	check("search_cabys", func() (any, error) { return gw.SearchCABYS(ctx, "vacuna antirrábica") })
	check("batch_message", func() (any, error) {
		return gw.GenerateBatchMessage(ctx, gateway.BatchMessageRequest{
			DoctorName: cfg.DoctorName, ClinicName: cfg.ClinicName,
			OwnerName: "Ana", PetName: "Luna", Reason: "vacunación",
			Date: time.Now().Format(time.DateOnly), Time: "10:00",
		})
	})
	check("reminder_text", func() (any, error) {
		return gw.GenerateReminderText(ctx, gateway.ReminderRequest{PetName: "Luna", Reason: "desparasitación"})
	})

	if failures > 0 {
		os.Exit(1)
	}
}
