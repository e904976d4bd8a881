package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/vethome-platform/internal/config"
	"github.com/wolfman30/vethome-platform/internal/llm"
	"github.com/wolfman30/vethome-platform/pkg/logging"
)

// BuildLLMClient chains Gemini and Bedrock, whichever are configured, with
// Gemini first. With neither the gateway runs offline and every call takes
// the failure path of its policy.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (llm.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var providers []llm.Client
	var names []string
	if key := strings.TrimSpace(cfg.GeminiAPIKey); key != "" {
		gemini, err := llm.NewGeminiClient(ctx, key, cfg.GeminiModelID)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		providers = append(providers, gemini)
		names = append(names, "gemini")
	}
	if model := strings.TrimSpace(cfg.BedrockModelID); model != "" && awsCfg != nil {
		providers = append(providers, llm.NewBedrockClient(bedrockruntime.NewFromConfig(*awsCfg), model))
		names = append(names, "bedrock")
	}

	switch len(providers) {
	case 0:
		logger.Warn("no generative model configured; gateway runs offline", "fallback_on_error", cfg.FallbackOnError)
		return llm.Offline{}, nil
	case 1:
		logger.Info("gateway model configured", "providers", names)
		return providers[0], nil
	default:
		logger.Info("gateway model configured", "providers", names)
		return llm.NewFallbackClient(providers[0], providers[1], logger), nil
	}
}
