package llm

import (
	"context"

	"github.com/wolfman30/vethome-platform/pkg/logging"
)

// FallbackClient wraps a primary client with a secondary provider.
// If the primary fails, the request is retried once on the secondary.
type FallbackClient struct {
	primary   Client
	secondary Client
	logger    *logging.Logger
}

// NewFallbackClient chains primary and secondary. A nil secondary disables
// the retry.
func NewFallbackClient(primary, secondary Client, logger *logging.Logger) *FallbackClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackClient{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

func (c *FallbackClient) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}

	c.logger.Warn("primary model failed, attempting secondary",
		"error", err.Error(),
		"secondary_available", c.secondary != nil,
	)
	if c.secondary == nil {
		return Response{}, err
	}

	resp, secondaryErr := c.secondary.Complete(ctx, req)
	if secondaryErr != nil {
		c.logger.Error("secondary model also failed",
			"primary_error", err.Error(),
			"secondary_error", secondaryErr.Error(),
		)
		return Response{}, secondaryErr
	}
	return resp, nil
}
