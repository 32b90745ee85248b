package unifiedllm

import (
	"context"
	"log/slog"
	"time"
)

// RetryMiddleware retries retryable provider failures using policy.
func RetryMiddleware(policy RetryPolicy) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		return Retry(ctx, policy, func(ctx context.Context) (*Response, error) {
			return next(ctx, req)
		})
	}
}

// LoggingMiddleware records each provider call on logger.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		attrs := []any{
			"provider", req.Provider,
			"model", req.Model,
			"messages", len(req.Messages),
			"duration", time.Since(start),
		}
		if err != nil {
			logger.WarnContext(ctx, "llm request failed", append(attrs, "error", err, "retryable", IsRetryable(err))...)
			return nil, err
		}
		logger.DebugContext(ctx, "llm request",
			append(attrs,
				"response_id", resp.ID,
				"finish", resp.FinishReason.Reason,
				"input_tokens", resp.Usage.InputTokens,
				"output_tokens", resp.Usage.OutputTokens,
			)...)
		return resp, nil
	}
}
