package main

import (
	"log/slog"
	"time"

	"github.com/martinemde/stepagent/config"
	"github.com/martinemde/stepagent/unifiedllm"
)

// newClient builds the LLM client for cfg. Each attempt is logged; retries
// wrap the logging.
func newClient(cfg *config.Config, logger *slog.Logger) (*unifiedllm.Client, error) {
	adapter, err := newAdapter(cfg, logger)
	if err != nil {
		return nil, err
	}

	policy := cfg.RetryPolicy()
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		logger.Warn("retrying llm request", "attempt", attempt, "delay", delay, "error", err)
	}

	return unifiedllm.NewClient(
		unifiedllm.WithProvider(cfg.Provider, adapter),
		unifiedllm.WithDefaultProvider(cfg.Provider),
		unifiedllm.WithMiddleware(
			unifiedllm.RetryMiddleware(policy),
			unifiedllm.LoggingMiddleware(logger),
		),
	), nil
}

func newAdapter(cfg *config.Config, logger *slog.Logger) (unifiedllm.ProviderAdapter, error) {
	if cfg.UsesOpenAIAdapter() {
		opts := []unifiedllm.OpenAIAdapterOption{
			unifiedllm.WithOpenAIKey(cfg.APIKey),
			unifiedllm.WithOpenAIModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, unifiedllm.WithBaseURL(cfg.BaseURL))
		}
		return unifiedllm.NewOpenAIAdapter(cfg.Provider, opts...)
	}

	opts := []unifiedllm.GollmAdapterOption{unifiedllm.WithModel(cfg.Model)}
	if cfg.APIKey != "" {
		opts = append(opts, unifiedllm.WithAPIKey(cfg.APIKey))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, unifiedllm.WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.Temperature != nil {
		opts = append(opts, unifiedllm.WithTemperature(*cfg.Temperature))
	}
	if cfg.BaseURL != "" {
		logger.Warn("base_url is ignored for this provider", "provider", cfg.Provider)
	}
	return unifiedllm.NewGollmAdapter(cfg.Provider, opts...)
}
