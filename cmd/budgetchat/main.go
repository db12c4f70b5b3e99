package main

import (
	"context"
	"fmt"

	"budgetchat/internal/backend"
	"budgetchat/internal/cli"
	"budgetchat/internal/config"
	"budgetchat/internal/extract"
	apphttp "budgetchat/internal/http"
	"budgetchat/internal/log"
)

func main() {
	cfg, logger, err := cli.Bootstrap(log.ComponentApp, (*config.Config).ValidateServer)
	if err != nil {
		cli.Exit(logger, "Configuration validation failed", err)
	}

	if err := run(cfg, logger); err != nil {
		cli.Exit(logger, "Server exited with error", err)
	}
	logger.Info("Server stopped", log.FieldOperation, log.OpShutdown)
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := cli.SignalContext(context.Background(), logger)
	defer stop()

	logger.InfoContext(ctx, "Starting budgetchat",
		log.FieldOperation, log.OpStartup,
		"addr", cfg.Addr(),
		"backend", cfg.DataBackend,
		log.FieldProvider, cfg.LLMProvider)

	parser, err := newParser(ctx, cfg, logger)
	if err != nil {
		return err
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger).Create(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer res.Cleanup()

	var opts []apphttp.Option
	if res.Ready != nil {
		opts = append(opts, apphttp.WithReadiness(res.Ready))
	}

	srv, err := apphttp.NewServer(apphttp.Config{
		Addr:               cfg.Addr(),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		AllowedOrigins:     cfg.CORSAllowedOrigins,
		TrustedProxies:     cfg.TrustedProxies,
	}, parser, res.Service, logger, opts...)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}

// newParser builds the configured completion client and wraps it in the
// extractor, adding retries when more than one attempt is allowed.
func newParser(ctx context.Context, cfg *config.Config, logger *log.Logger) (extract.Parser, error) {
	var (
		completer extract.Completer
		model     string
	)
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		c, err := extract.NewGeminiClient(ctx, extract.GeminiConfig{
			APIKey:    cfg.LLMAPIKey,
			Model:     cfg.LLMModel,
			MaxTokens: cfg.LLMMaxTokens,
			Timeout:   cfg.LLMTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		completer, model = c, c.Model()
	default:
		c, err := extract.NewChatClient(extract.ChatConfig{
			APIKey:     cfg.LLMAPIKey,
			URL:        cfg.LLMAPIURL,
			Model:      cfg.LLMModel,
			APIVersion: cfg.LLMAPIVersion,
			MaxTokens:  cfg.LLMMaxTokens,
			Timeout:    cfg.LLMTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init chat client: %w", err)
		}
		completer, model = c, c.Model()
	}

	logger.Info("Initialized LLM client",
		log.FieldProvider, cfg.LLMProvider,
		log.FieldModel, model,
		"max_tokens", cfg.LLMMaxTokens,
		"timeout", cfg.LLMTimeout.String())

	var parser extract.Parser = extract.NewExtractor(completer,
		extract.WithLogger(logger),
		extract.WithProvider(cfg.LLMProvider))

	if cfg.LLMRetryAttempts > 1 {
		policy := extract.DefaultRetryPolicy()
		policy.MaxAttempts = cfg.LLMRetryAttempts
		policy.Logger = logger.WithComponent(log.ComponentExtract)
		parser = extract.WithRetry(parser, policy)
	}
	return parser, nil
}
