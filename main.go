package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Chative-core-poc-v1/assistant/internal/agent/assistant"
	"github.com/Chative-core-poc-v1/assistant/internal/agent/breaker"
	"github.com/Chative-core-poc-v1/assistant/internal/agent/faq"
	"github.com/Chative-core-poc-v1/assistant/internal/agent/model"
	"github.com/Chative-core-poc-v1/assistant/internal/agent/provider"
	"github.com/Chative-core-poc-v1/assistant/internal/agent/repo"
	"github.com/Chative-core-poc-v1/assistant/internal/core"
	"github.com/Chative-core-poc-v1/assistant/internal/observability/metrics"
	"github.com/Chative-core-poc-v1/assistant/internal/server"
	logx "github.com/Chative-core-poc-v1/assistant/pkg/logger"
	pkgredis "github.com/Chative-core-poc-v1/assistant/pkg/redis"
)

// AppConfig defines all configurable parameters of the service,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string           `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Redis  pkgredis.Config
	Server model.ServerConfig

	// LLM provider
	Provider model.ProviderConfig

	// Assistant configs
	Prompt       model.PromptConfig
	Conversation model.ConversationConfig
	Cache        model.CacheConfig
	Breaker      model.BreakerConfig
}

func main() {
	envErr := godotenv.Load(".env")

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: cfg.Environment, Level: cfg.LogLevel})
	if envErr != nil {
		logx.Debug().Err(envErr).Msg("No .env file loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logx.Fatal().Err(err).Msg("Service stopped")
	}
	logx.Info().Msg("Service stopped")
}

func run(ctx context.Context, cfg AppConfig) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	assistantMetrics := metrics.NewAssistantMetrics(reg)

	completer, err := provider.NewGemini(ctx, cfg.Provider)
	if err != nil {
		return err
	}

	breakerCfg, err := cfg.Breaker.Resolve()
	if err != nil {
		return err
	}
	cb, err := breaker.New(breakerCfg,
		breaker.WithName(completer.Model()),
		breaker.WithStateChangeListener(func(name string, from, to breaker.State) {
			assistantMetrics.ObserveBreakerTransition(name, from.String(), to.String())
		}),
	)
	if err != nil {
		return err
	}
	assistantMetrics.SetBreakerState(cb.Name(), cb.State().String())

	faqSvc, err := faq.NewService(faq.DefaultCorpus(), cfg.Cache.FAQSize)
	if err != nil {
		return fmt.Errorf("build faq service: %w", err)
	}

	opts := []assistant.Option{assistant.WithObserver(assistantMetrics)}
	if cfg.Redis.Enabled() {
		rdb, err := cfg.Redis.New(ctx)
		if err != nil {
			logx.Warn().Err(err).Msg("Redis unavailable, response mirror disabled")
		} else {
			defer rdb.Close()
			logx.Info().Dur("ttl", cfg.Cache.MirrorTTL).Msg("Connected to Redis, response mirror enabled")
			opts = append(opts, assistant.WithResponseStore(repo.NewRedisResponseStore(rdb, cfg.Cache.MirrorTTL)))
		}
	}

	svc, err := assistant.New(assistant.Config{
		Prompt:       cfg.Prompt,
		Conversation: cfg.Conversation,
		Cache:        cfg.Cache,
	}, completer, cb, faqSvc, opts...)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.New(server.Config{Assistant: svc, MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		logx.Info().
			Str("addr", cfg.Server.Addr).
			Str("environment", cfg.Environment.String()).
			Str("model", completer.Model()).
			Interface("breaker", cb.Config()).
			Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logx.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
