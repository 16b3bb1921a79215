// Command ella runs the project readiness agent: HTTP/WebSocket API,
// stage engine, and the planning analysis loop.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ella-systems/ella-agent/internal/config"
	"github.com/ella-systems/ella-agent/internal/engine"
	"github.com/ella-systems/ella-agent/internal/handler"
	"github.com/ella-systems/ella-agent/internal/health"
	"github.com/ella-systems/ella-agent/internal/llm"
	"github.com/ella-systems/ella-agent/internal/memory"
	"github.com/ella-systems/ella-agent/internal/metrics"
	"github.com/ella-systems/ella-agent/internal/notify"
	"github.com/ella-systems/ella-agent/internal/server"
	"github.com/ella-systems/ella-agent/internal/store"
	"github.com/ella-systems/ella-agent/internal/tool"
	"github.com/ella-systems/ella-agent/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("config load failed")
	}

	logger := newLogger(cfg)
	logger.Info().Str("environment", cfg.Environment).Msg("ella agent starting")

	m := metrics.New()

	st, err := store.New(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store init failed")
	}
	defer st.Close()

	memStore, err := memory.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("memory store init failed")
	}

	var embedder memory.Embedder = memory.NoopEmbedder{}
	if cfg.EmbeddingsEnabled() {
		embedder = memory.NewCachedEmbedder(memory.NewHTTPEmbedder(memory.HTTPEmbedderConfig{
			Endpoint: cfg.EmbedEndpoint,
			APIKey:   cfg.EmbedAPIKey,
			Model:    cfg.EmbedModel,
		}), 512)
	}
	vectors := memory.NewVectorStore(memStore, embedder)
	defer vectors.Close()

	session := memory.NewSessionStore()

	llmClient := llm.NewOpenRouterClient(cfg.LLMAPIKey, logger,
		llm.WithEndpoint(cfg.LLMEndpoint),
		llm.WithModel(cfg.LLMModel),
		llm.WithMaxTokens(cfg.LLMMaxTokens),
		llm.WithHTTPClient(&http.Client{Timeout: cfg.LLMTimeout}),
		llm.WithMetrics(m),
	)

	registry := tool.NewRegistry()
	registry.Register(tool.NewSearchMemoryTool(vectors))
	registry.Register(tool.NewSaveNoteTool(vectors))
	registry.Register(tool.NewGitHubSearchTool(cfg.GitHubToken, nil))
	registry.Register(tool.NewFetchURLTool())
	executor := tool.NewExecutor(registry, m, logger)

	hub := ws.NewHub(m, logger)
	messenger := ws.NewMessenger(hub, st, logger)

	notifier := notify.NewNotifier(cfg.SlackBotToken, cfg.SlackChannel, logger)
	if notifier.Enabled() {
		logger.Info().Str("channel", cfg.SlackChannel).Msg("slack escalation enabled")
	}

	eng := engine.New(logger,
		engine.WithMetrics(m),
		engine.WithTransitionHook(func(ctx context.Context, projectID string, from, to engine.Stage) {
			if err := st.UpdateProjectStage(ctx, projectID, to.String()); err != nil {
				logger.Warn().Str("project", projectID).Err(err).Msg("stage persist failed")
			}
			messenger.NotifyStageChange(projectID, from.String(), to.String())
			if to == engine.StageComplete && notifier.Enabled() {
				notifier.ProjectReady(projectID, 100)
			}
		}),
	)

	eng.RegisterHandler(handler.NewPlanHandler(handler.PlanConfig{
		LLM:       llmClient,
		Registry:  registry,
		Executor:  executor,
		Session:   session,
		Messenger: messenger,
		Store:     st,
		Emitter:   eng,
		Notifier:  notifier,
		Threshold: cfg.ReadyConfidence,
		Metrics:   m,
	}, logger))
	eng.RegisterHandler(handler.NewImplementationHandler(st, logger))
	eng.RegisterHandler(handler.NewReviewHandler(st, logger))
	eng.RegisterHandler(handler.NewExecutorHandler(st, logger))
	eng.RegisterHandler(handler.NewCompleteHandler(logger))

	checker := health.NewChecker(logger)
	checker.Register("sqlite", func(ctx context.Context) health.Status {
		if err := st.DB().PingContext(ctx); err != nil {
			return health.StatusDown
		}
		return health.StatusOK
	})

	srv := server.New(server.Deps{
		Config:    cfg,
		Engine:    eng,
		Store:     st,
		Session:   session,
		Hub:       hub,
		Messenger: messenger,
		Issuer:    server.NewTokenIssuer(cfg.WSTokenSecret, cfg.WSTokenTTL),
		Checker:   checker,
		Metrics:   m,
	}, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutdown requested")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(); err != nil {
		logger.Warn().Err(err).Msg("server shutdown error")
	}
	hub.Shutdown()
	if err := eng.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("engine shutdown timed out")
	}

	logger.Info().Msg("ella agent stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = zerolog.New(os.Stdout)
	if cfg.Environment == "development" {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return out.Level(level).With().Timestamp().Logger()
}
