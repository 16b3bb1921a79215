// Package server exposes the agent over HTTP and WebSocket: project CRUD,
// event ingestion, chat history, and the live client channel.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/ella-systems/ella-agent/internal/config"
	"github.com/ella-systems/ella-agent/internal/engine"
	"github.com/ella-systems/ella-agent/internal/health"
	"github.com/ella-systems/ella-agent/internal/memory"
	"github.com/ella-systems/ella-agent/internal/metrics"
	"github.com/ella-systems/ella-agent/internal/requestid"
	"github.com/ella-systems/ella-agent/internal/store"
	"github.com/ella-systems/ella-agent/internal/ws"
)

// Deps carries the server's collaborators, constructed in main and
// injected here.
type Deps struct {
	Config    *config.Config
	Engine    *engine.Engine
	Store     *store.Store
	Session   *memory.SessionStore
	Hub       *ws.Hub
	Messenger *ws.Messenger
	Issuer    *TokenIssuer
	Checker   *health.Checker
	Metrics   *metrics.Metrics
}

// Server is the public Fiber application.
type Server struct {
	app    *fiber.App
	deps   Deps
	logger zerolog.Logger
}

// New builds the app, middleware and routes.
func New(deps Deps, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	s := &Server{
		app:    app,
		deps:   deps,
		logger: logger.With().Str("component", "server").Logger(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New(recover.Config{EnableStackTrace: true}))

	s.app.Use(func(c *fiber.Ctx) error {
		_, reqID := requestid.New(c.Context())
		c.Set("X-Request-ID", reqID)
		c.Locals("request_id", reqID)
		return c.Next()
	})

	if s.deps.Config.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: s.deps.Config.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-API-Key, X-Request-ID",
			AllowMethods: "GET, POST, OPTIONS",
		}))
	}

	if s.deps.Config.RateLimitRPS > 0 {
		s.app.Use(limiter.New(limiter.Config{
			Max:        s.deps.Config.RateLimitBurst,
			Expiration: time.Second,
			Next: func(c *fiber.Ctx) bool {
				p := c.Path()
				return p == "/healthz" || p == "/readyz" || p == "/metrics"
			},
		}))
	}

	s.app.Use(apiKeyMiddleware(s.deps.Config.APIKey, s.logger))

	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}
		s.logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Str("request_id", fmt.Sprintf("%v", c.Locals("request_id"))).
			Msg("api request")
		return c.Next()
	})
}

func (s *Server) setupRoutes() {
	s.app.Get("/healthz", s.liveness)
	s.app.Get("/readyz", s.readiness)
	if s.deps.Metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.deps.Metrics.Handler()))
	}

	api := s.app.Group("/api")
	api.Post("/projects", s.createProject)
	api.Get("/projects", s.listProjects)
	api.Get("/projects/:id", s.getProject)
	api.Get("/projects/:id/chat", s.getChat)
	api.Get("/projects/:id/artifacts", s.getArtifacts)
	api.Post("/projects/:id/events", s.postEvent)
	api.Post("/projects/:id/answers", s.postAnswers)

	s.registerWebSocket()
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.deps.Config.HTTPPort)
	s.logger.Info().Str("addr", addr).Msg("server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

type problemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func errorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("request failed")

		detail := err.Error()
		if code == fiber.StatusInternalServerError {
			detail = "an internal error occurred"
		}
		return c.Status(code).JSON(problemDetail{
			Type:   "about:blank",
			Title:  http.StatusText(code),
			Status: code,
			Detail: detail,
		})
	}
}
