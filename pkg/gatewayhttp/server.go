// Package gatewayhttp wires components A, B, D, E, F, G, H, I, and J
// together behind the client-facing HTTP surface (spec §6, Component M
// in SPEC_FULL.md): POST /v1/messages, POST /v1/chat/completions,
// POST /v1/messages/count_tokens, and GET /healthz.
package gatewayhttp

import (
	"bufio"
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"

	"github.com/kiro-gateway/gateway/pkg/credential"
	"github.com/kiro-gateway/gateway/pkg/gatewayconfig"
	"github.com/kiro-gateway/gateway/pkg/upstream"
)

// Server holds the dependencies every route handler needs. It is built
// once at startup and threaded through fiber's handler closures —
// no package-level globals (spec §9's explicit-dependency-injection
// design note, generalized from the credential pool to the whole
// process).
type Server struct {
	cfg    *gatewayconfig.Config
	pool   *credential.Pool
	client *upstream.Client
	log    *zap.Logger
}

func New(cfg *gatewayconfig.Config, pool *credential.Pool, client *upstream.Client, log *zap.Logger) *Server {
	return &Server{cfg: cfg, pool: pool, client: client, log: log}
}

// Router builds the fiber.App with middleware and routes installed,
// grounded on the teacher's fiber-server example (logger + cors
// middleware, app.Post route registration).
func (s *Server) Router() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "kiro-gateway",
		DisableStartupMessage: true,
	})

	app.Use(logger.New())
	app.Use(cors.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/v1", s.authMiddleware)
	api.Post("/messages", s.handleMessages)
	api.Post("/messages/count_tokens", s.handleCountTokens)
	api.Post("/chat/completions", s.handleChatCompletions)

	return app
}

// authMiddleware enforces spec §6's auth rule: a Bearer token or
// x-api-key header must equal the configured client secret.
func (s *Server) authMiddleware(c *fiber.Ctx) error {
	provided := c.Get("x-api-key")
	if provided == "" {
		auth := c.Get("Authorization")
		provided = strings.TrimPrefix(auth, "Bearer ")
	}

	if subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.ClientSecret)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	return c.Next()
}

func (s *Server) writeStream(c *fiber.Ctx, fn func(w *bufio.Writer)) {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Context().SetBodyStreamWriter(fn)
}
