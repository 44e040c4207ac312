package server

import (
	"log"
	"time"

	"db-agent-be/internal/bootstrap"
	"db-agent-be/internal/config"
	"db-agent-be/internal/pkg/serverutils"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	app       *fiber.App
	cfg       *config.Config
	container *bootstrap.Container
}

func New(cfg *config.Config, container *bootstrap.Container) *Server {
	// No WriteTimeout: chat answers stream for as long as the turn runs.
	app := fiber.New(fiber.Config{
		AppName:     "db-agent",
		BodyLimit:   1 * 1024 * 1024, // 1MB
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	})

	// Middleware
	app.Use(recover.New())

	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.App.CorsAllowedOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept",
		AllowMethods:  "GET, POST, OPTIONS",
		ExposeHeaders: "Content-Type",
	}))

	// OpenTelemetry tracing middleware; spans are dropped unless OTEL_ENABLED
	app.Use(otelfiber.Middleware())

	app.Use(serverutils.ErrorHandlerMiddleware(container.Logger))

	registerRoutes(app, container)

	return &Server{
		app:       app,
		cfg:       cfg,
		container: container,
	}
}

func (s *Server) GetApp() *fiber.App {
	return s.app
}

func (s *Server) Run() error {
	log.Printf("✅ Server is running on http://localhost:%s (chat: POST /chat, GET /ws/chat)", s.cfg.App.Port)
	return s.app.Listen(":" + s.cfg.App.Port)
}

// Shutdown stops accepting connections and waits for open requests, up to
// shutdownTimeout.
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(shutdownTimeout)
}

// registerRoutes mounts the API at the root: /chat, /ws/chat, /health,
// /tools and /turns.
func registerRoutes(app *fiber.App, c *bootstrap.Container) {
	c.ChatController.RegisterRoutes(app)
	c.ToolController.RegisterRoutes(app)
	c.AuditController.RegisterRoutes(app)
}
