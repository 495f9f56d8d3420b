// Package web serves the look trigger HTTP API, the outcome event stream and
// the pose ingest endpoint.
package web

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-looktrigger/internal/log"
	"github.com/teslashibe/go-looktrigger/pkg/engine"
	"github.com/teslashibe/go-looktrigger/pkg/hub"
	"github.com/teslashibe/go-looktrigger/pkg/ingest"
	"github.com/teslashibe/go-looktrigger/pkg/protocol"
)

// Options configure the server
type Options struct {
	Addr         string
	Version      string
	Debug        bool   // Request logging
	AllowOrigins string // CORS origins, "*" when empty
}

// Server is the HTTP and WebSocket front end of an engine
type Server struct {
	app    *fiber.App
	opts   Options
	engine *engine.Engine
	events *hub.Hub
	sink   *Sink
	ingest *ingest.Gateway
	log    *slog.Logger
}

// NewServer creates a server over eng. sink must be the engine's output sink.
func NewServer(opts Options, eng *engine.Engine, sink *Sink) *Server {
	if opts.AllowOrigins == "" {
		opts.AllowOrigins = "*"
	}

	s := &Server{
		opts:   opts,
		engine: eng,
		events: sink.Hub(),
		sink:   sink,
		ingest: ingest.NewGateway(eng.Scene()),
		log:    log.Component("web"),
	}
	s.events.SetWelcome(s.snapshotMessage)

	app := fiber.New(fiber.Config{
		AppName:               "looktrigger",
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: opts.AllowOrigins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if opts.Debug {
		app.Use(logger.New())
	}

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", s.handleMetrics)

	// API routes
	api := app.Group("/api")
	api.Get("/monitors", s.handleListMonitors)
	api.Get("/monitors/:id", s.handleGetMonitor)
	api.Delete("/monitors/:id", s.handleDeleteMonitor)
	api.Post("/monitors/:id/enable", s.handleSetEnabled(true))
	api.Post("/monitors/:id/disable", s.handleSetEnabled(false))
	api.Get("/entities", s.handleListEntities)
	api.Put("/entities/:id", s.handlePutEntity)
	api.Delete("/entities/:id", s.handleDeleteEntity)
	api.Get("/outcomes", s.handleListOutcomes)
	api.Get("/stats", s.handleStats)
	s.ingest.RegisterAPIRoutes(api)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/events", websocket.New(s.handleEventsWS))
	s.ingest.RegisterRoutes(app)

	s.app = app
	return s
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Ingest returns the pose gateway
func (s *Server) Ingest() *ingest.Gateway {
	return s.ingest
}

// Start runs the event hub and serves until the listener closes
func (s *Server) Start(ctx context.Context) error {
	go s.events.Run(ctx)

	s.log.Info("server listening", "addr", s.opts.Addr,
		"events", "/ws/events", "ingest", "/ws/ingest", "health", "/health")
	return s.app.Listen(s.opts.Addr)
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// snapshotMessage greets new event subscribers with the monitor states
func (s *Server) snapshotMessage() (hub.Message, bool) {
	msg, err := protocol.NewMonitorsMessage(monitorStates(s.engine.Monitors()))
	if err != nil {
		s.log.Error("failed to encode monitor snapshot", "error", err)
		return hub.Message{}, false
	}
	data, err := msg.Bytes()
	if err != nil {
		return hub.Message{}, false
	}
	return hub.NewMessage(data), true
}
