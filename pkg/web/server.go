// Package web assembles the relay server: robot and session sockets, the
// monitor feed, waypoint storage, health and metrics.
package web

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/teslashibe/go-rebel/internal/log"
	"github.com/teslashibe/go-rebel/pkg/hub"
	"github.com/teslashibe/go-rebel/pkg/relay"
	"github.com/teslashibe/go-rebel/pkg/waypoint"
)

// Options configure a Server.
type Options struct {
	Port    string
	Debug   bool
	Version string
}

// Server is the relay HTTP server.
type Server struct {
	app     *fiber.App
	port    string
	version string
	started time.Time
	logger  *slog.Logger

	relay   *relay.Relay
	monitor *hub.Hub
	store   waypoint.Store
}

// NewServer wires r and store into a fiber app. Every message the relay
// routes is mirrored to /ws/monitor.
func NewServer(opts Options, r *relay.Relay, store waypoint.Store) *Server {
	s := &Server{
		port:    opts.Port,
		version: opts.Version,
		started: time.Now(),
		logger:  log.With("component", "web"),
		relay:   r,
		monitor: hub.New("monitor"),
		store:   store,
	}

	app := fiber.New(fiber.Config{
		AppName:               "rebel-server",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if opts.Debug {
		app.Use(logger.New())
	}

	// WebSocket routes; the relay installs the upgrade guard on /ws
	r.RegisterRoutes(app)
	app.Get("/ws/monitor", s.monitor.Handler())
	r.SetMonitor(s.monitor.BroadcastMessage)

	api := app.Group("/api")
	r.RegisterAPIRoutes(api)
	api.Get("/monitor", s.handleMonitor)

	if store != nil {
		waypoint.RegisterRoutes(app.Group("/waypoints"), store)
	}

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", s.handleMetrics)

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Monitor returns the monitor hub.
func (s *Server) Monitor() *hub.Hub {
	return s.monitor
}

// Start runs the monitor hub and listens. Blocks until shutdown.
func (s *Server) Start() error {
	go s.monitor.Run()

	s.logger.Info("listening",
		"addr", ":"+s.port,
		"robots", "/ws/robot/:id",
		"sessions", "/ws/session",
		"monitor", "/ws/monitor")
	return s.app.Listen(":" + s.port)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("server error", "error", err)
		}
	}()
}

// Shutdown stops the listener and the monitor hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.monitor.Stop()
	return s.app.ShutdownWithContext(ctx)
}
