package web

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"version":   s.version,
		"robots":    s.relay.RobotCount(),
		"sessions":  s.relay.SessionCount(),
		"waypoints": s.store != nil,
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleMonitor(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"running": s.monitor.IsRunning(),
		"clients": s.monitor.ClientCount(),
		"dropped": s.monitor.Dropped(),
	})
}

type metric struct {
	name, help, kind string
	value            interface{}
}

// handleMetrics renders counters in the Prometheus text format.
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	stats := s.relay.GetStats()
	metrics := []metric{
		{"rebel_relay_robots", "Registered robot count", "gauge", stats.RobotCount},
		{"rebel_relay_sessions", "Connected operator sessions", "gauge", stats.SessionCount},
		{"rebel_relay_messages_received", "Total messages received", "counter", stats.MessagesReceived},
		{"rebel_relay_messages_sent", "Total messages sent", "counter", stats.MessagesSent},
		{"rebel_relay_commands_forwarded", "Commands delivered to robots", "counter", stats.CommandsForwarded},
		{"rebel_relay_commands_dropped", "Commands for robots that were not connected", "counter", stats.CommandsDropped},
		{"rebel_monitor_clients", "Connected monitor clients", "gauge", s.monitor.ClientCount()},
		{"rebel_monitor_dropped", "Monitor frames dropped on a full queue", "counter", s.monitor.Dropped()},
	}

	var b strings.Builder
	for i, m := range metrics {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s %s\n%s %v\n", m.name, m.help, m.name, m.kind, m.name, m.value)
	}

	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4")
	return c.SendString(b.String())
}
