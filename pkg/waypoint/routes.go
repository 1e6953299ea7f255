package waypoint

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/go-rebel/internal/log"
)

// RegisterRoutes mounts the waypoint routes on r, normally at /waypoints.
func RegisterRoutes(r fiber.Router, store Store) {
	logger := log.With("component", "waypoints")

	r.Post("/save/:filename", func(c *fiber.Ctx) error {
		name := c.Params("filename")
		body := c.Body()
		if !json.Valid(body) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrInvalidDocument.Error()})
		}

		logger.Info("saving waypoints", "name", name)
		err := store.Save(c.UserContext(), name, json.RawMessage(body))
		switch {
		case err == nil:
			return c.SendStatus(fiber.StatusOK)
		case errors.Is(err, ErrInvalidName), errors.Is(err, ErrInvalidDocument):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		default:
			logger.Error("save failed", "name", name, "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	})

	r.Get("/load/:filename", func(c *fiber.Ctx) error {
		name := c.Params("filename")
		doc, err := store.Load(c.UserContext(), name)
		if err != nil {
			logger.Warn("load failed", "name", name, "error", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(doc)
	})

	r.Get("/all", func(c *fiber.Ctx) error {
		all, err := store.All(c.UserContext())
		if err != nil {
			logger.Error("list failed", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(all)
	})
}
