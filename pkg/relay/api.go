package relay

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/teslashibe/go-rebel/pkg/protocol"
)

// RegisterAPIRoutes registers REST routes for robot management.
func (r *Relay) RegisterAPIRoutes(api fiber.Router) {
	robots := api.Group("/robots")

	robots.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"robots":      r.Roster(),
			"controllers": r.GetRobotInfos(),
			"count":       r.RobotCount(),
		})
	})

	robots.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(r.GetStats())
	})

	robots.Post("/:id/angles", func(c *fiber.Ctx) error {
		var cmd struct {
			Angles []float64 `json:"angles"`
			Speed  float64   `json:"speed"`
		}
		if err := c.BodyParser(&cmd); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if len(cmd.Angles) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "angles required"})
		}
		msg, err := protocol.NewRobotSetAnglesMessage(c.Params("id"), cmd.Angles, cmd.Speed)
		return r.forward(c, msg, err)
	})

	robots.Post("/:id/motor", func(c *fiber.Ctx) error {
		var cmd struct {
			MotorID string  `json:"motorId"`
			Value   float64 `json:"value"`
		}
		if err := c.BodyParser(&cmd); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if cmd.MotorID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "motorId required"})
		}
		msg, err := protocol.NewMotorSetPosMessage(c.Params("id"), cmd.MotorID, cmd.Value)
		return r.forward(c, msg, err)
	})

	robots.Post("/:id/gripper", func(c *fiber.Ctx) error {
		var cmd struct {
			Value float64 `json:"value"`
			Speed float64 `json:"speed"`
			Force float64 `json:"force"`
		}
		if err := c.BodyParser(&cmd); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		msg, err := protocol.NewGripperSetPosMessage(c.Params("id"), cmd.Value, cmd.Speed, cmd.Force)
		return r.forward(c, msg, err)
	})
}

func (r *Relay) forward(c *fiber.Ctx, msg *protocol.Message, err error) error {
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	r.monitorMessage(msg)
	if err := r.sendToRobot(c.Params("id"), msg); err != nil {
		r.commandsDropped.Add(1)
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}
	r.commandsForwarded.Add(1)
	return c.JSON(fiber.Map{"status": "sent"})
}
