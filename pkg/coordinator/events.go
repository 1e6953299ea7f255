package coordinator

import (
	"encoding/json"

	"github.com/golang/geo/r3"
	"github.com/teslashibe/go-rebel/pkg/kinematics"
	"github.com/teslashibe/go-rebel/pkg/protocol"
)

// OnRosterUpdate replaces the registry wholesale and rederives the
// connection of the selected robot from it.
func (c *Coordinator) OnRosterUpdate(roster protocol.Roster) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.robots = roster.Clone()
	c.connected = c.robots.Has(c.session.RobotID)
}

// OnStateUpdate replaces the state entry for robotID.
func (c *Coordinator) OnStateUpdate(robotID string, state json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.states[robotID] = state
}

// OnConnected marks the selected robot connected and clears its errors.
// Other robots are ignored.
func (c *Coordinator) OnConnected(robotID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if robotID != c.session.RobotID {
		return
	}
	delete(c.errors, FieldRobotID)
	delete(c.errors, FieldMotorID)
	c.connected = true
}

// OnDisconnected marks the selected robot disconnected and flags the robot
// and motor fields. Other robots are ignored.
func (c *Coordinator) OnDisconnected(robotID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if robotID != c.session.RobotID {
		return
	}
	c.errors[FieldRobotID] = ErrDisconnected
	c.errors[FieldMotorID] = ErrDisconnected
	c.connected = false
}

func (c *Coordinator) handleRobots(msg *protocol.Message) {
	roster, err := msg.GetRoster()
	if err != nil {
		c.logger.Warn("bad roster", "error", err)
		return
	}
	c.OnRosterUpdate(roster)
}

func (c *Coordinator) handleRobot(msg *protocol.Message) {
	st, err := msg.GetRobotState()
	if err != nil {
		c.logger.Warn("bad robot state", "error", err)
		return
	}
	c.OnStateUpdate(st.ID, st.State)
}

func (c *Coordinator) handleConnected(msg *protocol.Message) {
	id, err := msg.GetRobotID()
	if err != nil {
		c.logger.Warn("bad robotConnected", "error", err)
		return
	}
	c.OnConnected(id)
}

func (c *Coordinator) handleDisconnected(msg *protocol.Message) {
	id, err := msg.GetRobotID()
	if err != nil {
		c.logger.Warn("bad robotDisconnected", "error", err)
		return
	}
	c.OnDisconnected(id)
}

// =============================================================================
// Session controls and accessors
// =============================================================================

// SelectRobot switches the session to robotID.
func (c *Coordinator) SelectRobot(robotID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session.RobotID = robotID
	c.connected = c.robots.Has(robotID)
}

// SetRunOnRobot toggles whether arm commands reach the robot.
func (c *Coordinator) SetRunOnRobot(run bool) {
	c.mu.Lock()
	c.session.RunOnRobot = run
	c.mu.Unlock()
}

// SetGeometry replaces the geometry used by later intents.
func (c *Coordinator) SetGeometry(g kinematics.Config) {
	c.mu.Lock()
	c.session.Geometry = g
	c.mu.Unlock()
}

// Session returns a copy of the session.
func (c *Coordinator) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Connected reports the connection of the selected robot.
func (c *Coordinator) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Status reports what is known about robotID. Robots missing from the
// roster are unknown, not disconnected.
func (c *Coordinator) Status(robotID string) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	inRoster := c.robots.Has(robotID)
	if robotID == c.session.RobotID {
		switch {
		case c.connected:
			return StatusConnected
		case inRoster:
			return StatusDisconnected
		}
		return StatusUnknown
	}
	if inRoster {
		return StatusConnected
	}
	return StatusUnknown
}

// Robots returns a copy of the roster.
func (c *Coordinator) Robots() protocol.Roster {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.robots.Clone()
}

// State returns the last state snapshot for robotID.
func (c *Coordinator) State(robotID string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[robotID]
	return st, ok
}

// Display returns a copy of the display state.
func (c *Coordinator) Display() DisplayState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.display
}

// FieldError returns the validation error on a form field, if any.
func (c *Coordinator) FieldError(field string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors[field]
}

// Pose returns the last forward kinematics result.
func (c *Coordinator) Pose() r3.Vector {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pose
}

// RefreshPending reports whether a pose refresh is scheduled.
func (c *Coordinator) RefreshPending() bool {
	return c.refresh.Pending()
}
