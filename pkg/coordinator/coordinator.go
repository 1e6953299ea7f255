// Package coordinator turns operator intents into display state and gated
// robot commands, and folds inbound robot events back into that state.
//
// Every mutation runs under one mutex. Commands are fire-and-forget: when
// the gate is closed the intent is dropped, never queued.
package coordinator

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/teslashibe/go-rebel/internal/log"
	"github.com/teslashibe/go-rebel/pkg/debounce"
	"github.com/teslashibe/go-rebel/pkg/kinematics"
	"github.com/teslashibe/go-rebel/pkg/protocol"
)

// Transport is the event channel to the relay.
type Transport interface {
	Emit(msg *protocol.Message) error
	Subscribe(t protocol.MessageType, h func(*protocol.Message)) (unsubscribe func())
}

// Coordinator owns the session, the robot registry and the display state.
type Coordinator struct {
	transport Transport
	refresh   *debounce.Debouncer
	logger    *slog.Logger

	mu        sync.Mutex
	session   Session
	robots    protocol.Roster
	states    map[string]json.RawMessage
	connected bool
	display   DisplayState
	errors    map[string]string
	pose      r3.Vector
	onPose    func(r3.Vector)
	unsubs    []func()
	closed    bool
}

// New creates a coordinator and subscribes it to inbound robot events.
// Call Close to unsubscribe.
func New(t Transport, s Session) *Coordinator {
	window := s.Debounce
	if window <= 0 {
		window = DefaultDebounce
	}

	c := &Coordinator{
		transport: t,
		refresh:   debounce.New(s.Clock, window),
		logger:    log.With("component", "coordinator"),
		session:   s,
		robots:    protocol.Roster{},
		states:    make(map[string]json.RawMessage),
		errors:    make(map[string]string),
	}

	c.unsubs = []func(){
		t.Subscribe(protocol.TypeRobots, c.handleRobots),
		t.Subscribe(protocol.TypeRobot, c.handleRobot),
		t.Subscribe(protocol.TypeRobotConnected, c.handleConnected),
		t.Subscribe(protocol.TypeRobotDisconnected, c.handleDisconnected),
	}
	return c
}

// Close unsubscribes from the transport and cancels a pending refresh.
// Intents after Close are ignored.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	c.refresh.Stop()
}

// RegisterSession announces the session's robot. An empty robotID falls
// back to the selected robot, then to the default id; the result becomes
// the selection if none was made.
func (c *Coordinator) RegisterSession(robotID string) error {
	c.mu.Lock()
	if robotID == "" {
		robotID = c.session.RobotID
	}
	if robotID == "" {
		robotID = protocol.DefaultRobotID
	}
	if c.session.RobotID == "" {
		c.session.RobotID = robotID
		c.connected = c.robots.Has(robotID)
	}
	c.mu.Unlock()

	msg, err := protocol.NewRegisterMessage(Descriptor(robotID))
	if err != nil {
		return err
	}
	return c.transport.Emit(msg)
}

// MoveToPose solves the arm for a target position and orientation
// (degrees). A solution with any NaN is dropped without side effects and
// MoveToPose returns false.
func (c *Coordinator) MoveToPose(x, y, z, r1, r2, r3, speed float64) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}

	geom := c.session.Geometry
	solver := kinematics.SolverFor(geom.InverseType)
	rot := kinematics.Rotation{
		R1: kinematics.Radians(r1),
		R2: kinematics.Radians(r2),
		R3: kinematics.Radians(r3),
	}
	joints := solver.Inverse(r3Vector(x, y, z), rot, geom.Params())
	if !joints.Valid() {
		c.mu.Unlock()
		c.logger.Debug("inverse kinematics has no solution", "x", x, "y", y, "z", z, "solver", solver.Name())
		return false
	}

	deg := joints.Degrees()
	for i := 0; i < kinematics.ActuatedJoints; i++ {
		c.display.Joints[i] = deg[i]
	}
	c.display.X, c.display.Y, c.display.Z = x, y, z
	c.display.R1, c.display.R2, c.display.R3 = r1, r2, r3

	var msg *protocol.Message
	var err error
	if c.armGateOpen() {
		msg, err = protocol.NewRobotSetAnglesMessage(c.session.RobotID, deg[:kinematics.ActuatedJoints], speed)
	}
	c.mu.Unlock()

	c.emit(msg, err)
	c.scheduleRefresh()
	return true
}

// SetJointAngles sets joints by position (degrees). Any NaN drops the
// whole call and SetJointAngles returns false.
func (c *Coordinator) SetJointAngles(angles []float64, speed float64) bool {
	if kinematics.HasNaN(angles) {
		return false
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}

	for i, a := range angles {
		if i >= kinematics.NumJoints {
			break
		}
		c.display.Joints[i] = a
	}

	var msg *protocol.Message
	var err error
	if c.armGateOpen() {
		out := make([]float64, len(angles))
		copy(out, angles)
		msg, err = protocol.NewRobotSetAnglesMessage(c.session.RobotID, out, speed)
	}
	c.mu.Unlock()

	c.emit(msg, err)
	c.scheduleRefresh()
	return true
}

// SetJoint jogs one joint on the robot. The display is left to the caller
// and no pose refresh is scheduled.
func (c *Coordinator) SetJoint(motorID string, value float64) {
	c.mu.Lock()
	var msg *protocol.Message
	var err error
	if !c.closed && c.armGateOpen() {
		msg, err = protocol.NewMotorSetPosMessage(c.session.RobotID, motorID, value)
	}
	c.mu.Unlock()

	c.emit(msg, err)
}

// SetGripper always updates the display. The command only needs a live
// connection; run mode does not apply to the gripper.
func (c *Coordinator) SetGripper(value, speed, force float64) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.display.Gripper = value

	var msg *protocol.Message
	var err error
	if c.connected {
		msg, err = protocol.NewGripperSetPosMessage(c.session.RobotID, value, speed, force)
	}
	c.mu.Unlock()

	c.emit(msg, err)
}

// UpdateConfig changes one config field on the connected robot.
func (c *Coordinator) UpdateConfig(key string, value interface{}) {
	c.mu.Lock()
	var msg *protocol.Message
	var err error
	if !c.closed && c.connected {
		msg, err = protocol.NewRobotUpdateConfigMessage(c.session.RobotID, key, value)
	}
	c.mu.Unlock()

	c.emit(msg, err)
}

// SaveConfig asks the connected robot to persist its config.
func (c *Coordinator) SaveConfig() {
	c.mu.Lock()
	var msg *protocol.Message
	var err error
	if !c.closed && c.connected {
		msg, err = protocol.NewRobotWriteConfigMessage(c.session.RobotID)
	}
	c.mu.Unlock()

	c.emit(msg, err)
}

// RecomputeForwardPose runs forward kinematics on the displayed j0..j3
// and publishes the result.
func (c *Coordinator) RecomputeForwardPose() r3.Vector {
	c.mu.Lock()
	var deg [kinematics.ActuatedJoints]float64
	copy(deg[:], c.display.Joints[:kinematics.ActuatedJoints])
	pose := kinematics.ForwardDegrees(deg, c.session.Geometry.Params())
	c.pose = pose
	cb := c.onPose
	c.mu.Unlock()

	if cb != nil {
		cb(pose)
	}
	return pose
}

// OnPose sets the observer for recomputed poses.
func (c *Coordinator) OnPose(fn func(r3.Vector)) {
	c.mu.Lock()
	c.onPose = fn
	c.mu.Unlock()
}

// armGateOpen must be called with mu held.
func (c *Coordinator) armGateOpen() bool {
	return c.connected && c.session.RunOnRobot
}

func (c *Coordinator) scheduleRefresh() {
	c.refresh.Trigger(func() { c.RecomputeForwardPose() })
}

func (c *Coordinator) emit(msg *protocol.Message, err error) {
	if err != nil {
		c.logger.Warn("failed to build command", "error", err)
		return
	}
	if msg == nil {
		return
	}
	if err := c.transport.Emit(msg); err != nil {
		c.logger.Warn("failed to emit command", "type", msg.Type, "error", err)
	}
}

func r3Vector(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}
