// Package agent runs the robot side of the relay: it registers an arm,
// applies operator commands to its driver and reports state snapshots.
package agent

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/golang/geo/r3"
	"github.com/teslashibe/go-rebel/internal/log"
	"github.com/teslashibe/go-rebel/pkg/kinematics"
	"github.com/teslashibe/go-rebel/pkg/protocol"
	"github.com/teslashibe/go-rebel/pkg/robot"
	"go.viam.com/rdk/referenceframe"
)

// DefaultDebounce coalesces state reports after bursts of commands.
const DefaultDebounce = 50 * time.Millisecond

// Motors are the motor ids the agent announces, one per actuated joint.
var Motors = []string{"j0", "j1", "j2", "j3"}

// Transport is the event channel to the relay.
type Transport interface {
	Emit(msg *protocol.Message) error
	Subscribe(t protocol.MessageType, h func(*protocol.Message)) (unsubscribe func())
}

// Config holds agent data; flag parsing happens in cmd/rebel-agent.
type Config struct {
	RobotID      string
	Geometry     kinematics.Config
	SettingsFile string
	Debounce     time.Duration
	// ReportRate overrides the settings' report rate when positive.
	ReportRate time.Duration
}

// State is the snapshot published in robot events.
type State struct {
	Joints   []float64 `json:"joints"`
	Gripper  float64   `json:"gripper"`
	Pose     Pose      `json:"pose"`
	Settings Settings  `json:"settings"`
}

// Pose is the tool tip position of the arm model.
type Pose struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Agent connects one arm to the relay.
type Agent struct {
	cfg       Config
	transport Transport
	arm       robot.Controller
	model     referenceframe.Model
	params    kinematics.Params
	logger    *slog.Logger

	reporter  *robot.Reporter
	debounced func(func())

	mu       sync.Mutex
	settings Settings
	unsubs   []func()
	started  bool
	closed   bool
}

// New creates an agent for arm. Settings are loaded from cfg.SettingsFile
// when it exists.
func New(t Transport, arm robot.Controller, cfg Config) (*Agent, error) {
	if cfg.RobotID == "" {
		cfg.RobotID = protocol.DefaultRobotID
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	settings, err := LoadSettings(cfg.SettingsFile)
	if err != nil {
		return nil, err
	}

	params := cfg.Geometry.Params()
	model, err := kinematics.NewModel("rebel-"+cfg.RobotID, params)
	if err != nil {
		return nil, fmt.Errorf("build arm model: %w", err)
	}

	a := &Agent{
		cfg:       cfg,
		transport: t,
		arm:       arm,
		model:     model,
		params:    params,
		logger:    log.With("component", "agent", "robot", cfg.RobotID),
		debounced: debounce.New(cfg.Debounce),
		settings:  settings,
	}

	rate := settings.ReportRate
	if cfg.ReportRate > 0 {
		rate = cfg.ReportRate
	}
	if rate <= 0 {
		rate = DefaultSettings().ReportRate
	}
	a.reporter = robot.NewReporter(arm, rate, a.publish)
	return a, nil
}

// Start registers the arm, subscribes to commands and starts the periodic
// reporter.
func (a *Agent) Start() error {
	a.mu.Lock()
	if a.started || a.closed {
		a.mu.Unlock()
		return nil
	}
	a.started = true
	a.unsubs = []func(){
		a.transport.Subscribe(protocol.TypeMotorSetPos, a.handleMotorSetPos),
		a.transport.Subscribe(protocol.TypeRobotSetAngles, a.handleSetAngles),
		a.transport.Subscribe(protocol.TypeGripperSetPos, a.handleGripper),
		a.transport.Subscribe(protocol.TypeRobotUpdateConfig, a.handleUpdateConfig),
		a.transport.Subscribe(protocol.TypeRobotWriteConfig, a.handleWriteConfig),
	}
	a.mu.Unlock()

	d := protocol.NewDescriptor(a.cfg.RobotID, protocol.DefaultKey, protocol.DefaultRobotType, Motors...)
	msg, err := protocol.NewRegisterMessage(d)
	if err != nil {
		return err
	}
	if err := a.transport.Emit(msg); err != nil {
		return fmt.Errorf("register robot %s: %w", a.cfg.RobotID, err)
	}

	go a.reporter.Run()
	a.logger.Info("agent started", "reportRate", a.Settings().ReportRate)
	return nil
}

// Close stops reporting and unsubscribes. The arm is left to the caller.
func (a *Agent) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	unsubs := a.unsubs
	a.unsubs = nil
	a.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	a.reporter.Stop()
}

// Settings returns a copy of the current settings.
func (a *Agent) Settings() Settings {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.settings
	s.Home = append([]float64(nil), a.settings.Home...)
	return s
}

// ReporterStats exposes the periodic reporter counters.
func (a *Agent) ReporterStats() robot.Stats {
	return a.reporter.Stats()
}

// Snapshot reads the arm and builds a state snapshot.
func (a *Agent) Snapshot() (State, error) {
	pos, err := a.arm.Position()
	if err != nil {
		return State{}, err
	}
	return a.state(pos)
}

// Home moves the arm to the configured home angles.
func (a *Agent) Home() error {
	s := a.Settings()
	if err := a.arm.SetJoints(s.Home, s.Speed); err != nil {
		return err
	}
	a.afterCommand()
	return nil
}

// =============================================================================
// Command handlers
// =============================================================================

func (a *Agent) handleMotorSetPos(msg *protocol.Message) {
	cmd, err := msg.GetMotorSetPos()
	if err != nil || !a.mine(cmd.RobotID) {
		return
	}
	index, err := motorIndex(cmd.MotorID)
	if err != nil {
		a.logger.Warn("bad motor", "motor", cmd.MotorID, "error", err)
		return
	}
	if err := a.arm.SetJoint(index, cmd.Value, a.Settings().Speed); err != nil {
		a.logger.Warn("set joint failed", "motor", cmd.MotorID, "error", err)
		return
	}
	a.afterCommand()
}

func (a *Agent) handleSetAngles(msg *protocol.Message) {
	cmd, err := msg.GetRobotSetAngles()
	if err != nil || !a.mine(cmd.RobotID) {
		return
	}
	speed := cmd.Speed
	if speed <= 0 {
		speed = a.Settings().Speed
	}
	if err := a.arm.SetJoints(cmd.Angles, speed); err != nil {
		a.logger.Warn("set angles failed", "angles", cmd.Angles, "error", err)
		return
	}
	a.afterCommand()
}

func (a *Agent) handleGripper(msg *protocol.Message) {
	cmd, err := msg.GetGripperSetPos()
	if err != nil || !a.mine(cmd.RobotID) {
		return
	}
	s := a.Settings()
	speed, force := cmd.Speed, cmd.Force
	if speed <= 0 {
		speed = s.Speed
	}
	if force <= 0 {
		force = s.GripperForce
	}
	if err := a.arm.SetGripper(cmd.Value, speed, force); err != nil {
		a.logger.Warn("set gripper failed", "error", err)
		return
	}
	a.afterCommand()
}

func (a *Agent) handleUpdateConfig(msg *protocol.Message) {
	cmd, err := msg.GetRobotUpdateConfig()
	if err != nil || !a.mine(cmd.RobotID) {
		return
	}

	a.mu.Lock()
	next, err := a.settings.Apply(cmd.Key, cmd.Value)
	if err == nil {
		a.settings = next
	}
	a.mu.Unlock()

	if err != nil {
		a.logger.Warn("config update rejected", "key", cmd.Key, "error", err)
		return
	}
	a.logger.Info("config updated", "key", cmd.Key, "value", cmd.Value)
	a.afterCommand()
}

func (a *Agent) handleWriteConfig(msg *protocol.Message) {
	cmd, err := msg.GetRobotWriteConfig()
	if err != nil || !a.mine(cmd.RobotID) {
		return
	}
	if a.cfg.SettingsFile == "" {
		a.logger.Warn("no settings file configured, config not saved")
		return
	}
	if err := a.Settings().Save(a.cfg.SettingsFile); err != nil {
		a.logger.Error("config save failed", "error", err)
		return
	}
	a.logger.Info("config saved", "file", a.cfg.SettingsFile)
}

// =============================================================================
// Reporting
// =============================================================================

// afterCommand schedules a state report once a burst of commands settles.
func (a *Agent) afterCommand() {
	a.debounced(a.publishNow)
}

func (a *Agent) publishNow() {
	pos, err := a.arm.Position()
	if err != nil {
		a.logger.Warn("position read failed", "error", err)
		return
	}
	a.publish(pos)
}

func (a *Agent) publish(pos robot.Position) {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return
	}

	st, err := a.state(pos)
	if err != nil {
		a.logger.Warn("pose failed", "error", err)
	}
	msg, err := protocol.NewRobotStateMessage(a.cfg.RobotID, st)
	if err != nil {
		a.logger.Warn("failed to build state", "error", err)
		return
	}
	if err := a.transport.Emit(msg); err != nil {
		a.logger.Debug("state not sent", "error", err)
	}
}

func (a *Agent) state(pos robot.Position) (State, error) {
	st := State{
		Joints:   append([]float64(nil), pos.Joints[:]...),
		Gripper:  pos.Gripper,
		Settings: a.Settings(),
	}

	var j kinematics.Joints
	for i, deg := range pos.Joints {
		j[i] = kinematics.Radians(deg)
	}
	p, err := kinematics.ModelPosition(a.model, j, a.params)
	if err != nil {
		return st, err
	}
	st.Pose = poseOf(p)
	return st, nil
}

func (a *Agent) mine(robotID string) bool {
	return robotID == a.cfg.RobotID
}

func poseOf(v r3.Vector) Pose {
	return Pose{X: v.X, Y: v.Y, Z: v.Z}
}

// motorIndex maps "j2" or "2" to joint 2.
func motorIndex(id string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(id, "j"))
	if err != nil {
		return 0, fmt.Errorf("unknown motor %q", id)
	}
	if n < 0 || n >= robot.NumJoints {
		return 0, fmt.Errorf("motor %q out of range", id)
	}
	return n, nil
}
