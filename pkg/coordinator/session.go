package coordinator

import (
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/teslashibe/go-rebel/pkg/kinematics"
	"github.com/teslashibe/go-rebel/pkg/protocol"
)

// DefaultDebounce is the forward-kinematics refresh window.
const DefaultDebounce = 100 * time.Millisecond

// Form fields that carry connection errors.
const (
	FieldRobotID = "robotId"
	FieldMotorID = "motorId"

	ErrDisconnected = "Disconnected"
)

// Motors are the actuated joints announced at registration.
var Motors = []string{"j0", "j1", "j2", "j3"}

// Session is the operator context a Coordinator works in.
type Session struct {
	RobotID    string
	RunOnRobot bool
	Geometry   kinematics.Config

	// Debounce is the pose refresh window; zero means DefaultDebounce.
	Debounce time.Duration
	// Clock drives the refresh timer; nil means wall time.
	Clock clock.Clock
}

// Descriptor is the fixed registration payload for robotID.
func Descriptor(robotID string) protocol.RobotDescriptor {
	if robotID == "" {
		robotID = protocol.DefaultRobotID
	}
	return protocol.NewDescriptor(robotID, protocol.DefaultKey, protocol.DefaultRobotType, Motors...)
}

// DisplayState mirrors the operator's form. Angles are degrees.
type DisplayState struct {
	Joints  [kinematics.NumJoints]float64 `json:"joints"`
	X       float64                       `json:"x"`
	Y       float64                       `json:"y"`
	Z       float64                       `json:"z"`
	R1      float64                       `json:"r1"`
	R2      float64                       `json:"r2"`
	R3      float64                       `json:"r3"`
	Gripper float64                       `json:"gripper"`
}

// Values flattens the state into form values keyed j0..j5, x, y, z,
// r1..r3 and gripper.
func (d DisplayState) Values() map[string]float64 {
	v := map[string]float64{
		"x":       d.X,
		"y":       d.Y,
		"z":       d.Z,
		"r1":      d.R1,
		"r2":      d.R2,
		"r3":      d.R3,
		"gripper": d.Gripper,
	}
	for i, j := range d.Joints {
		v["j"+strconv.Itoa(i)] = j
	}
	return v
}

// Status is what the coordinator knows about a robot's link.
type Status int

const (
	StatusUnknown Status = iota
	StatusConnected
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
