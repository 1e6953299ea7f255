// Package robot provides driver interfaces and implementations for the
// arm behind an agent.
//
// Interfaces are small and composable; consumers depend only on the part
// they use. Angles are degrees.
package robot

// JointController moves the actuated joints.
type JointController interface {
	SetJoint(index int, deg, speed float64) error
	SetJoints(deg []float64, speed float64) error
}

// GripperController drives the gripper.
type GripperController interface {
	SetGripper(value, speed, force float64) error
}

// PositionReader reports where the arm is.
type PositionReader interface {
	Position() (Position, error)
}

// Controller is the composite interface for a full arm driver.
type Controller interface {
	JointController
	GripperController
	PositionReader
	Close() error
}

// Ensure drivers implement Controller
var (
	_ Controller = (*SimArm)(nil)
	_ Controller = (*SerialArm)(nil)
)

// NumJoints is the number of actuated joints on the arm.
const NumJoints = 4

// Position is a snapshot of joint angles and gripper opening.
type Position struct {
	Joints  [NumJoints]float64 `json:"joints"`
	Gripper float64            `json:"gripper"`
}

// Limit is a joint's allowed range in degrees.
type Limit struct {
	Min, Max float64
}

// Clamp restricts v to the limit.
func (l Limit) Clamp(v float64) float64 {
	if v < l.Min {
		return l.Min
	}
	if v > l.Max {
		return l.Max
	}
	return v
}

// DefaultLimits are conservative ranges for a four-axis bench arm.
var DefaultLimits = [NumJoints]Limit{
	{-180, 180}, // base yaw
	{-90, 90},   // shoulder
	{-135, 135}, // elbow
	{-135, 135}, // wrist
}

// GripperLimit is the gripper opening range.
var GripperLimit = Limit{0, 100}
