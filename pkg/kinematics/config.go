// Package kinematics converts between joint angles and end-effector
// positions for a 4-axis arm with a yaw base and three pitch joints.
//
// Angles are radians unless a name says otherwise. Lengths are in whatever
// unit the geometry config uses.
package kinematics

import (
	"math"
	"strconv"
)

// Inverse solver variants selectable from Config.InverseType.
const (
	InverseBasic = "basic"
	InverseUR    = "UR"
)

// NumJoints is the number of solver joints. Only the first ActuatedJoints
// are driven on the arm, the rest are tool rolls.
const (
	NumJoints      = 6
	ActuatedJoints = 4
)

// Config is the robot geometry as the operator configures it.
// Adjustments are per-joint trims in degrees keyed "j0".."j5".
type Config struct {
	Base        float64            `yaml:"base" json:"base"`
	V0          float64            `yaml:"v0" json:"v0"`
	V1          float64            `yaml:"v1" json:"v1"`
	V2          float64            `yaml:"v2" json:"v2"`
	V3          float64            `yaml:"v3" json:"v3"`
	EndEffector float64            `yaml:"endEffector" json:"endEffector"`
	X0          float64            `yaml:"x0" json:"x0"`
	Y0          float64            `yaml:"y0" json:"y0"`
	InverseType string             `yaml:"inverseType" json:"inverseType"`
	Flip        bool               `yaml:"flip" json:"flip"`
	Adjustments map[string]float64 `yaml:"adjustments,omitempty" json:"adjustments,omitempty"`
}

// DefaultConfig returns the bench geometry used when no file is configured.
func DefaultConfig() Config {
	return Config{
		Base:        10,
		V0:          5,
		V1:          5,
		V2:          5,
		V3:          2,
		EndEffector: 1,
		InverseType: InverseBasic,
	}
}

// Params is the solver's view of the geometry. V1..V4 are the config's
// V0..V3 shifted by one, V5 is always zero and V6 carries the end effector.
type Params struct {
	Base, V1, V2, V3, V4, V5, V6 float64
	X0, Y0                       float64
	Flip                         bool
	Adjustments                  Joints
}

// Params maps the config onto solver parameters.
func (c Config) Params() Params {
	p := Params{
		Base: c.Base,
		V1:   c.V0,
		V2:   c.V1,
		V3:   c.V2,
		V4:   c.V3,
		V5:   0,
		V6:   0 + c.EndEffector,
		X0:   c.X0,
		Y0:   c.Y0,
		Flip: c.Flip,
	}
	for i := range p.Adjustments {
		p.Adjustments[i] = Radians(c.Adjustments[jointName(i)])
	}
	return p
}

// ToolLength is the distance from the wrist pitch axis to the tool tip.
func (p Params) ToolLength() float64 {
	return p.V3 + p.V4 + p.V5 + p.V6
}

// Joints holds one angle per solver joint.
type Joints [NumJoints]float64

// Degrees returns a copy of all joints converted to degrees.
func (j Joints) Degrees() []float64 {
	out := make([]float64, NumJoints)
	for i, a := range j {
		out[i] = Degrees(a)
	}
	return out
}

// Valid reports whether no joint is NaN.
func (j Joints) Valid() bool {
	return !HasNaN(j[:])
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// HasNaN reports whether any angle is NaN.
func HasNaN(angles []float64) bool {
	for _, a := range angles {
		if math.IsNaN(a) {
			return true
		}
	}
	return false
}

func jointName(i int) string {
	return "j" + strconv.Itoa(i)
}
