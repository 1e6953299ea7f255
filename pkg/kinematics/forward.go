package kinematics

import (
	"math"

	"github.com/golang/geo/r3"
)

// Forward returns the tool tip position for the given joints.
//
// The zero pose is the arm standing straight up. j0 yaws about +z, j1..j3
// pitch about +y measured from vertical and j4, j5 roll about the tool
// axis, so they never move the tip.
func Forward(j Joints, p Params) r3.Vector {
	var a Joints
	for i := range j {
		a[i] = j[i] - p.Adjustments[i]
	}

	phi1 := a[1]
	phi2 := phi1 + a[2]
	phi3 := phi2 + a[3]
	tool := p.ToolLength()

	r := p.X0 + p.V1*math.Sin(phi1) + p.V2*math.Sin(phi2) + tool*math.Sin(phi3)
	h := p.Base + p.V1*math.Cos(phi1) + p.V2*math.Cos(phi2) + tool*math.Cos(phi3)

	s, c := math.Sincos(a[0])
	return r3.Vector{
		X: r*c - p.Y0*s,
		Y: r*s + p.Y0*c,
		Z: h,
	}
}

// ForwardDegrees is Forward for the four actuated joints given in degrees,
// with both tool rolls at zero.
func ForwardDegrees(deg [ActuatedJoints]float64, p Params) r3.Vector {
	var j Joints
	for i, d := range deg {
		j[i] = Radians(d)
	}
	return Forward(j, p)
}
