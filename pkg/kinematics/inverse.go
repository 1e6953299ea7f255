package kinematics

import (
	"math"

	"github.com/golang/geo/r3"
)

// Rotation is a target tool orientation in radians. R2 tilts the tool,
// R1 and R3 roll it and do not change the tip position.
type Rotation struct {
	R1, R2, R3 float64
}

// Solver maps a target position and orientation onto joint angles.
// Unreachable targets yield NaN entries; there is no other failure signal.
type Solver interface {
	Name() string
	Inverse(target r3.Vector, rot Rotation, p Params) Joints
}

// SolverFor returns the solver named by a config's inverse type.
func SolverFor(inverseType string) Solver {
	if inverseType == InverseUR {
		return UR{}
	}
	return Basic{}
}

// Basic treats R2 = 0 as a horizontal tool pointing away from the base
// and prefers the positive elbow branch.
type Basic struct{}

// Name implements Solver.
func (Basic) Name() string { return InverseBasic }

// Inverse implements Solver.
func (Basic) Inverse(target r3.Vector, rot Rotation, p Params) Joints {
	elbow := 1.0
	if p.Flip {
		elbow = -1
	}
	j := solveArm(target, math.Pi/2+rot.R2, elbow, p)
	j[4] = rot.R1
	j[5] = rot.R3
	return adjust(j, p)
}

// UR treats R2 = 0 as the tool pointing straight down and prefers the
// negative elbow branch. With the tool vertical R3 is the roll about it.
type UR struct{}

// Name implements Solver.
func (UR) Name() string { return InverseUR }

// Inverse implements Solver.
func (UR) Inverse(target r3.Vector, rot Rotation, p Params) Joints {
	elbow := -1.0
	if p.Flip {
		elbow = 1
	}
	j := solveArm(target, math.Pi-rot.R2, elbow, p)
	j[4] = rot.R3
	j[5] = rot.R1
	return adjust(j, p)
}

// solveArm solves base yaw and the three pitch joints for a tool held at
// pitch (measured from vertical). elbow selects the sign of j2.
func solveArm(target r3.Vector, pitch, elbow float64, p Params) Joints {
	var j Joints

	// Horizontal distance of the arm plane from the base axis. Negative
	// radicands mean the target sits inside the y0 offset: NaN.
	rt := math.Sqrt(target.X*target.X + target.Y*target.Y - p.Y0*p.Y0)
	j[0] = math.Atan2(target.Y, target.X) - math.Atan2(p.Y0, rt)

	tool := p.ToolLength()
	rw := rt - p.X0 - tool*math.Sin(pitch)
	hw := target.Z - p.Base - tool*math.Cos(pitch)

	// Acos of anything outside [-1, 1] is NaN: wrist out of reach.
	c := (rw*rw + hw*hw - p.V1*p.V1 - p.V2*p.V2) / (2 * p.V1 * p.V2)
	q2 := elbow * math.Acos(c)
	phi1 := math.Atan2(rw, hw) - math.Atan2(p.V2*math.Sin(q2), p.V1+p.V2*math.Cos(q2))

	j[1] = phi1
	j[2] = q2
	j[3] = pitch - phi1 - q2
	return j
}

func adjust(j Joints, p Params) Joints {
	for i := range j {
		j[i] += p.Adjustments[i]
	}
	return j
}
