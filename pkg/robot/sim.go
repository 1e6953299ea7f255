package robot

import (
	"fmt"
	"sync"
)

// SimArm is an in-memory arm that reaches every target instantly.
type SimArm struct {
	mu       sync.Mutex
	pos      Position
	limits   [NumJoints]Limit
	commands uint64
	closed   bool
}

// NewSimArm creates a simulated arm at the zero pose.
func NewSimArm() *SimArm {
	return &SimArm{limits: DefaultLimits}
}

// SetJoint moves one joint, clamped to its limit.
func (s *SimArm) SetJoint(index int, deg, _ float64) error {
	if index < 0 || index >= NumJoints {
		return fmt.Errorf("joint index %d out of range", index)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.pos.Joints[index] = s.limits[index].Clamp(deg)
	s.commands++
	return nil
}

// SetJoints moves the first len(deg) joints. Extra angles are ignored.
func (s *SimArm) SetJoints(deg []float64, _ float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for i := 0; i < len(deg) && i < NumJoints; i++ {
		s.pos.Joints[i] = s.limits[i].Clamp(deg[i])
	}
	s.commands++
	return nil
}

// SetGripper sets the gripper opening.
func (s *SimArm) SetGripper(value, _, _ float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.pos.Gripper = GripperLimit.Clamp(value)
	s.commands++
	return nil
}

// Position returns the current pose.
func (s *SimArm) Position() (Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos, nil
}

// Commands returns how many commands were applied.
func (s *SimArm) Commands() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commands
}

// Close marks the arm closed.
func (s *SimArm) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
