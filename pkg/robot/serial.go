package robot

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// ErrClosed is returned by drivers after Close.
var ErrClosed = errors.New("robot: driver closed")

// DefaultSerialTimeout bounds a command round trip.
const DefaultSerialTimeout = time.Second

// SerialArm drives an arm controller board over a line protocol:
//
//	J <index> <deg> <speed>            move one joint
//	A <d0> <d1> <d2> <d3> <speed>      move all joints
//	G <value> <speed> <force>          gripper
//	P                                  query, answered "P <d0> <d1> <d2> <d3> <gripper>"
//
// Every command is answered by one line: "OK", "ERR <reason>" or the P
// reply.
type SerialArm struct {
	mu     sync.Mutex
	port   io.ReadWriteCloser
	reader *bufio.Reader
	limits [NumJoints]Limit
	closed bool
}

// OpenSerial opens the controller board on portName.
func OpenSerial(portName string, baud int) (*SerialArm, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(DefaultSerialTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	arm := NewSerialArm(port)
	if _, err := arm.Position(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to talk to arm on %s: %w", portName, err)
	}
	return arm, nil
}

// NewSerialArm wraps an already open port.
func NewSerialArm(port io.ReadWriteCloser) *SerialArm {
	return &SerialArm{
		port:   port,
		reader: bufio.NewReader(port),
		limits: DefaultLimits,
	}
}

// SetJoint moves one joint.
func (a *SerialArm) SetJoint(index int, deg, speed float64) error {
	if index < 0 || index >= NumJoints {
		return fmt.Errorf("joint index %d out of range", index)
	}
	deg = a.limits[index].Clamp(deg)
	_, err := a.command(fmt.Sprintf("J %d %s %s", index, ftoa(deg), ftoa(speed)))
	return err
}

// SetJoints moves all actuated joints. Missing angles keep the current
// position; extra angles are ignored.
func (a *SerialArm) SetJoints(deg []float64, speed float64) error {
	target, err := a.Position()
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("A")
	for i := 0; i < NumJoints; i++ {
		v := target.Joints[i]
		if i < len(deg) {
			v = a.limits[i].Clamp(deg[i])
		}
		b.WriteString(" " + ftoa(v))
	}
	b.WriteString(" " + ftoa(speed))

	_, err = a.command(b.String())
	return err
}

// SetGripper sets the gripper opening.
func (a *SerialArm) SetGripper(value, speed, force float64) error {
	value = GripperLimit.Clamp(value)
	_, err := a.command(fmt.Sprintf("G %s %s %s", ftoa(value), ftoa(speed), ftoa(force)))
	return err
}

// Position queries the board.
func (a *SerialArm) Position() (Position, error) {
	reply, err := a.command("P")
	if err != nil {
		return Position{}, err
	}
	return parsePosition(reply)
}

// Close closes the port.
func (a *SerialArm) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.port.Close()
}

// command writes one line and reads one reply line.
func (a *SerialArm) command(line string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return "", ErrClosed
	}
	if _, err := io.WriteString(a.port, line+"\n"); err != nil {
		return "", fmt.Errorf("write %q: %w", line, err)
	}

	reply, err := a.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read reply to %q: %w", line, err)
	}
	reply = strings.TrimSpace(reply)

	switch {
	case reply == "OK", strings.HasPrefix(reply, "P "):
		return reply, nil
	case strings.HasPrefix(reply, "ERR"):
		return "", fmt.Errorf("arm rejected %q: %s", line, strings.TrimSpace(strings.TrimPrefix(reply, "ERR")))
	default:
		return "", fmt.Errorf("unexpected reply to %q: %q", line, reply)
	}
}

func parsePosition(reply string) (Position, error) {
	fields := strings.Fields(reply)
	if len(fields) != NumJoints+2 || fields[0] != "P" {
		return Position{}, fmt.Errorf("malformed position %q", reply)
	}

	var p Position
	for i := 0; i < NumJoints; i++ {
		v, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return Position{}, fmt.Errorf("joint %d: %w", i, err)
		}
		p.Joints[i] = v
	}
	g, err := strconv.ParseFloat(fields[NumJoints+1], 64)
	if err != nil {
		return Position{}, fmt.Errorf("gripper: %w", err)
	}
	p.Gripper = g
	return p, nil
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
