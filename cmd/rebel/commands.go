package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"github.com/golang/geo/r3"
	"github.com/teslashibe/go-rebel/internal/config"
	"github.com/teslashibe/go-rebel/pkg/kinematics"
	"github.com/teslashibe/go-rebel/pkg/protocol"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

func parseFloats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", errUsage, a)
		}
		out[i] = v
	}
	return out, nil
}

// parseValue reads a config value as a number, a bool or a string.
func parseValue(s string) interface{} {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseBool(s); err == nil {
		return v
	}
	return s
}

func StatusAction(c *cli.Context) error {
	s, err := connect(c)
	if err != nil {
		return err
	}
	defer s.Close()

	roster := s.coord.Robots()
	ids := make([]string, 0, len(roster))
	for id := range roster {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Printf("selected robot %s: %s\n", s.cfg.RobotID, s.coord.Status(s.cfg.RobotID))
	for _, id := range ids {
		d := roster[id]
		fmt.Printf("  %-8s %-12s %d motors\n", id, d.RobotType, len(d.Motors))
	}
	if len(ids) == 0 {
		fmt.Println("  no robots registered")
	}
	return nil
}

func MoveAction(c *cli.Context) error {
	if c.NArg() != 3 && c.NArg() != 6 {
		return usage(c)
	}
	v, err := parseFloats(c.Args().Slice())
	if err != nil {
		return err
	}
	for len(v) < 6 {
		v = append(v, 0)
	}

	s, err := connect(c)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.requireArm(); err != nil {
		return err
	}
	if !s.coord.MoveToPose(v[0], v[1], v[2], v[3], v[4], v[5], c.Float64("speed")) {
		return fmt.Errorf("pose (%g, %g, %g) is unreachable", v[0], v[1], v[2])
	}
	return printDisplay(s)
}

func JointsAction(c *cli.Context) error {
	if c.NArg() == 0 || c.NArg() > kinematics.NumJoints {
		return usage(c)
	}
	angles, err := parseFloats(c.Args().Slice())
	if err != nil {
		return err
	}

	s, err := connect(c)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.requireArm(); err != nil {
		return err
	}
	if !s.coord.SetJointAngles(angles, c.Float64("speed")) {
		return fmt.Errorf("%w: angles must be numbers", errUsage)
	}
	return printDisplay(s)
}

func JointAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return usage(c)
	}
	motor := c.Args().Get(0)
	v, err := parseFloats(c.Args().Slice()[1:])
	if err != nil {
		return err
	}

	s, err := connect(c)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.requireRobot(); err != nil {
		return err
	}
	s.coord.SetJoint(motor, v[0])
	fmt.Printf("%s -> %g\n", motor, v[0])
	return nil
}

func GripperAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return usage(c)
	}
	v, err := parseFloats(c.Args().Slice())
	if err != nil {
		return err
	}

	s, err := connect(c)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.requireRobot(); err != nil {
		return err
	}
	s.coord.SetGripper(v[0], c.Float64("speed"), c.Float64("force"))
	fmt.Printf("gripper -> %g\n", v[0])
	return nil
}

func ConfigAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return usage(c)
	}
	key, value := c.Args().Get(0), c.Args().Get(1)

	s, err := connect(c)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.requireRobot(); err != nil {
		return err
	}
	s.coord.UpdateConfig(key, parseValue(value))
	fmt.Printf("%s = %s\n", key, value)
	return nil
}

func SaveConfigAction(c *cli.Context) error {
	s, err := connect(c)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.requireRobot(); err != nil {
		return err
	}
	s.coord.SaveConfig()
	fmt.Println("save requested")
	return nil
}

func WatchAction(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	c.Context = ctx

	s, err := connect(c)
	if err != nil {
		return err
	}
	defer s.Close()

	all := c.Bool("all")
	fmt.Printf("watching robot %s (%s), ctrl-c to stop\n", s.cfg.RobotID, s.coord.Status(s.cfg.RobotID))

	unsubs := []func(){
		s.client.Subscribe(protocol.TypeRobot, func(msg *protocol.Message) {
			st, err := msg.GetRobotState()
			if err != nil || (!all && st.ID != s.cfg.RobotID) {
				return
			}
			fmt.Printf("[%s] %s\n", st.ID, st.State)
		}),
		s.client.Subscribe(protocol.TypeRobotConnected, func(msg *protocol.Message) {
			id, _ := msg.GetRobotID()
			fmt.Printf("[%s] connected\n", id)
		}),
		s.client.Subscribe(protocol.TypeRobotDisconnected, func(msg *protocol.Message) {
			id, _ := msg.GetRobotID()
			fmt.Printf("[%s] disconnected\n", id)
		}),
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case <-s.client.Done():
		return s.client.Err()
	}
}

func PoseAction(c *cli.Context) error {
	if c.NArg() != kinematics.ActuatedJoints {
		return usage(c)
	}
	v, err := parseFloats(c.Args().Slice())
	if err != nil {
		return err
	}
	_, geom, err := loadConfig(c)
	if err != nil {
		return err
	}

	var deg [kinematics.ActuatedJoints]float64
	copy(deg[:], v)
	p := kinematics.ForwardDegrees(deg, geom.Params())
	fmt.Printf("x=%.3f y=%.3f z=%.3f\n", p.X, p.Y, p.Z)
	return nil
}

func IKAction(c *cli.Context) error {
	if c.NArg() != 3 && c.NArg() != 6 {
		return usage(c)
	}
	v, err := parseFloats(c.Args().Slice())
	if err != nil {
		return err
	}
	for len(v) < 6 {
		v = append(v, 0)
	}
	_, geom, err := loadConfig(c)
	if err != nil {
		return err
	}

	solver := kinematics.SolverFor(geom.InverseType)
	j := solver.Inverse(r3.Vector{X: v[0], Y: v[1], Z: v[2]}, kinematics.Rotation{
		R1: kinematics.Radians(v[3]),
		R2: kinematics.Radians(v[4]),
		R3: kinematics.Radians(v[5]),
	}, geom.Params())
	if !j.Valid() {
		return fmt.Errorf("pose (%g, %g, %g) is unreachable with the %s solver", v[0], v[1], v[2], solver.Name())
	}

	out, _ := json.Marshal(j.Degrees()[:kinematics.ActuatedJoints])
	fmt.Printf("%s solver: %s\n", solver.Name(), out)
	return nil
}

func GeometryAction(c *cli.Context) error {
	_, geom, err := loadConfig(c)
	if err != nil {
		return err
	}

	if out := c.String("out"); out != "" {
		if err := config.SaveGeometry(out, geom); err != nil {
			return err
		}
		fmt.Printf("geometry written to %s\n", out)
		return nil
	}

	data, err := yaml.Marshal(geom)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

// printDisplay waits for the pose refresh and prints the operator view.
func printDisplay(s *session) error {
	pose, ok := s.waitPose()
	d := s.coord.Display()

	fmt.Printf("joints: %.2f %.2f %.2f %.2f\n", d.Joints[0], d.Joints[1], d.Joints[2], d.Joints[3])
	if ok {
		fmt.Printf("pose:   x=%.3f y=%.3f z=%.3f\n", pose.X, pose.Y, pose.Z)
	}
	if !s.coord.Connected() || !s.coord.Session().RunOnRobot {
		fmt.Println("(not sent to robot)")
	}
	return nil
}
