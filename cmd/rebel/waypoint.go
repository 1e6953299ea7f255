package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/teslashibe/go-rebel/pkg/waypoint"
	"github.com/urfave/cli/v2"
)

// Waypoint is the document the CLI stores: either joint angles or a pose.
type Waypoint struct {
	Joints  []float64 `json:"joints,omitempty"`
	Pose    *Pose     `json:"pose,omitempty"`
	Gripper *float64  `json:"gripper,omitempty"`
	Speed   float64   `json:"speed,omitempty"`
}

// Pose is a tool target in cm and degrees.
type Pose struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	Z  float64 `json:"z"`
	R1 float64 `json:"r1"`
	R2 float64 `json:"r2"`
	R3 float64 `json:"r3"`
}

// httpURL maps the relay WebSocket URL onto its HTTP origin.
func httpURL(ws string) string {
	switch {
	case strings.HasPrefix(ws, "wss://"):
		return "https://" + strings.TrimPrefix(ws, "wss://")
	case strings.HasPrefix(ws, "ws://"):
		return "http://" + strings.TrimPrefix(ws, "ws://")
	}
	return ws
}

// waypointClient talks to the relay's waypoint routes.
func waypointClient(c *cli.Context) (*waypoint.Client, context.Context, context.CancelFunc, error) {
	cfg, _, err := loadConfig(c)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	return waypoint.NewClient(httpURL(cfg.ServerURL), nil), ctx, cancel, nil
}

func WaypointListAction(c *cli.Context) error {
	client, ctx, cancel, err := waypointClient(c)
	if err != nil {
		return err
	}
	defer cancel()

	all, err := client.All(ctx)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%-20s %s\n", name, all[name])
	}
	return nil
}

func WaypointLoadAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return usage(c)
	}
	client, ctx, cancel, err := waypointClient(c)
	if err != nil {
		return err
	}
	defer cancel()

	doc, err := client.Load(ctx, c.Args().First())
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", doc)
	return nil
}

func WaypointSaveAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return usage(c)
	}
	name := c.Args().First()

	doc, err := waypointDoc(c, c.String("file"))
	if err != nil {
		return err
	}

	client, ctx, cancel, err := waypointClient(c)
	if err != nil {
		return err
	}
	defer cancel()

	if err := client.Save(ctx, name, doc); err != nil {
		return err
	}
	fmt.Printf("saved %s\n", name)
	return nil
}

func WaypointGoAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return usage(c)
	}
	name := c.Args().First()

	client, ctx, cancel, err := waypointClient(c)
	if err != nil {
		return err
	}
	defer cancel()

	doc, err := client.Load(ctx, name)
	if err != nil {
		return err
	}
	var wp Waypoint
	if err := json.Unmarshal(doc, &wp); err != nil {
		return fmt.Errorf("waypoint %s: %w", name, err)
	}
	if wp.Speed <= 0 {
		wp.Speed = c.Float64("speed")
	}
	return goTo(c, name, wp)
}

// waypointDoc reads a document from path, or captures the robot's current
// joints when path is empty.
func waypointDoc(c *cli.Context, path string) (json.RawMessage, error) {
	switch path {
	case "":
	case "-":
		var doc json.RawMessage
		if err := json.NewDecoder(os.Stdin).Decode(&doc); err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return doc, nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return data, nil
	}

	s, err := connect(c)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	raw, ok := s.coord.State(s.cfg.RobotID)
	deadline := time.Now().Add(rosterTimeout)
	for !ok && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
		raw, ok = s.coord.State(s.cfg.RobotID)
	}
	if !ok {
		return nil, fmt.Errorf("no state from robot %s", s.cfg.RobotID)
	}

	var st struct {
		Joints  []float64 `json:"joints"`
		Gripper float64   `json:"gripper"`
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("robot state: %w", err)
	}
	return json.Marshal(Waypoint{Joints: st.Joints, Gripper: &st.Gripper})
}

func goTo(c *cli.Context, name string, wp Waypoint) error {
	if len(wp.Joints) == 0 && wp.Pose == nil {
		return fmt.Errorf("waypoint %s has neither joints nor pose", name)
	}

	s, err := connect(c)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.requireArm(); err != nil {
		return err
	}

	if wp.Pose != nil {
		p := wp.Pose
		if !s.coord.MoveToPose(p.X, p.Y, p.Z, p.R1, p.R2, p.R3, wp.Speed) {
			return fmt.Errorf("waypoint %s is unreachable", name)
		}
	} else if !s.coord.SetJointAngles(wp.Joints, wp.Speed) {
		return fmt.Errorf("waypoint %s has invalid joints", name)
	}
	if wp.Gripper != nil {
		s.coord.SetGripper(*wp.Gripper, 0, 0)
	}
	return printDisplay(s)
}
