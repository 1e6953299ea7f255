package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang/geo/r3"
	"github.com/teslashibe/go-rebel/internal/config"
	"github.com/teslashibe/go-rebel/internal/log"
	"github.com/teslashibe/go-rebel/pkg/coordinator"
	"github.com/teslashibe/go-rebel/pkg/kinematics"
	"github.com/teslashibe/go-rebel/pkg/protocol"
	"github.com/teslashibe/go-rebel/pkg/transport"
	"github.com/urfave/cli/v2"
)

const rosterTimeout = 3 * time.Second

// loadConfig resolves the config and geometry from the environment and the
// global flags.
func loadConfig(c *cli.Context) (*config.Config, kinematics.Config, error) {
	cfg, err := config.Load(c.String("env"))
	if err != nil {
		return nil, kinematics.Config{}, err
	}
	if s := c.String("server"); s != "" {
		cfg.ServerURL = s
	}
	if r := c.String("robot"); r != "" {
		cfg.RobotID = r
	}
	if g := c.String("geometry"); g != "" {
		cfg.GeometryFile = g
	}

	level := "warn"
	if c.Bool("debug") {
		level = "debug"
	}
	log.Init(level)

	geom, err := config.LoadGeometry(cfg.GeometryFile)
	return cfg, geom, err
}

// session is a live operator connection.
type session struct {
	client *transport.Client
	coord  *coordinator.Coordinator
	cfg    *config.Config
	dryRun bool
}

// connect joins the relay and waits for the first roster.
func connect(c *cli.Context) (*session, error) {
	cfg, geom, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}

	url := strings.TrimSuffix(cfg.ServerURL, "/") + "/ws/session"
	client, err := transport.Dial(ctx, url)
	if err != nil {
		return nil, err
	}

	roster := make(chan struct{}, 1)
	unsub := client.Subscribe(protocol.TypeRobots, func(*protocol.Message) {
		select {
		case roster <- struct{}{}:
		default:
		}
	})
	defer unsub()

	dryRun := c.Bool("dry-run")
	coord := coordinator.New(client, coordinator.Session{
		RobotID:    cfg.RobotID,
		RunOnRobot: !dryRun,
		Geometry:   geom,
		Debounce:   cfg.Debounce,
	})
	if err := coord.RegisterSession(cfg.RobotID); err != nil {
		coord.Close()
		client.Close()
		return nil, err
	}

	select {
	case <-roster:
	case <-time.After(rosterTimeout):
		log.Warn("no roster from relay", "server", url)
	case <-ctx.Done():
		coord.Close()
		client.Close()
		return nil, ctx.Err()
	}

	return &session{client: client, coord: coord, cfg: cfg, dryRun: dryRun}, nil
}

// requireRobot fails when commands cannot reach the robot.
func (s *session) requireRobot() error {
	if s.coord.Connected() {
		return nil
	}
	return fmt.Errorf("robot %s is %s", s.cfg.RobotID, s.coord.Status(s.cfg.RobotID))
}

// requireArm is requireRobot, skipped on dry runs.
func (s *session) requireArm() error {
	if s.dryRun {
		return nil
	}
	return s.requireRobot()
}

// waitPose waits for the pending forward-kinematics refresh.
func (s *session) waitPose() (pose r3.Vector, ok bool) {
	done := make(chan r3.Vector, 1)
	s.coord.OnPose(func(p r3.Vector) {
		select {
		case done <- p:
		default:
		}
	})
	if !s.coord.RefreshPending() {
		return s.coord.Pose(), true
	}
	select {
	case p := <-done:
		return p, true
	case <-time.After(s.cfg.Debounce + time.Second):
		return pose, false
	}
}

func (s *session) Close() {
	s.coord.Close()
	s.client.Close()
}
