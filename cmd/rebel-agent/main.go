// rebel-agent: connects an arm to the relay. Applies operator commands to
// the arm driver and reports its state.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/teslashibe/go-rebel/internal/config"
	"github.com/teslashibe/go-rebel/internal/log"
	"github.com/teslashibe/go-rebel/pkg/agent"
	"github.com/teslashibe/go-rebel/pkg/robot"
	"github.com/teslashibe/go-rebel/pkg/transport"
)

const reconnectDelay = 2 * time.Second

func main() {
	envFile := flag.String("env", ".env", "Environment file")
	server := flag.String("server", "", "Relay URL (overrides REBEL_SERVER)")
	robotID := flag.String("robot", "", "Robot id (overrides ROBOT_ID)")
	driver := flag.String("driver", "", "Arm driver: sim or serial (overrides ARM_DRIVER)")
	port := flag.String("port", "", "Serial port (overrides SERIAL_PORT)")
	report := flag.Duration("report", 0, "State report interval (overrides the settings file)")
	home := flag.Bool("home", false, "Move to the home angles after connecting")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *server != "" {
		cfg.ServerURL = *server
	}
	if *robotID != "" {
		cfg.RobotID = *robotID
	}
	if *driver != "" {
		cfg.Driver = *driver
	}
	if *port != "" {
		cfg.SerialPort = *port
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	log.Init(cfg.LogLevel)

	reportRate := *report
	if reportRate == 0 && os.Getenv("REPORT_INTERVAL") != "" {
		reportRate = cfg.ReportInterval
	}

	geometry, err := config.LoadGeometry(cfg.GeometryFile)
	if err != nil {
		log.Error("geometry", "error", err)
		os.Exit(1)
	}

	arm, err := openArm(cfg)
	if err != nil {
		log.Error("arm", "error", err)
		os.Exit(1)
	}
	defer arm.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	url := strings.TrimSuffix(cfg.ServerURL, "/") + "/ws/robot/" + cfg.RobotID
	log.Info("rebel-agent starting", "robot", cfg.RobotID, "driver", cfg.Driver, "server", url)

	first := true
	for ctx.Err() == nil {
		err := runSession(ctx, url, arm, agent.Config{
			RobotID:      cfg.RobotID,
			Geometry:     geometry,
			SettingsFile: cfg.SettingsFile,
			ReportRate:   reportRate,
		}, *home && first)
		first = false
		if ctx.Err() != nil {
			break
		}
		log.Warn("relay connection lost, retrying", "error", err, "delay", reconnectDelay)

		select {
		case <-ctx.Done():
		case <-time.After(reconnectDelay):
		}
	}

	log.Info("rebel-agent stopped")
}

// runSession serves one relay connection until it drops or ctx ends.
func runSession(ctx context.Context, url string, arm robot.Controller, cfg agent.Config, home bool) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := transport.Dial(dialCtx, url)
	cancel()
	if err != nil {
		return err
	}
	defer client.Close()

	a, err := agent.New(client, arm, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Start(); err != nil {
		return err
	}
	if home {
		if err := a.Home(); err != nil {
			log.Warn("homing failed", "error", err)
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-client.Done():
		return client.Err()
	}
}

func openArm(cfg *config.Config) (robot.Controller, error) {
	switch cfg.Driver {
	case config.DriverSerial:
		arm, err := robot.OpenSerial(cfg.SerialPort, cfg.SerialBaud)
		if err != nil {
			return nil, err
		}
		log.Info("serial arm connected", "port", cfg.SerialPort, "baud", cfg.SerialBaud)
		return arm, nil
	default:
		log.Info("using simulated arm", "joints", robot.NumJoints)
		return robot.NewSimArm(), nil
	}
}
