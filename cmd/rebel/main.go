// rebel: operator command line for arms behind a rebel-server relay.
//
// Every robot command joins the relay as an operator session, waits for
// the roster and then issues its intent through the coordinator, so the
// same connection and run-mode gating apply as in any other front end.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var errUsage = errors.New("usage")

var speedFlag = &cli.Float64Flag{
	Name:  "speed",
	Value: 50,
	Usage: "joint speed",
}

var app = &cli.App{
	Name:            "rebel",
	Usage:           "drive rebel arms through a relay",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "env",
			Value: ".env",
			Usage: "load environment from `FILE`",
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "relay `URL` (overrides REBEL_SERVER)",
		},
		&cli.StringFlag{
			Name:    "robot",
			Aliases: []string{"r"},
			Usage:   "robot `ID` (overrides ROBOT_ID)",
		},
		&cli.StringFlag{
			Name:  "geometry",
			Usage: "arm geometry YAML `FILE` (overrides GEOMETRY_FILE)",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "update the display only; never move the robot",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:   "status",
			Usage:  "show the robot roster",
			Action: StatusAction,
		},
		{
			Name:      "move",
			Usage:     "move the tool to a pose (cm, degrees)",
			ArgsUsage: "x y z [r1 r2 r3]",
			Flags:     []cli.Flag{speedFlag},
			Action:    MoveAction,
		},
		{
			Name:      "joints",
			Usage:     "set joint angles (degrees)",
			ArgsUsage: "a0 [a1 ... a5]",
			Flags:     []cli.Flag{speedFlag},
			Action:    JointsAction,
		},
		{
			Name:      "joint",
			Usage:     "jog one motor",
			ArgsUsage: "<motorId> <value>",
			Action:    JointAction,
		},
		{
			Name:      "gripper",
			Usage:     "set the gripper opening",
			ArgsUsage: "<value>",
			Flags: []cli.Flag{
				&cli.Float64Flag{Name: "speed", Usage: "gripper speed (0 uses the robot setting)"},
				&cli.Float64Flag{Name: "force", Usage: "gripper force (0 uses the robot setting)"},
			},
			Action: GripperAction,
		},
		{
			Name:      "config",
			Usage:     "change a robot setting",
			ArgsUsage: "<key> <value>",
			Action:    ConfigAction,
		},
		{
			Name:   "save-config",
			Usage:  "persist the robot settings",
			Action: SaveConfigAction,
		},
		{
			Name:  "watch",
			Usage: "print robot state updates until interrupted",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "all", Usage: "print every robot, not only the selected one"},
			},
			Action: WatchAction,
		},
		{
			Name:      "pose",
			Usage:     "forward kinematics, offline",
			ArgsUsage: "a0 a1 a2 a3",
			Action:    PoseAction,
		},
		{
			Name:      "ik",
			Usage:     "inverse kinematics, offline",
			ArgsUsage: "x y z [r1 r2 r3]",
			Action:    IKAction,
		},
		{
			Name:  "geometry",
			Usage: "print or write the arm geometry",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "out", Usage: "write the geometry to `FILE`"},
			},
			Action: GeometryAction,
		},
		{
			Name:            "waypoint",
			Aliases:         []string{"wp"},
			Usage:           "manage stored waypoints",
			HideHelpCommand: true,
			Subcommands: []*cli.Command{
				{
					Name:    "list",
					Aliases: []string{"ls"},
					Usage:   "list every waypoint",
					Action:  WaypointListAction,
				},
				{
					Name:      "load",
					Usage:     "print one waypoint",
					ArgsUsage: "<name>",
					Action:    WaypointLoadAction,
				},
				{
					Name:      "save",
					Usage:     "store a waypoint from a file, stdin or the robot's current joints",
					ArgsUsage: "<name>",
					Flags: []cli.Flag{
						&cli.StringFlag{Name: "file", Usage: "read the document from `FILE` (- for stdin)"},
					},
					Action: WaypointSaveAction,
				},
				{
					Name:      "go",
					Usage:     "move the robot to a stored waypoint",
					ArgsUsage: "<name>",
					Flags:     []cli.Flag{speedFlag},
					Action:    WaypointGoAction,
				},
			},
		},
	},
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "rebel: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// usage reports a bad invocation of the current command.
func usage(c *cli.Context) error {
	return fmt.Errorf("%w: %s %s", errUsage, c.Command.FullName(), c.Command.ArgsUsage)
}
