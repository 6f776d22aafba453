// Package main is a workbench for the wander planner: it renders rollout
// tables and replays single scans through a planning cycle without a
// vehicle attached.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/edaniels/golog"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	goutils "go.viam.com/utils"

	// registers the bag replay model for --bag.
	_ "github.com/viam-labs/laser-wanderer/transport/rosbag"
	"github.com/viam-labs/laser-wanderer/viz"
	"github.com/viam-labs/laser-wanderer/wander"
	"github.com/viam-labs/laser-wanderer/wanderer"
)

func main() {
	var logger golog.Logger

	app := &cli.App{
		Name:  "wanderviz",
		Usage: "inspect wander rollouts and decisions offline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load controller configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				logger = golog.NewDebugLogger("wanderviz")
			} else {
				logger = zap.NewNop().Sugar()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "table",
				Usage: "print the candidate steering angles and their rollout endpoints",
				Action: func(c *cli.Context) error {
					rollouts, _, err := tableFromConfig(c)
					if err != nil {
						return err
					}
					t := table.NewWriter()
					t.AppendHeader(table.Row{"#", "Steering (rad)", "End X (m)", "End Y (m)", "Heading (rad)"})
					for i, end := range rollouts.Endpoints() {
						t.AppendRow([]interface{}{
							i,
							fmt.Sprintf("%+.4f", rollouts.Candidate(i)),
							fmt.Sprintf("%.3f", end.X),
							fmt.Sprintf("%.3f", end.Y),
							fmt.Sprintf("%.3f", end.Theta),
						})
					}
					fmt.Fprintln(c.App.Writer, t.Render())
					return nil
				},
			},
			{
				Name:  "rollouts",
				Usage: "render every rollout to a PNG",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "out",
						Value: "rollouts.png",
						Usage: "output `FILE`",
					},
				},
				Action: func(c *cli.Context) error {
					rollouts, _, err := tableFromConfig(c)
					if err != nil {
						return err
					}
					out := c.String("out")
					if err := viz.RenderRollouts(rollouts, out); err != nil {
						return err
					}
					logger.Debugw("wrote rollout plot", "file", out)
					fmt.Fprintf(c.App.Writer, "wrote %s\n", out)
					return nil
				},
			},
			{
				Name:  "decide",
				Usage: "run one planning cycle against a recorded scan",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "scan",
						Usage: "scan JSON `FILE`",
					},
					&cli.StringFlag{
						Name:  "bag",
						Usage: "take the first scan from this ROS bag `FILE`",
					},
					&cli.StringFlag{
						Name:  "topic",
						Value: "/car/scan",
						Usage: "bag scan `TOPIC`",
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "also render the decision to this `FILE`",
					},
				},
				Action: func(c *cli.Context) error {
					rollouts, cfg, err := tableFromConfig(c)
					if err != nil {
						return err
					}
					scan, err := loadScan(c, logger)
					if err != nil {
						return err
					}
					planner, err := wander.NewPlanner(rollouts, cfg.LaserOffset, cfg.Budget())
					if err != nil {
						return err
					}
					decision, err := planner.Decide(c.Context, scan)
					if err != nil {
						return err
					}
					logger.Debugw("decision made", "decision", decision)
					fmt.Fprintf(c.App.Writer, "candidate %d: steering %+.4f rad, cost %.4f, %d sweeps in %v\n",
						decision.Candidate, decision.Steering, decision.Cost, decision.Sweeps, decision.Elapsed)
					if out := c.String("out"); out != "" {
						if err := viz.RenderDecision(rollouts, scan, decision, out); err != nil {
							return err
						}
						fmt.Fprintf(c.App.Writer, "wrote %s\n", out)
					}
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func tableFromConfig(c *cli.Context) (*wander.RolloutTable, *wanderer.Config, error) {
	cfg := wanderer.DefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = wanderer.ReadConfig(path); err != nil {
			return nil, nil, err
		}
	}
	rollouts, err := wander.GenerateRollouts(cfg.RolloutParams())
	if err != nil {
		return nil, nil, err
	}
	return rollouts, cfg, nil
}

func loadScan(c *cli.Context, logger golog.Logger) (*wander.Scan, error) {
	scanPath, bagPath := c.String("scan"), c.String("bag")
	switch {
	case scanPath != "" && bagPath != "":
		return nil, errors.New("pass either --scan or --bag, not both")
	case scanPath != "":
		return readScan(scanPath)
	case bagPath != "":
		return firstBagScan(c.Context, bagPath, c.String("topic"), logger)
	default:
		return nil, errors.New("one of --scan or --bag is required")
	}
}

func readScan(path string) (*wander.Scan, error) {
	//nolint:gosec
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read scan %q", path)
	}
	var scan wander.Scan
	if err := json.Unmarshal(buf, &scan); err != nil {
		return nil, errors.Wrapf(err, "unable to parse scan %q", path)
	}
	return &scan, nil
}

func firstBagScan(ctx context.Context, path, topic string, logger golog.Logger) (*wander.Scan, error) {
	source, err := wanderer.BuildSource(ctx, &wanderer.TransportConfig{
		Model:      "rosbag",
		Attributes: wanderer.Attributes{"path": path, "topic": topic},
	}, logger)
	if err != nil {
		return nil, err
	}
	defer goutils.UncheckedErrorFunc(func() error { return source.Close(ctx) })
	return source.NextScan(ctx)
}
