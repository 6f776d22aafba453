// Package main runs the reactive wander controller against the configured
// scan source and command sink.
package main

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	// registers all transport models.
	_ "github.com/viam-labs/laser-wanderer/transport/fake"
	_ "github.com/viam-labs/laser-wanderer/transport/mqtt"
	_ "github.com/viam-labs/laser-wanderer/transport/rosbag"
	_ "github.com/viam-labs/laser-wanderer/transport/serial"
	"github.com/viam-labs/laser-wanderer/wanderer"
)

var logger = golog.NewLogger("wanderer")

func main() {
	goutils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	ConfigFile string `flag:"0,usage=controller config file"`
	Debug      bool   `flag:"debug"`
	Watch      bool   `flag:"watch,default=true,usage=exit when the config file changes so a supervisor can restart"`
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) (err error) {
	var argsParsed Arguments
	if err := goutils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.Debug {
		logger = golog.NewDebugLogger("wanderer")
	}

	cfg := wanderer.DefaultConfig()
	if argsParsed.ConfigFile != "" {
		if cfg, err = wanderer.ReadConfig(argsParsed.ConfigFile); err != nil {
			return err
		}
	} else {
		logger.Info("no config file given; running the built-in defaults against fake transports")
	}

	source, err := wanderer.BuildSource(ctx, cfg.Source, logger)
	if err != nil {
		return err
	}
	sink, err := wanderer.BuildCommandSink(ctx, cfg.Command, logger)
	if err != nil {
		return err
	}
	var opts []wanderer.Option
	if cfg.Preview != nil {
		preview, err := wanderer.BuildPreviewSink(ctx, cfg.Preview, logger)
		if err != nil {
			return err
		}
		opts = append(opts, wanderer.WithPreviewSink(preview))
	}

	ctrl, err := wanderer.New(cfg, source, sink, logger, opts...)
	if err != nil {
		return err
	}
	if err := ctrl.Start(ctx); err != nil {
		return multierr.Combine(err, ctrl.Close(ctx))
	}
	defer func() {
		err = multierr.Combine(err, ctrl.Close(context.Background()))
		stats := ctrl.Stats()
		logger.Infow("controller stopped",
			"scans", stats.Scans,
			"commands", stats.Commands,
			"preempted", stats.Preempted,
			"failed", stats.Failed,
			"dropped", stats.Dropped)
	}()

	// A nil channel blocks forever, so without a watched config file only
	// the context can end the loop.
	var watchCh <-chan fsnotify.Event
	if argsParsed.ConfigFile != "" && argsParsed.Watch {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer goutils.UncheckedErrorFunc(watcher.Close)
		if err := watcher.Add(argsParsed.ConfigFile); err != nil {
			return err
		}
		watchCh = watcher.Events
	}

	logger.Infow("controller running",
		"source", cfg.Source.Model,
		"command", cfg.Command.Model,
		"candidates", len(ctrl.RolloutPreview()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-watchCh:
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				logger.Infow("config file changed; exiting for supervisor restart", "file", argsParsed.ConfigFile)
				return nil
			}
		}
	}
}
