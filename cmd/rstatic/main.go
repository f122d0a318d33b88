// Command rstatic builds a site or serves it in development.
//
//	rstatic build [-root dir] [-silent] [-verbose]
//	rstatic dev   [-root dir] [-host host] [-port n] [-message-port n]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vormadev/rstatic/kit/grace"
	"github.com/vormadev/rstatic/static"
	"github.com/vormadev/rstatic/static/builtin"
	"github.com/vormadev/rstatic/static/config"
	"github.com/vormadev/rstatic/static/devserver"
	"github.com/vormadev/rstatic/static/pipeline"
	"github.com/vormadev/rstatic/static/reload"
)

const usage = `usage: rstatic <command> [flags]

commands:
  build   resolve routes and data, write artifacts and export to dist
  dev     serve the site with live reload`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "rstatic:", err)
		}
		os.Exit(1)
	}
}

type options struct {
	root        string
	silent      bool
	verbose     bool
	host        string
	port        int
	messagePort int
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage)
		return flag.ErrHelp
	}
	cmd, args := args[0], args[1:]

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var o options
	fs.StringVar(&o.root, "root", ".", "site root directory")
	fs.BoolVar(&o.silent, "silent", false, "only log errors")
	fs.BoolVar(&o.verbose, "verbose", false, "log debug output")
	if cmd == "dev" {
		fs.StringVar(&o.host, "host", "", "dev server host")
		fs.IntVar(&o.port, "port", 0, "dev server port")
		fs.IntVar(&o.messagePort, "message-port", 0, "reload websocket port")
	}

	switch cmd {
	case "build", "dev":
	default:
		fmt.Fprintln(stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	stage := static.StageProd
	if cmd == "dev" {
		stage = static.StageDev
	}
	static.SetMode(stage)

	load := func() (static.Config, error) {
		cfg, _, err := config.Load(config.Options{
			Root:  o.root,
			Stage: stage,
			Overrides: static.Config{
				Silent:  o.silent,
				Verbose: o.verbose,
				DevServer: static.DevServerConfig{
					Host:        o.host,
					Port:        o.port,
					MessagePort: o.messagePort,
				},
			},
		})
		return cfg, err
	}
	cfg, err := load()
	if err != nil {
		return err
	}
	log := config.NewLogger(cfg)

	if cmd == "build" {
		return build(ctx, cfg, log)
	}
	return dev(ctx, cfg, log, load)
}

func build(ctx context.Context, cfg static.Config, log *slog.Logger) error {
	platform, _ := builtin.Registries()
	state := config.NewState(cfg, static.StageProd, log)
	out, err := pipeline.Run(ctx, state, pipeline.ReleaseSteps(platform)...)
	if err != nil {
		return err
	}
	log.Info("Build complete", "routes", len(out.Data.Routes), "dist", cfg.Paths.Dist)
	return nil
}

func dev(ctx context.Context, cfg static.Config, log *slog.Logger, load func() (static.Config, error)) error {
	ports, err := devserver.FindAvailablePorts(cfg.DevServer.Port, 1)
	if err != nil {
		return err
	}
	cfg.DevServer.Port = ports[0]
	if ports, err = devserver.FindAvailablePorts(max(cfg.DevServer.MessagePort, cfg.DevServer.Port+1), 1); err != nil {
		return err
	}
	cfg.DevServer.MessagePort = ports[0]

	reloadConfig := func() (static.Config, error) {
		next, err := load()
		if err != nil {
			return next, err
		}
		next.DevServer = cfg.DevServer
		return next, nil
	}

	platform, app := builtin.Registries()
	return grace.Orchestrate(ctx, grace.OrchestrateOptions{
		Logger: log,
		StartupCallback: func(ctx context.Context) error {
			s, err := devserver.New(ctx, devserver.Options{
				State:      config.NewState(cfg, static.StageDev, log),
				LoadConfig: reloadConfig,
				Platform:   platform,
				Browser:    app,
				Bus:        reload.Default(),
			})
			if err != nil {
				return err
			}
			return s.Run(ctx)
		},
	})
}
