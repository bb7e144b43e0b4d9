package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/tetherctl/internal/config"
	"github.com/danmuck/tetherctl/internal/logging"
	"github.com/danmuck/tetherctl/internal/observability"
	"github.com/danmuck/tetherctl/internal/probe"
	"github.com/danmuck/tetherctl/internal/server"
	"github.com/danmuck/tetherctl/internal/session"
	"github.com/danmuck/tetherctl/internal/tether"
	"github.com/danmuck/tetherctl/internal/transport"
)

type options struct {
	configPath string
	hostsPath  string
	host       string
	statusAddr string
	mock       bool
	timeout    time.Duration
	repeat     int
}

func parseFlags() (options, []string) {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "run config TOML (timeouts, backoff, boot query)")
	flag.StringVar(&opts.hostsPath, "hosts", "hosts.toml", "endpoint inventory TOML")
	flag.StringVar(&opts.host, "host", "", "inventory endpoint name (default: inventory default)")
	flag.StringVar(&opts.statusAddr, "status-addr", "", "serve /healthz, /status and /metrics on this address")
	flag.BoolVar(&opts.mock, "mock", false, "use the simulated transport instead of SSH")
	flag.DurationVar(&opts.timeout, "timeout", 0, "overall deadline for the run (0 = none)")
	flag.IntVar(&opts.repeat, "repeat", 1, "run the command this many times")
	flag.Parse()
	return opts, flag.Args()
}

func main() {
	logging.ConfigureRuntime()
	opts, args := parseFlags()
	logger := observability.InitLogger("tetherctl")

	cfg, err := loadRunConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tetherctl: %v\n", err)
		os.Exit(1)
	}
	if opts.statusAddr != "" {
		cfg.StatusAddr = opts.statusAddr
	}
	if opts.mock {
		cfg.Mock = true
	}

	ep, tr, prober, err := buildCollaborators(opts, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tetherctl: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	ctrl := tether.New(tr, prober, ep, cfg.Session)

	if cfg.StatusAddr != "" {
		router := server.NewRouter(ctrl, logger)
		go func() {
			if err := server.Serve(ctx, cfg.StatusAddr, router); err != nil {
				logger.Error().Err(err).Str("addr", cfg.StatusAddr).Msg("status_server_failed")
			}
		}()
	}

	command := strings.Join(args, " ")
	if command == "" || command == "status" {
		os.Exit(runStatus(ctx, ctrl, cfg.Session))
	}
	os.Exit(runCommand(ctx, logger, ctrl, command, opts.repeat))
}

func buildCollaborators(opts options, cfg runConfig) (transport.Endpoint, transport.Transport, probe.Prober, error) {
	if cfg.Mock {
		ep := transport.Endpoint{Host: "mock", Port: 22, User: "mock"}
		tr := transport.NewSimulated(cfg.Session.BootQuery, cfg.MockRebootAfter)
		alwaysUp := probe.Func(func(ctx context.Context, ep transport.Endpoint) bool { return true })
		return ep, tr, alwaysUp, nil
	}

	inv, err := config.LoadInventory(opts.hostsPath)
	if err != nil {
		return transport.Endpoint{}, nil, nil, err
	}
	ep, err := inv.Resolve(opts.host)
	if err != nil {
		return transport.Endpoint{}, nil, nil, err
	}
	return ep, transport.NewSSH(cfg.Session.ConnectTimeout), probe.NewTCP(cfg.Session.ProbeTimeout), nil
}

// runStatus establishes (or verifies) the tether by running the boot
// query once, then prints the controller snapshot.
func runStatus(ctx context.Context, ctrl *tether.Controller, cfg session.Config) int {
	_, err := ctrl.Execute(ctx, cfg.WithDefaults().BootQuery)
	st := ctrl.Status()
	out, merr := json.MarshalIndent(st, "", "  ")
	if merr == nil {
		fmt.Println(string(out))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "tetherctl: %v\n", err)
		return 1
	}
	return 0
}

func runCommand(ctx context.Context, logger zerolog.Logger, ctrl *tether.Controller, command string, repeat int) int {
	exit := 0
	for i := 0; i < repeat; i++ {
		res, err := ctrl.Execute(ctx, command)
		if err != nil {
			var fe *tether.FatalError
			if errors.As(err, &fe) {
				logger.Error().Str("kind", string(fe.Kind)).Err(fe.Err).Msg("execute_failed")
			} else {
				logger.Error().Err(err).Msg("execute_failed")
			}
			fmt.Fprintf(os.Stderr, "tetherctl: %v\n", err)
			return 1
		}
		if res.RecoveredAfterReboot {
			logger.Warn().Str("command", command).Msg("recovered_after_reboot")
		}
		if res.Stdout != "" {
			fmt.Print(res.Stdout)
		}
		if res.Stderr != "" {
			fmt.Fprint(os.Stderr, res.Stderr)
		}
		exit = res.ExitCode
	}
	return exit
}
