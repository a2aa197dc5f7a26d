package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	. "github.com/ZenLiuCN/hotreload"
	"github.com/davecgh/go-spew/spew"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := cli.NewApp()
	app.Name = "host"
	app.Usage = "hot reload host"
	app.Description = "run a module object and reload it whenever a newer build replaces the artifact"
	app.Flags = []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: ConfigFileName, Usage: "config file, ignored when absent"},
		&cli.StringFlag{Name: "artifact", Aliases: []string{"a"}, Usage: "module object file"},
		&cli.StringFlag{Name: "pkg", Aliases: []string{"p"}, Usage: "package path of the module"},
		&cli.StringFlag{Name: "heap", Usage: "go or mmap"},
		&cli.DurationFlag{Name: "tick", Usage: "frame interval"},
		&cli.BoolFlag{Name: "watch", Value: true, Usage: "wake up on artifact writes"},
		&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}},
	}
	app.Action = run
	app.Commands = []*cli.Command{
		{Name: "run", Action: run, Usage: "start the module and reload it on change (default)",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "frames", Usage: "stop after n frames, 0 runs until interrupted"},
			},
		},
		{Name: "check", Action: check, Usage: "load the artifact once and verify its entry points"},
		{Name: "init", Action: initConfig, Usage: "write a default config file"},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "failure %s\n", err)
		os.Exit(1)
	}
}

func config(ctx *cli.Context) (cfg Config, err error) {
	cfg = DefaultConfig()
	if p := ctx.String("config"); p != "" {
		if _, serr := os.Stat(p); serr == nil {
			if cfg, err = LoadConfig(p); err != nil {
				return
			}
		} else if ctx.IsSet("config") {
			return cfg, serr
		}
	}
	if ctx.IsSet("artifact") {
		cfg.Artifact = ctx.String("artifact")
	}
	if ctx.IsSet("pkg") {
		cfg.Package = ctx.String("pkg")
	}
	if ctx.IsSet("heap") {
		cfg.Heap = ctx.String("heap")
	}
	if ctx.IsSet("tick") {
		cfg.Tick = Duration(ctx.Duration("tick"))
	}
	if ctx.IsSet("watch") {
		cfg.Watch = ctx.Bool("watch")
	}
	if ctx.IsSet("debug") {
		cfg.Debug = ctx.Bool("debug")
	}
	return cfg, cfg.Validate()
}

func prepare(ctx *cli.Context) (cfg Config, rc *RuntimeContext, log *zap.SugaredLogger, err error) {
	if cfg, err = config(ctx); err != nil {
		return
	}
	if log, err = NewLogger(cfg.Debug); err != nil {
		return
	}
	sym, err := NewSymbols()
	if err != nil {
		return
	}
	opener := ObjectOpener{Symbols: sym, Package: cfg.Package, Log: log}
	rc, err = NewRuntimeContext(cfg, opener, log)
	return
}

func run(ctx *cli.Context) error {
	cfg, rc, log, err := prepare(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	if cfg.Debug {
		log.Debugf("config:\n%s", spew.Sdump(cfg))
	}

	sctx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	events := make(chan *Event, 1)
	go forwardRestart(sctx, events)

	d := &TickDriver{
		Interval: time.Duration(cfg.Tick),
		Events:   events,
		Frames:   ctx.Int("frames"),
		Log:      log,
	}
	if cfg.Watch {
		d.Watch = cfg.Artifact
	}
	if err = Run(sctx, rc, d); err != nil {
		log.Errorw("start module", "artifact", cfg.Artifact, "error", err)
		return err
	}
	st := rc.Orchestrator.Stats()
	log.Infow("bye", "generation", rc.Orchestrator.Generation(), "reloads", st.Reloads, "resets", st.FullResets, "failures", st.Failures)
	return nil
}

// forwardRestart turn SIGHUP into a restart event, handled on the frame goroutine.
func forwardRestart(ctx context.Context, events chan<- *Event) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			select {
			case events <- &Event{Kind: EventRestart}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func check(ctx *cli.Context) error {
	cfg, rc, log, err := prepare(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	defer func() { _ = rc.Loader.Close() }()
	h, err := rc.Loader.Load(cfg.Artifact, 0)
	if err != nil {
		var sre *SymbolResolutionError
		if errors.As(err, &sre) {
			for _, s := range sre.Missing {
				log.Errorw("missing entry point", "symbol", s)
			}
		}
		return err
	}
	defer func() { _ = rc.Loader.Unload(h) }()
	log.Infow("module ok", "artifact", cfg.Artifact, "modtime", h.ModTime, "state", h.StateSize(), "entries", EntryNames(cfg.Prefix()))
	return nil
}

func initConfig(ctx *cli.Context) error {
	p := ctx.String("config")
	if _, err := os.Stat(p); err == nil {
		return fmt.Errorf("%s already exists", p)
	}
	return DefaultConfig().Save(p)
}
