package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	. "github.com/ZenLiuCN/hotreload"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := cli.NewApp()
	app.Usage = "hot reload module compiler"
	app.Action = action
	app.Name = "compile"
	app.Description = "compile go sources of a reloadable module into the object file the host watches"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}},
		&cli.StringFlag{Name: "pkg", Aliases: []string{"p"}, Value: DefaultConfig().Package, Usage: "package path of the module"},
		&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: DefaultConfig().Artifact, Usage: "artifact path"},
	}
	app.Args = true
	app.Commands = []*cli.Command{
		{Name: "prepare", Action: prepare, Usage: "copy internals of go sdk"},
		{Name: "clean", Action: clean, Usage: "remove copied internals of go sdk"},
		{Name: "imports",
			Action: imports,
			Usage:  "display imports of objfile",
			Args:   true,
		},
		{Name: "check",
			Action: check,
			Usage:  "verify an objfile exports every entry point and links against this host",
			Args:   true,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "failure %s\n", err)
		os.Exit(1)
	}
}

func logger(ctx *cli.Context) *zap.SugaredLogger {
	log, err := NewLogger(ctx.Bool("debug"))
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return log
}

func imports(ctx *cli.Context) (err error) {
	log := logger(ctx)
	for _, s := range ctx.Args().Slice() {
		var v *Info
		if v, err = ObjectImportsIter(s, ctx.String("pkg")); err != nil {
			return
		}
		log.Infof("%s\n%s", s, v.String())
	}
	return
}

func check(ctx *cli.Context) (err error) {
	log := logger(ctx)
	pkg := ctx.String("pkg")
	sym, err := NewSymbols()
	if err != nil {
		return err
	}
	for _, s := range ctx.Args().Slice() {
		var names []string
		if names, err = Inspect(s, pkg); err != nil {
			return
		}
		have := make(map[string]bool, len(names))
		for _, n := range names {
			have[n] = true
		}
		var missing []string
		for _, n := range EntryNames(pkg + ".") {
			if !have[n] {
				missing = append(missing, n)
			}
		}
		if len(missing) > 0 {
			return &SymbolResolutionError{Path: s, Missing: missing}
		}
		var unresolved []string
		if unresolved, err = Unresolved(s, pkg, sym); err != nil {
			return
		}
		if len(unresolved) > 0 {
			return fmt.Errorf("%s needs symbols the host lacks: %v", s, unresolved)
		}
		log.Infow("module ok", "file", s)
	}
	return
}

// action compile sources next to the artifact and publish it with one rename.
func action(ctx *cli.Context) error {
	log := logger(ctx)
	o := ctx.Args().Slice()
	if len(o) == 0 {
		return fmt.Errorf("missing target sources list")
	}
	_, err := exec.LookPath("go")
	if err != nil {
		return fmt.Errorf("missing go sdk: %w ", err)
	}
	out := ctx.String("out")
	if err = os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	built := out + ".building-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	if err = Imports(log, o); err != nil {
		return err
	}
	if err = Compile(log, ctx.String("pkg"), built, o); err != nil {
		_ = os.Remove(built)
		return err
	}
	if err = Publish(built, out); err != nil {
		_ = os.Remove(built)
		return err
	}
	log.Infow("published", "artifact", out)
	return nil
}

func clean(ctx *cli.Context) (err error) {
	log := logger(ctx)
	dir := os.ExpandEnv("$GOROOT/src/cmd/objfile")
	log.Debugw("clean go sdk", "dir", dir)
	if _, err = os.Stat(dir); err == nil {
		err = os.RemoveAll(dir)
		log.Debugw("removed", "dir", dir)
	} else {
		log.Debugw("did nothing", "dir", dir)
		err = nil
	}
	return
}

func prepare(ctx *cli.Context) (err error) {
	log := logger(ctx)
	src := os.ExpandEnv("$GOROOT/src/cmd/internal")
	dir := os.ExpandEnv("$GOROOT/src/cmd/objfile")
	log.Debugw("prepare go sdk", "from", src, "to", dir)
	if _, err = os.Stat(dir); err != nil && os.IsNotExist(err) {
		err = CopyDir(src, dir, nil)
		log.Debugw("copied", "dir", dir, "from", src)
	} else {
		log.Debugw("did nothing", "dir", dir)
		err = nil
	}
	return
}
