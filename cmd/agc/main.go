// Command agc is the pipeline driver: parse a surface source file, lower
// it to IR-G, assemble it to BIN, or run an assembled module. It stays a
// thin flag-based wrapper (no cobra) over the internal packages that do
// the actual work, the same minimalism the teacher's own
// std/compiler/main.go CLI keeps, just built on the standard library's
// flag package instead of a hand-rolled os.Args walk (the teacher hand-
// parses args because it's compiled by its own restricted language
// subset; this module has no such restriction).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/agc-lang/agc/internal/assemble"
	"github.com/agc-lang/agc/internal/config"
	"github.com/agc-lang/agc/internal/datastore"
	"github.com/agc-lang/agc/internal/gpu"
	"github.com/agc-lang/agc/internal/grammar"
	"github.com/agc-lang/agc/internal/lowerg"
	"github.com/agc-lang/agc/internal/lowerm"
	"github.com/agc-lang/agc/internal/obs"
	"github.com/agc-lang/agc/internal/opcode"
	"github.com/agc-lang/agc/internal/runtime"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	code := 0
	switch os.Args[1] {
	case "build":
		err = runBuild(os.Args[2:])
	case "disasm":
		err = runDisasm(os.Args[2:])
	case "run":
		code, err = runRun(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "agc:", err)
		os.Exit(1)
	}
	os.Exit(code)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: agc <build|disasm|run> [flags]")
}

func runBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	in := fs.String("i", "", "surface source file")
	out := fs.String("o", "a.agc", "output BIN file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("build: -i is required")
	}
	src, err := os.ReadFile(*in)
	if err != nil {
		return err
	}
	prog, err := grammar.ParseIRM(*in, string(src))
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	mod, err := lowerm.Lower(prog)
	if err != nil {
		return fmt.Errorf("lower: %w", err)
	}
	if err := lowerg.Lower(mod, opcode.Names()); err != nil {
		return fmt.Errorf("lowerg: %w", err)
	}
	bin, err := assemble.Assemble(mod)
	if err != nil {
		return fmt.Errorf("assemble: %w", err)
	}
	return os.WriteFile(*out, bin, 0o644)
}

func runDisasm(args []string) error {
	fs := flag.NewFlagSet("disasm", flag.ExitOnError)
	in := fs.String("i", "", "BIN file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	b, err := os.ReadFile(*in)
	if err != nil {
		return err
	}
	mod, err := assemble.Disassemble(b)
	if err != nil {
		return err
	}
	for _, h := range mod.Handlers {
		fmt.Printf("handler for %s with size %d\n", h.Event.Name, h.Block.FrameSize)
		for _, s := range h.Block.Stmts {
			fmt.Printf("  %s(...) #%d\n", s.Op, s.Line)
		}
	}
	return nil
}

// runRun executes an assembled module and returns the process exit code
// an exitop/getorexit sink requested (spec scenarios S1/S2/S3/S6 define
// correctness in terms of this code), or 0 if the module ran to
// completion/cancellation without ever calling exit.
func runRun(args []string) (int, error) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	in := fs.String("i", "", "BIN file")
	cfgPath := fs.String("config", "agc.yaml", "optional runtime config")
	if err := fs.Parse(args); err != nil {
		return 0, err
	}
	b, err := os.ReadFile(*in)
	if err != nil {
		return 0, err
	}
	mod, err := assemble.Disassemble(b)
	if err != nil {
		return 0, err
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return 0, err
	}
	logger, err := obs.NewLogger(cfg.LogLevel)
	if err != nil {
		return 0, err
	}
	defer logger.Sync()

	var store datastore.Store
	if len(cfg.DatastoreNodes) > 0 {
		store = datastore.NewRemoteStore(cfg.DatastoreNodes, func(node string) (datastore.Store, error) {
			return nil, fmt.Errorf("no dialer configured for node %s", node)
		})
	} else {
		store = datastore.NewLocalStore()
	}

	sc := runtime.New(mod,
		runtime.WithStore(store),
		runtime.WithDevice(gpu.NewCPUFallbackDevice()),
		runtime.WithLogger(logger),
		runtime.WithWorkers(cfg.Workers),
		runtime.WithGPUThreshold(cfg.GPUThreshold),
		runtime.WithIO(
			func(s string) { fmt.Fprint(os.Stdout, s) },
			func(s string) { fmt.Fprint(os.Stderr, s) },
		),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc.Start()
	go func() {
		<-ctx.Done()
		sc.Close()
	}()
	if err := sc.Run(ctx); err != nil {
		return 0, err
	}
	if code, exited := sc.ExitCode(); exited {
		return int(code), nil
	}
	return 0, nil
}
