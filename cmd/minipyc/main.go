// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

//go:build !js
// +build !js

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/minipyc/minipyc"
	"github.com/minipyc/minipyc/encoder"
	"github.com/minipyc/minipyc/internal/config"
	"github.com/minipyc/minipyc/pycache"
)

const stdinName = "(stdin)"

var (
	errUsage   = errors.New("usage")
	errCompile = errors.New("compilation failed")
	// errBadFlag is returned after the flag package reported the problem.
	errBadFlag = errors.New("bad flag")
)

// options holds the parsed command line.
type options struct {
	compile bool
	version bool
	dis     bool
	cached  bool
	cfg     config.Config
	args    []string
}

// cli is the environment of one invocation.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	// interactive is true if stdin is a terminal.
	interactive bool
	// redirected is true if stdin is a pipe or a non empty file.
	redirected bool
}

func parseFlags(flagset *flag.FlagSet, args []string) (*options, error) {
	var (
		opts        options
		configPath  string
		noOptimizer bool
		trace       string
		timeout     time.Duration
		jobs        int
	)
	flagset.BoolVar(&opts.compile, "c", false,
		"Compile the given files to cache artifacts without running them")
	flagset.BoolVar(&opts.version, "v", false, "Print version and exit")
	flagset.StringVar(&configPath, "config", "",
		"YAML configuration file, "+config.DefaultFile+" is used if present")
	flagset.BoolVar(&noOptimizer, "no-optimizer", false, "Disable constant folding")
	flagset.StringVar(&trace, "trace", "",
		"Comma separated units: -trace parser,optimizer,compiler,vm or all")
	flagset.DurationVar(&timeout, "timeout", 0,
		"Program timeout, zero means no timeout")
	flagset.IntVar(&jobs, "jobs", 0,
		"Number of parallel compilations with -c, zero means GOMAXPROCS")
	flagset.BoolVar(&opts.dis, "dis", false,
		"Print disassembly of the script instead of running it")
	flagset.BoolVar(&opts.cached, "cached", false,
		"Load the script through the artifact cache")

	flagset.Usage = func() {
		_, _ = fmt.Fprint(flagset.Output(),
			"Usage: minipyc [flags] script.py [args...]\n",
			"       minipyc -c [flags] a.py b.py ...\n\n",
			"If script file is not provided, REPL terminal application is started\n",
			"Use - to read from stdin\n",
			"\nFlags:\n",
		)
		flagset.PrintDefaults()
	}

	if err := flagset.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, errBadFlag
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	// explicitly set flags override the file
	var flagErr error
	flagset.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "no-optimizer":
			cfg.Optimize = !noOptimizer
		case "trace":
			cfg.Trace, flagErr = config.ParseTrace(trace)
		case "timeout":
			cfg.Timeout = timeout
		case "jobs":
			cfg.Jobs = jobs
		}
	})
	if flagErr != nil {
		return nil, flagErr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts.cfg = cfg
	opts.args = flagset.Args()
	return &opts, nil
}

func (c *cli) run(args []string) int {
	flagset := flag.NewFlagSet(minipyc.Name, flag.ContinueOnError)
	flagset.SetOutput(c.stderr)

	opts, err := parseFlags(flagset, args)
	if err != nil {
		switch {
		case errors.Is(err, flag.ErrHelp):
			return 0
		case !errors.Is(err, errBadFlag):
			c.printErr(err)
		}
		return 1
	}

	switch {
	case opts.version:
		_, _ = fmt.Fprintf(c.stdout, "%s %s (artifact format %d, tag %s)\n",
			minipyc.Name, minipyc.Version, encoder.FormatVersion,
			opts.cfg.CacheTag)
		return 0
	case opts.compile:
		err = c.compileAll(opts)
	case len(opts.args) > 0:
		err = c.runScript(opts, opts.args[0], opts.args[1:])
	case c.redirected:
		err = c.runScript(opts, "-", nil)
	case c.interactive:
		err = c.runREPL(opts)
	default:
		err = errUsage
	}

	if err != nil {
		if errors.Is(err, errUsage) {
			flagset.Usage()
		} else {
			c.printErr(err)
		}
		return 1
	}
	return 0
}

func (c *cli) printErr(err error) {
	_, _ = fmt.Fprintf(c.stderr, "[error] %+v\n", err)
}

func (c *cli) compileAll(opts *options) error {
	if len(opts.args) == 0 {
		return errUsage
	}

	ctx := context.Background()
	if opts.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.cfg.Timeout)
		defer cancel()
	}

	results, err := pycache.CompileAll(ctx, opts.args,
		opts.cfg.CacheOptions(c.traceWriter(opts.cfg)), opts.cfg.Jobs)
	for _, r := range results {
		if r.Err != nil {
			c.printErr(r.Err)
			continue
		}
		if r.Path != "" {
			_, _ = fmt.Fprintf(c.stdout, "%s -> %s\n", r.Source, r.Path)
		}
	}
	if err != nil && ctx.Err() == nil {
		// per file errors are already printed
		return errCompile
	}
	return err
}

func (c *cli) traceWriter(cfg config.Config) io.Writer {
	if len(cfg.Trace) == 0 {
		return nil
	}
	return c.stdout
}

func (c *cli) loadScript(opts *options, path string) (*minipyc.CodeUnit, error) {
	traceOut := c.traceWriter(opts.cfg)
	if opts.cached {
		if path == "-" {
			return nil, errors.New("-cached requires a script file")
		}
		return pycache.NewLoader(opts.cfg.CacheOptions(traceOut)).Load(path)
	}

	var (
		script []byte
		err    error
	)
	copts := opts.cfg.CompilerOptions(traceOut)
	if path == "-" {
		copts.Filename = stdinName
		script, err = io.ReadAll(c.stdin)
	} else {
		copts.Filename = path
		script, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return minipyc.Compile(script, copts)
}

func (c *cli) runScript(opts *options, path string, argv []string) error {
	unit, err := c.loadScript(opts, path)
	if err != nil {
		return err
	}

	if opts.dis {
		unit.Fprint(c.stdout)
		return nil
	}

	vm := minipyc.NewVM(unit).SetStdout(c.stdout).SetStdin(c.stdin)
	if opts.cfg.Traces(config.TraceVM) {
		vm.SetTrace(c.stdout)
	}

	ctx := context.Background()
	if opts.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.cfg.Timeout)
		defer cancel()
	}

	filename := path
	if path == "-" {
		filename = stdinName
	}
	globals := minipyc.NewGlobals(filename, append([]string{filename}, argv...))
	_, err = vm.RunContext(ctx, globals)
	return err
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice == os.ModeCharDevice
}

func hasInputRedirection(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeNamedPipe == os.ModeNamedPipe ||
		info.Size() > 0
}

func main() {
	c := &cli{
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		interactive: isTerminal(os.Stdin) && isTerminal(os.Stdout),
		redirected:  hasInputRedirection(os.Stdin),
	}
	os.Exit(c.run(os.Args[1:]))
}
