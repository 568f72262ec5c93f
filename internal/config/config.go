// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

// Package config loads the minipyc configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/minipyc/minipyc"
	"github.com/minipyc/minipyc/pycache"
)

// DefaultFile is loaded when no configuration file is given and it exists in
// the working directory.
const DefaultFile = "minipyc.yaml"

// Trace stages.
const (
	TraceParser    = "parser"
	TraceOptimizer = "optimizer"
	TraceCompiler  = "compiler"
	TraceVM        = "vm"
)

var traceStages = []string{TraceParser, TraceOptimizer, TraceCompiler, TraceVM}

// Config holds the settings of the command line tool.
type Config struct {
	Optimize  bool          `yaml:"optimize"`
	CacheDir  string        `yaml:"cache_dir"`
	CacheTag  string        `yaml:"cache_tag"`
	CheckHash bool          `yaml:"check_hash"`
	Jobs      int           `yaml:"jobs"`
	Trace     []string      `yaml:"trace"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Optimize: true,
		CacheDir: pycache.DefaultDir,
		CacheTag: pycache.DefaultTag,
	}
}

// Parse decodes YAML from r over the defaults. Unknown keys are errors, an
// empty document yields the defaults. A trace list containing "all" selects
// every stage.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	for _, s := range cfg.Trace {
		if s == "all" {
			cfg.Trace = append([]string(nil), traceStages...)
			break
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads the configuration file at path. If path is empty, DefaultFile
// is read when it exists, otherwise the defaults are returned.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	f, err := os.Open(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values of the configuration.
func (c Config) Validate() error {
	var issues []string
	if c.Jobs < 0 {
		issues = append(issues, fmt.Sprintf("jobs must not be negative, got %d", c.Jobs))
	}
	if c.Timeout < 0 {
		issues = append(issues, fmt.Sprintf("timeout must not be negative, got %s", c.Timeout))
	}
	if c.CacheDir == "" || filepath.IsAbs(c.CacheDir) {
		issues = append(issues, fmt.Sprintf("cache_dir must be a relative path, got %q", c.CacheDir))
	}
	if c.CacheTag == "" || strings.ContainsAny(c.CacheTag, `/\`) {
		issues = append(issues, fmt.Sprintf("invalid cache_tag %q", c.CacheTag))
	}
	for _, s := range c.Trace {
		if !isTraceStage(s) {
			issues = append(issues, fmt.Sprintf("unknown trace stage %q", s))
		}
	}
	if len(issues) > 0 {
		return fmt.Errorf("config: %s", strings.Join(issues, "; "))
	}
	return nil
}

func isTraceStage(s string) bool {
	for _, stage := range traceStages {
		if s == stage {
			return true
		}
	}
	return false
}

// ParseTrace parses a comma separated list of trace stages, "all" selects
// every stage.
func ParseTrace(s string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
		case part == "all":
			return append([]string(nil), traceStages...), nil
		case isTraceStage(part):
			out = append(out, part)
		default:
			return nil, fmt.Errorf("unknown trace stage %q", part)
		}
	}
	return out, nil
}

// Traces reports whether the stage is traced.
func (c Config) Traces(stage string) bool {
	for _, s := range c.Trace {
		if s == stage {
			return true
		}
	}
	return false
}

// CompilerOptions converts the configuration to compiler options writing
// traces to w. Tracing is disabled if w is nil.
func (c Config) CompilerOptions(w io.Writer) minipyc.CompilerOptions {
	opts := minipyc.CompilerOptions{Optimize: c.Optimize}
	if w != nil {
		opts.Trace = w
		opts.TraceParser = c.Traces(TraceParser)
		opts.TraceOptimizer = c.Traces(TraceOptimizer)
		opts.TraceCompiler = c.Traces(TraceCompiler)
	}
	return opts
}

// CacheOptions converts the configuration to cache options.
func (c Config) CacheOptions(w io.Writer) pycache.Options {
	return pycache.Options{
		Dir:       c.CacheDir,
		Tag:       c.CacheTag,
		CheckHash: c.CheckHash,
		Compiler:  c.CompilerOptions(w),
	}
}
