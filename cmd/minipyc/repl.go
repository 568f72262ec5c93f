// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

//go:build !js
// +build !js

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sort"
	"strings"

	"github.com/peterh/liner"

	"github.com/minipyc/minipyc"
	"github.com/minipyc/minipyc/internal/config"
	"github.com/minipyc/minipyc/token"
)

const (
	replFilename  = "(repl)"
	promptPrefix  = ">>> "
	promptPrefix2 = "... "
)

// Sentinel errors for repl.
var (
	errExit  = errors.New("exit")
	errReset = errors.New("reset")
)

type suggest struct {
	text        string
	description string
	typ         string
}

type repl struct {
	ctx         context.Context
	eval        *minipyc.Eval
	out         io.Writer
	commands    map[string]func(string) error
	suggestions []suggest
	script      *bytes.Buffer
	lastUnit    *minipyc.CodeUnit
	lastResult  minipyc.Object
	isMultiline bool
}

func newREPL(ctx context.Context, cfg config.Config, stdout io.Writer) *repl {
	var traceOut io.Writer
	if len(cfg.Trace) > 0 {
		traceOut = stdout
	}
	opts := cfg.CompilerOptions(traceOut)
	opts.Filename = replFilename

	r := &repl{
		ctx:    ctx,
		eval:   minipyc.NewEval(opts, minipyc.NewGlobals(replFilename, nil)),
		out:    stdout,
		script: bytes.NewBuffer(nil),
	}
	r.eval.VM.SetStdout(stdout)
	if cfg.Traces(config.TraceVM) {
		r.eval.VM.SetTrace(stdout)
	}

	r.commands = map[string]func(string) error{
		".commands": r.cmdCommands,
		".builtins": r.cmdBuiltins,
		".keywords": r.cmdKeywords,
		".bytecode": r.cmdBytecode,
		".globals":  r.cmdGlobals,
		".return":   r.cmdReturn,
		".reset":    func(string) error { return errReset },
		".exit":     func(string) error { return errExit },
	}
	r.initSuggestions()
	return r
}

func (r *repl) initSuggestions() {
	r.suggestions = []suggest{
		{text: ".commands", description: "Print REPL commands"},
		{text: ".builtins", description: "Print Builtins"},
		{text: ".keywords", description: "Print Keywords"},
		{text: ".bytecode", description: "Print Bytecode of last input"},
		{text: ".globals", description: "Print Globals"},
		{text: ".return", description: "Print Last Return Result"},
		{text: ".reset", description: "Reset"},
		{text: ".exit", description: "Exit"},
	}
	for name := range minipyc.BuiltinsMap {
		r.suggestions = append(r.suggestions, suggest{
			text:        name,
			description: "Builtin Function",
			typ:         "builtin",
		})
	}
	for _, kw := range token.Keywords() {
		r.suggestions = append(r.suggestions, suggest{text: kw, typ: "keyword"})
	}
	sort.SliceStable(r.suggestions, func(i, j int) bool {
		if r.suggestions[i].typ != r.suggestions[j].typ {
			return r.suggestions[i].typ < r.suggestions[j].typ
		}
		return r.suggestions[i].text < r.suggestions[j].text
	})
}

func (r *repl) cmdCommands(_ string) error {
	r.printSuggestions(r.filterSuggestions(
		func(s suggest) bool { return s.typ == "" }))
	return nil
}

func (r *repl) cmdBuiltins(_ string) error {
	r.printSuggestions(r.filterSuggestions(
		func(s suggest) bool { return s.typ == "builtin" }))
	return nil
}

func (r *repl) cmdKeywords(_ string) error {
	r.printSuggestions(r.filterSuggestions(
		func(s suggest) bool { return s.typ == "keyword" }))
	return nil
}

func (r *repl) filterSuggestions(filter func(suggest) bool) []suggest {
	var suggs []suggest
	for _, v := range r.suggestions {
		if filter(v) {
			suggs = append(suggs, v)
		}
	}
	return suggs
}

func (r *repl) printSuggestions(suggs []suggest) {
	var maxtext int
	for _, s := range suggs {
		if maxtext < len(s.text) {
			maxtext = len(s.text)
		}
	}
	for _, s := range suggs {
		_, _ = fmt.Fprint(r.out, s.text)
		if len(s.description) > 0 {
			_, _ = fmt.Fprint(r.out, strings.Repeat(" ", maxtext-len(s.text)))
			_, _ = fmt.Fprintf(r.out, "\t%s", s.description)
		}
		_, _ = fmt.Fprintln(r.out)
	}
}

func (r *repl) cmdBytecode(_ string) error {
	if r.lastUnit == nil {
		_, _ = fmt.Fprintln(r.out, "<nil>")
		return nil
	}
	r.lastUnit.Fprint(r.out)
	return nil
}

func (r *repl) cmdGlobals(_ string) error {
	names := make([]string, 0, len(r.eval.Globals))
	for k := range r.eval.Globals {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		_, _ = fmt.Fprintf(r.out, "%s = %s\n", k, minipyc.Repr(r.eval.Globals[k]))
	}
	return nil
}

func (r *repl) cmdReturn(_ string) error {
	if r.lastResult == nil {
		_, _ = fmt.Fprintln(r.out, "<nil>")
		return nil
	}
	_, _ = fmt.Fprintf(r.out, "%s|%s\n",
		minipyc.Repr(r.lastResult), r.lastResult.TypeName())
	return nil
}

// execute handles one input line. A line ending with a colon starts a block
// which is executed when an empty line is entered.
func (r *repl) execute(line string) error {
	trimmed := strings.TrimSpace(line)
	switch {
	case !r.isMultiline && trimmed == "":
		return nil
	case !r.isMultiline && trimmed[0] == '.':
		cmd := strings.Fields(trimmed)[0]
		if fn, ok := r.commands[cmd]; ok {
			return fn(trimmed)
		}
	case r.isMultiline && trimmed == "":
		r.executeScript()
		return nil
	case r.isMultiline || strings.HasSuffix(trimmed, ":"):
		r.isMultiline = true
		r.script.WriteString(line)
		r.script.WriteString("\n")
		return nil
	}

	r.script.WriteString(line)
	r.script.WriteString("\n")
	r.executeScript()
	return nil
}

func (r *repl) executeScript() {
	defer func() {
		r.isMultiline = false
		r.script.Reset()
	}()

	var (
		unit *minipyc.CodeUnit
		err  error
	)
	r.lastResult, unit, err = r.eval.Run(r.ctx, r.script.Bytes())
	if unit != nil {
		r.lastUnit = unit
	}
	if err != nil {
		_, _ = fmt.Fprintf(r.out, "[error] %+v\n", err)
		return
	}
	if r.lastResult != nil && r.lastResult != minipyc.None {
		_, _ = fmt.Fprintln(r.out, minipyc.Repr(r.lastResult))
	}
}

func (r *repl) prefix() string {
	if r.isMultiline {
		return promptPrefix2
	}
	return promptPrefix
}

func (r *repl) printInfo() {
	_, _ = fmt.Fprintf(r.out, "%s %s (%s %s/%s)\n", minipyc.Name,
		minipyc.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintln(r.out, "Write .commands to list available commands")
	_, _ = fmt.Fprintln(r.out, "Press Ctrl+D or write .exit command to exit")
	_, _ = fmt.Fprintln(r.out)
}

// complete returns the suggestions starting with the last word of line
// followed by the ones containing it.
func (r *repl) complete(line string) (completions []string) {
	head, word := "", line
	if i := strings.LastIndexAny(line, " \t()[],:=+-*/%<>"); i >= 0 {
		head, word = line[:i+1], line[i+1:]
	}
	if word == "" {
		return nil
	}

	candidates := make([]string, 0, len(r.suggestions)+len(r.eval.Globals))
	for _, s := range r.suggestions {
		candidates = append(candidates, s.text)
	}
	for name := range r.eval.Globals {
		candidates = append(candidates, name)
	}
	sort.Strings(candidates)

	var contains []string
	for _, c := range candidates {
		if strings.HasPrefix(c, word) {
			completions = append(completions, head+c)
		} else if strings.Contains(c, word) {
			contains = append(contains, head+c)
		}
	}
	return append(completions, contains...)
}

func (r *repl) run(history io.Reader) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(r.complete)
	if _, err := line.ReadHistory(history); err != nil {
		return &minipyc.Error{Message: "failed history read", Cause: err}
	}
	r.printInfo()

	for {
		str, err := line.Prompt(r.prefix())
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return nil
			case errors.Is(err, liner.ErrPromptAborted):
				r.isMultiline = false
				r.script.Reset()
				continue
			}
			return &minipyc.Error{Message: "prompt error", Cause: err}
		}
		if err = r.execute(str); err != nil {
			return err
		}
		if v := strings.TrimSpace(str); len(v) > 0 {
			line.AppendHistory(str)
		}
	}
}

const replHistory = "x = 1\n" +
	"def add(a, b):\n" +
	"    return a + b\n" +
	"for i in range(3):\n" +
	"    print(i)\n" +
	"while x < 10:\n" +
	"    x = x * 2\n" +
	"print(str(1.5), len('abc'), type(x))\n"

func (c *cli) runREPL(opts *options) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		err := newREPL(ctx, opts.cfg, c.stdout).run(strings.NewReader(replHistory))
		switch {
		case errors.Is(err, errReset):
			continue
		case errors.Is(err, errExit):
			return nil
		}
		return err
	}
}
