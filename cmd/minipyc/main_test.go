//go:build !js
// +build !js

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minipyc/minipyc/internal/config"
	"github.com/minipyc/minipyc/pycache"
)

type testCLI struct {
	cli
	out bytes.Buffer
	err bytes.Buffer
}

func newTestCLI(stdin string) *testCLI {
	c := &testCLI{}
	c.stdin = strings.NewReader(stdin)
	c.stdout = &c.out
	c.stderr = &c.err
	return c
}

func writeScript(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	c := newTestCLI("")
	require.Equal(t, 0, c.run([]string{"-v"}))
	require.Equal(t, "minipyc 0.1.0 (artifact format 1, tag minipyc-1)\n", c.out.String())
	require.Empty(t, c.err.String())
}

func TestRunScript(t *testing.T) {
	path := writeScript(t, "prog.py", `#!/usr/bin/env minipyc
def fib(n):
    if n < 2:
        return n
    return fib(n - 1) + fib(n - 2)

print(fib(10), len(argv), argv[1], argv[2])
print(__name__)
name = input()
print("hello", name)
`)
	c := newTestCLI("world\n")
	require.Equal(t, 0, c.run([]string{path, "a", "b"}), c.err.String())
	require.Equal(t, "55 3 a b\n__main__\nhello world\n", c.out.String())
	require.Empty(t, c.err.String())

	// argv[0] is the script path
	path = writeScript(t, "argv.py", "print(argv[0] == __file__)\n")
	c = newTestCLI("")
	require.Equal(t, 0, c.run([]string{"-no-optimizer", path}))
	require.Equal(t, "True\n", c.out.String())
}

func TestRunStdin(t *testing.T) {
	c := newTestCLI("x = 40\nprint(x + 2, __file__)\n")
	c.redirected = true
	require.Equal(t, 0, c.run(nil))
	require.Equal(t, "42 (stdin)\n", c.out.String())

	c = newTestCLI("print('dash')\n")
	require.Equal(t, 0, c.run([]string{"-"}))
	require.Equal(t, "dash\n", c.out.String())
}

func TestUsage(t *testing.T) {
	c := newTestCLI("")
	require.Equal(t, 1, c.run(nil))
	require.Contains(t, c.err.String(), "Usage: minipyc [flags] script.py")
	require.Empty(t, c.out.String())

	c = newTestCLI("")
	require.Equal(t, 1, c.run([]string{"-c"}))
	require.Contains(t, c.err.String(), "Usage: minipyc")

	c = newTestCLI("")
	require.Equal(t, 0, c.run([]string{"-h"}))
	require.Contains(t, c.err.String(), "-no-optimizer")

	c = newTestCLI("")
	require.Equal(t, 1, c.run([]string{"-unknown"}))
	require.NotContains(t, c.err.String(), "[error]")
	require.Contains(t, c.err.String(), "flag provided but not defined")
}

func TestErrors(t *testing.T) {
	testCases := []struct {
		name   string
		src    string
		args   []string
		prefix string
		msg    string
	}{
		{"parse", "x = \n", nil, "[error] Parse Error:", "bad.py:1:"},
		{"lex", "x = $\n", nil, "[error] Lex Error:", "bad.py:1:5"},
		{"runtime", "a = 0\nx = 1 / a\n", nil,
			"[error] ZeroDivisionError: division by zero", "bad.py:2"},
		{"name", "print(nope)\n", nil, "[error] NameError:", "nope"},
		{"timeout", "while True:\n    pass\n", []string{"-timeout", "20ms"},
			"[error] VMAbortedError", "context deadline exceeded"},
	}
	for _, tC := range testCases {
		t.Run(tC.name, func(t *testing.T) {
			path := writeScript(t, "bad.py", tC.src)
			c := newTestCLI("")
			require.Equal(t, 1, c.run(append(tC.args, path)))
			require.True(t, strings.HasPrefix(c.err.String(), tC.prefix), c.err.String())
			require.Contains(t, c.err.String(), tC.msg)
		})
	}

	c := newTestCLI("")
	require.Equal(t, 1, c.run([]string{filepath.Join(t.TempDir(), "missing.py")}))
	require.Contains(t, c.err.String(), "no such file")

	c = newTestCLI("")
	require.Equal(t, 1, c.run([]string{"-trace", "lexer", "x.py"}))
	require.Equal(t, "[error] unknown trace stage \"lexer\"\n", c.err.String())

	c = newTestCLI("")
	require.Equal(t, 1, c.run([]string{"-jobs", "-2", "-c", "x.py"}))
	require.Contains(t, c.err.String(), "jobs must not be negative")

	c = newTestCLI("x = 1\n")
	c.redirected = true
	require.Equal(t, 1, c.run([]string{"-cached"}))
	require.Contains(t, c.err.String(), "-cached requires a script file")
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(dir, "conf.yaml")
	require.NoError(t, os.WriteFile(conf,
		[]byte("cache_dir: build\ncache_tag: cfg-3\noptimize: false\n"), 0o644))
	script := filepath.Join(dir, "s.py")
	require.NoError(t, os.WriteFile(script, []byte("x = 2 * 3\n"), 0o644))

	c := newTestCLI("")
	require.Equal(t, 0, c.run([]string{"-config", conf, "-c", script}), c.err.String())
	artifact := filepath.Join(dir, "build", "s.cfg-3.pyc")
	require.Equal(t, script+" -> "+artifact+"\n", c.out.String())
	_, err := os.Stat(artifact)
	require.NoError(t, err)

	// unoptimized code keeps the operands, the flag enables folding again
	c = newTestCLI("")
	require.Equal(t, 0, c.run([]string{"-config", conf, "-dis", script}))
	require.Contains(t, c.out.String(), "BINARYOP")
	c = newTestCLI("")
	require.Equal(t, 0, c.run([]string{"-config", conf, "-no-optimizer=false", "-dis", script}))
	require.NotContains(t, c.out.String(), "BINARYOP")
	require.Contains(t, c.out.String(), "6|int")

	require.NoError(t, os.WriteFile(conf, []byte("cache: x\n"), 0o644))
	c = newTestCLI("")
	require.Equal(t, 1, c.run([]string{"-config", conf, script}))
	require.Contains(t, c.err.String(), "field cache not found")
}

func TestCompileMode(t *testing.T) {
	dir := t.TempDir()
	var sources []string
	for _, name := range []string{"a.py", "b.py", "c.py"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("v = '"+name+"'\n"), 0o644))
		sources = append(sources, path)
	}

	c := newTestCLI("")
	require.Equal(t, 0, c.run(append([]string{"-c", "-jobs", "2"}, sources...)), c.err.String())
	for _, src := range sources {
		path := pycache.CachePath(src, pycache.Options{})
		require.Contains(t, c.out.String(), src+" -> "+path+"\n")
		stale, err := pycache.IsStale(src, pycache.Options{})
		require.NoError(t, err)
		require.False(t, stale)
	}

	bad := filepath.Join(dir, "bad.py")
	require.NoError(t, os.WriteFile(bad, []byte("def (\n"), 0o644))
	c = newTestCLI("")
	require.Equal(t, 1, c.run([]string{"-c", sources[0], bad}))
	require.Contains(t, c.out.String(), sources[0]+" -> ")
	require.Contains(t, c.err.String(), "[error] Parse Error:")
	require.True(t, strings.HasSuffix(c.err.String(), "[error] compilation failed\n"))
}

func TestCachedRun(t *testing.T) {
	path := writeScript(t, "cached.py", "print(max(3, 9, 4))\n")

	c := newTestCLI("")
	require.Equal(t, 0, c.run([]string{"-cached", path}), c.err.String())
	require.Equal(t, "9\n", c.out.String())

	stale, err := pycache.IsStale(path, pycache.Options{})
	require.NoError(t, err)
	require.False(t, stale)

	// second run reads the artifact
	c = newTestCLI("")
	require.Equal(t, 0, c.run([]string{"-cached", path}))
	require.Equal(t, "9\n", c.out.String())
}

func TestTrace(t *testing.T) {
	path := writeScript(t, "t.py", "x = 1 + 2\n")

	c := newTestCLI("")
	require.Equal(t, 0, c.run([]string{"-trace", "vm", path}))
	require.Contains(t, c.out.String(), "SETGLOBAL")

	c = newTestCLI("")
	require.Equal(t, 0, c.run([]string{"-trace", "all", path}))
	require.Contains(t, c.out.String(), "File (")
	require.Contains(t, c.out.String(), "SETGLOBAL")
}

func TestREPL(t *testing.T) {
	var out bytes.Buffer
	r := newREPL(context.Background(), config.Default(), &out)
	require.Equal(t, promptPrefix, r.prefix())

	exec := func(line string) string {
		t.Helper()
		out.Reset()
		require.NoError(t, r.execute(line))
		return out.String()
	}

	require.Equal(t, "", exec(""))
	require.Equal(t, "3\n", exec("1 + 2"))
	require.Equal(t, "", exec("x = 5"))
	require.Equal(t, "'abc'\n", exec("'a' + 'bc'"))

	require.Equal(t, "", exec("def f(a):"))
	require.Equal(t, promptPrefix2, r.prefix())
	require.Equal(t, "", exec("    return a * x"))
	require.Equal(t, "", exec(""))
	require.Equal(t, promptPrefix, r.prefix())
	require.Equal(t, "10\n", exec("f(2)"))
	require.Equal(t, "10|int\n", exec(".return"))

	require.Contains(t, exec(".bytecode"), "Instructions:")

	require.Equal(t, "", exec("for i in range(2):"))
	require.Equal(t, "", exec("    print(i)"))
	require.Equal(t, "0\n1\n", exec(""))

	require.True(t, strings.HasPrefix(exec("y"), "[error] NameError:"))
	require.True(t, strings.HasPrefix(exec("y = * 2"), "[error] Parse Error:"))
	require.Equal(t, "10\n", exec("f(2)"))

	globals := exec(".globals")
	require.Contains(t, globals, "__name__ = '__main__'\n")
	require.Contains(t, globals, "x = 5\n")
	require.Contains(t, globals, "i = 1\n")

	require.Contains(t, exec(".keywords"), "while\n")
	builtins := exec(".builtins")
	require.Contains(t, builtins, "print")
	require.Contains(t, builtins, "Builtin Function")
	require.Contains(t, exec(".commands"), ".exit")

	require.Equal(t, errReset, r.execute(".reset"))
	require.Equal(t, errExit, r.execute(".exit"))

	require.Contains(t, r.complete("pri"), "print")
	require.Contains(t, r.complete("z = ma"), "z = max")
	require.Contains(t, r.complete("wh"), "while")
	require.Nil(t, r.complete("f("))
}
