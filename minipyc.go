// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

// Package minipyc compiles a subset of Python to bytecode and runs it.
package minipyc

// Name is the interpreter name used in cache tags.
const Name = "minipyc"

// Version of the interpreter.
const Version = "0.1.0"

// MainModuleName is the value of the __name__ global of the executed script.
const MainModuleName = "__main__"

// NewGlobals returns the initial globals of a script run with the given
// file name and arguments. argv holds the script path first.
func NewGlobals(filename string, argv []string) map[string]Object {
	args := make(List, 0, len(argv))
	for _, a := range argv {
		args = append(args, String(a))
	}
	return map[string]Object{
		"__name__": String(MainModuleName),
		"__file__": String(filename),
		"argv":     args,
	}
}
