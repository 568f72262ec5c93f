// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package minipyc

import (
	"fmt"
	"math"

	"github.com/minipyc/minipyc/parser"
)

// SymbolScope represents a symbol scope.
type SymbolScope string

// List of symbol scopes
const (
	ScopeGlobal SymbolScope = "GLOBAL"
	ScopeLocal  SymbolScope = "LOCAL"
)

// Symbol represents a resolved name.
type Symbol struct {
	Name  string
	Index int
	Scope SymbolScope
}

func (s Symbol) String() string {
	return fmt.Sprintf("Symbol{Name:%s Index:%d Scope:%s}",
		s.Name, s.Index, s.Scope)
}

// SymbolTable holds the name tables of a single code unit. Module tables
// resolve every name as global. Function tables resolve parameters and
// assigned names as locals, unless they are declared global.
type SymbolTable struct {
	function  bool
	numParams int
	names     []string
	nameIdx   map[string]int
	locals    []string
	localIdx  map[string]int
	globals   map[string]struct{}
}

// NewSymbolTable creates a symbol table of module scope.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		nameIdx:  make(map[string]int),
		localIdx: make(map[string]int),
		globals:  make(map[string]struct{}),
	}
}

// NewFunctionSymbolTable creates a symbol table for a function body. Local
// variables are collected from the body before code generation so a name
// read before its first assignment still resolves as a local.
func NewFunctionSymbolTable(params []string, body []parser.Stmt) *SymbolTable {
	st := NewSymbolTable()
	st.function = true
	st.numParams = len(params)

	collectGlobals(body, st.globals)
	for _, p := range params {
		st.defineLocal(p)
	}
	collectLocals(body, func(name string) {
		if _, ok := st.globals[name]; !ok {
			st.defineLocal(name)
		}
	})
	return st
}

// IsFunction reports whether the table belongs to a function body.
func (st *SymbolTable) IsFunction() bool {
	return st.function
}

// NumParams returns the number of parameters.
func (st *SymbolTable) NumParams() int {
	return st.numParams
}

// Names returns the global name table.
func (st *SymbolTable) Names() []string {
	return st.names
}

// Locals returns the local variable table, parameters first.
func (st *SymbolTable) Locals() []string {
	return st.locals
}

// Resolve resolves a name to a local slot or to an entry of the global name
// table, adding the name to the table if required.
func (st *SymbolTable) Resolve(name string) (Symbol, error) {
	if idx, ok := st.localIdx[name]; ok {
		return Symbol{Name: name, Index: idx, Scope: ScopeLocal}, nil
	}
	idx, ok := st.nameIdx[name]
	if !ok {
		if len(st.names) > math.MaxUint16 {
			return Symbol{}, ErrSymbolLimit
		}
		idx = len(st.names)
		st.names = append(st.names, name)
		st.nameIdx[name] = idx
	}
	return Symbol{Name: name, Index: idx, Scope: ScopeGlobal}, nil
}

func (st *SymbolTable) defineLocal(name string) {
	if _, ok := st.localIdx[name]; ok {
		return
	}
	st.localIdx[name] = len(st.locals)
	st.locals = append(st.locals, name)
}

// collectGlobals adds names declared global in the body, nested function
// bodies are skipped.
func collectGlobals(stmts []parser.Stmt, out map[string]struct{}) {
	walkScope(stmts, func(s parser.Stmt) {
		if g, ok := s.(*parser.GlobalStmt); ok {
			for _, n := range g.Names {
				out[n.Name] = struct{}{}
			}
		}
	})
}

// collectLocals calls fn for every name bound in the body in source order.
func collectLocals(stmts []parser.Stmt, fn func(name string)) {
	walkScope(stmts, func(s parser.Stmt) {
		switch s := s.(type) {
		case *parser.AssignStmt:
			if id, ok := s.LHS.(*parser.Ident); ok {
				fn(id.Name)
			}
		case *parser.ForInStmt:
			fn(s.Target.Name)
		case *parser.FuncDefStmt:
			fn(s.Name.Name)
		}
	})
}

func walkScope(stmts []parser.Stmt, fn func(parser.Stmt)) {
	for _, s := range stmts {
		fn(s)
		switch s := s.(type) {
		case *parser.BlockStmt:
			walkScope(s.Stmts, fn)
		case *parser.IfStmt:
			walkScope(s.Body.Stmts, fn)
			if s.Else != nil {
				walkScope([]parser.Stmt{s.Else}, fn)
			}
		case *parser.WhileStmt:
			walkScope(s.Body.Stmts, fn)
		case *parser.ForInStmt:
			walkScope(s.Body.Stmts, fn)
		}
	}
}
