// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package parser

import (
	"strings"
)

// Node represents a node in the AST.
type Node interface {
	// Pos returns the position of first character belonging to the node.
	Pos() Pos
	// End returns the position of first character immediately after the node.
	End() Pos
	// String returns a string representation of the node.
	String() string
}

// Expr represents an expression node in the AST.
type Expr interface {
	Node
	exprNode()
}

// Stmt represents a statement in the AST.
type Stmt interface {
	Node
	stmtNode()
}

// File represents a file unit.
type File struct {
	InputFile *SourceFile
	Stmts     []Stmt
}

// Pos returns the position of first character belonging to the node.
func (n *File) Pos() Pos {
	return Pos(n.InputFile.Base)
}

// End returns the position of first character immediately after the node.
func (n *File) End() Pos {
	return Pos(n.InputFile.Base + n.InputFile.Size)
}

func (n *File) String() string {
	var stmts []string
	for _, e := range n.Stmts {
		stmts = append(stmts, e.String())
	}
	return strings.Join(stmts, "; ")
}

// Inspect traverses an AST in depth-first order, calling fn for each node
// before its children. Traversal of a subtree stops when fn returns false.
func Inspect(node Node, fn func(Node) bool) {
	if node == nil || !fn(node) {
		return
	}
	switch n := node.(type) {
	case *File:
		for _, s := range n.Stmts {
			Inspect(s, fn)
		}
	case *BlockStmt:
		for _, s := range n.Stmts {
			Inspect(s, fn)
		}
	case *ExprStmt:
		Inspect(n.Expr, fn)
	case *AssignStmt:
		Inspect(n.LHS, fn)
		Inspect(n.RHS, fn)
	case *IfStmt:
		Inspect(n.Cond, fn)
		Inspect(n.Body, fn)
		if n.Else != nil {
			Inspect(n.Else, fn)
		}
	case *WhileStmt:
		Inspect(n.Cond, fn)
		Inspect(n.Body, fn)
	case *ForInStmt:
		Inspect(n.Target, fn)
		Inspect(n.Iterable, fn)
		Inspect(n.Body, fn)
	case *FuncDefStmt:
		Inspect(n.Name, fn)
		for _, p := range n.Params {
			Inspect(p, fn)
		}
		Inspect(n.Body, fn)
	case *ReturnStmt:
		if n.Result != nil {
			Inspect(n.Result, fn)
		}
	case *GlobalStmt:
		for _, name := range n.Names {
			Inspect(name, fn)
		}
	case *BinaryExpr:
		Inspect(n.LHS, fn)
		Inspect(n.RHS, fn)
	case *UnaryExpr:
		Inspect(n.Expr, fn)
	case *ParenExpr:
		Inspect(n.Expr, fn)
	case *CallExpr:
		Inspect(n.Func, fn)
		for _, a := range n.Args {
			Inspect(a, fn)
		}
	case *IndexExpr:
		Inspect(n.Expr, fn)
		Inspect(n.Index, fn)
	case *ListLit:
		for _, e := range n.Elements {
			Inspect(e, fn)
		}
	}
}
