// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package parser

import (
	"strings"

	"github.com/minipyc/minipyc/token"
)

// ExprStmt represents an expression statement.
type ExprStmt struct {
	Expr Expr
}

func (s *ExprStmt) stmtNode() {}

// Pos returns the position of first character belonging to the node.
func (s *ExprStmt) Pos() Pos {
	return s.Expr.Pos()
}

// End returns the position of first character immediately after the node.
func (s *ExprStmt) End() Pos {
	return s.Expr.End()
}

func (s *ExprStmt) String() string {
	return s.Expr.String()
}

// AssignStmt represents a plain or an augmented assignment. LHS is either
// an *Ident or an *IndexExpr.
type AssignStmt struct {
	LHS      Expr
	RHS      Expr
	Token    token.Token
	TokenPos Pos
}

func (s *AssignStmt) stmtNode() {}

// Pos returns the position of first character belonging to the node.
func (s *AssignStmt) Pos() Pos {
	return s.LHS.Pos()
}

// End returns the position of first character immediately after the node.
func (s *AssignStmt) End() Pos {
	return s.RHS.End()
}

func (s *AssignStmt) String() string {
	return s.LHS.String() + " " + s.Token.String() + " " + s.RHS.String()
}

// BlockStmt represents an indented suite or a single line suite.
type BlockStmt struct {
	Stmts []Stmt
	Start Pos
	Stop  Pos
}

func (s *BlockStmt) stmtNode() {}

// Pos returns the position of first character belonging to the node.
func (s *BlockStmt) Pos() Pos {
	return s.Start
}

// End returns the position of first character immediately after the node.
func (s *BlockStmt) End() Pos {
	return s.Stop
}

func (s *BlockStmt) String() string {
	var list []string
	for _, e := range s.Stmts {
		list = append(list, e.String())
	}
	return "{" + strings.Join(list, "; ") + "}"
}

// IfStmt represents an if statement. Else is nil, an *IfStmt for elif
// branches or a *BlockStmt.
type IfStmt struct {
	IfPos Pos
	Cond  Expr
	Body  *BlockStmt
	Else  Stmt
}

func (s *IfStmt) stmtNode() {}

// Pos returns the position of first character belonging to the node.
func (s *IfStmt) Pos() Pos {
	return s.IfPos
}

// End returns the position of first character immediately after the node.
func (s *IfStmt) End() Pos {
	if s.Else != nil {
		return s.Else.End()
	}
	return s.Body.End()
}

func (s *IfStmt) String() string {
	var elseStmt string
	if s.Else != nil {
		elseStmt = " else " + s.Else.String()
	}
	return "if " + s.Cond.String() + " " + s.Body.String() + elseStmt
}

// WhileStmt represents a while loop.
type WhileStmt struct {
	WhilePos Pos
	Cond     Expr
	Body     *BlockStmt
}

func (s *WhileStmt) stmtNode() {}

// Pos returns the position of first character belonging to the node.
func (s *WhileStmt) Pos() Pos {
	return s.WhilePos
}

// End returns the position of first character immediately after the node.
func (s *WhileStmt) End() Pos {
	return s.Body.End()
}

func (s *WhileStmt) String() string {
	return "while " + s.Cond.String() + " " + s.Body.String()
}

// ForInStmt represents a for-in loop.
type ForInStmt struct {
	ForPos   Pos
	Target   *Ident
	Iterable Expr
	Body     *BlockStmt
}

func (s *ForInStmt) stmtNode() {}

// Pos returns the position of first character belonging to the node.
func (s *ForInStmt) Pos() Pos {
	return s.ForPos
}

// End returns the position of first character immediately after the node.
func (s *ForInStmt) End() Pos {
	return s.Body.End()
}

func (s *ForInStmt) String() string {
	return "for " + s.Target.String() + " in " + s.Iterable.String() +
		" " + s.Body.String()
}

// FuncDefStmt represents a function definition.
type FuncDefStmt struct {
	DefPos Pos
	Name   *Ident
	Params []*Ident
	Body   *BlockStmt
}

func (s *FuncDefStmt) stmtNode() {}

// Pos returns the position of first character belonging to the node.
func (s *FuncDefStmt) Pos() Pos {
	return s.DefPos
}

// End returns the position of first character immediately after the node.
func (s *FuncDefStmt) End() Pos {
	return s.Body.End()
}

func (s *FuncDefStmt) String() string {
	var params []string
	for _, p := range s.Params {
		params = append(params, p.String())
	}
	return "def " + s.Name.String() + "(" + strings.Join(params, ", ") +
		") " + s.Body.String()
}

// ReturnStmt represents a return statement. Result is nil for a bare return.
type ReturnStmt struct {
	ReturnPos Pos
	Result    Expr
}

func (s *ReturnStmt) stmtNode() {}

// Pos returns the position of first character belonging to the node.
func (s *ReturnStmt) Pos() Pos {
	return s.ReturnPos
}

// End returns the position of first character immediately after the node.
func (s *ReturnStmt) End() Pos {
	if s.Result != nil {
		return s.Result.End()
	}
	return s.ReturnPos + 6
}

func (s *ReturnStmt) String() string {
	if s.Result != nil {
		return "return " + s.Result.String()
	}
	return "return"
}

// BranchStmt represents a break or continue statement.
type BranchStmt struct {
	Token    token.Token
	TokenPos Pos
}

func (s *BranchStmt) stmtNode() {}

// Pos returns the position of first character belonging to the node.
func (s *BranchStmt) Pos() Pos {
	return s.TokenPos
}

// End returns the position of first character immediately after the node.
func (s *BranchStmt) End() Pos {
	return Pos(int(s.TokenPos) + len(s.Token.String()))
}

func (s *BranchStmt) String() string {
	return s.Token.String()
}

// PassStmt represents a pass statement.
type PassStmt struct {
	PassPos Pos
}

func (s *PassStmt) stmtNode() {}

// Pos returns the position of first character belonging to the node.
func (s *PassStmt) Pos() Pos {
	return s.PassPos
}

// End returns the position of first character immediately after the node.
func (s *PassStmt) End() Pos {
	return s.PassPos + 4
}

func (s *PassStmt) String() string {
	return "pass"
}

// GlobalStmt represents a global declaration.
type GlobalStmt struct {
	GlobalPos Pos
	Names     []*Ident
}

func (s *GlobalStmt) stmtNode() {}

// Pos returns the position of first character belonging to the node.
func (s *GlobalStmt) Pos() Pos {
	return s.GlobalPos
}

// End returns the position of first character immediately after the node.
func (s *GlobalStmt) End() Pos {
	return s.Names[len(s.Names)-1].End()
}

func (s *GlobalStmt) String() string {
	var names []string
	for _, n := range s.Names {
		names = append(names, n.String())
	}
	return "global " + strings.Join(names, ", ")
}
