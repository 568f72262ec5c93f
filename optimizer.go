// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package minipyc

import (
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/minipyc/minipyc/parser"
	"github.com/minipyc/minipyc/token"
)

// maxFoldedStringLen is the longest string result the optimizer stores as a
// literal.
const maxFoldedStringLen = 4096

// Optimizer folds constant arithmetic and string expressions of a parsed
// file. Values are computed with BinaryOp and UnaryOp, the same functions
// the VM uses, so a folded expression always yields the value the VM would
// compute. Expressions raising an error are left to the VM.
type Optimizer struct {
	total    int
	indent   int
	duration time.Duration
	trace    io.Writer
}

// NewOptimizer creates an Optimizer object. A non-nil trace writer prints
// the traversal.
func NewOptimizer(trace io.Writer) *Optimizer {
	return &Optimizer{trace: trace}
}

// Fold runs a new Optimizer on the file and returns the file.
func Fold(file *parser.File) *parser.File {
	return NewOptimizer(nil).Optimize(file)
}

// Optimize rewrites the file in place and returns it.
func (opt *Optimizer) Optimize(file *parser.File) *parser.File {
	start := time.Now()
	defer func() {
		opt.duration += time.Since(start)
		if opt.trace != nil {
			opt.printTraceMsg(fmt.Sprintf("Folded:%d Duration:%s",
				opt.total, opt.duration))
		}
	}()
	_, _ = opt.optimize(file)
	return file
}

// Total returns total number of folded expressions.
func (opt *Optimizer) Total() int {
	return opt.total
}

// Duration returns total elapsed time of Optimize() calls.
func (opt *Optimizer) Duration() time.Duration {
	return opt.duration
}

// optimizeExpr returns the folded form of expr or expr itself.
func (opt *Optimizer) optimizeExpr(expr parser.Expr) parser.Expr {
	if expr == nil {
		return nil
	}
	if v, ok := opt.optimize(expr); ok {
		return v
	}
	return expr
}

func (opt *Optimizer) optimize(node parser.Node) (parser.Expr, bool) {
	if opt.trace != nil {
		defer untraceoptim(traceoptim(opt, fmt.Sprintf("%s (%s)",
			node.String(), reflect.TypeOf(node).Elem().Name())))
	}
	switch node := node.(type) {
	case *parser.File:
		for _, stmt := range node.Stmts {
			_, _ = opt.optimize(stmt)
		}
	case *parser.BlockStmt:
		for _, stmt := range node.Stmts {
			_, _ = opt.optimize(stmt)
		}
	case *parser.ExprStmt:
		node.Expr = opt.optimizeExpr(node.Expr)
	case *parser.AssignStmt:
		node.LHS = opt.optimizeExpr(node.LHS)
		node.RHS = opt.optimizeExpr(node.RHS)
	case *parser.IfStmt:
		node.Cond = opt.optimizeExpr(node.Cond)
		_, _ = opt.optimize(node.Body)
		if node.Else != nil {
			_, _ = opt.optimize(node.Else)
		}
	case *parser.WhileStmt:
		node.Cond = opt.optimizeExpr(node.Cond)
		_, _ = opt.optimize(node.Body)
	case *parser.ForInStmt:
		node.Iterable = opt.optimizeExpr(node.Iterable)
		_, _ = opt.optimize(node.Body)
	case *parser.FuncDefStmt:
		_, _ = opt.optimize(node.Body)
	case *parser.ReturnStmt:
		node.Result = opt.optimizeExpr(node.Result)
	case *parser.ParenExpr:
		node.Expr = opt.optimizeExpr(node.Expr)
		if isFoldable(node.Expr) {
			return node.Expr, true
		}
	case *parser.BinaryExpr:
		node.LHS = opt.optimizeExpr(node.LHS)
		node.RHS = opt.optimizeExpr(node.RHS)
		return opt.binaryop(node)
	case *parser.UnaryExpr:
		node.Expr = opt.optimizeExpr(node.Expr)
		return opt.unaryop(node)
	case *parser.ListLit:
		for i := range node.Elements {
			node.Elements[i] = opt.optimizeExpr(node.Elements[i])
		}
	case *parser.CallExpr:
		node.Func = opt.optimizeExpr(node.Func)
		for i := range node.Args {
			node.Args[i] = opt.optimizeExpr(node.Args[i])
		}
	case *parser.IndexExpr:
		node.Expr = opt.optimizeExpr(node.Expr)
		node.Index = opt.optimizeExpr(node.Index)
	}
	return nil, false
}

func (opt *Optimizer) binaryop(node *parser.BinaryExpr) (parser.Expr, bool) {
	switch node.Token {
	case token.Add, token.Sub, token.Mul, token.Quo,
		token.FloorQuo, token.Rem, token.Pow:
	default:
		return nil, false
	}
	left, ok := literalObject(node.LHS)
	if !ok {
		return nil, false
	}
	right, ok := literalObject(node.RHS)
	if !ok {
		return nil, false
	}
	if node.Token == token.Mul && oversizedRepeat(left, right) {
		if opt.trace != nil {
			opt.printTraceMsg("not folded: ", "string result is too long")
		}
		return nil, false
	}
	v, err := BinaryOp(node.Token, left, right)
	if err != nil {
		if opt.trace != nil {
			opt.printTraceMsg("not folded: ", err)
		}
		return nil, false
	}
	return opt.toLiteral(v, node.Pos())
}

// oversizedRepeat reports whether repeating a string operand by an integer
// operand yields more than maxFoldedStringLen bytes.
func oversizedRepeat(left, right Object) bool {
	s, ok := left.(String)
	count := right
	if !ok {
		if s, ok = right.(String); !ok {
			return false
		}
		count = left
	}
	var n int64
	switch v := count.(type) {
	case Int:
		n = int64(v)
	case Bool:
		if v {
			n = 1
		}
	default:
		return false
	}
	return n > 0 && len(s) > 0 && n > int64(maxFoldedStringLen/len(s))
}

func (opt *Optimizer) unaryop(node *parser.UnaryExpr) (parser.Expr, bool) {
	if node.Token != token.Sub && node.Token != token.Add {
		return nil, false
	}
	operand, ok := literalObject(node.Expr)
	if !ok {
		return nil, false
	}
	v, err := UnaryOp(node.Token, operand)
	if err != nil {
		if opt.trace != nil {
			opt.printTraceMsg("not folded: ", err)
		}
		return nil, false
	}
	return opt.toLiteral(v, node.Pos())
}

func (opt *Optimizer) toLiteral(v Object, pos parser.Pos) (parser.Expr, bool) {
	var expr parser.Expr
	switch v := v.(type) {
	case Int:
		expr = &parser.IntLit{Value: int64(v), ValuePos: pos, Literal: v.String()}
	case Float:
		f := float64(v)
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, false
		}
		expr = &parser.FloatLit{Value: f, ValuePos: pos, Literal: v.String()}
	case String:
		if len(v) > maxFoldedStringLen {
			return nil, false
		}
		expr = &parser.StringLit{Value: string(v), ValuePos: pos, Literal: quote(string(v))}
	case Bool:
		expr = &parser.BoolLit{Value: bool(v), ValuePos: pos,
			Literal: strconv.FormatBool(bool(v))}
	default:
		return nil, false
	}
	opt.total++
	if opt.trace != nil {
		opt.printTraceMsg("folded: ", expr.String())
	}
	return expr, true
}

func isFoldable(expr parser.Expr) bool {
	_, ok := literalObject(expr)
	return ok
}

func literalObject(expr parser.Expr) (Object, bool) {
	switch v := expr.(type) {
	case *parser.IntLit:
		return Int(v.Value), true
	case *parser.FloatLit:
		return Float(v.Value), true
	case *parser.StringLit:
		return String(v.Value), true
	case *parser.BoolLit:
		return Bool(v.Value), true
	}
	return nil, false
}

func (opt *Optimizer) printTrace(a ...interface{}) {
	const (
		dots = ". . . . . . . . . . . . . . . . . . . . . . . . . . . . . . . "
		n    = len(dots)
	)

	i := 2 * opt.indent
	for i > n {
		_, _ = fmt.Fprint(opt.trace, dots)
		i -= n
	}
	_, _ = fmt.Fprint(opt.trace, dots[0:i])
	_, _ = fmt.Fprintln(opt.trace, a...)
}

func (opt *Optimizer) printTraceMsg(a ...interface{}) {
	const (
		dots = ". . . . . . . . . . . . . . . . . . . . . . . . . . . . . . . "
		n    = len(dots)
	)

	i := 2 * opt.indent
	for i > n {
		_, _ = fmt.Fprint(opt.trace, dots)
		i -= n
	}
	_, _ = fmt.Fprint(opt.trace, dots[0:i], "<")
	_, _ = fmt.Fprint(opt.trace, a...)
	_, _ = fmt.Fprintln(opt.trace, ">")
}

func traceoptim(opt *Optimizer, msg string) *Optimizer {
	opt.printTrace(msg, "{")
	opt.indent++
	return opt
}

func untraceoptim(opt *Optimizer) {
	opt.indent--
	opt.printTrace("}")
}
