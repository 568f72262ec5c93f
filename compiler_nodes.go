// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package minipyc

import (
	"math"

	"github.com/minipyc/minipyc/parser"
	"github.com/minipyc/minipyc/token"
)

func (c *Compiler) compileIfStmt(node *parser.IfStmt) error {
	if err := c.Compile(node.Cond); err != nil {
		return err
	}

	// first jump placeholder
	jumpPos1 := c.emit(node, OpJumpFalsy, 0)
	if err := c.Compile(node.Body); err != nil {
		return err
	}

	if node.Else == nil {
		c.changeOperand(jumpPos1, len(c.instructions))
		return nil
	}

	// second jump placeholder
	jumpPos2 := c.emit(node, OpJump, 0)
	c.changeOperand(jumpPos1, len(c.instructions))

	if err := c.Compile(node.Else); err != nil {
		return err
	}
	c.changeOperand(jumpPos2, len(c.instructions))
	return nil
}

func (c *Compiler) compileWhileStmt(node *parser.WhileStmt) error {
	preCondPos := len(c.instructions)
	if err := c.Compile(node.Cond); err != nil {
		return err
	}
	postCondPos := c.emit(node, OpJumpFalsy, 0)

	loop := c.enterLoop(false)
	if err := c.Compile(node.Body); err != nil {
		return err
	}
	c.leaveLoop()

	c.emit(node, OpJump, preCondPos)
	postBodyPos := len(c.instructions)
	c.changeOperand(postCondPos, postBodyPos)

	for _, pos := range loop.Breaks {
		c.changeOperand(pos, postBodyPos)
	}
	for _, pos := range loop.Continues {
		c.changeOperand(pos, preCondPos)
	}
	return nil
}

func (c *Compiler) compileForInStmt(node *parser.ForInStmt) error {
	/*
		ITERINIT consumes the iterable and pushes an iterator which stays on
		the stack while the loop runs. ITERNEXT pushes the next value or pops
		the iterator and jumps out of the loop.

		iterable
		ITERINIT
		head:
		ITERNEXT end
		store target
		body
		JUMP head
		end:
	*/
	if err := c.Compile(node.Iterable); err != nil {
		return err
	}
	c.emit(node, OpIterInit)

	headPos := c.emit(node, OpIterNext, 0)
	if err := c.storeName(node.Target, node.Target.Name); err != nil {
		return err
	}

	loop := c.enterLoop(true)
	if err := c.Compile(node.Body); err != nil {
		return err
	}
	c.leaveLoop()

	c.emit(node, OpJump, headPos)
	endPos := len(c.instructions)
	c.changeOperand(headPos, endPos)

	for _, pos := range loop.Breaks {
		c.changeOperand(pos, endPos)
	}
	for _, pos := range loop.Continues {
		c.changeOperand(pos, headPos)
	}
	return nil
}

func (c *Compiler) compileBranchStmt(node *parser.BranchStmt) error {
	loop := c.currentLoop()
	if loop == nil {
		return c.errorf(node, "'%s' outside loop", node.Token)
	}
	switch node.Token {
	case token.Break:
		if loop.iterator {
			c.emit(node, OpPop)
		}
		loop.Breaks = append(loop.Breaks, c.emit(node, OpJump, 0))
	case token.Continue:
		loop.Continues = append(loop.Continues, c.emit(node, OpJump, 0))
	default:
		return c.errorf(node, "invalid branch statement: %s", node.Token)
	}
	return nil
}

func (c *Compiler) compileBlockStmt(node *parser.BlockStmt) error {
	for _, stmt := range node.Stmts {
		if err := c.Compile(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileReturnStmt(node *parser.ReturnStmt) error {
	if node.Result == nil {
		c.emit(node, OpReturn, 0)
		return nil
	}
	if err := c.Compile(node.Result); err != nil {
		return err
	}
	c.emit(node, OpReturn, 1)
	return nil
}

func (c *Compiler) compileFuncDefStmt(node *parser.FuncDefStmt) error {
	child := c.fork(node)
	if err := child.Compile(node.Body); err != nil {
		return err
	}
	unit, err := child.checkedCodeUnit(node)
	if err != nil {
		return err
	}
	index := c.addConstant(unit)
	if index > math.MaxUint16 {
		return c.error(node, ErrSymbolLimit)
	}
	c.emit(node, OpMakeFunction, index)
	return c.storeName(node, node.Name.Name)
}

func (c *Compiler) compileAssignStmt(node *parser.AssignStmt) error {
	switch lhs := node.LHS.(type) {
	case *parser.Ident:
		if node.Token != token.Assign {
			if err := c.compileIdent(lhs); err != nil {
				return err
			}
		}
		if err := c.Compile(node.RHS); err != nil {
			return err
		}
		if node.Token != token.Assign {
			c.emit(node, OpBinaryOp, int(node.Token.BinaryOperator()))
		}
		return c.storeName(node, lhs.Name)
	case *parser.IndexExpr:
		if err := c.Compile(lhs.Expr); err != nil {
			return err
		}
		if err := c.Compile(lhs.Index); err != nil {
			return err
		}
		if node.Token != token.Assign {
			c.emit(node, OpDup2)
			c.emit(node, OpGetIndex)
		}
		if err := c.Compile(node.RHS); err != nil {
			return err
		}
		if node.Token != token.Assign {
			c.emit(node, OpBinaryOp, int(node.Token.BinaryOperator()))
		}
		c.emit(node, OpSetIndex)
		return nil
	}
	return c.errorf(node, "cannot assign to %s", node.LHS)
}

func (c *Compiler) storeName(node parser.Node, name string) error {
	symbol, err := c.symbolTable.Resolve(name)
	if err != nil {
		return c.error(node, err)
	}
	switch symbol.Scope {
	case ScopeLocal:
		c.emit(node, OpSetLocal, symbol.Index)
	default:
		c.emit(node, OpSetGlobal, symbol.Index)
	}
	return nil
}

func (c *Compiler) compileIdent(node *parser.Ident) error {
	symbol, err := c.symbolTable.Resolve(node.Name)
	if err != nil {
		return c.error(node, err)
	}
	switch symbol.Scope {
	case ScopeLocal:
		c.emit(node, OpGetLocal, symbol.Index)
	default:
		c.emit(node, OpGetGlobal, symbol.Index)
	}
	return nil
}

func (c *Compiler) compileLogical(node *parser.BinaryExpr) error {
	// left side term
	if err := c.Compile(node.LHS); err != nil {
		return err
	}

	// jump position
	var jumpPos int
	if node.Token == token.And {
		jumpPos = c.emit(node, OpAndJump, 0)
	} else {
		jumpPos = c.emit(node, OpOrJump, 0)
	}

	// right side term
	if err := c.Compile(node.RHS); err != nil {
		return err
	}
	c.changeOperand(jumpPos, len(c.instructions))
	return nil
}

func (c *Compiler) compileBinaryExpr(node *parser.BinaryExpr) error {
	if node.Token == token.And || node.Token == token.Or {
		return c.compileLogical(node)
	}
	if err := c.Compile(node.LHS); err != nil {
		return err
	}
	if err := c.Compile(node.RHS); err != nil {
		return err
	}

	switch node.Token {
	case token.Equal:
		c.emit(node, OpEqual)
	case token.NotEqual:
		c.emit(node, OpNotEqual)
	case token.Add, token.Sub, token.Mul, token.Quo, token.FloorQuo,
		token.Rem, token.Pow, token.Less, token.LessEq, token.Greater,
		token.GreaterEq:
		c.emit(node, OpBinaryOp, int(node.Token))
	default:
		return c.errorf(node, "invalid binary operator: %s",
			node.Token.String())
	}
	return nil
}

func (c *Compiler) compileUnaryExpr(node *parser.UnaryExpr) error {
	if err := c.Compile(node.Expr); err != nil {
		return err
	}

	switch node.Token {
	case token.Not, token.Sub, token.Add:
		c.emit(node, OpUnary, int(node.Token))
	default:
		return c.errorf(node, "invalid unary operator: %s",
			node.Token.String())
	}
	return nil
}

func (c *Compiler) compileIndexExpr(node *parser.IndexExpr) error {
	if err := c.Compile(node.Expr); err != nil {
		return err
	}
	if err := c.Compile(node.Index); err != nil {
		return err
	}
	c.emit(node, OpGetIndex)
	return nil
}

func (c *Compiler) compileCallExpr(node *parser.CallExpr) error {
	if err := c.Compile(node.Func); err != nil {
		return err
	}
	if len(node.Args) > math.MaxUint8 {
		return c.errorf(node, "more than %d arguments", math.MaxUint8)
	}
	for _, arg := range node.Args {
		if err := c.Compile(arg); err != nil {
			return err
		}
	}
	c.emit(node, OpCall, len(node.Args))
	return nil
}

func (c *Compiler) compileListLit(node *parser.ListLit) error {
	if len(node.Elements) > math.MaxUint16 {
		return c.error(node, ErrCodeLimit)
	}
	for _, elem := range node.Elements {
		if err := c.Compile(elem); err != nil {
			return err
		}
	}
	c.emit(node, OpList, len(node.Elements))
	return nil
}
