// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package parser

import (
	"fmt"
	"io"

	"github.com/minipyc/minipyc/token"
)

type bailout struct{}

// Parser parses a source file into an AST. Parsing stops at the first
// error, which is either a *LexError or a *ParseError.
type Parser struct {
	file      *SourceFile
	err       error
	scanner   *Scanner
	pos       Pos
	token     token.Token
	tokenLit  string
	loopDepth int
	funcs     []map[string]bool // parameters of enclosing function definitions
	trace     bool
	indent    int
	traceOut  io.Writer
}

// NewParser creates a Parser.
func NewParser(file *SourceFile, src []byte, trace io.Writer) *Parser {
	return &Parser{
		file:     file,
		scanner:  NewScanner(file, src),
		trace:    trace != nil,
		traceOut: trace,
	}
}

// Parse parses src as a file named filename.
func Parse(filename string, src []byte) (*File, error) {
	file := NewFileSet().AddFile(filename, -1, len(src))
	return NewParser(file, src, nil).ParseFile()
}

// ParseFile parses the source and returns an AST file unit.
func (p *Parser) ParseFile() (file *File, err error) {
	defer func() {
		if e := recover(); e != nil {
			if _, ok := e.(bailout); !ok {
				panic(e)
			}
			file, err = nil, p.err
		}
	}()

	if p.trace {
		defer untracep(tracep(p, "File"))
	}

	p.next()
	var stmts []Stmt
	for p.token != token.EOF {
		stmts = append(stmts, p.parseStmt()...)
	}

	file = &File{
		InputFile: p.file,
		Stmts:     stmts,
	}
	return
}

func (p *Parser) parseStmt() []Stmt {
	if p.trace {
		defer untracep(tracep(p, "Statement"))
	}

	switch p.token {
	case token.If:
		return []Stmt{p.parseIfStmt(token.If)}
	case token.While:
		return []Stmt{p.parseWhileStmt()}
	case token.For:
		return []Stmt{p.parseForInStmt()}
	case token.Def:
		return []Stmt{p.parseFuncDefStmt()}
	case token.Indent:
		p.errorf(p.pos, "unexpected indent")
	}
	return p.parseSimpleLine()
}

// parseSimpleLine parses one or more simple statements separated by
// semicolons up to the end of the logical line.
func (p *Parser) parseSimpleLine() []Stmt {
	list := []Stmt{p.parseSimpleStmt()}
	for p.token == token.Semicolon {
		p.next()
		if p.token == token.Newline {
			break
		}
		list = append(list, p.parseSimpleStmt())
	}
	p.expect(token.Newline)
	return list
}

func (p *Parser) parseSimpleStmt() Stmt {
	if p.trace {
		defer untracep(tracep(p, "SimpleStatement"))
	}

	switch p.token {
	case token.Pass:
		pos := p.pos
		p.next()
		return &PassStmt{PassPos: pos}
	case token.Break, token.Continue:
		tok, pos := p.token, p.pos
		if p.loopDepth == 0 {
			p.errorf(pos, "'%s' outside loop", tok)
		}
		p.next()
		return &BranchStmt{Token: tok, TokenPos: pos}
	case token.Return:
		return p.parseReturnStmt()
	case token.Global:
		return p.parseGlobalStmt()
	}

	x := p.parseExpr()
	if !p.token.IsAssign() {
		return &ExprStmt{Expr: x}
	}

	switch x.(type) {
	case *Ident, *IndexExpr:
	default:
		p.errorf(x.Pos(), "cannot assign to %s", x.String())
	}
	tok, pos := p.token, p.pos
	p.next()
	y := p.parseExpr()
	return &AssignStmt{
		LHS:      x,
		RHS:      y,
		Token:    tok,
		TokenPos: pos,
	}
}

func (p *Parser) parseReturnStmt() Stmt {
	if p.trace {
		defer untracep(tracep(p, "ReturnStmt"))
	}

	pos := p.pos
	if len(p.funcs) == 0 {
		p.errorf(pos, "'return' outside function")
	}
	p.expect(token.Return)

	var x Expr
	if p.token != token.Newline && p.token != token.Semicolon {
		x = p.parseExpr()
	}
	return &ReturnStmt{
		ReturnPos: pos,
		Result:    x,
	}
}

func (p *Parser) parseGlobalStmt() Stmt {
	if p.trace {
		defer untracep(tracep(p, "GlobalStmt"))
	}

	pos := p.expect(token.Global)
	var names []*Ident
	for {
		ident := p.parseIdent()
		if n := len(p.funcs); n > 0 && p.funcs[n-1][ident.Name] {
			p.errorf(ident.NamePos,
				"name '%s' is parameter and global", ident.Name)
		}
		names = append(names, ident)
		if p.token != token.Comma {
			break
		}
		p.next()
	}
	return &GlobalStmt{GlobalPos: pos, Names: names}
}

func (p *Parser) parseIfStmt(keyword token.Token) Stmt {
	if p.trace {
		defer untracep(tracep(p, "IfStmt"))
	}

	pos := p.expect(keyword)
	cond := p.parseExpr()
	body := p.parseSuite()

	var elseStmt Stmt
	switch p.token {
	case token.Elif:
		elseStmt = p.parseIfStmt(token.Elif)
	case token.Else:
		p.next()
		elseStmt = p.parseSuite()
	}
	return &IfStmt{
		IfPos: pos,
		Cond:  cond,
		Body:  body,
		Else:  elseStmt,
	}
}

func (p *Parser) parseWhileStmt() Stmt {
	if p.trace {
		defer untracep(tracep(p, "WhileStmt"))
	}

	pos := p.expect(token.While)
	cond := p.parseExpr()
	p.loopDepth++
	body := p.parseSuite()
	p.loopDepth--
	return &WhileStmt{
		WhilePos: pos,
		Cond:     cond,
		Body:     body,
	}
}

func (p *Parser) parseForInStmt() Stmt {
	if p.trace {
		defer untracep(tracep(p, "ForInStmt"))
	}

	pos := p.expect(token.For)
	target := p.parseIdent()
	p.expect(token.In)
	iterable := p.parseExpr()
	p.loopDepth++
	body := p.parseSuite()
	p.loopDepth--
	return &ForInStmt{
		ForPos:   pos,
		Target:   target,
		Iterable: iterable,
		Body:     body,
	}
}

func (p *Parser) parseFuncDefStmt() Stmt {
	if p.trace {
		defer untracep(tracep(p, "FuncDefStmt"))
	}

	pos := p.expect(token.Def)
	name := p.parseIdent()
	p.expect(token.LParen)

	var params []*Ident
	seen := make(map[string]bool)
	for p.token != token.RParen {
		ident := p.parseIdent()
		if seen[ident.Name] {
			p.errorf(ident.NamePos,
				"duplicate argument '%s' in function definition", ident.Name)
		}
		seen[ident.Name] = true
		params = append(params, ident)
		if !p.atComma("parameter list", token.RParen) {
			break
		}
		p.next()
	}
	p.expect(token.RParen)

	loopDepth := p.loopDepth
	p.loopDepth = 0
	p.funcs = append(p.funcs, seen)
	body := p.parseSuite()
	p.funcs = p.funcs[:len(p.funcs)-1]
	p.loopDepth = loopDepth

	return &FuncDefStmt{
		DefPos: pos,
		Name:   name,
		Params: params,
		Body:   body,
	}
}

// parseSuite parses the block after a colon, either the rest of the line
// or an indented block.
func (p *Parser) parseSuite() *BlockStmt {
	if p.trace {
		defer untracep(tracep(p, "Suite"))
	}

	start := p.expect(token.Colon)
	if p.token != token.Newline {
		stmts := p.parseSimpleLine()
		return &BlockStmt{
			Stmts: stmts,
			Start: start,
			Stop:  stmts[len(stmts)-1].End(),
		}
	}
	p.next()
	if p.token != token.Indent {
		p.errorExpected(p.pos, "an indented block")
	}
	p.next()

	var stmts []Stmt
	for p.token != token.Dedent && p.token != token.EOF {
		stmts = append(stmts, p.parseStmt()...)
	}
	stop := p.pos
	p.expect(token.Dedent)
	return &BlockStmt{
		Stmts: stmts,
		Start: start,
		Stop:  stop,
	}
}

func (p *Parser) parseExpr() Expr {
	if p.trace {
		defer untracep(tracep(p, "Expression"))
	}

	return p.parseBinaryExpr(token.LowestPrec + 1)
}

func (p *Parser) parseBinaryExpr(prec1 int) Expr {
	if p.trace {
		defer untracep(tracep(p, "BinaryExpression"))
	}

	x := p.parseUnaryExpr(prec1)

	for {
		op, prec := p.token, p.token.Precedence()
		if prec < prec1 {
			return x
		}

		pos := p.expect(op)

		var y Expr
		if op == token.Pow {
			// right associative
			y = p.parseBinaryExpr(prec)
		} else {
			y = p.parseBinaryExpr(prec + 1)
		}

		x = &BinaryExpr{
			LHS:      x,
			RHS:      y,
			Token:    op,
			TokenPos: pos,
		}
		if op.IsComparison() && p.token.IsComparison() {
			p.errorf(p.pos, "chained comparison is not supported")
		}
	}
}

func (p *Parser) parseUnaryExpr(prec1 int) Expr {
	if p.trace {
		defer untracep(tracep(p, "UnaryExpression"))
	}

	switch p.token {
	case token.Not:
		if prec1 > token.NotPrec {
			p.errorExpected(p.pos, "operand")
		}
		pos := p.pos
		p.next()
		x := p.parseBinaryExpr(token.NotPrec)
		return &UnaryExpr{
			Token:    token.Not,
			TokenPos: pos,
			Expr:     x,
		}
	case token.Add, token.Sub:
		pos, op := p.pos, p.token
		p.next()
		x := p.parseBinaryExpr(token.UnaryPrec)
		return &UnaryExpr{
			Token:    op,
			TokenPos: pos,
			Expr:     x,
		}
	}
	return p.parsePrimaryExpr()
}

func (p *Parser) parsePrimaryExpr() Expr {
	if p.trace {
		defer untracep(tracep(p, "PrimaryExpression"))
	}

	x := p.parseOperand()

L:
	for {
		switch p.token {
		case token.LBrack:
			x = p.parseIndex(x)
		case token.LParen:
			x = p.parseCall(x)
		default:
			break L
		}
	}
	return x
}

func (p *Parser) parseCall(x Expr) *CallExpr {
	if p.trace {
		defer untracep(tracep(p, "Call"))
	}

	lparen := p.expect(token.LParen)

	var list []Expr
	for p.token != token.RParen {
		list = append(list, p.parseExpr())
		if !p.atComma("call argument", token.RParen) {
			break
		}
		p.next()
	}

	rparen := p.expect(token.RParen)
	return &CallExpr{
		Func:   x,
		LParen: lparen,
		RParen: rparen,
		Args:   list,
	}
}

func (p *Parser) parseIndex(x Expr) Expr {
	if p.trace {
		defer untracep(tracep(p, "Index"))
	}

	lbrack := p.expect(token.LBrack)
	index := p.parseExpr()
	rbrack := p.expect(token.RBrack)
	return &IndexExpr{
		Expr:   x,
		LBrack: lbrack,
		Index:  index,
		RBrack: rbrack,
	}
}

func (p *Parser) atComma(context string, follow token.Token) bool {
	if p.token == token.Comma {
		return true
	}
	if p.token != follow {
		p.errorExpected(p.pos, "',' or '"+follow.String()+"' in "+context)
	}
	return false
}

func (p *Parser) parseOperand() Expr {
	if p.trace {
		defer untracep(tracep(p, "Operand"))
	}

	switch p.token {
	case token.Ident:
		return p.parseIdent()
	case token.Int:
		v, err := parseIntLiteral(p.tokenLit)
		if err != nil {
			p.errorf(p.pos, "%s", err.Error())
		}
		x := &IntLit{
			Value:    v,
			ValuePos: p.pos,
			Literal:  p.tokenLit,
		}
		p.next()
		return x
	case token.Float:
		v, err := parseFloatLiteral(p.tokenLit)
		if err != nil {
			p.errorf(p.pos, "%s", err.Error())
		}
		x := &FloatLit{
			Value:    v,
			ValuePos: p.pos,
			Literal:  p.tokenLit,
		}
		p.next()
		return x
	case token.String:
		return p.parseStringLit()
	case token.True, token.False:
		x := &BoolLit{
			Value:    p.token == token.True,
			ValuePos: p.pos,
			Literal:  p.tokenLit,
		}
		p.next()
		return x
	case token.None:
		x := &NoneLit{TokenPos: p.pos}
		p.next()
		return x
	case token.LParen:
		lparen := p.pos
		p.next()
		x := p.parseExpr()
		rparen := p.expect(token.RParen)
		return &ParenExpr{
			LParen: lparen,
			Expr:   x,
			RParen: rparen,
		}
	case token.LBrack:
		return p.parseListLit()
	}

	p.errorExpected(p.pos, "operand")
	panic(bailout{})
}

// parseStringLit joins adjacent string literals.
func (p *Parser) parseStringLit() Expr {
	x := &StringLit{ValuePos: p.pos}
	for p.token == token.String {
		v, err := Unquote(p.tokenLit)
		if err != nil {
			p.errorf(p.pos, "%s", err.Error())
		}
		if x.Literal != "" {
			x.Literal += " "
		}
		x.Value += v
		x.Literal += p.tokenLit
		p.next()
	}
	return x
}

func (p *Parser) parseListLit() Expr {
	if p.trace {
		defer untracep(tracep(p, "ListLit"))
	}

	lbrack := p.expect(token.LBrack)

	var elements []Expr
	for p.token != token.RBrack {
		elements = append(elements, p.parseExpr())
		if !p.atComma("list literal", token.RBrack) {
			break
		}
		p.next()
	}

	rbrack := p.expect(token.RBrack)
	return &ListLit{
		Elements: elements,
		LBrack:   lbrack,
		RBrack:   rbrack,
	}
}

func (p *Parser) parseIdent() *Ident {
	pos := p.pos
	name := "_"

	if p.token == token.Ident {
		name = p.tokenLit
		p.next()
	} else {
		p.expect(token.Ident)
	}
	return &Ident{Name: name, NamePos: pos}
}

func (p *Parser) expect(tok token.Token) Pos {
	pos := p.pos

	if p.token != tok {
		p.errorExpected(pos, "'"+tok.String()+"'")
	}
	p.next()
	return pos
}

func (p *Parser) errorExpected(pos Pos, msg string) {
	var found string
	switch {
	case p.token == token.Newline:
		found = "newline"
	case p.token == token.Indent:
		found = "indent"
	case p.token == token.Dedent:
		found = "dedent"
	case p.token == token.EOF:
		found = "EOF"
	case p.token.IsLiteral():
		found = p.tokenLit
	default:
		found = "'" + p.token.String() + "'"
	}
	p.err = &ParseError{
		Pos:      p.file.Position(pos),
		Expected: msg,
		Found:    found,
	}
	panic(bailout{})
}

func (p *Parser) errorf(pos Pos, format string, args ...any) {
	p.err = &ParseError{
		Pos: p.file.Position(pos),
		Msg: fmt.Sprintf(format, args...),
	}
	panic(bailout{})
}

func (p *Parser) next() {
	if p.trace && p.pos.IsValid() {
		s := p.token.String()
		switch {
		case p.token.IsLiteral():
			p.printTrace(s, p.tokenLit)
		case p.token.IsOperator(), p.token.IsKeyword():
			p.printTrace(`"` + s + `"`)
		default:
			p.printTrace(s)
		}
	}

	p.token, p.tokenLit, p.pos = p.scanner.Scan()
	if p.token == token.Illegal {
		p.err = p.scanner.Err()
		panic(bailout{})
	}
}

func (p *Parser) printTrace(a ...any) {
	const (
		dots = ". . . . . . . . . . . . . . . . . . . . . . . . . . . . . . . "
		n    = len(dots)
	)

	filePos := p.file.Position(p.pos)
	_, _ = fmt.Fprintf(p.traceOut, "%5d: %5d:%3d: ", p.pos, filePos.Line,
		filePos.Column)
	i := 2 * p.indent
	for i > n {
		_, _ = fmt.Fprint(p.traceOut, dots)
		i -= n
	}
	_, _ = fmt.Fprint(p.traceOut, dots[0:i])
	_, _ = fmt.Fprintln(p.traceOut, a...)
}

func tracep(p *Parser, msg string) *Parser {
	p.printTrace(msg, "(")
	p.indent++
	return p
}

func untracep(p *Parser) {
	p.indent--
	p.printTrace(")")
}
