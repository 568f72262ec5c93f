// A modified version of Tengo Compiler.

// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

// Copyright (c) 2019 Daniel Kang.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE.tengo file.

package minipyc

import (
	"fmt"
	"io"
	"math"
	"os"
	"reflect"

	"github.com/minipyc/minipyc/parser"
	"github.com/minipyc/minipyc/token"
)

// MainName is the name of the code unit of a module.
const MainName = "<module>"

// CompilerOptions represents customizable options for Compile().
type CompilerOptions struct {
	// Filename is recorded in code units and error positions.
	Filename       string
	Trace          io.Writer
	TraceParser    bool
	TraceCompiler  bool
	TraceOptimizer bool
	// Optimize enables the constant folder.
	Optimize bool
}

var (
	// DefaultCompilerOptions holds default Compiler options.
	DefaultCompilerOptions = CompilerOptions{
		Filename: "(main)",
		Optimize: true,
	}
	// TraceCompilerOptions holds Compiler options to print trace output
	// to stdout for Parser, Optimizer, Compiler.
	TraceCompilerOptions = CompilerOptions{
		Filename:       "(main)",
		Trace:          os.Stdout,
		TraceParser:    true,
		TraceCompiler:  true,
		TraceOptimizer: true,
		Optimize:       true,
	}
)

// loopStmts represents a loopStmts construct that the compiler uses to track the current loopStmts.
type loopStmts struct {
	Continues []int
	Breaks    []int
	// iterator is true for loops holding an iterator on the stack.
	iterator bool
}

// CompilerError represents a compiler error.
type CompilerError struct {
	FileSet *parser.SourceFileSet
	Node    parser.Node
	Err     error
}

func (e *CompilerError) Error() string {
	if e.Node == nil || e.FileSet == nil {
		return fmt.Sprintf("Compile Error: %s", e.Err.Error())
	}
	filePos := e.FileSet.Position(e.Node.Pos())
	return fmt.Sprintf("Compile Error: %s\n\tat %s", e.Err.Error(), filePos)
}

func (e *CompilerError) Unwrap() error {
	return e.Err
}

// constKey identifies a constant by type and value. Floats are keyed by
// their bits so 0.0 and -0.0 are different constants.
type constKey struct {
	kind byte
	i    int64
	f    uint64
	s    string
}

// Compiler compiles the AST into a code unit.
type Compiler struct {
	parent       *Compiler
	file         *parser.SourceFile
	name         string
	firstLine    int
	flags        uint32
	constants    []Object
	constsCache  map[constKey]int
	symbolTable  *SymbolTable
	instructions []byte
	sourceMap    map[int]int
	loops        []*loopStmts
	loopIndex    int
	opts         CompilerOptions
	trace        io.Writer
	indent       int
	// limitErr holds the first operand that did not fit its width.
	limitErr error
}

// NewCompiler creates a new Compiler object for the module scope of file.
func NewCompiler(file *parser.SourceFile, opts CompilerOptions) *Compiler {
	var trace io.Writer
	if opts.TraceCompiler {
		trace = opts.Trace
	}
	if opts.Filename == "" && file != nil {
		opts.Filename = file.Name
	}
	return &Compiler{
		file:        file,
		name:        MainName,
		firstLine:   1,
		constsCache: make(map[constKey]int),
		symbolTable: NewSymbolTable(),
		sourceMap:   make(map[int]int),
		loopIndex:   -1,
		opts:        opts,
		trace:       trace,
	}
}

// Compile parses, optimizes and compiles given script to a CodeUnit.
func Compile(script []byte, opts CompilerOptions) (*CodeUnit, error) {
	fileSet := parser.NewFileSet()
	filename := opts.Filename
	if filename == "" {
		filename = DefaultCompilerOptions.Filename
		opts.Filename = filename
	}
	srcFile := fileSet.AddFile(filename, -1, len(script))
	var trace io.Writer
	if opts.TraceParser {
		trace = opts.Trace
	}
	p := parser.NewParser(srcFile, script, trace)
	pf, err := p.ParseFile()
	if err != nil {
		return nil, err
	}

	if opts.Optimize {
		var otrace io.Writer
		if opts.TraceOptimizer {
			otrace = opts.Trace
		}
		optim := NewOptimizer(otrace)
		optim.Optimize(pf)
		if opts.TraceCompiler && !opts.TraceOptimizer {
			_, _ = fmt.Fprintf(opts.Trace,
				"<Optimization Took: %s>\n", optim.Duration())
		}
	}

	compiler := NewCompiler(srcFile, opts)
	if err := compiler.Compile(pf); err != nil {
		return nil, err
	}
	return compiler.checkedCodeUnit(pf)
}

// CodeUnit returns the compiled CodeUnit ready to run in VM. A RETURN is
// appended if the last instruction is not a return or a jump targets the
// end of the instructions.
func (c *Compiler) CodeUnit() *CodeUnit {
	var lastOp Opcode
	var operands = make([]int, 0, 4)
	var jumpPos = make(map[int]struct{})
	var offset int
	var i int
	for i < len(c.instructions) {
		lastOp = c.instructions[i]
		numOperands := OpcodeOperands[lastOp]
		operands, offset = ReadOperands(
			numOperands,
			c.instructions[i+1:],
			operands,
		)
		if IsJump(lastOp) {
			jumpPos[operands[0]] = struct{}{}
		}
		delete(jumpPos, i)
		i += offset + 1
	}
	if lastOp != OpReturn || len(jumpPos) > 0 {
		c.emit(nil, OpReturn, 0)
	}
	return &CodeUnit{
		Name:         c.name,
		Filename:     c.opts.Filename,
		FirstLine:    c.firstLine,
		ArgCount:     c.symbolTable.NumParams(),
		Flags:        c.flags,
		Instructions: c.instructions,
		Constants:    c.constants,
		Names:        c.symbolTable.Names(),
		Locals:       c.symbolTable.Locals(),
		SourceMap:    c.sourceMap,
	}
}

// checkedCodeUnit returns the CodeUnit or an error if it is too large to be
// addressed by 16-bit operands.
func (c *Compiler) checkedCodeUnit(node parser.Node) (*CodeUnit, error) {
	unit := c.CodeUnit()
	if c.limitErr != nil {
		return nil, c.limitErr
	}
	if len(unit.Instructions) > math.MaxUint16 {
		return nil, c.error(node, ErrCodeLimit)
	}
	if len(unit.Constants) > math.MaxUint16+1 ||
		len(unit.Locals) > math.MaxUint16+1 {
		return nil, c.error(node, ErrSymbolLimit)
	}
	return unit, nil
}

// Compile compiles parser.Node and builds CodeUnit.
func (c *Compiler) Compile(node parser.Node) error {
	if c.trace != nil {
		if node != nil {
			defer untracec(tracec(c, fmt.Sprintf("%s (%s)",
				node.String(), reflect.TypeOf(node).Elem().Name())))
		} else {
			defer untracec(tracec(c, "<nil>"))
		}
	}
	switch node := node.(type) {
	case *parser.File:
		for _, stmt := range node.Stmts {
			if err := c.Compile(stmt); err != nil {
				return err
			}
		}
	case *parser.ExprStmt:
		if err := c.Compile(node.Expr); err != nil {
			return err
		}
		c.emit(node, OpPop)
	case *parser.AssignStmt:
		return c.compileAssignStmt(node)
	case *parser.BlockStmt:
		return c.compileBlockStmt(node)
	case *parser.IfStmt:
		return c.compileIfStmt(node)
	case *parser.WhileStmt:
		return c.compileWhileStmt(node)
	case *parser.ForInStmt:
		return c.compileForInStmt(node)
	case *parser.FuncDefStmt:
		return c.compileFuncDefStmt(node)
	case *parser.ReturnStmt:
		return c.compileReturnStmt(node)
	case *parser.BranchStmt:
		return c.compileBranchStmt(node)
	case *parser.PassStmt, *parser.GlobalStmt:
		// GlobalStmt is resolved when the function symbol table is created.
	case *parser.ParenExpr:
		return c.Compile(node.Expr)
	case *parser.BinaryExpr:
		return c.compileBinaryExpr(node)
	case *parser.UnaryExpr:
		return c.compileUnaryExpr(node)
	case *parser.IndexExpr:
		return c.compileIndexExpr(node)
	case *parser.CallExpr:
		return c.compileCallExpr(node)
	case *parser.Ident:
		return c.compileIdent(node)
	case *parser.ListLit:
		return c.compileListLit(node)
	case *parser.IntLit:
		return c.emitConstant(node, Int(node.Value))
	case *parser.FloatLit:
		return c.emitConstant(node, Float(node.Value))
	case *parser.StringLit:
		return c.emitConstant(node, String(node.Value))
	case *parser.BoolLit:
		return c.emitConstant(node, Bool(node.Value))
	case *parser.NoneLit:
		return c.emitConstant(node, None)
	default:
		return c.errorf(node, "%[1]T \"%[1]v\" not implemented", node)
	}

	return nil
}

func (c *Compiler) changeOperand(opPos int, operand ...int) {
	op := c.instructions[opPos]
	inst := c.makeInstruction(nil, op, operand...)
	c.replaceInstruction(opPos, inst)
}

// makeInstruction creates an instruction, operands not fitting their widths
// are recorded as a limit error and replaced with zero.
func (c *Compiler) makeInstruction(node parser.Node, op Opcode, operands ...int) []byte {
	inst, err := MakeInstruction(op, operands...)
	if err == nil {
		return inst
	}
	if len(OpcodeOperands[op]) != len(operands) {
		panic(err)
	}
	if c.limitErr == nil {
		c.limitErr = c.error(node, ErrCodeLimit)
	}
	inst, err = MakeInstruction(op, make([]int, len(operands))...)
	if err != nil {
		panic(err)
	}
	return inst
}

func (c *Compiler) replaceInstruction(pos int, inst []byte) {
	copy(c.instructions[pos:], inst)
	if c.trace != nil {
		c.printTrace(fmt.Sprintf("REPLC %s",
			FormatInstructions(
				c.instructions[pos:], pos)[0]))
	}
}

func (c *Compiler) emitConstant(node parser.Node, obj Object) error {
	index := c.addConstant(obj)
	if index > math.MaxUint16 {
		return c.error(node, ErrSymbolLimit)
	}
	c.emit(node, OpConstant, index)
	return nil
}

func constantKey(obj Object) (constKey, bool) {
	switch v := obj.(type) {
	case Int:
		return constKey{kind: 'i', i: int64(v)}, true
	case Float:
		return constKey{kind: 'f', f: math.Float64bits(float64(v))}, true
	case String:
		return constKey{kind: 's', s: string(v)}, true
	case Bool:
		if v {
			return constKey{kind: 'b', i: 1}, true
		}
		return constKey{kind: 'b'}, true
	case *NoneType:
		return constKey{kind: 'n'}, true
	}
	return constKey{}, false
}

func (c *Compiler) addConstant(obj Object) (index int) {
	defer func() {
		if c.trace != nil {
			c.printTrace(fmt.Sprintf("CONST %04d %s", index, Repr(obj)))
		}
	}()
	key, hashable := constantKey(obj)
	if hashable {
		if i, ok := c.constsCache[key]; ok {
			index = i
			return
		}
	} else if cu, ok := obj.(*CodeUnit); ok {
		for i, v := range c.constants {
			if cu.Equal(v) {
				index = i
				return
			}
		}
	}
	c.constants = append(c.constants, obj)
	index = len(c.constants) - 1
	if hashable {
		c.constsCache[key] = index
	}
	return
}

func (c *Compiler) emit(node parser.Node, opcode Opcode, operands ...int) int {
	inst := c.makeInstruction(node, opcode, operands...)
	pos := c.addInstruction(inst)
	if node != nil && c.file != nil && node.Pos().IsValid() {
		c.sourceMap[pos] = c.file.Line(node.Pos())
	}

	if c.trace != nil {
		c.printTrace(fmt.Sprintf("EMIT  %s",
			FormatInstructions(
				c.instructions[pos:], pos)[0]))
	}
	return pos
}

func (c *Compiler) addInstruction(b []byte) int {
	posNewIns := len(c.instructions)
	c.instructions = append(c.instructions, b...)
	return posNewIns
}

func (c *Compiler) enterLoop(iterator bool) *loopStmts {
	loop := &loopStmts{iterator: iterator}
	c.loops = append(c.loops, loop)
	c.loopIndex++
	if c.trace != nil {
		c.printTrace("LOOPE", c.loopIndex)
	}
	return loop
}

func (c *Compiler) leaveLoop() {
	if c.trace != nil {
		c.printTrace("LOOPL", c.loopIndex)
	}
	c.loops = c.loops[:len(c.loops)-1]
	c.loopIndex--
}

func (c *Compiler) currentLoop() *loopStmts {
	if c.loopIndex >= 0 {
		return c.loops[c.loopIndex]
	}
	return nil
}

// fork creates a child compiler for a function body. The child owns its
// constants and name tables.
func (c *Compiler) fork(node *parser.FuncDefStmt) *Compiler {
	params := make([]string, len(node.Params))
	for i, p := range node.Params {
		params[i] = p.Name
	}
	child := NewCompiler(c.file, c.opts)
	child.parent = c
	child.name = node.Name.Name
	child.flags = CodeFlagFunction
	child.symbolTable = NewFunctionSymbolTable(params, node.Body.Stmts)
	if c.file != nil {
		child.firstLine = c.file.Line(node.Pos())
	}
	child.trace = c.trace
	child.indent = c.indent
	return child
}

func (c *Compiler) error(node parser.Node, err error) error {
	var fileSet *parser.SourceFileSet
	if c.file != nil {
		fileSet = c.file.Set()
	}
	return &CompilerError{
		FileSet: fileSet,
		Node:    node,
		Err:     err,
	}
}

func (c *Compiler) errorf(node parser.Node,
	format string, args ...interface{}) error {

	return c.error(node, fmt.Errorf(format, args...))
}

func (c *Compiler) printTrace(a ...interface{}) {
	const (
		dots = ". . . . . . . . . . . . . . . . . . . . . . . . . . . . . . . "
		n    = len(dots)
	)

	i := 2 * c.indent
	for i > n {
		_, _ = fmt.Fprint(c.trace, dots)
		i -= n
	}
	_, _ = fmt.Fprint(c.trace, dots[0:i])
	_, _ = fmt.Fprintln(c.trace, a...)
}

func tracec(c *Compiler, msg string) *Compiler {
	c.printTrace(msg, "{")
	c.indent++
	return c
}

func untracec(c *Compiler) {
	c.indent--
	c.printTrace("}")
}

// MakeInstruction returns a bytecode for an opcode and the operands.
func MakeInstruction(op Opcode, args ...int) ([]byte, error) {
	if int(op) >= len(OpcodeOperands) {
		return nil, fmt.Errorf("MakeInstruction: unknown Opcode %d", op)
	}
	operands := OpcodeOperands[op]
	if len(operands) != len(args) {
		return nil, fmt.Errorf("MakeInstruction: %s expected %d operands, but got %d",
			OpcodeNames[op], len(operands), len(args))
	}
	inst := make([]byte, 1, 3)
	inst[0] = op
	for i, width := range operands {
		switch width {
		case 1:
			if args[i] < 0 || args[i] > math.MaxUint8 {
				return nil, fmt.Errorf("MakeInstruction: %s operand %d out of range",
					OpcodeNames[op], args[i])
			}
			inst = append(inst, byte(args[i]))
		case 2:
			if args[i] < 0 || args[i] > math.MaxUint16 {
				return nil, fmt.Errorf("MakeInstruction: %s operand %d out of range",
					OpcodeNames[op], args[i])
			}
			inst = append(inst, byte(args[i]>>8), byte(args[i]))
		}
	}
	return inst, nil
}

// FormatInstructions returns string representation of bytecode instructions.
func FormatInstructions(b []byte, posOffset int) []string {
	var out []string
	var operands = make([]int, 0, 4)
	var offset int
	var i int
	for i < len(b) {
		if int(b[i]) >= len(OpcodeOperands) {
			out = append(out, fmt.Sprintf("%04d INVALID %d", posOffset+i, b[i]))
			break
		}
		numOperands := OpcodeOperands[b[i]]
		if i+1+sumWidths(numOperands) > len(b) {
			out = append(out, fmt.Sprintf("%04d %-12s <truncated>",
				posOffset+i, OpcodeNames[b[i]]))
			break
		}
		operands, offset = ReadOperands(numOperands, b[i+1:], operands)

		switch {
		case len(numOperands) == 0:
			out = append(out, fmt.Sprintf("%04d %-12s",
				posOffset+i, OpcodeNames[b[i]]))
		case b[i] == OpBinaryOp || b[i] == OpUnary:
			out = append(out, fmt.Sprintf("%04d %-12s %-5d (%s)",
				posOffset+i, OpcodeNames[b[i]], operands[0],
				token.Token(operands[0])))
		default:
			out = append(out, fmt.Sprintf("%04d %-12s %-5d",
				posOffset+i, OpcodeNames[b[i]], operands[0]))
		}
		i += 1 + offset
	}
	return out
}

func sumWidths(widths []int) int {
	var n int
	for _, w := range widths {
		n += w
	}
	return n
}

// IterateInstructions iterate instructions and call given function for each instruction.
// Note: Do not use operands slice in callback, it is reused for less allocation.
func IterateInstructions(insts []byte,
	fn func(pos int, opcode Opcode, operands []int, offset int) bool) {
	operands := make([]int, 0, 4)
	var offset int
	for i := 0; i < len(insts); i++ {
		numOperands := OpcodeOperands[insts[i]]
		operands, offset = ReadOperands(numOperands, insts[i+1:], operands)
		if !fn(i, insts[i], operands, offset) {
			break
		}
		i += offset
	}
}
