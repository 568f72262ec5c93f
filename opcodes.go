// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package minipyc

// Opcode represents a single byte operation code.
type Opcode = byte

// List of opcodes
const (
	OpNoOp Opcode = iota
	OpConstant
	OpPop
	OpDup2
	OpGetGlobal
	OpSetGlobal
	OpGetLocal
	OpSetLocal
	OpBinaryOp
	OpUnary
	OpEqual
	OpNotEqual
	OpJump
	OpJumpFalsy
	OpAndJump
	OpOrJump
	OpCall
	OpReturn
	OpMakeFunction
	OpList
	OpGetIndex
	OpSetIndex
	OpIterInit
	OpIterNext
)

// OpcodeNames are string representation of opcodes.
var OpcodeNames = [...]string{
	OpNoOp:         "NOOP",
	OpConstant:     "CONSTANT",
	OpPop:          "POP",
	OpDup2:         "DUP2",
	OpGetGlobal:    "GETGLOBAL",
	OpSetGlobal:    "SETGLOBAL",
	OpGetLocal:     "GETLOCAL",
	OpSetLocal:     "SETLOCAL",
	OpBinaryOp:     "BINARYOP",
	OpUnary:        "UNARY",
	OpEqual:        "EQUAL",
	OpNotEqual:     "NOTEQUAL",
	OpJump:         "JUMP",
	OpJumpFalsy:    "JUMPFALSY",
	OpAndJump:      "ANDJUMP",
	OpOrJump:       "ORJUMP",
	OpCall:         "CALL",
	OpReturn:       "RETURN",
	OpMakeFunction: "MAKEFUNCTION",
	OpList:         "LIST",
	OpGetIndex:     "GETINDEX",
	OpSetIndex:     "SETINDEX",
	OpIterInit:     "ITERINIT",
	OpIterNext:     "ITERNEXT",
}

// OpcodeOperands is the number of operands.
var OpcodeOperands = [...][]int{
	OpNoOp:         {},
	OpConstant:     {2}, // constant index
	OpPop:          {},
	OpDup2:         {},
	OpGetGlobal:    {2}, // name index
	OpSetGlobal:    {2}, // name index
	OpGetLocal:     {2}, // local variable index
	OpSetLocal:     {2}, // local variable index
	OpBinaryOp:     {1}, // operator
	OpUnary:        {1}, // operator
	OpEqual:        {},
	OpNotEqual:     {},
	OpJump:         {2}, // position
	OpJumpFalsy:    {2}, // position
	OpAndJump:      {2}, // position
	OpOrJump:       {2}, // position
	OpCall:         {1}, // number of arguments
	OpReturn:       {1}, // number of items (0 or 1)
	OpMakeFunction: {2}, // constant index
	OpList:         {2}, // number of items
	OpGetIndex:     {},
	OpSetIndex:     {},
	OpIterInit:     {},
	OpIterNext:     {2}, // position to jump when exhausted
}

// IsJump reports whether the opcode takes an absolute jump target as its
// first operand.
func IsJump(op Opcode) bool {
	switch op {
	case OpJump, OpJumpFalsy, OpAndJump, OpOrJump, OpIterNext:
		return true
	}
	return false
}

// ReadOperands reads operands from the bytecode. Given operands slice is used to
// fill operands and is returned to allocate less.
func ReadOperands(numOperands []int, ins []byte, operands []int) ([]int, int) {
	operands = operands[:0]
	var offset int
	for _, width := range numOperands {
		switch width {
		case 1:
			operands = append(operands, int(ins[offset]))
		case 2:
			operands = append(operands, int(ins[offset+1])|int(ins[offset])<<8)
		}
		offset += width
	}
	return operands, offset
}
