// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package minipyc

import (
	"context"
)

// Eval compiles and runs scripts within same globals.
// If the last statement of the executed script is an expression statement,
// Run returns its value, otherwise None.
// Warning: Eval is not safe to use concurrently.
type Eval struct {
	Globals map[string]Object
	Opts    CompilerOptions
	VM      *VM
}

// NewEval returns new Eval object.
func NewEval(opts CompilerOptions, globals map[string]Object) *Eval {
	if globals == nil {
		globals = make(map[string]Object)
	}
	return &Eval{
		Globals: globals,
		Opts:    opts,
		VM:      NewVM(nil),
	}
}

// Run compiles, runs given script and returns the value of the last
// expression statement.
func (r *Eval) Run(ctx context.Context, script []byte) (Object, *CodeUnit, error) {
	unit, err := Compile(script, r.Opts)
	if err != nil {
		return nil, nil, err
	}

	r.fixOpPop(unit)
	r.VM.SetCodeUnit(unit)

	if ctx == nil {
		ctx = context.Background()
	}

	ret, err := r.VM.RunContext(ctx, r.Globals)
	r.VM.Clear()

	if err != nil {
		return nil, unit, err
	}
	return ret, unit, nil
}

// fixOpPop changes the trailing POP and RETURN Opcodes to force VM to return
// the last value on top of stack. Nothing is changed if a jump targets the
// RETURN, the stack may not hold a value on that path.
func (*Eval) fixOpPop(unit *CodeUnit) {
	var prevOp byte
	var lastOp byte
	var fixPos = -1
	jumpTargets := make(map[int]struct{})

	IterateInstructions(unit.Instructions,
		func(pos int, opcode Opcode, operands []int, offset int) bool {
			prevOp = lastOp
			lastOp = opcode
			fixPos = -1
			if IsJump(opcode) {
				jumpTargets[operands[0]] = struct{}{}
			}
			if prevOp == OpPop && lastOp == OpReturn && operands[0] == 0 {
				if _, ok := jumpTargets[pos]; !ok {
					fixPos = pos - 1
				}
			}
			return true
		},
	)

	if fixPos >= 0 {
		if _, ok := jumpTargets[fixPos+1]; ok {
			return
		}
		unit.Instructions[fixPos] = OpNoOp // overwrite OpPop
		unit.Instructions[fixPos+2] = 1    // set number of return to 1
	}
}
