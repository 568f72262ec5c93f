// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package minipyc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/minipyc/minipyc/token"
)

const (
	stackSize = 1 << 14
	frameSize = 1024
	// stackReserve is the number of free slots required for a new frame.
	stackReserve = 256
)

// VM executes the instructions of a CodeUnit.
type VM struct {
	abort      int64
	sp         int
	ip         int
	curInsts   []byte
	stack      [stackSize]Object
	frames     [frameSize]frame
	curFrame   *frame
	frameIndex int
	unit       *CodeUnit
	globals    map[string]Object
	stdout     io.Writer
	stdin      *bufio.Reader
	trace      io.Writer
	mu         sync.Mutex
	err        error
}

// NewVM creates a VM object.
func NewVM(unit *CodeUnit) *VM {
	return &VM{
		unit:   unit,
		stdout: PrintWriter,
	}
}

// SetCodeUnit enables to set a new CodeUnit.
func (vm *VM) SetCodeUnit(unit *CodeUnit) *VM {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.unit = unit
	return vm
}

// SetStdout sets the writer of print().
func (vm *VM) SetStdout(w io.Writer) *VM {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.stdout = w
	return vm
}

// SetStdin sets the reader of input().
func (vm *VM) SetStdin(r io.Reader) *VM {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if br, ok := r.(*bufio.Reader); ok {
		vm.stdin = br
	} else {
		vm.stdin = bufio.NewReader(r)
	}
	return vm
}

// SetTrace sets a writer to print every executed instruction.
func (vm *VM) SetTrace(w io.Writer) *VM {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.trace = w
	return vm
}

// Stdout returns the writer of print().
func (vm *VM) Stdout() io.Writer {
	return vm.stdout
}

// Stdin returns the reader of input().
func (vm *VM) Stdin() *bufio.Reader {
	if vm.stdin == nil {
		vm.stdin = bufio.NewReader(os.Stdin)
	}
	return vm.stdin
}

// Clear clears stack by setting nil to stack indexes.
func (vm *VM) Clear() *VM {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	for i := range vm.stack {
		vm.stack[i] = nil
	}
	return vm
}

// Abort aborts the VM execution.
func (vm *VM) Abort() {
	atomic.StoreInt64(&vm.abort, 1)
}

// Run runs VM and executes the instructions until the OpReturn Opcode or
// Abort call. Given globals map is used as the module namespace, a new map
// is created if it is nil.
func (vm *VM) Run(globals map[string]Object) (Object, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if vm.unit == nil {
		return nil, errors.New("invalid CodeUnit")
	}
	return vm.execute(vm.unit, globals, nil)
}

// RunContext runs the VM and aborts it when ctx is done.
func (vm *VM) RunContext(ctx context.Context,
	globals map[string]Object) (ret Object, err error) {

	doneCh := make(chan struct{})
	// Check the context before running, it may be done while compiling.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	go func() {
		defer close(doneCh)
		ret, err = vm.Run(globals)
	}()

	select {
	case <-ctx.Done():
		vm.Abort()
		<-doneCh
		if errors.Is(err, ErrVMAborted) {
			err = fmt.Errorf("%w: %w", err, ctx.Err())
		}
	case <-doneCh:
	}
	return
}

// RunFunction calls a function created by a script with the given
// arguments on a new VM sharing the globals and I/O of vm.
func (vm *VM) RunFunction(fn *Function, args ...Object) (Object, error) {
	if len(args) != fn.Unit.ArgCount {
		return nil, NewWrongNumArgumentsError(fn.Unit.Name,
			fn.Unit.ArgCount, len(args))
	}
	sub := &VM{
		unit:   fn.Unit,
		stdout: vm.stdout,
		stdin:  vm.stdin,
		trace:  vm.trace,
	}
	globals := vm.globals
	if globals == nil {
		globals = make(map[string]Object)
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.execute(fn.Unit, globals, args)
}

func (vm *VM) execute(unit *CodeUnit, globals map[string]Object,
	args []Object) (Object, error) {

	if globals == nil {
		globals = make(map[string]Object)
	}
	if vm.stdout == nil {
		vm.stdout = PrintWriter
	}
	vm.globals = globals
	vm.err = nil
	atomic.StoreInt64(&vm.abort, 0)

	// slot 0 holds the callee, locals start at 1
	vm.stack[0] = None
	for i := range unit.Locals {
		var v Object
		if i < len(args) {
			v = args[i]
		}
		vm.stack[1+i] = v
	}
	vm.curFrame = &(vm.frames[0])
	vm.curFrame.unit = unit
	vm.curFrame.basePointer = 1
	vm.curFrame.ip = 0
	vm.curInsts = unit.Instructions
	vm.frameIndex = 1
	vm.ip = -1
	vm.sp = 1 + len(unit.Locals)

	func() {
		defer func() {
			if r := recover(); r != nil {
				vm.handlePanic(r)
			}
		}()
		vm.run()
	}()

	ret := vm.stack[0]
	for i := 0; i < vm.sp && i < stackSize; i++ {
		vm.stack[i] = nil
	}
	for i := 0; i < vm.frameIndex && i < frameSize; i++ {
		vm.frames[i].unit = nil
	}
	vm.curFrame = nil

	if vm.err != nil {
		return nil, vm.err
	}
	if ret == nil {
		ret = None
	}
	return ret, nil
}

func (vm *VM) run() {
	for atomic.LoadInt64(&vm.abort) == 0 {
		vm.ip++
		if vm.trace != nil {
			vm.printTrace()
		}
		// an instruction pushes at most two values
		if vm.sp >= stackSize-1 {
			vm.err = vm.throwGenErr(ErrStackOverflow)
			return
		}
		switch vm.curInsts[vm.ip] {
		case OpConstant:
			cidx := int(vm.curInsts[vm.ip+2]) | int(vm.curInsts[vm.ip+1])<<8
			vm.stack[vm.sp] = vm.curFrame.unit.Constants[cidx]
			vm.sp++
			vm.ip += 2
		case OpPop:
			vm.sp--
			vm.stack[vm.sp] = nil
		case OpDup2:
			vm.stack[vm.sp] = vm.stack[vm.sp-2]
			vm.stack[vm.sp+1] = vm.stack[vm.sp-1]
			vm.sp += 2
		case OpGetLocal:
			localIdx := int(vm.curInsts[vm.ip+2]) | int(vm.curInsts[vm.ip+1])<<8
			value := vm.stack[vm.curFrame.basePointer+localIdx]
			if value == nil {
				name := vm.curFrame.unit.Locals[localIdx]
				if err := vm.throwGenErr(ErrUnboundLocal.NewError(
					fmt.Sprintf("cannot access local variable '%s' "+
						"where it is not associated with a value", name))); err != nil {
					vm.err = err
					return
				}
			}
			vm.stack[vm.sp] = value
			vm.sp++
			vm.ip += 2
		case OpSetLocal:
			localIdx := int(vm.curInsts[vm.ip+2]) | int(vm.curInsts[vm.ip+1])<<8
			vm.sp--
			vm.stack[vm.curFrame.basePointer+localIdx] = vm.stack[vm.sp]
			vm.stack[vm.sp] = nil
			vm.ip += 2
		case OpGetGlobal:
			nidx := int(vm.curInsts[vm.ip+2]) | int(vm.curInsts[vm.ip+1])<<8
			name := vm.curFrame.unit.Names[nidx]
			value, ok := vm.globals[name]
			if !ok {
				value, ok = LookupBuiltin(name)
			}
			if !ok {
				if err := vm.throwGenErr(ErrName.NewError(
					fmt.Sprintf("name '%s' is not defined", name))); err != nil {
					vm.err = err
					return
				}
			}
			vm.stack[vm.sp] = value
			vm.sp++
			vm.ip += 2
		case OpSetGlobal:
			nidx := int(vm.curInsts[vm.ip+2]) | int(vm.curInsts[vm.ip+1])<<8
			vm.sp--
			vm.globals[vm.curFrame.unit.Names[nidx]] = vm.stack[vm.sp]
			vm.stack[vm.sp] = nil
			vm.ip += 2
		case OpBinaryOp:
			tok := token.Token(vm.curInsts[vm.ip+1])
			left, right := vm.stack[vm.sp-2], vm.stack[vm.sp-1]
			value, err := BinaryOp(tok, left, right)
			if err != nil {
				if err = vm.throwGenErr(err); err != nil {
					vm.err = err
					return
				}
			}
			vm.stack[vm.sp-2] = value
			vm.sp--
			vm.stack[vm.sp] = nil
			vm.ip++
		case OpUnary:
			tok := token.Token(vm.curInsts[vm.ip+1])
			value, err := UnaryOp(tok, vm.stack[vm.sp-1])
			if err != nil {
				if err = vm.throwGenErr(err); err != nil {
					vm.err = err
					return
				}
			}
			vm.stack[vm.sp-1] = value
			vm.ip++
		case OpEqual:
			left, right := vm.stack[vm.sp-2], vm.stack[vm.sp-1]
			vm.stack[vm.sp-2] = Bool(left.Equal(right))
			vm.sp--
			vm.stack[vm.sp] = nil
		case OpNotEqual:
			left, right := vm.stack[vm.sp-2], vm.stack[vm.sp-1]
			vm.stack[vm.sp-2] = Bool(!left.Equal(right))
			vm.sp--
			vm.stack[vm.sp] = nil
		case OpJump:
			vm.ip = (int(vm.curInsts[vm.ip+2]) | int(vm.curInsts[vm.ip+1])<<8) - 1
		case OpJumpFalsy:
			vm.sp--
			obj := vm.stack[vm.sp]
			vm.stack[vm.sp] = nil
			if obj.IsFalsy() {
				vm.ip = (int(vm.curInsts[vm.ip+2]) | int(vm.curInsts[vm.ip+1])<<8) - 1
				continue
			}
			vm.ip += 2
		case OpAndJump:
			if vm.stack[vm.sp-1].IsFalsy() {
				pos := int(vm.curInsts[vm.ip+2]) | int(vm.curInsts[vm.ip+1])<<8
				vm.ip = pos - 1
				continue
			}
			vm.stack[vm.sp-1] = nil
			vm.sp--
			vm.ip += 2
		case OpOrJump:
			if vm.stack[vm.sp-1].IsFalsy() {
				vm.stack[vm.sp-1] = nil
				vm.sp--
				vm.ip += 2
				continue
			}
			pos := int(vm.curInsts[vm.ip+2]) | int(vm.curInsts[vm.ip+1])<<8
			vm.ip = pos - 1
		case OpCall:
			if err := vm.execOpCall(); err != nil {
				if err = vm.throwGenErr(err); err != nil {
					vm.err = err
					return
				}
			}
		case OpReturn:
			numRet := vm.curInsts[vm.ip+1]
			bp := vm.curFrame.basePointer
			if numRet == 1 {
				vm.stack[bp-1] = vm.stack[vm.sp-1]
			} else {
				vm.stack[bp-1] = None
			}

			for i := vm.sp - 1; i >= bp; i-- {
				vm.stack[i] = nil
			}

			vm.sp = bp
			if vm.frameIndex == 1 {
				return
			}
			vm.curFrame.unit = nil
			parent := &(vm.frames[vm.frameIndex-2])
			vm.frameIndex--
			vm.ip = parent.ip
			vm.curFrame = parent
			vm.curInsts = vm.curFrame.unit.Instructions
		case OpMakeFunction:
			cidx := int(vm.curInsts[vm.ip+2]) | int(vm.curInsts[vm.ip+1])<<8
			unit, ok := vm.curFrame.unit.Constants[cidx].(*CodeUnit)
			if !ok {
				vm.err = fmt.Errorf("constant %d is not a code unit", cidx)
				return
			}
			vm.stack[vm.sp] = &Function{Unit: unit}
			vm.sp++
			vm.ip += 2
		case OpList:
			numItems := int(vm.curInsts[vm.ip+2]) | int(vm.curInsts[vm.ip+1])<<8
			arr := make(List, numItems)
			copy(arr, vm.stack[vm.sp-numItems:vm.sp])
			for i := vm.sp - numItems; i < vm.sp; i++ {
				vm.stack[i] = nil
			}
			vm.sp -= numItems
			vm.stack[vm.sp] = arr
			vm.sp++
			vm.ip += 2
		case OpGetIndex:
			target, index := vm.stack[vm.sp-2], vm.stack[vm.sp-1]
			value, err := target.IndexGet(index)
			if err != nil {
				if errors.Is(err, ErrNotImplemented) {
					err = ErrType.NewError(fmt.Sprintf(
						"'%s' object is not subscriptable", target.TypeName()))
				}
				if err = vm.throwGenErr(err); err != nil {
					vm.err = err
					return
				}
			}
			vm.stack[vm.sp-2] = value
			vm.sp--
			vm.stack[vm.sp] = nil
		case OpSetIndex:
			target := vm.stack[vm.sp-3]
			index := vm.stack[vm.sp-2]
			value := vm.stack[vm.sp-1]
			if err := target.IndexSet(index, value); err != nil {
				if errors.Is(err, ErrNotImplemented) {
					err = ErrType.NewError(fmt.Sprintf(
						"'%s' object does not support item assignment",
						target.TypeName()))
				}
				if err = vm.throwGenErr(err); err != nil {
					vm.err = err
					return
				}
			}
			vm.stack[vm.sp-3] = nil
			vm.stack[vm.sp-2] = nil
			vm.stack[vm.sp-1] = nil
			vm.sp -= 3
		case OpIterInit:
			dst := vm.stack[vm.sp-1]
			if !dst.CanIterate() {
				if err := vm.throwGenErr(ErrType.NewError(fmt.Sprintf(
					"'%s' object is not iterable", dst.TypeName()))); err != nil {
					vm.err = err
					return
				}
			}
			vm.stack[vm.sp-1] = &iteratorObject{Iterator: dst.Iterate()}
		case OpIterNext:
			it := vm.stack[vm.sp-1].(*iteratorObject)
			if it.Next() {
				vm.stack[vm.sp] = it.Value()
				vm.sp++
				vm.ip += 2
				continue
			}
			vm.sp--
			vm.stack[vm.sp] = nil
			vm.ip = (int(vm.curInsts[vm.ip+2]) | int(vm.curInsts[vm.ip+1])<<8) - 1
		case OpNoOp:
		default:
			vm.err = fmt.Errorf("unknown opcode %d", vm.curInsts[vm.ip])
			return
		}
	}
	vm.err = ErrVMAborted
}

func (vm *VM) execOpCall() error {
	numArgs := int(vm.curInsts[vm.ip+1])
	callee := vm.stack[vm.sp-numArgs-1]

	if fn, ok := callee.(*Function); ok {
		unit := fn.Unit
		if numArgs != unit.ArgCount {
			return NewWrongNumArgumentsError(unit.Name, unit.ArgCount, numArgs)
		}
		basePointer := vm.sp - numArgs
		if vm.frameIndex >= frameSize ||
			basePointer+len(unit.Locals)+stackReserve >= stackSize {
			return ErrRecursion
		}
		for i := numArgs; i < len(unit.Locals); i++ {
			vm.stack[basePointer+i] = nil
		}

		// save the position of the last byte of the call instruction
		vm.curFrame.ip = vm.ip + 1

		vm.curFrame = &(vm.frames[vm.frameIndex])
		vm.curFrame.unit = unit
		vm.curFrame.basePointer = basePointer
		vm.curInsts = unit.Instructions
		vm.sp = basePointer + len(unit.Locals)
		vm.ip = -1
		vm.frameIndex++
		return nil
	}

	if !callee.CanCall() {
		return ErrType.NewError(fmt.Sprintf(
			"'%s' object is not callable", callee.TypeName()))
	}

	args := make([]Object, numArgs)
	copy(args, vm.stack[vm.sp-numArgs:vm.sp])
	result, err := callee.Call(NewCall(vm, args...))
	if err != nil {
		return err
	}
	if result == nil {
		result = None
	}

	for i := vm.sp - numArgs; i < vm.sp; i++ {
		vm.stack[i] = nil
	}
	vm.sp -= numArgs
	vm.stack[vm.sp-1] = result
	vm.ip++
	return nil
}

// throwGenErr converts err to a RuntimeError with the traceback of the
// current frames. There is no error handler, so the error is always
// returned and stops the execution.
func (vm *VM) throwGenErr(err error) error {
	var rerr *RuntimeError
	if !errors.As(err, &rerr) {
		var e *Error
		if !errors.As(err, &e) {
			e = &Error{Name: "RuntimeError", Message: err.Error(), Cause: err}
		}
		rerr = &RuntimeError{Err: e}
	}
	rerr.addTrace(vm.curFrame.unit.SourcePos(vm.ip))
	for i := vm.frameIndex - 2; i >= 0; i-- {
		f := &vm.frames[i]
		rerr.addTrace(f.unit.SourcePos(f.ip))
	}
	return rerr
}

func (vm *VM) handlePanic(r interface{}) {
	gostack := debug.Stack()
	if vm.err != nil {
		vm.err = fmt.Errorf("panic: %v error: %w\nGo Stack:\n%s",
			r, vm.err, gostack)
		return
	}
	vm.err = fmt.Errorf("panic: %v\nGo Stack:\n%s", r, gostack)
}

func (vm *VM) printTrace() {
	var s string
	end := len(vm.curInsts)
	if op := vm.curInsts[vm.ip]; int(op) < len(OpcodeOperands) {
		end = vm.ip + 1 + sumWidths(OpcodeOperands[op])
		if end > len(vm.curInsts) {
			end = len(vm.curInsts)
		}
	}
	if out := FormatInstructions(vm.curInsts[vm.ip:end], vm.ip); len(out) > 0 {
		s = out[0]
	}
	_, _ = fmt.Fprintf(vm.trace, "[%s] %s\n", vm.curFrame.unit.Name, s)
}

type frame struct {
	unit        *CodeUnit
	ip          int
	basePointer int
}
