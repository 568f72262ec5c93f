// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package minipyc

import (
	"fmt"

	"github.com/minipyc/minipyc/token"
)

var (
	// ErrSymbolLimit represents a symbol limit error which is returned by
	// Compiler when a table of a code unit exceeds 65535 entries.
	ErrSymbolLimit = &Error{
		Name:    "SymbolLimitError",
		Message: "number of symbols exceeds the limit",
	}

	// ErrCodeLimit is returned by Compiler when a code unit is too large to
	// address with 16-bit jump targets.
	ErrCodeLimit = &Error{
		Name:    "CodeLimitError",
		Message: "code unit exceeds the maximum size",
	}

	// ErrStackOverflow is raised when the VM stack is exhausted.
	ErrStackOverflow = &Error{
		Name:    "StackOverflowError",
		Message: "stack overflow",
	}

	// ErrVMAborted represents a VM aborted error.
	ErrVMAborted = &Error{Name: "VMAbortedError"}

	// ErrZeroDivision is an error where divisor is zero.
	ErrZeroDivision = &Error{Name: "ZeroDivisionError"}

	// ErrType represents a type error.
	ErrType = &Error{Name: "TypeError"}

	// ErrName is raised when a name is not found in globals or builtins.
	ErrName = &Error{Name: "NameError"}

	// ErrUnboundLocal is raised when a local variable is read before it is
	// assigned.
	ErrUnboundLocal = &Error{Name: "UnboundLocalError"}

	// ErrIndex represents an out of range index error.
	ErrIndex = &Error{Name: "IndexError"}

	// ErrOverflow is raised when an integer result does not fit in 64 bits.
	ErrOverflow = &Error{Name: "OverflowError"}

	// ErrValue represents a value error.
	ErrValue = &Error{Name: "ValueError"}

	// ErrRecursion is raised when the call depth exceeds the frame limit.
	ErrRecursion = &Error{
		Name:    "RecursionError",
		Message: "maximum recursion depth exceeded",
	}

	// ErrEOF is raised by input() when the input stream is exhausted.
	ErrEOF = &Error{
		Name:    "EOFError",
		Message: "EOF when reading a line",
	}
)

// NewOperandTypeError creates a new Error from ErrType.
func NewOperandTypeError(tok token.Token, left, right Object) *Error {
	if tok.IsComparison() {
		return ErrType.NewError(
			fmt.Sprintf("'%s' not supported between instances of '%s' and '%s'",
				tok, left.TypeName(), right.TypeName()))
	}
	return ErrType.NewError(
		fmt.Sprintf("unsupported operand type(s) for %s: '%s' and '%s'",
			tok, left.TypeName(), right.TypeName()))
}

// NewUnaryTypeError creates a new Error from ErrType.
func NewUnaryTypeError(tok token.Token, operand Object) *Error {
	return ErrType.NewError(
		fmt.Sprintf("bad operand type for unary %s: '%s'",
			tok, operand.TypeName()))
}

// NewIndexTypeError creates a new Error from ErrType.
func NewIndexTypeError(container, index Object) *Error {
	return ErrType.NewError(
		fmt.Sprintf("%s indices must be integers, not '%s'",
			container.TypeName(), index.TypeName()))
}

// NewWrongNumArgumentsError creates a new Error from ErrType for a call
// with a wrong number of positional arguments.
func NewWrongNumArgumentsError(fn string, want, got int) *Error {
	return ErrType.NewError(
		fmt.Sprintf("%s() takes %d positional argument%s but %d %s given",
			fn, want, plural(want), got, wasWere(got)))
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func wasWere(n int) string {
	if n == 1 {
		return "was"
	}
	return "were"
}
