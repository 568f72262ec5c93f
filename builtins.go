// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package minipyc

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/minipyc/minipyc/token"
)

var (
	// PrintWriter is the default writer of print when it is called without
	// a VM.
	PrintWriter io.Writer = os.Stdout
)

// BuiltinType represents a builtin type
type BuiltinType byte

// Builtins
const (
	BuiltinPrint BuiltinType = iota
	BuiltinInput
	BuiltinLen
	BuiltinRange
	BuiltinStr
	BuiltinInt
	BuiltinFloat
	BuiltinBool
	BuiltinAbs
	BuiltinMin
	BuiltinMax
	BuiltinTypeOf
)

// BuiltinsMap is list of builtin types, exported for REPL.
var BuiltinsMap = map[string]BuiltinType{
	"print": BuiltinPrint,
	"input": BuiltinInput,
	"len":   BuiltinLen,
	"range": BuiltinRange,
	"str":   BuiltinStr,
	"int":   BuiltinInt,
	"float": BuiltinFloat,
	"bool":  BuiltinBool,
	"abs":   BuiltinAbs,
	"min":   BuiltinMin,
	"max":   BuiltinMax,
	"type":  BuiltinTypeOf,
}

// BuiltinObjects is list of builtins, exported for REPL.
var BuiltinObjects = [...]Object{
	BuiltinPrint: &BuiltinFunction{
		Name:  "print",
		Value: builtinPrintFunc,
	},
	BuiltinInput: &BuiltinFunction{
		Name:  "input",
		Value: builtinInputFunc,
	},
	BuiltinLen: &BuiltinFunction{
		Name:  "len",
		Value: builtinLenFunc,
	},
	BuiltinRange: &BuiltinFunction{
		Name:  "range",
		Value: builtinRangeFunc,
	},
	BuiltinStr: &BuiltinFunction{
		Name:  "str",
		Value: builtinStrFunc,
	},
	BuiltinInt: &BuiltinFunction{
		Name:  "int",
		Value: builtinIntFunc,
	},
	BuiltinFloat: &BuiltinFunction{
		Name:  "float",
		Value: builtinFloatFunc,
	},
	BuiltinBool: &BuiltinFunction{
		Name:  "bool",
		Value: builtinBoolFunc,
	},
	BuiltinAbs: &BuiltinFunction{
		Name:  "abs",
		Value: builtinAbsFunc,
	},
	BuiltinMin: &BuiltinFunction{
		Name:  "min",
		Value: func(c Call) (Object, error) { return builtinMinMax(c, "min", token.Less) },
	},
	BuiltinMax: &BuiltinFunction{
		Name:  "max",
		Value: func(c Call) (Object, error) { return builtinMinMax(c, "max", token.Greater) },
	},
	BuiltinTypeOf: &BuiltinFunction{
		Name:  "type",
		Value: builtinTypeFunc,
	},
}

// LookupBuiltin returns the builtin object of the name.
func LookupBuiltin(name string) (Object, bool) {
	bt, ok := BuiltinsMap[name]
	if !ok {
		return nil, false
	}
	return BuiltinObjects[bt], true
}

func checkNumArgs(c *Call, name string, min, max int) error {
	n := c.Len()
	if n >= min && n <= max {
		return nil
	}
	switch {
	case min == max && min == 1:
		return ErrType.NewError(fmt.Sprintf(
			"%s() takes exactly one argument (%d given)", name, n))
	case n < min:
		return ErrType.NewError(fmt.Sprintf(
			"%s expected at least %d argument%s, got %d",
			name, min, plural(min), n))
	default:
		return ErrType.NewError(fmt.Sprintf(
			"%s expected at most %d argument%s, got %d",
			name, max, plural(max), n))
	}
}

func builtinPrintFunc(c Call) (Object, error) {
	var w io.Writer = PrintWriter
	if c.vm != nil {
		w = c.vm.Stdout()
	}
	var sb strings.Builder
	for i, arg := range c.args {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(arg.String())
	}
	sb.WriteByte('\n')
	if _, err := io.WriteString(w, sb.String()); err != nil {
		return nil, err
	}
	return None, nil
}

func builtinInputFunc(c Call) (Object, error) {
	if err := checkNumArgs(&c, "input", 0, 1); err != nil {
		return nil, err
	}
	if c.vm == nil {
		return nil, ErrEOF
	}
	if c.Len() == 1 {
		if _, err := io.WriteString(c.vm.Stdout(),
			c.Get(0).String()); err != nil {
			return nil, err
		}
	}
	line, err := c.vm.Stdin().ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return nil, err
		}
		if line == "" {
			return nil, ErrEOF
		}
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return String(line), nil
}

func builtinLenFunc(c Call) (Object, error) {
	if err := checkNumArgs(&c, "len", 1, 1); err != nil {
		return nil, err
	}
	switch v := c.Get(0).(type) {
	case String:
		return Int(v.Len()), nil
	case List:
		return Int(len(v)), nil
	case *Range:
		return Int(v.Len()), nil
	}
	return nil, ErrType.NewError(fmt.Sprintf(
		"object of type '%s' has no len()", c.Get(0).TypeName()))
}

func builtinRangeFunc(c Call) (Object, error) {
	if err := checkNumArgs(&c, "range", 1, 3); err != nil {
		return nil, err
	}
	var args [3]int64
	for i, arg := range c.args {
		v, ok := indexValue(arg)
		if !ok {
			return nil, ErrType.NewError(fmt.Sprintf(
				"'%s' object cannot be interpreted as an integer",
				arg.TypeName()))
		}
		args[i] = v
	}
	r := &Range{Step: 1}
	switch c.Len() {
	case 1:
		r.Stop = args[0]
	case 2:
		r.Start, r.Stop = args[0], args[1]
	default:
		r.Start, r.Stop, r.Step = args[0], args[1], args[2]
		if r.Step == 0 {
			return nil, ErrValue.NewError("range() arg 3 must not be zero")
		}
	}
	return r, nil
}

func builtinStrFunc(c Call) (Object, error) {
	if err := checkNumArgs(&c, "str", 0, 1); err != nil {
		return nil, err
	}
	if c.Len() == 0 {
		return String(""), nil
	}
	if s, ok := c.Get(0).(String); ok {
		return s, nil
	}
	return String(c.Get(0).String()), nil
}

func builtinIntFunc(c Call) (Object, error) {
	if err := checkNumArgs(&c, "int", 0, 1); err != nil {
		return nil, err
	}
	if c.Len() == 0 {
		return Int(0), nil
	}
	switch v := c.Get(0).(type) {
	case Int:
		return v, nil
	case Bool:
		return v.toInt(), nil
	case Float:
		f := math.Trunc(float64(v))
		switch {
		case math.IsNaN(f):
			return nil, ErrValue.NewError("cannot convert float NaN to integer")
		case math.IsInf(f, 0):
			return nil, ErrOverflow.NewError("cannot convert float infinity to integer")
		case f < math.MinInt64 || f >= math.MaxInt64:
			return nil, ErrOverflow.NewError("int too large to convert")
		}
		return Int(int64(f)), nil
	case String:
		s := strings.TrimSpace(string(v))
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			if errors.Is(err, strconv.ErrRange) {
				return nil, ErrOverflow.NewError("int too large to convert")
			}
			return nil, ErrValue.NewError(fmt.Sprintf(
				"invalid literal for int() with base 10: %s", Repr(v)))
		}
		return Int(i), nil
	}
	return nil, ErrType.NewError(fmt.Sprintf(
		"int() argument must be a string or a real number, not '%s'",
		c.Get(0).TypeName()))
}

func builtinFloatFunc(c Call) (Object, error) {
	if err := checkNumArgs(&c, "float", 0, 1); err != nil {
		return nil, err
	}
	if c.Len() == 0 {
		return Float(0), nil
	}
	switch v := c.Get(0).(type) {
	case Float:
		return v, nil
	case Int:
		return Float(v), nil
	case Bool:
		return Float(v.toInt()), nil
	case String:
		s := strings.TrimSpace(string(v))
		f, err := strconv.ParseFloat(s, 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return nil, ErrValue.NewError(fmt.Sprintf(
				"could not convert string to float: %s", Repr(v)))
		}
		return Float(f), nil
	}
	return nil, ErrType.NewError(fmt.Sprintf(
		"float() argument must be a string or a real number, not '%s'",
		c.Get(0).TypeName()))
}

func builtinBoolFunc(c Call) (Object, error) {
	if err := checkNumArgs(&c, "bool", 0, 1); err != nil {
		return nil, err
	}
	if c.Len() == 0 {
		return False, nil
	}
	return Bool(!c.Get(0).IsFalsy()), nil
}

func builtinAbsFunc(c Call) (Object, error) {
	if err := checkNumArgs(&c, "abs", 1, 1); err != nil {
		return nil, err
	}
	switch v := c.Get(0).(type) {
	case Int:
		if v == math.MinInt64 {
			return nil, errIntOverflow
		}
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case Bool:
		return v.toInt(), nil
	case Float:
		return Float(math.Abs(float64(v))), nil
	}
	return nil, ErrType.NewError(fmt.Sprintf(
		"bad operand type for abs(): '%s'", c.Get(0).TypeName()))
}

func builtinMinMax(c Call, name string, tok token.Token) (Object, error) {
	if c.Len() == 0 {
		return nil, ErrType.NewError(fmt.Sprintf(
			"%s expected at least 1 argument, got 0", name))
	}
	items := c.args
	if c.Len() == 1 {
		arg := c.Get(0)
		if !arg.CanIterate() {
			return nil, ErrType.NewError(fmt.Sprintf(
				"'%s' object is not iterable", arg.TypeName()))
		}
		items = nil
		it := arg.Iterate()
		for it.Next() {
			items = append(items, it.Value())
		}
		if len(items) == 0 {
			return nil, ErrValue.NewError(fmt.Sprintf(
				"%s() arg is an empty sequence", name))
		}
	}
	best := items[0]
	for _, item := range items[1:] {
		v, err := BinaryOp(tok, item, best)
		if err != nil {
			return nil, err
		}
		if !v.IsFalsy() {
			best = item
		}
	}
	return best, nil
}

func builtinTypeFunc(c Call) (Object, error) {
	if err := checkNumArgs(&c, "type", 1, 1); err != nil {
		return nil, err
	}
	return String(fmt.Sprintf("<class '%s'>", c.Get(0).TypeName())), nil
}
