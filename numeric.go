// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package minipyc

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/minipyc/minipyc/token"
)

// Int represents signed integer values and implements Object interface.
type Int int64

// TypeName implements Object interface.
func (Int) TypeName() string {
	return "int"
}

// String implements Object interface.
func (o Int) String() string {
	return strconv.FormatInt(int64(o), 10)
}

// Equal implements Object interface.
func (o Int) Equal(right Object) bool {
	switch v := right.(type) {
	case Int:
		return o == v
	case Float:
		return Float(o) == v
	case Bool:
		return o == v.toInt()
	}
	return false
}

// IsFalsy implements Object interface.
func (o Int) IsFalsy() bool { return o == 0 }

// CanCall implements Object interface.
func (Int) CanCall() bool { return false }

// Call implements Object interface.
func (Int) Call(Call) (Object, error) {
	return nil, ErrNotImplemented
}

// CanIterate implements Object interface.
func (Int) CanIterate() bool { return false }

// Iterate implements Object interface.
func (Int) Iterate() Iterator { return nil }

// IndexSet implements Object interface.
func (Int) IndexSet(index, value Object) error {
	return ErrNotImplemented
}

// IndexGet implements Object interface.
func (Int) IndexGet(index Object) (Object, error) {
	return nil, ErrNotImplemented
}

// BinaryOp implements Object interface.
func (o Int) BinaryOp(tok token.Token, right Object) (Object, error) {
	switch v := right.(type) {
	case Int:
		return intBinaryOp(tok, int64(o), int64(v))
	case Bool:
		return intBinaryOp(tok, int64(o), int64(v.toInt()))
	case Float:
		return Float(o).BinaryOp(tok, v)
	case String, List:
		if tok == token.Mul {
			return v.BinaryOp(tok, o)
		}
	}
	return nil, NewOperandTypeError(tok, o, right)
}

func intBinaryOp(tok token.Token, a, b int64) (Object, error) {
	switch tok {
	case token.Add:
		if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
			return nil, errIntOverflow
		}
		return Int(a + b), nil
	case token.Sub:
		if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
			return nil, errIntOverflow
		}
		return Int(a - b), nil
	case token.Mul:
		c, ok := mulInt64(a, b)
		if !ok {
			return nil, errIntOverflow
		}
		return Int(c), nil
	case token.Quo:
		if b == 0 {
			return nil, ErrZeroDivision.NewError("division by zero")
		}
		return Float(float64(a) / float64(b)), nil
	case token.FloorQuo:
		if b == 0 {
			return nil, ErrZeroDivision.NewError("integer division or modulo by zero")
		}
		if a == math.MinInt64 && b == -1 {
			return nil, errIntOverflow
		}
		q := a / b
		if a%b != 0 && (a < 0) != (b < 0) {
			q--
		}
		return Int(q), nil
	case token.Rem:
		if b == 0 {
			return nil, ErrZeroDivision.NewError("integer modulo by zero")
		}
		if b == -1 {
			return Int(0), nil
		}
		r := a % b
		if r != 0 && (r < 0) != (b < 0) {
			r += b
		}
		return Int(r), nil
	case token.Pow:
		if b < 0 {
			return floatBinaryOp(tok, float64(a), float64(b))
		}
		return powInt64(a, b)
	case token.Less:
		return Bool(a < b), nil
	case token.LessEq:
		return Bool(a <= b), nil
	case token.Greater:
		return Bool(a > b), nil
	case token.GreaterEq:
		return Bool(a >= b), nil
	}
	return nil, NewOperandTypeError(tok, Int(a), Int(b))
}

var errIntOverflow = ErrOverflow.NewError("integer result out of range")

func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	c := a * b
	if c/b != a {
		return 0, false
	}
	return c, true
}

func powInt64(base, exp int64) (Object, error) {
	result := int64(1)
	for exp > 0 {
		var ok bool
		if exp&1 == 1 {
			if result, ok = mulInt64(result, base); !ok {
				return nil, errIntOverflow
			}
		}
		exp >>= 1
		if exp > 0 {
			if base, ok = mulInt64(base, base); !ok {
				return nil, errIntOverflow
			}
		}
	}
	return Int(result), nil
}

// Float represents float values and implements Object interface.
type Float float64

// TypeName implements Object interface.
func (Float) TypeName() string {
	return "float"
}

// String implements Object interface. It uses the shortest representation
// that round-trips, switching to exponent form for very large or small
// magnitudes.
func (o Float) String() string {
	f := float64(o)
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}

	s := strconv.FormatFloat(f, 'e', -1, 64)
	i := strings.LastIndexByte(s, 'e')
	exp, _ := strconv.Atoi(s[i+1:])
	if decpt := exp + 1; decpt <= -4 || decpt > 16 {
		return s
	}
	s = strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

// Equal implements Object interface.
func (o Float) Equal(right Object) bool {
	switch v := right.(type) {
	case Float:
		return o == v
	case Int:
		return o == Float(v)
	case Bool:
		return o == Float(v.toInt())
	}
	return false
}

// IsFalsy implements Object interface.
func (o Float) IsFalsy() bool { return o == 0 }

// CanCall implements Object interface.
func (Float) CanCall() bool { return false }

// Call implements Object interface.
func (Float) Call(Call) (Object, error) {
	return nil, ErrNotImplemented
}

// CanIterate implements Object interface.
func (Float) CanIterate() bool { return false }

// Iterate implements Object interface.
func (Float) Iterate() Iterator { return nil }

// IndexSet implements Object interface.
func (Float) IndexSet(index, value Object) error {
	return ErrNotImplemented
}

// IndexGet implements Object interface.
func (Float) IndexGet(index Object) (Object, error) {
	return nil, ErrNotImplemented
}

// BinaryOp implements Object interface.
func (o Float) BinaryOp(tok token.Token, right Object) (Object, error) {
	switch v := right.(type) {
	case Float:
		return floatBinaryOp(tok, float64(o), float64(v))
	case Int:
		return floatBinaryOp(tok, float64(o), float64(v))
	case Bool:
		return floatBinaryOp(tok, float64(o), float64(v.toInt()))
	}
	return nil, NewOperandTypeError(tok, o, right)
}

func floatBinaryOp(tok token.Token, a, b float64) (Object, error) {
	switch tok {
	case token.Add:
		return Float(a + b), nil
	case token.Sub:
		return Float(a - b), nil
	case token.Mul:
		return Float(a * b), nil
	case token.Quo:
		if b == 0 {
			return nil, ErrZeroDivision.NewError("float division by zero")
		}
		return Float(a / b), nil
	case token.FloorQuo:
		if b == 0 {
			return nil, ErrZeroDivision.NewError("float floor division by zero")
		}
		div, _ := floatDivMod(a, b)
		return Float(div), nil
	case token.Rem:
		if b == 0 {
			return nil, ErrZeroDivision.NewError("float modulo by zero")
		}
		_, mod := floatDivMod(a, b)
		return Float(mod), nil
	case token.Pow:
		return floatPow(a, b)
	case token.Less:
		return Bool(a < b), nil
	case token.LessEq:
		return Bool(a <= b), nil
	case token.Greater:
		return Bool(a > b), nil
	case token.GreaterEq:
		return Bool(a >= b), nil
	}
	return nil, NewOperandTypeError(tok, Float(a), Float(b))
}

// floatDivMod returns floor division and modulo where the modulo takes the
// sign of the divisor.
func floatDivMod(a, b float64) (float64, float64) {
	mod := math.Mod(a, b)
	div := (a - mod) / b
	if mod != 0 {
		if (b < 0) != (mod < 0) {
			mod += b
			div--
		}
	} else {
		mod = math.Copysign(0, b)
	}

	var floordiv float64
	if div != 0 {
		floordiv = math.Floor(div)
		if div-floordiv > 0.5 {
			floordiv++
		}
	} else {
		floordiv = math.Copysign(0, a/b)
	}
	return floordiv, mod
}

func floatPow(a, b float64) (Object, error) {
	if a == 0 && b < 0 {
		return nil, ErrZeroDivision.NewError(
			"0.0 cannot be raised to a negative power")
	}
	if a < 0 && b != math.Trunc(b) && !math.IsInf(b, 0) {
		return nil, ErrValue.NewError(
			"negative number cannot be raised to a fractional power")
	}
	r := math.Pow(a, b)
	if math.IsInf(r, 0) && !math.IsInf(a, 0) && !math.IsInf(b, 0) {
		return nil, ErrOverflow.NewError("numerical result out of range")
	}
	return Float(r), nil
}

// BinaryOp applies a binary operator to the operands. It is used by both the
// VM and the constant folder so that both produce the same values and
// errors.
func BinaryOp(tok token.Token, left, right Object) (Object, error) {
	switch tok {
	case token.Equal:
		return Bool(left.Equal(right)), nil
	case token.NotEqual:
		return Bool(!left.Equal(right)), nil
	}
	v, err := left.BinaryOp(tok, right)
	if err != nil {
		if errors.Is(err, ErrNotImplemented) {
			return nil, NewOperandTypeError(tok, left, right)
		}
		return nil, err
	}
	return v, nil
}

// UnaryOp applies a unary operator (-, + or not) to the operand.
func UnaryOp(tok token.Token, operand Object) (Object, error) {
	if tok == token.Not {
		return Bool(operand.IsFalsy()), nil
	}
	switch v := operand.(type) {
	case Int:
		switch tok {
		case token.Sub:
			if v == math.MinInt64 {
				return nil, errIntOverflow
			}
			return -v, nil
		case token.Add:
			return v, nil
		}
	case Bool:
		switch tok {
		case token.Sub:
			return -v.toInt(), nil
		case token.Add:
			return v.toInt(), nil
		}
	case Float:
		switch tok {
		case token.Sub:
			return -v, nil
		case token.Add:
			return v, nil
		}
	}
	return nil, NewUnaryTypeError(tok, operand)
}
