package minipyc_test

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/minipyc/minipyc"
	"github.com/minipyc/minipyc/parser"
	"github.com/minipyc/minipyc/token"
)

func TestObjects(t *testing.T) {
	// ensure basic type's Go equality and comparison
	require.True(t, True == Bool(true))
	require.True(t, False == Bool(false))
	require.True(t, True != False)
	comparables := []Object{
		True,
		False,
		None,
		Int(-1),
		Int(0),
		Int(1),
		Float(0),
		Float(1),
		String(""),
		String("x"),
	}
	for i := range comparables {
		for j := range comparables {
			if i != j {
				require.True(t, comparables[i] != comparables[j],
					"%T and %T must be not equal", comparables[i], comparables[j])
			} else {
				require.True(t, comparables[i] == comparables[j],
					"%T and %T must be equal", comparables[i], comparables[j])
			}
		}
	}
}

func TestObjectIterable(t *testing.T) {
	require.False(t, Int(0).CanIterate())
	require.False(t, Float(0).CanIterate())
	require.False(t, Bool(true).CanIterate())
	require.False(t, None.CanIterate())
	require.False(t, (&Function{}).CanIterate())
	require.False(t, (&BuiltinFunction{}).CanIterate())
	require.False(t, (&CodeUnit{}).CanIterate())

	require.Nil(t, Int(0).Iterate())
	require.Nil(t, None.Iterate())

	require.True(t, String("").CanIterate())
	require.True(t, List{}.CanIterate())
	require.True(t, (&Range{Step: 1}).CanIterate())

	collect := func(o Object) (keys, values []Object) {
		it := o.Iterate()
		for it.Next() {
			keys = append(keys, it.Key())
			values = append(values, it.Value())
		}
		return
	}

	keys, values := collect(String("aç😀"))
	require.Equal(t, []Object{Int(0), Int(1), Int(3)}, keys)
	require.Equal(t, []Object{String("a"), String("ç"), String("😀")}, values)

	keys, values = collect(List{True, String("x")})
	require.Equal(t, []Object{Int(0), Int(1)}, keys)
	require.Equal(t, []Object{True, String("x")}, values)

	_, values = collect(&Range{Start: 10, Stop: 0, Step: -3})
	require.Equal(t, []Object{Int(10), Int(7), Int(4), Int(1)}, values)

	_, values = collect(&Range{Start: 0, Stop: 0, Step: 1})
	require.Nil(t, values)
}

func TestObjectCallable(t *testing.T) {
	require.False(t, Int(0).CanCall())
	require.False(t, Float(0).CanCall())
	require.False(t, Bool(true).CanCall())
	require.False(t, None.CanCall())
	require.False(t, String("").CanCall())
	require.False(t, List{}.CanCall())
	require.False(t, (&Range{}).CanCall())
	require.False(t, (&CodeUnit{}).CanCall())
	require.True(t, (&Function{}).CanCall())
	require.True(t, (&BuiltinFunction{}).CanCall())

	v, err := Int(0).Call(Call{})
	require.Nil(t, v)
	require.Equal(t, ErrNotImplemented, err)
	v, err = String("").Call(Call{})
	require.Nil(t, v)
	require.Equal(t, ErrNotImplemented, err)
	v, err = None.Call(Call{})
	require.Nil(t, v)
	require.Equal(t, ErrNotImplemented, err)

	// user functions need a VM to run frames
	fn := &Function{Unit: &CodeUnit{Name: "f"}}
	_, err = fn.Call(NewCall(nil))
	require.True(t, errors.Is(err, ErrType), "%v", err)

	bf := &BuiltinFunction{
		Name: "double",
		Value: func(c Call) (Object, error) {
			return BinaryOp(token.Mul, c.Get(0), Int(2))
		},
	}
	v, err = bf.Call(NewCall(nil, Int(21)))
	require.NoError(t, err)
	require.Equal(t, Int(42), v)
}

func TestObjectString(t *testing.T) {
	require.Equal(t, "None", None.String())
	require.Equal(t, "True", True.String())
	require.Equal(t, "False", False.String())
	require.Equal(t, "0", Int(0).String())
	require.Equal(t, "-12", Int(-12).String())
	require.Equal(t, "", String("").String())
	require.Equal(t, "it's", String("it's").String())
	require.Equal(t, "[]", List{}.String())
	require.Equal(t, "[1, 'a', None, [2.5]]",
		List{Int(1), String("a"), None, List{Float(2.5)}}.String())
	require.Equal(t, "range(0, 3)", (&Range{Stop: 3, Step: 1}).String())
	require.Equal(t, "range(5, 0, -2)",
		(&Range{Start: 5, Stop: 0, Step: -2}).String())
	require.Equal(t, "<function f>",
		(&Function{Unit: &CodeUnit{Name: "f"}}).String())
	require.Equal(t, "<built-in function len>",
		(&BuiltinFunction{Name: "len"}).String())
	require.Equal(t, "ValueError", ErrValue.Error())
	require.Equal(t, "ValueError: bad", ErrValue.NewError("bad").Error())
	require.Equal(t, "error", (&Error{}).Error())
	require.Equal(t, "<nil>", (&RuntimeError{}).Error())
}

func TestObjectFloatString(t *testing.T) {
	testCases := []struct {
		v    float64
		want string
	}{
		{0, "0.0"},
		{math.Copysign(0, -1), "-0.0"},
		{1, "1.0"},
		{-2.5, "-2.5"},
		{0.1, "0.1"},
		{math.Nextafter(0.3, 1), "0.30000000000000004"},
		{1.0 / 3, "0.3333333333333333"},
		{1e16, "1e+16"},
		{1234567890123456, "1234567890123456.0"},
		{1e-4, "0.0001"},
		{1e-5, "1e-05"},
		{1.5e300, "1.5e+300"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
		{math.NaN(), "nan"},
	}
	for _, tC := range testCases {
		require.Equal(t, tC.want, Float(tC.v).String(), "%v", tC.v)
	}
}

func TestObjectRepr(t *testing.T) {
	testCases := []struct {
		s    string
		want string
	}{
		{"", "''"},
		{"abc", "'abc'"},
		{"it's", `"it's"`},
		{`say "hi"`, `'say "hi"'`},
		{`it's "x"`, `'it\'s "x"'`},
		{"a\\b", `'a\\b'`},
		{"a\nb\tc\r", `'a\nb\tc\r'`},
		{"\x00\x7f", `'\x00\x7f'`},
		{"ç😀", "'ç😀'"},
		{"\u00a0", `'\xa0'`},
		{"\u200b", `'\u200b'`},
	}
	for _, tC := range testCases {
		require.Equal(t, tC.want, Repr(String(tC.s)), "%q", tC.s)
	}
	require.Equal(t, "1", Repr(Int(1)))
	require.Equal(t, "None", Repr(None))
	require.Equal(t, "['x']", Repr(List{String("x")}))
}

func TestObjectTypeName(t *testing.T) {
	require.Equal(t, "int", Int(0).TypeName())
	require.Equal(t, "float", Float(0).TypeName())
	require.Equal(t, "bool", True.TypeName())
	require.Equal(t, "NoneType", None.TypeName())
	require.Equal(t, "str", String("").TypeName())
	require.Equal(t, "list", List{}.TypeName())
	require.Equal(t, "range", (&Range{}).TypeName())
	require.Equal(t, "function", (&Function{}).TypeName())
	require.Equal(t, "builtin_function_or_method",
		(&BuiltinFunction{}).TypeName())
	require.Equal(t, "code", (&CodeUnit{}).TypeName())
}

func TestObjectIsFalsy(t *testing.T) {
	require.True(t, None.IsFalsy())
	require.True(t, False.IsFalsy())
	require.False(t, True.IsFalsy())
	require.True(t, Int(0).IsFalsy())
	require.False(t, Int(-1).IsFalsy())
	require.True(t, Float(0).IsFalsy())
	require.True(t, Float(math.Copysign(0, -1)).IsFalsy())
	require.False(t, Float(math.NaN()).IsFalsy())
	require.True(t, String("").IsFalsy())
	require.False(t, String(" ").IsFalsy())
	require.True(t, List{}.IsFalsy())
	require.False(t, List{None}.IsFalsy())
	require.True(t, (&Range{Start: 3, Stop: 3, Step: 1}).IsFalsy())
	require.False(t, (&Range{Stop: 1, Step: 1}).IsFalsy())
	require.False(t, (&Function{}).IsFalsy())
	require.False(t, (&BuiltinFunction{}).IsFalsy())
}

func TestObjectEqual(t *testing.T) {
	require.True(t, Int(1).Equal(Float(1)))
	require.True(t, Int(1).Equal(True))
	require.True(t, Float(0).Equal(False))
	require.True(t, True.Equal(Int(1)))
	require.False(t, Int(1).Equal(String("1")))
	require.False(t, Float(math.NaN()).Equal(Float(math.NaN())))
	require.True(t, None.Equal(None))
	require.False(t, None.Equal(False))
	require.True(t, String("a").Equal(String("a")))
	require.False(t, String("a").Equal(String("b")))
	require.True(t, List{Int(1), String("x")}.Equal(List{Float(1), String("x")}))
	require.False(t, List{Int(1)}.Equal(List{Int(1), Int(2)}))

	// ranges are equal when they yield the same sequence
	require.True(t, (&Range{Stop: 0, Step: 1}).Equal(&Range{Start: 5, Stop: 2, Step: 1}))
	require.True(t, (&Range{Start: 2, Stop: 3, Step: 1}).Equal(&Range{Start: 2, Stop: 4, Step: 5}))
	require.True(t, (&Range{Stop: 10, Step: 3}).Equal(&Range{Stop: 11, Step: 3}))
	require.False(t, (&Range{Stop: 10, Step: 3}).Equal(&Range{Stop: 10, Step: 2}))
	require.False(t, (&Range{Stop: 1, Step: 1}).Equal(List{Int(0)}))

	f := &Function{Unit: &CodeUnit{Name: "f"}}
	require.True(t, f.Equal(f))
	require.False(t, f.Equal(&Function{Unit: f.Unit}))

	// constants are the same only if type and value match
	require.True(t, SameConstant(Int(1), Int(1)))
	require.False(t, SameConstant(Int(1), Float(1)))
	require.False(t, SameConstant(Int(1), True))
	require.False(t, SameConstant(Float(0), Float(math.Copysign(0, -1))))
	require.True(t, SameConstant(Float(math.NaN()), Float(math.NaN())))
	require.True(t, SameConstant(String("x"), String("x")))
	require.True(t, SameConstant(None, None))
}

func TestObjectRangeLen(t *testing.T) {
	testCases := []struct {
		r    Range
		want int64
	}{
		{Range{Stop: 0, Step: 1}, 0},
		{Range{Stop: 5, Step: 1}, 5},
		{Range{Start: 5, Stop: 0, Step: 1}, 0},
		{Range{Start: 1, Stop: 10, Step: 3}, 3},
		{Range{Start: 10, Stop: 1, Step: -3}, 3},
		{Range{Start: 10, Stop: 0, Step: -1}, 10},
		{Range{Start: 0, Stop: 10, Step: -1}, 0},
		{Range{Start: math.MinInt64, Stop: math.MaxInt64, Step: math.MaxInt64}, 3},
	}
	for _, tC := range testCases {
		r := tC.r
		require.Equal(t, tC.want, r.Len(), "%s", r.String())
	}
}

func TestObjectIndexGet(t *testing.T) {
	v, err := String("héllo").IndexGet(Int(1))
	require.NoError(t, err)
	require.Equal(t, String("é"), v)
	v, err = String("abc").IndexGet(Int(-1))
	require.NoError(t, err)
	require.Equal(t, String("c"), v)
	v, err = String("abc").IndexGet(True)
	require.NoError(t, err)
	require.Equal(t, String("b"), v)
	_, err = String("abc").IndexGet(Int(3))
	require.True(t, errors.Is(err, ErrIndex))
	require.Equal(t, "IndexError: string index out of range", err.Error())
	_, err = String("abc").IndexGet(String("0"))
	require.True(t, errors.Is(err, ErrType))
	require.Equal(t, "TypeError: string indices must be integers, not 'str'",
		err.Error())

	list := List{Int(1), Int(2), Int(3)}
	v, err = list.IndexGet(Int(-3))
	require.NoError(t, err)
	require.Equal(t, Int(1), v)
	_, err = list.IndexGet(Int(-4))
	require.True(t, errors.Is(err, ErrIndex))
	require.Equal(t, "IndexError: list index out of range", err.Error())
	_, err = list.IndexGet(Float(0))
	require.True(t, errors.Is(err, ErrType))
	require.Equal(t, "TypeError: list indices must be integers, not 'float'",
		err.Error())

	r := &Range{Start: 1, Stop: 10, Step: 2}
	v, err = r.IndexGet(Int(-1))
	require.NoError(t, err)
	require.Equal(t, Int(9), v)
	_, err = r.IndexGet(Int(5))
	require.True(t, errors.Is(err, ErrIndex))

	_, err = Int(1).IndexGet(Int(0))
	require.Equal(t, ErrNotImplemented, err)
	_, err = None.IndexGet(Int(0))
	require.Equal(t, ErrNotImplemented, err)
}

func TestObjectIndexSet(t *testing.T) {
	list := List{Int(1), Int(2), Int(3)}
	require.NoError(t, list.IndexSet(Int(0), String("a")))
	require.NoError(t, list.IndexSet(Int(-1), None))
	require.Equal(t, List{String("a"), Int(2), None}, list)

	err := list.IndexSet(Int(3), None)
	require.True(t, errors.Is(err, ErrIndex))
	require.Equal(t, "IndexError: list assignment index out of range", err.Error())
	err = list.IndexSet(String("x"), None)
	require.True(t, errors.Is(err, ErrType))

	err = String("abc").IndexSet(Int(0), String("x"))
	require.Equal(t, "TypeError: 'str' object does not support item assignment",
		err.Error())
	err = (&Range{Stop: 3, Step: 1}).IndexSet(Int(0), Int(1))
	require.True(t, errors.Is(err, ErrType))

	require.Equal(t, ErrNotImplemented, Int(0).IndexSet(Int(0), Int(0)))
	require.Equal(t, ErrNotImplemented, None.IndexSet(Int(0), Int(0)))
}

func TestObjectBinaryOp(t *testing.T) {
	testCases := []struct {
		tok         token.Token
		left, right Object
		want        Object
	}{
		{token.Add, Int(1), Int(2), Int(3)},
		{token.Add, Int(1), True, Int(2)},
		{token.Add, True, True, Int(2)},
		{token.Add, Int(1), Float(0.5), Float(1.5)},
		{token.Quo, Int(1), Int(2), Float(0.5)},
		{token.Quo, Int(4), Int(2), Float(2)},
		{token.FloorQuo, Int(-7), Int(2), Int(-4)},
		{token.FloorQuo, Int(7), Int(-2), Int(-4)},
		{token.Rem, Int(-7), Int(2), Int(1)},
		{token.Rem, Int(7), Int(-2), Int(-1)},
		{token.FloorQuo, Float(-7), Float(2), Float(-4)},
		{token.Rem, Float(-7), Float(2), Float(1)},
		{token.Pow, Int(2), Int(10), Int(1024)},
		{token.Pow, Int(2), Int(-1), Float(0.5)},
		{token.Pow, Float(4), Float(0.5), Float(2)},
		{token.Less, Int(1), Float(1.5), True},
		{token.GreaterEq, String("b"), String("a"), True},
		{token.Less, List{Int(1), Int(2)}, List{Int(1), Int(3)}, True},
		{token.Less, List{Int(1)}, List{Int(1), Int(0)}, True},
		{token.Equal, Int(1), Float(1), True},
		{token.NotEqual, String("a"), Int(1), True},
		{token.Add, String("ab"), String("cd"), String("abcd")},
		{token.Mul, String("ab"), Int(3), String("ababab")},
		{token.Mul, Int(2), String("ab"), String("abab")},
		{token.Mul, String("ab"), Int(-1), String("")},
		{token.Add, List{Int(1)}, List{Int(2)}, List{Int(1), Int(2)}},
		{token.Mul, List{Int(0)}, Int(2), List{Int(0), Int(0)}},
		{token.Mul, True, List{None}, List{None}},
	}
	for _, tC := range testCases {
		t.Run(fmt.Sprintf("%s %s %s", Repr(tC.left), tC.tok, Repr(tC.right)),
			func(t *testing.T) {
				got, err := BinaryOp(tC.tok, tC.left, tC.right)
				require.NoError(t, err)
				require.True(t, SameConstant(tC.want, got) || tC.want.Equal(got),
					"want %s (%T) got %s (%T)", tC.want, tC.want, got, got)
				require.Equal(t, tC.want.TypeName(), got.TypeName())
			})
	}

	errCases := []struct {
		tok         token.Token
		left, right Object
		is          error
		msg         string
	}{
		{token.Quo, Int(1), Int(0), ErrZeroDivision,
			"ZeroDivisionError: division by zero"},
		{token.FloorQuo, Int(1), Int(0), ErrZeroDivision,
			"ZeroDivisionError: integer division or modulo by zero"},
		{token.Rem, Int(1), Int(0), ErrZeroDivision,
			"ZeroDivisionError: integer modulo by zero"},
		{token.Quo, Float(1), Float(0), ErrZeroDivision,
			"ZeroDivisionError: float division by zero"},
		{token.Pow, Float(0), Int(-1), ErrZeroDivision,
			"ZeroDivisionError: 0.0 cannot be raised to a negative power"},
		{token.Add, Int(math.MaxInt64), Int(1), ErrOverflow,
			"OverflowError: integer result out of range"},
		{token.Mul, Int(math.MinInt64), Int(-1), ErrOverflow,
			"OverflowError: integer result out of range"},
		{token.Pow, Int(10), Int(19), ErrOverflow,
			"OverflowError: integer result out of range"},
		{token.Pow, Float(10), Float(400), ErrOverflow,
			"OverflowError: numerical result out of range"},
		{token.Add, String("a"), Int(1), ErrType,
			"TypeError: unsupported operand type(s) for +: 'str' and 'int'"},
		{token.Less, Int(1), String("a"), ErrType,
			"TypeError: '<' not supported between instances of 'int' and 'str'"},
		{token.Sub, None, None, ErrType,
			"TypeError: unsupported operand type(s) for -: 'NoneType' and 'NoneType'"},
		{token.Mul, String("a"), Float(2), ErrType,
			"TypeError: unsupported operand type(s) for *: 'str' and 'float'"},
		{token.Mul, String("ab"), Int(1 << 30), ErrOverflow,
			"OverflowError: repeated string is too long"},
	}
	for _, tC := range errCases {
		_, err := BinaryOp(tC.tok, tC.left, tC.right)
		require.Error(t, err)
		require.True(t, errors.Is(err, tC.is), "%v", err)
		require.Equal(t, tC.msg, err.Error())
	}
}

func TestObjectUnaryOp(t *testing.T) {
	v, err := UnaryOp(token.Sub, Int(3))
	require.NoError(t, err)
	require.Equal(t, Int(-3), v)
	v, err = UnaryOp(token.Add, True)
	require.NoError(t, err)
	require.Equal(t, Int(1), v)
	v, err = UnaryOp(token.Sub, Float(0))
	require.NoError(t, err)
	require.True(t, math.Signbit(float64(v.(Float))))
	v, err = UnaryOp(token.Not, List{})
	require.NoError(t, err)
	require.Equal(t, True, v)
	v, err = UnaryOp(token.Not, String("x"))
	require.NoError(t, err)
	require.Equal(t, False, v)

	_, err = UnaryOp(token.Sub, Int(math.MinInt64))
	require.True(t, errors.Is(err, ErrOverflow))
	_, err = UnaryOp(token.Sub, String("x"))
	require.True(t, errors.Is(err, ErrType))
	require.Equal(t, "TypeError: bad operand type for unary -: 'str'", err.Error())
}

func TestObjectError(t *testing.T) {
	err := ErrZeroDivision.NewError("division", "by zero")
	require.Equal(t, "ZeroDivisionError: division by zero", err.Error())
	require.True(t, errors.Is(err, ErrZeroDivision))
	require.False(t, errors.Is(err, ErrType))
	require.Equal(t, ErrZeroDivision, errors.Unwrap(err))

	wrapped := fmt.Errorf("run: %w", err)
	var e *Error
	require.True(t, errors.As(wrapped, &e))
	require.Equal(t, "ZeroDivisionError", e.Name)
	require.Equal(t, "division by zero", e.Message)

	rt := &RuntimeError{
		Err: err,
		Trace: []parser.SourceFilePos{
			{Filename: "a.py", Line: 3, Column: 0},
			{Filename: "a.py", Line: 7, Column: 0},
		},
	}
	require.True(t, errors.Is(rt, ErrZeroDivision))
	require.Equal(t, 3, rt.Pos().Line)
	require.Equal(t, 7, rt.StackTrace()[0].Line)
	require.Equal(t, err.Error(), fmt.Sprintf("%v", rt))
	require.Equal(t, fmt.Sprintf("%q", err.Error()), fmt.Sprintf("%q", rt))
	require.Equal(t,
		"ZeroDivisionError: division by zero\n\tat a.py:7\n\t   a.py:3",
		fmt.Sprintf("%+v", rt))

	require.Equal(t, parser.SourceFilePos{}, (&RuntimeError{}).Pos())
	require.Nil(t, (&RuntimeError{}).StackTrace())
}

func TestObjectImpl(t *testing.T) {
	var o ObjectImpl
	require.False(t, o.Equal(o))
	require.False(t, o.IsFalsy())
	require.False(t, o.CanCall())
	require.False(t, o.CanIterate())
	require.Nil(t, o.Iterate())
	_, err := o.Call(Call{})
	require.Equal(t, ErrNotImplemented, err)
	_, err = o.IndexGet(Int(0))
	require.Equal(t, ErrNotImplemented, err)
	require.Equal(t, ErrNotImplemented, o.IndexSet(Int(0), Int(0)))
	_, err = o.BinaryOp(token.Add, Int(0))
	require.Equal(t, ErrNotImplemented, err)
}
