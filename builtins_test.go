package minipyc_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/minipyc/minipyc"
)

func TestBuiltinObjects(t *testing.T) {
	require.Equal(t, len(BuiltinsMap), len(BuiltinObjects))
	for name, bt := range BuiltinsMap {
		o, ok := LookupBuiltin(name)
		require.True(t, ok, name)
		require.Equal(t, BuiltinObjects[bt], o)
		require.True(t, o.CanCall(), name)
		require.Equal(t, "<built-in function "+name+">", o.String())
	}
	_, ok := LookupBuiltin("open")
	require.False(t, ok)
}

func TestBuiltinPrint(t *testing.T) {
	var buf bytes.Buffer
	vm := NewVM(nil).SetStdout(&buf)
	printFn := BuiltinObjects[BuiltinPrint]

	ret, err := printFn.Call(NewCall(vm, Int(1), String("a"), List{String("b")}, None))
	require.NoError(t, err)
	require.Equal(t, None, ret)
	_, err = printFn.Call(NewCall(vm))
	require.NoError(t, err)
	require.Equal(t, "1 a ['b'] None\n\n", buf.String())

	// without a VM print writes to PrintWriter
	buf.Reset()
	orig := PrintWriter
	PrintWriter = &buf
	defer func() { PrintWriter = orig }()
	_, err = printFn.Call(NewCall(nil, Float(2)))
	require.NoError(t, err)
	require.Equal(t, "2.0\n", buf.String())
}

func TestBuiltinInput(t *testing.T) {
	var out bytes.Buffer
	vm := NewVM(nil).SetStdout(&out).
		SetStdin(strings.NewReader("first\r\nsecond\nlast"))
	input := BuiltinObjects[BuiltinInput]

	ret, err := input.Call(NewCall(vm, String("> ")))
	require.NoError(t, err)
	require.Equal(t, String("first"), ret)
	ret, err = input.Call(NewCall(vm))
	require.NoError(t, err)
	require.Equal(t, String("second"), ret)
	ret, err = input.Call(NewCall(vm, Int(1)))
	require.NoError(t, err)
	require.Equal(t, String("last"), ret)
	require.Equal(t, "> 1", out.String())

	_, err = input.Call(NewCall(vm))
	require.True(t, errors.Is(err, ErrEOF), "%v", err)
	require.Equal(t, "EOFError: EOF when reading a line", err.Error())

	_, err = input.Call(NewCall(vm, String("a"), String("b")))
	require.True(t, errors.Is(err, ErrType))
	require.Equal(t, "TypeError: input expected at most 1 argument, got 2",
		err.Error())

	_, err = input.Call(NewCall(nil))
	require.True(t, errors.Is(err, ErrEOF))
}

func TestBuiltinMinMax(t *testing.T) {
	minFn := BuiltinObjects[BuiltinMin]
	maxFn := BuiltinObjects[BuiltinMax]

	ret, err := maxFn.Call(NewCall(nil, Int(1), Float(1), True))
	require.NoError(t, err)
	require.Equal(t, Int(1), ret)
	ret, err = minFn.Call(NewCall(nil, List{String("b"), String("a")}))
	require.NoError(t, err)
	require.Equal(t, String("a"), ret)
	ret, err = maxFn.Call(NewCall(nil, &Range{Start: 2, Stop: 9, Step: 3}))
	require.NoError(t, err)
	require.Equal(t, Int(8), ret)

	_, err = minFn.Call(NewCall(nil, Int(1)))
	require.Equal(t, "TypeError: 'int' object is not iterable", err.Error())
	_, err = maxFn.Call(NewCall(nil, Int(1), String("a")))
	require.Equal(t,
		"TypeError: '>' not supported between instances of 'str' and 'int'",
		err.Error())
	_, err = maxFn.Call(NewCall(nil, String("")))
	require.Equal(t, "ValueError: max() arg is an empty sequence", err.Error())
}

func TestBuiltinConversions(t *testing.T) {
	call := func(bt BuiltinType, args ...Object) (Object, error) {
		return BuiltinObjects[bt].Call(NewCall(nil, args...))
	}

	ret, err := call(BuiltinInt, String("-17"))
	require.NoError(t, err)
	require.Equal(t, Int(-17), ret)
	_, err = call(BuiltinInt, String("99999999999999999999"))
	require.True(t, errors.Is(err, ErrOverflow))
	_, err = call(BuiltinInt, String("1_000"))
	require.True(t, errors.Is(err, ErrValue))
	_, err = call(BuiltinInt, Float(1e20))
	require.True(t, errors.Is(err, ErrOverflow))
	_, err = call(BuiltinInt, List{})
	require.Equal(t,
		"TypeError: int() argument must be a string or a real number, not 'list'",
		err.Error())

	ret, err = call(BuiltinFloat, String(" 1e3 "))
	require.NoError(t, err)
	require.Equal(t, Float(1000), ret)
	ret, err = call(BuiltinFloat, True)
	require.NoError(t, err)
	require.Equal(t, Float(1), ret)
	_, err = call(BuiltinFloat, None)
	require.True(t, errors.Is(err, ErrType))

	ret, err = call(BuiltinStr, String("x"))
	require.NoError(t, err)
	require.Equal(t, String("x"), ret)
	ret, err = call(BuiltinStr, List{String("x")})
	require.NoError(t, err)
	require.Equal(t, String("['x']"), ret)

	ret, err = call(BuiltinBool, Float(0))
	require.NoError(t, err)
	require.Equal(t, False, ret)

	ret, err = call(BuiltinAbs, True)
	require.NoError(t, err)
	require.Equal(t, Int(1), ret)
	_, err = call(BuiltinAbs, Int(-1<<63))
	require.True(t, errors.Is(err, ErrOverflow))

	ret, err = call(BuiltinLen, String("héllo"))
	require.NoError(t, err)
	require.Equal(t, Int(5), ret)

	ret, err = call(BuiltinTypeOf, None)
	require.NoError(t, err)
	require.Equal(t, String("<class 'NoneType'>"), ret)
	_, err = call(BuiltinTypeOf)
	require.Equal(t, "TypeError: type() takes exactly one argument (0 given)",
		err.Error())
}
