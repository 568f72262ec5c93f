package encoder_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/minipyc/minipyc"

	. "github.com/minipyc/minipyc/encoder"
)

const testScript = `
total = 0
def add(a, b):
    s = a + b
    return s

def greet(name):
    return "hello " + name

for i in range(10):
    if i % 2 == 0:
        continue
    total = add(total, i)
    if total > 100:
        break

while total > 0:
    total = total - 7.5

msg = greet("world")
flags = [True, False, None, -0.0, 1, 1.0, 1e300 * 1e300]
`

func TestArtifactRoundTrip(t *testing.T) {
	for _, optimize := range []bool{true, false} {
		unit, err := minipyc.Compile([]byte(testScript),
			minipyc.CompilerOptions{Filename: "test.py", Optimize: optimize})
		require.NoError(t, err)

		keys := []InvalidationKey{
			NewInvalidationKey([]byte(testScript), time.Unix(1700000000, 5), TimestampKey),
			NewInvalidationKey([]byte(testScript), time.Time{}, HashKey),
			{},
		}
		for _, key := range keys {
			data, err := Write(unit, key)
			require.NoError(t, err)
			require.Equal(t, Magic[:], data[:4])

			a, err := Read(data)
			require.NoError(t, err)
			require.Equal(t, FormatVersion, a.Version)
			require.Equal(t, key, a.Key)
			require.True(t, a.Main.Equal(unit),
				"want:\n%s\ngot:\n%s", unit.Disassemble(), a.Main.Disassemble())

			gotKey, err := ReadKey(data)
			require.NoError(t, err)
			require.Equal(t, key, gotKey)

			// encoding is deterministic
			again, err := Write(a.Main, a.Key)
			require.NoError(t, err)
			require.Equal(t, data, again)
		}
	}
}

func TestArtifactRunsAfterDecode(t *testing.T) {
	unit, err := minipyc.Compile([]byte(testScript),
		minipyc.CompilerOptions{Filename: "test.py", Optimize: true})
	require.NoError(t, err)

	data, err := Write(unit, InvalidationKey{})
	require.NoError(t, err)
	a, err := Read(data)
	require.NoError(t, err)

	run := func(u *minipyc.CodeUnit) map[string]minipyc.Object {
		globals := map[string]minipyc.Object{}
		_, err := minipyc.NewVM(u).Run(globals)
		require.NoError(t, err)
		return globals
	}
	want := run(unit)
	got := run(a.Main)
	for _, name := range []string{"total", "msg", "flags"} {
		require.True(t, want[name].Equal(got[name]), name)
	}
	require.Equal(t, minipyc.String("hello world"), got["msg"])
	require.Equal(t, minipyc.Float(math.Inf(1)), got["flags"].(minipyc.List)[6])
	require.True(t, math.Signbit(float64(got["flags"].(minipyc.List)[3].(minipyc.Float))))
}

func TestArtifactConstants(t *testing.T) {
	fn := &minipyc.CodeUnit{
		Name:         "f",
		Filename:     "m.py",
		FirstLine:    3,
		ArgCount:     1,
		Flags:        minipyc.CodeFlagFunction,
		Instructions: concatInsts(makeInst(minipyc.OpGetLocal, 0), makeInst(minipyc.OpReturn, 1)),
		Locals:       []string{"x"},
		SourceMap:    map[int]int{0: 4},
	}
	unit := &minipyc.CodeUnit{
		Name:     "<module>",
		Filename: "m.py",
		Instructions: concatInsts(
			makeInst(minipyc.OpConstant, 5),
			makeInst(minipyc.OpSetGlobal, 0),
			makeInst(minipyc.OpReturn, 0),
		),
		Constants: []minipyc.Object{
			minipyc.None,
			minipyc.True,
			minipyc.Int(math.MinInt64),
			minipyc.Float(math.NaN()),
			minipyc.String("héllo\x00"),
			fn,
			minipyc.Float(math.Copysign(0, -1)),
			minipyc.False,
		},
		Names:     []string{"f"},
		SourceMap: map[int]int{0: 1, 3: 2},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeArtifactTo(&buf, unit, InvalidationKey{Mode: HashKey, Size: 9}))
	a, err := DecodeArtifactFrom(&buf)
	require.NoError(t, err)
	require.True(t, a.Main.Equal(unit))
	for i := range unit.Constants {
		require.True(t, minipyc.SameConstant(unit.Constants[i], a.Main.Constants[i]), "#%d", i)
	}
	require.Equal(t, fn.Flags, a.Main.Constants[5].(*minipyc.CodeUnit).Flags)

	// unsupported constant
	unit.Constants = append(unit.Constants, minipyc.List{})
	_, err = Write(unit, InvalidationKey{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "type 'list' cannot be encoded")

	_, err = Write(nil, InvalidationKey{})
	require.Error(t, err)
}

func TestArtifactFile(t *testing.T) {
	unit, err := minipyc.Compile([]byte("x = 1\n"), minipyc.CompilerOptions{})
	require.NoError(t, err)

	a := &Artifact{Main: unit, Key: NewInvalidationKey([]byte("x = 1\n"), time.Now(), TimestampKey)}
	data, err := a.MarshalBinary()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "x.minipyc-1.pyc")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	got, err := DecodeArtifactFrom(f)
	require.NoError(t, err)
	require.True(t, got.Main.Equal(unit))
	require.True(t, got.Key.Matches(a.Key))

	var b Artifact
	require.NoError(t, b.UnmarshalBinary(data))
	require.True(t, b.Main.Equal(unit))
}

func TestArtifactVersionRejection(t *testing.T) {
	unit, err := minipyc.Compile([]byte("x = 1\n"), minipyc.CompilerOptions{})
	require.NoError(t, err)
	data, err := Write(unit, InvalidationKey{})
	require.NoError(t, err)

	// version field
	bad := append([]byte(nil), data...)
	binary.BigEndian.PutUint16(bad[4:6], 2)
	_, err = Read(bad)
	var verr *UnsupportedVersionError
	require.True(t, errors.As(err, &verr), "%v", err)
	require.Equal(t, uint16(2), verr.Version)
	require.Equal(t, "unsupported artifact version 2 (want 1)", err.Error())

	// magic version byte
	bad = append([]byte(nil), data...)
	bad[2] = 7
	_, err = Read(bad)
	require.True(t, errors.As(err, &verr), "%v", err)
	require.Equal(t, uint16(7), verr.Version)
	_, err = ReadKey(bad)
	require.True(t, errors.As(err, &verr))

	// a different file type
	bad = append([]byte(nil), data...)
	copy(bad, "\x03\xf3\r\n")
	_, err = Read(bad)
	var ferr *FormatError
	require.True(t, errors.As(err, &ferr), "%v", err)
	require.Equal(t, 0, ferr.Offset)
	require.Contains(t, ferr.Error(), "bad magic number")
}

func TestArtifactMalformed(t *testing.T) {
	unit := &minipyc.CodeUnit{
		Name:         "m",
		Instructions: makeInst(minipyc.OpReturn, 0),
	}
	data, err := Write(unit, InvalidationKey{})
	require.NoError(t, err)
	// header + name + filename + line, args, flags + instruction length
	const insStart = HeaderSize + 4 + 1 + 4 + 12 + 4

	expectFormatError := func(t *testing.T, data []byte, offset int, msg string) {
		t.Helper()
		_, err := Read(data)
		var ferr *FormatError
		require.True(t, errors.As(err, &ferr), "%v", err)
		require.Equal(t, offset, ferr.Offset, ferr.Error())
		require.Contains(t, ferr.Msg, msg)
	}

	t.Run("truncated", func(t *testing.T) {
		for n := 4; n < len(data); n++ {
			_, err := Read(data[:n])
			var ferr *FormatError
			require.True(t, errors.As(err, &ferr), "length %d: %v", n, err)
		}
		expectFormatError(t, data[:HeaderSize-1], HeaderSize-1, "truncated header")
	})

	t.Run("trailing", func(t *testing.T) {
		expectFormatError(t, append(append([]byte(nil), data...), 0), len(data),
			"1 trailing bytes")
	})

	t.Run("key flags", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[7] = 4
		expectFormatError(t, bad, 6, "unknown key flags")
	})

	t.Run("huge count", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		binary.BigEndian.PutUint32(bad[insStart+2:], math.MaxUint32)
		expectFormatError(t, bad, insStart+2, "constants count")
	})

	encode := func(u *minipyc.CodeUnit) []byte {
		b, err := Write(u, InvalidationKey{})
		require.NoError(t, err)
		return b
	}

	t.Run("unknown opcode", func(t *testing.T) {
		expectFormatError(t, encode(&minipyc.CodeUnit{
			Name:         "m",
			Instructions: []byte{200},
		}), insStart, "unknown opcode 200")
	})

	t.Run("incomplete operand", func(t *testing.T) {
		expectFormatError(t, encode(&minipyc.CodeUnit{
			Name:         "m",
			Instructions: concatInsts(makeInst(minipyc.OpPop), []byte{minipyc.OpConstant, 0}),
		}), insStart+1, "incomplete CONSTANT")
	})

	t.Run("constant index", func(t *testing.T) {
		expectFormatError(t, encode(&minipyc.CodeUnit{
			Name:         "m",
			Instructions: makeInst(minipyc.OpConstant, 1),
			Constants:    []minipyc.Object{minipyc.None},
		}), insStart, "constant index 1 out of range")
	})

	t.Run("name index", func(t *testing.T) {
		expectFormatError(t, encode(&minipyc.CodeUnit{
			Name:         "m",
			Instructions: concatInsts(makeInst(minipyc.OpGetGlobal, 0), makeInst(minipyc.OpSetGlobal, 1)),
			Names:        []string{"a"},
		}), insStart+3, "name index 1 out of range")
	})

	t.Run("local index", func(t *testing.T) {
		expectFormatError(t, encode(&minipyc.CodeUnit{
			Name:         "m",
			Instructions: makeInst(minipyc.OpGetLocal, 0),
		}), insStart, "local index 0 out of range")
	})

	t.Run("make function", func(t *testing.T) {
		expectFormatError(t, encode(&minipyc.CodeUnit{
			Name:         "m",
			Instructions: makeInst(minipyc.OpMakeFunction, 0),
			Constants:    []minipyc.Object{minipyc.Int(1)},
		}), insStart, "is not a code unit")
	})

	t.Run("jump target", func(t *testing.T) {
		insts := concatInsts(
			makeInst(minipyc.OpJump, 4),
			makeInst(minipyc.OpConstant, 0),
			makeInst(minipyc.OpReturn, 1),
		)
		expectFormatError(t, encode(&minipyc.CodeUnit{
			Name:         "m",
			Instructions: insts,
			Constants:    []minipyc.Object{minipyc.None},
		}), insStart, "jump target 4 is not an instruction")

		insts = concatInsts(
			makeInst(minipyc.OpJump, 3),
			makeInst(minipyc.OpIterNext, 100),
		)
		expectFormatError(t, encode(&minipyc.CodeUnit{
			Name:         "m",
			Instructions: insts,
		}), insStart+3, "jump target 100")
	})

	t.Run("nested unit", func(t *testing.T) {
		inner := &minipyc.CodeUnit{Name: "g", Instructions: []byte{250}}
		data := encode(&minipyc.CodeUnit{
			Name:         "m",
			Instructions: makeInst(minipyc.OpMakeFunction, 0),
			Constants:    []minipyc.Object{inner},
		})
		_, err := Read(data)
		var ferr *FormatError
		require.True(t, errors.As(err, &ferr), "%v", err)
		require.Contains(t, ferr.Msg, "unknown opcode 250")
		require.Equal(t, byte(250), data[ferr.Offset])
	})

	t.Run("args exceed locals", func(t *testing.T) {
		_, err := Read(encode(&minipyc.CodeUnit{Name: "m", ArgCount: 1}))
		var ferr *FormatError
		require.True(t, errors.As(err, &ferr), "%v", err)
		require.Contains(t, ferr.Msg, "argument count 1 exceeds 0 locals")
	})

	t.Run("source map", func(t *testing.T) {
		_, err := Read(encode(&minipyc.CodeUnit{
			Name:         "m",
			Instructions: makeInst(minipyc.OpPop),
			SourceMap:    map[int]int{1: 1},
		}))
		var ferr *FormatError
		require.True(t, errors.As(err, &ferr), "%v", err)
		require.Contains(t, ferr.Msg, "invalid source map offset 1")
	})
}

func TestInvalidationKey(t *testing.T) {
	src := []byte("print(1)\n")
	mtime := time.Unix(1600000000, 0)

	ts := NewInvalidationKey(src, mtime, TimestampKey)
	require.Equal(t, TimestampKey, ts.Mode)
	require.Equal(t, int64(1600000000), ts.Mtime)
	require.Equal(t, uint64(len(src)), ts.Size)
	require.Equal(t, [32]byte{}, ts.Hash)
	require.True(t, ts.Matches(NewInvalidationKey(src, mtime, TimestampKey)))
	require.False(t, ts.Matches(NewInvalidationKey(src, mtime.Add(time.Second), TimestampKey)))
	require.False(t, ts.Matches(NewInvalidationKey([]byte("print(2)\n\n"), mtime, TimestampKey)))
	require.False(t, ts.Matches(NewInvalidationKey(src, mtime, HashKey)))
	require.Equal(t, "mtime:1600000000 size:9", ts.String())

	h := NewInvalidationKey(src, mtime, HashKey)
	require.Equal(t, HashKey, h.Mode)
	require.Zero(t, h.Mtime)
	require.NotEqual(t, [32]byte{}, h.Hash)
	// hash keys ignore modification time
	require.True(t, h.Matches(NewInvalidationKey(src, time.Now(), HashKey)))
	// same size, different content
	require.False(t, h.Matches(NewInvalidationKey([]byte("print(2)\n"), mtime, HashKey)))
	require.Equal(t, "hash", HashKey.String())
	require.Equal(t, "timestamp", TimestampKey.String())
}

func makeInst(op minipyc.Opcode, args ...int) []byte {
	b, err := minipyc.MakeInstruction(op, args...)
	if err != nil {
		panic(err)
	}
	return b
}

func concatInsts(insts ...[]byte) []byte {
	var out []byte
	for i := range insts {
		out = append(out, insts[i]...)
	}
	return out
}
