// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package minipyc

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/minipyc/minipyc/parser"
	"github.com/minipyc/minipyc/token"
)

// Code unit flags.
const (
	// CodeFlagFunction marks the unit of a function body.
	CodeFlagFunction uint32 = 1 << iota
)

// CodeUnit holds the instructions, constants and name tables of a module or
// a function body. Units of nested functions are stored in Constants.
type CodeUnit struct {
	Name         string
	Filename     string
	FirstLine    int
	ArgCount     int
	Flags        uint32
	Instructions []byte
	Constants    []Object
	// Names holds global and builtin names referenced by the unit.
	Names []string
	// Locals holds parameters first, then other local variables.
	Locals []string
	// SourceMap holds the index of instruction and the source line.
	SourceMap map[int]int
}

var _ Object = (*CodeUnit)(nil)

// TypeName implements Object interface
func (*CodeUnit) TypeName() string {
	return "code"
}

func (o *CodeUnit) String() string {
	return fmt.Sprintf("<code object %s, file %q, line %d>",
		o.Name, o.Filename, o.FirstLine)
}

// IsFunction reports whether the unit is a function body.
func (o *CodeUnit) IsFunction() bool {
	return o.Flags&CodeFlagFunction != 0
}

// CanIterate implements Object interface
func (*CodeUnit) CanIterate() bool { return false }

// Iterate implements Object interface
func (*CodeUnit) Iterate() Iterator { return nil }

// IndexGet implements Object interface.
func (*CodeUnit) IndexGet(index Object) (Object, error) {
	return nil, ErrNotImplemented
}

// IndexSet implements Object interface.
func (*CodeUnit) IndexSet(index, value Object) error {
	return ErrNotImplemented
}

// CanCall implements Object interface
func (*CodeUnit) CanCall() bool { return false }

// Call implements Object interface
func (*CodeUnit) Call(Call) (Object, error) {
	return nil, ErrNotImplemented
}

// BinaryOp implements Object interface
func (o *CodeUnit) BinaryOp(tok token.Token, right Object) (Object, error) {
	return nil, NewOperandTypeError(tok, o, right)
}

// IsFalsy implements Object interface
func (*CodeUnit) IsFalsy() bool { return false }

// Equal implements Object interface. Two units are equal if all of their
// fields are equal, constants are compared by type and value.
func (o *CodeUnit) Equal(right Object) bool {
	v, ok := right.(*CodeUnit)
	if !ok {
		return false
	}
	if o == v {
		return true
	}
	if o.Name != v.Name ||
		o.Filename != v.Filename ||
		o.FirstLine != v.FirstLine ||
		o.ArgCount != v.ArgCount ||
		o.Flags != v.Flags ||
		!bytes.Equal(o.Instructions, v.Instructions) ||
		!equalStrings(o.Names, v.Names) ||
		!equalStrings(o.Locals, v.Locals) ||
		len(o.Constants) != len(v.Constants) ||
		len(o.SourceMap) != len(v.SourceMap) {
		return false
	}
	for i := range o.Constants {
		if !SameConstant(o.Constants[i], v.Constants[i]) {
			return false
		}
	}
	for k, line := range o.SourceMap {
		if l, ok := v.SourceMap[k]; !ok || l != line {
			return false
		}
	}
	return true
}

// SameConstant reports whether two constant pool entries are identical,
// which requires the same type and the same value. 1, 1.0 and True are
// different constants, so are 0.0 and -0.0.
func SameConstant(a, b Object) bool {
	switch x := a.(type) {
	case Int:
		y, ok := b.(Int)
		return ok && x == y
	case Float:
		y, ok := b.(Float)
		return ok && math.Float64bits(float64(x)) == math.Float64bits(float64(y))
	case String:
		y, ok := b.(String)
		return ok && x == y
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case *NoneType:
		_, ok := b.(*NoneType)
		return ok
	case *CodeUnit:
		return x.Equal(b)
	}
	return false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Line returns the source line of the instruction at ip.
func (o *CodeUnit) Line(ip int) int {
	for ; ip >= 0; ip-- {
		if line, ok := o.SourceMap[ip]; ok {
			return line
		}
	}
	return o.FirstLine
}

// SourcePos returns the source position of the instruction at ip.
func (o *CodeUnit) SourcePos(ip int) parser.SourceFilePos {
	return parser.SourceFilePos{Filename: o.Filename, Line: o.Line(ip)}
}

// SortedSourceMap returns source map entries sorted by instruction offset.
func (o *CodeUnit) SortedSourceMap() [][2]int {
	out := make([][2]int, 0, len(o.SourceMap))
	for ip, line := range o.SourceMap {
		out = append(out, [2]int{ip, line})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// Fprint writes constants and instructions to given Writer in a human
// readable form, nested units are indented.
func (o *CodeUnit) Fprint(w io.Writer) {
	_, _ = fmt.Fprintf(w, "Code:%s File:%s Line:%d Params:%d Locals:%d\n",
		o.Name, o.Filename, o.FirstLine, o.ArgCount, len(o.Locals))
	_, _ = fmt.Fprintf(w, "Constants:\n")
	for i := range o.Constants {
		if cu, ok := o.Constants[i].(*CodeUnit); ok {
			_, _ = fmt.Fprintf(w, "%4d: CodeUnit\n", i)
			var b bytes.Buffer
			cu.Fprint(&b)
			_, _ = fmt.Fprint(w, "\t")
			str := b.String()
			c := strings.Count(str, "\n")
			_, _ = fmt.Fprint(w, strings.Replace(str, "\n", "\n\t", c-1))
		} else {
			_, _ = fmt.Fprintf(w, "%4d: %s|%s\n", i,
				Repr(o.Constants[i]), o.Constants[i].TypeName())
		}
	}
	_, _ = fmt.Fprintf(w, "Names:%v\n", o.Names)
	_, _ = fmt.Fprintf(w, "Locals:%v\n", o.Locals)
	_, _ = fmt.Fprintf(w, "Instructions:\n")
	for _, s := range FormatInstructions(o.Instructions, 0) {
		_, _ = fmt.Fprintln(w, s)
	}
	_, _ = fmt.Fprintf(w, "SourceMap:%v\n", o.SortedSourceMap())
}

// Disassemble returns the output of Fprint.
func (o *CodeUnit) Disassemble() string {
	var buf bytes.Buffer
	o.Fprint(&buf)
	return buf.String()
}
