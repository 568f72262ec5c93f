// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package minipyc

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/minipyc/minipyc/parser"
	"github.com/minipyc/minipyc/token"
)

const maxRepeat = 1 << 28

var (
	// None represents the None value.
	None Object = &NoneType{}
	// True represents a true value.
	True = Bool(true)
	// False represents a false value.
	False = Bool(false)
)

// Object represents an object in the VM.
type Object interface {
	// TypeName should return the name of the type.
	TypeName() string

	// String should return a string of the type's value, like str().
	String() string

	// BinaryOp handles +,-,*,/,//,%,** and comparison operators other than
	// equality. Returned error stops VM execution if not handled with an
	// error handler.
	BinaryOp(tok token.Token, right Object) (Object, error)

	// IsFalsy returns true if value is falsy otherwise false.
	IsFalsy() bool

	// Equal checks equality of objects.
	Equal(right Object) bool

	// Call is called from VM if CanCall() returns true. Check the number of
	// arguments provided and their types in the method.
	Call(c Call) (Object, error)

	// CanCall returns true if type can be called with Call() method.
	CanCall() bool

	// Iterate should return an Iterator for the type.
	Iterate() Iterator

	// CanIterate should return whether the Object can be Iterated.
	CanIterate() bool

	// IndexGet should take an index Object and return a result Object or an
	// error for indexable objects.
	IndexGet(index Object) (value Object, err error)

	// IndexSet should take an index Object and a value Object for index
	// assignable objects.
	IndexSet(index, value Object) error
}

// Call is a struct to pass arguments to Call methods. It provides VM for
// builtins that need host I/O.
type Call struct {
	vm   *VM
	args []Object
}

// NewCall creates a new Call struct with the given arguments.
func NewCall(vm *VM, args ...Object) Call {
	return Call{vm: vm, args: args}
}

// VM returns the VM of the call.
func (c *Call) VM() *VM {
	return c.vm
}

// Get returns the nth argument.
func (c *Call) Get(n int) Object {
	return c.args[n]
}

// Len returns the number of arguments.
func (c *Call) Len() int {
	return len(c.args)
}

// Args returns the arguments.
func (c *Call) Args() []Object {
	return c.args
}

// ObjectImpl is the basic Object implementation and it does not nothing, and
// helps to implement Object interface by embedding and overriding methods in
// custom implementations. String and TypeName must be implemented otherwise
// calling these methods causes panic.
type ObjectImpl struct{}

var _ Object = ObjectImpl{}

// TypeName implements Object interface.
func (ObjectImpl) TypeName() string {
	panic(ErrNotImplemented)
}

// String implements Object interface.
func (ObjectImpl) String() string {
	panic(ErrNotImplemented)
}

// Equal implements Object interface.
func (ObjectImpl) Equal(Object) bool { return false }

// IsFalsy implements Object interface.
func (ObjectImpl) IsFalsy() bool { return false }

// CanCall implements Object interface.
func (ObjectImpl) CanCall() bool { return false }

// Call implements Object interface.
func (ObjectImpl) Call(Call) (Object, error) {
	return nil, ErrNotImplemented
}

// CanIterate implements Object interface.
func (ObjectImpl) CanIterate() bool { return false }

// Iterate implements Object interface.
func (ObjectImpl) Iterate() Iterator { return nil }

// IndexGet implements Object interface.
func (ObjectImpl) IndexGet(index Object) (value Object, err error) {
	return nil, ErrNotImplemented
}

// IndexSet implements Object interface.
func (ObjectImpl) IndexSet(index, value Object) error {
	return ErrNotImplemented
}

// BinaryOp implements Object interface.
func (ObjectImpl) BinaryOp(_ token.Token, _ Object) (Object, error) {
	return nil, ErrNotImplemented
}

// ErrNotImplemented is returned by ObjectImpl methods, VM converts it to a
// TypeError naming the operation.
var ErrNotImplemented = &Error{Name: "NotImplementedError"}

// NoneType represents the type of None value.
type NoneType struct {
	ObjectImpl
}

// TypeName implements Object interface.
func (*NoneType) TypeName() string {
	return "NoneType"
}

// String implements Object interface.
func (*NoneType) String() string {
	return "None"
}

// Equal implements Object interface.
func (o *NoneType) Equal(right Object) bool {
	_, ok := right.(*NoneType)
	return ok
}

// IsFalsy implements Object interface.
func (*NoneType) IsFalsy() bool { return true }

// BinaryOp implements Object interface.
func (o *NoneType) BinaryOp(tok token.Token, right Object) (Object, error) {
	return nil, NewOperandTypeError(tok, o, right)
}

// Bool represents boolean values and implements Object interface. Bool
// behaves like Int in arithmetic.
type Bool bool

// TypeName implements Object interface.
func (Bool) TypeName() string {
	return "bool"
}

// String implements Object interface.
func (o Bool) String() string {
	if o {
		return "True"
	}
	return "False"
}

// Equal implements Object interface.
func (o Bool) Equal(right Object) bool {
	return o.toInt().Equal(right)
}

// IsFalsy implements Object interface.
func (o Bool) IsFalsy() bool { return bool(!o) }

// CanCall implements Object interface.
func (Bool) CanCall() bool { return false }

// Call implements Object interface.
func (Bool) Call(Call) (Object, error) {
	return nil, ErrNotImplemented
}

// CanIterate implements Object interface.
func (Bool) CanIterate() bool { return false }

// Iterate implements Object interface.
func (Bool) Iterate() Iterator { return nil }

// IndexGet implements Object interface.
func (Bool) IndexGet(index Object) (value Object, err error) {
	return nil, ErrNotImplemented
}

// IndexSet implements Object interface.
func (Bool) IndexSet(index, value Object) error {
	return ErrNotImplemented
}

// BinaryOp implements Object interface.
func (o Bool) BinaryOp(tok token.Token, right Object) (Object, error) {
	switch right.(type) {
	case Int, Float, Bool:
		return o.toInt().BinaryOp(tok, right)
	case String, List:
		if tok == token.Mul {
			return right.BinaryOp(tok, o)
		}
	}
	return nil, NewOperandTypeError(tok, o, right)
}

func (o Bool) toInt() Int {
	if o {
		return 1
	}
	return 0
}

// String represents string values and implements Object interface.
type String string

// TypeName implements Object interface.
func (String) TypeName() string {
	return "str"
}

// String implements Object interface.
func (o String) String() string {
	return string(o)
}

// Equal implements Object interface.
func (o String) Equal(right Object) bool {
	if v, ok := right.(String); ok {
		return o == v
	}
	return false
}

// IsFalsy implements Object interface.
func (o String) IsFalsy() bool { return len(o) == 0 }

// CanCall implements Object interface.
func (String) CanCall() bool { return false }

// Call implements Object interface.
func (String) Call(Call) (Object, error) {
	return nil, ErrNotImplemented
}

// CanIterate implements Object interface.
func (String) CanIterate() bool { return true }

// Iterate implements Object interface.
func (o String) Iterate() Iterator {
	return &StringIterator{V: string(o)}
}

// IndexGet implements Object interface. Strings are indexed by code point.
func (o String) IndexGet(index Object) (Object, error) {
	idx, ok := indexValue(index)
	if !ok {
		return nil, ErrType.NewError(fmt.Sprintf(
			"string indices must be integers, not '%s'", index.TypeName()))
	}
	if isASCII(string(o)) {
		i, ok := normalizeIndex(idx, len(o))
		if !ok {
			return nil, ErrIndex.NewError("string index out of range")
		}
		return o[i : i+1], nil
	}
	runes := []rune(string(o))
	i, ok := normalizeIndex(idx, len(runes))
	if !ok {
		return nil, ErrIndex.NewError("string index out of range")
	}
	return String(runes[i]), nil
}

// IndexSet implements Object interface.
func (o String) IndexSet(index, value Object) error {
	return ErrType.NewError("'str' object does not support item assignment")
}

// BinaryOp implements Object interface.
func (o String) BinaryOp(tok token.Token, right Object) (Object, error) {
	switch v := right.(type) {
	case String:
		switch tok {
		case token.Add:
			return o + v, nil
		case token.Less:
			return Bool(o < v), nil
		case token.LessEq:
			return Bool(o <= v), nil
		case token.Greater:
			return Bool(o > v), nil
		case token.GreaterEq:
			return Bool(o >= v), nil
		}
	case Int, Bool:
		if tok == token.Mul {
			n := toInt64(v)
			if n <= 0 || len(o) == 0 {
				return String(""), nil
			}
			if int64(len(o)) > maxRepeat/n {
				return nil, ErrOverflow.NewError("repeated string is too long")
			}
			return String(strings.Repeat(string(o), int(n))), nil
		}
	}
	return nil, NewOperandTypeError(tok, o, right)
}

// Len returns the number of code points of the string.
func (o String) Len() int {
	return utf8.RuneCountInString(string(o))
}

// List represents a mutable sequence of objects.
type List []Object

var _ Object = List{}

// TypeName implements Object interface.
func (List) TypeName() string {
	return "list"
}

// String implements Object interface.
func (o List) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	last := len(o) - 1

	for i := 0; i <= last; i++ {
		sb.WriteString(Repr(o[i]))
		if i != last {
			sb.WriteString(", ")
		}
	}

	sb.WriteString("]")
	return sb.String()
}

// Equal implements Object interface.
func (o List) Equal(right Object) bool {
	v, ok := right.(List)
	if !ok || len(o) != len(v) {
		return false
	}
	for i := range o {
		if !o[i].Equal(v[i]) {
			return false
		}
	}
	return true
}

// IsFalsy implements Object interface.
func (o List) IsFalsy() bool { return len(o) == 0 }

// CanCall implements Object interface.
func (List) CanCall() bool { return false }

// Call implements Object interface.
func (List) Call(Call) (Object, error) {
	return nil, ErrNotImplemented
}

// CanIterate implements Object interface.
func (List) CanIterate() bool { return true }

// Iterate implements Object interface.
func (o List) Iterate() Iterator {
	return &ListIterator{V: o}
}

// IndexGet implements Object interface.
func (o List) IndexGet(index Object) (Object, error) {
	idx, ok := indexValue(index)
	if !ok {
		return nil, NewIndexTypeError(o, index)
	}
	i, ok := normalizeIndex(idx, len(o))
	if !ok {
		return nil, ErrIndex.NewError("list index out of range")
	}
	return o[i], nil
}

// IndexSet implements Object interface.
func (o List) IndexSet(index, value Object) error {
	idx, ok := indexValue(index)
	if !ok {
		return NewIndexTypeError(o, index)
	}
	i, ok := normalizeIndex(idx, len(o))
	if !ok {
		return ErrIndex.NewError("list assignment index out of range")
	}
	o[i] = value
	return nil
}

// BinaryOp implements Object interface.
func (o List) BinaryOp(tok token.Token, right Object) (Object, error) {
	switch v := right.(type) {
	case List:
		switch tok {
		case token.Add:
			out := make(List, 0, len(o)+len(v))
			out = append(out, o...)
			return append(out, v...), nil
		case token.Less, token.LessEq, token.Greater, token.GreaterEq:
			for i := 0; i < len(o) && i < len(v); i++ {
				if !o[i].Equal(v[i]) {
					return o[i].BinaryOp(tok, v[i])
				}
			}
			return Int(len(o)).BinaryOp(tok, Int(len(v)))
		}
	case Int, Bool:
		if tok == token.Mul {
			n := toInt64(v)
			if n <= 0 || len(o) == 0 {
				return List{}, nil
			}
			if int64(len(o)) > maxRepeat/n {
				return nil, ErrOverflow.NewError("repeated list is too long")
			}
			out := make(List, 0, len(o)*int(n))
			for i := int64(0); i < n; i++ {
				out = append(out, o...)
			}
			return out, nil
		}
	}
	return nil, NewOperandTypeError(tok, o, right)
}

// Function represents a user defined function created by MAKEFUNCTION.
type Function struct {
	ObjectImpl
	Unit *CodeUnit
}

var _ Object = (*Function)(nil)

// TypeName implements Object interface.
func (*Function) TypeName() string {
	return "function"
}

// String implements Object interface.
func (o *Function) String() string {
	return fmt.Sprintf("<function %s>", o.Unit.Name)
}

// Equal implements Object interface.
func (o *Function) Equal(right Object) bool {
	v, ok := right.(*Function)
	return ok && v == o
}

// CanCall implements Object interface.
func (*Function) CanCall() bool { return true }

// Call implements Object interface. User functions are executed by the VM
// frames, Call runs them on the VM of the call.
func (o *Function) Call(c Call) (Object, error) {
	if c.vm == nil {
		return nil, ErrType.NewError(
			fmt.Sprintf("%s() must be called by a VM", o.Unit.Name))
	}
	return c.vm.RunFunction(o, c.args...)
}

// BuiltinFunction represents a builtin function.
type BuiltinFunction struct {
	ObjectImpl
	Name  string
	Value func(Call) (Object, error)
}

var _ Object = (*BuiltinFunction)(nil)

// TypeName implements Object interface.
func (*BuiltinFunction) TypeName() string {
	return "builtin_function_or_method"
}

// String implements Object interface.
func (o *BuiltinFunction) String() string {
	return fmt.Sprintf("<built-in function %s>", o.Name)
}

// Equal implements Object interface.
func (o *BuiltinFunction) Equal(right Object) bool {
	v, ok := right.(*BuiltinFunction)
	return ok && v == o
}

// CanCall implements Object interface.
func (*BuiltinFunction) CanCall() bool { return true }

// Call implements Object interface.
func (o *BuiltinFunction) Call(c Call) (Object, error) {
	return o.Value(c)
}

// Error represents Error Object and implements error interface.
type Error struct {
	Name    string
	Message string
	Cause   error
}

func (o *Error) Unwrap() error {
	return o.Cause
}

// Error implements error interface.
func (o *Error) Error() string {
	name := o.Name
	if name == "" {
		name = "error"
	}
	if o.Message == "" {
		return name
	}
	return fmt.Sprintf("%s: %s", name, o.Message)
}

// NewError creates a new Error and sets original Error as its cause which
// can be unwrapped.
func (o *Error) NewError(messages ...string) *Error {
	return &Error{
		Name:    o.Name,
		Message: strings.Join(messages, " "),
		Cause:   o,
	}
}

// RuntimeError represents a runtime error that wraps Error and includes
// trace information.
type RuntimeError struct {
	Err *Error
	// Trace holds the source positions of the frames, innermost first.
	Trace []parser.SourceFilePos
}

func (o *RuntimeError) Unwrap() error {
	if o.Err != nil {
		return o.Err
	}
	return nil
}

func (o *RuntimeError) addTrace(pos parser.SourceFilePos) {
	o.Trace = append(o.Trace, pos)
}

// Error implements error interface.
func (o *RuntimeError) Error() string {
	if o.Err == nil {
		return "<nil>"
	}
	return o.Err.Error()
}

// Pos returns the position where the error was raised.
func (o *RuntimeError) Pos() parser.SourceFilePos {
	if len(o.Trace) == 0 {
		return parser.SourceFilePos{}
	}
	return o.Trace[0]
}

// StackTrace returns the stack trace, outermost frame first.
func (o *RuntimeError) StackTrace() StackTrace {
	sz := len(o.Trace)
	if sz == 0 {
		return nil
	}
	trace := make(StackTrace, sz)
	for i := range o.Trace {
		trace[sz-1-i] = o.Trace[i]
	}
	return trace
}

// Format implements fmt.Formater interface.
func (o *RuntimeError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v', 's':
		_, _ = io.WriteString(s, o.Error())
		if s.Flag('+') && len(o.Trace) > 0 {
			_, _ = fmt.Fprintf(s, "%+v", o.StackTrace())
		}
	case 'q':
		_, _ = io.WriteString(s, strconv.Quote(o.Error()))
	}
}

// StackTrace is the stack of source file positions.
type StackTrace []parser.SourceFilePos

// Format formats the StackTrace to the fmt.Formatter interface.
func (st StackTrace) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v', 's':
		switch {
		case s.Flag('+'):
			for i, f := range st {
				if i > 0 {
					_, _ = io.WriteString(s, "\n\t   ")
				} else {
					_, _ = io.WriteString(s, "\n\tat ")
				}
				_, _ = fmt.Fprintf(s, "%+v", f)
			}
		default:
			_, _ = fmt.Fprintf(s, "%v", []parser.SourceFilePos(st))
		}
	}
}

// Repr returns the printable representation of an object, quoting strings.
func Repr(o Object) string {
	if s, ok := o.(String); ok {
		return quote(string(s))
	}
	return o.String()
}

func quote(s string) string {
	q := '\''
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}

	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteRune(q)
	for _, r := range s {
		switch {
		case r == q || r == '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r == '\n':
			sb.WriteString(`\n`)
		case r == '\r':
			sb.WriteString(`\r`)
		case r == '\t':
			sb.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&sb, `\x%02x`, r)
		case unicode.IsPrint(r):
			sb.WriteRune(r)
		case r < 0x100:
			fmt.Fprintf(&sb, `\x%02x`, r)
		case r < 0x10000:
			fmt.Fprintf(&sb, `\u%04x`, r)
		default:
			fmt.Fprintf(&sb, `\U%08x`, r)
		}
	}
	sb.WriteRune(q)
	return sb.String()
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func indexValue(index Object) (int64, bool) {
	switch v := index.(type) {
	case Int:
		return int64(v), true
	case Bool:
		return int64(v.toInt()), true
	}
	return 0, false
}

func normalizeIndex(idx int64, length int) (int, bool) {
	if idx < 0 {
		idx += int64(length)
	}
	if idx < 0 || idx >= int64(length) {
		return 0, false
	}
	return int(idx), true
}

func toInt64(o Object) int64 {
	switch v := o.(type) {
	case Int:
		return int64(v)
	case Bool:
		return int64(v.toInt())
	}
	return 0
}
