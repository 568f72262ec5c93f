// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package minipyc

import (
	"fmt"
	"unicode/utf8"

	"github.com/minipyc/minipyc/token"
)

// Iterator wraps the methods required to iterate Objects in VM.
type Iterator interface {
	// Next returns true if there are more elements to iterate.
	Next() bool

	// Key returns the index of the current element.
	Key() Object

	// Value returns the value of the current element.
	Value() Object
}

// iteratorObject is used in VM to push an iterator to the stack.
type iteratorObject struct {
	ObjectImpl
	Iterator
}

var _ Object = (*iteratorObject)(nil)

func (*iteratorObject) TypeName() string {
	return "iterator"
}

func (*iteratorObject) String() string {
	return "<iterator>"
}

// ListIterator represents an iterator for the list.
type ListIterator struct {
	V List
	i int
}

var _ Iterator = (*ListIterator)(nil)

// Next implements Iterator interface.
func (it *ListIterator) Next() bool {
	it.i++
	return it.i-1 < len(it.V)
}

// Key implements Iterator interface.
func (it *ListIterator) Key() Object {
	return Int(it.i - 1)
}

// Value implements Iterator interface.
func (it *ListIterator) Value() Object {
	i := it.i - 1
	if i > -1 && i < len(it.V) {
		return it.V[i]
	}
	return None
}

// StringIterator represents an iterator for the string, it yields one
// string per code point.
type StringIterator struct {
	V string
	i int
	k int
	s int
}

var _ Iterator = (*StringIterator)(nil)

// Next implements Iterator interface.
func (it *StringIterator) Next() bool {
	if it.i >= len(it.V) {
		return false
	}
	_, s := utf8.DecodeRuneInString(it.V[it.i:])
	it.k = it.i
	it.s = s
	it.i += s
	return true
}

// Key implements Iterator interface.
func (it *StringIterator) Key() Object {
	return Int(it.k)
}

// Value implements Iterator interface.
func (it *StringIterator) Value() Object {
	return String(it.V[it.k : it.k+it.s])
}

// Range represents an immutable arithmetic sequence created by range().
type Range struct {
	ObjectImpl
	Start, Stop, Step int64
}

var _ Object = (*Range)(nil)

// TypeName implements Object interface.
func (*Range) TypeName() string {
	return "range"
}

// String implements Object interface.
func (o *Range) String() string {
	if o.Step == 1 {
		return fmt.Sprintf("range(%d, %d)", o.Start, o.Stop)
	}
	return fmt.Sprintf("range(%d, %d, %d)", o.Start, o.Stop, o.Step)
}

// Len returns the number of elements of the range.
func (o *Range) Len() int64 {
	switch {
	case o.Step > 0 && o.Start < o.Stop:
		return int64((uint64(o.Stop)-uint64(o.Start)-1)/uint64(o.Step) + 1)
	case o.Step < 0 && o.Start > o.Stop:
		return int64((uint64(o.Start)-uint64(o.Stop)-1)/(uint64(-(o.Step+1))+1) + 1)
	}
	return 0
}

// Equal implements Object interface.
func (o *Range) Equal(right Object) bool {
	v, ok := right.(*Range)
	if !ok {
		return false
	}
	n := o.Len()
	if n != v.Len() {
		return false
	}
	switch n {
	case 0:
		return true
	case 1:
		return o.Start == v.Start
	}
	return o.Start == v.Start && o.Step == v.Step
}

// IsFalsy implements Object interface.
func (o *Range) IsFalsy() bool { return o.Len() == 0 }

// CanIterate implements Object interface.
func (*Range) CanIterate() bool { return true }

// Iterate implements Object interface.
func (o *Range) Iterate() Iterator {
	return &RangeIterator{next: o.Start, n: o.Len(), step: o.Step}
}

// IndexGet implements Object interface.
func (o *Range) IndexGet(index Object) (Object, error) {
	idx, ok := indexValue(index)
	if !ok {
		return nil, NewIndexTypeError(o, index)
	}
	n := o.Len()
	if idx < 0 {
		idx += n
	}
	if idx < 0 || idx >= n {
		return nil, ErrIndex.NewError("range object index out of range")
	}
	return Int(o.Start + idx*o.Step), nil
}

// IndexSet implements Object interface.
func (o *Range) IndexSet(index, value Object) error {
	return ErrType.NewError("'range' object does not support item assignment")
}

// BinaryOp implements Object interface.
func (o *Range) BinaryOp(tok token.Token, right Object) (Object, error) {
	return nil, NewOperandTypeError(tok, o, right)
}

// RangeIterator represents an iterator for the range.
type RangeIterator struct {
	next  int64
	step  int64
	n     int64
	i     int64
	value int64
}

var _ Iterator = (*RangeIterator)(nil)

// Next implements Iterator interface.
func (it *RangeIterator) Next() bool {
	if it.i >= it.n {
		return false
	}
	it.value = it.next
	it.next += it.step
	it.i++
	return true
}

// Key implements Iterator interface.
func (it *RangeIterator) Key() Object {
	return Int(it.i - 1)
}

// Value implements Iterator interface.
func (it *RangeIterator) Value() Object {
	return Int(it.value)
}
